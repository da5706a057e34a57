package config

import (
	"log/slog"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

type keySpec struct {
	env   string
	typ   keyType
	apply func(cfg *Config, v any)
}

// specs lists every scalar that can be overridden from the environment.
// Provider specs and dependency edges are structured and come only from the
// config file.
var specs = []keySpec{
	{env: "COLMENA_HIVE_BASE_URL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Hive.BaseURL = v.(string) }},
	{env: "COLMENA_AGENT_NAME", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Agent.Name = v.(string) }},
	{env: "COLMENA_AGENT_POLL_INTERVAL", typ: kDuration,
		apply: func(cfg *Config, v any) { cfg.Agent.PollInterval = Duration(v.(time.Duration)) }},
	{env: "COLMENA_AGENT_CONTEXT_WINDOW", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Agent.ContextWindow = v.(int) }},
	{env: "COLMENA_BUDGET_DAILY_MAX_CALLS", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Budget.DailyMaxCalls = v.(int) }},
	{env: "COLMENA_CACHE_MAX_ENTRIES", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Cache.MaxEntries = v.(int) }},
	{env: "COLMENA_CACHE_TTL", typ: kDuration,
		apply: func(cfg *Config, v any) { cfg.Cache.TTL = Duration(v.(time.Duration)) }},
	{env: "COLMENA_RETRY_MAX_ATTEMPTS", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Retry.MaxAttempts = v.(int) }},
	{env: "COLMENA_RETRY_BASE_DELAY", typ: kDuration,
		apply: func(cfg *Config, v any) { cfg.Retry.BaseDelay = Duration(v.(time.Duration)) }},
	{env: "COLMENA_RETRY_JITTER", typ: kBool,
		apply: func(cfg *Config, v any) { cfg.Retry.Jitter = v.(bool) }},
	{env: "COLMENA_RETRY_CALL_TIMEOUT", typ: kDuration,
		apply: func(cfg *Config, v any) { cfg.Retry.CallTimeout = Duration(v.(time.Duration)) }},
	{env: "COLMENA_EXECUTOR_WORKSPACE_ROOT", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Executor.WorkspaceRoot = v.(string) }},
	{env: "COLMENA_EXECUTOR_MAX_FILES_PER_ORDER", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Executor.MaxFilesPerOrder = v.(int) }},
	{env: "COLMENA_EXECUTOR_VALIDATION_COMMAND", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Executor.ValidationCommand = v.(string) }},
	{env: "COLMENA_SERVER_PORT", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Server.Port = v.(int) }},
	{env: "COLMENA_STORAGE_DATA_DIR", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) }},
	{env: "COLMENA_LOG_LEVEL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Log.Level = v.(string) }},
}

func applyEnvOverrides(cfg *Config, getenv func(string) string) {
	for _, s := range specs {
		raw := getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			v, err := strconv.Atoi(raw)
			if err != nil {
				slog.Warn("ignoring non-integer env override", "var", s.env, "value", raw)
				continue
			}
			s.apply(cfg, v)
		case kBool:
			v, err := strconv.ParseBool(raw)
			if err != nil {
				slog.Warn("ignoring non-boolean env override", "var", s.env, "value", raw)
				continue
			}
			s.apply(cfg, v)
		case kDuration:
			v, err := time.ParseDuration(raw)
			if err != nil {
				slog.Warn("ignoring invalid duration env override", "var", s.env, "value", raw)
				continue
			}
			s.apply(cfg, v)
		}
	}
}
