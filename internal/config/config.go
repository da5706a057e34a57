// Package config loads the daemon configuration from defaults, a JSON
// config file, and COLMENA_* environment overrides. Credentials are only
// ever read from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/colmena-dev/colmena/internal/provider"
)

type Config struct {
	Hive      HiveConfig      `json:"hive"`
	Agent     AgentConfig     `json:"agent"`
	Providers []provider.Spec `json:"providers"`
	Budget    BudgetConfig    `json:"budget"`
	Cache     CacheConfig     `json:"cache"`
	Retry     RetryConfig     `json:"retry"`
	Executor  ExecutorConfig  `json:"executor"`
	Workers   WorkersConfig   `json:"workers"`
	Server    ServerConfig    `json:"server"`
	Storage   StorageConfig   `json:"storage"`
	Log       LogConfig       `json:"log"`
}

type HiveConfig struct {
	BaseURL  string `json:"base_url"`
	TokenEnv string `json:"token_env"`
}

type AgentConfig struct {
	Name           string   `json:"name"`
	SystemPrompt   string   `json:"system_prompt"`
	PollInterval   Duration `json:"poll_interval"`
	ContextWindow  int      `json:"context_window"`
	MaxTokens      int      `json:"max_tokens"`
	IgnoredTypes   []string `json:"ignored_types"`
	IgnoredAuthors []string `json:"ignored_authors"`
}

type BudgetConfig struct {
	DailyMaxCalls int `json:"daily_max_calls"`
}

type CacheConfig struct {
	MaxEntries int      `json:"max_entries"`
	TTL        Duration `json:"ttl"`
}

type RetryConfig struct {
	MaxAttempts int      `json:"max_attempts"`
	BaseDelay   Duration `json:"base_delay"`
	Jitter      bool     `json:"jitter"`
	CallTimeout Duration `json:"call_timeout"`
}

type ExecutorConfig struct {
	WorkspaceRoot     string   `json:"workspace_root"`
	MaxFilesPerOrder  int      `json:"max_files_per_order"`
	ValidationCommand string   `json:"validation_command"`
	ValidationTimeout Duration `json:"validation_timeout"`
}

type WorkersConfig struct {
	// Dependencies maps a worker to the workers that must be idle before
	// its orders are dispatched. Keys double as the set of valid workers.
	Dependencies map[string][]string `json:"dependencies"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	TokenEnv string `json:"token_env"`
}

type StorageConfig struct {
	DataDir string `json:"data_dir"`
}

type LogConfig struct {
	Level string `json:"level"`
}

func defaults() Config {
	return Config{
		Hive: HiveConfig{
			BaseURL:  "http://localhost:8100",
			TokenEnv: "COLMENA_HIVE_TOKEN",
		},
		Agent: AgentConfig{
			Name:          "colmena",
			SystemPrompt:  defaultSystemPrompt,
			PollInterval:  Duration(2 * time.Minute),
			ContextWindow: 20,
			MaxTokens:     4096,
			IgnoredTypes:  []string{"heartbeat"},
		},
		Providers: []provider.Spec{
			{Name: "deepseek", Endpoint: "https://api.deepseek.com/v1", Model: "deepseek-chat", APIKeyEnv: "DEEPSEEK_API_KEY", Priority: 1},
			{Name: "openai", Endpoint: "https://api.openai.com/v1", Model: "gpt-4o-mini", APIKeyEnv: "OPENAI_API_KEY", Priority: 2},
			{Name: "openrouter", Endpoint: "https://openrouter.ai/api/v1", Model: "anthropic/claude-3.5-sonnet", APIKeyEnv: "OPENROUTER_API_KEY", Priority: 3},
		},
		Budget: BudgetConfig{DailyMaxCalls: 200},
		Cache: CacheConfig{
			MaxEntries: 100,
			TTL:        Duration(30 * time.Minute),
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   Duration(500 * time.Millisecond),
			Jitter:      true,
			CallTimeout: Duration(60 * time.Second),
		},
		Executor: ExecutorConfig{
			WorkspaceRoot:     ".",
			MaxFilesPerOrder:  10,
			ValidationTimeout: Duration(5 * time.Minute),
		},
		Workers: WorkersConfig{
			Dependencies: map[string][]string{},
		},
		Server: ServerConfig{
			Port:     4800,
			TokenEnv: "COLMENA_API_TOKEN",
		},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Log:     LogConfig{Level: "info"},
	}
}

const defaultSystemPrompt = `You are the coordinator of a multi-agent development hive.
Read the recent documents and reply with exactly one JSON object:
{"action":"order","worker":...,"scope":[...],"instructions":...,"files":[{"path":...,"content":...}]}
or {"action":"duda","text":...} or {"action":"escalate","reason":...} or {"action":"noop"}.`

// Load reads configuration from the config file and environment. The file
// lives at $XDG_CONFIG_HOME/colmena/config.json (falling back to
// ~/.config/colmena/config.json); COLMENA_* variables override file values.
func Load() (Config, error) {
	return loadWith(configFilePath(), os.Getenv)
}

func loadWith(path string, getenv func(string) string) (Config, error) {
	cfg := defaults()

	if err := applyFile(&cfg, path); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg, getenv)

	if err := validate(cfg, getenv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate enforces the startup contract: a daemon with no usable provider
// credential must not start.
func validate(cfg Config, getenv func(string) string) error {
	if len(cfg.Providers) == 0 {
		return fmt.Errorf("no providers configured")
	}
	credentialed := 0
	for _, spec := range cfg.Providers {
		if spec.Name == "" || spec.Endpoint == "" || spec.Model == "" || spec.APIKeyEnv == "" {
			return fmt.Errorf("provider %q is incomplete: name, endpoint, model, api_key_env are all required", spec.Name)
		}
		if getenv(spec.APIKeyEnv) != "" {
			credentialed++
		}
	}
	if credentialed == 0 {
		return fmt.Errorf("no provider credential present: set one of the configured api_key_env variables")
	}

	if cfg.Budget.DailyMaxCalls <= 0 {
		return fmt.Errorf("budget.daily_max_calls must be positive, got %d", cfg.Budget.DailyMaxCalls)
	}
	if cfg.Executor.MaxFilesPerOrder <= 0 {
		return fmt.Errorf("executor.max_files_per_order must be positive, got %d", cfg.Executor.MaxFilesPerOrder)
	}
	if cfg.Agent.PollInterval <= 0 {
		return fmt.Errorf("agent.poll_interval must be positive")
	}

	for worker, deps := range cfg.Workers.Dependencies {
		for _, dep := range deps {
			if _, ok := cfg.Workers.Dependencies[dep]; !ok {
				return fmt.Errorf("worker %q depends on unknown worker %q", worker, dep)
			}
		}
	}
	return nil
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir + "/colmena"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./colmena-data"
	}
	return home + "/.local/share/colmena"
}

func configFilePath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir + "/colmena/config.json"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.config/colmena/config.json"
}
