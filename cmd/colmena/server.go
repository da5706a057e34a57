package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/colmena-dev/colmena/internal/api"
	"github.com/colmena-dev/colmena/internal/config"
	"github.com/colmena-dev/colmena/internal/hive"
	"github.com/colmena-dev/colmena/internal/journal"
	"github.com/colmena-dev/colmena/internal/orchestrator"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the colmena daemon (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running colmena daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopDaemon()
	},
}

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run a single decision cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCycle(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "colmena.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	if strings.EqualFold(level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

func runDaemon() error {
	fmt.Fprintf(os.Stderr, "colmena version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	// Refuse to double-start: probe the management port first.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("colmena is already running (PID %d)", pid)
			return fmt.Errorf("daemon already running (PID %d)", pid)
		}
		printWarning("colmena is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("daemon already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := hive.NewClient(cfg.Hive.BaseURL, os.Getenv(cfg.Hive.TokenEnv))
	if !store.Health(ctx) {
		slog.Warn("hive store not reachable at startup, will keep polling", "base_url", cfg.Hive.BaseURL)
	}

	j, err := journal.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer func() {
		if err := j.Close(); err != nil {
			slog.Warn("closing journal", "error", err)
		}
	}()

	orch := orchestrator.Build(cfg, store, j)

	handler := api.NewHandler(api.Deps{
		Status: orch,
		Tasks:  j,
		Token:  os.Getenv(cfg.Server.TokenEnv),
	})
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Decision loop.
	go orch.Run(ctx)

	// MCP control plane on stdio.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Status: orch,
		Tasks:  j,
		Hive:   store,
		Agent:  cfg.Agent.Name,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "colmena listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopDaemon() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("colmena is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop colmena (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to colmena (PID %d)", pid)
	return nil
}

// runCycle executes exactly one decision cycle in-process, without the
// management server. Useful for cron-style deployments and debugging.
func runCycle(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	store := hive.NewClient(cfg.Hive.BaseURL, os.Getenv(cfg.Hive.TokenEnv))

	j, err := journal.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer j.Close()

	orch := orchestrator.Build(cfg, store, j)
	return orch.RunOnce(ctx)
}
