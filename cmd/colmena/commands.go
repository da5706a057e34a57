package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/colmena-dev/colmena/internal/config"
	"github.com/colmena-dev/colmena/internal/hive"
	"github.com/colmena-dev/colmena/internal/journal"
	"github.com/colmena-dev/colmena/internal/orchestrator"
)

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			printError("config error: %v", err)
			return nil
		}

		serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
		healthClient := &http.Client{Timeout: 2 * time.Second}
		resp, err := healthClient.Get(serverURL + "/health")
		if err != nil {
			printStatus("Daemon", "stopped")
			return nil
		}
		resp.Body.Close()
		printStatus("Daemon", "running on port %d", cfg.Server.Port)

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		statusResp, err := client.get(cmd.Context(), "/status")
		if err != nil {
			return err
		}
		var st orchestrator.Status
		if err := decodeJSON(statusResp, &st); err != nil {
			return err
		}

		printStatus("Agent", "%s", st.Agent)
		printStatus("Budget", "%d/%d calls used today", st.Budget.Used, st.Budget.Max)
		printStatus("Cache", "%d entries, %d hits, %d misses", st.Cache.Size, st.Cache.Hits, st.Cache.Misses)
		if st.LastCycle != nil {
			printStatus("Last cycle", "%s: %s (%s)",
				st.LastCycle.At.Format(time.RFC3339), st.LastCycle.Action, st.LastCycle.Outcome)
		}
		printStatus("Hive", "%s", cfg.Hive.BaseURL)
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		return nil
	},
}

// --- tasks ---

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List recently executed worker tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/tasks?limit=%d", limit))
		if err != nil {
			return err
		}
		var tasks []journal.TaskRecord
		if err := decodeJSON(resp, &tasks); err != nil {
			return err
		}

		if len(tasks) == 0 {
			fmt.Fprintln(os.Stderr, "no tasks recorded")
			return nil
		}
		for _, t := range tasks {
			line := fmt.Sprintf("%s  %-12s %-10s %s",
				t.StartedAt.Format(time.RFC3339), t.Worker, t.Status, t.OrderID)
			if t.Failure != "" {
				line += "  " + t.Failure
			}
			fmt.Fprintln(os.Stdout, line)
		}
		return nil
	},
}

// --- publish ---

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a document into the hive store",
	Long: `Publish a document into the hive store.

Examples:
  colmena publish --type duda --content "Which storage backend should worker-db use?"
  colmena publish --type report --content "manual intervention done" --tags ops`,
	RunE: func(cmd *cobra.Command, args []string) error {
		docType, _ := cmd.Flags().GetString("type")
		content, _ := cmd.Flags().GetString("content")
		tagsStr, _ := cmd.Flags().GetString("tags")

		if content == "" {
			return fmt.Errorf("--content is required")
		}

		var tags []string
		if tagsStr != "" {
			tags = strings.Split(tagsStr, ",")
			for i := range tags {
				tags[i] = strings.TrimSpace(tags[i])
			}
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store := hive.NewClient(cfg.Hive.BaseURL, os.Getenv(cfg.Hive.TokenEnv))

		doc, err := store.Publish(cmd.Context(), hive.PublishRequest{
			Type:    docType,
			Author:  "operator",
			Content: content,
			Tags:    tags,
		})
		if err != nil {
			return err
		}

		printSuccess("Published document %s", doc.ID)
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	},
}

func init() {
	tasksCmd.Flags().Int("limit", 20, "maximum number of tasks to list")
	publishCmd.Flags().String("type", "report", "document type")
	publishCmd.Flags().String("content", "", "document body")
	publishCmd.Flags().String("tags", "", "comma-separated tags")
}
