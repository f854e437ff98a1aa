package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/osa/runtime/internal/boot"
	"github.com/osa/runtime/internal/config"
	classifierpkg "github.com/osa/runtime/internal/signal"
	"github.com/osa/runtime/internal/taskqueue"
)

func defaultConfigPath() string {
	if p := os.Getenv("OSA_CONFIG"); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".osa", "config.yaml")
}

func loadConfigOrDefault(path string) (*config.Config, error) {
	if path == "" {
		path = defaultConfigPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(path)
}

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the OSA runtime server",
		Long: `Start the OSA runtime: wires the event bus, session registry,
provider/tool registries, signal classifier, context assembler, task
queue reaper, sidecar supervisor, proactive monitor, and the HTTP/SSE
surface, then blocks until SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := loadConfigOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := boot.New(cfg)
	if err != nil {
		return fmt.Errorf("wire runtime: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rt.Start(ctx); err != nil {
		return fmt.Errorf("start runtime: %w", err)
	}

	<-ctx.Done()
	rt.Logger.Info(context.Background(), "shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func buildMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the task queue's database schema",
		Long: `Opens the configured task queue store (sqlite by default, or
Postgres when database.url is set) and applies any pending schema
migrations, then exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.OutOrStdout(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func runMigrate(out io.Writer, configPath string) error {
	cfg, err := loadConfigOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var store taskqueue.Store
	if cfg.Database.URL != "" {
		store, err = taskqueue.NewPostgresStore(cfg.Database.URL)
	} else {
		if err := os.MkdirAll(cfg.Session.ConfigDir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		store, err = taskqueue.NewSQLiteStore(filepath.Join(cfg.Session.ConfigDir, "tasks.db"))
	}
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	defer store.Close()

	fmt.Fprintln(out, "migrations applied")
	return nil
}

func buildStatusCmd() *cobra.Command {
	var (
		configPath string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show runtime configuration and component status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.OutOrStdout(), configPath, jsonOutput)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}

type statusReport struct {
	ConfigDir        string   `json:"config_dir"`
	HTTPAddr         string   `json:"http_addr"`
	DefaultProvider  string   `json:"default_provider"`
	ConfiguredProviders []string `json:"configured_providers"`
	ToolCount        int      `json:"tool_count"`
	SidecarMode      string   `json:"sidecar_mode"`
}

func runStatus(out io.Writer, configPath string, jsonOutput bool) error {
	cfg, err := loadConfigOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := boot.New(cfg)
	if err != nil {
		return fmt.Errorf("wire runtime: %w", err)
	}
	defer rt.Tasks.Close()

	report := statusReport{
		ConfigDir:           cfg.Session.ConfigDir,
		HTTPAddr:            fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		DefaultProvider:     cfg.LLM.DefaultProvider,
		ConfiguredProviders: rt.Providers.List(),
		ToolCount:           len(rt.Tools.ListTools()),
		SidecarMode:         string(rt.Sidecar.CurrentMode()),
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(out, "config dir:          %s\n", report.ConfigDir)
	fmt.Fprintf(out, "http address:        %s\n", report.HTTPAddr)
	fmt.Fprintf(out, "default provider:    %s\n", report.DefaultProvider)
	fmt.Fprintf(out, "configured providers: %v\n", report.ConfiguredProviders)
	fmt.Fprintf(out, "tools registered:    %d\n", report.ToolCount)
	fmt.Fprintf(out, "sidecar mode:        %s\n", report.SidecarMode)
	return nil
}

func buildClassifyCmd() *cobra.Command {
	var (
		configPath string
		channel    string
	)

	cmd := &cobra.Command{
		Use:   "classify <message>",
		Short: "Run the signal classifier against a single message",
		Long: `classify is a thin CLI front-end onto the same Signal Classifier
used by the HTTP API's /api/v1/classify endpoint — useful for tuning
the noise threshold and mode/genre heuristics without a running server.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(cmd.OutOrStdout(), configPath, args[0], channel)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&channel, "channel", "cli", "Channel label attached to the classification")
	return cmd
}

func runClassify(out io.Writer, configPath, message, channel string) error {
	if _, err := loadConfigOrDefault(configPath); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	classifier := classifierpkg.New(classifierpkg.DefaultConfig())
	result := classifier.Classify(context.Background(), message, channel)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"signal":   result.Signal,
		"filtered": result.Filtered,
	})
}
