// Package main is the entry point for the portfolio chat service.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/comigor/portfolio-chat/internal/agent"
	"github.com/comigor/portfolio-chat/internal/chat"
	"github.com/comigor/portfolio-chat/internal/config"
	"github.com/comigor/portfolio-chat/internal/history"
	"github.com/comigor/portfolio-chat/internal/llm"
	"github.com/comigor/portfolio-chat/internal/logger"
	"github.com/comigor/portfolio-chat/internal/metrics"
	"github.com/comigor/portfolio-chat/internal/persona"
	"github.com/comigor/portfolio-chat/internal/server"
	"github.com/comigor/portfolio-chat/internal/telemetry"
)

// Set by ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "portfolio-chat",
		Short:         "AI chat backend for a personal portfolio site",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file (default $CONFIG_PATH or ./config.yaml)")
	root.AddCommand(versionCmd(), serveCmd(), historyCmd(), personaCmd())
	return root
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Configure(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "portfolio-chat %s (commit: %s)\n", version, commit)
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) (err error) {
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, server.ServiceName, version)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		err = errors.Join(err, shutdownTracing(flushCtx))
	}()

	store, err := history.Open(ctx, cfg.History.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Ping(ctx); err != nil {
		return err
	}

	if cfg.LLM.APIKey == "" {
		logger.L.Warn("no LLM API key configured; completions will fail and return the fallback reply")
	}
	provider, err := llm.NewProvider(ctx, cfg.LLM)
	if err != nil {
		return err
	}

	prompt, err := persona.Load(ctx, cfg.Persona, cfg.MCPServers, nil)
	if err != nil {
		return err
	}

	m := metrics.New()
	a := agent.New(provider, agent.Options{
		Persona:     prompt,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		TopP:        cfg.LLM.TopP,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
		Observer:    m,
	})
	svc := chat.NewService(store, a, chat.Options{
		HistoryLimit: cfg.History.Limit,
		Metrics:      m,
	})

	srv, err := server.New(cfg.Server, svc, m)
	if err != nil {
		return err
	}
	logger.L.Info("starting portfolio chat",
		"version", version,
		"addr", cfg.Server.Addr(),
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
		"db_path", cfg.History.DBPath,
	)
	return srv.Run(ctx)
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <session-id>",
		Short: "Print the stored conversation of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}

			store, err := history.Open(cmd.Context(), cfg.History.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			msgs, err := store.History(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(msgs) == 0 {
				fmt.Fprintf(out, "No messages for session %s\n", args[0])
				return nil
			}
			for _, m := range msgs {
				fmt.Fprintf(out, "[%s] %s: %s\n", m.CreatedAt.Format(time.DateTime), m.Role, m.Content)
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", history.DefaultHistoryLimit, "Maximum number of messages to show")
	return cmd
}

func personaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "persona",
		Short: "Print the resolved system prompt",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			prompt, err := persona.Load(cmd.Context(), cfg.Persona, cfg.MCPServers, nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prompt)
			return nil
		},
	}
}
