// ABOUTME: Entry point for the pricewise shopping assistant
// ABOUTME: Builds the cobra command tree for serve, chat, health and version

// Package main provides the pricewise CLI.
//
// Start the server:
//
//	pricewise serve --config pricewise.yaml
//
// Talk to a running server from the terminal, approving tool calls inline:
//
//	pricewise chat "Find me the best wireless headphones under $100"
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kimyungju/pricewise/internal/config"
	"github.com/kimyungju/pricewise/internal/gateway"
)

// Build information, populated by ldflags.
var (
	commit = "none"
	date   = "unknown"
)

const banner = `
             _               _
  _ __  _ __(_) ___ _____      _(_)___  ___
 | '_ \| '__| |/ __/ _ \ \ /\ / / / __|/ _ \
 | |_) | |  | | (_|  __/\ V  V /| \__ \  __/
 | .__/|_|  |_|\___\___| \_/\_/ |_|___/\___|
 |_|
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := buildRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pricewise",
		Short: "Pricewise - shopping assistant with human approval of tool calls",
		Long: `Pricewise answers shopping questions with a reasoning model that searches
the web and keeps a wishlist. Every search and wishlist change waits for the
user's approval before it runs.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", gateway.Version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildChatCmd(),
		buildHealthCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

// resolveConfigPath returns the flag value when set, else the default lookup.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return config.DefaultPath()
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
