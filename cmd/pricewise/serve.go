// ABOUTME: serve command starting the HTTP server
// ABOUTME: Prints the startup banner and runs the gateway until a signal arrives

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kimyungju/pricewise/internal/config"
	"github.com/kimyungju/pricewise/internal/gateway"
)

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the pricewise HTTP server",
		Long: `Start the pricewise HTTP server.

Configuration comes from the file given with --config (YAML or TOML), or
from pricewise.yaml in the working directory, overlaid with environment
variables such as OPENAI_API_KEY, TAVILY_API_KEY and CHECKPOINT_POSTGRES_URI.

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with defaults and environment variables
  pricewise serve

  # Keep conversations in memory only
  USE_MEMORY_SAVER=true pricewise serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML or TOML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", gateway.Version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	source := configPath
	if source == "" {
		source = "(defaults + environment)"
	}
	green.Print("    ▶ ")
	fmt.Printf("Config:      %s\n", source)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:        %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Checkpoints: %s\n", cfg.Checkpoint.Backend)
	green.Print("    ▶ ")
	fmt.Printf("Model:       %s\n", cfg.LLM.Model)
	if len(cfg.Agent.RequireApproval) > 0 {
		green.Print("    ▶ ")
		fmt.Printf("Approval:    %s\n", strings.Join(cfg.Agent.RequireApproval, ", "))
	}
	if cfg.Checkpoint.Backend == config.BackendMemory {
		yellow.Println("    ! conversations are lost on restart")
	}
	fmt.Println()

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}
