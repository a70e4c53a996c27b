// ABOUTME: health and version commands
// ABOUTME: health probes the /health endpoint of a running server

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kimyungju/pricewise/internal/gateway"
)

func buildHealthCmd() *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the health of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd.Context(), cmd.OutOrStdout(), server)
		},
	}
	cmd.Flags().StringVarP(&server, "server", "s", defaultServerURL(), "Server base URL (or PRICEWISE_URL)")
	return cmd
}

func runHealth(ctx context.Context, out io.Writer, server string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := strings.TrimRight(server, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Fprintln(out, "healthy")
	return nil
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pricewise %s (commit: %s, built: %s)\n", gateway.Version, commit, date)
		},
	}
}
