package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/omarluq/shopgate/internal/config"
	"github.com/omarluq/shopgate/internal/proxy"
)

const statusTimeout = 5 * time.Second

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the health of a running gateway",
	Long: `Query /gateway/health on a running gateway and print the aggregate status
together with each service's cached health and circuit state.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// gatewayHealth mirrors proxy.AggregateHealthResponse with plain strings.
type gatewayHealth struct {
	Services map[string]struct {
		Status  string `json:"status"`
		Circuit string `json:"circuit"`
	} `json:"services"`
	Status string `json:"status"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
	defer cancel()

	return checkStatus(ctx, baseURLFor(cfg.Server.GetListen()), cfg.Auth.AdminAPIKey, os.Stdout)
}

// baseURLFor turns a listen address into a URL a local client can dial.
func baseURLFor(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func checkStatus(ctx context.Context, baseURL, adminKey string, out io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/gateway/health", http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if adminKey != "" {
		req.Header.Set("x-api-key", adminKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(out, "✗ shopgate is not running (%s)\n", baseURL)
		return fmt.Errorf("server not reachable: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Logger.Warn().Err(closeErr).Msg("failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		fmt.Fprintf(out, "✗ shopgate returned unexpected status: %d\n", resp.StatusCode)
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}

	var body gatewayHealth
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("failed to decode health response: %w", err)
	}

	mark := lo.Ternary(body.Status == proxy.AggregateHealthy, "✓", "✗")
	fmt.Fprintf(out, "%s shopgate is %s (%s)\n", mark, body.Status, baseURL)

	names := lo.Keys(body.Services)
	sort.Strings(names)
	for _, name := range names {
		svc := body.Services[name]
		fmt.Fprintf(out, "  %-24s health=%-10s circuit=%s\n", name, svc.Status, svc.Circuit)
	}

	if body.Status == proxy.AggregateUnhealthy {
		return fmt.Errorf("gateway is %s", body.Status)
	}
	return nil
}
