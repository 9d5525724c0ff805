package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/omarluq/shopgate/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the configuration file without starting the gateway.
Checks syntax, the service table, and that protected routes have a key source.`,
	RunE: runConfigValidate,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a starter config file",
	Long:  `Generate a starter shopgate configuration at ~/.config/shopgate/config.yaml`,
	RunE:  runConfigInit,
}

func init() {
	configInitCmd.Flags().StringP("output", "o", "", "output path (default: ~/.config/shopgate/config.yaml)")
	configInitCmd.Flags().Bool("force", false, "overwrite existing config file")

	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	return validateConfigFile(resolveConfigPath(), cmd.OutOrStdout())
}

func validateConfigFile(configPath string, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(out, "✗ Config validation failed: %s\n", err)
		return err
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(out, "✗ Config validation failed: %s\n", err)
		return err
	}

	fmt.Fprintf(out, "✓ %s is valid (%d services)\n", configPath, len(cfg.Services))
	return nil
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return fmt.Errorf("failed to get output flag: %w", err)
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return fmt.Errorf("failed to get force flag: %w", err)
	}

	if output == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		output = filepath.Join(home, ".config", configDirName, defaultConfigFile)
	}

	if err := writeConfigTemplate(output, force); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Config file created at %s\n", output)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Set SHOPGATE_JWT_SECRET and SHOPGATE_ADMIN_KEY")
	fmt.Fprintln(out, "  2. Point each service's base_url at your backends")
	fmt.Fprintln(out, "  3. Validate with: shopgate config validate")
	fmt.Fprintln(out, "  4. Start the gateway: shopgate serve")

	return nil
}

// writeConfigTemplate writes the starter config, creating parent directories.
// An existing file is kept unless force is set.
func writeConfigTemplate(output string, force bool) error {
	if _, err := os.Stat(output); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", output)
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(output, []byte(defaultConfigTemplate), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

const defaultConfigTemplate = `# shopgate configuration
server:
  listen: "127.0.0.1:8080"
  max_concurrent: 512
  max_body_bytes: 10485760
  rate_limit:
    requests_per_second: 0
    burst: 0

auth:
  jwt_secret: ${SHOPGATE_JWT_SECRET}
  algorithm: HS256
  user_id_claim: sub
  admin_api_key: ${SHOPGATE_ADMIN_KEY}

health:
  ttl_ms: 30000
  probe_timeout_ms: 2000
  fast_fail: false
  health_check:
    enabled: true
    interval_ms: 10000
    max_refreshes_per_tick: 0
  circuit_breaker:
    failure_threshold: 5
    recovery_timeout_ms: 30000

cache:
  mode: single
  ristretto:
    num_counters: 100000
    max_cost: 16777216
    buffer_items: 64

logging:
  level: info
  format: json
  output: stdout

services:
  - name: auth-service
    path_prefix: /auth
    base_url: http://localhost:3001
    access: public
  - name: user-service
    path_prefix: /users
    base_url: http://localhost:3002
  - name: product-service
    path_prefix: /products
    base_url: http://localhost:3003
    access: public
  - name: cart-service
    path_prefix: /cart
    base_url: http://localhost:3004
  - name: order-service
    path_prefix: /orders
    base_url: http://localhost:3005
    timeout_ms: 15000
  - name: payment-service
    path_prefix: /payments
    base_url: http://localhost:3006
    timeout_ms: 20000
    failure_threshold: 3
  - name: inventory-service
    path_prefix: /inventory
    base_url: http://localhost:3007
  - name: notification-service
    path_prefix: /notifications
    base_url: http://localhost:3008
`
