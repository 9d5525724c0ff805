// Package main is the entry point for shopgate.
package main

import (
	"context"
	"os"
	"path/filepath"

	"charm.land/fang/v2"
	"github.com/spf13/cobra"
)

const (
	defaultConfigFile = "config.yaml"
	configDirName     = "shopgate"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "shopgate",
	Short: "API gateway for the shop backend services",
	Long: `shopgate is the single entry point for the shop's backend services. It routes
requests by path prefix, verifies bearer tokens, and keeps failing services
behind circuit breakers so one bad backend cannot drag the others down.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file path (default: ./"+defaultConfigFile+" or ~/.config/"+configDirName+"/"+defaultConfigFile+")")
}

func main() {
	if err := fang.Execute(context.Background(), rootCmd); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the --config flag or the first config file found
// in the default locations.
func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return findConfigInWithHome(".", home)
}

// findConfigIn looks for config.yaml in dir only.
func findConfigIn(dir string) string {
	return findConfigInWithHome(dir, "")
}

// findConfigInWithHome checks dir, then home/.config/shopgate. The bare
// default name is returned when neither exists so the load error names it.
func findConfigInWithHome(dir, home string) string {
	local := filepath.Join(dir, defaultConfigFile)
	if _, err := os.Stat(local); err == nil {
		return local
	}
	if home != "" {
		p := filepath.Join(home, ".config", configDirName, defaultConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return defaultConfigFile
}
