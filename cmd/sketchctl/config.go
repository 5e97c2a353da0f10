package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/sketchd/internal/config"
)

var configPath string

func init() {
	configShowCmd.Flags().StringVar(&configPath, "config", "", "config file (default ~/.config/sketchd/config.yaml)")
	configCmd.AddCommand(configShowCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect local sketchd configuration",
}

// configShowCmd prints the effective configuration with secrets redacted
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Load the configuration the way sketchd does (file, then SKETCHD_*
environment) and print it with secrets redacted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadWithFile(configPath)
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(cfg.Map())
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

// configInitCmd creates the config directory with safe permissions
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create ~/.config/sketchd with safe permissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.EnsureConfigDir(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Config directory ready. Write config.yaml there with mode 0600.")
		return nil
	},
}
