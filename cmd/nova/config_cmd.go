package main

import (
	"encoding/json"
	"fmt"

	"github.com/oriys/nova/internal/config"
	"github.com/spf13/cobra"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate control plane configuration",
	}
	cmd.AddCommand(configValidateCmd())
	return cmd
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the effective config (file + env) and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

// loadConfig builds the effective config from defaults, the optional
// --config file, then environment variables, in that order.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		if err := config.LoadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}
	config.LoadFromEnv(cfg)
	return cfg, nil
}
