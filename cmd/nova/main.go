package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "nova",
		Short: "Nova control plane for serverless function execution",
		Long:  "Nova runs the control plane that registers functions and dispatches invocations to them.",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a JSON config file (optional, env vars and flags override)")

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
		configCmd(),
		functionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// version is set at build time via -ldflags; "dev" otherwise.
var version = "dev"

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the nova version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}
