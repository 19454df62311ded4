package main

import (
	"fmt"

	"github.com/oriys/nova/internal/domain"
	"github.com/oriys/nova/internal/functionspec"
	"github.com/spf13/cobra"
)

func functionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "function",
		Short: "Manage functions registered with a running control plane",
	}
	cmd.AddCommand(functionApplyCmd())
	return cmd
}

func functionApplyCmd() *cobra.Command {
	var (
		file string
		addr string
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Register one or more functions from a YAML spec file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("-f is required")
			}
			specs, err := functionspec.ParseFile(file)
			if err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}

			client := newAPIClient(addr)
			for _, spec := range specs {
				var created domain.FunctionSpec
				if err := client.postJSON("/v1/functions", spec, &created); err != nil {
					return fmt.Errorf("apply %q: %w", spec.Name, err)
				}
				fmt.Printf("applied %s (%s, %s)\n", created.Name, created.ExecutionMode, created.Image)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "path to a YAML function spec file")
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "control plane base URL")
	return cmd
}
