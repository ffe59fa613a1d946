package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AmbrSb/LServer/internal/config"
)

func newConfigCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "print the effective configuration as YAML and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := config.Load(configPath, nil)
			if err != nil {
				return badConfig(err)
			}
			out, err := yaml.Marshal(loader.Current())
			if err != nil {
				return runtimeFailure(fmt.Errorf("marshal config: %w", err))
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	return cmd
}
