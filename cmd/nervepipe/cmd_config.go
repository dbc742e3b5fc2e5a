package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nvandessel/nervepipe/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect nervepipe configuration",
		Long: `View the effective nervepipe configuration.

Configuration is read from ~/.nervepipe/config.yaml (or --config) and
NERVEPIPE_* environment variables override it.

Examples:
  nervepipe config list
  nervepipe config list --json
  nervepipe config path`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigPathCmd(),
	)

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			// Never print the mirror secret.
			redacted := *cfg
			redacted.Mirror = cfg.Mirror.Redacted()

			w := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(w).Encode(redacted)
			}
			data, err := yaml.Marshal(&redacted)
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			fmt.Fprint(w, string(data))
			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the default config file location",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), valueOrDefault(config.DefaultPath(), "(no home directory)"))
		},
	}
}

func valueOrDefault(value, defaultValue string) string {
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	return value
}
