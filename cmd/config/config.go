// Package config implements the config sub-commands.
package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sigscope/sigscope/internal/conf"
)

// Command creates the config command group.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(dumpCommand(settings))
	return cmd
}

func dumpCommand(settings *conf.Settings) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the effective configuration as YAML, secrets masked",
		Long: "Print the configuration after defaults, config file and SIGSCOPE_* environment " +
			"variables are merged. With --output the unmasked settings are written to a file instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "" {
				return conf.SaveYAMLConfig(output, settings)
			}
			data, err := conf.MarshalYAML(settings)
			if err != nil {
				return err
			}
			if used := viper.ConfigFileUsed(); used != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", used)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the settings to this file")
	return cmd
}
