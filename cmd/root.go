// Package cmd wires the sigscope command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	configcmd "github.com/sigscope/sigscope/cmd/config"
	"github.com/sigscope/sigscope/cmd/run"
	"github.com/sigscope/sigscope/cmd/version"
	"github.com/sigscope/sigscope/internal/conf"
	"github.com/sigscope/sigscope/internal/logger"
)

// RootCommand creates and returns the root command. settings is filled in
// before any sub-command that needs configuration runs.
func RootCommand(settings *conf.Settings) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "sigscope",
		Short:         "Spectrum capture session controller",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config.yaml")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	if err := viper.BindPFlag("main.debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		panic(fmt.Sprintf("error binding debug flag: %v", err))
	}

	versionCmd := version.Command()
	rootCmd.AddCommand(
		run.Command(settings),
		configcmd.Command(settings),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// version needs neither configuration nor logging
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		return initialize(settings, configFile)
	}

	return rootCmd
}

// initialize loads the configuration and installs the global logger.
func initialize(settings *conf.Settings, configFile string) error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	}

	loaded, err := conf.Load()
	if err != nil {
		return err
	}
	*settings = *loaded

	cl, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(cl)
	return nil
}
