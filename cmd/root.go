// Package cmd provides the cardshell command-line interface.
//
// Configuration is read from several sources, highest priority first:
//  1. Command-line flags (--port, --host, ...)
//  2. Environment variables following CARDSHELL_<SECTION>_<OPTION>,
//     e.g. CARDSHELL_SERVER_PORT or CARDSHELL_DEVELOPMENT_HOT_RELOAD
//  3. The file named by --config or CARDSHELL_CONFIG_FILE
//  4. .cardshell.yml in the working directory
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dailycards/cardshell/internal/config"
	"github.com/dailycards/cardshell/internal/logging"
)

const (
	envPrefix         = "CARDSHELL"
	defaultConfigName = ".cardshell"
	defaultConfigPath = ".cardshell.yml"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "cardshell",
	Short: "Development shell for the dailycards client",
	Long: `cardshell serves the dailycards single-page client during development.

It mounts the application into the host document, resolves the client-side
routes (/, /editpack/:id, /train/:id, /stats), forwards /api calls to the
backend and reloads the browser when web assets change.

Quick Start:
  cardshell serve                 Start the development server
  cardshell routes                List the route table
  cardshell resolve /train/7      Show which page a path renders
  cardshell config show           Print the resolved configuration`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is .cardshell.yml, can also use CARDSHELL_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", config.DefaultLogFormat, "log format (text, json)")

	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig points viper at the config file and enables env overrides.
// A missing default file is not an error.
func initConfig() {
	switch {
	case cfgFile != "":
		viper.SetConfigFile(cfgFile)
	case os.Getenv(envPrefix+"_CONFIG_FILE") != "":
		viper.SetConfigFile(os.Getenv(envPrefix + "_CONFIG_FILE"))
	default:
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(defaultConfigName)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// configPath is the file named in error suggestions.
func configPath() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return defaultConfigPath
}

// newLogger builds the process logger from the log section.
func newLogger(cfg *config.Config, out io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: out,
	}), nil
}
