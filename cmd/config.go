package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dailycards/cardshell/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect cardshell configuration",
	Long: `Inspect the cardshell configuration.

Examples:
  cardshell config show                       # Resolved configuration as YAML
  cardshell config show --format json         # ... as JSON
  cardshell config validate                   # Validate .cardshell.yml
  cardshell config validate --file dev.yml    # Validate a specific file
  cardshell config validate --strict          # Treat warnings as errors`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration",
	Long: `Display the configuration after defaults, the config file, environment
variables and flags have been applied.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var (
	configFile   string
	configFormat string
	configStrict bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)

	configShowCmd.Flags().StringVar(&configFormat, "format", "yaml", "Output format (yaml, json)")
	configValidateCmd.Flags().StringVarP(&configFile, "file", "f", "",
		"Configuration file to validate (default: .cardshell.yml)")
	configValidateCmd.Flags().BoolVar(&configStrict, "strict", false, "Treat warnings as errors")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	if err := ValidateFormatWithSuggestion(configFormat, []string{"yaml", "json"}); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return writeConfig(cmd.OutOrStdout(), cfg, configFormat)
}

func writeConfig(w io.Writer, cfg *config.Config, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(cfg)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	target := configFile
	if target == "" {
		if _, err := os.Stat(defaultConfigPath); err != nil {
			return fmt.Errorf("no configuration file found, use --file to specify one")
		}
		target = defaultConfigPath
	}
	return validateConfigFile(cmd.OutOrStdout(), target, configStrict)
}

func validateConfigFile(w io.Writer, path string, strict bool) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("configuration file %s does not exist", path)
	}

	fmt.Fprintf(w, "Validating configuration file: %s\n", path)

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read configuration file: %w", err)
	}

	cfg, err := config.Decode(v)
	if err != nil {
		return err
	}

	result := config.ValidateConfigWithDetails(cfg)
	if !result.HasErrors() && !result.HasWarnings() {
		fmt.Fprintln(w, "Configuration is valid.")
		return nil
	}

	fmt.Fprint(w, result.String())

	if result.HasErrors() {
		return fmt.Errorf("configuration validation failed with %d errors", len(result.Errors))
	}
	if strict {
		return fmt.Errorf("configuration validation failed in strict mode with %d warnings", len(result.Warnings))
	}
	fmt.Fprintln(w, "Configuration is valid with warnings.")
	return nil
}
