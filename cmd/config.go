package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/volt/internal/config"
	"github.com/conneroisu/volt/internal/errors"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect Volt configuration",
	Long: `Inspect the configuration volt resolves from .volt.yml, VOLT_ environment
variables, .env files and flags.

Examples:
  volt config show                 # Show resolved configuration as YAML
  volt config show -o json         # Show it as JSON
  volt config validate             # Report errors and warnings
  volt config validate --strict    # Treat warnings as errors`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	RunE:  runConfigValidate,
}

var (
	configShowOutput *formatValue
	configStrict     bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configValidateCmd)

	configShowOutput = addOutputFlag(configShowCmd, FormatYAML, FormatYAML, FormatJSON)
	configValidateCmd.Flags().BoolVar(&configStrict, "strict", false, "treat warnings as errors")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	return writeStructured(cmd.OutOrStdout(), configShowOutput.value, cfg)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	// Decode without Load so every problem is reported, not just the first.
	config.SetDefaults(viper.GetViper())
	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		ce := errors.NewConfigError(errors.ErrCodeConfigInvalid, "cannot decode configuration")
		ce.Cause = err
		return ce
	}

	result := config.Validate(&cfg)
	out := cmd.OutOrStdout()
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "Configuration file: %s\n", used)
	}
	if !result.HasErrors() && !result.HasWarnings() {
		fmt.Fprintln(out, "Configuration is valid")
		return nil
	}
	fmt.Fprint(out, result.String())

	if result.HasErrors() || (configStrict && result.HasWarnings()) {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("configuration has %d error(s) and %d warning(s)", len(result.Errors), len(result.Warnings)))
	}
	return nil
}
