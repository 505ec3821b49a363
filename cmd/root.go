package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/volt/internal/config"
	"github.com/conneroisu/volt/internal/errors"
)

var (
	cfgFile  string
	envFiles []string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "volt",
	Short: "Compile and render Volt templates",
	Long: `volt compiles Volt templates (Jinja/Twig-style syntax with extends, blocks,
macros, includes and cache blocks) into Go text/template artifacts and renders
them with runtime filters.

Quick Start:
  volt compile                    Compile every template under the views dir
  volt render page --set title=Hi Render a template to stdout
  volt list                       Show templates and their artifact status
  volt watch                      Recompile on change
  volt clean                      Remove compiled artifacts`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .volt.yml, can also use VOLT_CONFIG_FILE)")
	flags.StringSliceVar(&envFiles, "env-file", []string{".env"}, "environment files loaded before reading VOLT_ variables")
	flags.String("views", "", "directory holding template sources")
	flags.String("compiled-dir", "", "directory for compiled artifacts")
	flags.StringP("log-level", "l", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text, json)")
}

// persistentBindings maps root flags onto configuration keys.
var persistentBindings = map[string]string{
	"views":        "views.dir",
	"compiled-dir": "compiler.compiled_dir",
	"log-level":    "log.level",
	"log-format":   "log.format",
}

// initConfig prepares the global viper instance for config.Load.
func initConfig(cmd *cobra.Command, _ []string) error {
	if err := config.LoadEnvFiles(envFiles...); err != nil {
		return err
	}

	explicit := true
	switch {
	case cfgFile != "":
		viper.SetConfigFile(cfgFile)
	case os.Getenv("VOLT_CONFIG_FILE") != "":
		viper.SetConfigFile(os.Getenv("VOLT_CONFIG_FILE"))
	default:
		explicit = false
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".volt")
	}

	viper.SetEnvPrefix("VOLT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	for flag, key := range persistentBindings {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			if err := viper.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			ce := errors.NewConfigError(errors.ErrCodeConfigInvalid, "cannot read config file")
			ce.Cause = err
			return ce
		}
	}
	return nil
}
