package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/volt/internal/version"
)

var versionDetailed bool

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display version information for volt.

Examples:
  volt version              # Show short version
  volt version --detailed   # Show commit, build time, Go version and platform
  volt version -o json      # Output as JSON`,
	Args: cobra.NoArgs,
	// Version needs no configuration.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE:              runVersion,
}

var versionOutput *formatValue

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().BoolVar(&versionDetailed, "detailed", false, "show detailed version information")
	versionOutput = addOutputFlag(versionCmd, FormatText, FormatText, FormatJSON, FormatYAML)
}

func runVersion(cmd *cobra.Command, args []string) error {
	info := version.Get()
	out := cmd.OutOrStdout()

	if versionOutput.value != FormatText {
		return writeStructured(out, versionOutput.value, info)
	}
	if versionDetailed {
		fmt.Fprintln(out, info.Detailed())
		return nil
	}
	fmt.Fprintf(out, "volt %s\n", info.Short())
	return nil
}
