package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove compiled artifacts",
	Long: `Remove every compiled artifact and metadata sidecar from the compiled
directory. Other files in the directory are left alone.`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, nil)
	if err != nil {
		return err
	}

	removed, err := a.manager.Clean()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d file(s) from %s\n", removed, a.cfg.Compiler.CompiledDir)
	return nil
}
