package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/volt/internal/build"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l", "ls"},
	Short:   "List templates and their artifact status",
	Long: `List every template under the views directory with the status of its
compiled artifact: fresh, stale or missing.

Examples:
  volt list                       # Table output
  volt list -o json               # JSON output
  volt list -d                    # Include recorded dependencies`,
	RunE: runList,
}

var (
	listOutput   *formatValue
	listWithDeps bool
)

func init() {
	rootCmd.AddCommand(listCmd)

	listOutput = addOutputFlag(listCmd, FormatTable, FormatTable, FormatJSON, FormatYAML)
	listCmd.Flags().BoolVarP(&listWithDeps, "with-deps", "d", false, "include recorded dependencies")
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, nil)
	if err != nil {
		return err
	}

	names, err := a.loader.List()
	if err != nil {
		return err
	}

	infos := make([]build.ArtifactInfo, 0, len(names))
	for _, name := range names {
		info, err := a.manager.Inspect(name)
		if err != nil {
			return err
		}
		if !listWithDeps {
			info.Dependencies = nil
		}
		infos = append(infos, info)
	}

	out := cmd.OutOrStdout()
	if listOutput.value != FormatTable {
		return writeStructured(out, listOutput.value, infos)
	}

	if len(infos) == 0 {
		fmt.Fprintf(out, "No templates found in %s\n", a.cfg.Views.Dir)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := "TEMPLATE\tSTATUS\tCOMPILED"
	if listWithDeps {
		header += "\tDEPENDENCIES"
	}
	fmt.Fprintln(w, header)
	for _, info := range infos {
		compiled := "-"
		if !info.CompiledAt.IsZero() {
			compiled = info.CompiledAt.Local().Format(time.DateTime)
		}
		row := fmt.Sprintf("%s\t%s\t%s", info.Template, info.Status, compiled)
		if listWithDeps {
			row += "\t" + strings.Join(info.Dependencies, ", ")
		}
		fmt.Fprintln(w, row)
	}
	return w.Flush()
}
