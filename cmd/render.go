package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/conneroisu/volt/internal/view"
)

var renderCmd = &cobra.Command{
	Use:     "render <template>",
	Aliases: []string{"r"},
	Short:   "Render a template",
	Long: `Render a template with variables taken from a data file and --set flags.
The template is compiled first if its artifact is missing or stale.

Examples:
  volt render pages/home --data vars.json
  volt render pages/home --data vars.yaml --set user.name=Ann
  echo '{"items":[1,2]}' | volt render list --data -
  volt render mail/welcome --set count=3 --out welcome.html`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

var (
	renderData string
	renderSets []string
	renderOut  string
)

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringVarP(&renderData, "data", "d", "", "JSON or YAML file with template variables (- for stdin)")
	renderCmd.Flags().StringArrayVarP(&renderSets, "set", "s", nil, "set a variable as key=value (repeatable, dotted keys nest)")
	renderCmd.Flags().StringVar(&renderOut, "out", "", "write output to a file instead of stdout")
}

func runRender(cmd *cobra.Command, args []string) error {
	bindings, err := loadBindings(renderData, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if err := applySets(bindings, renderSets); err != nil {
		return err
	}

	a, err := newApp(cmd, nil)
	if err != nil {
		return err
	}

	sink := &view.BufferSink{}
	if err := a.engine.RenderTo(cmd.Context(), args[0], bindings, sink); err != nil {
		return err
	}

	if renderOut == "" {
		_, err := cmd.OutOrStdout().Write(sink.Content())
		return err
	}
	if err := os.MkdirAll(filepath.Dir(renderOut), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(renderOut, sink.Content(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", renderOut, err)
	}
	a.logger.Info(cmd.Context(), "rendered", "template", args[0], "out", renderOut, "bytes", len(sink.Content()))
	return nil
}
