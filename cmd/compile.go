package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/volt/internal/config"
	"github.com/conneroisu/volt/internal/errors"
)

var compileCmd = &cobra.Command{
	Use:     "compile [templates...]",
	Aliases: []string{"c"},
	Short:   "Compile templates into artifacts",
	Long: `Compile templates into text/template artifacts under the compiled directory.
Without arguments every template under the views directory is compiled.
Fresh artifacts are reused unless --force is given.

Examples:
  volt compile                    # Compile everything that is stale
  volt compile pages/home         # Compile one template
  volt compile --force -j 4       # Recompile everything with 4 workers
  volt compile -o json            # Report results as JSON`,
	RunE: runCompile,
}

var (
	compileForce   bool
	compileWorkers int
	compileOutput  *formatValue
)

func init() {
	rootCmd.AddCommand(compileCmd)

	compileCmd.Flags().BoolVarP(&compileForce, "force", "f", false, "recompile even when artifacts are fresh")
	compileCmd.Flags().IntVarP(&compileWorkers, "workers", "j", 0, "parallel compilations (default compiler.workers, then one per CPU)")
	compileOutput = addOutputFlag(compileCmd, FormatTable, FormatTable, FormatJSON, FormatYAML)
}

// compileReport is one row of compile output.
type compileReport struct {
	Template string        `json:"template" yaml:"template"`
	Result   string        `json:"result" yaml:"result"`
	Artifact string        `json:"artifact,omitempty" yaml:"artifact,omitempty"`
	Duration time.Duration `json:"duration_ns" yaml:"duration_ns"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
}

func runCompile(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, func(cfg *config.Config) {
		if compileForce {
			cfg.Compiler.AlwaysCompile = true
		}
	})
	if err != nil {
		return err
	}

	names, err := a.templates(args)
	if err != nil {
		return err
	}

	workers := compileWorkers
	if workers == 0 {
		workers = a.cfg.Compiler.Workers
	}

	start := time.Now()
	results := a.manager.CompileAll(cmd.Context(), names, workers)

	collector := errors.NewErrorCollector()
	reports := make([]compileReport, len(results))
	for i, r := range results {
		report := compileReport{Template: r.Template, Artifact: r.Artifact, Duration: r.Duration}
		switch {
		case r.Error != nil:
			report.Result = "failed"
			report.Error = r.Error.Error()
			collector.Add(r.Error)
		case r.CacheHit:
			report.Result = "reused"
		default:
			report.Result = "compiled"
		}
		reports[i] = report
	}

	out := cmd.OutOrStdout()
	if compileOutput.value != FormatTable {
		if err := writeStructured(out, compileOutput.value, reports); err != nil {
			return err
		}
	} else {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TEMPLATE\tRESULT\tDURATION")
		for _, r := range reports {
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.Template, r.Result, r.Duration.Round(time.Microsecond))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		stats := a.manager.Stats()
		fmt.Fprintf(out, "\n%d template(s): %d compiled, %d reused, %d failed in %s\n",
			len(reports), stats.Compiled, stats.Reused, stats.Failed, time.Since(start).Round(time.Millisecond))
	}

	if collector.HasErrors() {
		return fmt.Errorf("compilation failed\n%s", collector.Summary())
	}
	return nil
}
