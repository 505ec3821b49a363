package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/conneroisu/volt/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Recompile templates when they change",
	Long: `Watch the views directory and recompile templates whenever a source changes.
Every template is checked after each batch of changes, so a change to a layout
or partial recompiles the templates that depend on it.

Examples:
  volt watch                          # Watch the configured views dir
  volt watch --metrics-addr :9090     # Also serve Prometheus metrics`,
	RunE: runWatch,
}

var watchMetricsAddr string

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fw, err := watcher.NewFileWatcher(a.cfg.Watch.Debounce, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	fw.AddFilter(watcher.ExtensionFilter(a.cfg.Views.Extension))
	fw.AddFilter(watcher.NoHiddenFilter)
	if len(a.cfg.Watch.Ignore) > 0 {
		fw.AddFilter(watcher.IgnoreFilter(a.cfg.Watch.Ignore...))
	}
	fw.AddHandler(func(ctx context.Context, events []watcher.ChangeEvent) error {
		for _, e := range events {
			a.logger.Debug(ctx, "change", "path", e.Path, "type", e.Type.String())
		}
		return recompileAll(ctx, a)
	})

	if err := fw.AddRecursive(a.cfg.Views.Dir); err != nil {
		fw.Stop()
		return fmt.Errorf("failed to watch %s: %w", a.cfg.Views.Dir, err)
	}

	if watchMetricsAddr != "" {
		srv := &http.Server{
			Addr:              watchMetricsAddr,
			Handler:           promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.logger.Error(ctx, err, "metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		a.logger.Info(ctx, "serving metrics", "addr", watchMetricsAddr)
	}

	if err := recompileAll(ctx, a); err != nil {
		a.logger.Warn(ctx, err, "initial compilation reported errors")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for changes (Ctrl+C to stop)\n", a.cfg.Views.Dir)

	if err := fw.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// recompileAll brings every template up to date and logs the outcome.
func recompileAll(ctx context.Context, a *app) error {
	names, err := a.loader.List()
	if err != nil {
		return err
	}

	results := a.manager.CompileAll(ctx, names, a.cfg.Compiler.Workers)
	compiled, failed := 0, 0
	for _, r := range results {
		switch {
		case r.Error != nil:
			failed++
			a.logger.Error(ctx, r.Error, "template failed to compile", "template", r.Template)
		case !r.CacheHit:
			compiled++
		}
	}
	a.logger.Info(ctx, "templates checked", "total", len(results), "compiled", compiled, "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d template(s) failed to compile", failed)
	}
	return nil
}
