package cmd

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/conneroisu/volt/internal/build"
	"github.com/conneroisu/volt/internal/compiler"
	"github.com/conneroisu/volt/internal/config"
	"github.com/conneroisu/volt/internal/filters"
	"github.com/conneroisu/volt/internal/logging"
	"github.com/conneroisu/volt/internal/metrics"
	"github.com/conneroisu/volt/internal/view"
)

// app is the component graph a command works with.
type app struct {
	cfg      *config.Config
	logger   logging.Logger
	loader   *compiler.FileLoader
	registry *filters.Registry
	manager  *build.Manager
	engine   *view.Engine
	metrics  *metrics.Collector
	gatherer *prometheus.Registry
}

// newApp loads the configuration and wires the compiler, artifact manager
// and view engine. mutate may adjust the configuration after flags have
// been applied.
func newApp(cmd *cobra.Command, mutate func(*config.Config)) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(cfg)
	}

	logger := cfg.Log.NewLogger(cmd.ErrOrStderr())
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	loader := compiler.NewFileLoader(cfg.Views.Dir, cfg.Views.Extension)
	registry := filters.Builtins()
	c := compiler.New(loader, registry,
		compiler.WithAutoescape(cfg.Compiler.Autoescape),
		compiler.WithLogger(logger),
	)
	manager := build.NewManager(c, build.Options{
		CompiledDir:   cfg.Compiler.CompiledDir,
		Stat:          cfg.Compiler.Stat,
		AlwaysCompile: cfg.Compiler.AlwaysCompile,
	}, build.WithLogger(logger), build.WithMetrics(collector))
	engine := view.New(manager, registry,
		view.WithBackend(cfg.Cache.NewBackend()),
		view.WithLogger(logger),
		view.WithMetrics(collector),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		loader:   loader,
		registry: registry,
		manager:  manager,
		engine:   engine,
		metrics:  collector,
		gatherer: reg,
	}, nil
}

// templates returns names when given, otherwise every template under the
// views directory.
func (a *app) templates(names []string) ([]string, error) {
	if len(names) > 0 {
		return names, nil
	}
	return a.loader.List()
}
