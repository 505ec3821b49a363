// Package view executes compiled templates against variable bindings and
// delivers the rendered bytes to a sink.
package view

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"text/template"
	"time"

	"github.com/a-h/templ"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/conneroisu/volt/internal/build"
	"github.com/conneroisu/volt/internal/cache"
	"github.com/conneroisu/volt/internal/errors"
	"github.com/conneroisu/volt/internal/expression"
	"github.com/conneroisu/volt/internal/filters"
	"github.com/conneroisu/volt/internal/logging"
	"github.com/conneroisu/volt/internal/metrics"
)

// Sink receives the rendered output of a template.
type Sink interface {
	SetContent(content []byte)
}

// BufferSink keeps the last content it was given.
type BufferSink struct {
	mu      sync.Mutex
	content []byte
}

// SetContent implements Sink.
func (s *BufferSink) SetContent(content []byte) {
	s.mu.Lock()
	s.content = content
	s.mu.Unlock()
}

// Content returns the stored content.
func (s *BufferSink) Content() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content
}

// Engine renders templates, compiling them through a build.Manager as
// needed. It is safe for concurrent use.
type Engine struct {
	manager  *build.Manager
	registry *filters.Registry
	backend  cache.Backend
	logger   logging.Logger
	metrics  *metrics.Collector

	// templates maps an artifact path to its parsed form and the artifact
	// mtime it was parsed from.
	templates sync.Map
	// programs maps translated expression source to its compiled program.
	programs sync.Map
}

type parsedTemplate struct {
	modTime time.Time
	tpl     *template.Template
}

// Option configures an Engine.
type Option func(*Engine)

// WithBackend sets the backend used by cache blocks.
func WithBackend(b cache.Backend) Option {
	return func(e *Engine) { e.backend = b }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the Prometheus collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// New creates an engine. registry must be the one the manager's compiler
// resolves names against. Without WithBackend cache blocks use an unbounded
// in-memory backend whose entries never expire.
func New(manager *build.Manager, registry *filters.Registry, opts ...Option) *Engine {
	e := &Engine{
		manager:  manager,
		registry: registry,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.backend == nil {
		e.backend = cache.NewMemoryBackend(0, 0)
	}
	e.logger = e.logger.WithComponent("view")
	return e
}

// Render renders the template called name with bindings as its scope.
// Nothing is returned on failure.
func (e *Engine) Render(ctx context.Context, name string, bindings map[string]any) ([]byte, error) {
	start := time.Now()
	out, err := e.render(ctx, name, bindings)
	e.metrics.ObserveRender(time.Since(start), err)
	if err != nil {
		e.logger.Debug(ctx, "render failed", "template", name, "error", err.Error())
		return nil, err
	}
	return out, nil
}

// RenderTo renders name and hands the complete output to sink. The sink is
// not touched when rendering fails.
func (e *Engine) RenderTo(ctx context.Context, name string, bindings map[string]any, sink Sink) error {
	out, err := e.Render(ctx, name, bindings)
	if err != nil {
		return err
	}
	sink.SetContent(out)
	return nil
}

// Component adapts a template to a templ.Component so it can be embedded in
// templ views.
func (e *Engine) Component(name string, bindings map[string]any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		out, err := e.Render(ctx, name, bindings)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	})
}

func (e *Engine) render(ctx context.Context, name string, bindings map[string]any) ([]byte, error) {
	artifact, err := e.manager.EnsureCompiled(ctx, name)
	if err != nil {
		return nil, err
	}
	base, err := e.parsed(artifact)
	if err != nil {
		return nil, err
	}

	tpl, err := base.Clone()
	if err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError, "cannot clone template", err)
	}
	rs := &renderState{ctx: ctx, engine: e, tpl: tpl}
	tpl.Funcs(rs.funcMap())

	scope := make(map[string]any, len(bindings)+1)
	for k, v := range bindings {
		scope[k] = v
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, scope); err != nil {
		return nil, unwrapExec(err)
	}
	return buf.Bytes(), nil
}

// parsed returns the parsed artifact, reparsing when the file changed.
func (e *Engine) parsed(artifact string) (*template.Template, error) {
	info, err := os.Stat(artifact)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeReadFailed, "cannot stat compiled template", err)
	}
	if v, ok := e.templates.Load(artifact); ok {
		if p := v.(*parsedTemplate); p.modTime.Equal(info.ModTime()) {
			return p.tpl, nil
		}
	}

	source, err := os.ReadFile(artifact)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeReadFailed, "cannot read compiled template", err)
	}
	stub := &renderState{engine: e}
	tpl, err := template.New(artifact).Funcs(stub.funcMap()).Parse(string(source))
	if err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError,
			fmt.Sprintf("compiled template %s does not parse", artifact), err)
	}
	e.templates.Store(artifact, &parsedTemplate{modTime: info.ModTime(), tpl: tpl})
	return tpl, nil
}

// program returns the compiled expr-lang program for src.
func (e *Engine) program(src string) (*vm.Program, error) {
	if v, ok := e.programs.Load(src); ok {
		return v.(*vm.Program), nil
	}

	opts := []expr.Option{expr.AllowUndefinedVariables()}
	opts = append(opts, e.runtimeFunctions()...)
	for _, name := range e.registry.Names() {
		opts = append(opts, expr.Function(expression.FuncPrefix+name, e.registryFunc(name)))
	}

	program, err := expr.Compile(src, opts...)
	if err != nil {
		ve := errors.NewInternalError(errors.ErrCodeInternalError, "cannot compile expression", err)
		return nil, ve.WithContext("expression", src)
	}
	actual, _ := e.programs.LoadOrStore(src, program)
	return actual.(*vm.Program), nil
}

func (e *Engine) registryFunc(name string) func(args ...any) (any, error) {
	return func(args ...any) (any, error) {
		fn, ok := e.registry.Lookup(name)
		if !ok {
			return nil, errors.NewFilterError(errors.ErrCodeEvaluation, fmt.Sprintf("%q is not registered", name))
		}
		return fn(args...)
	}
}

// runtimeFunctions are the helpers translated expressions reference
// regardless of the registry.
func (e *Engine) runtimeFunctions() []expr.Option {
	return []expr.Option{
		expr.Function(expression.FuncConcat, func(args ...any) (any, error) {
			return filters.ToString(args[0]) + filters.ToString(args[1]), nil
		}),
		expr.Function(expression.FuncTruthy, func(args ...any) (any, error) {
			return filters.Truthy(args[0]), nil
		}),
		expr.Function(expression.FuncIndex, func(args ...any) (any, error) {
			return filters.Index(args[0], args[1])
		}),
		expr.Function(expression.FuncIncluded, func(args ...any) (any, error) {
			return filters.IsIncluded(args[0], args[1]), nil
		}),
	}
}

// evaluate runs src against scope.
func (e *Engine) evaluate(src string, scope map[string]any) (any, error) {
	program, err := e.program(src)
	if err != nil {
		return nil, err
	}
	out, err := expr.Run(program, scope)
	if err != nil {
		var ve *errors.VoltError
		if errors.As(err, &ve) {
			return nil, err
		}
		fe := errors.NewFilterError(errors.ErrCodeEvaluation, fmt.Sprintf("evaluating %q", src))
		fe.Cause = err
		return nil, fe
	}
	return out, nil
}

// unwrapExec surfaces a VoltError raised inside template execution.
func unwrapExec(err error) error {
	var ve *errors.VoltError
	if errors.As(err, &ve) {
		return ve
	}
	return errors.NewInternalError(errors.ErrCodeInternalError, "template execution failed", err)
}
