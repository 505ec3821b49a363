// Package build manages compiled template artifacts on disk.
//
// Each template compiles to one artifact file plus a JSON sidecar recording
// the modification times of every source the compilation read. An artifact
// is reused while none of those sources has changed.
package build

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"github.com/conneroisu/volt/internal/compiler"
	"github.com/conneroisu/volt/internal/errors"
	"github.com/conneroisu/volt/internal/logging"
	"github.com/conneroisu/volt/internal/metrics"
)

const (
	artifactSuffix = ".compiled"
	metaSuffix     = ".meta.json"
)

// Status is the freshness of a compiled artifact.
type Status int

const (
	StatusFresh Status = iota
	StatusStale
	StatusMissing
)

func (s Status) String() string {
	switch s {
	case StatusFresh:
		return "fresh"
	case StatusStale:
		return "stale"
	default:
		return "missing"
	}
}

// Meta is the sidecar stored next to each artifact.
type Meta struct {
	SourcePath   string           `json:"source_path"`
	SourceMTime  int64            `json:"source_mtime"`
	CompiledAt   time.Time        `json:"compiled_at"`
	Dependencies []DependencyMeta `json:"dependencies"`
}

// DependencyMeta is one recorded source with its modification time in
// nanoseconds since the epoch.
type DependencyMeta struct {
	Path  string `json:"path"`
	MTime int64  `json:"mtime"`
}

// Options controls artifact reuse.
type Options struct {
	// CompiledDir holds artifacts and sidecars.
	CompiledDir string
	// Stat enables the dependency freshness check. When false an existing
	// artifact is always reused.
	Stat bool
	// AlwaysCompile recompiles on every request.
	AlwaysCompile bool
}

// Manager compiles templates on demand and reuses fresh artifacts. It is safe
// for concurrent use; concurrent requests for the same stale template share
// one compilation.
type Manager struct {
	compiler *compiler.Compiler
	loader   compiler.Loader
	opts     Options
	logger   logging.Logger
	metrics  *metrics.Collector
	stats    *buildMetrics
	group    singleflight.Group
	now      func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(logger logging.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics sets the Prometheus collector.
func WithMetrics(c *metrics.Collector) ManagerOption {
	return func(m *Manager) { m.metrics = c }
}

// NewManager creates a manager that compiles with c.
func NewManager(c *compiler.Compiler, opts Options, options ...ManagerOption) *Manager {
	m := &Manager{
		compiler: c,
		loader:   c.Loader(),
		opts:     opts,
		logger:   logging.Discard(),
		stats:    newBuildMetrics(),
		now:      time.Now,
	}
	for _, o := range options {
		o(m)
	}
	m.logger = m.logger.WithComponent("build")
	return m
}

// Options returns the manager's options.
func (m *Manager) Options() Options {
	return m.opts
}

// Resolve canonicalizes a template name through the compiler's loader.
func (m *Manager) Resolve(name string) (string, error) {
	return m.loader.Resolve(name)
}

// ArtifactPath returns where the artifact of a resolved template lives.
func (m *Manager) ArtifactPath(rel string) string {
	return filepath.Join(m.opts.CompiledDir, url.PathEscape(filepath.ToSlash(rel))+artifactSuffix)
}

func (m *Manager) metaPath(rel string) string {
	return filepath.Join(m.opts.CompiledDir, url.PathEscape(filepath.ToSlash(rel))+metaSuffix)
}

// EnsureCompiled returns the path of an up-to-date artifact for name,
// compiling it first when needed. Compilation failures leave any previous
// artifact untouched.
func (m *Manager) EnsureCompiled(ctx context.Context, name string) (string, error) {
	start := m.now()
	rel, err := m.loader.Resolve(name)
	if err != nil {
		return "", err
	}
	artifact := m.ArtifactPath(rel)

	status := StatusStale
	if !m.opts.AlwaysCompile {
		status = m.status(rel)
	}
	m.metrics.ObserveLookup(status.String())

	if status == StatusFresh {
		m.stats.record(BuildResult{Template: rel, Artifact: artifact, CacheHit: true, Duration: time.Since(start)})
		return artifact, nil
	}

	m.logger.Debug(ctx, "compiling template", "template", rel, "status", status.String())
	_, err, _ = m.group.Do(rel, func() (any, error) {
		return nil, m.compile(ctx, rel)
	})
	m.stats.record(BuildResult{Template: rel, Artifact: artifact, Duration: time.Since(start), Error: err})
	if err != nil {
		return "", err
	}
	return artifact, nil
}

func (m *Manager) compile(ctx context.Context, rel string) error {
	start := time.Now()
	res, err := m.compiler.Compile(ctx, rel)
	m.metrics.ObserveCompile(time.Since(start), err)
	if err != nil {
		m.logger.Warn(ctx, err, "compilation failed", "template", rel)
		return err
	}

	meta := Meta{
		SourcePath: res.Path,
		CompiledAt: m.now().UTC(),
	}
	for _, dep := range res.Dependencies {
		meta.Dependencies = append(meta.Dependencies, DependencyMeta{Path: dep.Path, MTime: dep.ModTime.UnixNano()})
	}
	if len(res.Dependencies) > 0 {
		meta.SourceMTime = res.Dependencies[0].ModTime.UnixNano()
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errors.NewInternalError(errors.ErrCodeInternalError, "cannot encode artifact metadata", err)
	}

	// The artifact goes first so a sidecar never describes a missing file.
	if err := writeAtomic(m.ArtifactPath(rel), []byte(res.Source)); err != nil {
		return err
	}
	if err := writeAtomic(m.metaPath(rel), data); err != nil {
		return err
	}

	m.logger.Info(ctx, "compiled template", "template", rel,
		"dependencies", len(res.Dependencies), "duration", time.Since(start))
	return nil
}

// Status reports the freshness of name's artifact without compiling.
func (m *Manager) Status(name string) (Status, error) {
	rel, err := m.loader.Resolve(name)
	if err != nil {
		return StatusMissing, err
	}
	return m.status(rel), nil
}

func (m *Manager) status(rel string) Status {
	if _, err := os.Stat(m.ArtifactPath(rel)); err != nil {
		return StatusMissing
	}
	meta, err := m.readMeta(rel)
	if err != nil {
		return StatusMissing
	}
	if !m.opts.Stat {
		return StatusFresh
	}
	if len(meta.Dependencies) == 0 {
		return StatusStale
	}
	for _, dep := range meta.Dependencies {
		live, err := m.loader.ModTime(dep.Path)
		if err != nil {
			return StatusStale
		}
		if live.UnixNano() > dep.MTime {
			return StatusStale
		}
	}
	return StatusFresh
}

func (m *Manager) readMeta(rel string) (*Meta, error) {
	data, err := os.ReadFile(m.metaPath(rel))
	if err != nil {
		return nil, err
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("corrupt metadata for %s: %w", rel, err)
	}
	return &meta, nil
}

// ArtifactInfo describes the artifact of one template.
type ArtifactInfo struct {
	Template     string    `json:"template" yaml:"template"`
	Artifact     string    `json:"artifact" yaml:"artifact"`
	Status       string    `json:"status" yaml:"status"`
	CompiledAt   time.Time `json:"compiled_at,omitempty" yaml:"compiled_at,omitempty"`
	Dependencies []string  `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// Inspect describes name's artifact.
func (m *Manager) Inspect(name string) (ArtifactInfo, error) {
	rel, err := m.loader.Resolve(name)
	if err != nil {
		return ArtifactInfo{}, err
	}
	info := ArtifactInfo{
		Template: rel,
		Artifact: m.ArtifactPath(rel),
		Status:   m.status(rel).String(),
	}
	if meta, err := m.readMeta(rel); err == nil {
		info.CompiledAt = meta.CompiledAt
		for _, dep := range meta.Dependencies {
			info.Dependencies = append(info.Dependencies, dep.Path)
		}
	}
	return info, nil
}

// Clean removes every artifact and sidecar, returning how many files were
// deleted.
func (m *Manager) Clean() (int, error) {
	entries, err := os.ReadDir(m.opts.CompiledDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.NewIOError(errors.ErrCodeReadFailed, "cannot read compiled directory", err)
	}

	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, artifactSuffix) || strings.HasSuffix(name, metaSuffix)) {
			continue
		}
		if err := os.Remove(filepath.Join(m.opts.CompiledDir, name)); err != nil && !os.IsNotExist(err) {
			return removed, errors.NewIOError(errors.ErrCodeWriteFailed, "cannot remove "+name, err)
		}
		removed++
	}
	return removed, nil
}

// Stats returns a summary of the builds performed so far.
func (m *Manager) Stats() Stats {
	return m.stats.snapshot()
}

// Failures returns templates whose last build failed, sorted by name.
func (m *Manager) Failures() []Failure {
	return m.stats.failureList()
}

// writeAtomic writes data to a temporary file in the destination directory
// and renames it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.NewIOError(errors.ErrCodeWriteFailed, "cannot create "+dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".volt-*")
	if err != nil {
		return errors.NewIOError(errors.ErrCodeWriteFailed, "cannot create temporary file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.NewIOError(errors.ErrCodeWriteFailed, "cannot write "+path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.NewIOError(errors.ErrCodeWriteFailed, "cannot write "+path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.NewIOError(errors.ErrCodeWriteFailed, "cannot replace "+path, err)
	}
	return nil
}
