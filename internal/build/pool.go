package build

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// CompileAll ensures every named template is compiled, using at most workers
// goroutines. Results are returned in the order of names; one template
// failing does not stop the others.
func (m *Manager) CompileAll(ctx context.Context, names []string, workers int) []BuildResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]BuildResult, len(names))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			start := time.Now()
			status, _ := m.Status(name)
			artifact, err := m.EnsureCompiled(ctx, name)
			results[i] = BuildResult{
				Template: name,
				Artifact: artifact,
				Duration: time.Since(start),
				CacheHit: err == nil && status == StatusFresh && !m.opts.AlwaysCompile,
				Error:    err,
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
