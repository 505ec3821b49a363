package build

import (
	"sort"
	"sync"
	"time"
)

// BuildResult is the outcome of one EnsureCompiled call.
type BuildResult struct {
	Template string
	Artifact string
	Duration time.Duration
	// CacheHit is true when a fresh artifact was reused.
	CacheHit bool
	Error    error
}

// Stats summarizes the builds a Manager has performed.
type Stats struct {
	Builds          int64
	Compiled        int64
	Reused          int64
	Failed          int64
	TotalDuration   time.Duration
	AverageDuration time.Duration
}

// ReuseRate returns the share of builds served by a fresh artifact, as a
// percentage.
func (s Stats) ReuseRate() float64 {
	if s.Builds == 0 {
		return 0
	}
	return float64(s.Reused) / float64(s.Builds) * 100
}

// buildMetrics accumulates Stats and remembers the last failure of each
// template until it next builds cleanly.
type buildMetrics struct {
	mu       sync.RWMutex
	stats    Stats
	failures map[string]error
}

func newBuildMetrics() *buildMetrics {
	return &buildMetrics{failures: make(map[string]error)}
}

func (bm *buildMetrics) record(result BuildResult) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	bm.stats.Builds++
	bm.stats.TotalDuration += result.Duration
	bm.stats.AverageDuration = bm.stats.TotalDuration / time.Duration(bm.stats.Builds)

	switch {
	case result.Error != nil:
		bm.stats.Failed++
		bm.failures[result.Template] = result.Error
		return
	case result.CacheHit:
		bm.stats.Reused++
	default:
		bm.stats.Compiled++
	}
	delete(bm.failures, result.Template)
}

func (bm *buildMetrics) snapshot() Stats {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	return bm.stats
}

// Failure pairs a template with its most recent build error.
type Failure struct {
	Template string
	Err      error
}

func (bm *buildMetrics) failureList() []Failure {
	bm.mu.RLock()
	defer bm.mu.RUnlock()

	out := make([]Failure, 0, len(bm.failures))
	for name, err := range bm.failures {
		out = append(out, Failure{Template: name, Err: err})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Template < out[j].Template })
	return out
}
