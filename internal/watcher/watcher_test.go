package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestDebouncerCoalescesByPath(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(ChangeEvent{Path: "b.volt", Type: EventTypeCreated})
	d.Add(ChangeEvent{Path: "a.volt", Type: EventTypeModified})
	d.Add(ChangeEvent{Path: "b.volt", Type: EventTypeModified})

	select {
	case events := <-d.Output():
		require.Len(t, events, 2)
		assert.Equal(t, "a.volt", events[0].Path)
		assert.Equal(t, "b.volt", events[1].Path)
		assert.Equal(t, EventTypeModified, events[1].Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no batch delivered")
	}

	select {
	case events := <-d.Output():
		t.Fatalf("unexpected second batch: %v", events)
	case <-time.After(60 * time.Millisecond):
	}
}

func TestFilters(t *testing.T) {
	tests := []struct {
		name   string
		filter FileFilter
		path   string
		want   bool
	}{
		{"extension match", ExtensionFilter(".volt"), "views/a.volt", true},
		{"extension mismatch", ExtensionFilter(".volt"), "views/a.html", false},
		{"ignore match", IgnoreFilter("*.swp", "*~"), "views/a.volt.swp", false},
		{"ignore tilde", IgnoreFilter("*.swp", "*~"), "views/a.volt~", false},
		{"ignore miss", IgnoreFilter("*.swp"), "views/a.volt", true},
		{"hidden", NoHiddenFilter, "views/.a.volt", false},
		{"visible", NoHiddenFilter, "views/a.volt", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter(tt.path))
		})
	}
}

func TestAddRecursiveSkipsHiddenDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "layouts", "partials"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))

	fw, err := NewFileWatcher(10*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	require.NoError(t, fw.AddRecursive(root))
	assert.Equal(t, []string{
		root,
		filepath.Join(root, "layouts"),
		filepath.Join(root, "layouts", "partials"),
	}, fw.WatchList())
}

func TestAddPathRejectsTraversal(t *testing.T) {
	fw, err := NewFileWatcher(10*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	assert.Error(t, fw.AddPath("../elsewhere"))
	assert.Error(t, fw.AddPath(""))
	assert.Error(t, fw.AddPath(filepath.Join(t.TempDir(), "missing")))
}

func TestRunDeliversFilteredChanges(t *testing.T) {
	root := t.TempDir()

	fw, err := NewFileWatcher(30*time.Millisecond, nil)
	require.NoError(t, err)
	fw.AddFilter(ExtensionFilter(".volt"))
	require.NoError(t, fw.AddRecursive(root))

	batches := make(chan []ChangeEvent, 4)
	fw.AddHandler(func(_ context.Context, events []ChangeEvent) error {
		batches <- events
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fw.Run(ctx) }()

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "page.volt"), []byte("hi"), 0o644))

	select {
	case events := <-batches:
		require.NotEmpty(t, events)
		for _, e := range events {
			assert.Equal(t, ".volt", filepath.Ext(e.Path))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
