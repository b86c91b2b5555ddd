package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/doraemo/internal/core/domain"
)

// eventSink collects watcher events.
type eventSink struct {
	mu     sync.Mutex
	events []domain.DocumentEvent
}

func (s *eventSink) handle(ev domain.DocumentEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *eventSink) paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.DocumentPath)
	}
	return out
}

func startWatcher(t *testing.T, s *Store) *eventSink {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	sink := &eventSink{}
	done := make(chan error, 1)
	go func() { done <- NewWatcher(s, 50*time.Millisecond).Watch(ctx, sink.handle) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	// Give the watcher time to register the tree.
	time.Sleep(100 * time.Millisecond)
	return sink
}

func TestWatcher_AnnouncesPuts(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, os.MkdirAll(filepath.Join(s.Root(), "alice"), 0700))
	sink := startWatcher(t, s)

	require.NoError(t, s.Put(ctx, "alice/a.txt", []byte("hello"), "text/plain"))

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"alice/a.txt"}, sink.paths())
	}, 2*time.Second, 20*time.Millisecond)

	sink.mu.Lock()
	assert.Equal(t, domain.EventTypeDocumentUploaded, sink.events[0].EventType)
	sink.mu.Unlock()
}

func TestWatcher_NewDirectoriesAndDebounce(t *testing.T) {
	s := newStore(t)
	sink := startWatcher(t, s)

	dir := filepath.Join(s.Root(), "bob", "docs")
	require.NoError(t, os.MkdirAll(dir, 0700))
	p := filepath.Join(dir, "notes.md")
	f, err := os.Create(p)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := f.WriteString("line\n")
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"bob/docs/notes.md"}, sink.paths())
	}, 2*time.Second, 20*time.Millisecond)

	// Quiet period: no duplicates trickle in for the same write burst.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, []string{"bob/docs/notes.md"}, sink.paths())
}

func TestWatcher_IgnoresHiddenAndRootFiles(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.MkdirAll(filepath.Join(s.Root(), "alice"), 0700))
	sink := startWatcher(t, s)

	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "alice", ".secret"), []byte("x"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "loose.txt"), []byte("x"), 0600))

	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, sink.paths())
}
