package live

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gitddb/gitddb/internal/logging"
)

func TestWatcherDebouncesWritesIntoOneTrigger(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, 30*time.Millisecond, logging.Nop())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	triggers := make(chan struct{}, 16)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go w.Run(ctx, func() { triggers <- struct{}{} })

	path := filepath.Join(dir, "a.json")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-triggers:
	case <-time.After(time.Second):
		t.Fatal("expected at least one debounced trigger")
	}

	select {
	case <-triggers:
		t.Fatal("five rapid writes inside the debounce window should coalesce into a single trigger")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcherStopsOnContextCancel(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, 10*time.Millisecond, logging.Nop())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, func() {})
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should return once its context is canceled")
	}
}
