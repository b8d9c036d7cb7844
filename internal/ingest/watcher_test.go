package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watch event")
	}
	return ""
}

func TestWatchInitialScanAndChanges(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.paddle.txt"), "x")
	writeFile(t, filepath.Join(root, "a.tess.psm03.txt"), "x")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := Watch(ctx, WatchConfig{
		Roots:       []string{root},
		GoldSuffix:  ".curator.txt",
		InitialScan: true,
		Debounce:    50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if got := receive(t, events); got != filepath.Join(root, "a") {
		t.Fatalf("initial event = %q", got)
	}

	writeFile(t, filepath.Join(root, "b.fuse.txt"), "ignored")
	writeFile(t, filepath.Join(root, "b.easy.txt"), "x")
	writeFile(t, filepath.Join(root, "b.curator.txt"), "x")
	if got := receive(t, events); got != filepath.Join(root, "b") {
		t.Fatalf("change event = %q", got)
	}

	cancel()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("events channel not closed after cancel")
		}
	}
}

func TestWatchFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := Watch(ctx, WatchConfig{Roots: []string{root}, GoldSuffix: ".curator.txt"})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// give the watcher a moment to register the new directory
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(sub, "c.paddle.txt"), "x")

	if got := receive(t, events); got != filepath.Join(sub, "c") {
		t.Fatalf("event = %q", got)
	}
}

func TestWatchRequiresRoots(t *testing.T) {
	if _, _, err := Watch(context.Background(), WatchConfig{}); err == nil {
		t.Fatal("expected error without roots")
	}
}
