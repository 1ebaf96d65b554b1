package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

func startWatcher(t *testing.T, dir string) (<-chan struct{}, context.CancelFunc) {
	t.Helper()
	w, err := New(dir, map[string]bool{"txt": true}, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	fired := make(chan struct{}, 10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx, func(context.Context) { fired <- struct{}{} })
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return fired, cancel
}

func expectTrigger(t *testing.T, fired <-chan struct{}) {
	t.Helper()
	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("expected a trigger")
	}
}

func expectQuiet(t *testing.T, fired <-chan struct{}, d time.Duration) {
	t.Helper()
	select {
	case <-fired:
		t.Fatal("unexpected trigger")
	case <-time.After(d):
	}
}

func TestWatcher_DebouncesBurst(t *testing.T) {
	dir := t.TempDir()
	fired, _ := startWatcher(t, dir)

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte{byte('a' + i)}, 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	expectTrigger(t, fired)
	expectQuiet(t, fired, 200*time.Millisecond)
}

func TestWatcher_IgnoresDisabledAndHidden(t *testing.T) {
	dir := t.TempDir()
	fired, _ := startWatcher(t, dir)

	if err := os.WriteFile(filepath.Join(dir, "song.mp3"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".draft.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectQuiet(t, fired, 300*time.Millisecond)
}

func TestWatcher_NewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	fired, _ := startWatcher(t, dir)

	sub := filepath.Join(dir, "reports")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(sub, "q3.txt"), []byte("numbers"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectTrigger(t, fired)
}

func TestWatcher_PopulatedDirectoryMovedIn(t *testing.T) {
	dir := t.TempDir()
	outside := filepath.Join(t.TempDir(), "batch")
	if err := os.MkdirAll(filepath.Join(outside, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(outside, "nested", "report.txt"), []byte("totals"), 0o644); err != nil {
		t.Fatal(err)
	}
	fired, _ := startWatcher(t, dir)

	if err := os.Rename(outside, filepath.Join(dir, "batch")); err != nil {
		t.Fatal(err)
	}
	expectTrigger(t, fired)
}

func TestWatcher_DirectoryWithoutDocumentsMovedIn(t *testing.T) {
	dir := t.TempDir()
	outside := filepath.Join(t.TempDir(), "music")
	if err := os.MkdirAll(outside, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(outside, "song.mp3"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	fired, _ := startWatcher(t, dir)

	if err := os.Rename(outside, filepath.Join(dir, "music")); err != nil {
		t.Fatal(err)
	}
	expectQuiet(t, fired, 300*time.Millisecond)
}

func TestNew_MissingRoot(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "missing"), nil, 0); err == nil {
		t.Error("expected error for missing root")
	}
}
