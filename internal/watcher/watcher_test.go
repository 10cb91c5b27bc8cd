package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lumehart/cadenza/internal/config"
	"github.com/lumehart/cadenza/internal/event"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeConfig(t *testing.T, path, level string) {
	t.Helper()
	content := "logging:\n  level: " + level + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
}

func TestReloadOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, "info")

	var mu sync.Mutex
	var got []*config.Config

	svc := NewService(path, nil, testLogger(), func(cfg *config.Config) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, cfg)
	})
	svc.SetDebounce(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Start(ctx)
	}()

	// Give the watcher time to set up, then modify the file.
	time.Sleep(100 * time.Millisecond)
	writeConfig(t, path, "debug")

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for reload callback")
		case <-time.After(20 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if got[len(got)-1].Logging.Level != "debug" {
		t.Errorf("reloaded level = %q, want debug", got[len(got)-1].Logging.Level)
	}

	cancel()
	<-done
}

func TestInvalidConfigKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, "info")

	var mu sync.Mutex
	reloads := 0

	svc := NewService(path, nil, testLogger(), func(_ *config.Config) {
		mu.Lock()
		defer mu.Unlock()
		reloads++
	})
	svc.SetDebounce(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Start(ctx)

	time.Sleep(100 * time.Millisecond)
	// Invalid YAML must not invoke the callback.
	if err := os.WriteFile(path, []byte(":: not yaml ::"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	time.Sleep(300 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if reloads != 0 {
		t.Errorf("got %d reloads for invalid config, want 0", reloads)
	}
}

func TestIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, "info")

	var mu sync.Mutex
	reloads := 0

	svc := NewService(path, nil, testLogger(), func(_ *config.Config) {
		mu.Lock()
		defer mu.Unlock()
		reloads++
	})
	svc.SetDebounce(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Start(ctx)

	time.Sleep(100 * time.Millisecond)
	// Writes to a sibling file must not trigger a reload.
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0o644); err != nil {
		t.Fatalf("writing sibling: %v", err)
	}

	time.Sleep(300 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if reloads != 0 {
		t.Errorf("got %d reloads for sibling file write, want 0", reloads)
	}
}

func TestPublishesReloadEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, "info")

	bus := event.NewBus(testLogger(), 16)
	go bus.Start()
	defer bus.Stop()

	var mu sync.Mutex
	events := 0
	bus.Subscribe(event.ConfigReloaded, func(_ event.Event) {
		mu.Lock()
		defer mu.Unlock()
		events++
	})

	svc := NewService(path, bus, testLogger())
	svc.SetDebounce(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Start(ctx)

	time.Sleep(100 * time.Millisecond)
	writeConfig(t, path, "warn")

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := events
		mu.Unlock()
		if n > 0 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for reload event")
		case <-time.After(20 * time.Millisecond):
		}
	}
}
