//go:build linux || darwin

package daemon

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"vawter.tech/stopper"
)

// guardDebounce coalesces rapid pidfile events before re-reading.
const guardDebounce = 25 * time.Millisecond

// guardStopGrace is how long cleanup waits for the watcher goroutine.
const guardStopGrace = 100 * time.Millisecond

// guardState manages the debouncer shared between the watcher goroutine
// and its timer callbacks.
type guardState struct {
	mu        sync.Mutex
	debouncer *time.Timer
}

// pidfileGuard watches the directory holding the pidfile while the main
// loop runs and warns when another actor removes or rewrites the file.
// It is purely advisory: the lifecycle never acts on guard findings, it
// only surfaces them. The returned cleanup stops the watcher goroutine
// and is safe to call more than once.
func pidfileGuard(ctx context.Context, log *slog.Logger, path string) (cleanup func() error, err error) {
	dir := filepath.Dir(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &PhaseError{Phase: PhasePidfile, Path: dir, Err: err}
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, &PhaseError{Phase: PhasePidfile, Path: dir, Err: err}
	}

	sctx := stopper.WithContext(ctx)
	sctx.Defer(func() {
		_ = watcher.Close()
	})

	ownPid := strconv.Itoa(os.Getpid())
	check := func() {
		if sctx.IsStopping() {
			return
		}
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Warn("pidfile removed while running", "path", path)
		case err != nil:
			log.Warn("pidfile unreadable while running", "path", path, "error", err)
		case strings.TrimSpace(string(data)) != ownPid:
			log.Warn("pidfile rewritten by another process", "path", path)
		}
	}

	state := &guardState{}

	sctx.Go(func(sctx *stopper.Context) error {
		sctx.Defer(func() {
			state.mu.Lock()
			if state.debouncer != nil {
				state.debouncer.Stop()
			}
			state.mu.Unlock()
		})

		for !sctx.IsStopping() {
			select {
			case <-sctx.Stopping():
				return nil

			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				state.mu.Lock()
				if state.debouncer != nil {
					state.debouncer.Stop()
				}
				state.debouncer = time.AfterFunc(guardDebounce, check)
				state.mu.Unlock()

			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				if err != nil && !sctx.IsStopping() {
					log.Warn("pidfile watch error", "path", path, "error", err)
				}
			}
		}
		return nil
	})

	cleanup = func() error {
		sctx.Stop(guardStopGrace)
		return sctx.Wait()
	}
	return cleanup, nil
}
