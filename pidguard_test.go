package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestPidfileGuardWarnsOnRemoval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guarded.pid")
	content := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf syncBuffer
	cleanup, err := pidfileGuard(context.Background(), captureLogger(&buf), path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = cleanup() }()

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return strings.Contains(buf.String(), "pidfile removed while running")
	}, "guard never reported the removal")
}

func TestPidfileGuardWarnsOnRewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guarded.pid")
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf syncBuffer
	cleanup, err := pidfileGuard(context.Background(), captureLogger(&buf), path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = cleanup() }()

	if err := os.WriteFile(path, []byte("424242\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return strings.Contains(buf.String(), "pidfile rewritten by another process")
	}, "guard never reported the rewrite")
}

func TestPidfileGuardIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guarded.pid")
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf syncBuffer
	cleanup, err := pidfileGuard(context.Background(), captureLogger(&buf), path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = cleanup() }()

	if err := os.WriteFile(filepath.Join(dir, "sibling.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(150 * time.Millisecond)
	if s := buf.String(); strings.Contains(s, "pidfile") {
		t.Errorf("guard reacted to a sibling file: %s", s)
	}
}

func TestPidfileGuardCleanupIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guarded.pid")
	if err := os.WriteFile(path, []byte("1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cleanup, err := pidfileGuard(context.Background(), testLogger(), path)
	if err != nil {
		t.Fatal(err)
	}

	if err := cleanup(); err != nil {
		t.Errorf("first cleanup: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- cleanup() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("second cleanup: %v", err)
		}
	case <-time.After(time.Second):
		t.Error("second cleanup hung")
	}
}
