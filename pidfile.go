//go:build linux || darwin

package daemon

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"
	"golang.org/x/sys/unix"
)

// PidfileMode is the permission mode of a freshly written pidfile.
const PidfileMode = 0o644

// PidfileState classifies the pidfile at a path.
type PidfileState int

const (
	// PidfileAbsent means no file exists; safe to proceed
	PidfileAbsent PidfileState = iota
	// PidfileStale means the file exists but its recorded owner is dead
	// or its content is not a pid; safe to overwrite
	PidfileStale
	// PidfileLive means the file names a currently live process
	PidfileLive
)

// String returns the state name used in logs
func (s PidfileState) String() string {
	switch s {
	case PidfileAbsent:
		return "absent"
	case PidfileStale:
		return "stale"
	case PidfileLive:
		return "live"
	default:
		return "invalid"
	}
}

// PidFileManager validates, creates, and removes the single-instance
// pidfile. Existence and ownership are recomputed on every call; nothing
// is cached between checks.
type PidFileManager struct {
	log *slog.Logger
}

// NewPidFileManager creates a manager logging through log.
func NewPidFileManager(log *slog.Logger) *PidFileManager {
	if log == nil {
		log = slog.Default()
	}
	return &PidFileManager{log: log}
}

// Check classifies the pidfile at path. For PidfileLive the returned pid
// is the live owner. Liveness is probed with the null signal; a probe
// that fails for any reason other than "no such process" returns
// ErrPidfileProbe, because the true state is unknown and must never be
// assumed stale.
func (m *PidFileManager) Check(path string) (PidfileState, int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return PidfileAbsent, 0, nil
	}
	if err != nil {
		return PidfileAbsent, 0, &PhaseError{
			Phase: PhasePidfile,
			Path:  path,
			Err:   fmt.Errorf("%w: %w", ErrPidfileProbe, err),
		}
	}

	pid, perr := strconv.Atoi(strings.TrimSpace(string(data)))
	if perr != nil || pid <= 0 {
		m.log.Debug("pidfile content is not a pid", "path", path)
		return PidfileStale, 0, nil
	}

	switch err := unix.Kill(pid, 0); {
	case err == nil:
		return PidfileLive, pid, nil
	case errors.Is(err, unix.ESRCH):
		m.log.Debug("pidfile is stale", "path", path, "pid", pid)
		return PidfileStale, pid, nil
	default:
		return PidfileAbsent, pid, &PhaseError{
			Phase: PhasePidfile,
			Path:  path,
			Err:   fmt.Errorf("%w: pid %d: %w", ErrPidfileProbe, pid, err),
		}
	}
}

// Create writes the current process id to path. It fails with
// ErrPidfileTaken when the file names a live process, and with
// ErrPidfileWrite when the write itself fails; stale or absent files are
// overwritten. The write is atomic, so a reader never observes a
// truncated pid.
func (m *PidFileManager) Create(path string) error {
	state, pid, err := m.Check(path)
	if err != nil {
		return err
	}
	if state == PidfileLive {
		m.log.Error("pidfile names a live process", "path", path, "pid", pid)
		return &PhaseError{
			Phase: PhasePidfile,
			Path:  path,
			Err:   fmt.Errorf("%w: pid %d", ErrPidfileTaken, pid),
		}
	}

	content := strconv.Itoa(os.Getpid()) + "\n"
	if err := renameio.WriteFile(path, []byte(content), PidfileMode); err != nil {
		m.log.Error("pidfile write failed", "path", path, "error", err)
		return &PhaseError{
			Phase: PhasePidfile,
			Path:  path,
			Err:   fmt.Errorf("%w: %w", ErrPidfileWrite, err),
		}
	}
	return nil
}

// Remove deletes the pidfile at path, but only when the file still names
// this process. If another live process has taken the file in the
// meantime it is left untouched with a warning, protecting the racing
// instance's pidfile. Removal failures are logged, never fatal: the
// process is exiting either way.
func (m *PidFileManager) Remove(path string) {
	state, pid, err := m.Check(path)
	if err != nil {
		m.log.Warn("pidfile state unknown at removal", "path", path, "error", err)
		return
	}
	switch {
	case state == PidfileAbsent:
		return
	case state == PidfileLive && pid == os.Getpid():
		if err := os.Remove(path); err != nil {
			m.log.Warn("pidfile removal failed", "path", path, "error", err)
		}
	case state == PidfileLive:
		m.log.Warn("pidfile now owned by another live process, leaving it",
			"path", path, "pid", pid)
	default:
		m.log.Debug("pidfile no longer ours, leaving it",
			"path", path, "state", state.String())
	}
}
