package daemon

import (
	"errors"
	"fmt"
)

// Exit codes reported by Controller.Run. They are part of the public
// contract: init scripts and supervisors match on them.
const (
	// ExitOK is returned on normal completion and for --help/--version.
	ExitOK = 0
	// ExitPidfileProbe is returned when the liveness of the recorded
	// pidfile owner could not be determined.
	ExitPidfileProbe = 1
	// ExitUsage is returned for argument parse/validation errors.
	ExitUsage = 2
	// ExitPidfileTaken is returned when the pidfile names a live foreign
	// process.
	ExitPidfileTaken = 3
	// ExitPidfileWrite is returned when the pidfile could not be written.
	ExitPidfileWrite = 4
)

// Common errors returned by lifecycle operations
var (
	// ErrUnknownSignal indicates a signal name with no registered broker
	ErrUnknownSignal = errors.New("daemon: unknown signal")

	// ErrNilHandler indicates a nil handler passed to Handle
	ErrNilHandler = errors.New("daemon: nil handler")

	// ErrPidfileTaken indicates the pidfile is owned by a live process
	ErrPidfileTaken = errors.New("daemon: pidfile owned by live process")

	// ErrPidfileWrite indicates the pidfile could not be written
	ErrPidfileWrite = errors.New("daemon: pidfile write failed")

	// ErrPidfileProbe indicates the liveness probe of the recorded pid
	// failed for a reason other than "no such process"
	ErrPidfileProbe = errors.New("daemon: pidfile owner state unknown")

	// ErrUnsupported indicates the operation has no implementation on
	// this platform
	ErrUnsupported = errors.New("daemon: not supported on this platform")
)

// Phase identifies a lifecycle phase for error reporting
type Phase int

const (
	// PhaseUnknown represents an unattributed failure
	PhaseUnknown Phase = iota
	// PhaseParseArgs is command-line parsing and validation
	PhaseParseArgs
	// PhaseDaemonize is background detachment
	PhaseDaemonize
	// PhasePidfile is pidfile validation, creation, and removal
	PhasePidfile
	// PhasePrivileged is the pre-drop extension hook
	PhasePrivileged
	// PhasePrivDrop is the user/group identity drop
	PhasePrivDrop
	// PhaseSignals is broker registration and dispatch
	PhaseSignals
	// PhaseMain is the main iteration loop and its hooks
	PhaseMain
)

// String returns the phase name used in error messages and logs
func (p Phase) String() string {
	switch p {
	case PhaseParseArgs:
		return "parse-args"
	case PhaseDaemonize:
		return "daemonize"
	case PhasePidfile:
		return "pidfile"
	case PhasePrivileged:
		return "privileged-hook"
	case PhasePrivDrop:
		return "privilege-drop"
	case PhaseSignals:
		return "signals"
	case PhaseMain:
		return "main-loop"
	default:
		return "unknown"
	}
}

// PhaseError represents an error from a lifecycle phase
type PhaseError struct {
	// Phase is the lifecycle phase that failed
	Phase Phase
	// Path is the file path involved, if any
	Path string
	// Err is the underlying error
	Err error
}

// Error returns a formatted error message
func (e *PhaseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("daemon %s: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("daemon %s %q: %v", e.Phase, e.Path, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *PhaseError) Unwrap() error {
	return e.Err
}

// exitCode maps a lifecycle error to its process exit code
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrPidfileProbe):
		return ExitPidfileProbe
	case errors.Is(err, ErrPidfileTaken):
		return ExitPidfileTaken
	case errors.Is(err, ErrPidfileWrite):
		return ExitPidfileWrite
	default:
		return 1
	}
}
