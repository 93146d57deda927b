//go:build linux || darwin

package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

// detachStageEnv counts the re-exec stages of the detach sequence.
const detachStageEnv = "GO_DAEMON_DETACH_STAGE"

// daemonize detaches the process from its controlling terminal. Go
// cannot fork mid-process, so the classic double fork is expressed as a
// staged re-exec: stage 0 respawns itself in a new session and exits;
// stage 1 respawns once more and exits, leaving a final process that is
// not a session leader and cannot reacquire a terminal. Standard streams
// are redirected to the null device at the first respawn; other open
// descriptors are left alone.
//
// The returned bool reports whether the caller is an intermediate stage
// that must now exit successfully.
func daemonize() (parent bool, err error) {
	stage, _ := strconv.Atoi(os.Getenv(detachStageEnv))
	if stage >= 2 {
		// The detach sequence is complete; drop the stage marker so
		// child processes do not inherit it and skip their own detach.
		if err := os.Unsetenv(detachStageEnv); err != nil {
			return false, &PhaseError{Phase: PhaseDaemonize, Err: err}
		}
		return false, nil
	}

	exe, err := os.Executable()
	if err != nil {
		return false, &PhaseError{Phase: PhaseDaemonize, Err: err}
	}
	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return false, &PhaseError{Phase: PhaseDaemonize, Path: os.DevNull, Err: err}
	}
	defer func() { _ = devnull.Close() }()

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Stdin = devnull
	cmd.Stdout = devnull
	cmd.Stderr = devnull
	cmd.Env = append(os.Environ(), fmt.Sprintf("%s=%d", detachStageEnv, stage+1))
	if stage == 0 {
		// The first respawn becomes a session leader; the second sheds
		// leadership again.
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	}
	if err := cmd.Start(); err != nil {
		return false, &PhaseError{Phase: PhaseDaemonize, Err: err}
	}
	return true, nil
}
