//go:build linux || darwin

package daemon

import (
	"fmt"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// Signal identifies one OS signal. Values are immutable and canonical:
// two Signals compare equal iff they name the same OS signal. The zero
// value is not a valid signal.
type Signal struct {
	num syscall.Signal
}

// LookupSignal resolves a signal name to a Signal. Names are canonicalized
// before lookup, so "hup", "HUP", and "SIGHUP" all resolve to the same
// Signal. Unrecognized names return ErrUnknownSignal.
func LookupSignal(name string) (Signal, error) {
	canon := strings.ToUpper(strings.TrimSpace(name))
	if canon != "" && !strings.HasPrefix(canon, "SIG") {
		canon = "SIG" + canon
	}
	num := unix.SignalNum(canon)
	if num == 0 {
		return Signal{}, fmt.Errorf("%w: %q", ErrUnknownSignal, name)
	}
	return Signal{num: num}, nil
}

// SignalFromNum wraps a raw signal number. The number is not validated;
// use LookupSignal when starting from a name.
func SignalFromNum(num syscall.Signal) Signal {
	return Signal{num: num}
}

// Num returns the OS signal number.
func (s Signal) Num() syscall.Signal {
	return s.num
}

// String returns the canonical signal name, e.g. "SIGHUP".
func (s Signal) String() string {
	if name := unix.SignalName(s.num); name != "" {
		return name
	}
	return fmt.Sprintf("SIG%d", int(s.num))
}

// trappable reports whether the OS permits installing a handler for s.
// SIGKILL and SIGSTOP cannot be caught or ignored.
func (s Signal) trappable() bool {
	return s.num != unix.SIGKILL && s.num != unix.SIGSTOP
}

// defaultSignals returns the broker set installed when no explicit set is
// requested: the classic named signals, excluding
//
//   - SIGKILL, SIGSTOP: not trappable
//   - SIGCHLD: default disposition (ignore) is usually wanted; an
//     application that reaps children registers it explicitly
//   - SIGURG: reserved by the Go runtime for goroutine preemption
//   - SIGSEGV, SIGBUS, SIGFPE, SIGILL, SIGTRAP: synchronous faults that
//     the runtime turns into panics rather than delivering asynchronously
func defaultSignals() []Signal {
	excluded := map[syscall.Signal]struct{}{
		unix.SIGKILL: {},
		unix.SIGSTOP: {},
		unix.SIGCHLD: {},
		unix.SIGURG:  {},
		unix.SIGSEGV: {},
		unix.SIGBUS:  {},
		unix.SIGFPE:  {},
		unix.SIGILL:  {},
		unix.SIGTRAP: {},
	}

	var sigs []Signal
	for n := syscall.Signal(1); n <= 31; n++ {
		if _, skip := excluded[n]; skip {
			continue
		}
		if unix.SignalName(n) == "" {
			continue
		}
		sigs = append(sigs, Signal{num: n})
	}
	return sigs
}
