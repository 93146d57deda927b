//go:build !(linux || darwin)

package daemon

// daemonize is unsupported on platforms without Unix session semantics.
func daemonize() (bool, error) {
	return false, &PhaseError{Phase: PhaseDaemonize, Err: ErrUnsupported}
}
