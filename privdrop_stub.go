//go:build !(linux || darwin)

package daemon

// dropPrivileges is unsupported on platforms without Unix credentials.
func dropPrivileges(*Identity) error {
	return &PhaseError{Phase: PhasePrivDrop, Err: ErrUnsupported}
}
