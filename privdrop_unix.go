//go:build linux || darwin

package daemon

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// dropPrivileges permanently reduces the process identity to id. The
// order is load-bearing: supplementary groups first, then the group id,
// then the user id — once the uid is dropped the process can no longer
// change its groups. HOME and USER are updated afterwards so child
// processes and library code reading them observe the new identity.
func dropPrivileges(id *Identity) error {
	if err := unix.Setgroups(id.Groups); err != nil {
		return &PhaseError{Phase: PhasePrivDrop, Err: fmt.Errorf("setgroups: %w", err)}
	}
	if err := unix.Setgid(id.GID); err != nil {
		return &PhaseError{Phase: PhasePrivDrop, Err: fmt.Errorf("setgid %d: %w", id.GID, err)}
	}
	if err := unix.Setuid(id.UID); err != nil {
		return &PhaseError{Phase: PhasePrivDrop, Err: fmt.Errorf("setuid %d: %w", id.UID, err)}
	}
	if err := os.Setenv("HOME", id.Home); err != nil {
		return &PhaseError{Phase: PhasePrivDrop, Err: err}
	}
	if err := os.Setenv("USER", id.Username); err != nil {
		return &PhaseError{Phase: PhasePrivDrop, Err: err}
	}
	return nil
}
