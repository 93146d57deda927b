package daemon

import (
	"os"
	"testing"
)

func TestDaemonizeFinalStageIsNoop(t *testing.T) {
	// Stage 2 is the fully detached process; it must carry on without
	// respawning again.
	t.Setenv(detachStageEnv, "2")

	parent, err := daemonize()
	if err != nil {
		t.Fatal(err)
	}
	if parent {
		t.Error("final stage asked to exit")
	}

	// The marker must not leak into the daemon's children, or a child
	// running the same detach sequence would skip it.
	if v, ok := os.LookupEnv(detachStageEnv); ok {
		t.Errorf("stage marker still set after detach: %q", v)
	}
}
