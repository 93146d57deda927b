package daemon

import (
	"errors"
	"testing"

	"golang.org/x/sys/unix"
)

func TestLookupSignalCanonicalization(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Signal
	}{
		{"bare lowercase", "hup", SignalFromNum(unix.SIGHUP)},
		{"bare uppercase", "HUP", SignalFromNum(unix.SIGHUP)},
		{"full name", "SIGHUP", SignalFromNum(unix.SIGHUP)},
		{"mixed case", "Term", SignalFromNum(unix.SIGTERM)},
		{"surrounding space", "  usr1 ", SignalFromNum(unix.SIGUSR1)},
		{"interrupt", "INT", SignalFromNum(unix.SIGINT)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LookupSignal(tt.in)
			if err != nil {
				t.Fatalf("LookupSignal(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("LookupSignal(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLookupSignalUnknown(t *testing.T) {
	for _, name := range []string{"", "NOSUCHSIG", "SIGBOGUS", "42"} {
		if _, err := LookupSignal(name); !errors.Is(err, ErrUnknownSignal) {
			t.Errorf("LookupSignal(%q) error = %v, want ErrUnknownSignal", name, err)
		}
	}
}

func TestSignalString(t *testing.T) {
	if got := SignalFromNum(unix.SIGTERM).String(); got != "SIGTERM" {
		t.Errorf("String() = %q, want %q", got, "SIGTERM")
	}
}

func TestDefaultSignalsExclusions(t *testing.T) {
	excluded := []Signal{
		SignalFromNum(unix.SIGKILL),
		SignalFromNum(unix.SIGSTOP),
		SignalFromNum(unix.SIGCHLD),
		SignalFromNum(unix.SIGURG),
		SignalFromNum(unix.SIGSEGV),
	}

	sigs := defaultSignals()
	if len(sigs) == 0 {
		t.Fatal("defaultSignals returned nothing")
	}

	set := make(map[Signal]struct{}, len(sigs))
	for _, s := range sigs {
		set[s] = struct{}{}
	}

	for _, ex := range excluded {
		if _, ok := set[ex]; ok {
			t.Errorf("default set includes %v", ex)
		}
	}
	for _, want := range []Signal{
		SignalFromNum(unix.SIGHUP),
		SignalFromNum(unix.SIGTERM),
		SignalFromNum(unix.SIGUSR1),
		SignalFromNum(unix.SIGUSR2),
		SignalFromNum(unix.SIGINT),
	} {
		if _, ok := set[want]; !ok {
			t.Errorf("default set missing %v", want)
		}
	}
}

func TestTrappable(t *testing.T) {
	if SignalFromNum(unix.SIGKILL).trappable() {
		t.Error("SIGKILL reported trappable")
	}
	if SignalFromNum(unix.SIGSTOP).trappable() {
		t.Error("SIGSTOP reported trappable")
	}
	if !SignalFromNum(unix.SIGHUP).trappable() {
		t.Error("SIGHUP reported untrappable")
	}
}
