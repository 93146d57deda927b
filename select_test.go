package daemon

import (
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestSelectReportsReadyDescriptor(t *testing.T) {
	bs := newTestBrokerSet(t, SignalFromNum(unix.SIGUSR1))

	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer pr.Close()
	defer pw.Close()

	if _, err := pw.Write([]byte{'x'}); err != nil {
		t.Fatal(err)
	}

	r, w, e, err := bs.Select([]int{int(pr.Fd())}, nil, nil, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if len(r) != 1 || r[0] != int(pr.Fd()) {
		t.Errorf("ready read fds = %v, want [%d]", r, pr.Fd())
	}
	if len(w) != 0 || len(e) != 0 {
		t.Errorf("unexpected write/except readiness: %v %v", w, e)
	}
}

func TestSelectTimesOut(t *testing.T) {
	bs := newTestBrokerSet(t, SignalFromNum(unix.SIGUSR1))

	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer pr.Close()
	defer pw.Close()

	start := time.Now()
	r, _, _, err := bs.Select([]int{int(pr.Fd())}, nil, nil, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if len(r) != 0 {
		t.Errorf("ready read fds = %v, want none", r)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("select returned after %v, before the timeout", elapsed)
	}
}

func TestSelectWakesOnNotificationAndStripsPipe(t *testing.T) {
	bs := newTestBrokerSet(t, SignalFromNum(unix.SIGUSR1))

	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer pr.Close()
	defer pw.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = unix.Write(bs.n.w, []byte{byte(unix.SIGUSR1)})
	}()

	start := time.Now()
	r, _, _, err := bs.Select([]int{int(pr.Fd())}, nil, nil, 10*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("select did not wake on notification (took %v)", elapsed)
	}

	// The notification pipe is stripped from the results and not drained.
	if len(r) != 0 {
		t.Errorf("ready read fds = %v, want none", r)
	}
	handled, unhandled := bs.DrainDispatch()
	if len(handled)+len(unhandled) != 1 {
		t.Errorf("notification consumed by Select: handled=%v unhandled=%v", handled, unhandled)
	}
}

func TestSelectRejectsOutOfRangeDescriptor(t *testing.T) {
	bs := newTestBrokerSet(t, SignalFromNum(unix.SIGUSR1))

	if _, _, _, err := bs.Select([]int{-1}, nil, nil, 0); err == nil {
		t.Error("negative descriptor accepted")
	}
	if _, _, _, err := bs.Select([]int{1 << 20}, nil, nil, 0); err == nil {
		t.Error("oversized descriptor accepted")
	}
}
