//go:build linux || darwin

package daemon

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// notifierChanDepth is the buffer of the os/signal delivery channel. It
// only needs to absorb bursts between forwarder wakeups; the pipe behind
// it is the durable queue.
const notifierChanDepth = 128

// notifier is the async-signal-safe delivery primitive shared by all
// brokers: a pipe whose write end receives exactly one byte (the signal
// number) per delivered signal. OS delivery arrives on an os/signal
// channel; the forward goroutine does nothing beyond the pipe write, so
// all real work happens later at a synchronous drain point. The pipe read
// end doubles as the wakeup descriptor for multiplexed waits.
type notifier struct {
	r, w    int
	ch      chan os.Signal
	done    chan struct{}
	stopped chan struct{}
}

func newNotifier() (*notifier, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, &PhaseError{Phase: PhaseSignals, Err: err}
	}
	// Only the read end is nonblocking: draining must never stall, while
	// the forwarder may safely block on a full pipe.
	if err := unix.SetNonblock(fds[0], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, &PhaseError{Phase: PhaseSignals, Err: err}
	}
	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])

	n := &notifier{
		r:       fds[0],
		w:       fds[1],
		ch:      make(chan os.Signal, notifierChanDepth),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go n.forward()
	return n, nil
}

// forward moves deliveries from the os/signal channel into the pipe, one
// byte per signal. It performs no logging, allocation beyond the stack
// buffer, or handler work.
func (n *notifier) forward() {
	defer close(n.stopped)
	var buf [1]byte
	for {
		select {
		case sig := <-n.ch:
			num, ok := sig.(syscall.Signal)
			if !ok {
				continue
			}
			buf[0] = byte(num)
			for {
				_, err := unix.Write(n.w, buf[:])
				if err != unix.EINTR {
					break
				}
			}
		case <-n.done:
			return
		}
	}
}

// notify subscribes the notifier to OS delivery of sig.
func (n *notifier) notify(sig Signal) {
	signal.Notify(n.ch, sig.Num())
}

// drain reads every pending notification without blocking. Arrival order
// is preserved.
func (n *notifier) drain() []syscall.Signal {
	var out []syscall.Signal
	var buf [64]byte
	for {
		nr, err := unix.Read(n.r, buf[:])
		if nr > 0 {
			for _, b := range buf[:nr] {
				out = append(out, syscall.Signal(b))
			}
		}
		if err == unix.EINTR {
			continue
		}
		if nr <= 0 {
			return out
		}
	}
}

// readFd returns the descriptor a multiplexed wait adds to its read set.
func (n *notifier) readFd() int {
	return n.r
}

// close unsubscribes from OS delivery, stops the forwarder, and releases
// the pipe.
func (n *notifier) close() {
	signal.Stop(n.ch)
	close(n.done)
	<-n.stopped
	unix.Close(n.r)
	unix.Close(n.w)
}
