//go:build linux || darwin

package daemon

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/axondata/go-daemon/internal/unixfd"
)

// Select blocks on the given descriptor sets like select(2), with the
// notification pipe added to the read set first so any signal arrival
// interrupts the wait immediately. The pipe is stripped from the
// reported-ready descriptors before they are returned; the pending
// notifications themselves are not consumed here, that remains
// DrainDispatch's job. A negative timeout blocks indefinitely.
func (bs *BrokerSet) Select(read, write, except []int, timeout time.Duration) (r, w, e []int, err error) {
	pipeFd := bs.n.readFd()

	var rs, ws, es unix.FdSet
	nfds := 0
	fill := func(set *unix.FdSet, fds []int) error {
		for _, fd := range fds {
			if fd < 0 || fd >= unixfd.SetSize {
				return &PhaseError{
					Phase: PhaseSignals,
					Err:   fmt.Errorf("descriptor %d outside select range", fd),
				}
			}
			set.Set(fd)
			if fd >= nfds {
				nfds = fd + 1
			}
		}
		return nil
	}
	arm := func() error {
		rs.Zero()
		ws.Zero()
		es.Zero()
		nfds = 0
		if err := fill(&rs, read); err != nil {
			return err
		}
		if err := fill(&ws, write); err != nil {
			return err
		}
		if err := fill(&es, except); err != nil {
			return err
		}
		return fill(&rs, []int{pipeFd})
	}
	if err := arm(); err != nil {
		return nil, nil, nil, err
	}

	var tv *unix.Timeval
	if timeout >= 0 {
		t := unix.NsecToTimeval(timeout.Nanoseconds())
		tv = &t
	}

	for {
		_, serr := unix.Select(nfds, &rs, &ws, &es, tv)
		if serr == unix.EINTR {
			// fd sets are undefined after an interrupted select
			if err := arm(); err != nil {
				return nil, nil, nil, err
			}
			continue
		}
		if serr != nil {
			return nil, nil, nil, &PhaseError{Phase: PhaseSignals, Err: serr}
		}
		break
	}

	for _, fd := range read {
		if fd != pipeFd && rs.IsSet(fd) {
			r = append(r, fd)
		}
	}
	for _, fd := range write {
		if ws.IsSet(fd) {
			w = append(w, fd)
		}
	}
	for _, fd := range except {
		if es.IsSet(fd) {
			e = append(e, fd)
		}
	}
	return r, w, e, nil
}
