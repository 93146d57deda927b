//go:build linux || darwin

package daemon

import (
	"fmt"
	"log/slog"
	"reflect"
	"syscall"
)

// Handler is a callback invoked synchronously with the signal that
// triggered it. Handlers run at drain points in normal execution context,
// never in interrupt context, so they may allocate, log, and block.
type Handler func(Signal)

// Broker owns the ordered handler list for one signal. Brokers are
// created through a BrokerSet, at most one per distinct signal.
type Broker struct {
	sig      Signal
	handlers []Handler
}

// Signal returns the signal this broker dispatches.
func (b *Broker) Signal() Signal {
	return b.sig
}

// add appends fn unless the same function is already registered.
// Identity is the function's code pointer: registering a named function
// or a stored value twice is a no-op. Closures built from the same
// literal share a code pointer and are therefore indistinguishable here.
func (b *Broker) add(fn Handler) {
	ptr := reflect.ValueOf(fn).Pointer()
	for _, h := range b.handlers {
		if reflect.ValueOf(h).Pointer() == ptr {
			return
		}
	}
	b.handlers = append(b.handlers, fn)
}

// BrokerSet is the signal registry for one lifecycle instance. All
// brokers share a single notifier pipe. The registry itself is not
// goroutine-safe: registration and dispatch belong to the one synchronous
// control flow, per the lifecycle's concurrency model.
type BrokerSet struct {
	n       *notifier
	brokers map[syscall.Signal]*Broker
	log     *slog.Logger
}

// NewBrokerSet creates brokers for the given signals, or for the default
// set (see defaultSignals) when none are given. Close must be called to
// release the notifier pipe.
func NewBrokerSet(log *slog.Logger, sigs ...Signal) (*BrokerSet, error) {
	if log == nil {
		log = slog.Default()
	}
	n, err := newNotifier()
	if err != nil {
		return nil, err
	}
	bs := &BrokerSet{
		n:       n,
		brokers: make(map[syscall.Signal]*Broker),
		log:     log,
	}
	if len(sigs) == 0 {
		sigs = defaultSignals()
	}
	for _, sig := range sigs {
		bs.Register(sig)
	}
	return bs, nil
}

// Register creates the broker for sig if one does not already exist.
// Re-registration is a no-op, and untrappable signals (SIGKILL, SIGSTOP)
// are dropped silently.
func (bs *BrokerSet) Register(sig Signal) {
	if !sig.trappable() {
		bs.log.Debug("dropping untrappable signal", "signal", sig.String())
		return
	}
	if _, ok := bs.brokers[sig.Num()]; ok {
		return
	}
	bs.brokers[sig.Num()] = &Broker{sig: sig}
	bs.n.notify(sig)
}

// Handle registers fn to run when name's signal is dispatched. It returns
// ErrUnknownSignal if name does not resolve to a registered broker and
// ErrNilHandler for a nil fn; both indicate programmer error. A handler
// already present on the broker is not added again.
func (bs *BrokerSet) Handle(name string, fn Handler) error {
	sig, err := LookupSignal(name)
	if err != nil {
		return err
	}
	b, ok := bs.brokers[sig.Num()]
	if !ok {
		return fmt.Errorf("%w: no broker for %s", ErrUnknownSignal, sig)
	}
	if fn == nil {
		return fmt.Errorf("%w: %s", ErrNilHandler, sig)
	}
	b.add(fn)
	return nil
}

// DrainDispatch consumes every pending notification without blocking.
// Each notification with at least one handler invokes all of that
// broker's handlers in registration order and is reported as handled;
// notifications without handlers are reported as unhandled. Both slices
// preserve arrival order.
func (bs *BrokerSet) DrainDispatch() (handled, unhandled []Signal) {
	for _, raw := range bs.n.drain() {
		b, ok := bs.brokers[raw]
		if !ok || len(b.handlers) == 0 {
			sig := SignalFromNum(raw)
			bs.log.Debug("signal without handler", "signal", sig.String())
			unhandled = append(unhandled, sig)
			continue
		}
		for _, h := range b.handlers {
			h(b.sig)
		}
		handled = append(handled, b.sig)
	}
	return handled, unhandled
}

// Close unsubscribes every broker from OS delivery and releases the
// shared notifier pipe. The BrokerSet must not be used afterwards.
func (bs *BrokerSet) Close() {
	bs.n.close()
}
