// Package daemon provides a process-lifecycle framework for long-running
// background services on Unix-like systems: startup configuration,
// optional detachment into the background, a pidfile guard against
// duplicate instances, privilege drop after privileged setup, a polling
// main loop, and safe delivery of OS signals to registered handlers.
//
// The core type is the Controller, which drives the lifecycle state
// machine and invokes application hooks at each phase boundary:
//
//	ctrl := daemon.NewController("myservice",
//	    daemon.WithMain(func(ctx context.Context, c *daemon.Controller) error {
//	        // one unit of work per iteration
//	        return nil
//	    }),
//	    daemon.WithHandler("HUP", func(sig daemon.Signal) {
//	        // reload configuration
//	    }),
//	)
//	os.Exit(ctrl.Run(context.Background(), os.Args[1:]))
//
// # Signal dispatch
//
// Signal delivery is captured through a shared self-pipe: the only work
// performed on the delivery path is one byte written into the pipe.
// Handlers run later, synchronously, when the loop drains the pipe at a
// termination check (or when the application calls DrainDispatch
// directly). A drained signal with no registered handler requests a
// graceful shutdown: the loop exits, the post-main hook runs, and the
// pidfile is removed.
//
// The pipe's read end also participates in BrokerSet.Select, so an
// application blocked on its own descriptors wakes immediately when a
// signal arrives.
//
// # Single-instance guard
//
// With --pid-file set, the Controller refuses to start while the file
// names a live process, overwrites stale files from dead instances, and
// on the way out removes the file only if it still holds its own pid.
//
// # Design Philosophy
//
// This library prioritizes:
//
//   - No work in interrupt context beyond one atomic pipe write
//   - Explicit, per-instance state (no package-level registries)
//   - Strict phase ordering, in particular privileged setup before the
//     irreversible privilege drop
//   - Stable process exit codes usable from init scripts
//
// Daemonization uses staged re-execution rather than fork, which is the
// closest safe equivalent under the Go runtime; on non-Unix platforms it
// reports ErrUnsupported.
package daemon
