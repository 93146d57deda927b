//go:build linux || darwin

package daemon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"
)

// DefaultGranularity is the fixed sub-interval sleep of the main loop.
// The loop re-checks the termination condition after every granule, so a
// shutdown request is observed within one granule no matter how long the
// configured --sleep interval is.
const DefaultGranularity = 100 * time.Millisecond

// Hook is an extension point invoked at a lifecycle phase boundary.
type Hook func(ctx context.Context, c *Controller) error

// handlerReg is a signal handler registration deferred until Run has
// created the broker registry.
type handlerReg struct {
	name string
	fn   Handler
}

// Controller drives the lifecycle state machine for one long-running
// process:
//
//	ParseArgs → Daemonize? → chdir / → PidFileCreate? → PrivilegedHook →
//	PrivilegeDrop? → PreMain → MainLoop → PostMain → PidFileRemove?
//
// All mutable lifecycle state (broker registry, pending notifications,
// continue flag) is owned by the instance, so independent controllers can
// coexist in one test process.
type Controller struct {
	name    string
	version string
	stdout  io.Writer
	stderr  io.Writer
	workdir string

	signals  []Signal
	handlers []handlerReg

	privileged Hook
	preMain    Hook
	main       Hook
	postMain   Hook

	granularity time.Duration

	cfg     *Config
	log     *slog.Logger
	brokers *BrokerSet
	pidfile *PidFileManager

	// continueFlag moves one way, true to false, within a process
	// lifetime. It is read and written only from the synchronous flow.
	continueFlag bool
}

// ControllerOption configures a Controller
type ControllerOption func(*Controller)

// WithVersion sets the string printed for --version
func WithVersion(v string) ControllerOption {
	return func(c *Controller) {
		c.version = v
	}
}

// WithOutput redirects the streams used for usage, help, and version text
func WithOutput(stdout, stderr io.Writer) ControllerOption {
	return func(c *Controller) {
		c.stdout = stdout
		c.stderr = stderr
	}
}

// WithSignals replaces the default broker signal set
func WithSignals(sigs ...Signal) ControllerOption {
	return func(c *Controller) {
		c.signals = sigs
	}
}

// WithHandler registers fn for the named signal as soon as the broker
// registry exists. An unknown name or nil fn aborts startup: both are
// programmer errors.
func WithHandler(signalName string, fn Handler) ControllerOption {
	return func(c *Controller) {
		c.handlers = append(c.handlers, handlerReg{name: signalName, fn: fn})
	}
}

// WithPrivilegedHook sets the hook run under the original identity,
// before the privilege drop. A returned error aborts startup.
func WithPrivilegedHook(h Hook) ControllerOption {
	return func(c *Controller) {
		c.privileged = h
	}
}

// WithPreMain sets the hook run exactly once before the first loop
// iteration
func WithPreMain(h Hook) ControllerOption {
	return func(c *Controller) {
		c.preMain = h
	}
}

// WithMain sets the main-work hook invoked once per loop iteration
func WithMain(h Hook) ControllerOption {
	return func(c *Controller) {
		c.main = h
	}
}

// WithPostMain sets the hook run exactly once after the loop exits,
// regardless of how it terminated
func WithPostMain(h Hook) ControllerOption {
	return func(c *Controller) {
		c.postMain = h
	}
}

// WithGranularity overrides the termination-check granule
func WithGranularity(d time.Duration) ControllerOption {
	return func(c *Controller) {
		c.granularity = d
	}
}

// WithWorkingDir overrides the directory the controller changes into
// after detaching; the default is the filesystem root so the process
// never pins a mount point. An empty string skips the change.
func WithWorkingDir(dir string) ControllerOption {
	return func(c *Controller) {
		c.workdir = dir
	}
}

// WithLogger supplies a logger directly, bypassing the --log-file and
// --log-level configuration
func WithLogger(log *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.log = log
	}
}

// NewController creates a Controller for the named program and applies
// any provided options.
func NewController(name string, opts ...ControllerOption) *Controller {
	c := &Controller{
		name:         name,
		version:      Version,
		stdout:       os.Stdout,
		stderr:       os.Stderr,
		workdir:      "/",
		granularity:  DefaultGranularity,
		continueFlag: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.granularity <= 0 {
		c.granularity = DefaultGranularity
	}
	return c
}

// Config returns the parsed startup configuration. It is nil before Run
// has parsed arguments.
func (c *Controller) Config() *Config {
	return c.cfg
}

// Brokers returns the signal registry. It is nil before Run has created
// it; hooks may use it to register extra signals (SIGCHLD, for example)
// or to issue multiplexed waits.
func (c *Controller) Brokers() *BrokerSet {
	return c.brokers
}

// Handle registers fn for the named signal. The broker registry must
// exist, so this is valid from hooks onward; earlier registrations go
// through WithHandler.
func (c *Controller) Handle(name string, fn Handler) error {
	if c.brokers == nil {
		return &PhaseError{Phase: PhaseSignals, Err: errors.New("broker registry not initialized")}
	}
	return c.brokers.Handle(name, fn)
}

// RequestShutdown asks the loop to stop at the next termination check.
// The request cannot be withdrawn.
func (c *Controller) RequestShutdown() {
	c.continueFlag = false
}

// ShouldContinue drains pending signal notifications, dispatching those
// with handlers, and reports whether the loop should keep iterating. A
// drained signal without a handler requests shutdown; handled signals do
// not. The result is false in single-shot mode regardless of the flag.
func (c *Controller) ShouldContinue() bool {
	if c.brokers != nil {
		_, unhandled := c.brokers.DrainDispatch()
		if len(unhandled) > 0 {
			if c.log != nil {
				c.log.Info("shutdown requested by signal", "signal", unhandled[0].String())
			}
			c.RequestShutdown()
		}
	}
	once := c.cfg != nil && c.cfg.Once
	return c.continueFlag && !once
}

// Run executes the full lifecycle and returns the process exit code.
func (c *Controller) Run(ctx context.Context, args []string) int {
	cfg, err := ParseArgs(c.name, c.version, args, c.stdout, c.stderr)
	switch {
	case errors.Is(err, ErrHelpRequested) || errors.Is(err, ErrVersionRequested):
		return ExitOK
	case err != nil:
		return ExitUsage
	}
	c.cfg = cfg

	if c.log == nil {
		if cfg.LogFile != "" {
			logger, closer := NewFileLogger(cfg.LogFile, cfg.Level)
			defer func() { _ = closer.Close() }()
			c.log = logger
		} else {
			c.log = slog.New(NewLogHandler(c.stderr, cfg.Level))
		}
	}

	if cfg.Daemonize {
		parent, err := daemonize()
		if err != nil {
			c.log.Error("daemonize failed", "error", err)
			return 1
		}
		if parent {
			// intermediate detach stage; the respawned child carries on
			return ExitOK
		}
		c.log.Debug("detached from controlling terminal", "pid", os.Getpid())
	}

	if c.workdir != "" {
		if err := os.Chdir(c.workdir); err != nil {
			c.log.Error("chdir failed", "dir", c.workdir, "error", err)
			return 1
		}
	}

	brokers, err := NewBrokerSet(c.log, c.signals...)
	if err != nil {
		c.log.Error("signal broker setup failed", "error", err)
		return 1
	}
	c.brokers = brokers
	defer brokers.Close()

	for _, reg := range c.handlers {
		if err := brokers.Handle(reg.name, reg.fn); err != nil {
			c.log.Error("handler registration failed", "signal", reg.name, "error", err)
			return 1
		}
	}

	c.pidfile = NewPidFileManager(c.log)
	if cfg.PidFile != "" {
		if err := c.pidfile.Create(cfg.PidFile); err != nil {
			c.log.Error("pidfile create failed", "error", err)
			return exitCode(err)
		}
		defer c.pidfile.Remove(cfg.PidFile)
	}

	if c.privileged != nil {
		if err := c.privileged(ctx, c); err != nil {
			c.log.Error("privileged hook failed", "error", err)
			return 1
		}
	}

	if cfg.Identity != nil {
		if err := dropPrivileges(cfg.Identity); err != nil {
			c.log.Error("privilege drop failed", "error", err)
			return 1
		}
		c.log.Info("privileges dropped",
			"user", cfg.Identity.Username, "uid", cfg.Identity.UID, "gid", cfg.Identity.GID)
	}

	if cfg.PidFile != "" {
		guardStop, err := pidfileGuard(ctx, c.log, cfg.PidFile)
		if err != nil {
			c.log.Warn("pidfile guard unavailable", "error", err)
		} else {
			defer func() { _ = guardStop() }()
		}
	}

	c.runLoop(ctx)
	return ExitOK
}

// runLoop executes PreMain once, the iteration body until the
// termination check fails (exactly once in single-shot mode), and
// PostMain once. The body is the main hook followed by the granulated
// inter-iteration sleep.
func (c *Controller) runLoop(ctx context.Context) {
	if c.preMain != nil {
		if err := c.preMain(ctx, c); err != nil {
			c.log.Error("pre-main hook failed", "error", err)
			c.RequestShutdown()
		}
	}

	for {
		if c.main != nil {
			if err := c.main(ctx, c); err != nil {
				c.log.Error("main hook failed", "error", err)
				c.RequestShutdown()
			}
		}

		deadline := time.Now().Add(c.cfg.Sleep)
		for c.observeCancel(ctx) && c.ShouldContinue() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				break
			}
			granule := c.granularity
			if remaining < granule {
				granule = remaining
			}
			time.Sleep(granule)
		}

		if !c.observeCancel(ctx) || !c.ShouldContinue() {
			break
		}
	}

	if c.postMain != nil {
		if err := c.postMain(ctx, c); err != nil {
			c.log.Error("post-main hook failed", "error", err)
		}
	}
}

// observeCancel folds context cancellation into the one-way continue
// flag and reports whether the loop may keep going.
func (c *Controller) observeCancel(ctx context.Context) bool {
	if ctx.Err() != nil {
		c.RequestShutdown()
		return false
	}
	return true
}
