package daemon

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/user"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
)

// DefaultSleepSeconds is the inter-iteration interval used when --sleep
// is not given.
const DefaultSleepSeconds = 5.0

// Parse outcomes that are not errors but still end startup.
var (
	// ErrHelpRequested reports that usage text was printed
	ErrHelpRequested = errors.New("daemon: help requested")
	// ErrVersionRequested reports that the version was printed
	ErrVersionRequested = errors.New("daemon: version requested")
)

// Identity is a resolved system user for the privilege drop.
type Identity struct {
	// Username is the login name, exported to USER after the drop
	Username string
	// UID and GID are the numeric user and primary group ids
	UID int
	GID int
	// Groups are the supplementary group ids
	Groups []int
	// Home is the home directory, exported to HOME after the drop
	Home string
}

// Config is the parsed startup configuration.
type Config struct {
	// Daemonize detaches the process into the background
	Daemonize bool
	// Once runs the main-loop body exactly once
	Once bool
	// PidFile enables the single-instance guard at this path
	PidFile string
	// Sleep is the inter-iteration interval
	Sleep time.Duration
	// Identity, when non-nil, is the target of the privilege drop
	Identity *Identity
	// LogFile, when set, sends logs to a rotating file instead of stderr
	LogFile string
	// Level is the minimum log level
	Level slog.Level
}

// fileConfig mirrors Config for the optional TOML file. Pointer fields
// distinguish "absent" from zero values; explicit command-line flags win
// over file values.
type fileConfig struct {
	Daemonize *bool    `toml:"daemonize"`
	Once      *bool    `toml:"once"`
	PidFile   *string  `toml:"pid_file"`
	Sleep     *float64 `toml:"sleep"`
	User      *string  `toml:"user"`
	Verbose   *bool    `toml:"verbose"`
	LogFile   *string  `toml:"log_file"`
	LogLevel  *string  `toml:"log_level"`
}

// normalizeArgs rewrites the legacy "-?" help spelling, which pflag
// cannot express as a shorthand.
func normalizeArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if a == "-?" {
			a = "--help"
		}
		out[i] = a
	}
	return out
}

// ParseArgs parses command-line arguments into a Config. Help and version
// requests print to stdout and return ErrHelpRequested or
// ErrVersionRequested. Parse and validation failures print the error and
// usage text to stderr and return a PhaseError; the caller maps all three
// to their exit codes.
func ParseArgs(name, version string, args []string, stdout, stderr io.Writer) (*Config, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SortFlags = false

	help := fs.BoolP("help", "h", false, "print this help and exit")
	daemonize := fs.BoolP("daemonize", "d", false, "detach into the background")
	once := fs.Bool("once", false, "run the main-loop body exactly once")
	pidFile := fs.String("pid-file", "", "enable the single-instance guard at `FILE`")
	sleep := fs.Float64("sleep", DefaultSleepSeconds, "seconds between main-loop iterations")
	userName := fs.String("user", "", "drop privileges to `USER` after privileged setup")
	verbose := fs.BoolP("verbose", "v", false, "log at debug level")
	showVersion := fs.BoolP("version", "V", false, "print version and exit")
	configFile := fs.String("config", "", "read settings from a TOML `FILE`")
	logFile := fs.String("log-file", "", "write logs to a rotating `FILE` instead of stderr")
	logLevel := fs.String("log-level", "info", "minimum log level (debug, info, warn, error)")

	usage := func(w io.Writer) {
		fmt.Fprintf(w, "Usage: %s [flags]\n\nFlags:\n%s", name, fs.FlagUsages())
	}
	fs.Usage = func() { usage(stderr) }

	fail := func(err error) (*Config, error) {
		fmt.Fprintf(stderr, "%s: %v\n", name, err)
		usage(stderr)
		return nil, &PhaseError{Phase: PhaseParseArgs, Err: err}
	}

	if err := fs.Parse(normalizeArgs(args)); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, ErrHelpRequested
		}
		return fail(err)
	}

	if *help {
		usage(stdout)
		return nil, ErrHelpRequested
	}
	if *showVersion {
		fmt.Fprintf(stdout, "%s %s\n", name, version)
		return nil, ErrVersionRequested
	}

	if *configFile != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(*configFile, &fc); err != nil {
			return fail(fmt.Errorf("config file: %w", err))
		}
		merge := func(flag string, apply func()) {
			if !fs.Changed(flag) {
				apply()
			}
		}
		if fc.Daemonize != nil {
			merge("daemonize", func() { *daemonize = *fc.Daemonize })
		}
		if fc.Once != nil {
			merge("once", func() { *once = *fc.Once })
		}
		if fc.PidFile != nil {
			merge("pid-file", func() { *pidFile = *fc.PidFile })
		}
		if fc.Sleep != nil {
			merge("sleep", func() { *sleep = *fc.Sleep })
		}
		if fc.User != nil {
			merge("user", func() { *userName = *fc.User })
		}
		if fc.Verbose != nil {
			merge("verbose", func() { *verbose = *fc.Verbose })
		}
		if fc.LogFile != nil {
			merge("log-file", func() { *logFile = *fc.LogFile })
		}
		if fc.LogLevel != nil {
			merge("log-level", func() { *logLevel = *fc.LogLevel })
		}
	}

	if *sleep < 0 {
		return fail(fmt.Errorf("negative sleep interval %v", *sleep))
	}

	level, err := ParseLevel(*logLevel)
	if err != nil {
		return fail(err)
	}
	if *verbose {
		level = slog.LevelDebug
	}

	cfg := &Config{
		Daemonize: *daemonize,
		Once:      *once,
		PidFile:   *pidFile,
		Sleep:     time.Duration(*sleep * float64(time.Second)),
		LogFile:   *logFile,
		Level:     level,
	}

	if *userName != "" {
		id, err := resolveIdentity(*userName)
		if err != nil {
			return fail(err)
		}
		cfg.Identity = id
	}

	return cfg, nil
}

// resolveIdentity looks up a login name and resolves its numeric ids.
// Unresolvable names are rejected at parse time so a misconfigured drop
// target never reaches the privileged phases.
func resolveIdentity(name string) (*Identity, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("unknown user %q", name)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return nil, fmt.Errorf("non-numeric uid %q for user %q", u.Uid, name)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return nil, fmt.Errorf("non-numeric gid %q for user %q", u.Gid, name)
	}

	groups := []int{gid}
	if ids, err := u.GroupIds(); err == nil {
		groups = groups[:0]
		for _, g := range ids {
			n, err := strconv.Atoi(g)
			if err != nil {
				continue
			}
			groups = append(groups, n)
		}
		if len(groups) == 0 {
			groups = []int{gid}
		}
	}

	return &Identity{
		Username: u.Username,
		UID:      uid,
		GID:      gid,
		Groups:   groups,
		Home:     u.HomeDir,
	}, nil
}
