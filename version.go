package daemon

// Version is the current version of the go-daemon library
const Version = "1.0.0"

// VersionInfo contains detailed version information
type VersionInfo struct {
	// Version is the semantic version
	Version string
	// Platform describes the lifecycle primitives in use
	Platform string
}

// GetVersion returns the current version information
func GetVersion() VersionInfo {
	return VersionInfo{
		Version:  Version,
		Platform: "posix-signals/self-pipe",
	}
}
