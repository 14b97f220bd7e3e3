package config

// Build metadata variables populated at link time via:
//
//	go build -ldflags "-X subtrack/internal/config.version=v1.2.3 ..."
//
// They default to "dev" values for local builds.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo returns the build metadata injected at link time.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}
