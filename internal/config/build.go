package config

// Build metadata set with -ldflags, for example:
//
//	go build -ldflags "-X clearskies/internal/config.version=1.4.0 \
//	    -X clearskies/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X clearskies/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/clearskies
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo returns the linker-injected build metadata.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}
