package version

// Version is the sitegen release, set at build time:
// go build -ldflags "-X git.home.luguber.info/inful/sitegen/internal/version.Version=v0.3.0".
var Version = "dev"

// Build metadata, set the same way.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String formats the version for --version.
func String() string {
	if GitCommit == "unknown" {
		return Version
	}
	return Version + " (" + GitCommit + ", " + BuildTime + ")"
}
