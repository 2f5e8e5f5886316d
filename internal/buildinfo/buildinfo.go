// Package buildinfo holds the running binary's version metadata, set via
// linker flags at build time, grounded on the teacher's cmd/nexus ldflags
// convention:
//
//	go build -ldflags "-X github.com/noble1911/butler/internal/buildinfo.Version=v1.0.0 \
//	  -X github.com/noble1911/butler/internal/buildinfo.Commit=$(git rev-parse HEAD) \
//	  -X github.com/noble1911/butler/internal/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package buildinfo

var (
	// Version is the semantic version of this build (e.g. "v1.0.0").
	Version = "dev"
	// Commit is the git commit SHA this build was produced from.
	Commit = "none"
	// Date is the UTC build timestamp.
	Date = "unknown"
)

// String renders the three fields as a single human-readable line.
func String() string {
	return Version + " (" + Commit + ", built " + Date + ")"
}
