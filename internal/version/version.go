// Package version provides build-time version information.
package version

// Info contains build-time version information injected via ldflags.
type Info struct {
	Version   string // semantic version from git tags
	GitCommit string // short git commit hash
	BuildTime string // build timestamp in RFC3339 format
}

// String renders the info as a single human-readable line.
func (i Info) String() string {
	return i.Version + " (" + i.GitCommit + ", built " + i.BuildTime + ")"
}
