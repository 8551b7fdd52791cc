package version

// Version is the current version of zman and zman-helper.
// Use semantic versioning: MAJOR.MINOR.PATCH
const Version = "0.4.0"

// Commit is set at build time with -ldflags "-X .../version.Commit=<sha>".
var Commit = ""

// String renders the version with the commit when known.
func String() string {
	if Commit == "" {
		return Version
	}
	return Version + " (" + Commit + ")"
}
