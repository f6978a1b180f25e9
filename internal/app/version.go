package app

import "github.com/maloquacious/semver"

var version = semver.Version{Minor: 1, PreRelease: "alpha", Build: semver.Commit()}

// Version returns the build version of workledger.
func Version() semver.Version {
	return version
}
