package semver

import (
	"fmt"
)

// Semver is the major/minor/patch triple advertised by upstream APIs
type Semver struct {
	Major uint32
	Minor uint32
	Patch uint32
}

// NewSemver creates a new Semver
func NewSemver(major, minor, patch uint32) Semver {
	return Semver{Major: major, Minor: minor, Patch: patch}
}

// FromBitcoindVersion converts the integer version reported by bitcoind's
// getnetworkinfo (e.g. 250100 for 25.1.0, 170100 for 0.17.1) to a Semver.
func FromBitcoindVersion(v int32) Semver {
	major := uint32(v / 10000)
	minor := uint32(v/100) % 100
	patch := uint32(v % 100)
	// Releases before 22.0 were numbered 0.x.y
	if major < 22 {
		return NewSemver(0, major, minor)
	}
	return NewSemver(major, minor, patch)
}

// String returns the string representation
func (s Semver) String() string {
	return fmt.Sprintf("%d.%d.%d", s.Major, s.Minor, s.Patch)
}

// AtLeast reports whether s >= min
func (s Semver) AtLeast(min Semver) bool {
	if s.Major != min.Major {
		return s.Major > min.Major
	}
	if s.Minor != min.Minor {
		return s.Minor > min.Minor
	}
	return s.Patch >= min.Patch
}

// AnyCompatible checks if nodeVer is compatible with any of the given versions
// Compatibility is based on major version only (semver rules)
func AnyCompatible(compatible []Semver, nodeVer Semver) bool {
	for _, v := range compatible {
		if v.Major == nodeVer.Major {
			return true
		}
	}
	return false
}
