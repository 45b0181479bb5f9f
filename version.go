package ivbridge

import (
	"fmt"
)

// Version represents a contract version with major, minor, and patch
// components. Minor and Patch may be -1 if not specified (e.g., "1" parses
// as {1, -1, -1}).
type Version struct {
	// Major changes break the conversion contract.
	Major int

	// Minor is the minor version number (-1 if not specified).
	Minor int

	// Patch is the patch version number (-1 if not specified).
	Patch int
}

// ParseVersion parses a version string into a Version struct.
// Accepts formats: "X.Y.Z", "X.Y", or "X". Any trailing text is ignored.
//
// Examples:
//   - "1.2.3" -> {1, 2, 3}
//   - "1.2" -> {1, 2, -1}
//   - "1" -> {1, -1, -1}
//   - "2.1.0-beta" -> {2, 1, 0}
func ParseVersion(versionStr string) (Version, error) {
	version := Version{
		Minor: -1,
		Patch: -1,
	}
	_, err := fmt.Sscanf(versionStr, "%d.%d.%d", &version.Major, &version.Minor, &version.Patch)
	if err != nil {
		version.Minor, version.Patch = -1, -1
		_, err = fmt.Sscanf(versionStr, "%d.%d", &version.Major, &version.Minor)
		if err != nil {
			version.Minor = -1
			_, err = fmt.Sscanf(versionStr, "%d", &version.Major)
			if err != nil {
				return Version{}, fmt.Errorf("error parsing version: %v", err)
			}
		}
	}
	if version.Major < 0 || version.Minor < -1 || version.Patch < -1 {
		return Version{}, fmt.Errorf("invalid version: %s", versionStr)
	}
	return version, nil
}

// MustParseVersion is ParseVersion for literals; it panics on error.
func MustParseVersion(versionStr string) Version {
	v, err := ParseVersion(versionStr)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare returns -1 if v < other, 0 if v == other, or 1 if v > other.
// Comparison is done component by component (major, then minor, then patch).
func (v Version) Compare(other Version) int {
	switch {
	case v.Major != other.Major:
		return cmpInt(v.Major, other.Major)
	case v.Minor != other.Minor:
		return cmpInt(v.Minor, other.Minor)
	default:
		return cmpInt(v.Patch, other.Patch)
	}
}

// CompatibleWith reports whether a backend built against v can serve a
// host expecting contract version host.
func (v Version) CompatibleWith(host Version) bool {
	return v.Major == host.Major
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// String returns the version as a string, omitting unspecified components.
// Examples: "1.2.3", "1.2", "1"
func (v Version) String() string {
	if v.Patch != -1 {
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	}
	if v.Minor != -1 {
		return fmt.Sprintf("%d.%d", v.Major, v.Minor)
	}
	return fmt.Sprintf("%d", v.Major)
}
