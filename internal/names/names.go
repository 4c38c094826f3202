// Package names centralizes the DNS/segment/record naming rules from
// spec.md §3/§4.4 so the path resolver, record engine, and HTTP layer agree
// on what is valid.
package names

import "regexp"

var (
	podNameRe       = regexp.MustCompile(`^[a-z0-9-]{2,63}$`)
	streamSegmentRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	recordBodyRe    = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
)

// ValidPod reports whether name is a DNS-safe, globally-unique-candidate
// pod name: lowercase [a-z0-9-]{2,63}.
func ValidPod(name string) bool {
	return podNameRe.MatchString(name)
}

// ValidStreamSegment reports whether segment is a valid path component of a
// stream's materialized path: [A-Za-z0-9_-]+, plus the literal ".config"
// prefix segment reserved for system streams.
func ValidStreamSegment(segment string) bool {
	if segment == ".config" {
		return true
	}
	return streamSegmentRe.MatchString(segment)
}

// ValidRecordName reports whether name matches spec.md's
// ^(?!\.)[A-Za-z0-9._-]+(?<!\.)$ — letters/digits/-_. but not starting or
// ending with a dot. Go's RE2 has no lookaround, so the boundary check is
// done explicitly.
func ValidRecordName(name string) bool {
	if name == "" {
		return false
	}
	if !recordBodyRe.MatchString(name) {
		return false
	}
	return name[0] != '.' && name[len(name)-1] != '.'
}

// IsSystemSegment reports whether segment names a `.config`-rooted system
// stream, which is writable only by the pod owner (spec.md §3, §4.5).
func IsSystemSegment(segment string) bool {
	return segment == ".config"
}
