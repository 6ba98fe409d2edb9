package topic

import "strings"

// Topic names one independent event stream of a bus.
type Topic string

// Wildcard constants for pattern matching.
const (
	// WildcardSingle matches exactly one segment.
	WildcardSingle = "*"

	// WildcardMulti matches zero or more segments.
	WildcardMulti = "**"

	// Separator is the character used to separate topic segments.
	Separator = "."
)

// String returns the topic as a string.
func (t Topic) String() string {
	return string(t)
}

// Segments returns the topic split by the separator.
// The empty topic has a single empty segment so that it can still be
// selected by "*" and "**".
func (t Topic) Segments() []string {
	return strings.Split(string(t), Separator)
}

// IsWildcard returns true if the topic contains any wildcard segment.
func (t Topic) IsWildcard() bool {
	for _, seg := range t.Segments() {
		if seg == WildcardSingle || seg == WildcardMulti {
			return true
		}
	}
	return false
}

// Matches returns true if this topic matches the given pattern.
func (t Topic) Matches(pattern Topic) bool {
	return Compile(string(pattern)).Match(string(t))
}

// Join joins multiple segments into a topic.
func Join(segments ...string) Topic {
	return Topic(strings.Join(segments, Separator))
}

// Pattern is a pre-split topic pattern.
type Pattern struct {
	raw      string
	segments []string
}

// Compile splits a pattern once for repeated matching.
// The empty pattern and "**" both match every topic.
func Compile(pattern string) Pattern {
	if pattern == "" {
		pattern = WildcardMulti
	}
	return Pattern{raw: pattern, segments: strings.Split(pattern, Separator)}
}

// String returns the pattern as written.
func (p Pattern) String() string {
	return p.raw
}

// Match reports whether name is selected by the pattern.
func (p Pattern) Match(name string) bool {
	return matchSegments(strings.Split(name, Separator), p.segments)
}

// Filter returns the names selected by the pattern, preserving order.
func (p Pattern) Filter(names []string) []string {
	var out []string
	for _, n := range names {
		if p.Match(n) {
			out = append(out, n)
		}
	}
	return out
}

func matchSegments(topic, pattern []string) bool {
	ti, pi := 0, 0

	for pi < len(pattern) {
		if pattern[pi] == WildcardMulti {
			// Try matching 0, 1, 2, ... remaining topic segments.
			for ti <= len(topic) {
				if matchSegments(topic[ti:], pattern[pi+1:]) {
					return true
				}
				ti++
			}
			return false
		}

		if ti >= len(topic) {
			return false
		}

		if pattern[pi] != WildcardSingle && pattern[pi] != topic[ti] {
			return false
		}
		ti++
		pi++
	}

	return ti == len(topic)
}
