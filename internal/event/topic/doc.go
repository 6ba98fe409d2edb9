// Package topic provides topic names and wildcard patterns for inspecting
// the topics of an event bus.
//
// # Topic Format
//
// Bus topics are free-form strings. When they use dot-notation the segments
// form a hierarchy that patterns can select from:
//
//	window.main
//	window.tool.palette
//	frame.timing
//
// # Wildcards
//
//   - "*" matches exactly one segment
//   - "**" matches zero or more segments
//
// Examples:
//
//	window.*      matches window.main (not window.tool.palette)
//	window.**     matches window, window.main, window.tool.palette
//	*.timing      matches frame.timing
//	**            matches everything
//
// # Usage
//
//	p := topic.Compile("window.**")
//	p.Match("window.tool.palette") // true
package topic
