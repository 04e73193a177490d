package identity

import (
	"regexp"
	"strings"
)

// Whitespace as recognized engines emit it, including no-break and other
// Unicode space separators that RE2's \s does not cover.
var (
	reWhitespace = regexp.MustCompile(`[\s\v\p{Zs}\x{2028}\x{2029}\x{FEFF}]+`)
	reLineBreak  = regexp.MustCompile(`\r\n|\r|\n`)
)

// Normalized is recognized text prepared for rule matching.
type Normalized struct {
	// Text has every whitespace run collapsed to a single space and is
	// upper-cased. Leading and trailing runs collapse too; they are not trimmed.
	Text string
	// Lines are the original lines, each trimmed. Not used by the built-in rules.
	Lines []string
}

// Normalize never fails. Empty input yields empty Text and zero Lines.
func Normalize(raw string) Normalized {
	out := Normalized{
		Text:  strings.ToUpper(reWhitespace.ReplaceAllString(raw, " ")),
		Lines: []string{},
	}
	if raw == "" {
		return out
	}
	for _, line := range reLineBreak.Split(raw, -1) {
		out.Lines = append(out.Lines, strings.TrimSpace(line))
	}
	return out
}
