package util

import (
	"regexp"
	"strings"
)

var (
	whitespace  = regexp.MustCompile(`\s+`)
	inlineSpace = regexp.MustCompile(`[ \t\f\v]+`)
	blankRuns   = regexp.MustCompile(`\n{3,}`)
)

// NormalizeWhitespace trims and collapses whitespace to single spaces.
func NormalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// NormalizeMultiline keeps line breaks but collapses inline whitespace, trims
// each line and allows at most one empty line in a row.
func NormalizeMultiline(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(inlineSpace.ReplaceAllString(l, " "))
	}
	return strings.TrimSpace(blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}
