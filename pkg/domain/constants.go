package domain

import (
	"strings"
	"unicode/utf8"
)

// Executor and compiler defaults.
const (
	// DefaultMaxIterations bounds mesh rounds when no member configures one.
	DefaultMaxIterations = 5
	// ConvergenceThreshold is the similarity at which mesh outputs count as settled.
	ConvergenceThreshold = 0.85
	// PreviewLength caps progress-event previews, in runes.
	PreviewLength = 120
)

// Preview trims s and truncates it to PreviewLength runes.
func Preview(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= PreviewLength {
		return s
	}
	r := []rune(s)
	return string(r[:PreviewLength]) + "…"
}
