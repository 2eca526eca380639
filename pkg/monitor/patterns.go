package monitor

import (
	"regexp"
	"strings"

	"github.com/Veraticus/idlewatch/pkg/config"
)

// ansiEscape matches CSI sequences, OSC sequences (terminated or not),
// and two-byte escapes, so the ignore patterns see the text a user
// would see.
var ansiEscape = regexp.MustCompile("\x1b" + `(?:\[[^@-~]*[@-~]|\][^\x07\x1b]*(?:\x07|\x1b\\)?|.)`)

// StripEscapes removes terminal escape sequences from a line.
func StripEscapes(line string) string {
	if !strings.ContainsRune(line, 0x1b) {
		return line
	}
	return ansiEscape.ReplaceAllString(line, "")
}

// PatternSet holds the enabled ignore patterns. Lines matching any of
// them are presentation noise and do not count as session activity.
type PatternSet struct {
	patterns []config.Pattern
}

// NewPatternSet keeps only enabled patterns with a compiled regex.
func NewPatternSet(patterns []config.Pattern) *PatternSet {
	enabled := make([]config.Pattern, 0, len(patterns))
	for _, p := range patterns {
		if p.Enabled && p.CompiledRegex() != nil {
			enabled = append(enabled, p)
		}
	}
	return &PatternSet{patterns: enabled}
}

// Ignore reports whether line matches one of the ignore patterns.
func (ps *PatternSet) Ignore(line string) bool {
	for _, p := range ps.patterns {
		if re := p.CompiledRegex(); re != nil && re.MatchString(line) {
			return true
		}
	}
	return false
}

// Patterns returns the active patterns.
func (ps *PatternSet) Patterns() []config.Pattern {
	return ps.patterns
}
