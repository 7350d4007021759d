package tui

import (
	"strings"
	"unicode/utf8"
)

// sanitizeForTerminal removes Unicode codepoints that cause rendering issues
// in tcell/tview: skin tone modifiers, Zero Width Joiners and variation
// selectors. Multi-codepoint emoji collapse to their base character, which
// renders at a predictable cell width.
func sanitizeForTerminal(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !isProblematicRune(r) {
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}

func isProblematicRune(r rune) bool {
	switch {
	// Skin tone modifiers.
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	// Zero Width Joiner.
	case r == 0x200D:
		return true
	// Variation Selectors.
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	// Variation Selectors Supplement.
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	default:
		return false
	}
}
