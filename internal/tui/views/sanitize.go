package views

import "strings"

// sanitizeForTerminal removes what would corrupt or spoof the display of
// portal text: control characters other than newline and tab (including
// escape sequences' introducer), bidirectional overrides, and the emoji
// modifiers tcell cannot lay out (skin tones, zero width joiners,
// variation selectors). Composite emoji degrade to their base glyph.
func sanitizeForTerminal(s string) string {
	if strings.IndexFunc(s, dropRune) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if dropRune(r) {
			return -1
		}
		return r
	}, s)
}

func dropRune(r rune) bool {
	switch {
	case r == '\n' || r == '\t':
		return false
	case r < 0x20 || (r >= 0x7F && r <= 0x9F):
		return true
	case r >= 0x202A && r <= 0x202E, r >= 0x2066 && r <= 0x2069:
		return true
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	case r == 0x200D:
		return true
	case r >= 0xFE00 && r <= 0xFE0F, r >= 0xE0100 && r <= 0xE01EF:
		return true
	}
	return false
}
