package simplelogin

import "strings"

const maxPrefixLength = 64

// SanitizeLocalPart maps s onto the prefix alphabet SimpleLogin accepts:
// lower-case [a-z0-9_.], runs of underscores collapsed, at most 64
// characters, no leading or trailing '.' or '_'. An empty result becomes
// "alias". The preview and the creation request both use this value.
func SanitizeLocalPart(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
			}
			lastUnderscore = true
		}
	}

	out := b.String()
	if len(out) > maxPrefixLength {
		out = out[:maxPrefixLength]
	}
	out = strings.Trim(out, "._")
	if out == "" {
		return "alias"
	}
	return out
}
