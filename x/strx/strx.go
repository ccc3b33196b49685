package strx

import "strings"

// Coalesce returns s if non-empty, otherwise d.
func Coalesce(s, d string) string {
	if s == "" {
		return d
	}
	return s
}

// Field returns the idx-th sep-separated field of s. Empty fields count, so
// "a,,c" has three fields. ok is false when s has fewer fields.
func Field(s string, sep byte, idx int) (field string, ok bool) {
	if idx < 0 {
		return "", false
	}
	for i := 0; i < idx; i++ {
		j := strings.IndexByte(s, sep)
		if j < 0 {
			return "", false
		}
		s = s[j+1:]
	}
	if j := strings.IndexByte(s, sep); j >= 0 {
		s = s[:j]
	}
	return s, true
}

// CutPrefixFold is strings.CutPrefix with ASCII case folding.
func CutPrefixFold(s, prefix string) (after string, found bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return s[len(prefix):], true
}
