package notices

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// NormalizeMessage folds messages that differ only in numbers, case or
// spacing into one stable hash, so "chunk 12 for a.ts" and "chunk 13 for
// a.ts" deduplicate together.
func NormalizeMessage(msg string) string {
	trimmed := strings.TrimSpace(msg)
	if trimmed == "" {
		return ""
	}

	var b strings.Builder
	inDigits, inSpace := false, false
	for _, r := range strings.ToLower(trimmed) {
		switch {
		case unicode.IsDigit(r):
			if !inDigits {
				b.WriteByte('#')
			}
			inDigits, inSpace = true, false
		case unicode.IsSpace(r):
			if !inSpace {
				b.WriteByte(' ')
			}
			inDigits, inSpace = false, true
		default:
			b.WriteRune(r)
			inDigits, inSpace = false, false
		}
	}
	return hashString(b.String())
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func (n Notice) dedupKey() string {
	return n.Kind + ":" + n.SessionID + ":" + NormalizeMessage(n.Message)
}
