package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Canonical folds s into the form used for hashing and comparison:
// NFC, trimmed, inner whitespace collapsed to single spaces, lower-cased.
func Canonical(s string) string {
	s = norm.NFC.String(s)
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// ContentID derives the idempotency key of an item from its title and summary.
// Identical content maps to the same id regardless of source or run.
func ContentID(title, summary string) string {
	h := sha256.New()
	h.Write([]byte(Canonical(title)))
	h.Write([]byte{':'})
	h.Write([]byte(Canonical(summary)))
	return hex.EncodeToString(h.Sum(nil))
}
