// internal/models/fingerprint.go
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives the stable identity key for an entity from its
// defining parts. Inputs are case-folded and trimmed so the same logical
// record always hashes identically regardless of source formatting.
func Fingerprint(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{'|'})
		}
		h.Write([]byte(strings.ToLower(strings.TrimSpace(p))))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
