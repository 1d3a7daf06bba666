package internal

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashKey returns a stable, non-reversible identifier for a secret so it can
// appear in storage keys and logs.
func HashKey(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:16])
}
