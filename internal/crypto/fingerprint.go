package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint produces a short, human-comparable digest of a public key for
// out-of-band identity verification: SHA-256 truncated to 16 bytes, rendered
// as lowercase hex in space-separated groups of four characters, e.g.
//
//	a1b2 c3d4 e5f6 0718 293a 4b5c 6d7e 8f90
//
// Deterministic and stateless; always recomputable from the public key.
// An empty public key yields an empty string, which callers should treat as
// their own bug.
func Fingerprint(publicKey []byte) string {
	if len(publicKey) == 0 {
		return ""
	}

	digest := sha256.Sum256(publicKey)
	encoded := hex.EncodeToString(digest[:FingerprintSize])

	var b strings.Builder
	b.Grow(len(encoded) + len(encoded)/4)
	for i := 0; i < len(encoded); i += 4 {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(encoded[i : i+4])
	}
	return b.String()
}
