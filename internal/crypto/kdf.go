package crypto

import (
	"crypto/sha512"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey reduces a KEM shared secret to an AES-256 key using
// HKDF-SHA-512 with the package context string for domain separation.
//
// No salt is used: the shared secret is already high-entropy and single-use
// per envelope. The input length is fixed; anything else is a programmer
// error, not a reachable wire condition.
func DeriveKey(sharedSecret []byte) ([]byte, error) {
	if len(sharedSecret) != MLKEMSharedKeySize {
		return nil, fmt.Errorf("%w: got %d, want %d",
			ErrInvalidSharedSecretSize, len(sharedSecret), MLKEMSharedKeySize)
	}

	reader := hkdf.New(sha512.New, sharedSecret, nil, []byte(HKDFContext))
	key := make([]byte, AESKeySize)

	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	return key, nil
}
