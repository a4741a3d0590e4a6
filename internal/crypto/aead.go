package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext under key with AES-256-GCM.
// Returns ciphertext || tag (16 bytes). The nonce is not prepended; the
// envelope carries it as a separate field.
//
// The plaintext size ceiling is checked before any cipher work so oversized
// uploads are rejected without burning CPU or memory on them.
func Seal(plaintext, key, nonce []byte) ([]byte, error) {
	if len(key) != AESKeySize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidKeySize, len(key), AESKeySize)
	}
	if len(nonce) != AESNonceSize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidNonceSize, len(nonce), AESNonceSize)
	}
	if len(plaintext) > MaxPlaintextSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrPlaintextTooLarge, len(plaintext), MaxPlaintextSize)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	return gcm.Seal(nil, nonce, plaintext, nil), nil
}

// Open decrypts and authenticates ciphertext produced by Seal.
// A tag mismatch -- tampering, corruption, or a wrong key -- fails with
// ErrAuthenticationFailed and never yields partial plaintext. Key and
// plaintext content are never included in the error.
func Open(ciphertext, key, nonce []byte) ([]byte, error) {
	if len(key) != AESKeySize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidKeySize, len(key), AESKeySize)
	}
	if len(nonce) != AESNonceSize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidNonceSize, len(nonce), AESNonceSize)
	}
	if len(ciphertext) > MaxPlaintextSize+AESTagSize {
		return nil, fmt.Errorf("%w: ciphertext %d bytes, limit %d",
			ErrPlaintextTooLarge, len(ciphertext), MaxPlaintextSize+AESTagSize)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}

	return plaintext, nil
}
