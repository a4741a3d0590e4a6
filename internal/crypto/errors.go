package crypto

import "errors"

var (
	// ErrInvalidPublicKeySize is returned when the public key size is invalid.
	ErrInvalidPublicKeySize = errors.New("invalid public key size")

	// ErrInvalidSecretKeySize is returned when the secret key size is invalid.
	ErrInvalidSecretKeySize = errors.New("invalid secret key size")

	// ErrMalformedKey is returned when a key has the right length but
	// fails the KEM's structural checks.
	ErrMalformedKey = errors.New("malformed key")

	// ErrInvalidCiphertextSize is returned when the encapsulated key size is invalid.
	ErrInvalidCiphertextSize = errors.New("invalid encapsulated key size")

	// ErrInvalidSharedSecretSize is returned when the shared secret handed to
	// key derivation has the wrong length. This is a programmer error, not
	// something reachable from wire input.
	ErrInvalidSharedSecretSize = errors.New("invalid shared secret size")

	// ErrInvalidKeySize is returned when the AES key size is invalid.
	ErrInvalidKeySize = errors.New("invalid key size")

	// ErrInvalidNonceSize is returned when the nonce size is invalid.
	ErrInvalidNonceSize = errors.New("invalid nonce size")

	// ErrPlaintextTooLarge is returned when a plaintext exceeds MaxPlaintextSize.
	ErrPlaintextTooLarge = errors.New("plaintext exceeds size limit")

	// ErrAuthenticationFailed is returned when the AEAD tag does not verify.
	// Tampering, corruption, and decryption with the wrong secret key all
	// surface as this error; no plaintext is ever returned alongside it.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrMalformedEnvelope is returned when a stored or transmitted envelope
	// fails to decode (bad base64, truncated field) before reaching the
	// cipher layer.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrRandomSource is returned when the platform CSPRNG fails. The
	// process should stop issuing keys and envelopes in this state.
	ErrRandomSource = errors.New("random source failure")
)
