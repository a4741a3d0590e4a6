package crypto

import (
	"fmt"
)

// Envelope binds the three artifacts of one encrypted payload addressed to
// one recipient. It is meaningful only paired with the secret key matching
// the public key used at encapsulation time; any other key fails
// authentication at decrypt time.
type Envelope struct {
	// Ciphertext is the AES-256-GCM output over the plaintext,
	// ciphertext || 16-byte tag.
	Ciphertext []byte
	// EncapsulatedKey is the ML-KEM-768 ciphertext produced by
	// encapsulation against the recipient's public key.
	EncapsulatedKey []byte
	// Nonce is the 12-byte AES-GCM nonce, unique per encryption. A fresh
	// key is derived per envelope, so nonce reuse risk is bounded to a
	// random collision within a single encapsulation.
	Nonce []byte
}

// Encrypt wraps plaintext in an envelope for a single recipient:
// ML-KEM-768 encapsulation, HKDF-SHA-512 key derivation, then AES-256-GCM.
// The nonce is drawn from the CSPRNG immediately before sealing.
func Encrypt(plaintext, recipientPublicKey []byte) (*Envelope, error) {
	sharedSecret, encapsulatedKey, err := Encapsulate(recipientPublicKey)
	if err != nil {
		return nil, err
	}

	key, err := DeriveKey(sharedSecret)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, AESNonceSize)
	if err := readRandom(nonce); err != nil {
		return nil, err
	}

	ciphertext, err := Seal(plaintext, key, nonce)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		Ciphertext:      ciphertext,
		EncapsulatedKey: encapsulatedKey,
		Nonce:           nonce,
	}, nil
}

// Decrypt recovers the plaintext from an envelope using the recipient's
// secret key: decapsulation, key derivation, then authenticated open.
//
// ErrAuthenticationFailed propagates verbatim. It is the one error a caller
// must treat as "cannot recover data" -- retrying with the same inputs is
// pointless, since every failure here is a deterministic function of them.
func Decrypt(env *Envelope, secretKey []byte) ([]byte, error) {
	sharedSecret, err := Decapsulate(env.EncapsulatedKey, secretKey)
	if err != nil {
		return nil, err
	}

	key, err := DeriveKey(sharedSecret)
	if err != nil {
		return nil, err
	}

	return Open(env.Ciphertext, key, env.Nonce)
}

// WireEnvelope is the transport and storage representation of an Envelope.
// Each field is independently base64url-encoded so the triple fits in plain
// text columns and JSON payloads.
type WireEnvelope struct {
	// Ciphertext is the AES-GCM output (base64url-encoded).
	Ciphertext string `json:"ciphertext"`
	// EncapsulatedKey is the ML-KEM-768 ciphertext (base64url-encoded).
	EncapsulatedKey string `json:"ct_kem"`
	// Nonce is the AES-GCM nonce (base64url-encoded).
	Nonce string `json:"nonce"`
}

// Wire returns the base64 wire form of the envelope.
func (e *Envelope) Wire() *WireEnvelope {
	return &WireEnvelope{
		Ciphertext:      ToBase64URL(e.Ciphertext),
		EncapsulatedKey: ToBase64URL(e.EncapsulatedKey),
		Nonce:           ToBase64URL(e.Nonce),
	}
}

// Decode converts the wire form back to raw bytes, rejecting bad base64 and
// wrong decoded lengths with ErrMalformedEnvelope before anything reaches
// the cipher layer.
func (w *WireEnvelope) Decode() (*Envelope, error) {
	ciphertext, err := FromBase64URL(w.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: decode ciphertext: %v", ErrMalformedEnvelope, err)
	}
	if len(ciphertext) < AESTagSize {
		return nil, fmt.Errorf("%w: ciphertext shorter than tag (%d bytes)", ErrMalformedEnvelope, len(ciphertext))
	}

	encapsulatedKey, err := FromBase64URL(w.EncapsulatedKey)
	if err != nil {
		return nil, fmt.Errorf("%w: decode encapsulated key: %v", ErrMalformedEnvelope, err)
	}
	if len(encapsulatedKey) != MLKEMCiphertextSize {
		return nil, fmt.Errorf("%w: encapsulated key size %d, want %d",
			ErrMalformedEnvelope, len(encapsulatedKey), MLKEMCiphertextSize)
	}

	nonce, err := FromBase64URL(w.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: decode nonce: %v", ErrMalformedEnvelope, err)
	}
	if len(nonce) != AESNonceSize {
		return nil, fmt.Errorf("%w: nonce size %d, want %d",
			ErrMalformedEnvelope, len(nonce), AESNonceSize)
	}

	return &Envelope{
		Ciphertext:      ciphertext,
		EncapsulatedKey: encapsulatedKey,
		Nonce:           nonce,
	}, nil
}

// DecryptWire decodes a wire envelope and decrypts it in one step.
func DecryptWire(w *WireEnvelope, secretKey []byte) ([]byte, error) {
	env, err := w.Decode()
	if err != nil {
		return nil, err
	}
	return Decrypt(env, secretKey)
}
