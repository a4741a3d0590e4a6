package qchat

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Uttam-Mahata/qchat/internal/crypto"
)

// ExportVersion is the current identity export format version.
const ExportVersion = 1

// Identity is an ML-KEM-768 keypair bound to a username. The secret key
// never leaves the client; the public key is published to the server so
// that other members can encrypt envelopes for this user.
type Identity struct {
	keypair  *crypto.Keypair
	username string
}

// NewIdentity generates a fresh identity with a new ML-KEM-768 keypair.
func NewIdentity() (*Identity, error) {
	keypair, err := crypto.GenerateKeypair()
	if err != nil {
		return nil, wrapCryptoError(err)
	}
	return &Identity{keypair: keypair}, nil
}

// IdentityFromSecretKey reconstructs an identity from a raw 2400-byte
// ML-KEM-768 secret key. The public key is derived from the secret key.
func IdentityFromSecretKey(secretKey []byte) (*Identity, error) {
	keypair, err := crypto.KeypairFromSecretKey(secretKey)
	if err != nil {
		return nil, wrapCryptoError(err)
	}
	return &Identity{keypair: keypair}, nil
}

// Username returns the username bound to this identity, or "" before
// registration or login.
func (i *Identity) Username() string {
	return i.username
}

// PublicKey returns the raw 1184-byte ML-KEM-768 public key.
func (i *Identity) PublicKey() []byte {
	out := make([]byte, len(i.keypair.PublicKey))
	copy(out, i.keypair.PublicKey)
	return out
}

// PublicKeyB64 returns the base64url-encoded public key as published to
// the server.
func (i *Identity) PublicKeyB64() string {
	return i.keypair.PublicKeyB64
}

// SecretKey returns the raw 2400-byte ML-KEM-768 secret key.
// Handle with care; anyone holding this key can read this user's messages.
func (i *Identity) SecretKey() []byte {
	out := make([]byte, len(i.keypair.SecretKey))
	copy(out, i.keypair.SecretKey)
	return out
}

// Fingerprint returns the short verification string for this identity's
// public key: eight space-separated groups of four lowercase hex digits.
// Two users comparing fingerprints over a trusted channel can detect a
// substituted key.
func (i *Identity) Fingerprint() string {
	return crypto.Fingerprint(i.keypair.PublicKey)
}

// FingerprintOf returns the verification fingerprint of an arbitrary
// base64url-encoded public key, as served by the key directory.
func FingerprintOf(publicKeyB64 string) (string, error) {
	pub, err := crypto.FromBase64URL(publicKeyB64)
	if err != nil {
		return "", &MalformedKeyError{Message: "invalid public key encoding", Err: err}
	}
	if len(pub) != crypto.MLKEMPublicKeySize {
		return "", &MalformedKeyError{Message: fmt.Sprintf("public key size %d, expected %d", len(pub), crypto.MLKEMPublicKeySize)}
	}
	return crypto.Fingerprint(pub), nil
}

// ExportedIdentity contains all data needed to restore an identity.
// WARNING: this contains private key material - handle securely.
//
// The public key is NOT included as it can be derived from the secret key.
type ExportedIdentity struct {
	// Version is the export format version. MUST be 1.
	Version int `json:"version"`
	// Username is the username this identity was registered under.
	// May be empty for an identity that was never registered.
	Username string `json:"username,omitempty"`
	// SecretKey is the ML-KEM-768 secret key (base64url, 2400 bytes decoded).
	SecretKey string `json:"secretKey"`
	// Algs names the algorithm suite the key belongs to. Exports written
	// before the field existed leave it empty.
	Algs string `json:"algs,omitempty"`
	// ExportedAt is the export timestamp (ISO 8601). Informational only.
	ExportedAt time.Time `json:"exportedAt"`
}

// Validate checks that the exported data is usable for import.
func (e *ExportedIdentity) Validate() error {
	if e.Version != ExportVersion {
		return fmt.Errorf("%w: unsupported version %d, expected %d", ErrInvalidImportData, e.Version, ExportVersion)
	}

	if e.SecretKey == "" {
		return fmt.Errorf("%w: secretKey is required", ErrInvalidImportData)
	}
	secretKey, err := crypto.FromBase64URL(e.SecretKey)
	if err != nil {
		return fmt.Errorf("%w: invalid secretKey encoding", ErrInvalidImportData)
	}
	if len(secretKey) != crypto.MLKEMSecretKeySize {
		return fmt.Errorf("%w: secretKey size %d, expected %d", ErrInvalidImportData, len(secretKey), crypto.MLKEMSecretKeySize)
	}

	if e.Algs != "" && e.Algs != crypto.AlgsCiphersuite {
		return fmt.Errorf("%w: unsupported algorithm suite %q", ErrInvalidImportData, e.Algs)
	}

	return nil
}

// Export returns exportable identity data including the secret key.
func (i *Identity) Export() *ExportedIdentity {
	return &ExportedIdentity{
		Version:    ExportVersion,
		Username:   i.username,
		SecretKey:  crypto.ToBase64URL(i.keypair.SecretKey),
		Algs:       crypto.AlgsCiphersuite,
		ExportedAt: time.Now().UTC(),
	}
}

// ExportJSON returns the identity export as JSON.
func (i *Identity) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(i.Export(), "", "  ")
}

// SaveFile writes the identity export to path with 0600 permissions.
func (i *Identity) SaveFile(path string) error {
	data, err := i.ExportJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// ImportIdentity reconstructs an identity from exported data.
// The public key is derived from the secret key.
func ImportIdentity(data *ExportedIdentity) (*Identity, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}

	// Validate() already verified this is valid base64 with correct size
	secretKey, _ := crypto.FromBase64URL(data.SecretKey)

	keypair, err := crypto.KeypairFromSecretKey(secretKey)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to reconstruct keypair: %v", ErrInvalidImportData, err)
	}

	return &Identity{keypair: keypair, username: data.Username}, nil
}

// ImportIdentityJSON reconstructs an identity from JSON export data.
func ImportIdentityJSON(data []byte) (*Identity, error) {
	var exported ExportedIdentity
	if err := json.Unmarshal(data, &exported); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrInvalidImportData, err)
	}
	return ImportIdentity(&exported)
}

// LoadIdentity reads an identity export from a file written by SaveFile.
func LoadIdentity(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ImportIdentityJSON(data)
}
