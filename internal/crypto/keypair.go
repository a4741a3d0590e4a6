package crypto

import (
	"fmt"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
)

// Keypair represents an ML-KEM-768 keypair for key encapsulation.
type Keypair struct {
	// PublicKey is the raw ML-KEM-768 public key bytes.
	PublicKey []byte
	// SecretKey is the raw ML-KEM-768 secret key bytes. It never leaves
	// the owner's machine; the server only ever sees the public key.
	SecretKey []byte
	// PublicKeyB64 is the public key encoded as URL-safe base64.
	PublicKeyB64 string
}

// GenerateKeypair creates a new ML-KEM-768 keypair from the platform CSPRNG.
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := mlkem768.GenerateKeyPair(randReader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRandomSource, err)
	}

	// MarshalBinary never fails for valid keys from GenerateKeyPair
	pubBytes, _ := pub.MarshalBinary()
	privBytes, _ := priv.MarshalBinary()

	return &Keypair{
		PublicKey:    pubBytes,
		SecretKey:    privBytes,
		PublicKeyB64: ToBase64URL(pubBytes),
	}, nil
}

// KeypairFromSecretKey reconstructs a keypair from the secret key.
// The public key is embedded in the secret key at offset 1152.
func KeypairFromSecretKey(secretKey []byte) (*Keypair, error) {
	if len(secretKey) != MLKEMSecretKeySize {
		return nil, ErrInvalidSecretKeySize
	}

	publicKey := make([]byte, MLKEMPublicKeySize)
	copy(publicKey, secretKey[PublicKeyOffset:PublicKeyOffset+MLKEMPublicKeySize])

	return &Keypair{
		PublicKey:    publicKey,
		SecretKey:    secretKey,
		PublicKeyB64: ToBase64URL(publicKey),
	}, nil
}

// Encapsulate performs ML-KEM-768 encapsulation against a recipient's public
// key. It consumes 32 bytes of fresh randomness and returns the 32-byte
// shared secret together with the encapsulated-key ciphertext that travels
// alongside the message.
func Encapsulate(recipientPublicKey []byte) (sharedSecret, encapsulatedKey []byte, err error) {
	if len(recipientPublicKey) != MLKEMPublicKeySize {
		return nil, nil, fmt.Errorf("%w: got %d, want %d",
			ErrInvalidPublicKeySize, len(recipientPublicKey), MLKEMPublicKeySize)
	}

	var pubKey mlkem768.PublicKey
	if err := pubKey.Unpack(recipientPublicKey); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}

	seed := make([]byte, mlkem768.EncapsulationSeedSize)
	if err := readRandom(seed); err != nil {
		return nil, nil, err
	}

	encapsulatedKey = make([]byte, MLKEMCiphertextSize)
	sharedSecret = make([]byte, MLKEMSharedKeySize)
	pubKey.EncapsulateTo(encapsulatedKey, sharedSecret, seed)

	return sharedSecret, encapsulatedKey, nil
}

// Decapsulate recovers the shared secret from an encapsulated key using the
// holder's secret key. It is a deterministic function of its inputs.
//
// ML-KEM uses implicit rejection: decapsulating with a mismatched (wrong
// owner) secret key yields a pseudorandom but deterministic wrong shared
// secret rather than an error. That is intentional and must stay that way;
// the authenticated cipher is the layer that surfaces "wrong key" as an
// explicit failure, which keeps this path free of timing oracles.
func Decapsulate(encapsulatedKey, secretKey []byte) ([]byte, error) {
	if len(encapsulatedKey) != MLKEMCiphertextSize {
		return nil, fmt.Errorf("%w: got %d, want %d",
			ErrInvalidCiphertextSize, len(encapsulatedKey), MLKEMCiphertextSize)
	}
	if len(secretKey) != MLKEMSecretKeySize {
		return nil, fmt.Errorf("%w: got %d, want %d",
			ErrInvalidSecretKeySize, len(secretKey), MLKEMSecretKeySize)
	}

	var privKey mlkem768.PrivateKey
	if err := privKey.Unpack(secretKey); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}

	sharedSecret := make([]byte, MLKEMSharedKeySize)
	privKey.DecapsulateTo(sharedSecret, encapsulatedKey)

	return sharedSecret, nil
}

// Decapsulate decapsulates a shared secret from the encapsulated key.
func (k *Keypair) Decapsulate(encapsulatedKey []byte) ([]byte, error) {
	return Decapsulate(encapsulatedKey, k.SecretKey)
}
