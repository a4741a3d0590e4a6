package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestGenerateKeypair(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error = %v", err)
	}

	if len(kp.PublicKey) != MLKEMPublicKeySize {
		t.Errorf("public key size = %d, want %d", len(kp.PublicKey), MLKEMPublicKeySize)
	}
	if len(kp.SecretKey) != MLKEMSecretKeySize {
		t.Errorf("secret key size = %d, want %d", len(kp.SecretKey), MLKEMSecretKeySize)
	}

	decoded, err := FromBase64URL(kp.PublicKeyB64)
	if err != nil {
		t.Fatalf("PublicKeyB64 is not valid base64url: %v", err)
	}
	if !bytes.Equal(decoded, kp.PublicKey) {
		t.Error("PublicKeyB64 does not round-trip to PublicKey")
	}
}

func TestGenerateKeypair_Distinct(t *testing.T) {
	a, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a.PublicKey, b.PublicKey) {
		t.Error("two generated keypairs share a public key")
	}
}

func TestKeypairFromSecretKey(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}

	restored, err := KeypairFromSecretKey(kp.SecretKey)
	if err != nil {
		t.Fatalf("KeypairFromSecretKey() error = %v", err)
	}

	if !bytes.Equal(restored.PublicKey, kp.PublicKey) {
		t.Error("restored public key does not match original")
	}
	if restored.PublicKeyB64 != kp.PublicKeyB64 {
		t.Error("restored PublicKeyB64 does not match original")
	}
}

func TestKeypairFromSecretKey_InvalidSize(t *testing.T) {
	for _, size := range []int{0, 32, MLKEMSecretKeySize - 1, MLKEMSecretKeySize + 1} {
		if _, err := KeypairFromSecretKey(make([]byte, size)); !errors.Is(err, ErrInvalidSecretKeySize) {
			t.Errorf("size %d: expected ErrInvalidSecretKeySize, got %v", size, err)
		}
	}
}

func TestEncapsulate_Decapsulate(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}

	sharedSecret, encapsulatedKey, err := Encapsulate(kp.PublicKey)
	if err != nil {
		t.Fatalf("Encapsulate() error = %v", err)
	}

	if len(sharedSecret) != MLKEMSharedKeySize {
		t.Errorf("shared secret size = %d, want %d", len(sharedSecret), MLKEMSharedKeySize)
	}
	if len(encapsulatedKey) != MLKEMCiphertextSize {
		t.Errorf("encapsulated key size = %d, want %d", len(encapsulatedKey), MLKEMCiphertextSize)
	}

	recovered, err := kp.Decapsulate(encapsulatedKey)
	if err != nil {
		t.Fatalf("Decapsulate() error = %v", err)
	}
	if !bytes.Equal(recovered, sharedSecret) {
		t.Error("decapsulated shared secret does not match encapsulated one")
	}
}

func TestEncapsulate_InvalidPublicKeySize(t *testing.T) {
	for _, size := range []int{0, 32, MLKEMPublicKeySize - 1, MLKEMPublicKeySize + 1} {
		_, _, err := Encapsulate(make([]byte, size))
		if !errors.Is(err, ErrInvalidPublicKeySize) {
			t.Errorf("size %d: expected ErrInvalidPublicKeySize, got %v", size, err)
		}
	}
}

func TestDecapsulate_InvalidSizes(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}

	t.Run("encapsulated key", func(t *testing.T) {
		if _, err := kp.Decapsulate(make([]byte, 10)); !errors.Is(err, ErrInvalidCiphertextSize) {
			t.Errorf("expected ErrInvalidCiphertextSize, got %v", err)
		}
	})

	t.Run("secret key", func(t *testing.T) {
		if _, err := Decapsulate(make([]byte, MLKEMCiphertextSize), make([]byte, 10)); !errors.Is(err, ErrInvalidSecretKeySize) {
			t.Errorf("expected ErrInvalidSecretKeySize, got %v", err)
		}
	})
}

// Decapsulating with the wrong keypair's secret key must yield a wrong
// shared secret without an explicit error. That is ML-KEM implicit
// rejection working as designed; the AEAD layer is where the mismatch
// becomes visible.
func TestDecapsulate_ImplicitRejection(t *testing.T) {
	alice, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	bob, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}

	sharedSecret, encapsulatedKey, err := Encapsulate(alice.PublicKey)
	if err != nil {
		t.Fatal(err)
	}

	wrong, err := bob.Decapsulate(encapsulatedKey)
	if err != nil {
		t.Fatalf("implicit rejection must not surface an error, got %v", err)
	}
	if bytes.Equal(wrong, sharedSecret) {
		t.Error("wrong-owner decapsulation produced the correct shared secret")
	}

	// Deterministic: the same wrong key yields the same wrong secret.
	again, err := bob.Decapsulate(encapsulatedKey)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(wrong, again) {
		t.Error("implicit rejection output is not deterministic")
	}
}
