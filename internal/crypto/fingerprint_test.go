package crypto

import (
	"bytes"
	"regexp"
	"testing"
)

var fingerprintFormat = regexp.MustCompile(`^[0-9a-f]{4}( [0-9a-f]{4}){7}$`)

func TestFingerprint_Format(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}

	fp := Fingerprint(kp.PublicKey)
	if !fingerprintFormat.MatchString(fp) {
		t.Errorf("fingerprint %q does not match expected format", fp)
	}

	// 16 digest bytes -> 32 hex chars -> 8 groups of 4 plus 7 spaces.
	if len(fp) != 39 {
		t.Errorf("fingerprint length = %d, want 39", len(fp))
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}

	if Fingerprint(kp.PublicKey) != Fingerprint(kp.PublicKey) {
		t.Error("fingerprint differs across calls on the same key")
	}
}

func TestFingerprint_Sensitivity(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}

	t.Run("distinct keys", func(t *testing.T) {
		other, err := GenerateKeypair()
		if err != nil {
			t.Fatal(err)
		}
		if Fingerprint(kp.PublicKey) == Fingerprint(other.PublicKey) {
			t.Error("two distinct keys produced the same fingerprint")
		}
	})

	t.Run("single byte difference", func(t *testing.T) {
		flipped := bytes.Clone(kp.PublicKey)
		flipped[0] ^= 0x01
		if Fingerprint(kp.PublicKey) == Fingerprint(flipped) {
			t.Error("single-byte key change did not change fingerprint")
		}
	})
}

func TestFingerprint_EmptyKey(t *testing.T) {
	if fp := Fingerprint(nil); fp != "" {
		t.Errorf("Fingerprint(nil) = %q, want empty", fp)
	}
	if fp := Fingerprint([]byte{}); fp != "" {
		t.Errorf("Fingerprint(empty) = %q, want empty", fp)
	}
}
