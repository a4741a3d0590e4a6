package crypto

import (
	"crypto/rand"
	"fmt"
	"io"
)

// randReader is the random source used for key generation, encapsulation
// seeds, and nonces. It defaults to nil (which uses crypto/rand) but can be
// overridden for testing.
var randReader io.Reader

// readRandom fills b from the configured CSPRNG. A failure here is fatal for
// the caller: no keys or envelopes may be issued without working randomness.
func readRandom(b []byte) error {
	r := randReader
	if r == nil {
		r = rand.Reader
	}
	if _, err := io.ReadFull(r, b); err != nil {
		return fmt.Errorf("%w: %v", ErrRandomSource, err)
	}
	return nil
}
