// Package crypto implements the qchat encryption envelope: the mechanism
// that wraps every message and document in a per-recipient envelope
// combining post-quantum key encapsulation with authenticated encryption.
//
// # Algorithm Suite
//
//   - ML-KEM-768 (NIST FIPS 203): Post-quantum key encapsulation mechanism
//     for establishing a fresh shared secret per envelope.
//
//   - AES-256-GCM: Authenticated encryption (AEAD) for the payload.
//     Provides confidentiality and tamper detection.
//
//   - HKDF-SHA-512 (RFC 5869): Derives the AES key from the KEM shared
//     secret with domain separation.
//
// # Envelope Model
//
// [Encrypt] binds {ciphertext, encapsulatedKey, nonce} to exactly one
// recipient public key. A group message therefore produces one envelope per
// room member, including a self-addressed envelope so the sender can read
// their own history. [WireEnvelope] is the base64 text form used for JSON
// transport and text-column storage.
//
// # Security Model
//
// Only the holder of the matching secret key can decrypt an envelope.
// Decrypting with any other key, or after any modification of any field,
// fails with [ErrAuthenticationFailed] -- never with attacker-influenced
// plaintext. ML-KEM's implicit rejection is preserved as-is: a mismatched
// secret key produces a wrong shared secret silently, and the AEAD layer is
// the single place where "wrong key" becomes an explicit error. Turning
// implicit rejection into an early error would reintroduce the timing
// oracle the KEM design avoids.
//
// Every operation here is synchronous and stateless apart from consuming
// the platform CSPRNG; all of them are safe to call concurrently.
//
// # Key Management
//
// Use [GenerateKeypair] to create a new ML-KEM-768 keypair. The secret key
// embeds a copy of the public key at offset 1152, which
// [KeypairFromSecretKey] uses to rebuild the pair from the secret half.
// Secret keys must never be logged, transmitted, or persisted server-side.
package crypto
