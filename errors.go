package qchat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Uttam-Mahata/qchat/internal/api"
	"github.com/Uttam-Mahata/qchat/internal/crypto"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrMissingIdentity is returned when no identity is provided.
	ErrMissingIdentity = errors.New("identity is required")

	// ErrClientClosed is returned when operations are attempted on a closed client.
	ErrClientClosed = errors.New("client has been closed")

	// ErrNotLoggedIn is returned when an operation requires an
	// authenticated session.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrUnauthorized is returned when the session token is invalid or expired.
	ErrUnauthorized = errors.New("invalid or expired session")

	// ErrRoomNotFound is returned when a room is not found.
	ErrRoomNotFound = errors.New("room not found")

	// ErrUserNotFound is returned when a user is not found.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists is returned when registering a username that is taken.
	ErrUserExists = errors.New("username already exists")

	// ErrMalformedKey is returned when a public or secret key has the
	// wrong length or invalid structure for ML-KEM-768.
	ErrMalformedKey = errors.New("malformed key")

	// ErrInvalidParameter is returned when a nonce or symmetric key
	// violates the cipher's fixed-size contract, or a plaintext exceeds
	// the 10 MiB ceiling.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrAuthenticationFailed is returned when an envelope fails
	// authentication: tampering, corruption, or the wrong secret key.
	// The only legitimate recovery is a correct key or uncorrupted data.
	ErrAuthenticationFailed = errors.New("cannot decrypt: wrong key or corrupted message")

	// ErrMalformedEnvelope is returned when a stored or transmitted
	// envelope fails to decode.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrInvalidImportData is returned when imported identity data is invalid.
	ErrInvalidImportData = errors.New("invalid identity data")
)

// QChatError is implemented by all SDK errors.
type QChatError interface {
	error
	QChatError() // marker method
}

// APIError represents an HTTP error from the qchat server.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("API error %d: %s (request_id: %s)", e.StatusCode, e.Message, e.RequestID)
	}
	if e.Message != "" {
		return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error %d", e.StatusCode)
}

// QChatError implements the QChatError interface.
func (e *APIError) QChatError() {}

// Is implements errors.Is for sentinel error matching.
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case 401:
		return target == ErrUnauthorized
	case 404:
		if target == ErrRoomNotFound {
			return containsFold(e.Message, "room")
		}
		if target == ErrUserNotFound {
			return containsFold(e.Message, "user")
		}
		return false
	case 409:
		return target == ErrUserExists
	}
	return false
}

// NetworkError represents a network-level failure.
type NetworkError struct {
	Err     error
	URL     string
	Attempt int
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// QChatError implements the QChatError interface.
func (e *NetworkError) QChatError() {}

// MalformedKeyError indicates a public or secret key that does not fit the
// configured KEM parameter set. Non-retryable.
type MalformedKeyError struct {
	Message string
	Err     error
}

func (e *MalformedKeyError) Error() string {
	return fmt.Sprintf("malformed key: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *MalformedKeyError) Unwrap() error { return e.Err }

// Is implements errors.Is for sentinel error matching.
func (e *MalformedKeyError) Is(target error) bool {
	return target == ErrMalformedKey
}

// QChatError implements the QChatError interface.
func (e *MalformedKeyError) QChatError() {}

// InvalidParameterError indicates a cipher input that violates its
// fixed-size contract or the plaintext size ceiling. Non-retryable;
// programmer or input error.
type InvalidParameterError struct {
	Message string
	Err     error
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *InvalidParameterError) Unwrap() error { return e.Err }

// Is implements errors.Is for sentinel error matching.
func (e *InvalidParameterError) Is(target error) bool {
	return target == ErrInvalidParameter
}

// QChatError implements the QChatError interface.
func (e *InvalidParameterError) QChatError() {}

// AuthenticationError indicates an envelope whose authentication tag did
// not verify. Retrying with the same inputs is pointless.
type AuthenticationError struct {
	MessageID string
}

func (e *AuthenticationError) Error() string {
	if e.MessageID != "" {
		return fmt.Sprintf("cannot decrypt message %s: wrong key or corrupted message", e.MessageID)
	}
	return "cannot decrypt: wrong key or corrupted message"
}

// Is implements errors.Is for sentinel error matching.
func (e *AuthenticationError) Is(target error) bool {
	return target == ErrAuthenticationFailed
}

// QChatError implements the QChatError interface.
func (e *AuthenticationError) QChatError() {}

// MalformedEnvelopeError indicates an envelope that failed to decode before
// reaching the cipher layer: upstream storage or transport corruption.
type MalformedEnvelopeError struct {
	Message string
	Err     error
}

func (e *MalformedEnvelopeError) Error() string {
	return fmt.Sprintf("malformed envelope: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *MalformedEnvelopeError) Unwrap() error { return e.Err }

// Is implements errors.Is for sentinel error matching.
func (e *MalformedEnvelopeError) Is(target error) bool {
	return target == ErrMalformedEnvelope
}

// QChatError implements the QChatError interface.
func (e *MalformedEnvelopeError) QChatError() {}

// RecipientError reports a per-recipient failure during group fan-out.
// One bad member key does not abort the batch; the send result carries one
// of these for each member that could not be encrypted for.
type RecipientError struct {
	Recipient string
	Err       error
}

func (e *RecipientError) Error() string {
	return fmt.Sprintf("recipient %s: %v", e.Recipient, e.Err)
}

// Unwrap returns the underlying error.
func (e *RecipientError) Unwrap() error { return e.Err }

// QChatError implements the QChatError interface.
func (e *RecipientError) QChatError() {}

// wrapError converts internal API errors to public errors so that
// errors.Is() checks work with public sentinel errors.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			RequestID:  apiErr.RequestID,
		}
	}

	var netErr *api.NetworkError
	if errors.As(err, &netErr) {
		return &NetworkError{
			Err:     netErr.Err,
			URL:     netErr.URL,
			Attempt: netErr.Attempt,
		}
	}

	return err
}

// wrapCryptoError converts internal crypto errors to public typed errors.
// Error kinds are preserved; key and plaintext content never appear in them.
func wrapCryptoError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, crypto.ErrAuthenticationFailed):
		return &AuthenticationError{}
	case errors.Is(err, crypto.ErrMalformedEnvelope):
		return &MalformedEnvelopeError{Message: err.Error(), Err: err}
	case errors.Is(err, crypto.ErrInvalidPublicKeySize),
		errors.Is(err, crypto.ErrInvalidSecretKeySize),
		errors.Is(err, crypto.ErrInvalidCiphertextSize),
		errors.Is(err, crypto.ErrMalformedKey):
		return &MalformedKeyError{Message: err.Error(), Err: err}
	case errors.Is(err, crypto.ErrInvalidKeySize),
		errors.Is(err, crypto.ErrInvalidNonceSize),
		errors.Is(err, crypto.ErrPlaintextTooLarge):
		return &InvalidParameterError{Message: err.Error(), Err: err}
	}

	return err
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
