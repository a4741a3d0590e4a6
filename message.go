package qchat

import (
	"errors"
	"time"

	"github.com/Uttam-Mahata/qchat/internal/api"
	"github.com/Uttam-Mahata/qchat/internal/crypto"
)

// MessageKind distinguishes chat text from document attachments.
type MessageKind string

const (
	// KindText is a plain chat message. The decrypted payload is UTF-8 text.
	KindText MessageKind = "text"

	// KindDocument is a file attachment. The decrypted payload is the raw
	// file content; Name carries the filename.
	KindDocument MessageKind = "document"
)

// Message is a decrypted room message. The plaintext only ever exists here,
// on the recipient's machine; the server stores envelopes it cannot open.
type Message struct {
	// ID is the server-assigned message identifier.
	ID string

	// RoomID is the room this message was posted to.
	RoomID string

	// Sender is the username of the author.
	Sender string

	// Kind is the payload type, text or document.
	Kind MessageKind

	// Name is the filename for document messages, empty for text.
	Name string

	// SentAt is the server-assigned timestamp.
	SentAt time.Time

	payload []byte
}

// Text returns the message body for text messages. For documents it returns
// the raw content as a string.
func (m *Message) Text() string {
	return string(m.payload)
}

// Data returns the decrypted payload bytes.
func (m *Message) Data() []byte {
	out := make([]byte, len(m.payload))
	copy(out, m.payload)
	return out
}

// decryptRaw opens the envelope addressed to this identity and builds the
// decrypted message. A wrong key or a tampered envelope surfaces as
// AuthenticationError; a corrupt wire form as MalformedEnvelopeError.
func decryptRaw(raw *api.RawMessage, identity *Identity) (*Message, error) {
	if raw.Envelope == nil {
		return nil, &MalformedEnvelopeError{Message: "missing envelope"}
	}

	plaintext, err := crypto.DecryptWire(raw.Envelope, identity.keypair.SecretKey)
	if err != nil {
		werr := wrapCryptoError(err)
		var authErr *AuthenticationError
		if errors.As(werr, &authErr) {
			authErr.MessageID = raw.ID
		}
		return nil, werr
	}

	return &Message{
		ID:      raw.ID,
		RoomID:  raw.RoomID,
		Sender:  raw.Sender,
		Kind:    MessageKind(raw.Kind),
		Name:    raw.Name,
		SentAt:  raw.SentAt,
		payload: plaintext,
	}, nil
}

// decryptEvent is decryptRaw for pushed events.
func decryptEvent(ev *api.MessageEvent, identity *Identity) (*Message, error) {
	return decryptRaw(&api.RawMessage{
		ID:       ev.MessageID,
		RoomID:   ev.RoomID,
		Sender:   ev.Sender,
		Kind:     ev.Kind,
		Name:     ev.Name,
		SentAt:   ev.SentAt,
		Envelope: ev.Envelope,
	}, identity)
}
