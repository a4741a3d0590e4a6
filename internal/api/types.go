package api

import (
	"time"

	"github.com/Uttam-Mahata/qchat/internal/crypto"
)

// Message kinds carried by an envelope payload.
const (
	KindText     = "text"
	KindDocument = "document"
)

// RegisterRequest is the POST /api/register request.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	// PublicKey is the user's ML-KEM-768 public key (base64url-encoded).
	PublicKey string `json:"publicKey"`
}

// RegisterResponse is the POST /api/register response.
type RegisterResponse struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// LoginRequest is the POST /api/login request.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the POST /api/login response.
type LoginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

// UserKey is a user's public encryption key as served by the identity store.
type UserKey struct {
	Username string `json:"username"`
	// PublicKey is base64url-encoded raw key bytes.
	PublicKey string `json:"publicKey"`
}

// Room describes a chat room.
type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateRoomRequest is the POST /api/rooms request.
type CreateRoomRequest struct {
	Name string `json:"name"`
}

// RoomsResponse is the GET /api/rooms response.
type RoomsResponse struct {
	Rooms []Room `json:"rooms"`
}

// Member is a room member with their public encryption key.
type Member struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	PublicKey string `json:"publicKey"`
}

// MembersResponse is the GET /api/rooms/{id}/members response.
type MembersResponse struct {
	Members []Member `json:"members"`
}

// RecipientEnvelope pairs one recipient with the envelope encrypted for
// them. A message to an N-member room carries N of these, one per member
// including the sender.
type RecipientEnvelope struct {
	Recipient string               `json:"recipient"`
	Envelope  *crypto.WireEnvelope `json:"envelope"`
}

// PostMessageRequest is the POST /api/rooms/{id}/messages request.
type PostMessageRequest struct {
	Kind string `json:"kind"`
	// Name is the original filename for document messages.
	Name      string              `json:"name,omitempty"`
	Envelopes []RecipientEnvelope `json:"envelopes"`
}

// PostMessageResponse is the POST /api/rooms/{id}/messages response.
type PostMessageResponse struct {
	MessageID string    `json:"messageId"`
	SentAt    time.Time `json:"sentAt"`
}

// RawMessage is an encrypted message as stored for one recipient. The
// server returns only the envelope addressed to the caller.
type RawMessage struct {
	ID       string               `json:"id"`
	RoomID   string               `json:"roomId"`
	Sender   string               `json:"sender"`
	Kind     string               `json:"kind"`
	Name     string               `json:"name,omitempty"`
	SentAt   time.Time            `json:"sentAt"`
	Envelope *crypto.WireEnvelope `json:"envelope"`
}

// MessagesResponse is the GET /api/rooms/{id}/messages response.
type MessagesResponse struct {
	Messages []RawMessage `json:"messages"`
}

// MessageEvent is the SSE payload pushed when a message arrives for the
// connected user. The envelope is the one addressed to that user.
type MessageEvent struct {
	RoomID    string               `json:"roomId"`
	MessageID string               `json:"messageId"`
	Sender    string               `json:"sender"`
	Kind      string               `json:"kind"`
	Name      string               `json:"name,omitempty"`
	SentAt    time.Time            `json:"sentAt"`
	Envelope  *crypto.WireEnvelope `json:"envelope"`
}
