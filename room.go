package qchat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Uttam-Mahata/qchat/internal/api"
	"github.com/Uttam-Mahata/qchat/internal/crypto"
)

// Room is a handle on a chat room the client is a member of. Rooms are
// obtained from Client.CreateRoom, Client.JoinRoom or Client.Rooms.
type Room struct {
	client *Client
	id     string
	name   string
}

// ID returns the server-assigned room identifier.
func (r *Room) ID() string {
	return r.id
}

// Name returns the room name.
func (r *Room) Name() string {
	return r.name
}

// Member is a room member as listed by the server's key directory.
type Member struct {
	// Username is the member's username.
	Username string

	// PublicKeyB64 is the member's base64url-encoded ML-KEM-768 public key.
	PublicKeyB64 string
}

// Fingerprint returns the verification fingerprint of this member's
// public key, for out-of-band comparison.
func (m *Member) Fingerprint() (string, error) {
	return FingerprintOf(m.PublicKeyB64)
}

// SendResult reports the outcome of posting a message. A send succeeds as
// long as at least the sender's own envelope was produced; members whose
// keys could not be used are listed in Skipped and receive nothing.
type SendResult struct {
	// MessageID is the server-assigned identifier of the stored message.
	MessageID string

	// SentAt is the server-assigned timestamp.
	SentAt time.Time

	// Skipped lists members that could not be encrypted for.
	Skipped []*RecipientError
}

// Members lists the room's current members with their public keys.
func (r *Room) Members(ctx context.Context) ([]*Member, error) {
	if err := r.client.checkReady(); err != nil {
		return nil, err
	}

	listed, err := r.client.api.RoomMembers(ctx, r.id)
	if err != nil {
		return nil, wrapError(err)
	}

	members := make([]*Member, 0, len(listed))
	for _, m := range listed {
		members = append(members, &Member{
			Username:     m.Username,
			PublicKeyB64: m.PublicKey,
		})
	}
	return members, nil
}

// Send encrypts text for every current room member and posts the resulting
// envelopes. The sender is a member too, so one envelope is always
// self-addressed; that is what lets the author reread their own history.
func (r *Room) Send(ctx context.Context, text string) (*SendResult, error) {
	return r.send(ctx, api.KindText, "", []byte(text))
}

// SendDocument encrypts a file for every current room member and posts it
// under the given filename.
func (r *Room) SendDocument(ctx context.Context, name string, data []byte) (*SendResult, error) {
	if name == "" {
		return nil, &InvalidParameterError{Message: "document name is required"}
	}
	return r.send(ctx, api.KindDocument, name, data)
}

func (r *Room) send(ctx context.Context, kind, name string, payload []byte) (*SendResult, error) {
	if err := r.client.checkReady(); err != nil {
		return nil, err
	}
	if len(payload) > crypto.MaxPlaintextSize {
		return nil, &InvalidParameterError{
			Message: fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), crypto.MaxPlaintextSize),
		}
	}

	members, err := r.client.api.RoomMembers(ctx, r.id)
	if err != nil {
		return nil, wrapError(err)
	}
	if len(members) == 0 {
		return nil, ErrRoomNotFound
	}

	// One envelope per member, produced concurrently. Each envelope gets
	// its own encapsulation and nonce; a failure for one member never
	// blocks the others.
	type fanoutSlot struct {
		envelope *api.RecipientEnvelope
		failure  *RecipientError
	}

	slots := make([]fanoutSlot, len(members))
	var wg sync.WaitGroup
	for idx, m := range members {
		wg.Add(1)
		go func(idx int, m api.Member) {
			defer wg.Done()

			pub, err := crypto.FromBase64URL(m.PublicKey)
			if err != nil {
				slots[idx].failure = &RecipientError{
					Recipient: m.Username,
					Err:       &MalformedKeyError{Message: "invalid public key encoding", Err: err},
				}
				return
			}

			env, err := crypto.Encrypt(payload, pub)
			if err != nil {
				slots[idx].failure = &RecipientError{Recipient: m.Username, Err: wrapCryptoError(err)}
				return
			}

			slots[idx].envelope = &api.RecipientEnvelope{
				Recipient: m.Username,
				Envelope:  env.Wire(),
			}
		}(idx, m)
	}
	wg.Wait()

	result := &SendResult{}
	envelopes := make([]api.RecipientEnvelope, 0, len(slots))
	selfAddressed := false
	for _, slot := range slots {
		if slot.failure != nil {
			result.Skipped = append(result.Skipped, slot.failure)
			continue
		}
		if slot.envelope.Recipient == r.client.identity.username {
			selfAddressed = true
		}
		envelopes = append(envelopes, *slot.envelope)
	}

	if len(envelopes) == 0 {
		return nil, fmt.Errorf("no recipient could be encrypted for: %w", result.Skipped[0].Err)
	}
	if !selfAddressed {
		// Without a self-addressed envelope the author loses their own
		// message; treat that the same as an all-recipients failure.
		for _, skipped := range result.Skipped {
			if skipped.Recipient == r.client.identity.username {
				return nil, fmt.Errorf("cannot encrypt for own key: %w", skipped.Err)
			}
		}
		return nil, fmt.Errorf("%w: not a member of room %s", ErrRoomNotFound, r.id)
	}

	posted, err := r.client.api.PostMessage(ctx, r.id, &api.PostMessageRequest{
		Kind:      kind,
		Name:      name,
		Envelopes: envelopes,
	})
	if err != nil {
		return nil, wrapError(err)
	}

	result.MessageID = posted.MessageID
	result.SentAt = posted.SentAt
	return result, nil
}

// Messages fetches and decrypts room history. sinceID narrows the fetch to
// messages after the given message ID; pass "" for the full history.
//
// Messages that fail to decrypt, because they predate this identity's
// membership or arrived corrupted, are skipped rather than aborting the
// whole fetch.
func (r *Room) Messages(ctx context.Context, sinceID string) ([]*Message, error) {
	if err := r.client.checkReady(); err != nil {
		return nil, err
	}

	raw, err := r.client.api.ListMessages(ctx, r.id, sinceID)
	if err != nil {
		return nil, wrapError(err)
	}

	messages := make([]*Message, 0, len(raw))
	for i := range raw {
		msg, err := decryptRaw(&raw[i], r.client.identity)
		if err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Watch registers a callback invoked for every new decrypted message in
// this room. Returns an unsubscribe function.
func (r *Room) Watch(callback func(*Message)) func() {
	return r.client.subs.subscribe(r.id, callback)
}

// Leave removes this client from the room. Messages already delivered stay
// readable locally; no new envelopes will be addressed to this identity.
func (r *Room) Leave(ctx context.Context) error {
	return r.client.LeaveRoom(ctx, r.id)
}
