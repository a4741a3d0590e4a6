package qchat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Uttam-Mahata/qchat/internal/api"
	"github.com/Uttam-Mahata/qchat/internal/crypto"
)

// fakeServer is an in-memory qchat server for SDK tests. It stores
// envelopes verbatim and never inspects their contents, matching the real
// server's zero-knowledge contract.
type fakeServer struct {
	mu       sync.Mutex
	users    map[string]*fakeUser
	tokens   map[string]string // token -> username
	rooms    map[string]*fakeRoom
	nextID   int
	srv      *httptest.Server
	eventsOK bool
}

type fakeUser struct {
	password  string
	publicKey string
}

type fakeRoom struct {
	name     string
	members  []string
	messages []*fakeMessage
}

type fakeMessage struct {
	id        string
	sender    string
	kind      string
	name      string
	sentAt    time.Time
	envelopes map[string]*crypto.WireEnvelope
}

func newFakeServer() *fakeServer {
	f := &fakeServer{
		users:  make(map[string]*fakeUser),
		tokens: make(map[string]string),
		rooms:  make(map[string]*fakeRoom),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

func (f *fakeServer) Close() { f.srv.Close() }

func (f *fakeServer) URL() string { return f.srv.URL }

func (f *fakeServer) genID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeServer) auth(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	user, ok := f.tokens[strings.TrimPrefix(header, "Bearer ")]
	return user, ok
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (f *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/api/register" && r.Method == "POST":
		var req api.RegisterRequest
		json.NewDecoder(r.Body).Decode(&req)
		if _, exists := f.users[req.Username]; exists {
			writeErr(w, 409, "username already exists")
			return
		}
		f.users[req.Username] = &fakeUser{password: req.Password, publicKey: req.PublicKey}
		writeJSON(w, 201, api.RegisterResponse{UserID: f.genID("user"), Username: req.Username})

	case r.URL.Path == "/api/login" && r.Method == "POST":
		var req api.LoginRequest
		json.NewDecoder(r.Body).Decode(&req)
		user, ok := f.users[req.Username]
		if !ok || user.password != req.Password {
			writeErr(w, 401, "invalid credentials")
			return
		}
		token := f.genID("token")
		f.tokens[token] = req.Username
		writeJSON(w, 200, api.LoginResponse{Token: token, UserID: req.Username})

	case r.URL.Path == "/api/events":
		if !f.eventsOK {
			writeErr(w, 404, "not found")
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(200)

	case strings.HasPrefix(r.URL.Path, "/api/users/") && strings.HasSuffix(r.URL.Path, "/key"):
		username := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/users/"), "/key")
		user, ok := f.users[username]
		if !ok {
			writeErr(w, 404, "user not found")
			return
		}
		writeJSON(w, 200, api.UserKey{Username: username, PublicKey: user.publicKey})

	case r.URL.Path == "/api/rooms" && r.Method == "POST":
		caller, ok := f.auth(r)
		if !ok {
			writeErr(w, 401, "invalid token")
			return
		}
		var req api.CreateRoomRequest
		json.NewDecoder(r.Body).Decode(&req)
		id := f.genID("room")
		f.rooms[id] = &fakeRoom{name: req.Name, members: []string{caller}}
		writeJSON(w, 201, api.Room{ID: id, Name: req.Name, CreatedAt: time.Now()})

	case r.URL.Path == "/api/rooms" && r.Method == "GET":
		caller, ok := f.auth(r)
		if !ok {
			writeErr(w, 401, "invalid token")
			return
		}
		var rooms []api.Room
		for id, room := range f.rooms {
			for _, m := range room.members {
				if m == caller {
					rooms = append(rooms, api.Room{ID: id, Name: room.name})
				}
			}
		}
		writeJSON(w, 200, api.RoomsResponse{Rooms: rooms})

	case strings.HasPrefix(r.URL.Path, "/api/rooms/"):
		f.handleRoom(w, r)

	default:
		writeErr(w, 404, "not found")
	}
}

func (f *fakeServer) handleRoom(w http.ResponseWriter, r *http.Request) {
	caller, ok := f.auth(r)
	if !ok {
		writeErr(w, 401, "invalid token")
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/rooms/"), "/")
	if len(parts) != 2 {
		writeErr(w, 404, "not found")
		return
	}
	roomID, action := parts[0], parts[1]

	room, ok := f.rooms[roomID]
	if !ok {
		writeErr(w, 404, "room not found")
		return
	}

	switch {
	case action == "join" && r.Method == "POST":
		for _, m := range room.members {
			if m == caller {
				writeJSON(w, 200, api.Room{ID: roomID, Name: room.name})
				return
			}
		}
		room.members = append(room.members, caller)
		writeJSON(w, 200, api.Room{ID: roomID, Name: room.name})

	case action == "leave" && r.Method == "POST":
		kept := room.members[:0]
		for _, m := range room.members {
			if m != caller {
				kept = append(kept, m)
			}
		}
		room.members = kept
		writeJSON(w, 200, map[string]string{"status": "ok"})

	case action == "members" && r.Method == "GET":
		resp := api.MembersResponse{}
		for _, m := range room.members {
			resp.Members = append(resp.Members, api.Member{
				UserID:    m,
				Username:  m,
				PublicKey: f.users[m].publicKey,
			})
		}
		writeJSON(w, 200, resp)

	case action == "messages" && r.Method == "POST":
		var req api.PostMessageRequest
		json.NewDecoder(r.Body).Decode(&req)
		msg := &fakeMessage{
			id:        f.genID("msg"),
			sender:    caller,
			kind:      req.Kind,
			name:      req.Name,
			sentAt:    time.Now().UTC(),
			envelopes: make(map[string]*crypto.WireEnvelope),
		}
		for i := range req.Envelopes {
			msg.envelopes[req.Envelopes[i].Recipient] = req.Envelopes[i].Envelope
		}
		room.messages = append(room.messages, msg)
		writeJSON(w, 201, api.PostMessageResponse{MessageID: msg.id, SentAt: msg.sentAt})

	case action == "messages" && r.Method == "GET":
		since := r.URL.Query().Get("since")
		resp := api.MessagesResponse{}
		include := since == ""
		for _, msg := range room.messages {
			if !include {
				if msg.id == since {
					include = true
				}
				continue
			}
			env, addressed := msg.envelopes[caller]
			if !addressed {
				continue
			}
			resp.Messages = append(resp.Messages, api.RawMessage{
				ID:       msg.id,
				RoomID:   roomID,
				Sender:   msg.sender,
				Kind:     msg.kind,
				Name:     msg.name,
				SentAt:   msg.sentAt,
				Envelope: env,
			})
		}
		writeJSON(w, 200, resp)

	default:
		writeErr(w, 404, "not found")
	}
}

// newTestClient registers and logs in a fresh user against the fake server.
func newTestClient(t *testing.T, f *fakeServer, username string) *Client {
	t.Helper()

	identity, err := NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity() error = %v", err)
	}

	client, err := New(f.URL(), identity,
		WithDeliveryStrategy(StrategyPolling),
		WithPollingInterval(50*time.Millisecond, 200*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	if err := client.Register(ctx, username, "password-"+username); err != nil {
		t.Fatalf("Register(%q) error = %v", username, err)
	}
	if err := client.Login(ctx, username, "password-"+username); err != nil {
		t.Fatalf("Login(%q) error = %v", username, err)
	}
	return client
}

func TestNewRequiresIdentity(t *testing.T) {
	_, err := New("https://example.com", nil)
	if !errors.Is(err, ErrMissingIdentity) {
		t.Errorf("error = %v, want ErrMissingIdentity", err)
	}
}

func TestOperationsRequireLogin(t *testing.T) {
	identity, err := NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity() error = %v", err)
	}
	client, err := New("https://example.com", identity)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close()

	if _, err := client.Rooms(context.Background()); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("Rooms() error = %v, want ErrNotLoggedIn", err)
	}
	if _, err := client.CreateRoom(context.Background(), "general"); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("CreateRoom() error = %v, want ErrNotLoggedIn", err)
	}
}

func TestOperationsAfterClose(t *testing.T) {
	identity, err := NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity() error = %v", err)
	}
	client, err := New("https://example.com", identity)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	client.Close()

	if _, err := client.Rooms(context.Background()); !errors.Is(err, ErrClientClosed) {
		t.Errorf("Rooms() error = %v, want ErrClientClosed", err)
	}
	if err := client.Register(context.Background(), "alice", "pw"); !errors.Is(err, ErrClientClosed) {
		t.Errorf("Register() error = %v, want ErrClientClosed", err)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	f := newFakeServer()
	defer f.Close()

	newTestClient(t, f, "alice")

	identity, _ := NewIdentity()
	client, err := New(f.URL(), identity)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close()

	err = client.Register(context.Background(), "alice", "other")
	if !errors.Is(err, ErrUserExists) {
		t.Errorf("Register() error = %v, want ErrUserExists", err)
	}
}

func TestLoginBadPassword(t *testing.T) {
	f := newFakeServer()
	defer f.Close()

	newTestClient(t, f, "alice")

	identity, _ := NewIdentity()
	client, err := New(f.URL(), identity)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close()

	err = client.Login(context.Background(), "alice", "wrong")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Login() error = %v, want ErrUnauthorized", err)
	}
}

func TestSendAndReceive(t *testing.T) {
	f := newFakeServer()
	defer f.Close()

	alice := newTestClient(t, f, "alice")
	bob := newTestClient(t, f, "bob")

	ctx := context.Background()
	room, err := alice.CreateRoom(ctx, "general")
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	if _, err := bob.JoinRoom(ctx, room.ID()); err != nil {
		t.Fatalf("JoinRoom() error = %v", err)
	}

	result, err := room.Send(ctx, "hello quantum world")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if result.MessageID == "" {
		t.Error("Send() returned empty message ID")
	}
	if len(result.Skipped) != 0 {
		t.Errorf("Send() skipped %d recipients, want 0", len(result.Skipped))
	}

	// One envelope per member, including the sender's own.
	f.mu.Lock()
	stored := f.rooms[room.ID()].messages[0]
	envCount := len(stored.envelopes)
	f.mu.Unlock()
	if envCount != 2 {
		t.Errorf("stored %d envelopes, want 2", envCount)
	}

	bobRoom, err := bob.JoinRoom(ctx, room.ID())
	if err != nil {
		t.Fatalf("JoinRoom() error = %v", err)
	}
	msgs, err := bobRoom.Messages(ctx, "")
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("Messages() returned %d messages, want 1", len(msgs))
	}
	if msgs[0].Text() != "hello quantum world" {
		t.Errorf("decrypted text = %q, want %q", msgs[0].Text(), "hello quantum world")
	}
	if msgs[0].Sender != "alice" {
		t.Errorf("sender = %q, want alice", msgs[0].Sender)
	}
	if msgs[0].Kind != KindText {
		t.Errorf("kind = %q, want %q", msgs[0].Kind, KindText)
	}

	// The sender reads their own history through the self-addressed envelope.
	aliceMsgs, err := room.Messages(ctx, "")
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(aliceMsgs) != 1 || aliceMsgs[0].Text() != "hello quantum world" {
		t.Errorf("sender could not read own message back: %v", aliceMsgs)
	}
}

func TestSendDocument(t *testing.T) {
	f := newFakeServer()
	defer f.Close()

	alice := newTestClient(t, f, "alice")

	ctx := context.Background()
	room, err := alice.CreateRoom(ctx, "files")
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}

	content := []byte{0x00, 0x01, 0xFF, 0xFE, 0x7F}
	if _, err := room.SendDocument(ctx, "report.pdf", content); err != nil {
		t.Fatalf("SendDocument() error = %v", err)
	}

	msgs, err := room.Messages(ctx, "")
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("Messages() returned %d messages, want 1", len(msgs))
	}
	if msgs[0].Kind != KindDocument {
		t.Errorf("kind = %q, want %q", msgs[0].Kind, KindDocument)
	}
	if msgs[0].Name != "report.pdf" {
		t.Errorf("name = %q, want report.pdf", msgs[0].Name)
	}
	got := msgs[0].Data()
	if len(got) != len(content) {
		t.Fatalf("payload length = %d, want %d", len(got), len(content))
	}
	for i := range content {
		if got[i] != content[i] {
			t.Fatalf("payload differs at byte %d", i)
		}
	}
}

func TestSendDocumentRequiresName(t *testing.T) {
	f := newFakeServer()
	defer f.Close()

	alice := newTestClient(t, f, "alice")
	room, err := alice.CreateRoom(context.Background(), "files")
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}

	_, err = room.SendDocument(context.Background(), "", []byte("data"))
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("SendDocument() error = %v, want ErrInvalidParameter", err)
	}
}

func TestSendSkipsBadRecipientKey(t *testing.T) {
	f := newFakeServer()
	defer f.Close()

	alice := newTestClient(t, f, "alice")
	bob := newTestClient(t, f, "bob")

	ctx := context.Background()
	room, err := alice.CreateRoom(ctx, "general")
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	if _, err := bob.JoinRoom(ctx, room.ID()); err != nil {
		t.Fatalf("JoinRoom() error = %v", err)
	}

	// Corrupt bob's published key. Alice's send must still reach everyone
	// else, with bob reported as skipped.
	f.mu.Lock()
	f.users["bob"].publicKey = "corrupted!!!"
	f.mu.Unlock()

	result, err := room.Send(ctx, "hello")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(result.Skipped) != 1 {
		t.Fatalf("Send() skipped %d recipients, want 1", len(result.Skipped))
	}
	if result.Skipped[0].Recipient != "bob" {
		t.Errorf("skipped recipient = %q, want bob", result.Skipped[0].Recipient)
	}
	if !errors.Is(result.Skipped[0], ErrMalformedKey) {
		t.Errorf("skipped error = %v, want ErrMalformedKey", result.Skipped[0])
	}
}

func TestMessagesSkipsUndecryptable(t *testing.T) {
	f := newFakeServer()
	defer f.Close()

	alice := newTestClient(t, f, "alice")

	ctx := context.Background()
	room, err := alice.CreateRoom(ctx, "general")
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}

	if _, err := room.Send(ctx, "first"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if _, err := room.Send(ctx, "second"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	// Corrupt the first stored envelope. History must still return the
	// second message instead of failing wholesale.
	f.mu.Lock()
	env := f.rooms[room.ID()].messages[0].envelopes["alice"]
	env.Ciphertext = crypto.ToBase64URL([]byte("garbage garbage garbage"))
	f.mu.Unlock()

	msgs, err := room.Messages(ctx, "")
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("Messages() returned %d messages, want 1", len(msgs))
	}
	if msgs[0].Text() != "second" {
		t.Errorf("surviving message = %q, want %q", msgs[0].Text(), "second")
	}
}

func TestMessagesSince(t *testing.T) {
	f := newFakeServer()
	defer f.Close()

	alice := newTestClient(t, f, "alice")

	ctx := context.Background()
	room, err := alice.CreateRoom(ctx, "general")
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}

	first, err := room.Send(ctx, "first")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if _, err := room.Send(ctx, "second"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	msgs, err := room.Messages(ctx, first.MessageID)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text() != "second" {
		t.Errorf("Messages(since) = %v, want just %q", msgs, "second")
	}
}

func TestWatchDeliversViaPolling(t *testing.T) {
	f := newFakeServer()
	defer f.Close()

	alice := newTestClient(t, f, "alice")
	bob := newTestClient(t, f, "bob")

	ctx := context.Background()
	room, err := alice.CreateRoom(ctx, "general")
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	bobRoom, err := bob.JoinRoom(ctx, room.ID())
	if err != nil {
		t.Fatalf("JoinRoom() error = %v", err)
	}

	received := make(chan *Message, 1)
	unsubscribe := bobRoom.Watch(func(msg *Message) {
		select {
		case received <- msg:
		default:
		}
	})
	defer unsubscribe()

	if _, err := room.Send(ctx, "ping"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg.Text() != "ping" {
			t.Errorf("watched message = %q, want ping", msg.Text())
		}
		if msg.Sender != "alice" {
			t.Errorf("sender = %q, want alice", msg.Sender)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watched message")
	}
}

func TestClientWatchAllRooms(t *testing.T) {
	f := newFakeServer()
	defer f.Close()

	alice := newTestClient(t, f, "alice")
	bob := newTestClient(t, f, "bob")

	ctx := context.Background()
	room, err := alice.CreateRoom(ctx, "general")
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	if _, err := bob.JoinRoom(ctx, room.ID()); err != nil {
		t.Fatalf("JoinRoom() error = %v", err)
	}

	received := make(chan *Message, 1)
	unsubscribe := bob.Watch(func(msg *Message) {
		select {
		case received <- msg:
		default:
		}
	})
	defer unsubscribe()

	if _, err := room.Send(ctx, "broadcast"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg.Text() != "broadcast" {
			t.Errorf("watched message = %q, want broadcast", msg.Text())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watched message")
	}
}

func TestContactFingerprint(t *testing.T) {
	f := newFakeServer()
	defer f.Close()

	alice := newTestClient(t, f, "alice")
	bob := newTestClient(t, f, "bob")

	fp, err := alice.ContactFingerprint(context.Background(), "bob")
	if err != nil {
		t.Fatalf("ContactFingerprint() error = %v", err)
	}
	if fp != bob.Identity().Fingerprint() {
		t.Errorf("fingerprint over directory = %q, want %q", fp, bob.Identity().Fingerprint())
	}
}

func TestLeaveRoom(t *testing.T) {
	f := newFakeServer()
	defer f.Close()

	alice := newTestClient(t, f, "alice")
	bob := newTestClient(t, f, "bob")

	ctx := context.Background()
	room, err := alice.CreateRoom(ctx, "general")
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	bobRoom, err := bob.JoinRoom(ctx, room.ID())
	if err != nil {
		t.Fatalf("JoinRoom() error = %v", err)
	}
	if err := bobRoom.Leave(ctx); err != nil {
		t.Fatalf("Leave() error = %v", err)
	}

	members, err := room.Members(ctx)
	if err != nil {
		t.Fatalf("Members() error = %v", err)
	}
	if len(members) != 1 || members[0].Username != "alice" {
		t.Errorf("members after leave = %v, want just alice", members)
	}

	// New messages carry no envelope for the departed member.
	if _, err := room.Send(ctx, "after departure"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	f.mu.Lock()
	stored := f.rooms[room.ID()].messages[0]
	_, addressed := stored.envelopes["bob"]
	f.mu.Unlock()
	if addressed {
		t.Error("message after leave still carries an envelope for bob")
	}
}

func TestWatchResyncsAfterReconnect(t *testing.T) {
	f := newFakeServer()
	defer f.Close()

	// The fake server has no event stream, so an SSE client receives
	// nothing until a reconnect resync runs.
	identity, err := NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity() error = %v", err)
	}
	alice, err := New(f.URL(), identity, WithDeliveryStrategy(StrategySSE))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { alice.Close() })

	ctx := context.Background()
	if err := alice.Register(ctx, "alice", "secret"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := alice.Login(ctx, "alice", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	bob := newTestClient(t, f, "bob")

	room, err := alice.CreateRoom(ctx, "general")
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	bobRoom, err := bob.JoinRoom(ctx, room.ID())
	if err != nil {
		t.Fatalf("JoinRoom() error = %v", err)
	}

	events := make(chan *Message, 8)
	unsub := alice.Watch(func(m *Message) { events <- m })
	defer unsub()

	first, err := bobRoom.Send(ctx, "seen live")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	// Nothing has been delivered yet, so there is no cursor to resume
	// from and resync must not replay room history.
	alice.resync(ctx)
	select {
	case m := <-events:
		t.Fatalf("resync without cursor delivered %q", m.Text())
	case <-time.After(100 * time.Millisecond):
	}

	// Deliver the first message as a live stream event.
	f.mu.Lock()
	stored := f.rooms[room.ID()].messages[0]
	ev := &api.MessageEvent{
		RoomID:    room.ID(),
		MessageID: stored.id,
		Sender:    stored.sender,
		Kind:      stored.kind,
		SentAt:    stored.sentAt,
		Envelope:  stored.envelopes["alice"],
	}
	f.mu.Unlock()
	alice.handleEvent(ctx, ev)

	select {
	case m := <-events:
		if m.ID != first.MessageID {
			t.Fatalf("live message ID = %q, want %q", m.ID, first.MessageID)
		}
	case <-time.After(time.Second):
		t.Fatal("live event was not delivered")
	}

	// A message posted while the stream was down must arrive via resync.
	if _, err := bobRoom.Send(ctx, "missed while reconnecting"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	alice.resync(ctx)

	select {
	case m := <-events:
		if m.Text() != "missed while reconnecting" {
			t.Errorf("resynced message = %q", m.Text())
		}
	case <-time.After(time.Second):
		t.Fatal("resync did not deliver the missed message")
	}

	// The cursor advanced; a second resync must not redeliver.
	alice.resync(ctx)
	select {
	case m := <-events:
		t.Fatalf("duplicate delivery of %q", m.Text())
	case <-time.After(100 * time.Millisecond):
	}
}
