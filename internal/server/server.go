package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Uttam-Mahata/qchat/internal/api"
	"github.com/Uttam-Mahata/qchat/internal/crypto"
)

// Server handles the chat service HTTP API. It stores envelopes verbatim
// and fans them out; plaintext and secret keys never reach it.
type Server struct {
	storage *Storage
	hub     *Hub
	cfg     *Config
	log     *logrus.Logger
}

// NewServer creates a server over the given storage and hub.
func NewServer(storage *Storage, hub *Hub, cfg *Config, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	return &Server{
		storage: storage,
		hub:     hub,
		cfg:     cfg,
		log:     log,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Handler returns the HTTP handler with all routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/login", s.handleLogin)

	authed := http.NewServeMux()
	authed.HandleFunc("GET /api/users/{username}/key", s.handleUserKey)
	authed.HandleFunc("POST /api/rooms", s.handleCreateRoom)
	authed.HandleFunc("GET /api/rooms", s.handleListRooms)
	authed.HandleFunc("POST /api/rooms/{id}/join", s.handleJoinRoom)
	authed.HandleFunc("POST /api/rooms/{id}/leave", s.handleLeaveRoom)
	authed.HandleFunc("GET /api/rooms/{id}/members", s.handleRoomMembers)
	authed.HandleFunc("POST /api/rooms/{id}/messages", s.handlePostMessage)
	authed.HandleFunc("GET /api/rooms/{id}/messages", s.handleListMessages)
	authed.HandleFunc("GET /api/events", s.handleEvents)

	mux.Handle("/api/", s.authMiddleware(authed))
	return mux
}

// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "qchatd",
	})
}

// POST /api/register
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.Username == "" || req.Password == "" || req.PublicKey == "" {
		writeError(w, http.StatusBadRequest, "missing required fields: username, password, publicKey")
		return
	}

	// The published key must be a structurally valid ML-KEM-768 public
	// key; a garbage key would silently lock the account out of every
	// conversation.
	pub, err := crypto.FromBase64URL(req.PublicKey)
	if err != nil || len(pub) != crypto.MLKEMPublicKeySize {
		writeError(w, http.StatusBadRequest, "publicKey must be a base64url ML-KEM-768 public key")
		return
	}

	hash, err := HashPassword(req.Password, s.cfg.BcryptCost)
	if err != nil {
		s.log.WithError(err).Error("password hashing failed")
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	user, err := s.storage.CreateUser(req.Username, hash, req.PublicKey)
	if err == ErrDuplicate {
		writeError(w, http.StatusConflict, "username already exists")
		return
	}
	if err != nil {
		s.log.WithError(err).Error("user creation failed")
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	s.log.WithField("username", user.Username).Info("user registered")
	writeJSON(w, http.StatusCreated, api.RegisterResponse{
		UserID:   user.ID,
		Username: user.Username,
	})
}

// POST /api/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	user, err := s.storage.GetUser(req.Username)
	if err != nil || !CheckPassword(user.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := NewSessionToken()
	if err != nil {
		s.log.WithError(err).Error("token generation failed")
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	if err := s.storage.CreateSession(token, user.Username, s.sessionExpiry()); err != nil {
		s.log.WithError(err).Error("session creation failed")
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	s.log.WithField("username", user.Username).Info("user logged in")
	writeJSON(w, http.StatusOK, api.LoginResponse{Token: token, UserID: user.ID})
}

// GET /api/users/{username}/key
func (s *Server) handleUserKey(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	user, err := s.storage.GetUser(username)
	if err == ErrNotFound {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		s.log.WithError(err).Error("user lookup failed")
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, api.UserKey{Username: user.Username, PublicKey: user.PublicKey})
}

// POST /api/rooms
func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req api.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "room name is required")
		return
	}

	room, err := s.storage.CreateRoom(req.Name, requestUser(r))
	if err != nil {
		s.log.WithError(err).Error("room creation failed")
		writeError(w, http.StatusInternalServerError, "room creation failed")
		return
	}

	s.log.WithFields(logrus.Fields{
		"room":    room.ID,
		"creator": room.CreatedBy,
	}).Info("room created")
	writeJSON(w, http.StatusCreated, api.Room{ID: room.ID, Name: room.Name, CreatedAt: room.CreatedAt})
}

// GET /api/rooms
func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.storage.RoomsForUser(requestUser(r))
	if err != nil {
		s.log.WithError(err).Error("room listing failed")
		writeError(w, http.StatusInternalServerError, "room listing failed")
		return
	}

	resp := api.RoomsResponse{Rooms: make([]api.Room, 0, len(rooms))}
	for _, room := range rooms {
		resp.Rooms = append(resp.Rooms, api.Room{ID: room.ID, Name: room.Name, CreatedAt: room.CreatedAt})
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /api/rooms/{id}/join
func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	if err := s.storage.JoinRoom(roomID, requestUser(r)); err == ErrNotFound {
		writeError(w, http.StatusNotFound, "room not found")
		return
	} else if err != nil {
		s.log.WithError(err).Error("room join failed")
		writeError(w, http.StatusInternalServerError, "room join failed")
		return
	}

	room, err := s.storage.GetRoom(roomID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "room join failed")
		return
	}
	writeJSON(w, http.StatusOK, api.Room{ID: room.ID, Name: room.Name, CreatedAt: room.CreatedAt})
}

// POST /api/rooms/{id}/leave
func (s *Server) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	err := s.storage.LeaveRoom(roomID, requestUser(r))
	if err == ErrNotMember {
		writeError(w, http.StatusNotFound, "not a room member")
		return
	}
	if err != nil {
		s.log.WithError(err).Error("room leave failed")
		writeError(w, http.StatusInternalServerError, "room leave failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /api/rooms/{id}/members
func (s *Server) handleRoomMembers(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")

	member, err := s.storage.IsMember(roomID, requestUser(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "member lookup failed")
		return
	}
	if !member {
		writeError(w, http.StatusForbidden, "not a room member")
		return
	}

	users, err := s.storage.RoomMembers(roomID)
	if err == ErrNotFound {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	if err != nil {
		s.log.WithError(err).Error("member listing failed")
		writeError(w, http.StatusInternalServerError, "member listing failed")
		return
	}

	resp := api.MembersResponse{Members: make([]api.Member, 0, len(users))}
	for _, u := range users {
		resp.Members = append(resp.Members, api.Member{
			UserID:    u.ID,
			Username:  u.Username,
			PublicKey: u.PublicKey,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /api/rooms/{id}/messages
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	sender := requestUser(r)

	member, err := s.storage.IsMember(roomID, sender)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "member lookup failed")
		return
	}
	if !member {
		writeError(w, http.StatusForbidden, "not a room member")
		return
	}

	var req api.PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Kind != api.KindText && req.Kind != api.KindDocument {
		writeError(w, http.StatusBadRequest, "kind must be text or document")
		return
	}
	if len(req.Envelopes) == 0 {
		writeError(w, http.StatusBadRequest, "at least one envelope is required")
		return
	}

	// Reject malformed envelopes before they hit storage. The decode
	// checks base64 and field lengths only; the contents stay opaque.
	record := &MessageRecord{
		ID:     uuid.NewString(),
		RoomID: roomID,
		Sender: sender,
		Kind:   req.Kind,
		Name:   req.Name,
		SentAt: time.Now().UTC(),
	}
	for i := range req.Envelopes {
		env := &req.Envelopes[i]
		if env.Recipient == "" || env.Envelope == nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("envelope %d: missing recipient or envelope", i))
			return
		}
		if _, err := env.Envelope.Decode(); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("envelope %d: malformed", i))
			return
		}
		isMember, err := s.storage.IsMember(roomID, env.Recipient)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "member lookup failed")
			return
		}
		if !isMember {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("envelope %d: recipient is not a room member", i))
			return
		}
		record.Envelopes = append(record.Envelopes, EnvelopeRecord{
			Recipient:  env.Recipient,
			Ciphertext: env.Envelope.Ciphertext,
			KEMCt:      env.Envelope.EncapsulatedKey,
			Nonce:      env.Envelope.Nonce,
		})
	}

	if err := s.storage.SaveMessage(record); err != nil {
		s.log.WithError(err).Error("message save failed")
		writeError(w, http.StatusInternalServerError, "message save failed")
		return
	}

	// Push each recipient their own envelope.
	for i := range req.Envelopes {
		s.hub.Publish(req.Envelopes[i].Recipient, &api.MessageEvent{
			RoomID:    roomID,
			MessageID: record.ID,
			Sender:    sender,
			Kind:      record.Kind,
			Name:      record.Name,
			SentAt:    record.SentAt,
			Envelope:  req.Envelopes[i].Envelope,
		})
	}

	s.log.WithFields(logrus.Fields{
		"room":       roomID,
		"sender":     sender,
		"message":    record.ID,
		"recipients": len(record.Envelopes),
	}).Info("message stored")
	writeJSON(w, http.StatusCreated, api.PostMessageResponse{
		MessageID: record.ID,
		SentAt:    record.SentAt,
	})
}

// GET /api/rooms/{id}/messages
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	caller := requestUser(r)

	member, err := s.storage.IsMember(roomID, caller)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "member lookup failed")
		return
	}
	if !member {
		writeError(w, http.StatusForbidden, "not a room member")
		return
	}

	records, err := s.storage.MessagesFor(roomID, caller, r.URL.Query().Get("since"))
	if err != nil {
		s.log.WithError(err).Error("message listing failed")
		writeError(w, http.StatusInternalServerError, "message listing failed")
		return
	}

	resp := api.MessagesResponse{Messages: make([]api.RawMessage, 0, len(records))}
	for _, rec := range records {
		env := rec.Envelopes[0]
		resp.Messages = append(resp.Messages, api.RawMessage{
			ID:     rec.ID,
			RoomID: rec.RoomID,
			Sender: rec.Sender,
			Kind:   rec.Kind,
			Name:   rec.Name,
			SentAt: rec.SentAt,
			Envelope: &crypto.WireEnvelope{
				Ciphertext:      env.Ciphertext,
				EncapsulatedKey: env.KEMCt,
				Nonce:           env.Nonce,
			},
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /api/events
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	caller := requestUser(r)
	events, cancel := s.hub.Subscribe(caller)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.log.WithField("username", caller).Debug("event stream opened")

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.log.WithField("username", caller).Debug("event stream closed")
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case event := <-events:
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
