package server

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Storage errors.
var (
	ErrNotFound   = errors.New("not found")
	ErrDuplicate  = errors.New("already exists")
	ErrNotMember  = errors.New("not a room member")
	ErrBadSession = errors.New("invalid session")
)

// Storage persists users, sessions, rooms and envelopes in SQLite.
// Envelope columns are opaque base64 text; the server never holds key
// material that could open them.
type Storage struct {
	db *sql.DB
}

// User is a registered account with its published public key.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	PublicKey    string
	CreatedAt    time.Time
}

// RoomRecord is a stored chat room.
type RoomRecord struct {
	ID        string
	Name      string
	CreatedBy string
	CreatedAt time.Time
}

// EnvelopeRecord is one recipient's envelope for one message, exactly as
// posted by the sender.
type EnvelopeRecord struct {
	Recipient  string
	Ciphertext string
	KEMCt      string
	Nonce      string
}

// MessageRecord is a stored message with its per-recipient envelopes.
type MessageRecord struct {
	ID        string
	RoomID    string
	Sender    string
	Kind      string
	Name      string
	SentAt    time.Time
	Envelopes []EnvelopeRecord
}

// NewStorage opens (or creates) the database at dbPath.
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// modernc.org/sqlite serializes writes itself, but a single
	// connection avoids SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	s := &Storage{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		public_key TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS room_members (
		room_id TEXT NOT NULL,
		username TEXT NOT NULL,
		joined_at INTEGER NOT NULL,
		PRIMARY KEY (room_id, username)
	);
	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		room_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		kind TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		sent_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS envelopes (
		message_id TEXT NOT NULL,
		recipient TEXT NOT NULL,
		ciphertext TEXT NOT NULL,
		ct_kem TEXT NOT NULL,
		nonce TEXT NOT NULL,
		PRIMARY KEY (message_id, recipient)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, seq);
	CREATE INDEX IF NOT EXISTS idx_members_user ON room_members(username);
	CREATE INDEX IF NOT EXISTS idx_sessions_expiry ON sessions(expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// CreateUser stores a new account. Returns ErrDuplicate when the username
// is taken.
func (s *Storage) CreateUser(username, passwordHash, publicKey string) (*User, error) {
	user := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		PublicKey:    publicKey,
		CreatedAt:    time.Now().UTC(),
	}

	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM users WHERE username = ?`, username).Scan(&exists); err != nil {
		return nil, err
	}
	if exists > 0 {
		return nil, ErrDuplicate
	}

	_, err := s.db.Exec(
		`INSERT INTO users (id, username, password_hash, public_key, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.PasswordHash, user.PublicKey, user.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser looks up an account by username.
func (s *Storage) GetUser(username string) (*User, error) {
	var user User
	var createdUnix int64
	err := s.db.QueryRow(
		`SELECT id, username, password_hash, public_key, created_at FROM users WHERE username = ?`,
		username,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.PublicKey, &createdUnix)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	user.CreatedAt = time.Unix(createdUnix, 0).UTC()
	return &user, nil
}

// CreateSession stores a login token valid until expiry.
func (s *Storage) CreateSession(token, username string, expiresAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (token, username, expires_at) VALUES (?, ?, ?)`,
		token, username, expiresAt.Unix(),
	)
	return err
}

// SessionUser resolves a token to its username. Expired or unknown tokens
// return ErrBadSession.
func (s *Storage) SessionUser(token string) (string, error) {
	var username string
	var expiresUnix int64
	err := s.db.QueryRow(
		`SELECT username, expires_at FROM sessions WHERE token = ?`, token,
	).Scan(&username, &expiresUnix)
	if err == sql.ErrNoRows {
		return "", ErrBadSession
	}
	if err != nil {
		return "", err
	}
	if time.Now().Unix() >= expiresUnix {
		s.db.Exec(`DELETE FROM sessions WHERE token = ?`, token)
		return "", ErrBadSession
	}
	return username, nil
}

// CreateRoom stores a room with the creator as its first member.
func (s *Storage) CreateRoom(name, creator string) (*RoomRecord, error) {
	room := &RoomRecord{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedBy: creator,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO rooms (id, name, created_by, created_at) VALUES (?, ?, ?, ?)`,
		room.ID, room.Name, room.CreatedBy, room.CreatedAt.Unix(),
	); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(
		`INSERT INTO room_members (room_id, username, joined_at) VALUES (?, ?, ?)`,
		room.ID, creator, room.CreatedAt.Unix(),
	); err != nil {
		return nil, err
	}
	return room, tx.Commit()
}

// GetRoom looks up a room by ID.
func (s *Storage) GetRoom(roomID string) (*RoomRecord, error) {
	var room RoomRecord
	var createdUnix int64
	err := s.db.QueryRow(
		`SELECT id, name, created_by, created_at FROM rooms WHERE id = ?`, roomID,
	).Scan(&room.ID, &room.Name, &room.CreatedBy, &createdUnix)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	room.CreatedAt = time.Unix(createdUnix, 0).UTC()
	return &room, nil
}

// RoomsForUser lists rooms the user is a member of.
func (s *Storage) RoomsForUser(username string) ([]RoomRecord, error) {
	rows, err := s.db.Query(
		`SELECT r.id, r.name, r.created_by, r.created_at
		 FROM rooms r JOIN room_members m ON m.room_id = r.id
		 WHERE m.username = ? ORDER BY r.created_at`, username,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []RoomRecord
	for rows.Next() {
		var room RoomRecord
		var createdUnix int64
		if err := rows.Scan(&room.ID, &room.Name, &room.CreatedBy, &createdUnix); err != nil {
			return nil, err
		}
		room.CreatedAt = time.Unix(createdUnix, 0).UTC()
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// JoinRoom adds a user to a room. Joining twice is a no-op.
func (s *Storage) JoinRoom(roomID, username string) error {
	if _, err := s.GetRoom(roomID); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO room_members (room_id, username, joined_at) VALUES (?, ?, ?)`,
		roomID, username, time.Now().Unix(),
	)
	return err
}

// LeaveRoom removes a user from a room.
func (s *Storage) LeaveRoom(roomID, username string) error {
	result, err := s.db.Exec(
		`DELETE FROM room_members WHERE room_id = ? AND username = ?`,
		roomID, username,
	)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrNotMember
	}
	return nil
}

// IsMember reports whether the user belongs to the room.
func (s *Storage) IsMember(roomID, username string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(1) FROM room_members WHERE room_id = ? AND username = ?`,
		roomID, username,
	).Scan(&count)
	return count > 0, err
}

// RoomMembers lists the room's members with their public keys.
func (s *Storage) RoomMembers(roomID string) ([]User, error) {
	if _, err := s.GetRoom(roomID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT u.id, u.username, u.public_key
		 FROM users u JOIN room_members m ON m.username = u.username
		 WHERE m.room_id = ? ORDER BY m.joined_at`, roomID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.PublicKey); err != nil {
			return nil, err
		}
		members = append(members, u)
	}
	return members, rows.Err()
}

// SaveMessage stores a message and its per-recipient envelopes atomically.
func (s *Storage) SaveMessage(msg *MessageRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO messages (id, room_id, sender, kind, name, sent_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.RoomID, msg.Sender, msg.Kind, msg.Name, msg.SentAt.Unix(),
	); err != nil {
		return err
	}

	for _, env := range msg.Envelopes {
		if _, err := tx.Exec(
			`INSERT INTO envelopes (message_id, recipient, ciphertext, ct_kem, nonce) VALUES (?, ?, ?, ?, ?)`,
			msg.ID, env.Recipient, env.Ciphertext, env.KEMCt, env.Nonce,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// MessagesFor returns the recipient's envelopes for a room, oldest first.
// sinceID, when non-empty, restricts the result to messages stored after
// that message; an unknown sinceID yields the full history.
func (s *Storage) MessagesFor(roomID, recipient, sinceID string) ([]MessageRecord, error) {
	sinceSeq := int64(0)
	if sinceID != "" {
		err := s.db.QueryRow(`SELECT seq FROM messages WHERE id = ?`, sinceID).Scan(&sinceSeq)
		if err != nil && err != sql.ErrNoRows {
			return nil, err
		}
	}

	rows, err := s.db.Query(
		`SELECT m.id, m.room_id, m.sender, m.kind, m.name, m.sent_at,
		        e.ciphertext, e.ct_kem, e.nonce
		 FROM messages m JOIN envelopes e ON e.message_id = m.id
		 WHERE m.room_id = ? AND e.recipient = ? AND m.seq > ?
		 ORDER BY m.seq`, roomID, recipient, sinceSeq,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []MessageRecord
	for rows.Next() {
		var msg MessageRecord
		var env EnvelopeRecord
		var sentUnix int64
		if err := rows.Scan(
			&msg.ID, &msg.RoomID, &msg.Sender, &msg.Kind, &msg.Name, &sentUnix,
			&env.Ciphertext, &env.KEMCt, &env.Nonce,
		); err != nil {
			return nil, err
		}
		msg.SentAt = time.Unix(sentUnix, 0).UTC()
		env.Recipient = recipient
		msg.Envelopes = []EnvelopeRecord{env}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// PruneSessions deletes expired sessions. Called periodically by the daemon.
func (s *Storage) PruneSessions() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM sessions WHERE expires_at < ?`, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
