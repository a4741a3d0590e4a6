package delivery

import (
	"context"
	"time"

	"github.com/Uttam-Mahata/qchat/internal/api"
)

// RoomInfo contains the information needed to monitor a room for new messages.
type RoomInfo struct {
	// ID is the room identifier.
	ID string
	// Name is the human-readable room name, used for logging only.
	Name string
	// LastMessageID is the newest message already delivered for this
	// room, if any. Polling resumes after it instead of replaying
	// history.
	LastMessageID string
}

// EventHandler is a callback function invoked when a new message arrives.
// The handler receives the connection context and the event carrying the
// envelope addressed to the connected user. Return an error to signal
// processing failure (currently errors are not propagated, but this may
// change).
type EventHandler func(ctx context.Context, event *api.MessageEvent) error

// Strategy defines the interface for message delivery mechanisms.
// Implementations include PollingStrategy and SSEStrategy.
//
// The typical lifecycle is:
//  1. Create a strategy with NewXxxStrategy(cfg)
//  2. Call Start(ctx, rooms, handler) to begin receiving events
//  3. Optionally call AddRoom/RemoveRoom to modify monitored rooms
//  4. Call Stop() when done to release resources
//
// All implementations are safe for concurrent use.
type Strategy interface {
	// Start begins listening for messages in the given rooms.
	// The handler is called for each new message that arrives.
	// Start returns immediately; event delivery is asynchronous.
	Start(ctx context.Context, rooms []RoomInfo, handler EventHandler) error

	// Stop gracefully shuts down the strategy and releases resources.
	// Stop is idempotent and safe to call multiple times.
	Stop() error

	// AddRoom adds a room to monitor (immediately for polling, relevant
	// only for resync bookkeeping for SSE, whose stream is per-user).
	AddRoom(room RoomInfo) error

	// RemoveRoom removes a room from monitoring.
	RemoveRoom(roomID string) error

	// Name returns the strategy name for logging and debugging.
	Name() string

	// OnReconnect sets a callback invoked after each successful
	// connection/reconnection. For SSE this runs after the event stream
	// connects and can be used to sync messages that arrived during the
	// reconnection window. Polling has no persistent connection, so it
	// is a no-op there.
	OnReconnect(fn func(ctx context.Context))
}

// Config holds configuration shared by all delivery strategies.
type Config struct {
	// APIClient is the API client used for making requests to the server.
	APIClient *api.Client

	// PollingInitialInterval is the starting interval between polls.
	PollingInitialInterval time.Duration

	// PollingMaxBackoff is the maximum interval between polls.
	PollingMaxBackoff time.Duration

	// PollingBackoffMultiplier is the factor by which the interval
	// increases after each poll with no changes.
	PollingBackoffMultiplier float64

	// PollingJitterFactor is the maximum random jitter added to poll
	// intervals (as a fraction of the interval).
	PollingJitterFactor float64
}

// Default polling configuration values.
const (
	DefaultPollingInitialInterval   = 2 * time.Second
	DefaultPollingMaxBackoff        = 30 * time.Second
	DefaultPollingBackoffMultiplier = 1.5
	DefaultPollingJitterFactor      = 0.3
)
