package delivery

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Uttam-Mahata/qchat/internal/api"
)

const (
	SSEReconnectInterval    = 5 * time.Second
	SSEMaxReconnectAttempts = 10
)

// SSEStrategy implements message delivery via Server-Sent Events. One
// stream per authenticated user carries the events for all their rooms.
type SSEStrategy struct {
	apiClient     *api.Client
	rooms         map[string]struct{}
	handler       EventHandler
	onReconnect   func(ctx context.Context)
	cancel        context.CancelFunc
	mu            sync.RWMutex
	reconnectWait time.Duration
	attempts      int
	started       bool
	connected     chan struct{} // closed when the first connection is established
	connectedOnce sync.Once
	lastError     error
}

// NewSSEStrategy creates a new SSE strategy.
func NewSSEStrategy(cfg Config) *SSEStrategy {
	return &SSEStrategy{
		apiClient:     cfg.APIClient,
		rooms:         make(map[string]struct{}),
		reconnectWait: SSEReconnectInterval,
		connected:     make(chan struct{}),
	}
}

// Name returns the strategy name.
func (s *SSEStrategy) Name() string {
	return "sse"
}

// Connected returns a channel that's closed when the SSE connection is established.
func (s *SSEStrategy) Connected() <-chan struct{} {
	return s.connected
}

// LastError returns the last connection error, if any.
func (s *SSEStrategy) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// Start begins listening for messages in the given rooms.
func (s *SSEStrategy) Start(ctx context.Context, rooms []RoomInfo, handler EventHandler) error {
	s.mu.Lock()
	for _, room := range rooms {
		s.rooms[room.ID] = struct{}{}
	}
	s.handler = handler
	s.started = true
	s.mu.Unlock()

	ctx, s.cancel = context.WithCancel(ctx)
	go s.connectLoop(ctx)
	return nil
}

// Stop gracefully shuts down the strategy.
func (s *SSEStrategy) Stop() error {
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// AddRoom adds a room to monitor. The event stream is per-user, so the
// server already pushes events for newly joined rooms; the set is kept for
// filtering only.
func (s *SSEStrategy) AddRoom(room RoomInfo) error {
	s.mu.Lock()
	s.rooms[room.ID] = struct{}{}
	s.mu.Unlock()
	return nil
}

// RemoveRoom removes a room from monitoring.
func (s *SSEStrategy) RemoveRoom(roomID string) error {
	s.mu.Lock()
	delete(s.rooms, roomID)
	s.mu.Unlock()
	return nil
}

// OnReconnect sets the reconnection callback.
func (s *SSEStrategy) OnReconnect(fn func(ctx context.Context)) {
	s.mu.Lock()
	s.onReconnect = fn
	s.mu.Unlock()
}

func (s *SSEStrategy) connectLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := s.connect(ctx)
		if err == nil {
			// Clean disconnect
			return
		}

		s.attempts++
		if s.attempts >= SSEMaxReconnectAttempts {
			return
		}

		wait := s.reconnectWait * time.Duration(1<<(s.attempts-1))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (s *SSEStrategy) connect(ctx context.Context) error {
	if s.apiClient == nil {
		err := fmt.Errorf("SSE strategy: API client is nil")
		s.mu.Lock()
		s.lastError = err
		s.mu.Unlock()
		return err
	}

	resp, err := s.apiClient.OpenEventStream(ctx)
	if err != nil {
		s.mu.Lock()
		s.lastError = err
		s.mu.Unlock()
		return err
	}
	defer resp.Body.Close()

	// Reset attempts on successful connection
	s.attempts = 0

	s.connectedOnce.Do(func() {
		close(s.connected)
	})

	s.mu.RLock()
	reconnect := s.onReconnect
	s.mu.RUnlock()
	if reconnect != nil {
		reconnect(ctx)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for scanner.Scan() {
		line := scanner.Text()

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		if strings.HasPrefix(line, "data: ") {
			data := strings.TrimPrefix(line, "data: ")

			var event api.MessageEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				continue // Skip malformed events
			}

			s.mu.RLock()
			handler := s.handler
			_, watched := s.rooms[event.RoomID]
			s.mu.RUnlock()

			if handler != nil && watched {
				handler(ctx, &event)
			}
		}
	}

	return scanner.Err()
}
