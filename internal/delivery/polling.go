package delivery

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/Uttam-Mahata/qchat/internal/api"
)

// PollingStrategy implements message delivery by periodically listing each
// room's messages, with per-room adaptive backoff while rooms are idle.
type PollingStrategy struct {
	apiClient *api.Client
	cfg       Config
	rooms     map[string]*polledRoom // keyed by room ID
	handler   EventHandler
	cancel    context.CancelFunc
	mu        sync.RWMutex
	started   bool
}

// maxSeenMessages bounds the per-room dedupe map. The since cursor keeps
// normal polls from returning old messages; the map only has to cover the
// overlap after a cursor reset.
const maxSeenMessages = 1024

type polledRoom struct {
	id       string
	lastID   string // newest message ID seen so far
	seen     map[string]struct{}
	interval time.Duration
}

// remember records a delivered message ID and reports whether it was new.
// The map is reset when it reaches maxSeenMessages so long-lived watchers
// do not accumulate every ID ever seen.
func (r *polledRoom) remember(id string) bool {
	if _, seen := r.seen[id]; seen {
		return false
	}
	if len(r.seen) >= maxSeenMessages {
		r.seen = make(map[string]struct{}, maxSeenMessages)
	}
	r.seen[id] = struct{}{}
	return true
}

// NewPollingStrategy creates a new polling strategy.
func NewPollingStrategy(cfg Config) *PollingStrategy {
	if cfg.PollingInitialInterval == 0 {
		cfg.PollingInitialInterval = DefaultPollingInitialInterval
	}
	if cfg.PollingMaxBackoff == 0 {
		cfg.PollingMaxBackoff = DefaultPollingMaxBackoff
	}
	if cfg.PollingBackoffMultiplier == 0 {
		cfg.PollingBackoffMultiplier = DefaultPollingBackoffMultiplier
	}
	if cfg.PollingJitterFactor == 0 {
		cfg.PollingJitterFactor = DefaultPollingJitterFactor
	}
	return &PollingStrategy{
		apiClient: cfg.APIClient,
		cfg:       cfg,
		rooms:     make(map[string]*polledRoom),
	}
}

// Name returns the strategy name.
func (p *PollingStrategy) Name() string {
	return "polling"
}

// Start begins polling the given rooms for new messages.
func (p *PollingStrategy) Start(ctx context.Context, rooms []RoomInfo, handler EventHandler) error {
	p.mu.Lock()
	p.handler = handler
	for _, room := range rooms {
		p.rooms[room.ID] = p.newPolledRoom(room)
	}
	p.started = true
	p.mu.Unlock()

	ctx, p.cancel = context.WithCancel(ctx)
	go p.pollLoop(ctx)
	return nil
}

// Stop gracefully shuts down the strategy.
func (p *PollingStrategy) Stop() error {
	p.mu.Lock()
	p.started = false
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	return nil
}

// AddRoom adds a room to monitor.
func (p *PollingStrategy) AddRoom(room RoomInfo) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.rooms[room.ID]; !exists {
		p.rooms[room.ID] = p.newPolledRoom(room)
	}
	return nil
}

// RemoveRoom removes a room from monitoring.
func (p *PollingStrategy) RemoveRoom(roomID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.rooms, roomID)
	return nil
}

// OnReconnect is a no-op for polling, which has no persistent connection.
func (p *PollingStrategy) OnReconnect(fn func(ctx context.Context)) {}

func (p *PollingStrategy) newPolledRoom(room RoomInfo) *polledRoom {
	return &polledRoom{
		id:       room.ID,
		lastID:   room.LastMessageID,
		seen:     make(map[string]struct{}),
		interval: p.cfg.PollingInitialInterval,
	}
}

func (p *PollingStrategy) pollLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		minWait := p.pollAll(ctx)
		if minWait == 0 {
			minWait = p.cfg.PollingInitialInterval
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(minWait):
		}
	}
}

func (p *PollingStrategy) pollAll(ctx context.Context) time.Duration {
	p.mu.RLock()
	roomList := make([]*polledRoom, 0, len(p.rooms))
	for _, room := range p.rooms {
		roomList = append(roomList, room)
	}
	p.mu.RUnlock()

	if len(roomList) == 0 {
		return p.cfg.PollingInitialInterval
	}

	for _, room := range roomList {
		p.pollRoom(ctx, room)
	}

	var minWait time.Duration
	for _, room := range roomList {
		wait := p.waitDuration(room)
		if minWait == 0 || wait < minWait {
			minWait = wait
		}
	}
	return minWait
}

func (p *PollingStrategy) pollRoom(ctx context.Context, room *polledRoom) {
	if p.apiClient == nil {
		return
	}

	messages, err := p.apiClient.ListMessages(ctx, room.id, room.lastID)
	if err != nil {
		return
	}

	if len(messages) == 0 {
		// Idle room: back off
		newInterval := time.Duration(float64(room.interval) * p.cfg.PollingBackoffMultiplier)
		if newInterval > p.cfg.PollingMaxBackoff {
			newInterval = p.cfg.PollingMaxBackoff
		}
		room.interval = newInterval
		return
	}

	room.interval = p.cfg.PollingInitialInterval

	p.mu.RLock()
	handler := p.handler
	p.mu.RUnlock()

	for _, msg := range messages {
		room.lastID = msg.ID
		if !room.remember(msg.ID) {
			continue
		}

		if handler != nil {
			handler(ctx, &api.MessageEvent{
				RoomID:    msg.RoomID,
				MessageID: msg.ID,
				Sender:    msg.Sender,
				Kind:      msg.Kind,
				Name:      msg.Name,
				SentAt:    msg.SentAt,
				Envelope:  msg.Envelope,
			})
		}
	}
}

// waitDuration returns the room's current interval with jitter applied.
func (p *PollingStrategy) waitDuration(room *polledRoom) time.Duration {
	jitter := 1 + (rand.Float64()*2-1)*p.cfg.PollingJitterFactor
	return time.Duration(float64(room.interval) * jitter)
}
