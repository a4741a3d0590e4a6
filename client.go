package qchat

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Uttam-Mahata/qchat/internal/api"
	"github.com/Uttam-Mahata/qchat/internal/delivery"
)

// sseFallbackWindow is how long the auto strategy waits for an SSE stream
// before switching to polling.
const sseFallbackWindow = 10 * time.Second

// Client is the entry point to the qchat service. It holds the user's
// identity, the authenticated API session and the event delivery machinery.
// A Client is safe for concurrent use.
type Client struct {
	api      *api.Client
	identity *Identity
	opts     *options
	subs     *subscriptionManager

	mu       sync.RWMutex
	rooms    map[string]*Room
	loggedIn bool

	cursorMu sync.Mutex
	cursors  map[string]string // roomID -> newest delivered message ID

	strategyMu   sync.Mutex
	strategy     delivery.Strategy
	strategyStop context.CancelFunc

	closed atomic.Bool
}

// New creates a client for the server at baseURL, acting as the given
// identity. The client is not authenticated yet; call Register for a new
// account or Login for an existing one.
func New(baseURL string, identity *Identity, opts ...Option) (*Client, error) {
	if identity == nil {
		return nil, ErrMissingIdentity
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	apiOpts := []api.Option{
		api.WithTimeout(o.timeout),
		api.WithRetries(o.maxRetries),
	}
	if o.retryOn != nil {
		apiOpts = append(apiOpts, api.WithRetryOn(o.retryOn))
	}

	apiClient, err := api.New(baseURL, apiOpts...)
	if err != nil {
		return nil, err
	}
	if o.httpClient != nil {
		apiClient.SetHTTPClient(o.httpClient)
	}

	return &Client{
		api:      apiClient,
		identity: identity,
		opts:     o,
		subs:     newSubscriptionManager(),
		rooms:    make(map[string]*Room),
		cursors:  make(map[string]string),
	}, nil
}

// Identity returns the identity this client acts as.
func (c *Client) Identity() *Identity {
	return c.identity
}

// Register creates an account and publishes the identity's public key to
// the server's key directory. The password authenticates the account; it
// plays no part in message encryption.
func (c *Client) Register(ctx context.Context, username, password string) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	_, err := c.api.Register(ctx, &api.RegisterRequest{
		Username:  username,
		Password:  password,
		PublicKey: c.identity.PublicKeyB64(),
	})
	if err != nil {
		return wrapError(err)
	}

	c.identity.username = username
	return nil
}

// Login authenticates and starts event delivery. Rooms the user is already
// a member of are watched immediately.
func (c *Client) Login(ctx context.Context, username, password string) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	resp, err := c.api.Login(ctx, username, password)
	if err != nil {
		return wrapError(err)
	}

	c.api.SetToken(resp.Token)
	c.identity.username = username

	c.mu.Lock()
	c.loggedIn = true
	c.mu.Unlock()

	if _, err := c.Rooms(ctx); err != nil {
		return err
	}
	return c.startDelivery()
}

// checkReady reports whether the client can perform authenticated calls.
func (c *Client) checkReady() error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loggedIn {
		return ErrNotLoggedIn
	}
	return nil
}

// Rooms lists the rooms the user is a member of and returns handles for
// them. Newly discovered rooms are added to the delivery watch set.
func (c *Client) Rooms(ctx context.Context) ([]*Room, error) {
	if err := c.checkReady(); err != nil {
		return nil, err
	}

	listed, err := c.api.ListRooms(ctx)
	if err != nil {
		return nil, wrapError(err)
	}

	rooms := make([]*Room, 0, len(listed))
	for _, r := range listed {
		rooms = append(rooms, c.registerRoom(r.ID, r.Name))
	}
	return rooms, nil
}

// CreateRoom creates a room with the given name. The creator joins
// automatically.
func (c *Client) CreateRoom(ctx context.Context, name string) (*Room, error) {
	if err := c.checkReady(); err != nil {
		return nil, err
	}

	created, err := c.api.CreateRoom(ctx, name)
	if err != nil {
		return nil, wrapError(err)
	}
	return c.registerRoom(created.ID, created.Name), nil
}

// JoinRoom joins an existing room by ID. From the next message on, senders
// will address an envelope to this identity.
func (c *Client) JoinRoom(ctx context.Context, roomID string) (*Room, error) {
	if err := c.checkReady(); err != nil {
		return nil, err
	}

	joined, err := c.api.JoinRoom(ctx, roomID)
	if err != nil {
		return nil, wrapError(err)
	}
	return c.registerRoom(joined.ID, joined.Name), nil
}

// LeaveRoom removes the user from a room by ID.
func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	if err := c.checkReady(); err != nil {
		return err
	}

	if err := c.api.LeaveRoom(ctx, roomID); err != nil {
		return wrapError(err)
	}

	c.forgetRoom(roomID)
	return nil
}

// ContactKey fetches a user's published public key from the key directory.
func (c *Client) ContactKey(ctx context.Context, username string) (*Member, error) {
	if err := c.checkReady(); err != nil {
		return nil, err
	}

	key, err := c.api.GetUserKey(ctx, username)
	if err != nil {
		return nil, wrapError(err)
	}
	return &Member{Username: key.Username, PublicKeyB64: key.PublicKey}, nil
}

// ContactFingerprint fetches a user's public key and returns its
// verification fingerprint, for comparing out of band before trusting the
// directory.
func (c *Client) ContactFingerprint(ctx context.Context, username string) (string, error) {
	member, err := c.ContactKey(ctx, username)
	if err != nil {
		return "", err
	}
	return member.Fingerprint()
}

// Watch registers a callback invoked for every new decrypted message in
// any watched room. Returns an unsubscribe function.
func (c *Client) Watch(callback func(*Message)) func() {
	return c.subs.subscribe(allRooms, callback)
}

// Close stops event delivery and releases all subscriptions. The client
// cannot be reused afterwards.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.strategyMu.Lock()
	if c.strategyStop != nil {
		c.strategyStop()
	}
	if c.strategy != nil {
		c.strategy.Stop()
	}
	c.strategy = nil
	c.strategyMu.Unlock()

	c.subs.clear()
	return nil
}

// registerRoom returns the cached handle for a room, creating and watching
// it on first sight.
func (c *Client) registerRoom(id, name string) *Room {
	c.mu.Lock()
	room, ok := c.rooms[id]
	if !ok {
		room = &Room{client: c, id: id, name: name}
		c.rooms[id] = room
	} else {
		room.name = name
	}
	c.mu.Unlock()

	if !ok {
		c.strategyMu.Lock()
		if c.strategy != nil {
			c.strategy.AddRoom(delivery.RoomInfo{ID: id, Name: name})
		}
		c.strategyMu.Unlock()
	}
	return room
}

// forgetRoom drops a room handle and stops watching it.
func (c *Client) forgetRoom(id string) {
	c.mu.Lock()
	delete(c.rooms, id)
	c.mu.Unlock()

	c.strategyMu.Lock()
	if c.strategy != nil {
		c.strategy.RemoveRoom(id)
	}
	c.strategyMu.Unlock()
}

func (c *Client) roomInfos() []delivery.RoomInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	infos := make([]delivery.RoomInfo, 0, len(c.rooms))
	for _, room := range c.rooms {
		infos = append(infos, delivery.RoomInfo{
			ID:            room.id,
			Name:          room.name,
			LastMessageID: c.cursor(room.id),
		})
	}
	return infos
}

func (c *Client) deliveryConfig() delivery.Config {
	return delivery.Config{
		APIClient:                c.api,
		PollingInitialInterval:   c.opts.pollBaseInterval,
		PollingMaxBackoff:        c.opts.pollMaxInterval,
		PollingBackoffMultiplier: c.opts.pollBackoffFactor,
		PollingJitterFactor:      c.opts.pollJitter,
	}
}

// startDelivery launches the configured event delivery strategy.
func (c *Client) startDelivery() error {
	ctx, cancel := context.WithCancel(context.Background())

	var strat delivery.Strategy
	switch c.opts.deliveryStrategy {
	case StrategyPolling:
		strat = delivery.NewPollingStrategy(c.deliveryConfig())
	default:
		strat = delivery.NewSSEStrategy(c.deliveryConfig())
	}

	strat.OnReconnect(c.resync)
	if err := strat.Start(ctx, c.roomInfos(), c.handleEvent); err != nil {
		cancel()
		return err
	}

	c.strategyMu.Lock()
	c.strategy = strat
	c.strategyStop = cancel
	c.strategyMu.Unlock()

	if c.opts.deliveryStrategy == StrategyAuto {
		if sse, ok := strat.(*delivery.SSEStrategy); ok {
			go c.watchFallback(ctx, sse)
		}
	}
	return nil
}

// watchFallback downgrades from SSE to polling when the stream never comes
// up within the fallback window. Messages are not lost on the switch; the
// poller starts from the newest known message per room.
func (c *Client) watchFallback(ctx context.Context, sse *delivery.SSEStrategy) {
	timer := time.NewTimer(sseFallbackWindow)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-sse.Connected():
		return
	case <-timer.C:
	}

	c.strategyMu.Lock()
	defer c.strategyMu.Unlock()

	if c.closed.Load() || c.strategy != sse {
		return
	}

	sse.Stop()

	pollCtx, cancel := context.WithCancel(context.Background())
	poller := delivery.NewPollingStrategy(c.deliveryConfig())
	if err := poller.Start(pollCtx, c.roomInfos(), c.handleEvent); err != nil {
		cancel()
		return
	}

	if c.strategyStop != nil {
		c.strategyStop()
	}
	c.strategy = poller
	c.strategyStop = cancel
}

// handleEvent decrypts an incoming event and fans it out to subscribers.
// A message that fails to decrypt is dropped; one bad envelope must not
// stall delivery for the room.
func (c *Client) handleEvent(ctx context.Context, ev *api.MessageEvent) error {
	if c.closed.Load() {
		return nil
	}

	// Advance the cursor even for undecryptable messages so a resync
	// does not refetch them.
	c.advanceCursor(ev.RoomID, ev.MessageID)

	msg, err := decryptEvent(ev, c.identity)
	if err != nil {
		return nil
	}

	c.subs.notify(msg.RoomID, msg)
	return nil
}

func (c *Client) advanceCursor(roomID, messageID string) {
	if roomID == "" || messageID == "" {
		return
	}
	c.cursorMu.Lock()
	c.cursors[roomID] = messageID
	c.cursorMu.Unlock()
}

func (c *Client) cursor(roomID string) string {
	c.cursorMu.Lock()
	defer c.cursorMu.Unlock()
	return c.cursors[roomID]
}

// resync fetches messages that arrived while the event stream was down and
// delivers them to subscribers. It runs after every stream (re)connection.
// Rooms where no message has been delivered yet have no cursor to resume
// from and are skipped; the first connection is therefore a no-op.
func (c *Client) resync(ctx context.Context) {
	if c.closed.Load() {
		return
	}

	for _, info := range c.roomInfos() {
		since := c.cursor(info.ID)
		if since == "" {
			continue
		}

		messages, err := c.api.ListMessages(ctx, info.ID, since)
		if err != nil {
			continue
		}

		for i := range messages {
			raw := &messages[i]
			c.advanceCursor(raw.RoomID, raw.ID)

			msg, err := decryptRaw(raw, c.identity)
			if err != nil {
				continue
			}
			c.subs.notify(msg.RoomID, msg)
		}
	}
}
