// Package websocket manages the client's single realtime connection to the
// chat gateway: handshake, reconnection with backoff, room membership and
// typing signals. Inbound frames are decoded into typed events published on
// one channel; the manager never touches the message store.
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Monica-b-mb/mentorpulse-sub000/internal/metrics"
	"github.com/Monica-b-mb/mentorpulse-sub000/internal/models"
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "disconnected"
}

// MarshalText lets State render as its name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a read-only view of the connection.
type Status struct {
	State     State  `json:"state"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
}

// Options configures a Manager.
type Options struct {
	URL string

	// MaxAttempts bounds consecutive reconnection attempts after a failure
	MaxAttempts  uint64
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// TypingRate throttles outbound typing-start frames. Zero means 2/s.
	TypingRate  rate.Limit
	TypingBurst int

	Dialer *websocket.Dialer
	Logger *zap.Logger
}

// Manager owns the lifecycle of one realtime connection per session.
type Manager struct {
	opts Options
	log  *zap.Logger

	mu      sync.Mutex
	status  Status
	client  *Client
	rooms   map[string]bool
	typing  map[string]bool
	token   string
	started bool
	closed  bool
	cancel  context.CancelFunc

	// events is closed by Close
	events chan Event

	typingLimiter *rate.Limiter
	wg            sync.WaitGroup
}

// NewManager creates a disconnected manager.
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 5
	}
	if opts.InitialDelay == 0 {
		opts.InitialDelay = time.Second
	}
	if opts.MaxDelay == 0 {
		opts.MaxDelay = 5 * time.Second
	}
	if opts.TypingRate == 0 {
		opts.TypingRate = 2
	}
	if opts.TypingBurst == 0 {
		opts.TypingBurst = 1
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Manager{
		opts:          opts,
		log:           opts.Logger,
		rooms:         make(map[string]bool),
		typing:        make(map[string]bool),
		events:        make(chan Event, 256),
		typingLimiter: rate.NewLimiter(opts.TypingRate, opts.TypingBurst),
	}
}

// Events returns the inbound event channel. It is closed after Close.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Status returns the current connection state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Rooms lists the conversations currently joined, sorted.
func (m *Manager) Rooms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Connect starts the connection lifecycle with token. Only the first call
// has an effect; later calls (re-renders, double logins) are no-ops.
func (m *Manager) Connect(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.start(ctx, token)
}

// Reconnect restarts the lifecycle with the last token after reconnection
// attempts were exhausted. It is a no-op while the lifecycle is running.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" && !m.closed {
		return fmt.Errorf("reconnect: never connected")
	}
	return m.start(ctx, m.token)
}

func (m *Manager) start(ctx context.Context, token string) error {
	if m.closed {
		return fmt.Errorf("connect: manager closed")
	}
	if m.started {
		m.log.Debug("connect ignored, connection already initialized")
		return nil
	}
	if m.opts.URL == "" {
		return fmt.Errorf("connect: no gateway url")
	}
	m.started = true
	m.token = token
	m.status.Attempts = 0

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go m.run(runCtx, token)
	return nil
}

// Close tears the connection down and closes the events channel. Safe to
// call more than once and before Connect.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if m.cancel != nil {
		m.cancel()
	}
	c := m.client
	m.mu.Unlock()

	if c != nil {
		c.Close()
	}
	m.wg.Wait()
	close(m.events)
	m.setState(StateDisconnected, "")
	m.log.Info("connection closed")
}

func (m *Manager) run(ctx context.Context, token string) {
	defer m.wg.Done()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = m.opts.InitialDelay
	eb.MaxInterval = m.opts.MaxDelay
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, m.opts.MaxAttempts), ctx)

	for {
		m.setState(StateConnecting, "")
		c, err := m.dial(ctx, token)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.log.Warn("connect failed", zap.Error(err))
			m.setState(StateConnecting, err.Error())
			m.emit(ctx, ConnectErrorEvent{Err: err})
		} else {
			if !m.attach(c) {
				c.Close()
				return
			}
			policy.Reset()
			m.emit(ctx, ConnectedEvent{})

			reason := c.ReadPump(func(frame []byte) { m.handleFrame(ctx, frame) })
			m.detach(c)
			if ctx.Err() != nil {
				return
			}
			m.log.Warn("connection lost", zap.String("reason", reason))
			m.setState(StateConnecting, reason)
			m.emit(ctx, DisconnectedEvent{Reason: reason})
		}

		next := policy.NextBackOff()
		if next == backoff.Stop {
			if ctx.Err() == nil {
				m.giveUp(ctx)
			}
			return
		}

		m.mu.Lock()
		m.status.Attempts++
		attempt := m.status.Attempts
		m.mu.Unlock()
		metrics.ReconnectAttempts.Inc()
		m.log.Info("reconnecting", zap.Int("attempt", attempt), zap.Duration("in", next))

		timer := time.NewTimer(next)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// giveUp parks the manager so Reconnect can start a fresh lifecycle.
func (m *Manager) giveUp(ctx context.Context) {
	m.log.Error("giving up reconnecting", zap.Uint64("attempts", m.opts.MaxAttempts))
	m.mu.Lock()
	attempts := m.status.Attempts
	m.started = false
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	m.setState(StateDisconnected, "reconnection attempts exhausted")
	m.emit(ctx, GaveUpEvent{Attempts: attempts})
	cancel()
}

func (m *Manager) dial(ctx context.Context, token string) (*Client, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := m.opts.Dialer.DialContext(ctx, m.opts.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	return newClient(conn), nil
}

// attach makes c the live client and replays room membership on it. It
// reports false when the manager was closed while dialing.
func (m *Manager) attach(c *Client) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.client = c
	m.status = Status{State: StateConnected}
	rooms := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		rooms = append(rooms, id)
	}
	m.mu.Unlock()

	metrics.ConnectionState.Set(float64(StateConnected))
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		c.WritePump()
	}()

	sort.Strings(rooms)
	for _, id := range rooms {
		m.enqueue(c, EventJoinChat, models.ChatRef{ChatID: id})
	}
	m.log.Info("connected", zap.String("url", m.opts.URL), zap.Int("rooms", len(rooms)))
	return true
}

func (m *Manager) detach(c *Client) {
	m.mu.Lock()
	if m.client == c {
		m.client = nil
	}
	m.mu.Unlock()
}

func (m *Manager) setState(state State, lastErr string) {
	m.mu.Lock()
	m.status.State = state
	m.status.LastError = lastErr
	if state == StateDisconnected && lastErr == "" {
		m.status.Attempts = 0
	}
	m.mu.Unlock()
	metrics.ConnectionState.Set(float64(state))
}

func (m *Manager) emit(ctx context.Context, ev Event) {
	select {
	case m.events <- ev:
	case <-ctx.Done():
	}
}

func (m *Manager) handleFrame(ctx context.Context, frame []byte) {
	ev, err := decodeFrame(frame)
	if err != nil {
		m.log.Error("dropping inbound frame", zap.Error(err))
		metrics.RecordDropped("push")
		return
	}
	if ev == nil {
		return
	}
	m.emit(ctx, ev)
}

func (m *Manager) enqueue(c *Client, event string, data interface{}) bool {
	frame, err := encodeFrame(event, data)
	if err != nil {
		m.log.Error("failed to encode frame", zap.String("event", event), zap.Error(err))
		return false
	}
	if !c.Enqueue(frame) {
		m.log.Warn("outbound frame dropped", zap.String("event", event))
		return false
	}
	return true
}

// sendLive sends on the current connection. It reports false while offline.
func (m *Manager) sendLive(event string, data interface{}) bool {
	m.mu.Lock()
	c := m.client
	m.mu.Unlock()
	if c == nil {
		return false
	}
	return m.enqueue(c, event, data)
}

// JoinRoom subscribes to a conversation's events. Joining a room already
// joined is a no-op. While offline the room is joined on the next connect.
func (m *Manager) JoinRoom(chatID string) {
	m.mu.Lock()
	if m.rooms[chatID] {
		m.mu.Unlock()
		return
	}
	m.rooms[chatID] = true
	m.mu.Unlock()

	m.sendLive(EventJoinChat, models.ChatRef{ChatID: chatID})
	m.log.Debug("joined room", zap.String("chat_id", chatID))
}

// LeaveRoom unsubscribes from a conversation. Leaving a room not joined is a no-op.
func (m *Manager) LeaveRoom(chatID string) {
	m.mu.Lock()
	if !m.rooms[chatID] {
		m.mu.Unlock()
		return
	}
	delete(m.rooms, chatID)
	m.mu.Unlock()

	m.sendLive(EventLeaveChat, models.ChatRef{ChatID: chatID})
	m.log.Debug("left room", zap.String("chat_id", chatID))
}

// EmitTyping tells the peer we started or stopped typing. The first start
// for a conversation after a stop always goes out; repeated starts are
// throttled. Stops always go out so the peer never stays stuck on "typing".
func (m *Manager) EmitTyping(chatID string, typing bool) {
	m.mu.Lock()
	first := !m.typing[chatID]
	if typing {
		m.typing[chatID] = true
	} else {
		delete(m.typing, chatID)
	}
	m.mu.Unlock()

	if !typing {
		m.sendLive(EventTypingStop, models.ChatRef{ChatID: chatID})
		return
	}
	if !m.typingLimiter.Allow() && !first {
		return
	}
	m.sendLive(EventTypingStart, models.ChatRef{ChatID: chatID})
}
