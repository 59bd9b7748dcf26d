// Package session ties one authenticated user's store, realtime connection
// and services together. A Session is created once at login and closed once
// at logout; nothing outlives it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Monica-b-mb/mentorpulse-sub000/internal/models"
	"github.com/Monica-b-mb/mentorpulse-sub000/internal/services"
	"github.com/Monica-b-mb/mentorpulse-sub000/internal/store"
	"github.com/Monica-b-mb/mentorpulse-sub000/internal/websocket"
)

var (
	// ErrClosed is returned when starting a session that was already closed.
	ErrClosed = errors.New("session closed")

	ErrNotStarted = errors.New("session not started")
)

// Connection is the realtime connection a session drives.
// *websocket.Manager implements it.
type Connection interface {
	Connect(ctx context.Context, token string) error
	Reconnect(ctx context.Context) error
	Events() <-chan websocket.Event
	Status() websocket.Status
	JoinRoom(chatID string)
	LeaveRoom(chatID string)
	EmitTyping(chatID string, typing bool)
	Close()
}

// Options configures a Session.
type Options struct {
	MatchTolerance time.Duration
	ResyncInterval time.Duration
	Services       services.Options
	Logger         *zap.Logger
}

// Session is the client state of one logged-in user.
type Session struct {
	self models.Participant
	conn Connection
	log  *zap.Logger

	store         *store.Store
	messages      *services.MessageService
	conversations *services.ConversationService
	typing        *services.TypingService
	resync        *services.ResyncService

	// refresh coalesces conversation list refresh requests from the pump
	refresh chan struct{}

	mu      sync.Mutex
	started bool
	closed  bool
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New assembles a session for self on top of api and conn.
func New(self models.Participant, api services.API, conn Connection, opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	svcOpts := opts.Services
	svcOpts.Logger = log.Named("services")

	st := store.New(store.NewState(self.ID, opts.MatchTolerance, log.Named("store")), log.Named("store"))
	typing := services.NewTypingService(conn, svcOpts)
	conversations := services.NewConversationService(api, st, conn, typing, self.ID, svcOpts)

	return &Session{
		self:          self,
		conn:          conn,
		log:           log,
		store:         st,
		messages:      services.NewMessageService(api, st, typing, self, svcOpts),
		conversations: conversations,
		typing:        typing,
		resync:        services.NewResyncService(conversations, st, opts.ResyncInterval, svcOpts),
		refresh:       make(chan struct{}, 1),
	}
}

// Start brings the session up: the store loop, the realtime connection, the
// event pump and the resync worker. Only the first call has an effect.
func (s *Session) Start(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.started {
		return nil
	}

	// The store outlives the workers so Close can still reset it.
	s.store.Start(context.WithoutCancel(ctx))
	runCtx, cancel := context.WithCancel(ctx)
	if err := s.conn.Connect(runCtx, token); err != nil {
		cancel()
		return fmt.Errorf("failed to connect: %w", err)
	}
	s.started = true
	s.runCtx = runCtx
	s.cancel = cancel
	s.messages.Bind(runCtx)

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		s.pump(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.refresher(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.resync.Start(runCtx)
	}()

	s.requestRefresh()
	s.log.Info("session started", zap.String("user_id", s.self.ID))
	return nil
}

// Reconnect restarts the realtime connection after it gave up. It is a
// no-op while the connection is still trying.
func (s *Session) Reconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return ErrClosed
	case !s.started:
		return ErrNotStarted
	}
	return s.conn.Reconnect(s.runCtx)
}

// Close tears the session down exactly once. Typing stops, in-flight send
// guards are released and the connection is closed before the store loop
// stops, so no late callback can write into a torn-down store.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	started := s.started
	cancel := s.cancel
	s.mu.Unlock()

	s.typing.StopAll()
	s.messages.ReleaseAll()
	s.conn.Close()
	s.resync.Stop()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	if started {
		if err := s.store.Dispatch(context.Background(), store.Reset{}); err != nil && !errors.Is(err, store.ErrStopped) {
			s.log.Warn("failed to reset store", zap.Error(err))
		}
	}
	s.store.Stop()
	s.log.Info("session closed", zap.String("user_id", s.self.ID))
}

// pump is the single consumer of connection events.
func (s *Session) pump(ctx context.Context) {
	events := s.conn.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				s.log.Info("connection events closed")
				return
			}
			s.handle(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

// handle translates one connection event into store actions.
func (s *Session) handle(ctx context.Context, ev websocket.Event) {
	var err error
	switch ev := ev.(type) {
	case websocket.NewMessageEvent:
		err = s.addMessage(ctx, ev.Message)
	case websocket.MessageSentEvent:
		err = s.addMessage(ctx, ev.Message)
	case websocket.UserTypingEvent:
		if ev.UserID == s.self.ID {
			return
		}
		err = s.store.Dispatch(ctx, store.SetTyping{UserID: ev.UserID, Typing: ev.Typing})
	case websocket.MessageStatusEvent:
		err = s.store.Dispatch(ctx, store.UpdateDelivery{ConversationID: ev.ChatID, MessageID: ev.MessageID, State: ev.State})
	case websocket.MessagesReadEvent:
		err = s.store.Dispatch(ctx, store.MarkPeerRead{ConversationID: ev.ChatID, ReaderID: ev.ReaderID})
	case websocket.ConnectedEvent:
		s.requestRefresh()
	case websocket.DisconnectedEvent:
		s.log.Warn("realtime connection lost", zap.String("reason", ev.Reason))
		err = s.store.Dispatch(ctx, store.ClearTyping{})
	case websocket.ConnectErrorEvent:
		s.log.Warn("realtime connect failed", zap.Error(ev.Err))
	case websocket.GaveUpEvent:
		s.log.Error("realtime connection gave up", zap.Int("attempts", ev.Attempts))
		err = s.store.Dispatch(ctx, store.ClearTyping{})
	case websocket.ServerErrorEvent:
		err = s.store.Dispatch(ctx, store.PushNotice{Notice: store.Notice{
			ID:        uuid.NewString(),
			Message:   ev.Message,
			CreatedAt: time.Now(),
		}})
	default:
		s.log.Debug("ignoring event", zap.String("event", ev.Name()))
	}
	if err != nil && ctx.Err() == nil {
		s.log.Warn("event not applied", zap.String("event", ev.Name()), zap.Error(err))
	}
}

func (s *Session) addMessage(ctx context.Context, msg models.Message) error {
	if err := s.store.Dispatch(ctx, store.AddMessage{Message: msg}); err != nil {
		return err
	}
	if _, ok := s.store.Conversation(msg.ConversationID); !ok {
		s.requestRefresh()
	}
	return nil
}

func (s *Session) requestRefresh() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

// refresher runs list refreshes off the pump so a slow backend never delays
// event handling. Requests that pile up while one runs collapse into one.
func (s *Session) refresher(ctx context.Context) {
	for {
		select {
		case <-s.refresh:
			s.resync.Resync(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Self is the logged-in user.
func (s *Session) Self() models.Participant { return s.self }

// Store exposes read access to the session's state.
func (s *Session) Store() *store.Store { return s.store }

// Status reports the realtime connection state.
func (s *Session) Status() websocket.Status { return s.conn.Status() }

func (s *Session) Messages() *services.MessageService { return s.messages }

func (s *Session) Conversations() *services.ConversationService { return s.conversations }

func (s *Session) Typing() *services.TypingService { return s.typing }
