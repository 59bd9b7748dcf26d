// Package store holds the client's view of conversations and messages.
//
// All mutations go through a single goroutine (Store.Run) that applies
// actions to a State one at a time, so producers never race on the maps:
// the connection manager, the send pipeline and UI intents only dispatch.
// Readers get copies taken under a read lock.
package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Monica-b-mb/mentorpulse-sub000/internal/metrics"
	"github.com/Monica-b-mb/mentorpulse-sub000/internal/models"
)

// ErrStopped is returned by Dispatch after the store loop has been stopped.
var ErrStopped = errors.New("store stopped")

type request struct {
	action Action
	result chan error
}

// Store serializes every mutation of a State through one event loop.
type Store struct {
	state *State
	mu    sync.RWMutex

	// actions carries requests to the run loop
	actions chan request

	// version increments after every applied action
	version atomic.Uint64

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	log       *zap.Logger
}

// New wraps state in a Store. Call Start before dispatching.
func New(state *State, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		state:   state,
		actions: make(chan request, 64),
		done:    make(chan struct{}),
		log:     log,
	}
}

// Start runs the event loop in the background. Only the first call has an effect.
func (s *Store) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.run(ctx)
		}()
	})
}

// Stop ends the event loop and waits for it. Later dispatches fail with ErrStopped.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
}

func (s *Store) run(ctx context.Context) {
	for {
		select {
		case req := <-s.actions:
			req.result <- s.apply(req.action)
		case <-ctx.Done():
			s.stopOnce.Do(func() { close(s.done) })
			return
		case <-s.done:
			return
		}
	}
}

func (s *Store) apply(a Action) error {
	s.mu.Lock()
	err := s.state.Reduce(a)
	s.mu.Unlock()

	s.version.Add(1)
	metrics.ReducerActions.WithLabelValues(a.actionName()).Inc()
	if err != nil {
		if errors.Is(err, models.ErrInvalidMessage) {
			metrics.RecordDropped(a.actionName())
		}
		s.log.Error("action rejected", zap.String("action", a.actionName()), zap.Error(err))
	}
	return err
}

// Dispatch hands an action to the event loop and waits until it is applied.
// The returned error is the reducer's verdict (nil, or a rejected payload).
func (s *Store) Dispatch(ctx context.Context, a Action) error {
	req := request{action: a, result: make(chan error, 1)}
	select {
	case s.actions <- req:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.result:
		return err
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Version changes whenever an action has been applied; UIs poll it to know
// when to re-read.
func (s *Store) Version() uint64 {
	return s.version.Load()
}

// Messages returns a copy of a conversation's ordered sequence.
func (s *Store) Messages(cid string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Messages(cid)
}

// Conversations returns the summaries, most recent activity first.
func (s *Store) Conversations() []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Conversations()
}

func (s *Store) Conversation(id string) (models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Conversation(id)
}

func (s *Store) ConversationWith(participantID string) (models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ConversationWith(participantID)
}

func (s *Store) Typing() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Typing()
}

func (s *Store) ActiveConversation() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ActiveConversation()
}

func (s *Store) LoadError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.LoadError()
}

func (s *Store) Notices() []Notice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Notices()
}
