package services

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/Monica-b-mb/mentorpulse-sub000/internal/store"
)

// ResyncService periodically refetches the conversation list and the newest
// page of the active conversation. It repairs whatever the push channel
// missed while the connection was down.
type ResyncService struct {
	conversations *ConversationService
	store         *store.Store
	clock         clock.Clock
	interval      time.Duration
	log           *zap.Logger

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewResyncService creates a new resync worker.
// - interval: how often to resync (e.g., 1 minute); zero or less disables it
func NewResyncService(conversations *ConversationService, st *store.Store, interval time.Duration, opts Options) *ResyncService {
	opts = opts.withDefaults()
	return &ResyncService{
		conversations: conversations,
		store:         st,
		clock:         opts.Clock,
		interval:      interval,
		log:           opts.Logger,
		stopChan:      make(chan struct{}),
	}
}

// Start runs the worker until Stop is called or ctx ends.
// This method blocks and should be called with 'go'.
func (s *ResyncService) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Info("resync disabled")
		return
	}
	s.log.Info("resync service started", zap.Duration("interval", s.interval))

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Resync(ctx)
		case <-s.stopChan:
			s.log.Info("resync service stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop shuts the worker down. Safe to call more than once.
func (s *ResyncService) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// Resync runs one pass. Failures are logged and left for the next tick.
func (s *ResyncService) Resync(ctx context.Context) {
	if err := s.conversations.LoadConversations(ctx); err != nil {
		s.log.Warn("resync: conversation list failed", zap.Error(err))
	}

	active := s.store.ActiveConversation()
	if active == "" {
		return
	}
	if err := s.conversations.RefreshMessages(ctx, active); err != nil {
		s.log.Warn("resync: messages failed", zap.String("chat_id", active), zap.Error(err))
	}
}
