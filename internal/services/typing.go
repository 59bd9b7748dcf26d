package services

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

type typingTimer struct {
	timer *clock.Timer
	gen   uint64
}

// TypingService tracks the local user's typing state per conversation.
// Each keystroke re-arms a quiet-period timer; typing stops once the input
// has been idle for the whole period after the last keystroke.
type TypingService struct {
	emitter TypingEmitter
	clock   clock.Clock
	quiet   time.Duration
	log     *zap.Logger

	mu     sync.Mutex
	timers map[string]typingTimer
	gen    uint64
}

// NewTypingService creates a TypingService that signals through emitter.
func NewTypingService(emitter TypingEmitter, opts Options) *TypingService {
	opts = opts.withDefaults()
	return &TypingService{
		emitter: emitter,
		clock:   opts.Clock,
		quiet:   opts.QuietPeriod,
		log:     opts.Logger,
		timers:  make(map[string]typingTimer),
	}
}

// InputChanged records a keystroke in chatID. typing-start goes out only on
// the transition from idle.
func (s *TypingService) InputChanged(chatID string) {
	if chatID == "" {
		return
	}

	s.mu.Lock()
	prev, wasTyping := s.timers[chatID]
	if wasTyping {
		prev.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timers[chatID] = typingTimer{
		timer: s.clock.AfterFunc(s.quiet, func() { s.expire(chatID, gen) }),
		gen:   gen,
	}
	s.mu.Unlock()

	if !wasTyping {
		s.emitter.EmitTyping(chatID, true)
	}
}

// expire fires when the quiet period elapses. A timer that was re-armed or
// stopped in the meantime is stale and does nothing.
func (s *TypingService) expire(chatID string, gen uint64) {
	s.mu.Lock()
	cur, ok := s.timers[chatID]
	if !ok || cur.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.timers, chatID)
	s.mu.Unlock()

	s.log.Debug("typing idle", zap.String("chat_id", chatID))
	s.emitter.EmitTyping(chatID, false)
}

// Stop ends typing in chatID immediately.
func (s *TypingService) Stop(chatID string) {
	s.mu.Lock()
	cur, ok := s.timers[chatID]
	if ok {
		cur.timer.Stop()
		delete(s.timers, chatID)
	}
	s.mu.Unlock()

	if ok {
		s.emitter.EmitTyping(chatID, false)
	}
}

// StopAll ends typing everywhere. Used on conversation switch and teardown.
func (s *TypingService) StopAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.timers))
	for id, cur := range s.timers {
		cur.timer.Stop()
		ids = append(ids, id)
	}
	s.timers = make(map[string]typingTimer)
	s.mu.Unlock()

	for _, id := range ids {
		s.emitter.EmitTyping(id, false)
	}
}

// Typing reports whether the local user is typing in chatID.
func (s *TypingService) Typing(chatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[chatID]
	return ok
}
