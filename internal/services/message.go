package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Monica-b-mb/mentorpulse-sub000/internal/metrics"
	"github.com/Monica-b-mb/mentorpulse-sub000/internal/models"
	"github.com/Monica-b-mb/mentorpulse-sub000/internal/store"
)

// dedupBucket is the coarse timestamp granularity of the send dedup key.
const dedupBucket = time.Second

// SendStatus is the outcome of a Send call.
type SendStatus int

const (
	// SendConfirmed means the backend stored the message and the temporary
	// entry was replaced.
	SendConfirmed SendStatus = iota
	// SendDuplicate means an identical send was already in flight; nothing
	// was inserted or requested.
	SendDuplicate
	// SendFailed means the request failed and the temporary entry was removed.
	SendFailed
	// SendUnconfirmed means the backend accepted the message but its response
	// was unusable. The temporary entry stays until a push event or the next
	// fetch confirms it.
	SendUnconfirmed
)

func (s SendStatus) String() string {
	switch s {
	case SendConfirmed:
		return "confirmed"
	case SendDuplicate:
		return "duplicate"
	case SendFailed:
		return "failed"
	case SendUnconfirmed:
		return "unconfirmed"
	}
	return "unknown"
}

// SendResult describes what Send did.
type SendResult struct {
	Status  SendStatus     `json:"status"`
	TempID  string         `json:"temp_id,omitempty"`
	Message models.Message `json:"message"`
}

// MessageService is the send pipeline: optimistic insert, HTTP confirmation
// and duplicate suppression.
type MessageService struct {
	api     API
	store   *store.Store
	typing  *TypingService
	self    models.Participant
	clock   clock.Clock
	grace   time.Duration
	timeout time.Duration
	log     *zap.Logger

	// base bounds every send; see Bind
	base context.Context

	// inflight holds claimed dedup keys. The timer is nil while the request
	// is running and set once the grace period starts.
	mu       sync.Mutex
	inflight map[string]*clock.Timer
}

// NewMessageService creates a send pipeline for the user self. typing may
// be nil.
func NewMessageService(api API, st *store.Store, typing *TypingService, self models.Participant, opts Options) *MessageService {
	opts = opts.withDefaults()
	return &MessageService{
		api:      api,
		store:    st,
		typing:   typing,
		self:     self,
		clock:    opts.Clock,
		grace:    opts.GuardGrace,
		timeout:  opts.SendTimeout,
		log:      opts.Logger,
		base:     context.Background(),
		inflight: make(map[string]*clock.Timer),
	}
}

// Bind ties sends to ctx instead of the caller's request. A send outlives
// the request that started it and is cancelled only when ctx is done or its
// timeout passes.
func (s *MessageService) Bind(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base = ctx
}

// sendContext keeps the values of ctx but not its cancellation.
func (s *MessageService) sendContext(ctx context.Context) (context.Context, context.CancelFunc) {
	s.mu.Lock()
	base := s.base
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	stop := context.AfterFunc(base, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Send posts body to chatID. The message shows up in the store immediately
// as a temporary entry and is replaced by the confirmed one when the backend
// answers. A failed send removes the temporary entry and pushes a notice.
// Sends are never retried. Cancelling ctx after the claim does not abort the
// send.
func (s *MessageService) Send(ctx context.Context, chatID, body string) (SendResult, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return SendResult{}, ErrEmptyMessage
	}
	if chatID == "" {
		return SendResult{}, ErrNoConversation
	}

	now := s.clock.Now()
	key, ok := s.claim(chatID, body, now)
	if !ok {
		s.log.Debug("duplicate send suppressed", zap.String("chat_id", chatID))
		metrics.RecordSend(SendDuplicate.String())
		return SendResult{Status: SendDuplicate}, nil
	}
	defer s.release(key)

	ctx, cancel := s.sendContext(ctx)
	defer cancel()

	tempID := uuid.NewString()
	tmp := models.NewTemporaryMessage(tempID, chatID, s.self, body, now)
	if err := s.store.Dispatch(ctx, store.AddMessage{Message: tmp}); err != nil {
		return SendResult{}, fmt.Errorf("failed to insert message: %w", err)
	}
	if s.typing != nil {
		s.typing.Stop(chatID)
	}

	start := time.Now()
	wire, err := s.api.SendMessage(ctx, chatID, body, tempID)
	metrics.SendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.fail(ctx, chatID, tempID, err)
		metrics.RecordSend(SendFailed.String())
		return SendResult{Status: SendFailed, TempID: tempID}, fmt.Errorf("failed to send message: %w", err)
	}

	msg, err := wire.Message(chatID)
	if err != nil {
		s.log.Warn("send confirmation unusable", zap.String("chat_id", chatID), zap.String("temp_id", tempID), zap.Error(err))
		metrics.RecordDropped("http")
		metrics.RecordSend(SendUnconfirmed.String())
		return SendResult{Status: SendUnconfirmed, TempID: tempID, Message: tmp}, nil
	}
	// The response answers this request, so it correlates with tempID even
	// when the backend does not echo the client id.
	if msg.TempID == "" {
		msg.TempID = tempID
	}

	replace := store.ReplaceMessage{ConversationID: chatID, TempID: tempID, Message: msg}
	if err := s.store.Dispatch(ctx, replace); err != nil {
		return SendResult{}, fmt.Errorf("failed to confirm message: %w", err)
	}
	metrics.RecordSend(SendConfirmed.String())
	s.log.Debug("message sent", zap.String("chat_id", chatID), zap.String("message_id", msg.ID), zap.String("temp_id", tempID))
	return SendResult{Status: SendConfirmed, TempID: tempID, Message: msg}, nil
}

// fail rolls back the optimistic insert and tells the user.
func (s *MessageService) fail(ctx context.Context, chatID, tempID string, cause error) {
	s.log.Error("send failed", zap.String("chat_id", chatID), zap.String("temp_id", tempID), zap.Error(cause))

	ctx = context.WithoutCancel(ctx)
	if err := s.store.Dispatch(ctx, store.RemoveMessage{ConversationID: chatID, TempID: tempID}); err != nil {
		s.log.Warn("failed to remove temporary message", zap.String("temp_id", tempID), zap.Error(err))
	}
	notice := store.Notice{
		ID:             uuid.NewString(),
		ConversationID: chatID,
		Message:        "Message could not be sent. Please try again.",
		CreatedAt:      s.clock.Now(),
	}
	if err := s.store.Dispatch(ctx, store.PushNotice{Notice: notice}); err != nil {
		s.log.Warn("failed to push notice", zap.Error(err))
	}
}

func dedupKey(chatID, body string, bucket int64) string {
	return fmt.Sprintf("%s\x00%d\x00%s", chatID, bucket, body)
}

// claim reserves the dedup key for (chatID, body) at now. A key claimed in
// the current or the previous bucket counts as a duplicate so double submits
// that straddle a bucket boundary are still caught.
func (s *MessageService) claim(chatID, body string, now time.Time) (string, bool) {
	bucket := now.UnixNano() / int64(dedupBucket)
	key := dedupKey(chatID, body, bucket)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[key]; ok {
		return "", false
	}
	if _, ok := s.inflight[dedupKey(chatID, body, bucket-1)]; ok {
		return "", false
	}
	s.inflight[key] = nil
	return key, true
}

// release frees key once the grace period has passed.
func (s *MessageService) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[key]; !ok {
		return
	}
	var t *clock.Timer
	t = s.clock.AfterFunc(s.grace, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.inflight[key] == t {
			delete(s.inflight, key)
		}
	})
	s.inflight[key] = t
}

// ReleaseAll drops every claimed dedup key. Called on session teardown.
func (s *MessageService) ReleaseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.inflight {
		if t != nil {
			t.Stop()
		}
		delete(s.inflight, key)
	}
}

// InFlight reports how many dedup keys are currently claimed.
func (s *MessageService) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}
