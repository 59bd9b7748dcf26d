// Package services holds the client-side business logic that sits between
// UI intents and the store: the send pipeline, conversation loading, typing
// presence and periodic resync. Services never mutate state directly; they
// dispatch actions to the store.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/Monica-b-mb/mentorpulse-sub000/internal/metrics"
	"github.com/Monica-b-mb/mentorpulse-sub000/internal/models"
)

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrNoConversation = errors.New("no conversation")

	// ErrInvalidParticipant rejects get-or-create with a missing participant
	// or with the current user.
	ErrInvalidParticipant = errors.New("invalid participant")
)

// API is the subset of the chat REST backend the services use.
// *chatapi.Client implements it.
type API interface {
	ListConversations(ctx context.Context) ([]models.WireConversation, error)
	GetOrCreateConversation(ctx context.Context, participantID string) (*models.WireConversation, error)
	GetMessages(ctx context.Context, chatID string, page, limit int) (*models.MessagePage, error)
	SendMessage(ctx context.Context, chatID, content, clientMessageID string) (*models.WireMessage, error)
	MarkRead(ctx context.Context, chatID string) error
}

// TypingEmitter sends typing signals to the peer.
type TypingEmitter interface {
	EmitTyping(chatID string, typing bool)
}

// Rooms tracks which conversations the realtime connection listens to.
type Rooms interface {
	JoinRoom(chatID string)
	LeaveRoom(chatID string)
}

// Options carries the tunables shared by the services. Zero values fall back
// to defaults.
type Options struct {
	Clock  clock.Clock
	Logger *zap.Logger

	// GuardGrace is how long a send's dedup key stays claimed after the
	// request completes.
	GuardGrace time.Duration

	// SendTimeout bounds one send request, independent of the caller.
	SendTimeout time.Duration

	// QuietPeriod is how long the input must stay idle before typing stops.
	QuietPeriod time.Duration

	PageSize int
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.GuardGrace == 0 {
		o.GuardGrace = 500 * time.Millisecond
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 30 * time.Second
	}
	if o.QuietPeriod == 0 {
		o.QuietPeriod = 2 * time.Second
	}
	if o.PageSize <= 0 {
		o.PageSize = 50
	}
	return o
}

// toMessages converts a fetched page, dropping entries that fail validation.
func toMessages(log *zap.Logger, chatID string, wire []models.WireMessage) []models.Message {
	out := make([]models.Message, 0, len(wire))
	for _, w := range wire {
		msg, err := w.Message(chatID)
		if err != nil {
			log.Warn("dropping malformed message", zap.String("chat_id", chatID), zap.String("message_id", w.ID), zap.Error(err))
			metrics.RecordDropped("http")
			continue
		}
		out = append(out, msg)
	}
	return out
}
