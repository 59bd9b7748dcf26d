package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Monica-b-mb/mentorpulse-sub000/internal/metrics"
	"github.com/Monica-b-mb/mentorpulse-sub000/internal/models"
	"github.com/Monica-b-mb/mentorpulse-sub000/internal/store"
)

// PageInfo describes the page of messages that was just loaded.
type PageInfo struct {
	Page    int  `json:"page"`
	HasMore bool `json:"has_more"`
}

// ConversationService handles the conversation list, opening and closing
// conversations and paging through their history.
type ConversationService struct {
	api      API
	store    *store.Store
	rooms    Rooms
	typing   *TypingService
	selfID   string
	pageSize int
	log      *zap.Logger
}

// NewConversationService creates a new ConversationService. typing may be nil.
func NewConversationService(api API, st *store.Store, rooms Rooms, typing *TypingService, selfID string, opts Options) *ConversationService {
	opts = opts.withDefaults()
	return &ConversationService{
		api:      api,
		store:    st,
		rooms:    rooms,
		typing:   typing,
		selfID:   selfID,
		pageSize: opts.PageSize,
		log:      opts.Logger,
	}
}

// LoadConversations fetches the conversation list. A failure is recorded in
// the store as a retryable load error; a success clears it.
func (s *ConversationService) LoadConversations(ctx context.Context) error {
	wire, err := s.api.ListConversations(ctx)
	if err != nil {
		s.log.Error("failed to load conversations", zap.Error(err))
		if derr := s.store.Dispatch(context.WithoutCancel(ctx), store.SetLoadError{Message: "Couldn't load conversations"}); derr != nil {
			s.log.Warn("failed to record load error", zap.Error(derr))
		}
		return err
	}

	convs := make([]models.Conversation, 0, len(wire))
	for _, w := range wire {
		c, err := w.Conversation(s.selfID)
		if err != nil {
			s.log.Warn("dropping malformed conversation", zap.Error(err))
			metrics.RecordDropped("http")
			continue
		}
		convs = append(convs, c)
	}

	if err := s.store.Dispatch(ctx, store.SetConversations{Conversations: convs}); err != nil {
		return err
	}
	if err := s.store.Dispatch(ctx, store.ClearLoadError{}); err != nil {
		return err
	}
	s.log.Debug("conversations loaded", zap.Int("count", len(convs)))
	return nil
}

// Retry is the user's "try again" after a failed load.
func (s *ConversationService) Retry(ctx context.Context) error {
	return s.LoadConversations(ctx)
}

// GetOrCreate returns the conversation with participantID. A conversation
// already in the local list is returned without a request.
func (s *ConversationService) GetOrCreate(ctx context.Context, participantID string) (models.Conversation, error) {
	if participantID == "" {
		return models.Conversation{}, fmt.Errorf("%w: participant id is required", ErrInvalidParticipant)
	}
	if participantID == s.selfID {
		return models.Conversation{}, fmt.Errorf("%w: cannot start a conversation with yourself", ErrInvalidParticipant)
	}
	if c, ok := s.store.ConversationWith(participantID); ok {
		return c, nil
	}

	wire, err := s.api.GetOrCreateConversation(ctx, participantID)
	if err != nil {
		return models.Conversation{}, err
	}
	conv, err := wire.Conversation(s.selfID)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("invalid conversation from backend: %w", err)
	}
	if err := s.store.Dispatch(ctx, store.UpsertConversation{Conversation: conv}); err != nil {
		return models.Conversation{}, err
	}
	s.log.Info("conversation ready", zap.String("chat_id", conv.ID), zap.String("participant_id", participantID))
	return conv, nil
}

// Open makes chatID the active conversation: it leaves the previous room,
// joins this one, loads the newest page and marks the conversation read.
func (s *ConversationService) Open(ctx context.Context, chatID string) (PageInfo, error) {
	if chatID == "" {
		return PageInfo{}, ErrNoConversation
	}

	if prev := s.store.ActiveConversation(); prev != "" && prev != chatID {
		s.leave(prev)
	}
	if err := s.store.Dispatch(ctx, store.SetActiveConversation{ConversationID: chatID}); err != nil {
		return PageInfo{}, err
	}
	s.rooms.JoinRoom(chatID)

	info, err := s.loadPage(ctx, chatID, 1, false)
	if err != nil {
		return PageInfo{}, err
	}

	if err := s.api.MarkRead(ctx, chatID); err != nil {
		// The local count is still reset; the next list refresh reconciles it.
		s.log.Warn("failed to mark conversation read", zap.String("chat_id", chatID), zap.Error(err))
	}
	if err := s.store.Dispatch(ctx, store.ResetUnread{ConversationID: chatID}); err != nil {
		return PageInfo{}, err
	}
	return info, nil
}

// LoadOlder loads an older page of chatID and merges it into the sequence.
func (s *ConversationService) LoadOlder(ctx context.Context, chatID string, page int) (PageInfo, error) {
	if chatID == "" {
		return PageInfo{}, ErrNoConversation
	}
	if page < 2 {
		return PageInfo{}, fmt.Errorf("older pages start at 2, got %d", page)
	}
	return s.loadPage(ctx, chatID, page, true)
}

// RefreshMessages reconciles the newest page of chatID into what is already
// loaded, without marking it read. Older pages stay in place.
func (s *ConversationService) RefreshMessages(ctx context.Context, chatID string) error {
	_, err := s.loadPage(ctx, chatID, 1, true)
	return err
}

// Close leaves the active conversation, if any.
func (s *ConversationService) Close(ctx context.Context) error {
	active := s.store.ActiveConversation()
	if active == "" {
		return nil
	}
	s.leave(active)
	return s.store.Dispatch(ctx, store.SetActiveConversation{})
}

func (s *ConversationService) leave(chatID string) {
	if s.typing != nil {
		s.typing.Stop(chatID)
	}
	s.rooms.LeaveRoom(chatID)
}

func (s *ConversationService) loadPage(ctx context.Context, chatID string, page int, merge bool) (PageInfo, error) {
	resp, err := s.api.GetMessages(ctx, chatID, page, s.pageSize)
	if err != nil {
		s.log.Error("failed to load messages", zap.String("chat_id", chatID), zap.Int("page", page), zap.Error(err))
		return PageInfo{}, err
	}
	msgs := toMessages(s.log, chatID, resp.Messages)

	var action store.Action = store.SetMessages{ConversationID: chatID, Messages: msgs, HasMore: resp.Pagination.HasMore}
	if merge {
		action = store.MergeMessages{ConversationID: chatID, Messages: msgs}
	}
	if err := s.store.Dispatch(ctx, action); err != nil && !errors.Is(err, models.ErrInvalidMessage) {
		return PageInfo{}, err
	}

	info := PageInfo{Page: page, HasMore: resp.Pagination.HasMore}
	if resp.Pagination.Page > 0 {
		info.Page = resp.Pagination.Page
	}
	return info, nil
}
