package store

import (
	"time"

	"github.com/Monica-b-mb/mentorpulse-sub000/internal/models"
)

// Action is a mutation request for the reducer. Only types declared in this
// package implement it.
type Action interface {
	actionName() string
}

// AddMessage reconciles one incoming message (push event, HTTP confirmation or
// optimistic insert) into its conversation.
type AddMessage struct {
	Message models.Message
}

// ReplaceMessage swaps the temporary entry TempID for its confirmed counterpart.
type ReplaceMessage struct {
	ConversationID string
	TempID         string
	Message        models.Message
}

// RemoveMessage drops a temporary entry after a failed send. Confirmed entries
// are never removed.
type RemoveMessage struct {
	ConversationID string
	TempID         string
}

// SetMessages replaces a conversation's sequence with a freshly fetched page.
// Pending temporary entries the page does not account for are kept, as are
// confirmed entries outside the page's time window: newer than its newest
// entry, or older than its oldest when HasMore is set.
type SetMessages struct {
	ConversationID string
	Messages       []models.Message
	HasMore        bool
}

// MergeMessages reconciles an older page into the existing sequence.
type MergeMessages struct {
	ConversationID string
	Messages       []models.Message
}

// UpdateDelivery advances the delivery state of one message.
type UpdateDelivery struct {
	ConversationID string
	MessageID      string
	State          models.DeliveryState
}

// MarkPeerRead marks every message the reader did not author as seen.
type MarkPeerRead struct {
	ConversationID string
	ReaderID       string
}

// SetConversations replaces the conversation list.
type SetConversations struct {
	Conversations []models.Conversation
}

// UpsertConversation inserts or refreshes one conversation summary.
type UpsertConversation struct {
	Conversation models.Conversation
}

// SetActiveConversation records which conversation the user has open.
// An empty ID means none.
type SetActiveConversation struct {
	ConversationID string
}

// ResetUnread zeroes a conversation's unread count.
type ResetUnread struct {
	ConversationID string
}

// SetTyping records a remote user's typing flag.
type SetTyping struct {
	UserID string
	Typing bool
}

// ClearTyping forgets every typing flag.
type ClearTyping struct{}

// SetLoadError records a failed conversation load the user can retry.
type SetLoadError struct {
	Message string
}

// ClearLoadError clears the retryable load error.
type ClearLoadError struct{}

// Notice is a transient, dismissible notification such as a failed send.
type Notice struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
}

// PushNotice queues a notice for the UI.
type PushNotice struct {
	Notice Notice
}

// DismissNotice removes a notice by id.
type DismissNotice struct {
	ID string
}

// Reset empties every store. Used on logout.
type Reset struct{}

func (AddMessage) actionName() string            { return "add_message" }
func (ReplaceMessage) actionName() string        { return "replace_message" }
func (RemoveMessage) actionName() string         { return "remove_message" }
func (SetMessages) actionName() string           { return "set_messages" }
func (MergeMessages) actionName() string         { return "merge_messages" }
func (UpdateDelivery) actionName() string        { return "update_delivery" }
func (MarkPeerRead) actionName() string          { return "mark_peer_read" }
func (SetConversations) actionName() string      { return "set_conversations" }
func (UpsertConversation) actionName() string    { return "upsert_conversation" }
func (SetActiveConversation) actionName() string { return "set_active_conversation" }
func (ResetUnread) actionName() string           { return "reset_unread" }
func (SetTyping) actionName() string             { return "set_typing" }
func (ClearTyping) actionName() string           { return "clear_typing" }
func (SetLoadError) actionName() string          { return "set_load_error" }
func (ClearLoadError) actionName() string        { return "clear_load_error" }
func (PushNotice) actionName() string            { return "push_notice" }
func (DismissNotice) actionName() string         { return "dismiss_notice" }
func (Reset) actionName() string                 { return "reset" }
