package models

import "time"

// Role distinguishes the two sides of a mentoring pair.
type Role string

const (
	RoleMentor Role = "mentor"
	RoleMentee Role = "mentee"
)

// Participant is one side of a conversation.
type Participant struct {
	// ID is the user's identifier on the platform
	ID string `json:"id"`

	// Name is the display name
	Name string `json:"name"`

	Role Role `json:"role,omitempty"`

	// Avatar is an optional image URL
	Avatar string `json:"avatar,omitempty"`
}

// Conversation is the inbox summary of a one-to-one chat.
// Conversations are created through get-or-create and never deleted locally.
type Conversation struct {
	// ID is the server-assigned conversation identifier
	ID string `json:"id"`

	// Participants holds both sides of the conversation
	Participants []Participant `json:"participants"`

	// Other is the denormalized view of the participant who is not the current user
	Other Participant `json:"other"`

	// LastMessage is a preview of the newest message, if any
	LastMessage *MessageSummary `json:"last_message,omitempty"`

	// UnreadCount counts messages from Other received while the conversation was not open
	UnreadCount int `json:"unread_count"`

	// LastActivity is bumped on every new message
	LastActivity time.Time `json:"last_activity"`
}

// HasParticipant reports whether userID is a side of the conversation.
func (c Conversation) HasParticipant(userID string) bool {
	if c.Other.ID == userID {
		return true
	}
	for _, p := range c.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no mutable state with c.
func (c Conversation) Clone() Conversation {
	out := c
	out.Participants = append([]Participant(nil), c.Participants...)
	if c.LastMessage != nil {
		lm := *c.LastMessage
		out.LastMessage = &lm
	}
	return out
}
