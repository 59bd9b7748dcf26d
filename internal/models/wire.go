package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// WireUser is a user reference as sent by the backend and the realtime gateway.
type WireUser struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	Role   Role   `json:"role,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Participant converts the wire form.
func (u WireUser) Participant() Participant {
	return Participant{ID: u.ID, Name: u.Name, Role: u.Role, Avatar: u.Avatar}
}

// WireMessage is a message as carried by REST responses and push events.
type WireMessage struct {
	ID              string    `json:"_id"`
	ChatID          string    `json:"chatId"`
	Sender          WireUser  `json:"sender"`
	Content         string    `json:"content"`
	MessageType     string    `json:"messageType,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	ClientMessageID string    `json:"clientMessageId,omitempty"`
	Status          string    `json:"status,omitempty"`
	IsSeen          bool      `json:"isSeen,omitempty"`
}

// Message converts a server payload into a confirmed Message.
// chatID is used when the payload omits its own chat id.
func (w WireMessage) Message(chatID string) (Message, error) {
	if w.ChatID != "" {
		chatID = w.ChatID
	}
	msg := Message{
		ID:             w.ID,
		TempID:         w.ClientMessageID,
		ConversationID: chatID,
		Sender:         w.Sender.Participant(),
		Body:           w.Content,
		Kind:           KindText,
		CreatedAt:      w.CreatedAt,
		Delivery:       DeliverySent,
		Seen:           w.IsSeen,
		Phase:          PhaseConfirmed,
	}
	if w.MessageType != "" && MessageKind(w.MessageType) != KindText {
		return Message{}, fmt.Errorf("%w: unsupported message type %q", ErrInvalidMessage, w.MessageType)
	}
	if w.Status != "" {
		state, err := ParseDeliveryState(w.Status)
		if err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		msg.Delivery = msg.Delivery.Max(state)
	}
	if msg.Seen {
		msg.Delivery = DeliverySeen
	}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// WireConversation is a conversation summary as returned by the backend.
type WireConversation struct {
	ID               string       `json:"_id"`
	Participants     []WireUser   `json:"participants"`
	OtherParticipant *WireUser    `json:"otherParticipant,omitempty"`
	LastMessage      *WireMessage `json:"lastMessage,omitempty"`
	UnreadCount      int          `json:"unreadCount"`
	LastActivity     time.Time    `json:"lastActivity"`
}

// Conversation converts the wire summary. selfID picks the "other" side when
// the backend did not denormalize it.
func (w WireConversation) Conversation(selfID string) (Conversation, error) {
	if w.ID == "" {
		return Conversation{}, fmt.Errorf("conversation without id")
	}
	conv := Conversation{
		ID:           w.ID,
		UnreadCount:  w.UnreadCount,
		LastActivity: w.LastActivity,
	}
	for _, p := range w.Participants {
		conv.Participants = append(conv.Participants, p.Participant())
		if p.ID != selfID && conv.Other.ID == "" {
			conv.Other = p.Participant()
		}
	}
	if w.OtherParticipant != nil {
		conv.Other = w.OtherParticipant.Participant()
	}
	if w.LastMessage != nil && w.LastMessage.Content != "" {
		conv.LastMessage = &MessageSummary{
			ID:        w.LastMessage.ID,
			SenderID:  w.LastMessage.Sender.ID,
			Body:      w.LastMessage.Content,
			CreatedAt: w.LastMessage.CreatedAt,
		}
		if conv.LastActivity.IsZero() {
			conv.LastActivity = w.LastMessage.CreatedAt
		}
	}
	return conv, nil
}

// Pagination describes a page of messages.
type Pagination struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasMore bool `json:"hasMore"`
}

// MessagePage is the data of GET /chat/{id}/messages.
type MessagePage struct {
	Messages   []WireMessage `json:"messages"`
	Pagination Pagination    `json:"pagination"`
}

// SendMessageRequest is the body of POST /chat/{id}/messages.
type SendMessageRequest struct {
	Content         string `json:"content"`
	MessageType     string `json:"messageType"`
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

// GetOrCreateRequest is the body of POST /chat/get-or-create.
type GetOrCreateRequest struct {
	ParticipantID string `json:"participantId"`
}

// Envelope is the push channel frame format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewMessagePayload is the data of new-message.
type NewMessagePayload struct {
	ChatID  string      `json:"chatId"`
	Message WireMessage `json:"message"`
}

// MessageSentPayload is the data of message-sent, the gateway's echo of our own send.
type MessageSentPayload struct {
	Success bool        `json:"success"`
	ChatID  string      `json:"chatId"`
	Message WireMessage `json:"message"`
}

// UserTypingPayload is the data of user-typing.
type UserTypingPayload struct {
	UserID   string `json:"userId"`
	ChatID   string `json:"chatId,omitempty"`
	IsTyping bool   `json:"isTyping"`
}

// MessageStatusPayload is the data of message-status.
type MessageStatusPayload struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

// MessagesReadPayload is the data of messages-read.
type MessagesReadPayload struct {
	ChatID   string `json:"chatId"`
	ReaderID string `json:"readerId"`
}

// ErrorPayload is the data of error.
type ErrorPayload struct {
	Message string `json:"message"`
}

// ChatRef is the data of join-chat, leave-chat and the typing events.
type ChatRef struct {
	ChatID string `json:"chatId"`
}
