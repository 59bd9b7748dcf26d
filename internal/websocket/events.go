package websocket

import (
	"encoding/json"
	"fmt"

	"github.com/Monica-b-mb/mentorpulse-sub000/internal/models"
)

// Push channel event names.
const (
	EventJoinChat      = "join-chat"
	EventLeaveChat     = "leave-chat"
	EventTypingStart   = "typing-start"
	EventTypingStop    = "typing-stop"
	EventNewMessage    = "new-message"
	EventMessageSent   = "message-sent"
	EventUserTyping    = "user-typing"
	EventMessageStatus = "message-status"
	EventMessagesRead  = "messages-read"
	EventError         = "error"
)

// Event is something the connection manager observed. Consumers switch on the
// concrete type.
type Event interface {
	Name() string
}

// ConnectedEvent is published after every successful handshake, including reconnects.
type ConnectedEvent struct{}

// DisconnectedEvent is published when a live connection drops.
type DisconnectedEvent struct {
	Reason string
}

// ConnectErrorEvent is published when a handshake fails.
type ConnectErrorEvent struct {
	Err error
}

// GaveUpEvent is published when reconnection attempts are exhausted. The
// manager stays idle until Reconnect is called.
type GaveUpEvent struct {
	Attempts int
}

// NewMessageEvent carries a message posted in a joined conversation.
type NewMessageEvent struct {
	ChatID  string
	Message models.Message
}

// MessageSentEvent is the gateway's echo of one of our own sends.
type MessageSentEvent struct {
	ChatID  string
	Message models.Message
}

// UserTypingEvent reports a remote user's typing flag.
type UserTypingEvent struct {
	UserID string
	ChatID string
	Typing bool
}

// MessageStatusEvent reports delivery progress of one of our messages.
type MessageStatusEvent struct {
	ChatID    string
	MessageID string
	State     models.DeliveryState
}

// MessagesReadEvent reports that the peer read the conversation.
type MessagesReadEvent struct {
	ChatID   string
	ReaderID string
}

// ServerErrorEvent carries an error event sent by the gateway.
type ServerErrorEvent struct {
	Message string
}

func (ConnectedEvent) Name() string     { return "connect" }
func (DisconnectedEvent) Name() string  { return "disconnect" }
func (ConnectErrorEvent) Name() string  { return "connect_error" }
func (GaveUpEvent) Name() string        { return "reconnect_failed" }
func (NewMessageEvent) Name() string    { return EventNewMessage }
func (MessageSentEvent) Name() string   { return EventMessageSent }
func (UserTypingEvent) Name() string    { return EventUserTyping }
func (MessageStatusEvent) Name() string { return EventMessageStatus }
func (MessagesReadEvent) Name() string  { return EventMessagesRead }
func (ServerErrorEvent) Name() string   { return EventError }

// decodeFrame turns one inbound frame into an Event. A nil Event with a nil
// error means the frame is valid but not interesting to the client.
func decodeFrame(frame []byte) (Event, error) {
	var env models.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	switch env.Event {
	case EventNewMessage:
		var p models.NewMessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("malformed %s: %w", env.Event, err)
		}
		msg, err := p.Message.Message(p.ChatID)
		if err != nil {
			return nil, fmt.Errorf("malformed %s: %w", env.Event, err)
		}
		return NewMessageEvent{ChatID: msg.ConversationID, Message: msg}, nil

	case EventMessageSent:
		var p models.MessageSentPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("malformed %s: %w", env.Event, err)
		}
		if !p.Success {
			return ServerErrorEvent{Message: "message not sent"}, nil
		}
		msg, err := p.Message.Message(p.ChatID)
		if err != nil {
			return nil, fmt.Errorf("malformed %s: %w", env.Event, err)
		}
		return MessageSentEvent{ChatID: msg.ConversationID, Message: msg}, nil

	case EventUserTyping:
		var p models.UserTypingPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("malformed %s: %w", env.Event, err)
		}
		if p.UserID == "" {
			return nil, fmt.Errorf("malformed %s: missing user id", env.Event)
		}
		return UserTypingEvent{UserID: p.UserID, ChatID: p.ChatID, Typing: p.IsTyping}, nil

	case EventMessageStatus:
		var p models.MessageStatusPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("malformed %s: %w", env.Event, err)
		}
		if p.ChatID == "" || p.MessageID == "" {
			return nil, fmt.Errorf("malformed %s: missing ids", env.Event)
		}
		state, err := models.ParseDeliveryState(p.Status)
		if err != nil {
			return nil, fmt.Errorf("malformed %s: %w", env.Event, err)
		}
		return MessageStatusEvent{ChatID: p.ChatID, MessageID: p.MessageID, State: state}, nil

	case EventMessagesRead:
		var p models.MessagesReadPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("malformed %s: %w", env.Event, err)
		}
		if p.ChatID == "" || p.ReaderID == "" {
			return nil, fmt.Errorf("malformed %s: missing ids", env.Event)
		}
		return MessagesReadEvent{ChatID: p.ChatID, ReaderID: p.ReaderID}, nil

	case EventError:
		var p models.ErrorPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("malformed %s: %w", env.Event, err)
		}
		return ServerErrorEvent{Message: p.Message}, nil
	}
	return nil, nil
}

func encodeFrame(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(models.Envelope{Event: event, Data: raw})
}
