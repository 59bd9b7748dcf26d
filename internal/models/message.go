package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MessageKind is the content type of a message. Only text is supported today.
type MessageKind string

const (
	KindText MessageKind = "text"
)

// Phase discriminates a locally synthesized message from a server-confirmed one.
type Phase uint8

const (
	// PhaseTemporary marks an optimistic entry that only carries a TempID.
	PhaseTemporary Phase = iota
	// PhaseConfirmed marks an entry that carries an authoritative server ID.
	PhaseConfirmed
)

func (p Phase) String() string {
	if p == PhaseConfirmed {
		return "confirmed"
	}
	return "temporary"
}

// DeliveryState is the lifecycle stage of an outgoing message.
// The zero value is DeliverySending. States only move forward.
type DeliveryState uint8

const (
	DeliverySending DeliveryState = iota
	DeliverySent
	DeliveryDelivered
	DeliverySeen
)

var deliveryNames = [...]string{"sending", "sent", "delivered", "seen"}

func (d DeliveryState) String() string {
	if int(d) < len(deliveryNames) {
		return deliveryNames[d]
	}
	return fmt.Sprintf("delivery(%d)", d)
}

// ParseDeliveryState maps a wire status string onto a DeliveryState.
func ParseDeliveryState(s string) (DeliveryState, error) {
	for i, name := range deliveryNames {
		if strings.EqualFold(s, name) {
			return DeliveryState(i), nil
		}
	}
	return DeliverySending, fmt.Errorf("unknown delivery state %q", s)
}

// MarshalText lets DeliveryState render as its name in JSON.
func (d DeliveryState) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *DeliveryState) UnmarshalText(b []byte) error {
	state, err := ParseDeliveryState(string(b))
	if err != nil {
		return err
	}
	*d = state
	return nil
}

// Max returns the later of two delivery states.
func (d DeliveryState) Max(other DeliveryState) DeliveryState {
	if other > d {
		return other
	}
	return d
}

// ErrInvalidMessage is returned by Validate for messages missing required fields.
var ErrInvalidMessage = errors.New("invalid message")

// Message is a single entry of a conversation's sequence.
// It is either Temporary (TempID only) or Confirmed (ID, optionally with the
// TempID it was correlated from); Phase says which.
type Message struct {
	// ID is the authoritative server-assigned identifier (empty while temporary)
	ID string `json:"id,omitempty"`

	// TempID is the client-generated correlation id. Retained after confirmation.
	TempID string `json:"temp_id,omitempty"`

	// ConversationID is the conversation this message belongs to
	ConversationID string `json:"conversation_id"`

	// Sender is the author of the message
	Sender Participant `json:"sender"`

	// Body is the message text
	Body string `json:"body"`

	Kind MessageKind `json:"kind"`

	// CreatedAt orders the conversation's sequence
	CreatedAt time.Time `json:"created_at"`

	// Delivery is only meaningful for the current user's own messages
	Delivery DeliveryState `json:"delivery"`

	// Seen is set once the recipient has read the message
	Seen bool `json:"seen"`

	Phase Phase `json:"-"`
}

// Temporary reports whether the message is still awaiting server confirmation.
func (m Message) Temporary() bool {
	return m.Phase == PhaseTemporary
}

// NewTemporaryMessage builds the optimistic entry shown while a send is in flight.
func NewTemporaryMessage(tempID, conversationID string, sender Participant, body string, now time.Time) Message {
	return Message{
		TempID:         tempID,
		ConversationID: conversationID,
		Sender:         sender,
		Body:           body,
		Kind:           KindText,
		CreatedAt:      now,
		Delivery:       DeliverySending,
		Phase:          PhaseTemporary,
	}
}

// Validate checks the fields every stored message must carry.
func (m Message) Validate() error {
	switch {
	case m.ConversationID == "":
		return fmt.Errorf("%w: missing conversation id", ErrInvalidMessage)
	case m.Sender.ID == "":
		return fmt.Errorf("%w: missing sender", ErrInvalidMessage)
	case m.Body == "":
		return fmt.Errorf("%w: missing body", ErrInvalidMessage)
	case m.CreatedAt.IsZero():
		return fmt.Errorf("%w: missing timestamp", ErrInvalidMessage)
	case m.Phase == PhaseConfirmed && m.ID == "":
		return fmt.Errorf("%w: confirmed message without id", ErrInvalidMessage)
	case m.Phase == PhaseTemporary && m.TempID == "":
		return fmt.Errorf("%w: temporary message without temp id", ErrInvalidMessage)
	}
	return nil
}

// MessageSummary is the last-message preview kept on a conversation.
type MessageSummary struct {
	ID        string    `json:"id,omitempty"`
	SenderID  string    `json:"sender_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary returns the preview of m.
func (m Message) Summary() *MessageSummary {
	id := m.ID
	if id == "" {
		id = m.TempID
	}
	return &MessageSummary{
		ID:        id,
		SenderID:  m.Sender.ID,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
	}
}
