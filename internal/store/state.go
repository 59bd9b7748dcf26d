package store

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Monica-b-mb/mentorpulse-sub000/internal/metrics"
	"github.com/Monica-b-mb/mentorpulse-sub000/internal/models"
)

// DefaultMatchTolerance bounds the content+timestamp fallback match.
const DefaultMatchTolerance = 5 * time.Second

const maxNotices = 20

var ErrUnknownAction = errors.New("unknown action")

// State holds the message store, the conversation list, typing flags and UI
// error state. It is not safe for concurrent use; Store serializes access.
type State struct {
	self      string
	tolerance time.Duration
	log       *zap.Logger

	// messages maps conversation id to its ordered, deduplicated sequence
	messages map[string][]models.Message

	conversations map[string]*models.Conversation

	// active is the conversation the user has open
	active string

	// typing maps remote user id to its typing flag; false entries are deleted
	typing map[string]bool

	loadError string
	notices   []Notice
}

// NewState creates empty stores for the user selfID.
func NewState(selfID string, tolerance time.Duration, log *zap.Logger) *State {
	if tolerance <= 0 {
		tolerance = DefaultMatchTolerance
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &State{
		self:          selfID,
		tolerance:     tolerance,
		log:           log,
		messages:      make(map[string][]models.Message),
		conversations: make(map[string]*models.Conversation),
		typing:        make(map[string]bool),
	}
}

// Reduce applies one action. Malformed messages are rejected with an error and
// leave the state untouched.
func (s *State) Reduce(a Action) error {
	switch a := a.(type) {
	case AddMessage:
		return s.addMessage(a.Message)
	case ReplaceMessage:
		return s.replaceMessage(a)
	case RemoveMessage:
		s.removeMessage(a.ConversationID, a.TempID)
	case SetMessages:
		return s.setMessages(a.ConversationID, a.Messages, a.HasMore)
	case MergeMessages:
		return s.mergeMessages(a.ConversationID, a.Messages)
	case UpdateDelivery:
		s.updateDelivery(a)
	case MarkPeerRead:
		s.markPeerRead(a.ConversationID, a.ReaderID)
	case SetConversations:
		s.setConversations(a.Conversations)
	case UpsertConversation:
		s.upsertConversation(a.Conversation)
	case SetActiveConversation:
		s.active = a.ConversationID
	case ResetUnread:
		if c, ok := s.conversations[a.ConversationID]; ok {
			c.UnreadCount = 0
		}
	case SetTyping:
		if a.Typing {
			s.typing[a.UserID] = true
		} else {
			delete(s.typing, a.UserID)
		}
	case ClearTyping:
		clear(s.typing)
	case SetLoadError:
		s.loadError = a.Message
	case ClearLoadError:
		s.loadError = ""
	case PushNotice:
		s.notices = append(s.notices, a.Notice)
		if len(s.notices) > maxNotices {
			s.notices = slices.Delete(s.notices, 0, len(s.notices)-maxNotices)
		}
	case DismissNotice:
		s.notices = slices.DeleteFunc(s.notices, func(n Notice) bool { return n.ID == a.ID })
	case Reset:
		clear(s.messages)
		clear(s.conversations)
		clear(s.typing)
		s.active = ""
		s.loadError = ""
		s.notices = nil
	default:
		return fmt.Errorf("%w: %T", ErrUnknownAction, a)
	}
	return nil
}

func (s *State) addMessage(msg models.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	cid := msg.ConversationID

	seq, idx, rule, appended := reconcileInto(s.messages[cid], msg, s.tolerance)
	sortByTime(seq)
	s.messages[cid] = seq

	if !appended {
		metrics.MessagesMerged.WithLabelValues(rule).Inc()
		s.log.Debug("message reconciled",
			zap.String("chat_id", cid),
			zap.String("rule", rule),
			zap.Int("index", idx))
	}

	s.touchConversation(cid)
	if appended && msg.Sender.ID != s.self && cid != s.active {
		if c, ok := s.conversations[cid]; ok {
			c.UnreadCount++
		}
	}
	return nil
}

func (s *State) replaceMessage(a ReplaceMessage) error {
	msg := a.Message
	if msg.ConversationID == "" {
		msg.ConversationID = a.ConversationID
	}
	msg.Phase = models.PhaseConfirmed
	if msg.TempID == "" {
		msg.TempID = a.TempID
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	seq := s.messages[msg.ConversationID]
	idx := slices.IndexFunc(seq, func(m models.Message) bool { return m.TempID == a.TempID })
	if idx < 0 {
		// The temporary entry is gone or was never correlated; fall back to
		// the add rules, including content+timestamp matching.
		return s.addMessage(msg)
	}

	seq[idx] = merge(seq[idx], msg)
	seq, _ = absorbDuplicates(seq, idx)
	sortByTime(seq)
	s.messages[msg.ConversationID] = seq
	s.touchConversation(msg.ConversationID)
	return nil
}

func (s *State) removeMessage(cid, tempID string) {
	seq, ok := s.messages[cid]
	if !ok || tempID == "" {
		return
	}
	s.messages[cid] = slices.DeleteFunc(seq, func(m models.Message) bool {
		return m.Temporary() && m.TempID == tempID
	})

	c, ok := s.conversations[cid]
	if !ok || c.LastMessage == nil || c.LastMessage.ID != tempID {
		return
	}
	c.LastMessage = nil
	if rest := s.messages[cid]; len(rest) > 0 {
		c.LastMessage = rest[len(rest)-1].Summary()
	}
}

// validPage drops malformed entries from a fetched page, logging each one.
func (s *State) validPage(cid string, msgs []models.Message) []models.Message {
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ConversationID == "" {
			m.ConversationID = cid
		}
		if m.ConversationID != cid {
			s.log.Warn("dropping message from another conversation",
				zap.String("chat_id", cid),
				zap.String("message_chat_id", m.ConversationID))
			metrics.RecordDropped("page")
			continue
		}
		if err := m.Validate(); err != nil {
			s.log.Error("dropping malformed message", zap.String("chat_id", cid), zap.Error(err))
			metrics.RecordDropped("page")
			continue
		}
		out = append(out, m)
	}
	return out
}

func (s *State) setMessages(cid string, msgs []models.Message, hasMore bool) error {
	if cid == "" {
		return fmt.Errorf("%w: set messages without conversation id", models.ErrInvalidMessage)
	}
	seq := collapse(s.validPage(cid, msgs), s.tolerance)
	oldest, newest, ok := pageWindow(seq)

	for _, old := range s.messages[cid] {
		idx, _ := findMatch(seq, old, s.tolerance)
		switch {
		case idx >= 0:
			// Local delivery progress must survive a refetch.
			seq[idx] = merge(old, seq[idx])
			seq, _ = absorbDuplicates(seq, idx)
		case old.Temporary(), !ok, old.CreatedAt.After(newest),
			hasMore && old.CreatedAt.Before(oldest):
			// The page cannot speak for entries outside its window.
			seq = append(seq, old)
		}
	}
	sortByTime(seq)
	s.messages[cid] = seq
	s.touchConversation(cid)
	return nil
}

// pageWindow returns the oldest and newest creation times of a page.
func pageWindow(page []models.Message) (oldest, newest time.Time, ok bool) {
	for i, m := range page {
		if i == 0 || m.CreatedAt.Before(oldest) {
			oldest = m.CreatedAt
		}
		if i == 0 || m.CreatedAt.After(newest) {
			newest = m.CreatedAt
		}
	}
	return oldest, newest, len(page) > 0
}

func (s *State) mergeMessages(cid string, msgs []models.Message) error {
	if cid == "" {
		return fmt.Errorf("%w: merge messages without conversation id", models.ErrInvalidMessage)
	}
	seq := s.messages[cid]
	for _, m := range s.validPage(cid, msgs) {
		seq, _, _, _ = reconcileInto(seq, m, s.tolerance)
	}
	sortByTime(seq)
	s.messages[cid] = seq
	s.touchConversation(cid)
	return nil
}

func (s *State) updateDelivery(a UpdateDelivery) {
	seq := s.messages[a.ConversationID]
	for i := range seq {
		if seq[i].ID != a.MessageID && seq[i].TempID != a.MessageID {
			continue
		}
		if a.State <= seq[i].Delivery {
			s.log.Debug("ignoring delivery regression",
				zap.String("message_id", a.MessageID),
				zap.Stringer("current", seq[i].Delivery),
				zap.Stringer("requested", a.State))
			return
		}
		seq[i].Delivery = a.State
		if a.State == models.DeliverySeen {
			seq[i].Seen = true
		}
		return
	}
}

func (s *State) markPeerRead(cid, readerID string) {
	seq := s.messages[cid]
	for i := range seq {
		if seq[i].Sender.ID == readerID || seq[i].Temporary() {
			continue
		}
		seq[i].Seen = true
		seq[i].Delivery = models.DeliverySeen
	}
}

// touchConversation refreshes the last-message preview from the newest entry
// of the sequence when it is newer than what the summary already shows.
func (s *State) touchConversation(cid string) {
	c, ok := s.conversations[cid]
	seq := s.messages[cid]
	if !ok || len(seq) == 0 {
		return
	}
	last := seq[len(seq)-1]
	if c.LastMessage == nil || !last.CreatedAt.Before(c.LastMessage.CreatedAt) ||
		(last.TempID != "" && c.LastMessage.ID == last.TempID) {
		c.LastMessage = last.Summary()
	}
	if last.CreatedAt.After(c.LastActivity) {
		c.LastActivity = last.CreatedAt
	}
}

func (s *State) setConversations(list []models.Conversation) {
	old := s.conversations
	s.conversations = make(map[string]*models.Conversation, len(list))
	for _, c := range list {
		s.putConversation(c, old[c.ID])
	}
}

func (s *State) upsertConversation(c models.Conversation) {
	s.putConversation(c, s.conversations[c.ID])
}

// putConversation stores c, keeping a newer local last message if the server
// summary predates a push that already arrived.
func (s *State) putConversation(c models.Conversation, prev *models.Conversation) {
	if c.ID == "" {
		s.log.Error("dropping conversation without id")
		metrics.RecordDropped("conversation")
		return
	}
	nc := c.Clone()
	if prev != nil && prev.LastMessage != nil &&
		(nc.LastMessage == nil || prev.LastMessage.CreatedAt.After(nc.LastMessage.CreatedAt)) {
		lm := *prev.LastMessage
		nc.LastMessage = &lm
		if prev.LastActivity.After(nc.LastActivity) {
			nc.LastActivity = prev.LastActivity
		}
	}
	if nc.ID == s.active {
		nc.UnreadCount = 0
	}
	s.conversations[nc.ID] = &nc
	s.touchConversation(nc.ID)
}

// Messages returns a copy of a conversation's ordered sequence.
func (s *State) Messages(cid string) []models.Message {
	return slices.Clone(s.messages[cid])
}

// Conversations returns copies of all summaries, most recent activity first.
func (s *State) Conversations() []models.Conversation {
	out := make([]models.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c.Clone())
	}
	slices.SortStableFunc(out, func(a, b models.Conversation) int {
		if c := b.LastActivity.Compare(a.LastActivity); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Conversation returns a copy of one summary.
func (s *State) Conversation(id string) (models.Conversation, bool) {
	c, ok := s.conversations[id]
	if !ok {
		return models.Conversation{}, false
	}
	return c.Clone(), true
}

// ConversationWith finds the conversation whose other side is participantID.
func (s *State) ConversationWith(participantID string) (models.Conversation, bool) {
	for _, c := range s.conversations {
		if c.Other.ID == participantID {
			return c.Clone(), true
		}
	}
	return models.Conversation{}, false
}

// Typing returns a copy of the typing flags.
func (s *State) Typing() map[string]bool {
	out := make(map[string]bool, len(s.typing))
	for k, v := range s.typing {
		out[k] = v
	}
	return out
}

func (s *State) ActiveConversation() string { return s.active }

func (s *State) LoadError() string { return s.loadError }

func (s *State) Notices() []Notice { return slices.Clone(s.notices) }
