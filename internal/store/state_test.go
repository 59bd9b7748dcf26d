package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Monica-b-mb/mentorpulse-sub000/internal/models"
)

const (
	selfID = "mentee-1"
	peerID = "mentor-1"
	chatX  = "chat-x"
)

var (
	self = models.Participant{ID: selfID, Name: "Mia", Role: models.RoleMentee}
	peer = models.Participant{ID: peerID, Name: "Omar", Role: models.RoleMentor}
	t0   = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
)

func confirmed(id string, from models.Participant, body string, at time.Time) models.Message {
	return models.Message{
		ID:             id,
		ConversationID: chatX,
		Sender:         from,
		Body:           body,
		Kind:           models.KindText,
		CreatedAt:      at,
		Delivery:       models.DeliverySent,
		Phase:          models.PhaseConfirmed,
	}
}

func temporary(tempID, body string, at time.Time) models.Message {
	return models.NewTemporaryMessage(tempID, chatX, self, body, at)
}

func newState(t *testing.T) *State {
	t.Helper()
	s := NewState(selfID, DefaultMatchTolerance, nil)
	require.NoError(t, s.Reduce(SetConversations{Conversations: []models.Conversation{{
		ID:           chatX,
		Participants: []models.Participant{self, peer},
		Other:        peer,
	}}}))
	return s
}

// assertInvariants checks no duplicate ids or temp ids and non-decreasing timestamps.
func assertInvariants(t *testing.T, seq []models.Message) {
	t.Helper()
	ids := map[string]bool{}
	temps := map[string]bool{}
	for i, m := range seq {
		if m.ID != "" {
			assert.False(t, ids[m.ID], "duplicate id %s", m.ID)
			ids[m.ID] = true
		}
		if m.TempID != "" {
			assert.False(t, temps[m.TempID], "duplicate temp id %s", m.TempID)
			temps[m.TempID] = true
		}
		if i > 0 {
			assert.False(t, m.CreatedAt.Before(seq[i-1].CreatedAt), "sequence out of order at %d", i)
		}
	}
}

func TestAddMessageAppendsAndSorts(t *testing.T) {
	s := newState(t)

	require.NoError(t, s.Reduce(AddMessage{Message: confirmed("m2", peer, "second", t0.Add(time.Minute))}))
	require.NoError(t, s.Reduce(AddMessage{Message: confirmed("m1", peer, "first", t0)}))

	seq := s.Messages(chatX)
	require.Len(t, seq, 2)
	assert.Equal(t, "m1", seq[0].ID)
	assert.Equal(t, "m2", seq[1].ID)
	assertInvariants(t, seq)
}

func TestStableSortKeepsInsertionOrderOnTies(t *testing.T) {
	s := newState(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Reduce(AddMessage{Message: confirmed(fmt.Sprintf("m%d", i), peer, fmt.Sprintf("b%d", i), t0)}))
	}

	seq := s.Messages(chatX)
	for i, m := range seq {
		assert.Equal(t, fmt.Sprintf("m%d", i), m.ID)
	}
}

func TestReconciliationIsIdempotent(t *testing.T) {
	s := newState(t)
	msg := confirmed("m1", self, "Hello", t0)
	msg.TempID = "tmp-1"

	require.NoError(t, s.Reduce(AddMessage{Message: msg}))
	once := s.Messages(chatX)
	conv, _ := s.Conversation(chatX)

	require.NoError(t, s.Reduce(AddMessage{Message: msg}))
	require.NoError(t, s.Reduce(ReplaceMessage{ConversationID: chatX, TempID: "tmp-1", Message: msg}))

	assert.Equal(t, once, s.Messages(chatX))
	again, _ := s.Conversation(chatX)
	assert.Equal(t, conv, again)
}

func TestTemporaryPromotedByTempID(t *testing.T) {
	s := newState(t)
	require.NoError(t, s.Reduce(AddMessage{Message: temporary("tmp-1", "Hello", t0)}))

	echo := confirmed("m1", self, "Hello", t0.Add(300*time.Millisecond))
	echo.TempID = "tmp-1"
	require.NoError(t, s.Reduce(AddMessage{Message: echo}))

	seq := s.Messages(chatX)
	require.Len(t, seq, 1)
	assert.Equal(t, "m1", seq[0].ID)
	assert.Equal(t, "tmp-1", seq[0].TempID)
	assert.False(t, seq[0].Temporary())
	assert.Equal(t, models.DeliverySent, seq[0].Delivery)
}

func TestTemporaryPromotedByContentFallback(t *testing.T) {
	s := newState(t)
	require.NoError(t, s.Reduce(AddMessage{Message: temporary("tmp-1", "Hello", t0)}))

	// Echo without a correlation id, within tolerance.
	require.NoError(t, s.Reduce(AddMessage{Message: confirmed("m1", self, "Hello", t0.Add(2*time.Second))}))

	seq := s.Messages(chatX)
	require.Len(t, seq, 1)
	assert.Equal(t, "m1", seq[0].ID)
	assert.Equal(t, "tmp-1", seq[0].TempID)
}

func TestContentFallbackRespectsTolerance(t *testing.T) {
	s := newState(t)
	require.NoError(t, s.Reduce(AddMessage{Message: temporary("tmp-1", "ok", t0)}))
	require.NoError(t, s.Reduce(AddMessage{Message: confirmed("m1", self, "ok", t0.Add(-time.Minute))}))

	assert.Len(t, s.Messages(chatX), 2)
}

func TestContentFallbackNeverMergesTwoConfirmed(t *testing.T) {
	s := newState(t)
	require.NoError(t, s.Reduce(AddMessage{Message: confirmed("m1", peer, "ok", t0)}))
	require.NoError(t, s.Reduce(AddMessage{Message: confirmed("m2", peer, "ok", t0.Add(time.Second))}))

	assert.Len(t, s.Messages(chatX), 2)
}

func TestReplaceMessageSwapsTemporary(t *testing.T) {
	s := newState(t)
	require.NoError(t, s.Reduce(AddMessage{Message: temporary("tmp-1", "Hello", t0)}))

	require.NoError(t, s.Reduce(ReplaceMessage{
		ConversationID: chatX,
		TempID:         "tmp-1",
		Message:        confirmed("m1", self, "Hello", t0.Add(time.Second)),
	}))

	seq := s.Messages(chatX)
	require.Len(t, seq, 1)
	assert.Equal(t, "m1", seq[0].ID)
	assert.Equal(t, "tmp-1", seq[0].TempID)
	assert.Equal(t, t0.Add(time.Second), seq[0].CreatedAt)
}

func TestReplaceAfterEchoOutsideToleranceCollapses(t *testing.T) {
	s := newState(t)
	require.NoError(t, s.Reduce(AddMessage{Message: temporary("tmp-1", "Hello", t0)}))
	// Echo lost its correlation id and the server clock is far off.
	require.NoError(t, s.Reduce(AddMessage{Message: confirmed("m1", self, "Hello", t0.Add(time.Minute))}))
	require.Len(t, s.Messages(chatX), 2)

	require.NoError(t, s.Reduce(ReplaceMessage{
		ConversationID: chatX,
		TempID:         "tmp-1",
		Message:        confirmed("m1", self, "Hello", t0.Add(time.Minute)),
	}))

	seq := s.Messages(chatX)
	require.Len(t, seq, 1)
	assert.Equal(t, "m1", seq[0].ID)
	assertInvariants(t, seq)
}

func TestReplaceFallsBackToAddWhenTemporaryMissing(t *testing.T) {
	s := newState(t)

	require.NoError(t, s.Reduce(ReplaceMessage{
		ConversationID: chatX,
		TempID:         "tmp-9",
		Message:        confirmed("m9", self, "late", t0),
	}))

	seq := s.Messages(chatX)
	require.Len(t, seq, 1)
	assert.Equal(t, "tmp-9", seq[0].TempID)
}

func TestRemoveMessageOnlyRemovesTemporary(t *testing.T) {
	s := newState(t)
	require.NoError(t, s.Reduce(AddMessage{Message: confirmed("m1", peer, "hi", t0)}))
	require.NoError(t, s.Reduce(AddMessage{Message: temporary("tmp-1", "oops", t0.Add(time.Second))}))

	conv, _ := s.Conversation(chatX)
	require.Equal(t, "tmp-1", conv.LastMessage.ID)

	require.NoError(t, s.Reduce(RemoveMessage{ConversationID: chatX, TempID: "tmp-1"}))
	seq := s.Messages(chatX)
	require.Len(t, seq, 1)
	assert.Equal(t, "m1", seq[0].ID)

	conv, _ = s.Conversation(chatX)
	assert.Equal(t, "m1", conv.LastMessage.ID)

	// Already promoted entries survive a late failure.
	promoted := confirmed("m2", self, "kept", t0.Add(2*time.Second))
	promoted.TempID = "tmp-2"
	require.NoError(t, s.Reduce(AddMessage{Message: promoted}))
	require.NoError(t, s.Reduce(RemoveMessage{ConversationID: chatX, TempID: "tmp-2"}))
	assert.Len(t, s.Messages(chatX), 2)
}

func TestMalformedMessageIsDropped(t *testing.T) {
	s := newState(t)
	require.NoError(t, s.Reduce(AddMessage{Message: confirmed("m1", peer, "hi", t0)}))

	bad := []models.Message{
		{ID: "x", Sender: peer, Body: "no chat", CreatedAt: t0, Phase: models.PhaseConfirmed},
		{ID: "x", ConversationID: chatX, Body: "no sender", CreatedAt: t0, Phase: models.PhaseConfirmed},
		{ID: "x", ConversationID: chatX, Sender: peer, CreatedAt: t0, Phase: models.PhaseConfirmed},
		{ID: "x", ConversationID: chatX, Sender: peer, Body: "no time", Phase: models.PhaseConfirmed},
		{ConversationID: chatX, Sender: peer, Body: "no id", CreatedAt: t0, Phase: models.PhaseConfirmed},
	}
	for _, m := range bad {
		assert.ErrorIs(t, s.Reduce(AddMessage{Message: m}), models.ErrInvalidMessage)
	}

	seq := s.Messages(chatX)
	require.Len(t, seq, 1)
	assert.Equal(t, "m1", seq[0].ID)
}

func TestDeliveryStateIsMonotonic(t *testing.T) {
	s := newState(t)
	require.NoError(t, s.Reduce(AddMessage{Message: confirmed("m1", self, "hi", t0)}))

	require.NoError(t, s.Reduce(UpdateDelivery{ConversationID: chatX, MessageID: "m1", State: models.DeliverySeen}))
	require.NoError(t, s.Reduce(UpdateDelivery{ConversationID: chatX, MessageID: "m1", State: models.DeliveryDelivered}))
	// A stale copy of the message must not regress it either.
	require.NoError(t, s.Reduce(AddMessage{Message: confirmed("m1", self, "hi", t0)}))
	require.NoError(t, s.Reduce(SetMessages{ConversationID: chatX, Messages: []models.Message{confirmed("m1", self, "hi", t0)}}))

	seq := s.Messages(chatX)
	require.Len(t, seq, 1)
	assert.Equal(t, models.DeliverySeen, seq[0].Delivery)
	assert.True(t, seq[0].Seen)
}

func TestMarkPeerReadMarksOwnMessagesSeen(t *testing.T) {
	s := newState(t)
	require.NoError(t, s.Reduce(AddMessage{Message: confirmed("m1", self, "q", t0)}))
	require.NoError(t, s.Reduce(AddMessage{Message: confirmed("m2", peer, "a", t0.Add(time.Second))}))
	require.NoError(t, s.Reduce(AddMessage{Message: temporary("tmp-1", "pending", t0.Add(2*time.Second))}))

	require.NoError(t, s.Reduce(MarkPeerRead{ConversationID: chatX, ReaderID: peerID}))

	seq := s.Messages(chatX)
	assert.Equal(t, models.DeliverySeen, seq[0].Delivery)
	assert.False(t, seq[1].Seen)
	assert.Equal(t, models.DeliverySending, seq[2].Delivery)
}

func TestUnreadCounting(t *testing.T) {
	s := newState(t)

	require.NoError(t, s.Reduce(AddMessage{Message: confirmed("m1", peer, "one", t0)}))
	require.NoError(t, s.Reduce(AddMessage{Message: confirmed("m1", peer, "one", t0)}))
	require.NoError(t, s.Reduce(AddMessage{Message: confirmed("m2", self, "mine", t0.Add(time.Second))}))

	conv, _ := s.Conversation(chatX)
	assert.Equal(t, 1, conv.UnreadCount, "duplicates and own messages do not count")
	assert.Equal(t, "m2", conv.LastMessage.ID)
	assert.Equal(t, t0.Add(time.Second), conv.LastActivity)

	require.NoError(t, s.Reduce(SetActiveConversation{ConversationID: chatX}))
	require.NoError(t, s.Reduce(AddMessage{Message: confirmed("m3", peer, "while open", t0.Add(2*time.Second))}))
	conv, _ = s.Conversation(chatX)
	assert.Equal(t, 1, conv.UnreadCount)

	require.NoError(t, s.Reduce(ResetUnread{ConversationID: chatX}))
	conv, _ = s.Conversation(chatX)
	assert.Zero(t, conv.UnreadCount)
}

// A 50 message page overlapping 3 already loaded entries.
func TestBulkLoadCollapsesOverlap(t *testing.T) {
	page := make([]models.Message, 0, 50)
	for i := 0; i < 50; i++ {
		page = append(page, confirmed(fmt.Sprintf("m%02d", i), peer, fmt.Sprintf("body %d", i), t0.Add(time.Duration(i)*time.Second)))
	}

	for name, action := range map[string]func(msgs []models.Message) Action{
		"set":   func(msgs []models.Message) Action { return SetMessages{ConversationID: chatX, Messages: msgs} },
		"merge": func(msgs []models.Message) Action { return MergeMessages{ConversationID: chatX, Messages: msgs} },
	} {
		t.Run(name, func(t *testing.T) {
			s := newState(t)
			require.NoError(t, s.Reduce(MergeMessages{ConversationID: chatX, Messages: page[20:23]}))
			require.NoError(t, s.Reduce(action(page)))

			seq := s.Messages(chatX)
			assert.Len(t, seq, 50)
			assertInvariants(t, seq)
		})
	}
}

func TestSetMessagesCollapsesOverlappingPage(t *testing.T) {
	s := newState(t)
	a := confirmed("m1", peer, "a", t0)
	b := confirmed("m2", peer, "b", t0.Add(time.Second))

	require.NoError(t, s.Reduce(SetMessages{ConversationID: chatX, Messages: []models.Message{a, b, a, b}}))

	seq := s.Messages(chatX)
	assert.Len(t, seq, 2)
	assertInvariants(t, seq)
}

func TestSetMessagesKeepsPendingTemporaries(t *testing.T) {
	s := newState(t)
	require.NoError(t, s.Reduce(AddMessage{Message: temporary("tmp-1", "in flight", t0.Add(time.Hour))}))
	require.NoError(t, s.Reduce(AddMessage{Message: temporary("tmp-2", "already stored", t0.Add(time.Minute))}))

	stored := confirmed("m2", self, "already stored", t0.Add(time.Minute+time.Second))
	require.NoError(t, s.Reduce(SetMessages{ConversationID: chatX, Messages: []models.Message{
		confirmed("m1", peer, "hi", t0),
		stored,
	}}))

	seq := s.Messages(chatX)
	require.Len(t, seq, 3)
	assert.Equal(t, "m1", seq[0].ID)
	assert.Equal(t, "m2", seq[1].ID)
	assert.Equal(t, "tmp-2", seq[1].TempID)
	assert.True(t, seq[2].Temporary())
	assertInvariants(t, seq)
}

func TestSetMessagesDropsMalformedEntries(t *testing.T) {
	s := newState(t)
	good := confirmed("m1", peer, "ok", t0)
	noBody := confirmed("m2", peer, "", t0)
	other := confirmed("m3", peer, "elsewhere", t0)
	other.ConversationID = "chat-y"

	require.NoError(t, s.Reduce(SetMessages{ConversationID: chatX, Messages: []models.Message{good, noBody, other}}))
	assert.Len(t, s.Messages(chatX), 1)
}

// An offline optimistic send interleaved with a peer message
// confirmed later by push; both end up once, in order.
func TestOfflineSendAndPushInterleave(t *testing.T) {
	s := newState(t)

	require.NoError(t, s.Reduce(AddMessage{Message: temporary("tmp-hello", "Hello", t0.Add(10*time.Second))}))
	peerY := confirmed("y", peer, "Are we still on?", t0.Add(5*time.Second))
	require.NoError(t, s.Reduce(AddMessage{Message: peerY}))

	// Connectivity resumes: the HTTP ack and the echo race, then a refetch.
	hello := confirmed("h", self, "Hello", t0.Add(11*time.Second))
	hello.TempID = "tmp-hello"
	require.NoError(t, s.Reduce(AddMessage{Message: hello}))
	require.NoError(t, s.Reduce(ReplaceMessage{ConversationID: chatX, TempID: "tmp-hello", Message: hello}))
	require.NoError(t, s.Reduce(AddMessage{Message: peerY}))
	require.NoError(t, s.Reduce(SetMessages{ConversationID: chatX, Messages: []models.Message{peerY, hello}}))

	seq := s.Messages(chatX)
	require.Len(t, seq, 2)
	assert.Equal(t, "y", seq[0].ID)
	assert.Equal(t, "h", seq[1].ID)
	assertInvariants(t, seq)
}

func TestInvariantsHoldAcrossMixedActions(t *testing.T) {
	s := newState(t)
	actions := []Action{
		AddMessage{Message: temporary("t1", "a", t0.Add(3*time.Second))},
		AddMessage{Message: confirmed("p1", peer, "b", t0.Add(time.Second))},
		AddMessage{Message: temporary("t2", "c", t0.Add(4*time.Second))},
		ReplaceMessage{ConversationID: chatX, TempID: "t1", Message: confirmed("s1", self, "a", t0.Add(3*time.Second))},
		AddMessage{Message: confirmed("s1", self, "a", t0.Add(3*time.Second))},
		MergeMessages{ConversationID: chatX, Messages: []models.Message{confirmed("p0", peer, "z", t0), confirmed("p1", peer, "b", t0.Add(time.Second))}},
		RemoveMessage{ConversationID: chatX, TempID: "t2"},
		AddMessage{Message: confirmed("p2", peer, "d", t0.Add(2*time.Second))},
	}
	for _, a := range actions {
		require.NoError(t, s.Reduce(a))
		assertInvariants(t, s.Messages(chatX))
	}
	assert.Len(t, s.Messages(chatX), 4)
}

func TestConversationsOrderAndLocalPreviewKept(t *testing.T) {
	s := newState(t)
	require.NoError(t, s.Reduce(AddMessage{Message: confirmed("m5", peer, "newest", t0.Add(time.Hour))}))

	require.NoError(t, s.Reduce(SetConversations{Conversations: []models.Conversation{
		{ID: chatX, Other: peer, LastMessage: &models.MessageSummary{ID: "m4", Body: "stale", CreatedAt: t0}, LastActivity: t0, UnreadCount: 2},
		{ID: "chat-y", Other: models.Participant{ID: "mentor-2"}, LastActivity: t0.Add(time.Minute)},
	}}))

	list := s.Conversations()
	require.Len(t, list, 2)
	assert.Equal(t, chatX, list[0].ID)
	assert.Equal(t, "newest", list[0].LastMessage.Body)
	assert.Equal(t, 2, list[0].UnreadCount)

	c, ok := s.ConversationWith("mentor-2")
	require.True(t, ok)
	assert.Equal(t, "chat-y", c.ID)
}

func TestTypingAndNotices(t *testing.T) {
	s := newState(t)

	require.NoError(t, s.Reduce(SetTyping{UserID: peerID, Typing: true}))
	assert.Equal(t, map[string]bool{peerID: true}, s.Typing())
	require.NoError(t, s.Reduce(SetTyping{UserID: peerID, Typing: false}))
	assert.Empty(t, s.Typing())

	for i := 0; i < maxNotices+3; i++ {
		require.NoError(t, s.Reduce(PushNotice{Notice: Notice{ID: fmt.Sprintf("n%d", i), Message: "failed"}}))
	}
	notices := s.Notices()
	require.Len(t, notices, maxNotices)
	assert.Equal(t, "n3", notices[0].ID)

	require.NoError(t, s.Reduce(DismissNotice{ID: "n3"}))
	assert.Len(t, s.Notices(), maxNotices-1)

	require.NoError(t, s.Reduce(SetLoadError{Message: "boom"}))
	assert.Equal(t, "boom", s.LoadError())
	require.NoError(t, s.Reduce(Reset{}))
	assert.Empty(t, s.LoadError())
	assert.Empty(t, s.Conversations())
	assert.Empty(t, s.Notices())
}

func TestSetMessagesKeepsPushNewerThanPage(t *testing.T) {
	page := []models.Message{
		confirmed("m1", peer, "a", t0),
		confirmed("m2", peer, "b", t0.Add(time.Second)),
		confirmed("m3", peer, "c", t0.Add(2*time.Second)),
	}
	push := confirmed("m-new", peer, "just now", t0.Add(time.Minute))

	for name, order := range map[string][]Action{
		"fetch resolves after push": {
			SetMessages{ConversationID: chatX, Messages: page},
			AddMessage{Message: push},
			SetMessages{ConversationID: chatX, Messages: page},
		},
		"fetch resolves before push": {
			SetMessages{ConversationID: chatX, Messages: page},
			SetMessages{ConversationID: chatX, Messages: page},
			AddMessage{Message: push},
		},
	} {
		t.Run(name, func(t *testing.T) {
			s := newState(t)
			for _, a := range order {
				require.NoError(t, s.Reduce(a))
			}
			seq := s.Messages(chatX)
			require.Len(t, seq, 4)
			assert.Equal(t, "m-new", seq[3].ID)
			assertInvariants(t, seq)
		})
	}
}

func TestSetMessagesKeepsOlderHistoryOnlyWhenPageHasMore(t *testing.T) {
	older := []models.Message{
		confirmed("o1", peer, "old a", t0.Add(-2*time.Hour)),
		confirmed("o2", peer, "old b", t0.Add(-time.Hour)),
	}
	page := []models.Message{
		confirmed("m1", peer, "a", t0),
		confirmed("m2", peer, "b", t0.Add(time.Second)),
	}

	s := newState(t)
	require.NoError(t, s.Reduce(MergeMessages{ConversationID: chatX, Messages: older}))
	require.NoError(t, s.Reduce(SetMessages{ConversationID: chatX, Messages: page, HasMore: true}))
	seq := s.Messages(chatX)
	require.Len(t, seq, 4)
	assert.Equal(t, "o1", seq[0].ID)
	assertInvariants(t, seq)

	// a complete page speaks for everything older than its newest entry
	require.NoError(t, s.Reduce(SetMessages{ConversationID: chatX, Messages: page}))
	assert.Len(t, s.Messages(chatX), 2)
}

func TestSetMessagesEmptyPageKeepsConfirmed(t *testing.T) {
	s := newState(t)
	require.NoError(t, s.Reduce(AddMessage{Message: confirmed("m1", peer, "a", t0)}))

	require.NoError(t, s.Reduce(SetMessages{ConversationID: chatX}))
	assert.Len(t, s.Messages(chatX), 1)
}
