package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/Monica-b-mb/mentorpulse-sub000/internal/models"
	"github.com/Monica-b-mb/mentorpulse-sub000/internal/store"
)

const (
	selfID = "mentee-1"
	peerID = "mentor-1"
	chatX  = "chat-x"
	chatY  = "chat-y"
)

var (
	self = models.Participant{ID: selfID, Name: "Mia", Role: models.RoleMentee}
	peer = models.Participant{ID: peerID, Name: "Omar", Role: models.RoleMentor}
	t0   = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	errBackend = errors.New("backend down")
)

// fakeAPI is an in-memory chat backend.
type fakeAPI struct {
	mu sync.Mutex

	convs   []models.WireConversation
	listErr error

	pages   map[int]models.MessagePage
	pageErr error

	// send handles SendMessage; the default echoes a confirmed message
	send func(chatID, content, clientID string) (*models.WireMessage, error)

	listCalls  int
	pageCalls  []int
	sendCalls  []models.SendMessageRequest
	readCalls  []string
	getOrCalls []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{pages: make(map[int]models.MessagePage)}
}

func (f *fakeAPI) ListConversations(ctx context.Context) ([]models.WireConversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]models.WireConversation(nil), f.convs...), nil
}

func (f *fakeAPI) GetOrCreateConversation(ctx context.Context, participantID string) (*models.WireConversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getOrCalls = append(f.getOrCalls, participantID)
	return &models.WireConversation{
		ID: "chat-" + participantID,
		Participants: []models.WireUser{
			{ID: selfID, Name: self.Name},
			{ID: participantID, Name: "Peer"},
		},
	}, nil
}

func (f *fakeAPI) GetMessages(ctx context.Context, chatID string, page, limit int) (*models.MessagePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageCalls = append(f.pageCalls, page)
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	p := f.pages[page]
	return &p, nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, chatID, content, clientID string) (*models.WireMessage, error) {
	f.mu.Lock()
	f.sendCalls = append(f.sendCalls, models.SendMessageRequest{Content: content, MessageType: "text", ClientMessageID: clientID})
	n := len(f.sendCalls)
	send := f.send
	f.mu.Unlock()

	if send != nil {
		msg, err := send(chatID, content, clientID)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return msg, err
	}
	return &models.WireMessage{
		ID:              fmt.Sprintf("srv-%d", n),
		ChatID:          chatID,
		Sender:          models.WireUser{ID: selfID, Name: self.Name},
		Content:         content,
		CreatedAt:       t0.Add(time.Duration(n) * 100 * time.Millisecond),
		ClientMessageID: clientID,
	}, nil
}

func (f *fakeAPI) MarkRead(ctx context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCalls = append(f.readCalls, chatID)
	return nil
}

func (f *fakeAPI) sends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sendCalls)
}

// fakeSocket records typing signals and room membership.
type fakeSocket struct {
	mu     sync.Mutex
	typing []string
	joined []string
	left   []string
}

func (s *fakeSocket) EmitTyping(chatID string, typing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := "stop"
	if typing {
		state = "start"
	}
	s.typing = append(s.typing, chatID+":"+state)
}

func (s *fakeSocket) JoinRoom(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joined = append(s.joined, chatID)
}

func (s *fakeSocket) LeaveRoom(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.left = append(s.left, chatID)
}

func (s *fakeSocket) typingSignals() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.typing...)
}

func (s *fakeSocket) rooms() (joined, left []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.joined...), append([]string(nil), s.left...)
}

func startStore(t *testing.T) *store.Store {
	t.Helper()
	st := store.New(store.NewState(selfID, store.DefaultMatchTolerance, nil), nil)
	st.Start(context.Background())
	t.Cleanup(st.Stop)
	require.NoError(t, st.Dispatch(context.Background(), store.SetConversations{Conversations: []models.Conversation{
		{ID: chatX, Participants: []models.Participant{self, peer}, Other: peer, LastActivity: t0},
	}}))
	return st
}

func mockClock() *clock.Mock {
	c := clock.NewMock()
	c.Set(t0)
	return c
}

func wirePeerMessage(id, body string, at time.Time) models.WireMessage {
	return models.WireMessage{
		ID:        id,
		ChatID:    chatX,
		Sender:    models.WireUser{ID: peerID, Name: peer.Name},
		Content:   body,
		CreatedAt: at,
	}
}
