package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"parley/parley/services/feed"
	"parley/parley/utils/errs"
	"parley/parley/utils/types"
)

// memStore is a Store with the same rules as the real one, plus counters.
type memStore struct {
	mu            sync.Mutex
	conversations map[string]string
	messages      []types.Message
	seq           int
	publisher     feed.Publisher

	creates, saves, loads int
	createErr             error
	saveErr               error
}

func newMemStore(pub feed.Publisher) *memStore {
	return &memStore{conversations: map[string]string{}, publisher: pub}
}

func (m *memStore) CreateConversation(ctx context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return "", m.createErr
	}
	m.seq++
	id := fmt.Sprintf("C%d", m.seq)
	m.conversations[id] = userID
	return id, nil
}

func (m *memStore) LoadMessages(ctx context.Context, conversationID string) []types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	out := []types.Message{}
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	return out
}

func (m *memStore) SaveMessage(ctx context.Context, msg types.Message) (types.Message, error) {
	m.mu.Lock()
	m.saves++
	if m.saveErr != nil {
		m.mu.Unlock()
		return types.Message{}, m.saveErr
	}
	if err := msg.Validate(); err != nil {
		m.mu.Unlock()
		return types.Message{}, err
	}
	if _, ok := m.conversations[msg.ConversationID]; !ok {
		m.mu.Unlock()
		return types.Message{}, errs.ErrNotFound
	}
	m.seq++
	msg.ID = fmt.Sprintf("m%d", m.seq)
	msg.CreatedAt = time.Now().UTC()
	m.messages = append(m.messages, msg)
	pub := m.publisher
	m.mu.Unlock()

	if pub != nil {
		pub.Publish(msg)
	}
	return msg, nil
}

func (m *memStore) stored() []types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Message(nil), m.messages...)
}

func (m *memStore) counts() (creates, saves, loads int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates, m.saves, m.loads
}

type fakeResponder struct {
	reply string
	err   error
	calls []string
}

func (f *fakeResponder) GetResponse(ctx context.Context, text string) (string, error) {
	f.calls = append(f.calls, text)
	return f.reply, f.err
}

type fakeIdentity struct {
	mu sync.Mutex
	id *types.Identity
}

func (f *fakeIdentity) set(id *types.Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.id = id
}

func (f *fakeIdentity) SignIn(ctx context.Context)  {}
func (f *fakeIdentity) SignOut(ctx context.Context) { f.set(nil) }

func (f *fakeIdentity) CurrentUser(ctx context.Context) *types.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id
}

// countingFeed hands out subscriptions whose channel is already closed, as
// after a dropped connection.
type countingFeed struct {
	mu         sync.Mutex
	subscribes int
}

func (f *countingFeed) Subscribe(ctx context.Context, conversationID string) (feed.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes++
	ch := make(chan types.Message)
	close(ch)
	return closedSubscription{ch: ch}, nil
}

func (f *countingFeed) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes
}

type closedSubscription struct{ ch chan types.Message }

func (c closedSubscription) Events() <-chan types.Message { return c.ch }
func (c closedSubscription) Close()                       {}
