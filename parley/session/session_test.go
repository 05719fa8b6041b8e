package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"parley/parley/config"
	"parley/parley/services/feed"
	"parley/parley/sources/local"
	"parley/parley/utils/errs"
	"parley/parley/utils/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	hub       *feed.Hub
	store     *memStore
	responder *fakeResponder
	storage   *local.Memory
	idp       *fakeIdentity
}

func newHarness() *harness {
	hub := feed.NewHub()
	return &harness{
		hub:       hub,
		store:     newMemStore(hub),
		responder: &fakeResponder{reply: "hi there"},
		storage:   local.NewMemory(),
		idp:       &fakeIdentity{},
	}
}

func (h *harness) session(t *testing.T, variant config.Variant) *Session {
	s := New(Options{
		Store:       h.store,
		Identity:    h.idp,
		Responder:   h.responder,
		Storage:     h.storage,
		Feed:        h.hub,
		Variant:     variant,
		GuestUserID: "guest",
	})
	t.Cleanup(s.Close)
	return s
}

// roleText flattens messages for comparison.
func roleText(msgs []types.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, string(m.Role)+":"+m.Message)
	}
	return out
}

// drain waits until a marker published after everything else has been
// applied, so earlier events have been processed too.
func drain(t *testing.T, h *harness, s *Session, conversationID string) {
	t.Helper()
	marker := types.Message{ID: "marker-" + conversationID, ConversationID: conversationID, UserID: "guest", Role: types.RoleUser, Message: "marker"}
	h.hub.Publish(marker)
	require.Eventually(t, func() bool {
		for _, m := range s.Snapshot().Messages {
			if m.ID == marker.ID {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func withoutMarkers(msgs []types.Message) []types.Message {
	var out []types.Message
	for _, m := range msgs {
		if m.Message != "marker" {
			out = append(out, m)
		}
	}
	return out
}

func TestFreshGuestBootstrap(t *testing.T) {
	h := newHarness()
	s := h.session(t, config.VariantAnonymous)

	snap, err := s.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "C1", snap.ConversationID)
	assert.Empty(t, snap.Messages)
	assert.Nil(t, snap.Identity)
	assert.True(t, snap.CanSend)

	cached, err := h.storage.Get(local.KeyConversationID)
	require.NoError(t, err)
	assert.Equal(t, "C1", cached)
	assert.Equal(t, "guest", h.store.conversations["C1"])
}

func TestBootstrapReusesCachedConversation(t *testing.T) {
	h := newHarness()
	s := h.session(t, config.VariantAnonymous)
	_, err := s.Bootstrap(context.Background())
	require.NoError(t, err)
	_, err = s.Bootstrap(context.Background())
	require.NoError(t, err)

	// a second client over the same cache
	other := h.session(t, config.VariantAnonymous)
	snap, err := other.Bootstrap(context.Background())
	require.NoError(t, err)

	creates, _, _ := h.store.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, "C1", snap.ConversationID)
}

func TestBootstrapLoadsHistoryInOrder(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.storage.Set(local.KeyConversationID, "C9"))
	h.store.conversations["C9"] = "guest"
	h.store.messages = []types.Message{
		{ID: "a", ConversationID: "C9", UserID: "guest", Role: types.RoleUser, Message: "hello"},
		{ID: "x", ConversationID: "other", UserID: "guest", Role: types.RoleUser, Message: "elsewhere"},
		{ID: "b", ConversationID: "C9", UserID: "guest", Role: types.RoleAI, Message: "hi there"},
	}
	s := h.session(t, config.VariantAnonymous)

	snap, err := s.Bootstrap(context.Background())
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"user:hello", "AI:hi there"}, roleText(snap.Messages)); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
	creates, _, _ := h.store.counts()
	assert.Zero(t, creates)
}

func TestBootstrapAbortsWhenCreateFails(t *testing.T) {
	h := newHarness()
	h.store.createErr = errs.Store("create conversation", errors.New("db down"))
	s := h.session(t, config.VariantAnonymous)

	snap, err := s.Bootstrap(context.Background())
	assert.ErrorIs(t, err, errs.ErrBootstrapAborted)
	assert.ErrorIs(t, err, errs.ErrStore)
	assert.Empty(t, snap.ConversationID)
	assert.False(t, snap.CanSend)

	cached, _ := h.storage.Get(local.KeyConversationID)
	assert.Empty(t, cached)

	err = s.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, errs.ErrNoConversation)
	_, saves, _ := h.store.counts()
	assert.Zero(t, saves)
}

func TestSendPersistsBothMessages(t *testing.T) {
	h := newHarness()
	s := h.session(t, config.VariantAnonymous)
	_, err := s.Bootstrap(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Send(context.Background(), "hello"))
	drain(t, h, s, "C1")

	want := []string{"user:hello", "AI:hi there"}
	// echoes from the feed must not duplicate what the send path appended
	if diff := cmp.Diff(want, roleText(withoutMarkers(s.Snapshot().Messages))); diff != "" {
		t.Errorf("display mismatch (-want +got):\n%s", diff)
	}
	stored := h.store.stored()
	if diff := cmp.Diff(want, roleText(stored)); diff != "" {
		t.Errorf("store mismatch (-want +got):\n%s", diff)
	}
	for _, m := range stored {
		assert.Equal(t, "C1", m.ConversationID)
		assert.Equal(t, "guest", m.UserID)
		assert.NotEmpty(t, m.ClientNonce)
	}
	assert.Equal(t, []string{"hello"}, h.responder.calls)
}

func TestEmptyInputTouchesNothing(t *testing.T) {
	h := newHarness()
	s := h.session(t, config.VariantAnonymous)
	_, err := s.Bootstrap(context.Background())
	require.NoError(t, err)
	before := s.Snapshot()

	for _, in := range []string{"", "   ", "\n\t"} {
		assert.ErrorIs(t, s.Send(context.Background(), in), errs.ErrEmptyInput)
	}
	_, saves, _ := h.store.counts()
	assert.Zero(t, saves)
	assert.Empty(t, h.responder.calls)
	assert.Equal(t, before.Messages, s.Snapshot().Messages)
}

func TestResponderFailureKeepsUserMessage(t *testing.T) {
	h := newHarness()
	h.responder.err = errs.Responder(errors.New("model offline"))
	s := h.session(t, config.VariantAnonymous)
	_, err := s.Bootstrap(context.Background())
	require.NoError(t, err)

	err = s.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, errs.ErrResponder)
	assert.Equal(t, []string{"user:hello"}, roleText(s.Snapshot().Messages))
	assert.Len(t, h.store.stored(), 1)
}

func TestStoreErrorsLeaveDisplayIntact(t *testing.T) {
	h := newHarness()
	s := h.session(t, config.VariantAnonymous)
	_, err := s.Bootstrap(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), "first"))
	before := roleText(s.Snapshot().Messages)

	h.store.saveErr = errs.ErrNotFound
	assert.ErrorIs(t, s.Send(context.Background(), "second"), errs.ErrNotFound)

	h.store.saveErr = errs.Required("message")
	assert.ErrorIs(t, s.Send(context.Background(), "third"), errs.ErrValidation)

	assert.Equal(t, before, roleText(s.Snapshot().Messages))
	assert.Len(t, h.responder.calls, 1)
}

func TestAppendIfAbsentDedup(t *testing.T) {
	s := New(Options{})
	defer s.Close()
	s.conversationID = "C1"

	optimistic := types.Message{ConversationID: "C1", Role: types.RoleUser, Message: "hi", ClientNonce: "n1"}
	echo := optimistic
	echo.ID = "m1"

	assert.True(t, s.appendIfAbsent("C1", optimistic))
	assert.False(t, s.appendIfAbsent("C1", echo))
	assert.False(t, s.appendIfAbsent("C1", echo))

	msgs := s.Snapshot().Messages
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID, "the echo fills in the store id")

	// echo first, then the send path
	assert.True(t, s.appendIfAbsent("C1", types.Message{ID: "m2", ConversationID: "C1", ClientNonce: "n2"}))
	assert.False(t, s.appendIfAbsent("C1", types.Message{ID: "m2", ConversationID: "C1", ClientNonce: "n2"}))
	assert.Len(t, s.Snapshot().Messages, 2)

	// other conversations are ignored
	assert.False(t, s.appendIfAbsent("C1", types.Message{ID: "m3", ConversationID: "C2"}))
	assert.False(t, s.appendIfAbsent("C2", types.Message{ID: "m3", ConversationID: "C2"}))
	assert.Len(t, s.Snapshot().Messages, 2)
}

func TestLiveSyncAppendsOtherClientsMessages(t *testing.T) {
	h := newHarness()
	s := h.session(t, config.VariantAnonymous)
	_, err := s.Bootstrap(context.Background())
	require.NoError(t, err)

	_, err = h.store.SaveMessage(context.Background(), types.Message{ConversationID: "C1", UserID: "guest", Role: types.RoleUser, Message: "from elsewhere"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(s.Snapshot().Messages) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "from elsewhere", s.Snapshot().Messages[0].Message)
}

func TestSubscriptionFollowsActiveConversation(t *testing.T) {
	h := newHarness()
	s := h.session(t, config.VariantAnonymous)
	_, err := s.Bootstrap(context.Background())
	require.NoError(t, err)

	snap, err := s.Reset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "C2", snap.ConversationID)
	assert.Equal(t, 1, h.hub.Len())

	h.hub.Publish(types.Message{ID: "old", ConversationID: "C1", UserID: "guest", Role: types.RoleUser, Message: "stale"})
	drain(t, h, s, "C2")

	for _, m := range s.Snapshot().Messages {
		assert.NotEqual(t, "C1", m.ConversationID)
	}
	cached, _ := h.storage.Get(local.KeyConversationID)
	assert.Equal(t, "C2", cached)
}

func TestEndedFeedIsResubscribedOnNextBootstrap(t *testing.T) {
	h := newHarness()
	f := &countingFeed{}
	s := New(Options{
		Store:     h.store,
		Identity:  h.idp,
		Responder: h.responder,
		Storage:   h.storage,
		Feed:      f,
	})
	t.Cleanup(s.Close)

	_, err := s.Bootstrap(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.sub == nil && s.subID == ""
	}, time.Second, 5*time.Millisecond)

	snap, err := s.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "C1", snap.ConversationID)
	assert.Equal(t, 2, f.count())
}

func TestAuthenticatedVariantFollowsIdentity(t *testing.T) {
	h := newHarness()
	s := h.session(t, config.VariantAuthenticated)

	snap, err := s.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.CanSend)
	assert.ErrorIs(t, s.Send(context.Background(), "hello"), errs.ErrNotSignedIn)

	h.idp.set(&types.Identity{ID: "u1", Email: "ada@example.com"})
	changed, err := s.RefreshIdentity(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	snap = s.Snapshot()
	assert.True(t, snap.CanSend)
	require.NotNil(t, snap.Identity)
	conversationID := snap.ConversationID

	require.NoError(t, s.Send(context.Background(), "hello"))
	for _, m := range h.store.stored() {
		assert.Equal(t, "u1", m.UserID)
	}

	changed, err = s.RefreshIdentity(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)

	// sign-out clears the list but keeps the cached conversation
	h.idp.SignOut(context.Background())
	changed, err = s.RefreshIdentity(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	snap = s.Snapshot()
	assert.Empty(t, snap.Messages)
	assert.False(t, snap.CanSend)
	cached, _ := h.storage.Get(local.KeyConversationID)
	assert.Equal(t, conversationID, cached)

	// signing back in resumes it
	h.idp.set(&types.Identity{ID: "u1"})
	_, err = s.RefreshIdentity(context.Background())
	require.NoError(t, err)
	snap = s.Snapshot()
	assert.Equal(t, conversationID, snap.ConversationID)
	assert.Equal(t, []string{"user:hello", "AI:hi there"}, roleText(snap.Messages))

	creates, _, _ := h.store.counts()
	assert.Equal(t, 1, creates)
}

func TestUpdatesAndClose(t *testing.T) {
	h := newHarness()
	s := New(Options{Store: h.store, Storage: h.storage, Feed: h.hub, Responder: h.responder})

	_, err := s.Bootstrap(context.Background())
	require.NoError(t, err)
	select {
	case <-s.Updates():
	case <-time.After(time.Second):
		t.Fatal("no update after bootstrap")
	}

	s.Close()
	s.Close()
	assert.Equal(t, 0, h.hub.Len())
	for range s.Updates() {
	}
	assert.False(t, s.appendIfAbsent("C1", types.Message{ID: "late", ConversationID: "C1"}))
}

func TestSnapshotIsACopy(t *testing.T) {
	h := newHarness()
	s := h.session(t, config.VariantAnonymous)
	_, err := s.Bootstrap(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), "hello"))

	snap := s.Snapshot()
	snap.Messages[0].Message = "tampered"
	assert.Equal(t, "hello", s.Snapshot().Messages[0].Message)
}

func TestMergeHistory(t *testing.T) {
	loaded := []types.Message{{ID: "1"}, {ID: "2"}}
	live := []types.Message{{ID: "2"}, {ID: "3"}}
	got := mergeHistory(loaded, live)
	want := []types.Message{{ID: "1"}, {ID: "2"}, {ID: "3"}}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("merge mismatch (-want +got):\n%s", diff)
	}
}
