// Package session is the client core: it resolves who is chatting and in
// which conversation, keeps the message list in sync with the store's change
// feed, and runs the send flow. The UI only reads Snapshots.
package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"parley/parley/config"
	"parley/parley/services/feed"
	"parley/parley/services/identity"
	"parley/parley/sources/local"
	"parley/parley/utils/logging"
	"parley/parley/utils/types"
)

type Store interface {
	CreateConversation(ctx context.Context, userID string) (string, error)
	// LoadMessages returns the history oldest first, or an empty list on error.
	LoadMessages(ctx context.Context, conversationID string) []types.Message
	SaveMessage(ctx context.Context, msg types.Message) (types.Message, error)
}

type Responder interface {
	GetResponse(ctx context.Context, text string) (string, error)
}

type Options struct {
	Store     Store
	Identity  identity.Provider
	Responder Responder
	Storage   local.Storage
	// Feed may be nil, in which case only the send path adds messages.
	Feed        feed.Feed
	Variant     config.Variant
	GuestUserID string
	// NewNonce defaults to uuid.NewString.
	NewNonce func() string
}

// Snapshot is a copy of the session state; callers may keep it.
type Snapshot struct {
	ConversationID string
	Identity       *types.Identity
	Messages       []types.Message
	CanSend        bool
}

type Session struct {
	store     Store
	idp       identity.Provider
	responder Responder
	storage   local.Storage
	feed      feed.Feed
	variant   config.Variant
	guestID   string
	newNonce  func() string

	// lifecycle serialises Bootstrap, RefreshIdentity, Reset and Close.
	lifecycle sync.Mutex

	mu             sync.Mutex
	conversationID string
	identity       *types.Identity
	messages       []types.Message
	sub            feed.Subscription
	subID          string
	subDone        chan struct{}
	updates        chan struct{}
	closed         bool

	ctx    context.Context
	cancel context.CancelFunc
}

func New(opts Options) *Session {
	idp := opts.Identity
	if idp == nil {
		idp = identity.Guest{}
	}
	storage := opts.Storage
	if storage == nil {
		storage = local.NewMemory()
	}
	guest := opts.GuestUserID
	if guest == "" {
		guest = "guest"
	}
	variant := opts.Variant
	if variant == "" {
		variant = config.VariantAnonymous
	}
	nonce := opts.NewNonce
	if nonce == nil {
		nonce = uuid.NewString
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		store:     opts.Store,
		idp:       idp,
		responder: opts.Responder,
		storage:   storage,
		feed:      opts.Feed,
		variant:   variant,
		guestID:   guest,
		newNonce:  nonce,
		updates:   make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Updates receives a value after every state change. Notifications are
// coalesced; read a Snapshot after each one. Closed by Close.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ConversationID: s.conversationID,
		Messages:       append([]types.Message(nil), s.messages...),
		CanSend:        s.canSendLocked(),
	}
	if s.identity != nil {
		id := *s.identity
		snap.Identity = &id
	}
	return snap
}

func (s *Session) canSendLocked() bool {
	if s.conversationID == "" {
		return false
	}
	return s.variant != config.VariantAuthenticated || s.identity != nil
}

func (s *Session) notifyLocked() {
	if s.closed {
		return
	}
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

func (s *Session) userID(id *types.Identity) string {
	if id != nil {
		return id.ID
	}
	return s.guestID
}

// appendIfAbsent is the only way messages enter the list after bootstrap.
// It drops messages for any conversation but the active one, and merges a
// message already present (same store id, else same client nonce).
func (s *Session) appendIfAbsent(conversationID string, msg types.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || conversationID != s.conversationID || msg.ConversationID != conversationID {
		return false
	}
	for i, existing := range s.messages {
		if existing.SameRecord(msg) {
			if existing.ID == "" && msg.ID != "" {
				s.messages[i] = msg
				s.notifyLocked()
			}
			return false
		}
	}
	s.messages = append(s.messages, msg)
	s.notifyLocked()
	return true
}

// Close stops live sync and closes Updates. The session is unusable afterwards.
func (s *Session) Close() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.unsubscribe()
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.updates)
	}
	s.mu.Unlock()
	s.cancel()
}

func logger() *zap.Logger {
	return logging.AppLogger.Named("session")
}
