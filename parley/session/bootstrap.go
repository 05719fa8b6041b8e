package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"parley/parley/config"
	"parley/parley/sources/local"
	"parley/parley/utils/errs"
	"parley/parley/utils/logging"
	"parley/parley/utils/types"
)

// Bootstrap resolves the identity, then the conversation: the cached id if
// there is one, otherwise a newly created conversation whose id is cached
// before use. It then loads the history and (re)starts live sync.
//
// A failed create leaves the session without a conversation and returns
// errs.ErrBootstrapAborted. Calling Bootstrap again with the same cache never
// creates a second conversation.
func (s *Session) Bootstrap(ctx context.Context) (Snapshot, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	id := s.idp.CurrentUser(ctx)
	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()
	return s.bootstrapLocked(ctx, id)
}

// RefreshIdentity re-reads the current user. When it changed, a sign-out
// clears the message list and, in the authenticated variant, the session
// bootstraps again. The cached conversation id is kept either way.
func (s *Session) RefreshIdentity(ctx context.Context) (bool, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	id := s.idp.CurrentUser(ctx)
	s.mu.Lock()
	changed := !sameIdentity(s.identity, id)
	if changed {
		s.identity = id
		if id == nil {
			s.messages = nil
		}
		s.notifyLocked()
	}
	s.mu.Unlock()

	if !changed || s.variant != config.VariantAuthenticated {
		return changed, nil
	}
	logger().Info("identity changed, bootstrapping again", zap.Bool("signed_in", id != nil))
	_, err := s.bootstrapLocked(ctx, id)
	return true, err
}

// Reset forgets the cached conversation and bootstraps a fresh one. The old
// conversation stays in the store.
func (s *Session) Reset(ctx context.Context) (Snapshot, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if err := s.storage.Delete(local.KeyConversationID); err != nil {
		logging.ErrorLogger.Error("clear cached conversation failed", zap.Error(err))
	}
	s.mu.Lock()
	s.conversationID = ""
	s.messages = nil
	id := s.identity
	s.notifyLocked()
	s.mu.Unlock()
	return s.bootstrapLocked(ctx, id)
}

func (s *Session) bootstrapLocked(ctx context.Context, id *types.Identity) (Snapshot, error) {
	conversationID, err := s.storage.Get(local.KeyConversationID)
	if err != nil {
		logging.ErrorLogger.Warn("read cached conversation failed", zap.Error(err))
		conversationID = ""
	}

	if conversationID == "" {
		userID := s.userID(id)
		conversationID, err = s.store.CreateConversation(ctx, userID)
		if err == nil && conversationID == "" {
			err = errs.Store("create conversation", fmt.Errorf("store returned no id"))
		}
		if err != nil {
			logging.ErrorLogger.Error("bootstrap aborted", zap.String("user_id", userID), zap.Error(err))
			s.unsubscribe()
			s.mu.Lock()
			s.conversationID = ""
			s.messages = nil
			s.notifyLocked()
			snap := s.snapshotLocked()
			s.mu.Unlock()
			return snap, fmt.Errorf("%w: %w", errs.ErrBootstrapAborted, err)
		}
		if err := s.storage.Set(local.KeyConversationID, conversationID); err != nil {
			logging.ErrorLogger.Error("cache conversation id failed", zap.Error(err))
		}
		logger().Info("conversation created", zap.String("conversation_id", conversationID))
	}

	s.mu.Lock()
	if s.conversationID != conversationID {
		s.conversationID = conversationID
		s.messages = nil
	}
	s.mu.Unlock()

	// a signed-out user of the authenticated variant sees no history
	if s.variant == config.VariantAuthenticated && id == nil {
		s.unsubscribe()
		s.mu.Lock()
		defer s.mu.Unlock()
		s.messages = nil
		s.notifyLocked()
		return s.snapshotLocked(), nil
	}

	// subscribe before loading so inserts racing the load are not lost
	s.subscribe(conversationID)
	loaded := s.store.LoadMessages(ctx, conversationID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = mergeHistory(loaded, s.messages)
	s.notifyLocked()
	return s.snapshotLocked(), nil
}

// mergeHistory keeps the loaded order and appends anything live sync added
// that the load did not include.
func mergeHistory(loaded, live []types.Message) []types.Message {
	out := append([]types.Message(nil), loaded...)
	for _, m := range live {
		found := false
		for _, l := range loaded {
			if l.SameRecord(m) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, m)
		}
	}
	return out
}

func sameIdentity(a, b *types.Identity) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	}
	return a.ID == b.ID
}
