package session

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"parley/parley/config"
	"parley/parley/utils/errs"
	"parley/parley/utils/logging"
	"parley/parley/utils/types"
)

// PostUserMessage persists text as the user's message, then appends it.
// Blank text returns errs.ErrEmptyInput without touching the store.
func (s *Session) PostUserMessage(ctx context.Context, text string) (types.Message, error) {
	if strings.TrimSpace(text) == "" {
		return types.Message{}, errs.ErrEmptyInput
	}
	return s.persist(ctx, types.RoleUser, text)
}

// Reply asks the responder about text, then persists and appends the answer
// as an AI message. On failure the list is left as it was.
func (s *Session) Reply(ctx context.Context, text string) (types.Message, error) {
	if _, _, err := s.sender(); err != nil {
		return types.Message{}, err
	}
	defer logging.LogDuration(ctx, "session_reply")()
	answer, err := s.responder.GetResponse(ctx, text)
	if err != nil {
		logging.ErrorLogger.Error("reply failed", zap.Error(err))
		return types.Message{}, err
	}
	return s.persist(ctx, types.RoleAI, answer)
}

// Send runs both phases. A responder failure leaves the user message in place.
func (s *Session) Send(ctx context.Context, text string) error {
	if _, err := s.PostUserMessage(ctx, text); err != nil {
		return err
	}
	_, err := s.Reply(ctx, text)
	return err
}

func (s *Session) sender() (conversationID, userID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversationID == "" {
		return "", "", errs.ErrNoConversation
	}
	if s.variant == config.VariantAuthenticated && s.identity == nil {
		return "", "", errs.ErrNotSignedIn
	}
	return s.conversationID, s.userID(s.identity), nil
}

func (s *Session) persist(ctx context.Context, role types.Role, text string) (types.Message, error) {
	conversationID, userID, err := s.sender()
	if err != nil {
		return types.Message{}, err
	}
	msg := types.Message{
		ConversationID: conversationID,
		UserID:         userID,
		Role:           role,
		Message:        text,
		ClientNonce:    s.newNonce(),
	}
	stored, err := s.store.SaveMessage(ctx, msg)
	if err != nil {
		logging.ErrorLogger.Error("save message failed",
			zap.String("conversation_id", conversationID), zap.String("role", string(role)), zap.Error(err))
		return types.Message{}, err
	}
	stored = fillFrom(stored, msg)
	s.appendIfAbsent(conversationID, stored)
	return stored, nil
}

// fillFrom completes a stored row from the message that was sent, for stores
// that echo only what they assigned.
func fillFrom(stored, sent types.Message) types.Message {
	if stored.ConversationID == "" {
		stored.ConversationID = sent.ConversationID
	}
	if stored.UserID == "" {
		stored.UserID = sent.UserID
	}
	if stored.Role == "" {
		stored.Role = sent.Role
	}
	if stored.Message == "" {
		stored.Message = sent.Message
	}
	if stored.ClientNonce == "" {
		stored.ClientNonce = sent.ClientNonce
	}
	return stored
}
