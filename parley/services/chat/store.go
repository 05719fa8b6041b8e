package chat

import (
	"context"

	"go.uber.org/zap"

	"parley/parley/utils/logging"
	"parley/parley/utils/types"
)

// The methods below let local mode use the Service directly as its
// conversation store, always acting as the anonymous guest.

func (s *Service) CreateConversation(ctx context.Context, userID string) (string, error) {
	conv, err := s.Create(ctx, "", userID)
	if err != nil {
		return "", err
	}
	return conv.ID, nil
}

// LoadMessages degrades every failure to an empty history.
func (s *Service) LoadMessages(ctx context.Context, conversationID string) []types.Message {
	msgs, err := s.History(ctx, "", conversationID)
	if err != nil {
		logging.ErrorLogger.Warn("load messages failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
		return []types.Message{}
	}
	return msgs
}

func (s *Service) SaveMessage(ctx context.Context, msg types.Message) (types.Message, error) {
	return s.Post(ctx, "", msg)
}
