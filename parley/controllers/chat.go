// parley/controllers/chat.go
package controllers

import (
	"context"

	"parley/parley/services/chat"
	"parley/parley/utils/logging"
	"parley/parley/utils/types"
)

// ConversationController exposes the chat service to HTTP callers. actor is
// the authenticated user id, "" for anonymous callers.
type ConversationController struct {
	svc *chat.Service
}

func NewConversationController(svc *chat.Service) *ConversationController {
	return &ConversationController{svc: svc}
}

func (c *ConversationController) Create(ctx context.Context, actor string, req types.CreateConversationRequest) (types.CreateConversationResponse, error) {
	conv, err := c.svc.Create(ctx, actor, req.UserID)
	if err != nil {
		return types.CreateConversationResponse{}, err
	}
	return types.CreateConversationResponse{ID: conv.ID}, nil
}

func (c *ConversationController) Messages(ctx context.Context, actor, conversationID string) ([]types.Message, error) {
	defer logging.LogDuration(ctx, "conversation_messages")()
	return c.svc.History(ctx, actor, conversationID)
}

func (c *ConversationController) PostMessage(ctx context.Context, actor string, msg types.Message) (types.Message, error) {
	defer logging.LogDuration(ctx, "conversation_post_message")()
	return c.svc.Post(ctx, actor, msg)
}
