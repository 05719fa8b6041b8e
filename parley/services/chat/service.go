// Package chat owns the conversation store rules: who may create, read and
// append, validation before any write, and announcing inserts.
package chat

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"parley/parley/services/feed"
	"parley/parley/sources/psql/dao"
	"parley/parley/sources/psql/models"
	"parley/parley/utils/errs"
	"parley/parley/utils/logging"
	"parley/parley/utils/types"
)

// Service is shared by the gateway, which passes the authenticated user as
// actor, and by local mode, which uses the Store methods as the guest.
// An empty actor means an anonymous caller.
type Service struct {
	conversations *dao.ConversationDAO
	messages      *dao.MessageDAO
	publisher     feed.Publisher
	guestID       string
	allowGuests   bool
}

type Options struct {
	// Publisher receives every stored message. Leave nil when the database
	// announces inserts itself.
	Publisher   feed.Publisher
	GuestUserID string
	AllowGuests bool
}

func NewService(db *gorm.DB, opts Options) *Service {
	pub := opts.Publisher
	if pub == nil {
		pub = feed.Nop{}
	}
	guest := opts.GuestUserID
	if guest == "" {
		guest = "guest"
	}
	return &Service{
		conversations: dao.NewConversationDAO(db),
		messages:      dao.NewMessageDAO(db),
		publisher:     pub,
		guestID:       guest,
		allowGuests:   opts.AllowGuests,
	}
}

func (s *Service) GuestUserID() string {
	return s.guestID
}

// owner is the user id an actor may write as.
func (s *Service) owner(actor string) (string, error) {
	if actor != "" {
		return actor, nil
	}
	if !s.allowGuests {
		return "", errs.Auth("guest access", errors.New("sign in required"))
	}
	return s.guestID, nil
}

func (s *Service) Create(ctx context.Context, actor, userID string) (types.Conversation, error) {
	if strings.TrimSpace(userID) == "" {
		return types.Conversation{}, errs.Required("user_id")
	}
	owner, err := s.owner(actor)
	if err != nil {
		return types.Conversation{}, err
	}
	if userID != owner {
		return types.Conversation{}, errs.ErrForbidden
	}
	conv, err := s.conversations.CreateConversation(ctx, userID)
	if err != nil {
		logging.ErrorLogger.Error("create conversation failed", zap.String("user_id", userID), zap.Error(err))
		return types.Conversation{}, errs.Store("create conversation", err)
	}
	logging.AppLogger.Info("conversation created", zap.String("conversation_id", conv.ID), zap.String("user_id", userID))
	return conv.ToType(), nil
}

// Authorize returns errs.ErrNotFound both for missing conversations and for
// conversations owned by someone else.
func (s *Service) Authorize(ctx context.Context, actor, conversationID string) error {
	if _, err := s.owner(actor); err != nil {
		return err
	}
	conv, err := s.conversations.GetConversationByID(ctx, conversationID)
	if err != nil {
		return errs.Store("load conversation", err)
	}
	if conv == nil {
		return errs.ErrNotFound
	}
	if conv.UserID != s.guestID && conv.UserID != actor {
		return errs.ErrNotFound
	}
	return nil
}

func (s *Service) History(ctx context.Context, actor, conversationID string) ([]types.Message, error) {
	if err := s.Authorize(ctx, actor, conversationID); err != nil {
		return nil, err
	}
	rows, err := s.messages.GetMessagesByConversation(ctx, conversationID)
	if err != nil {
		return nil, errs.Store("load messages", err)
	}
	out := make([]types.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ToType())
	}
	return out, nil
}

// Post validates msg, checks the caller may write to its conversation,
// stores it and publishes the stored row.
func (s *Service) Post(ctx context.Context, actor string, msg types.Message) (types.Message, error) {
	if err := msg.Validate(); err != nil {
		return types.Message{}, err
	}
	owner, err := s.owner(actor)
	if err != nil {
		return types.Message{}, err
	}
	if msg.UserID != owner {
		return types.Message{}, errs.ErrForbidden
	}
	if err := s.Authorize(ctx, actor, msg.ConversationID); err != nil {
		return types.Message{}, err
	}

	row := models.MessageFromType(msg)
	if err := s.messages.CreateMessage(ctx, row); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return types.Message{}, err
		}
		logging.ErrorLogger.Error("save message failed",
			zap.String("conversation_id", msg.ConversationID), zap.Error(err))
		return types.Message{}, errs.Store("save message", err)
	}
	stored := row.ToType()
	s.publisher.Publish(stored)
	return stored, nil
}
