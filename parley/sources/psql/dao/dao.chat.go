package dao

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parley/parley/sources/psql/models"
	"parley/parley/utils/errs"
)

type ConversationDAO struct {
	DB *gorm.DB
}

func NewConversationDAO(db *gorm.DB) *ConversationDAO {
	return &ConversationDAO{DB: db}
}

func (dao *ConversationDAO) CreateConversation(ctx context.Context, userID string) (*models.Conversation, error) {
	conv := models.Conversation{UserID: userID}
	if err := dao.DB.WithContext(ctx).Create(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetConversationByID returns nil, nil when the conversation does not exist.
func (dao *ConversationDAO) GetConversationByID(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := dao.DB.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

type MessageDAO struct {
	DB *gorm.DB
}

func NewMessageDAO(db *gorm.DB) *MessageDAO {
	return &MessageDAO{DB: db}
}

// CreateMessage inserts msg after confirming its conversation exists. A
// missing conversation yields errs.ErrNotFound and nothing is written.
func (dao *MessageDAO) CreateMessage(ctx context.Context, msg *models.Message) error {
	return dao.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		err := tx.Model(&models.Conversation{}).
			Where("id = ?", msg.ConversationID).
			Count(&n).Error
		if err != nil {
			return err
		}
		if n == 0 {
			return errs.ErrNotFound
		}
		var last int64
		err = tx.Model(&models.Message{}).
			Where("conversation_id = ?", msg.ConversationID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&last).Error
		if err != nil {
			return err
		}
		msg.Seq = last + 1
		return tx.Omit(clause.Associations).Create(msg).Error
	})
}

// GetMessagesByConversation returns the full history, oldest first. Equal
// timestamps fall back to insert order, then id.
func (dao *MessageDAO) GetMessagesByConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	var msgs []models.Message
	err := dao.DB.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Order("seq ASC").
		Order("id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}
