package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"parley/parley/utils/types"
)

type Conversation struct {
	ID        string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID    string    `json:"user_id" gorm:"type:varchar(255);not null;index"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
}

func (Conversation) TableName() string {
	return "conversations"
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (c Conversation) ToType() types.Conversation {
	return types.Conversation{ID: c.ID, UserID: c.UserID, CreatedAt: c.CreatedAt}
}

type Message struct {
	ID             string       `json:"id" gorm:"type:varchar(36);primaryKey"`
	ConversationID string       `json:"conversation_id" gorm:"type:varchar(36);not null;index:idx_messages_conversation_created,priority:1"`
	Conversation   Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnDelete:CASCADE"`
	UserID         string       `json:"user_id" gorm:"type:varchar(255);not null"`
	Role           string       `json:"role" gorm:"type:varchar(16);not null"`
	Message        string       `json:"message" gorm:"type:text;not null"`
	ClientNonce    string       `json:"client_nonce" gorm:"type:varchar(64);index"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null;index:idx_messages_conversation_created,priority:2"`
	// Seq is the insert position within the conversation; it orders rows
	// whose created_at is equal.
	Seq int64 `json:"seq" gorm:"not null;default:0;index:idx_messages_conversation_created,priority:3"`
}

func (Message) TableName() string {
	return "messages"
}

// BeforeCreate assigns id and created_at in Go so ordering is identical on
// postgres and sqlite.
func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (m Message) ToType() types.Message {
	return types.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		UserID:         m.UserID,
		Role:           types.Role(m.Role),
		Message:        m.Message,
		ClientNonce:    m.ClientNonce,
		CreatedAt:      m.CreatedAt,
	}
}

// MessageFromType copies the client-settable fields; id and created_at stay
// for the store to assign.
func MessageFromType(m types.Message) *Message {
	return &Message{
		ConversationID: m.ConversationID,
		UserID:         m.UserID,
		Role:           string(m.Role),
		Message:        m.Message,
		ClientNonce:    m.ClientNonce,
	}
}
