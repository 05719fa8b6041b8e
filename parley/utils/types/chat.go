// parley/utils/types/chat.go
package types

import (
	"strings"
	"time"

	"parley/parley/utils/errs"
)

type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "AI"
)

// Message mirrors a row of the messages table. ID and CreatedAt are assigned
// by the store; ClientNonce is set by the sending client and echoed back on
// the change feed.
type Message struct {
	ID             string    `json:"id,omitempty"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Role           Role      `json:"role"`
	Message        string    `json:"message"`
	ClientNonce    string    `json:"client_nonce,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitzero"`
}

// Validate checks the fields every insert requires, in column order.
func (m Message) Validate() error {
	switch {
	case strings.TrimSpace(m.ConversationID) == "":
		return errs.Required("conversation_id")
	case strings.TrimSpace(m.UserID) == "":
		return errs.Required("user_id")
	case m.Role == "":
		return errs.Required("role")
	case strings.TrimSpace(m.Message) == "":
		return errs.Required("message")
	case m.Role != RoleUser && m.Role != RoleAI:
		return errs.Invalid("role", `must be "user" or "AI"`)
	}
	return nil
}

// SameRecord reports whether m and o describe the same logical message. The
// store id wins when both sides have one; otherwise the client nonce decides.
func (m Message) SameRecord(o Message) bool {
	if m.ID != "" && o.ID != "" {
		return m.ID == o.ID
	}
	return m.ClientNonce != "" && m.ClientNonce == o.ClientNonce
}

type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Identity is the read-only view of a signed-in user.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

const (
	EventInsert   = "INSERT"
	TableMessages = "messages"
)

// Event is one frame of the realtime change feed.
type Event struct {
	Type   string  `json:"type"`
	Table  string  `json:"table"`
	Record Message `json:"record"`
}
