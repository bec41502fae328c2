package store

import (
	"time"

	"github.com/cfiore016/go-connect/internal/types"
)

type Account struct {
	Id           string    `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address"`
	PasswordHash string    `json:"password_hash"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Message struct {
	Id          string            `json:"id"`
	SenderId    string            `json:"sender_id"`
	ReceiverId  string            `json:"receiver_id"`
	Content     string            `json:"content"`
	ContentType types.ContentType `json:"content_type"`
	Read        bool              `json:"read"`
	ReadAt      *time.Time        `json:"read_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type CreateMessageParams struct {
	SenderId    string
	ReceiverId  string
	Content     string
	ContentType types.ContentType
}

// ConversationSummary pairs a peer with the latest message exchanged with
// them and the number of their messages still unread by the caller.
type ConversationSummary struct {
	PeerId      string
	LastMessage Message
	UnreadCount int
}
