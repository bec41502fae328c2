package types

import (
	"time"
)

type User struct {
	Id           string    `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	IsActive     bool      `json:"is_active,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// ContentType is the closed set of message body kinds.
type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
	ContentTypeFile  ContentType = "file"
	ContentTypeLink  ContentType = "link"
)

func (ct ContentType) Valid() bool {
	switch ct {
	case ContentTypeText, ContentTypeImage, ContentTypeFile, ContentTypeLink:
		return true
	}
	return false
}

type Message struct {
	Id          string      `json:"id"`
	SenderId    string      `json:"sender_id"`
	ReceiverId  string      `json:"receiver_id"`
	Content     string      `json:"content"`
	ContentType ContentType `json:"content_type"`
	Read        bool        `json:"read"`
	ReadAt      *time.Time  `json:"read_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Conversation is a summary entry for the conversation list: the peer,
// the most recent message exchanged with them and how many of their
// messages the caller has not read yet.
type Conversation struct {
	UserId      string   `json:"user_id"`
	Username    string   `json:"username"`
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int      `json:"unread_count"`
}
