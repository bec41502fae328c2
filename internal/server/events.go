package server

import (
	"time"

	"github.com/cfiore016/go-connect/internal/types"
)

// ClientEvent is the envelope for every command a connection can issue.
// Exactly one variant pointer is set per event; the wire key names the
// command.
type ClientEvent struct {
	Join           *JoinConversation  `json:"join_conversation,omitempty"`
	Leave          *LeaveConversation `json:"leave_conversation,omitempty"`
	Send           *SendMessage       `json:"send_message,omitempty"`
	MarkRead       *MarkRead          `json:"mark_read,omitempty"`
	TypingStart    *Typing            `json:"typing_start,omitempty"`
	TypingStop     *Typing            `json:"typing_stop,omitempty"`
	GetOnlineUsers *GetOnlineUsers    `json:"get_online_users,omitempty"`
	GetUnreadCount *GetUnreadCount    `json:"get_unread_count,omitempty"`
}

type JoinConversation struct {
	OtherUserId string `json:"other_user_id" validate:"required"`
}

type LeaveConversation struct {
	OtherUserId string `json:"other_user_id" validate:"required"`
}

type SendMessage struct {
	ReceiverId  string `json:"receiver_id" validate:"required"`
	Content     string `json:"content" validate:"required"`
	ContentType string `json:"content_type,omitempty"`
	// TempId is the client-side id used to reconcile the optimistic UI
	// entry with the server-assigned message id.
	TempId string `json:"temp_id,omitempty"`
}

type MarkRead struct {
	MessageId string `json:"message_id" validate:"required"`
}

type Typing struct {
	ReceiverId string `json:"receiver_id" validate:"required"`
}

type GetOnlineUsers struct{}

type GetUnreadCount struct{}

// ServerEvent is the envelope for everything pushed to a connection,
// either as a direct acknowledgment or as a fan-out from a peer.
type ServerEvent struct {
	Timestamp time.Time `json:"timestamp"`

	ConversationJoined  *ConversationChange  `json:"conversation_joined,omitempty"`
	ConversationLeft    *ConversationChange  `json:"conversation_left,omitempty"`
	MessageSent         *MessageSent         `json:"message_sent,omitempty"`
	NewMessage          *NewMessage          `json:"new_message,omitempty"`
	MessageNotification *MessageNotification `json:"message_notification,omitempty"`
	MessageRead         *MessageRead         `json:"message_read,omitempty"`
	UserTyping          *UserTyping          `json:"user_typing,omitempty"`
	UserStatus          *UserStatus          `json:"user_status,omitempty"`
	OnlineUsers         *OnlineUsers         `json:"online_users,omitempty"`
	UnreadCount         *UnreadCount         `json:"unread_count,omitempty"`
	Error               *ErrorEvent          `json:"error,omitempty"`
}

type ConversationChange struct {
	RoomName    string `json:"room_name"`
	OtherUserId string `json:"other_user_id"`
}

type MessageSent struct {
	MessageId string        `json:"message_id"`
	TempId    string        `json:"temp_id,omitempty"`
	Message   types.Message `json:"message"`
}

type NewMessage struct {
	Message types.Message `json:"message"`
}

type MessageNotification struct {
	MessageId      string `json:"message_id"`
	SenderId       string `json:"sender_id"`
	SenderUsername string `json:"sender_username"`
	Content        string `json:"content"`
}

type MessageRead struct {
	MessageId string    `json:"message_id"`
	ReadAt    time.Time `json:"read_at"`
}

type UserTyping struct {
	UserId   string `json:"user_id"`
	Username string `json:"username"`
	Typing   bool   `json:"typing"`
}

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

type UserStatus struct {
	UserId string `json:"user_id"`
	Status string `json:"status"`
}

type OnlineUsers struct {
	UserIds []string `json:"user_ids"`
	Count   int      `json:"count"`
}

type UnreadCount struct {
	Count int `json:"count"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

func newEvent() *ServerEvent {
	return &ServerEvent{Timestamp: Now()}
}

func NewErrorEvent(message string) *ServerEvent {
	ev := newEvent()
	ev.Error = &ErrorEvent{Message: message}
	return ev
}

func NewUserStatusEvent(userId, status string) *ServerEvent {
	ev := newEvent()
	ev.UserStatus = &UserStatus{UserId: userId, Status: status}
	return ev
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
