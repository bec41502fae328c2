package server

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/cfiore016/go-connect/internal/store"
	"github.com/cfiore016/go-connect/internal/types"
)

const (
	// maxContentLength bounds a message body after trimming.
	maxContentLength = 1000
	// notificationPreviewLength bounds the content preview carried by
	// principal-scoped message notifications.
	notificationPreviewLength = 100
)

var validate = validator.New()

// dispatch routes a decoded command to its handler. Commands from the
// same connection arrive here sequentially from the read pump; handlers
// for different connections run concurrently. Every failure is converted
// into an error event for the issuing connection only.
func (cs *ChatServer) dispatch(c *Client, ev *ClientEvent) {
	switch {
	case ev.Join != nil:
		cs.handleJoinConversation(c, ev.Join)
	case ev.Leave != nil:
		cs.handleLeaveConversation(c, ev.Leave)
	case ev.Send != nil:
		cs.handleSendMessage(c, ev.Send)
	case ev.MarkRead != nil:
		cs.handleMarkRead(c, ev.MarkRead)
	case ev.TypingStart != nil:
		cs.handleTyping(c, ev.TypingStart, true)
	case ev.TypingStop != nil:
		cs.handleTyping(c, ev.TypingStop, false)
	case ev.GetOnlineUsers != nil:
		cs.handleGetOnlineUsers(c)
	case ev.GetUnreadCount != nil:
		cs.handleGetUnreadCount(c)
	default:
		c.queueEvent(NewErrorEvent("unknown event"))
	}
}

func (cs *ChatServer) handleJoinConversation(c *Client, cmd *JoinConversation) {
	if err := validate.Struct(cmd); err != nil {
		c.queueEvent(NewErrorEvent("other user id is required"))
		return
	}

	roomName := cs.router.Join(c, c.user.Id, cmd.OtherUserId)

	ev := newEvent()
	ev.ConversationJoined = &ConversationChange{
		RoomName:    roomName,
		OtherUserId: cmd.OtherUserId,
	}
	c.queueEvent(ev)
}

func (cs *ChatServer) handleLeaveConversation(c *Client, cmd *LeaveConversation) {
	if err := validate.Struct(cmd); err != nil {
		c.queueEvent(NewErrorEvent("other user id is required"))
		return
	}

	roomName := cs.router.Leave(c, c.user.Id, cmd.OtherUserId)

	ev := newEvent()
	ev.ConversationLeft = &ConversationChange{
		RoomName:    roomName,
		OtherUserId: cmd.OtherUserId,
	}
	c.queueEvent(ev)
}

func (cs *ChatServer) handleSendMessage(c *Client, cmd *SendMessage) {
	if err := validate.Struct(cmd); err != nil {
		c.queueEvent(NewErrorEvent("receiver id and content are required"))
		return
	}

	content := strings.TrimSpace(cmd.Content)
	if content == "" {
		c.queueEvent(NewErrorEvent("receiver id and content are required"))
		return
	}
	if len(content) > maxContentLength {
		c.queueEvent(NewErrorEvent("message content exceeds maximum length"))
		return
	}

	contentType := types.ContentType(cmd.ContentType)
	if cmd.ContentType == "" {
		contentType = types.ContentTypeText
	}
	if !contentType.Valid() {
		c.queueEvent(NewErrorEvent("invalid content type"))
		return
	}

	if cmd.ReceiverId == c.user.Id {
		c.queueEvent(NewErrorEvent("cannot send a message to yourself"))
		return
	}

	if _, err := cs.db.GetAccountById(cmd.ReceiverId); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.queueEvent(NewErrorEvent("receiver not found"))
		} else {
			cs.log.Println("get receiver:", err)
			c.queueEvent(NewErrorEvent("failed to send message"))
		}
		return
	}

	msg, err := cs.db.CreateMessage(store.CreateMessageParams{
		SenderId:    c.user.Id,
		ReceiverId:  cmd.ReceiverId,
		Content:     content,
		ContentType: contentType,
	})
	if err != nil {
		cs.log.Println("create message:", err)
		c.queueEvent(NewErrorEvent("failed to send message"))
		return
	}

	cs.stats.Incr(metricMessagesSent)

	wireMsg := wireMessage(msg)

	// ack to the sender; peers get new_message instead so nothing renders
	// twice
	ack := newEvent()
	ack.MessageSent = &MessageSent{
		MessageId: msg.Id,
		TempId:    cmd.TempId,
		Message:   wireMsg,
	}
	c.queueEvent(ack)

	broadcast := newEvent()
	broadcast.NewMessage = &NewMessage{Message: wireMsg}
	cs.router.FanOut(c.user.Id, cmd.ReceiverId, broadcast, c)

	notification := newEvent()
	notification.MessageNotification = &MessageNotification{
		MessageId:      msg.Id,
		SenderId:       c.user.Id,
		SenderUsername: c.user.Username,
		Content:        preview(content),
	}
	cs.router.NotifyUser(cmd.ReceiverId, notification)
}

func (cs *ChatServer) handleMarkRead(c *Client, cmd *MarkRead) {
	if err := validate.Struct(cmd); err != nil {
		c.queueEvent(NewErrorEvent("message id is required"))
		return
	}

	msg, err := cs.db.MarkRead(cmd.MessageId, c.user.Id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrAlreadyRead) {
			c.queueEvent(NewErrorEvent("message not found or already read"))
		} else {
			cs.log.Println("mark read:", err)
			c.queueEvent(NewErrorEvent("failed to mark message as read"))
		}
		return
	}

	cs.stats.Incr(metricMessagesRead)

	ev := newEvent()
	ev.MessageRead = &MessageRead{
		MessageId: msg.Id,
		ReadAt:    *msg.ReadAt,
	}
	cs.router.FanOut(c.user.Id, msg.SenderId, ev, c)
}

func (cs *ChatServer) handleTyping(c *Client, cmd *Typing, typing bool) {
	if err := validate.Struct(cmd); err != nil {
		c.queueEvent(NewErrorEvent("receiver id is required"))
		return
	}

	ev := newEvent()
	ev.UserTyping = &UserTyping{
		UserId:   c.user.Id,
		Username: c.user.Username,
		Typing:   typing,
	}
	cs.router.FanOut(c.user.Id, cmd.ReceiverId, ev, c)
}

func (cs *ChatServer) handleGetOnlineUsers(c *Client) {
	userIds := cs.presence.OnlineUsers()

	ev := newEvent()
	ev.OnlineUsers = &OnlineUsers{
		UserIds: userIds,
		Count:   len(userIds),
	}
	c.queueEvent(ev)
}

func (cs *ChatServer) handleGetUnreadCount(c *Client) {
	count, err := cs.db.UnreadCount(c.user.Id)
	if err != nil {
		cs.log.Println("unread count:", err)
		c.queueEvent(NewErrorEvent("failed to get unread count"))
		return
	}

	ev := newEvent()
	ev.UnreadCount = &UnreadCount{Count: count}
	c.queueEvent(ev)
}

func preview(content string) string {
	if len(content) > notificationPreviewLength {
		return content[:notificationPreviewLength]
	}
	return content
}

func wireMessage(msg store.Message) types.Message {
	return types.Message{
		Id:          msg.Id,
		SenderId:    msg.SenderId,
		ReceiverId:  msg.ReceiverId,
		Content:     msg.Content,
		ContentType: msg.ContentType,
		Read:        msg.Read,
		ReadAt:      msg.ReadAt,
		CreatedAt:   msg.CreatedAt,
	}
}
