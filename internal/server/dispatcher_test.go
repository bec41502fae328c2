package server

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cfiore016/go-connect/internal/store"
	"github.com/cfiore016/go-connect/internal/types"
)

// joinedPair builds a server with alice and bob connected and both joined
// to their shared conversation. Events queued during setup are drained.
func joinedPair(t *testing.T, db store.Repository) (*ChatServer, *Client, *Client) {
	t.Helper()

	cs := newTestChatServer(t, db)

	alice := newTestClient(t, cs, "conn-alice", "alice", "alice")
	bob := newTestClient(t, cs, "conn-bob", "bob", "bob")
	cs.RegisterClient(alice)
	cs.RegisterClient(bob)

	cs.router.Join(alice, "alice", "bob")
	cs.router.Join(bob, "bob", "alice")

	drainEvents(alice)
	drainEvents(bob)

	return cs, alice, bob
}

func assertErrorEvent(t *testing.T, c *Client, message string) {
	t.Helper()

	ev := recvEvent(t, c)
	require.NotNil(t, ev.Error, "expected an error event, got %+v", ev)
	assert.Equal(t, message, ev.Error.Message)
}

func TestDispatchUnknownEvent(t *testing.T) {
	cs, alice, _ := joinedPair(t, &store.MockRepository{})

	cs.dispatch(alice, &ClientEvent{})
	assertErrorEvent(t, alice, "unknown event")
}

func TestHandleJoinConversation(t *testing.T) {
	cs := newTestChatServer(t, &store.MockRepository{})
	alice := newTestClient(t, cs, "conn-1", "alice", "alice")
	cs.RegisterClient(alice)
	drainEvents(alice)

	t.Run("success", func(t *testing.T) {
		cs.dispatch(alice, &ClientEvent{Join: &JoinConversation{OtherUserId: "bob"}})

		ev := recvEvent(t, alice)
		require.NotNil(t, ev.ConversationJoined, "expected a joined acknowledgment")
		assert.Equal(t, "alice_bob", ev.ConversationJoined.RoomName)
		assert.Equal(t, "bob", ev.ConversationJoined.OtherUserId)
		assert.Contains(t, alice.conversationKeys(), "alice_bob")
	})

	t.Run("missing other user id", func(t *testing.T) {
		cs.dispatch(alice, &ClientEvent{Join: &JoinConversation{}})
		assertErrorEvent(t, alice, "other user id is required")
	})
}

func TestHandleLeaveConversation(t *testing.T) {
	cs := newTestChatServer(t, &store.MockRepository{})
	alice := newTestClient(t, cs, "conn-1", "alice", "alice")
	cs.RegisterClient(alice)
	cs.router.Join(alice, "alice", "bob")
	drainEvents(alice)

	t.Run("success", func(t *testing.T) {
		cs.dispatch(alice, &ClientEvent{Leave: &LeaveConversation{OtherUserId: "bob"}})

		ev := recvEvent(t, alice)
		require.NotNil(t, ev.ConversationLeft, "expected a left acknowledgment")
		assert.Equal(t, "alice_bob", ev.ConversationLeft.RoomName)
		assert.Empty(t, alice.conversationKeys())
	})

	t.Run("missing other user id", func(t *testing.T) {
		cs.dispatch(alice, &ClientEvent{Leave: &LeaveConversation{}})
		assertErrorEvent(t, alice, "other user id is required")
	})
}

func TestHandleSendMessage(t *testing.T) {
	db := &store.MockRepository{}
	defer db.AssertExpectations(t)

	stored := store.Message{
		Id:          "msg-1",
		SenderId:    "alice",
		ReceiverId:  "bob",
		Content:     "hello",
		ContentType: types.ContentTypeText,
		CreatedAt:   Now(),
	}
	db.On("GetAccountById", "bob").Return(store.Account{Id: "bob", Username: "bob", IsActive: true}, nil)
	db.On("CreateMessage", store.CreateMessageParams{
		SenderId:    "alice",
		ReceiverId:  "bob",
		Content:     "hello",
		ContentType: types.ContentTypeText,
	}).Return(stored, nil)

	cs, alice, bob := joinedPair(t, db)

	cs.dispatch(alice, &ClientEvent{Send: &SendMessage{
		ReceiverId: "bob",
		Content:    "hello",
		TempId:     "tmp-1",
	}})

	ack := recvEvent(t, alice)
	require.NotNil(t, ack.MessageSent, "expected an acknowledgment for the sender")
	assert.Equal(t, "msg-1", ack.MessageSent.MessageId)
	assert.Equal(t, "tmp-1", ack.MessageSent.TempId, "expected the client temp id echoed back")
	assert.Equal(t, "hello", ack.MessageSent.Message.Content)
	assertNoEvent(t, alice)

	broadcast := recvEvent(t, bob)
	require.NotNil(t, broadcast.NewMessage, "expected the joined peer to get the message")
	assert.Equal(t, "msg-1", broadcast.NewMessage.Message.Id)

	notification := recvEvent(t, bob)
	require.NotNil(t, notification.MessageNotification, "expected the receiver notified on every connection")
	assert.Equal(t, "msg-1", notification.MessageNotification.MessageId)
	assert.Equal(t, "alice", notification.MessageNotification.SenderId)
	assert.Equal(t, "alice", notification.MessageNotification.SenderUsername)
	assert.Equal(t, "hello", notification.MessageNotification.Content)
}

func TestHandleSendMessageNotifiesNonJoinedConnections(t *testing.T) {
	db := &store.MockRepository{}
	defer db.AssertExpectations(t)

	db.On("GetAccountById", "bob").Return(store.Account{Id: "bob", IsActive: true}, nil)
	db.On("CreateMessage", mock.Anything).Return(store.Message{Id: "msg-1", Content: "hello"}, nil)

	cs, alice, bobJoined := joinedPair(t, db)

	// a second connection of bob that never joined the conversation
	bobIdle := newTestClient(t, cs, "conn-bob-2", "bob", "bob")
	cs.RegisterClient(bobIdle)
	drainEvents(alice)
	drainEvents(bobJoined)
	drainEvents(bobIdle)

	cs.dispatch(alice, &ClientEvent{Send: &SendMessage{ReceiverId: "bob", Content: "hello"}})
	drainEvents(alice)

	require.NotNil(t, recvEvent(t, bobJoined).NewMessage, "expected the joined connection to get the broadcast")
	require.NotNil(t, recvEvent(t, bobJoined).MessageNotification)

	ev := recvEvent(t, bobIdle)
	require.NotNil(t, ev.MessageNotification, "expected the non-joined connection to still get the notification")
	assertNoEvent(t, bobIdle)
}

func TestHandleMarkReadReachesSurvivingConnections(t *testing.T) {
	db := &store.MockRepository{}
	defer db.AssertExpectations(t)

	readAt := Now()
	db.On("MarkRead", "msg-1", "bob").Return(store.Message{
		Id:         "msg-1",
		SenderId:   "alice",
		ReceiverId: "bob",
		Read:       true,
		ReadAt:     &readAt,
	}, nil)

	cs, dropped, bob := joinedPair(t, db)

	// alice's second connection joins, then the first one drops
	surviving := newTestClient(t, cs, "conn-alice-2", "alice", "alice")
	cs.RegisterClient(surviving)
	cs.router.Join(surviving, "alice", "bob")
	cs.DeregisterClient(dropped)
	drainEvents(surviving)
	drainEvents(bob)

	cs.dispatch(bob, &ClientEvent{MarkRead: &MarkRead{MessageId: "msg-1"}})

	ev := recvEvent(t, surviving)
	require.NotNil(t, ev.MessageRead, "expected the receipt delivered to the surviving connection")
	assert.Equal(t, "msg-1", ev.MessageRead.MessageId)
	assertNoEvent(t, dropped)
}

func TestHandleSendMessageOfflineReceiver(t *testing.T) {
	db := &store.MockRepository{}
	defer db.AssertExpectations(t)

	stored := store.Message{Id: "msg-1", SenderId: "alice", ReceiverId: "bob", Content: "hello", ContentType: types.ContentTypeText}
	db.On("GetAccountById", "bob").Return(store.Account{Id: "bob", IsActive: true}, nil)
	db.On("CreateMessage", mock.Anything).Return(stored, nil)

	cs := newTestChatServer(t, db)
	alice := newTestClient(t, cs, "conn-1", "alice", "alice")
	cs.RegisterClient(alice)
	drainEvents(alice)

	cs.dispatch(alice, &ClientEvent{Send: &SendMessage{ReceiverId: "bob", Content: "hello"}})

	// the message is persisted and acknowledged even with nobody to notify
	ack := recvEvent(t, alice)
	require.NotNil(t, ack.MessageSent, "expected an acknowledgment despite the offline receiver")
	assertNoEvent(t, alice)
}

func TestHandleSendMessageTrimsContent(t *testing.T) {
	db := &store.MockRepository{}
	defer db.AssertExpectations(t)

	db.On("GetAccountById", "bob").Return(store.Account{Id: "bob", IsActive: true}, nil)
	db.On("CreateMessage", store.CreateMessageParams{
		SenderId:    "alice",
		ReceiverId:  "bob",
		Content:     "hello",
		ContentType: types.ContentTypeText,
	}).Return(store.Message{Id: "msg-1", Content: "hello"}, nil)

	cs, alice, bob := joinedPair(t, db)

	cs.dispatch(alice, &ClientEvent{Send: &SendMessage{ReceiverId: "bob", Content: "  hello  "}})

	require.NotNil(t, recvEvent(t, alice).MessageSent, "expected the trimmed message accepted")
	drainEvents(bob)
}

func TestHandleSendMessageValidation(t *testing.T) {
	tcases := []struct {
		name     string
		cmd      *SendMessage
		expected string
	}{
		{
			name:     "missing receiver",
			cmd:      &SendMessage{Content: "hello"},
			expected: "receiver id and content are required",
		},
		{
			name:     "missing content",
			cmd:      &SendMessage{ReceiverId: "bob"},
			expected: "receiver id and content are required",
		},
		{
			name:     "whitespace only content",
			cmd:      &SendMessage{ReceiverId: "bob", Content: "   "},
			expected: "receiver id and content are required",
		},
		{
			name:     "content too long",
			cmd:      &SendMessage{ReceiverId: "bob", Content: strings.Repeat("a", maxContentLength+1)},
			expected: "message content exceeds maximum length",
		},
		{
			name:     "invalid content type",
			cmd:      &SendMessage{ReceiverId: "bob", Content: "hello", ContentType: "video"},
			expected: "invalid content type",
		},
		{
			name:     "self send",
			cmd:      &SendMessage{ReceiverId: "alice", Content: "hello"},
			expected: "cannot send a message to yourself",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &store.MockRepository{}
			defer db.AssertExpectations(t)

			cs, alice, bob := joinedPair(t, db)

			cs.dispatch(alice, &ClientEvent{Send: tc.cmd})
			assertErrorEvent(t, alice, tc.expected)
			assertNoEvent(t, bob)
			db.AssertNotCalled(t, "CreateMessage", mock.Anything)
		})
	}
}

func TestHandleSendMessageMaxLengthAccepted(t *testing.T) {
	db := &store.MockRepository{}
	defer db.AssertExpectations(t)

	content := strings.Repeat("a", maxContentLength)
	db.On("GetAccountById", "bob").Return(store.Account{Id: "bob", IsActive: true}, nil)
	db.On("CreateMessage", mock.Anything).Return(store.Message{Id: "msg-1", Content: content}, nil)

	cs, alice, bob := joinedPair(t, db)

	cs.dispatch(alice, &ClientEvent{Send: &SendMessage{ReceiverId: "bob", Content: content}})

	require.NotNil(t, recvEvent(t, alice).MessageSent, "expected content at the limit to be accepted")
	drainEvents(bob)
}

func TestHandleSendMessageReceiverNotFound(t *testing.T) {
	db := &store.MockRepository{}
	defer db.AssertExpectations(t)
	db.On("GetAccountById", "ghost").Return(store.Account{}, store.ErrNotFound)

	cs, alice, bob := joinedPair(t, db)

	cs.dispatch(alice, &ClientEvent{Send: &SendMessage{ReceiverId: "ghost", Content: "hello"}})
	assertErrorEvent(t, alice, "receiver not found")
	assertNoEvent(t, bob)
	db.AssertNotCalled(t, "CreateMessage", mock.Anything)
}

func TestHandleSendMessageStoreError(t *testing.T) {
	db := &store.MockRepository{}
	defer db.AssertExpectations(t)
	db.On("GetAccountById", "bob").Return(store.Account{Id: "bob", IsActive: true}, nil)
	db.On("CreateMessage", mock.Anything).Return(store.Message{}, errors.New("disk full"))

	cs, alice, bob := joinedPair(t, db)

	cs.dispatch(alice, &ClientEvent{Send: &SendMessage{ReceiverId: "bob", Content: "hello"}})
	assertErrorEvent(t, alice, "failed to send message")
	assertNoEvent(t, bob)
}

func TestHandleSendMessageNotificationPreview(t *testing.T) {
	db := &store.MockRepository{}
	defer db.AssertExpectations(t)

	content := strings.Repeat("x", notificationPreviewLength+50)
	db.On("GetAccountById", "bob").Return(store.Account{Id: "bob", IsActive: true}, nil)
	db.On("CreateMessage", mock.Anything).Return(store.Message{Id: "msg-1", Content: content}, nil)

	cs, alice, bob := joinedPair(t, db)

	cs.dispatch(alice, &ClientEvent{Send: &SendMessage{ReceiverId: "bob", Content: content}})
	drainEvents(alice)

	broadcast := recvEvent(t, bob)
	require.NotNil(t, broadcast.NewMessage, "expected the full message in the conversation broadcast")
	assert.Len(t, broadcast.NewMessage.Message.Content, notificationPreviewLength+50)

	notification := recvEvent(t, bob)
	require.NotNil(t, notification.MessageNotification)
	assert.Len(t, notification.MessageNotification.Content, notificationPreviewLength,
		"expected the notification to carry a truncated preview")
}

func TestHandleMarkRead(t *testing.T) {
	db := &store.MockRepository{}
	defer db.AssertExpectations(t)

	readAt := Now()
	db.On("MarkRead", "msg-1", "bob").Return(store.Message{
		Id:         "msg-1",
		SenderId:   "alice",
		ReceiverId: "bob",
		Read:       true,
		ReadAt:     &readAt,
	}, nil)

	cs, alice, bob := joinedPair(t, db)

	cs.dispatch(bob, &ClientEvent{MarkRead: &MarkRead{MessageId: "msg-1"}})

	// the sender's joined connection learns about the read receipt
	ev := recvEvent(t, alice)
	require.NotNil(t, ev.MessageRead, "expected a read receipt for the sender")
	assert.Equal(t, "msg-1", ev.MessageRead.MessageId)
	assert.Equal(t, readAt, ev.MessageRead.ReadAt)
	assertNoEvent(t, bob)
}

func TestHandleMarkReadErrors(t *testing.T) {
	tcases := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "not found",
			err:      store.ErrNotFound,
			expected: "message not found or already read",
		},
		{
			name:     "already read",
			err:      store.ErrAlreadyRead,
			expected: "message not found or already read",
		},
		{
			name:     "store failure",
			err:      errors.New("disk full"),
			expected: "failed to mark message as read",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &store.MockRepository{}
			defer db.AssertExpectations(t)
			db.On("MarkRead", "msg-1", "bob").Return(store.Message{}, tc.err)

			cs, alice, bob := joinedPair(t, db)

			cs.dispatch(bob, &ClientEvent{MarkRead: &MarkRead{MessageId: "msg-1"}})
			assertErrorEvent(t, bob, tc.expected)
			assertNoEvent(t, alice)
		})
	}

	t.Run("missing message id", func(t *testing.T) {
		cs, _, bob := joinedPair(t, &store.MockRepository{})

		cs.dispatch(bob, &ClientEvent{MarkRead: &MarkRead{}})
		assertErrorEvent(t, bob, "message id is required")
	})
}

func TestHandleTyping(t *testing.T) {
	cs, alice, bob := joinedPair(t, &store.MockRepository{})

	cs.dispatch(alice, &ClientEvent{TypingStart: &Typing{ReceiverId: "bob"}})

	ev := recvEvent(t, bob)
	require.NotNil(t, ev.UserTyping, "expected a typing indicator")
	assert.Equal(t, "alice", ev.UserTyping.UserId)
	assert.Equal(t, "alice", ev.UserTyping.Username)
	assert.True(t, ev.UserTyping.Typing)
	assertNoEvent(t, alice)

	cs.dispatch(alice, &ClientEvent{TypingStop: &Typing{ReceiverId: "bob"}})

	ev = recvEvent(t, bob)
	require.NotNil(t, ev.UserTyping)
	assert.False(t, ev.UserTyping.Typing)

	t.Run("missing receiver id", func(t *testing.T) {
		cs.dispatch(alice, &ClientEvent{TypingStart: &Typing{}})
		assertErrorEvent(t, alice, "receiver id is required")
	})
}

func TestHandleGetOnlineUsers(t *testing.T) {
	cs, alice, _ := joinedPair(t, &store.MockRepository{})

	cs.dispatch(alice, &ClientEvent{GetOnlineUsers: &GetOnlineUsers{}})

	ev := recvEvent(t, alice)
	require.NotNil(t, ev.OnlineUsers, "expected an online users snapshot")
	assert.ElementsMatch(t, []string{"alice", "bob"}, ev.OnlineUsers.UserIds)
	assert.Equal(t, 2, ev.OnlineUsers.Count)
}

func TestHandleGetUnreadCount(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		db.On("UnreadCount", "alice").Return(3, nil)

		cs, alice, _ := joinedPair(t, db)

		cs.dispatch(alice, &ClientEvent{GetUnreadCount: &GetUnreadCount{}})

		ev := recvEvent(t, alice)
		require.NotNil(t, ev.UnreadCount, "expected an unread count")
		assert.Equal(t, 3, ev.UnreadCount.Count)
	})

	t.Run("store failure", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		db.On("UnreadCount", "alice").Return(0, errors.New("disk full"))

		cs, alice, _ := joinedPair(t, db)

		cs.dispatch(alice, &ClientEvent{GetUnreadCount: &GetUnreadCount{}})
		assertErrorEvent(t, alice, "failed to get unread count")
	})
}

func TestConcurrentSends(t *testing.T) {
	db := &store.MockRepository{}
	db.On("GetAccountById", mock.Anything).Return(store.Account{Id: "peer", IsActive: true}, nil)
	db.On("CreateMessage", mock.Anything).Return(store.Message{Id: "msg-1"}, nil)

	cs, alice, bob := joinedPair(t, db)

	const sends = 50

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range sends {
			cs.dispatch(alice, &ClientEvent{Send: &SendMessage{ReceiverId: "bob", Content: "from alice"}})
		}
	}()
	go func() {
		defer wg.Done()
		for range sends {
			cs.dispatch(bob, &ClientEvent{Send: &SendMessage{ReceiverId: "alice", Content: "from bob"}})
		}
	}()
	wg.Wait()

	// each connection gets an ack per own send, a broadcast and a
	// notification per peer send
	count := func(c *Client) int {
		n := 0
		for {
			select {
			case <-c.send:
				n++
			default:
				return n
			}
		}
	}
	assert.Equal(t, sends*3, count(alice), "expected no events lost for alice")
	assert.Equal(t, sends*3, count(bob), "expected no events lost for bob")
}
