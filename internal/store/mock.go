package store

import (
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	args := m.Called(params)
	return args.Get(0).(Account), args.Error(1)
}

func (m *MockRepository) GetAccountById(id string) (Account, error) {
	args := m.Called(id)
	return args.Get(0).(Account), args.Error(1)
}

func (m *MockRepository) GetAccountByEmail(email string) (Account, error) {
	args := m.Called(email)
	return args.Get(0).(Account), args.Error(1)
}

func (m *MockRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}

func (m *MockRepository) GetMessage(id string) (Message, error) {
	args := m.Called(id)
	return args.Get(0).(Message), args.Error(1)
}

func (m *MockRepository) MarkRead(id, receiverId string) (Message, error) {
	args := m.Called(id, receiverId)
	return args.Get(0).(Message), args.Error(1)
}

func (m *MockRepository) MarkConversationRead(userId, peerId string) ([]Message, error) {
	args := m.Called(userId, peerId)
	if msgs, ok := args.Get(0).([]Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) ConversationMessages(userId, peerId string, page, limit int) ([]Message, error) {
	args := m.Called(userId, peerId, page, limit)
	if msgs, ok := args.Get(0).([]Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) Conversations(userId string) ([]ConversationSummary, error) {
	args := m.Called(userId)
	if convs, ok := args.Get(0).([]ConversationSummary); ok {
		return convs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) UnreadCount(userId string) (int, error) {
	args := m.Called(userId)
	return args.Int(0), args.Error(1)
}
