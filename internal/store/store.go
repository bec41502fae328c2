package store

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

var (
	// ErrNotFound is returned when a document does not exist, or when a
	// message is not addressed to the caller attempting to mark it read.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyRead is returned by MarkRead when the read flag is already
	// set. The read flag is monotonic and readAt never changes once set.
	ErrAlreadyRead = errors.New("message already read")
	// ErrDuplicateEmail is returned when registering an account with an
	// email address that is already taken.
	ErrDuplicateEmail = errors.New("email address already registered")
)

// Repository is the persistence contract consumed by the chat server and
// the HTTP handlers. All operations delegate consistency to the backing
// store's transactions; callers never see a partially applied write.
type Repository interface {
	CreateAccount(params CreateAccountParams) (Account, error)
	GetAccountById(id string) (Account, error)
	GetAccountByEmail(email string) (Account, error)

	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessage(id string) (Message, error)
	MarkRead(id, receiverId string) (Message, error)
	MarkConversationRead(userId, peerId string) ([]Message, error)
	ConversationMessages(userId, peerId string, page, limit int) ([]Message, error)
	Conversations(userId string) ([]ConversationSummary, error)
	UnreadCount(userId string) (int, error)
}

// BadgerRepository stores accounts and messages as JSON documents in a
// single badger keyspace. Key layout:
//
//	account:id:<uuid>                       account document
//	account:email:<email>                   account id
//	msg:<convKey>:<padded-unixnano>:<uuid>  message document
//	msgref:<uuid>                           full message key
//	unread:<receiverId>:<uuid>              full message key (unread index)
//	conv:<userId>:<convKey>                 peer id (conversation index)
//
// The zero-padded timestamp keeps prefix scans over a conversation in
// chronological order; the uuid suffix disambiguates same-nanosecond writes.
type BadgerRepository struct {
	db *badger.DB
}

func NewBadgerRepository(db *badger.DB) *BadgerRepository {
	return &BadgerRepository{db: db}
}

// Open opens the badger database at path and wraps it in a repository.
func Open(path string) (*BadgerRepository, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return NewBadgerRepository(db), nil
}

func (r *BadgerRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func accountIdKey(id string) []byte {
	return []byte("account:id:" + id)
}

func accountEmailKey(email string) []byte {
	return []byte("account:email:" + email)
}

func messageKey(convKey string, unixNano int64, id string) []byte {
	return fmt.Appendf(nil, "msg:%s:%019d:%s", convKey, unixNano, id)
}

func messagePrefix(convKey string) []byte {
	return []byte("msg:" + convKey + ":")
}

func messageRefKey(id string) []byte {
	return []byte("msgref:" + id)
}

func unreadKey(receiverId, msgId string) []byte {
	return []byte("unread:" + receiverId + ":" + msgId)
}

func unreadPrefix(receiverId string) []byte {
	return []byte("unread:" + receiverId + ":")
}

func conversationIndexKey(userId, convKey string) []byte {
	return []byte("conv:" + userId + ":" + convKey)
}

func conversationIndexPrefix(userId string) []byte {
	return []byte("conv:" + userId + ":")
}
