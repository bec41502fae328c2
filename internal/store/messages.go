package store

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/cfiore016/go-connect/internal/types"
)

func (r *BadgerRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	msg := Message{
		Id:          uuid.NewString(),
		SenderId:    params.SenderId,
		ReceiverId:  params.ReceiverId,
		Content:     params.Content,
		ContentType: params.ContentType,
		CreatedAt:   time.Now().UTC(),
	}

	doc, err := json.Marshal(msg)
	if err != nil {
		return Message{}, err
	}

	convKey := types.ConversationKey(msg.SenderId, msg.ReceiverId)
	msgKey := messageKey(convKey, msg.CreatedAt.UnixNano(), msg.Id)

	err = r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(msgKey, doc); err != nil {
			return err
		}
		if err := txn.Set(messageRefKey(msg.Id), msgKey); err != nil {
			return err
		}
		if err := txn.Set(unreadKey(msg.ReceiverId, msg.Id), msgKey); err != nil {
			return err
		}
		// index the conversation for both participants so it shows up in
		// their conversation lists
		if err := txn.Set(conversationIndexKey(msg.SenderId, convKey), []byte(msg.ReceiverId)); err != nil {
			return err
		}
		return txn.Set(conversationIndexKey(msg.ReceiverId, convKey), []byte(msg.SenderId))
	})
	if err != nil {
		return Message{}, err
	}

	return msg, nil
}

func (r *BadgerRepository) GetMessage(id string) (Message, error) {
	var msg Message
	err := r.db.View(func(txn *badger.Txn) error {
		msgKey, err := resolveMessageKey(txn, id)
		if err != nil {
			return err
		}
		return getJson(txn, msgKey, &msg)
	})
	return msg, err
}

// MarkRead flips the read flag of a message addressed to receiverId. A
// message that does not exist or belongs to another receiver yields
// ErrNotFound; one already read yields ErrAlreadyRead and its readAt is
// left untouched.
func (r *BadgerRepository) MarkRead(id, receiverId string) (Message, error) {
	var msg Message
	err := r.db.Update(func(txn *badger.Txn) error {
		msgKey, err := resolveMessageKey(txn, id)
		if err != nil {
			return err
		}
		if err := getJson(txn, msgKey, &msg); err != nil {
			return err
		}

		if msg.ReceiverId != receiverId {
			return ErrNotFound
		}
		if msg.Read {
			return ErrAlreadyRead
		}

		now := time.Now().UTC()
		msg.Read = true
		msg.ReadAt = &now

		doc, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		if err := txn.Set(msgKey, doc); err != nil {
			return err
		}
		return txn.Delete(unreadKey(receiverId, id))
	})
	if err != nil {
		return Message{}, err
	}

	return msg, nil
}

// MarkConversationRead marks every unread message sent by peerId to userId
// as read and returns the updated messages. Used by the history endpoint,
// which marks a page read as a side effect of fetching it.
func (r *BadgerRepository) MarkConversationRead(userId, peerId string) ([]Message, error) {
	var updated []Message
	convKey := types.ConversationKey(userId, peerId)

	err := r.db.Update(func(txn *badger.Txn) error {
		type pending struct {
			key []byte
			msg Message
		}
		var unread []pending

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		prefix := messagePrefix(convKey)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()

			var msg Message
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				it.Close()
				return err
			}

			if msg.ReceiverId == userId && !msg.Read {
				unread = append(unread, pending{key: item.KeyCopy(nil), msg: msg})
			}
		}
		it.Close()

		now := time.Now().UTC()
		for _, p := range unread {
			p.msg.Read = true
			p.msg.ReadAt = &now

			doc, err := json.Marshal(p.msg)
			if err != nil {
				return err
			}
			if err := txn.Set(p.key, doc); err != nil {
				return err
			}
			if err := txn.Delete(unreadKey(userId, p.msg.Id)); err != nil {
				return err
			}

			updated = append(updated, p.msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// ConversationMessages returns a page of the conversation between userId
// and peerId, newest first. Pages are 1-based.
func (r *BadgerRepository) ConversationMessages(userId, peerId string, page, limit int) ([]Message, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}

	var messages []Message
	convKey := types.ConversationKey(userId, peerId)

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := messagePrefix(convKey)
		// reverse iteration seeks to the last possible key under the prefix
		seekKey := append(append([]byte{}, prefix...), 0xff)

		skip := (page - 1) * limit
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if skip > 0 {
				skip--
				continue
			}
			if len(messages) == limit {
				break
			}

			var msg Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return messages, nil
}

// Conversations lists every peer userId has exchanged messages with,
// along with the latest message and the caller's unread count per peer.
func (r *BadgerRepository) Conversations(userId string) ([]ConversationSummary, error) {
	var summaries []ConversationSummary

	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)

		prefix := conversationIndexPrefix(userId)
		type peerConv struct {
			peerId  string
			convKey string
		}
		var peers []peerConv

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			convKey := string(item.Key()[len(prefix):])
			peerId, err := item.ValueCopy(nil)
			if err != nil {
				it.Close()
				return err
			}
			peers = append(peers, peerConv{peerId: string(peerId), convKey: convKey})
		}
		it.Close()

		for _, p := range peers {
			last, err := latestMessage(txn, p.convKey)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return err
			}

			unread, err := countUnread(txn, userId, p.convKey)
			if err != nil {
				return err
			}

			summaries = append(summaries, ConversationSummary{
				PeerId:      p.peerId,
				LastMessage: last,
				UnreadCount: unread,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return summaries, nil
}

func (r *BadgerRepository) UnreadCount(userId string) (int, error) {
	var count int
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := unreadPrefix(userId)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func resolveMessageKey(txn *badger.Txn, id string) ([]byte, error) {
	item, err := txn.Get(messageRefKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

func latestMessage(txn *badger.Txn, convKey string) (Message, error) {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	it := txn.NewIterator(opts)
	defer it.Close()

	prefix := messagePrefix(convKey)
	seekKey := append(append([]byte{}, prefix...), 0xff)

	it.Seek(seekKey)
	if !it.ValidForPrefix(prefix) {
		return Message{}, ErrNotFound
	}

	var msg Message
	err := it.Item().Value(func(val []byte) error {
		return json.Unmarshal(val, &msg)
	})
	return msg, err
}

func countUnread(txn *badger.Txn, userId, convKey string) (int, error) {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	msgPrefix := string(messagePrefix(convKey))
	var count int

	prefix := unreadPrefix(userId)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		msgKey, err := it.Item().ValueCopy(nil)
		if err != nil {
			return 0, err
		}
		if len(msgKey) >= len(msgPrefix) && string(msgKey[:len(msgPrefix)]) == msgPrefix {
			count++
		}
	}
	return count, nil
}
