// Package presence tracks which users currently hold live connections.
// A user is online iff their connection set is non-empty; empty sets are
// removed so the registry never holds dangling entries.
package presence

import (
	"hash/fnv"
	"sync"
)

const shardCount = 16

type shard struct {
	mu    sync.RWMutex
	users map[string]map[string]struct{}
}

// Registry maps a user id to the set of its live connection ids. The map
// is sharded by user id so connects and disconnects of unrelated users
// never contend on the same lock. It is the single source of truth for
// presence; callers must consult it rather than cache its answers.
type Registry struct {
	shards [shardCount]*shard
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &shard{users: make(map[string]map[string]struct{})}
	}
	return r
}

func (r *Registry) shardFor(userId string) *shard {
	h := fnv.New32a()
	h.Write([]byte(userId))
	return r.shards[h.Sum32()%shardCount]
}

// Register adds connId to the user's connection set, creating the set on
// the user's first connection. Idempotent per connection id. Returns true
// when the user was offline before this call.
func (r *Registry) Register(userId, connId string) bool {
	s := r.shardFor(userId)
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, ok := s.users[userId]
	if !ok {
		conns = make(map[string]struct{})
		s.users[userId] = conns
	}
	conns[connId] = struct{}{}

	return !ok
}

// Unregister removes connId from the user's connection set. It returns
// true when the user's last connection went away, in which case the entry
// is deleted and the caller should broadcast the offline status.
func (r *Registry) Unregister(userId, connId string) bool {
	s := r.shardFor(userId)
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, ok := s.users[userId]
	if !ok {
		return false
	}

	if _, ok := conns[connId]; !ok {
		return false
	}

	delete(conns, connId)
	if len(conns) == 0 {
		delete(s.users, userId)
		return true
	}

	return false
}

func (r *Registry) IsOnline(userId string) bool {
	s := r.shardFor(userId)
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.users[userId]) > 0
}

// ConnectionsFor returns a copy of the user's connection ids; empty when
// the user is offline.
func (r *Registry) ConnectionsFor(userId string) []string {
	s := r.shardFor(userId)
	s.mu.RLock()
	defer s.mu.RUnlock()

	conns := make([]string, 0, len(s.users[userId]))
	for connId := range s.users[userId] {
		conns = append(conns, connId)
	}
	return conns
}

// OnlineUsers returns a snapshot of the ids of every online user, in no
// particular order.
func (r *Registry) OnlineUsers() []string {
	var users []string
	for _, s := range r.shards {
		s.mu.RLock()
		for userId := range s.users {
			users = append(users, userId)
		}
		s.mu.RUnlock()
	}
	return users
}

// Len reports the number of online users.
func (r *Registry) Len() int {
	var n int
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.users)
		s.mu.RUnlock()
	}
	return n
}
