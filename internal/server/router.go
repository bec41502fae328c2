package server

import (
	"hash/fnv"
	"sync"

	"github.com/cfiore016/go-connect/internal/presence"
	"github.com/cfiore016/go-connect/internal/types"
)

const routerShardCount = 16

type routerShard struct {
	mu     sync.RWMutex
	groups map[string]map[*Client]struct{}
}

// ConversationRouter owns the fan-out group per conversation and the
// principal-scoped notification path. Group membership is sharded by
// conversation key so joins and leaves of unrelated conversations never
// contend.
//
// The two delivery paths are deliberately distinct: FanOut reaches the
// connections that joined a conversation, NotifyUser reaches every live
// connection of a user whether or not it joined anything.
type ConversationRouter struct {
	shards   [routerShardCount]*routerShard
	presence *presence.Registry
	lookup   func(connId string) (*Client, bool)
}

func NewConversationRouter(reg *presence.Registry, lookup func(connId string) (*Client, bool)) *ConversationRouter {
	r := &ConversationRouter{
		presence: reg,
		lookup:   lookup,
	}
	for i := range r.shards {
		r.shards[i] = &routerShard{groups: make(map[string]map[*Client]struct{})}
	}
	return r
}

// Key returns the conversation identifier for the two users. Pure and
// commutative; never cached.
func (r *ConversationRouter) Key(userId, otherUserId string) string {
	return types.ConversationKey(userId, otherUserId)
}

func (r *ConversationRouter) shardFor(key string) *routerShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return r.shards[h.Sum32()%routerShardCount]
}

// Join adds the connection to the conversation's fan-out group and
// returns the group key.
func (r *ConversationRouter) Join(c *Client, userId, otherUserId string) string {
	key := r.Key(userId, otherUserId)
	s := r.shardFor(key)

	s.mu.Lock()
	group, ok := s.groups[key]
	if !ok {
		group = make(map[*Client]struct{})
		s.groups[key] = group
	}
	group[c] = struct{}{}
	s.mu.Unlock()

	c.addConversation(key)
	return key
}

// Leave removes the connection from the conversation's fan-out group,
// dropping the group once it is empty.
func (r *ConversationRouter) Leave(c *Client, userId, otherUserId string) string {
	key := r.Key(userId, otherUserId)
	r.leaveKey(c, key)
	c.delConversation(key)
	return key
}

// LeaveAll removes the connection from every group it joined. Called on
// disconnect.
func (r *ConversationRouter) LeaveAll(c *Client) {
	for _, key := range c.conversationKeys() {
		r.leaveKey(c, key)
		c.delConversation(key)
	}
}

func (r *ConversationRouter) leaveKey(c *Client, key string) {
	s := r.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if group, ok := s.groups[key]; ok {
		delete(group, c)
		if len(group) == 0 {
			delete(s.groups, key)
		}
	}
}

// FanOut delivers ev to every connection joined to the conversation
// between userId and otherUserId, except skip. Used for new messages,
// read receipts and typing indicators, where the sender gets a distinct
// acknowledgment instead of its own broadcast.
func (r *ConversationRouter) FanOut(userId, otherUserId string, ev *ServerEvent, skip *Client) {
	key := r.Key(userId, otherUserId)
	s := r.shardFor(key)

	s.mu.RLock()
	members := make([]*Client, 0, len(s.groups[key]))
	for c := range s.groups[key] {
		if c == skip {
			continue
		}
		members = append(members, c)
	}
	s.mu.RUnlock()

	for _, c := range members {
		c.queueEvent(ev)
	}
}

// NotifyUser delivers ev to every live connection of userId regardless of
// group membership. The presence registry is consulted at call time,
// never cached, so a receiver that connected a moment ago is reached.
func (r *ConversationRouter) NotifyUser(userId string, ev *ServerEvent) {
	for _, connId := range r.presence.ConnectionsFor(userId) {
		if c, ok := r.lookup(connId); ok {
			c.queueEvent(ev)
		}
	}
}
