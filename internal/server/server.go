package server

import (
	"context"
	"log"
	"sync"

	"github.com/cfiore016/go-connect/internal/presence"
	"github.com/cfiore016/go-connect/internal/stats"
	"github.com/cfiore016/go-connect/internal/store"
)

const (
	metricActiveConnections = "ActiveConnections"
	metricOnlineUsers       = "OnlineUsers"
	metricMessagesSent      = "MessagesSent"
	metricMessagesRead      = "MessagesRead"
)

// ChatServer holds every live connection and the shared in-process state:
// the presence registry and the conversation router's group tables. Both
// are constructed here and injected, never package-level, so tests can
// run independent instances side by side.
type ChatServer struct {
	log       *log.Logger
	db        store.Repository
	presence  *presence.Registry
	router    *ConversationRouter
	stats     stats.Provider
	conns     map[string]*Client
	connsLock sync.RWMutex
}

func NewChatServer(logger *log.Logger, db store.Repository, st stats.Provider) (*ChatServer, error) {
	cs := &ChatServer{
		log:      logger,
		db:       db,
		presence: presence.NewRegistry(),
		stats:    st,
		conns:    make(map[string]*Client),
	}
	cs.router = NewConversationRouter(cs.presence, cs.client)

	st.RegisterMetric(metricActiveConnections)
	st.RegisterMetric(metricOnlineUsers)
	st.RegisterMetric(metricMessagesSent)
	st.RegisterMetric(metricMessagesRead)

	return cs, nil
}

func (cs *ChatServer) Presence() *presence.Registry {
	return cs.presence
}

func (cs *ChatServer) client(connId string) (*Client, bool) {
	cs.connsLock.RLock()
	defer cs.connsLock.RUnlock()

	c, ok := cs.conns[connId]
	return c, ok
}

// RegisterClient adds the connection to the index and the presence
// registry. The user's online status is broadcast to every connection
// when this is their first one.
func (cs *ChatServer) RegisterClient(c *Client) {
	cs.connsLock.Lock()
	cs.conns[c.id] = c
	cs.connsLock.Unlock()

	cs.stats.Incr(metricActiveConnections)

	if cs.presence.Register(c.user.Id, c.id) {
		cs.stats.Incr(metricOnlineUsers)
		cs.broadcastAll(NewUserStatusEvent(c.user.Id, StatusOnline))
	}

	cs.log.Printf("registered connection %s for user %q", c.id, c.user.Username)
}

// DeregisterClient removes the connection from the router's groups, the
// index and the presence registry, broadcasting the offline status
// exactly once when the user's last connection goes away.
func (cs *ChatServer) DeregisterClient(c *Client) {
	cs.router.LeaveAll(c)

	cs.connsLock.Lock()
	_, ok := cs.conns[c.id]
	delete(cs.conns, c.id)
	cs.connsLock.Unlock()

	if !ok {
		return
	}

	cs.stats.Decr(metricActiveConnections)

	if cs.presence.Unregister(c.user.Id, c.id) {
		cs.stats.Decr(metricOnlineUsers)
		cs.broadcastAll(NewUserStatusEvent(c.user.Id, StatusOffline))
	}

	cs.log.Printf("removed connection %s for user %q", c.id, c.user.Username)
}

// broadcastAll queues ev on every live connection.
func (cs *ChatServer) broadcastAll(ev *ServerEvent) {
	cs.connsLock.RLock()
	clients := make([]*Client, 0, len(cs.conns))
	for _, c := range cs.conns {
		clients = append(clients, c)
	}
	cs.connsLock.RUnlock()

	for _, c := range clients {
		c.queueEvent(ev)
	}
}

// Shutdown stops every live connection. In-flight persistence operations
// already issued by a connection complete on their own goroutines; a
// message durably written is never rolled back here.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.connsLock.RLock()
	clients := make([]*Client, 0, len(cs.conns))
	for _, c := range cs.conns {
		clients = append(clients, c)
	}
	cs.connsLock.RUnlock()

	for _, c := range clients {
		c.stopClient()
	}

	return ctx.Err()
}
