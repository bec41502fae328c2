package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cfiore016/go-connect/internal/types"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
	// large enough for the biggest command envelope around a maximum
	// length message body
	maxEventSize = 4096
)

// Client is one live websocket connection owned by an authenticated user.
// A user may hold several clients at once (tabs, devices); each gets its
// own id. Events read from the socket are dispatched sequentially, so
// commands from a single connection never overlap.
type Client struct {
	id         string
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	user       types.User
	send       chan *ServerEvent

	convsLock sync.RWMutex
	convs     map[string]struct{}

	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(id string, user types.User, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	return &Client{
		id:         id,
		conn:       conn,
		chatServer: cs,
		log:        l,
		user:       user,
		send:       make(chan *ServerEvent, 256),
		convs:      make(map[string]struct{}),
		stop:       make(chan struct{}),
	}
}

func (c *Client) Id() string {
	return c.id
}

func (c *Client) User() types.User {
	return c.user
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(ev)
			if err != nil {
				c.log.Println("failed to serialize event:", err)
				continue
			}

			if !c.writeMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.writeMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxEventSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var ev ClientEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.log.Println("error parsing event:", err)
			c.queueEvent(NewErrorEvent("invalid event format"))
			continue
		}

		c.chatServer.dispatch(c, &ev)
	}
}

// queueEvent enqueues ev for delivery without blocking; a slow consumer
// loses events rather than stalling the caller.
func (c *Client) queueEvent(ev *ServerEvent) bool {
	select {
	case c.send <- ev:
	default:
		c.log.Printf("send channel full for connection %s, dropping event", c.id)
		return false
	}

	return true
}

func (c *Client) writeMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.chatServer.DeregisterClient(c)
	c.stopClient()
}

func (c *Client) addConversation(key string) {
	c.convsLock.Lock()
	defer c.convsLock.Unlock()

	c.convs[key] = struct{}{}
}

func (c *Client) delConversation(key string) {
	c.convsLock.Lock()
	defer c.convsLock.Unlock()

	delete(c.convs, key)
}

func (c *Client) conversationKeys() []string {
	c.convsLock.RLock()
	defer c.convsLock.RUnlock()

	keys := make([]string, 0, len(c.convs))
	for key := range c.convs {
		keys = append(keys, key)
	}
	return keys
}
