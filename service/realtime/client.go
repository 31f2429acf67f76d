package realtime

import (
	"sync"
	"time"

	"Pulse/logger"
	"Pulse/tools/security"

	"github.com/gorilla/websocket"
)

// Client is one live authenticated connection held by this gateway node.
// A user may hold several connections, each tracked separately. Outbound
// frames go through the buffered Send queue consumed by a single writer
// goroutine; the websocket is never written from two goroutines.
type Client struct {
	ConnID   string
	Identity security.Identity
	WS       *websocket.Conn

	Send chan []byte

	mu       sync.Mutex
	subs     map[string]struct{}
	lastPing time.Time

	closeOnce sync.Once
	done      chan struct{}
}

func NewClient(connID string, id security.Identity, ws *websocket.Conn, sendQueueSize int) *Client {
	return &Client{
		ConnID:   connID,
		Identity: id,
		WS:       ws,
		Send:     make(chan []byte, sendQueueSize),
		subs:     make(map[string]struct{}),
		lastPing: time.Now(),
		done:     make(chan struct{}),
	}
}

// Enqueue queues an outbound frame without blocking. A full queue means a
// slow client; the frame is dropped rather than stalling fan-out.
func (c *Client) Enqueue(data []byte) bool {
	select {
	case c.Send <- data:
		return true
	default:
		logger.Warnf("[client] send queue full, dropping frame conn=%s user=%s", c.ConnID, c.Identity.UserID)
		return false
	}
}

func (c *Client) addSub(channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[channelID] = struct{}{}
}

func (c *Client) removeSub(channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, channelID)
}

// Subscriptions snapshots the channels this connection is subscribed to.
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for id := range c.subs {
		out = append(out, id)
	}
	return out
}

func (c *Client) touchPing() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPing = time.Now()
}

// Close shuts the writer down and closes the socket. Safe to call more
// than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.WS.Close()
	})
}

// writePump drains the send queue and emits protocol-level pings at the
// heartbeat interval. Exits when the queue source closes the connection
// or a write fails; the read loop notices via the closed socket.
func (c *Client) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.Send:
			if err := c.writeMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("[client] write failed: " + err.Error())
				return
			}
		case <-ticker.C:
			if err := c.writeMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) writeMessage(messageType int, data []byte) error {
	if err := c.WS.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	return c.WS.WriteMessage(messageType, data)
}
