package client

import (
	"sync"
	"time"

	"Pulse/logger"
	rt "Pulse/service/realtime"
	"Pulse/tools/errs"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

type State string

const (
	StateDisconnected   State = "disconnected"
	StateConnecting     State = "connecting"
	StateAuthenticating State = "authenticating"
	StateConnected      State = "connected"
)

const maxBackoff = 60 * time.Second

type Config struct {
	URL   string // ws endpoint, e.g. ws://host:8080/ws
	Token string

	AutoConnect          bool          // dial on New
	Reconnect            bool          // redial after unexpected close
	ReconnectDelay       time.Duration // backoff base (default 3s)
	MaxReconnectAttempts int           // terminal error after this many (default 10)
	HeartbeatInterval    time.Duration // client ping cadence (default 25s,
	// deliberately shorter than the server timeout to keep proxies warm)

	OnStateChange func(State)
	OnFrame       func(rt.Frame)
	OnError       func(error)
}

// DefaultConfig returns the protocol defaults with auto-connect and
// reconnection enabled.
func DefaultConfig(url, token string) Config {
	return Config{
		URL:                  url,
		Token:                token,
		AutoConnect:          true,
		Reconnect:            true,
		ReconnectDelay:       3 * time.Second,
		MaxReconnectAttempts: 10,
		HeartbeatInterval:    25 * time.Second,
	}
}

// Client is the reconnecting wire client. The server forgets memberships
// on every drop, so the client is the source of truth for what it should
// be subscribed to and re-issues every subscription after reconnecting,
// before new broadcasts are accepted.
type Client struct {
	cfg Config

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	state   State
	subs    map[string]struct{} // desired subscriptions
	ready   bool                // resubscribed after the latest (re)connect
	running bool
	closed  bool
	done    chan struct{}
}

func New(cfg Config) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 10
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 25 * time.Second
	}
	c := &Client{
		cfg:   cfg,
		state: StateDisconnected,
		subs:  make(map[string]struct{}),
		done:  make(chan struct{}),
	}
	if cfg.AutoConnect {
		go c.run()
	}
	return c
}

// Connect starts the connection loop if it is not already running.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.running || c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	go c.run()
}

// State reports the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe records the channel as desired and subscribes immediately when
// connected. Desired channels survive reconnects.
func (c *Client) Subscribe(channelID string) error {
	c.mu.Lock()
	c.subs[channelID] = struct{}{}
	connected := c.ready
	c.mu.Unlock()
	if !connected {
		return nil // will be issued after (re)connect
	}
	return c.send(&rt.Frame{Type: rt.FrameSubscribe, Channel: channelID})
}

func (c *Client) Unsubscribe(channelID string) error {
	c.mu.Lock()
	delete(c.subs, channelID)
	connected := c.ready
	c.mu.Unlock()
	if !connected {
		return nil
	}
	return c.send(&rt.Frame{Type: rt.FrameUnsubscribe, Channel: channelID})
}

// Broadcast sends an event to a channel. Rejected until the client has
// authenticated and re-issued its subscriptions.
func (c *Client) Broadcast(channelID, event string, payload map[string]any, excludeSelf bool) error {
	if !c.isReady() {
		return errs.ErrBadRequest.WithDetail("not connected")
	}
	return c.send(&rt.Frame{
		Type:        rt.FrameBroadcast,
		Channel:     channelID,
		Event:       event,
		Payload:     payload,
		ExcludeSelf: excludeSelf,
	})
}

// Presence issues a presence action (join/leave/update/heartbeat/get).
func (c *Client) Presence(channelID string, req rt.PresenceRequest) error {
	if !c.isReady() {
		return errs.ErrBadRequest.WithDetail("not connected")
	}
	payload := map[string]any{"action": req.Action}
	if req.Status != "" {
		payload["status"] = req.Status
	}
	if req.Metadata != nil {
		payload["metadata"] = req.Metadata
	}
	return c.send(&rt.Frame{Type: rt.FramePresence, Channel: channelID, Payload: payload})
}

// Close disconnects and suppresses the reconnect loop.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	close(c.done)
	if conn != nil {
		_ = conn.Close()
	}
	c.setState(StateDisconnected)
}

func (c *Client) isReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	cb := c.cfg.OnStateChange
	c.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

func (c *Client) run() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	attempts := 0
	for {
		if c.isClosed() {
			return
		}
		c.setState(StateConnecting)
		conn, err := c.dial()
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()

			// Memberships died with the old connection; re-issue them all
			// before reporting connected. A failure here counts as a failed
			// attempt like a refused dial, otherwise a server that accepts
			// the handshake but drops the socket turns this into a
			// zero-delay redial loop.
			if rerr := c.resubscribe(); rerr != nil {
				logger.Warnf("[client] resubscribe failed: %v", rerr)
				_ = conn.Close()
				c.mu.Lock()
				c.conn = nil
				c.mu.Unlock()
				err = rerr
			}
		}
		if err != nil {
			attempts++
			if !c.cfg.Reconnect || attempts >= c.cfg.MaxReconnectAttempts {
				c.fail(errors.Wrapf(err, "giving up after %d attempts", attempts))
				c.setState(StateDisconnected)
				return
			}
			delay := backoff(c.cfg.ReconnectDelay, attempts)
			logger.Infof("[client] connect failed (attempt %d), retrying in %s: %v", attempts, delay, err)
			select {
			case <-time.After(delay):
				continue
			case <-c.done:
				return
			}
		}
		attempts = 0

		c.mu.Lock()
		c.ready = true
		c.mu.Unlock()
		c.setState(StateConnected)

		stopPing := make(chan struct{})
		go c.pingLoop(conn, stopPing)
		c.readLoop(conn) // blocks until the connection dies
		close(stopPing)

		c.mu.Lock()
		c.ready = false
		c.conn = nil
		c.mu.Unlock()
		c.setState(StateDisconnected)

		if c.isClosed() || !c.cfg.Reconnect {
			return
		}
	}
}

// dial covers both the connecting and authenticating phases: the server
// verifies the bearer token before upgrading, so a 101 response means the
// credential was accepted.
func (c *Client) dial() (*websocket.Conn, error) {
	c.setState(StateAuthenticating)
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(c.cfg.URL+"?token="+c.cfg.Token, nil)
	return conn, err
}

func (c *Client) resubscribe() error {
	c.mu.Lock()
	channels := make([]string, 0, len(c.subs))
	for id := range c.subs {
		channels = append(channels, id)
	}
	c.mu.Unlock()
	for _, id := range channels {
		if err := c.send(&rt.Frame{Type: rt.FrameSubscribe, Channel: id}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !c.isClosed() {
				logger.Infof("[client] connection lost: %v", err)
			}
			return
		}
		frame, perr := rt.ParseFrame(data)
		if perr != nil {
			logger.Warnf("[client] dropping malformed frame: %v", perr)
			continue
		}
		if frame.Type == rt.FramePong {
			continue
		}
		if c.cfg.OnFrame != nil {
			c.cfg.OnFrame(*frame)
		}
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.send(&rt.Frame{Type: rt.FramePing}); err != nil {
				return
			}
		case <-stop:
			return
		case <-c.done:
			return
		}
	}
}

func (c *Client) send(f *rt.Frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errs.ErrBadRequest.WithDetail("not connected")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, f.Encode())
}

func (c *Client) fail(err error) {
	if c.cfg.OnError != nil {
		c.cfg.OnError(err)
	} else {
		logger.Errorf("[client] %v", err)
	}
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
