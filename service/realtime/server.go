package realtime

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"Pulse/logger"
	"Pulse/module/realtime/model"
	"Pulse/service/storage"
	"Pulse/tools/decode"
	"Pulse/tools/errs"
	"Pulse/tools/ids"
	"Pulse/tools/safe"
	"Pulse/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TokenVerifier turns a bearer credential into an identity. Injected so
// deployments can swap JWT verification for their own issuer.
type TokenVerifier func(token string) (*security.Identity, error)

// Authorizer grants access to private channels beyond tenant scoping.
// With no authorizer configured, private channels refuse subscription.
type Authorizer func(id *security.Identity, ch *model.Channel) error

type GatewayConfig struct {
	HeartbeatInterval time.Duration // server ping cadence (default 30s)
	HeartbeatTimeout  time.Duration // close after this much silence (default 60s)
	MaxPayloadSize    int64         // per-frame read limit (default 1MB)
	SendQueueSize     int
}

func (c *GatewayConfig) norm() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 60 * time.Second
	}
	if c.MaxPayloadSize <= 0 {
		c.MaxPayloadSize = 1 << 20
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 256
	}
}

// Gateway owns the wire-level lifecycle of every client connection:
// authentication, heartbeats, subscription bookkeeping, and dispatch into
// the registry, tracker, and router.
type Gateway struct {
	conf      GatewayConfig
	verify    TokenVerifier
	authorize Authorizer

	subs     *SubTable
	registry *Registry
	tracker  *Tracker
	router   *Router
	online   *storage.OnlineRegistry // nil disables the session registry
}

func NewGateway(conf GatewayConfig, verify TokenVerifier, subs *SubTable,
	registry *Registry, tracker *Tracker, router *Router, online *storage.OnlineRegistry) *Gateway {
	conf.norm()
	return &Gateway{
		conf:     conf,
		verify:   verify,
		subs:     subs,
		registry: registry,
		tracker:  tracker,
		router:   router,
		online:   online,
	}
}

// SetAuthorizer installs the private-channel grant hook.
func (g *Gateway) SetAuthorizer(a Authorizer) { g.authorize = a }

// HandleWS authenticates, upgrades, and runs one connection. No frame is
// processed before the bearer credential verifies; failures never upgrade.
func (g *Gateway) HandleWS(c *gin.Context) {
	token := bearerToken(c.Request)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "missing credential"})
		return
	}
	identity, err := g.verify(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "invalid credential"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[gateway] upgrade failed: %v", err)
		return
	}

	client := NewClient(ids.GenerateString(), *identity, ws, g.conf.SendQueueSize)
	g.subs.Register(client)
	logger.Infof("[gateway] connected conn=%s user=%s tenant=%s",
		client.ConnID, identity.UserID, identity.TenantID)

	if g.online != nil {
		safe.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := g.online.Online(ctx, identity.UserID); err != nil {
				logger.Warnf("[gateway] online registry failed user=%s err=%v", identity.UserID, err)
			}
		})
	}

	ws.SetReadLimit(g.conf.MaxPayloadSize)
	_ = ws.SetReadDeadline(time.Now().Add(g.conf.HeartbeatTimeout))
	ws.SetPongHandler(func(string) error {
		client.touchPing()
		return ws.SetReadDeadline(time.Now().Add(g.conf.HeartbeatTimeout))
	})

	go client.writePump(g.conf.HeartbeatInterval)

	g.readLoop(client)
	g.teardown(client)
}

func (g *Gateway) readLoop(client *Client) {
	ws := client.WS
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[gateway] peer closed conn=%s", client.ConnID)
			} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
				logger.Infof("[gateway] heartbeat timeout conn=%s", client.ConnID)
			} else {
				logger.Infof("[gateway] read error conn=%s err=%v", client.ConnID, err)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		// Any inbound traffic proves liveness.
		_ = ws.SetReadDeadline(time.Now().Add(g.conf.HeartbeatTimeout))

		frame, perr := ParseFrame(data)
		if perr != nil {
			// Protocol violation: close rather than recover partially.
			client.Enqueue(errorFrame("", perr).Encode())
			logger.Infof("[gateway] malformed frame, closing conn=%s err=%v", client.ConnID, perr)
			return
		}
		g.dispatch(client, frame)
	}
}

// dispatch routes one inbound frame. Store-backed operations run on their
// own goroutine so one slow query never stalls the connection's read loop.
func (g *Gateway) dispatch(client *Client, frame *Frame) {
	switch frame.Type {
	case FramePing:
		client.touchPing()
		client.Enqueue(ackFrame(FramePong, "").Encode())
	case FrameSubscribe:
		safe.Go(func() { g.handleSubscribe(client, frame) })
	case FrameUnsubscribe:
		g.subs.Unsubscribe(frame.Channel, client.ConnID)
		client.Enqueue(ackFrame(FrameUnsubscribed, frame.Channel).Encode())
	case FrameBroadcast:
		safe.Go(func() { g.handleBroadcast(client, frame) })
	case FramePresence:
		safe.Go(func() { g.handlePresence(client, frame) })
	default:
		client.Enqueue(errorFrame(frame.Channel,
			errs.ErrBadRequest.WithDetail("unknown frame type: "+frame.Type)).Encode())
	}
}

func (g *Gateway) handleSubscribe(client *Client, frame *Frame) {
	ctx, cancel := opCtx()
	defer cancel()

	if _, err := g.resolveChannel(ctx, &client.Identity, frame.Channel); err != nil {
		client.Enqueue(errorFrame(frame.Channel, err).Encode())
		return
	}
	if !g.subs.Subscribe(frame.Channel, client) {
		return // connection tore down while the channel lookup ran
	}
	client.Enqueue(ackFrame(FrameSubscribed, frame.Channel).Encode())
}

func (g *Gateway) handleBroadcast(client *Client, frame *Frame) {
	ctx, cancel := opCtx()
	defer cancel()

	if _, err := g.resolveChannel(ctx, &client.Identity, frame.Channel); err != nil {
		client.Enqueue(errorFrame(frame.Channel, err).Encode())
		return
	}
	in := SendInput{
		ChannelID: frame.Channel,
		UserID:    client.Identity.UserID,
		Event:     frame.Event,
		Payload:   frame.Payload,
	}
	if frame.ExcludeSelf {
		in.ExcludeConnID = client.ConnID
	}
	if _, err := g.router.Send(ctx, in); err != nil {
		client.Enqueue(errorFrame(frame.Channel, err).Encode())
	}
}

func (g *Gateway) handlePresence(client *Client, frame *Frame) {
	ctx, cancel := opCtx()
	defer cancel()

	if _, err := g.resolveChannel(ctx, &client.Identity, frame.Channel); err != nil {
		client.Enqueue(errorFrame(frame.Channel, err).Encode())
		return
	}
	req, err := decode.Map[PresenceRequest](frame.Payload)
	if err != nil {
		client.Enqueue(errorFrame(frame.Channel, errs.ErrBadRequest.WithDetail("bad presence payload")).Encode())
		return
	}
	user := client.Identity.UserID

	switch req.Action {
	case "join":
		_, err = g.tracker.Join(ctx, frame.Channel, user, req.Metadata)
	case "leave":
		err = g.tracker.Leave(ctx, frame.Channel, user)
	case "update":
		_, err = g.tracker.UpdateStatus(ctx, frame.Channel, user, model.PresenceStatus(req.Status), req.Metadata)
	case "heartbeat":
		err = g.tracker.Heartbeat(ctx, frame.Channel, user)
	case "get", "":
		var recs []*model.PresenceRecord
		recs, err = g.tracker.GetPresence(ctx, frame.Channel)
		if err == nil {
			client.Enqueue(presenceListFrame(frame.Channel, recs).Encode())
			return
		}
	default:
		err = errs.ErrBadRequest.WithDetail("unknown presence action: " + req.Action)
	}
	if err != nil {
		client.Enqueue(errorFrame(frame.Channel, err).Encode())
	}
}

// teardown runs on every close, clean or abrupt. Presence leaves are
// fire-and-forget: a failed leave self-corrects once the staleness
// threshold elapses.
func (g *Gateway) teardown(client *Client) {
	channels := g.subs.Unregister(client.ConnID)
	client.Close()

	user := client.Identity.UserID
	for _, channelID := range channels {
		chID := channelID
		safe.Go(func() {
			ctx, cancel := opCtx()
			defer cancel()
			if err := g.tracker.Leave(ctx, chID, user); err != nil {
				logger.Warnf("[gateway] leave on disconnect failed channel=%s user=%s err=%v", chID, user, err)
			}
		})
	}
	if g.online != nil {
		safe.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = g.online.Offline(ctx, user)
		})
	}
	logger.Infof("[gateway] disconnected conn=%s user=%s channels=%d", client.ConnID, user, len(channels))
}

// resolveChannel is the shared authorization gate: the channel must exist
// inside the caller's tenant (cross-tenant reads as not-found), and
// private channels additionally need a grant from the authorizer hook.
func (g *Gateway) resolveChannel(ctx context.Context, id *security.Identity, channelID string) (*model.Channel, error) {
	if channelID == "" {
		return nil, errs.ErrBadRequest.WithDetail("channel required")
	}
	ch, err := g.registry.Get(ctx, id.TenantID, channelID)
	if err != nil {
		return nil, err
	}
	if ch.Type == model.ChannelPrivate {
		if g.authorize == nil {
			return nil, errs.ErrNotFound.WithDetail("channel")
		}
		if err := g.authorize(id, ch); err != nil {
			return nil, errs.ErrNotFound.WithDetail("channel")
		}
	}
	return ch, nil
}

func opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
