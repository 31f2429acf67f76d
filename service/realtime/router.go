package realtime

import (
	"context"
	"time"

	"Pulse/logger"
	"Pulse/module/realtime/model"
	"Pulse/service/storage"
	"Pulse/tools/errs"
)

// Bridge relays fanned-out events to other gateway nodes. Optional
// extension point; single-node deployments run without one.
type Bridge interface {
	Publish(evt BridgeEvent) error
}

// BridgeEvent is the cross-node envelope: the already-encoded frame plus
// the origin node, so receivers never re-deliver their own events.
type BridgeEvent struct {
	Origin  string `json:"origin"`
	Channel string `json:"channel"`
	Frame   []byte `json:"frame"`
}

// Router durably records broadcast events and fans them out to live
// subscribers. Persistence runs first so history and live delivery stay
// consistent; if the write fails, delivery is still attempted — an
// explicit availability-over-durability tradeoff.
type Router struct {
	store        *storage.Store
	live         Deliverer // nil => persist only
	bridge       Bridge    // nil => single node
	nodeID       string
	historyLimit int
}

func NewRouter(store *storage.Store, live Deliverer, nodeID string, historyLimit int) *Router {
	if historyLimit <= 0 {
		historyLimit = 100
	}
	return &Router{store: store, live: live, nodeID: nodeID, historyLimit: historyLimit}
}

// AttachBridge wires the cross-node relay after construction; main does
// this only when a bus is configured.
func (r *Router) AttachBridge(b Bridge) { r.bridge = b }

type SendInput struct {
	ChannelID string
	UserID    string // sender
	Event     string
	Payload   map[string]any

	// ExcludeConnID skips one connection on fan-out. Exclusion is
	// per-connection: a sender's other tabs still see the echo. Empty
	// for the request/response surface, which has no connection.
	ExcludeConnID string
}

func (r *Router) Send(ctx context.Context, in SendInput) (*model.Message, error) {
	if in.ChannelID == "" {
		return nil, errs.ErrBadRequest.WithDetail("channel required")
	}
	if in.Event == "" {
		return nil, errs.ErrBadRequest.WithDetail("event required")
	}
	msg := &model.Message{
		ChannelID: in.ChannelID,
		UserID:    in.UserID,
		Event:     in.Event,
		Payload:   in.Payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.Messages.Append(ctx, msg); err != nil {
		logger.Errorf("[router] persist failed, delivering anyway channel=%s event=%s err=%v",
			in.ChannelID, in.Event, err)
	}

	frame := messageFrame(msg).Encode()
	if r.live != nil {
		r.live.Deliver(in.ChannelID, frame, in.ExcludeConnID)
	}
	if r.bridge != nil {
		if err := r.bridge.Publish(BridgeEvent{Origin: r.nodeID, Channel: in.ChannelID, Frame: frame}); err != nil {
			logger.Warnf("[router] bridge publish failed channel=%s err=%v", in.ChannelID, err)
		}
	}
	return msg, nil
}

// History returns the replay window: the most recent N messages in
// ascending creation order for backfilling reconnected clients.
func (r *Router) History(ctx context.Context, channelID string) ([]*model.Message, error) {
	if channelID == "" {
		return nil, errs.ErrBadRequest.WithDetail("channel required")
	}
	return r.store.Messages.History(ctx, channelID, r.historyLimit)
}

// DeliverForeign hands a bridge-received event to local subscribers. Events
// originated by this node are ignored; the local fan-out already ran.
func (r *Router) DeliverForeign(evt BridgeEvent) {
	if evt.Origin == r.nodeID || r.live == nil {
		return
	}
	r.live.Deliver(evt.Channel, evt.Frame, "")
}
