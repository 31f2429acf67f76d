package realtime

import (
	"encoding/json"
	"errors"

	"Pulse/module/realtime/model"
	"Pulse/tools/errs"
)

// Wire protocol: JSON frames over a persistent connection.
//
//	client -> server: subscribe, unsubscribe, broadcast, presence, ping
//	server -> client: pong, subscribed, unsubscribed, message,
//	                  user:joined, user:left, presence:updated, presence, error
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameBroadcast   = "broadcast"
	FramePresence    = "presence"
	FramePing        = "ping"

	FramePong            = "pong"
	FrameSubscribed      = "subscribed"
	FrameUnsubscribed    = "unsubscribed"
	FrameMessage         = "message"
	FrameUserJoined      = "user:joined"
	FrameUserLeft        = "user:left"
	FramePresenceUpdated = "presence:updated"
	FrameError           = "error"
)

type Frame struct {
	Type    string         `json:"type"`
	Channel string         `json:"channel,omitempty"`
	Event   string         `json:"event,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`

	// ExcludeSelf applies to broadcast frames only: skip the originating
	// connection on fan-out. Other connections of the same user still
	// receive the echo.
	ExcludeSelf bool `json:"exclude_self,omitempty"`
}

// PresenceRequest is the decoded payload of a client presence frame.
// Action selects the tracker operation.
type PresenceRequest struct {
	Action   string         `json:"action"` // join|leave|update|heartbeat|get
	Status   string         `json:"status,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func ParseFrame(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errs.ErrBadRequest.WithDetail("malformed frame")
	}
	if f.Type == "" {
		return nil, errs.ErrBadRequest.WithDetail("frame type missing")
	}
	return &f, nil
}

func (f *Frame) Encode() []byte {
	data, err := json.Marshal(f)
	if err != nil {
		// Frames are built server-side from marshalable values; this
		// only trips on client payloads that survived a decode cycle.
		return []byte(`{"type":"error","payload":{"code":500,"msg":"encode failed"}}`)
	}
	return data
}

func ackFrame(typ, channel string) *Frame {
	return &Frame{Type: typ, Channel: channel}
}

func errorFrame(channel string, err error) *Frame {
	f := &Frame{Type: FrameError, Channel: channel}
	var ce *errs.CodeError
	if !errors.As(err, &ce) {
		ce = errs.ErrInternal
	}
	f.Payload = map[string]any{"code": ce.Code, "msg": ce.Msg}
	if ce.Detail != "" {
		f.Payload["detail"] = ce.Detail
	}
	return f
}

func messageFrame(msg *model.Message) *Frame {
	return &Frame{
		Type:    FrameMessage,
		Channel: msg.ChannelID,
		Event:   msg.Event,
		Payload: map[string]any{
			"id":         msg.ID,
			"user_id":    msg.UserID,
			"payload":    msg.Payload,
			"created_at": msg.CreatedAt,
		},
	}
}

// presenceEventFrame builds the ephemeral membership notifications. These
// bypass the message log: presence churn is not history.
func presenceEventFrame(typ string, rec *model.PresenceRecord) *Frame {
	return &Frame{
		Type:    typ,
		Channel: rec.ChannelID,
		Payload: map[string]any{
			"user_id":      rec.UserID,
			"status":       rec.Status,
			"metadata":     rec.Metadata,
			"last_seen_at": rec.LastSeenAt,
		},
	}
}

func presenceListFrame(channelID string, recs []*model.PresenceRecord) *Frame {
	members := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		members = append(members, map[string]any{
			"user_id":      rec.UserID,
			"status":       rec.Status,
			"metadata":     rec.Metadata,
			"last_seen_at": rec.LastSeenAt,
		})
	}
	return &Frame{
		Type:    FramePresence,
		Channel: channelID,
		Payload: map[string]any{"members": members},
	}
}
