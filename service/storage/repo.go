package storage

import (
	"context"
	"time"

	"Pulse/module/realtime/model"
)

// ChannelRepo is tenant-scoped channel persistence. Get must not
// distinguish "wrong tenant" from "missing" — both are ErrNotFound.
type ChannelRepo interface {
	Create(ctx context.Context, ch *model.Channel) error
	Get(ctx context.Context, tenantID, id string) (*model.Channel, error)
	List(ctx context.Context, tenantID string, typ model.ChannelType, limit, offset int) ([]*model.Channel, error)
}

// PresenceRepo persists presence rows. Replace is delete-then-insert for
// the (channel, user) pair, never update-in-place. Delete is idempotent
// and reports whether a row actually existed.
type PresenceRepo interface {
	Replace(ctx context.Context, rec *model.PresenceRecord) error
	UpdateStatus(ctx context.Context, channelID, userID string, status model.PresenceStatus, metadata map[string]any) (*model.PresenceRecord, error)
	Touch(ctx context.Context, channelID, userID string, at time.Time) error
	ListActive(ctx context.Context, channelID string, since time.Time) ([]*model.PresenceRecord, error)
	Delete(ctx context.Context, channelID, userID string) (bool, error)
}

// MessageRepo appends broadcast events and serves the replay window.
type MessageRepo interface {
	Append(ctx context.Context, msg *model.Message) error
	History(ctx context.Context, channelID string, limit int) ([]*model.Message, error)
}

// Store bundles the three repos behind one handle so callers wire a single
// dependency.
type Store struct {
	Channels ChannelRepo
	Presence PresenceRepo
	Messages MessageRepo
}
