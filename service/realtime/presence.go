package realtime

import (
	"context"
	"time"

	"Pulse/module/realtime/model"
	"Pulse/service/storage"
	"Pulse/tools/errs"
)

// Deliverer pushes an encoded frame to the live subscribers of a channel.
// Implemented by LiveDelivery; nil means no socket surface is attached and
// operations degrade to persistence only.
type Deliverer interface {
	Deliver(channelID string, payload []byte, excludeConnID string)
}

// Tracker owns the per-(channel, user) presence state machine:
// absent -> online -> {away, busy} -> absent. Expiry is pull-based: reads
// filter on the staleness threshold instead of a background sweep evicting
// rows, so idle readers add no write load.
type Tracker struct {
	store *storage.Store
	live  Deliverer // nil => persist only
	ttl   time.Duration
}

func NewTracker(store *storage.Store, live Deliverer, staleness time.Duration) *Tracker {
	if staleness <= 0 {
		staleness = 5 * time.Minute
	}
	return &Tracker{store: store, live: live, ttl: staleness}
}

// Staleness exposes the threshold; the HTTP surface reports it alongside
// member lists.
func (t *Tracker) Staleness() time.Duration { return t.ttl }

// Join replaces any previous record for the pair with a fresh online row
// and notifies subscribers. Presence events are ephemeral: they are fanned
// out but never written to the message log.
func (t *Tracker) Join(ctx context.Context, channelID, userID string, metadata map[string]any) (*model.PresenceRecord, error) {
	if channelID == "" || userID == "" {
		return nil, errs.ErrBadRequest.WithDetail("channel and user required")
	}
	rec := &model.PresenceRecord{
		ChannelID:  channelID,
		UserID:     userID,
		Status:     model.StatusOnline,
		Metadata:   metadata,
		LastSeenAt: time.Now().UTC(),
	}
	if err := t.store.Presence.Replace(ctx, rec); err != nil {
		return nil, err
	}
	t.notify(presenceEventFrame(FrameUserJoined, rec))
	return rec, nil
}

// UpdateStatus mutates the existing record in place. The caller must have
// joined first; a missing pair is NotFound.
func (t *Tracker) UpdateStatus(ctx context.Context, channelID, userID string, status model.PresenceStatus, metadata map[string]any) (*model.PresenceRecord, error) {
	if !status.Valid() {
		return nil, errs.ErrBadRequest.WithDetail("invalid status")
	}
	rec, err := t.store.Presence.UpdateStatus(ctx, channelID, userID, status, metadata)
	if err != nil {
		return nil, err
	}
	t.notify(presenceEventFrame(FramePresenceUpdated, rec))
	return rec, nil
}

// Heartbeat refreshes last_seen_at only; status is untouched. This is how
// a stale-but-undeleted row comes back to life.
func (t *Tracker) Heartbeat(ctx context.Context, channelID, userID string) error {
	return t.store.Presence.Touch(ctx, channelID, userID, time.Now().UTC())
}

// GetPresence returns the records whose last_seen_at falls inside the
// staleness threshold. Older rows are excluded no matter what their stored
// status claims.
func (t *Tracker) GetPresence(ctx context.Context, channelID string) ([]*model.PresenceRecord, error) {
	since := time.Now().UTC().Add(-t.ttl)
	return t.store.Presence.ListActive(ctx, channelID, since)
}

// Leave deletes the record and notifies subscribers. Leaving a channel the
// user never joined is a silent no-op and announces nothing.
func (t *Tracker) Leave(ctx context.Context, channelID, userID string) error {
	deleted, err := t.store.Presence.Delete(ctx, channelID, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return nil
	}
	t.notify(presenceEventFrame(FrameUserLeft, &model.PresenceRecord{
		ChannelID:  channelID,
		UserID:     userID,
		Status:     model.StatusOffline,
		LastSeenAt: time.Now().UTC(),
	}))
	return nil
}

func (t *Tracker) notify(f *Frame) {
	if t.live == nil {
		return
	}
	t.live.Deliver(f.Channel, f.Encode(), "")
}
