package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"Pulse/module/realtime/model"
	"Pulse/tools/errs"

	"github.com/google/uuid"
)

// OpenMemory returns a Store backed by process memory. Used when no
// DATABASE_URL is configured (local development) and by package tests.
// Semantics match the Postgres repos, including the read-time staleness
// filter and delete-then-insert presence replacement.
func OpenMemory() *Store {
	return &Store{
		Channels: &memChannelRepo{byID: map[string]*model.Channel{}},
		Presence: &memPresenceRepo{recs: map[string]*model.PresenceRecord{}},
		Messages: &memMessageRepo{},
	}
}

type memChannelRepo struct {
	mu   sync.RWMutex
	byID map[string]*model.Channel
	seq  []string // insertion order for stable listing
}

func (r *memChannelRepo) Create(_ context.Context, ch *model.Channel) error {
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now().UTC()
	}
	cp := *ch
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[ch.ID] = &cp
	r.seq = append(r.seq, ch.ID)
	return nil
}

func (r *memChannelRepo) Get(_ context.Context, tenantID, id string) (*model.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.byID[id]
	if !ok || ch.TenantID != tenantID {
		return nil, errs.ErrNotFound.WithDetail("channel")
	}
	cp := *ch
	return &cp, nil
}

func (r *memChannelRepo) List(_ context.Context, tenantID string, typ model.ChannelType, limit, offset int) ([]*model.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []*model.Channel
	for _, id := range r.seq {
		ch := r.byID[id]
		if ch.TenantID != tenantID {
			continue
		}
		if typ != "" && ch.Type != typ {
			continue
		}
		matched = append(matched, ch)
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	out := make([]*model.Channel, len(matched))
	for i, ch := range matched {
		cp := *ch
		out[i] = &cp
	}
	return out, nil
}

type memPresenceRepo struct {
	mu   sync.RWMutex
	recs map[string]*model.PresenceRecord // key: channelID + "\x00" + userID
}

func presenceKey(channelID, userID string) string {
	return channelID + "\x00" + userID
}

func (r *memPresenceRepo) Replace(_ context.Context, rec *model.PresenceRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.LastSeenAt.IsZero() {
		rec.LastSeenAt = time.Now().UTC()
	}
	cp := *rec
	r.mu.Lock()
	defer r.mu.Unlock()
	// Delete-then-insert: the old row's timestamp never survives a rejoin.
	delete(r.recs, presenceKey(rec.ChannelID, rec.UserID))
	r.recs[presenceKey(rec.ChannelID, rec.UserID)] = &cp
	return nil
}

func (r *memPresenceRepo) UpdateStatus(_ context.Context, channelID, userID string, status model.PresenceStatus, metadata map[string]any) (*model.PresenceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[presenceKey(channelID, userID)]
	if !ok {
		return nil, errs.ErrNotFound.WithDetail("presence record")
	}
	rec.Status = status
	rec.Metadata = metadata
	rec.LastSeenAt = time.Now().UTC()
	cp := *rec
	return &cp, nil
}

func (r *memPresenceRepo) Touch(_ context.Context, channelID, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[presenceKey(channelID, userID)]
	if !ok {
		return errs.ErrNotFound.WithDetail("presence record")
	}
	rec.LastSeenAt = at
	return nil
}

func (r *memPresenceRepo) ListActive(_ context.Context, channelID string, since time.Time) ([]*model.PresenceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.PresenceRecord
	for _, rec := range r.recs {
		if rec.ChannelID != channelID || rec.LastSeenAt.Before(since) {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeenAt.After(out[j].LastSeenAt) })
	return out, nil
}

func (r *memPresenceRepo) Delete(_ context.Context, channelID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := presenceKey(channelID, userID)
	_, existed := r.recs[key]
	delete(r.recs, key)
	return existed, nil
}

type memMessageRepo struct {
	mu   sync.RWMutex
	msgs []*model.Message
}

func (r *memMessageRepo) Append(_ context.Context, msg *model.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	cp := *msg
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, &cp)
	return nil
}

func (r *memMessageRepo) History(_ context.Context, channelID string, limit int) ([]*model.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []*model.Message
	for _, msg := range r.msgs {
		if msg.ChannelID == channelID {
			matched = append(matched, msg)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	out := make([]*model.Message, len(matched))
	for i, msg := range matched {
		cp := *msg
		out[i] = &cp
	}
	return out, nil
}
