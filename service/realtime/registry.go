package realtime

import (
	"context"
	"time"

	"Pulse/module/realtime/model"
	"Pulse/service/storage"
	"Pulse/tools/errs"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Registry is tenant-scoped CRUD over channels. A channel belonging to a
// different tenant reads as not-found, never forbidden.
type Registry struct {
	store *storage.Store
}

func NewRegistry(store *storage.Store) *Registry {
	return &Registry{store: store}
}

type CreateChannelInput struct {
	Name     string            `json:"name"`
	Type     model.ChannelType `json:"type"`
	Metadata map[string]any    `json:"metadata"`
}

func (r *Registry) Create(ctx context.Context, tenantID string, in CreateChannelInput) (*model.Channel, error) {
	if tenantID == "" {
		return nil, errs.ErrBadRequest.WithDetail("tenant required")
	}
	if in.Name == "" {
		return nil, errs.ErrBadRequest.WithDetail("name required")
	}
	if in.Type == "" {
		in.Type = model.ChannelPublic
	}
	if !in.Type.Valid() {
		return nil, errs.ErrBadRequest.WithDetail("invalid channel type")
	}
	ch := &model.Channel{
		TenantID:  tenantID,
		Name:      in.Name,
		Type:      in.Type,
		Metadata:  in.Metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.Channels.Create(ctx, ch); err != nil {
		return nil, err
	}
	return ch, nil
}

func (r *Registry) Get(ctx context.Context, tenantID, id string) (*model.Channel, error) {
	if tenantID == "" {
		return nil, errs.ErrBadRequest.WithDetail("tenant required")
	}
	return r.store.Channels.Get(ctx, tenantID, id)
}

func (r *Registry) List(ctx context.Context, tenantID string, typ model.ChannelType, limit, offset int) ([]*model.Channel, error) {
	if tenantID == "" {
		return nil, errs.ErrBadRequest.WithDetail("tenant required")
	}
	if typ != "" && !typ.Valid() {
		return nil, errs.ErrBadRequest.WithDetail("invalid channel type")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return r.store.Channels.List(ctx, tenantID, typ, limit, offset)
}
