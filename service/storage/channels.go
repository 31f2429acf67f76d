package storage

import (
	"context"
	"time"

	"Pulse/module/realtime/model"
	"Pulse/tools/errs"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type pgChannelRepo struct {
	pool *pgxpool.Pool
}

func (r *pgChannelRepo) Create(ctx context.Context, ch *model.Channel) error {
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now().UTC()
	}
	meta, err := marshalMeta(ch.Metadata)
	if err != nil {
		return errs.ErrBadRequest.WithDetail("metadata not serializable")
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO channels (id, tenant_id, name, type, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		ch.ID, ch.TenantID, ch.Name, string(ch.Type), meta, ch.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "insert channel")
	}
	return nil
}

func (r *pgChannelRepo) Get(ctx context.Context, tenantID, id string) (*model.Channel, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, tenant_id, name, type, metadata, created_at
		 FROM channels WHERE id = $1 AND tenant_id = $2`,
		id, tenantID)
	return scanChannel(row)
}

func (r *pgChannelRepo) List(ctx context.Context, tenantID string, typ model.ChannelType, limit, offset int) ([]*model.Channel, error) {
	q := `SELECT id, tenant_id, name, type, metadata, created_at
	      FROM channels WHERE tenant_id = $1`
	args := []any{tenantID}
	if typ != "" {
		q += ` AND type = $2 ORDER BY created_at LIMIT $3 OFFSET $4`
		args = append(args, string(typ), limit, offset)
	} else {
		q += ` ORDER BY created_at LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list channels")
	}
	defer rows.Close()

	var out []*model.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func scanChannel(row pgx.Row) (*model.Channel, error) {
	var (
		ch   model.Channel
		typ  string
		meta []byte
	)
	err := row.Scan(&ch.ID, &ch.TenantID, &ch.Name, &typ, &meta, &ch.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound.WithDetail("channel")
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan channel")
	}
	ch.Type = model.ChannelType(typ)
	ch.Metadata = unmarshalMeta(meta)
	return &ch, nil
}
