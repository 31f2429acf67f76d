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

type pgPresenceRepo struct {
	pool *pgxpool.Pool
}

// Replace deletes any existing row for the (channel, user) pair and inserts
// a fresh one in a single transaction. A stale heartbeat timestamp from a
// previous session must never leak into the new row.
func (r *pgPresenceRepo) Replace(ctx context.Context, rec *model.PresenceRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.LastSeenAt.IsZero() {
		rec.LastSeenAt = time.Now().UTC()
	}
	meta, err := marshalMeta(rec.Metadata)
	if err != nil {
		return errs.ErrBadRequest.WithDetail("metadata not serializable")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin replace presence")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM presence_records WHERE channel_id = $1 AND user_id = $2`,
		rec.ChannelID, rec.UserID); err != nil {
		return errors.Wrap(err, "delete stale presence")
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO presence_records (id, channel_id, user_id, status, metadata, last_seen_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.ChannelID, rec.UserID, string(rec.Status), meta, rec.LastSeenAt); err != nil {
		return errors.Wrap(err, "insert presence")
	}
	return errors.Wrap(tx.Commit(ctx), "commit replace presence")
}

func (r *pgPresenceRepo) UpdateStatus(ctx context.Context, channelID, userID string, status model.PresenceStatus, metadata map[string]any) (*model.PresenceRecord, error) {
	meta, err := marshalMeta(metadata)
	if err != nil {
		return nil, errs.ErrBadRequest.WithDetail("metadata not serializable")
	}
	row := r.pool.QueryRow(ctx,
		`UPDATE presence_records
		 SET status = $3, metadata = $4, last_seen_at = $5
		 WHERE channel_id = $1 AND user_id = $2
		 RETURNING id, channel_id, user_id, status, metadata, last_seen_at`,
		channelID, userID, string(status), meta, time.Now().UTC())
	return scanPresence(row)
}

func (r *pgPresenceRepo) Touch(ctx context.Context, channelID, userID string, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE presence_records SET last_seen_at = $3
		 WHERE channel_id = $1 AND user_id = $2`,
		channelID, userID, at)
	if err != nil {
		return errors.Wrap(err, "touch presence")
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound.WithDetail("presence record")
	}
	return nil
}

// ListActive applies the staleness threshold at read time: rows older than
// `since` are excluded regardless of their stored status. No background
// sweep exists; stale rows stay until replaced or deleted.
func (r *pgPresenceRepo) ListActive(ctx context.Context, channelID string, since time.Time) ([]*model.PresenceRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, channel_id, user_id, status, metadata, last_seen_at
		 FROM presence_records
		 WHERE channel_id = $1 AND last_seen_at >= $2
		 ORDER BY last_seen_at DESC`,
		channelID, since)
	if err != nil {
		return nil, errors.Wrap(err, "list presence")
	}
	defer rows.Close()

	var out []*model.PresenceRecord
	for rows.Next() {
		rec, err := scanPresence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete is idempotent; leaving a channel never joined is a no-op. The
// returned flag tells the caller whether there was a member to announce.
func (r *pgPresenceRepo) Delete(ctx context.Context, channelID, userID string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM presence_records WHERE channel_id = $1 AND user_id = $2`,
		channelID, userID)
	if err != nil {
		return false, errors.Wrap(err, "delete presence")
	}
	return tag.RowsAffected() > 0, nil
}

func scanPresence(row pgx.Row) (*model.PresenceRecord, error) {
	var (
		rec    model.PresenceRecord
		status string
		meta   []byte
	)
	err := row.Scan(&rec.ID, &rec.ChannelID, &rec.UserID, &status, &meta, &rec.LastSeenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound.WithDetail("presence record")
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan presence")
	}
	rec.Status = model.PresenceStatus(status)
	rec.Metadata = unmarshalMeta(meta)
	return &rec, nil
}
