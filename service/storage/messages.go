package storage

import (
	"context"
	"time"

	"Pulse/module/realtime/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type pgMessageRepo struct {
	pool *pgxpool.Pool
}

func (r *pgMessageRepo) Append(ctx context.Context, msg *model.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	payload, err := marshalMeta(msg.Payload)
	if err != nil {
		return errors.Wrap(err, "marshal payload")
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO messages (id, channel_id, user_id, event, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.ChannelID, msg.UserID, msg.Event, payload, msg.CreatedAt)
	return errors.Wrap(err, "insert message")
}

// History returns the most recent `limit` messages in ascending creation
// order, so a reconnecting client can replay them oldest-first.
func (r *pgMessageRepo) History(ctx context.Context, channelID string, limit int) ([]*model.Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, channel_id, user_id, event, payload, created_at FROM (
			SELECT id, channel_id, user_id, event, payload, created_at
			FROM messages WHERE channel_id = $1
			ORDER BY created_at DESC LIMIT $2
		 ) recent ORDER BY created_at ASC`,
		channelID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query history")
	}
	defer rows.Close()

	var out []*model.Message
	for rows.Next() {
		var (
			msg     model.Message
			payload []byte
		)
		if err := rows.Scan(&msg.ID, &msg.ChannelID, &msg.UserID, &msg.Event, &payload, &msg.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		msg.Payload = unmarshalMeta(payload)
		out = append(out, &msg)
	}
	return out, rows.Err()
}
