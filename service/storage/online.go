package storage

import (
	"context"
	"time"

	redisx "Pulse/service/storage/redis"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Session registry: which gateway node currently holds a user's live
// connection. TTL-bound so crashed nodes self-correct. This is
// connection-level liveness, distinct from the per-channel presence rows.
//
// key: rt:online:<user> -> gateway node ID

func onlineKey(user string) string { return "rt:online:" + user }

type OnlineRegistry struct {
	NodeID string
	TTL    time.Duration
}

func NewOnlineRegistry(nodeID string, ttl time.Duration) *OnlineRegistry {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &OnlineRegistry{NodeID: nodeID, TTL: ttl}
}

// Online marks the user as held by this node and renews the TTL.
func (o *OnlineRegistry) Online(ctx context.Context, user string) error {
	rdb := redisx.Get()
	if rdb == nil {
		return nil // registry disabled
	}
	return rdb.Set(ctx, onlineKey(user), o.NodeID, o.TTL).Err()
}

// Offline removes the user's key; only when this node still owns it.
func (o *OnlineRegistry) Offline(ctx context.Context, user string) error {
	rdb := redisx.Get()
	if rdb == nil {
		return nil
	}
	val, err := rdb.Get(ctx, onlineKey(user)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if val != o.NodeID {
		return nil // another node re-registered the user; leave it alone
	}
	return rdb.Del(ctx, onlineKey(user)).Err()
}

// Lookup reports whether the user is online anywhere and on which node.
func (o *OnlineRegistry) Lookup(ctx context.Context, user string) (nodeID string, online bool, err error) {
	rdb := redisx.Get()
	if rdb == nil {
		return "", false, nil
	}
	val, err := rdb.Get(ctx, onlineKey(user)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}
