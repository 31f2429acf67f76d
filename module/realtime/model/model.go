package model

import "time"

type ChannelType string

const (
	ChannelPublic   ChannelType = "public"
	ChannelPrivate  ChannelType = "private"
	ChannelPresence ChannelType = "presence"
)

func (t ChannelType) Valid() bool {
	switch t {
	case ChannelPublic, ChannelPrivate, ChannelPresence:
		return true
	}
	return false
}

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusAway    PresenceStatus = "away"
	StatusBusy    PresenceStatus = "busy"
	StatusOffline PresenceStatus = "offline"
)

func (s PresenceStatus) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy, StatusOffline:
		return true
	}
	return false
}

// Channel is a named, tenant-scoped pub/sub topic. Immutable after
// creation except for metadata.
type Channel struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	Name      string         `json:"name"`
	Type      ChannelType    `json:"type"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// PresenceRecord is the latest known state for one user in one channel.
// At most one row exists per (channel, user); join replaces the row
// outright so a previous session's timestamp never leaks forward.
type PresenceRecord struct {
	ID         string         `json:"id"`
	ChannelID  string         `json:"channel_id"`
	UserID     string         `json:"user_id"`
	Status     PresenceStatus `json:"status"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	LastSeenAt time.Time      `json:"last_seen_at"`
}

// Message is a persisted broadcast event. Append-only; ordered by
// CreatedAt ascending within a channel.
type Message struct {
	ID        string         `json:"id"`
	ChannelID string         `json:"channel_id"`
	UserID    string         `json:"user_id"`
	Event     string         `json:"event"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
