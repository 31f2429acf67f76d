package realtime

import (
	"sync"
)

// SubTable is the process-local subscription table: channelID -> set of
// live connections. It is the only resource contended between the
// per-connection read loops and fan-out, so it supports concurrent reads
// (fan-out snapshots) and writes (subscribe/unsubscribe) under one RWMutex.
// A node only delivers to connections it itself holds; cross-node delivery
// goes through the bridge.
type SubTable struct {
	mu        sync.RWMutex
	byChannel map[string]map[string]*Client // channelID -> connID -> client
	byConn    map[string]*Client
}

func NewSubTable() *SubTable {
	return &SubTable{
		byChannel: make(map[string]map[string]*Client),
		byConn:    make(map[string]*Client),
	}
}

// Register tracks a freshly authenticated connection.
func (t *SubTable) Register(c *Client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byConn[c.ConnID] = c
}

// Unregister removes the connection and all of its channel memberships,
// returning the channels it was subscribed to so the caller can issue
// best-effort presence leaves.
func (t *SubTable) Unregister(connID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.byConn[connID]
	if !ok {
		return nil
	}
	delete(t.byConn, connID)

	channels := c.Subscriptions()
	for _, chID := range channels {
		if set := t.byChannel[chID]; set != nil {
			delete(set, connID)
			if len(set) == 0 {
				delete(t.byChannel, chID)
			}
		}
	}
	return channels
}

// Subscribe adds the connection to the channel set. It reports false for
// connections no longer in the table: a subscribe racing teardown must not
// park a dead client where fan-out keeps iterating it.
func (t *SubTable) Subscribe(channelID string, c *Client) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byConn[c.ConnID]; !ok {
		return false
	}
	set := t.byChannel[channelID]
	if set == nil {
		set = make(map[string]*Client)
		t.byChannel[channelID] = set
	}
	set[c.ConnID] = c
	c.addSub(channelID)
	return true
}

func (t *SubTable) Unsubscribe(channelID, connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if set := t.byChannel[channelID]; set != nil {
		if c, ok := set[connID]; ok {
			c.removeSub(channelID)
		}
		delete(set, connID)
		if len(set) == 0 {
			delete(t.byChannel, channelID)
		}
	}
}

// Subscribers snapshots the current members of a channel so fan-out can
// iterate without holding the lock.
func (t *SubTable) Subscribers(channelID string) []*Client {
	t.mu.RLock()
	defer t.mu.RUnlock()
	set := t.byChannel[channelID]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

func (t *SubTable) Get(connID string) (*Client, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.byConn[connID]
	return c, ok
}

func (t *SubTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byConn)
}
