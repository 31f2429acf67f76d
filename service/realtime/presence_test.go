package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"Pulse/module/realtime/model"
	"Pulse/service/storage"
	"Pulse/tools/errs"

	"github.com/stretchr/testify/require"
)

// captureDelivery records fan-out calls without real connections.
type captureDelivery struct {
	mu     sync.Mutex
	frames []capturedFrame
}

type capturedFrame struct {
	channel string
	payload []byte
	exclude string
}

func (d *captureDelivery) Deliver(channelID string, payload []byte, excludeConnID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = append(d.frames, capturedFrame{channel: channelID, payload: payload, exclude: excludeConnID})
}

func (d *captureDelivery) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.frames)
}

func (d *captureDelivery) frameTypes(t *testing.T) []string {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.frames))
	for _, f := range d.frames {
		frame, err := ParseFrame(f.payload)
		require.NoError(t, err)
		out = append(out, frame.Type)
	}
	return out
}

func TestJoinKeepsSingleRecordPerPair(t *testing.T) {
	req := require.New(t)
	store := storage.OpenMemory()
	tracker := NewTracker(store, nil, 5*time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := tracker.Join(ctx, "room:1", "alice", map[string]any{"name": "A"})
		req.NoError(err)
	}

	recs, err := tracker.GetPresence(ctx, "room:1")
	req.NoError(err)
	req.Len(recs, 1)
	req.Equal("alice", recs[0].UserID)
	req.Equal(model.StatusOnline, recs[0].Status)
}

func TestJoinReplacesStaleTimestamp(t *testing.T) {
	req := require.New(t)
	store := storage.OpenMemory()
	tracker := NewTracker(store, nil, 5*time.Minute)
	ctx := context.Background()

	_, err := tracker.Join(ctx, "room:1", "alice", nil)
	req.NoError(err)
	// Simulate a dead previous session.
	req.NoError(store.Presence.Touch(ctx, "room:1", "alice", time.Now().UTC().Add(-10*time.Minute)))

	_, err = tracker.Join(ctx, "room:1", "alice", nil)
	req.NoError(err)

	recs, err := tracker.GetPresence(ctx, "room:1")
	req.NoError(err)
	req.Len(recs, 1, "fresh join must not inherit the dead session's timestamp")
}

func TestGetPresenceFiltersStaleRecords(t *testing.T) {
	req := require.New(t)
	store := storage.OpenMemory()
	tracker := NewTracker(store, nil, 5*time.Minute)
	ctx := context.Background()

	_, err := tracker.Join(ctx, "room:1", "alice", map[string]any{"name": "A"})
	req.NoError(err)

	recs, err := tracker.GetPresence(ctx, "room:1")
	req.NoError(err)
	req.Len(recs, 1)

	// Six minutes pass without a heartbeat: the row still exists but the
	// member must disappear from reads, whatever its stored status says.
	req.NoError(store.Presence.Touch(ctx, "room:1", "alice", time.Now().UTC().Add(-6*time.Minute)))
	recs, err = tracker.GetPresence(ctx, "room:1")
	req.NoError(err)
	req.Empty(recs)

	// A heartbeat revives the member with a refreshed timestamp.
	req.NoError(tracker.Heartbeat(ctx, "room:1", "alice"))
	recs, err = tracker.GetPresence(ctx, "room:1")
	req.NoError(err)
	req.Len(recs, 1)
	req.WithinDuration(time.Now().UTC(), recs[0].LastSeenAt, 5*time.Second)
}

func TestUpdateStatusRequiresJoin(t *testing.T) {
	req := require.New(t)
	tracker := NewTracker(storage.OpenMemory(), nil, 5*time.Minute)

	_, err := tracker.UpdateStatus(context.Background(), "room:1", "ghost", model.StatusAway, nil)
	req.Error(err)
	req.True(errs.IsNotFound(err))
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	req := require.New(t)
	tracker := NewTracker(storage.OpenMemory(), nil, 5*time.Minute)

	_, err := tracker.UpdateStatus(context.Background(), "room:1", "alice", "sleeping", nil)
	req.Error(err)
	req.Equal(400, errs.Code(err))
}

func TestLeaveIsIdempotent(t *testing.T) {
	req := require.New(t)
	tracker := NewTracker(storage.OpenMemory(), nil, 5*time.Minute)
	ctx := context.Background()

	req.NoError(tracker.Leave(ctx, "room:1", "never-joined"))
	req.NoError(tracker.Leave(ctx, "room:1", "never-joined"))
}

func TestLeaveAnnouncesOnlyActualMembers(t *testing.T) {
	req := require.New(t)
	live := &captureDelivery{}
	tracker := NewTracker(storage.OpenMemory(), live, 5*time.Minute)
	ctx := context.Background()

	// No record, no event: subscribers never hear about phantom members.
	req.NoError(tracker.Leave(ctx, "room:1", "ghost"))
	req.Equal(0, live.count())

	_, err := tracker.Join(ctx, "room:1", "alice", nil)
	req.NoError(err)
	req.NoError(tracker.Leave(ctx, "room:1", "alice"))
	req.Equal([]string{FrameUserJoined, FrameUserLeft}, live.frameTypes(t))

	// The second leave finds nothing to announce.
	req.NoError(tracker.Leave(ctx, "room:1", "alice"))
	req.Equal(2, live.count())
}

func TestPresenceEventsAreEphemeral(t *testing.T) {
	req := require.New(t)
	store := storage.OpenMemory()
	live := &captureDelivery{}
	tracker := NewTracker(store, live, 5*time.Minute)
	ctx := context.Background()

	_, err := tracker.Join(ctx, "room:1", "alice", nil)
	req.NoError(err)
	_, err = tracker.UpdateStatus(ctx, "room:1", "alice", model.StatusBusy, nil)
	req.NoError(err)
	req.NoError(tracker.Leave(ctx, "room:1", "alice"))

	req.Equal([]string{FrameUserJoined, FramePresenceUpdated, FrameUserLeft}, live.frameTypes(t))

	// Membership churn never lands in the replay history.
	msgs, err := store.Messages.History(ctx, "room:1", 100)
	req.NoError(err)
	req.Empty(msgs)
}

func TestTrackerWithoutDelivererPersistsOnly(t *testing.T) {
	req := require.New(t)
	tracker := NewTracker(storage.OpenMemory(), nil, 5*time.Minute)

	_, err := tracker.Join(context.Background(), "room:1", "alice", nil)
	req.NoError(err, "no live fan-out configured must degrade, not fail")
}
