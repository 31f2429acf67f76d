package realtime

import (
	"testing"
	"time"

	"Pulse/module/realtime/model"
	"Pulse/tools/errs"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestParseFrame(t *testing.T) {
	req := require.New(t)

	f, err := ParseFrame([]byte(`{"type":"broadcast","channel":"room:1","event":"chat:message","payload":{"text":"hi"},"exclude_self":true}`))
	req.NoError(err)
	req.Equal(FrameBroadcast, f.Type)
	req.Equal("room:1", f.Channel)
	req.Equal("chat:message", f.Event)
	req.Equal("hi", f.Payload["text"])
	req.True(f.ExcludeSelf)

	_, err = ParseFrame([]byte(`{"channel":"room:1"}`))
	req.Error(err, "type is mandatory")

	_, err = ParseFrame([]byte(`not json`))
	req.Error(err)
}

func TestMessageFrameShape(t *testing.T) {
	req := require.New(t)
	msg := &model.Message{
		ID:        "m1",
		ChannelID: "room:1",
		UserID:    "alice",
		Event:     "chat:message",
		Payload:   map[string]any{"text": "hi"},
		CreatedAt: time.Now().UTC(),
	}

	f, err := ParseFrame(messageFrame(msg).Encode())
	req.NoError(err)
	req.Equal(FrameMessage, f.Type)
	req.Equal("room:1", f.Channel)
	req.Equal("chat:message", f.Event)
	req.Equal("alice", f.Payload["user_id"])
}

func TestErrorFrameCarriesTaxonomyCode(t *testing.T) {
	req := require.New(t)

	f, err := ParseFrame(errorFrame("room:1", errs.ErrNotFound.WithDetail("channel")).Encode())
	req.NoError(err)
	req.Equal(FrameError, f.Type)
	req.EqualValues(404, f.Payload["code"])
	req.Equal("channel", f.Payload["detail"])
}

func TestErrorFrameUnwrapsWrappedCode(t *testing.T) {
	req := require.New(t)

	// Storage errors arrive wrapped; the taxonomy code must survive.
	wrapped := errors.Wrap(errs.ErrNotFound.WithDetail("presence record"), "lookup presence")
	f, err := ParseFrame(errorFrame("room:1", wrapped).Encode())
	req.NoError(err)
	req.EqualValues(404, f.Payload["code"])

	f, err = ParseFrame(errorFrame("room:1", errors.New("disk on fire")).Encode())
	req.NoError(err)
	req.EqualValues(500, f.Payload["code"])
}
