package realtime

import (
	"context"
	"testing"

	"Pulse/module/realtime/model"
	"Pulse/service/storage"
	"Pulse/tools/errs"

	"github.com/stretchr/testify/require"
)

func TestCreateChannelValidation(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(storage.OpenMemory())
	ctx := context.Background()

	_, err := reg.Create(ctx, "", CreateChannelInput{Name: "general"})
	req.Equal(400, errs.Code(err), "missing tenant")

	_, err = reg.Create(ctx, "t1", CreateChannelInput{})
	req.Equal(400, errs.Code(err), "missing name")

	_, err = reg.Create(ctx, "t1", CreateChannelInput{Name: "x", Type: "secret"})
	req.Equal(400, errs.Code(err), "invalid type")

	ch, err := reg.Create(ctx, "t1", CreateChannelInput{Name: "general"})
	req.NoError(err)
	req.NotEmpty(ch.ID)
	req.False(ch.CreatedAt.IsZero())
	req.Equal(model.ChannelPublic, ch.Type, "type defaults to public")
}

func TestGetChannelTenantScoping(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(storage.OpenMemory())
	ctx := context.Background()

	ch, err := reg.Create(ctx, "t1", CreateChannelInput{Name: "general"})
	req.NoError(err)

	got, err := reg.Get(ctx, "t1", ch.ID)
	req.NoError(err)
	req.Equal(ch.ID, got.ID)

	// Another tenant's lookup reads as not-found, never forbidden.
	_, err = reg.Get(ctx, "t2", ch.ID)
	req.True(errs.IsNotFound(err))
}

func TestListChannelsFilterAndPagination(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(storage.OpenMemory())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := reg.Create(ctx, "t1", CreateChannelInput{Name: "pub", Type: model.ChannelPublic})
		req.NoError(err)
	}
	_, err := reg.Create(ctx, "t1", CreateChannelInput{Name: "priv", Type: model.ChannelPrivate})
	req.NoError(err)
	_, err = reg.Create(ctx, "t2", CreateChannelInput{Name: "other"})
	req.NoError(err)

	all, err := reg.List(ctx, "t1", "", 0, 0)
	req.NoError(err)
	req.Len(all, 4, "scoped to the caller's tenant")

	pub, err := reg.List(ctx, "t1", model.ChannelPublic, 0, 0)
	req.NoError(err)
	req.Len(pub, 3)

	page, err := reg.List(ctx, "t1", "", 2, 2)
	req.NoError(err)
	req.Len(page, 2)

	past, err := reg.List(ctx, "t1", "", 2, 10)
	req.NoError(err)
	req.Empty(past)
}
