package service

import (
	"context"
	"strings"
	"testing"

	"github.com/wyfcoding/clusterd/model"
	"github.com/wyfcoding/clusterd/pagination"
	"github.com/wyfcoding/clusterd/repository/memrepo"
	"github.com/wyfcoding/clusterd/xerrors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedUser(t *testing.T, st *memrepo.Store) uuid.UUID {
	t.Helper()
	u := &model.User{Username: "u" + uuid.NewString()[:8], Password: "x"}
	require.NoError(t, st.Users().Create(context.Background(), u))
	return u.ID
}

func TestChatLifecycle(t *testing.T) {
	ctx := context.Background()
	st := memrepo.New()
	svc := NewChatService(st.Chats())
	owner, other := seedUser(t, st), seedUser(t, st)

	c, err := svc.Create(ctx, owner, "first", nil)
	require.NoError(t, err)

	_, err = svc.Get(ctx, other, c.ID)
	assert.True(t, xerrors.IsType(err, xerrors.ErrNotFound), "chats are private to their owner")

	title := "renamed"
	got, err := svc.UpdatePartial(ctx, owner, c.ID, ChatUpdate{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.Nil(t, got.Description)

	got, err = svc.UpdateFull(ctx, owner, c.ID, "full", "about clusters")
	require.NoError(t, err)
	assert.Equal(t, "about clusters", *got.Description)

	_, err = svc.UpdateFull(ctx, owner, c.ID, "full", " ")
	assert.True(t, xerrors.IsType(err, xerrors.ErrUnprocessable))

	assert.True(t, xerrors.IsType(svc.Delete(ctx, other, c.ID), xerrors.ErrNotFound))
	require.NoError(t, svc.Delete(ctx, owner, c.ID))
	_, err = svc.Get(ctx, owner, c.ID)
	assert.True(t, xerrors.IsType(err, xerrors.ErrNotFound))
}

func TestChatTitleLength(t *testing.T) {
	st := memrepo.New()
	svc := NewChatService(st.Chats())
	owner := seedUser(t, st)

	_, err := svc.Create(context.Background(), owner, "", nil)
	assert.True(t, xerrors.IsType(err, xerrors.ErrUnprocessable))
	_, err = svc.Create(context.Background(), owner, strings.Repeat("a", 257), nil)
	assert.True(t, xerrors.IsType(err, xerrors.ErrUnprocessable))
	_, err = svc.Create(context.Background(), owner, strings.Repeat("a", 256), nil)
	assert.NoError(t, err)
}

func TestChatListPaging(t *testing.T) {
	ctx := context.Background()
	st := memrepo.New()
	svc := NewChatService(st.Chats())
	owner := seedUser(t, st)
	for i := range 5 {
		_, err := svc.Create(ctx, owner, strings.Repeat("c", i+1), nil)
		require.NoError(t, err)
	}

	list, err := svc.List(ctx, owner, pagination.Page{Skip: 1, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = svc.List(ctx, owner, pagination.Page{})
	require.NoError(t, err)
	assert.Len(t, list, 5)

	list, err = svc.List(ctx, seedUser(t, st), pagination.Page{})
	require.NoError(t, err)
	assert.Empty(t, list)
}
