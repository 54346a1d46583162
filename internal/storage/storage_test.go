package storage_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockadesystems/caconsole/internal/model"
	"github.com/blockadesystems/caconsole/internal/storage"
	"github.com/blockadesystems/caconsole/internal/testutils"
)

func newAction(op model.Operation, caID, serial string, at time.Time) *model.Action {
	return &model.Action{
		ID:           uuid.NewString(),
		RequestID:    "req-" + serial,
		Actor:        "alice",
		Operation:    op,
		CAID:         caID,
		SerialNumber: serial,
		Succeeded:    true,
		CreatedAt:    at,
	}
}

// exerciseStorage runs the behaviour every Storage implementation shares.
func exerciseStorage(t *testing.T, store storage.Storage) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := newAction(model.OperationRevoke, "1001", "2001", base)
	second := newAction(model.OperationUnrevoke, "1001", "2001", base.Add(time.Minute))
	failed := newAction(model.OperationIssueCertificate, "1002", "", base.Add(2*time.Minute))
	failed.Succeeded = false
	failed.Error = "console: issue_certificate on CA 1002 failed: boom"

	for _, a := range []*model.Action{first, second, failed} {
		require.NoError(t, store.SaveAction(ctx, a))
	}

	all, err := store.ListActions(ctx, storage.ActionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, failed.ID, all[0].ID, "newest first")
	assert.Equal(t, second.ID, all[1].ID)
	assert.Equal(t, first.ID, all[2].ID)
	assert.False(t, all[0].Succeeded)
	assert.Equal(t, failed.Error, all[0].Error)
	assert.Equal(t, "alice", all[2].Actor)
	assert.Equal(t, "req-2001", all[2].RequestID)
	assert.Equal(t, model.OperationRevoke, all[2].Operation)
	assert.True(t, first.CreatedAt.Equal(all[2].CreatedAt))

	byCA, err := store.ListActions(ctx, storage.ActionFilter{CAID: "1001"})
	require.NoError(t, err)
	require.Len(t, byCA, 2)
	for _, a := range byCA {
		assert.Equal(t, "1001", a.CAID)
	}

	limited, err := store.ListActions(ctx, storage.ActionFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, failed.ID, limited[0].ID)

	assert.Error(t, store.SaveAction(ctx, first), "duplicate ids are rejected")
	assert.ErrorIs(t, store.SaveAction(ctx, &model.Action{}), storage.ErrInvalidAction)
	assert.ErrorIs(t, store.SaveAction(ctx, nil), storage.ErrInvalidAction)
}

func TestMemoryStorage(t *testing.T) {
	store := storage.NewMemoryStorage()
	defer store.Close()
	exerciseStorage(t, store)
}

func TestMemoryStorage_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	a := newAction(model.OperationRevoke, "1001", "2001", time.Now())
	require.NoError(t, store.SaveAction(ctx, a))
	a.Actor = "mallory"

	listed, err := store.ListActions(ctx, storage.ActionFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "alice", listed[0].Actor)
	listed[0].Actor = "eve"

	again, err := store.ListActions(ctx, storage.ActionFilter{})
	require.NoError(t, err)
	assert.Equal(t, "alice", again[0].Actor)
}

func TestMemoryStorage_LimitBounds(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	base := time.Now()
	for i := 0; i < storage.DefaultListLimit+5; i++ {
		require.NoError(t, store.SaveAction(ctx, newAction(model.OperationRevoke, "1001", fmt.Sprint(i), base.Add(time.Duration(i)*time.Second))))
	}

	page, err := store.ListActions(ctx, storage.ActionFilter{Limit: -1})
	require.NoError(t, err)
	assert.Len(t, page, storage.DefaultListLimit)

	page, err = store.ListActions(ctx, storage.ActionFilter{Limit: storage.MaxListLimit + 1})
	require.NoError(t, err)
	assert.Len(t, page, storage.DefaultListLimit+5)
}

func TestNewStorage_Factory(t *testing.T) {
	store, err := storage.NewStorage("memory", "", "", "", "", 0, "", "", "", "")
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryStorage{}, store)

	_, err = storage.NewStorage("etcd", "", "", "", "", 0, "", "", "", "")
	assert.Error(t, err)
}

func TestPostgreSQLStorage(t *testing.T) {
	dsn := testutils.SetupTestDB(t)

	store, err := storage.NewPostgreSQLStorageFromDSN(dsn)
	require.NoError(t, err)
	defer store.Close()

	exerciseStorage(t, store)
}
