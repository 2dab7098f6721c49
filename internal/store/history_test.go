package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elektro-code/CatanTournamentBot/internal/registry"
	"github.com/elektro-code/CatanTournamentBot/internal/score"
)

func openTestStore(t *testing.T) *History {
	t.Helper()
	h, err := Open(filepath.Join(t.TempDir(), "history.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestSaveAndGet(t *testing.T) {
	h := openTestStore(t)
	ctx := context.Background()

	in := registry.Completion{
		ID:     "rec1",
		GameID: "game1",
		Standings: []score.Standing{
			{Name: "Alice", Points: 10, Winner: true},
			{Name: "Bob", Points: 6},
		},
		Channel:   "table-7",
		Reason:    "success",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, h.Save(ctx, in))

	got, found, err := h.Get(ctx, "game1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, in.ID, got.ID)
	assert.Equal(t, in.Standings, got.Standings)
	assert.Equal(t, "table-7", got.Channel)
	assert.False(t, got.Partial)
}

func TestGetMissing(t *testing.T) {
	h := openTestStore(t)

	_, found, err := h.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSaveReplacesExisting(t *testing.T) {
	h := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, h.Save(ctx, registry.Completion{
		ID: "old", GameID: "game1", Partial: true, Reason: "timeout", CreatedAt: time.Now(),
	}))
	require.NoError(t, h.Save(ctx, registry.Completion{
		ID: "new", GameID: "game1", Reason: "success", CreatedAt: time.Now(),
	}))

	got, found, err := h.Get(ctx, "game1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "new", got.ID)
	assert.False(t, got.Partial)
}

func TestPartialRecordRoundTrip(t *testing.T) {
	h := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, h.Save(ctx, registry.Completion{
		ID: "rec1", GameID: "game1", Partial: true, Reason: "timeout", CreatedAt: time.Now(),
	}))

	got, found, err := h.Get(ctx, "game1")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.Partial)
	assert.Equal(t, "timeout", got.Reason)
	assert.Empty(t, got.Standings)
}

func TestRecentOrdering(t *testing.T) {
	h := openTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		require.NoError(t, h.Save(ctx, registry.Completion{
			ID:        "rec",
			GameID:    []string{"a", "b", "c"}[i],
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	recent, err := h.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].GameID)
	assert.Equal(t, "b", recent[1].GameID)
}
