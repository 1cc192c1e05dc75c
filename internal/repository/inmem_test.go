package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalbot-backend/internal/domain"
)

func TestInMemoryStore_SignalsAndCounters(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 12; i++ {
		sig := &domain.Signal{
			Symbol:    "EURUSD",
			Direction: domain.DirectionBuy,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.SaveSignal(ctx, sig))
		assert.Equal(t, int64(i+1), sig.ID)
	}

	recent, err := store.RecentSignals(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 10)
	assert.Equal(t, int64(12), recent[0].ID)
	assert.Equal(t, int64(3), recent[9].ID)

	st, err := store.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, st.TotalSignalsToday)

	ok, err := store.MarkSignalExecuted(ctx, 4)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.MarkSignalExecuted(ctx, 4)
	require.NoError(t, err)
	assert.False(t, ok)

	st, err = store.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalTradesToday)

	_, err = store.MarkSignalExecuted(ctx, 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.ResetDailyCounters(ctx))
	st, err = store.GetStatus(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.TotalSignalsToday)
	assert.Zero(t, st.TotalTradesToday)
}

func TestInMemoryStore_PresetKeepsDescription(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	require.NoError(t, store.SavePreset(ctx, domain.Preset{
		Name:        "STRATEGY_SCALPING",
		Description: "Fast entries",
		Parameters:  map[string]string{"TimeFrame": "1"},
	}))
	require.NoError(t, store.SavePreset(ctx, domain.Preset{
		Name:       "STRATEGY_SCALPING",
		Parameters: map[string]string{"TimeFrame": "5"},
	}))

	p, err := store.GetPreset(ctx, "STRATEGY_SCALPING")
	require.NoError(t, err)
	assert.Equal(t, "Fast entries", p.Description)
	assert.Equal(t, "5", p.Parameters["TimeFrame"])

	p.Parameters["TimeFrame"] = "mutated"
	again, err := store.GetPreset(ctx, "STRATEGY_SCALPING")
	require.NoError(t, err)
	assert.Equal(t, "5", again.Parameters["TimeFrame"])

	_, err = store.GetPreset(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInMemoryStore_UpdateStatusStampsLastUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	now := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	st, err := store.GetStatus(ctx)
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, "1.0", st.BotVersion)

	now = now.Add(time.Hour)
	require.NoError(t, store.UpdateStatus(ctx, domain.StatusPatch{}))
	st, err = store.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, now, st.LastUpdate)
}

func TestTokenRepository(t *testing.T) {
	repo := NewTokenRepository()
	repo.RegisterToken("b", "ios", time.Now())
	repo.RegisterToken("a", "android", time.Now())
	repo.RegisterToken("a", "android", time.Now())

	assert.Equal(t, 2, repo.Count())
	assert.Equal(t, []string{"a", "b"}, repo.Tokens())
	assert.Equal(t, 1, repo.Prune([]string{"b", "zzz"}))
	assert.True(t, repo.UnregisterToken("a"))
	assert.False(t, repo.UnregisterToken("a"))
	assert.Zero(t, repo.Count())
}

func TestInMemoryStore_RecentSignalsFollowStoreOrder(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveSignal(ctx, &domain.Signal{Symbol: "EURUSD", Direction: domain.DirectionBuy, CreatedAt: now}))
	older := &domain.Signal{Symbol: "GBPUSD", Direction: domain.DirectionSell, CreatedAt: now.Add(-time.Hour)}
	require.NoError(t, store.SaveSignal(ctx, older))

	recent, err := store.RecentSignals(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, older.ID, recent[0].ID)
	assert.True(t, recent[0].CreatedAt.Equal(now.Add(-time.Hour)))
}

func TestInMemoryStore_SignalExists(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	at := time.Date(2024, 6, 3, 14, 30, 0, 0, time.UTC)
	sig := domain.Signal{Symbol: "EURUSD", Direction: domain.DirectionBuy, EntryPrice: 1.085, CreatedAt: at}
	require.NoError(t, store.SaveSignal(ctx, &sig))

	ok, err := store.SignalExists(ctx, domain.Signal{Symbol: "EURUSD", Direction: domain.DirectionBuy, EntryPrice: 1.085, CreatedAt: at})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SignalExists(ctx, domain.Signal{Symbol: "EURUSD", Direction: domain.DirectionBuy, EntryPrice: 1.085, CreatedAt: at.Add(time.Second)})
	require.NoError(t, err)
	assert.False(t, ok)
}
