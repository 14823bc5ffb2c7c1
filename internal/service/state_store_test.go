package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ashuthecoder/cybervantage-api/internal/simulation"
)

func TestRedisStateStoreRoundTrip(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	store := NewStateStore(client, time.Hour)
	ctx := context.Background()

	state, err := store.Load(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, simulation.StageUninitialized, state.Stage())

	active := uint(12)
	saved := simulation.Fresh("sim-a")
	saved.Phase = simulation.Phase2
	saved.CurrentPredefinedIndex = simulation.PredefinedCount + 1
	saved.ActiveGeneratedEmailID = &active
	require.NoError(t, store.Save(ctx, 5, saved))
	require.Equal(t, time.Hour, server.TTL(stateKey(5)))

	loaded, err := store.Load(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, saved, loaded)

	require.NoError(t, store.Clear(ctx, 5))
	require.False(t, server.Exists(stateKey(5)))
}

func TestRedisStateStoreCorruptEntry(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()
	require.NoError(t, server.Set(stateKey(3), "{not json"))

	_, err := NewStateStore(client, 0).Load(context.Background(), 3)
	require.ErrorIs(t, err, ErrStateDecode)
}

func TestMemoryStateStoreFallback(t *testing.T) {
	store := NewStateStore(nil, 0)
	_, ok := store.(*MemoryStateStore)
	require.True(t, ok)

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, 1, simulation.Fresh("sim-m")))
	loaded, err := store.Load(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "sim-m", loaded.SimulationID)

	require.NoError(t, store.Clear(ctx, 1))
	loaded, err = store.Load(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, simulation.State{}, loaded)
}
