package idempotency_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pandora-labs/extproc-gateway/internal/idempotency"
)

func newTestEngine(t *testing.T) *idempotency.Engine {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := idempotency.NewRedisStore(client, "extproc:idemp:", nil, nil)
	return idempotency.NewEngine(store, 10*time.Second, 24*time.Hour, nil)
}

func TestEngine_Guards(t *testing.T) {
	e := newTestEngine(t)
	assert.True(t, e.Guards("POST"))
	assert.False(t, e.Guards("GET"))
	assert.False(t, e.Guards("PUT"))
}

func TestKey_PrefersExplicitOverDigest(t *testing.T) {
	assert.Equal(t, "K", idempotency.Key("K", "digest-value"))
	assert.Equal(t, "digest-value", idempotency.Key("", "digest-value"))
}

// Scenario 3: Idempotency first POST — store empty.
func TestEngine_FirstPOST_CreatesSentinel(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	entry, won := e.CreateSentinel(ctx, "K", "acme", "/orders", "digest")
	require.True(t, won)
	assert.Equal(t, idempotency.StatusSentinel, entry.Status)

	loaded, ok := e.Lookup(ctx, "K")
	require.True(t, ok)
	assert.True(t, loaded.IsSentinel())
}

// Scenario 4: Idempotency duplicate in-flight — pre-populated sentinel.
func TestEngine_DuplicateInFlight_LosesRace(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, won := e.CreateSentinel(ctx, "K", "acme", "/orders", "digest")
	require.True(t, won)

	_, wonAgain := e.CreateSentinel(ctx, "K", "acme", "/orders", "digest")
	assert.False(t, wonAgain)

	loaded, ok := e.Lookup(ctx, "K")
	require.True(t, ok)
	assert.True(t, loaded.IsSentinel())
}

// Scenario 5: Idempotency replay completed — pre-populated completed entry.
func TestEngine_ReplayCompleted(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	completed := &idempotency.CachedEntry{
		Key:    "K",
		Status: 201,
		Headers: []idempotency.HeaderKV{
			{Key: "Location", Value: "/x"},
		},
		Body: []byte("ok"),
	}
	e.Store.Set(ctx, "K", completed, 24*time.Hour)

	loaded, ok := e.Lookup(ctx, "K")
	require.True(t, ok)
	assert.False(t, loaded.IsSentinel())
	assert.Equal(t, 201, loaded.Status)
	assert.Equal(t, []byte("ok"), loaded.Body)
	assert.Contains(t, loaded.Headers, idempotency.HeaderKV{Key: "Location", Value: "/x"})
}

func TestEngine_ClearSentinel_OnlyWhenStillSentinel(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.CreateSentinel(ctx, "K", "acme", "/orders", "digest")
	e.ClearSentinel(ctx, "K")

	_, ok := e.Lookup(ctx, "K")
	assert.False(t, ok)
}

func TestEngine_ClearSentinel_LeavesCompletedEntryAlone(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	completed := &idempotency.CachedEntry{Key: "K", Status: 200}
	e.Store.Set(ctx, "K", completed, 24*time.Hour)

	e.ClearSentinel(ctx, "K")

	loaded, ok := e.Lookup(ctx, "K")
	require.True(t, ok)
	assert.Equal(t, 200, loaded.Status)
}

func TestEngine_Complete_OnlyCachesSuccessStatuses(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	failed := &idempotency.CachedEntry{Key: "K", Status: 500}
	e.Complete(ctx, "K", failed, []byte("ignored"))

	_, ok := e.Lookup(ctx, "K")
	assert.False(t, ok)

	succeeded := &idempotency.CachedEntry{Key: "K2", Status: 201}
	e.Complete(ctx, "K2", succeeded, []byte("ok"))

	loaded, ok := e.Lookup(ctx, "K2")
	require.True(t, ok)
	assert.Equal(t, []byte("ok"), loaded.Body)
}
