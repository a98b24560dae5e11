package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/vladcalin/emerald/internal/domain"
	"github.com/vladcalin/emerald/internal/registry"
	"github.com/vladcalin/emerald/internal/registry/registrytest"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	store := NewStore(client, 0)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestStore(t *testing.T) {
	registrytest.Run(t, func(t *testing.T) registry.Repository {
		store, _ := newTestStore(t)
		return store
	})
}

func TestStore_Layout(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	ep := domain.Endpoint{Host: "10.0.0.1", Port: 8080}

	_, err := store.Upsert(ctx, "billing", ep, registrytest.Base)
	require.NoError(t, err)
	require.NoError(t, store.CommitSweep(ctx, map[string]bool{ep.Key(): true}, nil))

	require.True(t, mr.Exists(ServiceKey("10.0.0.1:8080")))
	members, err := mr.Members(AllServicesKey())
	require.NoError(t, err)
	require.Equal(t, []string{"10.0.0.1:8080"}, members)
	require.Equal(t, "1", mr.HGet(AliveKey(), "10.0.0.1:8080"))
}

func TestStore_UpsertReturnsCachedFlag(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	ep := domain.Endpoint{Host: "10.0.0.1", Port: 8080}

	_, err := store.Upsert(ctx, "billing", ep, registrytest.Base)
	require.NoError(t, err)
	require.NoError(t, store.CommitSweep(ctx, map[string]bool{ep.Key(): false}, nil))

	svc, err := store.Upsert(ctx, "billing", ep, registrytest.Base.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, svc.LastKnownAlive)
	require.False(t, *svc.LastKnownAlive)
}

func TestStore_StorageUnavailable(t *testing.T) {
	store, mr := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	mr.Close()

	_, err := store.Upsert(ctx, "billing", domain.Endpoint{Host: "h", Port: 1}, registrytest.Base)
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)

	_, err = store.All(ctx)
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)

	_, err = store.Count(ctx)
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)

	require.ErrorIs(t, store.Ping(ctx), domain.ErrStorageUnavailable)
}
