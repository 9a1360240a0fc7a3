package datastore

import (
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridecheck/ridecheck/internal/conf"
	"github.com/ridecheck/ridecheck/internal/shell"
)

func openTestStorage(t *testing.T) shell.Storage {
	t.Helper()
	storage, closeFn, err := NewStorage(conf.StorageSettings{
		Type: conf.StorageSQLite,
		Path: filepath.Join(t.TempDir(), "cache.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })
	return storage
}

func TestStore_RoundTrip(t *testing.T) {
	t.Parallel()

	storage := openTestStorage(t)
	ctx := t.Context()

	gen, err := storage.Open(ctx, "ridecheck-v1")
	require.NoError(t, err)
	assert.Equal(t, "ridecheck-v1", gen.Name())

	stored := &shell.Response{
		Status: http.StatusOK,
		Header: http.Header{
			"Content-Type": {"application/manifest+json"},
			"Vary":         {"Accept", "Accept-Encoding"},
		},
		Body:     []byte(`{"name":"RideCheck","start_url":"/"}`),
		StoredAt: time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, gen.Put(ctx, "GET /manifest.json", stored))

	got, err := gen.Match(ctx, "GET /manifest.json")
	require.NoError(t, err)
	assert.Equal(t, stored.Status, got.Status)
	assert.Equal(t, stored.Header, got.Header)
	assert.Equal(t, stored.Body, got.Body)
	assert.True(t, stored.StoredAt.Equal(got.StoredAt))

	_, err = gen.Match(ctx, "GET /missing")
	assert.ErrorIs(t, err, shell.ErrNotFound)

	keys, err := gen.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"GET /manifest.json"}, keys)
}

func TestStore_DeleteGeneration(t *testing.T) {
	t.Parallel()

	storage := openTestStorage(t)
	ctx := t.Context()

	old, err := storage.Open(ctx, "ridecheck-v1")
	require.NoError(t, err)
	require.NoError(t, old.Put(ctx, "GET /", &shell.Response{Status: http.StatusOK, Body: []byte("v1")}))
	_, err = storage.Open(ctx, "ridecheck-v2")
	require.NoError(t, err)

	names, err := storage.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ridecheck-v1", "ridecheck-v2"}, names)

	deleted, err := storage.Delete(ctx, "ridecheck-v1")
	require.NoError(t, err)
	assert.True(t, deleted)

	names, err = storage.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ridecheck-v2"}, names)

	// The stale handle misses on read and refuses writes.
	_, err = old.Match(ctx, "GET /")
	require.ErrorIs(t, err, shell.ErrNotFound)
	require.ErrorIs(t, old.Put(ctx, "GET /", &shell.Response{Status: http.StatusOK}), shell.ErrGenerationDeleted)
	keys, err := old.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStore_DrivesController(t *testing.T) {
	t.Parallel()

	storage := openTestStorage(t)
	ctx := t.Context()

	stale, err := storage.Open(ctx, "ridecheck-v0")
	require.NoError(t, err)
	require.NoError(t, stale.Put(ctx, "GET /", &shell.Response{Status: http.StatusOK, Body: []byte("v0")}))

	fetcher := staticFetcher{
		"GET /":              "<html>shell</html>",
		"GET /manifest.json": `{"name":"RideCheck"}`,
	}
	ctrl, err := shell.NewController(shell.Config{
		CacheName: "ridecheck-v1",
		Manifest:  []string{"/", "/manifest.json"},
	}, storage, fetcher)
	require.NoError(t, err)

	require.NoError(t, ctrl.OnInstall(ctx))
	require.NoError(t, ctrl.SkipWaiting())
	require.NoError(t, ctrl.OnActivate(ctx))

	names, err := storage.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ridecheck-v1"}, names)

	req, err := http.NewRequest(http.MethodGet, "/manifest.json", http.NoBody)
	require.NoError(t, err)
	resp, err := ctrl.Route(ctx, req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"RideCheck"}`, string(resp.Body))
	ctrl.Flush()
}

func TestNewStorage_Memory(t *testing.T) {
	t.Parallel()

	storage, closeFn, err := NewStorage(conf.StorageSettings{Type: conf.StorageMemory}, nil)
	require.NoError(t, err)
	require.NoError(t, closeFn())
	assert.IsType(t, &shell.MemoryStorage{}, storage)
}

func TestOpen_UnsupportedType(t *testing.T) {
	t.Parallel()

	_, err := Open(conf.StorageSettings{Type: "postgres"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type")
}
