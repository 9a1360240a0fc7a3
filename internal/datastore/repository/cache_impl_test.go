package repository

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/ridecheck/ridecheck/internal/datastore/entities"
)

// setupCacheTestDB creates an in-memory SQLite database for cache tests.
// Uses shared-cache mode with a single connection so every query sees the
// same database.
func setupCacheTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_foreign_keys=ON"), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err, "failed to open in-memory database")

	sqlDB, err := db.DB()
	require.NoError(t, err, "failed to get sql.DB")
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&entities.CacheGeneration{}, &entities.CacheEntry{}), "failed to migrate cache tables")
	return db
}

func testEntry(key, body string) *entities.CacheEntry {
	return &entities.CacheEntry{
		Key:      key,
		Status:   200,
		Header:   `{"Content-Type":["text/html"]}`,
		Body:     []byte(body),
		StoredAt: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestCacheRepository_EnsureGeneration(t *testing.T) {
	db := setupCacheTestDB(t)
	repo := NewCacheRepository(db)
	ctx := t.Context()

	first, err := repo.EnsureGeneration(ctx, "ridecheck-v1")
	require.NoError(t, err)
	assert.NotZero(t, first.ID)
	assert.Equal(t, "ridecheck-v1", first.Name)

	again, err := repo.EnsureGeneration(ctx, "ridecheck-v1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID, "ensuring an existing generation must not create a new row")

	var count int64
	require.NoError(t, db.Model(&entities.CacheGeneration{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCacheRepository_EnsureGenerationConcurrent(t *testing.T) {
	db := setupCacheTestDB(t)
	repo := NewCacheRepository(db)

	var wg sync.WaitGroup
	ids := make([]uint, 6)
	errs := make([]error, 6)
	for i := range ids {
		wg.Go(func() {
			gen, err := repo.EnsureGeneration(t.Context(), "ridecheck-v2")
			errs[i] = err
			if gen != nil {
				ids[i] = gen.ID
			}
		})
	}
	wg.Wait()

	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
}

func TestCacheRepository_GetGenerationNotFound(t *testing.T) {
	db := setupCacheTestDB(t)
	repo := NewCacheRepository(db)

	_, err := repo.GetGeneration(t.Context(), "ridecheck-v9")
	assert.ErrorIs(t, err, ErrGenerationNotFound)
}

func TestCacheRepository_PutAndGetEntry(t *testing.T) {
	db := setupCacheTestDB(t)
	repo := NewCacheRepository(db)
	ctx := t.Context()

	_, err := repo.EnsureGeneration(ctx, "ridecheck-v1")
	require.NoError(t, err)

	require.NoError(t, repo.PutEntry(ctx, "ridecheck-v1", testEntry("GET /", "<html>v1</html>")))

	got, err := repo.GetEntry(ctx, "ridecheck-v1", "GET /")
	require.NoError(t, err)
	assert.Equal(t, "GET /", got.Key)
	assert.Equal(t, 200, got.Status)
	assert.Equal(t, "<html>v1</html>", string(got.Body))
	assert.Equal(t, entities.HashKey("GET /"), got.KeyHash)
	assert.True(t, got.StoredAt.Equal(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)))

	_, err = repo.GetEntry(ctx, "ridecheck-v1", "GET /login")
	assert.ErrorIs(t, err, ErrEntryNotFound)
	_, err = repo.GetEntry(ctx, "ridecheck-v0", "GET /")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestCacheRepository_PutEntryReplaces(t *testing.T) {
	db := setupCacheTestDB(t)
	repo := NewCacheRepository(db)
	ctx := t.Context()

	_, err := repo.EnsureGeneration(ctx, "ridecheck-v1")
	require.NoError(t, err)

	require.NoError(t, repo.PutEntry(ctx, "ridecheck-v1", testEntry("GET /dashboard", "old")))
	replacement := testEntry("GET /dashboard", "new")
	replacement.Status = 203
	require.NoError(t, repo.PutEntry(ctx, "ridecheck-v1", replacement))

	got, err := repo.GetEntry(ctx, "ridecheck-v1", "GET /dashboard")
	require.NoError(t, err)
	assert.Equal(t, "new", string(got.Body))
	assert.Equal(t, 203, got.Status)

	var count int64
	require.NoError(t, db.Model(&entities.CacheEntry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "a replaced entry must not leave the old row behind")
}

func TestCacheRepository_PutEntryMissingGeneration(t *testing.T) {
	db := setupCacheTestDB(t)
	repo := NewCacheRepository(db)

	err := repo.PutEntry(t.Context(), "ridecheck-v0", testEntry("GET /", "stale"))
	require.ErrorIs(t, err, ErrGenerationNotFound)

	_, err = repo.GetGeneration(t.Context(), "ridecheck-v0")
	assert.ErrorIs(t, err, ErrGenerationNotFound, "writes must not recreate a generation")
}

func TestCacheRepository_EntriesAreScopedToGeneration(t *testing.T) {
	db := setupCacheTestDB(t)
	repo := NewCacheRepository(db)
	ctx := t.Context()

	for _, name := range []string{"ridecheck-v1", "ridecheck-v2"} {
		_, err := repo.EnsureGeneration(ctx, name)
		require.NoError(t, err)
	}
	require.NoError(t, repo.PutEntry(ctx, "ridecheck-v1", testEntry("GET /", "v1")))
	require.NoError(t, repo.PutEntry(ctx, "ridecheck-v2", testEntry("GET /", "v2")))

	v1, err := repo.GetEntry(ctx, "ridecheck-v1", "GET /")
	require.NoError(t, err)
	v2, err := repo.GetEntry(ctx, "ridecheck-v2", "GET /")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(v1.Body))
	assert.Equal(t, "v2", string(v2.Body))
}

func TestCacheRepository_DeleteEntry(t *testing.T) {
	db := setupCacheTestDB(t)
	repo := NewCacheRepository(db)
	ctx := t.Context()

	_, err := repo.EnsureGeneration(ctx, "ridecheck-v1")
	require.NoError(t, err)
	require.NoError(t, repo.PutEntry(ctx, "ridecheck-v1", testEntry("GET /vehicles", "list")))

	deleted, err := repo.DeleteEntry(ctx, "ridecheck-v1", "GET /vehicles")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.DeleteEntry(ctx, "ridecheck-v1", "GET /vehicles")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestCacheRepository_ListKeys(t *testing.T) {
	db := setupCacheTestDB(t)
	repo := NewCacheRepository(db)
	ctx := t.Context()

	_, err := repo.EnsureGeneration(ctx, "ridecheck-v1")
	require.NoError(t, err)
	for _, key := range []string{"GET /vehicles", "GET /", "GET /admin"} {
		require.NoError(t, repo.PutEntry(ctx, "ridecheck-v1", testEntry(key, key)))
	}

	keys, err := repo.ListKeys(ctx, "ridecheck-v1")
	require.NoError(t, err)
	assert.Equal(t, []string{"GET /", "GET /admin", "GET /vehicles"}, keys)

	_, err = repo.ListKeys(ctx, "ridecheck-v7")
	assert.ErrorIs(t, err, ErrGenerationNotFound)
}

func TestCacheRepository_ListAndDeleteGenerations(t *testing.T) {
	db := setupCacheTestDB(t)
	repo := NewCacheRepository(db)
	ctx := t.Context()

	for _, name := range []string{"ridecheck-v2", "ridecheck-v1"} {
		_, err := repo.EnsureGeneration(ctx, name)
		require.NoError(t, err)
	}
	require.NoError(t, repo.PutEntry(ctx, "ridecheck-v1", testEntry("GET /", "12345")))
	require.NoError(t, repo.PutEntry(ctx, "ridecheck-v1", testEntry("GET /login", "123")))

	summaries, err := repo.ListGenerations(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "ridecheck-v1", summaries[0].Name)
	assert.Equal(t, int64(2), summaries[0].Entries)
	assert.Equal(t, int64(8), summaries[0].Bytes)
	assert.Equal(t, "ridecheck-v2", summaries[1].Name)
	assert.Equal(t, int64(0), summaries[1].Entries)

	deleted, err := repo.DeleteGeneration(ctx, "ridecheck-v1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.DeleteGeneration(ctx, "ridecheck-v1")
	require.NoError(t, err)
	assert.False(t, deleted)

	var entries int64
	require.NoError(t, db.Model(&entities.CacheEntry{}).Count(&entries).Error)
	assert.Zero(t, entries, "deleting a generation removes its entries")

	summaries, err = repo.ListGenerations(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "ridecheck-v2", summaries[0].Name)
}
