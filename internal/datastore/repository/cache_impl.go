package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ridecheck/ridecheck/internal/datastore/entities"
	"github.com/ridecheck/ridecheck/internal/errors"
)

// cacheRepository implements CacheRepository.
type cacheRepository struct {
	db *gorm.DB
}

// NewCacheRepository creates a new CacheRepository.
func NewCacheRepository(db *gorm.DB) CacheRepository {
	return &cacheRepository{db: db}
}

// EnsureGeneration returns the named generation, creating it if needed.
// Concurrent callers converge on the same row.
func (r *cacheRepository) EnsureGeneration(ctx context.Context, name string) (*entities.CacheGeneration, error) {
	gen := entities.CacheGeneration{Name: name}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).
		Create(&gen).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create cache generation %q: %w", name, err)
	}
	return r.GetGeneration(ctx, name)
}

// GetGeneration returns ErrGenerationNotFound if name does not exist.
func (r *cacheRepository) GetGeneration(ctx context.Context, name string) (*entities.CacheGeneration, error) {
	return findGeneration(r.db.WithContext(ctx), name)
}

func findGeneration(db *gorm.DB, name string) (*entities.CacheGeneration, error) {
	var gen entities.CacheGeneration
	if err := db.Where("name = ?", name).First(&gen).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGenerationNotFound
		}
		return nil, fmt.Errorf("failed to get cache generation %q: %w", name, err)
	}
	return &gen, nil
}

// ListGenerations returns every generation ordered by name.
func (r *cacheRepository) ListGenerations(ctx context.Context) ([]GenerationSummary, error) {
	var out []GenerationSummary
	err := r.db.WithContext(ctx).
		Model(&entities.CacheGeneration{}).
		Select("cache_generations.name AS name, cache_generations.created_at AS created_at, " +
			"COUNT(cache_entries.id) AS entries, COALESCE(SUM(LENGTH(cache_entries.body)), 0) AS bytes").
		Joins("LEFT JOIN cache_entries ON cache_entries.generation_id = cache_generations.id").
		Group("cache_generations.id, cache_generations.name, cache_generations.created_at").
		Order("cache_generations.name ASC").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cache generations: %w", err)
	}
	return out, nil
}

// DeleteGeneration removes a generation and all of its entries. It reports
// false if the generation did not exist.
func (r *cacheRepository) DeleteGeneration(ctx context.Context, name string) (bool, error) {
	deleted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		gen, err := findGeneration(tx, name)
		if errors.Is(err, ErrGenerationNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.Where("generation_id = ?", gen.ID).Delete(&entities.CacheEntry{}).Error; err != nil {
			return fmt.Errorf("failed to delete entries of %q: %w", name, err)
		}
		if err := tx.Delete(gen).Error; err != nil {
			return fmt.Errorf("failed to delete cache generation %q: %w", name, err)
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

func (r *cacheRepository) generationID(db *gorm.DB) *gorm.DB {
	return db.Model(&entities.CacheGeneration{}).Select("id")
}

// GetEntry returns ErrEntryNotFound when either the generation or the key
// is missing.
func (r *cacheRepository) GetEntry(ctx context.Context, generation, key string) (*entities.CacheEntry, error) {
	db := r.db.WithContext(ctx)
	var entry entities.CacheEntry
	err := db.
		Where("generation_id = (?)", r.generationID(db).Where("name = ?", generation)).
		Where("key_hash = ?", entities.HashKey(key)).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get cache entry %q: %w", key, err)
	}
	return &entry, nil
}

// PutEntry inserts or replaces the entry for entry.Key. Writing into a
// generation that does not exist returns ErrGenerationNotFound; generations
// are never recreated implicitly, so a write racing an activation cannot
// resurrect a deleted one.
func (r *cacheRepository) PutEntry(ctx context.Context, generation string, entry *entities.CacheEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		gen, err := findGeneration(tx, generation)
		if err != nil {
			return err
		}
		entry.ID = 0
		entry.GenerationID = gen.ID
		entry.KeyHash = entities.HashKey(entry.Key)
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "generation_id"}, {Name: "key_hash"}},
			DoUpdates: clause.AssignmentColumns([]string{"request_key", "status", "header", "body", "stored_at", "updated_at"}),
		}).Create(entry).Error
		if err != nil {
			return fmt.Errorf("failed to store cache entry %q: %w", entry.Key, err)
		}
		return nil
	})
}

func (r *cacheRepository) DeleteEntry(ctx context.Context, generation, key string) (bool, error) {
	db := r.db.WithContext(ctx)
	result := db.
		Where("generation_id = (?)", r.generationID(db).Where("name = ?", generation)).
		Where("key_hash = ?", entities.HashKey(key)).
		Delete(&entities.CacheEntry{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete cache entry %q: %w", key, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ListKeys returns the request keys stored in a generation, sorted.
func (r *cacheRepository) ListKeys(ctx context.Context, generation string) ([]string, error) {
	db := r.db.WithContext(ctx)
	gen, err := findGeneration(db, generation)
	if err != nil {
		return nil, err
	}
	var keys []string
	err = db.Model(&entities.CacheEntry{}).
		Where("generation_id = ?", gen.ID).
		Order("request_key ASC").
		Pluck("request_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list keys of %q: %w", generation, err)
	}
	return keys, nil
}
