// Package repository persists cache generations and their entries.
package repository

import (
	"context"
	"time"

	"github.com/ridecheck/ridecheck/internal/datastore/entities"
	"github.com/ridecheck/ridecheck/internal/errors"
)

var (
	ErrGenerationNotFound = errors.New("cache generation not found")
	ErrEntryNotFound      = errors.New("cache entry not found")
)

// CacheRepository handles generation and entry storage.
type CacheRepository interface {
	// Generations
	EnsureGeneration(ctx context.Context, name string) (*entities.CacheGeneration, error)
	GetGeneration(ctx context.Context, name string) (*entities.CacheGeneration, error)
	ListGenerations(ctx context.Context) ([]GenerationSummary, error)
	DeleteGeneration(ctx context.Context, name string) (bool, error)

	// Entries
	GetEntry(ctx context.Context, generation, key string) (*entities.CacheEntry, error)
	PutEntry(ctx context.Context, generation string, entry *entities.CacheEntry) error
	DeleteEntry(ctx context.Context, generation, key string) (bool, error)
	ListKeys(ctx context.Context, generation string) ([]string, error)
}

// GenerationSummary is a generation with its entry statistics.
type GenerationSummary struct {
	Name      string    `json:"name"`
	Entries   int64     `json:"entries"`
	Bytes     int64     `json:"bytes"`
	CreatedAt time.Time `json:"created_at"`
}
