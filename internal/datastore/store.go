// Package datastore keeps cache generations in a SQL database through GORM.
package datastore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ridecheck/ridecheck/internal/datastore/entities"
	"github.com/ridecheck/ridecheck/internal/datastore/repository"
	"github.com/ridecheck/ridecheck/internal/errors"
	"github.com/ridecheck/ridecheck/internal/shell"
)

// Store exposes a CacheRepository as shell.Storage.
type Store struct {
	repo repository.CacheRepository
}

var _ shell.Storage = (*Store)(nil)

// NewStore wraps repo.
func NewStore(repo repository.CacheRepository) *Store {
	return &Store{repo: repo}
}

// Repository returns the underlying repository.
func (s *Store) Repository() repository.CacheRepository {
	return s.repo
}

// Summaries lists every generation with its entry count and body size.
func (s *Store) Summaries(ctx context.Context) ([]repository.GenerationSummary, error) {
	return s.repo.ListGenerations(ctx)
}

func (s *Store) Open(ctx context.Context, name string) (shell.Generation, error) {
	if _, err := s.repo.EnsureGeneration(ctx, name); err != nil {
		return nil, err
	}
	return &generation{name: name, repo: s.repo}, nil
}

func (s *Store) Names(ctx context.Context) ([]string, error) {
	summaries, err := s.repo.ListGenerations(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(summaries))
	for i, g := range summaries {
		names[i] = g.Name
	}
	return names, nil
}

func (s *Store) Delete(ctx context.Context, name string) (bool, error) {
	return s.repo.DeleteGeneration(ctx, name)
}

// generation is a handle on one named generation. The handle stays valid
// after the generation is deleted: reads miss and writes fail.
type generation struct {
	name string
	repo repository.CacheRepository
}

func (g *generation) Name() string { return g.name }

func (g *generation) Match(ctx context.Context, key string) (*shell.Response, error) {
	entry, err := g.repo.GetEntry(ctx, g.name, key)
	if errors.Is(err, repository.ErrEntryNotFound) {
		return nil, shell.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toResponse(entry)
}

func (g *generation) Put(ctx context.Context, key string, resp *shell.Response) error {
	entry, err := toEntry(key, resp)
	if err != nil {
		return err
	}
	err = g.repo.PutEntry(ctx, g.name, entry)
	if errors.Is(err, repository.ErrGenerationNotFound) {
		return shell.ErrGenerationDeleted
	}
	return err
}

func (g *generation) Delete(ctx context.Context, key string) (bool, error) {
	return g.repo.DeleteEntry(ctx, g.name, key)
}

func (g *generation) Keys(ctx context.Context) ([]string, error) {
	keys, err := g.repo.ListKeys(ctx, g.name)
	if errors.Is(err, repository.ErrGenerationNotFound) {
		return nil, nil
	}
	return keys, err
}

func toEntry(key string, resp *shell.Response) (*entities.CacheEntry, error) {
	header, err := json.Marshal(resp.Header)
	if err != nil {
		return nil, fmt.Errorf("encode header for %q: %w", key, err)
	}
	return &entities.CacheEntry{
		Key:      key,
		Status:   resp.Status,
		Header:   string(header),
		Body:     resp.Body,
		StoredAt: resp.StoredAt,
	}, nil
}

func toResponse(entry *entities.CacheEntry) (*shell.Response, error) {
	header := http.Header{}
	if entry.Header != "" && entry.Header != "null" {
		if err := json.Unmarshal([]byte(entry.Header), &header); err != nil {
			return nil, fmt.Errorf("decode header for %q: %w", entry.Key, err)
		}
	}
	return &shell.Response{
		Status:   entry.Status,
		Header:   header,
		Body:     entry.Body,
		StoredAt: entry.StoredAt,
	}, nil
}
