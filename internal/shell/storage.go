package shell

import (
	"context"

	"github.com/ridecheck/ridecheck/internal/errors"
)

var (
	// ErrNotFound is returned by Generation.Match when no entry exists for a key.
	ErrNotFound = errors.New("cache entry not found")
	// ErrGenerationDeleted is returned when writing into a generation that has been deleted.
	ErrGenerationDeleted = errors.New("cache generation deleted")
)

// Storage is the durable set of named cache generations.
// Every mutation is a single keyed operation; implementations must be safe
// for concurrent use.
type Storage interface {
	// Open returns the generation with the given name, creating it if needed.
	Open(ctx context.Context, name string) (Generation, error)
	// Names lists every existing generation.
	Names(ctx context.Context) ([]string, error)
	// Delete removes a generation and all of its entries.
	Delete(ctx context.Context, name string) (bool, error)
}

// Generation is one named cache instance tied to a deployed version.
type Generation interface {
	Name() string
	// Match returns a copy of the stored response or ErrNotFound.
	Match(ctx context.Context, key string) (*Response, error)
	// Put replaces the entry for key.
	Put(ctx context.Context, key string, resp *Response) error
	Delete(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context) ([]string, error)
}
