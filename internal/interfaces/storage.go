package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/rogo/internal/models"
)

// ErrKeyNotFound is returned when a key is not found in the key/value store
var ErrKeyNotFound = errors.New("key not found")

// KeyValuePair represents a single key/value pair with metadata
type KeyValuePair struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// KeyValueStorage defines operations for generic key/value storage. Keys are
// normalized to lowercase; lookups of absent keys return ErrKeyNotFound.
type KeyValueStorage interface {
	// Get retrieves a value by key.
	Get(ctx context.Context, key string) (string, error)

	// GetPair retrieves a full KeyValuePair by key.
	GetPair(ctx context.Context, key string) (*KeyValuePair, error)

	// Set inserts or updates a key/value pair with optional description.
	Set(ctx context.Context, key string, value string, description string) error

	// Upsert inserts or updates a key/value pair and reports whether a new
	// key was created.
	Upsert(ctx context.Context, key string, value string, description string) (bool, error)

	// Delete removes a key/value pair.
	Delete(ctx context.Context, key string) error

	// DeleteAll removes all key/value pairs from storage.
	DeleteAll(ctx context.Context) error

	// List returns all key/value pairs ordered by updated_at descending.
	List(ctx context.Context) ([]KeyValuePair, error)

	// GetAll returns all key/value pairs as a map.
	GetAll(ctx context.Context) (map[string]string, error)
}

// PageStorage persists fetched pages so repeat loads of the same URL skip
// the network while the cached copy is fresh.
type PageStorage interface {
	// SavePage stores or replaces the cached page for its URL.
	SavePage(ctx context.Context, page *models.Page) error

	// GetPage returns the cached page for the URL, or ErrKeyNotFound.
	GetPage(ctx context.Context, url string) (*models.Page, error)

	// IsFresh reports whether the page was fetched within the TTL.
	IsFresh(page *models.Page, ttl time.Duration) bool

	// DeleteExpired removes pages older than the TTL and returns the count.
	DeleteExpired(ctx context.Context, ttl time.Duration) (int, error)

	// ListPages returns all cached pages ordered by fetch time descending.
	ListPages(ctx context.Context) ([]*models.Page, error)

	// Count returns the number of cached pages.
	Count(ctx context.Context) (int, error)
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	PageStorage() PageStorage
	KVStorage() KeyValueStorage
	DB() interface{}
	Close() error
}
