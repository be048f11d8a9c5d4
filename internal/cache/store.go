package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/kjstillabower/location-weather/internal/models"
)

// DefaultKey is the single key the weather entry lives under.
const DefaultKey = "weatherData"

// Store is a persistent key-value store holding serialized values.
// Get returns (value, true, nil) on hit and (nil, false, nil) on miss.
// Stores never expire values based on the weather validity window; callers
// decide validity at read time.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Backend is a Store with a lifecycle, as returned by Open.
type Backend interface {
	Store
	Ping(ctx context.Context) error
	Close() error
}

// ErrCorruptEntry is returned by EntryStore.Load when the stored value cannot be decoded.
var ErrCorruptEntry = errors.New("corrupt cache entry")

// EntryStore reads and writes the weather CacheEntry under one fixed key.
type EntryStore struct {
	store Store
	key   string
}

// NewEntryStore binds store to key. An empty key uses DefaultKey.
func NewEntryStore(store Store, key string) *EntryStore {
	if key == "" {
		key = DefaultKey
	}
	return &EntryStore{store: store, key: key}
}

// Key returns the key entries are stored under.
func (e *EntryStore) Key() string {
	return e.key
}

// Load returns the stored entry. A value that does not decode yields ErrCorruptEntry.
func (e *EntryStore) Load(ctx context.Context) (models.CacheEntry, bool, error) {
	raw, ok, err := e.store.Get(ctx, e.key)
	if err != nil || !ok {
		return models.CacheEntry{}, false, err
	}
	var entry models.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return models.CacheEntry{}, false, fmt.Errorf("%w: %w", ErrCorruptEntry, err)
	}
	if entry.Timestamp <= 0 {
		return models.CacheEntry{}, false, fmt.Errorf("%w: missing timestamp", ErrCorruptEntry)
	}
	return entry, true, nil
}

// Save overwrites the stored entry as a whole.
func (e *EntryStore) Save(ctx context.Context, entry models.CacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return e.store.Set(ctx, e.key, raw)
}

// InMemoryStore implements Backend with a map. Safe for concurrent use.
// Values do not survive the process; use it for tests and ephemeral runs.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string][]byte)}
}

func (s *InMemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *InMemoryStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *InMemoryStore) Ping(ctx context.Context) error { return nil }

func (s *InMemoryStore) Close() error { return nil }
