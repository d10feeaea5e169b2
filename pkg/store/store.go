// Package store persists relay settings as opaque JSON values in a generic
// key-value table.
package store

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/docker/agent-relay/pkg/concurrent"
)

var (
	ErrNotFound = errors.New("not found")
	ErrEmptyKey = errors.New("key cannot be empty")
)

// Entry is one stored value.
type Entry struct {
	Key       string
	Value     []byte
	UpdatedAt time.Time
}

// Store is a key-value store. Keys are slash separated paths so that related
// entries can be listed by prefix.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Entry, error)
	Close() error
}

// InMemoryStore is a Store that keeps everything in memory.
type InMemoryStore struct {
	entries *concurrent.Map[string, Entry]
}

var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: concurrent.NewMap[string, Entry](),
	}
}

func (s *InMemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	entry, ok := s.entries.Load(key)
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(entry.Value), nil
}

func (s *InMemoryStore) Put(_ context.Context, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.entries.Store(key, Entry{
		Key:       key,
		Value:     slices.Clone(value),
		UpdatedAt: time.Now().UTC(),
	})
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	if !s.entries.Delete(key) {
		return ErrNotFound
	}
	return nil
}

func (s *InMemoryStore) List(_ context.Context, prefix string) ([]Entry, error) {
	var entries []Entry
	for key, entry := range s.entries.Snapshot() {
		if strings.HasPrefix(key, prefix) {
			entry.Value = slices.Clone(entry.Value)
			entries = append(entries, entry)
		}
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		return cmp.Compare(a.Key, b.Key)
	})
	return entries, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
