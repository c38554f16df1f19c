package storage

import (
	"context"
	"maps"
	"slices"
)

type memory struct {
	collections map[string]map[string][]byte
}

// NewMemory returns a Storage that keeps every record in memory.
func NewMemory() Storage {
	return &memory{
		collections: make(map[string]map[string][]byte),
	}
}

func (m *memory) List(ctx context.Context, collection string) ([]string, error) {
	return slices.Sorted(maps.Keys(m.collections[collection])), nil
}

func (m *memory) Put(ctx context.Context, collection, key string, content []byte) error {
	values, ok := m.collections[collection]
	if !ok {
		values = make(map[string][]byte)
		m.collections[collection] = values
	}
	val := make([]byte, len(content))
	copy(val, content)
	values[key] = val
	return nil
}

func (m *memory) Get(ctx context.Context, collection, key string) ([]byte, error) {
	content, ok := m.collections[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	val := make([]byte, len(content))
	copy(val, content)
	return val, nil
}

func (m *memory) Delete(ctx context.Context, collection, key string) error {
	values := m.collections[collection]
	if _, ok := values[key]; !ok {
		return ErrNotFound
	}
	delete(values, key)
	return nil
}
