// Package storage stores encoded records grouped by collection.
package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("key not found")

// Storage holds records keyed by collection and key.
type Storage interface {
	// List returns the keys of all records in the collection in a stable order.
	//
	// A collection that was never written is empty.
	List(ctx context.Context, collection string) ([]string, error)
	// Get returns the contents of a record.
	Get(ctx context.Context, collection, key string) ([]byte, error)
	// Put creates or replaces a record, creating the collection if needed.
	Put(ctx context.Context, collection, key string, content []byte) error
	// Delete removes a record.
	Delete(ctx context.Context, collection, key string) error
}
