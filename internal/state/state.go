// Package state keeps small pieces of run state between invocations,
// such as the id of the active vector store
package state

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for a missing key
var ErrNotFound = errors.New("state key not found")

// Keys in use
const (
	KeyVectorStoreID = "vector_store_id"
	KeyLastIngest    = "last_ingest"
)

// Store is a string key/value store
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	All(ctx context.Context) (map[string]string, error)
}
