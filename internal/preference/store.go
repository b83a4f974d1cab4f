// Package preference persists per-client settings that outlive a session,
// currently the inference API base URL.
package preference

import (
	"context"
	"errors"
)

// APIURLName is the fixed name under which the API base URL is stored
const APIURLName = "apiUrl"

// ErrNotFound is returned when no value is stored for a key
var ErrNotFound = errors.New("preference not found")

// Store is a durable string key-value store. Implementations must be safe
// for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Key builds the API base URL key of a client
func Key(clientID string) string {
	return clientID + ":" + APIURLName
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PGStore)(nil)
	_ Store = (*RedisStore)(nil)
)
