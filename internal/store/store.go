// Package store holds short-lived keyed values: PKCE bindings and login sessions.
//
// Values are strings with a TTL. [Store.Take] reads and deletes in one atomic step so a value can be
// consumed at most once, even when several server instances race on the same key.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/cur8/internal/shared"
)

// ErrNotFound reports a key that was never set, has expired, or was already taken.
var ErrNotFound = errors.New("store: key not found")

// Namespaces partition keys by purpose.
const (
	NamespacePKCE    = "pkce"
	NamespaceSession = "session"
)

// Store is a TTL-bound string store.
type Store interface {
	Put(ctx context.Context, ns, key, value string, ttl time.Duration) error
	// Take returns the value and deletes it atomically; only one caller ever sees a given value.
	Take(ctx context.Context, ns, key string) (string, error)
	Get(ctx context.Context, ns, key string) (string, error)
	Delete(ctx context.Context, ns, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Open builds the backend selected by cfg.Store.Backend.
func Open(ctx context.Context, cfg *shared.Config) (Store, error) {
	switch cfg.Store.Backend {
	case "redis":
		return OpenRedis(ctx, cfg.Redis.URL, cfg.Redis.KeyPrefix)
	case "bolt":
		return OpenBolt(cfg.Store.BoltPath)
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", shared.ErrInvalidConfig, cfg.Store.Backend)
	}
}
