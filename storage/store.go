package storage

import (
	"context"
	"errors"

	"taskboard/domain"
)

// Store is a persisted key-value store the domain services keep their state
// in. Ping reports whether the backing service is reachable.
type Store interface {
	domain.KV
	Ping(ctx context.Context) error
}

// ErrNoNamespace is returned when a remote store is opened without a namespace.
var ErrNoNamespace = errors.New("storage: namespace is required")

// DefaultNamespace prefixes every key when none is configured.
const DefaultNamespace = "taskboard"

func namespacedKey(namespace, key string) string {
	return namespace + ":" + key
}
