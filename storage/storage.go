// Package storage defines the persistent key-value collaborator a session
// uses to durably hold its refresh token between runs, along with in-memory
// and file-backed implementations.
package storage

import "context"

// Storage is an async-capable key-value store. A session uses exactly one
// key (session.StorageKeyRefreshToken), but implementations must support
// arbitrary keys.
type Storage interface {
	// Get returns the value stored under key. ok is false when the key was
	// never stored or was previously removed.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value string) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}
