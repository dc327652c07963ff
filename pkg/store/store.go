// Package store provides the object store the pipeline persists assets into.
// Every Put replaces the object wholesale; the pipeline never performs
// partial or merge writes.
package store

import "context"

// ObjectStore is the durable blob store consumed by the pipeline
type ObjectStore interface {
	// GetObject returns the object's raw bytes. A missing object yields a
	// syncerrors not_found error.
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)

	// PutObject writes data under key, replacing any existing object
	PutObject(ctx context.Context, bucket, key string, data []byte) error

	// ObjectExists reports whether an object exists without fetching it
	ObjectExists(ctx context.Context, bucket, key string) (bool, error)
}
