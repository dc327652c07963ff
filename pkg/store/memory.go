package store

import (
	"context"
	"sync"

	"github.com/mirrorlake/assetsync/pkg/syncerrors"
)

// MemoryStore is an in-memory ObjectStore used in tests and local dry runs
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	// PutCalls counts PutObject invocations per bucket/key
	putCalls map[string]int
	// FailPuts makes every PutObject fail, for flush-failure tests
	FailPuts bool
}

// NewMemoryStore creates an empty in-memory object store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects:  make(map[string][]byte),
		putCalls: make(map[string]int),
	}
}

func objectKey(bucket, key string) string {
	return bucket + "/" + key
}

// GetObject returns a copy of the stored bytes
func (m *MemoryStore) GetObject(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[objectKey(bucket, key)]
	if !ok {
		return nil, syncerrors.New(syncerrors.ErrorTypeNotFound, "object not found").
			WithDetail("bucket", bucket).
			WithDetail("key", key)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// PutObject stores a copy of data
func (m *MemoryStore) PutObject(_ context.Context, bucket, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailPuts {
		return syncerrors.New(syncerrors.ErrorTypeStorage, "put rejected").
			WithDetail("bucket", bucket).
			WithDetail("key", key)
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	m.objects[objectKey(bucket, key)] = stored
	m.putCalls[objectKey(bucket, key)]++
	return nil
}

// ObjectExists reports whether the object is present
func (m *MemoryStore) ObjectExists(_ context.Context, bucket, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[objectKey(bucket, key)]
	return ok, nil
}

// PutCount returns how many times bucket/key has been written
func (m *MemoryStore) PutCount(bucket, key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.putCalls[objectKey(bucket, key)]
}

// Len returns the number of stored objects
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
