package export

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/mirrorlake/assetsync/pkg/logger"
	"github.com/mirrorlake/assetsync/pkg/metrics"
	"github.com/mirrorlake/assetsync/pkg/store"
	"github.com/mirrorlake/assetsync/pkg/syncerrors"
)

// CollectionBatch accumulates the records destined for one shared collection
// object. A batch is created empty on first Add in a run and is never seeded
// from the existing stored object: whatever set of assets was observed during
// the run becomes the complete contents of the output object, so deleted or
// no-longer-listed assets drop out automatically (full rebuild, not merge).
type CollectionBatch struct {
	Bucket        string
	CollectionKey string
	Data          map[string]*Record
	Dirty         bool
}

// CollectionStore is the registry of pending collection batches for one
// export run. It is constructed explicitly and passed by reference; Add and
// FlushAll share one lock so a concurrent Add can never be dropped between a
// batch being enumerated for flush and being cleared.
type CollectionStore struct {
	mu      sync.Mutex
	batches map[string]*CollectionBatch
	logger  *zap.Logger
}

// NewCollectionStore creates an empty batch registry
func NewCollectionStore() *CollectionStore {
	return &CollectionStore{
		batches: make(map[string]*CollectionBatch),
		logger:  logger.Get().With(zap.String("component", "collection_store")),
	}
}

func batchKey(bucket, collectionKey string) string {
	return bucket + ":" + collectionKey
}

// Add appends or overwrites a record under assetID in the batch for
// (bucket, collectionKey), creating the batch if absent and marking it dirty.
// Safe under concurrent invocation from many in-flight asset fetches.
func (c *CollectionStore) Add(bucket, collectionKey, assetID string, rec *Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := batchKey(bucket, collectionKey)
	batch, ok := c.batches[key]
	if !ok {
		batch = &CollectionBatch{
			Bucket:        bucket,
			CollectionKey: collectionKey,
			Data:          make(map[string]*Record),
		}
		c.batches[key] = batch
	}

	batch.Data[assetID] = rec
	batch.Dirty = true
}

// FlushAll writes every dirty batch wholesale to the object store and removes
// it from the registry. Clean batches are skipped and retained; removal only
// happens on a writing flush. A write failure propagates immediately and
// leaves the failed batch (and any not yet flushed) registered for retry —
// unlike per-asset failures, a failed flush is definite data loss for an
// entire collection and must not be swallowed.
func (c *CollectionStore) FlushAll(ctx context.Context, objStore store.ObjectStore) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Deterministic flush order keeps logs and tests stable
	keys := make([]string, 0, len(c.batches))
	for key := range c.batches {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		batch := c.batches[key]
		if !batch.Dirty {
			metrics.BatchFlushes.WithLabelValues("skipped").Inc()
			continue
		}

		data, err := json.Marshal(batch.Data)
		if err != nil {
			metrics.BatchFlushes.WithLabelValues("failed").Inc()
			return syncerrors.Wrap(err, syncerrors.ErrorTypeData, "failed to marshal collection batch").
				WithDetail("collection", batch.CollectionKey)
		}

		if err := objStore.PutObject(ctx, batch.Bucket, batch.CollectionKey, data); err != nil {
			metrics.BatchFlushes.WithLabelValues("failed").Inc()
			return syncerrors.Wrap(err, syncerrors.ErrorTypeStorage, "failed to flush collection batch").
				WithDetail("bucket", batch.Bucket).
				WithDetail("collection", batch.CollectionKey)
		}

		c.logger.Info("collection batch flushed",
			zap.String("bucket", batch.Bucket),
			zap.String("collection", batch.CollectionKey),
			zap.Int("entries", len(batch.Data)))
		metrics.BatchFlushes.WithLabelValues("written").Inc()
		delete(c.batches, key)
	}

	return nil
}

// Clear removes all registered batches. Callers use it between runs; tests
// rely on it for isolation.
func (c *CollectionStore) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = make(map[string]*CollectionBatch)
}

// Len returns the number of registered batches
func (c *CollectionStore) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

// Get returns the batch for (bucket, collectionKey), or nil
func (c *CollectionStore) Get(bucket, collectionKey string) *CollectionBatch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batches[batchKey(bucket, collectionKey)]
}
