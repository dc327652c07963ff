package export

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mirrorlake/assetsync/pkg/config"
	"github.com/mirrorlake/assetsync/pkg/limiter"
	"github.com/mirrorlake/assetsync/pkg/logger"
	"github.com/mirrorlake/assetsync/pkg/metrics"
	"github.com/mirrorlake/assetsync/pkg/observability"
	"github.com/mirrorlake/assetsync/pkg/remote"
	"github.com/mirrorlake/assetsync/pkg/retry"
	"github.com/mirrorlake/assetsync/pkg/store"
	"github.com/mirrorlake/assetsync/pkg/syncerrors"
)

// TypeResult summarizes the export of one asset type
type TypeResult struct {
	AssetType remote.AssetType   `json:"assetType"`
	Listed    int                `json:"listed"`
	Pages     int                `json:"pages"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Results   []ProcessingResult `json:"results,omitempty"`
}

// RunResult summarizes one export run across asset types
type RunResult struct {
	RunID       string                           `json:"runId"`
	TypeResults map[remote.AssetType]*TypeResult `json:"typeResults"`
	TypeErrors  map[remote.AssetType]string      `json:"typeErrors,omitempty"`
	DurationMs  int64                            `json:"durationMs"`
}

// Coordinator drives export runs: it lists each asset type, fans the listed
// assets out to that type's processor under the type-level concurrency cap,
// and flushes the accumulated collection batches at the end of the run.
type Coordinator struct {
	cfg         *config.PipelineConfig
	api         remote.ResourceAPI
	objStore    store.ObjectStore
	collections *CollectionStore
	deps        Deps

	typeLimit limiter.Limiter
	pageLimit limiter.Limiter
	listRetry *retry.Policy

	log *zap.Logger
}

// NewCoordinator builds a coordinator and its shared limiter/retry machinery
// from the pipeline configuration
func NewCoordinator(cfg *config.PipelineConfig, api remote.ResourceAPI, objStore store.ObjectStore) *Coordinator {
	standard := &retry.Policy{
		MaxAttempts:     cfg.Retry.Attempts,
		InitialDelay:    cfg.Retry.InitialDelay,
		MaxDelay:        cfg.Retry.MaxDelay,
		Multiplier:      2.0,
		RandomizeFactor: cfg.Retry.JitterFraction,
	}
	throttled := retry.ThrottledPolicy().
		WithMaxAttempts(cfg.Retry.ThrottledAttempts).
		WithDelay(cfg.Retry.ThrottledInitialDelay, 2*cfg.Retry.MaxDelay)

	collections := NewCollectionStore()

	c := &Coordinator{
		cfg:         cfg,
		api:         api,
		objStore:    objStore,
		collections: collections,
		typeLimit:   limiter.New(cfg.Concurrency.TypeOperations),
		pageLimit:   limiter.New(cfg.Concurrency.PageFetches),
		listRetry:   standard,
		log:         logger.Get().With(zap.String("component", "coordinator")),
	}

	c.deps = Deps{
		API:            api,
		Store:          objStore,
		Collections:    collections,
		Bucket:         cfg.Storage.Bucket,
		Prefix:         cfg.Storage.Prefix,
		Global:         limiter.New(cfg.Concurrency.GlobalOperations),
		StoreReads:     limiter.New(cfg.Concurrency.StoreReads),
		StoreWrites:    limiter.New(cfg.Concurrency.StoreWrites),
		Retry:          standard,
		ThrottledRetry: throttled,
		SubFetchLimit:  cfg.Concurrency.ProcessorOperations,
	}

	return c
}

// Deps returns the run-scoped dependencies, for callers that build processors
// outside a coordinated run
func (c *Coordinator) Deps() Deps {
	return c.deps
}

// Collections returns the run's collection batch registry
func (c *Coordinator) Collections() *CollectionStore {
	return c.collections
}

// ProcessType exports every asset of one type: list all pages, normalize and
// validate the summaries, then process each asset under the type-level cap.
// Per-asset failures are counted, not propagated; a listing or validation
// failure fails the whole type since there is nothing to process.
func (c *Coordinator) ProcessType(ctx context.Context, assetType remote.AssetType, pctx ProcessContext) (*TypeResult, error) {
	ctx, span := observability.StartTypeSpan(ctx, string(assetType))
	var spanErr error
	defer func() { observability.EndSpan(span, spanErr) }()

	timer := metrics.NewTimer()
	defer func() { metrics.ExportDuration.WithLabelValues(string(assetType)).Observe(timer.Stop().Seconds()) }()

	processor, err := Create(assetType, c.deps)
	if err != nil {
		spanErr = err
		return nil, err
	}

	raw, pages, err := Paginate(ctx, assetType, c.cfg.Concurrency.ProgressLogInterval, func(nextToken string) (*remote.ListPage, error) {
		var page *remote.ListPage
		doErr := c.pageLimit.Do(ctx, func() error {
			return c.deps.Global.Do(ctx, func() error {
				return c.listRetry.Execute(ctx, "list_"+string(assetType), func() error {
					p, listErr := c.api.List(ctx, assetType, nextToken, c.cfg.Concurrency.PageSize)
					if listErr == nil {
						page = p
					}
					return listErr
				})
			})
		})
		return page, doErr
	})
	if err != nil {
		spanErr = err
		return nil, err
	}

	summaries, err := MapSummaries(assetType, raw)
	if err != nil {
		spanErr = err
		return nil, err
	}

	c.log.Info("listing complete",
		zap.String("asset_type", string(assetType)),
		zap.Int("assets", len(summaries)),
		zap.Int("pages", pages))

	result := &TypeResult{
		AssetType: assetType,
		Listed:    len(summaries),
		Pages:     pages,
		Results:   make([]ProcessingResult, len(summaries)),
	}

	var wg sync.WaitGroup
	for i, summary := range summaries {
		wg.Add(1)
		go func(i int, summary remote.AssetSummary) {
			defer wg.Done()
			_ = c.typeLimit.Do(ctx, func() error {
				result.Results[i] = processor.Process(ctx, summary, pctx)
				return nil
			})
		}(i, summary)
	}
	wg.Wait()

	for _, r := range result.Results {
		if r.Status == StatusSuccess {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	return result, nil
}

// Run exports the given asset types (all registered types when empty),
// best-effort: a type that fails to list is recorded and the remaining types
// still run. Collection batches accumulated by any type are flushed once at
// the end; a flush failure is the run's error since it loses whole
// collections, not single assets.
func (c *Coordinator) Run(ctx context.Context, types []remote.AssetType, pctx ProcessContext) (*RunResult, error) {
	if len(types) == 0 {
		types = Types()
	}

	runID := fmt.Sprintf("run-%d", time.Now().UnixNano())
	ctx = context.WithValue(ctx, logger.RunIDKey, runID)
	ctx, span := observability.StartRunSpan(ctx, runID)
	var spanErr error
	defer func() { observability.EndSpan(span, spanErr) }()

	start := time.Now()
	result := &RunResult{
		RunID:       runID,
		TypeResults: make(map[remote.AssetType]*TypeResult),
		TypeErrors:  make(map[remote.AssetType]string),
	}

	log := logger.WithContext(ctx)
	log.Info("export run starting", zap.Int("types", len(types)))

	for _, assetType := range types {
		if !Has(assetType) {
			result.TypeErrors[assetType] = fmt.Sprintf("no processor registered for %s", assetType)
			continue
		}

		typeResult, err := c.ProcessType(ctx, assetType, pctx)
		if err != nil {
			log.Error("asset type export failed",
				zap.String("asset_type", string(assetType)),
				zap.Error(err))
			result.TypeErrors[assetType] = err.Error()
			continue
		}
		result.TypeResults[assetType] = typeResult
	}

	if err := c.collections.FlushAll(ctx, c.objStore); err != nil {
		spanErr = err
		result.DurationMs = time.Since(start).Milliseconds()
		return result, syncerrors.Wrap(err, syncerrors.ErrorTypeStorage, "run flush failed")
	}

	result.DurationMs = time.Since(start).Milliseconds()
	log.Info("export run finished",
		zap.Int("types_succeeded", len(result.TypeResults)),
		zap.Int("types_failed", len(result.TypeErrors)),
		zap.Int64("duration_ms", result.DurationMs))

	if len(result.TypeErrors) > 0 {
		spanErr = syncerrors.New(syncerrors.ErrorTypeInternal, "one or more asset types failed")
	}

	return result, nil
}

// FlushCollections forces a flush of pending collection batches outside the
// normal end-of-run flush
func (c *Coordinator) FlushCollections(ctx context.Context) error {
	return c.collections.FlushAll(ctx, c.objStore)
}

// ClearBatches discards all pending collection batches without writing them
func (c *Coordinator) ClearBatches() {
	c.collections.Clear()
}
