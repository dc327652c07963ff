package export

import (
	"context"
	"sync"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/mirrorlake/assetsync/pkg/limiter"
	"github.com/mirrorlake/assetsync/pkg/logger"
	"github.com/mirrorlake/assetsync/pkg/metrics"
	"github.com/mirrorlake/assetsync/pkg/remote"
	"github.com/mirrorlake/assetsync/pkg/retry"
	"github.com/mirrorlake/assetsync/pkg/store"
	"github.com/mirrorlake/assetsync/pkg/syncerrors"
)

// Deps carries the shared collaborators every processor needs. One Deps value
// is built per export run and handed to each processor constructor.
type Deps struct {
	API         remote.ResourceAPI
	Store       store.ObjectStore
	Collections *CollectionStore
	Bucket      string
	Prefix      string

	// Global bounds concurrent remote API calls across the whole run
	Global limiter.Limiter
	// StoreReads and StoreWrites bound object store traffic separately;
	// saturating the store is a distinct failure mode from saturating the API
	StoreReads  limiter.Limiter
	StoreWrites limiter.Limiter

	Retry          *retry.Policy
	ThrottledRetry *retry.Policy

	// SubFetchLimit caps the sub-fetches within one asset's processing
	SubFetchLimit int
}

// Processor is the per-asset-type strategy: a fixed set of hooks selected by
// the type registry instead of virtual dispatch. Hooks for categories the
// type lacks are nil; the corresponding step is a no-op returning the empty
// default, never skipped silently, so downstream consumers can always assume
// the field is present.
type Processor struct {
	Type          remote.AssetType
	Capabilities  Capabilities
	Storage       StorageType
	CollectionKey string

	DescribeFn    func(ctx context.Context, summary remote.AssetSummary) (remote.Definition, error)
	PermissionsFn func(ctx context.Context, summary remote.AssetSummary) ([]remote.Permission, error)
	TagsFn        func(ctx context.Context, summary remote.AssetSummary) ([]remote.Tag, error)
	SpecialFn     func(ctx context.Context, summary remote.AssetSummary) (map[string]interface{}, error)

	// ShouldUpdateFn decides whether an asset needs re-fetching this run.
	// Organizational types override it to always return true: they have no
	// reliable change timestamp for incremental sync.
	ShouldUpdateFn func(ctx context.Context, summary remote.AssetSummary) bool

	deps     Deps
	subFetch limiter.Limiter
	log      *zap.Logger
}

// NewProcessor wires a processor's shared machinery. Per-type constructors
// fill in the hooks before returning.
func NewProcessor(assetType remote.AssetType, caps Capabilities, storage StorageType, deps Deps) *Processor {
	p := &Processor{
		Type:         assetType,
		Capabilities: caps,
		Storage:      storage,
		deps:         deps,
		subFetch:     limiter.New(deps.SubFetchLimit),
		log:          logger.Get().With(zap.String("processor", string(assetType))),
	}
	if storage == StorageCollection {
		p.CollectionKey = deps.Prefix + string(assetType) + "s.json"
	}
	p.ShouldUpdateFn = p.defaultShouldUpdate
	return p
}

// Process fetches an asset's detail categories according to the caller's
// refresh policy and persists the resulting record. It never lets an error
// escape: callers process many assets in a loop and must not abort on one
// failure, so any assembly or storage error becomes a status of error on the
// returned result.
func (p *Processor) Process(ctx context.Context, summary remote.AssetSummary, pctx ProcessContext) ProcessingResult {
	result := ProcessingResult{
		AssetID:   summary.ID,
		AssetName: summary.Name,
		Status:    StatusSuccess,
	}

	// Resolve the effective policy: absent options mean full refresh; present
	// options select categories. Special operations ride with definitions.
	wantDefinition := pctx.RefreshOptions == nil || pctx.RefreshOptions.Definitions
	wantPermissions := pctx.RefreshOptions == nil || pctx.RefreshOptions.Permissions
	wantTags := pctx.RefreshOptions == nil || pctx.RefreshOptions.Tags
	wantSpecial := wantDefinition

	result.Details = FetchDetails{
		Definition:  wantDefinition,
		Permissions: wantPermissions,
		Tags:        wantTags,
	}

	if !wantDefinition && !wantPermissions && !wantTags {
		// Nothing requested; policy-default result, not an error
		return result
	}

	if !pctx.ForceRefresh && !p.ShouldUpdateFn(ctx, summary) {
		p.log.Debug("asset up to date, skipping fetch", zap.String("asset_id", summary.ID))
		result.Details = FetchDetails{}
		return result
	}

	rec := &Record{
		AssetID:         summary.ID,
		AssetName:       summary.Name,
		Arn:             summary.ARN,
		AssetType:       p.Type,
		CreatedTime:     summary.CreatedTime,
		LastUpdatedTime: summary.LastUpdatedTime,
		Permissions:     []remote.Permission{},
		Tags:            []remote.Tag{},
	}

	// The four category fetches are independent and run concurrently; each
	// contains its own failures, so one degraded category never fails the
	// others.
	var wg sync.WaitGroup

	if wantDefinition && p.Capabilities.HasDefinition && p.DescribeFn != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Definition = p.fetchDefinition(ctx, summary)
		}()
	}

	if wantPermissions && p.Capabilities.HasPermissions && p.PermissionsFn != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Permissions = p.fetchPermissions(ctx, summary)
		}()
	}

	if wantTags && p.Capabilities.HasTags && p.TagsFn != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Tags = p.fetchTags(ctx, summary)
		}()
	}

	if wantSpecial && p.Capabilities.HasSpecial && p.SpecialFn != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Special = p.fetchSpecial(ctx, summary)
		}()
	}

	wg.Wait()

	if err := p.persist(ctx, rec); err != nil {
		p.log.Error("failed to persist asset record",
			zap.String("asset_id", summary.ID),
			zap.Error(err))
		metrics.AssetsProcessed.WithLabelValues(string(p.Type), "error").Inc()
		result.Status = StatusError
		result.Error = err.Error()
		return result
	}

	metrics.AssetsProcessed.WithLabelValues(string(p.Type), "success").Inc()
	return result
}

// fetchDefinition runs the describe hook, degrading to nil on failure
func (p *Processor) fetchDefinition(ctx context.Context, summary remote.AssetSummary) remote.Definition {
	var out remote.Definition
	err := p.runHook(ctx, "describe", p.deps.Retry, func(ctx context.Context) error {
		v, err := p.DescribeFn(ctx, summary)
		if err == nil {
			out = v
		}
		return err
	})
	if err != nil {
		p.degrade(ctx, "definition", summary, err)
		return nil
	}
	metrics.CategoryFetches.WithLabelValues("definition", "ok").Inc()
	return out
}

// fetchPermissions runs the permissions hook under the throttled retry tier
func (p *Processor) fetchPermissions(ctx context.Context, summary remote.AssetSummary) []remote.Permission {
	var out []remote.Permission
	err := p.runHook(ctx, "get_permissions", p.deps.ThrottledRetry, func(ctx context.Context) error {
		v, err := p.PermissionsFn(ctx, summary)
		if err == nil {
			out = v
		}
		return err
	})
	if err != nil {
		p.degrade(ctx, "permissions", summary, err)
		return []remote.Permission{}
	}
	metrics.CategoryFetches.WithLabelValues("permissions", "ok").Inc()
	if out == nil {
		out = []remote.Permission{}
	}
	return out
}

// fetchTags runs the tags hook under the throttled retry tier
func (p *Processor) fetchTags(ctx context.Context, summary remote.AssetSummary) []remote.Tag {
	var out []remote.Tag
	err := p.runHook(ctx, "get_tags", p.deps.ThrottledRetry, func(ctx context.Context) error {
		v, err := p.TagsFn(ctx, summary)
		if err == nil {
			out = v
		}
		return err
	})
	if err != nil {
		p.degrade(ctx, "tags", summary, err)
		return []remote.Tag{}
	}
	metrics.CategoryFetches.WithLabelValues("tags", "ok").Inc()
	if out == nil {
		out = []remote.Tag{}
	}
	return out
}

// fetchSpecial runs the type-specific special operations hook
func (p *Processor) fetchSpecial(ctx context.Context, summary remote.AssetSummary) map[string]interface{} {
	var out map[string]interface{}
	err := p.runHook(ctx, "special_operations", p.deps.Retry, func(ctx context.Context) error {
		v, err := p.SpecialFn(ctx, summary)
		if err == nil {
			out = v
		}
		return err
	})
	if err != nil {
		p.degrade(ctx, "special", summary, err)
		return nil
	}
	metrics.CategoryFetches.WithLabelValues("special", "ok").Inc()
	return out
}

// runHook executes one remote fetch under the per-processor and global
// concurrency limiters with the given retry policy
func (p *Processor) runHook(ctx context.Context, name string, policy *retry.Policy, fn func(ctx context.Context) error) error {
	return p.subFetch.Do(ctx, func() error {
		return p.deps.Global.Do(ctx, func() error {
			return policy.Execute(ctx, name, func() error {
				return fn(ctx)
			})
		})
	})
}

// degrade records a category failure. Permanent remote errors (the asset was
// deleted or access revoked between listing and fetch) are expected during
// incremental sync and only logged at debug level.
func (p *Processor) degrade(_ context.Context, category string, summary remote.AssetSummary, err error) {
	metrics.CategoryFetches.WithLabelValues(category, "degraded").Inc()
	if syncerrors.IsPermanentRemote(err) {
		p.log.Debug("category unavailable, using empty default",
			zap.String("category", category),
			zap.String("asset_id", summary.ID),
			zap.Error(err))
		return
	}
	p.log.Warn("category fetch failed, using empty default",
		zap.String("category", category),
		zap.String("asset_id", summary.ID),
		zap.Error(err))
}

// persist routes the assembled record to individual or collection storage
func (p *Processor) persist(ctx context.Context, rec *Record) error {
	if p.Storage == StorageCollection {
		p.deps.Collections.Add(p.deps.Bucket, p.CollectionKey, rec.AssetID, rec)
		return nil
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return syncerrors.Wrap(err, syncerrors.ErrorTypeData, "failed to marshal asset record")
	}

	key := p.objectKey(rec.AssetID)
	return p.deps.StoreWrites.Do(ctx, func() error {
		return p.deps.Store.PutObject(ctx, p.deps.Bucket, key, data)
	})
}

// objectKey builds the individual-storage key for an asset
func (p *Processor) objectKey(assetID string) string {
	return p.deps.Prefix + string(p.Type) + "/" + assetID + ".json"
}

// defaultShouldUpdate compares the listing timestamp against the stored
// record. Missing or unreadable stored objects always trigger a refresh.
func (p *Processor) defaultShouldUpdate(ctx context.Context, summary remote.AssetSummary) bool {
	if p.Storage == StorageCollection {
		return true
	}

	var data []byte
	err := p.deps.StoreReads.Do(ctx, func() error {
		var getErr error
		data, getErr = p.deps.Store.GetObject(ctx, p.deps.Bucket, p.objectKey(summary.ID))
		return getErr
	})
	if err != nil {
		return true
	}

	var existing Record
	if err := json.Unmarshal(data, &existing); err != nil {
		return true
	}

	return summary.LastUpdatedTime.After(existing.LastUpdatedTime)
}
