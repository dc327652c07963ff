package export

import (
	"context"

	"github.com/mirrorlake/assetsync/pkg/remote"
)

// Content asset types (dashboards, analyses, datasets, datasources) share the
// full capability set and individual storage: one object per asset. Their
// hooks differ only in the remote type they address, so one constructor
// covers them all.

func newContentProcessor(assetType remote.AssetType, deps Deps) *Processor {
	p := NewProcessor(assetType, Capabilities{
		HasDefinition:  true,
		HasPermissions: true,
		HasTags:        true,
	}, StorageIndividual, deps)

	p.DescribeFn = func(ctx context.Context, summary remote.AssetSummary) (remote.Definition, error) {
		return deps.API.Describe(ctx, assetType, summary.ID)
	}
	p.PermissionsFn = func(ctx context.Context, summary remote.AssetSummary) ([]remote.Permission, error) {
		return deps.API.GetPermissions(ctx, assetType, summary.ID)
	}
	p.TagsFn = func(ctx context.Context, summary remote.AssetSummary) ([]remote.Tag, error) {
		return deps.API.GetTags(ctx, summary.ARN)
	}

	return p
}

func init() {
	for _, t := range []remote.AssetType{
		remote.AssetTypeDashboard,
		remote.AssetTypeAnalysis,
		remote.AssetTypeDataset,
		remote.AssetTypeDatasource,
	} {
		assetType := t
		if err := Register(assetType, func(deps Deps) *Processor {
			return newContentProcessor(assetType, deps)
		}); err != nil {
			panic(err)
		}
	}
}
