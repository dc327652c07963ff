package export

import (
	"context"
	"strings"

	"github.com/mirrorlake/assetsync/pkg/remote"
)

// Organizational asset types (users, groups, folders) use collection storage
// and have no reliable change timestamp, so ShouldUpdate always returns true:
// every run fully re-fetches and re-writes them, and the full-rebuild flush
// drops entries for assets no longer listed.

// Member type labels for folder membership
const (
	MemberTypeDashboard  = "DASHBOARD"
	MemberTypeAnalysis   = "ANALYSIS"
	MemberTypeDataset    = "DATASET"
	MemberTypeDatasource = "DATASOURCE"
	MemberTypeUser       = "USER"
	MemberTypeGroup      = "GROUP"
)

// memberTypePatterns is matched in fixed precedence: content types first,
// then user, then group. First match wins.
var memberTypePatterns = []struct {
	pattern string
	label   string
}{
	{":dashboard/", MemberTypeDashboard},
	{":analysis/", MemberTypeAnalysis},
	{":dataset/", MemberTypeDataset},
	{":datasource/", MemberTypeDatasource},
	{":user/", MemberTypeUser},
	{":group/", MemberTypeGroup},
}

// InferMemberType infers a folder member's type from its resource identifier
// when the API omits it. An identifier matching no pattern yields the empty
// string, never an error.
func InferMemberType(identifier string) string {
	for _, mt := range memberTypePatterns {
		if strings.Contains(identifier, mt.pattern) {
			return mt.label
		}
	}
	return ""
}

func newUserProcessor(deps Deps) *Processor {
	p := NewProcessor(remote.AssetTypeUser, Capabilities{
		HasDefinition: true,
	}, StorageCollection, deps)

	p.DescribeFn = func(ctx context.Context, summary remote.AssetSummary) (remote.Definition, error) {
		return deps.API.Describe(ctx, remote.AssetTypeUser, summary.ID)
	}
	p.ShouldUpdateFn = alwaysUpdate

	return p
}

func newGroupProcessor(deps Deps) *Processor {
	p := NewProcessor(remote.AssetTypeGroup, Capabilities{
		HasDefinition: true,
	}, StorageCollection, deps)

	p.DescribeFn = func(ctx context.Context, summary remote.AssetSummary) (remote.Definition, error) {
		return deps.API.Describe(ctx, remote.AssetTypeGroup, summary.ID)
	}
	p.ShouldUpdateFn = alwaysUpdate

	return p
}

// newFolderProcessor differs from the other organizational types: folders do
// carry ACL-style permissions, and their special operation fetches the
// membership listing, inferring each member's type from its ARN when absent.
func newFolderProcessor(deps Deps) *Processor {
	p := NewProcessor(remote.AssetTypeFolder, Capabilities{
		HasDefinition:  true,
		HasPermissions: true,
		HasTags:        true,
		HasSpecial:     true,
	}, StorageCollection, deps)

	p.DescribeFn = func(ctx context.Context, summary remote.AssetSummary) (remote.Definition, error) {
		return deps.API.Describe(ctx, remote.AssetTypeFolder, summary.ID)
	}
	p.PermissionsFn = func(ctx context.Context, summary remote.AssetSummary) ([]remote.Permission, error) {
		return deps.API.GetPermissions(ctx, remote.AssetTypeFolder, summary.ID)
	}
	p.TagsFn = func(ctx context.Context, summary remote.AssetSummary) ([]remote.Tag, error) {
		return deps.API.GetTags(ctx, summary.ARN)
	}
	p.SpecialFn = func(ctx context.Context, summary remote.AssetSummary) (map[string]interface{}, error) {
		members, err := deps.API.ListFolderMembers(ctx, summary.ID)
		if err != nil {
			return nil, err
		}
		for i := range members {
			if members[i].MemberType == "" {
				members[i].MemberType = InferMemberType(members[i].MemberArn)
			}
		}
		return map[string]interface{}{"members": members}, nil
	}
	p.ShouldUpdateFn = alwaysUpdate

	return p
}

func alwaysUpdate(context.Context, remote.AssetSummary) bool {
	return true
}

func init() {
	registrations := map[remote.AssetType]Factory{
		remote.AssetTypeUser:   newUserProcessor,
		remote.AssetTypeGroup:  newGroupProcessor,
		remote.AssetTypeFolder: newFolderProcessor,
	}
	for assetType, factory := range registrations {
		if err := Register(assetType, factory); err != nil {
			panic(err)
		}
	}
}
