// Package remote defines the surface of the external resource-management API
// the pipeline consumes. The production client lives with the platform
// integration layer; the pipeline depends only on this interface and the
// syncerrors categories its implementations must return (throttling, timeout
// and connection errors are retried; not-found and access-denied are treated
// as no-data during detail fetches).
package remote

import "context"

// ResourceAPI is the remote resource-management API consumed by the pipeline.
// All calls may return transient errors (retried) or permanent errors
// (not-found, access-denied) as classified by syncerrors.
type ResourceAPI interface {
	// List returns one page of summaries for the given asset type.
	// An empty nextToken requests the first page.
	List(ctx context.Context, assetType AssetType, nextToken string, pageSize int) (*ListPage, error)

	// Describe returns the full detail payload for an asset. This is the most
	// expensive call per asset and is elided on permissions/tags-only refreshes.
	Describe(ctx context.Context, assetType AssetType, assetID string) (Definition, error)

	// GetPermissions returns the ACL-style grants on an asset
	GetPermissions(ctx context.Context, assetType AssetType, assetID string) ([]Permission, error)

	// GetTags returns the tags attached to a resource ARN
	GetTags(ctx context.Context, arn string) ([]Tag, error)

	// ListFolderMembers returns the membership of a folder
	ListFolderMembers(ctx context.Context, folderID string) ([]FolderMember, error)

	// ListIngestions returns the refresh history of a dataset
	ListIngestions(ctx context.Context, datasetID string) ([]Ingestion, error)
}
