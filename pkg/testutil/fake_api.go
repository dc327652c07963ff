// Package testutil provides test doubles for the remote resource API.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mirrorlake/assetsync/pkg/remote"
	"github.com/mirrorlake/assetsync/pkg/syncerrors"
)

// FakeAPI is a scripted in-memory ResourceAPI. Pages, definitions,
// permissions, tags, members and ingestions are keyed by asset type or ID;
// per-operation error hooks let tests inject failures. All call counters are
// safe under concurrent access.
type FakeAPI struct {
	mu sync.Mutex

	Pages       map[remote.AssetType][]remote.ListPage
	Definitions map[string]remote.Definition
	Permissions map[string][]remote.Permission
	Tags        map[string][]remote.Tag
	Members     map[string][]remote.FolderMember
	Ingestions  map[string][]remote.Ingestion

	ListErr        func(assetType remote.AssetType, page int) error
	DescribeErr    func(assetID string) error
	PermissionsErr func(assetID string) error
	TagsErr        func(arn string) error
	MembersErr     func(folderID string) error
	IngestionsErr  func(datasetID string) error

	ListCalls        int
	DescribeCalls    int
	PermissionsCalls int
	TagsCalls        int
	MembersCalls     int
	IngestionsCalls  int
}

// NewFakeAPI creates an empty fake
func NewFakeAPI() *FakeAPI {
	return &FakeAPI{
		Pages:       make(map[remote.AssetType][]remote.ListPage),
		Definitions: make(map[string]remote.Definition),
		Permissions: make(map[string][]remote.Permission),
		Tags:        make(map[string][]remote.Tag),
		Members:     make(map[string][]remote.FolderMember),
		Ingestions:  make(map[string][]remote.Ingestion),
	}
}

// AddAsset registers one asset: a single-page listing entry plus a definition,
// permissions and tags keyed by its ID and ARN.
func (f *FakeAPI) AddAsset(assetType remote.AssetType, id, name string, updated time.Time) {
	arn := fmt.Sprintf("arn:analytics:%s/%s", assetType, id)
	summary := remote.RawSummary{
		AssetID:         id,
		Name:            name,
		Arn:             arn,
		CreatedTime:     updated.Add(-time.Hour),
		LastUpdatedTime: updated,
	}

	pages := f.Pages[assetType]
	if len(pages) == 0 {
		pages = []remote.ListPage{{}}
	}
	pages[len(pages)-1].Items = append(pages[len(pages)-1].Items, summary)
	f.Pages[assetType] = pages

	f.Definitions[id] = remote.Definition{"name": name, "id": id}
	f.Permissions[id] = []remote.Permission{{Principal: "arn:analytics:user/admin", Actions: []string{"read"}}}
	f.Tags[arn] = []remote.Tag{{Key: "team", Value: "analytics"}}
}

// List implements ResourceAPI
func (f *FakeAPI) List(ctx context.Context, assetType remote.AssetType, nextToken string, pageSize int) (*remote.ListPage, error) {
	f.mu.Lock()
	f.ListCalls++
	f.mu.Unlock()

	pages := f.Pages[assetType]

	idx := 0
	if nextToken != "" {
		if _, err := fmt.Sscanf(nextToken, "page-%d", &idx); err != nil {
			return nil, syncerrors.New(syncerrors.ErrorTypeValidation, "bad next token")
		}
	}

	if f.ListErr != nil {
		if err := f.ListErr(assetType, idx); err != nil {
			return nil, err
		}
	}

	if idx >= len(pages) {
		return &remote.ListPage{}, nil
	}

	page := pages[idx]
	out := &remote.ListPage{Items: page.Items}
	if idx+1 < len(pages) {
		out.NextToken = fmt.Sprintf("page-%d", idx+1)
	}
	return out, nil
}

// Describe implements ResourceAPI
func (f *FakeAPI) Describe(ctx context.Context, assetType remote.AssetType, assetID string) (remote.Definition, error) {
	f.mu.Lock()
	f.DescribeCalls++
	f.mu.Unlock()

	if f.DescribeErr != nil {
		if err := f.DescribeErr(assetID); err != nil {
			return nil, err
		}
	}

	def, ok := f.Definitions[assetID]
	if !ok {
		return nil, syncerrors.New(syncerrors.ErrorTypeNotFound, "no such asset")
	}
	return def, nil
}

// GetPermissions implements ResourceAPI
func (f *FakeAPI) GetPermissions(ctx context.Context, assetType remote.AssetType, assetID string) ([]remote.Permission, error) {
	f.mu.Lock()
	f.PermissionsCalls++
	f.mu.Unlock()

	if f.PermissionsErr != nil {
		if err := f.PermissionsErr(assetID); err != nil {
			return nil, err
		}
	}
	return f.Permissions[assetID], nil
}

// GetTags implements ResourceAPI
func (f *FakeAPI) GetTags(ctx context.Context, arn string) ([]remote.Tag, error) {
	f.mu.Lock()
	f.TagsCalls++
	f.mu.Unlock()

	if f.TagsErr != nil {
		if err := f.TagsErr(arn); err != nil {
			return nil, err
		}
	}
	return f.Tags[arn], nil
}

// ListFolderMembers implements ResourceAPI
func (f *FakeAPI) ListFolderMembers(ctx context.Context, folderID string) ([]remote.FolderMember, error) {
	f.mu.Lock()
	f.MembersCalls++
	f.mu.Unlock()

	if f.MembersErr != nil {
		if err := f.MembersErr(folderID); err != nil {
			return nil, err
		}
	}
	return f.Members[folderID], nil
}

// ListIngestions implements ResourceAPI
func (f *FakeAPI) ListIngestions(ctx context.Context, datasetID string) ([]remote.Ingestion, error) {
	f.mu.Lock()
	f.IngestionsCalls++
	f.mu.Unlock()

	if f.IngestionsErr != nil {
		if err := f.IngestionsErr(datasetID); err != nil {
			return nil, err
		}
	}
	return f.Ingestions[datasetID], nil
}

// Calls returns the call counters under the lock
func (f *FakeAPI) Calls() (list, describe, permissions, tags, members, ingestions int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ListCalls, f.DescribeCalls, f.PermissionsCalls, f.TagsCalls, f.MembersCalls, f.IngestionsCalls
}
