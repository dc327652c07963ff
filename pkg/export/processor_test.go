package export

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorlake/assetsync/pkg/limiter"
	"github.com/mirrorlake/assetsync/pkg/remote"
	"github.com/mirrorlake/assetsync/pkg/retry"
	"github.com/mirrorlake/assetsync/pkg/store"
	"github.com/mirrorlake/assetsync/pkg/syncerrors"
	"github.com/mirrorlake/assetsync/pkg/testutil"
)

var testUpdated = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testDeps(api remote.ResourceAPI, mem store.ObjectStore) Deps {
	return Deps{
		API:            api,
		Store:          mem,
		Collections:    NewCollectionStore(),
		Bucket:         "bucket",
		Prefix:         "export/",
		Global:         limiter.New(10),
		StoreReads:     limiter.New(5),
		StoreWrites:    limiter.New(5),
		Retry:          retry.NoRetryPolicy(),
		ThrottledRetry: retry.NoRetryPolicy(),
		SubFetchLimit:  4,
	}
}

func dashboardSummary(id string) remote.AssetSummary {
	return remote.AssetSummary{
		ID:              id,
		Name:            "name-" + id,
		ARN:             "arn:analytics:dashboard/" + id,
		CreatedTime:     testUpdated.Add(-time.Hour),
		LastUpdatedTime: testUpdated,
	}
}

func TestProcessFullRefresh(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.AddAsset(remote.AssetTypeDashboard, "d1", "Sales", testUpdated)
	mem := store.NewMemoryStore()
	deps := testDeps(api, mem)

	p, err := Create(remote.AssetTypeDashboard, deps)
	require.NoError(t, err)

	result := p.Process(context.Background(), dashboardSummary("d1"), ProcessContext{})

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, FetchDetails{Definition: true, Permissions: true, Tags: true}, result.Details)

	data, err := mem.GetObject(context.Background(), "bucket", "export/dashboard/d1.json")
	require.NoError(t, err)

	var rec Record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "d1", rec.AssetID)
	assert.NotNil(t, rec.Definition)
	assert.NotEmpty(t, rec.Permissions)
	assert.NotEmpty(t, rec.Tags)

	_, describes, perms, tags, _, _ := api.Calls()
	assert.Equal(t, 1, describes)
	assert.Equal(t, 1, perms)
	assert.Equal(t, 1, tags)
}

func TestProcessPermissionsOnlySkipsDescribe(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.AddAsset(remote.AssetTypeDashboard, "d1", "Sales", testUpdated)
	deps := testDeps(api, store.NewMemoryStore())

	p, err := Create(remote.AssetTypeDashboard, deps)
	require.NoError(t, err)

	result := p.Process(context.Background(), dashboardSummary("d1"), ProcessContext{
		RefreshOptions: &RefreshOptions{Permissions: true},
	})

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, FetchDetails{Permissions: true}, result.Details)

	_, describes, perms, tags, _, _ := api.Calls()
	assert.Equal(t, 0, describes)
	assert.Equal(t, 1, perms)
	assert.Equal(t, 0, tags)
}

func TestProcessNothingRequested(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.AddAsset(remote.AssetTypeDashboard, "d1", "Sales", testUpdated)
	mem := store.NewMemoryStore()
	deps := testDeps(api, mem)

	p, err := Create(remote.AssetTypeDashboard, deps)
	require.NoError(t, err)

	result := p.Process(context.Background(), dashboardSummary("d1"), ProcessContext{
		RefreshOptions: &RefreshOptions{},
	})

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, FetchDetails{}, result.Details)
	assert.Equal(t, 0, mem.Len())

	_, describes, perms, tags, _, _ := api.Calls()
	assert.Zero(t, describes+perms+tags)
}

func TestProcessSkipsUpToDateAsset(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.AddAsset(remote.AssetTypeDashboard, "d1", "Sales", testUpdated)
	mem := store.NewMemoryStore()
	deps := testDeps(api, mem)

	// The stored record carries the same timestamp the listing reports
	stored, _ := json.Marshal(&Record{AssetID: "d1", LastUpdatedTime: testUpdated})
	require.NoError(t, mem.PutObject(context.Background(), "bucket", "export/dashboard/d1.json", stored))

	p, err := Create(remote.AssetTypeDashboard, deps)
	require.NoError(t, err)

	result := p.Process(context.Background(), dashboardSummary("d1"), ProcessContext{})

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, FetchDetails{}, result.Details)

	_, describes, _, _, _, _ := api.Calls()
	assert.Equal(t, 0, describes)
}

func TestProcessForceRefreshOverridesSkip(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.AddAsset(remote.AssetTypeDashboard, "d1", "Sales", testUpdated)
	mem := store.NewMemoryStore()
	deps := testDeps(api, mem)

	stored, _ := json.Marshal(&Record{AssetID: "d1", LastUpdatedTime: testUpdated.Add(time.Hour)})
	require.NoError(t, mem.PutObject(context.Background(), "bucket", "export/dashboard/d1.json", stored))

	p, err := Create(remote.AssetTypeDashboard, deps)
	require.NoError(t, err)

	result := p.Process(context.Background(), dashboardSummary("d1"), ProcessContext{ForceRefresh: true})

	assert.Equal(t, StatusSuccess, result.Status)
	_, describes, _, _, _, _ := api.Calls()
	assert.Equal(t, 1, describes)
}

func TestProcessRefetchesStaleAsset(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.AddAsset(remote.AssetTypeDashboard, "d1", "Sales", testUpdated)
	mem := store.NewMemoryStore()
	deps := testDeps(api, mem)

	stored, _ := json.Marshal(&Record{AssetID: "d1", LastUpdatedTime: testUpdated.Add(-time.Hour)})
	require.NoError(t, mem.PutObject(context.Background(), "bucket", "export/dashboard/d1.json", stored))

	p, err := Create(remote.AssetTypeDashboard, deps)
	require.NoError(t, err)

	result := p.Process(context.Background(), dashboardSummary("d1"), ProcessContext{})

	assert.Equal(t, StatusSuccess, result.Status)
	_, describes, _, _, _, _ := api.Calls()
	assert.Equal(t, 1, describes)
}

func TestProcessDegradesFailedCategory(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.AddAsset(remote.AssetTypeDashboard, "d1", "Sales", testUpdated)
	api.PermissionsErr = func(string) error {
		return syncerrors.New(syncerrors.ErrorTypeThrottling, "slow down")
	}
	mem := store.NewMemoryStore()
	deps := testDeps(api, mem)

	p, err := Create(remote.AssetTypeDashboard, deps)
	require.NoError(t, err)

	result := p.Process(context.Background(), dashboardSummary("d1"), ProcessContext{})

	// A degraded category does not fail the asset
	assert.Equal(t, StatusSuccess, result.Status)

	data, err := mem.GetObject(context.Background(), "bucket", "export/dashboard/d1.json")
	require.NoError(t, err)

	var rec Record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.NotNil(t, rec.Permissions)
	assert.Empty(t, rec.Permissions)
	assert.NotNil(t, rec.Definition)
}

func TestProcessTreatsDeletedAssetAsNoData(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.AddAsset(remote.AssetTypeDashboard, "d1", "Sales", testUpdated)
	api.DescribeErr = func(string) error {
		return syncerrors.New(syncerrors.ErrorTypeNotFound, "deleted after listing")
	}
	mem := store.NewMemoryStore()
	deps := testDeps(api, mem)

	p, err := Create(remote.AssetTypeDashboard, deps)
	require.NoError(t, err)

	result := p.Process(context.Background(), dashboardSummary("d1"), ProcessContext{})

	assert.Equal(t, StatusSuccess, result.Status)

	data, err := mem.GetObject(context.Background(), "bucket", "export/dashboard/d1.json")
	require.NoError(t, err)

	var rec Record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Nil(t, rec.Definition)
	assert.NotEmpty(t, rec.Permissions)
}

func TestProcessPersistFailure(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.AddAsset(remote.AssetTypeDashboard, "d1", "Sales", testUpdated)
	mem := store.NewMemoryStore()
	mem.FailPuts = true
	deps := testDeps(api, mem)

	p, err := Create(remote.AssetTypeDashboard, deps)
	require.NoError(t, err)

	result := p.Process(context.Background(), dashboardSummary("d1"), ProcessContext{ForceRefresh: true})

	assert.Equal(t, StatusError, result.Status)
	assert.NotEmpty(t, result.Error)
}

func TestProcessIdempotent(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.AddAsset(remote.AssetTypeDashboard, "d1", "Sales", testUpdated)
	mem := store.NewMemoryStore()
	deps := testDeps(api, mem)

	p, err := Create(remote.AssetTypeDashboard, deps)
	require.NoError(t, err)

	summary := dashboardSummary("d1")

	result := p.Process(context.Background(), summary, ProcessContext{ForceRefresh: true})
	require.Equal(t, StatusSuccess, result.Status)
	first, err := mem.GetObject(context.Background(), "bucket", "export/dashboard/d1.json")
	require.NoError(t, err)

	result = p.Process(context.Background(), summary, ProcessContext{ForceRefresh: true})
	require.Equal(t, StatusSuccess, result.Status)
	second, err := mem.GetObject(context.Background(), "bucket", "export/dashboard/d1.json")
	require.NoError(t, err)

	// Re-running over unchanged remote state produces identical bytes
	assert.Equal(t, first, second)
}

func TestProcessCollectionStorageBatchesInsteadOfWriting(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.AddAsset(remote.AssetTypeUser, "u1", "Alice", testUpdated)
	mem := store.NewMemoryStore()
	deps := testDeps(api, mem)

	p, err := Create(remote.AssetTypeUser, deps)
	require.NoError(t, err)
	assert.Equal(t, "export/users.json", p.CollectionKey)

	summary := remote.AssetSummary{ID: "u1", Name: "Alice", ARN: "arn:analytics:user/u1"}
	result := p.Process(context.Background(), summary, ProcessContext{})

	assert.Equal(t, StatusSuccess, result.Status)
	// Nothing hits the object store until flush
	assert.Equal(t, 0, mem.Len())

	batch := deps.Collections.Get("bucket", "export/users.json")
	require.NotNil(t, batch)
	assert.Contains(t, batch.Data, "u1")
}

func TestProcessCapabilityGatedCategoryStaysEmpty(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.AddAsset(remote.AssetTypeUser, "u1", "Alice", testUpdated)
	deps := testDeps(api, store.NewMemoryStore())

	p, err := Create(remote.AssetTypeUser, deps)
	require.NoError(t, err)

	summary := remote.AssetSummary{ID: "u1", Name: "Alice", ARN: "arn:analytics:user/u1"}
	result := p.Process(context.Background(), summary, ProcessContext{})

	// Users have no permissions or tags; the request still counts as handled
	// and the record carries empty defaults
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, FetchDetails{Definition: true, Permissions: true, Tags: true}, result.Details)

	_, _, perms, tags, _, _ := api.Calls()
	assert.Zero(t, perms)
	assert.Zero(t, tags)

	rec := deps.Collections.Get("bucket", "export/users.json").Data["u1"]
	require.NotNil(t, rec)
	assert.Empty(t, rec.Permissions)
	assert.Empty(t, rec.Tags)
}
