package export

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorlake/assetsync/pkg/config"
	"github.com/mirrorlake/assetsync/pkg/remote"
	"github.com/mirrorlake/assetsync/pkg/store"
	"github.com/mirrorlake/assetsync/pkg/syncerrors"
	"github.com/mirrorlake/assetsync/pkg/testutil"
)

func coordinatorConfig() *config.PipelineConfig {
	cfg := config.NewPipelineConfig("test")
	cfg.Storage.Bucket = "bucket"
	cfg.Storage.Prefix = "export/"
	cfg.Retry.Attempts = 1
	cfg.Retry.ThrottledAttempts = 1
	cfg.Retry.InitialDelay = time.Millisecond
	cfg.Retry.ThrottledInitialDelay = time.Millisecond
	return cfg
}

func TestProcessTypeExportsAllAssets(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.AddAsset(remote.AssetTypeDashboard, "d1", "Sales", testUpdated)
	api.AddAsset(remote.AssetTypeDashboard, "d2", "Marketing", testUpdated)
	api.AddAsset(remote.AssetTypeDashboard, "d3", "Finance", testUpdated)
	mem := store.NewMemoryStore()

	c := NewCoordinator(coordinatorConfig(), api, mem)

	result, err := c.ProcessType(context.Background(), remote.AssetTypeDashboard, ProcessContext{})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Listed)
	assert.Equal(t, 3, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 3, mem.Len())
}

func TestProcessTypeMultiplePages(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.AddAsset(remote.AssetTypeDashboard, "d1", "Sales", testUpdated)
	// Start a second page and put one asset on it
	api.Pages[remote.AssetTypeDashboard] = append(api.Pages[remote.AssetTypeDashboard], remote.ListPage{})
	api.AddAsset(remote.AssetTypeDashboard, "d2", "Marketing", testUpdated)
	mem := store.NewMemoryStore()

	c := NewCoordinator(coordinatorConfig(), api, mem)

	result, err := c.ProcessType(context.Background(), remote.AssetTypeDashboard, ProcessContext{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, 2, result.Listed)
	assert.Equal(t, 2, result.Succeeded)
}

func TestProcessTypeFailsOnMostlyInvalidListing(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.Pages[remote.AssetTypeDashboard] = []remote.ListPage{{
		Items: []remote.RawSummary{
			{AssetID: "d1", Name: "ok", Arn: "arn:analytics:dashboard/d1"},
			{Name: "invalid 1"},
			{Name: "invalid 2"},
		},
	}}

	c := NewCoordinator(coordinatorConfig(), api, store.NewMemoryStore())

	_, err := c.ProcessType(context.Background(), remote.AssetTypeDashboard, ProcessContext{})
	require.Error(t, err)
	assert.True(t, syncerrors.IsType(err, syncerrors.ErrorTypeValidation))
}

func TestRunWritesCollectionOnce(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.AddAsset(remote.AssetTypeUser, "u1", "Alice", testUpdated)
	api.AddAsset(remote.AssetTypeUser, "u2", "Bob", testUpdated)
	api.AddAsset(remote.AssetTypeUser, "u3", "Carol", testUpdated)
	mem := store.NewMemoryStore()

	c := NewCoordinator(coordinatorConfig(), api, mem)

	result, err := c.Run(context.Background(), []remote.AssetType{remote.AssetTypeUser}, ProcessContext{})
	require.NoError(t, err)
	require.Empty(t, result.TypeErrors)
	assert.Equal(t, 3, result.TypeResults[remote.AssetTypeUser].Succeeded)

	// All three users land in one object through a single write
	assert.Equal(t, 1, mem.Len())
	assert.Equal(t, 1, mem.PutCount("bucket", "export/users.json"))

	data, err := mem.GetObject(context.Background(), "bucket", "export/users.json")
	require.NoError(t, err)

	var contents map[string]*Record
	require.NoError(t, json.Unmarshal(data, &contents))
	assert.Len(t, contents, 3)
	assert.Contains(t, contents, "u1")
	assert.Contains(t, contents, "u2")
	assert.Contains(t, contents, "u3")
}

func TestRunBestEffortAcrossTypes(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.AddAsset(remote.AssetTypeUser, "u1", "Alice", testUpdated)
	api.ListErr = func(assetType remote.AssetType, page int) error {
		if assetType == remote.AssetTypeDashboard {
			return syncerrors.New(syncerrors.ErrorTypeInternal, "listing broken")
		}
		return nil
	}
	mem := store.NewMemoryStore()

	c := NewCoordinator(coordinatorConfig(), api, mem)

	result, err := c.Run(context.Background(), []remote.AssetType{remote.AssetTypeDashboard, remote.AssetTypeUser}, ProcessContext{})
	require.NoError(t, err)

	// The broken type is recorded; the healthy one still exported and flushed
	assert.Contains(t, result.TypeErrors, remote.AssetTypeDashboard)
	require.Contains(t, result.TypeResults, remote.AssetTypeUser)
	assert.Equal(t, 1, result.TypeResults[remote.AssetTypeUser].Succeeded)
	assert.Equal(t, 1, mem.PutCount("bucket", "export/users.json"))
}

func TestRunFlushFailurePropagates(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.AddAsset(remote.AssetTypeUser, "u1", "Alice", testUpdated)
	mem := store.NewMemoryStore()
	mem.FailPuts = true

	c := NewCoordinator(coordinatorConfig(), api, mem)

	_, err := c.Run(context.Background(), []remote.AssetType{remote.AssetTypeUser}, ProcessContext{})
	require.Error(t, err)
	assert.True(t, syncerrors.IsType(err, syncerrors.ErrorTypeStorage))

	// The batch survives for a retried flush
	mem.FailPuts = false
	require.NoError(t, c.FlushCollections(context.Background()))
	assert.Equal(t, 1, mem.Len())
}

func TestRunSkipsUnregisteredType(t *testing.T) {
	c := NewCoordinator(coordinatorConfig(), testutil.NewFakeAPI(), store.NewMemoryStore())

	result, err := c.Run(context.Background(), []remote.AssetType{"theme"}, ProcessContext{})
	require.NoError(t, err)
	assert.Contains(t, result.TypeErrors, remote.AssetType("theme"))
}
