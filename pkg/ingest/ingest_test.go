package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorlake/assetsync/pkg/limiter"
	"github.com/mirrorlake/assetsync/pkg/remote"
	"github.com/mirrorlake/assetsync/pkg/retry"
	"github.com/mirrorlake/assetsync/pkg/syncerrors"
	"github.com/mirrorlake/assetsync/pkg/testutil"
)

var baseTime = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

func dataset(id, importMode string) remote.AssetSummary {
	return remote.AssetSummary{
		ID:         id,
		Name:       "name-" + id,
		ARN:        "arn:analytics:dataset/" + id,
		ImportMode: importMode,
	}
}

func ingestion(id string, created time.Time, status string) remote.Ingestion {
	return remote.Ingestion{
		ID:          id,
		Status:      status,
		CreatedTime: created,
	}
}

func newTestProcessor(api remote.ResourceAPI) *Processor {
	return NewProcessor(api, limiter.New(5), retry.NoRetryPolicy())
}

func TestCollectFiltersIncrementalDatasets(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.Ingestions["ds1"] = []remote.Ingestion{ingestion("i1", baseTime, remote.IngestionStatusCompleted)}

	summary, err := newTestProcessor(api).Collect(context.Background(), []remote.AssetSummary{
		dataset("ds1", remote.ImportModeIncremental),
		dataset("ds2", remote.ImportModeDirectQuery),
		dataset("ds3", ""),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalDatasets)
	assert.Len(t, summary.Ingestions, 1)

	_, _, _, _, _, ingestions := api.Calls()
	assert.Equal(t, 1, ingestions)
}

func TestCollectEmptyInput(t *testing.T) {
	summary, err := newTestProcessor(testutil.NewFakeAPI()).Collect(context.Background(), nil)

	require.NoError(t, err)
	assert.Zero(t, summary.TotalDatasets)
	assert.Empty(t, summary.Ingestions)
}

func TestCollectSortsNewestFirst(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.Ingestions["ds1"] = []remote.Ingestion{
		ingestion("old", baseTime.Add(-2*time.Hour), remote.IngestionStatusCompleted),
		ingestion("new", baseTime, remote.IngestionStatusCompleted),
	}
	api.Ingestions["ds2"] = []remote.Ingestion{
		ingestion("mid", baseTime.Add(-time.Hour), remote.IngestionStatusCompleted),
	}

	summary, err := newTestProcessor(api).Collect(context.Background(), []remote.AssetSummary{
		dataset("ds1", remote.ImportModeIncremental),
		dataset("ds2", remote.ImportModeIncremental),
	})

	require.NoError(t, err)
	require.Len(t, summary.Ingestions, 3)
	assert.Equal(t, "new", summary.Ingestions[0].ID)
	assert.Equal(t, "mid", summary.Ingestions[1].ID)
	assert.Equal(t, "old", summary.Ingestions[2].ID)
}

func TestCollectStatusCounts(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.Ingestions["ds1"] = []remote.Ingestion{
		ingestion("i1", baseTime, remote.IngestionStatusQueued),
		ingestion("i2", baseTime, remote.IngestionStatusInitialized),
		ingestion("i3", baseTime, remote.IngestionStatusRunning),
		ingestion("i4", baseTime, remote.IngestionStatusCompleted),
		ingestion("i5", baseTime, remote.IngestionStatusFailed),
		ingestion("i6", baseTime, remote.IngestionStatusCancelled),
	}

	summary, err := newTestProcessor(api).Collect(context.Background(), []remote.AssetSummary{
		dataset("ds1", remote.ImportModeIncremental),
	})

	require.NoError(t, err)
	assert.Equal(t, 3, summary.RunningCount)
	assert.Equal(t, 1, summary.CompletedCount)
	assert.Equal(t, 2, summary.FailedCount)
}

func TestCollectToleratesFailedDataset(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.Ingestions["good"] = []remote.Ingestion{ingestion("i1", baseTime, remote.IngestionStatusCompleted)}
	api.IngestionsErr = func(datasetID string) error {
		if datasetID == "bad" {
			return syncerrors.New(syncerrors.ErrorTypeAccessDenied, "forbidden")
		}
		return nil
	}

	summary, err := newTestProcessor(api).Collect(context.Background(), []remote.AssetSummary{
		dataset("good", remote.ImportModeIncremental),
		dataset("bad", remote.ImportModeIncremental),
	})

	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalDatasets)
	assert.Equal(t, 1, summary.FailedDatasets)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "bad")
	assert.Len(t, summary.Ingestions, 1)
}

func TestCollectAttachesDatasetIdentity(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.Ingestions["ds1"] = []remote.Ingestion{ingestion("i1", baseTime, remote.IngestionStatusCompleted)}

	summary, err := newTestProcessor(api).Collect(context.Background(), []remote.AssetSummary{
		dataset("ds1", remote.ImportModeIncremental),
	})

	require.NoError(t, err)
	require.Len(t, summary.Ingestions, 1)
	assert.Equal(t, "ds1", summary.Ingestions[0].DatasetID)
	assert.Equal(t, "name-ds1", summary.Ingestions[0].DatasetName)
}
