package export

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/mirrorlake/assetsync/pkg/logger"
	"github.com/mirrorlake/assetsync/pkg/metrics"
	"github.com/mirrorlake/assetsync/pkg/remote"
	"github.com/mirrorlake/assetsync/pkg/syncerrors"
)

// Paginate drives a cursor-based listing to completion, strictly
// sequentially: each page request depends on the previous page's cursor.
// At least one page is always fetched. Returns the accumulated items and the
// page count. Progress is logged every progressEvery pages; this is cosmetic.
func Paginate(ctx context.Context, assetType remote.AssetType, progressEvery int, fetch func(nextToken string) (*remote.ListPage, error)) ([]remote.RawSummary, int, error) {
	var items []remote.RawSummary
	nextToken := ""
	pages := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, pages, err
		}

		page, err := fetch(nextToken)
		if err != nil {
			return nil, pages, syncerrors.Wrap(err, syncerrors.ErrorTypeConnection, "listing page fetch failed").
				WithDetail("asset_type", string(assetType)).
				WithDetail("page", pages+1)
		}

		pages++
		items = append(items, page.Items...)
		metrics.PagesFetched.WithLabelValues(string(assetType)).Inc()

		if progressEvery > 0 && pages%progressEvery == 0 {
			logger.Info("listing in progress",
				zap.String("asset_type", string(assetType)),
				zap.Int("pages", pages),
				zap.Int("items", len(items)))
		}

		if page.NextToken == "" {
			return items, pages, nil
		}
		nextToken = page.NextToken
	}
}

// MapSummaries normalizes raw listing items and enforces the validation gate:
// items with an empty identity before or after mapping are dropped and
// counted as invalid, and if invalid items exceed 50% the whole listing fails
// fast. A near-empty export from a degraded upstream is worse than no export.
func MapSummaries(assetType remote.AssetType, raw []remote.RawSummary) ([]remote.AssetSummary, error) {
	summaries := make([]remote.AssetSummary, 0, len(raw))
	invalid := 0

	for _, item := range raw {
		// Pre-map identity check: the item must carry some identity at all
		if item.AssetID == "" && item.Arn == "" {
			invalid++
			continue
		}

		id := item.AssetID
		if id == "" {
			// Some list calls omit the ID; fall back to the ARN's final segment
			if idx := strings.LastIndex(item.Arn, "/"); idx >= 0 {
				id = item.Arn[idx+1:]
			}
		}

		summary := remote.AssetSummary{
			ID:              id,
			Name:            item.Name,
			ARN:             item.Arn,
			CreatedTime:     item.CreatedTime,
			LastUpdatedTime: item.LastUpdatedTime,
			ImportMode:      item.ImportMode,
		}

		// Post-map identity check: mapping must have produced a usable ID
		if summary.ID == "" {
			invalid++
			continue
		}

		summaries = append(summaries, summary)
	}

	if invalid > 0 {
		logger.Warn("dropped invalid listing items",
			zap.String("asset_type", string(assetType)),
			zap.Int("invalid", invalid),
			zap.Int("valid", len(summaries)))
	}

	if len(raw) > 0 && invalid*2 > len(raw) {
		return nil, syncerrors.New(syncerrors.ErrorTypeValidation, "listing mostly invalid, refusing to proceed").
			WithDetail("asset_type", string(assetType)).
			WithDetail("invalid", invalid).
			WithDetail("total", len(raw))
	}

	return summaries, nil
}
