package export

import (
	"time"

	"github.com/mirrorlake/assetsync/pkg/remote"
)

// StorageType selects how records of an asset type are persisted
type StorageType string

const (
	// StorageIndividual stores one object per asset, keyed by asset ID
	StorageIndividual StorageType = "individual"
	// StorageCollection merges all assets of a type into one shared object
	StorageCollection StorageType = "collection"
)

// Capabilities declares which detail categories apply to an asset type.
// A false capability means the corresponding fetch degrades to an empty
// default rather than being skipped silently; downstream consumers may always
// assume the field is present.
type Capabilities struct {
	HasDefinition  bool
	HasPermissions bool
	HasTags        bool
	HasSpecial     bool
}

// RefreshOptions selects which capability-gated categories to fetch for one
// run. A nil RefreshOptions on the process context means full refresh.
type RefreshOptions struct {
	Definitions bool `json:"definitions"`
	Permissions bool `json:"permissions"`
	Tags        bool `json:"tags"`
}

// ProcessContext is the caller-supplied policy for one Process invocation
type ProcessContext struct {
	ForceRefresh   bool
	RefreshOptions *RefreshOptions
}

// Status is the outcome of processing one asset
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// FetchDetails records whether each category was fetched in this run, not its
// content. Callers and tests use it to verify refresh-option gating.
type FetchDetails struct {
	Definition  bool `json:"definition"`
	Permissions bool `json:"permissions"`
	Tags        bool `json:"tags"`
}

// ProcessingResult is the per-asset outcome of one Process invocation.
// It is never persisted; only the underlying record is.
type ProcessingResult struct {
	AssetID   string       `json:"assetId"`
	AssetName string       `json:"assetName"`
	Status    Status       `json:"status"`
	Error     string       `json:"error,omitempty"`
	Details   FetchDetails `json:"details"`
}

// Record is the persisted payload for one asset: identity plus the
// describe/permissions/tags/special results merged into the storage shape.
type Record struct {
	AssetID         string                 `json:"assetId"`
	AssetName       string                 `json:"assetName"`
	Arn             string                 `json:"arn"`
	AssetType       remote.AssetType       `json:"assetType"`
	CreatedTime     time.Time              `json:"createdTime"`
	LastUpdatedTime time.Time              `json:"lastUpdatedTime"`
	Definition      remote.Definition      `json:"definition,omitempty"`
	Permissions     []remote.Permission    `json:"permissions"`
	Tags            []remote.Tag           `json:"tags"`
	Special         map[string]interface{} `json:"special,omitempty"`
}
