package remote

import "time"

// AssetType identifies a resource type exposed by the remote API
type AssetType string

const (
	AssetTypeDashboard  AssetType = "dashboard"
	AssetTypeAnalysis   AssetType = "analysis"
	AssetTypeDataset    AssetType = "dataset"
	AssetTypeDatasource AssetType = "datasource"
	AssetTypeFolder     AssetType = "folder"
	AssetTypeUser       AssetType = "user"
	AssetTypeGroup      AssetType = "group"
)

// RawSummary is the listing shape as returned by the remote API, before the
// validation/mapping gate normalizes it.
type RawSummary struct {
	AssetID         string    `json:"AssetId"`
	Name            string    `json:"Name"`
	Arn             string    `json:"Arn"`
	CreatedTime     time.Time `json:"CreatedTime"`
	LastUpdatedTime time.Time `json:"LastUpdatedTime"`
	// ImportMode is populated for datasets only (DIRECT_QUERY or INCREMENTAL)
	ImportMode string `json:"ImportMode,omitempty"`
}

// AssetSummary is the normalized identity of a listed asset. Immutable;
// lifetime is one export pass.
type AssetSummary struct {
	ID              string    `json:"assetId"`
	Name            string    `json:"assetName"`
	ARN             string    `json:"arn"`
	CreatedTime     time.Time `json:"createdTime"`
	LastUpdatedTime time.Time `json:"lastUpdatedTime"`
	ImportMode      string    `json:"importMode,omitempty"`
}

// ListPage is one page of a cursor-based listing
type ListPage struct {
	Items     []RawSummary
	NextToken string
}

// Definition is the opaque describe payload for an asset
type Definition map[string]interface{}

// Permission is one ACL-style grant on an asset
type Permission struct {
	Principal string   `json:"principal"`
	Actions   []string `json:"actions"`
}

// Tag is one key/value tag on an asset
type Tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// FolderMember is one entry of a folder's membership listing. MemberType may
// be empty when the API omits it; callers infer it from the member ARN.
type FolderMember struct {
	MemberID   string `json:"memberId"`
	MemberArn  string `json:"memberArn"`
	MemberType string `json:"memberType,omitempty"`
}

// Ingestion import modes for datasets
const (
	ImportModeDirectQuery = "DIRECT_QUERY"
	ImportModeIncremental = "INCREMENTAL"
)

// Ingestion status vocabulary
const (
	IngestionStatusQueued      = "QUEUED"
	IngestionStatusInitialized = "INITIALIZED"
	IngestionStatusRunning     = "RUNNING"
	IngestionStatusCompleted   = "COMPLETED"
	IngestionStatusFailed      = "FAILED"
	IngestionStatusCancelled   = "CANCELLED"
)

// Ingestion is one refresh run of an incremental dataset
type Ingestion struct {
	ID           string    `json:"ingestionId"`
	Arn          string    `json:"arn"`
	DatasetID    string    `json:"datasetId"`
	DatasetName  string    `json:"datasetName"`
	Status       string    `json:"status"`
	RowsIngested int64     `json:"rowsIngested"`
	RowsDropped  int64     `json:"rowsDropped"`
	CreatedTime  time.Time `json:"createdTime"`
	TimeInSecs   int64     `json:"ingestionTimeInSeconds"`
}
