package remote

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/net/http2"

	"github.com/mirrorlake/assetsync/pkg/syncerrors"
)

// HTTPConfig configures the REST client for the resource-management API
type HTTPConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	Token   string `yaml:"token" json:"token"`

	MaxIdleConns        int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host" json:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout" json:"idle_conn_timeout"`
	DialTimeout         time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	RequestTimeout      time.Duration `yaml:"request_timeout" json:"request_timeout"`
	EnableHTTP2         bool          `yaml:"enable_http2" json:"enable_http2"`
	InsecureSkipVerify  bool          `yaml:"insecure_skip_verify" json:"insecure_skip_verify"`
}

// DefaultHTTPConfig returns production defaults for the REST client
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		DialTimeout:         10 * time.Second,
		RequestTimeout:      30 * time.Second,
		EnableHTTP2:         true,
	}
}

// HTTPAPI is the REST implementation of ResourceAPI. All request execution
// funnels through getJSON, which classifies HTTP failures into the error
// categories the retry layer understands.
type HTTPAPI struct {
	cfg    *HTTPConfig
	client *http.Client
}

// NewHTTPAPI creates a REST client for the resource-management API
func NewHTTPAPI(cfg *HTTPConfig) (*HTTPAPI, error) {
	if cfg == nil {
		return nil, syncerrors.New(syncerrors.ErrorTypeConfig, "http api config is required")
	}
	if cfg.BaseURL == "" {
		return nil, syncerrors.New(syncerrors.ErrorTypeConfig, "http api base_url is required")
	}

	defaults := DefaultHTTPConfig()
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = defaults.MaxIdleConns
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = defaults.MaxIdleConnsPerHost
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = defaults.IdleConnTimeout
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
	}

	if cfg.EnableHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeConfig, "failed to configure http2 transport")
		}
	}

	return &HTTPAPI{
		cfg: cfg,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
	}, nil
}

// resourcePath returns the collection path segment for an asset type
func resourcePath(assetType AssetType) string {
	if assetType == AssetTypeAnalysis {
		return "analyses"
	}
	return string(assetType) + "s"
}

type listResponse struct {
	Items     []RawSummary `json:"items"`
	NextToken string       `json:"nextToken"`
}

// List implements ResourceAPI
func (a *HTTPAPI) List(ctx context.Context, assetType AssetType, nextToken string, pageSize int) (*ListPage, error) {
	q := url.Values{}
	q.Set("page-size", strconv.Itoa(pageSize))
	if nextToken != "" {
		q.Set("next-token", nextToken)
	}

	var resp listResponse
	if err := a.getJSON(ctx, "/v1/"+resourcePath(assetType), q, &resp); err != nil {
		return nil, err
	}
	return &ListPage{Items: resp.Items, NextToken: resp.NextToken}, nil
}

// Describe implements ResourceAPI
func (a *HTTPAPI) Describe(ctx context.Context, assetType AssetType, assetID string) (Definition, error) {
	var def Definition
	path := "/v1/" + resourcePath(assetType) + "/" + url.PathEscape(assetID)
	if err := a.getJSON(ctx, path, nil, &def); err != nil {
		return nil, err
	}
	return def, nil
}

// GetPermissions implements ResourceAPI
func (a *HTTPAPI) GetPermissions(ctx context.Context, assetType AssetType, assetID string) ([]Permission, error) {
	var perms []Permission
	path := "/v1/" + resourcePath(assetType) + "/" + url.PathEscape(assetID) + "/permissions"
	if err := a.getJSON(ctx, path, nil, &perms); err != nil {
		return nil, err
	}
	return perms, nil
}

// GetTags implements ResourceAPI
func (a *HTTPAPI) GetTags(ctx context.Context, arn string) ([]Tag, error) {
	q := url.Values{}
	q.Set("resource-arn", arn)

	var tags []Tag
	if err := a.getJSON(ctx, "/v1/tags", q, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// ListFolderMembers implements ResourceAPI
func (a *HTTPAPI) ListFolderMembers(ctx context.Context, folderID string) ([]FolderMember, error) {
	var members []FolderMember
	path := "/v1/folders/" + url.PathEscape(folderID) + "/members"
	if err := a.getJSON(ctx, path, nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// ListIngestions implements ResourceAPI
func (a *HTTPAPI) ListIngestions(ctx context.Context, datasetID string) ([]Ingestion, error) {
	var ingestions []Ingestion
	path := "/v1/datasets/" + url.PathEscape(datasetID) + "/ingestions"
	if err := a.getJSON(ctx, path, nil, &ingestions); err != nil {
		return nil, err
	}
	return ingestions, nil
}

// getJSON executes one GET request and decodes the JSON body into out.
// Transport errors classify as connection (retryable); status codes map onto
// the error categories the retry and degradation layers act on.
func (a *HTTPAPI) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := a.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return syncerrors.Wrap(err, syncerrors.ErrorTypeInternal, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	if a.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.Token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return syncerrors.Wrap(err, syncerrors.ErrorTypeTimeout, "request cancelled").
				WithDetail("path", path)
		}
		return syncerrors.Wrap(err, syncerrors.ErrorTypeConnection, "request failed").
			WithDetail("path", path)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return classifyStatus(resp.StatusCode, path, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return syncerrors.Wrap(err, syncerrors.ErrorTypeData, "failed to decode response").
			WithDetail("path", path)
	}
	return nil
}

// classifyStatus maps an HTTP status code to an error category
func classifyStatus(status int, path, body string) error {
	msg := fmt.Sprintf("api returned %d for %s", status, path)

	var errType syncerrors.ErrorType
	switch {
	case status == http.StatusNotFound:
		errType = syncerrors.ErrorTypeNotFound
	case status == http.StatusForbidden || status == http.StatusUnauthorized:
		errType = syncerrors.ErrorTypeAccessDenied
	case status == http.StatusTooManyRequests:
		errType = syncerrors.ErrorTypeThrottling
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		errType = syncerrors.ErrorTypeTimeout
	case status == http.StatusServiceUnavailable || status == http.StatusBadGateway:
		errType = syncerrors.ErrorTypeConnection
	case status >= 500:
		errType = syncerrors.ErrorTypeConnection
	default:
		errType = syncerrors.ErrorTypeInternal
	}

	return syncerrors.New(errType, msg).
		WithDetail("status", status).
		WithDetail("body", body)
}
