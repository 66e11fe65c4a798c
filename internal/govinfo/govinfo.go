// Package govinfo implements the GovInfo.gov API client.
//
// Authentication is a query-parameter API key. Listings wrap items in
// packages, granules or results, and further pages are signalled by a
// nextPage URL carrying an opaque offsetMark token — the primary token-style
// pagination idiom the shared loop is built around.
package govinfo

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/opendiscourse/opendiscourse/internal/apiclient"
)

// BaseURL is the GovInfo.gov API root.
const BaseURL = "https://api.govinfo.gov"

// GovInfo allows 5000 requests per hour per key.
const (
	rateLimitCalls  = 5000
	rateLimitPeriod = time.Hour
)

// Client is a GovInfo.gov API client.
type Client struct {
	api *apiclient.Client
}

// Option overrides a transport setting, primarily for tests.
type Option func(*apiclient.Config)

// WithBaseURL points the client at a different API root.
func WithBaseURL(u string) Option { return func(c *apiclient.Config) { c.BaseURL = u } }

// WithHTTPOptions applies shared transport settings from configuration.
func WithHTTPOptions(timeout time.Duration, maxRetries int) Option {
	return func(c *apiclient.Config) {
		c.Timeout = timeout
		c.MaxRetries = maxRetries
	}
}

// New creates a GovInfo client. The key is injected as a query parameter on
// every request and never logged.
func New(apiKey string, logger *slog.Logger, opts ...Option) *Client {
	cfg := apiclient.Config{
		BaseURL:         BaseURL,
		RateLimitCalls:  rateLimitCalls,
		RateLimitPeriod: rateLimitPeriod,
		UserAgent:       "opendiscourse-data-ingestion/1.0",
		Params: func(q url.Values) {
			q.Set("api_key", apiKey)
		},
		Hooks: apiclient.Hooks{
			ExtractItems: extractItems,
			NextPage:     nextPage,
		},
		Logger: logger,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Client{api: apiclient.New(cfg)}
}

// extractItems handles the per-endpoint wrapper keys GovInfo uses.
func extractItems(page map[string]any) []apiclient.Item {
	for _, key := range []string{"packages", "granules", "results"} {
		if raw, ok := page[key]; ok {
			return toItems(raw)
		}
	}
	return nil
}

// nextPage extracts the offsetMark token out of the nextPage URL.
func nextPage(page map[string]any) *apiclient.PageToken {
	nextURL, _ := page["nextPage"].(string)
	if nextURL == "" {
		return nil
	}
	parsed, err := url.Parse(nextURL)
	if err != nil {
		return nil
	}
	mark := parsed.Query().Get("offsetMark")
	if mark == "" {
		return nil
	}
	return &apiclient.PageToken{OffsetMark: mark}
}

func toItems(raw any) []apiclient.Item {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	items := make([]apiclient.Item, 0, len(list))
	for _, entry := range list {
		if m, ok := entry.(map[string]any); ok {
			items = append(items, m)
		}
	}
	return items
}

// Collections returns the available collections.
func (c *Client) Collections(ctx context.Context) ([]apiclient.Item, error) {
	resp, err := c.api.Get(ctx, "collections", nil)
	if err != nil {
		return nil, err
	}
	return toItems(resp["collections"]), nil
}

// CollectionUpdates returns the packages updated in a collection within the
// date range. Dates are ISO timestamps (YYYY-MM-DDTHH:MM:SSZ); endDate may
// be empty.
func (c *Client) CollectionUpdates(ctx context.Context, collection, startDate, endDate string, pageSize int) ([]apiclient.Item, error) {
	endpoint := "collections/" + collection + "/" + startDate
	if endDate != "" {
		endpoint += "/" + endDate
	}
	return c.api.CollectAll(ctx, endpoint, apiclient.PageOptions{PageSize: pageSize})
}

// PublishedPackages returns packages published within the date range,
// optionally restricted to the given collection codes.
func (c *Client) PublishedPackages(ctx context.Context, startDate, endDate string, collections []string, pageSize int) ([]apiclient.Item, error) {
	endpoint := "published/" + startDate
	if endDate != "" {
		endpoint += "/" + endDate
	}
	extra := url.Values{}
	if len(collections) > 0 {
		extra.Set("collection", strings.Join(collections, ","))
	}
	return c.api.CollectAll(ctx, endpoint, apiclient.PageOptions{PageSize: pageSize, Extra: extra})
}

// PackageSummary returns the summary metadata for a package.
func (c *Client) PackageSummary(ctx context.Context, packageID string) (apiclient.Item, error) {
	return c.api.Get(ctx, "packages/"+packageID+"/summary", nil)
}

// PackageGranules returns the granules (sub-documents) within a package.
func (c *Client) PackageGranules(ctx context.Context, packageID string, pageSize int) ([]apiclient.Item, error) {
	endpoint := "packages/" + packageID + "/granules"
	return c.api.CollectAll(ctx, endpoint, apiclient.PageOptions{PageSize: pageSize})
}

// GranuleSummary returns the summary metadata for one granule, including
// download links.
func (c *Client) GranuleSummary(ctx context.Context, packageID, granuleID string) (apiclient.Item, error) {
	return c.api.Get(ctx, "packages/"+packageID+"/granules/"+granuleID+"/summary", nil)
}

// Search runs a full-text search. Search is the one POST endpoint; it is
// token-paginated like the listings but callers drive it page by page.
func (c *Client) Search(ctx context.Context, query string, pageSize int, offsetMark, sortField, sortOrder string) (map[string]any, error) {
	if offsetMark == "" {
		offsetMark = "*"
	}
	if sortField == "" {
		sortField = "score"
	}
	if sortOrder == "" {
		sortOrder = "DESC"
	}
	body := map[string]any{
		"query":      query,
		"pageSize":   pageSize,
		"offsetMark": offsetMark,
		"sorts": []map[string]any{
			{"field": sortField, "sortOrder": sortOrder},
		},
	}
	return c.api.Post(ctx, "search", body, nil)
}

// CongressionalRecord returns Congressional Record (CREC) packages for the
// date range.
func (c *Client) CongressionalRecord(ctx context.Context, startDate, endDate string, pageSize int) ([]apiclient.Item, error) {
	return c.CollectionUpdates(ctx, "CREC", startDate, endDate, pageSize)
}

// Bills returns bill (BILLS) packages for the date range.
func (c *Client) Bills(ctx context.Context, startDate, endDate string, pageSize int) ([]apiclient.Item, error) {
	return c.CollectionUpdates(ctx, "BILLS", startDate, endDate, pageSize)
}

// FederalRegister returns Federal Register (FR) packages for the date range.
func (c *Client) FederalRegister(ctx context.Context, startDate, endDate string, pageSize int) ([]apiclient.Item, error) {
	return c.CollectionUpdates(ctx, "FR", startDate, endDate, pageSize)
}

// Probe issues a minimal request to verify the API key works.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.api.Get(ctx, "collections", nil)
	return err
}
