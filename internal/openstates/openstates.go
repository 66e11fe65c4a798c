// Package openstates implements the OpenStates.org API v3 client.
//
// Authentication is a header API key (X-API-KEY). Listings wrap items in a
// results key and signal further pages via pagination.next with a numeric
// page parameter.
package openstates

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/opendiscourse/opendiscourse/internal/apiclient"
)

// BaseURL is the OpenStates API v3 root.
const BaseURL = "https://v3.openstates.org"

// Conservative default; the real budget varies by API tier.
const (
	rateLimitCalls  = 1000
	rateLimitPeriod = time.Hour
)

// Client is an OpenStates API client.
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

// New creates an OpenStates client. The key travels in the X-API-KEY header,
// never in the URL, and is never logged.
func New(apiKey string, logger *slog.Logger, opts ...Option) *Client {
	cfg := apiclient.Config{
		BaseURL:         BaseURL,
		RateLimitCalls:  rateLimitCalls,
		RateLimitPeriod: rateLimitPeriod,
		UserAgent:       "opendiscourse-data-ingestion/1.0",
		Headers: func(h http.Header) {
			h.Set("X-API-KEY", apiKey)
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

func extractItems(page map[string]any) []apiclient.Item {
	raw, ok := page["results"]
	if !ok {
		return nil
	}
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

// nextPage extracts the page number out of pagination.next.
func nextPage(page map[string]any) *apiclient.PageToken {
	pagination, _ := page["pagination"].(map[string]any)
	if pagination == nil {
		return nil
	}
	nextURL, _ := pagination["next"].(string)
	if nextURL == "" {
		return nil
	}
	parsed, err := url.Parse(nextURL)
	if err != nil {
		return nil
	}
	pageStr := parsed.Query().Get("page")
	if pageStr == "" {
		return nil
	}
	n, err := strconv.Atoi(pageStr)
	if err != nil {
		return nil
	}
	return &apiclient.PageToken{Page: n}
}

// Jurisdictions lists all available jurisdictions.
func (c *Client) Jurisdictions(ctx context.Context) ([]apiclient.Item, error) {
	resp, err := c.api.Get(ctx, "jurisdictions", nil)
	if err != nil {
		return nil, err
	}
	return extractItems(resp), nil
}

// BillSearch filters a SearchBills call. Zero values are omitted.
type BillSearch struct {
	Jurisdiction   string
	Session        string
	Chamber        string
	Query          string
	Subject        string
	Classification string
	UpdatedSince   string // YYYY-MM-DD

	// Include asks the API to embed child objects (sponsorships, actions,
	// votes) in each bill payload.
	Include []string
}

// SearchBills searches bills matching the filter. pageSize defaults to 20,
// the API's per_page ceiling for bill listings with embedded children.
func (c *Client) SearchBills(ctx context.Context, filter BillSearch, pageSize, maxPages int) ([]apiclient.Item, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	extra := url.Values{}
	set := func(key, val string) {
		if val != "" {
			extra.Set(key, val)
		}
	}
	set("jurisdiction", filter.Jurisdiction)
	set("session", filter.Session)
	set("chamber", filter.Chamber)
	set("q", filter.Query)
	set("subject", filter.Subject)
	set("classification", filter.Classification)
	set("updated_since", filter.UpdatedSince)
	for _, inc := range filter.Include {
		extra.Add("include", inc)
	}
	extra.Set("per_page", strconv.Itoa(pageSize))

	return c.api.CollectAll(ctx, "bills", apiclient.PageOptions{PageSize: pageSize, MaxPages: maxPages, Extra: extra})
}

// Bill returns one bill by its internal OCD id.
func (c *Client) Bill(ctx context.Context, billID string) (apiclient.Item, error) {
	return c.api.Get(ctx, "bills/"+billID, nil)
}

// People lists people (legislators, governors) for a jurisdiction.
func (c *Client) People(ctx context.Context, jurisdiction string, pageSize int) ([]apiclient.Item, error) {
	if pageSize <= 0 {
		pageSize = 50
	}
	extra := url.Values{}
	if jurisdiction != "" {
		extra.Set("jurisdiction", jurisdiction)
	}
	extra.Set("per_page", strconv.Itoa(pageSize))
	return c.api.CollectAll(ctx, "people", apiclient.PageOptions{PageSize: pageSize, Extra: extra})
}

// States returns the US state abbreviations present in the jurisdiction list.
func (c *Client) States(ctx context.Context) ([]string, error) {
	jurisdictions, err := c.Jurisdictions(ctx)
	if err != nil {
		return nil, err
	}
	var states []string
	for _, j := range jurisdictions {
		id, _ := j["id"].(string)
		if _, rest, ok := strings.Cut(id, "country:us/state:"); ok {
			state, _, _ := strings.Cut(rest, "/")
			states = append(states, state)
		}
	}
	return states, nil
}

// Probe issues a minimal request to verify the API key works.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.api.Get(ctx, "jurisdictions", url.Values{"per_page": {"1"}})
	return err
}
