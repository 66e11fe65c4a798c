// Package congress implements the Congress.gov API v3 client.
//
// Authentication is a query-parameter API key (api.data.gov convention).
// Responses wrap items in a type-specific key (bills, members, ...) and
// signal further pages via a pagination.next link.
package congress

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/opendiscourse/opendiscourse/internal/apiclient"
)

// BaseURL is the Congress.gov API v3 root.
const BaseURL = "https://api.congress.gov/v3"

// Congress.gov allows 5000 requests per hour per key.
const (
	rateLimitCalls  = 5000
	rateLimitPeriod = time.Hour
)

// itemKeys are the response keys Congress.gov wraps listing items in, in
// lookup order.
var itemKeys = []string{
	"bills", "amendments", "members", "committees", "nominations",
	"treaties", "summaries", "actions", "cosponsors", "subjects",
	"relatedBills", "titles", "textVersions", "hearings", "reports",
}

// Client is a Congress.gov API client.
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

// New creates a Congress.gov client. The key is injected as a query
// parameter on every request and never logged.
func New(apiKey string, logger *slog.Logger, opts ...Option) *Client {
	cfg := apiclient.Config{
		BaseURL:         BaseURL,
		RateLimitCalls:  rateLimitCalls,
		RateLimitPeriod: rateLimitPeriod,
		UserAgent:       "opendiscourse-data-ingestion/1.0",
		Params: func(q url.Values) {
			q.Set("api_key", apiKey)
			q.Set("format", "json")
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

// extractItems finds the first known listing key in the response.
func extractItems(page map[string]any) []apiclient.Item {
	for _, key := range itemKeys {
		if raw, ok := page[key]; ok {
			return toItems(raw)
		}
	}
	return nil
}

// nextPage continues while pagination.next is present. Congress.gov paginates
// by numeric offset, which the shared loop advances itself, so the token
// carries no cursor of its own.
func nextPage(page map[string]any) *apiclient.PageToken {
	pagination, _ := page["pagination"].(map[string]any)
	if pagination == nil {
		return nil
	}
	if next, _ := pagination["next"].(string); next != "" {
		return &apiclient.PageToken{}
	}
	return nil
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

// ListBills lists bills, optionally scoped to a congress and bill type
// (hr, s, hjres, sjres, hconres, sconres, hres, sres).
func (c *Client) ListBills(ctx context.Context, congress int, billType string, pageSize, maxPages int) ([]apiclient.Item, error) {
	endpoint := "bill"
	if congress > 0 {
		endpoint += fmt.Sprintf("/%d", congress)
		if billType != "" {
			endpoint += "/" + billType
		}
	}
	return c.api.CollectAll(ctx, endpoint, apiclient.PageOptions{PageSize: pageSize, MaxPages: maxPages})
}

// BillDetails returns detailed information for one bill.
func (c *Client) BillDetails(ctx context.Context, congress int, billType string, number int) (apiclient.Item, error) {
	resp, err := c.api.Get(ctx, fmt.Sprintf("bill/%d/%s/%d", congress, billType, number), nil)
	if err != nil {
		return nil, err
	}
	bill, _ := resp["bill"].(map[string]any)
	return bill, nil
}

// BillActions returns the actions recorded for one bill.
func (c *Client) BillActions(ctx context.Context, congress int, billType string, number int) ([]apiclient.Item, error) {
	endpoint := fmt.Sprintf("bill/%d/%s/%d/actions", congress, billType, number)
	return c.api.CollectAll(ctx, endpoint, apiclient.PageOptions{})
}

// BillCosponsors returns the cosponsors of one bill.
func (c *Client) BillCosponsors(ctx context.Context, congress int, billType string, number int) ([]apiclient.Item, error) {
	endpoint := fmt.Sprintf("bill/%d/%s/%d/cosponsors", congress, billType, number)
	return c.api.CollectAll(ctx, endpoint, apiclient.PageOptions{})
}

// ListMembers lists members of Congress, optionally scoped to a congress.
func (c *Client) ListMembers(ctx context.Context, congress int, pageSize int) ([]apiclient.Item, error) {
	endpoint := "member"
	if congress > 0 {
		endpoint += fmt.Sprintf("/%d", congress)
	}
	return c.api.CollectAll(ctx, endpoint, apiclient.PageOptions{PageSize: pageSize})
}

// MemberDetails returns detailed information for a member by bioguide ID.
func (c *Client) MemberDetails(ctx context.Context, bioguideID string) (apiclient.Item, error) {
	resp, err := c.api.Get(ctx, "member/"+bioguideID, nil)
	if err != nil {
		return nil, err
	}
	member, _ := resp["member"].(map[string]any)
	return member, nil
}

// ListCommittees lists committees, optionally filtered by chamber
// (house, senate, joint).
func (c *Client) ListCommittees(ctx context.Context, congress int, chamber string, pageSize int) ([]apiclient.Item, error) {
	endpoint := "committee"
	if congress > 0 {
		endpoint += fmt.Sprintf("/%d", congress)
	}
	extra := url.Values{}
	if chamber != "" {
		extra.Set("chamber", chamber)
	}
	return c.api.CollectAll(ctx, endpoint, apiclient.PageOptions{PageSize: pageSize, Extra: extra})
}

// Probe issues a minimal request to verify the API key works.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.api.Get(ctx, "bill", url.Values{"limit": {"1"}})
	return err
}
