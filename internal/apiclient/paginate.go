package apiclient

import (
	"context"
	"iter"
	"net/url"
	"strconv"
)

// PageOptions controls one Paginate call.
type PageOptions struct {
	// PageSize is the number of items requested per page. Default 100.
	PageSize int

	// MaxPages bounds the number of pages fetched. 0 means all.
	MaxPages int

	// Extra query parameters passed through on every page request.
	Extra url.Values
}

// Paginate iterates all items of endpoint as a lazy sequence. Each call
// starts a fresh cursor at the first page.
//
// Token-style pagination (pageSize/offsetMark) is attempted first; if the
// request itself fails — some upstreams reject token parameters outright —
// the same page is retried once in offset/limit style, and the loop carries
// both cursors forward so whichever the upstream honors stays coherent.
//
// Iteration terminates when a page yields no items, when the NextPage hook
// returns nil, or when MaxPages is reached. A request failure after the
// style fallback is yielded as the sequence's final error.
func (c *Client) Paginate(ctx context.Context, endpoint string, opts PageOptions) iter.Seq2[Item, error] {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	return func(yield func(Item, error) bool) {
		page := 0
		offset := 0
		offsetMark := "*"
		pageNum := 0 // numeric page cursor, sent only once a token names one

		for {
			if opts.MaxPages > 0 && page >= opts.MaxPages {
				return
			}

			resp, err := c.fetchPage(ctx, endpoint, pageSize, offset, offsetMark, pageNum, opts.Extra)
			if err != nil {
				yield(nil, err)
				return
			}

			items := c.hooks.ExtractItems(resp)
			if len(items) == 0 {
				return
			}

			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}

			next := c.hooks.NextPage(resp)
			if next == nil {
				return
			}

			if next.OffsetMark != "" {
				offsetMark = next.OffsetMark
			}
			if next.Page > 0 {
				pageNum = next.Page
			}
			offset += pageSize
			page++
		}
	}
}

// fetchPage requests one page, token-style first with a single offset-style
// fallback. Token style wins when both could apply.
func (c *Client) fetchPage(ctx context.Context, endpoint string, pageSize, offset int, offsetMark string, pageNum int, extra url.Values) (map[string]any, error) {
	tokenParams := url.Values{}
	for k, vs := range extra {
		for _, v := range vs {
			tokenParams.Add(k, v)
		}
	}
	tokenParams.Set("pageSize", strconv.Itoa(pageSize))
	tokenParams.Set("offsetMark", offsetMark)
	if pageNum > 0 {
		tokenParams.Set("page", strconv.Itoa(pageNum))
	}

	resp, tokenErr := c.Get(ctx, endpoint, tokenParams)
	if tokenErr == nil {
		return resp, nil
	}

	offsetParams := url.Values{}
	for k, vs := range extra {
		for _, v := range vs {
			offsetParams.Add(k, v)
		}
	}
	offsetParams.Set("limit", strconv.Itoa(pageSize))
	offsetParams.Set("offset", strconv.Itoa(offset))
	if pageNum > 0 {
		offsetParams.Set("page", strconv.Itoa(pageNum))
	}

	resp, offsetErr := c.Get(ctx, endpoint, offsetParams)
	if offsetErr != nil {
		// Both styles failed; the token error describes the primary idiom.
		return nil, tokenErr
	}
	return resp, nil
}

// CollectAll drains Paginate into a slice. Listing helpers on the upstream
// clients use this when the caller wants the whole batch up front.
func (c *Client) CollectAll(ctx context.Context, endpoint string, opts PageOptions) ([]Item, error) {
	var items []Item
	for item, err := range c.Paginate(ctx, endpoint, opts) {
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
