// paginator.go
// ------------
// Cursor-threaded pagination over Helix list endpoints. A paginator yields
// pages lazily and strictly forward: each fetch overlays the previous page's
// cursor onto the original query, and advancing stops when a page reports no
// cursor. A paginator is not resumable once exhausted; restart by creating a
// new one. Page item mapping from the raw wire shape to the typed shape is
// memoized per page.
package twitchbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
)

// Page is one fetched page of results. Data maps the raw items through the
// paginator's mapper on first access and caches the result; mapping happens
// at most once per page.
type Page[D, T any] struct {
	raw    []D
	mapper func(D) T

	mapOnce sync.Once
	items   []T

	// Cursor is the opaque token for the next page; empty on the last page.
	Cursor string

	// Total is the item count reported alongside this page, for endpoints
	// that report one; -1 otherwise.
	Total int

	// RawBody is the full response body, for callers that need envelope
	// fields beyond data/pagination/total.
	RawBody []byte
}

func (p *Page[D, T]) Data() []T {
	p.mapOnce.Do(func() {
		p.items = make([]T, 0, len(p.raw))
		for _, d := range p.raw {
			p.items = append(p.items, p.mapper(d))
		}
	})
	return p.items
}

// Len returns the number of items on the page without triggering mapping.
func (p *Page[D, T]) Len() int {
	return len(p.raw)
}

// Paginator walks a list endpoint page by page. It is safe for use from a
// single logical caller; page N+1 is never requested before page N resolved,
// since its cursor comes from page N.
type Paginator[D, T any] struct {
	client *Client
	req    APIRequest
	mapper func(D) T

	// unwrapField names an envelope key holding the item array one level
	// below data, for the endpoints that nest their list (e.g. schedule
	// segments). Empty means data itself is the array.
	unwrapField string

	mu        sync.Mutex
	cursor    string
	started   bool
	finished  bool
	lastTotal int
}

// NewPaginator builds a paginator over req, mapping each raw item with
// mapper.
func NewPaginator[D, T any](client *Client, req APIRequest, mapper func(D) T) *Paginator[D, T] {
	return &Paginator[D, T]{client: client, req: req, mapper: mapper, lastTotal: -1}
}

// NewNestedPaginator builds a paginator for endpoints whose item array is
// nested one level inside the data envelope under the given field name.
func NewNestedPaginator[D, T any](client *Client, req APIRequest, field string, mapper func(D) T) *Paginator[D, T] {
	return &Paginator[D, T]{client: client, req: req, mapper: mapper, unwrapField: field, lastTotal: -1}
}

// GetNext fetches the next page. It returns (nil, nil) once the sequence is
// exhausted.
func (p *Paginator[D, T]) GetNext(ctx context.Context) (*Page[D, T], error) {
	p.mu.Lock()
	if p.finished {
		p.mu.Unlock()
		return nil, nil
	}
	cursor := p.cursor
	p.mu.Unlock()

	page, err := p.fetch(ctx, cursor)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.started = true
	p.cursor = page.Cursor
	if page.Cursor == "" {
		p.finished = true
	}
	if page.Total >= 0 {
		p.lastTotal = page.Total
	}
	p.mu.Unlock()
	return page, nil
}

// ForEachPage drains the paginator, invoking fn per page. A non-nil error
// from fn stops iteration.
func (p *Paginator[D, T]) ForEachPage(ctx context.Context, fn func(*Page[D, T]) error) error {
	for {
		page, err := p.GetNext(ctx)
		if err != nil {
			return err
		}
		if page == nil {
			return nil
		}
		if err := fn(page); err != nil {
			return err
		}
	}
}

// All collects every item across every remaining page.
func (p *Paginator[D, T]) All(ctx context.Context) ([]T, error) {
	var items []T
	err := p.ForEachPage(ctx, func(page *Page[D, T]) error {
		items = append(items, page.Data()...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Total returns the last-known total item count for endpoints that report
// one. When no page has been fetched yet it issues a single page fetch
// purely to obtain the metadata, without advancing the paginator.
func (p *Paginator[D, T]) Total(ctx context.Context) (int, error) {
	p.mu.Lock()
	if p.started || p.lastTotal >= 0 {
		total := p.lastTotal
		p.mu.Unlock()
		if total < 0 {
			return 0, fmt.Errorf("endpoint %q does not report a total", p.req.URL)
		}
		return total, nil
	}
	p.mu.Unlock()

	page, err := p.fetch(ctx, "")
	if err != nil {
		return 0, err
	}
	if page.Total < 0 {
		return 0, fmt.Errorf("endpoint %q does not report a total", p.req.URL)
	}
	p.mu.Lock()
	p.lastTotal = page.Total
	p.mu.Unlock()
	return page.Total, nil
}

func (p *Paginator[D, T]) fetch(ctx context.Context, cursor string) (*Page[D, T], error) {
	req := p.req
	query := make(url.Values, len(p.req.Query)+1)
	for key, values := range p.req.Query {
		query[key] = values
	}
	if cursor != "" {
		query.Set("after", cursor)
	}
	req.Query = query

	resp, err := p.client.SendRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	return p.decodePage(resp)
}

func (p *Paginator[D, T]) decodePage(resp *APIResponse) (*Page[D, T], error) {
	var envelope struct {
		Data       json.RawMessage `json:"data"`
		Pagination struct {
			Cursor string `json:"cursor"`
		} `json:"pagination"`
		Total *int `json:"total"`
	}
	if err := resp.DecodeJSON(&envelope); err != nil {
		return nil, err
	}

	itemsRaw := envelope.Data
	if p.unwrapField != "" && len(itemsRaw) > 0 {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(envelope.Data, &inner); err != nil {
			return nil, fmt.Errorf("unwrapping nested %q envelope: %w", p.unwrapField, err)
		}
		itemsRaw = inner[p.unwrapField]
	}

	var raw []D
	if len(itemsRaw) > 0 && string(itemsRaw) != "null" {
		if err := json.Unmarshal(itemsRaw, &raw); err != nil {
			return nil, fmt.Errorf("decoding page items: %w", err)
		}
	}

	total := -1
	if envelope.Total != nil {
		total = *envelope.Total
	}
	return &Page[D, T]{
		raw:     raw,
		mapper:  p.mapper,
		Cursor:  envelope.Pagination.Cursor,
		Total:   total,
		RawBody: resp.Body,
	}, nil
}
