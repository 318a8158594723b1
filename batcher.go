// batcher.go
// ----------
// Batcher coalesces "fetch one entity by ID" calls issued within a short
// window into one multi-ID request, then fans the result back out. Pending
// IDs are deduplicated; every new request resets the flush timer, and
// reaching the per-request ID cap flushes immediately. An ID missing from a
// successful batch response resolves its callers with nil (not found). A
// failed batch request falls back to one request per ID so that one ID's
// failure never fails its siblings. Every call settles exactly once.
package twitchbridge

import (
	"context"
	"net/url"
	"sync"

	"github.com/jonboulle/clockwork"
)

// maxBatchSize is the Helix ceiling on IDs per multi-ID request.
const maxBatchSize = 100

// BatcherConfig describes how a Batcher builds and decodes its multi-ID
// request.
type BatcherConfig[T any] struct {
	// Path is the Helix resource path, e.g. "games".
	Path string

	// QueryParam is the repeated query parameter carrying the IDs, e.g. "id".
	QueryParam string

	// KeyOf extracts from a decoded entity the value matched against the
	// requested IDs.
	KeyOf func(*T) string

	// MaxBatchSize caps IDs per request; defaults to 100.
	MaxBatchSize int
}

type batchResult[T any] struct {
	item *T
	err  error
}

type Batcher[T any] struct {
	client *Client
	cfg    BatcherConfig[T]
	clock  clockwork.Clock

	// mu guards pendingIDs, waiters and timer; all mutation happens inside
	// Request and the flush callback, never mid-iteration elsewhere.
	mu         sync.Mutex
	pendingIDs []string
	waiters    map[string][]chan batchResult[T]
	timer      clockwork.Timer
}

// NewBatcher builds a batcher issuing requests through the given client,
// using the client's configured batch delay as the coalescing window.
func NewBatcher[T any](client *Client, cfg BatcherConfig[T]) *Batcher[T] {
	if cfg.MaxBatchSize <= 0 || cfg.MaxBatchSize > maxBatchSize {
		cfg.MaxBatchSize = maxBatchSize
	}
	return &Batcher[T]{
		client:  client,
		cfg:     cfg,
		clock:   client.clock,
		waiters: make(map[string][]chan batchResult[T]),
	}
}

// Request asks for the entity with the given ID, coalescing with other
// concurrent callers. It returns (nil, nil) when the entity does not exist.
func (b *Batcher[T]) Request(ctx context.Context, id string) (*T, error) {
	ch := make(chan batchResult[T], 1)

	b.mu.Lock()
	if _, pending := b.waiters[id]; !pending {
		b.pendingIDs = append(b.pendingIDs, id)
	}
	b.waiters[id] = append(b.waiters[id], ch)

	if len(b.pendingIDs) >= b.cfg.MaxBatchSize {
		ids, waiters := b.takeBatch()
		b.mu.Unlock()
		go b.flush(ids, waiters)
	} else {
		if b.timer != nil {
			b.timer.Stop()
		}
		b.timer = b.clock.AfterFunc(b.client.batchDelay, b.flushOnTimer)
		b.mu.Unlock()
	}

	select {
	case r := <-ch:
		return r.item, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// takeBatch removes and returns the current pending batch. Caller holds the
// lock.
func (b *Batcher[T]) takeBatch() ([]string, map[string][]chan batchResult[T]) {
	ids := b.pendingIDs
	b.pendingIDs = nil
	waiters := make(map[string][]chan batchResult[T], len(ids))
	for _, id := range ids {
		waiters[id] = b.waiters[id]
		delete(b.waiters, id)
	}
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	return ids, waiters
}

func (b *Batcher[T]) flushOnTimer() {
	b.mu.Lock()
	ids, waiters := b.takeBatch()
	b.mu.Unlock()
	if len(ids) > 0 {
		b.flush(ids, waiters)
	}
}

// flush issues one multi-ID request and resolves every waiter. Callers have
// detached from any per-call context by now, so the flush runs on its own.
func (b *Batcher[T]) flush(ids []string, waiters map[string][]chan batchResult[T]) {
	ctx := context.Background()

	items, err := b.execute(ctx, ids)
	if err != nil {
		// Batch-level failure: retry each ID on its own so errors stay
		// isolated per ID.
		for _, id := range ids {
			item, idErr := b.requestSingle(ctx, id)
			b.resolve(waiters[id], item, idErr)
		}
		return
	}

	byKey := make(map[string]*T, len(items))
	for i := range items {
		item := &items[i]
		byKey[b.cfg.KeyOf(item)] = item
	}
	for _, id := range ids {
		// Absent from the response is a legitimate "not found", not an error.
		b.resolve(waiters[id], byKey[id], nil)
	}
}

func (b *Batcher[T]) resolve(chans []chan batchResult[T], item *T, err error) {
	for _, ch := range chans {
		ch <- batchResult[T]{item: item, err: err}
	}
}

func (b *Batcher[T]) execute(ctx context.Context, ids []string) ([]T, error) {
	query := url.Values{}
	for _, id := range ids {
		query.Add(b.cfg.QueryParam, id)
	}
	var envelope struct {
		Data []T `json:"data"`
	}
	err := b.client.CallJSON(ctx, APIRequest{URL: b.cfg.Path, Query: query}, &envelope)
	if err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

func (b *Batcher[T]) requestSingle(ctx context.Context, id string) (*T, error) {
	items, err := b.execute(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	for i := range items {
		if b.cfg.KeyOf(&items[i]) == id {
			return &items[i], nil
		}
	}
	return nil, nil
}
