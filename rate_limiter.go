// rate_limiter.go
// ----------------
// AdaptiveRateLimiter throttles Helix calls from the Ratelimit-* headers the
// server attaches to each response. State is partitioned by user identity
// (the empty partition is app-wide): each partition tracks the last reported
// limit, remaining count, and reset time. Before a send, a depleted
// partition waits for its reset; after a 429 the limiter waits out the reset
// and resends. Partitions never block one another, back-pressured requests
// within one partition go out in submission order, and a request is never
// rejected purely due to rate limiting.
package twitchbridge

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/opengovern/twitch-bridge/internal/timeutil"
)

const (
	headerRateLimitLimit     = "Ratelimit-Limit"
	headerRateLimitRemaining = "Ratelimit-Remaining"
	headerRateLimitReset     = "Ratelimit-Reset"

	// fallback delay after a 429 that carried no usable reset header
	default429Backoff = time.Second
)

type AdaptiveRateLimiter struct {
	clock clockwork.Clock

	mu         sync.Mutex
	partitions map[string]*adaptivePartition
}

type adaptivePartition struct {
	queue turnstile

	mu        sync.Mutex
	known     bool
	limit     int
	remaining int
	reset     time.Time
}

func NewAdaptiveRateLimiter(clock clockwork.Clock) *AdaptiveRateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AdaptiveRateLimiter{
		clock:      clock,
		partitions: make(map[string]*adaptivePartition),
	}
}

func (l *AdaptiveRateLimiter) partition(key string) *adaptivePartition {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.partitions[key]
	if !ok {
		p = &adaptivePartition{}
		l.partitions[key] = p
	}
	return p
}

// Do sends the request once the partition allows it, resending after a delay
// whenever the server answers 429 with a depleted remaining count. When the
// partition is back-pressured, callers queue and are dispatched in
// submission order.
func (l *AdaptiveRateLimiter) Do(ctx context.Context, partition string, send SendFunc) (*APIResponse, error) {
	p := l.partition(partition)

	if p.queue.busy() || p.delayUntilReady(l.clock.Now()) > 0 {
		release, err := p.queue.join(ctx)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	for {
		if delay := p.delayUntilReady(l.clock.Now()); delay > 0 {
			if err := l.wait(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		resp, err := send(ctx)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusTooManyRequests && timeutil.ParseIntHeader(resp.Header.Get(headerRateLimitRemaining)) <= 0 {
			delay := p.recordExhausted(resp, l.clock.Now())
			if err := l.wait(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		p.update(resp)
		return resp, nil
	}
}

// Stats implements RateLimitReporter.
func (l *AdaptiveRateLimiter) Stats(partition string) (RateLimitInfo, bool) {
	l.mu.Lock()
	p, ok := l.partitions[partition]
	l.mu.Unlock()
	if !ok {
		return RateLimitInfo{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.known {
		return RateLimitInfo{}, false
	}
	return RateLimitInfo{Limit: p.limit, Remaining: p.remaining, Reset: p.reset}, true
}

func (l *AdaptiveRateLimiter) wait(ctx context.Context, delay time.Duration) error {
	select {
	case <-l.clock.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// delayUntilReady returns how long the caller must wait before sending, or 0
// when the partition has budget. A reset in the past means the bucket has
// refilled.
func (p *adaptivePartition) delayUntilReady(now time.Time) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.known || p.remaining > 0 {
		return 0
	}
	if !p.reset.After(now) {
		p.known = false
		return 0
	}
	return p.reset.Sub(now)
}

// update records the limiter parameters from a response's headers.
func (p *adaptivePartition) update(resp *APIResponse) {
	limit := timeutil.ParseIntHeader(resp.Header.Get(headerRateLimitLimit))
	remaining := timeutil.ParseIntHeader(resp.Header.Get(headerRateLimitRemaining))
	if limit < 0 && remaining < 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.known = true
	if limit >= 0 {
		p.limit = limit
	}
	if remaining >= 0 {
		p.remaining = remaining
	} else {
		p.remaining = 0
	}
	if reset := timeutil.ParseEpochSeconds(resp.Header.Get(headerRateLimitReset)); !reset.IsZero() {
		p.reset = reset
	}
}

// recordExhausted marks the partition depleted after a 429 and returns how
// long to wait before resending.
func (p *adaptivePartition) recordExhausted(resp *APIResponse, now time.Time) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.known = true
	p.remaining = 0
	if reset := timeutil.ParseEpochSeconds(resp.Header.Get(headerRateLimitReset)); reset.After(now) {
		p.reset = reset
		return reset.Sub(now)
	}
	if delay := timeutil.ParseRetryAfter(resp.Header.Get("Retry-After"), now); delay > 0 {
		p.reset = now.Add(delay)
		return delay
	}
	p.reset = now.Add(default429Backoff)
	return default429Backoff
}
