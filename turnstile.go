// turnstile.go
// ------------
// turnstile orders back-pressured requests within one rate-limiter
// partition. A caller that finds the partition ready proceeds without
// joining; once a caller joins, later callers for the same partition queue
// behind it and are admitted strictly in submission order.
package twitchbridge

import (
	"context"
	"sync"
)

type turnstile struct {
	mu   sync.Mutex
	tail chan struct{}
}

// busy reports whether any caller currently holds or awaits a turn.
func (t *turnstile) busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tail != nil
}

// join appends the caller to the queue and blocks until every earlier caller
// has released its turn. The returned release is idempotent; on context
// cancellation the abandoned turn is forwarded to the next waiter
// automatically.
func (t *turnstile) join(ctx context.Context) (func(), error) {
	t.mu.Lock()
	prev := t.tail
	turn := make(chan struct{})
	t.tail = turn
	t.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			t.mu.Lock()
			if t.tail == turn {
				t.tail = nil
			}
			t.mu.Unlock()
			close(turn)
		})
	}

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			go func() {
				<-prev
				release()
			}()
			return nil, ctx.Err()
		}
	}
	return release, nil
}
