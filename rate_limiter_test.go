package twitchbridge_test

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	twitchbridge "github.com/opengovern/twitch-bridge"
	"github.com/opengovern/twitch-bridge/mock"
)

func limitedResponse(status, limit, remaining int, reset time.Time) *twitchbridge.APIResponse {
	header := http.Header{}
	header.Set("Ratelimit-Limit", strconv.Itoa(limit))
	header.Set("Ratelimit-Remaining", strconv.Itoa(remaining))
	header.Set("Ratelimit-Reset", strconv.FormatInt(reset.Unix(), 10))
	return &twitchbridge.APIResponse{StatusCode: status, Header: header}
}

func TestAdaptiveLimiterWaitsForDepletedPartition(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	limiter := twitchbridge.NewAdaptiveRateLimiter(clock)
	reset := clock.Now().Add(30 * time.Second)

	sends := 0
	send := func(ctx context.Context) (*twitchbridge.APIResponse, error) {
		sends++
		if sends == 1 {
			return limitedResponse(http.StatusOK, 800, 0, reset), nil
		}
		return limitedResponse(http.StatusOK, 800, 799, reset.Add(64*time.Second)), nil
	}

	resp, err := limiter.Do(context.Background(), "44", send)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, sends)

	done := make(chan error, 1)
	go func() {
		_, err := limiter.Do(context.Background(), "44", send)
		done <- err
	}()

	// The second call must block until the reported reset passes.
	clock.BlockUntil(1)
	select {
	case <-done:
		t.Fatal("call proceeded before the partition reset")
	default:
	}

	clock.Advance(30 * time.Second)
	require.NoError(t, <-done)
	assert.Equal(t, 2, sends)
}

func TestAdaptiveLimiterBackPressureKeepsSubmissionOrder(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	limiter := twitchbridge.NewAdaptiveRateLimiter(clock)
	reset := clock.Now().Add(30 * time.Second)

	_, err := limiter.Do(context.Background(), "44", func(ctx context.Context) (*twitchbridge.APIResponse, error) {
		return limitedResponse(http.StatusOK, 800, 0, reset), nil
	})
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	send := func(name string) twitchbridge.SendFunc {
		return func(ctx context.Context) (*twitchbridge.APIResponse, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return limitedResponse(http.StatusOK, 800, 799, reset.Add(64*time.Second)), nil
		}
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[0] = limiter.Do(context.Background(), "44", send("first"))
	}()
	clock.BlockUntil(1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[1] = limiter.Do(context.Background(), "44", send("second"))
	}()
	// Give the second request time to line up behind the first before the
	// partition resets.
	time.Sleep(10 * time.Millisecond)

	clock.Advance(30 * time.Second)
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestAdaptiveLimiterResendsAfter429(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	limiter := twitchbridge.NewAdaptiveRateLimiter(clock)
	reset := clock.Now().Add(10 * time.Second)

	sends := 0
	send := func(ctx context.Context) (*twitchbridge.APIResponse, error) {
		sends++
		if sends == 1 {
			return limitedResponse(http.StatusTooManyRequests, 800, 0, reset), nil
		}
		return limitedResponse(http.StatusOK, 800, 799, reset.Add(64*time.Second)), nil
	}

	done := make(chan *twitchbridge.APIResponse, 1)
	go func() {
		resp, err := limiter.Do(context.Background(), "", send)
		require.NoError(t, err)
		done <- resp
	}()

	clock.BlockUntil(1)
	clock.Advance(10 * time.Second)

	resp := <-done
	assert.Equal(t, http.StatusOK, resp.StatusCode, "the 429 must be absorbed, not surfaced")
	assert.Equal(t, 2, sends)
}

func TestAdaptive429WithBudgetLeftIsSurfaced(t *testing.T) {
	// A 429 with remaining budget is not a rate-limit depletion; it is
	// returned to the caller for classification.
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	limiter := twitchbridge.NewAdaptiveRateLimiter(clock)

	sends := 0
	send := func(ctx context.Context) (*twitchbridge.APIResponse, error) {
		sends++
		return limitedResponse(http.StatusTooManyRequests, 800, 5, clock.Now().Add(time.Minute)), nil
	}

	resp, err := limiter.Do(context.Background(), "", send)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, 1, sends)
}

func TestAdaptiveLimiterPartitionsAreIndependent(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	limiter := twitchbridge.NewAdaptiveRateLimiter(clock)
	reset := clock.Now().Add(time.Minute)

	depleted := func(ctx context.Context) (*twitchbridge.APIResponse, error) {
		return limitedResponse(http.StatusOK, 800, 0, reset), nil
	}
	healthy := func(ctx context.Context) (*twitchbridge.APIResponse, error) {
		return limitedResponse(http.StatusOK, 800, 750, reset), nil
	}

	_, err := limiter.Do(context.Background(), "user-a", depleted)
	require.NoError(t, err)

	// user-b must not block on user-a's depleted budget; a hang here would
	// fail the test by deadlock on the fake clock.
	resp, err := limiter.Do(context.Background(), "user-b", healthy)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	statsA, ok := limiter.Stats("user-a")
	require.True(t, ok)
	assert.Equal(t, 0, statsA.Remaining)
	statsB, ok := limiter.Stats("user-b")
	require.True(t, ok)
	assert.Equal(t, 750, statsB.Remaining)
	assert.Equal(t, 800, statsB.Limit)
}

func TestAdaptiveStatsUnknownPartition(t *testing.T) {
	limiter := twitchbridge.NewAdaptiveRateLimiter(nil)
	_, ok := limiter.Stats("never-seen")
	assert.False(t, ok)
}

func TestAdaptiveLimiterCancelableWhileWaiting(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	limiter := twitchbridge.NewAdaptiveRateLimiter(clock)
	reset := clock.Now().Add(time.Hour)

	_, err := limiter.Do(context.Background(), "", func(ctx context.Context) (*twitchbridge.APIResponse, error) {
		return limitedResponse(http.StatusOK, 800, 0, reset), nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := limiter.Do(ctx, "", func(ctx context.Context) (*twitchbridge.APIResponse, error) {
			t.Error("send must not run after cancellation")
			return nil, nil
		})
		done <- err
	}()

	clock.BlockUntil(1)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestClientRateLimitStats(t *testing.T) {
	provider := mock.NewProvider("cid")
	provider.SetToken("", userToken("44"))

	reset := time.Now().Add(time.Minute)
	client := newTestClient(t, provider, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Ratelimit-Limit", "800")
		w.Header().Set("Ratelimit-Remaining", "640")
		w.Header().Set("Ratelimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		w.Write([]byte(`{}`))
	})

	_, err := client.SendRequest(context.Background(), twitchbridge.APIRequest{URL: "users"})
	require.NoError(t, err)

	stats, ok := client.RateLimitStats("44")
	require.True(t, ok)
	assert.Equal(t, 800, stats.Limit)
	assert.Equal(t, 640, stats.Remaining)
	assert.Equal(t, reset.Unix(), stats.Reset.Unix())
}
