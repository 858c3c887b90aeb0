package internal

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Fetcher wraps an upstream client with bounded exponential-backoff
// retries and polite inter-request delays. All network access to the
// page-content source passes through it.
type Fetcher struct {
	client *http.Client

	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	timeout    time.Duration // Per attempt, not cumulative.

	politeMin time.Duration
	politeMax time.Duration

	// jitter is randomized backoff noise in [0, 1s). Swappable in tests.
	jitter func() time.Duration

	metrics *fetcherMetrics
}

// NewFetcher creates a fetcher with the standard retry policy: up to 3
// retries, 1s base delay doubling per attempt and capped at 10s, a 20s
// per-attempt timeout, and a 0.5-1.5s polite delay after every success.
func NewFetcher(client *http.Client, reg *prometheus.Registry) *Fetcher {
	return &Fetcher{
		client:     client,
		maxRetries: 3,
		baseDelay:  time.Second,
		maxDelay:   10 * time.Second,
		timeout:    20 * time.Second,
		politeMin:  500 * time.Millisecond,
		politeMax:  1500 * time.Millisecond,
		jitter: func() time.Duration {
			return time.Duration(rand.Float64() * float64(time.Second))
		},
		metrics: newFetcherMetrics(reg),
	}
}

// Fetch GETs the URL and returns the response body, retrying transient
// failures (connection errors, timeouts, non-2xx statuses) with jittered
// exponential backoff. After the final retry the last failure is returned.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			delay := f.backoff(attempt)
			Log(ctx).Debug("retrying fetch", "url", url, "attempt", attempt, "delay", delay.String())
			f.metrics.retryInc()
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		f.metrics.attemptInc()
		body, err := f.attempt(ctx, url)
		if err == nil {
			f.metrics.successInc()
			// Throttle regardless of retry state.
			_ = sleep(ctx, f.politeDelay())
			return body, nil
		}

		lastErr = err
		Log(ctx).Debug("fetch attempt failed", "url", url, "attempt", attempt, "err", err)
		f.metrics.failureInc(errorLabel(err))

		if ctx.Err() != nil {
			return nil, lastErr
		}
	}

	f.metrics.exhaustedInc()
	return nil, fmt.Errorf("fetching %s: %w", url, lastErr)
}

func (f *Fetcher) attempt(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyFetchErr(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, ErrRateLimited{Err: statusErr(resp.StatusCode)}
		}
		return nil, statusErr(resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyFetchErr(err)
	}
	return body, nil
}

// backoff returns min(base * 2^(attempt-1) + jitter, max).
func (f *Fetcher) backoff(attempt int) time.Duration {
	d := f.baseDelay*time.Duration(1<<(attempt-1)) + f.jitter()
	return min(d, f.maxDelay)
}

func (f *Fetcher) politeDelay() time.Duration {
	if f.politeMax <= f.politeMin {
		return f.politeMin
	}
	return f.politeMin + time.Duration(rand.Int64N(int64(f.politeMax-f.politeMin)))
}

// sleep blocks for d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
