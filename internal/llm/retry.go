package llm

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"blogdraft-server/internal/domain"

	openai "github.com/openai/openai-go"
)

type retryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func defaultRetryPolicy(maxRetries int) retryPolicy {
	return retryPolicy{
		MaxRetries: maxRetries,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   8 * time.Second,
	}
}

// classify maps a client error onto the upstream taxonomy and reports
// whether another attempt may succeed.
func classify(ctx context.Context, err error) (*domain.UpstreamError, bool) {
	if ue, ok := domain.AsUpstream(err); ok {
		return ue, false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.NewUpstreamError(domain.UpstreamTimeout, err), false
	}
	if errors.Is(err, context.Canceled) {
		return domain.NewUpstreamError(domain.UpstreamServiceUnavailable, err), false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return domain.NewUpstreamError(domain.UpstreamRateLimited, err), true
		case apiErr.StatusCode == http.StatusRequestTimeout || apiErr.StatusCode >= 500:
			return domain.NewUpstreamError(domain.UpstreamServiceUnavailable, err), true
		case apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusUnprocessableEntity:
			return domain.NewUpstreamError(domain.UpstreamMalformed, err), false
		default:
			return domain.NewUpstreamError(domain.UpstreamServiceUnavailable, err), false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.NewUpstreamError(domain.UpstreamServiceUnavailable, err), true
	}
	return domain.NewUpstreamError(domain.UpstreamServiceUnavailable, err), false
}

// backoff returns the wait before attempt n (1-based), preferring the
// server's Retry-After hint.
func (p retryPolicy) backoff(n int, err error) time.Duration {
	d := p.BaseDelay << (n - 1)

	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		if ra := strings.TrimSpace(apiErr.Response.Header.Get("Retry-After")); ra != "" {
			if secs, convErr := strconv.Atoi(ra); convErr == nil && secs > 0 {
				d = time.Duration(secs) * time.Second
			}
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return jitter(d)
}

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delta := float64(base) * 0.2
	return time.Duration(float64(base) - delta + rand.Float64()*2*delta)
}

// do runs call until it succeeds, fails permanently, exhausts the retry
// budget or ctx expires.
func (p retryPolicy) do(ctx context.Context, onRetry func(attempt int, wait time.Duration, err error), call func(context.Context) (string, error)) (string, error) {
	for attempt := 0; ; attempt++ {
		out, err := call(ctx)
		if err == nil {
			return out, nil
		}

		ue, retryable := classify(ctx, err)
		if !retryable || attempt >= p.MaxRetries {
			return "", ue
		}

		wait := p.backoff(attempt+1, err)
		if onRetry != nil {
			onRetry(attempt+1, wait, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", domain.NewUpstreamError(domain.UpstreamTimeout, ctx.Err())
		case <-timer.C:
		}
	}
}
