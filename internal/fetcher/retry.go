package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/IshaanNene/ibscout/internal/types"
)

// Retrier retries a Fetcher a fixed number of times with a fixed pause
// between attempts. There is no backoff growth.
type Retrier struct {
	next     Fetcher
	attempts int
	delay    time.Duration
	sleeper  Sleeper
	logger   *slog.Logger

	sent  atomic.Int64
	bytes atomic.Int64
}

// NewRetrier wraps next. attempts below 1 is treated as 1.
func NewRetrier(next Fetcher, attempts int, delay time.Duration, sleeper Sleeper, logger *slog.Logger) *Retrier {
	if attempts < 1 {
		attempts = 1
	}
	if sleeper == nil {
		sleeper = RealSleeper{}
	}
	return &Retrier{
		next:     next,
		attempts: attempts,
		delay:    delay,
		sleeper:  sleeper,
		logger:   logger.With("component", "retrier"),
	}
}

// Fetch implements Fetcher.
func (r *Retrier) Fetch(ctx context.Context, rawURL string) (*types.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= r.attempts; attempt++ {
		r.sent.Add(1)
		resp, err := r.next.Fetch(ctx, rawURL)
		if err == nil {
			r.bytes.Add(int64(len(resp.Body)))
			return resp, nil
		}
		lastErr = err

		r.logger.Warn("attempt failed",
			"attempt", attempt,
			"max_attempts", r.attempts,
			"url", rawURL,
			"error", err,
		)

		if !isRetryable(err) || ctx.Err() != nil {
			return nil, err
		}

		if attempt < r.attempts {
			if err := r.sleeper.Sleep(ctx, r.delay); err != nil {
				return nil, err
			}
		}
	}

	r.logger.Error("fetch failed permanently", "url", rawURL, "attempts", r.attempts)
	return nil, fmt.Errorf("%w: %s after %d attempts: %w", types.ErrMaxRetries, rawURL, r.attempts, lastErr)
}

// Close closes the wrapped fetcher.
func (r *Retrier) Close() error {
	return r.next.Close()
}

// Type returns the wrapped fetcher type.
func (r *Retrier) Type() string {
	return r.next.Type()
}

// RequestsSent returns the number of attempts made, retries included.
func (r *Retrier) RequestsSent() int64 {
	return r.sent.Load()
}

// BytesDownloaded returns the total size of successful response bodies.
func (r *Retrier) BytesDownloaded() int64 {
	return r.bytes.Load()
}

// isRetryable decides whether another attempt makes sense. Every transport
// or status failure is retried; cancellation, robots blocks and malformed
// URLs are not.
func isRetryable(err error) bool {
	if errors.Is(err, types.ErrBlocked) || errors.Is(err, types.ErrInvalidURL) {
		return false
	}
	var fetchErr *types.FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.IsRetryable()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
