package gcp

import (
	"context"
	"net/http"
	"time"

	"github.com/Lllllllleong/pdfpageservice/internal/apperr"
	"github.com/rs/zerolog"
)

// RetryPolicy controls how object writes are retried.
type RetryPolicy struct {
	Attempts       int
	Backoff        time.Duration
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy retries a write four times, doubling a one second backoff, with each
// attempt limited to fifty seconds.
var DefaultRetryPolicy = RetryPolicy{
	Attempts:       4,
	Backoff:        time.Second,
	AttemptTimeout: 50 * time.Second,
}

// do runs fn until it succeeds, fails permanently, runs out of attempts or ctx is done. The
// last error is returned unchanged so callers keep its classification.
func (p RetryPolicy) do(ctx context.Context, log zerolog.Logger, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.Backoff

	var err error
	for attempt := 1; ; attempt++ {
		err = p.attempt(ctx, attempt, fn)
		if err == nil || attempt >= attempts || !retryable(err) {
			return err
		}

		log.Warn().Err(err).
			Int("attempt", attempt).
			Int("maxAttempts", attempts).
			Dur("backoff", backoff).
			Msg("Upload failed, will retry")

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			log.Error().Err(ctx.Err()).Msg("Context done during backoff, aborting retries")
			return err
		}
	}
}

func (p RetryPolicy) attempt(ctx context.Context, attempt int, fn func(ctx context.Context, attempt int) error) error {
	if p.AttemptTimeout <= 0 {
		return fn(ctx, attempt)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
	defer cancel()
	return fn(attemptCtx, attempt)
}

// retryable reports whether a write failure may succeed on another attempt: transport failures
// and throttling or server statuses do, other backend statuses do not.
func retryable(err error) bool {
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.KindHTTP {
		return true
	}
	return e.Status == http.StatusRequestTimeout || e.Status == http.StatusTooManyRequests || e.Status >= 500
}
