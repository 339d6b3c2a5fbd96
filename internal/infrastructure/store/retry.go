package store

import (
	"context"
	"errors"
	"time"
)

// Retry runs fn until it succeeds, fails with something other than
// ErrConcurrencyConflict, or has been tried attempts times. The wait between
// tries doubles from backoff.
func Retry(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); !errors.Is(err, ErrConcurrencyConflict) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff << i):
		}
	}
	return err
}
