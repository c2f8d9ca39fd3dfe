package readmodel

import (
	"context"
	"errors"
	"time"
)

// Await polls probe until it reports a document version of at least want.
// It returns the observed version, or the context error once ctx expires.
// Callers use it for read-your-writes flows: append, then wait until the
// projection has caught up to the returned stream version.
func Await(ctx context.Context, interval time.Duration, want int64, probe func(context.Context) (int64, error)) (int64, error) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		v, err := probe(ctx)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return 0, err
		}
		if err == nil && v >= want {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-ticker.C:
		}
	}
}
