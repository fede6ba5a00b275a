// Package automation drives chat provider web interfaces through a shared
// state machine. Provider differences live entirely in catalog selector data;
// the machine itself is provider-agnostic.
package automation

import (
	"context"
	"time"
)

// Await polls predicate up to maxAttempts times, waiting interval between
// attempts. It returns true as soon as the predicate holds, false when the
// attempt bound is exhausted, and the context error if cancelled first. The
// predicate is never called more than maxAttempts times.
func Await(ctx context.Context, maxAttempts int, interval time.Duration, predicate func(ctx context.Context) (bool, error)) (bool, error) {
	if maxAttempts <= 0 {
		return false, nil
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return false, ctx.Err()
			case <-timer.C:
			}
		}

		ok, err := predicate(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}

	return false, nil
}
