// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package poll is a fixed-interval retry helper for waiting on cloud-side
// state. A check either succeeds, fails transiently (retry after Interval) or
// fails fatally (stop now). Running out of attempts yields *ExhaustedError.
package poll

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/aegea/aegea/internal/log"
)

// ErrNotReady is returned by checks whose target is simply not in the wanted
// state yet. It is always transient.
var ErrNotReady = errors.New("not ready")

// Config parameterizes Until.
type Config struct {
	// Interval is the fixed wait between attempts.
	Interval time.Duration
	// MaxAttempts bounds the number of checks. Values below 1 mean 1.
	MaxAttempts int
	// Transient reports whether a failed check may be retried. When nil only
	// ErrNotReady is transient.
	Transient func(error) bool
	// Progress, if set, is called after each failed attempt that will be
	// retried. It is a reporting side channel only.
	Progress func(attempt int, err error)
}

// ExhaustedError reports that every attempt failed transiently.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Attempts converts a timeout and interval into an attempt budget:
// ceil(timeout / interval), never less than 1.
func Attempts(timeout, interval time.Duration) int {
	if interval <= 0 || timeout <= 0 {
		return 1
	}
	n := int(math.Ceil(float64(timeout) / float64(interval)))
	if n < 1 {
		return 1
	}
	return n
}

// Until runs check until it returns nil, a fatal error, the attempt budget is
// spent, or ctx is done.
func Until(ctx context.Context, cfg Config, check func(context.Context) error) error {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	transient := cfg.Transient
	if transient == nil {
		transient = func(error) bool { return false }
	}

	var (
		attempt int
		last    error
		fatal   bool
	)

	operation := func() (struct{}, error) {
		attempt++
		err := check(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		last = err
		if !errors.Is(err, ErrNotReady) && !transient(err) {
			fatal = true
			return struct{}{}, backoff.Permanent(err)
		}
		log.Tracef("attempt %d/%d not done: %v", attempt, maxAttempts, err)
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(cfg.Interval)),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, _ time.Duration) {
			if cfg.Progress != nil {
				cfg.Progress(attempt, err)
			}
		}),
	)
	switch {
	case err == nil:
		return nil
	case fatal:
		return last
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return &ExhaustedError{Attempts: attempt, Last: last}
	}
}
