package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout bounds a single backend call, such as one catalog lookup or
// insert, to limit. op names the call in the returned error. A limit of zero
// or less runs fn directly under ctx.
//
// fn runs on its own goroutine, so WithTimeout returns at the deadline even
// when fn ignores its context.
func WithTimeout(ctx context.Context, limit time.Duration, op string, fn func(ctx context.Context) error) error {
	if limit <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- fn(callCtx) }()

	select {
	case err := <-result:
		return err
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s abandoned: %w", op, err)
		}
		return fmt.Errorf("%s exceeded %v: %w", op, limit, context.DeadlineExceeded)
	}
}
