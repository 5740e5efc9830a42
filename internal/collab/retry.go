package collab

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/roach88/triage/internal/message"
)

// RetryPolicy bounds retries of transient collaborator failures.
type RetryPolicy struct {
	// MaxTries includes the first attempt. Values below 2 disable retry.
	MaxTries uint

	InitialInterval time.Duration
	MaxInterval     time.Duration

	Logger *slog.Logger
}

// do runs fn until it succeeds, fails permanently, or runs out of tries.
// retryNotFound also retries not-found errors, for reads racing delivery.
func do[T any](ctx context.Context, p RetryPolicy, op string, retryNotFound bool, fn func() (T, error)) (T, error) {
	if p.MaxTries < 2 {
		return fn()
	}

	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}

	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := fn()
		if err == nil {
			return v, nil
		}
		code := CodeOf(err)
		if code == CodeTransient || (retryNotFound && code == CodeNotFound) {
			if p.Logger != nil {
				p.Logger.Warn("collaborator_retry", "op", op, "attempt", attempt, "error", err)
			}
			return v, err
		}
		return v, backoff.Permanent(err)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.MaxTries),
	)
}

// RetryMail wraps a Mail with bounded retry.
type RetryMail struct {
	Mail   Mail
	Policy RetryPolicy
}

// Fetch implements Mail. Not-found is retried since new mail may not be
// visible yet.
func (r RetryMail) Fetch(ctx context.Context, loc message.Locator) (message.Message, error) {
	return do(ctx, r.Policy, "fetch", true, func() (message.Message, error) {
		return r.Mail.Fetch(ctx, loc)
	})
}

// Latest implements Mail.
func (r RetryMail) Latest(ctx context.Context, since time.Time) (message.Message, error) {
	return do(ctx, r.Policy, "latest", false, func() (message.Message, error) {
		return r.Mail.Latest(ctx, since)
	})
}

// SetFlag implements Mail.
func (r RetryMail) SetFlag(ctx context.Context, loc message.Locator, flag Flag) error {
	_, err := do(ctx, r.Policy, "set_flag", true, func() (struct{}, error) {
		return struct{}{}, r.Mail.SetFlag(ctx, loc, flag)
	})
	return err
}

// RetryCreator wraps a Creator with bounded retry of transient failures.
// A create that failed transiently may still have landed downstream; the
// caller only records the fingerprint after a confirmed success.
type RetryCreator struct {
	Creator Creator
	Policy  RetryPolicy
}

// Create implements Creator.
func (r RetryCreator) Create(ctx context.Context, req CreateRequest) (string, error) {
	return do(ctx, r.Policy, "create_"+string(req.Kind), false, func() (string, error) {
		return r.Creator.Create(ctx, req)
	})
}
