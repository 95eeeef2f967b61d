// Package sink defines the destinations rendered messages are appended to.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Sink is a mail store messages are appended to.
type Sink interface {
	// Append stores content, a complete RFC 5322 message, in mailbox.
	Append(ctx context.Context, mailbox string, content []byte) error

	// Name returns the human-readable name of this sink.
	Name() string
}

// Reconnector is implemented by sinks holding a connection that can go stale.
type Reconnector interface {
	Reconnect(ctx context.Context) error
}

// DeliveryError reports a message that could not be appended.
type DeliveryError struct {
	Mailbox  string
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("append to %q failed after %d attempt(s): %v", e.Mailbox, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Retrying defaults
const (
	DefaultMaxAttempts = 3
	DefaultDelay       = time.Second
)

// Retrying retries failed appends with a fixed delay, reconnecting the
// underlying sink between attempts when it supports it.
type Retrying struct {
	sink        Sink
	maxAttempts int
	delay       time.Duration
}

// NewRetrying wraps s. maxAttempts below 1 means a single attempt.
func NewRetrying(s Sink, maxAttempts int, delay time.Duration) *Retrying {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if delay < 0 {
		delay = 0
	}
	return &Retrying{sink: s, maxAttempts: maxAttempts, delay: delay}
}

// Append implements Sink. The returned error is a *DeliveryError.
func (r *Retrying) Append(ctx context.Context, mailbox string, content []byte) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepWithContext(ctx, r.delay); err != nil {
				return &DeliveryError{Mailbox: mailbox, Attempts: attempt - 1, Err: err}
			}
			if rc, ok := r.sink.(Reconnector); ok {
				if err := rc.Reconnect(ctx); err != nil {
					slog.Warn("reconnect failed", "sink", r.sink.Name(), "attempt", attempt, "error", err)
					lastErr = err
					continue
				}
			}
		}

		err := r.sink.Append(ctx, mailbox, content)
		if err == nil {
			return nil
		}
		lastErr = err
		slog.Warn("append failed",
			"sink", r.sink.Name(),
			"mailbox", mailbox,
			"attempt", attempt,
			"max_attempts", r.maxAttempts,
			"error", err,
		)
	}
	return &DeliveryError{Mailbox: mailbox, Attempts: r.maxAttempts, Err: lastErr}
}

// Name returns the wrapped sink's name.
func (r *Retrying) Name() string {
	return r.sink.Name()
}

// sleepWithContext waits for the specified duration or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
