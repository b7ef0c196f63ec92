package genai

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds how ResilientClient retries a completion.
type RetryPolicy struct {
	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int
	// AttemptTimeout is raced against every call.
	AttemptTimeout time.Duration
	// BaseDelay is the delay before the first retry; it doubles on each retry.
	BaseDelay time.Duration
	// MaxJitter is the upper bound of the uniform jitter added to each delay.
	MaxJitter time.Duration
	// MaxDelay caps the delay including jitter.
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns 3 attempts, a 120s per-attempt timeout and 1s..10s jittered backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		AttemptTimeout: 120 * time.Second,
		BaseDelay:      time.Second,
		MaxJitter:      time.Second,
		MaxDelay:       10 * time.Second,
	}
}

// jitteredBackOff yields min(base*2^n + rand*jitter, max) for the n-th retry.
type jitteredBackOff struct {
	policy RetryPolicy
	random func() float64
	n      int
}

func (b *jitteredBackOff) NextBackOff() time.Duration {
	delay := b.policy.BaseDelay << b.n
	delay += time.Duration(b.random() * float64(b.policy.MaxJitter))
	if delay > b.policy.MaxDelay {
		delay = b.policy.MaxDelay
	}
	b.n++
	return delay
}

func (b *jitteredBackOff) Reset() { b.n = 0 }

// ResilientClient races each call against a timeout and retries timeouts with backoff.
// Any non-timeout error is returned immediately.
type ResilientClient struct {
	next   Completer
	policy RetryPolicy
	random func() float64
}

// NewResilientClient wraps next with policy. Zero-valued policy fields take the defaults.
func NewResilientClient(next Completer, policy RetryPolicy) *ResilientClient {
	def := DefaultRetryPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.AttemptTimeout <= 0 {
		policy.AttemptTimeout = def.AttemptTimeout
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = def.BaseDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = def.MaxDelay
	}
	if policy.MaxJitter < 0 {
		policy.MaxJitter = 0
	}
	return &ResilientClient{next: next, policy: policy, random: rand.Float64}
}

// Policy returns the effective retry policy.
func (r *ResilientClient) Policy() RetryPolicy {
	return r.policy
}

// Complete calls the wrapped Completer under the retry policy.
// Cancelling ctx stops both the in-flight attempt and any pending backoff.
func (r *ResilientClient) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	start := time.Now()
	attempts := 0

	operation := func() (string, error) {
		attempts++
		text, err := r.attempt(ctx, messages, opts)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}
		if !IsTimeout(err) {
			return "", backoff.Permanent(err)
		}
		return "", err
	}

	text, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(&jitteredBackOff{policy: r.policy, random: r.random}),
		backoff.WithMaxTries(uint(r.policy.MaxAttempts)),
		backoff.WithNotify(func(err error, delay time.Duration) {
			slog.Warn("ResilientClient.Complete: retrying after timeout", "attempt", attempts, "delay", delay, "error", err)
		}),
	)
	if err != nil {
		slog.Error("ResilientClient.Complete: giving up", "attempts", attempts, "elapsed", time.Since(start), "error", err)
		return "", fmt.Errorf("completion failed after %d attempt(s): %w", attempts, err)
	}
	slog.Debug("ResilientClient.Complete: succeeded", "attempts", attempts, "elapsed", time.Since(start))
	return text, nil
}

type attemptResult struct {
	text string
	err  error
}

// attempt races one call against the per-attempt timer. When the timer wins,
// the call's context is cancelled and its result discarded.
func (r *ResilientClient) attempt(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		text, err := r.next.Complete(callCtx, messages, opts)
		done <- attemptResult{text: text, err: err}
	}()

	timer := time.NewTimer(r.policy.AttemptTimeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.text, res.err
	case <-timer.C:
		return "", fmt.Errorf("%w: no response within %s", ErrTimeout, r.policy.AttemptTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
