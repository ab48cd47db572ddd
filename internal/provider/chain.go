// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package provider calls text-generation backends through an ordered
// fallback chain. The chain is a flat list of attempts: each attempt pairs
// one backend family with one model and its credential. Attempts run in
// order until one returns non-empty text.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNoProvidersConfigured is returned by Generate when the chain holds no
// attempts. No call is made.
var ErrNoProvidersConfigured = errors.New("no generation providers configured")

// ErrAllProvidersFailed is matched by *AllProvidersFailedError.
var ErrAllProvidersFailed = errors.New("all generation providers failed")

// errEmptyContent marks a 2xx response that carried no text.
var errEmptyContent = errors.New("empty content")

// InvokeFunc sends one prompt to one backend and returns the generated text.
type InvokeFunc func(ctx context.Context, prompt string) (string, error)

// Attempt is one entry of the fallback chain.
type Attempt struct {
	Provider   string
	Model      string
	Credential string
	Invoke     InvokeFunc
}

// Name returns "provider/model".
func (a Attempt) Name() string {
	return a.Provider + "/" + a.Model
}

// AttemptError records why one attempt failed.
type AttemptError struct {
	Provider string
	Model    string
	Err      error
}

func (e AttemptError) Error() string {
	return fmt.Sprintf("%s/%s: %v", e.Provider, e.Model, e.Err)
}

// AllProvidersFailedError lists the failure of every attempt in chain order.
type AllProvidersFailedError struct {
	Attempts []AttemptError
}

func (e *AllProvidersFailedError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.Error()
	}
	return fmt.Sprintf("%v (%d attempts): %s", ErrAllProvidersFailed, len(e.Attempts), strings.Join(parts, "; "))
}

// Is makes errors.Is(err, ErrAllProvidersFailed) true.
func (e *AllProvidersFailedError) Is(target error) bool {
	return target == ErrAllProvidersFailed
}

// Unwrap exposes each attempt's cause.
func (e *AllProvidersFailedError) Unwrap() []error {
	errs := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		errs[i] = a.Err
	}
	return errs
}

// Generator produces text for a prompt. *Chain implements it; stage tests
// substitute fakes.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Chain is an immutable ordered list of attempts. It is built once per run
// and shared by every stage.
type Chain struct {
	attempts []Attempt
	cooldown time.Duration
	log      *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewChain returns a chain over attempts. Attempts without an Invoke
// function are dropped. cooldown is the pause after a failed attempt before
// the next one.
func NewChain(attempts []Attempt, cooldown time.Duration, log *zap.Logger) *Chain {
	if log == nil {
		log = zap.NewNop()
	}
	kept := make([]Attempt, 0, len(attempts))
	for _, a := range attempts {
		if a.Invoke != nil {
			kept = append(kept, a)
		}
	}
	return &Chain{attempts: kept, cooldown: cooldown, log: log, sleep: sleepCtx}
}

// Attempts returns a copy of the chain's attempts in order.
func (c *Chain) Attempts() []Attempt {
	out := make([]Attempt, len(c.attempts))
	copy(out, c.attempts)
	return out
}

// Len returns the number of attempts.
func (c *Chain) Len() int { return len(c.attempts) }

// Generate tries each attempt in order and returns the first non-empty
// text. A failed attempt is logged and followed by the cooldown before the
// next one. Generate never retries an attempt.
func (c *Chain) Generate(ctx context.Context, prompt string) (string, error) {
	if len(c.attempts) == 0 {
		return "", ErrNoProvidersConfigured
	}

	failed := &AllProvidersFailedError{}
	for i, a := range c.attempts {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("provider chain: %w", err)
		}

		text, err := a.Invoke(ctx, prompt)
		if err == nil && strings.TrimSpace(text) == "" {
			err = errEmptyContent
		}
		if err == nil {
			c.log.Debug("provider: attempt succeeded",
				zap.String("provider", a.Provider),
				zap.String("model", a.Model),
				zap.Int("attempt", i+1))
			return text, nil
		}

		failed.Attempts = append(failed.Attempts, AttemptError{Provider: a.Provider, Model: a.Model, Err: err})
		c.log.Warn("provider: attempt failed",
			zap.String("provider", a.Provider),
			zap.String("model", a.Model),
			zap.Int("attempt", i+1),
			zap.Error(err))

		if i < len(c.attempts)-1 && c.cooldown > 0 {
			if err := c.sleep(ctx, c.cooldown); err != nil {
				return "", fmt.Errorf("provider chain: %w", err)
			}
		}
	}
	return "", failed
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
