// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var errBackend = errors.New("backend down")

// recorder is a fake backend that counts calls and replays canned results.
type recorder struct {
	calls int
	text  string
	err   error
}

func (r *recorder) invoke(_ context.Context, _ string) (string, error) {
	r.calls++
	return r.text, r.err
}

func newTestChain(attempts []Attempt, log *zap.Logger) (*Chain, *[]time.Duration) {
	c := NewChain(attempts, 5*time.Second, log)
	var slept []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return c, &slept
}

func TestGenerate_NoAttempts(t *testing.T) {
	c, slept := newTestChain(nil, nil)
	_, err := c.Generate(context.Background(), "p")
	assert.ErrorIs(t, err, ErrNoProvidersConfigured)
	assert.Empty(t, *slept)
}

func TestGenerate_FirstSucceeds(t *testing.T) {
	a := &recorder{text: `{"ok":true}`}
	b := &recorder{text: "unused"}
	c, slept := newTestChain([]Attempt{
		{Provider: "gemini", Model: "m1", Invoke: a.invoke},
		{Provider: "groq", Model: "m2", Invoke: b.invoke},
	}, nil)

	got, err := c.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, got)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 0, b.calls)
	assert.Empty(t, *slept)
}

func TestGenerate_FallsBackWithCooldown(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	a := &recorder{err: errBackend}
	b := &recorder{text: "second"}
	c, slept := newTestChain([]Attempt{
		{Provider: "gemini", Model: "m1", Invoke: a.invoke},
		{Provider: "groq", Model: "m2", Invoke: b.invoke},
	}, zap.New(core))

	got, err := c.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "second", got)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
	assert.Equal(t, []time.Duration{5 * time.Second}, *slept)

	failed := logs.FilterMessage("provider: attempt failed").All()
	require.Len(t, failed, 1)
	fields := failed[0].ContextMap()
	assert.Equal(t, "gemini", fields["provider"])
	assert.Equal(t, "m1", fields["model"])
}

func TestGenerate_EmptyContentIsFailure(t *testing.T) {
	a := &recorder{text: "   \n"}
	b := &recorder{text: "real"}
	c, _ := newTestChain([]Attempt{
		{Provider: "gemini", Model: "m1", Invoke: a.invoke},
		{Provider: "groq", Model: "m2", Invoke: b.invoke},
	}, nil)

	got, err := c.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "real", got)
}

func TestGenerate_AllFail(t *testing.T) {
	a := &recorder{err: errBackend}
	b := &recorder{text: ""}
	d := &recorder{err: context.DeadlineExceeded}
	c, slept := newTestChain([]Attempt{
		{Provider: "gemini", Model: "m1", Invoke: a.invoke},
		{Provider: "groq", Model: "m2", Invoke: b.invoke},
		{Provider: "anthropic", Model: "m3", Invoke: d.invoke},
	}, nil)

	_, err := c.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
	assert.ErrorIs(t, err, errBackend)

	var all *AllProvidersFailedError
	require.True(t, errors.As(err, &all))
	require.Len(t, all.Attempts, 3)
	assert.Equal(t, "gemini", all.Attempts[0].Provider)
	assert.ErrorIs(t, all.Attempts[1].Err, errEmptyContent)
	assert.Equal(t, "m3", all.Attempts[2].Model)

	// Cooldown between attempts only, not after the last.
	assert.Len(t, *slept, 2)
	assert.Contains(t, err.Error(), "groq/m2")
}

func TestGenerate_CancelledDuringCooldown(t *testing.T) {
	a := &recorder{err: errBackend}
	b := &recorder{text: "never"}
	c := NewChain([]Attempt{
		{Provider: "gemini", Model: "m1", Invoke: a.invoke},
		{Provider: "groq", Model: "m2", Invoke: b.invoke},
	}, time.Hour, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Generate(ctx, "p")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, b.calls)
}

func TestNewChain_DropsAttemptsWithoutInvoke(t *testing.T) {
	a := &recorder{text: "x"}
	c := NewChain([]Attempt{
		{Provider: "gemini", Model: "m1"},
		{Provider: "groq", Model: "m2", Invoke: a.invoke},
	}, 0, nil)
	require.Equal(t, 1, c.Len())
	assert.Equal(t, "groq/m2", c.Attempts()[0].Name())
}
