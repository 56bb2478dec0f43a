package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Delay(t *testing.T) {
	p := Policy{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
		Multiplier:  2,
		Jitter:      0.5,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{attempt: 1, expected: 100 * time.Millisecond},
		{attempt: 2, expected: 200 * time.Millisecond},
		{attempt: 3, expected: 400 * time.Millisecond},
		{attempt: 5, expected: time.Second},
		{attempt: 0, expected: 100 * time.Millisecond},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, p.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestPolicy_BackOffJitterBounds(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, Jitter: 0.25}

	for i := 0; i < 50; i++ {
		b := p.BackOff()
		d := b.NextBackOff()
		assert.GreaterOrEqual(t, d, 75*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
}

func TestPolicy_BackOffUsesPolicyFields(t *testing.T) {
	p := Policy{BaseDelay: 50 * time.Millisecond, MaxDelay: 200 * time.Millisecond, Multiplier: 3, Jitter: 0.1}

	b := p.BackOff()

	assert.Equal(t, 50*time.Millisecond, b.InitialInterval)
	assert.Equal(t, 200*time.Millisecond, b.MaxInterval)
	assert.Equal(t, 3.0, b.Multiplier)
	assert.Equal(t, 0.1, b.RandomizationFactor)
	assert.Zero(t, b.MaxElapsedTime)
}

func TestPolicy_Do(t *testing.T) {
	errTemporary := errors.New("temporary")
	errFatal := errors.New("fatal")

	tests := []struct {
		name      string
		failures  []error
		wantCalls int
		wantErr   error
	}{
		{name: "first attempt succeeds", failures: nil, wantCalls: 1},
		{name: "succeeds after retries", failures: []error{errTemporary, errTemporary}, wantCalls: 3},
		{name: "attempts exhausted", failures: []error{errTemporary, errTemporary, errTemporary, errTemporary}, wantCalls: 3, wantErr: errTemporary},
		{name: "non retryable stops", failures: []error{errFatal}, wantCalls: 1, wantErr: errFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
			calls := 0
			fn := func(context.Context) error {
				calls++
				if calls <= len(tt.failures) {
					return tt.failures[calls-1]
				}
				return nil
			}

			// Act
			err := p.Do(context.Background(), fn, func(err error) bool { return !errors.Is(err, errFatal) })

			// Assert
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestPolicy_DoCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}

	calls := 0
	err := p.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("boom")
	}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
