package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"campuscrawl/internal/academic"
)

func TestRetryPolicyShouldRetry(t *testing.T) {
	t.Parallel()
	p := NewRetryPolicy()

	tests := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{name: "nil error", err: nil, attempt: 1, want: false},
		{name: "transient error", err: errors.New("connection reset"), attempt: 1, want: true},
		{name: "attempt limit reached", err: errors.New("connection reset"), attempt: 10, want: false},
		{name: "context canceled", err: context.Canceled, attempt: 1, want: false},
		{name: "deadline exceeded", err: context.DeadlineExceeded, attempt: 1, want: false},
		{name: "data conflict", err: &academic.ConflictError{Entity: "class"}, attempt: 1, want: false},
		{name: "contract violation", err: academic.ErrContract, attempt: 1, want: false},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, p.ShouldRetry(tc.err, tc.attempt))
		})
	}
}

func TestRetryPolicyBackoffCapped(t *testing.T) {
	t.Parallel()
	p := NewRetryPolicyWith(0, 100*time.Millisecond, time.Second)

	for attempt := 0; attempt < 20; attempt++ {
		d := p.Backoff(attempt)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, time.Second)
	}
	// early attempts stay near the base delay
	assert.LessOrEqual(t, p.Backoff(0), 100*time.Millisecond)
}

func TestRetryPolicyWithDefaults(t *testing.T) {
	t.Parallel()
	p := NewRetryPolicyWith(0, 0, 0)
	assert.Equal(t, NewRetryPolicy(), p)

	p = NewRetryPolicyWith(3, time.Second, 2*time.Second)
	assert.False(t, p.ShouldRetry(errors.New("x"), 3))
	assert.True(t, p.ShouldRetry(errors.New("x"), 2))
}
