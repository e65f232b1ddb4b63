package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"syscall"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/videoauto/mps-callback/internal/callback/domain"
)

func newTestStorage(policy RetryPolicy) (*Storage, *[]time.Duration) {
	delays := &[]time.Duration{}
	s := NewStorage(nil, slog.New(slog.NewTextHandler(io.Discard, nil)), policy)
	s.sleep = func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return s, delays
}

func TestWithRetry_RecoversWithinBound(t *testing.T) {
	s, delays := newTestStorage(RetryPolicy{MaxRetries: 3, BaseDelay: time.Second})

	calls := 0
	err := s.withRetry(context.Background(), "upsert", "T1", func(context.Context) error {
		calls++
		if calls < 3 {
			return syscall.ECONNREFUSED
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *delays)
}

func TestWithRetry_ExhaustsBudget(t *testing.T) {
	s, delays := newTestStorage(RetryPolicy{MaxRetries: 3, BaseDelay: time.Second})

	calls := 0
	err := s.withRetry(context.Background(), "upsert", "T1", func(context.Context) error {
		calls++
		return syscall.ECONNRESET
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPersistence))
	// One initial attempt plus three retries, backing off 1s/2s/4s.
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, *delays)
}

func TestWithRetry_NonTransientSurfacesImmediately(t *testing.T) {
	s, delays := newTestStorage(RetryPolicy{MaxRetries: 3, BaseDelay: time.Second})

	calls := 0
	err := s.withRetry(context.Background(), "upsert", "T1", func(context.Context) error {
		calls++
		return &pq.Error{Code: "23505"} // unique_violation
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPersistence))
	assert.Equal(t, 1, calls)
	assert.Empty(t, *delays)
}

func TestWithRetry_CanceledContextStopsRetrying(t *testing.T) {
	s := NewStorage(nil, slog.New(slog.NewTextHandler(io.Discard, nil)), RetryPolicy{MaxRetries: 3, BaseDelay: time.Second})
	s.sleep = func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	}

	calls := 0
	err := s.withRetry(context.Background(), "patch_translation", "T1", func(context.Context) error {
		calls++
		return syscall.ECONNREFUSED
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPersistence))
	assert.Equal(t, 1, calls)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"connection reset", syscall.ECONNRESET, true},
		{"wrapped reset", fmt.Errorf("exec: %w", syscall.ECONNRESET), true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"refused as string", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"syntax error", &pq.Error{Code: "42601"}, false},
		{"admin shutdown", &pq.Error{Code: "57P01"}, true},
		{"connection exception", &pq.Error{Code: "08006"}, true},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransient(tt.err))
		})
	}
}
