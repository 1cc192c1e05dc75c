package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalbot-backend/internal/metrics"
)

type sleepRecorder struct {
	slept []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.slept = append(s.slept, d)
	return nil
}

func newTestRetrier(onLost func()) (*retrier, *sleepRecorder, *metrics.Metrics) {
	m := metrics.New()
	rec := &sleepRecorder{}
	r := newRetrier(RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}, zerolog.Nop(), m, onLost)
	r.sleep = rec.sleep
	return r, rec, m
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection lost", ErrConnectionLost, true},
		{"wrapped eof", fmt.Errorf("read: %w", io.EOF), true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"connection failure class", &pgconn.PgError{Code: "08006"}, true},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"canceled", context.Canceled, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestRetrierSucceedsOnThirdAttempt(t *testing.T) {
	r, rec, m := newTestRetrier(nil)

	calls := 0
	err := r.do(context.Background(), "save_signal", func(context.Context) error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, rec.slept)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StoreRetries.WithLabelValues("save_signal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreAttempts.WithLabelValues("save_signal", "success")))
}

func TestRetrierStopsOnPermanentError(t *testing.T) {
	r, rec, _ := newTestRetrier(nil)

	calls := 0
	permanent := &pgconn.PgError{Code: "23505", Message: "duplicate key"}
	err := r.do(context.Background(), "save_setting", func(context.Context) error {
		calls++
		return permanent
	})

	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.slept)
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "23505", pgErr.Code)
}

func TestRetrierExhaustsAndResetsConnection(t *testing.T) {
	resets := 0
	r, rec, _ := newTestRetrier(func() { resets++ })

	calls := 0
	err := r.do(context.Background(), "get_status", func(context.Context) error {
		calls++
		return fmt.Errorf("attempt %d: %w", calls, ErrConnectionLost)
	})

	require.ErrorIs(t, err, ErrConnectionLost)
	assert.Contains(t, err.Error(), "attempt 3")
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, resets)
	assert.Len(t, rec.slept, 2)
}

func TestRetrierStopsWhenContextDone(t *testing.T) {
	r, _, _ := newTestRetrier(nil)
	r.sleep = sleepContext

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := r.do(ctx, "all_settings", func(context.Context) error {
		calls++
		return ErrConnectionLost
	})

	assert.ErrorIs(t, err, ErrConnectionLost)
	assert.Equal(t, 1, calls)
}

func TestRetryValue(t *testing.T) {
	r, _, _ := newTestRetrier(nil)

	calls := 0
	v, err := retryValue(context.Background(), r, "get_setting", func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", io.ErrUnexpectedEOF
		}
		return "H1", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "H1", v)
	assert.Equal(t, 2, calls)
}
