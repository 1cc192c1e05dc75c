package repository

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"signalbot-backend/internal/metrics"
)

// ErrConnectionLost marks a failure of the underlying database connection.
// Drivers report this in many shapes; IsConnectionError recognizes them all.
var ErrConnectionLost = errors.New("database connection lost")

// RetryPolicy bounds how often a store operation is attempted.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration // attempt n waits n*BaseDelay before attempt n+1
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
}

// IsConnectionError reports whether err means the session itself is broken and
// must be discarded before the next attempt.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception. 57P01-03: server shutting down.
		return strings.HasPrefix(pgErr.Code, "08") ||
			pgErr.Code == "57P01" || pgErr.Code == "57P02" || pgErr.Code == "57P03"
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsTransient reports whether retrying err may succeed. Constraint violations
// and other data errors are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if IsConnectionError(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"53300", // too_many_connections
			"55P03": // lock_not_available
			return true
		}
		return false
	}

	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}

type retrier struct {
	policy RetryPolicy
	log    zerolog.Logger
	m      *metrics.Metrics

	// onConnectionLost discards pooled sessions before the next attempt.
	onConnectionLost func()
	sleep            func(ctx context.Context, d time.Duration) error
}

func newRetrier(policy RetryPolicy, log zerolog.Logger, m *metrics.Metrics, onConnectionLost func()) *retrier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &retrier{
		policy:           policy,
		log:              log,
		m:                m,
		onConnectionLost: onConnectionLost,
		sleep:            sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// do runs fn until it succeeds, fails permanently, or the attempt ceiling is
// reached. The last error is returned unchanged so callers can inspect it.
func (r *retrier) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		err := fn(ctx)
		r.m.StoreAttempts.WithLabelValues(op, metrics.Result(err == nil)).Inc()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsTransient(err) {
			return err
		}

		r.log.Warn().Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Int("max_attempts", r.policy.MaxAttempts).
			Msg("store operation failed")

		if attempt == r.policy.MaxAttempts {
			break
		}

		if err := r.sleep(ctx, time.Duration(attempt)*r.policy.BaseDelay); err != nil {
			return lastErr
		}
		if IsConnectionError(lastErr) && r.onConnectionLost != nil {
			r.onConnectionLost()
		}
		r.m.StoreRetries.WithLabelValues(op).Inc()
	}

	r.log.Error().Err(lastErr).
		Str("op", op).
		Int("attempts", r.policy.MaxAttempts).
		Msg("store operation failed after retries")
	return lastErr
}

// retryValue is do for operations that produce a value.
func retryValue[T any](ctx context.Context, r *retrier, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
