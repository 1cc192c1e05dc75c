package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"signalbot-backend/internal/domain"
	"signalbot-backend/internal/metrics"
)

const (
	defaultSendTimeout      = 30 * time.Second
	breakerFailureThreshold = 5
	breakerOpenTimeout      = time.Minute
)

// Notifier delivers a signal to every configured transport. Transports run
// concurrently and each has its own circuit breaker, so a failing SMTP
// server never delays or suppresses the chat message.
type Notifier struct {
	transports []domain.Transport
	breakers   map[string]*gobreaker.CircuitBreaker
	timeout    time.Duration
	log        zerolog.Logger
	m          *metrics.Metrics
}

func NewNotifier(log zerolog.Logger, m *metrics.Metrics, transports ...domain.Transport) *Notifier {
	n := &Notifier{
		breakers: make(map[string]*gobreaker.CircuitBreaker, len(transports)),
		timeout:  defaultSendTimeout,
		log:      log.With().Str("component", "notifier").Logger(),
		m:        m,
	}
	for _, t := range transports {
		if t == nil {
			continue
		}
		n.transports = append(n.transports, t)
		n.breakers[t.Name()] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    t.Name(),
			Timeout: breakerOpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerFailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				n.log.Warn().Str("transport", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("transport circuit changed state")
			},
		})
	}
	return n
}

// Transports lists the configured transport names.
func (n *Notifier) Transports() []string {
	names := make([]string, 0, len(n.transports))
	for _, t := range n.transports {
		names = append(names, t.Name())
	}
	return names
}

// Notify sends signal through every transport and reports the outcome per
// transport name. It never returns an error.
func (n *Notifier) Notify(ctx context.Context, signal domain.Signal) map[string]bool {
	results := make(map[string]bool, len(n.transports))
	if len(n.transports) == 0 {
		return results
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, t := range n.transports {
		wg.Add(1)
		go func(t domain.Transport) {
			defer wg.Done()
			ok := n.send(ctx, t, signal)
			mu.Lock()
			results[t.Name()] = ok
			mu.Unlock()
		}(t)
	}
	wg.Wait()
	return results
}

func (n *Notifier) send(ctx context.Context, t domain.Transport, signal domain.Signal) bool {
	name := t.Name()
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	_, err := n.breakers[name].Execute(func() (interface{}, error) {
		return nil, t.Send(ctx, signal)
	})
	n.m.Deliveries.WithLabelValues(name, metrics.Result(err == nil)).Inc()

	if err != nil {
		n.log.Error().Err(err).
			Str("transport", name).
			Str("symbol", signal.Symbol).
			Int64("signal_id", signal.ID).
			Msg("notification failed")
		return false
	}
	n.log.Info().
		Str("transport", name).
		Str("symbol", signal.Symbol).
		Int64("signal_id", signal.ID).
		Msg("notification sent")
	return true
}
