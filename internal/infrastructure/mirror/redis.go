package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	DefaultPrefix = "signalbot"
	queueSize     = 64
	writeTimeout  = 5 * time.Second
)

type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// RedisMirror copies every broadcast event into Redis. The latest payload of
// each event is kept under "<prefix>:<event>" and the envelope is published
// on "<prefix>:events". Writes happen on a background worker.
type RedisMirror struct {
	rdb    redis.Cmdable
	prefix string
	ch     chan envelope
	log    zerolog.Logger
}

func NewRedisMirror(rdb redis.Cmdable, prefix string, log zerolog.Logger) *RedisMirror {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisMirror{
		rdb:    rdb,
		prefix: prefix,
		ch:     make(chan envelope, queueSize),
		log:    log.With().Str("component", "redis_mirror").Logger(),
	}
}

// Broadcast queues the event. It drops the event when the queue is full.
func (m *RedisMirror) Broadcast(event string, payload any) {
	select {
	case m.ch <- envelope{Event: event, Data: payload}:
	default:
		m.log.Warn().Str("event", event).Msg("mirror queue full, event dropped")
	}
}

// Run writes queued events until ctx is done, then flushes what is left.
func (m *RedisMirror) Run(ctx context.Context) {
	for {
		select {
		case ev := <-m.ch:
			m.handle(ctx, ev)
		case <-ctx.Done():
			m.drain(context.WithoutCancel(ctx))
			return
		}
	}
}

func (m *RedisMirror) drain(ctx context.Context) {
	for {
		select {
		case ev := <-m.ch:
			m.handle(ctx, ev)
		default:
			return
		}
	}
}

func (m *RedisMirror) handle(ctx context.Context, ev envelope) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := m.write(ctx, ev); err != nil {
		m.log.Error().Err(err).Str("event", ev.Event).Msg("mirror write failed")
	}
}

func (m *RedisMirror) write(ctx context.Context, ev envelope) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.Event, err)
	}
	if err := m.rdb.Set(ctx, m.Key(ev.Event), data, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", ev.Event, err)
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := m.rdb.Publish(ctx, m.Channel(), msg).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Event, err)
	}
	return nil
}

func (m *RedisMirror) Key(event string) string {
	return m.prefix + ":" + event
}

func (m *RedisMirror) Channel() string {
	return m.prefix + ":events"
}
