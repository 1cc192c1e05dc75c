package usecase

import (
	"signalbot-backend/internal/metrics"
)

// Broadcaster pushes an event to real-time subscribers. Implementations must
// not block on slow consumers.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// FanOut publishes each event to every registered broadcaster.
type FanOut struct {
	targets []Broadcaster
	m       *metrics.Metrics
}

func NewFanOut(m *metrics.Metrics, targets ...Broadcaster) *FanOut {
	f := &FanOut{m: m}
	for _, t := range targets {
		if t != nil {
			f.targets = append(f.targets, t)
		}
	}
	return f
}

// Add registers another broadcaster. It must be called before publishing starts.
func (f *FanOut) Add(b Broadcaster) {
	if b != nil {
		f.targets = append(f.targets, b)
	}
}

func (f *FanOut) Publish(event string, payload any) {
	for _, t := range f.targets {
		t.Broadcast(event, payload)
	}
	f.m.Broadcasts.WithLabelValues(event).Inc()
}
