package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"signalbot-backend/internal/domain"
)

// InMemoryStore keeps everything in process memory. It is used when no
// database is configured and in tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	settings map[string]string
	presets  map[string]domain.Preset
	signals  []domain.Signal
	status   *domain.BotStatus
	nextID   int64
	now      func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		settings: make(map[string]string),
		presets:  make(map[string]domain.Preset),
		nextID:   1,
		now:      time.Now,
	}
}

func (r *InMemoryStore) GetSetting(_ context.Context, key string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.settings[key]
	return v, ok, nil
}

func (r *InMemoryStore) AllSettings(_ context.Context) (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.settings))
	for k, v := range r.settings {
		out[k] = v
	}
	return out, nil
}

func (r *InMemoryStore) SaveSetting(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[key] = value
	return nil
}

func (r *InMemoryStore) SaveSettings(_ context.Context, values map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range values {
		r.settings[k] = v
	}
	return nil
}

func (r *InMemoryStore) DeleteSetting(_ context.Context, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.settings[key]
	delete(r.settings, key)
	return ok, nil
}

func (r *InMemoryStore) GetPreset(_ context.Context, name string) (domain.Preset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.presets[name]
	if !ok {
		return domain.Preset{}, fmt.Errorf("preset %s: %w", name, domain.ErrNotFound)
	}
	return p.Clone(), nil
}

func (r *InMemoryStore) ListPresets(_ context.Context) ([]domain.Preset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Preset, 0, len(r.presets))
	for _, p := range r.presets {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *InMemoryStore) SavePreset(_ context.Context, preset domain.Preset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := preset.Clone()
	if existing, ok := r.presets[p.Name]; ok && p.Description == "" {
		p.Description = existing.Description
	}
	r.presets[p.Name] = p
	return nil
}

func (r *InMemoryStore) DeletePreset(_ context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.presets[name]
	delete(r.presets, name)
	return ok, nil
}

func (r *InMemoryStore) SaveSignal(_ context.Context, signal *domain.Signal) error {
	if signal == nil {
		return fmt.Errorf("nil signal")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	signal.ID = r.nextID
	r.nextID++
	if signal.CreatedAt.IsZero() {
		signal.CreatedAt = r.now()
	}
	r.signals = append(r.signals, signal.Clone())

	st := r.statusLocked()
	st.TotalSignalsToday++
	st.LastUpdate = r.now()
	return nil
}

func (r *InMemoryStore) RecentSignals(_ context.Context, limit int) ([]domain.Signal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.signals)
	if limit >= 0 && n > limit {
		n = limit
	}
	out := make([]domain.Signal, 0, n)
	for i := len(r.signals) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.signals[i].Clone())
	}
	return out, nil
}

func (r *InMemoryStore) SignalExists(_ context.Context, signal domain.Signal) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.signals {
		if s.Symbol == signal.Symbol &&
			s.Direction == signal.Direction &&
			s.EntryPrice == signal.EntryPrice &&
			s.CreatedAt.Equal(signal.CreatedAt) {
			return true, nil
		}
	}
	return false, nil
}

func (r *InMemoryStore) GetSignal(_ context.Context, id int64) (domain.Signal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.signals {
		if s.ID == id {
			return s.Clone(), nil
		}
	}
	return domain.Signal{}, fmt.Errorf("signal %d: %w", id, domain.ErrNotFound)
}

func (r *InMemoryStore) MarkSignalExecuted(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.signals {
		if r.signals[i].ID != id {
			continue
		}
		if r.signals[i].Executed {
			return false, nil
		}
		now := r.now()
		r.signals[i].Executed = true
		r.signals[i].ExecutionTime = &now
		r.statusLocked().TotalTradesToday++
		return true, nil
	}
	return false, fmt.Errorf("signal %d: %w", id, domain.ErrNotFound)
}

func (r *InMemoryStore) statusLocked() *domain.BotStatus {
	if r.status == nil {
		st := domain.DefaultBotStatus(r.now())
		r.status = &st
	}
	return r.status
}

func (r *InMemoryStore) GetStatus(_ context.Context) (domain.BotStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.statusLocked(), nil
}

func (r *InMemoryStore) UpdateStatus(_ context.Context, patch domain.StatusPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.statusLocked()
	patch.Apply(st)
	st.LastUpdate = r.now()
	return nil
}

func (r *InMemoryStore) ResetDailyCounters(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.statusLocked()
	st.TotalTradesToday = 0
	st.TotalSignalsToday = 0
	return nil
}

var _ domain.Store = (*InMemoryStore)(nil)
