package usecase

import (
	"sort"
	"sync"

	"signalbot-backend/internal/domain"
)

// SignalWindow is the number of most recent signals kept in the cache.
const SignalWindow = 10

// Cache is the in-memory view of the store. Readers always get copies; the
// cache is only written right after a store mutation commits.
type Cache struct {
	mu       sync.RWMutex
	settings domain.Settings
	signals  []domain.Signal
	status   domain.BotStatus
	presets  map[string]domain.Preset
}

func NewCache(defaults domain.Settings) *Cache {
	return &Cache{
		settings: defaults,
		signals:  []domain.Signal{},
		presets:  make(map[string]domain.Preset),
	}
}

func (c *Cache) Settings() domain.Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

func (c *Cache) SetSettings(s domain.Settings) {
	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()
}

// Signals returns the cached window, most recent first.
func (c *Cache) Signals() []domain.Signal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Signal, len(c.signals))
	for i, s := range c.signals {
		out[i] = s.Clone()
	}
	return out
}

// SetSignals replaces the window. Input beyond SignalWindow is dropped.
func (c *Cache) SetSignals(signals []domain.Signal) {
	if len(signals) > SignalWindow {
		signals = signals[:SignalWindow]
	}
	cp := make([]domain.Signal, len(signals))
	for i, s := range signals {
		cp[i] = s.Clone()
	}
	c.mu.Lock()
	c.signals = cp
	c.mu.Unlock()
}

// Signal looks up a signal in the cached window.
func (c *Cache) Signal(id int64) (domain.Signal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.signals {
		if s.ID == id {
			return s.Clone(), true
		}
	}
	return domain.Signal{}, false
}

func (c *Cache) Status() domain.BotStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Cache) SetStatus(s domain.BotStatus) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// Presets returns a copy of the catalog.
func (c *Cache) Presets() map[string]domain.Preset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]domain.Preset, len(c.presets))
	for name, p := range c.presets {
		out[name] = p.Clone()
	}
	return out
}

func (c *Cache) Preset(name string) (domain.Preset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.presets[name]
	if !ok {
		return domain.Preset{}, false
	}
	return p.Clone(), true
}

// PresetNames returns the catalog names in sorted order.
func (c *Cache) PresetNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.presets))
	for name := range c.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Cache) SetPresets(presets []domain.Preset) {
	m := make(map[string]domain.Preset, len(presets))
	for _, p := range presets {
		m[p.Name] = p.Clone()
	}
	c.mu.Lock()
	c.presets = m
	c.mu.Unlock()
}
