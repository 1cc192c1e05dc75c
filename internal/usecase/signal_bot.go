package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"signalbot-backend/internal/domain"
	"signalbot-backend/internal/metrics"
)

// Origin tells the pipeline where an ingested signal came from.
type Origin string

const (
	// OriginLocal is a signal posted to the API.
	OriginLocal Origin = "local"
	// OriginSimulator is a signal produced by the built-in generator.
	OriginSimulator Origin = "simulator"
	// OriginSubscription is a signal pushed by the terminal subscription.
	OriginSubscription Origin = "subscription"
	// OriginSync is a signal pulled by a sync cycle. These are persisted but
	// never sent to notification transports.
	OriginSync Origin = "sync"
)

func (o Origin) notifies() bool {
	return o != OriginSync
}

// Terminal is the live external source the bot mirrors.
type Terminal interface {
	Connect(ctx context.Context) error
	GetSignals(ctx context.Context) ([]domain.Signal, error)
	GetStatus(ctx context.Context) (map[string]any, error)
	SetSettings(ctx context.Context, settings map[string]any) error
	LoadPreset(ctx context.Context, name string) error
	Ping(ctx context.Context) error
}

// Options are the process-wide mode switches.
type Options struct {
	SimulationMode bool
	// NotifyInSimulation sends transport notifications even in simulation mode.
	NotifyInSimulation bool
}

// SignalBot is the ingestion pipeline: it persists through the store,
// refreshes the cache from the store after every committed write, and then
// fans the result out to subscribers and notification transports.
type SignalBot struct {
	store    domain.Store
	cache    *Cache
	coercer  *SettingsCoercer
	notifier *Notifier
	fanout   *FanOut
	terminal Terminal
	opts     Options
	log      zerolog.Logger
	m        *metrics.Metrics

	// refreshMu orders store reads with cache writes so a slow refresh
	// cannot overwrite a newer one.
	refreshMu sync.Mutex
	// settingsMu serializes read-modify-write of the settings snapshot.
	settingsMu sync.Mutex
	// syncMu keeps sync cycles from the loop and from readers apart.
	syncMu sync.Mutex

	notifyWG sync.WaitGroup
	now      func() time.Time
}

// SignalBotDeps bundles the collaborators of a SignalBot. Terminal may be nil
// in simulation mode.
type SignalBotDeps struct {
	Store    domain.Store
	Coercer  *SettingsCoercer
	Notifier *Notifier
	FanOut   *FanOut
	Terminal Terminal
	Log      zerolog.Logger
	Metrics  *metrics.Metrics
}

func NewSignalBot(deps SignalBotDeps, opts Options) *SignalBot {
	coercer := deps.Coercer
	if coercer == nil {
		coercer = NewSettingsCoercer(deps.Log)
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NewNotifier(deps.Log, m)
	}
	fanout := deps.FanOut
	if fanout == nil {
		fanout = NewFanOut(m)
	}
	if opts.SimulationMode {
		deps.Terminal = nil
	}
	return &SignalBot{
		store:    deps.Store,
		cache:    NewCache(coercer.Defaults()),
		coercer:  coercer,
		notifier: notifier,
		fanout:   fanout,
		terminal: deps.Terminal,
		opts:     opts,
		log:      deps.Log.With().Str("component", "signal_bot").Logger(),
		m:        m,
		now:      time.Now,
	}
}

// Init seeds missing settings and presets, then fills every cache aggregate.
func (b *SignalBot) Init(ctx context.Context, presets []domain.Preset) error {
	stored, err := b.store.AllSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	missing := make(map[string]string)
	for key, value := range EncodeSettings(b.coercer.Defaults()) {
		if _, ok := stored[key]; !ok {
			missing[key] = value
		}
	}
	if err := b.store.SaveSettings(ctx, missing); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	if len(missing) > 0 {
		b.log.Info().Int("count", len(missing)).Msg("seeded default settings")
	}

	if _, err := b.SeedPresets(ctx, presets, false); err != nil {
		return err
	}

	if err := b.refreshAll(ctx); err != nil {
		return err
	}
	b.log.Info().
		Int("signals", len(b.cache.Signals())).
		Int("presets", len(b.cache.PresetNames())).
		Bool("simulation", b.opts.SimulationMode).
		Msg("signal bot initialized")
	return nil
}

// SeedPresets stores presets that are not yet in the store. With overwrite
// set every preset is written. It returns the number of presets written.
func (b *SignalBot) SeedPresets(ctx context.Context, presets []domain.Preset, overwrite bool) (int, error) {
	if len(presets) == 0 {
		return 0, nil
	}
	existing, err := b.store.ListPresets(ctx)
	if err != nil {
		return 0, fmt.Errorf("list presets: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, p := range existing {
		have[p.Name] = true
	}

	written := 0
	for _, p := range presets {
		if have[p.Name] && !overwrite {
			continue
		}
		if err := b.store.SavePreset(ctx, p); err != nil {
			return written, fmt.Errorf("save preset %s: %w", p.Name, err)
		}
		written++
	}
	if written > 0 {
		if err := b.refreshPresets(ctx); err != nil {
			return written, err
		}
		b.log.Info().Int("count", written).Msg("imported presets")
	}
	return written, nil
}

// IngestSignal validates, persists and publishes a signal. The returned
// signal carries the store-assigned id and timestamp.
func (b *SignalBot) IngestSignal(ctx context.Context, signal domain.Signal, origin Origin) (domain.Signal, error) {
	if err := signal.Validate(); err != nil {
		return domain.Signal{}, err
	}
	if signal.CreatedAt.IsZero() {
		signal.CreatedAt = b.now()
	}
	signal.ID = 0
	signal.Executed = false
	signal.ExecutionTime = nil

	if err := b.store.SaveSignal(ctx, &signal); err != nil {
		return domain.Signal{}, fmt.Errorf("save signal: %w", err)
	}
	b.m.SignalsIngested.WithLabelValues(string(origin)).Inc()

	if err := b.refreshSignals(ctx); err != nil {
		return signal, err
	}
	if err := b.refreshStatus(ctx); err != nil {
		return signal, err
	}

	b.log.Info().
		Int64("id", signal.ID).
		Str("symbol", signal.Symbol).
		Str("direction", string(signal.Direction)).
		Str("origin", string(origin)).
		Msg("signal ingested")

	if origin == OriginSync {
		return signal, nil
	}

	b.fanout.Publish(domain.EventNewSignal, signal)
	b.fanout.Publish(domain.EventStatusUpdate, b.cache.Status())

	if origin.notifies() && b.notificationsEnabled() {
		b.notifyAsync(ctx, signal)
	}
	return signal, nil
}

func (b *SignalBot) notificationsEnabled() bool {
	return !b.opts.SimulationMode || b.opts.NotifyInSimulation
}

func (b *SignalBot) notifyAsync(ctx context.Context, signal domain.Signal) {
	ctx = context.WithoutCancel(ctx)
	b.notifyWG.Add(1)
	go func() {
		defer b.notifyWG.Done()
		b.notifier.Notify(ctx, signal)
	}()
}

// UpdateSettings coerces input into the typed settings, persists the keys
// it recognized and publishes the full snapshot.
func (b *SignalBot) UpdateSettings(ctx context.Context, input map[string]any) (domain.Settings, error) {
	b.settingsMu.Lock()
	next, applied := b.coercer.Apply(b.cache.Settings(), input)
	if len(applied) == 0 {
		b.settingsMu.Unlock()
		return b.cache.Settings(), nil
	}

	encoded := EncodeSettings(next)
	changes := make(map[string]string, len(applied))
	for _, key := range applied {
		changes[key] = encoded[key]
	}
	if err := b.store.SaveSettings(ctx, changes); err != nil {
		b.settingsMu.Unlock()
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	err := b.refreshSettings(ctx)
	b.settingsMu.Unlock()
	if err != nil {
		return domain.Settings{}, err
	}

	settings := b.cache.Settings()
	b.log.Info().Strs("keys", applied).Msg("settings updated")
	b.fanout.Publish(domain.EventSettingsUpdate, settings)

	if b.terminal != nil {
		if err := b.terminal.SetSettings(ctx, settings.Values()); err != nil {
			b.log.Error().Err(err).Msg("failed to push settings to terminal")
		}
	}
	return settings, nil
}

// LoadPreset resolves name against the catalog and applies the preset as a
// settings update.
func (b *SignalBot) LoadPreset(ctx context.Context, name string) (domain.Settings, error) {
	names := b.cache.PresetNames()
	resolved, ok := ResolvePresetName(names, name)
	if !ok {
		return domain.Settings{}, fmt.Errorf("%w: %s", domain.ErrPresetNotFound, name)
	}
	preset, ok := b.cache.Preset(resolved)
	if !ok {
		return domain.Settings{}, fmt.Errorf("%w: %s", domain.ErrPresetNotFound, name)
	}
	preset.Name = CanonicalPresetName(names, resolved)

	settings, err := b.UpdateSettings(ctx, PresetSettings(preset))
	if err != nil {
		return domain.Settings{}, err
	}
	b.log.Info().Str("requested", name).Str("preset", resolved).Msg("preset applied")

	if b.terminal != nil {
		if err := b.terminal.LoadPreset(ctx, resolved); err != nil {
			b.log.Error().Err(err).Str("preset", resolved).Msg("failed to load preset in terminal")
		}
	}
	return settings, nil
}

// SavePreset upserts a preset and refreshes the catalog.
func (b *SignalBot) SavePreset(ctx context.Context, preset domain.Preset) error {
	if strings.TrimSpace(preset.Name) == "" {
		return fmt.Errorf("%w: name is required", domain.ErrInvalidPreset)
	}
	if preset.Parameters == nil {
		preset.Parameters = map[string]string{}
	}
	if err := b.store.SavePreset(ctx, preset); err != nil {
		return fmt.Errorf("save preset: %w", err)
	}
	return b.refreshPresets(ctx)
}

// DeletePreset removes a preset by its exact name.
func (b *SignalBot) DeletePreset(ctx context.Context, name string) error {
	deleted, err := b.store.DeletePreset(ctx, name)
	if err != nil {
		return fmt.Errorf("delete preset: %w", err)
	}
	if !deleted {
		return fmt.Errorf("%w: %s", domain.ErrPresetNotFound, name)
	}
	return b.refreshPresets(ctx)
}

// UpdateStatus applies a partial status update and publishes the snapshot.
func (b *SignalBot) UpdateStatus(ctx context.Context, patch domain.StatusPatch) (domain.BotStatus, error) {
	if err := b.store.UpdateStatus(ctx, patch); err != nil {
		return domain.BotStatus{}, fmt.Errorf("update status: %w", err)
	}
	if err := b.refreshStatus(ctx); err != nil {
		return domain.BotStatus{}, err
	}
	status := b.cache.Status()
	b.fanout.Publish(domain.EventStatusUpdate, status)
	return status, nil
}

// ResetDailyCounters zeroes the per-day counters.
func (b *SignalBot) ResetDailyCounters(ctx context.Context) (domain.BotStatus, error) {
	if err := b.store.ResetDailyCounters(ctx); err != nil {
		return domain.BotStatus{}, fmt.Errorf("reset daily counters: %w", err)
	}
	if err := b.refreshStatus(ctx); err != nil {
		return domain.BotStatus{}, err
	}
	status := b.cache.Status()
	b.log.Info().Msg("daily counters reset")
	b.fanout.Publish(domain.EventStatusUpdate, status)
	return status, nil
}

// BroadcastSnapshots publishes the cached signal window and status.
func (b *SignalBot) BroadcastSnapshots() {
	b.fanout.Publish(domain.EventSignalsUpdate, b.cache.Signals())
	b.fanout.Publish(domain.EventStatusUpdate, b.cache.Status())
}

// Signals returns the cached window, most recent first.
func (b *SignalBot) Signals() []domain.Signal { return b.cache.Signals() }

func (b *SignalBot) Status() domain.BotStatus { return b.cache.Status() }

func (b *SignalBot) Settings() domain.Settings { return b.cache.Settings() }

func (b *SignalBot) Presets() map[string]domain.Preset { return b.cache.Presets() }

func (b *SignalBot) PresetNames() []string { return b.cache.PresetNames() }

func (b *SignalBot) SimulationMode() bool { return b.opts.SimulationMode }

// Live reports whether a terminal is attached.
func (b *SignalBot) Live() bool { return b.terminal != nil }

// RefreshSignals syncs with the terminal first in live mode and returns the
// cached window. A failed sync is logged and the cached window returned.
func (b *SignalBot) RefreshSignals(ctx context.Context) []domain.Signal {
	b.syncBeforeRead(ctx)
	return b.cache.Signals()
}

// RefreshStatus is RefreshSignals for the status snapshot.
func (b *SignalBot) RefreshStatus(ctx context.Context) domain.BotStatus {
	b.syncBeforeRead(ctx)
	return b.cache.Status()
}

func (b *SignalBot) syncBeforeRead(ctx context.Context) {
	if !b.Live() {
		return
	}
	if err := b.SyncOnce(ctx); err != nil {
		b.log.Warn().Err(err).Msg("sync before read failed")
	}
}

// CheckConnection reports whether the terminal answers.
func (b *SignalBot) CheckConnection(ctx context.Context) error {
	if b.terminal == nil {
		return domain.ErrSimulationOnly
	}
	return b.terminal.Ping(ctx)
}

// Wait blocks until in-flight notifications have finished.
func (b *SignalBot) Wait() {
	b.notifyWG.Wait()
}

func (b *SignalBot) refreshAll(ctx context.Context) error {
	return errors.Join(
		b.refreshSettings(ctx),
		b.refreshSignals(ctx),
		b.refreshStatus(ctx),
		b.refreshPresets(ctx),
	)
}

func (b *SignalBot) refreshSettings(ctx context.Context) error {
	b.refreshMu.Lock()
	defer b.refreshMu.Unlock()
	stored, err := b.store.AllSettings(ctx)
	if err != nil {
		return fmt.Errorf("refresh settings: %w", err)
	}
	b.cache.SetSettings(b.coercer.Decode(stored))
	return nil
}

func (b *SignalBot) refreshSignals(ctx context.Context) error {
	b.refreshMu.Lock()
	defer b.refreshMu.Unlock()
	signals, err := b.store.RecentSignals(ctx, SignalWindow)
	if err != nil {
		return fmt.Errorf("refresh signals: %w", err)
	}
	b.cache.SetSignals(signals)
	return nil
}

func (b *SignalBot) refreshStatus(ctx context.Context) error {
	b.refreshMu.Lock()
	defer b.refreshMu.Unlock()
	status, err := b.store.GetStatus(ctx)
	if err != nil {
		return fmt.Errorf("refresh status: %w", err)
	}
	b.cache.SetStatus(status)
	return nil
}

func (b *SignalBot) refreshPresets(ctx context.Context) error {
	b.refreshMu.Lock()
	defer b.refreshMu.Unlock()
	presets, err := b.store.ListPresets(ctx)
	if err != nil {
		return fmt.Errorf("refresh presets: %w", err)
	}
	b.cache.SetPresets(presets)
	return nil
}
