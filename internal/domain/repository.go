package domain

import "context"

type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	AllSettings(ctx context.Context) (map[string]string, error)
	SaveSetting(ctx context.Context, key, value string) error
	// SaveSettings writes all values in a single transaction.
	SaveSettings(ctx context.Context, values map[string]string) error
	DeleteSetting(ctx context.Context, key string) (bool, error)
}

type PresetStore interface {
	GetPreset(ctx context.Context, name string) (Preset, error)
	ListPresets(ctx context.Context) ([]Preset, error)
	// SavePreset upserts by name. An empty description keeps the stored one.
	SavePreset(ctx context.Context, preset Preset) error
	DeletePreset(ctx context.Context, name string) (bool, error)
}

type SignalStore interface {
	// SaveSignal assigns the id and increments the signals-today counter
	// in the same transaction.
	SaveSignal(ctx context.Context, signal *Signal) error
	// RecentSignals returns up to limit signals, most recently stored first.
	// Order follows the assigned id, not the source timestamp.
	RecentSignals(ctx context.Context, limit int) ([]Signal, error)
	// SignalExists reports whether a signal with the same symbol, direction,
	// entry price and timestamp is already stored.
	SignalExists(ctx context.Context, signal Signal) (bool, error)
	GetSignal(ctx context.Context, id int64) (Signal, error)
	// MarkSignalExecuted flips executed and stamps the execution time. It
	// reports false, and leaves the trades counter alone, when the signal was
	// already executed. Unknown ids return ErrNotFound.
	MarkSignalExecuted(ctx context.Context, id int64) (bool, error)
}

type StatusStore interface {
	// GetStatus creates the singleton record on first access.
	GetStatus(ctx context.Context) (BotStatus, error)
	// UpdateStatus applies the patch and always stamps last_update.
	UpdateStatus(ctx context.Context, patch StatusPatch) error
	ResetDailyCounters(ctx context.Context) error
}

// Store is the durable store used by the signal pipeline.
type Store interface {
	SettingsStore
	PresetStore
	SignalStore
	StatusStore
}

// Transport is an outbound notification channel for new signals.
type Transport interface {
	Name() string
	Send(ctx context.Context, signal Signal) error
}
