package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"signalbot-backend/internal/domain"
	"signalbot-backend/internal/metrics"
)

// DefaultSyncInterval is the pause between terminal sync cycles.
const DefaultSyncInterval = 5 * time.Second

// SyncOnce pulls status and signals from the terminal into the store and
// cache, then re-broadcasts both snapshots. In simulation mode it does
// nothing.
func (b *SignalBot) SyncOnce(ctx context.Context) (err error) {
	if b.terminal == nil {
		return nil
	}
	b.syncMu.Lock()
	defer b.syncMu.Unlock()
	defer func() {
		b.m.SyncCycles.WithLabelValues(metrics.Result(err == nil)).Inc()
	}()

	if err := b.terminal.Connect(ctx); err != nil {
		connected := false
		if _, uerr := b.UpdateStatus(ctx, domain.StatusPatch{Connected: &connected}); uerr != nil {
			b.log.Error().Err(uerr).Msg("failed to record terminal disconnect")
		}
		return fmt.Errorf("connect terminal: %w", err)
	}

	if err := b.syncStatus(ctx); err != nil {
		b.log.Warn().Err(err).Msg("terminal status not merged, pulling signals anyway")
	}

	signals, err := b.terminal.GetSignals(ctx)
	if err != nil {
		return fmt.Errorf("get terminal signals: %w", err)
	}
	// Oldest first so the stored order matches the terminal's history.
	signals = append([]domain.Signal(nil), signals...)
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].CreatedAt.Before(signals[j].CreatedAt)
	})
	added := 0
	for _, s := range signals {
		stored, err := b.alreadyStored(ctx, s)
		if err != nil {
			return fmt.Errorf("check synced signal: %w", err)
		}
		if stored {
			continue
		}
		if _, err := b.IngestSignal(ctx, s, OriginSync); err != nil {
			return fmt.Errorf("ingest synced signal: %w", err)
		}
		added++
	}
	if added > 0 {
		b.log.Debug().Int("signals", added).Msg("synced signals from terminal")
	}

	b.BroadcastSnapshots()
	return nil
}

func (b *SignalBot) syncStatus(ctx context.Context) error {
	fields, err := b.terminal.GetStatus(ctx)
	if err != nil {
		return fmt.Errorf("get terminal status: %w", err)
	}
	patch := ParseStatusPatch(fields)
	connected := true
	patch.Connected = &connected
	if err := b.store.UpdateStatus(ctx, patch); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return b.refreshStatus(ctx)
}

// alreadyStored reports whether a pulled signal is already in the store.
// Signals without a terminal timestamp cannot be matched.
func (b *SignalBot) alreadyStored(ctx context.Context, s domain.Signal) (bool, error) {
	if s.CreatedAt.IsZero() {
		return false, nil
	}
	s.Symbol = strings.ToUpper(strings.TrimSpace(s.Symbol))
	dir, err := domain.ParseDirection(string(s.Direction))
	if err != nil {
		return false, nil
	}
	s.Direction = dir
	return b.store.SignalExists(ctx, s)
}

// SyncLoop runs SyncOnce on a fixed schedule for the life of the process.
// A failed cycle is logged and the next one runs as scheduled; a cycle that
// overruns the interval delays the next one instead of overlapping it.
type SyncLoop struct {
	bot      *SignalBot
	interval time.Duration
	cron     *cron.Cron
	log      zerolog.Logger
}

func NewSyncLoop(bot *SignalBot, interval time.Duration, log zerolog.Logger) *SyncLoop {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	log = log.With().Str("component", "sync").Logger()
	cl := cronLogger{log: log}
	return &SyncLoop{
		bot:      bot,
		interval: interval,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log: log,
	}
}

// Start schedules the loop. It is a no-op when the bot has no terminal.
func (l *SyncLoop) Start(ctx context.Context) error {
	if !l.bot.Live() {
		l.log.Info().Msg("simulation mode, terminal sync disabled")
		return nil
	}
	_, err := l.cron.AddFunc(fmt.Sprintf("@every %s", l.interval), func() {
		l.RunCycle(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule sync: %w", err)
	}
	l.cron.Start()
	l.log.Info().Dur("interval", l.interval).Msg("terminal sync started")
	return nil
}

// RunCycle performs one sync and swallows its error.
func (l *SyncLoop) RunCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := l.bot.SyncOnce(ctx); err != nil {
		l.log.Error().Err(err).Msg("sync cycle failed")
		return
	}
	l.log.Debug().Dur("took", time.Since(start)).Msg("sync cycle complete")
}

// Stop halts scheduling and waits for a running cycle to finish.
func (l *SyncLoop) Stop() {
	<-l.cron.Stop().Done()
}

// cronLogger routes cron's logging into zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
