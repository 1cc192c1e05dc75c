package usecase

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalbot-backend/internal/domain"
	"signalbot-backend/internal/metrics"
	"signalbot-backend/internal/repository"
)

type published struct {
	event   string
	payload any
}

type recorder struct {
	mu     sync.Mutex
	events []published
}

func (r *recorder) Broadcast(event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{event: event, payload: payload})
}

func (r *recorder) payloads(event string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, e := range r.events {
		if e.event == event {
			out = append(out, e.payload)
		}
	}
	return out
}

type fakeTransport struct {
	name string
	err  error

	mu   sync.Mutex
	sent []domain.Signal
}

func (f *fakeTransport) Name() string { return f.name }

func (f *fakeTransport) Send(_ context.Context, s domain.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, s)
	return f.err
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeTerminal struct {
	connectErr error
	statusErr  error
	status     map[string]any
	signals    []domain.Signal

	mu       sync.Mutex
	settings []map[string]any
	presets  []string
}

func (f *fakeTerminal) Connect(context.Context) error { return f.connectErr }

func (f *fakeTerminal) GetSignals(context.Context) ([]domain.Signal, error) {
	return f.signals, nil
}

func (f *fakeTerminal) GetStatus(context.Context) (map[string]any, error) {
	return f.status, f.statusErr
}

func (f *fakeTerminal) SetSettings(_ context.Context, s map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = append(f.settings, s)
	return nil
}

func (f *fakeTerminal) LoadPreset(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presets = append(f.presets, name)
	return nil
}

func (f *fakeTerminal) Ping(context.Context) error { return f.connectErr }

type testBot struct {
	*SignalBot
	store *repository.InMemoryStore
	rec   *recorder
	m     *metrics.Metrics
}

func newTestBot(t *testing.T, opts Options, term Terminal, transports ...domain.Transport) testBot {
	t.Helper()
	m := metrics.New()
	rec := &recorder{}
	store := repository.NewInMemoryStore()
	bot := NewSignalBot(SignalBotDeps{
		Store:    store,
		Notifier: NewNotifier(zerolog.Nop(), m, transports...),
		FanOut:   NewFanOut(m, rec),
		Terminal: term,
		Log:      zerolog.Nop(),
		Metrics:  m,
	}, opts)
	require.NoError(t, bot.Init(context.Background(), testPresets()))
	return testBot{SignalBot: bot, store: store, rec: rec, m: m}
}

func testPresets() []domain.Preset {
	trend := map[string]string{
		"TimeFrame":             "16388",
		"TradingSymbols":        "EURUSD,USDJPY # majors",
		"MaxDailyTrades":        "3",
		"RiskPercent":           "1.5",
		"StopLossPips":          "60",
		"TakeProfitPips":        "180",
		"MinimumSignalStrength": "7",
		"EnableNewsFilter":      "true",
		"EnableAIAnalysis":      "false",
	}
	return []domain.Preset{
		{Name: "TrendFollowing", Parameters: trend},
		{Name: "STRATEGY_TREND_FOLLOWING", Parameters: trend},
		{Name: "STRATEGY_SCALPING", Parameters: map[string]string{"TimeFrame": "1", "RiskPercent": "bad"}},
	}
}

func ptr[T any](v T) *T { return &v }

func eurusd() domain.Signal {
	return domain.Signal{
		Symbol:     "EURUSD",
		Direction:  domain.DirectionBuy,
		Strength:   7,
		EntryPrice: 1.08762,
		StopLoss:   ptr(1.08262),
		TakeProfit: ptr(1.09762),
	}
}

func TestSignalBot_InitSeedsDefaults(t *testing.T) {
	b := newTestBot(t, Options{SimulationMode: true}, nil)

	assert.Equal(t, domain.DefaultSettings(), b.Settings())
	stored, err := b.store.AllSettings(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, len(domain.SettingKeys))
	assert.Equal(t, []string{"STRATEGY_SCALPING", "STRATEGY_TREND_FOLLOWING", "TrendFollowing"}, b.PresetNames())
	assert.True(t, b.Status().Running)
}

func TestSignalBot_IngestEndToEnd(t *testing.T) {
	b := newTestBot(t, Options{SimulationMode: true}, nil)
	ctx := context.Background()
	before := b.Status().TotalSignalsToday

	got, err := b.IngestSignal(ctx, eurusd(), OriginLocal)
	require.NoError(t, err)

	assert.Equal(t, before+1, b.Status().TotalSignalsToday)

	signals := b.Signals()
	require.NotEmpty(t, signals)
	first := signals[0]
	assert.NotZero(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())
	assert.Equal(t, "EURUSD", first.Symbol)
	assert.Equal(t, domain.DirectionBuy, first.Direction)
	assert.Equal(t, 7, first.Strength)
	assert.Equal(t, 1.08762, first.EntryPrice)
	assert.Equal(t, 1.08262, *first.StopLoss)
	assert.Equal(t, 1.09762, *first.TakeProfit)
	assert.Equal(t, got, first)

	newSignals := b.rec.payloads(domain.EventNewSignal)
	require.Len(t, newSignals, 1)
	assert.Equal(t, got, newSignals[0])
	assert.NotEmpty(t, b.rec.payloads(domain.EventStatusUpdate))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.m.SignalsIngested.WithLabelValues("local")))
}

func TestSignalBot_IngestRejectsInvalid(t *testing.T) {
	b := newTestBot(t, Options{SimulationMode: true}, nil)

	_, err := b.IngestSignal(context.Background(), domain.Signal{Symbol: "EURUSD", Direction: "HOLD"}, OriginLocal)
	assert.ErrorIs(t, err, domain.ErrInvalidSignal)
	assert.Empty(t, b.Signals())
}

func TestSignalBot_OlderSourceTimeStillLeadsWindow(t *testing.T) {
	b := newTestBot(t, Options{SimulationMode: true}, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := b.IngestSignal(ctx, eurusd(), OriginLocal)
		require.NoError(t, err)
	}

	late := eurusd()
	late.Symbol = "GBPUSD"
	late.CreatedAt = time.Now().Add(-time.Hour)
	got, err := b.IngestSignal(ctx, late, OriginLocal)
	require.NoError(t, err)

	window := b.Signals()
	require.Len(t, window, 4)
	assert.Equal(t, got.ID, window[0].ID)
	assert.Equal(t, "GBPUSD", window[0].Symbol)
	assert.True(t, window[0].CreatedAt.Equal(late.CreatedAt))
}

func TestSignalBot_SignalWindow(t *testing.T) {
	b := newTestBot(t, Options{SimulationMode: true}, nil)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	var last domain.Signal
	for i := 0; i < 12; i++ {
		s := eurusd()
		s.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		var err error
		last, err = b.IngestSignal(ctx, s, OriginLocal)
		require.NoError(t, err)

		window := b.Signals()
		assert.Equal(t, last.ID, window[0].ID)
		assert.LessOrEqual(t, len(window), SignalWindow)
	}

	window := b.Signals()
	require.Len(t, window, SignalWindow)
	for i := 1; i < len(window); i++ {
		assert.True(t, window[i-1].CreatedAt.After(window[i].CreatedAt))
	}
	assert.Equal(t, 12, b.Status().TotalSignalsToday)
}

func TestSignalBot_UpdateSettings(t *testing.T) {
	b := newTestBot(t, Options{SimulationMode: true}, nil)
	ctx := context.Background()

	input := map[string]any{
		domain.SettingMaxDailyTrades:        "9 # cap",
		domain.SettingEnableAIAnalysis:      "off",
		domain.SettingMinimumSignalStrength: "strong",
	}
	first, err := b.UpdateSettings(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, 9, first.MaxDailyTrades)
	assert.False(t, first.EnableAIAnalysis)
	assert.Equal(t, domain.DefaultSettings().MinimumSignalStrength, first.MinimumSignalStrength)

	stored, _, err := b.store.GetSetting(ctx, domain.SettingMaxDailyTrades)
	require.NoError(t, err)
	assert.Equal(t, "9", stored)

	second, err := b.UpdateSettings(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, second, b.Settings())

	updates := b.rec.payloads(domain.EventSettingsUpdate)
	require.Len(t, updates, 2)
	assert.Equal(t, second, updates[1])
}

func TestSignalBot_UnparseableKeepsPreviousValue(t *testing.T) {
	b := newTestBot(t, Options{SimulationMode: true}, nil)
	ctx := context.Background()

	_, err := b.UpdateSettings(ctx, map[string]any{domain.SettingRiskPercent: 2.0})
	require.NoError(t, err)

	got, err := b.UpdateSettings(ctx, map[string]any{domain.SettingRiskPercent: "lots"})
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.RiskPercent)
}

func TestSignalBot_LoadPresetAliases(t *testing.T) {
	ctx := context.Background()
	names := []string{"TrendFollowing", "STRATEGY_TREND_FOLLOWING", "TREND_FOLLOWING", "strategy_trend_following"}

	var snapshots []domain.Settings
	for _, name := range names {
		b := newTestBot(t, Options{SimulationMode: true}, nil)
		got, err := b.LoadPreset(ctx, name)
		require.NoError(t, err, name)
		snapshots = append(snapshots, got)
	}

	want := snapshots[0]
	assert.Equal(t, "STRATEGY_TREND_FOLLOWING", want.StrategyPreset)
	assert.Equal(t, "H4", want.TimeFrame)
	assert.Equal(t, "EURUSD,USDJPY", want.TradingSymbols)
	assert.Equal(t, 3, want.MaxDailyTrades)
	assert.Equal(t, 1.5, want.RiskPercent)
	assert.False(t, want.EnableAIAnalysis)
	for i, s := range snapshots {
		assert.Equal(t, want, s, names[i])
	}
}

func TestSignalBot_LoadPresetBadValueKeepsSetting(t *testing.T) {
	b := newTestBot(t, Options{SimulationMode: true}, nil)

	got, err := b.LoadPreset(context.Background(), "scalping")
	require.NoError(t, err)
	assert.Equal(t, "M1", got.TimeFrame)
	assert.Equal(t, domain.DefaultSettings().RiskPercent, got.RiskPercent)
	assert.Equal(t, "STRATEGY_SCALPING", got.StrategyPreset)

	_, err = b.LoadPreset(context.Background(), "Breakout")
	assert.ErrorIs(t, err, domain.ErrPresetNotFound)
}

func TestSignalBot_LivePushesSettingsAndPreset(t *testing.T) {
	term := &fakeTerminal{status: map[string]any{}}
	b := newTestBot(t, Options{}, term)

	_, err := b.LoadPreset(context.Background(), "TrendFollowing")
	require.NoError(t, err)

	term.mu.Lock()
	defer term.mu.Unlock()
	require.Len(t, term.settings, 1)
	assert.Equal(t, "STRATEGY_TREND_FOLLOWING", term.settings[0][domain.SettingStrategyPreset])
	assert.Equal(t, []string{"TrendFollowing"}, term.presets)
}

func TestSignalBot_ExecuteSignalOnce(t *testing.T) {
	b := newTestBot(t, Options{SimulationMode: true}, nil)
	ctx := context.Background()

	sig, err := b.IngestSignal(ctx, eurusd(), OriginLocal)
	require.NoError(t, err)

	res, err := b.ExecuteSignal(ctx, ExecutionRequest{SignalID: &sig.ID})
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, 0.2, res.LotSize)
	assert.Equal(t, 1.4, res.Commission)
	assert.Equal(t, 9998.6, res.NewBalance)
	assert.GreaterOrEqual(t, res.TicketID, int64(10_000_000))
	assert.Equal(t, 1, b.Status().TotalTradesToday)

	executed := b.Signals()[0]
	assert.True(t, executed.Executed)
	assert.NotNil(t, executed.ExecutionTime)

	_, err = b.ExecuteSignal(ctx, ExecutionRequest{SignalID: &sig.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, b.Status().TotalTradesToday)

	missing := int64(999)
	_, err = b.ExecuteSignal(ctx, ExecutionRequest{SignalID: &missing})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSignalBot_ExecuteInline(t *testing.T) {
	b := newTestBot(t, Options{SimulationMode: true}, nil)
	ctx := context.Background()

	res, err := b.ExecuteSignal(ctx, ExecutionRequest{
		Symbol:     "usdjpy",
		Direction:  "sell",
		EntryPrice: ptr(150.0),
	})
	require.NoError(t, err)
	assert.Equal(t, "USDJPY", res.Symbol)
	assert.Equal(t, "SELL", res.Direction)
	assert.Equal(t, 0.2, res.LotSize)
	assert.Equal(t, 1, b.Status().TotalTradesToday)

	_, err = b.ExecuteSignal(ctx, ExecutionRequest{Symbol: "EURUSD"})
	assert.ErrorIs(t, err, domain.ErrInvalidSignal)
}

func TestSignalBot_ExecuteUnavailableLive(t *testing.T) {
	b := newTestBot(t, Options{}, &fakeTerminal{})

	_, err := b.ExecuteSignal(context.Background(), ExecutionRequest{SignalID: ptr(int64(1))})
	assert.ErrorIs(t, err, domain.ErrExecutionUnavailable)
}

func TestSignalBot_NotificationsPerTransport(t *testing.T) {
	ok := &fakeTransport{name: "telegram"}
	failing := &fakeTransport{name: "email", err: errors.New("smtp down")}
	b := newTestBot(t, Options{SimulationMode: true, NotifyInSimulation: true}, nil, ok, failing)

	_, err := b.IngestSignal(context.Background(), eurusd(), OriginLocal)
	require.NoError(t, err)
	b.Wait()

	assert.Equal(t, 1, ok.count())
	assert.Equal(t, 1, failing.count())
	assert.Equal(t, 1.0, testutil.ToFloat64(b.m.Deliveries.WithLabelValues("telegram", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.m.Deliveries.WithLabelValues("email", "failure")))

	results := b.notifier.Notify(context.Background(), eurusd())
	assert.Equal(t, map[string]bool{"telegram": true, "email": false}, results)
}

func TestSignalBot_SimulationSuppressesNotifications(t *testing.T) {
	tr := &fakeTransport{name: "telegram"}
	b := newTestBot(t, Options{SimulationMode: true}, nil, tr)

	_, err := b.IngestSignal(context.Background(), eurusd(), OriginLocal)
	require.NoError(t, err)
	b.Wait()
	assert.Zero(t, tr.count())
}

func TestSignalBot_SyncOnce(t *testing.T) {
	at := time.Date(2024, 6, 3, 14, 30, 0, 0, time.UTC)
	pulled := eurusd()
	pulled.CreatedAt = at
	term := &fakeTerminal{
		status: map[string]any{
			"account_balance": 12000.5,
			"running":         true,
			"open_positions":  2,
		},
		signals: []domain.Signal{pulled},
	}
	tr := &fakeTransport{name: "telegram"}
	b := newTestBot(t, Options{}, term, tr)
	ctx := context.Background()

	require.NoError(t, b.SyncOnce(ctx))
	require.NoError(t, b.SyncOnce(ctx))
	b.Wait()

	st := b.Status()
	assert.True(t, st.Connected)
	assert.Equal(t, 12000.5, st.AccountBalance)
	assert.Equal(t, 1, st.TotalSignalsToday)
	require.Len(t, b.Signals(), 1)
	assert.True(t, b.Signals()[0].CreatedAt.Equal(at))

	assert.Zero(t, tr.count())
	assert.Empty(t, b.rec.payloads(domain.EventNewSignal))
	assert.Len(t, b.rec.payloads(domain.EventSignalsUpdate), 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(b.m.SyncCycles.WithLabelValues("success")))
}

func TestSignalBot_SyncDedupesBeyondWindow(t *testing.T) {
	base := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	pulled := make([]domain.Signal, 0, SignalWindow+3)
	for i := 0; i < SignalWindow+3; i++ {
		s := eurusd()
		s.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		pulled = append(pulled, s)
	}
	// Newest first, as the terminal reports its history.
	for i, j := 0, len(pulled)-1; i < j; i, j = i+1, j-1 {
		pulled[i], pulled[j] = pulled[j], pulled[i]
	}
	term := &fakeTerminal{status: map[string]any{}, signals: pulled}
	b := newTestBot(t, Options{}, term)
	ctx := context.Background()

	for cycle := 0; cycle < 3; cycle++ {
		require.NoError(t, b.SyncOnce(ctx))
		assert.Equal(t, len(pulled), b.Status().TotalSignalsToday)
	}

	stored, err := b.store.RecentSignals(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, stored, len(pulled))

	window := b.Signals()
	require.Len(t, window, SignalWindow)
	assert.True(t, window[0].CreatedAt.Equal(pulled[0].CreatedAt))
}

func TestSignalBot_SyncStatusFailureStillPullsSignals(t *testing.T) {
	pulled := eurusd()
	pulled.CreatedAt = time.Date(2024, 6, 3, 14, 30, 0, 0, time.UTC)
	term := &fakeTerminal{
		statusErr: errors.New("GET_STATUS timed out"),
		signals:   []domain.Signal{pulled},
	}
	b := newTestBot(t, Options{}, term)

	require.NoError(t, b.SyncOnce(context.Background()))
	assert.Equal(t, 1, b.Status().TotalSignalsToday)
	require.Len(t, b.Signals(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(b.m.SyncCycles.WithLabelValues("success")))
}

func TestSignalBot_SavePresetRequiresName(t *testing.T) {
	b := newTestBot(t, Options{SimulationMode: true}, nil)

	err := b.SavePreset(context.Background(), domain.Preset{Name: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidPreset)
}

func TestSignalBot_SyncConnectFailure(t *testing.T) {
	term := &fakeTerminal{connectErr: errors.New("connection refused")}
	b := newTestBot(t, Options{}, term)
	ctx := context.Background()

	connected := true
	_, err := b.UpdateStatus(ctx, domain.StatusPatch{Connected: &connected})
	require.NoError(t, err)

	err = b.SyncOnce(ctx)
	require.Error(t, err)
	assert.False(t, b.Status().Connected)
	assert.Equal(t, 1.0, testutil.ToFloat64(b.m.SyncCycles.WithLabelValues("failure")))

	loop := NewSyncLoop(b.SignalBot, time.Hour, zerolog.Nop())
	assert.NotPanics(t, func() { loop.RunCycle(ctx) })
}

func TestSignalBot_SyncSkippedInSimulation(t *testing.T) {
	b := newTestBot(t, Options{SimulationMode: true}, &fakeTerminal{connectErr: errors.New("unused")})

	assert.False(t, b.Live())
	assert.NoError(t, b.SyncOnce(context.Background()))
	assert.ErrorIs(t, b.CheckConnection(context.Background()), domain.ErrSimulationOnly)
}

func TestSignalBot_ResetDailyCounters(t *testing.T) {
	b := newTestBot(t, Options{SimulationMode: true}, nil)
	ctx := context.Background()

	require.NoError(t, b.SeedSampleSignals(ctx))
	assert.Equal(t, 2, b.Status().TotalSignalsToday)
	require.NoError(t, b.SeedSampleSignals(ctx))
	assert.Len(t, b.Signals(), 2)

	st, err := b.ResetDailyCounters(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.TotalSignalsToday)
	assert.Zero(t, b.Status().TotalSignalsToday)
}

func TestSignalBot_SimulateSignal(t *testing.T) {
	sim := NewSimulator(rand.NewPCG(1, 2))
	b := newTestBot(t, Options{SimulationMode: true}, nil)

	s, err := b.SimulateSignal(context.Background(), sim)
	require.NoError(t, err)
	assert.Contains(t, simSymbols, s.Symbol)
	assert.GreaterOrEqual(t, s.Strength, 4)
	assert.LessOrEqual(t, s.Strength, 10)
	require.NotNil(t, s.StopLoss)
	require.NotNil(t, s.TakeProfit)
	if s.Direction == domain.DirectionBuy {
		assert.Less(t, *s.StopLoss, s.EntryPrice)
		assert.Greater(t, *s.TakeProfit, s.EntryPrice)
	} else {
		assert.Greater(t, *s.StopLoss, s.EntryPrice)
		assert.Less(t, *s.TakeProfit, s.EntryPrice)
	}
	require.NotNil(t, s.Sentiment)
	assert.InDelta(t, 100, s.Sentiment.RetailBullish+s.Sentiment.RetailBearish, 0.0001)
	require.NotNil(t, s.AIAnalysis)

	live := newTestBot(t, Options{}, &fakeTerminal{})
	_, err = live.SimulateSignal(context.Background(), sim)
	assert.ErrorIs(t, err, domain.ErrSimulationOnly)
}
