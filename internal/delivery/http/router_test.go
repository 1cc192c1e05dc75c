package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalbot-backend/internal/domain"
	"signalbot-backend/internal/infrastructure/notify"
	"signalbot-backend/internal/metrics"
	"signalbot-backend/internal/repository"
	"signalbot-backend/internal/usecase"
)

type fakePush struct {
	count int
	err   error
}

func (f fakePush) SendTest(context.Context) (int, error) { return f.count, f.err }

func newTestRouter(t *testing.T, auth AuthConfig, push PushTester) (http.Handler, *usecase.SignalBot, *repository.TokenRepository) {
	t.Helper()
	m := metrics.New()
	notifier := usecase.NewNotifier(zerolog.Nop(), m)
	bot := usecase.NewSignalBot(usecase.SignalBotDeps{
		Store:    repository.NewInMemoryStore(),
		Notifier: notifier,
		Log:      zerolog.Nop(),
		Metrics:  m,
	}, usecase.Options{SimulationMode: true})
	require.NoError(t, bot.Init(context.Background(), []domain.Preset{{
		Name:       "STRATEGY_SCALPING",
		Parameters: map[string]string{"TimeFrame": "5", "MaxDailyTrades": "12"},
	}}))
	t.Cleanup(bot.Wait)

	tokens := repository.NewTokenRepository()
	router := NewRouter(RouterDeps{
		Bot:       bot,
		Simulator: usecase.NewSimulator(rand.NewPCG(1, 2)),
		Notifier:  notifier,
		Tokens:    tokens,
		Push:      push,
		Metrics:   m.Handler(),
		Auth:      auth,
		Log:       zerolog.Nop(),
	})
	return router, bot, tokens
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestAddSignalThenList(t *testing.T) {
	h, bot, _ := newTestRouter(t, AuthConfig{}, nil)

	rec := do(t, h, http.MethodPost, "/api/add_signal",
		`{"symbol":"eurusd","direction":"buy","strength":7,"entry_price":1.08762,"stop_loss":1.08262,"take_profit":1.09762,"reason":"test"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	added := decode[map[string]any](t, rec)
	assert.Equal(t, "success", added["status"])

	rec = do(t, h, http.MethodGet, "/api/signals", "")
	require.Equal(t, http.StatusOK, rec.Code)
	signals := decode[[]domain.Signal](t, rec)
	require.NotEmpty(t, signals)
	assert.Equal(t, "EURUSD", signals[0].Symbol)
	assert.Equal(t, domain.DirectionBuy, signals[0].Direction)
	assert.Equal(t, 1, bot.Status().TotalSignalsToday)
}

func TestAddSignalRejectsBadDirection(t *testing.T) {
	h, _, _ := newTestRouter(t, AuthConfig{}, nil)

	rec := do(t, h, http.MethodPost, "/api/add_signal", `{"symbol":"EURUSD","direction":"HOLD"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorResponse](t, rec)
	assert.Equal(t, "error", body.Status)
	assert.Contains(t, body.Error, "direction")

	rec = do(t, h, http.MethodPost, "/api/add_signal", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettingsRoundTrip(t *testing.T) {
	h, _, _ := newTestRouter(t, AuthConfig{}, nil)

	rec := do(t, h, http.MethodPut, "/api/settings", `{"max_daily_trades":"8 # more","enable_news_filter":"off","unknown":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/settings", "")
	settings := decode[domain.Settings](t, rec)
	assert.Equal(t, 8, settings.MaxDailyTrades)
	assert.False(t, settings.EnableNewsFilter)
}

func TestLoadPresetByAlias(t *testing.T) {
	h, _, _ := newTestRouter(t, AuthConfig{}, nil)

	rec := do(t, h, http.MethodPost, "/api/presets/scalping/load", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	settings := decode[domain.Settings](t, rec)
	assert.Equal(t, "STRATEGY_SCALPING", settings.StrategyPreset)
	assert.Equal(t, "M5", settings.TimeFrame)
	assert.Equal(t, 12, settings.MaxDailyTrades)

	rec = do(t, h, http.MethodGet, "/load_preset/STRATEGY_SCALPING", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/presets/Nope/load", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSaveAndDeletePreset(t *testing.T) {
	h, _, _ := newTestRouter(t, AuthConfig{}, nil)

	rec := do(t, h, http.MethodPut, "/api/presets/Custom", `{"description":"mine","parameters":{"TimeFrame":"60"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/debug/presets", "")
	names := decode[map[string][]string](t, rec)["presets"]
	assert.Equal(t, []string{"Custom", "STRATEGY_SCALPING"}, names)

	rec = do(t, h, http.MethodGet, "/api/presets", "")
	presets := decode[[]domain.Preset](t, rec)
	require.Len(t, presets, 2)
	assert.Equal(t, "mine", presets[0].Description)

	rec = do(t, h, http.MethodDelete, "/api/presets/Custom", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodDelete, "/api/presets/Custom", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusEndpoints(t *testing.T) {
	h, _, _ := newTestRouter(t, AuthConfig{}, nil)

	rec := do(t, h, http.MethodPut, "/api/status", `{"account_balance":2500.5,"made_up":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[domain.BotStatus](t, rec)
	assert.Equal(t, 2500.5, status.AccountBalance)

	rec = do(t, h, http.MethodPost, "/dev/simulate_signal", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/status/reset_daily", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[domain.BotStatus](t, rec).TotalSignalsToday)

	rec = do(t, h, http.MethodGet, "/api/connection", "")
	assert.Equal(t, "simulation", decode[map[string]string](t, rec)["status"])
}

func TestExecuteSignalInline(t *testing.T) {
	h, bot, _ := newTestRouter(t, AuthConfig{}, nil)

	rec := do(t, h, http.MethodPost, "/api/execute_signal",
		`{"symbol":"EURUSD","direction":"BUY","entry_price":1.1,"stop_loss":1.095}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[usecase.ExecutionResult](t, rec)
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, 0.2, res.LotSize)
	assert.Equal(t, 1, bot.Status().TotalTradesToday)

	rec = do(t, h, http.MethodPost, "/api/execute_signal", `{"signal_id":404}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/execute_signal", `{"symbol":"EURUSD"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBasicAuth(t *testing.T) {
	h, _, _ := newTestRouter(t, AuthConfig{Enabled: true, Username: "admin", Password: "secret"}, nil)

	rec := do(t, h, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/debug/presets", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTokenRoutes(t *testing.T) {
	h, _, tokens := newTestRouter(t, AuthConfig{}, fakePush{count: 1})

	rec := do(t, h, http.MethodPost, "/api/tokens/register", `{"token":"abc"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[TokenResponse](t, rec).Count)
	assert.Equal(t, []string{"abc"}, tokens.Tokens())

	rec = do(t, h, http.MethodPost, "/api/tokens/register", `{"platform":"ios"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/tokens/test", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/tokens/unregister", `{"token":"abc"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[TokenResponse](t, rec).Count)

	rec = do(t, h, http.MethodGet, "/api/tokens/count", "")
	assert.Zero(t, decode[TokenResponse](t, rec).Count)
}

func TestPushTestFailures(t *testing.T) {
	h, _, _ := newTestRouter(t, AuthConfig{}, nil)
	rec := do(t, h, http.MethodPost, "/api/tokens/test", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	h, _, _ = newTestRouter(t, AuthConfig{}, fakePush{err: notify.ErrNoDevices})
	rec = do(t, h, http.MethodPost, "/api/tokens/test", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, false, decode[map[string]any](t, rec)["success"])
}

func TestNotificationTestWithoutTransports(t *testing.T) {
	h, _, _ := newTestRouter(t, AuthConfig{}, nil)

	rec := do(t, h, http.MethodPost, "/api/notifications/test", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode[map[string]any](t, rec)["success"])
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotImplemented, statusFor(domain.ErrExecutionUnavailable))
	assert.Equal(t, http.StatusBadRequest, statusFor(fmt.Errorf("%w: name is required", domain.ErrInvalidPreset)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
