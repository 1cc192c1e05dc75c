package usecase

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"signalbot-backend/internal/domain"
)

var truthyStrings = map[string]bool{
	"true":    true,
	"1":       true,
	"yes":     true,
	"on":      true,
	"checked": true,
}

// StripComment drops a trailing "# comment" and surrounding whitespace.
func StripComment(s string) string {
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// CoerceInt converts a string (after comment stripping) or a JSON number
// into an int. Fractional numbers are truncated toward zero.
func CoerceInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return int(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.Atoi(StripComment(x))
		return n, err == nil
	}
	return 0, false
}

// CoerceFloat converts a string (after comment stripping) or a JSON number
// into a float64.
func CoerceFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(StripComment(x), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// CoerceBool treats the strings true/1/yes/on/checked (any case) as true and
// every other string as false. Other values follow their zero-ness.
func CoerceBool(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return truthyStrings[strings.ToLower(StripComment(x))]
	case float64:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return true
}

// CoerceString passes strings through after comment stripping and formats
// anything else.
func CoerceString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return StripComment(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return StripComment(fmt.Sprint(v))
}

// SettingsCoercer turns loosely typed input into a complete typed Settings.
// It never fails: a value that cannot be parsed leaves the previous value in
// place and logs a warning.
type SettingsCoercer struct {
	log      zerolog.Logger
	defaults domain.Settings
}

func NewSettingsCoercer(log zerolog.Logger) *SettingsCoercer {
	return &SettingsCoercer{
		log:      log.With().Str("component", "settings").Logger(),
		defaults: domain.DefaultSettings(),
	}
}

// Defaults returns the compiled-in settings.
func (c *SettingsCoercer) Defaults() domain.Settings {
	return c.defaults
}

// Apply merges input into current and returns the result together with the
// keys that were recognized. Unknown keys are ignored.
func (c *SettingsCoercer) Apply(current domain.Settings, input map[string]any) (domain.Settings, []string) {
	out := current
	applied := make([]string, 0, len(input))
	for _, key := range domain.SettingKeys {
		raw, ok := input[key]
		if !ok {
			continue
		}
		if c.set(&out, key, raw) {
			applied = append(applied, key)
		}
	}
	for key := range input {
		if _, known := domain.SettingKinds[key]; !known {
			c.log.Debug().Str("key", key).Msg("ignoring unknown setting")
		}
	}
	return out, applied
}

// Decode builds typed settings from their stored string form. Missing or
// unparseable values resolve to the compiled default.
func (c *SettingsCoercer) Decode(stored map[string]string) domain.Settings {
	out := c.defaults
	for _, key := range domain.SettingKeys {
		raw, ok := stored[key]
		if !ok {
			continue
		}
		c.set(&out, key, raw)
	}
	return out
}

// set coerces raw into the field for key. It reports false when the value was
// rejected and the field kept its previous value.
func (c *SettingsCoercer) set(s *domain.Settings, key string, raw any) bool {
	switch domain.SettingKinds[key] {
	case domain.KindInt:
		n, ok := CoerceInt(raw)
		if !ok {
			c.log.Warn().Str("key", key).Interface("value", raw).Msg("failed to convert setting to integer, keeping previous value")
			return false
		}
		setInt(s, key, n)
	case domain.KindFloat:
		f, ok := CoerceFloat(raw)
		if !ok {
			c.log.Warn().Str("key", key).Interface("value", raw).Msg("failed to convert setting to float, keeping previous value")
			return false
		}
		s.RiskPercent = f
	case domain.KindBool:
		setBool(s, key, CoerceBool(raw))
	default:
		setString(s, key, CoerceString(raw))
	}
	return true
}

func setInt(s *domain.Settings, key string, n int) {
	switch key {
	case domain.SettingMaxDailyTrades:
		s.MaxDailyTrades = n
	case domain.SettingStopLossPips:
		s.StopLossPips = n
	case domain.SettingTakeProfitPips:
		s.TakeProfitPips = n
	case domain.SettingMinimumSignalStrength:
		s.MinimumSignalStrength = n
	}
}

func setBool(s *domain.Settings, key string, b bool) {
	switch key {
	case domain.SettingEnableNewsFilter:
		s.EnableNewsFilter = b
	case domain.SettingEnableAIAnalysis:
		s.EnableAIAnalysis = b
	case domain.SettingEnableSentimentAnalysis:
		s.EnableSentimentAnalysis = b
	}
}

func setString(s *domain.Settings, key, v string) {
	switch key {
	case domain.SettingStrategyPreset:
		s.StrategyPreset = v
	case domain.SettingTimeFrame:
		s.TimeFrame = v
	case domain.SettingTradingSymbols:
		s.TradingSymbols = v
	}
}

// EncodeSettings renders the typed settings in their stored string form.
func EncodeSettings(s domain.Settings) map[string]string {
	values := s.Values()
	out := make(map[string]string, len(values))
	for key, v := range values {
		switch x := v.(type) {
		case string:
			out[key] = x
		case int:
			out[key] = strconv.Itoa(x)
		case float64:
			out[key] = strconv.FormatFloat(x, 'f', -1, 64)
		case bool:
			out[key] = strconv.FormatBool(x)
		}
	}
	return out
}
