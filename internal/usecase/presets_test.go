package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"signalbot-backend/internal/domain"
)

func TestTimeFrameLabel(t *testing.T) {
	assert.Equal(t, "H3", TimeFrameLabel("16387"))
	assert.Equal(t, "M1", TimeFrameLabel("1"))
	assert.Equal(t, "MN1", TimeFrameLabel("49153"))
	assert.Equal(t, "H1", TimeFrameLabel("16385 # hourly"))
	assert.Equal(t, "99999", TimeFrameLabel("99999"))
	assert.Equal(t, "H4", TimeFrameLabel("H4"))
}

func TestPresetSettings(t *testing.T) {
	p := domain.Preset{
		Name: "STRATEGY_SCALPING",
		Parameters: map[string]string{
			"TimeFrame":        "5",
			"MaxDailyTrades":   "12 // scalps",
			"RiskPercent":      "0.5 # low risk",
			"EnableNewsFilter": "false",
			"MagicNumber":      "123456",
		},
	}

	got := PresetSettings(p)
	assert.Equal(t, map[string]any{
		domain.SettingTimeFrame:        "M5",
		domain.SettingMaxDailyTrades:   "12 // scalps",
		domain.SettingRiskPercent:      "0.5",
		domain.SettingEnableNewsFilter: "false",
		domain.SettingStrategyPreset:   "STRATEGY_SCALPING",
	}, got)
}

func TestResolvePresetName(t *testing.T) {
	names := []string{"Reversal", "STRATEGY_SCALPING", "STRATEGY_TREND_FOLLOWING", "TrendFollowing"}

	tests := []struct {
		in    string
		want  string
		found bool
	}{
		{"TrendFollowing", "TrendFollowing", true},
		{"STRATEGY_SCALPING", "STRATEGY_SCALPING", true},
		{"SCALPING", "STRATEGY_SCALPING", true},
		{"STRATEGY_Reversal", "Reversal", true},
		{"scalping", "STRATEGY_SCALPING", true},
		{"strategy_trend_following", "STRATEGY_TREND_FOLLOWING", true},
		{"reversal", "Reversal", true},
		{"Breakout", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ResolvePresetName(names, tt.in)
		assert.Equal(t, tt.found, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestCanonicalPresetName(t *testing.T) {
	names := []string{"Custom", "Reversal", "STRATEGY_REVERSAL", "SCALPING", "STRATEGY_SCALPING"}

	assert.Equal(t, "STRATEGY_REVERSAL", CanonicalPresetName(names, "Reversal"))
	assert.Equal(t, "STRATEGY_SCALPING", CanonicalPresetName(names, "SCALPING"))
	assert.Equal(t, "STRATEGY_SCALPING", CanonicalPresetName(names, "STRATEGY_SCALPING"))
	assert.Equal(t, "Custom", CanonicalPresetName(names, "Custom"))
}
