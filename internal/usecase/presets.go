package usecase

import (
	"strings"

	"signalbot-backend/internal/domain"
)

const strategyPrefix = "STRATEGY_"

// presetKeys maps preset file parameter names onto setting keys.
var presetKeys = map[string]string{
	"TimeFrame":               domain.SettingTimeFrame,
	"TradingSymbols":          domain.SettingTradingSymbols,
	"MaxDailyTrades":          domain.SettingMaxDailyTrades,
	"RiskPercent":             domain.SettingRiskPercent,
	"StopLossPips":            domain.SettingStopLossPips,
	"TakeProfitPips":          domain.SettingTakeProfitPips,
	"MinimumSignalStrength":   domain.SettingMinimumSignalStrength,
	"EnableNewsFilter":        domain.SettingEnableNewsFilter,
	"EnableAIAnalysis":        domain.SettingEnableAIAnalysis,
	"EnableSentimentAnalysis": domain.SettingEnableSentimentAnalysis,
}

// timeFrameCodes maps terminal ENUM_TIMEFRAMES values onto their labels.
var timeFrameCodes = map[string]string{
	"1":     "M1",
	"2":     "M2",
	"3":     "M3",
	"4":     "M4",
	"5":     "M5",
	"6":     "M6",
	"10":    "M10",
	"12":    "M12",
	"15":    "M15",
	"20":    "M20",
	"30":    "M30",
	"16385": "H1",
	"16386": "H2",
	"16387": "H3",
	"16388": "H4",
	"16390": "H6",
	"16392": "H8",
	"16396": "H12",
	"16408": "D1",
	"32769": "W1",
	"49153": "MN1",
}

// TimeFrameLabel converts a numeric period code to its label. Unknown values
// are returned unchanged.
func TimeFrameLabel(code string) string {
	code = StripComment(code)
	if label, ok := timeFrameCodes[code]; ok {
		return label
	}
	return code
}

// PresetSettings translates preset parameters into a settings update keyed by
// setting name. strategy_preset is always set to the preset's name.
func PresetSettings(p domain.Preset) map[string]any {
	out := make(map[string]any, len(presetKeys)+1)
	for param, key := range presetKeys {
		raw, ok := p.Parameters[param]
		if !ok {
			continue
		}
		if key == domain.SettingTimeFrame {
			out[key] = TimeFrameLabel(raw)
			continue
		}
		out[key] = StripComment(raw)
	}
	out[domain.SettingStrategyPreset] = p.Name
	return out
}

// ResolvePresetName finds the catalog entry for name: the exact name first,
// then with the STRATEGY_ prefix toggled, then a case-insensitive match on
// either form.
func ResolvePresetName(names []string, name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}

	candidates := []string{name, togglePrefix(name)}
	for _, c := range candidates {
		if _, ok := set[c]; ok {
			return c, true
		}
	}

	var found string
	for _, n := range names {
		for _, c := range candidates {
			if strings.EqualFold(n, c) && (found == "" || n < found) {
				found = n
			}
		}
	}
	return found, found != ""
}

// CanonicalPresetName picks the name recorded as strategy_preset, so every
// alias of one strategy yields the same settings. The STRATEGY_ form wins
// when the catalog has it.
func CanonicalPresetName(names []string, resolved string) string {
	if strings.HasPrefix(strings.ToUpper(resolved), strategyPrefix) {
		return resolved
	}
	candidates := []string{strategyPrefix + resolved}
	if alias, ok := domain.PresetAliases[resolved]; ok {
		candidates = append([]string{alias}, candidates...)
	}
	for _, c := range candidates {
		for _, n := range names {
			if strings.EqualFold(n, c) {
				return n
			}
		}
	}
	return resolved
}

func togglePrefix(name string) string {
	if len(name) > len(strategyPrefix) && strings.EqualFold(name[:len(strategyPrefix)], strategyPrefix) {
		return name[len(strategyPrefix):]
	}
	return strategyPrefix + name
}
