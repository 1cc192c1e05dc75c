package domain

// Recognized setting keys.
const (
	SettingStrategyPreset          = "strategy_preset"
	SettingTimeFrame               = "time_frame"
	SettingTradingSymbols          = "trading_symbols"
	SettingMaxDailyTrades          = "max_daily_trades"
	SettingRiskPercent             = "risk_percent"
	SettingStopLossPips            = "stop_loss_pips"
	SettingTakeProfitPips          = "take_profit_pips"
	SettingMinimumSignalStrength   = "minimum_signal_strength"
	SettingEnableNewsFilter        = "enable_news_filter"
	SettingEnableAIAnalysis        = "enable_ai_analysis"
	SettingEnableSentimentAnalysis = "enable_sentiment_analysis"
)

// SettingKind is the type a stored setting string is decoded into.
type SettingKind int

const (
	KindString SettingKind = iota
	KindInt
	KindFloat
	KindBool
)

// SettingKeys lists every recognized key in a stable order.
var SettingKeys = []string{
	SettingStrategyPreset,
	SettingTimeFrame,
	SettingTradingSymbols,
	SettingMaxDailyTrades,
	SettingRiskPercent,
	SettingStopLossPips,
	SettingTakeProfitPips,
	SettingMinimumSignalStrength,
	SettingEnableNewsFilter,
	SettingEnableAIAnalysis,
	SettingEnableSentimentAnalysis,
}

// SettingKinds maps each recognized key to its type.
var SettingKinds = map[string]SettingKind{
	SettingStrategyPreset:          KindString,
	SettingTimeFrame:               KindString,
	SettingTradingSymbols:          KindString,
	SettingMaxDailyTrades:          KindInt,
	SettingRiskPercent:             KindFloat,
	SettingStopLossPips:            KindInt,
	SettingTakeProfitPips:          KindInt,
	SettingMinimumSignalStrength:   KindInt,
	SettingEnableNewsFilter:        KindBool,
	SettingEnableAIAnalysis:        KindBool,
	SettingEnableSentimentAnalysis: KindBool,
}

// Settings is the typed settings snapshot.
type Settings struct {
	StrategyPreset          string  `json:"strategy_preset"`
	TimeFrame               string  `json:"time_frame"`
	TradingSymbols          string  `json:"trading_symbols"`
	MaxDailyTrades          int     `json:"max_daily_trades"`
	RiskPercent             float64 `json:"risk_percent"`
	StopLossPips            int     `json:"stop_loss_pips"`
	TakeProfitPips          int     `json:"take_profit_pips"`
	MinimumSignalStrength   int     `json:"minimum_signal_strength"`
	EnableNewsFilter        bool    `json:"enable_news_filter"`
	EnableAIAnalysis        bool    `json:"enable_ai_analysis"`
	EnableSentimentAnalysis bool    `json:"enable_sentiment_analysis"`
}

// DefaultSettings are the compiled-in fallbacks for every key.
func DefaultSettings() Settings {
	return Settings{
		StrategyPreset:          "STRATEGY_TREND_FOLLOWING",
		TimeFrame:               "H1",
		TradingSymbols:          "EURUSD,GBPUSD,USDJPY,AUDUSD",
		MaxDailyTrades:          5,
		RiskPercent:             1.0,
		StopLossPips:            50,
		TakeProfitPips:          100,
		MinimumSignalStrength:   5,
		EnableNewsFilter:        true,
		EnableAIAnalysis:        true,
		EnableSentimentAnalysis: true,
	}
}

// Values returns the snapshot keyed by setting name.
func (s Settings) Values() map[string]any {
	return map[string]any{
		SettingStrategyPreset:          s.StrategyPreset,
		SettingTimeFrame:               s.TimeFrame,
		SettingTradingSymbols:          s.TradingSymbols,
		SettingMaxDailyTrades:          s.MaxDailyTrades,
		SettingRiskPercent:             s.RiskPercent,
		SettingStopLossPips:            s.StopLossPips,
		SettingTakeProfitPips:          s.TakeProfitPips,
		SettingMinimumSignalStrength:   s.MinimumSignalStrength,
		SettingEnableNewsFilter:        s.EnableNewsFilter,
		SettingEnableAIAnalysis:        s.EnableAIAnalysis,
		SettingEnableSentimentAnalysis: s.EnableSentimentAnalysis,
	}
}
