package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Direction is the side of a trade recommendation.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// ParseDirection normalizes user or terminal input into a Direction.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToUpper(strings.TrimSpace(s))) {
	case DirectionBuy:
		return DirectionBuy, nil
	case DirectionSell:
		return DirectionSell, nil
	}
	return "", fmt.Errorf("%w: direction %q", ErrInvalidSignal, s)
}

// Sentiment is the optional market sentiment attached to a signal.
type Sentiment struct {
	RetailBullish        float64 `json:"retail_bullish"`
	RetailBearish        float64 `json:"retail_bearish"`
	InstitutionalBullish float64 `json:"institutional_bullish"`
	InstitutionalBearish float64 `json:"institutional_bearish"`
	OverallCondition     string  `json:"overall_condition"`
	Confidence           float64 `json:"confidence"`
}

// AIAnalysis is the optional model output attached to simulated signals.
type AIAnalysis struct {
	Confidence           float64 `json:"confidence"`
	PredictionAccuracy   float64 `json:"prediction_accuracy"`
	ModelUsed            string  `json:"model_used"`
	PatternStrength      float64 `json:"pattern_strength"`
	TechnicalAlignment   float64 `json:"technical_alignment"`
	HistoricalSimilarity float64 `json:"historical_similarity"`
}

// Signal is a single trade recommendation. The content is opaque to the
// pipeline apart from the fields it persists and forwards.
type Signal struct {
	ID            int64       `json:"id"`
	Symbol        string      `json:"symbol"`
	Direction     Direction   `json:"direction"`
	Strength      int         `json:"strength"` // 1-10, not enforced
	EntryPrice    float64     `json:"entry_price"`
	StopLoss      *float64    `json:"stop_loss"`
	TakeProfit    *float64    `json:"take_profit"`
	Reason        string      `json:"reason"`
	Sentiment     *Sentiment  `json:"sentiment,omitempty"`
	AIAnalysis    *AIAnalysis `json:"ai_analysis,omitempty"`
	CreatedAt     time.Time   `json:"time"`
	Executed      bool        `json:"executed"`
	ExecutionTime *time.Time  `json:"execution_time,omitempty"`
}

// Layouts accepted for the "time" field. The terminal sends the second one.
var signalTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006.01.02 15:04:05",
}

// UnmarshalJSON accepts both RFC3339 and the terminal's "YYYY-MM-DD HH:MM:SS"
// timestamps. An empty, missing or unreadable time leaves CreatedAt zero.
func (s *Signal) UnmarshalJSON(data []byte) error {
	type alias Signal
	aux := struct {
		*alias
		Time      string `json:"time"`
		Direction string `json:"direction"`
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.Direction = Direction(strings.ToUpper(strings.TrimSpace(aux.Direction)))
	s.CreatedAt = time.Time{}
	if aux.Time == "" {
		return nil
	}
	// An unreadable time is dropped so one bad record cannot fail a batch;
	// the signal is then stamped at ingestion.
	for _, layout := range signalTimeLayouts {
		if t, err := time.ParseInLocation(layout, aux.Time, time.Local); err == nil {
			s.CreatedAt = t
			break
		}
	}
	return nil
}

// Validate checks the fields the store requires.
func (s *Signal) Validate() error {
	if strings.TrimSpace(s.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidSignal)
	}
	dir, err := ParseDirection(string(s.Direction))
	if err != nil {
		return err
	}
	s.Direction = dir
	s.Symbol = strings.ToUpper(strings.TrimSpace(s.Symbol))
	return nil
}

// Clone returns a deep copy so cached values cannot be mutated by readers.
func (s Signal) Clone() Signal {
	out := s
	if s.StopLoss != nil {
		v := *s.StopLoss
		out.StopLoss = &v
	}
	if s.TakeProfit != nil {
		v := *s.TakeProfit
		out.TakeProfit = &v
	}
	if s.Sentiment != nil {
		v := *s.Sentiment
		out.Sentiment = &v
	}
	if s.AIAnalysis != nil {
		v := *s.AIAnalysis
		out.AIAnalysis = &v
	}
	if s.ExecutionTime != nil {
		v := *s.ExecutionTime
		out.ExecutionTime = &v
	}
	return out
}

// BotStatus is the singleton status record.
type BotStatus struct {
	Running           bool      `json:"running"`
	Connected         bool      `json:"connected"`
	LastUpdate        time.Time `json:"last_update"`
	BotVersion        string    `json:"bot_version"`
	AccountBalance    float64   `json:"account_balance"`
	TotalTradesToday  int       `json:"total_trades_today"`
	TotalSignalsToday int       `json:"total_signals_today"`
}

// DefaultBotStatus is the record created lazily on first access.
func DefaultBotStatus(now time.Time) BotStatus {
	return BotStatus{
		Running:        true,
		Connected:      false,
		LastUpdate:     now,
		BotVersion:     "1.0",
		AccountBalance: 10000.0,
	}
}

// StatusPatch is a partial status update. Nil fields are left untouched.
type StatusPatch struct {
	Running           *bool
	Connected         *bool
	BotVersion        *string
	AccountBalance    *float64
	TotalTradesToday  *int
	TotalSignalsToday *int
}

// IsEmpty reports whether the patch carries no fields.
func (p StatusPatch) IsEmpty() bool {
	return p.Running == nil && p.Connected == nil && p.BotVersion == nil &&
		p.AccountBalance == nil && p.TotalTradesToday == nil && p.TotalSignalsToday == nil
}

// Apply writes the non-nil fields into s.
func (p StatusPatch) Apply(s *BotStatus) {
	if p.Running != nil {
		s.Running = *p.Running
	}
	if p.Connected != nil {
		s.Connected = *p.Connected
	}
	if p.BotVersion != nil {
		s.BotVersion = *p.BotVersion
	}
	if p.AccountBalance != nil {
		s.AccountBalance = *p.AccountBalance
	}
	if p.TotalTradesToday != nil {
		s.TotalTradesToday = *p.TotalTradesToday
	}
	if p.TotalSignalsToday != nil {
		s.TotalSignalsToday = *p.TotalSignalsToday
	}
}

// Preset is a named bundle of strategy parameters as read from a .set file.
type Preset struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Parameters  map[string]string `json:"parameters"`
}

// Clone returns a copy with its own parameter map.
func (p Preset) Clone() Preset {
	out := p
	out.Parameters = make(map[string]string, len(p.Parameters))
	for k, v := range p.Parameters {
		out.Parameters[k] = v
	}
	return out
}

// DeviceToken is a registered push notification target.
type DeviceToken struct {
	Token     string    `json:"token"`
	Platform  string    `json:"platform"` // "android" or "ios"
	CreatedAt time.Time `json:"created_at"`
}

// PresetAliases maps the bundled preset file names onto the strategy names the
// terminal uses for them.
var PresetAliases = map[string]string{
	"TrendFollowing": "STRATEGY_TREND_FOLLOWING",
	"SwingTrading":   "STRATEGY_SWING_TRADING",
	"Scalping":       "STRATEGY_SCALPING",
	"Reversal":       "STRATEGY_REVERSAL",
}
