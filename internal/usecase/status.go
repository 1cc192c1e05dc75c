package usecase

import (
	"signalbot-backend/internal/domain"
)

// ParseStatusPatch picks the known status fields out of a loosely typed map,
// as sent by the terminal or the API. Unknown fields are ignored, and so are
// known fields whose value cannot be coerced.
func ParseStatusPatch(fields map[string]any) domain.StatusPatch {
	var p domain.StatusPatch
	for key, raw := range fields {
		switch key {
		case "running":
			v := CoerceBool(raw)
			p.Running = &v
		case "connected":
			v := CoerceBool(raw)
			p.Connected = &v
		case "bot_version":
			if raw == nil {
				continue
			}
			v := CoerceString(raw)
			p.BotVersion = &v
		case "account_balance":
			if v, ok := CoerceFloat(raw); ok {
				p.AccountBalance = &v
			}
		case "total_trades_today":
			if v, ok := CoerceInt(raw); ok {
				p.TotalTradesToday = &v
			}
		case "total_signals_today":
			if v, ok := CoerceInt(raw); ok {
				p.TotalSignalsToday = &v
			}
		}
	}
	return p
}
