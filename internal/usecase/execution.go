package usecase

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/shopspring/decimal"

	"signalbot-backend/internal/domain"
)

const (
	defaultStopPips  = 50
	pipValueUSD      = 10
	commissionPerLot = 7
	minLotSize       = 0.01
	maxLotSize       = 10
)

// ExecutionRequest names either a stored signal or a full inline signal.
type ExecutionRequest struct {
	SignalID   *int64   `json:"signal_id,omitempty"`
	Symbol     string   `json:"symbol,omitempty"`
	Direction  string   `json:"direction,omitempty"`
	EntryPrice *float64 `json:"entry_price,omitempty"`
	StopLoss   *float64 `json:"stop_loss,omitempty"`
	TakeProfit *float64 `json:"take_profit,omitempty"`
}

// ExecutionResult is the simulated fill.
type ExecutionResult struct {
	Status     string   `json:"status"`
	TicketID   int64    `json:"ticket_id"`
	Symbol     string   `json:"symbol"`
	Direction  string   `json:"direction"`
	EntryPrice float64  `json:"entry_price"`
	StopLoss   *float64 `json:"stop_loss"`
	TakeProfit *float64 `json:"take_profit"`
	LotSize    float64  `json:"lot_size"`
	Commission float64  `json:"commission"`
	NewBalance float64  `json:"new_balance"`
}

// PipSize is the price increment of one pip for symbol.
func PipSize(symbol string) decimal.Decimal {
	if strings.HasSuffix(strings.ToUpper(symbol), "JPY") {
		return decimal.New(1, -2)
	}
	return decimal.New(1, -4)
}

// PositionSize returns the lot size risking riskPercent of balance over the
// distance from entry to stopLoss, and the commission charged for it.
func PositionSize(symbol string, balance, riskPercent, entry float64, stopLoss *float64) (lots, commission decimal.Decimal) {
	pip := PipSize(symbol)
	stopPips := decimal.NewFromInt(defaultStopPips)
	if stopLoss != nil {
		distance := decimal.NewFromFloat(entry).Sub(decimal.NewFromFloat(*stopLoss)).Abs()
		if p := distance.Div(pip); p.IsPositive() {
			stopPips = p
		}
	}

	risk := decimal.NewFromFloat(balance).Mul(decimal.NewFromFloat(riskPercent)).Div(decimal.NewFromInt(100))
	lots = risk.Div(stopPips.Mul(decimal.NewFromInt(pipValueUSD))).Round(2)
	lots = decimal.Max(decimal.NewFromFloat(minLotSize), decimal.Min(lots, decimal.NewFromInt(maxLotSize)))
	commission = lots.Mul(decimal.NewFromInt(commissionPerLot)).Round(2)
	return lots, commission
}

// ExecuteSignal simulates a fill for a stored or inline signal, charging the
// commission against the account balance. Marking a stored signal executed
// counts one trade on its first execution only; an inline execution always
// counts one trade. Live execution is not supported by the terminal protocol.
func (b *SignalBot) ExecuteSignal(ctx context.Context, req ExecutionRequest) (ExecutionResult, error) {
	if b.Live() {
		return ExecutionResult{}, domain.ErrExecutionUnavailable
	}

	signal, err := b.executionTarget(ctx, req)
	if err != nil {
		return ExecutionResult{}, err
	}

	status := b.cache.Status()
	lots, commission := PositionSize(signal.Symbol, status.AccountBalance, b.cache.Settings().RiskPercent, signal.EntryPrice, signal.StopLoss)
	newBalance, _ := decimal.NewFromFloat(status.AccountBalance).Sub(commission).Round(2).Float64()

	patch := domain.StatusPatch{AccountBalance: &newBalance}
	if req.SignalID != nil {
		if _, err := b.store.MarkSignalExecuted(ctx, signal.ID); err != nil {
			return ExecutionResult{}, fmt.Errorf("mark signal executed: %w", err)
		}
	} else {
		trades := status.TotalTradesToday + 1
		patch.TotalTradesToday = &trades
	}
	if err := b.store.UpdateStatus(ctx, patch); err != nil {
		return ExecutionResult{}, fmt.Errorf("update status: %w", err)
	}
	if err := b.refreshSignals(ctx); err != nil {
		return ExecutionResult{}, err
	}
	if err := b.refreshStatus(ctx); err != nil {
		return ExecutionResult{}, err
	}
	b.BroadcastSnapshots()

	lotSize, _ := lots.Float64()
	fee, _ := commission.Float64()
	result := ExecutionResult{
		Status:     "success",
		TicketID:   10_000_000 + rand.Int64N(90_000_000),
		Symbol:     signal.Symbol,
		Direction:  string(signal.Direction),
		EntryPrice: signal.EntryPrice,
		StopLoss:   signal.StopLoss,
		TakeProfit: signal.TakeProfit,
		LotSize:    lotSize,
		Commission: fee,
		NewBalance: newBalance,
	}
	b.log.Info().
		Int64("ticket", result.TicketID).
		Str("symbol", result.Symbol).
		Float64("lots", lotSize).
		Float64("balance", newBalance).
		Msg("simulated execution")
	return result, nil
}

func (b *SignalBot) executionTarget(ctx context.Context, req ExecutionRequest) (domain.Signal, error) {
	if req.SignalID != nil {
		if s, ok := b.cache.Signal(*req.SignalID); ok {
			return s, nil
		}
		s, err := b.store.GetSignal(ctx, *req.SignalID)
		if err != nil {
			return domain.Signal{}, fmt.Errorf("signal with id %d: %w", *req.SignalID, err)
		}
		return s, nil
	}

	if req.Symbol == "" || req.Direction == "" || req.EntryPrice == nil {
		return domain.Signal{}, fmt.Errorf("%w: need either signal_id or symbol, direction and entry_price", domain.ErrInvalidSignal)
	}
	s := domain.Signal{
		Symbol:     req.Symbol,
		Direction:  domain.Direction(req.Direction),
		EntryPrice: *req.EntryPrice,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
	}
	if err := s.Validate(); err != nil {
		return domain.Signal{}, err
	}
	return s, nil
}
