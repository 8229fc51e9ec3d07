package models

import "time"

// OrderSide represents the direction of a trade or order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Sign returns +1 for buys and -1 for sells, the direction multiplier used
// in P&L arithmetic.
func (s OrderSide) Sign() float64 {
	if s == OrderSideSell {
		return -1
	}
	return 1
}

// TradeStatus represents the lifecycle state of a trade.
type TradeStatus string

const (
	TradeOpen   TradeStatus = "open"
	TradeClosed TradeStatus = "closed"
)

// CloseReason records why a trade was closed. Informational only: close
// semantics are identical for every reason.
type CloseReason string

const (
	CloseSLHit    CloseReason = "SL_HIT"
	CloseTPHit    CloseReason = "TP_HIT"
	CloseManual   CloseReason = "MANUAL_CLOSE"
	CloseRiskFail CloseReason = "RISK_FAIL"
)

// Trade represents an open position or a closed trade.
// Invariant: ExitPrice is zero-valued exactly while Status == TradeOpen.
type Trade struct {
	ID          string
	AccountID   string
	Symbol      Symbol
	Side        OrderSide
	Lots        int
	EntryPrice  float64
	ExitPrice   float64
	StopLoss    float64 // 0 means no stop loss
	TakeProfit  float64 // 0 means no take profit
	Status      TradeStatus
	PnL         float64
	Slippage    float64
	CloseReason CloseReason
	OpenedAt    time.Time
	ClosedAt    time.Time
}

// FloatingPnL marks the trade to market against a close price (bid for
// longs, ask for shorts).
func (t *Trade) FloatingPnL(closePrice float64, multiplier int) float64 {
	return (closePrice - t.EntryPrice) * t.Side.Sign() * float64(t.Lots) * float64(multiplier)
}

// Fill is the confirmation returned on successful order execution.
type Fill struct {
	TradeID   string
	OrderID   string
	Symbol    Symbol
	Side      OrderSide
	Lots      int
	FillPrice float64
	Slippage  float64
	FilledAt  time.Time
}
