// Package bots runs independent strategy instances against the live tick
// stream, placing and closing orders through the execution engine. Bot
// state is process-local: a restart loses every running bot.
package bots

import (
	"fmt"

	apperrors "propdesk/internal/errors"
)

// Signal is a strategy's verdict on one tick.
type Signal int

const (
	SignalHold Signal = iota
	SignalBuy
	SignalSell
	SignalExit
)

// Strategy computes trading signals from a rolling price window. Strategies
// are stateless beyond the window handed to them, so one instance can be
// shared across bots of the same kind.
type Strategy interface {
	// ID is the strategy's registry key.
	ID() string
	// WindowSize is the minimum number of prices needed before the
	// strategy produces anything other than hold.
	WindowSize() int
	// Evaluate inspects the window (oldest first, newest last) and the
	// bot's current position direction (+1 long, -1 short, 0 flat).
	Evaluate(window []float64, position int) Signal
}

// forbiddenStrategies are prohibited by product rules and are rejected at
// start time rather than silently unavailable.
var forbiddenStrategies = map[string]bool{
	"grid":       true,
	"martingale": true,
}

// NewStrategy resolves a strategy id to an instance.
func NewStrategy(id string) (Strategy, error) {
	if forbiddenStrategies[id] {
		return nil, apperrors.Wrapf(apperrors.ErrStrategyForbidden, "strategy %q", id)
	}
	switch id {
	case "rsi_momentum":
		return NewRSIMomentum(14), nil
	case "ema_cross":
		return NewEMACross(9, 21), nil
	default:
		return nil, apperrors.NewValidationError("strategy_id", id, fmt.Sprintf("unknown strategy %q", id))
	}
}

// priceWindow is a bounded rolling buffer, drop-oldest on overflow.
type priceWindow struct {
	prices []float64
	cap    int
}

func newPriceWindow(capacity int) *priceWindow {
	return &priceWindow{cap: capacity}
}

func (w *priceWindow) push(price float64) {
	if len(w.prices) == w.cap {
		copy(w.prices, w.prices[1:])
		w.prices[len(w.prices)-1] = price
		return
	}
	w.prices = append(w.prices, price)
}

func (w *priceWindow) full() bool {
	return len(w.prices) == w.cap
}

func (w *priceWindow) snapshot() []float64 {
	return w.prices
}
