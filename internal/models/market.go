// Package models provides domain models for the evaluation platform.
package models

import "time"

// Symbol identifies a tradeable index derivative.
type Symbol string

const (
	NIFTY     Symbol = "NIFTY"
	BANKNIFTY Symbol = "BANKNIFTY"
)

// Instrument describes the static contract configuration for a symbol.
type Instrument struct {
	Symbol     Symbol
	Multiplier int     // contract multiplier (NIFTY=50, BANKNIFTY=15)
	MaxSpread  float64 // quotes wider than this reject market orders
}

// DefaultInstruments returns the built-in instrument table.
func DefaultInstruments() map[Symbol]Instrument {
	return map[Symbol]Instrument{
		NIFTY:     {Symbol: NIFTY, Multiplier: 50, MaxSpread: 10},
		BANKNIFTY: {Symbol: BANKNIFTY, Multiplier: 15, MaxSpread: 25},
	}
}

// Tick represents one market data update. It is the wire contract between
// the oracle and every consumer (stop monitor, equity monitor, risk manager,
// bots, streaming layer).
type Tick struct {
	Symbol    Symbol    `json:"symbol"`
	LTP       float64   `json:"ltp"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Spread    float64   `json:"spread"`
	Timestamp time.Time `json:"timestamp"`
}

// Quote is the latest snapshot for a symbol. Ephemeral: overwritten on every
// tick, no history retained by the oracle.
type Quote struct {
	Symbol    Symbol
	LTP       float64
	Bid       float64
	Ask       float64
	Spread    float64
	Timestamp time.Time
}

// Tick converts a quote snapshot back into the tick event shape.
func (q Quote) Tick() Tick {
	return Tick{
		Symbol:    q.Symbol,
		LTP:       q.LTP,
		Bid:       q.Bid,
		Ask:       q.Ask,
		Spread:    q.Spread,
		Timestamp: q.Timestamp,
	}
}
