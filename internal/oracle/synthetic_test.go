package oracle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propdesk/internal/config"
	"propdesk/internal/models"
)

func testInstruments() []config.InstrumentConfig {
	return []config.InstrumentConfig{
		{Symbol: "NIFTY", Multiplier: 50, SeedPrice: 21500, Volatility: 3, SpreadMin: 0.5, SpreadMax: 2.5, MaxSpread: 10},
		{Symbol: "BANKNIFTY", Multiplier: 15, SeedPrice: 46500, Volatility: 9, SpreadMin: 1, SpreadMax: 6, MaxSpread: 25},
	}
}

func startOracle(t *testing.T) *SyntheticOracle {
	t.Helper()
	o := NewSyntheticOracle(config.OracleConfig{
		Mode:         "synthetic",
		TickInterval: 5 * time.Millisecond,
	}, testInstruments())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, o.Start(ctx))
	t.Cleanup(o.Stop)
	return o
}

func waitForQuote(t *testing.T, o *SyntheticOracle, symbol models.Symbol) *models.Quote {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if q := o.GetQuote(symbol); q != nil {
			return q
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no quote for %s within deadline", symbol)
	return nil
}

func TestSyntheticOracle_NilQuoteBeforeFirstTick(t *testing.T) {
	o := NewSyntheticOracle(config.OracleConfig{TickInterval: time.Hour}, testInstruments())
	assert.Nil(t, o.GetQuote(models.NIFTY))
	assert.Nil(t, o.GetQuote(models.BANKNIFTY))
}

func TestSyntheticOracle_QuoteShape(t *testing.T) {
	o := startOracle(t)

	for _, inst := range testInstruments() {
		symbol := models.Symbol(inst.Symbol)
		q := waitForQuote(t, o, symbol)

		assert.Equal(t, symbol, q.Symbol)
		assert.Less(t, q.Bid, q.Ask, "bid must sit below ask")
		assert.InDelta(t, q.LTP, (q.Bid+q.Ask)/2, 1e-9, "mid splits the spread")
		assert.GreaterOrEqual(t, q.Spread, inst.SpreadMin)
		assert.LessOrEqual(t, q.Spread, inst.SpreadMax)
		assert.Greater(t, q.LTP, 0.0)
		assert.False(t, q.Timestamp.IsZero())
	}
}

func TestSyntheticOracle_HandlersReceiveTicks(t *testing.T) {
	o := NewSyntheticOracle(config.OracleConfig{TickInterval: 5 * time.Millisecond}, testInstruments())

	var mu sync.Mutex
	seen := make(map[models.Symbol]int)
	o.OnTick(func(tick models.Tick) {
		mu.Lock()
		seen[tick.Symbol]++
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, o.Start(ctx))
	defer o.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := seen[models.NIFTY] >= 3 && seen[models.BANKNIFTY] >= 3
		mu.Unlock()
		if done {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("handlers did not receive ticks for every instrument")
}

func TestSyntheticOracle_StopHaltsEmission(t *testing.T) {
	o := startOracle(t)
	waitForQuote(t, o, models.NIFTY)

	o.Stop()
	time.Sleep(20 * time.Millisecond)
	before := *o.GetQuote(models.NIFTY)
	time.Sleep(50 * time.Millisecond)
	after := *o.GetQuote(models.NIFTY)

	assert.Equal(t, before.Timestamp, after.Timestamp, "no ticks after stop")
}
