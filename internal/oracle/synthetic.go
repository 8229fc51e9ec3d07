package oracle

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"propdesk/internal/config"
	"propdesk/internal/models"
)

// instrumentState is the running random-walk state for one symbol.
type instrumentState struct {
	symbol     models.Symbol
	price      float64
	volatility float64
	spreadMin  float64
	spreadMax  float64
}

// SyntheticOracle generates quotes by applying a bounded random perturbation
// to a running mid price and splitting a randomly sized spread around it.
// Intentionally simple: no order-book depth, no mean reversion. The contract
// under test is the determinism of the consumers, not feed realism.
type SyntheticOracle struct {
	interval    time.Duration
	instruments []*instrumentState

	mu       sync.RWMutex
	board    *quoteBoard
	handlers []func(models.Tick)
	rng      *rand.Rand

	cancel  context.CancelFunc
	started bool
}

// NewSyntheticOracle creates a synthetic feed from the instrument config.
func NewSyntheticOracle(cfg config.OracleConfig, instruments []config.InstrumentConfig) *SyntheticOracle {
	interval := cfg.TickInterval
	if interval == 0 {
		interval = time.Second
	}

	states := make([]*instrumentState, 0, len(instruments))
	for _, inst := range instruments {
		states = append(states, &instrumentState{
			symbol:     models.Symbol(inst.Symbol),
			price:      inst.SeedPrice,
			volatility: inst.Volatility,
			spreadMin:  inst.SpreadMin,
			spreadMax:  inst.SpreadMax,
		})
	}

	return &SyntheticOracle{
		interval:    interval,
		instruments: states,
		board:       newQuoteBoard(),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start begins periodic tick emission.
func (o *SyntheticOracle) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return nil
	}
	o.started = true
	ctx, o.cancel = context.WithCancel(ctx)
	o.mu.Unlock()

	go func() {
		ticker := time.NewTicker(o.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				o.tick(now)
			}
		}
	}()

	return nil
}

// Stop halts tick emission. In-flight handler calls are allowed to complete.
func (o *SyntheticOracle) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
	o.started = false
}

// GetQuote returns the latest snapshot, or nil before the first tick.
func (o *SyntheticOracle) GetQuote(symbol models.Symbol) *models.Quote {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.board.get(symbol)
}

// OnTick registers a tick handler. Handlers run synchronously in the
// emission goroutine and must not block.
func (o *SyntheticOracle) OnTick(handler func(models.Tick)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handlers = append(o.handlers, handler)
}

// tick advances every instrument one step and emits the resulting quotes.
func (o *SyntheticOracle) tick(now time.Time) {
	o.mu.Lock()
	ticks := make([]models.Tick, 0, len(o.instruments))
	for _, inst := range o.instruments {
		inst.price += (o.rng.Float64()*2 - 1) * inst.volatility
		spread := inst.spreadMin + o.rng.Float64()*(inst.spreadMax-inst.spreadMin)

		q := models.Quote{
			Symbol:    inst.symbol,
			LTP:       inst.price,
			Bid:       inst.price - spread/2,
			Ask:       inst.price + spread/2,
			Spread:    spread,
			Timestamp: now,
		}
		o.board.put(q)
		ticks = append(ticks, q.Tick())
	}
	handlers := make([]func(models.Tick), len(o.handlers))
	copy(handlers, o.handlers)
	o.mu.Unlock()

	for _, t := range ticks {
		for _, h := range handlers {
			h(t)
		}
	}
}

var _ Oracle = (*SyntheticOracle)(nil)
