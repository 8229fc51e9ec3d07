package bots

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propdesk/internal/engine"
	apperrors "propdesk/internal/errors"
	"propdesk/internal/ledger"
	"propdesk/internal/models"
	"propdesk/internal/stream"
)

type fixedOracle struct {
	mu     sync.RWMutex
	quotes map[models.Symbol]*models.Quote
}

func (f *fixedOracle) Start(ctx context.Context) error { return nil }
func (f *fixedOracle) Stop()                           {}
func (f *fixedOracle) OnTick(func(models.Tick))        {}

func (f *fixedOracle) GetQuote(symbol models.Symbol) *models.Quote {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.quotes[symbol]
}

func (f *fixedOracle) set(symbol models.Symbol, bid, ask float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[symbol] = &models.Quote{
		Symbol: symbol, LTP: (bid + ask) / 2, Bid: bid, Ask: ask,
		Spread: ask - bid, Timestamp: time.Now(),
	}
}

type botFixture struct {
	ledger *ledger.SQLiteLedger
	oracle *fixedOracle
	hub    *stream.Hub
	runner *Runner
	acct   *models.Account
}

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	l, err := ledger.NewSQLiteLedger(filepath.Join(t.TempDir(), "bots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	o := &fixedOracle{quotes: make(map[models.Symbol]*models.Quote)}
	o.set(models.NIFTY, 21499, 21501)

	eng := engine.NewExecutionEngine(l, o, engine.Config{
		Leverage:      20,
		SlippageBound: 0,
		Instruments:   models.DefaultInstruments(),
	}, zerolog.Nop())

	hub := stream.NewHub()
	hub.Start(ctx)
	t.Cleanup(hub.Stop)

	acct := &models.Account{
		ID: uuid.NewString(), UserID: "u", Challenge: models.ChallengeOneStep, Phase: 1,
		Size: 100000, Balance: 100000, Equity: 100000, DailyStartBalance: 100000,
		Status: models.AccountPending, CreatedAt: time.Now(),
	}
	require.NoError(t, l.CreateAccount(ctx, acct))
	require.NoError(t, l.ActivateAccount(ctx, acct.ID, time.Now(), time.Now().Add(24*time.Hour)))

	return &botFixture{
		ledger: l,
		oracle: o,
		hub:    hub,
		runner: NewRunner(eng, hub, zerolog.Nop()),
		acct:   acct,
	}
}

func publishPrice(f *botFixture, ltp float64) {
	f.oracle.set(models.NIFTY, ltp-1, ltp+1)
	f.hub.Publish(models.Tick{
		Symbol: models.NIFTY, LTP: ltp, Bid: ltp - 1, Ask: ltp + 1,
		Spread: 2, Timestamp: time.Now(),
	})
}

func TestRunner_StartStopLifecycle(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()

	bot, err := f.runner.StartBot(ctx, BotConfig{
		AccountID:  f.acct.ID,
		Symbol:     models.NIFTY,
		StrategyID: "rsi_momentum",
	})
	require.NoError(t, err)
	assert.Equal(t, BotActive, bot.Status())
	assert.NotEmpty(t, bot.ID)

	got, err := f.runner.GetBot(bot.ID)
	require.NoError(t, err)
	assert.Equal(t, bot.ID, got.ID)

	require.NoError(t, f.runner.StopBot(bot.ID))
	assert.Equal(t, BotStopped, bot.Status())

	// Stopping twice is harmless; stopped bots remain listed.
	require.NoError(t, f.runner.StopBot(bot.ID))
	assert.Len(t, f.runner.ListBots(), 1)
}

func TestRunner_RejectsForbiddenStrategies(t *testing.T) {
	f := newBotFixture(t)

	for _, id := range []string{"grid", "martingale"} {
		_, err := f.runner.StartBot(context.Background(), BotConfig{
			AccountID:  f.acct.ID,
			Symbol:     models.NIFTY,
			StrategyID: id,
		})
		assert.ErrorIs(t, err, apperrors.ErrStrategyForbidden)
	}
	assert.Empty(t, f.runner.ListBots())
}

func TestRunner_UnknownBot(t *testing.T) {
	f := newBotFixture(t)
	assert.ErrorIs(t, f.runner.StopBot("missing"), apperrors.ErrBotNotFound)
	_, err := f.runner.GetBot("missing")
	assert.ErrorIs(t, err, apperrors.ErrBotNotFound)
}

func TestRunner_BotEntersOnMomentum(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()

	bot, err := f.runner.StartBot(ctx, BotConfig{
		AccountID:  f.acct.ID,
		Symbol:     models.NIFTY,
		StrategyID: "rsi_momentum",
		Lots:       1,
	})
	require.NoError(t, err)

	// A strictly rising tape fills the window and pins RSI at 100.
	for i := 0; i < 20; i++ {
		publishPrice(f, 21500+float64(i)*2)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		trades, err := f.ledger.ListOpenTrades(ctx, f.acct.ID)
		require.NoError(t, err)
		if len(trades) == 1 {
			assert.Equal(t, models.OrderSideBuy, trades[0].Side)
			assert.Greater(t, trades[0].TakeProfit, trades[0].EntryPrice)
			assert.Less(t, trades[0].StopLoss, trades[0].EntryPrice)
			assert.Equal(t, BotActive, bot.Status())
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("bot never entered a position")
}

func TestRunner_StopAll(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.runner.StartBot(ctx, BotConfig{
			AccountID:  f.acct.ID,
			Symbol:     models.NIFTY,
			StrategyID: "ema_cross",
		})
		require.NoError(t, err)
	}

	f.runner.StopAll()
	for _, bot := range f.runner.ListBots() {
		assert.Equal(t, BotStopped, bot.Status())
	}
}
