package bots

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"propdesk/internal/engine"
	apperrors "propdesk/internal/errors"
	"propdesk/internal/models"
	"propdesk/internal/stream"
)

// BotStatus is the lifecycle state of a bot instance.
type BotStatus string

const (
	BotActive  BotStatus = "active"
	BotStopped BotStatus = "stopped"
)

// BotConfig carries the caller-supplied parameters for starting a bot.
type BotConfig struct {
	AccountID  string
	Symbol     models.Symbol
	StrategyID string
	Lots       int
	// RiskPct sizes the stop distance as a fraction of entry price; the
	// take profit sits at twice that distance.
	RiskPct float64
}

// Bot is one running strategy instance. In-memory only: bots are not
// persisted and a process restart loses them.
type Bot struct {
	ID         string
	AccountID  string
	Symbol     models.Symbol
	StrategyID string
	StartedAt  time.Time

	mu          sync.Mutex
	status      BotStatus
	openTradeID string
	position    int // +1 long, -1 short, 0 flat

	strategy Strategy
	window   *priceWindow
	cfg      BotConfig
	cancel   context.CancelFunc
}

// Status returns the bot's current lifecycle state.
func (b *Bot) Status() BotStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Runner owns the in-memory bot registry and drives each bot off the tick
// hub.
type Runner struct {
	engine *engine.ExecutionEngine
	hub    *stream.Hub
	logger zerolog.Logger

	mu   sync.RWMutex
	bots map[string]*Bot
}

// NewRunner builds a bot runner over the execution engine and tick hub.
func NewRunner(e *engine.ExecutionEngine, hub *stream.Hub, logger zerolog.Logger) *Runner {
	return &Runner{
		engine: e,
		hub:    hub,
		logger: logger.With().Str("component", "bots").Logger(),
		bots:   make(map[string]*Bot),
	}
}

// StartBot creates a bot, subscribes it to its symbol's tick stream, and
// launches its processing goroutine. Returns the bot handle.
func (r *Runner) StartBot(ctx context.Context, cfg BotConfig) (*Bot, error) {
	strategy, err := NewStrategy(cfg.StrategyID)
	if err != nil {
		return nil, err
	}
	if cfg.Lots <= 0 {
		cfg.Lots = 1
	}
	if cfg.RiskPct <= 0 {
		cfg.RiskPct = 0.005
	}

	botCtx, cancel := context.WithCancel(ctx)
	bot := &Bot{
		ID:         uuid.NewString(),
		AccountID:  cfg.AccountID,
		Symbol:     cfg.Symbol,
		StrategyID: strategy.ID(),
		StartedAt:  time.Now(),
		status:     BotActive,
		strategy:   strategy,
		window:     newPriceWindow(strategy.WindowSize()),
		cfg:        cfg,
		cancel:     cancel,
	}

	sub := r.hub.Subscribe(cfg.Symbol)

	r.mu.Lock()
	r.bots[bot.ID] = bot
	r.mu.Unlock()

	go r.run(botCtx, bot, sub)

	r.logger.Info().
		Str("bot_id", bot.ID).
		Str("account_id", cfg.AccountID).
		Str("symbol", string(cfg.Symbol)).
		Str("strategy", strategy.ID()).
		Msg("Bot started")
	return bot, nil
}

// StopBot cancels a bot's processing goroutine and marks it stopped. Any
// open position is left for the account holder to manage.
func (r *Runner) StopBot(botID string) error {
	r.mu.Lock()
	bot, ok := r.bots[botID]
	r.mu.Unlock()
	if !ok {
		return apperrors.ErrBotNotFound
	}

	bot.mu.Lock()
	alreadyStopped := bot.status == BotStopped
	bot.status = BotStopped
	bot.mu.Unlock()
	if alreadyStopped {
		return nil
	}

	bot.cancel()
	r.logger.Info().Str("bot_id", botID).Msg("Bot stopped")
	return nil
}

// GetBot returns a bot handle by id.
func (r *Runner) GetBot(botID string) (*Bot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bot, ok := r.bots[botID]
	if !ok {
		return nil, apperrors.ErrBotNotFound
	}
	return bot, nil
}

// ListBots returns all bots in the registry, stopped ones included.
func (r *Runner) ListBots() []*Bot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Bot, 0, len(r.bots))
	for _, b := range r.bots {
		out = append(out, b)
	}
	return out
}

// StopAll stops every active bot, used at shutdown.
func (r *Runner) StopAll() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.bots))
	for id := range r.bots {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		if err := r.StopBot(id); err != nil {
			r.logger.Error().Err(err).Str("bot_id", id).Msg("Bot stop failed")
		}
	}
}

// run is a bot's processing goroutine: one tick in, at most one engine call
// out. Errors from the engine stop nothing; the bot keeps evaluating.
func (r *Runner) run(ctx context.Context, bot *Bot, sub *stream.Subscriber) {
	defer r.hub.Unsubscribe(sub.ID)

	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-sub.Channel:
			if !ok {
				return
			}
			r.processTick(ctx, bot, tick)
		}
	}
}

func (r *Runner) processTick(ctx context.Context, bot *Bot, tick models.Tick) {
	bot.mu.Lock()
	defer bot.mu.Unlock()

	if bot.status != BotActive {
		return
	}

	bot.window.push(tick.LTP)
	if !bot.window.full() {
		return
	}

	signal := bot.strategy.Evaluate(bot.window.snapshot(), bot.position)
	switch signal {
	case SignalBuy:
		r.enter(ctx, bot, tick, models.OrderSideBuy)
	case SignalSell:
		r.enter(ctx, bot, tick, models.OrderSideSell)
	case SignalExit:
		r.exit(ctx, bot)
	}
}

func (r *Runner) enter(ctx context.Context, bot *Bot, tick models.Tick, side models.OrderSide) {
	if bot.position != 0 {
		return
	}

	ref := tick.Ask
	if side == models.OrderSideSell {
		ref = tick.Bid
	}
	riskDist := ref * bot.cfg.RiskPct
	sl := ref - side.Sign()*riskDist
	tp := ref + side.Sign()*riskDist*2

	fill, err := r.engine.PlaceMarketOrder(ctx, models.OrderRequest{
		AccountID:  bot.AccountID,
		Symbol:     bot.Symbol,
		Side:       side,
		Lots:       bot.cfg.Lots,
		StopLoss:   sl,
		TakeProfit: tp,
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("bot_id", bot.ID).Msg("Bot order rejected")
		if apperrors.Is(err, apperrors.ErrAccountNotActive) || apperrors.Is(err, apperrors.ErrSessionExpired) {
			bot.status = BotStopped
			bot.cancel()
		}
		return
	}

	bot.openTradeID = fill.TradeID
	bot.position = int(side.Sign())
	r.logger.Info().
		Str("bot_id", bot.ID).
		Str("trade_id", fill.TradeID).
		Str("side", string(side)).
		Float64("fill_price", fill.FillPrice).
		Msg("Bot entered position")
}

func (r *Runner) exit(ctx context.Context, bot *Bot) {
	if bot.openTradeID == "" {
		return
	}
	err := r.engine.CloseTrade(ctx, bot.openTradeID)
	if err != nil && !apperrors.Is(err, apperrors.ErrTradeAlreadyClosed) {
		r.logger.Warn().Err(err).Str("bot_id", bot.ID).Str("trade_id", bot.openTradeID).Msg("Bot close failed")
		return
	}
	// Already-closed means a stop or the risk manager got there first;
	// either way the bot is flat now.
	bot.openTradeID = ""
	bot.position = 0
}
