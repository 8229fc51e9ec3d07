package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "propdesk/internal/errors"
	"propdesk/internal/ledger"
	"propdesk/internal/logging"
	"propdesk/internal/metrics"
	"propdesk/internal/models"
	"propdesk/internal/oracle"
)

// Config holds execution parameters.
type Config struct {
	// Leverage divides notional value in the margin check.
	Leverage float64
	// SlippageBound b: execution price = reference * (1 + U(-b, b)).
	SlippageBound float64
	// Instruments is the static contract table.
	Instruments map[models.Symbol]models.Instrument
}

// DefaultConfig returns execution parameters with built-in instruments.
func DefaultConfig() Config {
	return Config{
		Leverage:      10,
		SlippageBound: 0.0005,
		Instruments:   models.DefaultInstruments(),
	}
}

// ExecutionEngine validates and fills market orders against the oracle,
// queues limit orders, and runs the matching and stop-monitor loops.
type ExecutionEngine struct {
	ledger ledger.Ledger
	oracle oracle.Oracle
	cfg    Config
	logger zerolog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewExecutionEngine wires an execution engine onto a shared ledger handle
// and price oracle.
func NewExecutionEngine(l ledger.Ledger, o oracle.Oracle, cfg Config, logger zerolog.Logger) *ExecutionEngine {
	if cfg.Instruments == nil {
		cfg.Instruments = models.DefaultInstruments()
	}
	if cfg.Leverage == 0 {
		cfg.Leverage = 10
	}
	return &ExecutionEngine{
		ledger: l,
		oracle: o,
		cfg:    cfg,
		logger: logger.With().Str("component", "execution").Logger(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// instrument resolves the static contract config for a symbol.
func (e *ExecutionEngine) instrument(symbol models.Symbol) (models.Instrument, error) {
	inst, ok := e.cfg.Instruments[symbol]
	if !ok {
		return models.Instrument{}, apperrors.ErrSymbolNotFound
	}
	return inst, nil
}

// tradableAccount loads an account and verifies it can accept orders.
// Session expiry is checked lazily here: an expired account is flipped to
// expired and the order rejected, no dedicated sweep timer exists.
func (e *ExecutionEngine) tradableAccount(ctx context.Context, accountID string) (*models.Account, error) {
	acct, err := e.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.Status != models.AccountActive {
		return nil, apperrors.ErrAccountNotActive
	}
	if acct.SessionExpired(time.Now()) {
		if _, err := e.ledger.UpdateAccountStatus(ctx, acct.ID, models.AccountActive, models.AccountExpired); err != nil {
			return nil, err
		}
		return nil, apperrors.ErrSessionExpired
	}
	return acct, nil
}

// checkLots enforces the lot-limit step function and records a lot_limit
// violation on breach.
func (e *ExecutionEngine) checkLots(ctx context.Context, acct *models.Account, req models.OrderRequest) error {
	if req.Lots <= 0 {
		return apperrors.NewValidationError("lots", req.Lots, "must be positive")
	}
	maxLots := MaxLotsFor(acct.Size, req.Symbol)
	if req.Lots > maxLots {
		v := &models.Violation{
			ID:        uuid.NewString(),
			AccountID: acct.ID,
			Type:      models.ViolationLotLimit,
			Details:   fmt.Sprintf("requested %d lots of %s, limit %d for size %.0f", req.Lots, req.Symbol, maxLots, acct.Size),
			CreatedAt: time.Now(),
		}
		if err := e.ledger.InsertViolation(ctx, v); err != nil {
			e.logger.Error().Err(err).Str("account_id", acct.ID).Msg("Failed to record lot limit violation")
		}
		metrics.RecordViolation(string(models.ViolationLotLimit))
		return apperrors.Wrapf(apperrors.ErrLotLimitExceeded, "%d lots exceeds limit %d", req.Lots, maxLots)
	}
	return nil
}

// validateStops rejects stop loss / take profit levels on the wrong side of
// the reference price: the stop must be adverse, the target favorable.
func validateStops(side models.OrderSide, ref, sl, tp float64) error {
	if side == models.OrderSideBuy {
		if sl != 0 && sl >= ref {
			return apperrors.ErrInvalidStopLoss
		}
		if tp != 0 && tp <= ref {
			return apperrors.ErrInvalidTakeProfit
		}
		return nil
	}
	if sl != 0 && sl <= ref {
		return apperrors.ErrInvalidStopLoss
	}
	if tp != 0 && tp >= ref {
		return apperrors.ErrInvalidTakeProfit
	}
	return nil
}

// slip applies bounded uniform slippage to a reference price.
func (e *ExecutionEngine) slip(ref float64) float64 {
	if e.cfg.SlippageBound == 0 {
		return ref
	}
	e.rngMu.Lock()
	f := (e.rng.Float64()*2 - 1) * e.cfg.SlippageBound
	e.rngMu.Unlock()
	return ref * (1 + f)
}

// PlaceMarketOrder validates and immediately fills a market order against
// the oracle's current quote. All rejections surface as typed errors.
func (e *ExecutionEngine) PlaceMarketOrder(ctx context.Context, req models.OrderRequest) (*models.Fill, error) {
	acct, err := e.tradableAccount(ctx, req.AccountID)
	if err != nil {
		metrics.RecordRejection(rejectionReason(err))
		return nil, err
	}

	if err := e.checkLots(ctx, acct, req); err != nil {
		metrics.RecordRejection(rejectionReason(err))
		return nil, err
	}

	inst, err := e.instrument(req.Symbol)
	if err != nil {
		metrics.RecordRejection(rejectionReason(err))
		return nil, err
	}

	quote := e.oracle.GetQuote(req.Symbol)
	if quote == nil {
		metrics.RecordRejection(rejectionReason(apperrors.ErrMarketClosed))
		return nil, apperrors.ErrMarketClosed
	}
	if inst.MaxSpread > 0 && quote.Spread > inst.MaxSpread {
		metrics.RecordRejection(rejectionReason(apperrors.ErrSpreadTooWide))
		return nil, apperrors.Wrapf(apperrors.ErrSpreadTooWide, "spread %.2f exceeds %.2f", quote.Spread, inst.MaxSpread)
	}

	// Buys pay the ask, sells hit the bid.
	ref := quote.Ask
	if req.Side == models.OrderSideSell {
		ref = quote.Bid
	}

	required := ref * float64(req.Lots) * float64(inst.Multiplier) / e.cfg.Leverage
	if required > acct.Equity {
		metrics.RecordRejection(rejectionReason(apperrors.ErrInsufficientMargin))
		return nil, apperrors.Wrapf(apperrors.ErrInsufficientMargin, "required %.2f, equity %.2f", required, acct.Equity)
	}

	if err := validateStops(req.Side, ref, req.StopLoss, req.TakeProfit); err != nil {
		metrics.RecordRejection(rejectionReason(err))
		return nil, err
	}

	execPrice := e.slip(ref)
	now := time.Now()
	trade := &models.Trade{
		ID:         uuid.NewString(),
		AccountID:  acct.ID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Lots:       req.Lots,
		EntryPrice: execPrice,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Status:     models.TradeOpen,
		Slippage:   execPrice - ref,
		OpenedAt:   now,
	}
	if err := e.ledger.InsertTrade(ctx, trade); err != nil {
		return nil, err
	}

	metrics.RecordOrder("market", string(req.Side))
	logging.LogFill(e.logger, trade.ID, acct.ID, string(req.Symbol), string(req.Side), req.Lots, execPrice, trade.Slippage)

	return &models.Fill{
		TradeID:   trade.ID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Lots:      req.Lots,
		FillPrice: execPrice,
		Slippage:  trade.Slippage,
		FilledAt:  now,
	}, nil
}

// PlaceLimitOrder queues a limit order. No price validation against the
// current market: resting away from market is allowed by design.
func (e *ExecutionEngine) PlaceLimitOrder(ctx context.Context, req models.OrderRequest) (*models.LimitOrder, error) {
	acct, err := e.tradableAccount(ctx, req.AccountID)
	if err != nil {
		metrics.RecordRejection(rejectionReason(err))
		return nil, err
	}

	if err := e.checkLots(ctx, acct, req); err != nil {
		metrics.RecordRejection(rejectionReason(err))
		return nil, err
	}

	if _, err := e.instrument(req.Symbol); err != nil {
		metrics.RecordRejection(rejectionReason(err))
		return nil, err
	}

	if req.LimitPrice <= 0 {
		return nil, apperrors.NewValidationError("limit_price", req.LimitPrice, "must be positive")
	}

	order := &models.LimitOrder{
		ID:         uuid.NewString(),
		AccountID:  acct.ID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Lots:       req.Lots,
		LimitPrice: req.LimitPrice,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Status:     models.OrderPending,
		PlacedAt:   time.Now(),
	}
	if err := e.ledger.InsertOrder(ctx, order); err != nil {
		return nil, err
	}

	metrics.RecordOrder("limit", string(req.Side))
	e.logger.Info().
		Str("order_id", order.ID).
		Str("account_id", acct.ID).
		Str("symbol", string(req.Symbol)).
		Str("side", string(req.Side)).
		Float64("limit_price", req.LimitPrice).
		Msg("Limit order placed")

	return order, nil
}

// CancelLimitOrder cancels a pending limit order.
func (e *ExecutionEngine) CancelLimitOrder(ctx context.Context, orderID string) error {
	cancelled, err := e.ledger.CancelOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !cancelled {
		return apperrors.ErrOrderNotPending
	}
	return nil
}

// CloseTrade closes an open trade at the current market price on behalf of
// the account holder.
func (e *ExecutionEngine) CloseTrade(ctx context.Context, tradeID string) error {
	trade, err := e.ledger.GetTrade(ctx, tradeID)
	if err != nil {
		return err
	}
	if trade.Status != models.TradeOpen {
		return apperrors.ErrTradeAlreadyClosed
	}

	quote := e.oracle.GetQuote(trade.Symbol)
	if quote == nil {
		return apperrors.ErrMarketClosed
	}

	closed, err := e.executeClose(ctx, trade, closePrice(trade.Side, quote), models.CloseManual)
	if err != nil {
		return err
	}
	if !closed {
		return apperrors.ErrTradeAlreadyClosed
	}
	return nil
}

// executeClose realizes a trade at the given price. Close and balance
// credit land in one ledger transaction; its status guard makes the second
// close in a race report settled=false, so balance is only touched by the
// winning writer.
func (e *ExecutionEngine) executeClose(ctx context.Context, trade *models.Trade, price float64, reason models.CloseReason) (bool, error) {
	inst, err := e.instrument(trade.Symbol)
	if err != nil {
		return false, err
	}

	pnl := trade.FloatingPnL(price, inst.Multiplier)
	settled, err := e.ledger.SettleTrade(ctx, trade.ID, trade.AccountID, price, pnl, reason, time.Now())
	if err != nil {
		return false, err
	}
	if !settled {
		return false, nil
	}

	metrics.RecordClose(string(reason))
	logging.LogClose(e.logger, trade.ID, trade.AccountID, string(reason), price, pnl)
	return true, nil
}

// CloseAllForAccount force-closes every open trade of an account at the
// current quote. Used by the risk manager after a fail transition. Trades
// whose symbol has no quote are skipped and picked up on the next pass.
func (e *ExecutionEngine) CloseAllForAccount(ctx context.Context, accountID string, reason models.CloseReason) error {
	trades, err := e.ledger.ListOpenTrades(ctx, accountID)
	if err != nil {
		return err
	}
	for i := range trades {
		trade := &trades[i]
		quote := e.oracle.GetQuote(trade.Symbol)
		if quote == nil {
			continue
		}
		if _, err := e.executeClose(ctx, trade, closePrice(trade.Side, quote), reason); err != nil {
			e.logger.Error().Err(err).Str("trade_id", trade.ID).Msg("Force close failed")
		}
	}
	return nil
}

// MatchPendingOrders is one pass of the limit-order matching loop. A buy
// triggers when the ask reaches the limit, a sell when the bid does. The
// fill lands at the current market price, not the limit price: this models
// slippage-on-trigger rather than guaranteed-limit fills, an explicit
// design choice.
func (e *ExecutionEngine) MatchPendingOrders(ctx context.Context) error {
	orders, err := e.ledger.ListPendingOrders(ctx)
	if err != nil {
		return err
	}

	for i := range orders {
		order := &orders[i]
		if err := e.matchOrder(ctx, order); err != nil {
			metrics.RecordLoopError("match")
			e.logger.Error().Err(err).Str("order_id", order.ID).Msg("Order matching failed")
		}
	}
	return nil
}

func (e *ExecutionEngine) matchOrder(ctx context.Context, order *models.LimitOrder) error {
	quote := e.oracle.GetQuote(order.Symbol)
	if quote == nil {
		return nil
	}

	triggered := (order.Side == models.OrderSideBuy && quote.Ask <= order.LimitPrice) ||
		(order.Side == models.OrderSideSell && quote.Bid >= order.LimitPrice)
	if !triggered {
		return nil
	}

	// An account that failed or expired after placement no longer trades;
	// its resting orders are cancelled instead of filled.
	acct, err := e.ledger.GetAccount(ctx, order.AccountID)
	if err != nil {
		return err
	}
	if acct.Status != models.AccountActive || acct.SessionExpired(time.Now()) {
		_, err := e.ledger.CancelOrder(ctx, order.ID)
		return err
	}

	now := time.Now()
	fillPrice := quote.Ask
	if order.Side == models.OrderSideSell {
		fillPrice = quote.Bid
	}

	trade := &models.Trade{
		ID:         uuid.NewString(),
		AccountID:  order.AccountID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Lots:       order.Lots,
		EntryPrice: fillPrice,
		StopLoss:   order.StopLoss,
		TakeProfit: order.TakeProfit,
		Status:     models.TradeOpen,
		Slippage:   fillPrice - order.LimitPrice,
		OpenedAt:   now,
	}
	filled, err := e.ledger.FillOrder(ctx, order.ID, trade, now)
	if err != nil {
		return err
	}
	if !filled {
		// Cancelled concurrently; nothing to do.
		return nil
	}

	logging.LogFill(e.logger, trade.ID, order.AccountID, string(order.Symbol), string(order.Side), order.Lots, fillPrice, trade.Slippage)
	return nil
}

// CheckStops is one pass of the stop monitor. Open positions are evaluated
// at their close price (bid for longs, ask for shorts); a trade with
// neither SL nor TP is untouched. At most one of SL/TP fires per check:
// they bracket price from opposite sides, first condition met wins.
func (e *ExecutionEngine) CheckStops(ctx context.Context) error {
	trades, err := e.ledger.ListOpenTrades(ctx, "")
	if err != nil {
		return err
	}

	for i := range trades {
		trade := &trades[i]
		if trade.StopLoss == 0 && trade.TakeProfit == 0 {
			continue
		}
		quote := e.oracle.GetQuote(trade.Symbol)
		if quote == nil {
			continue
		}
		price := closePrice(trade.Side, quote)

		var reason models.CloseReason
		switch {
		case stopHit(trade, price):
			reason = models.CloseSLHit
		case targetHit(trade, price):
			reason = models.CloseTPHit
		default:
			continue
		}

		if _, err := e.executeClose(ctx, trade, price, reason); err != nil {
			// Caught and retried on the next tick, never lost.
			metrics.RecordLoopError("stops")
			e.logger.Error().Err(err).Str("trade_id", trade.ID).Msg("Stop close failed")
		}
	}
	return nil
}

// RunMatchingLoop schedules MatchPendingOrders as a periodic task.
func (e *ExecutionEngine) RunMatchingLoop(ctx context.Context, interval time.Duration) {
	runEvery(ctx, e.logger, "match", interval, e.MatchPendingOrders)
}

// RunStopLoop schedules CheckStops as a periodic task.
func (e *ExecutionEngine) RunStopLoop(ctx context.Context, interval time.Duration) {
	runEvery(ctx, e.logger, "stops", interval, e.CheckStops)
}

// closePrice is the price at which a position would be closed right now:
// longs sell at the bid, shorts buy back at the ask.
func closePrice(side models.OrderSide, quote *models.Quote) float64 {
	if side == models.OrderSideBuy {
		return quote.Bid
	}
	return quote.Ask
}

func stopHit(t *models.Trade, price float64) bool {
	if t.StopLoss == 0 {
		return false
	}
	if t.Side == models.OrderSideBuy {
		return price <= t.StopLoss
	}
	return price >= t.StopLoss
}

func targetHit(t *models.Trade, price float64) bool {
	if t.TakeProfit == 0 {
		return false
	}
	if t.Side == models.OrderSideBuy {
		return price >= t.TakeProfit
	}
	return price <= t.TakeProfit
}

// rejectionReason maps a rejection error to a stable metrics label.
func rejectionReason(err error) string {
	switch {
	case apperrors.Is(err, apperrors.ErrMarketClosed):
		return "market_closed"
	case apperrors.Is(err, apperrors.ErrInsufficientMargin):
		return "insufficient_margin"
	case apperrors.Is(err, apperrors.ErrLotLimitExceeded):
		return "lot_limit"
	case apperrors.Is(err, apperrors.ErrSpreadTooWide):
		return "spread"
	case apperrors.Is(err, apperrors.ErrInvalidStopLoss):
		return "invalid_sl"
	case apperrors.Is(err, apperrors.ErrInvalidTakeProfit):
		return "invalid_tp"
	case apperrors.Is(err, apperrors.ErrAccountNotActive):
		return "account_not_active"
	case apperrors.Is(err, apperrors.ErrSessionExpired):
		return "session_expired"
	case apperrors.Is(err, apperrors.ErrSymbolNotFound):
		return "unknown_symbol"
	default:
		return "other"
	}
}
