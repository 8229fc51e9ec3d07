package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"propdesk/internal/ledger"
	"propdesk/internal/metrics"
	"propdesk/internal/models"
	"propdesk/internal/oracle"
)

// EquityMonitor keeps each account's cached equity column in sync with its
// balance plus the floating P&L of its open trades. The cached value feeds
// margin checks between risk passes; the risk manager recomputes its own
// numbers and never trusts this cache.
type EquityMonitor struct {
	ledger      ledger.Ledger
	oracle      oracle.Oracle
	instruments map[models.Symbol]models.Instrument
	logger      zerolog.Logger
}

// NewEquityMonitor builds an equity monitor over the shared ledger and
// oracle.
func NewEquityMonitor(l ledger.Ledger, o oracle.Oracle, instruments map[models.Symbol]models.Instrument, logger zerolog.Logger) *EquityMonitor {
	if instruments == nil {
		instruments = models.DefaultInstruments()
	}
	return &EquityMonitor{
		ledger:      l,
		oracle:      o,
		instruments: instruments,
		logger:      logger.With().Str("component", "equity").Logger(),
	}
}

// SyncEquity is one pass: mark every open position to market and write
// equity = balance + floating for each active account holding positions.
// Accounts with no open trades already have equity == balance, kept true
// by the balance resync inside SettleTrade on every close.
func (m *EquityMonitor) SyncEquity(ctx context.Context) error {
	accounts, err := m.ledger.ListAccountsWithOpenTrades(ctx)
	if err != nil {
		return err
	}

	for i := range accounts {
		acct := &accounts[i]
		floating, ok, err := m.floatingPnL(ctx, acct.ID)
		if err != nil {
			metrics.RecordLoopError("equity")
			m.logger.Error().Err(err).Str("account_id", acct.ID).Msg("Equity sync failed")
			continue
		}
		if !ok {
			// A symbol had no quote yet; stale equity beats a wrong one.
			continue
		}
		equity := acct.Balance + floating
		if err := m.ledger.UpdateEquity(ctx, acct.ID, equity); err != nil {
			metrics.RecordLoopError("equity")
			m.logger.Error().Err(err).Str("account_id", acct.ID).Msg("Equity write failed")
			continue
		}
		metrics.SetEquity(acct.ID, equity)
	}
	return nil
}

// floatingPnL sums the mark-to-market P&L of an account's open trades.
// ok is false when any trade's symbol has no quote yet.
func (m *EquityMonitor) floatingPnL(ctx context.Context, accountID string) (float64, bool, error) {
	trades, err := m.ledger.ListOpenTrades(ctx, accountID)
	if err != nil {
		return 0, false, err
	}
	var total float64
	for i := range trades {
		trade := &trades[i]
		quote := m.oracle.GetQuote(trade.Symbol)
		if quote == nil {
			return 0, false, nil
		}
		inst, found := m.instruments[trade.Symbol]
		if !found {
			continue
		}
		total += trade.FloatingPnL(closePrice(trade.Side, quote), inst.Multiplier)
	}
	return total, true, nil
}

// RunLoop schedules SyncEquity as a periodic task.
func (m *EquityMonitor) RunLoop(ctx context.Context, interval time.Duration) {
	runEvery(ctx, m.logger, "equity", interval, m.SyncEquity)
}
