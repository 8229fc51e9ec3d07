// Package ledger provides durable, queryable state for accounts, trades and
// pending limit orders.
package ledger

import (
	"context"
	"time"

	"propdesk/internal/models"
)

// Ledger is the read/write contract consumed by the execution engine, the
// equity monitor and the risk manager. Operations are atomic: single-row
// reads and writes, plus short transactions where a state transition and
// its side effect must land together (SettleTrade, FillOrder). Concurrent
// operations on the same row are serialized via status-conditional
// updates, so a close of an already-closed trade reports settled=false
// instead of double-counting.
type Ledger interface {
	// Accounts
	CreateAccount(ctx context.Context, acct *models.Account) error
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	ListActiveAccounts(ctx context.Context) ([]models.Account, error)
	ListAccountsWithOpenTrades(ctx context.Context) ([]models.Account, error)
	// ActivateAccount launches a pending account: status pending->active,
	// session window set, daily_start_balance reset to balance.
	ActivateAccount(ctx context.Context, id string, start, expires time.Time) error
	// UpdateAccountStatus flips status only when the row currently holds
	// `from`; reports whether the flip landed.
	UpdateAccountStatus(ctx context.Context, id string, from, to models.AccountStatus) (bool, error)
	UpdateEquity(ctx context.Context, id string, equity float64) error
	// ResetDailyStart sets daily_start_balance to the current balance.
	ResetDailyStart(ctx context.Context, id string) error

	// Trades
	InsertTrade(ctx context.Context, t *models.Trade) error
	GetTrade(ctx context.Context, id string) (*models.Trade, error)
	// ListOpenTrades returns open trades for one account, or all accounts
	// when accountID is empty.
	ListOpenTrades(ctx context.Context, accountID string) ([]models.Trade, error)
	ListTrades(ctx context.Context, accountID string) ([]models.Trade, error)
	// SettleTrade marks an open trade closed and credits its pnl to the
	// account balance in one transaction; equity resyncs to the new
	// balance and the equity monitor re-marks remaining open positions on
	// its next pass. Returns settled=false when the row was already closed
	// (the second writer in a close race loses and the balance is credited
	// exactly once).
	SettleTrade(ctx context.Context, tradeID, accountID string, exitPrice, pnl float64, reason models.CloseReason, at time.Time) (bool, error)

	// Limit orders
	InsertOrder(ctx context.Context, o *models.LimitOrder) error
	GetOrder(ctx context.Context, id string) (*models.LimitOrder, error)
	ListPendingOrders(ctx context.Context) ([]models.LimitOrder, error)
	// FillOrder transitions a pending order to filled and records the
	// resulting open trade in the same transaction, so a transient failure
	// leaves the order matchable instead of consumed without a position.
	// Returns filled=false when the order was no longer pending.
	FillOrder(ctx context.Context, orderID string, t *models.Trade, at time.Time) (bool, error)
	// CancelOrder transitions pending -> cancelled; reports whether the
	// transition landed (false when no longer pending).
	CancelOrder(ctx context.Context, id string) (bool, error)

	// Violations
	InsertViolation(ctx context.Context, v *models.Violation) error
	ListViolations(ctx context.Context, accountID string) ([]models.Violation, error)

	Close() error
}
