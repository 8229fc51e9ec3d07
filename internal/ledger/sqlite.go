package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "propdesk/internal/errors"
	"propdesk/internal/models"
)

// SQLiteLedger implements Ledger using SQLite.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger creates a new SQLite-backed ledger.
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	l := &SQLiteLedger{db: db}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return l, nil
}

// initSchema creates all required tables and indexes.
func (l *SQLiteLedger) initSchema() error {
	schema := `
	-- Evaluation accounts
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		challenge TEXT NOT NULL,
		phase INTEGER NOT NULL DEFAULT 1,
		size REAL NOT NULL,
		balance REAL NOT NULL,
		equity REAL NOT NULL,
		daily_start_balance REAL NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		session_start DATETIME,
		session_expires DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Open positions and closed trades
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		lots INTEGER NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL,
		stop_loss REAL,
		take_profit REAL,
		status TEXT NOT NULL DEFAULT 'open',
		pnl REAL NOT NULL DEFAULT 0,
		slippage REAL NOT NULL DEFAULT 0,
		close_reason TEXT,
		opened_at DATETIME NOT NULL,
		closed_at DATETIME,
		FOREIGN KEY (account_id) REFERENCES accounts(id)
	);

	-- Pending limit orders
	CREATE TABLE IF NOT EXISTS limit_orders (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		lots INTEGER NOT NULL,
		limit_price REAL NOT NULL,
		stop_loss REAL,
		take_profit REAL,
		status TEXT NOT NULL DEFAULT 'pending',
		placed_at DATETIME NOT NULL,
		filled_at DATETIME,
		FOREIGN KEY (account_id) REFERENCES accounts(id)
	);

	-- Append-only violation audit log
	CREATE TABLE IF NOT EXISTS violations (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		type TEXT NOT NULL,
		details TEXT,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (account_id) REFERENCES accounts(id)
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_status ON accounts(status);
	CREATE INDEX IF NOT EXISTS idx_trades_account ON trades(account_id);
	CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
	CREATE INDEX IF NOT EXISTS idx_orders_status ON limit_orders(status);
	CREATE INDEX IF NOT EXISTS idx_violations_account ON violations(account_id);
	`

	_, err := l.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

// ============================================================================
// Accounts
// ============================================================================

// CreateAccount inserts a new evaluation account.
func (l *SQLiteLedger) CreateAccount(ctx context.Context, acct *models.Account) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO accounts (id, user_id, challenge, phase, size, balance, equity, daily_start_balance, status, session_start, session_expires, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		acct.ID, acct.UserID, string(acct.Challenge), acct.Phase, acct.Size,
		acct.Balance, acct.Equity, acct.DailyStartBalance, string(acct.Status),
		nullTime(acct.SessionStart), nullTime(acct.SessionExpires), acct.CreatedAt)
	if err != nil {
		return apperrors.NewLedgerError("create_account", acct.ID, err)
	}
	return nil
}

// GetAccount fetches an account by ID.
func (l *SQLiteLedger) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT id, user_id, challenge, phase, size, balance, equity, daily_start_balance, status, session_start, session_expires, created_at
		FROM accounts WHERE id = ?`, id)

	acct, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrAccountNotFound
	}
	if err != nil {
		return nil, apperrors.NewLedgerError("get_account", id, err)
	}
	return acct, nil
}

// ListAccounts returns every account.
func (l *SQLiteLedger) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return l.queryAccounts(ctx, `
		SELECT id, user_id, challenge, phase, size, balance, equity, daily_start_balance, status, session_start, session_expires, created_at
		FROM accounts ORDER BY created_at`)
}

// ListActiveAccounts returns accounts currently under evaluation.
func (l *SQLiteLedger) ListActiveAccounts(ctx context.Context) ([]models.Account, error) {
	return l.queryAccounts(ctx, `
		SELECT id, user_id, challenge, phase, size, balance, equity, daily_start_balance, status, session_start, session_expires, created_at
		FROM accounts WHERE status = 'active' ORDER BY created_at`)
}

// ListAccountsWithOpenTrades returns active accounts holding at least one
// open position. Accounts without open trades keep equity == balance from
// the last close, so the equity monitor can skip them.
func (l *SQLiteLedger) ListAccountsWithOpenTrades(ctx context.Context) ([]models.Account, error) {
	return l.queryAccounts(ctx, `
		SELECT DISTINCT a.id, a.user_id, a.challenge, a.phase, a.size, a.balance, a.equity, a.daily_start_balance, a.status, a.session_start, a.session_expires, a.created_at
		FROM accounts a
		INNER JOIN trades t ON t.account_id = a.id AND t.status = 'open'
		WHERE a.status = 'active'`)
}

func (l *SQLiteLedger) queryAccounts(ctx context.Context, query string, args ...interface{}) ([]models.Account, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewLedgerError("list_accounts", "", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, apperrors.NewLedgerError("scan_account", "", err)
		}
		accounts = append(accounts, *acct)
	}
	return accounts, rows.Err()
}

// ActivateAccount launches a pending account.
func (l *SQLiteLedger) ActivateAccount(ctx context.Context, id string, start, expires time.Time) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE accounts
		SET status = 'active', session_start = ?, session_expires = ?, daily_start_balance = balance
		WHERE id = ? AND status = 'pending'`,
		start, expires, id)
	if err != nil {
		return apperrors.NewLedgerError("activate_account", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NewOrderError(id, "", "launch", "account is not pending", apperrors.ErrAccountNotActive)
	}
	return nil
}

// UpdateAccountStatus flips status only when the current status matches.
func (l *SQLiteLedger) UpdateAccountStatus(ctx context.Context, id string, from, to models.AccountStatus) (bool, error) {
	res, err := l.db.ExecContext(ctx,
		`UPDATE accounts SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(from))
	if err != nil {
		return false, apperrors.NewLedgerError("update_status", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// UpdateEquity republishes floating equity for an account.
func (l *SQLiteLedger) UpdateEquity(ctx context.Context, id string, equity float64) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE accounts SET equity = ? WHERE id = ?`, equity, id)
	if err != nil {
		return apperrors.NewLedgerError("update_equity", id, err)
	}
	return nil
}

// ResetDailyStart begins a new trading day for one account.
func (l *SQLiteLedger) ResetDailyStart(ctx context.Context, id string) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE accounts SET daily_start_balance = balance WHERE id = ?`, id)
	if err != nil {
		return apperrors.NewLedgerError("reset_daily_start", id, err)
	}
	return nil
}

// ============================================================================
// Trades
// ============================================================================

// InsertTrade records a freshly filled position.
func (l *SQLiteLedger) InsertTrade(ctx context.Context, t *models.Trade) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO trades (id, account_id, symbol, side, lots, entry_price, stop_loss, take_profit, status, pnl, slippage, opened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.AccountID, string(t.Symbol), string(t.Side), t.Lots, t.EntryPrice,
		nullFloat(t.StopLoss), nullFloat(t.TakeProfit), string(t.Status), t.PnL, t.Slippage, t.OpenedAt)
	if err != nil {
		return apperrors.NewLedgerError("insert_trade", t.ID, err)
	}
	return nil
}

// GetTrade fetches a trade by ID.
func (l *SQLiteLedger) GetTrade(ctx context.Context, id string) (*models.Trade, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT id, account_id, symbol, side, lots, entry_price, exit_price, stop_loss, take_profit, status, pnl, slippage, close_reason, opened_at, closed_at
		FROM trades WHERE id = ?`, id)

	t, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrTradeNotFound
	}
	if err != nil {
		return nil, apperrors.NewLedgerError("get_trade", id, err)
	}
	return t, nil
}

// ListOpenTrades returns open trades, optionally scoped to one account.
func (l *SQLiteLedger) ListOpenTrades(ctx context.Context, accountID string) ([]models.Trade, error) {
	query := `
		SELECT id, account_id, symbol, side, lots, entry_price, exit_price, stop_loss, take_profit, status, pnl, slippage, close_reason, opened_at, closed_at
		FROM trades WHERE status = 'open'`
	args := []interface{}{}
	if accountID != "" {
		query += ` AND account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY opened_at`
	return l.queryTrades(ctx, query, args...)
}

// ListTrades returns all trades for an account, open and closed.
func (l *SQLiteLedger) ListTrades(ctx context.Context, accountID string) ([]models.Trade, error) {
	return l.queryTrades(ctx, `
		SELECT id, account_id, symbol, side, lots, entry_price, exit_price, stop_loss, take_profit, status, pnl, slippage, close_reason, opened_at, closed_at
		FROM trades WHERE account_id = ? ORDER BY opened_at`, accountID)
}

func (l *SQLiteLedger) queryTrades(ctx context.Context, query string, args ...interface{}) ([]models.Trade, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewLedgerError("list_trades", "", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, apperrors.NewLedgerError("scan_trade", "", err)
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}

// SettleTrade marks an open trade closed and credits its pnl to the account
// in a single transaction: a trade can never end up closed without its pnl
// on the balance. The status guard in the WHERE clause makes the second
// settle in a race a no-op: it reports settled=false and the balance is
// credited exactly once.
func (l *SQLiteLedger) SettleTrade(ctx context.Context, tradeID, accountID string, exitPrice, pnl float64, reason models.CloseReason, at time.Time) (bool, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, apperrors.NewLedgerError("settle_trade", tradeID, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE trades
		SET status = 'closed', exit_price = ?, pnl = ?, close_reason = ?, closed_at = ?
		WHERE id = ? AND status = 'open'`,
		exitPrice, pnl, string(reason), at, tradeID)
	if err != nil {
		return false, apperrors.NewLedgerError("settle_trade", tradeID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	// Equity resyncs to the new balance; the right-hand `balance` still
	// reads the pre-update value, per SQL UPDATE semantics.
	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = balance + ?, equity = balance + ? WHERE id = ?`,
		pnl, pnl, accountID); err != nil {
		return false, apperrors.NewLedgerError("settle_trade", tradeID, err)
	}

	if err := tx.Commit(); err != nil {
		return false, apperrors.NewLedgerError("settle_trade", tradeID, err)
	}
	return true, nil
}

// ============================================================================
// Limit orders
// ============================================================================

// InsertOrder records a pending limit order.
func (l *SQLiteLedger) InsertOrder(ctx context.Context, o *models.LimitOrder) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO limit_orders (id, account_id, symbol, side, lots, limit_price, stop_loss, take_profit, status, placed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.AccountID, string(o.Symbol), string(o.Side), o.Lots, o.LimitPrice,
		nullFloat(o.StopLoss), nullFloat(o.TakeProfit), string(o.Status), o.PlacedAt)
	if err != nil {
		return apperrors.NewLedgerError("insert_order", o.ID, err)
	}
	return nil
}

// GetOrder fetches a limit order by ID.
func (l *SQLiteLedger) GetOrder(ctx context.Context, id string) (*models.LimitOrder, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT id, account_id, symbol, side, lots, limit_price, stop_loss, take_profit, status, placed_at, filled_at
		FROM limit_orders WHERE id = ?`, id)

	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrOrderNotFound
	}
	if err != nil {
		return nil, apperrors.NewLedgerError("get_order", id, err)
	}
	return o, nil
}

// ListPendingOrders returns every order still waiting for its trigger.
func (l *SQLiteLedger) ListPendingOrders(ctx context.Context) ([]models.LimitOrder, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, account_id, symbol, side, lots, limit_price, stop_loss, take_profit, status, placed_at, filled_at
		FROM limit_orders WHERE status = 'pending' ORDER BY placed_at`)
	if err != nil {
		return nil, apperrors.NewLedgerError("list_orders", "", err)
	}
	defer rows.Close()

	var orders []models.LimitOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, apperrors.NewLedgerError("scan_order", "", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// FillOrder transitions a pending order to filled and records the resulting
// open trade in the same transaction. A transient failure rolls both back,
// so the order stays matchable on the next pass instead of being consumed
// without a position.
func (l *SQLiteLedger) FillOrder(ctx context.Context, orderID string, t *models.Trade, at time.Time) (bool, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, apperrors.NewLedgerError("fill_order", orderID, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE limit_orders SET status = 'filled', filled_at = ? WHERE id = ? AND status = 'pending'`,
		at, orderID)
	if err != nil {
		return false, apperrors.NewLedgerError("fill_order", orderID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO trades (id, account_id, symbol, side, lots, entry_price, stop_loss, take_profit, status, pnl, slippage, opened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.AccountID, string(t.Symbol), string(t.Side), t.Lots, t.EntryPrice,
		nullFloat(t.StopLoss), nullFloat(t.TakeProfit), string(t.Status), t.PnL, t.Slippage, t.OpenedAt); err != nil {
		return false, apperrors.NewLedgerError("fill_order", orderID, err)
	}

	if err := tx.Commit(); err != nil {
		return false, apperrors.NewLedgerError("fill_order", orderID, err)
	}
	return true, nil
}

// CancelOrder transitions pending -> cancelled.
func (l *SQLiteLedger) CancelOrder(ctx context.Context, id string) (bool, error) {
	res, err := l.db.ExecContext(ctx, `
		UPDATE limit_orders SET status = 'cancelled' WHERE id = ? AND status = 'pending'`, id)
	if err != nil {
		return false, apperrors.NewLedgerError("cancel_order", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ============================================================================
// Violations
// ============================================================================

// InsertViolation appends an audit record. Violations are never mutated.
func (l *SQLiteLedger) InsertViolation(ctx context.Context, v *models.Violation) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO violations (id, account_id, type, details, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		v.ID, v.AccountID, string(v.Type), v.Details, v.CreatedAt)
	if err != nil {
		return apperrors.NewLedgerError("insert_violation", v.ID, err)
	}
	return nil
}

// ListViolations returns violations for an account, oldest first.
func (l *SQLiteLedger) ListViolations(ctx context.Context, accountID string) ([]models.Violation, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, account_id, type, details, created_at
		FROM violations WHERE account_id = ? ORDER BY created_at`, accountID)
	if err != nil {
		return nil, apperrors.NewLedgerError("list_violations", accountID, err)
	}
	defer rows.Close()

	var violations []models.Violation
	for rows.Next() {
		var v models.Violation
		var vtype string
		if err := rows.Scan(&v.ID, &v.AccountID, &vtype, &v.Details, &v.CreatedAt); err != nil {
			return nil, apperrors.NewLedgerError("scan_violation", "", err)
		}
		v.Type = models.ViolationType(vtype)
		violations = append(violations, v)
	}
	return violations, rows.Err()
}

// ============================================================================
// Row scanning helpers
// ============================================================================

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	var challenge, status string
	var sessionStart, sessionExpires sql.NullTime
	err := row.Scan(&a.ID, &a.UserID, &challenge, &a.Phase, &a.Size, &a.Balance,
		&a.Equity, &a.DailyStartBalance, &status, &sessionStart, &sessionExpires, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Challenge = models.ChallengeType(challenge)
	a.Status = models.AccountStatus(status)
	if sessionStart.Valid {
		a.SessionStart = sessionStart.Time
	}
	if sessionExpires.Valid {
		a.SessionExpires = sessionExpires.Time
	}
	return &a, nil
}

func scanTrade(row rowScanner) (*models.Trade, error) {
	var t models.Trade
	var symbol, side, status string
	var exitPrice, stopLoss, takeProfit sql.NullFloat64
	var closeReason sql.NullString
	var closedAt sql.NullTime
	err := row.Scan(&t.ID, &t.AccountID, &symbol, &side, &t.Lots, &t.EntryPrice,
		&exitPrice, &stopLoss, &takeProfit, &status, &t.PnL, &t.Slippage,
		&closeReason, &t.OpenedAt, &closedAt)
	if err != nil {
		return nil, err
	}
	t.Symbol = models.Symbol(symbol)
	t.Side = models.OrderSide(side)
	t.Status = models.TradeStatus(status)
	t.ExitPrice = exitPrice.Float64
	t.StopLoss = stopLoss.Float64
	t.TakeProfit = takeProfit.Float64
	t.CloseReason = models.CloseReason(closeReason.String)
	if closedAt.Valid {
		t.ClosedAt = closedAt.Time
	}
	return &t, nil
}

func scanOrder(row rowScanner) (*models.LimitOrder, error) {
	var o models.LimitOrder
	var symbol, side, status string
	var stopLoss, takeProfit sql.NullFloat64
	var filledAt sql.NullTime
	err := row.Scan(&o.ID, &o.AccountID, &symbol, &side, &o.Lots, &o.LimitPrice,
		&stopLoss, &takeProfit, &status, &o.PlacedAt, &filledAt)
	if err != nil {
		return nil, err
	}
	o.Symbol = models.Symbol(symbol)
	o.Side = models.OrderSide(side)
	o.Status = models.OrderStatus(status)
	o.StopLoss = stopLoss.Float64
	o.TakeProfit = takeProfit.Float64
	if filledAt.Valid {
		o.FilledAt = filledAt.Time
	}
	return &o, nil
}

func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: v != 0}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
