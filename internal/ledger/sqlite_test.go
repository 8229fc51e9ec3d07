package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "propdesk/internal/errors"
	"propdesk/internal/models"
)

func newLedger(t *testing.T) *SQLiteLedger {
	t.Helper()
	l, err := NewSQLiteLedger(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func seedAccount(t *testing.T, l *SQLiteLedger, activate bool) *models.Account {
	t.Helper()
	acct := &models.Account{
		ID:                uuid.NewString(),
		UserID:            "user-1",
		Challenge:         models.ChallengeOneStep,
		Phase:             1,
		Size:              100000,
		Balance:           100000,
		Equity:            100000,
		DailyStartBalance: 100000,
		Status:            models.AccountPending,
		CreatedAt:         time.Now(),
	}
	require.NoError(t, l.CreateAccount(context.Background(), acct))
	if activate {
		require.NoError(t, l.ActivateAccount(context.Background(), acct.ID, time.Now(), time.Now().Add(24*time.Hour)))
	}
	return acct
}

func seedTrade(t *testing.T, l *SQLiteLedger, accountID string) *models.Trade {
	t.Helper()
	trade := &models.Trade{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		Symbol:     models.NIFTY,
		Side:       models.OrderSideBuy,
		Lots:       1,
		EntryPrice: 21500,
		StopLoss:   21400,
		TakeProfit: 21700,
		Status:     models.TradeOpen,
		OpenedAt:   time.Now(),
	}
	require.NoError(t, l.InsertTrade(context.Background(), trade))
	return trade
}

func TestAccountRoundTrip(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	acct := seedAccount(t, l, false)
	got, err := l.GetAccount(ctx, acct.ID)
	require.NoError(t, err)

	assert.Equal(t, acct.ID, got.ID)
	assert.Equal(t, models.AccountPending, got.Status)
	assert.Equal(t, acct.Size, got.Size)
	assert.Equal(t, acct.Balance, got.Balance)
	assert.Equal(t, models.ChallengeOneStep, got.Challenge)
}

func TestGetAccount_NotFound(t *testing.T) {
	l := newLedger(t)
	_, err := l.GetAccount(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrAccountNotFound)
}

func TestActivateAccount_OnlyFromPending(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	acct := seedAccount(t, l, true)
	got, err := l.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AccountActive, got.Status)
	assert.False(t, got.SessionExpires.IsZero())

	// A second launch must not reset the session window.
	err = l.ActivateAccount(ctx, acct.ID, time.Now(), time.Now().Add(48*time.Hour))
	assert.Error(t, err)
}

func TestUpdateAccountStatus_ConditionalFlip(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	acct := seedAccount(t, l, true)

	flipped, err := l.UpdateAccountStatus(ctx, acct.ID, models.AccountActive, models.AccountFailed)
	require.NoError(t, err)
	assert.True(t, flipped)

	// The losing writer in a race sees false, not an error.
	flipped, err = l.UpdateAccountStatus(ctx, acct.ID, models.AccountActive, models.AccountPassed)
	require.NoError(t, err)
	assert.False(t, flipped)

	got, err := l.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AccountFailed, got.Status)
}

func TestSettleTrade_ResyncsBalanceAndEquity(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	acct := seedAccount(t, l, true)
	trade := seedTrade(t, l, acct.ID)

	settled, err := l.SettleTrade(ctx, trade.ID, acct.ID, 21450, -2500, models.CloseManual, time.Now())
	require.NoError(t, err)
	assert.True(t, settled)

	got, err := l.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.InDelta(t, 97500.0, got.Balance, 1e-9)
	assert.InDelta(t, 97500.0, got.Equity, 1e-9)
}

func TestResetDailyStart(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	acct := seedAccount(t, l, true)
	trade := seedTrade(t, l, acct.ID)

	settled, err := l.SettleTrade(ctx, trade.ID, acct.ID, 21560, 3000, models.CloseManual, time.Now())
	require.NoError(t, err)
	require.True(t, settled)
	require.NoError(t, l.ResetDailyStart(ctx, acct.ID))

	got, err := l.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.InDelta(t, 103000.0, got.DailyStartBalance, 1e-9)
}

func TestListActiveAccounts(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	seedAccount(t, l, false)
	active := seedAccount(t, l, true)

	accounts, err := l.ListActiveAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, active.ID, accounts[0].ID)
}

func TestListAccountsWithOpenTrades(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	flat := seedAccount(t, l, true)
	holding := seedAccount(t, l, true)
	seedTrade(t, l, holding.ID)

	accounts, err := l.ListAccountsWithOpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, holding.ID, accounts[0].ID)
	assert.NotEqual(t, flat.ID, accounts[0].ID)
}

func TestSettleTrade_SecondSettleLosesRace(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	acct := seedAccount(t, l, true)
	trade := seedTrade(t, l, acct.ID)

	settled, err := l.SettleTrade(ctx, trade.ID, acct.ID, 21400, -5000, models.CloseSLHit, time.Now())
	require.NoError(t, err)
	assert.True(t, settled)

	settled, err = l.SettleTrade(ctx, trade.ID, acct.ID, 21600, 5000, models.CloseManual, time.Now())
	require.NoError(t, err)
	assert.False(t, settled)

	got, err := l.GetTrade(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TradeClosed, got.Status)
	assert.Equal(t, 21400.0, got.ExitPrice)
	assert.InDelta(t, -5000.0, got.PnL, 1e-9)
	assert.Equal(t, models.CloseSLHit, got.CloseReason)
	assert.False(t, got.ClosedAt.IsZero())

	// The loser's pnl never reaches the balance.
	gotAcct, err := l.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.InDelta(t, 95000.0, gotAcct.Balance, 1e-9)
	assert.InDelta(t, 95000.0, gotAcct.Equity, 1e-9)
}

func TestTradeRoundTrip_ZeroStopsStayZero(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	acct := seedAccount(t, l, true)

	trade := &models.Trade{
		ID:         uuid.NewString(),
		AccountID:  acct.ID,
		Symbol:     models.BANKNIFTY,
		Side:       models.OrderSideSell,
		Lots:       2,
		EntryPrice: 46500,
		Status:     models.TradeOpen,
		OpenedAt:   time.Now(),
	}
	require.NoError(t, l.InsertTrade(ctx, trade))

	got, err := l.GetTrade(ctx, trade.ID)
	require.NoError(t, err)
	assert.Zero(t, got.StopLoss)
	assert.Zero(t, got.TakeProfit)
	assert.Zero(t, got.ExitPrice)
	assert.True(t, got.ClosedAt.IsZero())
}

func TestListOpenTrades_EmptyAccountMeansAll(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	a := seedAccount(t, l, true)
	b := seedAccount(t, l, true)
	seedTrade(t, l, a.ID)
	seedTrade(t, l, b.ID)

	all, err := l.ListOpenTrades(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := l.ListOpenTrades(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, a.ID, one[0].AccountID)
}

func fillTrade(accountID string, entry float64) *models.Trade {
	return &models.Trade{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		Symbol:     models.NIFTY,
		Side:       models.OrderSideBuy,
		Lots:       1,
		EntryPrice: entry,
		Status:     models.TradeOpen,
		OpenedAt:   time.Now(),
	}
}

func TestFillOrder_Transitions(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	acct := seedAccount(t, l, true)

	order := &models.LimitOrder{
		ID:         uuid.NewString(),
		AccountID:  acct.ID,
		Symbol:     models.NIFTY,
		Side:       models.OrderSideBuy,
		Lots:       1,
		LimitPrice: 21450,
		Status:     models.OrderPending,
		PlacedAt:   time.Now(),
	}
	require.NoError(t, l.InsertOrder(ctx, order))

	// The fill records the trade in the same transaction.
	trade := fillTrade(acct.ID, 21448)
	filled, err := l.FillOrder(ctx, order.ID, trade, time.Now())
	require.NoError(t, err)
	assert.True(t, filled)

	gotTrade, err := l.GetTrade(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TradeOpen, gotTrade.Status)
	assert.Equal(t, 21448.0, gotTrade.EntryPrice)

	// Terminal: neither a second fill nor a cancel can land, and the
	// losing fill records no trade.
	second := fillTrade(acct.ID, 21449)
	filled, err = l.FillOrder(ctx, order.ID, second, time.Now())
	require.NoError(t, err)
	assert.False(t, filled)
	_, err = l.GetTrade(ctx, second.ID)
	assert.ErrorIs(t, err, apperrors.ErrTradeNotFound)

	cancelled, err := l.CancelOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, cancelled)

	got, err := l.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderFilled, got.Status)
	assert.False(t, got.FilledAt.IsZero())
}

func TestListPendingOrders(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	acct := seedAccount(t, l, true)

	pending := &models.LimitOrder{
		ID: uuid.NewString(), AccountID: acct.ID, Symbol: models.NIFTY,
		Side: models.OrderSideBuy, Lots: 1, LimitPrice: 21000,
		Status: models.OrderPending, PlacedAt: time.Now(),
	}
	require.NoError(t, l.InsertOrder(ctx, pending))

	cancelled := &models.LimitOrder{
		ID: uuid.NewString(), AccountID: acct.ID, Symbol: models.NIFTY,
		Side: models.OrderSideSell, Lots: 1, LimitPrice: 22000,
		Status: models.OrderPending, PlacedAt: time.Now(),
	}
	require.NoError(t, l.InsertOrder(ctx, cancelled))
	_, err := l.CancelOrder(ctx, cancelled.ID)
	require.NoError(t, err)

	orders, err := l.ListPendingOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, pending.ID, orders[0].ID)
}

func TestViolations_AppendOnly(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	acct := seedAccount(t, l, true)

	v := &models.Violation{
		ID:        uuid.NewString(),
		AccountID: acct.ID,
		Type:      models.ViolationMaxDrawdown,
		Details:   "equity 95000.00 below max drawdown floor 96000.00",
		CreatedAt: time.Now(),
	}
	require.NoError(t, l.InsertViolation(ctx, v))

	violations, err := l.ListViolations(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, models.ViolationMaxDrawdown, violations[0].Type)
	assert.Equal(t, v.Details, violations[0].Details)
}
