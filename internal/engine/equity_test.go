package engine

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propdesk/internal/models"
)

func TestEquityMonitor_SyncsBalancePlusFloating(t *testing.T) {
	l := newTestLedger(t)
	o := newStubOracle()
	monitor := NewEquityMonitor(l, o, models.DefaultInstruments(), zerolog.Nop())
	ctx := context.Background()

	acct := createAccount(t, l, 100000, models.AccountActive)
	insertOpenTrade(t, l, acct.ID, models.NIFTY, models.OrderSideBuy, 1, 21500)
	insertOpenTrade(t, l, acct.ID, models.BANKNIFTY, models.OrderSideSell, 2, 46500)

	o.setQuote(models.NIFTY, 21520, 21522)     // long marks at bid: +20*50 = +1000
	o.setQuote(models.BANKNIFTY, 46480, 46482) // short marks at ask: +18*2*15 = +540

	require.NoError(t, monitor.SyncEquity(ctx))

	got, err := l.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.InDelta(t, 100000+1000+540, got.Equity, 1e-9)
	// Balance untouched until something closes.
	assert.InDelta(t, 100000.0, got.Balance, 1e-9)
}

func TestEquityMonitor_SkipsAccountWithMissingQuote(t *testing.T) {
	l := newTestLedger(t)
	o := newStubOracle()
	monitor := NewEquityMonitor(l, o, models.DefaultInstruments(), zerolog.Nop())
	ctx := context.Background()

	acct := createAccount(t, l, 100000, models.AccountActive)
	insertOpenTrade(t, l, acct.ID, models.NIFTY, models.OrderSideBuy, 1, 21500)
	insertOpenTrade(t, l, acct.ID, models.BANKNIFTY, models.OrderSideBuy, 1, 46500)
	o.setQuote(models.NIFTY, 21400, 21402)
	// BANKNIFTY has no quote: stale equity is preferred over a partial mark.

	require.NoError(t, monitor.SyncEquity(ctx))

	got, err := l.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.InDelta(t, 100000.0, got.Equity, 1e-9)
}

func TestEquityMonitor_LeavesFlatAccountsUntouched(t *testing.T) {
	l := newTestLedger(t)
	o := newStubOracle()
	monitor := NewEquityMonitor(l, o, models.DefaultInstruments(), zerolog.Nop())
	ctx := context.Background()

	acct := createAccount(t, l, 100000, models.AccountActive)
	o.setQuote(models.NIFTY, 21400, 21402)

	require.NoError(t, monitor.SyncEquity(ctx))

	got, err := l.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.InDelta(t, 100000.0, got.Equity, 1e-9)
}
