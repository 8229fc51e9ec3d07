package engine

import (
	"context"
	"fmt"
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

// RiskConfig overrides the built-in challenge thresholds. Zero-valued
// fields keep the defaults from models.ParamsFor.
type RiskConfig struct {
	MaxDrawdownPct         float64
	DailyDrawdownPct       float64
	OneStepTargetPct       float64
	TwoStepPhase1TargetPct float64
	TwoStepPhase2TargetPct float64
	Instruments            map[models.Symbol]models.Instrument
}

// RiskManager evaluates drawdown rules and profit targets against each
// active account. It recomputes floating P&L from the ledger and oracle on
// every pass instead of reading the cached equity column: a stale cache
// must never decide a fail.
type RiskManager struct {
	ledger      ledger.Ledger
	oracle      oracle.Oracle
	engine      *ExecutionEngine
	cfg         RiskConfig
	instruments map[models.Symbol]models.Instrument
	logger      zerolog.Logger
}

// NewRiskManager builds a risk manager sharing the engine's ledger and
// oracle handles. The engine reference is used to force-close positions
// after a fail.
func NewRiskManager(l ledger.Ledger, o oracle.Oracle, e *ExecutionEngine, cfg RiskConfig, logger zerolog.Logger) *RiskManager {
	instruments := cfg.Instruments
	if instruments == nil {
		instruments = models.DefaultInstruments()
	}
	return &RiskManager{
		ledger:      l,
		oracle:      o,
		engine:      e,
		cfg:         cfg,
		instruments: instruments,
		logger:      logger.With().Str("component", "risk").Logger(),
	}
}

// params resolves the thresholds for an account: the built-in challenge
// table with any configured overrides applied on top.
func (r *RiskManager) params(acct *models.Account) models.ChallengeParams {
	p := models.ParamsFor(acct.Challenge, acct.Phase)
	if r.cfg.MaxDrawdownPct > 0 {
		p.MaxDrawdownPct = r.cfg.MaxDrawdownPct
	}
	if r.cfg.DailyDrawdownPct > 0 {
		p.DailyDrawdownPct = r.cfg.DailyDrawdownPct
	}
	switch {
	case acct.Challenge == models.ChallengeTwoStep && acct.Phase >= 2:
		if r.cfg.TwoStepPhase2TargetPct > 0 {
			p.ProfitTargetPct = r.cfg.TwoStepPhase2TargetPct
		}
	case acct.Challenge == models.ChallengeTwoStep:
		if r.cfg.TwoStepPhase1TargetPct > 0 {
			p.ProfitTargetPct = r.cfg.TwoStepPhase1TargetPct
		}
	default:
		if r.cfg.OneStepTargetPct > 0 {
			p.ProfitTargetPct = r.cfg.OneStepTargetPct
		}
	}
	return p
}

// Evaluate is one pass of the risk loop. Each account is handled
// independently: a failure evaluating one never blocks the rest.
func (r *RiskManager) Evaluate(ctx context.Context) error {
	accounts, err := r.ledger.ListActiveAccounts(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	for i := range accounts {
		acct := &accounts[i]
		if err := r.evaluateAccount(ctx, acct, now); err != nil {
			metrics.RecordLoopError("risk")
			r.logger.Error().Err(err).Str("account_id", acct.ID).Msg("Risk evaluation failed")
		}
	}
	return nil
}

func (r *RiskManager) evaluateAccount(ctx context.Context, acct *models.Account, now time.Time) error {
	if acct.SessionExpired(now) {
		_, err := r.ledger.UpdateAccountStatus(ctx, acct.ID, models.AccountActive, models.AccountExpired)
		return err
	}

	equity, ok, err := r.liveEquity(ctx, acct)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	params := r.params(acct)

	// Max drawdown is measured against initial size, daily against the
	// balance snapshotted at rollover. Checked in severity order: one
	// violation per pass is enough to end the account.
	maxFloor := acct.Size * (1 - params.MaxDrawdownPct)
	if equity < maxFloor {
		verr := apperrors.NewRiskError("max_drawdown", equity, maxFloor,
			fmt.Sprintf("equity breached the floor for size %.0f", acct.Size))
		return r.fail(ctx, acct, models.ViolationMaxDrawdown, verr.Error())
	}

	dailyFloor := acct.DailyStartBalance * (1 - params.DailyDrawdownPct)
	if equity < dailyFloor {
		verr := apperrors.NewRiskError("daily_drawdown", equity, dailyFloor,
			fmt.Sprintf("equity breached the floor for day start %.2f", acct.DailyStartBalance))
		return r.fail(ctx, acct, models.ViolationDailyDrawdown, verr.Error())
	}

	target := acct.Size * (1 + params.ProfitTargetPct)
	if equity >= target {
		return r.pass(ctx, acct, equity, target)
	}
	return nil
}

// liveEquity recomputes balance + floating P&L from scratch. ok is false
// when any open trade's symbol has no quote yet.
func (r *RiskManager) liveEquity(ctx context.Context, acct *models.Account) (float64, bool, error) {
	trades, err := r.ledger.ListOpenTrades(ctx, acct.ID)
	if err != nil {
		return 0, false, err
	}
	equity := acct.Balance
	for i := range trades {
		trade := &trades[i]
		quote := r.oracle.GetQuote(trade.Symbol)
		if quote == nil {
			return 0, false, nil
		}
		inst, found := r.instruments[trade.Symbol]
		if !found {
			continue
		}
		equity += trade.FloatingPnL(closePrice(trade.Side, quote), inst.Multiplier)
	}
	return equity, true, nil
}

// fail flips the account to failed, records the violation, and force-closes
// every open position. The conditional flip makes concurrent passes
// idempotent: the loser records nothing and closes nothing.
func (r *RiskManager) fail(ctx context.Context, acct *models.Account, vtype models.ViolationType, details string) error {
	flipped, err := r.ledger.UpdateAccountStatus(ctx, acct.ID, models.AccountActive, models.AccountFailed)
	if err != nil {
		return err
	}
	if !flipped {
		return nil
	}

	v := &models.Violation{
		ID:        uuid.NewString(),
		AccountID: acct.ID,
		Type:      vtype,
		Details:   details,
		CreatedAt: time.Now(),
	}
	if err := r.ledger.InsertViolation(ctx, v); err != nil {
		r.logger.Error().Err(err).Str("account_id", acct.ID).Msg("Violation record failed")
	}
	metrics.RecordViolation(string(vtype))
	logging.LogViolation(r.logger, acct.ID, string(vtype), details)

	return r.engine.CloseAllForAccount(ctx, acct.ID, models.CloseRiskFail)
}

// pass flips the account to passed. Open positions are left alone; the stop
// monitor keeps managing them until closed by their owner.
func (r *RiskManager) pass(ctx context.Context, acct *models.Account, equity, target float64) error {
	flipped, err := r.ledger.UpdateAccountStatus(ctx, acct.ID, models.AccountActive, models.AccountPassed)
	if err != nil {
		return err
	}
	if flipped {
		r.logger.Info().
			Str("account_id", acct.ID).
			Float64("equity", equity).
			Float64("target", target).
			Str("challenge", string(acct.Challenge)).
			Int("phase", acct.Phase).
			Msg("Profit target reached, evaluation passed")
	}
	return nil
}

// RolloverDaily snapshots each active account's current balance as the new
// daily drawdown baseline. Run once per trading day.
func (r *RiskManager) RolloverDaily(ctx context.Context) error {
	accounts, err := r.ledger.ListActiveAccounts(ctx)
	if err != nil {
		return err
	}
	for i := range accounts {
		acct := &accounts[i]
		if err := r.ledger.ResetDailyStart(ctx, acct.ID); err != nil {
			r.logger.Error().Err(err).Str("account_id", acct.ID).Msg("Daily rollover failed")
			continue
		}
		r.logger.Info().Str("account_id", acct.ID).Float64("balance", acct.Balance).Msg("Daily baseline reset")
	}
	return nil
}

// RunLoop schedules Evaluate as a periodic task.
func (r *RiskManager) RunLoop(ctx context.Context, interval time.Duration) {
	runEvery(ctx, r.logger, "risk", interval, r.Evaluate)
}
