package models

import "time"

// AccountStatus represents the lifecycle state of an evaluation account.
// Transitions are one-way: pending->active on launch, active->failed/expired/
// passed terminal.
type AccountStatus string

const (
	AccountPending AccountStatus = "pending"
	AccountActive  AccountStatus = "active"
	AccountFailed  AccountStatus = "failed"
	AccountExpired AccountStatus = "expired"
	AccountPassed  AccountStatus = "passed"
)

// ChallengeType is the evaluation tier that determines profit targets.
type ChallengeType string

const (
	ChallengeOneStep ChallengeType = "one_step"
	ChallengeTwoStep ChallengeType = "two_step"
)

// Account represents a purchased evaluation account.
// Invariant after every equity monitor pass:
// Equity == Balance + sum(floating P&L of open trades).
type Account struct {
	ID                string
	UserID            string
	Challenge         ChallengeType
	Phase             int // 1 or 2 for two-step, always 1 for one-step
	Size              float64
	Balance           float64
	Equity            float64
	DailyStartBalance float64
	Status            AccountStatus
	SessionStart      time.Time
	SessionExpires    time.Time
	CreatedAt         time.Time
}

// SessionExpired reports whether the trading window has ended at t.
func (a *Account) SessionExpired(t time.Time) bool {
	return !a.SessionExpires.IsZero() && t.After(a.SessionExpires)
}

// ChallengeParams holds the evaluation thresholds for a challenge type/phase.
type ChallengeParams struct {
	MaxDrawdownPct   float64
	DailyDrawdownPct float64
	ProfitTargetPct  float64
}

// ParamsFor returns the evaluation thresholds for a challenge type and phase.
// Defaults: 4% max drawdown, 2% daily drawdown; 10% target one-step,
// 8%/5% two-step phase 1/2.
func ParamsFor(challenge ChallengeType, phase int) ChallengeParams {
	p := ChallengeParams{MaxDrawdownPct: 0.04, DailyDrawdownPct: 0.02}
	switch challenge {
	case ChallengeTwoStep:
		if phase >= 2 {
			p.ProfitTargetPct = 0.05
		} else {
			p.ProfitTargetPct = 0.08
		}
	default:
		p.ProfitTargetPct = 0.10
	}
	return p
}
