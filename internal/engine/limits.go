// Package engine provides the order execution engine, equity monitor and
// risk manager for evaluation accounts.
package engine

import "propdesk/internal/models"

// MaxLotsFor returns the maximum order size for an account, a step function
// of the nominal account size.
func MaxLotsFor(size float64, symbol models.Symbol) int {
	var nifty, banknifty int
	switch {
	case size <= 50_000:
		nifty, banknifty = 3, 2
	case size <= 100_000:
		nifty, banknifty = 6, 4
	case size <= 200_000:
		nifty, banknifty = 12, 8
	default:
		nifty, banknifty = 30, 20
	}
	if symbol == models.BANKNIFTY {
		return banknifty
	}
	return nifty
}
