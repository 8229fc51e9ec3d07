package engine

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"propdesk/internal/models"
)

// Property: lot limits never decrease with account size, the NIFTY limit is
// always at least the BANKNIFTY limit, and every limit is positive.
func TestProperty_LotLimitsMonotoneInAccountSize(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	sizeGen := gen.Float64Range(1000, 1_000_000)

	properties.Property("limits are positive and NIFTY >= BANKNIFTY", prop.ForAll(
		func(size float64) bool {
			nifty := MaxLotsFor(size, models.NIFTY)
			banknifty := MaxLotsFor(size, models.BANKNIFTY)
			return nifty > 0 && banknifty > 0 && nifty >= banknifty
		},
		sizeGen,
	))

	properties.Property("larger accounts never get smaller limits", prop.ForAll(
		func(a, b float64) bool {
			small, large := a, b
			if small > large {
				small, large = large, small
			}
			return MaxLotsFor(large, models.NIFTY) >= MaxLotsFor(small, models.NIFTY) &&
				MaxLotsFor(large, models.BANKNIFTY) >= MaxLotsFor(small, models.BANKNIFTY)
		},
		sizeGen, sizeGen,
	))

	properties.TestingRun(t)
}

func TestMaxLotsFor_StepBoundaries(t *testing.T) {
	tests := []struct {
		size          float64
		wantNifty     int
		wantBanknifty int
	}{
		{25_000, 3, 2},
		{50_000, 3, 2},
		{50_001, 6, 4},
		{100_000, 6, 4},
		{100_001, 12, 8},
		{200_000, 12, 8},
		{200_001, 30, 20},
		{500_000, 30, 20},
	}
	for _, tt := range tests {
		if got := MaxLotsFor(tt.size, models.NIFTY); got != tt.wantNifty {
			t.Errorf("MaxLotsFor(%.0f, NIFTY) = %d, want %d", tt.size, got, tt.wantNifty)
		}
		if got := MaxLotsFor(tt.size, models.BANKNIFTY); got != tt.wantBanknifty {
			t.Errorf("MaxLotsFor(%.0f, BANKNIFTY) = %d, want %d", tt.size, got, tt.wantBanknifty)
		}
	}
}

// Property: for a buy, any stop below the reference together with any target
// above it validates; a stop at or above the reference never does. Sells
// mirror the rule.
func TestProperty_StopValidationSideRules(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	refGen := gen.Float64Range(100, 50_000)
	offsetGen := gen.Float64Range(0.01, 1000)

	properties.Property("buy with adverse sl and favorable tp validates", prop.ForAll(
		func(ref, slOff, tpOff float64) bool {
			return validateStops(models.OrderSideBuy, ref, ref-slOff, ref+tpOff) == nil
		},
		refGen, offsetGen, offsetGen,
	))

	properties.Property("buy with sl at or above reference rejects", prop.ForAll(
		func(ref, off float64) bool {
			return validateStops(models.OrderSideBuy, ref, ref+off, 0) != nil
		},
		refGen, offsetGen,
	))

	properties.Property("sell with adverse sl and favorable tp validates", prop.ForAll(
		func(ref, slOff, tpOff float64) bool {
			// Keep tp positive so the zero-disables-check rule is not hit.
			if ref-tpOff <= 0 {
				return true
			}
			return validateStops(models.OrderSideSell, ref, ref+slOff, ref-tpOff) == nil
		},
		refGen, offsetGen, offsetGen,
	))

	properties.Property("sell with tp at or above reference rejects", prop.ForAll(
		func(ref, off float64) bool {
			return validateStops(models.OrderSideSell, ref, 0, ref+off) != nil
		},
		refGen, offsetGen,
	))

	properties.Property("omitted stops always validate", prop.ForAll(
		func(ref float64) bool {
			return validateStops(models.OrderSideBuy, ref, 0, 0) == nil &&
				validateStops(models.OrderSideSell, ref, 0, 0) == nil
		},
		refGen,
	))

	properties.TestingRun(t)
}

// Property: slippage is bounded. For any reference price, the slipped
// execution price stays within ref*(1±bound).
func TestProperty_SlippageBounded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	eng := NewExecutionEngine(nil, nil, Config{
		Leverage:      10,
		SlippageBound: 0.0005,
		Instruments:   models.DefaultInstruments(),
	}, zerolog.Nop())

	properties.Property("slipped price within bound", prop.ForAll(
		func(ref float64) bool {
			price := eng.slip(ref)
			return price >= ref*(1-0.0005) && price <= ref*(1+0.0005)
		},
		gen.Float64Range(100, 100_000),
	))

	properties.TestingRun(t)
}
