package bots

// EMACross is a classic two-EMA crossover: long when the fast EMA is above
// the slow one, short when below, exit on the reverse cross.
type EMACross struct {
	fast int
	slow int
}

// NewEMACross returns an EMA crossover strategy with the given fast and
// slow periods (fast must be shorter).
func NewEMACross(fast, slow int) *EMACross {
	if fast >= slow {
		fast, slow = slow, fast
	}
	return &EMACross{fast: fast, slow: slow}
}

func (s *EMACross) ID() string { return "ema_cross" }

// WindowSize wants extra history past the slow period so the EMAs have
// settled before the first signal.
func (s *EMACross) WindowSize() int { return s.slow * 2 }

func (s *EMACross) Evaluate(window []float64, position int) Signal {
	if len(window) < s.WindowSize() {
		return SignalHold
	}
	fast := computeEMA(window, s.fast)
	slow := computeEMA(window, s.slow)

	if position == 0 {
		switch {
		case fast > slow:
			return SignalBuy
		case fast < slow:
			return SignalSell
		}
		return SignalHold
	}

	if position > 0 && fast < slow {
		return SignalExit
	}
	if position < 0 && fast > slow {
		return SignalExit
	}
	return SignalHold
}

// computeEMA seeds with an SMA of the first `period` prices and smooths
// forward over the rest of the window.
func computeEMA(prices []float64, period int) float64 {
	if len(prices) < period {
		return 0
	}
	var sum float64
	for _, p := range prices[:period] {
		sum += p
	}
	ema := sum / float64(period)

	k := 2.0 / float64(period+1)
	for _, p := range prices[period:] {
		ema = p*k + ema*(1-k)
	}
	return ema
}
