package bots

// RSIMomentum trades in the direction of strong momentum: it buys when RSI
// crosses above the overbought line, sells when it crosses below oversold,
// and exits when RSI returns to the neutral band.
type RSIMomentum struct {
	period     int
	overbought float64
	oversold   float64
}

// NewRSIMomentum returns an RSI momentum strategy over the given lookback
// period (14 is the conventional default).
func NewRSIMomentum(period int) *RSIMomentum {
	return &RSIMomentum{
		period:     period,
		overbought: 70,
		oversold:   30,
	}
}

func (s *RSIMomentum) ID() string { return "rsi_momentum" }

// WindowSize needs period+1 prices for period deltas.
func (s *RSIMomentum) WindowSize() int { return s.period + 1 }

func (s *RSIMomentum) Evaluate(window []float64, position int) Signal {
	if len(window) < s.WindowSize() {
		return SignalHold
	}
	rsi := computeRSI(window, s.period)

	if position == 0 {
		switch {
		case rsi >= s.overbought:
			return SignalBuy
		case rsi <= s.oversold:
			return SignalSell
		}
		return SignalHold
	}

	// In a position: exit once momentum fades back into the neutral band.
	if position > 0 && rsi < 50 {
		return SignalExit
	}
	if position < 0 && rsi > 50 {
		return SignalExit
	}
	return SignalHold
}

// computeRSI is Wilder's smoothed RSI over the last `period` price changes.
func computeRSI(prices []float64, period int) float64 {
	if len(prices) < period+1 {
		return 50
	}
	start := len(prices) - period - 1

	var gains, losses float64
	for i := start + 1; i < len(prices); i++ {
		delta := prices[i] - prices[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	if losses == 0 {
		if gains == 0 {
			return 50
		}
		return 100
	}
	rs := (gains / float64(period)) / (losses / float64(period))
	return 100 - 100/(1+rs)
}
