// Package oracle provides the price feed: a continuously updating best
// bid/ask quote per instrument, either synthetically generated or relayed
// from a live broker feed.
package oracle

import (
	"context"

	"propdesk/internal/models"
)

// Oracle is the price feed contract consumed by the execution engine, the
// equity monitor, the risk manager and bots. GetQuote must be safe to call
// concurrently at any time and always returns the most recently written
// snapshot, or nil if no tick has occurred yet (market closed).
type Oracle interface {
	Start(ctx context.Context) error
	Stop()
	GetQuote(symbol models.Symbol) *models.Quote
	OnTick(handler func(models.Tick))
}

// quoteBoard holds the latest snapshot per symbol. Writers replace the whole
// quote under the lock so readers never observe a partially updated one.
type quoteBoard struct {
	quotes map[models.Symbol]models.Quote
}

func newQuoteBoard() *quoteBoard {
	return &quoteBoard{quotes: make(map[models.Symbol]models.Quote)}
}

func (b *quoteBoard) put(q models.Quote) {
	b.quotes[q.Symbol] = q
}

func (b *quoteBoard) get(symbol models.Symbol) *models.Quote {
	q, ok := b.quotes[symbol]
	if !ok {
		return nil
	}
	return &q
}
