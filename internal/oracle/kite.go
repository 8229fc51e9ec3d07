package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	kitemodels "github.com/zerodha/gokiteconnect/v4/models"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"

	"propdesk/internal/models"
)

// Default NSE index instrument tokens for the Kite WebSocket feed.
var defaultTokens = map[models.Symbol]uint32{
	models.NIFTY:     256265,
	models.BANKNIFTY: 260105,
}

// KiteOracle relays live quotes from the Kite Connect WebSocket feed. It is
// a drop-in replacement for the synthetic oracle: same GetQuote contract,
// same tick event shape.
type KiteOracle struct {
	apiKey      string
	accessToken string

	ticker       *kiteticker.Ticker
	symbolTokens map[models.Symbol]uint32
	tokenSymbols map[uint32]models.Symbol

	mu        sync.RWMutex
	board     *quoteBoard
	handlers  []func(models.Tick)
	connected bool
}

// KiteOracleConfig holds configuration for the live feed.
type KiteOracleConfig struct {
	APIKey      string
	AccessToken string
	// Tokens maps symbols to Kite instrument tokens. Defaults to the NSE
	// index tokens when empty.
	Tokens map[models.Symbol]uint32
}

// NewKiteOracle creates a new live-feed oracle.
func NewKiteOracle(cfg KiteOracleConfig) *KiteOracle {
	tokens := cfg.Tokens
	if len(tokens) == 0 {
		tokens = defaultTokens
	}

	tokenSymbols := make(map[uint32]models.Symbol, len(tokens))
	for symbol, token := range tokens {
		tokenSymbols[token] = symbol
	}

	return &KiteOracle{
		apiKey:       cfg.APIKey,
		accessToken:  cfg.AccessToken,
		symbolTokens: tokens,
		tokenSymbols: tokenSymbols,
		board:        newQuoteBoard(),
	}
}

// Start connects the WebSocket ticker and subscribes to the configured
// instruments. Reconnection and resubscription are handled via the ticker's
// callbacks.
func (o *KiteOracle) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.connected {
		o.mu.Unlock()
		return nil
	}
	o.ticker = kiteticker.New(o.apiKey, o.accessToken)
	o.mu.Unlock()

	connectedCh := make(chan struct{})

	o.ticker.OnConnect(func() {
		o.mu.Lock()
		o.connected = true
		o.mu.Unlock()

		o.subscribeAll()

		select {
		case connectedCh <- struct{}{}:
		default:
		}
	})

	o.ticker.OnReconnect(func(attempt int, delay time.Duration) {
		// Resubscription happens in OnConnect once the socket is back.
	})

	o.ticker.OnClose(func(code int, reason string) {
		o.mu.Lock()
		o.connected = false
		o.mu.Unlock()
	})

	o.ticker.OnTick(func(tick kitemodels.Tick) {
		o.publish(o.convertTick(tick))
	})

	go o.ticker.Serve()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-connectedCh:
		return nil
	case <-time.After(30 * time.Second):
		return fmt.Errorf("kite feed connection timeout")
	}
}

// Stop closes the WebSocket connection.
func (o *KiteOracle) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ticker != nil {
		o.ticker.Close()
		o.connected = false
	}
}

// GetQuote returns the latest snapshot, or nil before the first tick.
func (o *KiteOracle) GetQuote(symbol models.Symbol) *models.Quote {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.board.get(symbol)
}

// OnTick registers a tick handler.
func (o *KiteOracle) OnTick(handler func(models.Tick)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handlers = append(o.handlers, handler)
}

func (o *KiteOracle) subscribeAll() {
	tokens := make([]uint32, 0, len(o.symbolTokens))
	for _, token := range o.symbolTokens {
		tokens = append(tokens, token)
	}
	if err := o.ticker.Subscribe(tokens); err != nil {
		return
	}
	o.ticker.SetMode(kiteticker.ModeFull, tokens)
}

// convertTick maps a Kite tick into the engine's tick shape. When the feed
// carries no depth (index instruments), bid and ask collapse to the LTP.
func (o *KiteOracle) convertTick(tick kitemodels.Tick) models.Tick {
	o.mu.RLock()
	symbol := o.tokenSymbols[tick.InstrumentToken]
	o.mu.RUnlock()

	bid := tick.LastPrice
	ask := tick.LastPrice
	if len(tick.Depth.Buy) > 0 {
		bid = tick.Depth.Buy[0].Price
	}
	if len(tick.Depth.Sell) > 0 {
		ask = tick.Depth.Sell[0].Price
	}

	ts := tick.Timestamp.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	return models.Tick{
		Symbol:    symbol,
		LTP:       tick.LastPrice,
		Bid:       bid,
		Ask:       ask,
		Spread:    ask - bid,
		Timestamp: ts,
	}
}

func (o *KiteOracle) publish(t models.Tick) {
	if t.Symbol == "" {
		return
	}

	o.mu.Lock()
	o.board.put(models.Quote{
		Symbol:    t.Symbol,
		LTP:       t.LTP,
		Bid:       t.Bid,
		Ask:       t.Ask,
		Spread:    t.Spread,
		Timestamp: t.Timestamp,
	})
	handlers := make([]func(models.Tick), len(o.handlers))
	copy(handlers, o.handlers)
	o.mu.Unlock()

	for _, h := range handlers {
		h(t)
	}
}

var _ Oracle = (*KiteOracle)(nil)
