// Package stream provides real-time tick distribution to multiple consumers.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"propdesk/internal/models"
)

// HubConfig holds configuration for the stream hub.
type HubConfig struct {
	// BufferSize is the size of the internal tick channel buffer.
	BufferSize int
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BufferSize:           1000,
		SubscriberBufferSize: 100,
	}
}

// Hub fans ticks from the oracle out to per-symbol subscribers (bots and
// any external streaming layer). Slow consumers drop ticks rather than
// stalling the broadcast loop.
type Hub struct {
	config      HubConfig
	mu          sync.RWMutex
	subscribers map[models.Symbol][]*Subscriber
	tickChan    chan models.Tick
	done        chan struct{}
	started     bool

	statsMu        sync.Mutex
	ticksReceived  uint64
	ticksBroadcast uint64
	ticksDropped   uint64
}

// Subscriber represents a channel subscriber with metadata.
type Subscriber struct {
	ID           string
	Symbol       models.Symbol
	Channel      chan models.Tick
	DroppedCount int
	CreatedAt    time.Time
}

// NewHub creates a new stream hub with default configuration.
func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig())
}

// NewHubWithConfig creates a new stream hub with custom configuration.
func NewHubWithConfig(config HubConfig) *Hub {
	return &Hub{
		config:      config,
		subscribers: make(map[models.Symbol][]*Subscriber),
		tickChan:    make(chan models.Tick, config.BufferSize),
		done:        make(chan struct{}),
	}
}

// Start begins the hub's distribution loop.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.mu.Unlock()

	go h.broadcastLoop(ctx)
}

func (h *Hub) broadcastLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case tick := <-h.tickChan:
			h.statsMu.Lock()
			h.ticksReceived++
			h.statsMu.Unlock()

			h.broadcast(tick)
		}
	}
}

// Stop stops the hub and closes all subscriber channels.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return
	}
	close(h.done)
	h.started = false

	for symbol, subs := range h.subscribers {
		for _, sub := range subs {
			close(sub.Channel)
		}
		delete(h.subscribers, symbol)
	}
}

// Publish enqueues a tick for distribution. Safe to call from the oracle's
// emission goroutine; drops when the internal buffer is full.
func (h *Hub) Publish(tick models.Tick) {
	select {
	case h.tickChan <- tick:
	default:
		h.statsMu.Lock()
		h.ticksDropped++
		h.statsMu.Unlock()
	}
}

// Subscribe adds a subscriber for a symbol and returns it. Reads come from
// sub.Channel; call Unsubscribe with the subscriber ID when done.
func (h *Hub) Subscribe(symbol models.Symbol) *Subscriber {
	sub := &Subscriber{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Channel:   make(chan models.Tick, h.config.SubscriberBufferSize),
		CreatedAt: time.Now(),
	}

	h.mu.Lock()
	h.subscribers[symbol] = append(h.subscribers[symbol], sub)
	h.mu.Unlock()

	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for symbol, subs := range h.subscribers {
		for i, sub := range subs {
			if sub.ID == id {
				h.subscribers[symbol] = append(subs[:i], subs[i+1:]...)
				close(sub.Channel)
				return true
			}
		}
	}
	return false
}

func (h *Hub) broadcast(tick models.Tick) {
	// Sends stay under the read lock: Stop and Unsubscribe close channels
	// under the write lock, so a channel can never be closed mid-send. The
	// sends are non-blocking, keeping the critical section short.
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscribers[tick.Symbol] {
		select {
		case sub.Channel <- tick:
			h.statsMu.Lock()
			h.ticksBroadcast++
			h.statsMu.Unlock()
		default:
			// Slow consumer: drop rather than stall the loop.
			sub.DroppedCount++
			h.statsMu.Lock()
			h.ticksDropped++
			h.statsMu.Unlock()
		}
	}
}

// Stats reports hub throughput counters.
func (h *Hub) Stats() (received, broadcast, dropped uint64) {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	return h.ticksReceived, h.ticksBroadcast, h.ticksDropped
}

// SubscriberCount returns the number of subscribers for a symbol.
func (h *Hub) SubscriberCount(symbol models.Symbol) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[symbol])
}
