package models

import "time"

// OrderStatus represents the lifecycle state of a pending limit order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
)

// LimitOrder is a resting order waiting for its trigger price.
// Lifecycle: pending -> filled (matching pass) or pending -> cancelled
// (user action); terminal thereafter.
type LimitOrder struct {
	ID         string
	AccountID  string
	Symbol     Symbol
	Side       OrderSide
	Lots       int
	LimitPrice float64
	StopLoss   float64
	TakeProfit float64
	Status     OrderStatus
	PlacedAt   time.Time
	FilledAt   time.Time
}

// OrderRequest carries the caller-supplied parameters for order placement.
type OrderRequest struct {
	AccountID  string
	Symbol     Symbol
	Side       OrderSide
	Lots       int
	LimitPrice float64 // limit orders only
	StopLoss   float64 // optional, 0 = none
	TakeProfit float64 // optional, 0 = none
}
