// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors. Every synchronous order rejection maps to one of
// these so callers can branch on the reason with errors.Is.
var (
	ErrMarketClosed       = errors.New("market is closed")
	ErrInsufficientMargin = errors.New("insufficient margin")
	ErrLotLimitExceeded   = errors.New("lot limit exceeded")
	ErrSpreadTooWide      = errors.New("spread too wide")
	ErrInvalidStopLoss    = errors.New("invalid stop loss placement")
	ErrInvalidTakeProfit  = errors.New("invalid take profit placement")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountNotActive   = errors.New("account is not active")
	ErrSessionExpired     = errors.New("trading session expired")
	ErrTradeNotFound      = errors.New("trade not found")
	ErrTradeAlreadyClosed = errors.New("trade already closed")
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderNotPending    = errors.New("order is not pending")
	ErrSymbolNotFound     = errors.New("symbol not found")
	ErrBotNotFound        = errors.New("bot not found")
	ErrStrategyForbidden  = errors.New("strategy not offered")
	ErrInputValidation    = errors.New("input validation failed")
)

// OrderError represents a rejection or failure of an order operation.
type OrderError struct {
	AccountID string
	Symbol    string
	Action    string
	Reason    string
	Err       error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order error [%s] %s %s: %s: %v", e.AccountID, e.Action, e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("order error [%s] %s %s: %s", e.AccountID, e.Action, e.Symbol, e.Reason)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError creates a new OrderError.
func NewOrderError(accountID, symbol, action, reason string, err error) *OrderError {
	return &OrderError{
		AccountID: accountID,
		Symbol:    symbol,
		Action:    action,
		Reason:    reason,
		Err:       err,
	}
}

// RiskError represents a breached evaluation rule.
type RiskError struct {
	Rule    string
	Current float64
	Limit   float64
	Message string
}

func (e *RiskError) Error() string {
	return fmt.Sprintf("risk violation [%s]: %s (current: %.2f, limit: %.2f)", e.Rule, e.Message, e.Current, e.Limit)
}

// NewRiskError creates a new RiskError.
func NewRiskError(rule string, current, limit float64, message string) *RiskError {
	return &RiskError{
		Rule:    rule,
		Current: current,
		Limit:   limit,
		Message: message,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// LedgerError represents a persistence-layer failure.
type LedgerError struct {
	Op  string
	Key string
	Err error
}

func (e *LedgerError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("ledger error [%s] %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("ledger error [%s]: %v", e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// NewLedgerError creates a new LedgerError.
func NewLedgerError(op, key string, err error) *LedgerError {
	return &LedgerError{Op: op, Key: key, Err: err}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
