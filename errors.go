package flowledger

import (
	"errors"

	"github.com/xraph/flowledger/schedule"
	"github.com/xraph/flowledger/store"
	"github.com/xraph/flowledger/types"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors. ErrAlreadyExists is shared with the store package so
	// duplicate creates surface the same sentinel from every backend.
	ErrNotFound      = errors.New("flowledger: not found")
	ErrAlreadyExists = store.ErrAlreadyExists
	ErrInvalidInput  = errors.New("flowledger: invalid input")

	// Account errors
	ErrAccountNotFound = errors.New("flowledger: account not found")

	// Balance errors. ErrInsufficientBalance is shared with the types
	// package so Cash operations and engine operations fail identically.
	ErrInsufficientBalance = types.ErrInsufficientBalance

	// Schedule errors
	ErrTimeInversion = schedule.ErrTimeInversion
	ErrOverflow      = schedule.ErrOverflow

	// Flow errors
	ErrFlowNotFound = errors.New("flowledger: flow not found")
	ErrSelfFlow     = errors.New("flowledger: flow payer is a cluster provider")

	// Cluster errors
	ErrClusterNotFound = errors.New("flowledger: cluster not found")
	ErrNoProviders     = errors.New("flowledger: cluster has no providers")

	// Transfer errors
	ErrTransferFailed = errors.New("flowledger: native transfer failed")
)

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrFlowNotFound) ||
		errors.Is(err, ErrClusterNotFound)
}

// IsInsufficientBalance returns true if the error reports a balance that
// cannot cover the requested operation.
func IsInsufficientBalance(err error) bool {
	return errors.Is(err, ErrInsufficientBalance)
}

// IsArithmetic returns true if the error is a schedule arithmetic failure:
// a time inversion or an overflow.
func IsArithmetic(err error) bool {
	return errors.Is(err, ErrTimeInversion) || errors.Is(err, ErrOverflow)
}
