package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a specific error type
type ErrorCode string

const (
	// Client input errors; rejected synchronously, never retried
	ErrInsufficientBalance   ErrorCode = "INSUFFICIENT_BALANCE"
	ErrInvalidBetTarget      ErrorCode = "INVALID_BET_TARGET"
	ErrRoundClosedForBetting ErrorCode = "ROUND_CLOSED_FOR_BETTING"
	ErrInvalidArgument       ErrorCode = "INVALID_ARGUMENT"

	// Lookup errors
	ErrAccountNotFound ErrorCode = "ACCOUNT_NOT_FOUND"
	ErrBetNotFound     ErrorCode = "BET_NOT_FOUND"
	ErrGameNotFound    ErrorCode = "GAME_NOT_FOUND"

	// Transient errors; surfaced only after the retry budget is spent
	ErrConflictExceededRetries ErrorCode = "CONFLICT_EXCEEDED_RETRIES"
	ErrStoreUnavailable        ErrorCode = "STORE_UNAVAILABLE"

	// System errors
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
)

// GameError represents a domain error carrying a stable code
type GameError struct {
	Code    ErrorCode
	Message string
	Err     error // Underlying error, if any
}

// Error implements the error interface
func (e *GameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *GameError) Unwrap() error {
	return e.Err
}

// NewGameError creates a new GameError
func NewGameError(code ErrorCode, message string) *GameError {
	return &GameError{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error in a GameError
func WrapError(code ErrorCode, message string, err error) *GameError {
	return &GameError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsGameError checks if an error is a GameError and has a specific code
func IsGameError(err error, code ErrorCode) bool {
	var gameErr *GameError
	if err == nil {
		return false
	}
	if ok := As(err, &gameErr); !ok {
		return false
	}
	return gameErr.Code == code
}

// As finds the first GameError in err's chain
func As(err error, target **GameError) bool {
	if target == nil || err == nil {
		return false
	}
	return errors.As(err, target)
}

// CodeOf returns the code of the first GameError in err's chain, or
// ErrInternalError if there is none
func CodeOf(err error) ErrorCode {
	var gameErr *GameError
	if As(err, &gameErr) {
		return gameErr.Code
	}
	return ErrInternalError
}

// IsClientError reports whether err was caused by the caller's input
func IsClientError(err error) bool {
	switch CodeOf(err) {
	case ErrInsufficientBalance, ErrInvalidBetTarget, ErrRoundClosedForBetting,
		ErrInvalidArgument, ErrAccountNotFound, ErrBetNotFound, ErrGameNotFound:
		return true
	}
	return false
}

// IsRetryable reports whether the caller may retry after re-fetching the
// balance. The balance may or may not have been mutated.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case ErrConflictExceededRetries, ErrStoreUnavailable:
		return true
	}
	return false
}
