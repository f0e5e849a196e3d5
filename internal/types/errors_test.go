package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ErrorTestSuite struct {
	suite.Suite
}

func TestErrorSuite(t *testing.T) {
	suite.Run(t, new(ErrorTestSuite))
}

func (s *ErrorTestSuite) TestNewGameError() {
	// Setup
	code := ErrAccountNotFound
	message := "account not found"

	// Execute
	err := NewGameError(code, message)

	// Assert
	s.Equal(code, err.Code, "Error code should match")
	s.Equal(message, err.Message, "Error message should match")
	s.Nil(err.Err, "Underlying error should be nil")
}

func (s *ErrorTestSuite) TestWrapError() {
	// Setup
	code := ErrStoreUnavailable
	message := "store error"
	underlying := errors.New("connection refused")

	// Execute
	err := WrapError(code, message, underlying)

	// Assert
	s.Equal(code, err.Code, "Error code should match")
	s.Equal(message, err.Message, "Error message should match")
	s.Equal(underlying, err.Err, "Underlying error should match")
	s.ErrorIs(err, underlying, "Wrapped error should unwrap to the cause")
}

func (s *ErrorTestSuite) TestErrorString() {
	testCases := []struct {
		name     string
		err      *GameError
		expected string
	}{
		{
			name:     "Simple error",
			err:      NewGameError(ErrInsufficientBalance, "balance too low"),
			expected: "INSUFFICIENT_BALANCE: balance too low",
		},
		{
			name:     "Wrapped error",
			err:      WrapError(ErrStoreUnavailable, "store error", errors.New("connection refused")),
			expected: "STORE_UNAVAILABLE: store error (connection refused)",
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			s.Equal(tc.expected, tc.err.Error(), "Error string should match expected format")
		})
	}
}

func (s *ErrorTestSuite) TestIsGameError() {
	// Setup
	gameErr := NewGameError(ErrAccountNotFound, "account not found")
	wrapped := fmt.Errorf("ledger.Apply: %w", gameErr)
	regularErr := errors.New("regular error")

	testCases := []struct {
		name     string
		err      error
		code     ErrorCode
		expected bool
	}{
		{name: "Matching game error", err: gameErr, code: ErrAccountNotFound, expected: true},
		{name: "Wrapped game error", err: wrapped, code: ErrAccountNotFound, expected: true},
		{name: "Non-matching game error", err: gameErr, code: ErrInternalError, expected: false},
		{name: "Regular error", err: regularErr, code: ErrAccountNotFound, expected: false},
		{name: "Nil error", err: nil, code: ErrAccountNotFound, expected: false},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			result := IsGameError(tc.err, tc.code)
			s.Equal(tc.expected, result, "IsGameError result should match expected value")
		})
	}
}

func (s *ErrorTestSuite) TestAs() {
	// Setup
	gameErr := NewGameError(ErrBetNotFound, "bet not found")
	regularErr := errors.New("regular error")

	testCases := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "Game error", err: gameErr, expected: true},
		{name: "Wrapped game error", err: fmt.Errorf("op: %w", gameErr), expected: true},
		{name: "Regular error", err: regularErr, expected: false},
		{name: "Nil error", err: nil, expected: false},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			var target *GameError
			result := As(tc.err, &target)
			s.Equal(tc.expected, result, "As result should match expected value")
			if tc.expected {
				s.Equal(gameErr, target, "Target should be set to the game error")
			}
		})
	}
}

func (s *ErrorTestSuite) TestClassification() {
	testCases := []struct {
		name      string
		err       error
		client    bool
		retryable bool
	}{
		{name: "Insufficient balance", err: NewGameError(ErrInsufficientBalance, "x"), client: true},
		{name: "Invalid target", err: NewGameError(ErrInvalidBetTarget, "x"), client: true},
		{name: "Round closed", err: NewGameError(ErrRoundClosedForBetting, "x"), client: true},
		{name: "Conflict", err: NewGameError(ErrConflictExceededRetries, "x"), retryable: true},
		{name: "Store unavailable", err: NewGameError(ErrStoreUnavailable, "x"), retryable: true},
		{name: "Plain error", err: errors.New("boom")},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			s.Equal(tc.client, IsClientError(tc.err))
			s.Equal(tc.retryable, IsRetryable(tc.err))
		})
	}
}
