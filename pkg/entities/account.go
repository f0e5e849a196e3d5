package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account represents a player's balance and rollover state
type Account struct {
	ID            string          `json:"id"`
	Balance       decimal.Decimal `json:"balance"`
	WagerRequired decimal.Decimal `json:"wager_required"` // Bet volume still owed before bonus funds are free
	WagerTotal    decimal.Decimal `json:"wager_total"`    // WagerRequired as it was when last set
	TotalBet      decimal.Decimal `json:"total_bet"`
	TotalDeposit  decimal.Decimal `json:"total_deposit"`
	Sequence      int64           `json:"sequence"` // Number of committed ledger applies
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewAccount creates an empty account
func NewAccount(id string, now time.Time) *Account {
	return &Account{
		ID:            id,
		Balance:       decimal.Zero,
		WagerRequired: decimal.Zero,
		WagerTotal:    decimal.Zero,
		TotalBet:      decimal.Zero,
		TotalDeposit:  decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Wager returns the rollover view of the account used by the bias policy
func (a *Account) Wager() WagerState {
	return WagerState{
		Required: a.WagerRequired,
		Total:    a.WagerTotal,
	}
}

// WagerState is the rollover requirement snapshot of an account
type WagerState struct {
	Required decimal.Decimal `json:"required"`
	Total    decimal.Decimal `json:"total"`
}

// Progress returns the fraction of the rollover already wagered, in [0,1].
// An account with no requirement is fully complete.
func (w WagerState) Progress() decimal.Decimal {
	if !w.Total.IsPositive() {
		return decimal.NewFromInt(1)
	}
	done := w.Total.Sub(w.Required)
	if done.IsNegative() {
		return decimal.Zero
	}
	p := done.Div(w.Total)
	if p.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return p
}

// EntryKind represents the type of ledger mutation
type EntryKind string

const (
	EntryKindBet        EntryKind = "BET"
	EntryKindWin        EntryKind = "WIN"
	EntryKindDeposit    EntryKind = "DEPOSIT"
	EntryKindWithdraw   EntryKind = "WITHDRAW"
	EntryKindGift       EntryKind = "GIFT"
	EntryKindBonus      EntryKind = "BONUS"
	EntryKindCommission EntryKind = "COMMISSION"
)

// IsDebit reports whether the kind takes money out of the balance
func (k EntryKind) IsDebit() bool {
	return k == EntryKindBet || k == EntryKindWithdraw
}

// AddsRollover reports whether credits of this kind impose a wager requirement
func (k EntryKind) AddsRollover() bool {
	return k == EntryKindGift || k == EntryKindBonus
}

// Valid reports whether k is a known kind
func (k EntryKind) Valid() bool {
	switch k {
	case EntryKindBet, EntryKindWin, EntryKindDeposit, EntryKindWithdraw,
		EntryKindGift, EntryKindBonus, EntryKindCommission:
		return true
	}
	return false
}

// CancelDescription marks the WIN entry that refunds a cancelled bet
const CancelDescription = "cancel"

// EntryStatus is the settlement status recorded on a ledger entry
type EntryStatus string

const (
	EntryStatusSuccess    EntryStatus = "SUCCESS"
	EntryStatusProcessing EntryStatus = "PROCESSING"
	EntryStatusFailed     EntryStatus = "FAILED"
)

// LedgerEntry is one immutable row of an account's transaction log
type LedgerEntry struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"account_id"`
	Kind         EntryKind       `json:"kind"`
	Amount       decimal.Decimal `json:"amount"` // Always unsigned; Kind carries the direction
	Status       EntryStatus     `json:"status"`
	Description  string          `json:"description"`
	ReferenceID  string          `json:"reference_id,omitempty"` // Bet intent or round reference
	Sequence     int64           `json:"sequence"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Timestamp    time.Time       `json:"timestamp"`
}
