// Package bias decides when a draw is steered away from a bet and computes
// the steered outcome. Both halves are independent of the generator and the
// ledger so they can be tested and tuned alone.
package bias

import (
	"github.com/shopspring/decimal"

	"github.com/fadedpez/wagerline/pkg/entities"
	"github.com/fadedpez/wagerline/pkg/outcome"
)

// Config holds the policy constants
type Config struct {
	Disabled                  bool
	LargeBetRatio             float64
	LargeBetProbability       float64
	BaseProbability           float64
	NearCompletionRatio       float64
	NearCompletionProbability float64
}

// DefaultConfig returns the production constants
func DefaultConfig() Config {
	return Config{
		LargeBetRatio:             0.6,
		LargeBetProbability:       0.95,
		BaseProbability:           0.15,
		NearCompletionRatio:       0.10,
		NearCompletionProbability: 0.70,
	}
}

// Policy decides whether a bet is biased
type Policy struct {
	cfg    Config
	source outcome.Source

	largeBetRatio       decimal.Decimal
	nearCompletionRatio decimal.Decimal
}

// NewPolicy creates a policy drawing from source
func NewPolicy(cfg Config, source outcome.Source) *Policy {
	if source == nil {
		source = outcome.DefaultSource()
	}
	return &Policy{
		cfg:                 cfg,
		source:              source,
		largeBetRatio:       decimal.NewFromFloat(cfg.LargeBetRatio),
		nearCompletionRatio: decimal.NewFromFloat(cfg.NearCompletionRatio),
	}
}

// Enabled reports whether the policy can ever bias a bet
func (p *Policy) Enabled() bool {
	return !p.cfg.Disabled
}

// Probability returns the chance that a bet of stake against balance is
// biased, given the account's wager state
func (p *Policy) Probability(stake, balance decimal.Decimal, wager entities.WagerState) float64 {
	if p.cfg.Disabled {
		return 0
	}
	if stake.GreaterThanOrEqual(p.largeBetRatio.Mul(balance)) {
		return p.cfg.LargeBetProbability
	}
	if p.nearCompletion(wager) {
		return p.cfg.NearCompletionProbability
	}
	return p.cfg.BaseProbability
}

// ShouldBias draws once against Probability
func (p *Policy) ShouldBias(stake, balance decimal.Decimal, wager entities.WagerState) bool {
	prob := p.Probability(stake, balance, wager)
	if prob <= 0 {
		return false
	}
	return p.source.Float64() < prob
}

// nearCompletion is true once the outstanding requirement is a small
// fraction of the total imposed
func (p *Policy) nearCompletion(wager entities.WagerState) bool {
	if !wager.Total.IsPositive() || !wager.Required.IsPositive() {
		return false
	}
	return wager.Required.Div(wager.Total).LessThanOrEqual(p.nearCompletionRatio)
}
