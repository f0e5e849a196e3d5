package bias

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/fadedpez/wagerline/pkg/entities"
	"github.com/fadedpez/wagerline/pkg/outcome"
)

type PolicyTestSuite struct {
	suite.Suite
	policy *Policy
}

func (s *PolicyTestSuite) SetupTest() {
	s.policy = NewPolicy(DefaultConfig(), outcome.NewSeededSource(2024))
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func (s *PolicyTestSuite) TestLargeBetBiasRate() {
	biased := 0
	for i := 0; i < 1000; i++ {
		if s.policy.ShouldBias(dec(70), dec(100), entities.WagerState{}) {
			biased++
		}
	}
	s.GreaterOrEqual(biased, 930)
	s.LessOrEqual(biased, 970)
}

func (s *PolicyTestSuite) TestProbabilityTiers() {
	none := entities.WagerState{}
	s.Equal(0.95, s.policy.Probability(dec(60), dec(100), none), "stake at the ratio is large")
	s.Equal(0.15, s.policy.Probability(dec(59), dec(100), none))

	near := entities.WagerState{Required: dec(5), Total: dec(100)}
	s.Equal(0.70, s.policy.Probability(dec(10), dec(100), near))

	boundary := entities.WagerState{Required: dec(10), Total: dec(100)}
	s.Equal(0.70, s.policy.Probability(dec(10), dec(100), boundary))

	far := entities.WagerState{Required: dec(50), Total: dec(100)}
	s.Equal(0.15, s.policy.Probability(dec(10), dec(100), far))

	done := entities.WagerState{Required: decimal.Zero, Total: dec(100)}
	s.Equal(0.15, s.policy.Probability(dec(10), dec(100), done), "a satisfied requirement is not near completion")

	s.Equal(0.95, s.policy.Probability(dec(60), dec(100), near), "large bet dominates")
}

func (s *PolicyTestSuite) TestNearCompletionRate() {
	near := entities.WagerState{Required: dec(5), Total: dec(100)}
	biased := 0
	const trials = 10000
	for i := 0; i < trials; i++ {
		if s.policy.ShouldBias(dec(1), dec(100), near) {
			biased++
		}
	}
	s.InDelta(0.70, float64(biased)/trials, 0.03)
}

func (s *PolicyTestSuite) TestDisabled() {
	cfg := DefaultConfig()
	cfg.Disabled = true
	p := NewPolicy(cfg, outcome.NewSeededSource(1))
	for i := 0; i < 100; i++ {
		s.False(p.ShouldBias(dec(100), dec(100), entities.WagerState{}))
	}
}

func TestPolicySuite(t *testing.T) {
	suite.Run(t, new(PolicyTestSuite))
}
