package bias

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/fadedpez/wagerline/pkg/entities"
	"github.com/fadedpez/wagerline/pkg/payout"
)

type RemapTestSuite struct {
	suite.Suite
	table *payout.Table
}

func (s *RemapTestSuite) SetupTest() {
	s.table = payout.NewTable(payout.Options{Strict: true})
}

func (s *RemapTestSuite) remapLoses(game entities.GameKind, target entities.Target, o entities.Outcome) entities.Outcome {
	s.T().Helper()
	s.Require().True(s.table.Pays(game, target, o), "precondition: %s pays on %s", target, o)
	r := Remap(s.table, game, target, o)
	s.False(s.table.Pays(game, target, r), "%s still pays on %s", target, r)
	return r
}

func (s *RemapTestSuite) TestWinGoNearestDigit() {
	r := s.remapLoses(entities.GameWinGo,
		entities.Target{Kind: entities.TargetNumber, Number: 4},
		entities.Outcome{Game: entities.GameWinGo, Digit: 4})
	s.Equal(5, r.Digit)

	r = s.remapLoses(entities.GameWinGo,
		entities.Target{Kind: entities.TargetGreen},
		entities.Outcome{Game: entities.GameWinGo, Digit: 9})
	s.Equal(0, r.Digit, "wraps around to the nearest even digit")

	r = s.remapLoses(entities.GameWinGo,
		entities.Target{Kind: entities.TargetBig},
		entities.Outcome{Game: entities.GameWinGo, Digit: 7})
	s.Equal(0, r.Digit, "8, 6, 9 and 5 are all big; 0 is three steps away")
}

func (s *RemapTestSuite) TestDice() {
	r := s.remapLoses(entities.GameDice,
		entities.Target{Kind: entities.TargetEven},
		entities.Outcome{Game: entities.GameDice, Face: 6})
	s.Equal(1, r.Face)
}

func (s *RemapTestSuite) TestCards() {
	o := entities.Outcome{Game: entities.GameDragonTiger, Cards: []entities.Card{
		entities.NewCard(entities.Hearts, entities.King),
		entities.NewCard(entities.Clubs, entities.Two),
	}}
	r := s.remapLoses(entities.GameDragonTiger, entities.Target{Kind: entities.TargetDragon}, o)
	s.Equal(entities.Two, r.Cards[0].Rank)
	s.Equal(entities.King, o.Cards[0].Rank, "input is not mutated")

	tie := entities.Outcome{Game: entities.GamePlayerBanker, Cards: []entities.Card{
		entities.NewCard(entities.Hearts, entities.King),
		entities.NewCard(entities.Clubs, entities.King),
	}}
	r = s.remapLoses(entities.GamePlayerBanker, entities.Target{Kind: entities.TargetTie}, tie)
	s.Equal(entities.Queen, r.Cards[1].Rank)
}

func (s *RemapTestSuite) TestCrash() {
	target := entities.Target{Kind: entities.TargetCashout, Multiplier: decimal.RequireFromString("2.50")}
	r := s.remapLoses(entities.GameAviator, target,
		entities.Outcome{Game: entities.GameAviator, Crash: decimal.RequireFromString("7.31")})
	s.True(r.Crash.Equal(decimal.RequireFromString("2.49")))

	low := entities.Target{Kind: entities.TargetCashout, Multiplier: decimal.RequireFromString("1.01")}
	r = s.remapLoses(entities.GameLimbo, low,
		entities.Outcome{Game: entities.GameLimbo, Crash: decimal.RequireFromString("3")})
	s.True(r.Crash.Equal(decimal.NewFromInt(1)), "never below 1.00")
}

func (s *RemapTestSuite) TestTower() {
	r := s.remapLoses(entities.GameTower,
		entities.Target{Kind: entities.TargetLevel, Number: 3},
		entities.Outcome{Game: entities.GameTower, Level: 6})
	s.Equal(2, r.Level)
}

func (s *RemapTestSuite) TestWheel() {
	r := s.remapLoses(entities.GameWheel,
		entities.Target{Kind: entities.TargetSpin},
		entities.Outcome{Game: entities.GameWheel, Segment: 11})
	s.Equal(12, r.Segment)
}

func (s *RemapTestSuite) TestLosingOutcomeUnchanged() {
	o := entities.Outcome{Game: entities.GameWinGo, Digit: 2}
	s.Equal(o, Remap(s.table, entities.GameWinGo, entities.Target{Kind: entities.TargetGreen}, o))
}

func TestRemapSuite(t *testing.T) {
	suite.Run(t, new(RemapTestSuite))
}
