// Package payout maps (game, target, outcome) to a payout multiplier.
// Every function here is pure; the stake is applied by the caller.
package payout

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fadedpez/wagerline/internal/logging"
	"github.com/fadedpez/wagerline/internal/types"
	"github.com/fadedpez/wagerline/pkg/entities"
)

var (
	x1_2 = decimal.RequireFromString("1.2")
	x1_5 = decimal.RequireFromString("1.5")
	x2   = decimal.NewFromInt(2)
	x3   = decimal.NewFromInt(3)
	x4_5 = decimal.RequireFromString("4.5")
	x5_5 = decimal.RequireFromString("5.5")
	x9   = decimal.NewFromInt(9)

	// MinCashout is the lowest crash target a bet may name
	MinCashout = decimal.RequireFromString("1.01")

	// DefaultMaxCashout matches the generator's crash cap
	DefaultMaxCashout = decimal.NewFromInt(1000)
)

// TowerMultipliers pays a tower run that reaches level i+1
var TowerMultipliers = []decimal.Decimal{
	decimal.RequireFromString("1.45"),
	decimal.RequireFromString("2.18"),
	decimal.RequireFromString("3.27"),
	decimal.RequireFromString("4.91"),
	decimal.RequireFromString("7.36"),
	decimal.RequireFromString("11.04"),
	decimal.RequireFromString("16.56"),
	decimal.RequireFromString("24.84"),
}

// WheelMultipliers is the fixed segment layout, expected value 0.815
var WheelMultipliers = []decimal.Decimal{
	decimal.Zero, x1_2, decimal.Zero, x1_5, decimal.Zero,
	x2, decimal.Zero, x1_2, decimal.Zero, x1_5,
	decimal.Zero, x3, decimal.Zero, x1_2, decimal.Zero,
	x1_5, decimal.Zero, x2, decimal.Zero, x1_2,
}

// targets lists the target kinds each game accepts
var targets = map[entities.GameKind][]entities.TargetKind{
	entities.GameWinGo: {
		entities.TargetGreen, entities.TargetRed, entities.TargetViolet,
		entities.TargetNumber, entities.TargetBig, entities.TargetSmall,
	},
	entities.GameDice:         {entities.TargetOdd, entities.TargetEven, entities.TargetFace},
	entities.GameDragonTiger:  {entities.TargetDragon, entities.TargetTiger, entities.TargetTie},
	entities.GamePlayerBanker: {entities.TargetPlayer, entities.TargetBanker, entities.TargetTie},
	entities.GameAviator:      {entities.TargetCashout},
	entities.GameLimbo:        {entities.TargetCashout},
	entities.GameSpaceRaid:    {entities.TargetCashout},
	entities.GameTower:        {entities.TargetLevel},
	entities.GameWheel:        {entities.TargetSpin},
}

// Options configures a Table
type Options struct {
	// Strict panics on undefined combinations instead of paying zero
	Strict     bool
	MaxCashout decimal.Decimal
	Logger     *logging.Logger
}

// Table evaluates payouts
type Table struct {
	strict     bool
	maxCashout decimal.Decimal
	logger     *logging.Logger
}

// NewTable creates a payout table
func NewTable(opts Options) *Table {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if !opts.MaxCashout.GreaterThan(MinCashout) {
		opts.MaxCashout = DefaultMaxCashout
	}
	return &Table{
		strict:     opts.Strict,
		maxCashout: opts.MaxCashout,
		logger:     opts.Logger.Component("payout"),
	}
}

// Targets returns the target kinds game accepts
func Targets(game entities.GameKind) []entities.TargetKind {
	return append([]entities.TargetKind(nil), targets[game]...)
}

// ValidateTarget reports whether target is a well-formed bet on game
func (t *Table) ValidateTarget(game entities.GameKind, target entities.Target) error {
	kinds, ok := targets[game]
	if !ok {
		return types.NewGameError(types.ErrGameNotFound, fmt.Sprintf("unknown game %q", game))
	}

	accepted := false
	for _, k := range kinds {
		if k == target.Kind {
			accepted = true
			break
		}
	}
	if !accepted {
		return types.NewGameError(types.ErrInvalidBetTarget,
			fmt.Sprintf("%s does not accept %s bets", game, target.Kind))
	}

	switch target.Kind {
	case entities.TargetNumber:
		if target.Number < 0 || target.Number > 9 {
			return types.NewGameError(types.ErrInvalidBetTarget, "number must be between 0 and 9")
		}
	case entities.TargetFace:
		if target.Number < 1 || target.Number > 6 {
			return types.NewGameError(types.ErrInvalidBetTarget, "face must be between 1 and 6")
		}
	case entities.TargetLevel:
		if target.Number < 1 || target.Number > len(TowerMultipliers) {
			return types.NewGameError(types.ErrInvalidBetTarget,
				fmt.Sprintf("level must be between 1 and %d", len(TowerMultipliers)))
		}
	case entities.TargetCashout:
		if target.Multiplier.LessThan(MinCashout) || target.Multiplier.GreaterThan(t.maxCashout) {
			return types.NewGameError(types.ErrInvalidBetTarget,
				fmt.Sprintf("cashout must be between %s and %s", MinCashout, t.maxCashout))
		}
	}
	return nil
}

// Payout returns the multiplier target earns on outcome; zero means the bet
// lost
func (t *Table) Payout(game entities.GameKind, target entities.Target, outcome entities.Outcome) decimal.Decimal {
	if outcome.Game != game {
		return t.undefined(game, target, outcome)
	}

	var m decimal.Decimal
	var ok bool
	switch game {
	case entities.GameWinGo:
		m, ok = winGo(target, outcome.Digit)
	case entities.GameDice:
		m, ok = dice(target, outcome.Face)
	case entities.GameDragonTiger, entities.GamePlayerBanker:
		m, ok = cards(game, target, outcome.Cards)
	case entities.GameAviator, entities.GameLimbo, entities.GameSpaceRaid:
		m, ok = crash(target, outcome.Crash)
	case entities.GameTower:
		m, ok = tower(target, outcome.Level)
	case entities.GameWheel:
		m, ok = wheel(target, outcome.Segment)
	}
	if !ok {
		return t.undefined(game, target, outcome)
	}
	return m
}

// Pays reports whether target wins anything on outcome
func (t *Table) Pays(game entities.GameKind, target entities.Target, outcome entities.Outcome) bool {
	return t.Payout(game, target, outcome).IsPositive()
}

func (t *Table) undefined(game entities.GameKind, target entities.Target, outcome entities.Outcome) decimal.Decimal {
	if t.strict {
		panic(fmt.Sprintf("payout: undefined combination game=%s target=%s outcome=%s", game, target, outcome))
	}
	t.logger.Error("undefined payout combination",
		"game", game, "target", target.String(), "outcome", outcome.String())
	return decimal.Zero
}

func winGo(target entities.Target, digit int) (decimal.Decimal, bool) {
	if digit < 0 || digit > 9 {
		return decimal.Zero, false
	}
	odd := digit%2 == 1

	switch target.Kind {
	case entities.TargetGreen:
		if !odd {
			return decimal.Zero, true
		}
		if digit == 5 {
			return x1_5, true
		}
		return x2, true
	case entities.TargetRed:
		if odd {
			return decimal.Zero, true
		}
		if digit == 0 {
			return x1_5, true
		}
		return x2, true
	case entities.TargetViolet:
		return when(digit == 0 || digit == 5, x4_5), true
	case entities.TargetNumber:
		if target.Number < 0 || target.Number > 9 {
			return decimal.Zero, false
		}
		return when(digit == target.Number, x9), true
	case entities.TargetBig:
		return when(digit >= 5, x2), true
	case entities.TargetSmall:
		return when(digit <= 4, x2), true
	}
	return decimal.Zero, false
}

func dice(target entities.Target, face int) (decimal.Decimal, bool) {
	if face < 1 || face > 6 {
		return decimal.Zero, false
	}

	switch target.Kind {
	case entities.TargetOdd:
		return when(face%2 == 1, x2), true
	case entities.TargetEven:
		return when(face%2 == 0, x2), true
	case entities.TargetFace:
		if target.Number < 1 || target.Number > 6 {
			return decimal.Zero, false
		}
		return when(face == target.Number, x5_5), true
	}
	return decimal.Zero, false
}

// cards compares side A (dragon/player) against side B (tiger/banker)
func cards(game entities.GameKind, target entities.Target, drawn []entities.Card) (decimal.Decimal, bool) {
	if len(drawn) != 2 {
		return decimal.Zero, false
	}
	a, b := drawn[0].Rank.Value(), drawn[1].Rank.Value()
	if a == 0 || b == 0 {
		return decimal.Zero, false
	}

	sideA, sideB := entities.TargetDragon, entities.TargetTiger
	if game == entities.GamePlayerBanker {
		sideA, sideB = entities.TargetPlayer, entities.TargetBanker
	}

	switch target.Kind {
	case entities.TargetTie:
		return when(a == b, x9), true
	case sideA:
		return when(a > b, x2), true
	case sideB:
		return when(b > a, x2), true
	}
	return decimal.Zero, false
}

func crash(target entities.Target, point decimal.Decimal) (decimal.Decimal, bool) {
	if target.Kind != entities.TargetCashout || target.Multiplier.LessThan(MinCashout) {
		return decimal.Zero, false
	}
	return when(point.GreaterThanOrEqual(target.Multiplier), target.Multiplier), true
}

func tower(target entities.Target, cleared int) (decimal.Decimal, bool) {
	if target.Kind != entities.TargetLevel || target.Number < 1 || target.Number > len(TowerMultipliers) {
		return decimal.Zero, false
	}
	if cleared < 0 || cleared > len(TowerMultipliers) {
		return decimal.Zero, false
	}
	return when(cleared >= target.Number, TowerMultipliers[target.Number-1]), true
}

func wheel(target entities.Target, segment int) (decimal.Decimal, bool) {
	if target.Kind != entities.TargetSpin || segment < 0 || segment >= len(WheelMultipliers) {
		return decimal.Zero, false
	}
	return WheelMultipliers[segment], true
}

func when(cond bool, m decimal.Decimal) decimal.Decimal {
	if cond {
		return m
	}
	return decimal.Zero
}
