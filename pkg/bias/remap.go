package bias

import (
	"github.com/shopspring/decimal"

	"github.com/fadedpez/wagerline/pkg/entities"
)

// Evaluator reports whether a target is paid on an outcome
type Evaluator interface {
	Pays(game entities.GameKind, target entities.Target, outcome entities.Outcome) bool
}

var (
	crashFloor = decimal.NewFromInt(1)
	crashStep  = decimal.RequireFromString("0.01")
)

// Remap returns the outcome nearest to o on which target does not pay. An
// outcome that already loses is returned unchanged, as is one for which no
// losing neighbour exists.
func Remap(eval Evaluator, game entities.GameKind, target entities.Target, o entities.Outcome) entities.Outcome {
	if !eval.Pays(game, target, o) {
		return o
	}

	var candidates []entities.Outcome
	switch game {
	case entities.GameWinGo:
		candidates = ring(o.Digit, 0, 10, func(v int) entities.Outcome {
			c := o.Clone()
			c.Digit = v
			return c
		})
	case entities.GameDice:
		candidates = ring(o.Face, 1, 6, func(v int) entities.Outcome {
			c := o.Clone()
			c.Face = v
			return c
		})
	case entities.GameWheel:
		candidates = ring(o.Segment, 0, entities.WheelSegments, func(v int) entities.Outcome {
			c := o.Clone()
			c.Segment = v
			return c
		})
	case entities.GameDragonTiger, entities.GamePlayerBanker:
		candidates = cardCandidates(o)
	case entities.GameAviator, entities.GameLimbo, entities.GameSpaceRaid:
		c := o.Clone()
		c.Crash = decimal.Max(crashFloor, target.Multiplier.Sub(crashStep))
		candidates = []entities.Outcome{c}
	case entities.GameTower:
		c := o.Clone()
		c.Level = target.Number - 1
		if c.Level < 0 {
			c.Level = 0
		}
		candidates = []entities.Outcome{c}
	}

	for _, c := range candidates {
		if !eval.Pays(game, target, c) {
			return c
		}
	}
	return o
}

// ring lists values around v in order +1, -1, +2, -2 ... wrapping within
// [lo, lo+n)
func ring(v, lo, n int, build func(int) entities.Outcome) []entities.Outcome {
	out := make([]entities.Outcome, 0, n-1)
	for step := 1; len(out) < n-1; step++ {
		for _, delta := range []int{step, -step} {
			w := ((v-lo+delta)%n+n)%n + lo
			if w == v || len(out) == n-1 {
				continue
			}
			if step*2 == n && delta < 0 {
				continue
			}
			out = append(out, build(w))
		}
	}
	return out
}

// cardCandidates swaps the two sides first, then bumps side B by one rank
// in either direction
func cardCandidates(o entities.Outcome) []entities.Outcome {
	if len(o.Cards) != 2 {
		return nil
	}

	swapped := o.Clone()
	swapped.Cards[0], swapped.Cards[1] = swapped.Cards[1], swapped.Cards[0]
	candidates := []entities.Outcome{swapped}

	b := o.Cards[1].Rank.Value()
	for _, v := range []int{b + 1, b - 1} {
		if v < 1 || v > len(entities.Ranks) {
			continue
		}
		c := o.Clone()
		c.Cards[1] = entities.NewCard(c.Cards[1].Suit, entities.RankOf(v))
		candidates = append(candidates, c)
	}
	return candidates
}
