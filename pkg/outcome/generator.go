// Package outcome draws raw game results. It knows nothing about bets,
// balances or payouts.
package outcome

import (
	"github.com/shopspring/decimal"

	"github.com/fadedpez/wagerline/pkg/entities"
)

const (
	DefaultHouseConstant = 0.99
	DefaultMaxCrash      = 1000
	DefaultTowerTiles    = 3
	DefaultTowerSafe     = 2
)

// Params tunes a single draw. Zero fields fall back to defaults.
type Params struct {
	// Tower: each row has Tiles tiles of which SafeTiles are safe
	Tiles     int
	SafeTiles int
}

// Options configures a Generator
type Options struct {
	Source        Source
	HouseConstant float64 // k in k/(1-r)
	MaxCrash      decimal.Decimal
}

// Generator produces outcomes from a Source
type Generator struct {
	source        Source
	houseConstant float64
	maxCrash      decimal.Decimal
}

// NewGenerator creates a generator, filling unset options with defaults
func NewGenerator(opts Options) *Generator {
	if opts.Source == nil {
		opts.Source = DefaultSource()
	}
	if opts.HouseConstant <= 0 || opts.HouseConstant > 1 {
		opts.HouseConstant = DefaultHouseConstant
	}
	if !opts.MaxCrash.GreaterThan(decimal.NewFromInt(1)) {
		opts.MaxCrash = decimal.NewFromInt(DefaultMaxCrash)
	}
	return &Generator{
		source:        opts.Source,
		houseConstant: opts.HouseConstant,
		maxCrash:      opts.MaxCrash,
	}
}

// MaxCrash returns the crash multiplier cap
func (g *Generator) MaxCrash() decimal.Decimal {
	return g.maxCrash
}

// Generate draws one outcome for game. Unknown games yield the zero Outcome.
func (g *Generator) Generate(game entities.GameKind, params Params) entities.Outcome {
	switch game {
	case entities.GameWinGo:
		return entities.Outcome{Game: game, Digit: g.source.IntN(10)}
	case entities.GameDice:
		return entities.Outcome{Game: game, Face: g.source.IntN(6) + 1}
	case entities.GameDragonTiger, entities.GamePlayerBanker:
		return entities.Outcome{Game: game, Cards: []entities.Card{g.card(), g.card()}}
	case entities.GameAviator, entities.GameLimbo, entities.GameSpaceRaid:
		return entities.Outcome{Game: game, Crash: g.Crash()}
	case entities.GameTower:
		return entities.Outcome{Game: game, Level: g.tower(params)}
	case entities.GameWheel:
		return entities.Outcome{Game: game, Segment: g.source.IntN(entities.WheelSegments)}
	}
	return entities.Outcome{}
}

// Crash draws a crash multiplier: max(1, k/(1-r)) truncated to two
// decimals and capped at MaxCrash
func (g *Generator) Crash() decimal.Decimal {
	r := g.source.Float64()
	m := decimal.NewFromFloat(g.houseConstant / (1 - r)).Truncate(2)

	one := decimal.NewFromInt(1)
	if m.LessThan(one) {
		return one
	}
	if m.GreaterThan(g.maxCrash) {
		return g.maxCrash
	}
	return m
}

func (g *Generator) card() entities.Card {
	rank := entities.RankOf(g.source.IntN(13) + 1)
	suit := entities.Suits[g.source.IntN(len(entities.Suits))]
	return entities.NewCard(suit, rank)
}

// tower counts consecutive safe rows up to TowerLevels
func (g *Generator) tower(params Params) int {
	tiles, safe := params.Tiles, params.SafeTiles
	if tiles <= 0 || safe <= 0 || safe > tiles {
		tiles, safe = DefaultTowerTiles, DefaultTowerSafe
	}

	cleared := 0
	for cleared < entities.TowerLevels && g.source.IntN(tiles) < safe {
		cleared++
	}
	return cleared
}
