package entities

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// GameKind identifies a game's outcome domain and payout rules
type GameKind string

const (
	GameWinGo        GameKind = "wingo"
	GameDice         GameKind = "dice"
	GameDragonTiger  GameKind = "dragon_tiger"
	GamePlayerBanker GameKind = "player_banker"
	GameAviator      GameKind = "aviator"
	GameLimbo        GameKind = "limbo"
	GameSpaceRaid    GameKind = "space_raid"
	GameTower        GameKind = "tower"
	GameWheel        GameKind = "wheel"
)

// GameKinds lists every supported game kind
var GameKinds = []GameKind{
	GameWinGo, GameDice, GameDragonTiger, GamePlayerBanker,
	GameAviator, GameLimbo, GameSpaceRaid, GameTower, GameWheel,
}

const (
	// WheelSegments is the number of segments on the wheel
	WheelSegments = 20

	// TowerLevels is the number of rows a tower run can clear
	TowerLevels = 8
)

// IsCrash reports whether the game draws a crash multiplier
func (g GameKind) IsCrash() bool {
	return g == GameAviator || g == GameLimbo || g == GameSpaceRaid
}

// IsCards reports whether the game compares two drawn cards
func (g GameKind) IsCards() bool {
	return g == GameDragonTiger || g == GamePlayerBanker
}

// TargetKind names what a bet is placed on
type TargetKind string

const (
	// WinGo
	TargetGreen  TargetKind = "GREEN"
	TargetRed    TargetKind = "RED"
	TargetViolet TargetKind = "VIOLET"
	TargetNumber TargetKind = "NUMBER"
	TargetBig    TargetKind = "BIG"
	TargetSmall  TargetKind = "SMALL"

	// Dice
	TargetOdd  TargetKind = "ODD"
	TargetEven TargetKind = "EVEN"
	TargetFace TargetKind = "FACE"

	// Two-sided card games
	TargetDragon TargetKind = "DRAGON"
	TargetTiger  TargetKind = "TIGER"
	TargetPlayer TargetKind = "PLAYER"
	TargetBanker TargetKind = "BANKER"
	TargetTie    TargetKind = "TIE"

	// Crash games
	TargetCashout TargetKind = "CASHOUT"

	// Tower
	TargetLevel TargetKind = "LEVEL"

	// Wheel
	TargetSpin TargetKind = "SPIN"
)

// Target is a game-specific bet selection. Only the fields relevant to Kind
// are set.
type Target struct {
	Kind       TargetKind      `json:"kind"`
	Number     int             `json:"number,omitempty"` // NUMBER, FACE and LEVEL
	Multiplier decimal.Decimal `json:"multiplier"`       // CASHOUT
}

func (t Target) String() string {
	switch t.Kind {
	case TargetNumber, TargetFace, TargetLevel:
		return fmt.Sprintf("%s %d", t.Kind, t.Number)
	case TargetCashout:
		return fmt.Sprintf("%s %sx", t.Kind, t.Multiplier.StringFixed(2))
	}
	return string(t.Kind)
}

// Outcome is the raw result of one draw. Only the fields relevant to Game
// are set.
type Outcome struct {
	Game    GameKind        `json:"game"`
	Digit   int             `json:"digit,omitempty"`   // wingo 0-9
	Face    int             `json:"face,omitempty"`    // dice 1-6
	Cards   []Card          `json:"cards,omitempty"`   // [0] dragon/player, [1] tiger/banker
	Crash   decimal.Decimal `json:"crash"`             // crash games
	Level   int             `json:"level,omitempty"`   // tower rows cleared
	Segment int             `json:"segment,omitempty"` // wheel index
}

// Clone returns a deep copy of the outcome
func (o Outcome) Clone() Outcome {
	c := o
	if o.Cards != nil {
		c.Cards = append([]Card(nil), o.Cards...)
	}
	return c
}

func (o Outcome) String() string {
	switch {
	case o.Game == GameWinGo:
		return fmt.Sprintf("digit %d", o.Digit)
	case o.Game == GameDice:
		return fmt.Sprintf("face %d", o.Face)
	case o.Game.IsCards() && len(o.Cards) == 2:
		return fmt.Sprintf("%s vs %s", o.Cards[0], o.Cards[1])
	case o.Game.IsCrash():
		return fmt.Sprintf("crash %sx", o.Crash.StringFixed(2))
	case o.Game == GameTower:
		return fmt.Sprintf("cleared %d", o.Level)
	case o.Game == GameWheel:
		return fmt.Sprintf("segment %d", o.Segment)
	}
	return string(o.Game)
}

// BetIntent is a player's wager for one round of one game
type BetIntent struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	Game      GameKind        `json:"game"`
	Target    Target          `json:"target"`
	Stake     decimal.Decimal `json:"stake"`
	PeriodID  int64           `json:"period_id,omitempty"`
	PlacedAt  time.Time       `json:"placed_at"`
}

// BetResult is what the presentation layer receives for a settled bet
type BetResult struct {
	IntentID     string          `json:"intent_id"`
	AccountID    string          `json:"account_id"`
	Game         GameKind        `json:"game"`
	Won          bool            `json:"won"`
	Multiplier   decimal.Decimal `json:"multiplier"`
	PayoutAmount decimal.Decimal `json:"payout_amount"`
	Outcome      Outcome         `json:"outcome"`
	Biased       bool            `json:"-"`
	PeriodID     int64           `json:"period_id,omitempty"`
	Entries      []*LedgerEntry  `json:"entries"`
}
