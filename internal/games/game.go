package games

import (
	"time"

	"github.com/fadedpez/wagerline/pkg/entities"
)

// Mode is how a game settles bets
type Mode string

const (
	// ModeInstant settles each bet on its own draw
	ModeInstant Mode = "instant"

	// ModeRound collects bets for a shared round on a fixed timer
	ModeRound Mode = "round"
)

// Definition describes a playable game
type Definition struct {
	Name string            `json:"name"`
	Kind entities.GameKind `json:"kind"`
	Mode Mode              `json:"mode"`

	// Shared-round timings, zero for instant games
	Betting     time.Duration `json:"betting,omitempty"`
	RevealDelay time.Duration `json:"reveal_delay,omitempty"`
}

// Shared reports whether the game runs on the round lifecycle
func (d Definition) Shared() bool {
	return d.Mode == ModeRound
}

// Timings holds the betting windows of the shared games
type Timings struct {
	WinGo       time.Duration
	DragonTiger time.Duration
	Aviator     time.Duration
	RevealDelay time.Duration
}

// Defaults builds the standard catalogue. WinGo, Dragon/Tiger and Aviator
// run as shared rounds; everything else settles instantly.
func Defaults(t Timings) []Definition {
	return []Definition{
		{Name: "wingo", Kind: entities.GameWinGo, Mode: ModeRound, Betting: t.WinGo, RevealDelay: t.RevealDelay},
		{Name: "dragon_tiger", Kind: entities.GameDragonTiger, Mode: ModeRound, Betting: t.DragonTiger, RevealDelay: t.RevealDelay},
		{Name: "aviator", Kind: entities.GameAviator, Mode: ModeRound, Betting: t.Aviator, RevealDelay: t.RevealDelay},
		{Name: "dice", Kind: entities.GameDice, Mode: ModeInstant},
		{Name: "player_banker", Kind: entities.GamePlayerBanker, Mode: ModeInstant},
		{Name: "limbo", Kind: entities.GameLimbo, Mode: ModeInstant},
		{Name: "space_raid", Kind: entities.GameSpaceRaid, Mode: ModeInstant},
		{Name: "tower", Kind: entities.GameTower, Mode: ModeInstant},
		{Name: "wheel", Kind: entities.GameWheel, Mode: ModeInstant},
	}
}
