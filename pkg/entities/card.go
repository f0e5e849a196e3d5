package entities

import "fmt"

// Suit represents a card suit
type Suit string

const (
	Hearts   Suit = "HEARTS"
	Diamonds Suit = "DIAMONDS"
	Clubs    Suit = "CLUBS"
	Spades   Suit = "SPADES"
)

// Rank represents a card rank
type Rank string

const (
	Ace   Rank = "A"
	Two   Rank = "2"
	Three Rank = "3"
	Four  Rank = "4"
	Five  Rank = "5"
	Six   Rank = "6"
	Seven Rank = "7"
	Eight Rank = "8"
	Nine  Rank = "9"
	Ten   Rank = "10"
	Jack  Rank = "J"
	Queen Rank = "Q"
	King  Rank = "K"
)

// Ranks lists every rank from lowest to highest; Ace is low
var Ranks = []Rank{Ace, Two, Three, Four, Five, Six, Seven, Eight, Nine, Ten, Jack, Queen, King}

// Suits lists every suit
var Suits = []Suit{Hearts, Diamonds, Clubs, Spades}

// Value returns the comparison value of the rank, 1 (Ace) through 13 (King)
func (r Rank) Value() int {
	for i, rank := range Ranks {
		if rank == r {
			return i + 1
		}
	}
	return 0
}

// RankOf returns the rank with the given value, clamped to [1,13]
func RankOf(value int) Rank {
	if value < 1 {
		value = 1
	}
	if value > len(Ranks) {
		value = len(Ranks)
	}
	return Ranks[value-1]
}

// Card represents a playing card
type Card struct {
	Suit Suit `json:"suit"`
	Rank Rank `json:"rank"`
}

// NewCard creates a new card
func NewCard(suit Suit, rank Rank) Card {
	return Card{
		Suit: suit,
		Rank: rank,
	}
}

// String returns the string representation of the card
func (c Card) String() string {
	return fmt.Sprintf("%s of %s", c.Rank, c.Suit)
}
