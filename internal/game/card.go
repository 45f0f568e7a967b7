package game

import (
	"fmt"
	"strings"
)

// Suit is one of the four french suits.
type Suit string

// Rank is a card rank; tens are "10", court cards single letters.
type Rank string

const (
	Hearts   Suit = "hearts"
	Diamonds Suit = "diamonds"
	Clubs    Suit = "clubs"
	Spades   Suit = "spades"
)

var Suits = []Suit{Hearts, Diamonds, Clubs, Spades}

var Ranks = []Rank{"A", "2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K"}

// Card is a single playing card. The canonical wire id is "<suit>-<rank>".
type Card struct {
	Suit Suit `json:"suit"`
	Rank Rank `json:"rank"`
}

// ID returns the canonical card id, e.g. "hearts-10".
func (c Card) ID() string {
	return string(c.Suit) + "-" + string(c.Rank)
}

// ParseCard parses a canonical card id. The suit is matched
// case-insensitively, the rank as-is except lowercase court letters.
func ParseCard(id string) (Card, error) {
	idx := strings.IndexByte(id, '-')
	if idx <= 0 || idx == len(id)-1 {
		return Card{}, fmt.Errorf("%w: %q", ErrBadCardID, id)
	}

	suit := Suit(strings.ToLower(id[:idx]))
	rank := Rank(strings.ToUpper(id[idx+1:]))

	validSuit := false
	for _, s := range Suits {
		if s == suit {
			validSuit = true
			break
		}
	}
	if !validSuit {
		return Card{}, fmt.Errorf("%w: unknown suit in %q", ErrBadCardID, id)
	}

	for _, r := range Ranks {
		if r == rank {
			return Card{Suit: suit, Rank: rank}, nil
		}
	}
	return Card{}, fmt.Errorf("%w: unknown rank in %q", ErrBadCardID, id)
}

// Points returns the base point value counted from a taken pile at round
// end: 10 of diamonds is worth 2, the 2 of clubs 1, every A/10/J/Q/K 1,
// everything else 0.
func (c Card) Points() int {
	if c.Suit == Diamonds && c.Rank == "10" {
		return 2
	}
	if c.Suit == Clubs && c.Rank == "2" {
		return 1
	}
	switch c.Rank {
	case "A", "10", "J", "Q", "K":
		return 1
	}
	return 0
}

// NewDeck returns the 52 cards in canonical order.
func NewDeck() []Card {
	deck := make([]Card, 0, 52)
	for _, s := range Suits {
		for _, r := range Ranks {
			deck = append(deck, Card{Suit: s, Rank: r})
		}
	}
	return deck
}

var twoOfClubs = Card{Suit: Clubs, Rank: "2"}
