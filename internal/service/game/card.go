package game

import "fmt"

// Card represents a playing card.
// Format: Rank + Suit (e.g., "As", "Td", "2c")
// Ranks: 2, 3, 4, 5, 6, 7, 8, 9, T, J, Q, K, A
// Suits: c (clubs), d (diamonds), h (hearts), s (spades)
type Card struct {
	Rank Rank
	Suit Suit
}

type Rank int

const (
	Two Rank = iota + 2
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

type Suit byte

const (
	Clubs    Suit = 'c'
	Diamonds Suit = 'd'
	Hearts   Suit = 'h'
	Spades   Suit = 's'
)

var (
	allSuits = [4]Suit{Clubs, Diamonds, Hearts, Spades}
	allRanks = [13]Rank{Two, Three, Four, Five, Six, Seven, Eight, Nine, Ten, Jack, Queen, King, Ace}
)

const rankChars = "  23456789TJQKA"

// Value is the blackjack value of the rank with aces counted high.
func (r Rank) Value() int {
	switch {
	case r == Ace:
		return 11
	case r >= Ten:
		return 10
	default:
		return int(r)
	}
}

func (c Card) String() string {
	if c.Rank < Two || c.Rank > Ace {
		return "??"
	}
	return fmt.Sprintf("%c%c", rankChars[c.Rank], c.Suit)
}

func (c Card) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Card) UnmarshalText(text []byte) error {
	parsed, err := ParseCard(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCard reads the two character notation used in snapshots and logs.
func ParseCard(code string) (Card, error) {
	if len(code) != 2 {
		return Card{}, fmt.Errorf("invalid card %q", code)
	}
	var rank Rank
	switch r := code[0]; r {
	case '2', '3', '4', '5', '6', '7', '8', '9':
		rank = Rank(r - '0')
	case 'T':
		rank = Ten
	case 'J':
		rank = Jack
	case 'Q':
		rank = Queen
	case 'K':
		rank = King
	case 'A':
		rank = Ace
	default:
		return Card{}, fmt.Errorf("invalid rank in card %q", code)
	}
	suit := Suit(code[1])
	switch suit {
	case Clubs, Diamonds, Hearts, Spades:
	default:
		return Card{}, fmt.Errorf("invalid suit in card %q", code)
	}
	return Card{Rank: rank, Suit: suit}, nil
}

// MustParseCards is a test and scripting helper; it panics on bad input.
func MustParseCards(codes ...string) []Card {
	cards := make([]Card, len(codes))
	for i, code := range codes {
		c, err := ParseCard(code)
		if err != nil {
			panic(err)
		}
		cards[i] = c
	}
	return cards
}

// NewDeck returns a sorted 52-card deck.
func NewDeck() []Card {
	deck := make([]Card, 0, 52)
	for _, s := range allSuits {
		for _, r := range allRanks {
			deck = append(deck, Card{Rank: r, Suit: s})
		}
	}
	return deck
}
