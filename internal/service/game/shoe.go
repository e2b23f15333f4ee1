package game

import (
	"fmt"
	"math/rand"

	appErr "bj-service/pkg/errors"
)

const (
	defaultShoeDecks   = 4
	defaultShoeReserve = 26
)

type ShoeConfig struct {
	Decks   int
	Reserve int
}

func (c ShoeConfig) withDefaults() ShoeConfig {
	if c.Decks <= 0 {
		c.Decks = defaultShoeDecks
	}
	if c.Reserve <= 0 {
		c.Reserve = defaultShoeReserve
	}
	return c
}

// Shoe is the pool every draw of a table comes from. Cards are drawn from
// the tail. A shoe belongs to exactly one table and is not safe for
// concurrent use.
type Shoe struct {
	cfg     ShoeConfig
	rng     *rand.Rand
	cards   []Card
	refills int
}

func NewShoe(cfg ShoeConfig, rng *rand.Rand) *Shoe {
	s := &Shoe{cfg: cfg.withDefaults(), rng: rng}
	s.refill()
	s.refills = 0
	return s
}

// NewStackedShoe returns a shoe whose next draws yield cards in the given
// order. A shuffled block of fresh decks sits underneath so the reserve
// threshold is not hit while the stacked cards are consumed.
func NewStackedShoe(cfg ShoeConfig, rng *rand.Rand, cards []Card) *Shoe {
	s := NewShoe(cfg, rng)
	stacked := make([]Card, 0, len(s.cards)+len(cards))
	stacked = append(stacked, s.cards...)
	for i := len(cards) - 1; i >= 0; i-- {
		stacked = append(stacked, cards[i])
	}
	s.cards = stacked
	return s
}

func (s *Shoe) Remaining() int {
	return len(s.cards)
}

func (s *Shoe) Refills() int {
	return s.refills
}

// Draw removes n cards from the tail. The whole shoe is replaced with fresh
// shuffled decks first when fewer than Reserve cards, or fewer than n,
// remain.
func (s *Shoe) Draw(n int) []Card {
	if len(s.cards) < max(s.cfg.Reserve, n) {
		s.refill()
	}
	if n > len(s.cards) {
		panic(fmt.Errorf("%w: want %d, have %d", appErr.ErrShoeExhausted, n, len(s.cards)))
	}
	out := make([]Card, 0, n)
	for i := 0; i < n; i++ {
		last := len(s.cards) - 1
		out = append(out, s.cards[last])
		s.cards = s.cards[:last]
	}
	return out
}

func (s *Shoe) DrawOne() Card {
	return s.Draw(1)[0]
}

func (s *Shoe) refill() {
	cards := make([]Card, 0, s.cfg.Decks*52)
	for i := 0; i < s.cfg.Decks; i++ {
		cards = append(cards, NewDeck()...)
	}
	s.rng.Shuffle(len(cards), func(i, j int) { cards[i], cards[j] = cards[j], cards[i] })
	s.cards = cards
	s.refills++
}
