package game

const dealerStandScore = 17

type DealerStatus string

const (
	DealerPlaying DealerStatus = ""
	DealerBust    DealerStatus = "BUST"
)

// DealerTarget is the score the dealer draws towards: the best score it still
// has to beat, never above 17. Busted and surrendered hands are already lost
// and naturals already win, so neither forces a draw. With nobody left to
// beat the target is 0 and the dealer keeps its first two cards.
func DealerTarget(sessions []*PlayerSession) int {
	highest := 0
	for _, p := range sessions {
		if !p.participating() {
			continue
		}
		if p.State == StateBust || p.State == StateSurrender {
			continue
		}
		if IsNatural(p.Hand) {
			continue
		}
		if score := Score(p.Hand); score > highest {
			highest = score
		}
	}
	if highest > dealerStandScore {
		return dealerStandScore
	}
	return highest
}

// PlayDealer draws one card at a time while the dealer is under target. It
// returns the final hand and the drawn cards in draw order; all decisions are
// made here, callers only decide how fast to show them.
func PlayDealer(shoe *Shoe, hand []Card, target int) ([]Card, []Card) {
	final := append([]Card(nil), hand...)
	var drawn []Card
	for Score(final) < target {
		c := shoe.DrawOne()
		final = append(final, c)
		drawn = append(drawn, c)
	}
	return final, drawn
}
