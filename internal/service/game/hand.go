package game

// Score totals a hand with aces counted as 11, then drops aces to 1 one at a
// time while the total is over 21. An empty hand scores 0.
func Score(hand []Card) int {
	total, _ := scoreWithSoftAces(hand)
	return total
}

// IsNatural reports a two card 21.
func IsNatural(hand []Card) bool {
	return len(hand) == 2 && Score(hand) == 21
}

// IsSoft reports whether an ace is still counted as 11.
func IsSoft(hand []Card) bool {
	_, soft := scoreWithSoftAces(hand)
	return soft > 0
}

func scoreWithSoftAces(hand []Card) (int, int) {
	total := 0
	aces := 0
	for _, c := range hand {
		total += c.Rank.Value()
		if c.Rank == Ace {
			aces++
		}
	}
	for total > 21 && aces > 0 {
		total -= 10
		aces--
	}
	return total, aces
}
