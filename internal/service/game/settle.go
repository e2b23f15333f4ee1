package game

import (
	"fmt"

	appErr "bj-service/pkg/errors"
)

// Settlement is the outcome of one session for a finished round.
type Settlement struct {
	PlayerID int64  `json:"playerId,string"`
	Result   Result `json:"result"`
	Bet      int64  `json:"bet"`
	Delta    int64  `json:"delta"`
	Score    int    `json:"score"`
	Natural  bool   `json:"natural,omitempty"`
	Doubled  bool   `json:"doubled,omitempty"`
}

// Settle resolves every session that was dealt into the round against the
// dealer's final hand. Spectators are skipped. The function is pure; the
// caller applies the deltas.
func Settle(sessions []*PlayerSession, dealer []Card) []Settlement {
	out := make([]Settlement, 0, len(sessions))
	for _, p := range sessions {
		if !p.participating() {
			continue
		}
		if len(p.Hand) == 0 {
			panic(fmt.Errorf("%w: player %d", appErr.ErrEmptyHand, p.PlayerID))
		}
		result := resolveResult(p, dealer)
		out = append(out, Settlement{
			PlayerID: p.PlayerID,
			Result:   result,
			Bet:      p.Bet,
			Delta:    payout(result, p.Bet),
			Score:    Score(p.Hand),
			Natural:  IsNatural(p.Hand),
			Doubled:  p.DoubleDown,
		})
	}
	return out
}

func resolveResult(p *PlayerSession, dealer []Card) Result {
	if p.State == StateSurrender {
		return ResultSurrender
	}
	dealerScore := Score(dealer)
	if dealerScore > 21 {
		if p.State == StateBust {
			return ResultPush
		}
		return ResultWin
	}
	// A natural beats a dealer 21 made with more than two cards. Two
	// naturals fall through to the comparison and push.
	if IsNatural(p.Hand) && dealerScore == 21 && len(dealer) > 2 {
		return ResultWin
	}
	if p.State == StateBust {
		return ResultLose
	}
	switch playerScore := Score(p.Hand); {
	case playerScore > dealerScore:
		return ResultWin
	case playerScore == dealerScore:
		return ResultPush
	default:
		return ResultLose
	}
}

func payout(result Result, bet int64) int64 {
	switch result {
	case ResultWin:
		return bet
	case ResultLose:
		return -bet
	case ResultSurrender:
		return -ceilHalf(bet)
	default:
		return 0
	}
}

func reasonFor(result Result) LedgerReason {
	switch result {
	case ResultWin:
		return ReasonWin
	case ResultSurrender:
		return ReasonSurrender
	default:
		return ReasonLose
	}
}
