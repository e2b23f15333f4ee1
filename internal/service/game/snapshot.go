package game

// TableState is a read-only view of a table for rendering. Nothing in it
// aliases engine state.
type TableState struct {
	TableID         int64         `json:"tableId,string"`
	Round           int           `json:"round"`
	Phase           Phase         `json:"phase"`
	Dealer          []Card        `json:"dealer"`
	DealerHidden    bool          `json:"dealerHidden"`
	DealerScore     int           `json:"dealerScore"`
	DealerStatus    DealerStatus  `json:"dealerStatus,omitempty"`
	DealerLastScore int           `json:"dealerLastScore"`
	ShoeRemaining   int           `json:"shoeRemaining"`
	Players         []PlayerState `json:"players"`
}

type PlayerState struct {
	PlayerID   int64         `json:"playerId,string"`
	Name       string        `json:"name"`
	Cards      []Card        `json:"cards"`
	Score      int           `json:"score"`
	Soft       bool          `json:"soft,omitempty"`
	Bet        int64         `json:"bet"`
	State      PlayState     `json:"state"`
	DoubleDown bool          `json:"doubleDown,omitempty"`
	Result     Result        `json:"result,omitempty"`
	LastScore  int           `json:"lastScore"`
	LastResult Result        `json:"lastResult,omitempty"`
	SessionNet int64         `json:"sessionNet"`
	Allowed    []CommandKind `json:"allowed"`
}

// Snapshot exports the current state. While players act only the dealer's
// up card is shown.
func (t *Table) Snapshot() TableState {
	state := TableState{
		TableID:         t.id,
		Round:           t.round,
		Phase:           t.phase,
		Dealer:          append([]Card{}, t.dealer...),
		DealerScore:     Score(t.dealer),
		DealerStatus:    t.dealerStatus,
		DealerLastScore: t.dealerLastScore,
		ShoeRemaining:   t.shoe.Remaining(),
		Players:         make([]PlayerState, 0, len(t.order)),
	}
	if t.phase == PhasePlayerAction && len(t.dealer) > 1 {
		state.Dealer = state.Dealer[:1]
		state.DealerHidden = true
		state.DealerScore = Score(state.Dealer)
	}
	for _, id := range t.order {
		p := t.sessions[id]
		state.Players = append(state.Players, PlayerState{
			PlayerID:   p.PlayerID,
			Name:       p.Name,
			Cards:      append([]Card{}, p.Hand...),
			Score:      Score(p.Hand),
			Soft:       IsSoft(p.Hand),
			Bet:        p.Bet,
			State:      p.State,
			DoubleDown: p.DoubleDown,
			Result:     p.Result,
			LastScore:  p.LastScore,
			LastResult: p.LastResult,
			SessionNet: p.SessionNet,
			Allowed:    allowedCommands(p, t.phase),
		})
	}
	return state
}

// Player returns the player's row in the snapshot, if seated.
func (s TableState) Player(playerID int64) (PlayerState, bool) {
	for _, p := range s.Players {
		if p.PlayerID == playerID {
			return p, true
		}
	}
	return PlayerState{}, false
}
