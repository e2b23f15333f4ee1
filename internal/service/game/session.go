package game

type PlayState string

const (
	StateWaiting   PlayState = "waiting"
	StateBetting   PlayState = "betting"
	StateBetLocked PlayState = "bet_locked"
	StateAction    PlayState = "action"
	StateStand     PlayState = "stand"
	StateBust      PlayState = "bust"
	StateSurrender PlayState = "surrender"
)

type Result string

const (
	ResultNone      Result = ""
	ResultWin       Result = "WIN"
	ResultLose      Result = "LOSE"
	ResultPush      Result = "PUSH"
	ResultSurrender Result = "SURRENDER"
)

// PlayerSession is one seated participant. Sessions are owned by their Table
// and only mutated through Table.Apply.
type PlayerSession struct {
	PlayerID   int64
	Name       string
	Hand       []Card
	Bet        int64
	State      PlayState
	DoubleDown bool
	Result     Result

	// Previous round, kept for display.
	LastScore  int
	LastResult Result

	// Sum of the deltas actually applied to the ledger while seated.
	SessionNet int64

	preDoubleBet int64
}

func newSession(playerID int64, name string, phase Phase) *PlayerSession {
	state := StateWaiting
	if phase == PhaseBet {
		state = StateBetting
	}
	return &PlayerSession{
		PlayerID: playerID,
		Name:     name,
		State:    state,
	}
}

func (p *PlayerSession) canBet(phase Phase) bool {
	return phase == PhaseBet && p.State == StateBetting
}

func (p *PlayerSession) canAct(phase Phase) bool {
	return phase == PhasePlayerAction && p.State == StateAction
}

func (p *PlayerSession) canSurrender(phase Phase) bool {
	return p.canAct(phase) && len(p.Hand) == 2
}

// participating reports whether the session was dealt into the current round.
func (p *PlayerSession) participating() bool {
	switch p.State {
	case StateAction, StateStand, StateBust, StateSurrender:
		return true
	default:
		return false
	}
}

// takeCard adds a hit card and resolves bust or an automatic stand on 21.
func (p *PlayerSession) takeCard(c Card) {
	p.Hand = append(p.Hand, c)
	switch score := Score(p.Hand); {
	case score > 21:
		p.State = StateBust
	case score == 21:
		p.State = StateStand
	}
}

// doubleDown raises the bet by up to its current size without passing
// balance, then takes exactly one card and ends the turn.
func (p *PlayerSession) doubleDown(c Card, balance int64) {
	extra := p.Bet
	if p.Bet+extra > balance {
		extra = balance - p.Bet
		if extra < 0 {
			extra = 0
		}
	}
	p.preDoubleBet = p.Bet
	p.Bet += extra
	p.DoubleDown = true
	p.Hand = append(p.Hand, c)
	if Score(p.Hand) > 21 {
		p.State = StateBust
	} else {
		p.State = StateStand
	}
}

// forfeit is what leaving costs in the given phase. Nothing is at stake
// while betting or spectating; a two card hand or a surrender gives up half
// (rounded up), anything further along gives up the whole bet.
func (p *PlayerSession) forfeit(phase Phase) int64 {
	if phase == PhaseBet || !p.participating() || len(p.Hand) == 0 {
		return 0
	}
	if p.State == StateSurrender {
		return ceilHalf(p.Bet)
	}
	if p.State != StateBust && len(p.Hand) == 2 {
		return ceilHalf(p.Bet)
	}
	return p.Bet
}

// resetForNextRound archives the round for display and puts the session back
// into betting. A doubled bet returns to its pre-double size; clamping to the
// balance happens afterwards.
func (p *PlayerSession) resetForNextRound() {
	p.LastScore = Score(p.Hand)
	p.LastResult = p.Result
	p.Result = ResultNone
	p.Hand = nil
	p.State = StateBetting
	if p.DoubleDown {
		p.Bet = p.preDoubleBet
		p.DoubleDown = false
		p.preDoubleBet = 0
	}
}

func capBet(bet, balance int64) int64 {
	if balance < 0 {
		balance = 0
	}
	if bet > balance {
		return balance
	}
	return bet
}

func ceilHalf(v int64) int64 {
	return (v + 1) / 2
}

func (p *PlayerSession) clone() PlayerSession {
	c := *p
	c.Hand = append([]Card(nil), p.Hand...)
	return c
}
