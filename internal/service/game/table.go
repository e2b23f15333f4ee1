package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
)

type Phase string

const (
	PhaseBet          Phase = "bet"
	PhasePlayerAction Phase = "player_action"
	PhaseDealerAction Phase = "dealer_action"
)

// phaseCount bounds one evaluation pass: every phase can fire its guard at
// most once per command.
const phaseCount = 3

const (
	defaultBetSmall      = 10
	defaultBetMedium     = 50
	defaultBetLarge      = 200
	defaultDecreaseSmall = 1
	defaultDecreaseLarge = 10
)

type Rules struct {
	Shoe          ShoeConfig
	BetSmall      int64
	BetMedium     int64
	BetLarge      int64
	DecreaseSmall int64
	DecreaseLarge int64
}

func DefaultRules() Rules {
	return Rules{}.WithDefaults()
}

func (r Rules) WithDefaults() Rules {
	r.Shoe = r.Shoe.withDefaults()
	if r.BetSmall <= 0 {
		r.BetSmall = defaultBetSmall
	}
	if r.BetMedium <= 0 {
		r.BetMedium = defaultBetMedium
	}
	if r.BetLarge <= 0 {
		r.BetLarge = defaultBetLarge
	}
	if r.DecreaseSmall <= 0 {
		r.DecreaseSmall = defaultDecreaseSmall
	}
	if r.DecreaseLarge <= 0 {
		r.DecreaseLarge = defaultDecreaseLarge
	}
	return r
}

type FrameKind string

const (
	FrameCommand    FrameKind = "command"
	FrameDeal       FrameKind = "deal"
	FrameReveal     FrameKind = "reveal"
	FrameDealerDraw FrameKind = "dealer_draw"
	FrameSettled    FrameKind = "settled"
	FrameReset      FrameKind = "reset"
)

// Frame is the table as it looked right after one state change.
type Frame struct {
	Kind  FrameKind  `json:"kind"`
	State TableState `json:"state"`
}

// RoundReport summarizes a finished round.
type RoundReport struct {
	TableID     int64        `json:"tableId,string"`
	Round       int          `json:"round"`
	Dealer      []Card       `json:"dealer"`
	DealerScore int          `json:"dealerScore"`
	DealerBust  bool         `json:"dealerBust"`
	DealerDraws []Card       `json:"dealerDraws"`
	Settlements []Settlement `json:"settlements"`
}

// Outcome is what a single command produced.
type Outcome struct {
	Accepted  bool
	Frames    []Frame
	Report    *RoundReport
	Incidents []LedgerIncident
}

// Table is the round engine for one game. It is not safe for concurrent use;
// the host must deliver commands one at a time.
type Table struct {
	id     int64
	rules  Rules
	ledger Ledger
	shoe   *Shoe

	phase           Phase
	round           int
	dealer          []Card
	dealerStatus    DealerStatus
	dealerLastScore int

	sessions map[int64]*PlayerSession
	order    []int64
}

func NewTable(id int64, rules Rules, ledger Ledger, rng *rand.Rand) *Table {
	rules = rules.WithDefaults()
	return NewTableWithShoe(id, rules, ledger, NewShoe(rules.Shoe, rng))
}

func NewTableWithShoe(id int64, rules Rules, ledger Ledger, shoe *Shoe) *Table {
	return &Table{
		id:       id,
		rules:    rules.WithDefaults(),
		ledger:   ledger,
		shoe:     shoe,
		phase:    PhaseBet,
		sessions: make(map[int64]*PlayerSession),
	}
}

func (t *Table) ID() int64    { return t.id }
func (t *Table) Phase() Phase { return t.phase }
func (t *Table) Round() int   { return t.round }

// Session returns a copy of the player's session.
func (t *Table) Session(playerID int64) (PlayerSession, bool) {
	p, ok := t.sessions[playerID]
	if !ok {
		return PlayerSession{}, false
	}
	return p.clone(), true
}

func (t *Table) Players() []int64 {
	return append([]int64(nil), t.order...)
}

// Apply runs one command and every automatic phase change it triggers.
// A rejected command changes nothing and returns Accepted=false. The error
// is non-nil only when the ledger failed; in that case the round still
// completes and Outcome.Incidents lists the deltas that were not applied.
func (t *Table) Apply(ctx context.Context, cmd Command) (Outcome, error) {
	var out Outcome
	accepted, err := t.dispatch(ctx, cmd, &out)
	if !accepted {
		return out, err
	}
	out.Accepted = true
	out.Frames = append(out.Frames, t.frame(FrameCommand))

	errs := []error{err}
	for i := 0; i < phaseCount; i++ {
		fired, err := t.advance(ctx, &out)
		errs = append(errs, err)
		if !fired {
			break
		}
	}
	return out, errors.Join(errs...)
}

func (t *Table) dispatch(ctx context.Context, cmd Command, out *Outcome) (bool, error) {
	if cmd.Kind == CmdJoin {
		return t.join(cmd.PlayerID, cmd.Name), nil
	}
	p, ok := t.sessions[cmd.PlayerID]
	if !ok {
		return false, nil
	}

	switch cmd.Kind {
	case CmdLeave:
		return true, t.leave(ctx, p, out)
	case CmdIncreaseBetSmall:
		return t.increaseBet(ctx, p, t.rules.BetSmall)
	case CmdIncreaseBetMedium:
		return t.increaseBet(ctx, p, t.rules.BetMedium)
	case CmdIncreaseBetLarge:
		return t.increaseBet(ctx, p, t.rules.BetLarge)
	case CmdDecreaseBetSmall:
		return t.decreaseBet(p, t.rules.DecreaseSmall), nil
	case CmdDecreaseBetLarge:
		return t.decreaseBet(p, t.rules.DecreaseLarge), nil
	case CmdClearBet:
		if !p.canBet(t.phase) {
			return false, nil
		}
		p.Bet = 0
		return true, nil
	case CmdAcceptBet:
		if !p.canBet(t.phase) || p.Bet <= 0 {
			return false, nil
		}
		p.State = StateBetLocked
		return true, nil
	case CmdHit:
		if !p.canAct(t.phase) {
			return false, nil
		}
		p.takeCard(t.shoe.DrawOne())
		return true, nil
	case CmdStand:
		if !p.canAct(t.phase) {
			return false, nil
		}
		p.State = StateStand
		return true, nil
	case CmdDoubleDown:
		return t.doubleDown(ctx, p)
	case CmdSurrender:
		if !p.canSurrender(t.phase) {
			return false, nil
		}
		p.State = StateSurrender
		return true, nil
	default:
		return false, nil
	}
}

func (t *Table) join(playerID int64, name string) bool {
	if _, ok := t.sessions[playerID]; ok {
		return false
	}
	t.sessions[playerID] = newSession(playerID, name, t.phase)
	t.order = append(t.order, playerID)
	return true
}

func (t *Table) leave(ctx context.Context, p *PlayerSession, out *Outcome) error {
	forfeit := p.forfeit(t.phase)
	delete(t.sessions, p.PlayerID)
	for i, id := range t.order {
		if id == p.PlayerID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	if forfeit == 0 {
		return nil
	}
	return t.adjust(ctx, out, Adjustment{
		PlayerID: p.PlayerID,
		Delta:    -forfeit,
		Reason:   ReasonForfeit,
	})
}

func (t *Table) increaseBet(ctx context.Context, p *PlayerSession, amount int64) (bool, error) {
	if !p.canBet(t.phase) {
		return false, nil
	}
	balance, err := t.ledger.GetBalance(ctx, p.PlayerID)
	if err != nil {
		return false, fmt.Errorf("increase bet for %d: %w", p.PlayerID, err)
	}
	p.Bet = capBet(p.Bet+amount, balance)
	return true, nil
}

// decreaseBet lowers the bet by step but never to zero or below; a smaller
// bet is left as it is.
func (t *Table) decreaseBet(p *PlayerSession, step int64) bool {
	if !p.canBet(t.phase) || p.Bet <= 0 {
		return false
	}
	if p.Bet > step {
		p.Bet -= step
	}
	return true
}

func (t *Table) doubleDown(ctx context.Context, p *PlayerSession) (bool, error) {
	if !p.canAct(t.phase) {
		return false, nil
	}
	balance, err := t.ledger.GetBalance(ctx, p.PlayerID)
	if err != nil {
		return false, fmt.Errorf("double down for %d: %w", p.PlayerID, err)
	}
	p.doubleDown(t.shoe.DrawOne(), balance)
	return true, nil
}

// advance fires the guard of the current phase once. It reports whether a
// transition happened.
func (t *Table) advance(ctx context.Context, out *Outcome) (bool, error) {
	switch t.phase {
	case PhaseBet:
		if !t.readyToDeal() {
			return false, nil
		}
		t.deal()
		out.Frames = append(out.Frames, t.frame(FrameDeal))
		return true, nil
	case PhasePlayerAction:
		for _, id := range t.order {
			if t.sessions[id].State == StateAction {
				return false, nil
			}
		}
		t.phase = PhaseDealerAction
		return true, nil
	case PhaseDealerAction:
		return true, t.finishRound(ctx, out)
	default:
		return false, nil
	}
}

func (t *Table) readyToDeal() bool {
	locked := 0
	for _, id := range t.order {
		switch t.sessions[id].State {
		case StateBetLocked:
			locked++
		case StateWaiting:
		default:
			return false
		}
	}
	return locked > 0
}

func (t *Table) deal() {
	t.round++
	for _, id := range t.order {
		p := t.sessions[id]
		if p.State != StateBetLocked {
			continue
		}
		p.Hand = t.shoe.Draw(2)
		if IsNatural(p.Hand) {
			p.State = StateStand
		} else {
			p.State = StateAction
		}
	}
	t.dealer = t.shoe.Draw(2)
	t.phase = PhasePlayerAction
	// Peek: a dealer natural ends the round before anyone acts.
	if Score(t.dealer) == 21 {
		t.phase = PhaseDealerAction
	}
}

func (t *Table) finishRound(ctx context.Context, out *Outcome) error {
	sessions := t.orderedSessions()

	out.Frames = append(out.Frames, t.frame(FrameReveal))
	initial := len(t.dealer)
	final, drawn := PlayDealer(t.shoe, t.dealer, DealerTarget(sessions))
	for i := range drawn {
		t.dealer = final[:initial+i+1]
		out.Frames = append(out.Frames, t.frame(FrameDealerDraw))
	}
	t.dealer = final
	if Score(t.dealer) > 21 {
		t.dealerStatus = DealerBust
	}

	settlements := Settle(sessions, t.dealer)
	var errs []error
	for _, s := range settlements {
		p := t.sessions[s.PlayerID]
		p.Result = s.Result
		if s.Delta == 0 {
			continue
		}
		err := t.adjust(ctx, out, Adjustment{
			PlayerID: s.PlayerID,
			Delta:    s.Delta,
			Reason:   reasonFor(s.Result),
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		p.SessionNet += s.Delta
	}
	out.Frames = append(out.Frames, t.frame(FrameSettled))
	out.Report = &RoundReport{
		TableID:     t.id,
		Round:       t.round,
		Dealer:      append([]Card(nil), t.dealer...),
		DealerScore: Score(t.dealer),
		DealerBust:  t.dealerStatus == DealerBust,
		DealerDraws: drawn,
		Settlements: settlements,
	}

	errs = append(errs, t.reset(ctx))
	out.Frames = append(out.Frames, t.frame(FrameReset))
	return errors.Join(errs...)
}

// reset starts the next betting phase. Bets that no longer fit the balance
// are clamped; when the balance cannot be read the bet drops to zero so it
// can never exceed what the player holds.
func (t *Table) reset(ctx context.Context) error {
	var errs []error
	for _, p := range t.orderedSessions() {
		p.resetForNextRound()
		if p.Bet <= 0 {
			continue
		}
		balance, err := t.ledger.GetBalance(ctx, p.PlayerID)
		if err != nil {
			p.Bet = 0
			errs = append(errs, fmt.Errorf("clamp bet for %d: %w", p.PlayerID, err))
			continue
		}
		p.Bet = capBet(p.Bet, balance)
	}
	t.dealerLastScore = Score(t.dealer)
	t.dealer = nil
	t.dealerStatus = DealerPlaying
	t.phase = PhaseBet
	return errors.Join(errs...)
}

func (t *Table) adjust(ctx context.Context, out *Outcome, adj Adjustment) error {
	adj.TableID = t.id
	adj.Round = t.round
	if err := t.ledger.AdjustBalance(ctx, adj); err != nil {
		out.Incidents = append(out.Incidents, LedgerIncident{Adjustment: adj, Err: err})
		return fmt.Errorf("%s %d for %d: %w", adj.Reason, adj.Delta, adj.PlayerID, err)
	}
	return nil
}

func (t *Table) orderedSessions() []*PlayerSession {
	out := make([]*PlayerSession, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.sessions[id])
	}
	return out
}

func (t *Table) frame(kind FrameKind) Frame {
	return Frame{Kind: kind, State: t.Snapshot()}
}
