package game

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"testing"

	appErr "bj-service/pkg/errors"
)

const (
	alice int64 = 1
	bob   int64 = 2
	carol int64 = 3
)

func newTestTable(t *testing.T, ledger Ledger, cards ...string) *Table {
	t.Helper()
	rules := DefaultRules()
	shoe := NewStackedShoe(rules.Shoe, rand.New(rand.NewSource(1)), MustParseCards(cards...))
	return NewTableWithShoe(42, rules, ledger, shoe)
}

func apply(t *testing.T, tbl *Table, kind CommandKind, playerID int64) Outcome {
	t.Helper()
	out, err := tbl.Apply(context.Background(), Command{Kind: kind, PlayerID: playerID, Name: "p"})
	if err != nil {
		t.Fatalf("%s by %d: unexpected error: %v", kind, playerID, err)
	}
	if !out.Accepted {
		t.Fatalf("%s by %d was rejected in phase %s", kind, playerID, tbl.Phase())
	}
	return out
}

func expectRejected(t *testing.T, tbl *Table, kind CommandKind, playerID int64) {
	t.Helper()
	before := tbl.Snapshot()
	out, err := tbl.Apply(context.Background(), Command{Kind: kind, PlayerID: playerID})
	if err != nil {
		t.Fatalf("%s by %d: unexpected error: %v", kind, playerID, err)
	}
	if out.Accepted || len(out.Frames) != 0 {
		t.Fatalf("expected %s by %d to be rejected", kind, playerID)
	}
	if after := tbl.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Fatalf("rejected %s changed the table:\nbefore %+v\nafter  %+v", kind, before, after)
	}
}

func seatAndBet(t *testing.T, tbl *Table, ids ...int64) Outcome {
	t.Helper()
	for _, id := range ids {
		apply(t, tbl, CmdJoin, id)
	}
	var last Outcome
	for _, id := range ids {
		apply(t, tbl, CmdIncreaseBetSmall, id)
		last = apply(t, tbl, CmdAcceptBet, id)
	}
	return last
}

func settlementFor(t *testing.T, report *RoundReport, playerID int64) Settlement {
	t.Helper()
	if report == nil {
		t.Fatalf("expected a round report")
	}
	for _, s := range report.Settlements {
		if s.PlayerID == playerID {
			return s
		}
	}
	t.Fatalf("no settlement for %d", playerID)
	return Settlement{}
}

func frameKinds(frames []Frame) []FrameKind {
	out := make([]FrameKind, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Kind)
	}
	return out
}

func TestBustAndStandAgainstDealerDraw(t *testing.T) {
	ledger := NewMemoryLedger(1000)
	tbl := newTestTable(t, ledger,
		"9h", "5c", // alice 14
		"Kd", "Qs", // bob 20
		"9c", "7d", // dealer 16
		"9d", // alice hit, 23
		"2s", // dealer draw, 18
	)

	deal := seatAndBet(t, tbl, alice, bob)
	if tbl.Phase() != PhasePlayerAction {
		t.Fatalf("expected player_action after last accept, got %s", tbl.Phase())
	}
	if got := frameKinds(deal.Frames); !reflect.DeepEqual(got, []FrameKind{FrameCommand, FrameDeal}) {
		t.Fatalf("unexpected frames %v", got)
	}
	state := deal.Frames[1].State
	if !state.DealerHidden || len(state.Dealer) != 1 {
		t.Fatalf("dealer hole card must be hidden, got %+v", state.Dealer)
	}

	apply(t, tbl, CmdHit, alice)
	if s, _ := tbl.Session(alice); s.State != StateBust {
		t.Fatalf("expected alice bust, got %s", s.State)
	}
	expectRejected(t, tbl, CmdHit, alice)

	out := apply(t, tbl, CmdStand, bob)
	if tbl.Phase() != PhaseBet {
		t.Fatalf("expected round reset to bet, got %s", tbl.Phase())
	}
	want := []FrameKind{FrameCommand, FrameReveal, FrameDealerDraw, FrameSettled, FrameReset}
	if got := frameKinds(out.Frames); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected frames %v, got %v", want, got)
	}
	if out.Report.DealerScore != 18 || len(out.Report.DealerDraws) != 1 {
		t.Fatalf("expected dealer to draw once to 18, got %+v", out.Report)
	}

	a := settlementFor(t, out.Report, alice)
	b := settlementFor(t, out.Report, bob)
	if a.Result != ResultLose || a.Delta != -10 || a.Score != 23 {
		t.Fatalf("alice: unexpected settlement %+v", a)
	}
	if b.Result != ResultWin || b.Delta != 10 {
		t.Fatalf("bob: unexpected settlement %+v", b)
	}

	if bal, _ := ledger.GetBalance(context.Background(), alice); bal != 990 {
		t.Fatalf("alice balance: %d", bal)
	}
	if bal, _ := ledger.GetBalance(context.Background(), bob); bal != 1010 {
		t.Fatalf("bob balance: %d", bal)
	}

	s, _ := tbl.Session(alice)
	if s.State != StateBetting || s.Bet != 10 || len(s.Hand) != 0 {
		t.Fatalf("alice not reset for next round: %+v", s)
	}
	if s.LastResult != ResultLose || s.LastScore != 23 || s.SessionNet != -10 {
		t.Fatalf("alice last round not archived: %+v", s)
	}
	if snap := tbl.Snapshot(); snap.DealerLastScore != 18 || len(snap.Dealer) != 0 || snap.Round != 1 {
		t.Fatalf("unexpected snapshot after reset: %+v", snap)
	}
}

func TestNaturalAutoStandsAndWins(t *testing.T) {
	ledger := NewMemoryLedger(1000)
	tbl := newTestTable(t, ledger, "As", "Kd", "9c", "7h")

	out := seatAndBet(t, tbl, alice)
	if out.Report == nil {
		t.Fatalf("a lone natural should finish the round on accept")
	}
	if len(out.Report.DealerDraws) != 0 {
		t.Fatalf("a natural must not force dealer draws, got %v", out.Report.DealerDraws)
	}
	s := settlementFor(t, out.Report, alice)
	if s.Result != ResultWin || s.Delta != 10 || !s.Natural {
		t.Fatalf("unexpected settlement %+v", s)
	}
}

func TestNaturalCannotActWhileOthersPlay(t *testing.T) {
	tbl := newTestTable(t, NewMemoryLedger(1000), "As", "Kd", "9h", "5c", "9c", "7h")

	seatAndBet(t, tbl, alice, bob)
	if s, _ := tbl.Session(alice); s.State != StateStand {
		t.Fatalf("natural should auto stand, got %s", s.State)
	}
	for _, kind := range []CommandKind{CmdHit, CmdStand, CmdDoubleDown, CmdSurrender} {
		expectRejected(t, tbl, kind, alice)
	}
}

func TestSurrenderLosesHalf(t *testing.T) {
	ledger := NewMemoryLedger(1000)
	tbl := newTestTable(t, ledger, "9h", "7c", "Tc", "8d")

	seatAndBet(t, tbl, alice)
	out := apply(t, tbl, CmdSurrender, alice)

	s := settlementFor(t, out.Report, alice)
	if s.Result != ResultSurrender || s.Delta != -5 {
		t.Fatalf("unexpected settlement %+v", s)
	}
	if len(out.Report.DealerDraws) != 0 {
		t.Fatalf("dealer drew against a surrendered table")
	}
	if bal, _ := ledger.GetBalance(context.Background(), alice); bal != 995 {
		t.Fatalf("expected 995, got %d", bal)
	}
	hist := ledger.History()
	if len(hist) != 1 || hist[0].Reason != ReasonSurrender || hist[0].TableID != 42 || hist[0].Round != 1 {
		t.Fatalf("unexpected ledger history %+v", hist)
	}
}

func TestSurrenderOnlyOnTwoCards(t *testing.T) {
	tbl := newTestTable(t, NewMemoryLedger(1000), "5h", "3c", "Tc", "8d", "2s")

	seatAndBet(t, tbl, alice)
	apply(t, tbl, CmdHit, alice)
	expectRejected(t, tbl, CmdSurrender, alice)
}

func TestDealerPeekSkipsPlayerAction(t *testing.T) {
	tbl := newTestTable(t, NewMemoryLedger(1000),
		"Ad", "Qc", // alice natural
		"9h", "7c", // bob 16
		"As", "Kh", // dealer natural
	)

	out := seatAndBet(t, tbl, alice, bob)
	want := []FrameKind{FrameCommand, FrameDeal, FrameReveal, FrameSettled, FrameReset}
	if got := frameKinds(out.Frames); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected frames %v, got %v", want, got)
	}
	if phase := out.Frames[1].State.Phase; phase != PhaseDealerAction {
		t.Fatalf("expected deal to land on dealer_action, got %s", phase)
	}
	if !reflect.DeepEqual(out.Frames[1].State.Dealer, MustParseCards("As", "Kh")) {
		t.Fatalf("dealer natural should be face up after peek")
	}

	if s := settlementFor(t, out.Report, alice); s.Result != ResultPush || s.Delta != 0 {
		t.Fatalf("alice: expected push, got %+v", s)
	}
	if s := settlementFor(t, out.Report, bob); s.Result != ResultLose || s.Delta != -10 {
		t.Fatalf("bob: expected lose, got %+v", s)
	}
}

func TestAllBustDealerDoesNotDraw(t *testing.T) {
	tbl := newTestTable(t, NewMemoryLedger(1000),
		"Th", "6c",
		"9h", "7c",
		"5c", "6d",
		"Kd", "Qs",
	)

	seatAndBet(t, tbl, alice, bob)
	apply(t, tbl, CmdHit, alice)
	out := apply(t, tbl, CmdHit, bob)

	if out.Report == nil {
		t.Fatalf("round should be over once everyone busted")
	}
	if len(out.Report.DealerDraws) != 0 || out.Report.DealerScore != 11 {
		t.Fatalf("dealer should keep its first two cards, got %+v", out.Report)
	}
	for _, id := range []int64{alice, bob} {
		if s := settlementFor(t, out.Report, id); s.Result != ResultLose {
			t.Fatalf("%d: expected lose, got %+v", id, s)
		}
	}
}

func TestHitToTwentyOneStands(t *testing.T) {
	tbl := newTestTable(t, NewMemoryLedger(1000), "5h", "6c", "Tc", "8d", "Ts", "9h", "Kc")

	apply(t, tbl, CmdJoin, bob)
	seatAndBet(t, tbl, alice)
	if tbl.Phase() != PhaseBet {
		t.Fatalf("bob is still betting, nothing should be dealt")
	}
	apply(t, tbl, CmdIncreaseBetSmall, bob)
	apply(t, tbl, CmdAcceptBet, bob)

	apply(t, tbl, CmdHit, bob)
	if s, _ := tbl.Session(bob); s.State != StateStand || s.Result != ResultNone {
		t.Fatalf("21 should auto stand, got %+v", s)
	}
}

func TestRejectedCommandsLeaveTableUntouched(t *testing.T) {
	tbl := newTestTable(t, NewMemoryLedger(1000), "9h", "5c", "Kd", "Qs", "9c", "7d")

	expectRejected(t, tbl, CmdHit, alice)
	apply(t, tbl, CmdJoin, alice)
	expectRejected(t, tbl, CmdJoin, alice)
	expectRejected(t, tbl, CmdAcceptBet, alice)
	expectRejected(t, tbl, CmdDecreaseBetSmall, alice)
	expectRejected(t, tbl, CmdStand, alice)
	expectRejected(t, tbl, CmdLeave, bob)
	expectRejected(t, tbl, CommandKind("split"), alice)

	seatAndBet(t, tbl, bob)
	expectRejected(t, tbl, CmdIncreaseBetSmall, bob)
	expectRejected(t, tbl, CmdClearBet, bob)
}

func TestJoinMidRoundWaits(t *testing.T) {
	tbl := newTestTable(t, NewMemoryLedger(1000), "9h", "5c", "9c", "8d")

	seatAndBet(t, tbl, alice)
	apply(t, tbl, CmdJoin, carol)
	s, _ := tbl.Session(carol)
	if s.State != StateWaiting {
		t.Fatalf("expected waiting, got %s", s.State)
	}
	expectRejected(t, tbl, CmdIncreaseBetSmall, carol)

	out := apply(t, tbl, CmdStand, alice)
	if len(out.Report.Settlements) != 1 {
		t.Fatalf("spectator must not be settled: %+v", out.Report.Settlements)
	}
	if s, _ := tbl.Session(carol); s.State != StateBetting {
		t.Fatalf("spectator should bet next round, got %s", s.State)
	}
}

func TestBetAdjustments(t *testing.T) {
	ledger := NewMemoryLedger(1000)
	ledger.SetBalance(alice, 220)
	tbl := newTestTable(t, ledger)

	apply(t, tbl, CmdJoin, alice)
	apply(t, tbl, CmdIncreaseBetLarge, alice)
	apply(t, tbl, CmdIncreaseBetMedium, alice)
	if s, _ := tbl.Session(alice); s.Bet != 220 {
		t.Fatalf("bet should be capped at balance, got %d", s.Bet)
	}

	apply(t, tbl, CmdClearBet, alice)
	apply(t, tbl, CmdIncreaseBetSmall, alice)
	apply(t, tbl, CmdDecreaseBetSmall, alice)
	if s, _ := tbl.Session(alice); s.Bet != 9 {
		t.Fatalf("expected 9, got %d", s.Bet)
	}
	apply(t, tbl, CmdDecreaseBetLarge, alice)
	if s, _ := tbl.Session(alice); s.Bet != 9 {
		t.Fatalf("decrease must not go to zero or below, got %d", s.Bet)
	}

	allowed := tbl.Snapshot().Players[0].Allowed
	for _, want := range []CommandKind{CmdLeave, CmdIncreaseBetSmall, CmdAcceptBet, CmdClearBet} {
		found := false
		for _, k := range allowed {
			if k == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected %s in allowed %v", want, allowed)
		}
	}
}

func TestDoubleDownCapsAndRestores(t *testing.T) {
	ledger := NewMemoryLedger(1000)
	ledger.SetBalance(alice, 15)
	tbl := newTestTable(t, ledger, "5h", "6c", "Tc", "7d", "Td")

	seatAndBet(t, tbl, alice)
	out := apply(t, tbl, CmdDoubleDown, alice)

	s := settlementFor(t, out.Report, alice)
	if s.Bet != 15 || !s.Doubled || s.Result != ResultWin || s.Delta != 15 {
		t.Fatalf("unexpected settlement %+v", s)
	}
	if bal, _ := ledger.GetBalance(context.Background(), alice); bal != 30 {
		t.Fatalf("expected 30, got %d", bal)
	}
	after, _ := tbl.Session(alice)
	if after.Bet != 10 || after.DoubleDown {
		t.Fatalf("bet should return to the pre-double size, got %+v", after)
	}
}

func TestResetClampsBetToBalance(t *testing.T) {
	ledger := NewMemoryLedger(1000)
	ledger.SetBalance(alice, 250)
	tbl := newTestTable(t, ledger, "Th", "6c", "Tc", "8d")

	apply(t, tbl, CmdJoin, alice)
	apply(t, tbl, CmdIncreaseBetLarge, alice)
	apply(t, tbl, CmdAcceptBet, alice)
	apply(t, tbl, CmdStand, alice)

	s, _ := tbl.Session(alice)
	if s.LastResult != ResultLose || s.Bet != 50 {
		t.Fatalf("expected a 50 bet after losing 200 of 250, got %+v", s)
	}
}

func TestLeaveForfeits(t *testing.T) {
	ledger := NewMemoryLedger(1000)
	tbl := newTestTable(t, ledger, "9h", "5c", "Kd", "Qs", "9c", "7d", "2h")

	apply(t, tbl, CmdJoin, carol)
	out := apply(t, tbl, CmdLeave, carol)
	if len(ledger.History()) != 0 || len(out.Incidents) != 0 {
		t.Fatalf("leaving while betting costs nothing")
	}

	seatAndBet(t, tbl, alice, bob)
	apply(t, tbl, CmdLeave, alice)
	hist := ledger.History()
	if len(hist) != 1 || hist[0].Delta != -5 || hist[0].Reason != ReasonForfeit {
		t.Fatalf("expected half bet forfeit, got %+v", hist)
	}
	if _, ok := tbl.Session(alice); ok {
		t.Fatalf("alice should be gone")
	}

	apply(t, tbl, CmdHit, bob)
	if tbl.Phase() != PhaseBet {
		t.Fatalf("bob busting should end the round")
	}
	if got := tbl.Players(); !reflect.DeepEqual(got, []int64{bob}) {
		t.Fatalf("unexpected players %v", got)
	}
}

func TestLeaveLastActorFinishesRound(t *testing.T) {
	ledger := NewMemoryLedger(1000)
	tbl := newTestTable(t, ledger, "9h", "5c", "Kd", "Qs", "9c", "7d", "4h", "2s")

	seatAndBet(t, tbl, alice, bob)
	apply(t, tbl, CmdStand, bob)
	apply(t, tbl, CmdHit, alice)
	out := apply(t, tbl, CmdLeave, alice)

	if out.Report == nil || len(out.Report.Settlements) != 1 {
		t.Fatalf("expected the round to settle bob alone, got %+v", out.Report)
	}
	if ledger.History()[0].Delta != -10 {
		t.Fatalf("leaving after a hit forfeits the whole bet, got %+v", ledger.History()[0])
	}
}

func TestTinyReserveSurvivesManyRounds(t *testing.T) {
	rules := DefaultRules()
	rules.Shoe = ShoeConfig{Decks: 1, Reserve: 1}
	tbl := NewTable(42, rules, NewMemoryLedger(1_000_000), rand.New(rand.NewSource(5)))

	apply(t, tbl, CmdJoin, alice)
	for i := 1; i <= 200; i++ {
		if s, _ := tbl.Session(alice); s.Bet == 0 {
			apply(t, tbl, CmdIncreaseBetSmall, alice)
		}
		apply(t, tbl, CmdAcceptBet, alice)
		if s, _ := tbl.Session(alice); tbl.Phase() == PhasePlayerAction && s.State == StateAction {
			apply(t, tbl, CmdStand, alice)
		}
		if tbl.Phase() != PhaseBet || tbl.Round() != i {
			t.Fatalf("round %d did not finish: phase %s, round %d", i, tbl.Phase(), tbl.Round())
		}
	}
}

func TestEmptyTableNeverDeals(t *testing.T) {
	tbl := newTestTable(t, NewMemoryLedger(1000))

	apply(t, tbl, CmdJoin, alice)
	apply(t, tbl, CmdIncreaseBetSmall, alice)
	apply(t, tbl, CmdClearBet, alice)
	if tbl.Phase() != PhaseBet || tbl.Round() != 0 {
		t.Fatalf("nothing should be dealt without a locked bet")
	}
	apply(t, tbl, CmdLeave, alice)
	if tbl.Round() != 0 {
		t.Fatalf("empty table dealt a round")
	}
}

func TestLedgerFailureRaisesIncident(t *testing.T) {
	ledger := NewMemoryLedger(1000)
	tbl := newTestTable(t, ledger,
		"9h", "5c",
		"Kd", "Qs",
		"9c", "7d",
		"9d",
		"2s",
	)

	seatAndBet(t, tbl, alice, bob)
	apply(t, tbl, CmdHit, alice)
	ledger.FailFor(bob, false, true)

	out, err := tbl.Apply(context.Background(), Command{Kind: CmdStand, PlayerID: bob})
	if !errors.Is(err, appErr.ErrLedgerUnavailable) {
		t.Fatalf("expected ErrLedgerUnavailable, got %v", err)
	}
	if !out.Accepted || out.Report == nil {
		t.Fatalf("round must still complete")
	}
	if len(out.Incidents) != 1 {
		t.Fatalf("expected one incident, got %+v", out.Incidents)
	}
	inc := out.Incidents[0]
	if inc.PlayerID != bob || inc.Delta != 10 || inc.Reason != ReasonWin || inc.Round != 1 || inc.TableID != 42 {
		t.Fatalf("unexpected incident %+v", inc)
	}

	if s, _ := tbl.Session(bob); s.SessionNet != 0 || s.LastResult != ResultWin {
		t.Fatalf("unapplied delta must not count towards session net: %+v", s)
	}
	if s, _ := tbl.Session(alice); s.SessionNet != -10 {
		t.Fatalf("alice's delta should still apply, got %+v", s)
	}
	if tbl.Phase() != PhaseBet {
		t.Fatalf("expected reset to bet, got %s", tbl.Phase())
	}
}

func TestBalanceLookupFailure(t *testing.T) {
	ledger := NewMemoryLedger(1000)
	tbl := newTestTable(t, ledger, "Th", "8c", "Tc", "7d")

	apply(t, tbl, CmdJoin, alice)
	ledger.FailFor(alice, true, false)
	out, err := tbl.Apply(context.Background(), Command{Kind: CmdIncreaseBetSmall, PlayerID: alice})
	if out.Accepted || !errors.Is(err, appErr.ErrLedgerUnavailable) {
		t.Fatalf("expected a rejected bet with ledger error, got %v / %v", out.Accepted, err)
	}

	ledger.FailFor(alice, false, false)
	apply(t, tbl, CmdIncreaseBetSmall, alice)
	apply(t, tbl, CmdAcceptBet, alice)

	// The clamp after settlement cannot read the balance.
	ledger.FailFor(alice, true, false)
	out, err = tbl.Apply(context.Background(), Command{Kind: CmdStand, PlayerID: alice})
	if !out.Accepted || !errors.Is(err, appErr.ErrLedgerUnavailable) {
		t.Fatalf("expected accepted stand with clamp error, got %v / %v", out.Accepted, err)
	}
	if s, _ := tbl.Session(alice); s.Bet != 0 {
		t.Fatalf("bet should drop to zero when the balance is unknown, got %d", s.Bet)
	}
}

func TestParseCommand(t *testing.T) {
	kind, err := ParseCommand("  Double_Down ")
	if err != nil || kind != CmdDoubleDown {
		t.Fatalf("expected double_down, got %q / %v", kind, err)
	}
	if _, err := ParseCommand("split"); !errors.Is(err, appErr.ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
	if len(CommandKinds()) != 13 {
		t.Fatalf("unexpected command count %d", len(CommandKinds()))
	}
}
