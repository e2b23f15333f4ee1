package game

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	appErr "bj-service/pkg/errors"
)

func newTestRuntime(t *testing.T, cfg RuntimeConfig, hooks Hooks, cards ...string) *TableRuntime {
	t.Helper()
	return NewTableRuntime(newTestTable(t, NewMemoryLedger(1000), cards...), cfg, hooks)
}

func send(t *testing.T, rt *TableRuntime, userID int64, action string) {
	t.Helper()
	ok, err := rt.HandleAction(context.Background(), userID, "p", action)
	if err != nil || !ok {
		t.Fatalf("%s by %d: accepted=%v err=%v", action, userID, ok, err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRuntimePlaysRoundAndReportsIt(t *testing.T) {
	reports := make(chan RoundReport, 1)
	rt := newTestRuntime(t, RuntimeConfig{}, Hooks{
		OnRound: func(r RoundReport) { reports <- r },
	}, "Th", "8c", "Tc", "7d")

	ch := rt.Subscribe(alice)
	msg := <-ch
	if msg.Type != "state" || msg.Seq != 1 {
		t.Fatalf("expected initial state, got %+v", msg)
	}

	send(t, rt, alice, "join")
	send(t, rt, alice, "increase_bet_small")
	send(t, rt, alice, "accept_bet")
	send(t, rt, alice, "stand")

	select {
	case r := <-reports:
		if r.Round != 1 || r.TableID != 42 || len(r.Settlements) != 1 || r.Settlements[0].Result != ResultWin {
			t.Fatalf("unexpected report %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("round hook not called")
	}

	state := rt.State()
	if state.Revealing || state.Phase != PhaseBet || state.Round != 1 {
		t.Fatalf("unexpected state %+v", state.TableState)
	}
	if len(state.Logs) != 5 || state.Logs[4].Content != "round 1 settled" {
		t.Fatalf("unexpected logs %+v", state.Logs)
	}
}

func TestRuntimeSeatChangesDuringReveal(t *testing.T) {
	cfg := RuntimeConfig{RevealDelay: 200 * time.Millisecond, SettlePause: 200 * time.Millisecond}
	rt := newTestRuntime(t, cfg, Hooks{}, "Th", "6c", "Tc", "4d", "3h")

	send(t, rt, alice, "join")
	send(t, rt, alice, "increase_bet_small")
	send(t, rt, alice, "accept_bet")
	send(t, rt, alice, "stand")

	state := rt.State()
	if !state.Revealing || state.Phase != PhaseDealerAction || len(state.Dealer) != 2 {
		t.Fatalf("expected the reveal frame on screen, got %+v", state.TableState)
	}
	ok, err := rt.HandleCommand(context.Background(), Command{Kind: CmdIncreaseBetSmall, PlayerID: alice})
	if ok || err != nil {
		t.Fatalf("betting must wait for the reveal, got %v/%v", ok, err)
	}

	send(t, rt, bob, "join")
	send(t, rt, alice, "leave")
	state = rt.State()
	if !state.Revealing || state.Phase != PhaseDealerAction {
		t.Fatalf("seat changes must not cut the reveal short, got %+v", state.TableState)
	}
	if _, ok := state.Player(bob); ok {
		t.Fatalf("bob should appear only after the reveal")
	}

	waitFor(t, func() bool { return !rt.State().Revealing })
	state = rt.State()
	if state.Phase != PhaseBet || state.DealerLastScore != 17 {
		t.Fatalf("unexpected state after reveal %+v", state.TableState)
	}
	if _, ok := state.Player(bob); !ok {
		t.Fatalf("bob should be seated, got %+v", state.Players)
	}
	if _, ok := state.Player(alice); ok {
		t.Fatalf("alice should have left, got %+v", state.Players)
	}
	send(t, rt, bob, "increase_bet_small")
}

func TestRuntimeFaultsOnInvariantViolation(t *testing.T) {
	shoe := &Shoe{cfg: ShoeConfig{}, rng: rand.New(rand.NewSource(1))}
	rt := NewTableRuntime(NewTableWithShoe(7, DefaultRules(), NewMemoryLedger(100), shoe), RuntimeConfig{}, Hooks{})
	ch := rt.Subscribe(alice)
	<-ch

	send(t, rt, alice, "join")
	send(t, rt, alice, "increase_bet_small")
	ok, err := rt.HandleAction(context.Background(), alice, "p", "accept_bet")
	if ok || !errors.Is(err, appErr.ErrTableFaulted) {
		t.Fatalf("expected ErrTableFaulted, got %v/%v", ok, err)
	}
	if f := rt.Faulted(); !errors.Is(f, appErr.ErrShoeExhausted) {
		t.Fatalf("fault should carry the cause, got %v", f)
	}

	found := false
	for len(ch) > 0 {
		if msg := <-ch; msg.Type == "error" {
			found = true
		}
	}
	if !found {
		t.Fatalf("subscribers should be told the table halted")
	}

	if _, err := rt.HandleAction(context.Background(), alice, "p", "leave"); !errors.Is(err, appErr.ErrTableFaulted) {
		t.Fatalf("faulted table must refuse commands, got %v", err)
	}
}

func TestRuntimeActionsAndClose(t *testing.T) {
	rt := newTestRuntime(t, RuntimeConfig{}, Hooks{})
	ch := rt.Subscribe(alice)
	<-ch

	send(t, rt, alice, "ping")
	if msg := <-ch; msg.Type != "pong" {
		t.Fatalf("expected pong, got %+v", msg)
	}
	send(t, rt, alice, "rejoin")
	if msg := <-ch; msg.Type != "state" {
		t.Fatalf("expected state, got %+v", msg)
	}
	if _, err := rt.HandleAction(context.Background(), alice, "p", "split"); !errors.Is(err, appErr.ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}

	// A second subscription replaces the first.
	ch2 := rt.Subscribe(alice)
	if _, open := <-ch; open {
		t.Fatalf("old subscription should be closed")
	}
	<-ch2

	rt.Close()
	if _, open := <-ch2; open {
		t.Fatalf("close should disconnect subscribers")
	}
	if _, err := rt.HandleCommand(context.Background(), Command{Kind: CmdJoin, PlayerID: bob}); !errors.Is(err, appErr.ErrTableClosed) {
		t.Fatalf("expected ErrTableClosed, got %v", err)
	}
	if _, open := <-rt.Subscribe(bob); open {
		t.Fatalf("subscribing to a closed table should yield a closed channel")
	}
}

func TestRuntimeDisconnect(t *testing.T) {
	rt := newTestRuntime(t, RuntimeConfig{}, Hooks{}, "Th", "8c", "Tc", "7d")
	ctx := context.Background()
	chAlice := rt.Subscribe(alice)
	chBob := rt.Subscribe(bob)

	send(t, rt, alice, "join")
	send(t, rt, bob, "join")
	send(t, rt, alice, "increase_bet_small")
	send(t, rt, alice, "accept_bet")

	// bob walking away during betting frees the deal for alice.
	rt.Disconnect(ctx, bob, chBob)
	state := rt.State()
	if _, ok := state.Player(bob); ok {
		t.Fatalf("bob should have left on disconnect, got %+v", state.Players)
	}
	if state.Phase != PhasePlayerAction || state.Round != 1 {
		t.Fatalf("expected alice's round to be dealt, got %+v", state.TableState)
	}

	// A stale connection does not touch the newer one.
	chAlice2 := rt.Subscribe(alice)
	rt.Disconnect(ctx, alice, chAlice)
	if rt.subscribers[alice] != chAlice2 {
		t.Fatalf("stale disconnect dropped the live subscription")
	}

	// Mid-round the seat is kept.
	rt.Disconnect(ctx, alice, chAlice2)
	if _, ok := rt.subscribers[alice]; ok {
		t.Fatalf("disconnect should drop the subscription")
	}
	p, ok := rt.State().Player(alice)
	if !ok || p.State != StateAction || p.Bet != 10 {
		t.Fatalf("alice should still be playing, got %+v/%v", p, ok)
	}
}
