package game

import (
	"math/rand"
	"testing"
)

func seated(id int64, state PlayState, bet int64, cards ...string) *PlayerSession {
	return &PlayerSession{PlayerID: id, State: state, Bet: bet, Hand: MustParseCards(cards...)}
}

func TestDealerTarget(t *testing.T) {
	cases := []struct {
		name     string
		sessions []*PlayerSession
		want     int
	}{
		{"nobody", nil, 0},
		{"capped at 17", []*PlayerSession{seated(1, StateStand, 10, "Th", "Qd")}, 17},
		{"below 17", []*PlayerSession{seated(1, StateStand, 10, "Th", "4d")}, 14},
		{"bust and surrender ignored", []*PlayerSession{
			seated(1, StateBust, 10, "Th", "4d", "Kc"),
			seated(2, StateSurrender, 10, "9h", "7d"),
		}, 0},
		{"natural ignored", []*PlayerSession{
			seated(1, StateStand, 10, "As", "Kd"),
			seated(2, StateStand, 10, "9h", "3d"),
		}, 12},
		{"spectators ignored", []*PlayerSession{
			{PlayerID: 1, State: StateWaiting},
			seated(2, StateStand, 10, "9h", "6d"),
		}, 15},
		{"three card 21 counts", []*PlayerSession{seated(1, StateStand, 10, "7h", "7s", "7d")}, 17},
	}
	for _, tc := range cases {
		if got := DealerTarget(tc.sessions); got != tc.want {
			t.Fatalf("%s: expected target %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestPlayDealerStopsAtTarget(t *testing.T) {
	shoe := NewStackedShoe(ShoeConfig{}, rand.New(rand.NewSource(1)), MustParseCards("3c", "4d", "9s"))
	start := MustParseCards("9c", "2h")

	final, drawn := PlayDealer(shoe, start, 17)
	if len(drawn) != 2 || Score(final) != 18 {
		t.Fatalf("expected two draws to 18, got %v (%d)", final, Score(final))
	}
	if len(start) != 2 {
		t.Fatalf("input hand must not be modified")
	}

	final, drawn = PlayDealer(shoe, start, 0)
	if len(drawn) != 0 || len(final) != 2 {
		t.Fatalf("expected no draws with target 0, got %v", drawn)
	}
}

func TestSettlePriority(t *testing.T) {
	cases := []struct {
		name   string
		player *PlayerSession
		dealer []string
		result Result
		delta  int64
	}{
		{"surrender beats everything", seated(1, StateSurrender, 15, "9h", "7d"), []string{"Th", "6c", "Kd"}, ResultSurrender, -8},
		{"dealer bust pays standing hand", seated(1, StateStand, 10, "Th", "2d"), []string{"Th", "6c", "Kd"}, ResultWin, 10},
		{"both bust push", seated(1, StateBust, 10, "Th", "6d", "9s"), []string{"Th", "6c", "Kd"}, ResultPush, 0},
		{"natural beats drawn 21", seated(1, StateStand, 10, "As", "Qd"), []string{"7h", "7c", "7d"}, ResultWin, 10},
		{"two naturals push", seated(1, StateStand, 10, "As", "Qd"), []string{"Ac", "Kh"}, ResultPush, 0},
		{"player bust loses", seated(1, StateBust, 10, "Th", "6d", "9s"), []string{"Th", "8c"}, ResultLose, -10},
		{"higher score wins", seated(1, StateStand, 10, "Th", "9d"), []string{"Th", "8c"}, ResultWin, 10},
		{"equal score push", seated(1, StateStand, 10, "Th", "8d"), []string{"9h", "9c"}, ResultPush, 0},
		{"lower score loses", seated(1, StateStand, 10, "Th", "7d"), []string{"9h", "9c"}, ResultLose, -10},
		{"drawn 21 vs dealer natural push", seated(1, StateStand, 10, "7h", "7s", "7d"), []string{"Ac", "Kh"}, ResultPush, 0},
	}
	for _, tc := range cases {
		got := Settle([]*PlayerSession{tc.player}, MustParseCards(tc.dealer...))
		if len(got) != 1 {
			t.Fatalf("%s: expected one settlement, got %d", tc.name, len(got))
		}
		if got[0].Result != tc.result || got[0].Delta != tc.delta {
			t.Fatalf("%s: expected %s/%d, got %s/%d", tc.name, tc.result, tc.delta, got[0].Result, got[0].Delta)
		}
	}
}

func TestSettleSkipsSpectators(t *testing.T) {
	sessions := []*PlayerSession{
		{PlayerID: 1, State: StateWaiting},
		{PlayerID: 2, State: StateBetting, Bet: 10},
		seated(3, StateStand, 10, "Th", "9d"),
	}
	got := Settle(sessions, MustParseCards("Th", "8c"))
	if len(got) != 1 || got[0].PlayerID != 3 {
		t.Fatalf("expected only player 3 settled, got %+v", got)
	}
}
