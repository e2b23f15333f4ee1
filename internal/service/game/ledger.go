package game

import (
	"context"
	"fmt"
	"sync"

	appErr "bj-service/pkg/errors"
)

type LedgerReason string

const (
	ReasonWin       LedgerReason = "bj_win"
	ReasonLose      LedgerReason = "bj_lose"
	ReasonSurrender LedgerReason = "bj_surrender"
	ReasonForfeit   LedgerReason = "bj_forfeit"
)

// Adjustment is a single balance change requested by a table.
type Adjustment struct {
	PlayerID int64
	Delta    int64
	Reason   LedgerReason
	TableID  int64
	Round    int
}

// Ledger is the account store the engine settles against. Implementations
// must apply an Adjustment at most once per call; the engine never retries.
type Ledger interface {
	GetBalance(ctx context.Context, playerID int64) (int64, error)
	AdjustBalance(ctx context.Context, adj Adjustment) error
}

// LedgerIncident is a delta the ledger did not accept. It has to be resolved
// by an operator because the round it belongs to is already public.
type LedgerIncident struct {
	Adjustment
	Err error
}

// MemoryLedger keeps balances in process. It backs the terminal driver and
// tests, and can be told to fail.
type MemoryLedger struct {
	mu          sync.Mutex
	balances    map[int64]int64
	history     []Adjustment
	failGet     map[int64]bool
	failAdjust  map[int64]bool
	startingBal int64
}

func NewMemoryLedger(startingBalance int64) *MemoryLedger {
	return &MemoryLedger{
		balances:    make(map[int64]int64),
		failGet:     make(map[int64]bool),
		failAdjust:  make(map[int64]bool),
		startingBal: startingBalance,
	}
}

func (l *MemoryLedger) SetBalance(playerID, balance int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[playerID] = balance
}

// FailFor makes lookups and/or adjustments for the player return
// ErrLedgerUnavailable until cleared with FailFor(id, false, false).
func (l *MemoryLedger) FailFor(playerID int64, get, adjust bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failGet[playerID] = get
	l.failAdjust[playerID] = adjust
}

func (l *MemoryLedger) GetBalance(_ context.Context, playerID int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failGet[playerID] {
		return 0, fmt.Errorf("%w: balance lookup for %d", appErr.ErrLedgerUnavailable, playerID)
	}
	return l.balanceLocked(playerID), nil
}

func (l *MemoryLedger) AdjustBalance(_ context.Context, adj Adjustment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failAdjust[adj.PlayerID] {
		return fmt.Errorf("%w: adjust %d for %d", appErr.ErrLedgerUnavailable, adj.Delta, adj.PlayerID)
	}
	l.balances[adj.PlayerID] = l.balanceLocked(adj.PlayerID) + adj.Delta
	l.history = append(l.history, adj)
	return nil
}

func (l *MemoryLedger) History() []Adjustment {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Adjustment(nil), l.history...)
}

func (l *MemoryLedger) balanceLocked(playerID int64) int64 {
	bal, ok := l.balances[playerID]
	if !ok {
		bal = l.startingBal
		l.balances[playerID] = bal
	}
	return bal
}
