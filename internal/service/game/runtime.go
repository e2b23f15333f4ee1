package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	appErr "bj-service/pkg/errors"
	"bj-service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultRevealDelay = 1250 * time.Millisecond
	defaultSettlePause = 3 * time.Second
	maxLogItems        = 50
)

type RuntimeConfig struct {
	RevealDelay time.Duration
	SettlePause time.Duration
}

func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		RevealDelay: defaultRevealDelay,
		SettlePause: defaultSettlePause,
	}
}

// Hooks receive results of a runtime. They are called on their own
// goroutine and must not call back into the runtime.
type Hooks struct {
	OnRound     func(report RoundReport)
	OnIncidents func(tableID int64, incidents []LedgerIncident)
	OnSnapshot  func(state RuntimeState)
}

type LogItem struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Content   string `json:"content"`
}

// RuntimeState is what subscribers see: the frame currently on screen plus
// the recent action log.
type RuntimeState struct {
	TableState
	Revealing bool      `json:"revealing"`
	Logs      []LogItem `json:"logs"`
}

type OutgoingMessage struct {
	Type string      `json:"type"`
	Seq  int64       `json:"seq"`
	Data interface{} `json:"data"`
}

type scheduledFrame struct {
	delay time.Duration
	frame Frame
}

// TableRuntime serializes commands for one Table and paces the frames each
// command produces out to subscribers.
type TableRuntime struct {
	tableID int64
	table   *Table
	cfg     RuntimeConfig
	hooks   Hooks

	current TableState
	pending []scheduledFrame
	timer   *time.Timer
	logs    []LogItem
	seq     int64

	subscribers map[int64]chan OutgoingMessage

	faulted error
	closed  bool

	mu sync.Mutex
}

func NewTableRuntime(table *Table, cfg RuntimeConfig, hooks Hooks) *TableRuntime {
	return &TableRuntime{
		tableID:     table.ID(),
		table:       table,
		cfg:         cfg,
		hooks:       hooks,
		current:     table.Snapshot(),
		logs:        []LogItem{},
		subscribers: make(map[int64]chan OutgoingMessage),
	}
}

func (rt *TableRuntime) TableID() int64 {
	return rt.tableID
}

// Subscribe registers the user's outbound channel, replacing any earlier
// one, and queues the current state on it. A closed runtime hands out a
// closed channel.
func (rt *TableRuntime) Subscribe(userID int64) chan OutgoingMessage {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.closed {
		ch := make(chan OutgoingMessage)
		close(ch)
		return ch
	}
	if old, ok := rt.subscribers[userID]; ok {
		close(old)
	}
	ch := make(chan OutgoingMessage, 16)
	rt.subscribers[userID] = ch
	rt.pushStateLocked(userID)
	return ch
}

// Disconnect drops a subscription when its connection goes away. A player
// whose last connection drops during betting gives up the seat so the deal
// is not held up; nothing is at stake in that phase. Once cards are out the
// seat stays and the round plays on.
func (rt *TableRuntime) Disconnect(ctx context.Context, userID int64, ch chan OutgoingMessage) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if !rt.unsubscribeLocked(userID, ch) || rt.faulted != nil || rt.table.Phase() != PhaseBet {
		return
	}
	if _, seated := rt.table.Session(userID); !seated {
		return
	}
	if _, err := rt.applyLocked(ctx, Command{Kind: CmdLeave, PlayerID: userID}); err != nil {
		logger.ForTable(rt.tableID).Warn("leave on disconnect failed", zap.Int64("userID", userID), zap.Error(err))
	}
}

func (rt *TableRuntime) unsubscribeLocked(userID int64, ch chan OutgoingMessage) bool {
	cur, ok := rt.subscribers[userID]
	if !ok || cur != ch {
		return false
	}
	delete(rt.subscribers, userID)
	close(cur)
	return true
}

// State returns the frame currently shown to subscribers.
func (rt *TableRuntime) State() RuntimeState {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.exportStateLocked()
}

// HandleAction is the transport entry point: it maps a wire token to a
// command. "ping" and "rejoin" are answered directly.
func (rt *TableRuntime) HandleAction(ctx context.Context, userID int64, name, action string) (bool, error) {
	switch action {
	case "ping":
		rt.mu.Lock()
		rt.pushMessageLocked(userID, OutgoingMessage{Type: "pong", Seq: rt.nextSeqLocked(), Data: map[string]interface{}{"message": "pong"}})
		rt.mu.Unlock()
		return true, nil
	case "rejoin":
		rt.mu.Lock()
		rt.pushStateLocked(userID)
		rt.mu.Unlock()
		return true, nil
	}

	kind, err := ParseCommand(action)
	if err != nil {
		return false, err
	}
	return rt.HandleCommand(ctx, Command{Kind: kind, PlayerID: userID, Name: name})
}

// HandleCommand applies one command. While the dealer reveal of the previous
// round is still playing only join and leave are accepted; their frames are
// shown after the reveal.
func (rt *TableRuntime) HandleCommand(ctx context.Context, cmd Command) (bool, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.closed {
		return false, appErr.ErrTableClosed
	}
	if rt.faulted != nil {
		return false, appErr.ErrTableFaulted
	}
	if len(rt.pending) > 0 && cmd.Kind != CmdJoin && cmd.Kind != CmdLeave {
		return false, nil
	}
	return rt.applyLocked(ctx, cmd)
}

func (rt *TableRuntime) applyLocked(ctx context.Context, cmd Command) (accepted bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			rt.faultLocked(r)
			accepted = false
			err = fmt.Errorf("%w: %v", appErr.ErrTableFaulted, r)
		}
	}()

	out, err := rt.table.Apply(ctx, cmd)
	if !out.Accepted {
		return false, err
	}
	rt.appendLogLocked(string(cmd.Kind), cmd.PlayerID)

	if len(out.Incidents) > 0 {
		for _, inc := range out.Incidents {
			logger.ForTable(rt.tableID).Error("ledger delta not applied",
				zap.Int("round", inc.Round),
				zap.Int64("userID", inc.PlayerID),
				zap.Int64("delta", inc.Delta),
				zap.String("reason", string(inc.Reason)),
				zap.Error(inc.Err),
			)
		}
		if rt.hooks.OnIncidents != nil {
			go rt.hooks.OnIncidents(rt.tableID, out.Incidents)
		}
	} else if err != nil {
		logger.ForTable(rt.tableID).Warn("ledger call failed",
			zap.String("command", string(cmd.Kind)),
			zap.Error(err),
		)
	}

	if out.Report != nil {
		rt.appendLogLocked(fmt.Sprintf("round %d settled", out.Report.Round), 0)
		if rt.hooks.OnRound != nil {
			go rt.hooks.OnRound(*out.Report)
		}
	}

	rt.playLocked(out.Frames)
	return true, err
}

// Close stops playback and disconnects subscribers.
func (rt *TableRuntime) Close() {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.closed {
		return
	}
	rt.closed = true
	rt.cancelTimerLocked()
	rt.pending = nil
	for uid, ch := range rt.subscribers {
		delete(rt.subscribers, uid)
		close(ch)
	}
}

func (rt *TableRuntime) Faulted() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.faulted
}

// playLocked queues frames for display. Everything up to the dealer reveal
// is shown at once (only the last of those frames matters); each dealer
// card and the settlement wait RevealDelay, the return to betting waits
// SettlePause. Frames queued behind a running playback wait their turn.
func (rt *TableRuntime) playLocked(frames []Frame) {
	playing := len(rt.pending) > 0
	revealAt := len(frames)
	for i, f := range frames {
		if f.Kind == FrameReveal {
			revealAt = i
			break
		}
	}
	if revealAt > 0 {
		rt.pending = append(rt.pending, scheduledFrame{frame: frames[revealAt-1]})
	}
	for _, f := range frames[revealAt:] {
		var delay time.Duration
		switch f.Kind {
		case FrameDealerDraw, FrameSettled:
			delay = rt.cfg.RevealDelay
		case FrameReset:
			delay = rt.cfg.SettlePause
		}
		rt.pending = append(rt.pending, scheduledFrame{delay: delay, frame: f})
	}
	if !playing {
		rt.scheduleNextLocked()
	}
}

func (rt *TableRuntime) scheduleNextLocked() {
	for len(rt.pending) > 0 && rt.pending[0].delay <= 0 {
		rt.showLocked(rt.popFrameLocked())
	}
	if len(rt.pending) == 0 {
		rt.timer = nil
		return
	}
	rt.timer = time.AfterFunc(rt.pending[0].delay, func() {
		rt.mu.Lock()
		defer rt.mu.Unlock()
		if rt.closed || len(rt.pending) == 0 {
			return
		}
		rt.showLocked(rt.popFrameLocked())
		rt.scheduleNextLocked()
	})
}

func (rt *TableRuntime) popFrameLocked() Frame {
	f := rt.pending[0].frame
	rt.pending = rt.pending[1:]
	return f
}

func (rt *TableRuntime) showLocked(f Frame) {
	rt.current = f.State
	rt.broadcastStateLocked()
	if rt.hooks.OnSnapshot != nil {
		go rt.hooks.OnSnapshot(rt.exportStateLocked())
	}
}

func (rt *TableRuntime) faultLocked(r interface{}) {
	cause, ok := r.(error)
	if !ok {
		cause = fmt.Errorf("%v", r)
	}
	rt.faulted = errors.Join(appErr.ErrTableFaulted, cause)
	rt.cancelTimerLocked()
	rt.pending = nil
	logger.ForTable(rt.tableID).Error("table invariant violated, table halted",
		zap.Int("round", rt.table.Round()),
		zap.Error(cause),
	)
	seq := rt.nextSeqLocked()
	for uid := range rt.subscribers {
		rt.pushMessageLocked(uid, OutgoingMessage{
			Type: "error",
			Seq:  seq,
			Data: map[string]interface{}{"message": "table halted"},
		})
	}
}

func (rt *TableRuntime) pushStateLocked(userID int64) {
	rt.pushMessageLocked(userID, OutgoingMessage{
		Type: "state",
		Seq:  rt.nextSeqLocked(),
		Data: rt.exportStateLocked(),
	})
}

func (rt *TableRuntime) broadcastStateLocked() {
	state := rt.exportStateLocked()
	stateSeq := rt.nextSeqLocked()
	for uid := range rt.subscribers {
		rt.pushMessageLocked(uid, OutgoingMessage{
			Type: "state",
			Seq:  stateSeq,
			Data: state,
		})
	}
}

func (rt *TableRuntime) pushMessageLocked(userID int64, msg OutgoingMessage) {
	if ch, ok := rt.subscribers[userID]; ok {
		select {
		case ch <- msg:
		default:
			logger.ForTable(rt.tableID).Warn("ws subscriber channel full", zap.Int64("userID", userID))
		}
	}
}

func (rt *TableRuntime) nextSeqLocked() int64 {
	rt.seq++
	return rt.seq
}

func (rt *TableRuntime) exportStateLocked() RuntimeState {
	return RuntimeState{
		TableState: rt.current,
		Revealing:  len(rt.pending) > 0,
		Logs:       append([]LogItem(nil), rt.logs...),
	}
}

func (rt *TableRuntime) appendLogLocked(action string, userID int64) {
	content := action
	if userID != 0 {
		content = fmt.Sprintf("%s by %d", action, userID)
	}
	rt.logs = append(rt.logs, LogItem{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
		Content:   content,
	})
	if len(rt.logs) > maxLogItems {
		rt.logs = rt.logs[len(rt.logs)-maxLogItems:]
	}
}

func (rt *TableRuntime) cancelTimerLocked() {
	if rt.timer != nil {
		rt.timer.Stop()
		rt.timer = nil
	}
}
