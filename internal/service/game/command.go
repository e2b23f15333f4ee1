package game

import (
	"fmt"
	"strings"

	appErr "bj-service/pkg/errors"
)

type CommandKind string

const (
	CmdJoin              CommandKind = "join"
	CmdLeave             CommandKind = "leave"
	CmdIncreaseBetSmall  CommandKind = "increase_bet_small"
	CmdIncreaseBetMedium CommandKind = "increase_bet_medium"
	CmdIncreaseBetLarge  CommandKind = "increase_bet_large"
	CmdDecreaseBetSmall  CommandKind = "decrease_bet_small"
	CmdDecreaseBetLarge  CommandKind = "decrease_bet_large"
	CmdClearBet          CommandKind = "clear_bet"
	CmdAcceptBet         CommandKind = "accept_bet"
	CmdHit               CommandKind = "hit"
	CmdStand             CommandKind = "stand"
	CmdDoubleDown        CommandKind = "double_down"
	CmdSurrender         CommandKind = "surrender"
)

var commandKinds = []CommandKind{
	CmdJoin, CmdLeave,
	CmdIncreaseBetSmall, CmdIncreaseBetMedium, CmdIncreaseBetLarge,
	CmdDecreaseBetSmall, CmdDecreaseBetLarge,
	CmdClearBet, CmdAcceptBet,
	CmdHit, CmdStand, CmdDoubleDown, CmdSurrender,
}

// Command is one player action. Name is only read by join.
type Command struct {
	Kind     CommandKind
	PlayerID int64
	Name     string
}

// CommandKinds returns every command token in wire order.
func CommandKinds() []CommandKind {
	return append([]CommandKind(nil), commandKinds...)
}

func ParseCommand(token string) (CommandKind, error) {
	token = strings.ToLower(strings.TrimSpace(token))
	for _, k := range commandKinds {
		if string(k) == token {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", appErr.ErrUnknownCommand, token)
}

// allowedCommands lists what the session could send right now. It mirrors the
// guards in Table.dispatch and is only used for presentation.
func allowedCommands(p *PlayerSession, phase Phase) []CommandKind {
	if p == nil {
		return []CommandKind{CmdJoin}
	}
	out := []CommandKind{CmdLeave}
	switch {
	case p.canBet(phase):
		out = append(out, CmdIncreaseBetSmall, CmdIncreaseBetMedium, CmdIncreaseBetLarge)
		if p.Bet > 0 {
			out = append(out, CmdDecreaseBetSmall, CmdDecreaseBetLarge, CmdClearBet, CmdAcceptBet)
		}
	case p.canAct(phase):
		out = append(out, CmdHit, CmdStand, CmdDoubleDown)
		if p.canSurrender(phase) {
			out = append(out, CmdSurrender)
		}
	}
	return out
}
