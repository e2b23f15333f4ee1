package main

import (
	"bufio"
	"context"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"bj-service/internal/service/game"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "bjcli",
		Short:        "Local blackjack table for the terminal",
		SilenceUsage: true,
	}
	root.AddCommand(newPlayCmd(), newCommandsCmd())
	return root
}

type playOptions struct {
	players []string
	balance int64
	seed    int64
	decks   int
	reserve int
	stack   []string
}

func newPlayCmd() *cobra.Command {
	opts := playOptions{}
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Seat players at an in-memory table and read '<player> <command>' lines from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringSliceVar(&opts.players, "players", []string{"alice", "bob"}, "players to seat")
	cmd.Flags().Int64Var(&opts.balance, "balance", 1000, "starting balance of every player")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "shuffle seed (0 = time based)")
	cmd.Flags().IntVar(&opts.decks, "decks", 4, "decks in the shoe")
	cmd.Flags().IntVar(&opts.reserve, "reserve", 26, "refill when fewer cards remain")
	cmd.Flags().StringSliceVar(&opts.stack, "stack", nil, "cards dealt first, in order (e.g. As,Kd,9c)")
	return cmd
}

func newCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List the command tokens a player can send",
		RunE: func(cmd *cobra.Command, args []string) error {
			data := pterm.TableData{{"Command"}}
			for _, kind := range game.CommandKinds() {
				data = append(data, []string{string(kind)})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
		},
	}
}

func runPlay(ctx context.Context, opts playOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	seed := opts.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	ledger := game.NewMemoryLedger(opts.balance)
	rules := game.Rules{Shoe: game.ShoeConfig{Decks: opts.decks, Reserve: opts.reserve}}
	rng := rand.New(rand.NewSource(seed))
	var table *game.Table
	if len(opts.stack) > 0 {
		cards := make([]game.Card, 0, len(opts.stack))
		for _, code := range opts.stack {
			c, err := game.ParseCard(strings.TrimSpace(code))
			if err != nil {
				return err
			}
			cards = append(cards, c)
		}
		rules = rules.WithDefaults()
		table = game.NewTableWithShoe(1, rules, ledger, game.NewStackedShoe(rules.Shoe, rng, cards))
	} else {
		table = game.NewTable(1, rules, ledger, rng)
	}

	ids := make(map[string]int64, len(opts.players))
	for i, name := range opts.players {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id := int64(i + 1)
		ids[name] = id
		if _, err := table.Apply(ctx, game.Command{Kind: game.CmdJoin, PlayerID: id, Name: name}); err != nil {
			return err
		}
	}

	pterm.DefaultSection.Println("Blackjack")
	pterm.Info.Printfln("seed %d, %d players seated. Type '<player> <command>', 'show' or 'quit'.", seed, len(ids))
	render(table.Snapshot(), ledger)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "quit", "exit":
			return nil
		case "show":
			render(table.Snapshot(), ledger)
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			pterm.Warning.Println("expected '<player> <command>'")
			continue
		}
		id, ok := ids[fields[0]]
		if !ok {
			pterm.Warning.Printfln("unknown player %q", fields[0])
			continue
		}
		kind, err := game.ParseCommand(fields[1])
		if err != nil {
			pterm.Warning.Println(err.Error())
			continue
		}

		out, err := table.Apply(ctx, game.Command{Kind: kind, PlayerID: id, Name: fields[0]})
		if err != nil {
			pterm.Error.Println(err.Error())
		}
		if !out.Accepted {
			pterm.Warning.Printfln("%s: %s not allowed now", fields[0], kind)
			continue
		}
		for _, f := range out.Frames {
			if f.Kind == game.FrameReveal || f.Kind == game.FrameDealerDraw {
				renderDealer(f.State)
			}
		}
		if out.Report != nil {
			renderReport(*out.Report, ids)
		}
		render(table.Snapshot(), ledger)
	}
	return scanner.Err()
}

func render(state game.TableState, ledger *game.MemoryLedger) {
	renderDealer(state)
	data := pterm.TableData{{"Player", "Cards", "Score", "Bet", "Balance", "State", "Last", "Net", "Allowed"}}
	for _, p := range state.Players {
		balance, _ := ledger.GetBalance(context.Background(), p.PlayerID)
		last := ""
		if p.LastResult != "" {
			last = fmt.Sprintf("%s %d", p.LastResult, p.LastScore)
		}
		data = append(data, []string{
			p.Name,
			cardsString(p.Cards),
			scoreString(p.Score, p.Soft, len(p.Cards)),
			fmt.Sprint(p.Bet),
			fmt.Sprint(balance),
			string(p.State),
			last,
			fmt.Sprint(p.SessionNet),
			joinKinds(p.Allowed),
		})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Render()
}

func renderDealer(state game.TableState) {
	cards := cardsString(state.Dealer)
	if state.DealerHidden {
		cards += " ??"
	}
	title := fmt.Sprintf("Round %d | %s", state.Round, state.Phase)
	body := fmt.Sprintf("Dealer: %s  (%d)", cards, state.DealerScore)
	if state.DealerStatus != "" {
		body += " " + pterm.Red(string(state.DealerStatus))
	}
	if state.DealerLastScore > 0 {
		body += fmt.Sprintf("\nLast round dealer had %d", state.DealerLastScore)
	}
	body += fmt.Sprintf("\nCards left in shoe: %d", state.ShoeRemaining)
	pterm.DefaultBox.WithTitle(title).Println(body)
}

func renderReport(r game.RoundReport, ids map[string]int64) {
	names := make(map[int64]string, len(ids))
	for name, id := range ids {
		names[id] = name
	}
	for _, s := range r.Settlements {
		msg := fmt.Sprintf("%s %s with %d (%+d)", names[s.PlayerID], s.Result, s.Score, s.Delta)
		switch s.Result {
		case game.ResultWin:
			pterm.Success.Println(msg)
		case game.ResultLose, game.ResultSurrender:
			pterm.Error.Println(msg)
		default:
			pterm.Info.Println(msg)
		}
	}
}

func cardsString(cards []game.Card) string {
	parts := make([]string, len(cards))
	for i, c := range cards {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

func scoreString(score int, soft bool, n int) string {
	if n == 0 {
		return ""
	}
	if soft {
		return fmt.Sprintf("soft %d", score)
	}
	return fmt.Sprint(score)
}

func joinKinds(kinds []game.CommandKind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ",")
}
