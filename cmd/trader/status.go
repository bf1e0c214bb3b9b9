package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"kraken-auto-trader-go/internal/config"
	"kraken-auto-trader-go/internal/risk"
	"kraken-auto-trader-go/internal/trader"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func statusCommand(cfg config.Config, out io.Writer) error {
	st, err := trader.ReadStatus(cfg.Engine.StatusFile())
	if err != nil {
		return err
	}
	state, err := risk.LoadState(cfg.Risk.StateFile, time.Now().UTC())
	if err != nil {
		fmt.Fprintf(out, "warning: %v\n", err)
	}
	limits, err := risk.MergeLimits(risk.DefaultLimits(), cfg.Risk.Limits)
	if err != nil {
		fmt.Fprintf(out, "warning: %v\n", err)
	}
	renderStatus(out, st, risk.Summarize(state, limits))
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func orDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

// renderStatus prints the engine snapshot followed by the risk state.
func renderStatus(out io.Writer, st trader.Status, summary risk.Summary) {
	mode := "DRY RUN"
	if !st.DryRun {
		mode = "LIVE"
	}
	lastError := "-"
	if st.LastError != nil {
		lastError = *st.LastError
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle("TRADING ENGINE")
	t.SetStyle(table.StyleRounded)
	t.AppendRows([]table.Row{
		{"State", strings.ToUpper(string(st.State))},
		{"Mode", mode},
		{"Run ID", st.RunID},
		{"Started", formatTime(st.StartedAt)},
		{"Last cycle", formatTime(st.LastCycleAt)},
		{"Cycles", st.Cycles},
		{"Signals (last cycle)", st.ProcessedSignals},
		{"Strategies", orDash(st.ActiveStrategies)},
		{"Pairs", orDash(st.ActivePairs)},
		{"Last error", lastError},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 20, Align: text.AlignLeft},
		{Number: 2, WidthMin: 30, WidthMax: 60, Align: text.AlignLeft},
	})
	t.Render()

	r := table.NewWriter()
	r.SetOutputMirror(out)
	r.SetTitle("RISK STATE " + summary.AsOf)
	r.SetStyle(table.StyleRounded)
	r.AppendRows([]table.Row{
		{"Daily trades", summary.DailyTrades},
		{"Daily loss", fmt.Sprintf("%.2f", summary.DailyLoss)},
		{"Daily realised PnL", fmt.Sprintf("%.2f", summary.DailyRealisedPnL)},
		{"Loss limit alerted", summary.DailyLossAlerted},
	})
	if len(summary.Positions) > 0 {
		r.AppendSeparator()
		pairs := make([]string, 0, len(summary.Positions))
		for pair := range summary.Positions {
			pairs = append(pairs, pair)
		}
		sort.Strings(pairs)
		for _, pair := range pairs {
			pos := summary.Positions[pair]
			r.AppendRow(table.Row{pair, fmt.Sprintf("%s %.6f @ %.2f", pos.Direction, pos.Volume, pos.EntryPrice)})
		}
	}
	r.Render()
}
