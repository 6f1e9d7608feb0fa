// history_cmd.go - Exchange log command handler.
//
// Subcommands:
//   history search TEXT [--provider ID] [--model NAME] [--session NAME] [--limit N]
//   history stats                Aggregate usage statistics
//   history clear                Delete the whole exchange log
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/echomind/internal/history"
	"github.com/jeranaias/echomind/internal/util"
)

// HandleHistory dispatches the history subcommands.
func HandleHistory(args Args) error {
	log, err := openHistory()
	if err != nil {
		return err
	}
	defer log.Close()

	sub := ""
	if len(args.Rest) > 0 {
		sub = args.Rest[0]
	}

	switch sub {
	case "search":
		return historySearch(log, args)
	case "", "stats":
		return historyStats(log)
	case "clear":
		if err := log.Clear(context.Background()); err != nil {
			return err
		}
		fmt.Println(SuccessStyle.Render("History cleared."))
		return nil
	default:
		return fmt.Errorf("unknown history subcommand %q (try search, stats, clear)", sub)
	}
}

func historySearch(log *history.Log, args Args) error {
	text := ""
	if len(args.Rest) > 1 {
		text = strings.Join(args.Rest[1:], " ")
	}

	entries, err := log.Search(context.Background(), history.Query{
		Text:      text,
		Provider:  args.Provider,
		Model:     args.Model,
		SessionID: args.Session,
		Limit:     args.Limit,
	})
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println(DimStyle.Render("No matching exchanges."))
		return nil
	}

	for _, e := range entries {
		header := fmt.Sprintf("%s  %s/%s  session:%s",
			e.When.Local().Format("2006-01-02 15:04"), e.Provider, e.Model, e.SessionID)
		fmt.Println(DimStyle.Render(header))
		if e.Hashed {
			fmt.Println("  " + DimStyle.Render("(encrypted session, content withheld)"))
			continue
		}
		fmt.Println("  " + PromptStyle.Render("Q: ") + util.TruncateRunes(util.FirstLine(e.Prompt), 100))
		fmt.Println("  " + AssistantStyle.Render("A: ") + util.TruncateRunes(util.FirstLine(e.Reply), 100))
	}
	return nil
}

func historyStats(log *history.Log) error {
	st, err := log.Stats(context.Background())
	if err != nil {
		return err
	}

	fmt.Println(SectionStyle.Render("Usage"))
	fmt.Println(LabelStyle.Render("Exchanges:") + fmt.Sprintf("%d", st.TotalExchanges))
	fmt.Println(LabelStyle.Render("Sessions:") + fmt.Sprintf("%d", st.TotalSessions))
	fmt.Println(LabelStyle.Render("Tokens:") + fmt.Sprintf("%d in / %d out", st.PromptTokens, st.CompletionTokens))
	fmt.Println(LabelStyle.Render("Avg latency:") + st.AverageLatency.Round(time.Millisecond).String())

	if len(st.ByProvider) > 0 {
		fmt.Println(SectionStyle.Render("Providers"))
		for _, c := range st.ByProvider {
			fmt.Printf("  %s %d\n", LabelStyle.Render(c.Name+":"), c.N)
		}
	}
	if len(st.ByModel) > 0 {
		fmt.Println(SectionStyle.Render("Models"))
		for _, c := range st.ByModel {
			fmt.Printf("  %s %d\n", LabelStyle.Render(c.Name+":"), c.N)
		}
	}
	if len(st.ActivityByDay) > 0 {
		fmt.Println(SectionStyle.Render("Activity"))
		days := make([]string, 0, len(st.ActivityByDay))
		for d := range st.ActivityByDay {
			days = append(days, d)
		}
		sort.Strings(days)
		for _, d := range days {
			fmt.Printf("  %s %d\n", LabelStyle.Render(d+":"), st.ActivityByDay[d])
		}
	}
	return nil
}
