package app

import (
	"fmt"
	"strings"

	"upbot/internal/config"
)

// StartupSummary is printed once before the loop starts.
type StartupSummary struct {
	Env       string
	Exchange  string
	Quote     string
	HTTPAddr  string
	StatePath string
	History   string
	Mailbox   string
	Strategy  config.Strategy
}

func newStartupSummary(cfg *config.Config, exchange string, strat config.Strategy) *StartupSummary {
	addr := "-"
	if cfg.App.HTTPEnabled {
		addr = cfg.App.HTTPAddr
	}
	return &StartupSummary{
		Env:       cfg.App.Env,
		Exchange:  exchange,
		Quote:     cfg.Exchange.Quote,
		HTTPAddr:  addr,
		StatePath: cfg.Storage.StatePath,
		History:   cfg.Storage.HistoryDBPath,
		Mailbox:   cfg.Storage.CommandPath,
		Strategy:  strat,
	}
}

func (s *StartupSummary) String() string {
	st := s.Strategy
	var b strings.Builder
	line := strings.Repeat("=", 72)
	fmt.Fprintln(&b, line)
	fmt.Fprintln(&b, "STARTUP SUMMARY")
	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, "  env:        %s\n", s.Env)
	fmt.Fprintf(&b, "  exchange:   %s (%s)\n", s.Exchange, s.Quote)
	fmt.Fprintf(&b, "  http:       %s\n", s.HTTPAddr)
	fmt.Fprintf(&b, "  state:      %s\n", s.StatePath)
	fmt.Fprintf(&b, "  history:    %s\n", s.History)
	fmt.Fprintf(&b, "  mailbox:    %s\n", s.Mailbox)
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "  entries:    %.0f x %d slots, score>=%d slope>=%.2f, timeout %dm\n",
		st.TradeAmount, st.MaxSlots, st.MinEntryScore, st.MinSlope, st.BuyTimeoutMinutes)
	fmt.Fprintf(&b, "  scan:       %s %s window=%d universe=%d\n", st.Scan.Mode, st.Scan.Interval, st.Scan.Window, st.Scan.UniverseLimit)
	fmt.Fprintf(&b, "  exits:      sl=%.2f%% be=%.2f%%/%.2f%% ts=%.2f%%/%.2f%% tp>=%.2f%%\n",
		st.Exit.StopLoss*100, st.Exit.BreakEvenTrigger*100, st.Exit.BreakEvenFloor*100,
		st.Exit.TrailingTrigger*100, st.Exit.TrailingGap*100, st.Exit.MinTakeProfit*100)
	if st.Exit.MaxAddBuys > 0 {
		fmt.Fprintf(&b, "  add-buy:    up to %d at %.2f%%, score>=%d\n", st.Exit.MaxAddBuys, st.Exit.AddBuyTrigger*100, st.Exit.AddBuyMinScore)
	} else {
		fmt.Fprintln(&b, "  add-buy:    off")
	}
	fmt.Fprintf(&b, "  filter:     %v (%s)\n", st.MarketFilter.Enabled, st.MarketFilter.Reference)
	fmt.Fprint(&b, line)
	return b.String()
}

func (s *StartupSummary) Print() {
	fmt.Println(s.String())
}
