package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/alanyoungcy/esportsarb/internal/domain"
	"github.com/alanyoungcy/esportsarb/internal/tracker"
)

// Discord embed colors.
const (
	colorGreen  = 0x00ff00
	colorRed    = 0xff0000
	colorBlue   = 0x3498db
	colorOrange = 0xff9900
)

// OpportunityFound announces a detected trading signal.
func (n *Notifier) OpportunityFound(ctx context.Context, opp domain.Opportunity) {
	n.fire(ctx, Notification{
		Event: EventOpportunityFound,
		Title: "Opportunity Detected",
		Color: colorGreen,
		Fields: []Field{
			{Name: "Market", Value: clip(opp.Question, 100)},
			{Name: "Edge", Value: fmt.Sprintf("%.2f%%", opp.Edge*100), Inline: true},
			{Name: "Side", Value: strings.ToUpper(string(opp.Side)), Inline: true},
			{Name: "Token", Value: strings.ToUpper(string(opp.TargetToken)), Inline: true},
			{Name: "Model Prob", Value: fmt.Sprintf("%.1f%%", opp.ModelProb*100), Inline: true},
			{Name: "Market Prob", Value: fmt.Sprintf("%.1f%%", opp.MarketProb*100), Inline: true},
		},
	})
}

// PositionOpened announces a freshly filled entry.
func (n *Notifier) PositionOpened(ctx context.Context, pos domain.Position) {
	n.fire(ctx, Notification{
		Event: EventPositionOpened,
		Title: "Position Opened",
		Color: colorBlue,
		Fields: []Field{
			{Name: "Market", Value: pos.MarketID},
			{Name: "Size", Value: fmt.Sprintf("$%.2f", pos.Notional()), Inline: true},
			{Name: "Entry Price", Value: fmt.Sprintf("%.3f", pos.EntryPrice), Inline: true},
			{Name: "Side", Value: strings.ToUpper(string(pos.Side)), Inline: true},
			{Name: "Stop Loss", Value: fmt.Sprintf("%.3f", pos.StopLossPrice), Inline: true},
			{Name: "Take Profit", Value: fmt.Sprintf("%.3f", pos.TakeProfitPrice), Inline: true},
		},
	})
}

// PositionClosed announces a settled trade with its realized PnL.
func (n *Notifier) PositionClosed(ctx context.Context, trade domain.TradeRecord) {
	color := colorGreen
	if trade.NetPnl < 0 {
		color = colorRed
	}

	n.fire(ctx, Notification{
		Event: EventPositionClosed,
		Title: "Position Closed",
		Color: color,
		Fields: []Field{
			{Name: "PnL", Value: fmt.Sprintf("$%+.2f", trade.NetPnl), Inline: true},
			{Name: "Entry", Value: fmt.Sprintf("%.3f", trade.EntryPrice), Inline: true},
			{Name: "Exit", Value: fmt.Sprintf("%.3f", trade.ExitPrice), Inline: true},
			{Name: "Hold Time", Value: fmt.Sprintf("%.1fs", trade.HoldSeconds), Inline: true},
			{Name: "Reason", Value: string(trade.ExitReason), Inline: true},
		},
	})
}

// DailySummary reports one calendar day of trading after the UTC rollover.
func (n *Notifier) DailySummary(ctx context.Context, day string, m tracker.Metrics) {
	color := colorGreen
	if m.DailyPnl < 0 {
		color = colorRed
	}

	n.fire(ctx, Notification{
		Event: EventDailySummary,
		Title: "Daily Summary",
		Color: color,
		Fields: []Field{
			{Name: "Date", Value: day, Inline: true},
			{Name: "Trades", Value: fmt.Sprintf("%d", m.DailyTrades), Inline: true},
			{Name: "Net PnL", Value: fmt.Sprintf("$%+.2f", m.DailyPnl), Inline: true},
			{Name: "Win Rate", Value: fmt.Sprintf("%.1f%%", m.WinRate*100), Inline: true},
		},
	})
}

// EngineError raises an operator alert for a component failure.
func (n *Notifier) EngineError(ctx context.Context, component string, err error) {
	n.fire(ctx, Notification{
		Event: EventEngineError,
		Title: fmt.Sprintf("Error in %s", component),
		Body:  clip(err.Error(), 500),
		Color: colorOrange,
	})
}

// clip shortens s to at most n runes.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
