package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// TradeBook provides recent closed trades, newest first.
type TradeBook interface {
	RecentTrades(limit int) []domain.TradeRecord
}

// TradeHandler serves the recent-trade history endpoint.
type TradeHandler struct {
	book TradeBook
}

// NewTradeHandler creates a TradeHandler reading from the given book.
func NewTradeHandler(book TradeBook) *TradeHandler {
	return &TradeHandler{book: book}
}

// tradeView is the wire form of a domain.TradeRecord.
type tradeView struct {
	TradeID     string  `json:"trade_id"`
	PositionID  string  `json:"position_id"`
	MarketID    string  `json:"market_id"`
	MatchID     string  `json:"match_id"`
	Game        string  `json:"game"`
	Side        string  `json:"side"`
	TokenType   string  `json:"token_type"`
	Size        float64 `json:"size"`
	EntryPrice  float64 `json:"entry_price"`
	ExitPrice   float64 `json:"exit_price"`
	GrossPnl    float64 `json:"gross_pnl"`
	Fees        float64 `json:"fees"`
	NetPnl      float64 `json:"net_pnl"`
	EntryTime   string  `json:"entry_time"`
	ExitTime    string  `json:"exit_time"`
	HoldSeconds float64 `json:"hold_seconds"`
	EntryEdge   float64 `json:"entry_edge"`
	ExitReason  string  `json:"exit_reason"`
}

// listTradesResponse wraps the trade history response.
type listTradesResponse struct {
	Trades []tradeView `json:"trades"`
	Count  int         `json:"count"`
}

// ListTrades returns recent closed trades, newest first.
// GET /api/trades?limit=50
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50, 500)

	trades := h.book.RecentTrades(limit)
	views := make([]tradeView, 0, len(trades))
	for _, t := range trades {
		views = append(views, tradeView{
			TradeID:     t.TradeID,
			PositionID:  t.PositionID,
			MarketID:    t.MarketID,
			MatchID:     t.MatchID,
			Game:        string(t.Game),
			Side:        string(t.Side),
			TokenType:   string(t.TokenType),
			Size:        t.Size,
			EntryPrice:  t.EntryPrice,
			ExitPrice:   t.ExitPrice,
			GrossPnl:    t.GrossPnl,
			Fees:        t.Fees,
			NetPnl:      t.NetPnl,
			EntryTime:   t.EntryTime.UTC().Format(time.RFC3339),
			ExitTime:    t.ExitTime.UTC().Format(time.RFC3339),
			HoldSeconds: t.HoldSeconds,
			EntryEdge:   t.EntryEdge,
			ExitReason:  string(t.ExitReason),
		})
	}

	writeJSON(w, http.StatusOK, listTradesResponse{
		Trades: views,
		Count:  len(views),
	})
}
