package handler

import (
	"net/http"
	"sort"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// PositionBook provides the open-position snapshot served by the handler.
type PositionBook interface {
	OpenPositions() []domain.Position
}

// PositionHandler serves the open-position endpoint.
type PositionHandler struct {
	book PositionBook
}

// NewPositionHandler creates a PositionHandler reading from the given book.
func NewPositionHandler(book PositionBook) *PositionHandler {
	return &PositionHandler{book: book}
}

// positionView is the wire form of an open domain.Position.
type positionView struct {
	ID              string  `json:"id"`
	MarketID        string  `json:"market_id"`
	MatchID         string  `json:"match_id"`
	Game            string  `json:"game"`
	TokenType       string  `json:"token_type"`
	Side            string  `json:"side"`
	Size            float64 `json:"size"`
	EntryPrice      float64 `json:"entry_price"`
	CurrentPrice    float64 `json:"current_price"`
	StopLossPrice   float64 `json:"stop_loss_price"`
	TakeProfitPrice float64 `json:"take_profit_price"`
	UnrealizedPnl   float64 `json:"unrealized_pnl"`
	EntryEdge       float64 `json:"entry_edge"`
	OpenedAt        string  `json:"opened_at"`
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []positionView `json:"positions"`
	Count     int            `json:"count"`
}

// ListPositions returns all open positions, newest first.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions := h.book.OpenPositions()
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].OpenedAt.After(positions[j].OpenedAt)
	})

	views := make([]positionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, positionView{
			ID:              p.ID,
			MarketID:        p.MarketID,
			MatchID:         p.MatchID,
			Game:            string(p.Game),
			TokenType:       string(p.TokenType),
			Side:            string(p.Side),
			Size:            p.Size,
			EntryPrice:      p.EntryPrice,
			CurrentPrice:    p.CurrentPrice,
			StopLossPrice:   p.StopLossPrice,
			TakeProfitPrice: p.TakeProfitPrice,
			UnrealizedPnl:   p.UnrealizedPnl,
			EntryEdge:       p.EntryEdge,
			OpenedAt:        p.OpenedAt.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, listPositionsResponse{
		Positions: views,
		Count:     len(views),
	})
}
