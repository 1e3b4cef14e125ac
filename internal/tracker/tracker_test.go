package tracker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/esportsarb/internal/config"
	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// stubPrices serves settable quotes per market.
type stubPrices struct {
	mu  sync.Mutex
	yes map[string]float64
	no  map[string]float64
	err error
}

func newStubPrices() *stubPrices {
	return &stubPrices{yes: make(map[string]float64), no: make(map[string]float64)}
}

func (s *stubPrices) MarketPrice(_ context.Context, marketID string) (float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, 0, s.err
	}
	return s.yes[marketID], s.no[marketID], nil
}

func (s *stubPrices) set(marketID string, yes, no float64) {
	s.mu.Lock()
	s.yes[marketID] = yes
	s.no[marketID] = no
	s.mu.Unlock()
}

type stubNotifier struct {
	mu     sync.Mutex
	opened []domain.Position
	closed []domain.TradeRecord
}

func (n *stubNotifier) PositionOpened(_ context.Context, pos domain.Position) {
	n.mu.Lock()
	n.opened = append(n.opened, pos)
	n.mu.Unlock()
}

func (n *stubNotifier) PositionClosed(_ context.Context, trade domain.TradeRecord) {
	n.mu.Lock()
	n.closed = append(n.closed, trade)
	n.mu.Unlock()
}

// testTracker uses the default exits: 5% stop loss, 10% take profit.
func testTracker(prices PriceSource) *Tracker {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(prices, config.Defaults().Trading, logger)
}

func filledOrder(side domain.OrderSide, price, size float64) *domain.Order {
	now := time.Now().UTC()
	return &domain.Order{
		ID:               "ord1",
		MarketID:         "mkt1",
		TokenID:          "tok-yes",
		Side:             side,
		PriceTicks:       domain.PriceToTicks(price),
		SizeUnits:        domain.SizeToUnits(size),
		FilledSize:       size,
		AverageFillPrice: price,
		Status:           domain.OrderStatusFilled,
		CreatedAt:        now,
		FilledAt:         &now,
	}
}

func yesOpportunity() domain.Opportunity {
	return domain.Opportunity{
		ID:          "opp1",
		MarketID:    "mkt1",
		MatchID:     "match1",
		Game:        domain.GameLoL,
		TokenID:     "tok-yes",
		TargetToken: domain.TokenYes,
		Side:        domain.OrderSideBuy,
		Edge:        0.06,
	}
}

func TestOpenDerivesExitPrices(t *testing.T) {
	tr := testTracker(newStubPrices())

	pos := tr.Open(context.Background(), filledOrder(domain.OrderSideBuy, 0.50, 10), yesOpportunity())
	assert.Equal(t, domain.PositionStatusOpen, pos.Status)
	assert.InDelta(t, 0.475, pos.StopLossPrice, 1e-9)
	assert.InDelta(t, 0.55, pos.TakeProfitPrice, 1e-9)
	assert.InDelta(t, 0.06, pos.EntryEdge, 1e-9)
	assert.Equal(t, "match1", pos.MatchID)

	// Shorts mirror: the stop sits above entry, the target below.
	short := tr.Open(context.Background(), filledOrder(domain.OrderSideSell, 0.50, 10), yesOpportunity())
	assert.InDelta(t, 0.525, short.StopLossPrice, 1e-9)
	assert.InDelta(t, 0.45, short.TakeProfitPrice, 1e-9)
}

func TestOpenFallsBackToOrderPrice(t *testing.T) {
	tr := testTracker(newStubPrices())

	order := filledOrder(domain.OrderSideBuy, 0.42, 5)
	order.AverageFillPrice = 0
	order.FilledSize = 0

	pos := tr.Open(context.Background(), order, yesOpportunity())
	assert.InDelta(t, 0.42, pos.EntryPrice, 1e-9)
	assert.InDelta(t, 5, pos.Size, 1e-9)
}

func TestStopLossBoundary(t *testing.T) {
	prices := newStubPrices()
	tr := testTracker(prices)
	pos := tr.Open(context.Background(), filledOrder(domain.OrderSideBuy, 0.50, 10), yesOpportunity())

	// Just above the stop: no exit yet.
	prices.set("mkt1", 0.4751, 0.5249)
	tr.UpdatePrices(context.Background())
	assert.Empty(t, tr.CheckExitConditions())

	// Exactly at the stop: the boundary itself trips.
	prices.set("mkt1", 0.475, 0.525)
	tr.UpdatePrices(context.Background())
	signals := tr.CheckExitConditions()
	require.Len(t, signals, 1)
	assert.Equal(t, pos.ID, signals[0].PositionID)
	assert.Equal(t, domain.ExitStopLoss, signals[0].Reason)
	assert.InDelta(t, 0.475, signals[0].Price, 1e-9)

	// The flag is sticky: the position is already marked stopped_out, so
	// no second exit order is requested.
	assert.Empty(t, tr.CheckExitConditions())

	got, ok := tr.Get(pos.ID)
	require.True(t, ok)
	assert.Equal(t, domain.PositionStatusStoppedOut, got.Status)
}

func TestShortStopLossTripsAbove(t *testing.T) {
	prices := newStubPrices()
	tr := testTracker(prices)
	tr.Open(context.Background(), filledOrder(domain.OrderSideSell, 0.50, 10), yesOpportunity())

	prices.set("mkt1", 0.53, 0.47)
	tr.UpdatePrices(context.Background())
	signals := tr.CheckExitConditions()
	require.Len(t, signals, 1)
	assert.Equal(t, domain.ExitStopLoss, signals[0].Reason)
}

func TestTakeProfitReflagsUntilClosed(t *testing.T) {
	prices := newStubPrices()
	tr := testTracker(prices)
	pos := tr.Open(context.Background(), filledOrder(domain.OrderSideBuy, 0.50, 10), yesOpportunity())

	prices.set("mkt1", 0.56, 0.44)
	tr.UpdatePrices(context.Background())

	first := tr.CheckExitConditions()
	require.Len(t, first, 1)
	assert.Equal(t, domain.ExitTakeProfit, first[0].Reason)

	// Take-profit leaves the position open until the exit settles, so an
	// unsettled flag fires again next tick.
	second := tr.CheckExitConditions()
	require.Len(t, second, 1)
	assert.Equal(t, pos.ID, second[0].PositionID)
}

func TestClosePnlAndFees(t *testing.T) {
	tr := testTracker(newStubPrices())
	notifier := &stubNotifier{}
	tr.WithNotifier(notifier)

	pos := tr.Open(context.Background(), filledOrder(domain.OrderSideBuy, 0.50, 10), yesOpportunity())

	trade, err := tr.Close(context.Background(), pos.ID, 0.60, domain.ExitTakeProfit)
	require.NoError(t, err)

	// Gross (0.60-0.50)*10 = 1.00, fees 10*(0.50+0.60)*0.0015 = 0.0165.
	assert.InDelta(t, 1.00, trade.GrossPnl, 1e-9)
	assert.InDelta(t, 0.0165, trade.Fees, 1e-9)
	assert.InDelta(t, 0.9835, trade.NetPnl, 1e-9)
	assert.Equal(t, domain.ExitTakeProfit, trade.ExitReason)
	assert.Equal(t, pos.ID, trade.PositionID)

	assert.Empty(t, tr.OpenPositions())

	m := tr.Metrics()
	assert.Equal(t, 1, m.TotalTrades)
	assert.Equal(t, 1, m.WinningTrades)
	assert.InDelta(t, 0.9835, m.RealizedPnl, 1e-9)
	assert.InDelta(t, 0.9835, m.DailyPnl, 1e-9)
	assert.InDelta(t, 1.0, m.WinRate, 1e-9)

	assert.Len(t, notifier.opened, 1)
	require.Len(t, notifier.closed, 1)
	assert.Equal(t, trade.TradeID, notifier.closed[0].TradeID)
}

func TestCloseShortProfitsFromDrop(t *testing.T) {
	tr := testTracker(newStubPrices())
	pos := tr.Open(context.Background(), filledOrder(domain.OrderSideSell, 0.60, 10), yesOpportunity())

	trade, err := tr.Close(context.Background(), pos.ID, 0.50, domain.ExitTakeProfit)
	require.NoError(t, err)
	assert.InDelta(t, 1.00, trade.GrossPnl, 1e-9)
	assert.Positive(t, trade.NetPnl)
}

func TestCloseUnknownPosition(t *testing.T) {
	tr := testTracker(newStubPrices())

	_, err := tr.Close(context.Background(), "nope", 0.5, domain.ExitManual)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestUpdatePricesSkipsFailedLookups(t *testing.T) {
	prices := newStubPrices()
	tr := testTracker(prices)
	pos := tr.Open(context.Background(), filledOrder(domain.OrderSideBuy, 0.50, 10), yesOpportunity())

	prices.set("mkt1", 0.52, 0.48)
	tr.UpdatePrices(context.Background())
	got, _ := tr.Get(pos.ID)
	assert.InDelta(t, 0.52, got.CurrentPrice, 1e-9)
	assert.InDelta(t, 0.20, got.UnrealizedPnl, 1e-9)

	// A dead price source leaves the last mark in place.
	prices.mu.Lock()
	prices.err = errors.New("feed down")
	prices.mu.Unlock()
	tr.UpdatePrices(context.Background())
	got, _ = tr.Get(pos.ID)
	assert.InDelta(t, 0.52, got.CurrentPrice, 1e-9)
}

func TestMetricsAggregatesExposure(t *testing.T) {
	tr := testTracker(newStubPrices())
	tr.Open(context.Background(), filledOrder(domain.OrderSideBuy, 0.50, 10), yesOpportunity())
	tr.Open(context.Background(), filledOrder(domain.OrderSideBuy, 0.40, 20), yesOpportunity())

	m := tr.Metrics()
	assert.Equal(t, 2, m.OpenPositions)
	assert.InDelta(t, 0.50*10+0.40*20, m.TotalExposure, 1e-9)
	assert.Equal(t, 0, m.TotalTrades)
}

func TestRecentTradesNewestFirst(t *testing.T) {
	tr := testTracker(newStubPrices())

	first := tr.Open(context.Background(), filledOrder(domain.OrderSideBuy, 0.50, 10), yesOpportunity())
	_, err := tr.Close(context.Background(), first.ID, 0.55, domain.ExitTakeProfit)
	require.NoError(t, err)

	second := tr.Open(context.Background(), filledOrder(domain.OrderSideBuy, 0.50, 10), yesOpportunity())
	_, err = tr.Close(context.Background(), second.ID, 0.45, domain.ExitStopLoss)
	require.NoError(t, err)

	trades := tr.RecentTrades(10)
	require.Len(t, trades, 2)
	assert.Equal(t, second.ID, trades[0].PositionID)
	assert.Equal(t, first.ID, trades[1].PositionID)

	m := tr.Metrics()
	assert.Equal(t, 1, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.InDelta(t, 0.5, m.WinRate, 1e-9)
}
