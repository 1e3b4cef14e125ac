package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/esportsarb/internal/domain"
	"github.com/alanyoungcy/esportsarb/internal/tracker"
)

type recordSender struct {
	name string
	fail bool
	sent []Notification
}

func (r *recordSender) Send(_ context.Context, n Notification) error {
	if r.fail {
		return errors.New("boom")
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordSender) Name() string { return r.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFiltersEvents(t *testing.T) {
	rec := &recordSender{name: "rec"}
	n := New([]Sender{rec}, []string{EventPositionClosed}, testLogger())

	require.NoError(t, n.Notify(context.Background(), Notification{Event: EventOpportunityFound, Title: "nope"}))
	require.NoError(t, n.Notify(context.Background(), Notification{Event: EventPositionClosed, Title: "yes"}))

	require.Len(t, rec.sent, 1)
	assert.Equal(t, "yes", rec.sent[0].Title)
}

func TestNotifierEmptyFilterAllowsAll(t *testing.T) {
	rec := &recordSender{name: "rec"}
	n := New([]Sender{rec}, nil, testLogger())

	require.NoError(t, n.Notify(context.Background(), Notification{Event: EventDailySummary}))
	require.NoError(t, n.Notify(context.Background(), Notification{Event: EventEngineError}))

	assert.Len(t, rec.sent, 2)
}

func TestNotifierCollectsSenderErrors(t *testing.T) {
	bad := &recordSender{name: "bad", fail: true}
	good := &recordSender{name: "good"}
	n := New([]Sender{bad, good}, nil, testLogger())

	err := n.Notify(context.Background(), Notification{Event: EventPositionOpened, Title: "t"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 sender(s) failed")
	assert.Contains(t, err.Error(), "bad: boom")
	// The healthy sender still received the notification.
	assert.Len(t, good.sent, 1)
}

func TestOpportunityFoundBuildsFields(t *testing.T) {
	rec := &recordSender{name: "rec"}
	n := New([]Sender{rec}, nil, testLogger())

	n.OpportunityFound(context.Background(), domain.Opportunity{
		Question:    "Will T1 beat Gen.G?",
		Side:        domain.OrderSideBuy,
		TargetToken: domain.TokenYes,
		ModelProb:   0.58,
		MarketProb:  0.50,
		Edge:        0.08,
	})

	require.Len(t, rec.sent, 1)
	note := rec.sent[0]
	assert.Equal(t, EventOpportunityFound, note.Event)
	assert.Equal(t, "Opportunity Detected", note.Title)
	assert.Equal(t, colorGreen, note.Color)

	byName := map[string]string{}
	for _, f := range note.Fields {
		byName[f.Name] = f.Value
	}
	assert.Equal(t, "Will T1 beat Gen.G?", byName["Market"])
	assert.Equal(t, "8.00%", byName["Edge"])
	assert.Equal(t, "BUY", byName["Side"])
	assert.Equal(t, "YES", byName["Token"])
	assert.Equal(t, "58.0%", byName["Model Prob"])
	assert.Equal(t, "50.0%", byName["Market Prob"])
}

func TestPositionClosedColorTracksPnl(t *testing.T) {
	rec := &recordSender{name: "rec"}
	n := New([]Sender{rec}, nil, testLogger())

	n.PositionClosed(context.Background(), domain.TradeRecord{NetPnl: 1.25, ExitReason: domain.ExitTakeProfit})
	n.PositionClosed(context.Background(), domain.TradeRecord{NetPnl: -0.40, ExitReason: domain.ExitStopLoss})

	require.Len(t, rec.sent, 2)
	assert.Equal(t, colorGreen, rec.sent[0].Color)
	assert.Equal(t, colorRed, rec.sent[1].Color)
}

func TestDailySummaryFields(t *testing.T) {
	rec := &recordSender{name: "rec"}
	n := New([]Sender{rec}, nil, testLogger())

	n.DailySummary(context.Background(), "2025-06-01", tracker.Metrics{
		DailyTrades: 4,
		DailyPnl:    -2.50,
		WinRate:     0.25,
	})

	require.Len(t, rec.sent, 1)
	note := rec.sent[0]
	assert.Equal(t, colorRed, note.Color)

	byName := map[string]string{}
	for _, f := range note.Fields {
		byName[f.Name] = f.Value
	}
	assert.Equal(t, "2025-06-01", byName["Date"])
	assert.Equal(t, "4", byName["Trades"])
	assert.Equal(t, "$-2.50", byName["Net PnL"])
	assert.Equal(t, "25.0%", byName["Win Rate"])
}

func TestDiscordSendsEmbed(t *testing.T) {
	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	err := d.Send(context.Background(), Notification{
		Title: "Position Opened",
		Color: colorBlue,
		Fields: []Field{
			{Name: "Size", Value: "$18.18", Inline: true},
		},
	})
	require.NoError(t, err)

	var payload struct {
		Embeds []struct {
			Title  string `json:"title"`
			Color  int    `json:"color"`
			Fields []struct {
				Name   string `json:"name"`
				Value  string `json:"value"`
				Inline bool   `json:"inline"`
			} `json:"fields"`
			Timestamp string `json:"timestamp"`
		} `json:"embeds"`
	}
	require.NoError(t, json.Unmarshal(captured, &payload))
	require.Len(t, payload.Embeds, 1)
	assert.Equal(t, "Position Opened", payload.Embeds[0].Title)
	assert.Equal(t, colorBlue, payload.Embeds[0].Color)
	require.Len(t, payload.Embeds[0].Fields, 1)
	assert.Equal(t, "Size", payload.Embeds[0].Fields[0].Name)
	assert.True(t, payload.Embeds[0].Fields[0].Inline)
	assert.NotEmpty(t, payload.Embeds[0].Timestamp)
}

func TestDiscordRejectsNon204(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	err := d.Send(context.Background(), Notification{Title: "t"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 429")
}

func TestTelegramSendsHTML(t *testing.T) {
	var captured []byte
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		captured, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegramSender("tok123", "chat42")
	tg.baseURL = srv.URL

	err := tg.Send(context.Background(), Notification{
		Title: "Position Closed",
		Fields: []Field{
			{Name: "Market", Value: "Will T1 <win>?"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "/bottok123/sendMessage", path)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(captured, &payload))
	assert.Equal(t, "chat42", payload["chat_id"])
	assert.Equal(t, "HTML", payload["parse_mode"])
	assert.Contains(t, payload["text"], "<b>Position Closed</b>")
	// Field values are HTML-escaped.
	assert.Contains(t, payload["text"], "Market: Will T1 &lt;win&gt;?")
}
