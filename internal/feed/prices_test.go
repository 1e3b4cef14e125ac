package feed

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/esportsarb/internal/cache/memory"
	"github.com/alanyoungcy/esportsarb/internal/platform/polymarket"
)

func TestPriceFeed_PumpsBookMidpointsIntoCache(t *testing.T) {
	upgrader := websocket.Upgrader{}
	connected := make(chan struct{})
	gotSub := make(chan polymarket.WSCommand, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		close(connected)

		var cmd polymarket.WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		gotSub <- cmd

		book := `{"event_type":"book","asset_id":"tok-1",` +
			`"bids":[{"price":"0.55","size":"100"}],` +
			`"asks":[{"price":"0.61","size":"80"}],` +
			`"timestamp":"1700000000123"}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(book)); err != nil {
			return
		}

		// Hold the connection until the client hangs up.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	cache := memory.NewPriceCache()
	pf := NewPriceFeed(polymarket.NewWSClient(wsURL), cache, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- pf.Run(ctx) }()

	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("client never connected")
	}

	require.NoError(t, pf.Track(ctx, []string{"tok-1"}))

	select {
	case cmd := <-gotSub:
		assert.Equal(t, "subscribe", cmd.Type)
		assert.Equal(t, "market", cmd.Channel)
		assert.Equal(t, []string{"tok-1"}, cmd.Assets)
	case <-time.After(5 * time.Second):
		t.Fatal("subscribe command never arrived")
	}

	assert.Eventually(t, func() bool {
		price, ts, err := cache.GetPrice(context.Background(), "tok-1")
		return err == nil &&
			math.Abs(price-0.58) < 1e-9 &&
			ts.UnixMilli() == 1700000000123
	}, 5*time.Second, 20*time.Millisecond, "book midpoint should land in the cache")

	pf.Close()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after close")
	}
}

func TestPriceFeed_TrackNothingIsNoop(t *testing.T) {
	pf := NewPriceFeed(polymarket.NewWSClient("ws://unused"), memory.NewPriceCache(), discardLogger())
	assert.NoError(t, pf.Track(context.Background(), nil))
	assert.NoError(t, pf.Untrack(context.Background(), nil))
}

func TestPriceFeed_RunFailsWhenVenueUnreachable(t *testing.T) {
	pf := NewPriceFeed(polymarket.NewWSClient("ws://127.0.0.1:1"), memory.NewPriceCache(), discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := pf.Run(ctx)
	require.Error(t, err)
}
