package ws_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/esportsarb/internal/cache/memory"
	"github.com/alanyoungcy/esportsarb/internal/server/ws"
)

func dialHub(t *testing.T, hub *ws.Hub) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestClientReceivesStatusHello(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := memory.NewSignalBus()
	hub := ws.NewHub(bus, logger, ws.Config{Mode: "Paper"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := dialHub(t, hub)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, hello, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(hello), `"engine_status"`)
	assert.Contains(t, string(hello), `"mode":"paper"`)
	assert.Contains(t, string(hello), `"ws_connected":true`)
}

func TestBusSignalsReachClient(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := memory.NewSignalBus()
	hub := ws.NewHub(bus, logger, ws.Config{Mode: "paper"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := dialHub(t, hub)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	// Drain the status hello.
	_, _, err := conn.ReadMessage()
	require.NoError(t, err)

	payload := []byte(`{"event":"order_filled","order_id":"ord_1"}`)
	received := make(chan []byte, 1)
	go func() {
		_, msg, readErr := conn.ReadMessage()
		if readErr == nil {
			received <- msg
		}
	}()

	// The hub subscribes to the bus in the background, so keep publishing
	// until the frame makes it through.
	deadline := time.After(3 * time.Second)
	for {
		require.NoError(t, bus.Publish(ctx, "signals:orders", payload))
		select {
		case msg := <-received:
			assert.JSONEq(t, string(payload), string(msg))
			return
		case <-deadline:
			t.Fatal("broadcast never reached the client")
		case <-time.After(20 * time.Millisecond):
		}
	}
}
