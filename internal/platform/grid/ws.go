package grid

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message.
	pongWait = 60 * time.Second

	// pingPeriod is how often pings are sent. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// subscribeCommand is the message that opens a series stream.
type subscribeCommand struct {
	Type     string `json:"type"`
	SeriesID string `json:"seriesId"`
}

// liveMessage is the wire shape of one live-feed event.
type liveMessage struct {
	Type   string `json:"type"`
	Team   string `json:"team"`
	Player string `json:"player"`
}

// liveEventTypes maps provider event names onto domain event types, with a
// gold-equivalent magnitude keyed to the win-probability models' objective
// thresholds.
var liveEventTypes = map[string]struct {
	typ   domain.EventType
	value float64
}{
	"kill":                {domain.EventKill, 300},
	"tower_destroyed":     {domain.EventTower, 200},
	"dragon_killed":       {domain.EventDragon, 1000},
	"baron_killed":        {domain.EventBaron, 2000},
	"inhibitor_destroyed": {domain.EventInhibitor, 500},
	"game_end":            {domain.EventGameEnd, 0},
}

// Subscribe opens a live-feed connection for one series. The returned
// channel closes when the feed drops, Close is called, or ctx is
// cancelled.
func (c *Client) Subscribe(ctx context.Context, matchID string) (<-chan domain.GameEvent, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("grid: subscribe %s: %w", matchID, domain.ErrWSDisconnect)
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.liveURL+"?token="+url.QueryEscape(c.apiKey), nil)
	if err != nil {
		return nil, fmt.Errorf("grid: dial live feed: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(subscribeCommand{Type: "subscribe", SeriesID: matchID}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("grid: subscribe %s: %w", matchID, err)
	}

	c.mu.Lock()
	c.conns[conn] = struct{}{}
	c.mu.Unlock()
	c.logger.Info("live feed subscribed", slog.String("match_id", matchID))

	ch := make(chan domain.GameEvent, 16)
	done := make(chan struct{})
	go c.readEvents(ctx, conn, matchID, ch, done)
	go c.pingLoop(conn, done)
	return ch, nil
}

// readEvents pumps live-feed messages into the event channel until the
// connection drops or ctx is cancelled.
func (c *Client) readEvents(ctx context.Context, conn *websocket.Conn, matchID string, ch chan<- domain.GameEvent, done chan struct{}) {
	defer func() {
		close(done)
		c.mu.Lock()
		delete(c.conns, conn)
		c.mu.Unlock()
		conn.Close()
		close(ch)
	}()

	// Unblock the read when the context ends.
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Warn("live feed dropped",
					slog.String("match_id", matchID),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		ev, ok := parseLiveEvent(raw)
		if !ok {
			continue
		}
		select {
		case ch <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// parseLiveEvent maps a live-feed message onto a domain event. Unlisted
// message types are dropped.
func parseLiveEvent(raw []byte) (domain.GameEvent, bool) {
	var msg liveMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.GameEvent{}, false
	}
	m, ok := liveEventTypes[msg.Type]
	if !ok {
		return domain.GameEvent{}, false
	}
	ev := domain.GameEvent{
		Type:      m.typ,
		Timestamp: time.Now(),
		TeamID:    msg.Team,
		Value:     m.value,
		Count:     1,
	}
	if msg.Player != "" {
		ev.Details = map[string]string{"player": msg.Player}
	}
	return ev, true
}
