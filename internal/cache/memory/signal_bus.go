package memory

import (
	"context"
	"sync"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// subscriberBuffer bounds each subscriber channel; slow consumers drop
// messages rather than stalling the publisher.
const subscriberBuffer = 128

// SignalBus implements domain.SignalBus with in-process channel fan-out.
// Only exact channel names are supported; the Redis implementation's glob
// patterns are not.
type SignalBus struct {
	mu   sync.Mutex
	subs map[string]map[int]chan []byte
	next int
}

// NewSignalBus creates an empty in-memory signal bus.
func NewSignalBus() *SignalBus {
	return &SignalBus{subs: make(map[string]map[int]chan []byte)}
}

// Publish delivers the payload to every current subscriber of the channel.
// Subscribers with full buffers miss the message.
func (sb *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	for _, ch := range sb.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe registers a new subscriber and returns its receive channel.
// The subscription ends and the channel closes when ctx is cancelled.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, subscriberBuffer)

	sb.mu.Lock()
	if sb.subs[channel] == nil {
		sb.subs[channel] = make(map[int]chan []byte)
	}
	id := sb.next
	sb.next++
	sb.subs[channel][id] = ch
	sb.mu.Unlock()

	go func() {
		<-ctx.Done()

		sb.mu.Lock()
		delete(sb.subs[channel], id)
		sb.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

// Compile-time interface check.
var _ domain.SignalBus = (*SignalBus)(nil)
