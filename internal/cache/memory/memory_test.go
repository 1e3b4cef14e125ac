package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

func TestPriceCache_RoundTrip(t *testing.T) {
	pc := NewPriceCache()
	ctx := context.Background()
	ts := time.Now()

	require.NoError(t, pc.SetPrice(ctx, "tok-1", 0.62, ts))

	price, gotTS, err := pc.GetPrice(ctx, "tok-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.62, price, 1e-9)
	assert.Equal(t, ts, gotTS)
}

func TestPriceCache_UnknownToken(t *testing.T) {
	pc := NewPriceCache()

	_, _, err := pc.GetPrice(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPriceCache_GetPricesOmitsUnknown(t *testing.T) {
	pc := NewPriceCache()
	ctx := context.Background()
	require.NoError(t, pc.SetPrice(ctx, "tok-1", 0.55, time.Now()))
	require.NoError(t, pc.SetPrice(ctx, "tok-2", 0.45, time.Now()))

	prices, err := pc.GetPrices(ctx, []string{"tok-1", "tok-2", "tok-3"})
	require.NoError(t, err)
	assert.Len(t, prices, 2)
	assert.InDelta(t, 0.55, prices["tok-1"], 1e-9)
	assert.InDelta(t, 0.45, prices["tok-2"], 1e-9)
	assert.NotContains(t, prices, "tok-3")
}

func lolMarket(id string, active bool) domain.Market {
	return domain.Market{
		MarketID:   id,
		Question:   "Will T1 beat Gen.G?",
		TokenIDYes: id + "-yes",
		TokenIDNo:  id + "-no",
		Game:       domain.GameLoL,
		IsActive:   active,
		YesPrice:   0.5,
		NoPrice:    0.5,
	}
}

func TestMarketCache_RoundTrip(t *testing.T) {
	mc := NewMarketCache()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, lolMarket("mkt-1", true)))

	got, err := mc.Get(ctx, "mkt-1")
	require.NoError(t, err)
	assert.Equal(t, "mkt-1", got.MarketID)
	assert.True(t, got.IsActive)
}

func TestMarketCache_ListActiveFiltersAndSorts(t *testing.T) {
	mc := NewMarketCache()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, lolMarket("mkt-b", true)))
	require.NoError(t, mc.Set(ctx, lolMarket("mkt-a", true)))
	require.NoError(t, mc.Set(ctx, lolMarket("mkt-c", false)))

	dota := lolMarket("mkt-d", true)
	dota.Game = domain.GameDota2
	require.NoError(t, mc.Set(ctx, dota))

	markets, err := mc.ListActive(ctx, domain.GameLoL)
	require.NoError(t, err)
	require.Len(t, markets, 2)
	assert.Equal(t, "mkt-a", markets[0].MarketID)
	assert.Equal(t, "mkt-b", markets[1].MarketID)
}

func TestMarketCache_ExpiredEntryGone(t *testing.T) {
	mc := NewMarketCache()
	ctx := context.Background()
	require.NoError(t, mc.Set(ctx, lolMarket("mkt-1", true)))

	e := mc.markets["mkt-1"]
	e.expiresAt = time.Now().Add(-time.Second)
	mc.markets["mkt-1"] = e

	_, err := mc.Get(ctx, "mkt-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	markets, err := mc.ListActive(ctx, domain.GameLoL)
	require.NoError(t, err)
	assert.Empty(t, markets)
	assert.NotContains(t, mc.markets, "mkt-1")
}

func TestMarketCache_Invalidate(t *testing.T) {
	mc := NewMarketCache()
	ctx := context.Background()
	require.NoError(t, mc.Set(ctx, lolMarket("mkt-1", true)))

	require.NoError(t, mc.Invalidate(ctx, "mkt-1"))

	_, err := mc.Get(ctx, "mkt-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGameStateCache_RoundTrip(t *testing.T) {
	gc := NewGameStateCache()
	ctx := context.Background()
	state := domain.GameState{
		MatchID:      "m1",
		Game:         domain.GameLoL,
		Team1WinProb: 0.6,
		Team2WinProb: 0.4,
	}

	require.NoError(t, gc.SetState(ctx, state))

	got, err := gc.GetState(ctx, "m1")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, got.Team1WinProb, 1e-9)
}

func TestGameStateCache_ExpiredGone(t *testing.T) {
	gc := NewGameStateCache()
	ctx := context.Background()
	require.NoError(t, gc.SetState(ctx, domain.GameState{MatchID: "m1"}))

	e := gc.states["m1"]
	e.expiresAt = time.Now().Add(-time.Second)
	gc.states["m1"] = e

	_, err := gc.GetState(ctx, "m1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRateLimiter_EnforcesLimitWithinWindow(t *testing.T) {
	rl := NewRateLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := rl.Allow(ctx, "api", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := rl.Allow(ctx, "api", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	rl := NewRateLimiter()
	old := time.Now().Add(-2 * time.Minute)
	rl.windows["api"] = []time.Time{old, old, old}

	allowed, err := rl.Allow(context.Background(), "api", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Len(t, rl.windows["api"], 1)
}

func TestRateLimiter_KeysIndependent(t *testing.T) {
	rl := NewRateLimiter()
	ctx := context.Background()

	allowed, err := rl.Allow(ctx, "a", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = rl.Allow(ctx, "a", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = rl.Allow(ctx, "b", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestLockManager_AcquireConflictRelease(t *testing.T) {
	lm := NewLockManager()
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "leader", time.Hour)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "leader", time.Hour)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock() // second call is a no-op

	unlock2, err := lm.Acquire(ctx, "leader", time.Hour)
	require.NoError(t, err)
	unlock2()
}

func TestLockManager_ExpiredLockReacquirable(t *testing.T) {
	lm := NewLockManager()
	ctx := context.Background()

	_, err := lm.Acquire(ctx, "leader", time.Hour)
	require.NoError(t, err)

	e := lm.locks["leader"]
	e.expiry = time.Now().Add(-time.Second)
	lm.locks["leader"] = e

	unlock, err := lm.Acquire(ctx, "leader", time.Hour)
	require.NoError(t, err)
	unlock()
}

func TestLockManager_StaleUnlockKeepsNewHolder(t *testing.T) {
	lm := NewLockManager()
	ctx := context.Background()

	staleUnlock, err := lm.Acquire(ctx, "leader", time.Hour)
	require.NoError(t, err)

	// The first holder's lease lapses and a second holder takes over.
	e := lm.locks["leader"]
	e.expiry = time.Now().Add(-time.Second)
	lm.locks["leader"] = e
	_, err = lm.Acquire(ctx, "leader", time.Hour)
	require.NoError(t, err)

	staleUnlock()

	_, err = lm.Acquire(ctx, "leader", time.Hour)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
}

func TestSignalBus_PublishReachesSubscribers(t *testing.T) {
	sb := NewSignalBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch1, err := sb.Subscribe(ctx, "signals")
	require.NoError(t, err)
	ch2, err := sb.Subscribe(ctx, "signals")
	require.NoError(t, err)

	require.NoError(t, sb.Publish(ctx, "signals", []byte("hello")))

	for _, ch := range []<-chan []byte{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, []byte("hello"), got)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for message")
		}
	}
}

func TestSignalBus_ChannelsIsolated(t *testing.T) {
	sb := NewSignalBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := sb.Subscribe(ctx, "positions")
	require.NoError(t, err)

	require.NoError(t, sb.Publish(ctx, "opportunities", []byte("other")))

	select {
	case msg := <-ch:
		t.Fatalf("unexpected message %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSignalBus_CancelClosesSubscription(t *testing.T) {
	sb := NewSignalBus()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := sb.Subscribe(ctx, "signals")
	require.NoError(t, err)

	cancel()

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)

	// Publishing after teardown must not panic or deliver.
	assert.NoError(t, sb.Publish(context.Background(), "signals", []byte("late")))
}
