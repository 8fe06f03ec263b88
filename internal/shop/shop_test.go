package shop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krigga/flappy-ton/internal/backend"
	"github.com/krigga/flappy-ton/internal/store"
	"github.com/krigga/flappy-ton/internal/wallet"
)

type memSettings struct {
	mu sync.Mutex
	m  map[string]string
}

func (s *memSettings) GetSetting(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (s *memSettings) SetSetting(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = map[string]string{}
	}
	s.m[key] = value
	return nil
}

type fakePurchases struct {
	mu    sync.Mutex
	items []backend.Purchase
	err   error
	gate  chan struct{}
	calls int
	auth  string
}

func (f *fakePurchases) Purchases(ctx context.Context, auth string) ([]backend.Purchase, error) {
	f.mu.Lock()
	f.calls++
	f.auth = auth
	gate, items, err := f.gate, f.items, f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return items, err
}

func (f *fakePurchases) set(items ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = nil
	for _, it := range items {
		f.items = append(f.items, backend.Purchase{SystemName: it})
	}
}

func (f *fakePurchases) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRemote struct{}

func (fakeRemote) Config(ctx context.Context) (*backend.RemoteConfig, error) {
	return &backend.RemoteConfig{TokenMinter: "EQminter", TokenRecipient: "EQshop"}, nil
}

func TestNewShopRestoresChoice(t *testing.T) {
	settings := &memSettings{m: map[string]string{store.SettingChosenSkin: "1"}}
	s := New(Config{Settings: settings})
	assert.Equal(t, "pipe-red", s.CurrentSkin())

	settings.m[store.SettingChosenSkin] = "9"
	assert.Equal(t, "pipe-green", New(Config{Settings: settings}).CurrentSkin(), "out of range index falls back to the first item")

	assert.Equal(t, "pipe-green", New(Config{}).CurrentSkin())
}

func TestNavigation(t *testing.T) {
	s := New(Config{})
	assert.False(t, s.CanPrev())
	assert.True(t, s.CanNext())
	assert.False(t, s.Prev())

	assert.True(t, s.Next())
	_, idx := s.Preview()
	assert.Equal(t, 1, idx)
	assert.False(t, s.CanNext())
	assert.False(t, s.Next())
	assert.True(t, s.Prev())
}

func TestActionLabel(t *testing.T) {
	src := &fakePurchases{}
	s := New(Config{Purchases: src})
	require.NoError(t, s.Show(context.Background()))
	defer s.Hide()

	assert.Equal(t, "Used", s.ActionLabel())
	s.Next()
	assert.Equal(t, "Buy for 1", s.ActionLabel())

	src.set("pipe-red")
	require.NoError(t, s.Reload(context.Background()))
	assert.Equal(t, "Use", s.ActionLabel())
}

func TestBuyThenUse(t *testing.T) {
	settings := &memSettings{}
	src := &fakePurchases{}
	dev := wallet.NewDevConnector("EQbuyer", decimal.NewFromInt(5), nil)
	now := time.Unix(1_700_000_000, 0)
	s := New(Config{
		Settings:  settings,
		Purchases: src,
		Purchaser: &WalletPurchaser{Connector: dev, Remote: fakeRemote{}, Wallets: dev, UserID: 7, Now: func() time.Time { return now }},
	})
	ctx := context.Background()
	require.NoError(t, s.Show(ctx))
	defer s.Hide()

	s.Next()
	action, err := s.Use(ctx)
	require.NoError(t, err)
	assert.Equal(t, ActionBought, action)
	assert.Equal(t, "pipe-green", s.CurrentSkin(), "buying does not select")

	sent := dev.Sent()
	require.Len(t, sent, 1)
	msg := sent[0].Messages[0]
	assert.Equal(t, "dev:EQminter:EQbuyer", msg.Address)
	assert.Equal(t, "EQshop", msg.Jetton.Destination)
	assert.Equal(t, "7:1", msg.Jetton.Comment)
	assert.True(t, msg.Jetton.Amount.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, now.Add(time.Hour).Unix(), sent[0].ValidUntil)

	src.set("pipe-red")
	require.NoError(t, s.Reload(ctx))
	action, err = s.Use(ctx)
	require.NoError(t, err)
	assert.Equal(t, ActionSelected, action)
	assert.Equal(t, "pipe-red", s.CurrentSkin())
	assert.Equal(t, "Used", s.ActionLabel())
	assert.Equal(t, "1", settings.m[store.SettingChosenSkin])

	action, err = s.Use(ctx)
	require.NoError(t, err)
	assert.Equal(t, ActionNone, action)
}

func TestUseFreeItem(t *testing.T) {
	settings := &memSettings{m: map[string]string{store.SettingChosenSkin: "1"}}
	s := New(Config{Settings: settings})
	s.Prev()
	action, err := s.Use(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ActionSelected, action)
	assert.Equal(t, "pipe-green", s.CurrentSkin())
}

func TestBuyRejected(t *testing.T) {
	dev := wallet.NewDevConnector("EQbuyer", decimal.Zero, nil)
	s := New(Config{Purchaser: &WalletPurchaser{Connector: dev, Remote: fakeRemote{}, Wallets: dev}})
	s.Next()
	_, err := s.Use(context.Background())
	var rejected *wallet.RejectedError
	assert.True(t, errors.As(err, &rejected))
	assert.Empty(t, dev.Sent())
}

func TestBuyNotConnected(t *testing.T) {
	dev := wallet.NewDevConnector("", decimal.NewFromInt(5), nil)
	s := New(Config{Purchaser: &WalletPurchaser{Connector: dev, Remote: fakeRemote{}, Wallets: dev}})
	s.Next()
	_, err := s.Use(context.Background())
	assert.ErrorIs(t, err, wallet.ErrNotConnected)
}

func TestShowFailureKeepsShopClosed(t *testing.T) {
	src := &fakePurchases{err: errors.New("offline")}
	s := New(Config{Purchases: src})
	err := s.Show(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not load the shop")
	assert.False(t, s.Shown())
}

func TestShowResetsPreviewAndPassesAuth(t *testing.T) {
	src := &fakePurchases{}
	s := New(Config{Purchases: src, Auth: "query_id=1&user=%7B%7D"})
	s.Next()
	require.NoError(t, s.Show(context.Background()))
	defer s.Hide()
	_, idx := s.Preview()
	assert.Equal(t, 0, idx)
	assert.Equal(t, "query_id=1&user=%7B%7D", src.auth)
}

func TestReloadPollsWhileShown(t *testing.T) {
	src := &fakePurchases{}
	s := New(Config{Purchases: src, ReloadInterval: 5 * time.Millisecond})
	require.NoError(t, s.Show(context.Background()))

	assert.Eventually(t, func() bool { return src.count() >= 3 }, time.Second, time.Millisecond)
	s.Hide()

	after := src.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, src.count(), "no reloads after Hide")
}

func TestReloadAfterHideIsDropped(t *testing.T) {
	src := &fakePurchases{}
	s := New(Config{Purchases: src, ReloadInterval: time.Hour})
	require.NoError(t, s.Show(context.Background()))

	gate := make(chan struct{})
	src.mu.Lock()
	src.gate = gate
	src.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- s.Reload(context.Background()) }()
	assert.Eventually(t, func() bool { return src.count() == 2 }, time.Second, time.Millisecond)

	s.Hide()
	src.set("pipe-red")
	close(gate)

	assert.ErrorIs(t, <-done, ErrNotShown)
	assert.False(t, s.Owned(1))
	assert.ErrorIs(t, s.Reload(context.Background()), ErrNotShown)
}

func TestOnChange(t *testing.T) {
	var n atomic.Int32
	s := New(Config{})
	s.OnChange(func() { n.Add(1) })
	s.Next()
	s.Prev()
	s.Prev()
	assert.Equal(t, int32(2), n.Load())
}

type flakyBalance struct {
	mu  sync.Mutex
	n   int
	bal decimal.Decimal
}

func (f *flakyBalance) Balance(ctx context.Context) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	if f.n%2 == 0 {
		return decimal.Zero, errors.New("rpc down")
	}
	return f.bal, nil
}

func TestBalanceWatcher(t *testing.T) {
	src := &flakyBalance{bal: decimal.RequireFromString("2.5")}
	w := NewBalanceWatcher(src, time.Hour, nil)
	_, known := w.Balance()
	assert.False(t, known)

	var updates []string
	w.OnUpdate(func(d decimal.Decimal) { updates = append(updates, d.String()) })

	ctx := context.Background()
	w.Refresh(ctx)
	bal, known := w.Balance()
	assert.True(t, known)
	assert.Equal(t, "2.5", bal.String())

	w.Refresh(ctx)
	bal, _ = w.Balance()
	assert.True(t, bal.IsZero(), "errors report zero")
	assert.Equal(t, []string{"2.5", "0"}, updates)
}

func TestBalanceWatcherPolls(t *testing.T) {
	dev := wallet.NewDevConnector("EQbuyer", decimal.NewFromInt(3), nil)
	w := NewBalanceWatcher(dev, 5*time.Millisecond, nil)
	var n atomic.Int32
	w.OnUpdate(func(decimal.Decimal) { n.Add(1) })

	w.Start(context.Background())
	assert.GreaterOrEqual(t, n.Load(), int32(1), "Start refreshes immediately")
	assert.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, time.Millisecond)
	w.Stop()
	w.Stop()

	bal, _ := w.Balance()
	assert.True(t, bal.Equal(decimal.NewFromInt(3)))
}

func TestPollerStopWaitsForInFlightCall(t *testing.T) {
	started := make(chan struct{}, 1)
	var finished atomic.Bool
	p := StartPoller(context.Background(), time.Millisecond, func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		finished.Store(true)
	})
	<-started
	p.Stop()
	assert.True(t, finished.Load())
}
