package shop

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/krigga/flappy-ton/internal/backend"
	"github.com/krigga/flappy-ton/internal/wallet"
)

// DefaultBalanceInterval is how often the token balance is refreshed.
const DefaultBalanceInterval = 10 * time.Second

// RemoteConfigSource provides the shop's token addresses.
type RemoteConfigSource interface {
	Config(ctx context.Context) (*backend.RemoteConfig, error)
}

// JettonWalletResolver finds the jetton wallet owned by an account.
type JettonWalletResolver interface {
	JettonWallet(ctx context.Context, minter, owner string) (string, error)
}

// WalletPurchaser pays for items with a jetton transfer through the
// connected wallet.
type WalletPurchaser struct {
	Connector wallet.Connector
	Remote    RemoteConfigSource
	Wallets   JettonWalletResolver
	UserID    int64
	Now       func() time.Time
	Logger    *log.Logger
}

// Buy sends the transfer for item. It returns once the wallet accepted or
// rejected the transaction.
func (p *WalletPurchaser) Buy(ctx context.Context, item Item, index int) error {
	account, ok := p.Connector.Account()
	if !ok {
		return wallet.ErrNotConnected
	}
	cfg, err := p.Remote.Config(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	jw, err := p.Wallets.JettonWallet(ctx, cfg.TokenMinter, account.Address)
	if err != nil {
		return fmt.Errorf("resolve jetton wallet: %w", err)
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	tx, err := wallet.NewPurchase(wallet.PurchaseRequest{
		JettonWallet: jw,
		Recipient:    cfg.TokenRecipient,
		Buyer:        account.Address,
		Price:        item.Cost,
		UserID:       p.UserID,
		ItemID:       index,
	}, now())
	if err != nil {
		return err
	}
	if err := p.Connector.SendTransaction(ctx, tx); err != nil {
		return err
	}
	if p.Logger != nil {
		p.Logger.Printf("purchase_sent item=%s price=%s buyer=%s", item.SystemName, item.Cost, account.Address)
	}
	return nil
}

// BalanceWatcher keeps the latest token balance. A failed refresh reports a
// zero balance.
type BalanceWatcher struct {
	source   wallet.BalanceSource
	interval time.Duration
	logger   *log.Logger

	mu       sync.RWMutex
	balance  decimal.Decimal
	known    bool
	poller   *Poller
	onUpdate func(decimal.Decimal)
}

// NewBalanceWatcher returns a stopped watcher.
func NewBalanceWatcher(source wallet.BalanceSource, interval time.Duration, logger *log.Logger) *BalanceWatcher {
	if interval <= 0 {
		interval = DefaultBalanceInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &BalanceWatcher{source: source, interval: interval, logger: logger}
}

// OnUpdate registers fn to receive every refreshed balance.
func (w *BalanceWatcher) OnUpdate(fn func(decimal.Decimal)) {
	w.mu.Lock()
	w.onUpdate = fn
	w.mu.Unlock()
}

// Start refreshes once and then keeps refreshing until Stop.
func (w *BalanceWatcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.poller != nil {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	w.Refresh(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.poller == nil {
		w.poller = StartPoller(ctx, w.interval, w.Refresh)
	}
}

// Stop ends background refreshes.
func (w *BalanceWatcher) Stop() {
	w.mu.Lock()
	p := w.poller
	w.poller = nil
	w.mu.Unlock()
	if p != nil {
		p.Stop()
	}
}

// Refresh reads the balance now.
func (w *BalanceWatcher) Refresh(ctx context.Context) {
	bal, err := w.source.Balance(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.Printf("shop: balance error err=%v", err)
		bal = decimal.Zero
	}

	w.mu.Lock()
	w.balance = bal
	w.known = true
	fn := w.onUpdate
	w.mu.Unlock()

	if fn != nil {
		fn(bal)
	}
}

// Balance returns the last balance and whether one was read yet.
func (w *BalanceWatcher) Balance() (decimal.Decimal, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.balance, w.known
}
