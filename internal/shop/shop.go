// Package shop holds the obstacle skin catalog, the player's selection and
// purchases, and the background refreshers that keep them current while the
// shop is open.
package shop

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/krigga/flappy-ton/internal/backend"
	"github.com/krigga/flappy-ton/internal/store"
)

// DefaultReloadInterval is how often purchases refresh while the shop is open.
const DefaultReloadInterval = 10 * time.Second

// ErrNotShown is returned by operations that need the shop to be open.
var ErrNotShown = errors.New("shop: not shown")

// Item is a purchasable obstacle skin.
type Item struct {
	SystemName string          `json:"systemName"`
	Cost       decimal.Decimal `json:"cost"`
}

// DefaultCatalog lists the stock skins. The first item is always free.
func DefaultCatalog() []Item {
	return []Item{
		{SystemName: "pipe-green", Cost: decimal.Zero},
		{SystemName: "pipe-red", Cost: decimal.NewFromInt(1)},
	}
}

// Settings persists the chosen skin.
type Settings interface {
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
}

// PurchaseSource lists the items a player owns.
type PurchaseSource interface {
	Purchases(ctx context.Context, auth string) ([]backend.Purchase, error)
}

// Purchaser pays for an item.
type Purchaser interface {
	Buy(ctx context.Context, item Item, index int) error
}

// Action is what Use did.
type Action string

const (
	ActionSelected Action = "selected"
	ActionBought   Action = "bought"
	ActionNone     Action = "none"
)

// Config wires a Shop.
type Config struct {
	Catalog        []Item
	Settings       Settings
	Purchases      PurchaseSource
	Purchaser      Purchaser
	Auth           string
	ReloadInterval time.Duration
	Logger         *log.Logger
}

// Shop is the skin selection state. It implements game.SkinSource.
type Shop struct {
	catalog   []Item
	settings  Settings
	source    PurchaseSource
	purchaser Purchaser
	interval  time.Duration
	logger    *log.Logger

	mu       sync.RWMutex
	auth     string
	current  int
	preview  int
	owned    map[string]bool
	shown    bool
	gen      int
	poller   *Poller
	onChange func()
}

// New builds a shop and restores the chosen skin from settings.
func New(cfg Config) *Shop {
	if len(cfg.Catalog) == 0 {
		cfg.Catalog = DefaultCatalog()
	}
	if cfg.ReloadInterval <= 0 {
		cfg.ReloadInterval = DefaultReloadInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	s := &Shop{
		catalog:   cfg.Catalog,
		settings:  cfg.Settings,
		source:    cfg.Purchases,
		purchaser: cfg.Purchaser,
		interval:  cfg.ReloadInterval,
		logger:    cfg.Logger,
		auth:      cfg.Auth,
		owned:     map[string]bool{},
	}
	if s.settings != nil {
		if v, err := s.settings.GetSetting(store.SettingChosenSkin); err == nil {
			if idx, err := strconv.Atoi(v); err == nil && idx >= 0 && idx < len(s.catalog) {
				s.current = idx
			}
		}
	}
	s.preview = s.current
	return s
}

// SetAuth updates the init data used to list purchases.
func (s *Shop) SetAuth(auth string) {
	s.mu.Lock()
	s.auth = auth
	s.mu.Unlock()
}

// OnChange registers fn to run after the visible state changes. fn runs on
// whichever goroutine made the change.
func (s *Shop) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// CurrentSkin returns the identifier of the selected skin.
func (s *Shop) CurrentSkin() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog[s.current].SystemName
}

// Catalog returns the items on sale.
func (s *Shop) Catalog() []Item {
	out := make([]Item, len(s.catalog))
	copy(out, s.catalog)
	return out
}

// Preview returns the previewed item and its index.
func (s *Shop) Preview() (Item, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog[s.preview], s.preview
}

// Shown reports whether the shop is open.
func (s *Shop) Shown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shown
}

// CanPrev reports whether there is an item before the preview.
func (s *Shop) CanPrev() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.preview > 0
}

// CanNext reports whether there is an item after the preview.
func (s *Shop) CanNext() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.preview < len(s.catalog)-1
}

// Prev moves the preview left. It returns false at the first item.
func (s *Shop) Prev() bool {
	s.mu.Lock()
	if s.preview == 0 {
		s.mu.Unlock()
		return false
	}
	s.preview--
	s.mu.Unlock()
	s.changed()
	return true
}

// Next moves the preview right. It returns false at the last item.
func (s *Shop) Next() bool {
	s.mu.Lock()
	if s.preview >= len(s.catalog)-1 {
		s.mu.Unlock()
		return false
	}
	s.preview++
	s.mu.Unlock()
	s.changed()
	return true
}

// Owned reports whether the player may use the item without paying.
func (s *Shop) Owned(index int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ownedLocked(index)
}

func (s *Shop) ownedLocked(index int) bool {
	return index == 0 || s.catalog[index].Cost.IsZero() || s.owned[s.catalog[index].SystemName]
}

// ActionLabel is the caption of the use button for the previewed item.
func (s *Shop) ActionLabel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.preview == s.current:
		return "Used"
	case s.ownedLocked(s.preview):
		return "Use"
	default:
		return "Buy for " + s.catalog[s.preview].Cost.String()
	}
}

// Use selects the previewed item, or starts a purchase when it is not owned.
// A purchase does not select the item; it becomes usable once the backend
// lists it.
func (s *Shop) Use(ctx context.Context) (Action, error) {
	s.mu.Lock()
	idx := s.preview
	if idx == s.current {
		s.mu.Unlock()
		return ActionNone, nil
	}
	if !s.ownedLocked(idx) {
		item := s.catalog[idx]
		s.mu.Unlock()
		if s.purchaser == nil {
			return ActionNone, fmt.Errorf("shop: purchases are not available")
		}
		if err := s.purchaser.Buy(ctx, item, idx); err != nil {
			return ActionNone, fmt.Errorf("shop: buy %s: %w", item.SystemName, err)
		}
		return ActionBought, nil
	}
	s.current = idx
	s.mu.Unlock()

	if s.settings != nil {
		if err := s.settings.SetSetting(store.SettingChosenSkin, strconv.Itoa(idx)); err != nil {
			s.logger.Printf("shop: persist chosen skin error index=%d err=%v", idx, err)
		}
	}
	s.changed()
	return ActionSelected, nil
}

// Show loads purchases, opens the shop with the preview on the current item
// and starts refreshing purchases in the background. The shop stays closed
// when the first load fails.
func (s *Shop) Show(ctx context.Context) error {
	s.mu.RLock()
	auth := s.auth
	s.mu.RUnlock()

	purchases, err := s.fetch(ctx, auth)
	if err != nil {
		return fmt.Errorf("shop: could not load the shop: %w", err)
	}

	s.mu.Lock()
	if s.shown {
		s.mu.Unlock()
		return nil
	}
	s.setOwnedLocked(purchases)
	s.shown = true
	s.gen++
	s.preview = s.current
	s.poller = StartPoller(context.Background(), s.interval, func(ctx context.Context) {
		if err := s.Reload(ctx); err != nil && !errors.Is(err, ErrNotShown) && ctx.Err() == nil {
			s.logger.Printf("shop: reload purchases error err=%v", err)
		}
	})
	s.mu.Unlock()

	s.changed()
	return nil
}

// Hide closes the shop and stops the refresher. No update from a pending
// refresh is applied after Hide returns.
func (s *Shop) Hide() {
	s.mu.Lock()
	p := s.poller
	s.poller = nil
	s.shown = false
	s.gen++
	s.mu.Unlock()

	if p != nil {
		p.Stop()
	}
	s.changed()
}

// Reload refreshes purchases. The result is dropped when the shop was closed
// or reopened while the request was in flight.
func (s *Shop) Reload(ctx context.Context) error {
	s.mu.RLock()
	if !s.shown {
		s.mu.RUnlock()
		return ErrNotShown
	}
	gen, auth := s.gen, s.auth
	s.mu.RUnlock()

	purchases, err := s.fetch(ctx, auth)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if !s.shown || s.gen != gen {
		s.mu.Unlock()
		return ErrNotShown
	}
	s.setOwnedLocked(purchases)
	s.mu.Unlock()

	s.changed()
	return nil
}

func (s *Shop) fetch(ctx context.Context, auth string) ([]backend.Purchase, error) {
	if s.source == nil {
		return nil, nil
	}
	return s.source.Purchases(ctx, auth)
}

func (s *Shop) setOwnedLocked(purchases []backend.Purchase) {
	owned := make(map[string]bool, len(purchases))
	for _, p := range purchases {
		owned[p.SystemName] = true
	}
	s.owned = owned
}

func (s *Shop) changed() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}
