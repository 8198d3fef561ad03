package app

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dwikikusuma/bullion-store/internal/cart/domain"
	"github.com/dwikikusuma/bullion-store/internal/pricing"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrSessionClosed = errors.New("cart session closed")
	ErrCartLocked    = errors.New("cart is locked during checkout")
)

// MaxLineQuantity caps the quantity of a single cart line.
const MaxLineQuantity = 10_000

type Pricer interface {
	Totals(items []domain.CartItem) pricing.Totals
	Quote(items []domain.CartItem) pricing.Quote
}

type AddOption func(*addOptions)

type addOptions struct {
	suppressDrawer bool
}

// SuppressDrawer keeps the cart drawer closed when adding an item.
func SuppressDrawer() AddOption {
	return func(o *addOptions) { o.suppressDrawer = true }
}

// Store owns the cart of one session. Every method is atomic; observers
// registered with Subscribe see a consistent snapshot after each change.
type Store struct {
	pricer Pricer

	mu         sync.Mutex
	items      map[string]int
	count      int
	drawerOpen bool
	locked     bool
	released   bool

	nextSub int
	subs    map[int]func(domain.Snapshot)
}

func NewStore(pricer Pricer) *Store {
	return &Store{
		pricer: pricer,
		items:  make(map[string]int),
		subs:   make(map[int]func(domain.Snapshot)),
	}
}

// AddItem increments productID by qty, inserting it when absent. A result
// of zero or less removes the line; a result above MaxLineQuantity is
// rejected with ErrInvalidInput and leaves the cart unchanged. The drawer
// opens unless suppressed, even when qty is zero.
func (s *Store) AddItem(productID string, qty int, opts ...AddOption) error {
	var o addOptions
	for _, opt := range opts {
		opt(&o)
	}
	if qty > MaxLineQuantity {
		return fmt.Errorf("%w: quantity %d exceeds %d", ErrInvalidInput, qty, MaxLineQuantity)
	}

	return s.mutate(productID, true, func() error {
		// Both operands are at most MaxLineQuantity, so the sum cannot wrap.
		next := s.items[productID] + qty
		if next > MaxLineQuantity {
			return fmt.Errorf("%w: quantity %d exceeds %d", ErrInvalidInput, next, MaxLineQuantity)
		}
		s.setQuantity(productID, next)
		if !o.suppressDrawer {
			s.drawerOpen = true
		}
		return nil
	})
}

// UpdateItem sets the quantity of productID. qty <= 0 removes it.
func (s *Store) UpdateItem(productID string, qty int) error {
	if qty > MaxLineQuantity {
		return fmt.Errorf("%w: quantity %d exceeds %d", ErrInvalidInput, qty, MaxLineQuantity)
	}
	return s.mutate(productID, true, func() error {
		s.setQuantity(productID, qty)
		return nil
	})
}

func (s *Store) RemoveItem(productID string) error {
	return s.mutate(productID, true, func() error {
		delete(s.items, productID)
		return nil
	})
}

// Clear empties the cart. It is allowed while the cart is locked so that a
// finished checkout can reset it.
func (s *Store) Clear() error {
	return s.apply(false, func() error {
		s.items = make(map[string]int)
		return nil
	})
}

func (s *Store) OpenDrawer() error {
	return s.setFlag(&s.drawerOpen, true)
}

func (s *Store) CloseDrawer() error {
	return s.setFlag(&s.drawerOpen, false)
}

// Lock freezes item mutations for the duration of a checkout.
func (s *Store) Lock() error {
	return s.setFlag(&s.locked, true)
}

func (s *Store) Unlock() error {
	return s.setFlag(&s.locked, false)
}

// Release ends the store lifecycle. Observers are dropped and later
// mutations fail with ErrSessionClosed.
func (s *Store) Release() {
	s.mu.Lock()
	s.released = true
	s.subs = make(map[int]func(domain.Snapshot))
	s.mu.Unlock()
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Store) Subscribe(fn func(domain.Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) Items() []domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.itemsLocked()
}

func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *Store) DrawerOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drawerOpen
}

func (s *Store) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Totals prices the current items live against the catalog.
func (s *Store) Totals() pricing.Totals {
	return s.pricer.Totals(s.Items())
}

func (s *Store) Quote() pricing.Quote {
	return s.pricer.Quote(s.Items())
}

// QuoteOf prices the items of snap, typically one handed to a subscriber,
// so that counts and lines come from the same cart state.
func (s *Store) QuoteOf(snap domain.Snapshot) pricing.Quote {
	return s.pricer.Quote(snap.Items)
}

func (s *Store) setFlag(flag *bool, v bool) error {
	return s.apply(false, func() error {
		*flag = v
		return nil
	})
}

func (s *Store) mutate(productID string, itemChange bool, fn func() error) error {
	if strings.TrimSpace(productID) == "" {
		return ErrInvalidInput
	}
	return s.apply(itemChange, fn)
}

func (s *Store) apply(itemChange bool, fn func() error) error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if itemChange && s.locked {
		s.mu.Unlock()
		return ErrCartLocked
	}

	if err := fn(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.recount()

	snap := s.snapshotLocked()
	subs := make([]func(domain.Snapshot), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(snap)
	}
	return nil
}

func (s *Store) setQuantity(productID string, qty int) {
	if qty <= 0 {
		delete(s.items, productID)
		return
	}
	s.items[productID] = qty
}

func (s *Store) recount() {
	n := 0
	for _, q := range s.items {
		n += q
	}
	s.count = n
}

func (s *Store) itemsLocked() []domain.CartItem {
	out := make([]domain.CartItem, 0, len(s.items))
	for id, q := range s.items {
		out = append(out, domain.CartItem{ProductID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func (s *Store) snapshotLocked() domain.Snapshot {
	return domain.Snapshot{
		Items:      s.itemsLocked(),
		Count:      s.count,
		DrawerOpen: s.drawerOpen,
		Locked:     s.locked,
	}
}
