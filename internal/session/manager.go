// Package session owns the per-visitor lifetime of a cart and its checkout.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cartapp "github.com/dwikikusuma/bullion-store/internal/cart/app"
	checkoutapp "github.com/dwikikusuma/bullion-store/internal/checkout/app"
	"github.com/dwikikusuma/bullion-store/internal/pricing"
	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("session not found")
	ErrCheckoutActive = errors.New("checkout already in progress")
	ErrNoCheckout     = errors.New("no checkout started")
)

// Session pairs one cart with at most one live checkout.
type Session struct {
	ID        string
	Cart      *cartapp.Store
	CreatedAt time.Time

	mu        sync.Mutex
	checkout  *checkoutapp.Controller
	nextWatch int
	watchers  map[int]func(*checkoutapp.Controller)
}

func (s *Session) Checkout() (*checkoutapp.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checkout == nil {
		return nil, ErrNoCheckout
	}
	return s.checkout, nil
}

// WatchCheckout calls fn with every checkout begun on the session from now
// on. The returned function stops watching.
func (s *Session) WatchCheckout(fn func(*checkoutapp.Controller)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchers == nil {
		s.watchers = make(map[int]func(*checkoutapp.Controller))
	}

	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = fn

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

type Deps struct {
	Pricer     *pricing.Calculator
	Policy     checkoutapp.KycPolicy
	Currencies checkoutapp.CurrencyDesk
	Wallet     checkoutapp.WalletConnector
	Kyc        checkoutapp.KycVerifier
	Payments   checkoutapp.PaymentVerifier
	Orders     checkoutapp.OrderFinalizer
	Timing     checkoutapp.Timing
	Logger     *slog.Logger

	// NewScheduler builds the task scheduler of each checkout. Nil selects
	// a timer-backed scheduler.
	NewScheduler func() checkoutapp.Scheduler
}

type Manager struct {
	deps Deps
	log  *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(deps Deps) *Manager {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if deps.NewScheduler == nil {
		deps.NewScheduler = func() checkoutapp.Scheduler { return checkoutapp.NewTimerScheduler() }
	}
	return &Manager{deps: deps, log: log, sessions: make(map[string]*Session)}
}

// Create starts a session with an empty cart.
func (m *Manager) Create() *Session {
	s := &Session{
		ID:        uuid.NewString(),
		Cart:      cartapp.NewStore(m.deps.Pricer),
		CreatedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.log.Info("session created", slog.String("session_id", s.ID))
	return s
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// BeginCheckout starts a checkout over the session cart. A finished or
// cancelled checkout is replaced; a live one is not.
func (m *Manager) BeginCheckout(id string) (*checkoutapp.Controller, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.checkout != nil && !s.checkout.Done() {
		s.mu.Unlock()
		return nil, ErrCheckoutActive
	}

	c, err := checkoutapp.NewController(checkoutapp.Deps{
		Cart:       s.Cart,
		Policy:     m.deps.Policy,
		Currencies: m.deps.Currencies,
		Wallet:     m.deps.Wallet,
		Kyc:        m.deps.Kyc,
		Payments:   m.deps.Payments,
		Orders:     m.deps.Orders,
		Scheduler:  m.deps.NewScheduler(),
		Logger:     m.log.With(slog.String("session_id", id)),
	}, m.deps.Timing)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("begin checkout: %w", err)
	}

	if s.checkout != nil {
		s.checkout.Close()
	}
	s.checkout = c
	watchers := make([]func(*checkoutapp.Controller), 0, len(s.watchers))
	for _, w := range s.watchers {
		watchers = append(watchers, w)
	}
	s.mu.Unlock()

	for _, w := range watchers {
		w(c)
	}
	return c, nil
}

// Destroy ends the session: pending checkout timers are cancelled and the
// cart is released.
func (m *Manager) Destroy(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	m.teardown(s)
	m.log.Info("session destroyed", slog.String("session_id", id))
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close destroys every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		m.teardown(s)
	}
}

func (m *Manager) teardown(s *Session) {
	s.mu.Lock()
	if s.checkout != nil {
		s.checkout.Close()
	}
	s.watchers = nil
	s.mu.Unlock()
	s.Cart.Release()
}
