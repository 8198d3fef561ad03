package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dwikikusuma/bullion-store/internal/checkout/domain"
	orderapp "github.com/dwikikusuma/bullion-store/internal/order/app"
)

const (
	DefaultWalletConnectDelay = 500 * time.Millisecond
	DefaultCopyFeedback       = 2 * time.Second
)

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInvalidTotal      = errors.New("cart total out of range")
	ErrInvalidTransition = errors.New("invalid checkout transition")
	ErrSessionClosed     = errors.New("checkout session closed")
	ErrStepFailed        = errors.New("checkout step failed")
	ErrMissingDependency = errors.New("missing checkout dependency")

	errStale = errors.New("stale scheduled task")
)

// StepError is returned when a collaborator rejects a step. The session
// has already moved to a Failed step when the caller sees it.
type StepError struct {
	Stage domain.Stage
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step failed: %v", e.Stage, e.Err)
}

func (e *StepError) Unwrap() []error { return []error{ErrStepFailed, e.Err} }

type Deps struct {
	Cart       Cart
	Policy     KycPolicy
	Currencies CurrencyDesk
	Wallet     WalletConnector
	Kyc        KycVerifier
	Payments   PaymentVerifier
	Orders     OrderFinalizer
	Scheduler  Scheduler
	Logger     *slog.Logger
}

type Timing struct {
	WalletConnectDelay time.Duration
	CopyFeedback       time.Duration
}

// Controller drives one checkout session from wallet connection to a
// terminal step. All methods are safe for concurrent use.
type Controller struct {
	cart       Cart
	currencies CurrencyDesk
	wallet     WalletConnector
	kyc        KycVerifier
	payments   PaymentVerifier
	orders     OrderFinalizer
	scheduler  Scheduler
	timing     Timing
	log        *slog.Logger

	mu      sync.Mutex
	session domain.Session
	closed  bool
	copyGen int
	nextSub int
	subs    map[int]func(domain.Session)
}

// NewController starts a checkout over the current cart. The total is
// captured once and the KYC requirement is decided from it; the cart is
// locked until the session completes, is cancelled or is closed.
func NewController(deps Deps, timing Timing) (*Controller, error) {
	switch {
	case deps.Cart == nil:
		return nil, fmt.Errorf("%w: cart", ErrMissingDependency)
	case deps.Policy == nil:
		return nil, fmt.Errorf("%w: kyc policy", ErrMissingDependency)
	case deps.Currencies == nil:
		return nil, fmt.Errorf("%w: currencies", ErrMissingDependency)
	case deps.Wallet == nil, deps.Kyc == nil, deps.Payments == nil:
		return nil, fmt.Errorf("%w: verifiers", ErrMissingDependency)
	case deps.Orders == nil:
		return nil, fmt.Errorf("%w: order finalizer", ErrMissingDependency)
	}
	if deps.Scheduler == nil {
		deps.Scheduler = NewTimerScheduler()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if timing.WalletConnectDelay <= 0 {
		timing.WalletConnectDelay = DefaultWalletConnectDelay
	}
	if timing.CopyFeedback <= 0 {
		timing.CopyFeedback = DefaultCopyFeedback
	}

	quote := deps.Cart.Quote()
	priced := 0
	for _, line := range quote.Lines {
		if !line.Missing && line.Quantity > 0 {
			priced++
		}
	}
	if priced == 0 {
		return nil, ErrEmptyCart
	}
	if quote.Overflow || quote.Total <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTotal, quote.Total)
	}

	requiresKyc, err := deps.Policy.RequiresKyc(quote.Total)
	if err != nil {
		return nil, fmt.Errorf("evaluate kyc rule: %w", err)
	}

	if err := deps.Cart.Lock(); err != nil {
		return nil, fmt.Errorf("lock cart: %w", err)
	}

	c := &Controller{
		cart:       deps.Cart,
		currencies: deps.Currencies,
		wallet:     deps.Wallet,
		kyc:        deps.Kyc,
		payments:   deps.Payments,
		orders:     deps.Orders,
		scheduler:  deps.Scheduler,
		timing:     timing,
		log:        deps.Logger,
		session: domain.Session{
			Step:        domain.WalletConnect{},
			Total:       quote.Total,
			RequiresKyc: requiresKyc,
		},
		subs: make(map[int]func(domain.Session)),
	}

	c.log.Info("checkout started",
		slog.Int64("total", quote.Total),
		slog.Bool("requires_kyc", requiresKyc),
	)
	return c, nil
}

// ConnectWallet connects the buyer's wallet and schedules the move to the
// next step after the wallet-connect delay.
func (c *Controller) ConnectWallet(ctx context.Context) error {
	return c.transition("connect_wallet", func(s *domain.Session) error {
		if st, ok := s.Step.(domain.WalletConnect); !ok || st.Connecting {
			return invalid(s.Step, "connect wallet")
		}

		addr, err := c.wallet.Connect(ctx)
		if err != nil {
			return fail(s, domain.StageWallet, domain.WalletConnect{}, err)
		}

		s.WalletConnected = true
		s.WalletAddress = addr
		s.Step = domain.WalletConnect{Connecting: true}
		c.scheduler.AfterFunc(c.timing.WalletConnectDelay, c.advanceAfterConnect)
		return nil
	})
}

func (c *Controller) advanceAfterConnect() {
	_ = c.transition("wallet_connected", func(s *domain.Session) error {
		if st, ok := s.Step.(domain.WalletConnect); !ok || !st.Connecting {
			return errStale
		}
		if s.RequiresKyc && !s.KycComplete {
			s.Step = domain.KycVerify{}
		} else {
			s.Step = domain.MethodChoice{}
		}
		return nil
	})
}

func (c *Controller) CompleteKyc(ctx context.Context) error {
	return c.transition("complete_kyc", func(s *domain.Session) error {
		if _, ok := s.Step.(domain.KycVerify); !ok {
			return invalid(s.Step, "complete kyc")
		}

		if err := c.kyc.Verify(ctx, s.WalletAddress); err != nil {
			return fail(s, domain.StageKyc, domain.KycVerify{}, err)
		}

		s.KycComplete = true
		s.Step = domain.MethodChoice{}
		return nil
	})
}

// SelectPaymentMethod enters the crypto currency choice for MethodCrypto.
// Every other method is directly payable.
func (c *Controller) SelectPaymentMethod(method domain.PaymentMethod) error {
	if method.Label() == "" {
		return fmt.Errorf("%w: %q", domain.ErrUnknownMethod, method)
	}

	return c.transition("select_method", func(s *domain.Session) error {
		if _, ok := s.Step.(domain.MethodChoice); !ok {
			return invalid(s.Step, "select payment method")
		}

		s.Method = method
		if method == domain.MethodCrypto {
			s.Step = domain.CurrencyChoice{}
		} else {
			s.Step = domain.DirectPayment{Method: method}
		}
		return nil
	})
}

// SelectCurrency prices the order in the chosen currency and shows its
// deposit address.
func (c *Controller) SelectCurrency(key string) error {
	return c.transition("select_currency", func(s *domain.Session) error {
		if _, ok := s.Step.(domain.CurrencyChoice); !ok {
			return invalid(s.Step, "select currency")
		}

		cur, err := c.currencies.Lookup(key)
		if err != nil {
			return err
		}
		amount, err := c.currencies.Amount(cur.Symbol, s.Total)
		if err != nil {
			return err
		}
		qr, err := c.currencies.QR(cur.Address)
		if err != nil {
			return err
		}

		s.Step = domain.AddressDisplay{
			Currency: cur,
			Address:  cur.Address,
			Amount:   amount,
			QR:       qr,
		}
		return nil
	})
}

func (c *Controller) BackToCurrencyChoice() error {
	return c.transition("back_to_currency", func(s *domain.Session) error {
		if _, ok := s.Step.(domain.AddressDisplay); !ok {
			return invalid(s.Step, "go back to currency choice")
		}
		s.Step = domain.CurrencyChoice{}
		s.Copied = ""
		return nil
	})
}

func (c *Controller) BackToMethodChoice() error {
	return c.transition("back_to_method", func(s *domain.Session) error {
		switch s.Step.(type) {
		case domain.CurrencyChoice, domain.AddressDisplay, domain.DirectPayment:
		default:
			return invalid(s.Step, "go back to method choice")
		}
		s.Step = domain.MethodChoice{}
		s.Method = ""
		s.Copied = ""
		return nil
	})
}

// ConfirmPayment verifies the payment, finalizes the order and completes
// the session. It is only valid from a payable step.
func (c *Controller) ConfirmPayment(ctx context.Context) (string, error) {
	var orderID string

	err := c.transition("confirm_payment", func(s *domain.Session) error {
		if !domain.IsPayable(s.Step) {
			return invalid(s.Step, "confirm payment")
		}

		req := PaymentRequest{Method: s.Method, Total: s.Total, WalletAddress: s.WalletAddress}
		orderReq := orderapp.Request{PaymentMethod: string(s.Method), WalletAddress: s.WalletAddress}
		if st, ok := s.Step.(domain.AddressDisplay); ok {
			req.Currency = st.Currency.Symbol
			req.Address = st.Address
			req.Amount = st.Amount
			orderReq.CryptoCurrency = st.Currency.Symbol
			orderReq.CryptoAmount = st.Amount.String()
		}

		if err := c.payments.Verify(ctx, req); err != nil {
			return fail(s, domain.StagePayment, s.Step, err)
		}

		id, err := c.orders.Finalize(ctx, c.cart, orderReq)
		if err != nil {
			return fail(s, domain.StagePayment, s.Step, err)
		}

		orderID = id
		s.Step = domain.Complete{OrderID: id}
		s.Copied = ""
		c.release()
		return nil
	})
	if err != nil {
		return "", err
	}
	return orderID, nil
}

// CopyAddress marks the deposit address as copied. The marker clears
// itself after the copy-feedback interval.
func (c *Controller) CopyAddress() (string, error) {
	var addr string

	err := c.transition("copy_address", func(s *domain.Session) error {
		st, ok := s.Step.(domain.AddressDisplay)
		if !ok {
			return invalid(s.Step, "copy address")
		}

		addr = st.Address
		s.Copied = addr
		c.copyGen++
		gen := c.copyGen
		c.scheduler.AfterFunc(c.timing.CopyFeedback, func() { c.resetCopied(gen) })
		return nil
	})
	return addr, err
}

func (c *Controller) resetCopied(gen int) {
	_ = c.transition("copy_reset", func(s *domain.Session) error {
		if gen != c.copyGen || s.Copied == "" {
			return errStale
		}
		s.Copied = ""
		return nil
	})
}

func (c *Controller) Copied() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Copied
}

// Retry returns a failed session to the step that failed.
func (c *Controller) Retry() error {
	return c.transition("retry", func(s *domain.Session) error {
		f, ok := s.Step.(domain.Failed)
		if !ok {
			return invalid(s.Step, "retry")
		}
		s.Step = f.Resume
		return nil
	})
}

// Cancel abandons the checkout. The cart is unlocked and keeps its items.
func (c *Controller) Cancel() error {
	return c.transition("cancel", func(s *domain.Session) error {
		s.Step = domain.Cancelled{}
		s.Copied = ""
		c.release()
		return nil
	})
}

// Close ends the session without changing its step. Pending scheduled
// tasks are cancelled and an unfinished checkout unlocks the cart.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	active := !domain.IsTerminal(c.session.Step)
	c.subs = make(map[int]func(domain.Session))
	c.mu.Unlock()

	c.scheduler.Stop()
	if active {
		_ = c.cart.Unlock()
	}
}

func (c *Controller) Session() domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Controller) Steps() []domain.StepProgress {
	return c.Session().Progress()
}

// Done reports whether the session reached a terminal step or was closed.
func (c *Controller) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed || domain.IsTerminal(c.session.Step)
}

// Subscribe registers fn for every committed transition and returns a
// function that removes it.
func (c *Controller) Subscribe(fn func(domain.Session)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// transition runs fn under the session lock. A rejected transition leaves
// the session untouched; a StepError is committed and then returned.
func (c *Controller) transition(action string, fn func(s *domain.Session) error) error {
	c.mu.Lock()
	if c.closed || domain.IsTerminal(c.session.Step) {
		c.mu.Unlock()
		return ErrSessionClosed
	}

	next := c.session
	from := next.Step.Kind()

	err := fn(&next)
	var stepErr *StepError
	if err != nil && !errors.As(err, &stepErr) {
		c.mu.Unlock()
		return err
	}

	c.session = next
	snap := next
	subs := make([]func(domain.Session), 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	attrs := []any{
		slog.String("action", action),
		slog.String("from", string(from)),
		slog.String("step", string(snap.Step.Kind())),
	}
	if stepErr != nil {
		c.log.Warn("checkout step failed", append(attrs, slog.Any("err", stepErr.Err))...)
	} else {
		c.log.Info("checkout transition", attrs...)
	}

	for _, sub := range subs {
		sub(snap)
	}
	return err
}

// release stops pending tasks and unlocks the cart once the session is
// terminal. Called with c.mu held.
func (c *Controller) release() {
	c.scheduler.Stop()
	if err := c.cart.Unlock(); err != nil {
		c.log.Warn("unlock cart", slog.Any("err", err))
	}
}

func invalid(from domain.Step, action string) error {
	return fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, action, from.Kind())
}

func fail(s *domain.Session, stage domain.Stage, resume domain.Step, err error) error {
	s.Step = domain.Failed{Stage: stage, Reason: err.Error(), Resume: resume}
	return &StepError{Stage: stage, Err: err}
}
