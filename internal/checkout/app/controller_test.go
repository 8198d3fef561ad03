package app

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	cartapp "github.com/dwikikusuma/bullion-store/internal/cart/app"
	"github.com/dwikikusuma/bullion-store/internal/checkout/crypto"
	"github.com/dwikikusuma/bullion-store/internal/checkout/domain"
	"github.com/dwikikusuma/bullion-store/internal/checkout/policy"
	orderapp "github.com/dwikikusuma/bullion-store/internal/order/app"
	ordermem "github.com/dwikikusuma/bullion-store/internal/order/infra/memory"
	"github.com/dwikikusuma/bullion-store/internal/pricing"
	"github.com/dwikikusuma/bullion-store/pkg/logger"
)

type manualScheduler struct {
	mu      sync.Mutex
	tasks   []func()
	delays  []time.Duration
	stopped bool
}

func (m *manualScheduler) AfterFunc(d time.Duration, fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return func() {}
	}
	m.tasks = append(m.tasks, fn)
	m.delays = append(m.delays, d)
	return func() {}
}

func (m *manualScheduler) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.tasks = nil
	m.mu.Unlock()
}

// Fire runs every pending task in scheduling order.
func (m *manualScheduler) Fire() {
	m.mu.Lock()
	tasks := m.tasks
	m.tasks = nil
	m.mu.Unlock()

	for _, fn := range tasks {
		fn()
	}
}

type catalog map[string]pricing.Product

func (c catalog) LookupProduct(id string) (pricing.Product, bool) {
	p, ok := c[id]
	return p, ok
}

type stubWallet struct{ err error }

func (w stubWallet) Connect(context.Context) (string, error) {
	if w.err != nil {
		return "", w.err
	}
	return "bc1p...3kp9", nil
}

type stubKyc struct{ err error }

func (k *stubKyc) Verify(context.Context, string) error { return k.err }

type stubPayments struct {
	err  error
	last PaymentRequest
}

func (p *stubPayments) Verify(_ context.Context, req PaymentRequest) error {
	p.last = req
	return p.err
}

type fixture struct {
	cart     *cartapp.Store
	sched    *manualScheduler
	orders   *ordermem.OrderStore
	kyc      *stubKyc
	payments *stubPayments
	wallet   *stubWallet
}

func newFixture(t *testing.T, items map[string]int) *fixture {
	t.Helper()

	calc := pricing.NewCalculator(catalog{
		"A": {ID: "A", Name: "200g", UnitPrice: 16400},
		"B": {ID: "B", Name: "1g", UnitPrice: 82},
	}, pricing.DefaultFee)

	f := &fixture{
		cart:     cartapp.NewStore(calc),
		sched:    &manualScheduler{},
		orders:   ordermem.NewOrderStore(),
		kyc:      &stubKyc{},
		payments: &stubPayments{},
		wallet:   &stubWallet{},
	}
	for id, qty := range items {
		if err := f.cart.AddItem(id, qty); err != nil {
			t.Fatalf("AddItem: %v", err)
		}
	}
	return f
}

func (f *fixture) controller(t *testing.T) *Controller {
	t.Helper()

	kyc, err := policy.NewKyc("")
	if err != nil {
		t.Fatalf("NewKyc: %v", err)
	}
	reg, err := crypto.NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	c, err := NewController(Deps{
		Cart:       f.cart,
		Policy:     kyc,
		Currencies: reg,
		Wallet:     f.wallet,
		Kyc:        f.kyc,
		Payments:   f.payments,
		Orders:     orderapp.NewFinalizer(orderapp.TimestampIDs{}, f.orders, logger.Discard()),
		Scheduler:  f.sched,
		Logger:     logger.Discard(),
	}, Timing{})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func kinds(path []domain.Step) []domain.StepKind {
	out := make([]domain.StepKind, len(path))
	for i, s := range path {
		out[i] = s.Kind()
	}
	return out
}

func TestCheckoutPath(t *testing.T) {
	tests := []struct {
		name  string
		items map[string]int
		total int64
		want  []domain.StepKind
	}{
		{
			name:  "heavy order needs kyc",
			items: map[string]int{"A": 1},
			total: 16550,
			want: []domain.StepKind{
				domain.KindWalletConnect, domain.KindKycVerify, domain.KindMethodChoice,
				domain.KindDirectPayment, domain.KindComplete,
			},
		},
		{
			name:  "light order skips kyc",
			items: map[string]int{"B": 2},
			total: 314,
			want: []domain.StepKind{
				domain.KindWalletConnect, domain.KindMethodChoice,
				domain.KindDirectPayment, domain.KindComplete,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, tt.items)
			c := f.controller(t)

			if c.Session().Total != tt.total {
				t.Fatalf("expected total %d, got %d", tt.total, c.Session().Total)
			}

			var path []domain.Step
			path = append(path, c.Session().Step)
			c.Subscribe(func(s domain.Session) {
				if last := path[len(path)-1]; last.Kind() != s.Step.Kind() {
					path = append(path, s.Step)
				}
			})

			if err := c.ConnectWallet(ctx); err != nil {
				t.Fatalf("ConnectWallet: %v", err)
			}
			if f.sched.delays[0] != DefaultWalletConnectDelay {
				t.Fatalf("expected wallet delay %s, got %s", DefaultWalletConnectDelay, f.sched.delays[0])
			}
			f.sched.Fire()

			if c.Session().RequiresKyc {
				if err := c.CompleteKyc(ctx); err != nil {
					t.Fatalf("CompleteKyc: %v", err)
				}
			}
			if err := c.SelectPaymentMethod(domain.MethodCreditCard); err != nil {
				t.Fatalf("SelectPaymentMethod: %v", err)
			}
			id, err := c.ConfirmPayment(ctx)
			if err != nil {
				t.Fatalf("ConfirmPayment: %v", err)
			}

			got := kinds(path)
			if len(got) != len(tt.want) {
				t.Fatalf("path %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("path %v, want %v", got, tt.want)
				}
			}

			if done, ok := c.Session().Step.(domain.Complete); !ok || done.OrderID != id {
				t.Fatalf("expected Complete{%s}, got %#v", id, c.Session().Step)
			}
			if f.cart.Count() != 0 || len(f.cart.Items()) != 0 {
				t.Fatalf("cart not cleared: %+v", f.cart.Snapshot())
			}
			if _, err := f.orders.Get(ctx, id); err != nil {
				t.Fatalf("order not handed off: %v", err)
			}

			_ = f.cart.Clear()
			if f.cart.Count() != 0 {
				t.Fatal("clear after completion must keep the cart empty")
			}
			if err := f.cart.AddItem("B", 1); err != nil {
				t.Fatalf("cart should be unlocked after completion: %v", err)
			}
		})
	}
}

func TestKycDecidedOnceAtEntry(t *testing.T) {
	f := newFixture(t, map[string]int{"B": 2})
	c := f.controller(t)

	if err := f.cart.AddItem("A", 1); !errors.Is(err, cartapp.ErrCartLocked) {
		t.Fatalf("expected cart locked during checkout, got %v", err)
	}
	if c.Session().RequiresKyc {
		t.Fatal("kyc must not be required for 314")
	}
}

func TestCryptoSubFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]int{"A": 1})
	c := f.controller(t)

	_ = c.ConnectWallet(ctx)
	f.sched.Fire()
	_ = c.CompleteKyc(ctx)

	if err := c.SelectPaymentMethod(domain.MethodCrypto); err != nil {
		t.Fatalf("SelectPaymentMethod: %v", err)
	}
	if c.Session().Step.Kind() != domain.KindCurrencyChoice {
		t.Fatalf("expected currency choice, got %s", c.Session().Step.Kind())
	}

	if err := c.SelectCurrency("BTC"); err != nil {
		t.Fatalf("SelectCurrency: %v", err)
	}
	st, ok := c.Session().Step.(domain.AddressDisplay)
	if !ok {
		t.Fatalf("expected address display, got %s", c.Session().Step.Kind())
	}
	if st.Address != "bc1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh" || st.Amount.String() != "0.25461538" {
		t.Fatalf("unexpected address display: %s %s", st.Address, st.Amount)
	}
	if len(st.QR) == 0 {
		t.Fatal("expected qr encoding")
	}

	if err := c.BackToCurrencyChoice(); err != nil {
		t.Fatalf("BackToCurrencyChoice: %v", err)
	}
	s := c.Session()
	if s.Step.Kind() != domain.KindCurrencyChoice {
		t.Fatalf("expected currency choice, got %s", s.Step.Kind())
	}
	if !s.WalletConnected || !s.KycComplete || s.Method != domain.MethodCrypto {
		t.Fatalf("outer progress lost: %+v", s)
	}

	if err := c.SelectCurrency("solana"); err != nil {
		t.Fatalf("SelectCurrency: %v", err)
	}
	id, err := c.ConfirmPayment(ctx)
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if f.payments.last.Currency != "SOL" || f.payments.last.Address == "" {
		t.Fatalf("payment request missing crypto details: %+v", f.payments.last)
	}

	o, _ := f.orders.Get(ctx, id)
	if o.CryptoCurrency != "SOL" || o.CryptoAmount != "110.33333333" || o.WalletAddress != "bc1p...3kp9" {
		t.Fatalf("unexpected order: %+v", o)
	}
}

func TestBackToMethodChoice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]int{"B": 1})
	c := f.controller(t)

	_ = c.ConnectWallet(ctx)
	f.sched.Fire()
	_ = c.SelectPaymentMethod(domain.MethodPayPal)

	if err := c.BackToCurrencyChoice(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := c.BackToMethodChoice(); err != nil {
		t.Fatalf("BackToMethodChoice: %v", err)
	}

	s := c.Session()
	if s.Step.Kind() != domain.KindMethodChoice || s.Method != "" || !s.WalletConnected {
		t.Fatalf("unexpected session: %+v", s)
	}
}

func TestConfirmPaymentRejectedBeforePayableStep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]int{"B": 1})
	c := f.controller(t)

	if _, err := c.ConfirmPayment(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	_ = c.ConnectWallet(ctx)
	if _, err := c.ConfirmPayment(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition while connecting, got %v", err)
	}
	f.sched.Fire()

	_ = c.SelectPaymentMethod(domain.MethodCrypto)
	if _, err := c.ConfirmPayment(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition from currency choice, got %v", err)
	}

	if f.cart.Count() != 1 {
		t.Fatal("rejected confirmation must not touch the cart")
	}
}

func TestInvalidInputs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]int{"B": 1})
	c := f.controller(t)

	_ = c.ConnectWallet(ctx)
	f.sched.Fire()

	if err := c.SelectPaymentMethod("cash"); !errors.Is(err, domain.ErrUnknownMethod) {
		t.Fatalf("expected ErrUnknownMethod, got %v", err)
	}
	_ = c.SelectPaymentMethod(domain.MethodCrypto)
	if err := c.SelectCurrency("DOGE"); !errors.Is(err, domain.ErrUnknownCurrency) {
		t.Fatalf("expected ErrUnknownCurrency, got %v", err)
	}
	if c.Session().Step.Kind() != domain.KindCurrencyChoice {
		t.Fatal("rejected currency must not move the session")
	}
	if err := c.CompleteKyc(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestFailuresRetryAndCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("wallet failure then retry", func(t *testing.T) {
		f := newFixture(t, map[string]int{"B": 1})
		f.wallet.err = errors.New("rejected by user")
		c := f.controller(t)

		err := c.ConnectWallet(ctx)
		if !errors.Is(err, ErrStepFailed) {
			t.Fatalf("expected ErrStepFailed, got %v", err)
		}
		failed, ok := c.Session().Step.(domain.Failed)
		if !ok || failed.Stage != domain.StageWallet || failed.Reason != "rejected by user" {
			t.Fatalf("unexpected step: %#v", c.Session().Step)
		}

		f.wallet.err = nil
		if err := c.Retry(); err != nil {
			t.Fatalf("Retry: %v", err)
		}
		if err := c.ConnectWallet(ctx); err != nil {
			t.Fatalf("ConnectWallet after retry: %v", err)
		}
	})

	t.Run("kyc failure keeps wallet", func(t *testing.T) {
		f := newFixture(t, map[string]int{"A": 1})
		f.kyc.err = errors.New("document unreadable")
		c := f.controller(t)

		_ = c.ConnectWallet(ctx)
		f.sched.Fire()
		if err := c.CompleteKyc(ctx); !errors.Is(err, ErrStepFailed) {
			t.Fatalf("expected ErrStepFailed, got %v", err)
		}
		if err := c.Retry(); err != nil {
			t.Fatalf("Retry: %v", err)
		}
		s := c.Session()
		if s.Step.Kind() != domain.KindKycVerify || !s.WalletConnected {
			t.Fatalf("unexpected session after retry: %+v", s)
		}
	})

	t.Run("declined payment keeps cart and resumes at payable step", func(t *testing.T) {
		f := newFixture(t, map[string]int{"B": 2})
		f.payments.err = errors.New("underpaid")
		c := f.controller(t)

		_ = c.ConnectWallet(ctx)
		f.sched.Fire()
		_ = c.SelectPaymentMethod(domain.MethodCrypto)
		_ = c.SelectCurrency("ETH")

		if _, err := c.ConfirmPayment(ctx); !errors.Is(err, ErrStepFailed) {
			t.Fatalf("expected ErrStepFailed, got %v", err)
		}
		if f.cart.Count() != 2 {
			t.Fatal("failed payment must not clear the cart")
		}

		_ = c.Retry()
		if c.Session().Step.Kind() != domain.KindAddressDisplay {
			t.Fatalf("expected to resume at address display, got %s", c.Session().Step.Kind())
		}

		if err := c.Cancel(); err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		if c.Session().Step.Kind() != domain.KindCancelled {
			t.Fatal("expected cancelled")
		}
		if f.cart.Count() != 2 {
			t.Fatal("cancel must keep the cart items")
		}
		if err := f.cart.AddItem("A", 1); err != nil {
			t.Fatalf("cart should be unlocked after cancel: %v", err)
		}
		if err := c.Retry(); !errors.Is(err, ErrSessionClosed) {
			t.Fatalf("expected ErrSessionClosed, got %v", err)
		}
	})
}

func TestCompleteIsTerminal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]int{"B": 1})
	c := f.controller(t)

	_ = c.ConnectWallet(ctx)
	f.sched.Fire()
	_ = c.SelectPaymentMethod(domain.MethodBankTransfer)
	if _, err := c.ConfirmPayment(ctx); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}

	if _, err := c.ConfirmPayment(ctx); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if err := c.Cancel(); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if !c.Done() {
		t.Fatal("expected Done after completion")
	}
}

func TestCopyAddressFeedback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]int{"B": 1})
	c := f.controller(t)

	_ = c.ConnectWallet(ctx)
	f.sched.Fire()
	_ = c.SelectPaymentMethod(domain.MethodCrypto)
	_ = c.SelectCurrency("ADA")

	addr, err := c.CopyAddress()
	if err != nil {
		t.Fatalf("CopyAddress: %v", err)
	}
	if c.Copied() != addr {
		t.Fatalf("expected copied marker %q, got %q", addr, c.Copied())
	}
	if got := f.sched.delays[len(f.sched.delays)-1]; got != DefaultCopyFeedback {
		t.Fatalf("expected copy feedback %s, got %s", DefaultCopyFeedback, got)
	}

	// A second copy restarts the interval; the first reset must not clear it.
	_, _ = c.CopyAddress()
	f.sched.mu.Lock()
	first, second := f.sched.tasks[0], f.sched.tasks[1]
	f.sched.tasks = nil
	f.sched.mu.Unlock()

	first()
	if c.Copied() == "" {
		t.Fatal("stale reset cleared the marker")
	}
	second()
	if c.Copied() != "" {
		t.Fatal("expected marker to clear after feedback interval")
	}
}

func TestClosedSessionIgnoresScheduledTasks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]int{"B": 1})
	c := f.controller(t)

	_ = c.ConnectWallet(ctx)
	f.sched.mu.Lock()
	pending := f.sched.tasks
	f.sched.mu.Unlock()

	c.Close()
	for _, fn := range pending {
		fn()
	}

	if c.Session().Step.Kind() != domain.KindWalletConnect {
		t.Fatalf("task fired after close moved the session to %s", c.Session().Step.Kind())
	}
	if err := c.ConnectWallet(ctx); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if err := f.cart.AddItem("A", 1); err != nil {
		t.Fatalf("close must unlock the cart: %v", err)
	}
}

func TestSteps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]int{"A": 1})
	c := f.controller(t)

	want := func(statuses ...domain.StepStatus) {
		t.Helper()
		got := c.Steps()
		if len(got) != len(statuses) {
			t.Fatalf("steps %+v, want %v", got, statuses)
		}
		for i := range got {
			if got[i].Status != statuses[i] {
				t.Fatalf("steps %+v, want %v", got, statuses)
			}
		}
	}

	want(domain.StatusCurrent, domain.StatusPending, domain.StatusPending)
	_ = c.ConnectWallet(ctx)
	f.sched.Fire()
	want(domain.StatusComplete, domain.StatusCurrent, domain.StatusPending)
	_ = c.CompleteKyc(ctx)
	want(domain.StatusComplete, domain.StatusComplete, domain.StatusCurrent)
	_ = c.SelectPaymentMethod(domain.MethodPayPal)
	_, _ = c.ConfirmPayment(ctx)
	want(domain.StatusComplete, domain.StatusComplete, domain.StatusComplete)
}

func TestNewController_EmptyCart(t *testing.T) {
	f := newFixture(t, nil)
	_ = f.cart.AddItem("gone", 3)

	kyc, _ := policy.NewKyc("")
	reg, _ := crypto.NewRegistry(nil)
	_, err := NewController(Deps{
		Cart:       f.cart,
		Policy:     kyc,
		Currencies: reg,
		Wallet:     f.wallet,
		Kyc:        f.kyc,
		Payments:   f.payments,
		Orders:     orderapp.NewFinalizer(nil, f.orders, nil),
		Scheduler:  f.sched,
	}, Timing{})
	if !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
	if err := f.cart.AddItem("B", 1); err != nil {
		t.Fatalf("rejected checkout must not lock the cart: %v", err)
	}
}

type quotedCart struct {
	quote  pricing.Quote
	locked bool
}

func (c *quotedCart) Quote() pricing.Quote { return c.quote }

func (c *quotedCart) Clear() error { return nil }

func (c *quotedCart) Lock() error {
	c.locked = true
	return nil
}

func (c *quotedCart) Unlock() error {
	c.locked = false
	return nil
}

func TestNewController_RejectsOutOfRangeTotal(t *testing.T) {
	line := pricing.Line{ProductID: "A", Name: "200g", Quantity: 1, UnitPrice: 16400, LineTotal: 16400}

	tests := []struct {
		name  string
		quote pricing.Quote
	}{
		{
			name: "overflowed quote",
			quote: pricing.Quote{
				Lines:    []pricing.Line{line},
				Totals:   pricing.Totals{Subtotal: math.MaxInt64, Fee: 150, Total: math.MaxInt64},
				Overflow: true,
			},
		},
		{
			name: "wrapped negative total",
			quote: pricing.Quote{
				Lines:  []pricing.Line{line},
				Totals: pricing.Totals{Subtotal: -8606744073709551616, Fee: 150, Total: -8606744073709551466},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			cart := &quotedCart{quote: tt.quote}

			kyc, _ := policy.NewKyc("")
			reg, _ := crypto.NewRegistry(nil)
			_, err := NewController(Deps{
				Cart:       cart,
				Policy:     kyc,
				Currencies: reg,
				Wallet:     f.wallet,
				Kyc:        f.kyc,
				Payments:   f.payments,
				Orders:     orderapp.NewFinalizer(nil, f.orders, logger.Discard()),
				Scheduler:  f.sched,
			}, Timing{})
			if !errors.Is(err, ErrInvalidTotal) {
				t.Fatalf("expected ErrInvalidTotal, got %v", err)
			}
			if cart.locked {
				t.Fatal("rejected checkout must not lock the cart")
			}
		})
	}
}

func TestCheckoutAtLineCapRequiresKyc(t *testing.T) {
	f := newFixture(t, map[string]int{"A": cartapp.MaxLineQuantity})
	if err := f.cart.AddItem("A", 600_000_000_000_000); !errors.Is(err, cartapp.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	c := f.controller(t)
	s := c.Session()
	if s.Total != 16400*cartapp.MaxLineQuantity+150 || !s.RequiresKyc {
		t.Fatalf("unexpected session: total=%d requiresKyc=%v", s.Total, s.RequiresKyc)
	}

	if err := c.ConnectWallet(context.Background()); err != nil {
		t.Fatalf("ConnectWallet: %v", err)
	}
	f.sched.Fire()
	if got := c.Session().Step.Kind(); got != domain.KindKycVerify {
		t.Fatalf("expected kyc step, got %s", got)
	}
}
