// Package gateway serves the storefront API over HTTP and streams session
// updates over websockets.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	cartapp "github.com/dwikikusuma/bullion-store/internal/cart/app"
	catalogapp "github.com/dwikikusuma/bullion-store/internal/catalog/app"
	checkoutapp "github.com/dwikikusuma/bullion-store/internal/checkout/app"
	"github.com/dwikikusuma/bullion-store/internal/checkout/domain"
	orderapp "github.com/dwikikusuma/bullion-store/internal/order/app"
	"github.com/dwikikusuma/bullion-store/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Currencies lists the crypto currencies offered at checkout.
type Currencies interface {
	List() []domain.Currency
}

// ReadyCheck reports whether a backing service is usable.
type ReadyCheck func(ctx context.Context) error

type Handler struct {
	catalog    *catalogapp.Service
	sessions   *session.Manager
	orders     *orderapp.Finalizer
	currencies Currencies
	ready      map[string]ReadyCheck
	log        *slog.Logger
}

func New(catalog *catalogapp.Service, sessions *session.Manager, orders *orderapp.Finalizer, currencies Currencies, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		catalog:    catalog,
		sessions:   sessions,
		orders:     orders,
		currencies: currencies,
		ready:      make(map[string]ReadyCheck),
		log:        log,
	}
}

// AddReadyCheck registers a dependency probed by /readyz.
func (h *Handler) AddReadyCheck(name string, check ReadyCheck) {
	h.ready[name] = check
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", h.Ready)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/{productID}", h.GetProduct)
		r.Get("/payment-methods", h.ListPaymentMethods)
		r.Get("/currencies", h.ListCurrencies)
		r.Get("/orders/{orderID}", h.GetOrderStatus)

		r.Post("/sessions", h.CreateSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.DestroySession)
			r.Get("/events", h.Events)

			r.Get("/cart", h.GetCart)
			r.Delete("/cart", h.ClearCart)
			r.Post("/cart/items", h.AddItem)
			r.Put("/cart/items/{productID}", h.UpdateItem)
			r.Delete("/cart/items/{productID}", h.RemoveItem)
			r.Put("/cart/drawer", h.SetDrawer)

			r.Post("/checkout", h.BeginCheckout)
			r.Get("/checkout", h.GetCheckout)
			r.Get("/checkout/qr", h.CheckoutQR)
			r.Post("/checkout/wallet", h.ConnectWallet)
			r.Post("/checkout/kyc", h.CompleteKyc)
			r.Post("/checkout/method", h.SelectMethod)
			r.Post("/checkout/currency", h.SelectCurrency)
			r.Post("/checkout/back-to-currency", h.BackToCurrency)
			r.Post("/checkout/back-to-method", h.BackToMethod)
			r.Post("/checkout/copy", h.CopyAddress)
			r.Post("/checkout/confirm", h.ConfirmPayment)
			r.Post("/checkout/retry", h.Retry)
			r.Post("/checkout/cancel", h.Cancel)
		})
	})
	return r
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range h.ready {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, failed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	inStock, _ := strconv.ParseBool(r.URL.Query().Get("in_stock"))

	products, err := h.catalog.ListProducts(r.Context(), inStock)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]productView, 0, len(products))
	for _, p := range products {
		out = append(out, newProductView(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newProductView(p))
}

func (h *Handler) ListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods := domain.Methods()
	out := make([]methodView, 0, len(methods))
	for _, m := range methods {
		out = append(out, methodView{ID: m, Label: m.Label()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ListCurrencies(w http.ResponseWriter, r *http.Request) {
	list := h.currencies.List()
	out := make([]currencyView, 0, len(list))
	for _, c := range list {
		out = append(out, newCurrencyView(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetOrderStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.orders.Status(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Create()
	writeJSON(w, http.StatusCreated, sessionView{ID: s.ID, CreatedAt: s.CreatedAt, Cart: cartViewOf(s)})
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionView{ID: s.ID, CreatedAt: s.CreatedAt, Cart: cartViewOf(s)})
}

func (h *Handler) DestroySession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Destroy(chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, func(*session.Session) error { return nil })
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, func(s *session.Session) error { return s.Cart.Clear() })
}

type addItemRequest struct {
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	SuppressDrawer bool   `json:"suppress_drawer"`
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	h.withCart(w, r, func(s *session.Session) error {
		if _, err := h.catalog.GetProduct(r.Context(), req.ProductID); err != nil {
			return err
		}
		var opts []cartapp.AddOption
		if req.SuppressDrawer {
			opts = append(opts, cartapp.SuppressDrawer())
		}
		return s.Cart.AddItem(req.ProductID, req.Quantity, opts...)
	})
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	productID := chi.URLParam(r, "productID")
	h.withCart(w, r, func(s *session.Session) error {
		if req.Quantity > 0 {
			if _, err := h.catalog.GetProduct(r.Context(), productID); err != nil {
				return err
			}
		}
		return s.Cart.UpdateItem(productID, req.Quantity)
	})
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	h.withCart(w, r, func(s *session.Session) error { return s.Cart.RemoveItem(productID) })
}

type drawerRequest struct {
	Open bool `json:"open"`
}

func (h *Handler) SetDrawer(w http.ResponseWriter, r *http.Request) {
	var req drawerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	h.withCart(w, r, func(s *session.Session) error {
		if req.Open {
			return s.Cart.OpenDrawer()
		}
		return s.Cart.CloseDrawer()
	})
}

func (h *Handler) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	c, err := h.sessions.BeginCheckout(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newCheckoutView(c.Session()))
}

func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	h.withCheckout(w, r, func(*checkoutapp.Controller) error { return nil })
}

func (h *Handler) CheckoutQR(w http.ResponseWriter, r *http.Request) {
	c, ok := h.checkout(w, r)
	if !ok {
		return
	}

	st, ok := c.Session().Step.(domain.AddressDisplay)
	if !ok {
		writeError(w, checkoutapp.ErrInvalidTransition)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(st.QR)
}

func (h *Handler) ConnectWallet(w http.ResponseWriter, r *http.Request) {
	h.withCheckout(w, r, func(c *checkoutapp.Controller) error { return c.ConnectWallet(r.Context()) })
}

func (h *Handler) CompleteKyc(w http.ResponseWriter, r *http.Request) {
	h.withCheckout(w, r, func(c *checkoutapp.Controller) error { return c.CompleteKyc(r.Context()) })
}

type methodRequest struct {
	Method string `json:"method"`
}

func (h *Handler) SelectMethod(w http.ResponseWriter, r *http.Request) {
	var req methodRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	h.withCheckout(w, r, func(c *checkoutapp.Controller) error {
		m, err := domain.ParsePaymentMethod(req.Method)
		if err != nil {
			return err
		}
		return c.SelectPaymentMethod(m)
	})
}

type currencyRequest struct {
	Currency string `json:"currency"`
}

func (h *Handler) SelectCurrency(w http.ResponseWriter, r *http.Request) {
	var req currencyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.withCheckout(w, r, func(c *checkoutapp.Controller) error { return c.SelectCurrency(req.Currency) })
}

func (h *Handler) BackToCurrency(w http.ResponseWriter, r *http.Request) {
	h.withCheckout(w, r, func(c *checkoutapp.Controller) error { return c.BackToCurrencyChoice() })
}

func (h *Handler) BackToMethod(w http.ResponseWriter, r *http.Request) {
	h.withCheckout(w, r, func(c *checkoutapp.Controller) error { return c.BackToMethodChoice() })
}

func (h *Handler) CopyAddress(w http.ResponseWriter, r *http.Request) {
	h.withCheckout(w, r, func(c *checkoutapp.Controller) error {
		_, err := c.CopyAddress()
		return err
	})
}

func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	h.withCheckout(w, r, func(c *checkoutapp.Controller) error {
		_, err := c.ConfirmPayment(r.Context())
		return err
	})
}

func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	h.withCheckout(w, r, func(c *checkoutapp.Controller) error { return c.Retry() })
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.withCheckout(w, r, func(c *checkoutapp.Controller) error { return c.Cancel() })
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return s, true
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) (*checkoutapp.Controller, bool) {
	s, ok := h.session(w, r)
	if !ok {
		return nil, false
	}
	c, err := s.Checkout()
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return c, true
}

// withCart applies fn to the session cart and answers with the cart view.
func (h *Handler) withCart(w http.ResponseWriter, r *http.Request, fn func(*session.Session) error) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := fn(s); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartViewOf(s))
}

// withCheckout applies fn to the live checkout and answers with the
// checkout view. A failed step still reports the failure view.
func (h *Handler) withCheckout(w http.ResponseWriter, r *http.Request, fn func(*checkoutapp.Controller) error) {
	c, ok := h.checkout(w, r)
	if !ok {
		return
	}
	if err := fn(c); err != nil {
		if errors.Is(err, checkoutapp.ErrStepFailed) {
			code, _, _ := httpStatusFromGRPC(toStatus(err))
			writeJSON(w, code, newCheckoutView(c.Session()))
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCheckoutView(c.Session()))
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errBadRequest
	}
	return nil
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		h.log.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
