package gateway

import (
	"time"

	cartdomain "github.com/dwikikusuma/bullion-store/internal/cart/domain"
	catalogdomain "github.com/dwikikusuma/bullion-store/internal/catalog/domain"
	"github.com/dwikikusuma/bullion-store/internal/checkout/domain"
	"github.com/dwikikusuma/bullion-store/internal/pricing"
	"github.com/dwikikusuma/bullion-store/internal/session"
)

type productView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Weight    string `json:"weight"`
	UnitPrice int64  `json:"unit_price"`
	Currency  string `json:"currency"`
	InStock   bool   `json:"in_stock"`
}

func newProductView(p catalogdomain.Product) productView {
	return productView{
		ID:        p.ID,
		Name:      p.Name,
		Weight:    p.Weight,
		UnitPrice: p.Price.Amount,
		Currency:  p.Price.Currency,
		InStock:   p.InStock,
	}
}

type cartLineView struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	LineTotal int64  `json:"line_total"`
	Missing   bool   `json:"missing,omitempty"`
}

type cartView struct {
	Items      []cartLineView `json:"items"`
	Count      int            `json:"count"`
	DrawerOpen bool           `json:"drawer_open"`
	Locked     bool           `json:"locked"`
	Subtotal   int64          `json:"subtotal"`
	Fee        int64          `json:"fee"`
	Total      int64          `json:"total"`
}

// newCartView renders snap priced by quote. Both must come from the same
// cart state; see cartViewOf.
func newCartView(snap cartdomain.Snapshot, quote pricing.Quote) cartView {
	v := cartView{
		Items:      make([]cartLineView, 0, len(quote.Lines)),
		Count:      snap.Count,
		DrawerOpen: snap.DrawerOpen,
		Locked:     snap.Locked,
		Subtotal:   quote.Subtotal,
		Fee:        quote.Fee,
		Total:      quote.Total,
	}
	for _, l := range quote.Lines {
		v.Items = append(v.Items, newCartLineView(l))
	}
	return v
}

func cartViewOf(s *session.Session) cartView {
	snap := s.Cart.Snapshot()
	return newCartView(snap, s.Cart.QuoteOf(snap))
}

func newCartLineView(l pricing.Line) cartLineView {
	return cartLineView{
		ProductID: l.ProductID,
		Name:      l.Name,
		Quantity:  l.Quantity,
		UnitPrice: l.UnitPrice,
		LineTotal: l.LineTotal,
		Missing:   l.Missing,
	}
}

type currencyView struct {
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
	Network string `json:"network"`
	Address string `json:"address"`
}

func newCurrencyView(c domain.Currency) currencyView {
	return currencyView{Name: c.Name, Symbol: c.Symbol, Network: c.Network, Address: c.Address}
}

type methodView struct {
	ID    domain.PaymentMethod `json:"id"`
	Label string               `json:"label"`
}

type progressView struct {
	Stage  domain.Stage      `json:"stage"`
	Status domain.StepStatus `json:"status"`
}

type failureView struct {
	Stage  domain.Stage `json:"stage"`
	Reason string       `json:"reason"`
}

type checkoutView struct {
	Step            domain.StepKind      `json:"step"`
	Total           int64                `json:"total"`
	RequiresKyc     bool                 `json:"requires_kyc"`
	WalletConnected bool                 `json:"wallet_connected"`
	WalletAddress   string               `json:"wallet_address,omitempty"`
	Connecting      bool                 `json:"connecting,omitempty"`
	KycComplete     bool                 `json:"kyc_complete"`
	Method          domain.PaymentMethod `json:"method,omitempty"`
	Currency        *currencyView        `json:"currency,omitempty"`
	Amount          string               `json:"amount,omitempty"`
	Copied          bool                 `json:"copied"`
	Failure         *failureView         `json:"failure,omitempty"`
	OrderID         string               `json:"order_id,omitempty"`
	Steps           []progressView       `json:"steps"`
}

func newCheckoutView(s domain.Session) checkoutView {
	v := checkoutView{
		Step:            s.Step.Kind(),
		Total:           s.Total,
		RequiresKyc:     s.RequiresKyc,
		WalletConnected: s.WalletConnected,
		WalletAddress:   s.WalletAddress,
		KycComplete:     s.KycComplete,
		Method:          s.Method,
		Copied:          s.Copied != "",
	}

	switch st := s.Step.(type) {
	case domain.WalletConnect:
		v.Connecting = st.Connecting
	case domain.AddressDisplay:
		cur := newCurrencyView(st.Currency)
		v.Currency = &cur
		v.Amount = st.Amount.String()
	case domain.Failed:
		v.Failure = &failureView{Stage: st.Stage, Reason: st.Reason}
	case domain.Complete:
		v.OrderID = st.OrderID
	}

	for _, p := range s.Progress() {
		v.Steps = append(v.Steps, progressView{Stage: p.Stage, Status: p.Status})
	}
	return v
}

type sessionView struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Cart      cartView  `json:"cart"`
}

type event struct {
	Type     string        `json:"type"`
	Cart     *cartView     `json:"cart,omitempty"`
	Checkout *checkoutView `json:"checkout,omitempty"`
}
