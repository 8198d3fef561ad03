package domain

import "time"

// Order is the snapshot taken when a checkout completes.
type Order struct {
	ID         string
	Currency   string
	Subtotal   int64
	Fee        int64
	Total      int64
	OrderItems []OrderItem

	PaymentMethod  string
	CryptoCurrency string
	CryptoAmount   string
	WalletAddress  string

	CreatedAt time.Time
}

type OrderItem struct {
	ProductID       string
	Name            string
	UnitAmount      int64
	Quantity        int
	LineTotalAmount int64
}

type PaymentStatus string

const PaymentConfirmed PaymentStatus = "confirmed"

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryMinting   DeliveryStatus = "minting"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// Ordinal is the delivery of one purchased bar unit as an inscription.
type Ordinal struct {
	ProductID string         `json:"product_id"`
	Name      string         `json:"name"`
	Unit      int            `json:"unit"`
	Status    DeliveryStatus `json:"status"`
}

type StatusView struct {
	OrderID       string        `json:"order_id"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Total         int64         `json:"total"`
	WalletAddress string        `json:"wallet_address,omitempty"`
	Ordinals      []Ordinal     `json:"ordinals"`
	CreatedAt     time.Time     `json:"created_at"`
}

// NewStatusView reports payment as confirmed and one pending ordinal per
// purchased unit.
func NewStatusView(o Order) StatusView {
	v := StatusView{
		OrderID:       o.ID,
		PaymentStatus: PaymentConfirmed,
		Total:         o.Total,
		WalletAddress: o.WalletAddress,
		Ordinals:      []Ordinal{},
		CreatedAt:     o.CreatedAt,
	}
	for _, it := range o.OrderItems {
		for unit := 1; unit <= it.Quantity; unit++ {
			v.Ordinals = append(v.Ordinals, Ordinal{
				ProductID: it.ProductID,
				Name:      it.Name,
				Unit:      unit,
				Status:    DeliveryPending,
			})
		}
	}
	return v
}
