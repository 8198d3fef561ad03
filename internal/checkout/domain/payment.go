package domain

import (
	"errors"
	"strings"
)

var (
	ErrUnknownMethod   = errors.New("unknown payment method")
	ErrUnknownCurrency = errors.New("unknown currency")
)

type PaymentMethod string

const (
	MethodCreditCard   PaymentMethod = "credit_card"
	MethodCrypto       PaymentMethod = "crypto"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodPayPal       PaymentMethod = "paypal"
)

var methodLabels = map[PaymentMethod]string{
	MethodCreditCard:   "Credit Card",
	MethodCrypto:       "Crypto",
	MethodBankTransfer: "Bank Transfer",
	MethodPayPal:       "PayPal",
}

// Methods lists the offered payment methods in display order.
func Methods() []PaymentMethod {
	return []PaymentMethod{MethodCreditCard, MethodCrypto, MethodBankTransfer, MethodPayPal}
}

func (m PaymentMethod) Label() string { return methodLabels[m] }

// ParsePaymentMethod accepts either the identifier or the display label.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	s = strings.TrimSpace(s)
	for m, label := range methodLabels {
		if strings.EqualFold(s, string(m)) || strings.EqualFold(s, label) {
			return m, nil
		}
	}
	return "", ErrUnknownMethod
}

// Currency is a crypto currency accepted for payment together with the
// fixed deposit address for it.
type Currency struct {
	Name    string
	Symbol  string
	Network string
	Address string
}
