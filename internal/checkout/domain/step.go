package domain

import "github.com/shopspring/decimal"

type StepKind string

const (
	KindWalletConnect  StepKind = "wallet_connect"
	KindKycVerify      StepKind = "kyc_verify"
	KindMethodChoice   StepKind = "method_choice"
	KindCurrencyChoice StepKind = "currency_choice"
	KindAddressDisplay StepKind = "address_display"
	KindDirectPayment  StepKind = "direct_payment"
	KindFailed         StepKind = "failed"
	KindComplete       StepKind = "complete"
	KindCancelled      StepKind = "cancelled"
)

// Stage groups steps the way the progress indicator shows them.
type Stage string

const (
	StageWallet  Stage = "wallet"
	StageKyc     Stage = "kyc"
	StagePayment Stage = "payment"
)

// Step is the current position of a checkout session. Only the types in
// this file implement it.
type Step interface {
	Kind() StepKind
	isStep()
}

// WalletConnect waits for the buyer's wallet. Connecting is set between a
// successful connect and the scheduled auto-advance.
type WalletConnect struct {
	Connecting bool
}

type KycVerify struct{}

type MethodChoice struct{}

type CurrencyChoice struct{}

// AddressDisplay is the payable crypto step: the buyer sends Amount of
// Currency to Address. QR holds a PNG encoding of Address.
type AddressDisplay struct {
	Currency Currency
	Address  string
	Amount   decimal.Decimal
	QR       []byte
}

// DirectPayment is the payable step for every non-crypto method.
type DirectPayment struct {
	Method PaymentMethod
}

// Failed records a collaborator failure. Resume is the step a retry
// returns to.
type Failed struct {
	Stage  Stage
	Reason string
	Resume Step
}

type Complete struct {
	OrderID string
}

type Cancelled struct{}

func (WalletConnect) Kind() StepKind  { return KindWalletConnect }
func (KycVerify) Kind() StepKind      { return KindKycVerify }
func (MethodChoice) Kind() StepKind   { return KindMethodChoice }
func (CurrencyChoice) Kind() StepKind { return KindCurrencyChoice }
func (AddressDisplay) Kind() StepKind { return KindAddressDisplay }
func (DirectPayment) Kind() StepKind  { return KindDirectPayment }
func (Failed) Kind() StepKind         { return KindFailed }
func (Complete) Kind() StepKind       { return KindComplete }
func (Cancelled) Kind() StepKind      { return KindCancelled }

func (WalletConnect) isStep()  {}
func (KycVerify) isStep()      {}
func (MethodChoice) isStep()   {}
func (CurrencyChoice) isStep() {}
func (AddressDisplay) isStep() {}
func (DirectPayment) isStep()  {}
func (Failed) isStep()         {}
func (Complete) isStep()       {}
func (Cancelled) isStep()      {}

// StageOf maps a step to its progress stage. Terminal steps have none.
func StageOf(s Step) (Stage, bool) {
	switch v := s.(type) {
	case WalletConnect:
		return StageWallet, true
	case KycVerify:
		return StageKyc, true
	case MethodChoice, CurrencyChoice, AddressDisplay, DirectPayment:
		return StagePayment, true
	case Failed:
		return v.Stage, true
	default:
		return "", false
	}
}

// IsTerminal reports whether no further transition is allowed from s.
func IsTerminal(s Step) bool {
	switch s.(type) {
	case Complete, Cancelled:
		return true
	}
	return false
}

// IsPayable reports whether confirming payment is allowed from s.
func IsPayable(s Step) bool {
	switch s.(type) {
	case AddressDisplay, DirectPayment:
		return true
	}
	return false
}
