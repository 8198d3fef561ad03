package domain

// Session is a read-only view of a checkout at one point in time.
type Session struct {
	Step Step

	Total       int64
	RequiresKyc bool

	WalletConnected bool
	WalletAddress   string
	KycComplete     bool

	// Method is empty until a payment method has been chosen.
	Method PaymentMethod

	// Copied holds the address most recently copied by the buyer until
	// the feedback interval expires.
	Copied string
}

type StepStatus string

const (
	StatusPending  StepStatus = "pending"
	StatusCurrent  StepStatus = "current"
	StatusComplete StepStatus = "complete"
)

type StepProgress struct {
	Stage  Stage
	Status StepStatus
}

// Progress returns the stages shown to the buyer. The KYC stage is present
// only when the session requires it.
func (s Session) Progress() []StepProgress {
	stages := []Stage{StageWallet}
	if s.RequiresKyc {
		stages = append(stages, StageKyc)
	}
	stages = append(stages, StagePayment)

	current, active := StageOf(s.Step)
	_, done := s.Step.(Complete)

	out := make([]StepProgress, 0, len(stages))
	for _, st := range stages {
		status := StatusPending
		switch {
		case active && st == current:
			status = StatusCurrent
		case done:
			status = StatusComplete
		case st == StageWallet && s.WalletConnected:
			status = StatusComplete
		case st == StageKyc && s.KycComplete:
			status = StatusComplete
		}
		out = append(out, StepProgress{Stage: st, Status: status})
	}
	return out
}
