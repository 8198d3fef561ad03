// Package policy decides which optional checkout steps apply to an order.
//
// The KYC gate is a JSON-logic rule evaluated against {"total": <int>}.
package policy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/diegoholiveira/jsonlogic/v3"
)

const DefaultKycRule = `{">": [{"var": "total"}, 10000]}`

var ErrInvalidRule = errors.New("invalid kyc rule")

type Kyc struct {
	rule []byte
}

// NewKyc compiles rule. An empty rule selects DefaultKycRule. The rule is
// probed once so that a rule which does not yield a boolean fails here
// instead of at checkout time.
func NewKyc(rule string) (*Kyc, error) {
	if strings.TrimSpace(rule) == "" {
		rule = DefaultKycRule
	}
	if !json.Valid([]byte(rule)) {
		return nil, fmt.Errorf("%w: not valid json", ErrInvalidRule)
	}

	k := &Kyc{rule: []byte(rule)}
	if _, err := k.RequiresKyc(0); err != nil {
		return nil, err
	}
	return k, nil
}

// RequiresKyc reports whether an order of the given total needs identity
// verification before payment.
func (k *Kyc) RequiresKyc(total int64) (bool, error) {
	data, err := json.Marshal(map[string]int64{"total": total})
	if err != nil {
		return false, err
	}

	var out bytes.Buffer
	if err := jsonlogic.Apply(bytes.NewReader(k.rule), bytes.NewReader(data), &out); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	var result bool
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &result); err != nil {
		return false, fmt.Errorf("%w: result %q is not a boolean", ErrInvalidRule, strings.TrimSpace(out.String()))
	}
	return result, nil
}
