package app

import (
	"crypto/rand"
	"io"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	idPrefix     = "ORD-"
	suffixLength = 6
)

var suffixSpace = big.NewInt(36 * 36 * 36 * 36 * 36 * 36)

// TimestampIDs renders ORD-<base36 unix millis>-<6 random base36 chars>.
// Ids are short enough to read out loud but carry no uniqueness guarantee.
type TimestampIDs struct {
	Now  func() time.Time
	Rand io.Reader
}

func (g TimestampIDs) NewID() (string, error) {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	r := g.Rand
	if r == nil {
		r = rand.Reader
	}

	n, err := rand.Int(r, suffixSpace)
	if err != nil {
		return "", err
	}

	ts := strconv.FormatInt(now().UnixMilli(), 36)
	suffix := strconv.FormatInt(n.Int64(), 36)
	if pad := suffixLength - len(suffix); pad > 0 {
		suffix = strings.Repeat("0", pad) + suffix
	}

	return strings.ToUpper(idPrefix + ts + "-" + suffix), nil
}

// UUIDIDs renders ORD-<uppercase uuid v4>.
type UUIDIDs struct{}

func (UUIDIDs) NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return idPrefix + strings.ToUpper(id.String()), nil
}

// NewIDGenerator picks a generator by strategy name: "timestamp" (default)
// or "uuid".
func NewIDGenerator(strategy string) IDGenerator {
	if strings.EqualFold(strategy, "uuid") {
		return UUIDIDs{}
	}
	return TimestampIDs{}
}
