package loot

import (
	"math/rand"
	"strings"
)

// Need/greed roll values are drawn from the closed range [MinRollValue, MaxRollValue].
// A PASS always carries value 0 and never wins arbitration.
const (
	MinRollValue = 1
	MaxRollValue = 100
)

type Decision string

const (
	DecisionNeed  Decision = "NEED"
	DecisionGreed Decision = "GREED"
	DecisionPass  Decision = "PASS"
)

func ParseDecision(s string) (Decision, bool) {
	switch Decision(strings.ToUpper(strings.TrimSpace(s))) {
	case DecisionNeed:
		return DecisionNeed, true
	case DecisionGreed:
		return DecisionGreed, true
	case DecisionPass:
		return DecisionPass, true
	}
	return "", false
}

// Roll is one member's recorded decision on a group entry.
// Tick and Seq together order submissions: Seq disambiguates rolls
// that land on the same tick (inbox arrival order).
type Roll struct {
	MemberID string   `json:"member_id"`
	Decision Decision `json:"decision"`
	Value    int      `json:"value"`
	Tick     uint64   `json:"tick"`
	Seq      uint64   `json:"seq"`
}

// ValueSource produces roll values for need/greed decisions.
// Abstracted so tests can pin values without touching the table loop.
type ValueSource interface {
	RollValue() int
}

type randValueSource struct {
	rng *rand.Rand
}

// NewValueSource returns a seeded uniform source over [MinRollValue, MaxRollValue].
// Determinism with respect to the seed matters for replaying a run from its journal.
func NewValueSource(seed int64) ValueSource {
	return &randValueSource{rng: rand.New(rand.NewSource(seed))}
}

func (s *randValueSource) RollValue() int {
	return s.rng.Intn(MaxRollValue-MinRollValue+1) + MinRollValue
}
