package loot

// Reason explains how a resolution was decided.
type Reason string

const (
	ReasonHighestNeed  Reason = "highest-need"
	ReasonHighestGreed Reason = "highest-greed"
	ReasonNoRolls      Reason = "no-rolls"
)

// Resolution is the outcome of arbitrating one group entry.
// WinnerID is empty and Winning nil when nothing but passes (or nothing
// at all) was submitted.
type Resolution struct {
	WinnerID string `json:"winner_id,omitempty"`
	Winning  *Roll  `json:"winning_roll,omitempty"`
	Reason   Reason `json:"reason"`
}

// Arbitrate maps a set of rolls to a single winner under the
// need-before-greed policy: if any NEED roll exists the highest NEED
// value wins; otherwise the highest GREED value wins; PASS never wins.
// Ties break on earliest submission (tick, then inbox sequence).
//
// Arbitrate is pure: the same roll set always yields the same result,
// regardless of slice order or how many times it is invoked. The table
// calls it exactly once per entry, whether resolution was triggered by
// window expiry or by the all-rolled shortcut.
func Arbitrate(rolls []Roll) Resolution {
	var bestNeed, bestGreed *Roll
	for i := range rolls {
		r := &rolls[i]
		switch r.Decision {
		case DecisionNeed:
			if bestNeed == nil || beats(*r, *bestNeed) {
				bestNeed = r
			}
		case DecisionGreed:
			if bestGreed == nil || beats(*r, *bestGreed) {
				bestGreed = r
			}
		}
	}
	if bestNeed != nil {
		w := *bestNeed
		return Resolution{WinnerID: w.MemberID, Winning: &w, Reason: ReasonHighestNeed}
	}
	if bestGreed != nil {
		w := *bestGreed
		return Resolution{WinnerID: w.MemberID, Winning: &w, Reason: ReasonHighestGreed}
	}
	return Resolution{Reason: ReasonNoRolls}
}

// beats reports whether a wins over b within the same decision class:
// higher value first, then earlier tick, then earlier inbox sequence.
func beats(a, b Roll) bool {
	if a.Value != b.Value {
		return a.Value > b.Value
	}
	if a.Tick != b.Tick {
		return a.Tick < b.Tick
	}
	return a.Seq < b.Seq
}
