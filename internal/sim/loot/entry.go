package loot

// Flow tags how an entry is distributed.
type Flow string

const (
	FlowGroup    Flow = "GROUP"
	FlowPersonal Flow = "PERSONAL"
)

type EntryState string

const (
	// Group: Active -> Resolving -> Announced -> Retired.
	// Personal: Active -> Claimed|AutoClaimed -> Retired.
	EntryActive      EntryState = "ACTIVE"
	EntryResolving   EntryState = "RESOLVING"
	EntryAnnounced   EntryState = "ANNOUNCED"
	EntryClaimed     EntryState = "CLAIMED"
	EntryAutoClaimed EntryState = "AUTO_CLAIMED"
	EntryRetired     EntryState = "RETIRED"
)

// Entry wraps one awarded Item. All mutation happens on the table loop;
// deadlines are ticks swept by tickEntries, so a "cancelled timer" is
// just a deadline the sweep no longer consults.
type Entry struct {
	EntryID     string
	Item        Item
	Flow        Flow
	State       EntryState
	CreatedTick uint64

	// Group flow.
	WindowEndsTick uint64
	Expected       map[string]bool // member ids present at award time
	Rolls          []Roll
	rolled         map[string]bool
	Resolution     *Resolution
	RetireTick     uint64 // set when entering Announced

	// Personal flow.
	OwnerID       string
	AutoClaimTick uint64
}

func (e *Entry) HasRolled(memberID string) bool {
	return e.rolled[memberID]
}

// WindowOpen reports whether the entry still accepts rolls at nowTick.
func (e *Entry) WindowOpen(nowTick uint64) bool {
	return e.State == EntryActive && nowTick < e.WindowEndsTick
}

// RemainingTicks is the display countdown for the roll window.
func (e *Entry) RemainingTicks(nowTick uint64) uint64 {
	if nowTick >= e.WindowEndsTick {
		return 0
	}
	return e.WindowEndsTick - nowTick
}

func (e *Entry) recordRoll(r Roll) {
	if e.rolled == nil {
		e.rolled = map[string]bool{}
	}
	e.rolled[r.MemberID] = true
	e.Rolls = append(e.Rolls, r)
}

// allExpectedRolled reports whether every member expected at award time
// has submitted a decision. Members who left mid-window stay expected;
// the window deadline covers them.
func (e *Entry) allExpectedRolled() bool {
	if len(e.Expected) == 0 {
		return false
	}
	for id := range e.Expected {
		if !e.rolled[id] {
			return false
		}
	}
	return true
}
