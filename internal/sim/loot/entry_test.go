package loot

import "testing"

func TestWindowOpen(t *testing.T) {
	e := &Entry{State: EntryActive, WindowEndsTick: 100}
	if !e.WindowOpen(99) {
		t.Fatalf("window closed one tick early")
	}
	if e.WindowOpen(100) {
		t.Fatalf("window open at its deadline tick")
	}
	e.State = EntryAnnounced
	if e.WindowOpen(50) {
		t.Fatalf("announced entry accepts rolls")
	}
}

func TestRemainingTicks(t *testing.T) {
	e := &Entry{State: EntryActive, WindowEndsTick: 100}
	if got := e.RemainingTicks(70); got != 30 {
		t.Fatalf("remaining = %d, want 30", got)
	}
	if got := e.RemainingTicks(150); got != 0 {
		t.Fatalf("remaining past deadline = %d, want 0", got)
	}
}

func TestAllExpectedRolled(t *testing.T) {
	e := &Entry{Expected: map[string]bool{"M1": true, "M2": true}}
	if e.allExpectedRolled() {
		t.Fatalf("no rolls yet")
	}
	e.recordRoll(Roll{MemberID: "M1", Decision: DecisionPass})
	if e.allExpectedRolled() {
		t.Fatalf("one of two rolled")
	}
	e.recordRoll(Roll{MemberID: "M2", Decision: DecisionNeed, Value: 10})
	if !e.allExpectedRolled() {
		t.Fatalf("both rolled")
	}

	// An empty snapshot never short-circuits; the window deadline decides.
	empty := &Entry{}
	if empty.allExpectedRolled() {
		t.Fatalf("empty snapshot treated as complete")
	}
}

func TestRarityRank(t *testing.T) {
	order := []Rarity{RarityCommon, RarityUncommon, RarityRare, RarityEpic, RarityLegendary}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Fatalf("%s rank %d not above %s rank %d", order[i], order[i].Rank(), order[i-1], order[i-1].Rank())
		}
	}
	if Rarity("MYTHIC").Valid() {
		t.Fatalf("unknown rarity valid")
	}
	if Rarity("MYTHIC").Rank() != -1 {
		t.Fatalf("unknown rarity ranked")
	}
}
