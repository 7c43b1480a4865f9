package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"hemoclast.online/internal/sim/loot"
)

func TestJournalLoggerRoundtrip(t *testing.T) {
	dir := t.TempDir()
	l := NewJournalLogger(dir)

	entries := []loot.JournalEntry{
		{Tick: 1, Joins: []loot.RecordedJoin{{MemberID: "M1", Name: "p1"}}},
		{Tick: 2}, // quiet tick, must be skipped
		{Tick: 5, Resolutions: []loot.ResolutionRecord{{
			EntryID: "L000001", ItemID: "sword_iron", Flow: "GROUP",
			Outcome: "highest-need", WinnerID: "M1", Value: 73, Rolls: 3,
		}}},
	}
	for _, e := range entries {
		if err := l.WriteTick(e); err != nil {
			t.Fatalf("write tick %d: %v", e.Tick, err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "journal", "journal-*.jsonl.zst"))
	if err != nil || len(files) != 1 {
		t.Fatalf("journal files = %v (err %v), want one", files, err)
	}

	f, err := os.Open(files[0])
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()

	var got []loot.JournalEntry
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var e loot.JournalEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		got = append(got, e)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2 (quiet tick skipped)", len(got))
	}
	if got[0].Tick != 1 || got[1].Tick != 5 {
		t.Fatalf("ticks = %d,%d", got[0].Tick, got[1].Tick)
	}
	if got[1].Resolutions[0].WinnerID != "M1" {
		t.Fatalf("resolution = %+v", got[1].Resolutions[0])
	}
}
