package indexdb

import (
	"path/filepath"
	"testing"

	"hemoclast.online/internal/sim/loot"
)

func TestSQLiteRoster_MemberAndSessionRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	_ = s.UpsertMember(loot.MemberRecord{ID: "M1", Name: "DarkKnight_92", Class: "WARRIOR", Level: 12})
	_ = s.UpsertMember(loot.MemberRecord{ID: "M2", Name: "MysticMage", Class: "MAGE", Level: 9})
	_ = s.UpsertMember(loot.MemberRecord{ID: "M1", Name: "DarkKnight_92", Class: "WARRIOR", Level: 13})
	_ = s.SaveSession("resume_test_1", "M1")
	_ = s.SaveSession("resume_test_2", "M1")

	// Close drains the writer queue before the reads below.
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	members, err := s2.Members()
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("got %d members, want 2", len(members))
	}
	if members[0].ID != "M1" || members[0].Level != 13 {
		t.Fatalf("M1 = %+v, want the upserted level", members[0])
	}

	id, err := s2.SessionMember("resume_test_2")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if id != "M1" {
		t.Fatalf("session member = %q, want M1", id)
	}
	id, err = s2.SessionMember("resume_test_missing")
	if err != nil {
		t.Fatalf("missing session: %v", err)
	}
	if id != "" {
		t.Fatalf("missing token resolved to %q", id)
	}
}
