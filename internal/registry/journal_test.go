package registry

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	j, err := NewJournal(db)
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	t.Cleanup(j.Close)
	return j
}

func TestJournalUpsertAndQuery(t *testing.T) {
	j := openTestJournal(t)

	rssi := -62
	j.RecordSighting(Peripheral{Address: "AA:BB:CC:DD:EE:FF", Name: "Clicker", RSSI: &rssi})
	j.RecordSighting(Peripheral{Address: "AA:BB:CC:DD:EE:FF", Paired: true})
	j.RecordSighting(Peripheral{Address: "11:22:33:44:55:66"})

	rows, err := j.KnownDevices(context.Background(), 10)
	if err != nil {
		t.Fatalf("KnownDevices: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}

	var s *Sighting
	for i := range rows {
		if rows[i].Address == "AA:BB:CC:DD:EE:FF" {
			s = &rows[i]
		}
	}
	if s == nil {
		t.Fatal("sighted address missing from journal")
	}
	if s.SightCount != 2 {
		t.Errorf("SightCount = %d, want 2", s.SightCount)
	}
	if s.Name != "Clicker" {
		t.Errorf("Name = %q, want retained name from first sighting", s.Name)
	}
	if !s.Paired {
		t.Error("Paired not updated by second sighting")
	}
	if s.LastRSSI == nil || *s.LastRSSI != -62 {
		t.Errorf("LastRSSI = %v, want retained -62", s.LastRSSI)
	}
}

func TestJournalForget(t *testing.T) {
	j := openTestJournal(t)
	j.RecordSighting(Peripheral{Address: "AA:BB:CC:DD:EE:FF"})

	if err := j.Forget(context.Background(), "AA:BB:CC:DD:EE:FF"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	rows, err := j.KnownDevices(context.Background(), 10)
	if err != nil {
		t.Fatalf("KnownDevices: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("rows = %d after Forget, want 0", len(rows))
	}
}
