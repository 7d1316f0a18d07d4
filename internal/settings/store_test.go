package settings

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDefaultsApplyOnFreshDatabase(t *testing.T) {
	store, err := NewStore(openTestDB(t))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	tests := []struct {
		key  string
		want bool
	}{
		{KeyAutoDetectPolling, true},
		{KeyAutoDetectStopOnUse, false},
		{KeyAutoConnectPolling, false},
		{KeyAutoConnectStopOnUse, true},
		{KeyBluetoothAutoResume, true},
	}
	for _, tt := range tests {
		if got := store.Get(tt.key); got != tt.want {
			t.Errorf("Get(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestSetPersistsAcrossReload(t *testing.T) {
	db := openTestDB(t)

	store, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.Set(context.Background(), KeyAutoConnectPolling, true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set(context.Background(), KeyAutoDetectPolling, false); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// A second store over the same database sees the persisted values.
	reloaded, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore (reload): %v", err)
	}
	if !reloaded.Get(KeyAutoConnectPolling) {
		t.Error("persisted true value lost on reload")
	}
	if reloaded.Get(KeyAutoDetectPolling) {
		t.Error("persisted false value lost on reload")
	}
	if !reloaded.Get(KeyBluetoothAutoResume) {
		t.Error("untouched key lost its default on reload")
	}
}

func TestSetRejectsUnknownKey(t *testing.T) {
	store, err := NewStore(openTestDB(t))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	err = store.Set(context.Background(), "enable_warp_drive", true)
	if !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("Set unknown key error = %v, want ErrUnknownKey", err)
	}
	if store.Get("enable_warp_drive") {
		t.Error("unknown key found its way into the snapshot")
	}
}

func TestAllReturnsSortedToggles(t *testing.T) {
	store, err := NewStore(openTestDB(t))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	all := store.All()
	if len(all) != len(Keys()) {
		t.Fatalf("All() returned %d toggles, want %d", len(all), len(Keys()))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Key >= all[i].Key {
			t.Fatalf("All() not sorted: %q before %q", all[i-1].Key, all[i].Key)
		}
	}
}
