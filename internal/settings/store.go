package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Toggle keys. These are the stable names used in the database and over the
// control API.
const (
	KeyAutoDetectPolling    = "enable_auto_detection_polling"
	KeyAutoDetectStopOnUse  = "disable_auto_detection_after_connect"
	KeyAutoConnectPolling   = "enable_auto_connect_polling"
	KeyAutoConnectStopOnUse = "disable_auto_connect_after_connect"
	KeyBluetoothAutoResume  = "enable_bluetooth_auto_resume"
)

// defaults is the shipped value for every known toggle. Unknown keys are
// rejected rather than silently defaulted.
var defaults = map[string]bool{
	KeyAutoDetectPolling:    true,
	KeyAutoDetectStopOnUse:  false,
	KeyAutoConnectPolling:   false,
	KeyAutoConnectStopOnUse: true,
	KeyBluetoothAutoResume:  true,
}

// ErrUnknownKey is returned for toggle names outside the known set.
var ErrUnknownKey = errors.New("unknown settings key")

const schema = `
CREATE TABLE IF NOT EXISTS behaviour_toggles (
	key   TEXT PRIMARY KEY,
	value INTEGER NOT NULL
)`

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store is the persisted toggle set. Reads come from an in-memory snapshot
// loaded at startup; writes go through to SQLite and update the snapshot, so
// lookups on the scheduler loop never touch the database.
type Store struct {
	db     *sql.DB
	logger Logger

	mu     sync.RWMutex
	values map[string]bool
}

// NewStore creates the toggle table if needed and loads the current values.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("creating settings schema: %w", err)
	}

	s := &Store{
		db:     db,
		logger: noopLogger{},
		values: make(map[string]bool, len(defaults)),
	}
	for key, value := range defaults {
		s.values[key] = value
	}

	rows, err := db.Query(`SELECT key, value FROM behaviour_toggles`)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var value int
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning settings row: %w", err)
		}
		// Rows for keys no longer known are ignored; they may belong to a
		// newer or older build sharing the database.
		if _, known := defaults[key]; known {
			s.values[key] = value != 0
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	return s, nil
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Get returns the current value of a toggle. Unknown keys return false.
func (s *Store) Get(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// Set persists a toggle and updates the snapshot. The snapshot only changes
// when the write succeeds.
func (s *Store) Set(ctx context.Context, key string, value bool) error {
	if _, known := defaults[key]; !known {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	stored := 0
	if value {
		stored = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO behaviour_toggles (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, stored)
	if err != nil {
		return fmt.Errorf("persisting setting %q: %w", key, err)
	}

	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()

	s.logger.Info("setting changed", "key", key, "value", value)
	return nil
}

// All returns every toggle with its current value, sorted by key.
func (s *Store) All() []KeyValue {
	s.mu.RLock()
	out := make([]KeyValue, 0, len(s.values))
	for key, value := range s.values {
		out = append(out, KeyValue{Key: key, Value: value})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// KeyValue is one toggle and its current value.
type KeyValue struct {
	Key   string `json:"key"`
	Value bool   `json:"value"`
}

// Keys returns the known toggle names, sorted.
func Keys() []string {
	out := make([]string, 0, len(defaults))
	for key := range defaults {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
