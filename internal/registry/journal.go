package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// journalSchema holds every peripheral ever sighted on the bus. One row per
// address; sightings update it in place.
const journalSchema = `
CREATE TABLE IF NOT EXISTS peripheral_journal (
	address     TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	paired      INTEGER NOT NULL DEFAULT 0,
	trusted     INTEGER NOT NULL DEFAULT 0,
	last_rssi   INTEGER,
	last_seen   INTEGER NOT NULL,
	sight_count INTEGER NOT NULL DEFAULT 1
)`

// Journal persists peripheral sightings to SQLite so the known-device set
// survives restarts. Writes are best-effort: a failed upsert is logged and
// dropped, never surfaced to the reactor path.
type Journal struct {
	db         *sql.DB
	upsertStmt *sql.Stmt
	logger     Logger
}

// Sighting is one journal row.
type Sighting struct {
	Address    string    `json:"address"`
	Name       string    `json:"name,omitempty"`
	Paired     bool      `json:"paired"`
	Trusted    bool      `json:"trusted"`
	LastRSSI   *int      `json:"last_rssi,omitempty"`
	LastSeen   time.Time `json:"last_seen"`
	SightCount int       `json:"sight_count"`
}

// NewJournal creates the journal table if needed and prepares the upsert.
func NewJournal(db *sql.DB) (*Journal, error) {
	if _, err := db.Exec(journalSchema); err != nil {
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}

	upsert, err := db.Prepare(`
		INSERT INTO peripheral_journal (address, name, paired, trusted, last_rssi, last_seen, sight_count)
		VALUES (?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(address) DO UPDATE SET
			name        = CASE WHEN excluded.name != '' THEN excluded.name ELSE name END,
			paired      = excluded.paired,
			trusted     = excluded.trusted,
			last_rssi   = COALESCE(excluded.last_rssi, last_rssi),
			last_seen   = excluded.last_seen,
			sight_count = sight_count + 1
	`)
	if err != nil {
		return nil, fmt.Errorf("preparing journal upsert: %w", err)
	}

	return &Journal{db: db, upsertStmt: upsert, logger: noopLogger{}}, nil
}

// SetLogger sets the logger for the journal.
func (j *Journal) SetLogger(logger Logger) {
	j.logger = logger
}

// RecordSighting implements Sink.
func (j *Journal) RecordSighting(p Peripheral) {
	var rssi any
	if p.RSSI != nil {
		rssi = *p.RSSI
	}
	_, err := j.upsertStmt.Exec(
		p.Address, p.Name, boolToInt(p.Paired), boolToInt(p.Trusted),
		rssi, time.Now().Unix(),
	)
	if err != nil {
		j.logger.Error("journal upsert failed", "address", p.Address, "error", err)
	}
}

// KnownDevices returns journal rows ordered by recency.
func (j *Journal) KnownDevices(ctx context.Context, limit int) ([]Sighting, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT address, name, paired, trusted, last_rssi, last_seen, sight_count
		FROM peripheral_journal
		ORDER BY last_seen DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sightings []Sighting
	for rows.Next() {
		var s Sighting
		var paired, trusted int
		var rssi sql.NullInt64
		var lastSeen int64
		if err := rows.Scan(&s.Address, &s.Name, &paired, &trusted, &rssi, &lastSeen, &s.SightCount); err != nil {
			return nil, err
		}
		s.Paired = paired != 0
		s.Trusted = trusted != 0
		if rssi.Valid {
			v := int(rssi.Int64)
			s.LastRSSI = &v
		}
		s.LastSeen = time.Unix(lastSeen, 0)
		sightings = append(sightings, s)
	}
	return sightings, rows.Err()
}

// Forget drops a journal row, mirroring a registry remove.
func (j *Journal) Forget(ctx context.Context, address string) error {
	_, err := j.db.ExecContext(ctx, `DELETE FROM peripheral_journal WHERE address = ?`, address)
	return err
}

// Close releases the prepared statement. The database itself is owned by the
// caller.
func (j *Journal) Close() {
	if j.upsertStmt != nil {
		j.upsertStmt.Close()
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
