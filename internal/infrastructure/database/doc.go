// Package database provides the SQLite connection for the inkblue daemon.
//
// One database file holds the behaviour toggles and the peripheral journal;
// each owning store creates its own schema with CREATE TABLE IF NOT EXISTS.
// WAL mode allows the API's reads to proceed during journal writes, and the
// busy timeout absorbs the occasional lock contention on a single-writer
// appliance.
//
// All queries use parameterised statements and the database file is
// owner-only (0600).
package database
