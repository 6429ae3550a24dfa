// Package persistence provides SQLite-based storage for factions, policy
// values and the event log.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/factions/internal/engine"
	"github.com/talgya/factions/internal/policy"
)

// DB wraps a SQLite connection for world state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite allows a single writer.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS factions (
		name TEXT PRIMARY KEY,
		seq INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS policies (
		type TEXT NOT NULL,
		kind TEXT NOT NULL,
		first TEXT NOT NULL,
		second TEXT NOT NULL DEFAULT '',
		value_json TEXT NOT NULL,
		PRIMARY KEY (type, first, second)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tick INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL,
		meta_json TEXT
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	CREATE INDEX IF NOT EXISTS idx_policies_first ON policies(first);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type policyRow struct {
	Type      string `db:"type"`
	Kind      string `db:"kind"`
	First     string `db:"first"`
	Second    string `db:"second"`
	ValueJSON string `db:"value_json"`
}

// SaveDirectory writes every faction and stored policy value (full replace).
func (db *DB) SaveDirectory(dir *policy.Directory) error {
	snap := dir.Export()

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM factions"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM policies"); err != nil {
		return err
	}

	for i, name := range snap.Factions {
		if _, err := tx.Exec("INSERT INTO factions (name, seq) VALUES (?, ?)", name, i); err != nil {
			return fmt.Errorf("insert faction %q: %w", name, err)
		}
	}

	stmt, err := tx.Preparex(`INSERT INTO policies
		(type, kind, first, second, value_json)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range snap.Entries {
		valueJSON, err := json.Marshal(e.Value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", e.Slot, err)
		}
		if _, err := stmt.Exec(string(e.Type), e.Kind.String(), e.First, e.Second, string(valueJSON)); err != nil {
			return fmt.Errorf("insert %s: %w", e.Slot, err)
		}
	}

	return tx.Commit()
}

// LoadDirectory restores factions and policy values into dir. Policy types
// must be registered first: rows of unknown types, or whose stored kind no
// longer matches the registered one, are skipped. Returns the number of
// values restored.
func (db *DB) LoadDirectory(dir *policy.Directory) (int, error) {
	var snap policy.Snapshot
	if err := db.conn.Select(&snap.Factions, "SELECT name FROM factions ORDER BY seq"); err != nil {
		return 0, fmt.Errorf("load factions: %w", err)
	}

	var rows []policyRow
	if err := db.conn.Select(&rows, "SELECT type, kind, first, second, value_json FROM policies"); err != nil {
		return 0, fmt.Errorf("load policies: %w", err)
	}

	skipped := 0
	for _, r := range rows {
		desc, err := dir.Registry().Lookup(policy.TypeID(r.Type))
		if err != nil {
			skipped++
			continue
		}
		kind, err := policy.ParseKind(r.Kind)
		if err != nil || kind != desc.Kind {
			skipped++
			continue
		}
		v := desc.New()
		if err := json.Unmarshal([]byte(r.ValueJSON), v); err != nil {
			slog.Warn("undecodable policy value skipped", "type", r.Type, "first", r.First, "second", r.Second, "error", err)
			skipped++
			continue
		}
		snap.Entries = append(snap.Entries, policy.Entry{
			Slot:  policy.Slot{Type: desc.ID, Kind: kind, First: r.First, Second: r.Second},
			Value: v,
		})
	}
	if skipped > 0 {
		slog.Warn("stored policy values skipped", "count", skipped)
	}

	n, err := dir.Import(snap)
	if err != nil {
		return n, fmt.Errorf("import: %w", err)
	}
	return n, nil
}

// HasState reports whether a directory has been saved before.
func (db *DB) HasState() (bool, error) {
	var n int
	if err := db.conn.Get(&n, "SELECT COUNT(*) FROM factions"); err != nil {
		return false, err
	}
	return n > 0, nil
}

type eventRow struct {
	Tick        uint64         `db:"tick"`
	Description string         `db:"description"`
	Category    string         `db:"category"`
	MetaJSON    sql.NullString `db:"meta_json"`
}

// SaveEvents appends events to the database.
func (db *DB) SaveEvents(events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		var meta sql.NullString
		if len(e.Meta) > 0 {
			b, err := json.Marshal(e.Meta)
			if err != nil {
				return fmt.Errorf("encode event meta: %w", err)
			}
			meta = sql.NullString{String: string(b), Valid: true}
		}
		_, err := tx.Exec(
			"INSERT INTO events (tick, description, category, meta_json) VALUES (?, ?, ?, ?)",
			e.Tick, e.Description, e.Category, meta,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RecentEvents returns the most recent N events, newest first.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var rows []eventRow
	err := db.conn.Select(&rows,
		"SELECT tick, description, category, meta_json FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	events := make([]engine.Event, 0, len(rows))
	for _, r := range rows {
		e := engine.Event{Tick: r.Tick, Description: r.Description, Category: r.Category}
		if r.MetaJSON.Valid {
			_ = json.Unmarshal([]byte(r.MetaJSON.String), &e.Meta)
		}
		events = append(events, e)
	}
	return events, nil
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value. A missing key returns "" and no error.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SaveWorldState performs a full save of the directory, the events not
// yet written and the current tick.
func (db *DB) SaveWorldState(sim *engine.Simulation) error {
	st := sim.Dir.Stats()
	slog.Info("saving world state", "factions", st.Factions, "tick", sim.CurrentTick())

	if err := db.SaveDirectory(sim.Dir); err != nil {
		return fmt.Errorf("save directory: %w", err)
	}
	events := sim.TakeUnsaved()
	if err := db.SaveEvents(events); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	if err := db.SaveMeta("last_tick", strconv.FormatUint(sim.CurrentTick(), 10)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	slog.Info("world state saved", "events", len(events))
	return nil
}

// LoadWorldState restores a saved world into sim and returns the saved
// tick. Policy types must already be registered.
func (db *DB) LoadWorldState(sim *engine.Simulation) (uint64, error) {
	n, err := db.LoadDirectory(sim.Dir)
	if err != nil {
		return 0, fmt.Errorf("load directory: %w", err)
	}
	raw, err := db.GetMeta("last_tick")
	if err != nil {
		return 0, fmt.Errorf("load meta: %w", err)
	}
	var tick uint64
	if raw != "" {
		tick, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse last_tick %q: %w", raw, err)
		}
	}
	sim.SetTick(tick)
	slog.Info("world state loaded", "factions", len(sim.Dir.ListFactions()), "values", n, "tick", tick)
	return tick, nil
}
