// Package journal records agent lifecycle transitions in SQLite so the
// history survives restarts. It stores lifecycle state only, never task
// results.
package journal

import (
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"slate-core/internal/domain"
)

// Entry is one recorded lifecycle transition.
type Entry struct {
	ID      string            `json:"id"`
	AgentID string            `json:"agent"`
	From    domain.AgentState `json:"from"`
	To      domain.AgentState `json:"to"`
	Reason  string            `json:"reason,omitempty"`
	At      time.Time         `json:"at"`
}

// Journal is the durable transition log. Attach subscribes it to the
// registry's lifecycle bus; Recent serves the history surface.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the journal database and runs the schema
// migration. WAL mode keeps reads concurrent with the recording writes.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal db: %w", err)
	}
	return &Journal{db: db, logger: logger}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS lifecycle_events (
			id         TEXT PRIMARY KEY,
			agent_id   TEXT NOT NULL,
			from_state TEXT NOT NULL,
			to_state   TEXT NOT NULL,
			reason     TEXT NOT NULL DEFAULT '',
			at         TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_lifecycle_agent ON lifecycle_events (agent_id, at)
	`)
	return err
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record persists one lifecycle event. Errors are logged, not returned: the
// journal is an observer and must never block or fail a transition.
func (j *Journal) Record(ev domain.LifecycleEvent) {
	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	id := ulid.MustNew(ulid.Timestamp(at), rand.New(rand.NewSource(at.UnixNano()))).String()

	_, err := j.db.Exec(
		"INSERT INTO lifecycle_events (id, agent_id, from_state, to_state, reason, at) VALUES (?, ?, ?, ?, ?, ?)",
		id, ev.AgentID, string(ev.From), string(ev.To), ev.Reason, at.Format(time.RFC3339Nano),
	)
	if err != nil {
		j.logger.Warn("journal write failed", "agent", ev.AgentID, "error",
			fmt.Errorf("%w: %v", domain.ErrJournalWrite, err))
	}
}

// Recent returns the newest transitions, most recent first. An empty agentID
// returns all agents; limit <= 0 defaults to 50.
func (j *Journal) Recent(agentID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error
	if agentID == "" {
		rows, err = j.db.Query(
			"SELECT id, agent_id, from_state, to_state, reason, at FROM lifecycle_events ORDER BY at DESC, id DESC LIMIT ?",
			limit,
		)
	} else {
		rows, err = j.db.Query(
			"SELECT id, agent_id, from_state, to_state, reason, at FROM lifecycle_events WHERE agent_id = ? ORDER BY at DESC, id DESC LIMIT ?",
			agentID, limit,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var from, to, atStr string
		if err := rows.Scan(&e.ID, &e.AgentID, &from, &to, &e.Reason, &atStr); err != nil {
			return nil, err
		}
		e.From = domain.AgentState(from)
		e.To = domain.AgentState(to)
		e.At, _ = time.Parse(time.RFC3339Nano, atStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
