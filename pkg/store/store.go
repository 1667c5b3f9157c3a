// Package store archives coedit rooms in SQLite.
//
// The in-memory operation log only keeps the most recent entries; the
// archive keeps all of them, plus a record of every agent session, so a
// room's full history can be inspected after the fact with `coedit log`.
// The archive is write-through and never read back into a live room.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/daviddao/coedit/pkg/model"

	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory archive.
const MemoryPath = ":memory:"

// Store manages all SQLite operations with WAL mode for concurrent access.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database and initializes the schema.
func New(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == MemoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// retryOnContention wraps retryOp from retry.go with the default config.
func retryOnContention(fn func() error) error {
	return retryOp(defaultRetryConfig, fn)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		room      TEXT NOT NULL,
		agent_id  TEXT NOT NULL,
		joined_at TEXT NOT NULL,
		left_at   TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_room ON sessions(room, agent_id);

	CREATE TABLE IF NOT EXISTS entries (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		room         TEXT NOT NULL,
		agent_id     TEXT NOT NULL,
		lamport_ts   INTEGER NOT NULL,
		kind         TEXT NOT NULL,
		content      TEXT NOT NULL DEFAULT '',
		timestamp_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entries_room_lamport ON entries(room, lamport_ts);
	CREATE INDEX IF NOT EXISTS idx_entries_agent ON entries(room, agent_id, lamport_ts);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

// RecordJoin opens a session record for agentID in room.
func (s *Store) RecordJoin(room, agentID string, at time.Time) error {
	return retryOnContention(func() error {
		_, err := s.db.Exec(
			`INSERT INTO sessions (room, agent_id, joined_at) VALUES (?, ?, ?)`,
			room, agentID, formatTime(at),
		)
		return err
	})
}

// RecordLeave closes the agent's open session in room. Closing an agent
// with no open session is not an error.
func (s *Store) RecordLeave(room, agentID string, at time.Time) error {
	return retryOnContention(func() error {
		_, err := s.db.Exec(
			`UPDATE sessions SET left_at = ?
			 WHERE id = (SELECT MAX(id) FROM sessions
			             WHERE room = ? AND agent_id = ? AND left_at IS NULL)`,
			formatTime(at), room, agentID,
		)
		return err
	})
}

// ListSessions returns the room's sessions in join order.
func (s *Store) ListSessions(room string) ([]model.SessionRecord, error) {
	rows, err := s.db.Query(
		`SELECT room, agent_id, joined_at, left_at FROM sessions
		 WHERE room = ? ORDER BY id`, room,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.SessionRecord
	for rows.Next() {
		var rec model.SessionRecord
		var joined string
		var left sql.NullString
		if err := rows.Scan(&rec.Room, &rec.AgentID, &joined, &left); err != nil {
			return nil, err
		}
		var parseErr error
		rec.JoinedAt, parseErr = time.Parse(time.RFC3339Nano, joined)
		if parseErr != nil {
			return nil, fmt.Errorf("parse joined_at for agent %s: %w", rec.AgentID, parseErr)
		}
		if left.Valid {
			t, parseErr := time.Parse(time.RFC3339Nano, left.String)
			if parseErr != nil {
				return nil, fmt.Errorf("parse left_at for agent %s: %w", rec.AgentID, parseErr)
			}
			rec.LeftAt = &t
		}
		sessions = append(sessions, rec)
	}
	return sessions, rows.Err()
}

// ---------------------------------------------------------------------------
// Entries
// ---------------------------------------------------------------------------

// InsertEntry appends an operation-log entry to the archive. Returns the
// row ID.
func (s *Store) InsertEntry(room string, e model.Entry) (int64, error) {
	if !e.Kind.Valid() {
		return 0, fmt.Errorf("insert entry: unknown kind %q", e.Kind)
	}
	var id int64
	err := retryOnContention(func() error {
		res, err := s.db.Exec(
			`INSERT INTO entries (room, agent_id, lamport_ts, kind, content, timestamp_ms)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			room, e.AgentID, e.LamportTS, string(e.Kind), e.Content, e.Timestamp,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// ListEntries returns the room's entries with lamport_ts >= sinceTS in
// Lamport order. limit <= 0 means no limit.
func (s *Store) ListEntries(room string, sinceTS int64, limit int) ([]model.Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT agent_id, kind, content, timestamp_ms, lamport_ts FROM entries
		 WHERE room = ? AND lamport_ts >= ?
		 ORDER BY lamport_ts, id LIMIT ?`,
		room, sinceTS, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ListEntriesForAgent returns the entries produced by agentID.
func (s *Store) ListEntriesForAgent(room, agentID string, sinceTS int64, limit int) ([]model.Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT agent_id, kind, content, timestamp_ms, lamport_ts FROM entries
		 WHERE room = ? AND agent_id = ? AND lamport_ts >= ?
		 ORDER BY lamport_ts, id LIMIT ?`,
		room, agentID, sinceTS, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// CountEntries returns the number of archived entries for room.
func (s *Store) CountEntries(room string) int64 {
	var count int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM entries WHERE room = ?`, room).Scan(&count); err != nil {
		return 0
	}
	return count
}

// MaxLamport returns the highest archived Lamport timestamp for room, or 0.
// Rooms seed their clock from it so archived entries stay ordered across
// restarts.
func (s *Store) MaxLamport(room string) int64 {
	var ts int64
	if err := s.db.QueryRow(
		`SELECT COALESCE(MAX(lamport_ts), 0) FROM entries WHERE room = ?`, room,
	).Scan(&ts); err != nil {
		return 0
	}
	return ts
}

// Rooms returns the ids of every room with archived sessions or entries.
func (s *Store) Rooms() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT room FROM sessions UNION SELECT room FROM entries ORDER BY 1`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

func scanEntries(rows *sql.Rows) ([]model.Entry, error) {
	var entries []model.Entry
	for rows.Next() {
		var e model.Entry
		var kind string
		if err := rows.Scan(&e.AgentID, &kind, &e.Content, &e.Timestamp, &e.LamportTS); err != nil {
			return nil, err
		}
		e.Kind = model.EntryKind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

// ---------------------------------------------------------------------------
// Room archive
// ---------------------------------------------------------------------------

// RoomArchive binds a store to one room. It satisfies oplog.Archiver.
type RoomArchive struct {
	store StoreInterface
	room  string
}

// Archive returns the archive for room.
func (s *Store) Archive(room string) *RoomArchive {
	return &RoomArchive{store: s, room: room}
}

// NewRoomArchive binds any StoreInterface to room.
func NewRoomArchive(s StoreInterface, room string) *RoomArchive {
	return &RoomArchive{store: s, room: room}
}

// Room returns the bound room id.
func (a *RoomArchive) Room() string { return a.room }

// ArchiveEntry writes e to the archive.
func (a *RoomArchive) ArchiveEntry(e model.Entry) error {
	_, err := a.store.InsertEntry(a.room, e)
	return err
}

// Joined records a session start.
func (a *RoomArchive) Joined(agentID string, at time.Time) error {
	return a.store.RecordJoin(a.room, agentID, at)
}

// Left records a session end.
func (a *RoomArchive) Left(agentID string, at time.Time) error {
	return a.store.RecordLeave(a.room, agentID, at)
}

// MaxLamport returns the highest archived timestamp for the bound room.
func (a *RoomArchive) MaxLamport() int64 { return a.store.MaxLamport(a.room) }
