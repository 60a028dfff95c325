package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bchazalet/weatherapp/internal/weather"
)

// StateStore persists one session State between process runs.
type StateStore interface {
	Save(ctx context.Context, st State) error
	Load(ctx context.Context) (State, bool, error)
	Close() error
}

// SQLiteStateStore implements StateStore with a single-row table
// (pure Go driver modernc.org/sqlite).
type SQLiteStateStore struct {
	db *sql.DB
}

// NewSQLiteStateStore opens (or creates) the database at path and applies the schema.
func NewSQLiteStateStore(path string) (*SQLiteStateStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		log.Printf("INFO: could not set WAL mode on %s: %v", path, err)
	}

	schema := `CREATE TABLE IF NOT EXISTS session_state (
        id INTEGER PRIMARY KEY CHECK (id = 1),
        position INTEGER NOT NULL,
        record TEXT,
        icon_code TEXT,
        icon_type TEXT,
        icon_data BLOB,
        updated_at TEXT NOT NULL
    );`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStateStore{db: db}, nil
}

// Save replaces the stored state.
func (s *SQLiteStateStore) Save(ctx context.Context, st State) error {
	var record sql.NullString
	if st.Record != nil {
		b, err := json.Marshal(st.Record)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		record = sql.NullString{String: string(b), Valid: true}
	}

	var iconCode, iconType sql.NullString
	var iconData []byte
	if st.Icon != nil {
		iconCode = sql.NullString{String: st.Icon.Code, Valid: true}
		iconType = sql.NullString{String: st.Icon.ContentType, Valid: true}
		iconData = st.Icon.Data
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_state(id, position, record, icon_code, icon_type, icon_data, updated_at)
		 VALUES(1, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   position = excluded.position, record = excluded.record, icon_code = excluded.icon_code,
		   icon_type = excluded.icon_type, icon_data = excluded.icon_data, updated_at = excluded.updated_at`,
		st.Position, record, iconCode, iconType, iconData, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save session state: %w", err)
	}
	return nil
}

// Load returns the stored state; ok is false when nothing was saved yet.
func (s *SQLiteStateStore) Load(ctx context.Context) (State, bool, error) {
	var (
		st       State
		record   sql.NullString
		iconCode sql.NullString
		iconType sql.NullString
		iconData []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT position, record, icon_code, icon_type, icon_data FROM session_state WHERE id = 1`,
	).Scan(&st.Position, &record, &iconCode, &iconType, &iconData)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("load session state: %w", err)
	}

	if record.Valid {
		var rec weather.Record
		if err := json.Unmarshal([]byte(record.String), &rec); err != nil {
			return State{}, false, fmt.Errorf("decode record: %w", err)
		}
		st.Record = &rec
	}
	if iconCode.Valid {
		st.Icon = &IconState{Code: iconCode.String, ContentType: iconType.String, Data: iconData}
	}
	return st, true, nil
}

func (s *SQLiteStateStore) Close() error {
	return s.db.Close()
}
