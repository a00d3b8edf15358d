// Package journal persists unit lifecycle history in SQLite.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Store reads and writes the sessions and unit_log tables.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// BeginSession records a new session.
func (s *Store) BeginSession(ctx context.Context, id, prefix string, at time.Time) error {
	if id == "" {
		return fmt.Errorf("session id is empty")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, prefix, started_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET prefix = excluded.prefix;`,
		id, prefix, ts(at))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// FinishSession records the root unit's status.
func (s *Store) FinishSession(ctx context.Context, id string, status int, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET finished_at = ?, status = ? WHERE id = ?;`, ts(at), status, id)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	return requireRow(res)
}

// Spawned inserts a running unit.
func (s *Store) Spawned(ctx context.Context, sessionID string, pid, parent int, command, digest string, at time.Time) error {
	var d sql.NullString
	if digest != "" {
		d = sql.NullString{String: digest, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO unit_log (session_id, pid, parent, command, digest, state, spawned_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?);`,
		sessionID, pid, parent, command, d, string(StateRunning), ts(at))
	if err != nil {
		return fmt.Errorf("insert unit: %w", err)
	}
	return nil
}

// Loaded stamps the load time.
func (s *Store) Loaded(ctx context.Context, sessionID string, pid int, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE unit_log SET loaded_at = ? WHERE session_id = ? AND pid = ?;`, ts(at), sessionID, pid)
	if err != nil {
		return fmt.Errorf("mark loaded: %w", err)
	}
	return requireRow(res)
}

// LoadFailed records a unit that never loaded.
func (s *Store) LoadFailed(ctx context.Context, sessionID string, pid int, reason string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE unit_log SET state = ?, error = ?, exited_at = ? WHERE session_id = ? AND pid = ?;`,
		string(StateLoadFailed), reason, ts(at), sessionID, pid)
	if err != nil {
		return fmt.Errorf("mark load failed: %w", err)
	}
	return requireRow(res)
}

// Exited records a unit's exit status.
func (s *Store) Exited(ctx context.Context, sessionID string, pid, status int, crashed bool, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE unit_log SET state = ?, status = ?, crashed = ?, exited_at = ? WHERE session_id = ? AND pid = ?;`,
		string(StateExited), status, crashed, ts(at), sessionID, pid)
	if err != nil {
		return fmt.Errorf("mark exited: %w", err)
	}
	return requireRow(res)
}

// Reaped records that a unit's status was collected.
func (s *Store) Reaped(ctx context.Context, sessionID string, pid int, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE unit_log SET state = ?, reaped_at = ? WHERE session_id = ? AND pid = ?;`,
		string(StateReaped), ts(at), sessionID, pid)
	if err != nil {
		return fmt.Errorf("mark reaped: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const recordColumns = `session_id, pid, parent, command, digest, state, status, crashed, error,
	spawned_at, loaded_at, exited_at, reaped_at`

// Get returns one unit record.
func (s *Store) Get(ctx context.Context, sessionID string, pid int) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM unit_log WHERE session_id = ? AND pid = ?;`, sessionID, pid)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// List returns history newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Record, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := `SELECT ` + recordColumns + ` FROM unit_log`
	args := []any{}
	if f.SessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, f.SessionID)
	}
	query += ` ORDER BY spawned_at DESC, pid DESC LIMIT ?;`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate units: %w", err)
	}
	return out, nil
}

// Sessions returns recorded sessions newest first.
func (s *Store) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, prefix, started_at, finished_at, status FROM sessions ORDER BY started_at DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			sess      Session
			startedAt string
			finished  sql.NullString
			status    sql.NullInt64
		)
		if err := rows.Scan(&sess.ID, &sess.Prefix, &startedAt, &finished, &status); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
			sess.StartedAt = t
		}
		sess.FinishedAt = parseNullTime(finished)
		if status.Valid {
			v := int(status.Int64)
			sess.Status = &v
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		r         Record
		digest    sql.NullString
		state     string
		status    sql.NullInt64
		crashed   int
		errText   sql.NullString
		spawnedAt string
		loadedAt  sql.NullString
		exitedAt  sql.NullString
		reapedAt  sql.NullString
	)
	err := row.Scan(&r.SessionID, &r.PID, &r.Parent, &r.Command, &digest, &state, &status, &crashed, &errText,
		&spawnedAt, &loadedAt, &exitedAt, &reapedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan unit: %w", err)
	}

	r.State = State(state)
	r.Crashed = crashed != 0
	if digest.Valid {
		r.Digest = &digest.String
	}
	if status.Valid {
		v := int(status.Int64)
		r.Status = &v
	}
	if errText.Valid {
		r.Error = &errText.String
	}
	if t, err := time.Parse(time.RFC3339Nano, spawnedAt); err == nil {
		r.SpawnedAt = t
	}
	r.LoadedAt = parseNullTime(loadedAt)
	r.ExitedAt = parseNullTime(exitedAt)
	r.ReapedAt = parseNullTime(reapedAt)
	return &r, nil
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}
