package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "schoolbell/pkg/logx"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

const defaultBusyTimeout = 5 * time.Second

// sqliteDSN builds a modernc.org/sqlite DSN with the connection pragmas
// applied on every new connection.
func sqliteDSN(path string, busy time.Duration) string {
	if busy <= 0 {
		busy = defaultBusyTimeout
	}
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	return "file:" + path + "?" + q.Encode()
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage: sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	db, err := sql.Open("sqlite", sqliteDSN(path, cfg.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	// One writer; the audit log is low volume.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: migrate %s: %w", path, err)
	}
	log.Debug("audit store ready", logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendRing(ctx context.Context, r RingRecord) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	fillDefaults(&r)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rings(id, at, fire_at, bell_at, kind, outcome, lag_ns, actor, err)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		r.ID, r.At.UnixNano(), nullTime(r.FireAt), nullTime(r.BellAt),
		r.Kind, string(r.Result), int64(r.Lag), nullStr(r.Actor), nullStr(r.Error),
	)
	return err
}

func (s *sqliteStore) RecentRings(ctx context.Context, limit int) ([]RingRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, at, fire_at, bell_at, kind, outcome, lag_ns, actor, err
		 FROM rings ORDER BY at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]RingRecord, 0, limit)
	for rows.Next() {
		var (
			r              RingRecord
			at, lag        int64
			fireAt, bellAt sql.NullInt64
			outcome        string
			actor, errStr  sql.NullString
		)
		if err := rows.Scan(&r.ID, &at, &fireAt, &bellAt, &r.Kind, &outcome, &lag, &actor, &errStr); err != nil {
			return nil, err
		}
		r.At = time.Unix(0, at)
		if fireAt.Valid {
			r.FireAt = time.Unix(0, fireAt.Int64)
		}
		if bellAt.Valid {
			r.BellAt = time.Unix(0, bellAt.Int64)
		}
		r.Result = Outcome(outcome)
		r.Lag = time.Duration(lag)
		r.Actor = actor.String
		r.Error = errStr.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PruneRings(ctx context.Context, before time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM rings WHERE at < ?`, before.UnixNano())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixNano()
}
