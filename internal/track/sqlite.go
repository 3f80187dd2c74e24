package track

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed implementation of Store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// One connection serializes writers within this process and keeps
	// :memory: databases coherent across the pool.
	db.SetMaxOpenConns(1)

	// WAL mode so a retry run can read while a primary run writes.
	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err = s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tracking (
			player_id        INTEGER PRIMARY KEY,
			status           TEXT NOT NULL DEFAULT 'pending',
			source_url       TEXT NOT NULL DEFAULT '',
			style            TEXT NOT NULL DEFAULT '',
			mode             TEXT NOT NULL DEFAULT '',
			retry_count      INTEGER NOT NULL DEFAULT 0,
			error_log        TEXT NOT NULL DEFAULT '[]',
			output_path      TEXT NOT NULL DEFAULT '',
			result_url       TEXT NOT NULL DEFAULT '',
			duration_seconds REAL,
			created_at       DATETIME NOT NULL,
			updated_at       DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tracking_status ON tracking(status);
	`)
	return err
}

// UpsertPending is a single INSERT .. ON CONFLICT statement, so two runs
// racing on the same player cannot hit a duplicate-key error: the loser of
// the race simply overwrites the mutable fields. The insert arm seeds the
// fields that must survive reruns (created_at, retry_count, error_log).
func (s *SQLiteStore) UpsertPending(ctx context.Context, playerID int64, sourceURL, style, mode string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tracking (player_id, status, source_url, style, mode, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(player_id) DO UPDATE SET
			status     = excluded.status,
			source_url = excluded.source_url,
			style      = excluded.style,
			mode       = excluded.mode,
			updated_at = excluded.updated_at
	`, playerID, StatusPending, sourceURL, style, mode, now, now)
	if err != nil {
		return fmt.Errorf("upsert pending for player %d: %w", playerID, err)
	}
	return nil
}

func (s *SQLiteStore) MarkProcessing(ctx context.Context, playerID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tracking SET status = ?, updated_at = ? WHERE player_id = ?
	`, StatusProcessing, time.Now().UTC(), playerID)
	if err != nil {
		return fmt.Errorf("mark processing for player %d: %w", playerID, err)
	}
	return nil
}

func (s *SQLiteStore) MarkCompleted(ctx context.Context, playerID int64, outputPath string, duration float64, resultURL string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tracking
		SET status = ?, output_path = ?, duration_seconds = ?, result_url = ?, updated_at = ?
		WHERE player_id = ?
	`, StatusCompleted, outputPath, duration, resultURL, time.Now().UTC(), playerID)
	if err != nil {
		return fmt.Errorf("mark completed for player %d: %w", playerID, err)
	}
	return nil
}

// MarkFailed bumps retry_count and appends to error_log in one UPDATE.
// json_insert with the '$[#]' path appends to the JSON array in place,
// keeping the whole mutation atomic at the statement level.
func (s *SQLiteStore) MarkFailed(ctx context.Context, playerID int64, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tracking
		SET status      = ?,
		    retry_count = retry_count + 1,
		    error_log   = json_insert(error_log, '$[#]', ?),
		    updated_at  = ?
		WHERE player_id = ?
	`, StatusFailed, errMsg, time.Now().UTC(), playerID)
	if err != nil {
		return fmt.Errorf("mark failed for player %d: %w", playerID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, playerID int64) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT player_id, status, source_url, style, mode, retry_count,
		       error_log, output_path, result_url, duration_seconds,
		       created_at, updated_at
		FROM tracking WHERE player_id = ?
	`, playerID)

	rec, err := scanRecord(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record for player %d: %w", playerID, err)
	}
	return rec, nil
}

func (s *SQLiteStore) CompletedIDs(ctx context.Context) (map[int64]struct{}, error) {
	return s.idsByStatus(ctx, StatusCompleted)
}

func (s *SQLiteStore) FailedIDs(ctx context.Context) (map[int64]struct{}, error) {
	return s.idsByStatus(ctx, StatusFailed)
}

func (s *SQLiteStore) idsByStatus(ctx context.Context, status Status) (map[int64]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT player_id FROM tracking WHERE status = ?`, status)
	if err != nil {
		return nil, fmt.Errorf("query %s ids: %w", status, err)
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan player id: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s ids: %w", status, err)
	}
	return ids, nil
}

func (s *SQLiteStore) FailedRecords(ctx context.Context, maxRetries int) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT player_id, status, source_url, style, mode, retry_count,
		       error_log, output_path, result_url, duration_seconds,
		       created_at, updated_at
		FROM tracking
		WHERE status = ? AND retry_count < ?
		ORDER BY player_id
	`, StatusFailed, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("query failed records: %w", err)
	}
	defer rows.Close()

	var recs []*Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed record: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failed records: %w", err)
	}
	return recs, nil
}

// ResetStuckProcessing demotes stuck processing records to failed in a
// single UPDATE. A crashed attempt consumes one retry, same as any other
// failure, so a crash loop cannot retry forever.
func (s *SQLiteStore) ResetStuckProcessing(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tracking
		SET status      = ?,
		    retry_count = retry_count + 1,
		    error_log   = json_insert(error_log, '$[#]', ?),
		    updated_at  = ?
		WHERE status = ?
	`, StatusFailed, StuckMessage, time.Now().UTC(), StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("reset stuck processing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanRecord maps one row onto a Record, decoding the error_log JSON array.
func scanRecord(scan func(dest ...any) error) (*Record, error) {
	rec := &Record{}
	var errorLog string
	var duration sql.NullFloat64

	err := scan(
		&rec.PlayerID, &rec.Status, &rec.SourceURL, &rec.Style, &rec.Mode,
		&rec.RetryCount, &errorLog, &rec.OutputPath, &rec.ResultURL,
		&duration, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if errorLog != "" {
		if err := json.Unmarshal([]byte(errorLog), &rec.ErrorLog); err != nil {
			return nil, fmt.Errorf("decode error_log: %w", err)
		}
	}
	if duration.Valid {
		d := duration.Float64
		rec.Duration = &d
	}
	return rec, nil
}
