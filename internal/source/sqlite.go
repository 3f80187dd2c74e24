package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// filterColumns is the allowlist of columns a --filter term may reference.
// An unknown key is a setup error, not a silent no-match.
var filterColumns = map[string]bool{
	"position":    true,
	"team":        true,
	"nationality": true,
	"name":        true,
}

// SQLiteProvider reads candidate players from a SQLite players table.
type SQLiteProvider struct {
	db *sql.DB
}

// NewSQLiteProvider opens the source database at dbPath.
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open source db: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &SQLiteProvider{db: db}, nil
}

// NewSQLiteProviderFromDB wraps an existing connection; used by tests to
// seed a players table first.
func NewSQLiteProviderFromDB(db *sql.DB) *SQLiteProvider {
	return &SQLiteProvider{db: db}
}

func (p *SQLiteProvider) List(ctx context.Context, filter map[string]string, limit int) ([]Player, error) {
	query := `SELECT id, COALESCE(image, ''), COALESCE(name, ''), COALESCE(display_name, '') FROM players`
	var args []any

	if len(filter) > 0 {
		var terms []string
		for col, val := range filter {
			if !filterColumns[col] {
				return nil, fmt.Errorf("filter key %q is not a known player field", col)
			}
			terms = append(terms, col+" = ?")
			args = append(args, val)
		}
		query += " WHERE " + strings.Join(terms, " AND ")
	}

	query += " ORDER BY id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	return p.query(ctx, query, args...)
}

func (p *SQLiteProvider) ByIDs(ctx context.Context, ids []int64) ([]Player, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT id, COALESCE(image, ''), COALESCE(name, ''), COALESCE(display_name, '')
		FROM players WHERE id IN (%s) ORDER BY id
	`, placeholders)
	return p.query(ctx, query, args...)
}

func (p *SQLiteProvider) query(ctx context.Context, query string, args ...any) ([]Player, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query players: %w", err)
	}
	defer rows.Close()

	var players []Player
	for rows.Next() {
		var pl Player
		if err := rows.Scan(&pl.ID, &pl.ImageURL, &pl.Name, &pl.DisplayName); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		players = append(players, pl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate players: %w", err)
	}
	return players, nil
}

// Close closes the underlying database connection.
func (p *SQLiteProvider) Close() error {
	return p.db.Close()
}
