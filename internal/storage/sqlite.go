package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DocumentTable holds the display columns of indexed documents.
const DocumentTable = "documents"

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens or creates a SQLite database at dbPath.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// DB exposes the underlying handle for ad hoc statements.
func (s *SQLiteStorage) DB() *sql.DB { return s.db }

// FetchRows runs expr with every "$id" replaced by the ids and returns the
// rows reordered to follow ids. Rows are matched to ids on their "id" column;
// without one the statement's own order is kept.
func (s *SQLiteStorage) FetchRows(ctx context.Context, expr string, ids []string) ([]Row, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if strings.TrimSpace(expr) == "" {
		return TrivialRows(ids), nil
	}

	n := strings.Count(expr, IDPlaceholder)
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := strings.ReplaceAll(expr, IDPlaceholder, placeholders)
	args := make([]interface{}, 0, n*len(ids))
	for i := 0; i < n; i++ {
		for _, id := range ids {
			args = append(args, id)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch rows: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("fetch rows: %w", err)
	}
	idCol := -1
	for i, c := range cols {
		if strings.EqualFold(c, "id") {
			idCol = i
			break
		}
	}

	var fetched []Row
	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("fetch rows: %w", err)
		}
		r := Row{Columns: cols, Values: make([]string, len(cols))}
		for i, v := range vals {
			r.Values[i] = v.String
		}
		fetched = append(fetched, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch rows: %w", err)
	}

	if idCol < 0 {
		if len(fetched) != len(ids) {
			return nil, fmt.Errorf("%w: %d rows for %d ids", ErrRowCount, len(fetched), len(ids))
		}
		return fetched, nil
	}
	byID := make(map[string]Row, len(fetched))
	for _, r := range fetched {
		byID[r.Values[idCol]] = r
	}
	out := make([]Row, len(ids))
	for i, id := range ids {
		r, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: no row for id %s", ErrRowCount, id)
		}
		out[i] = r
	}
	return out, nil
}

// EnsureDocumentTable creates the documents table and adds missing columns.
func (s *SQLiteStorage) EnsureDocumentTable(ctx context.Context, columns []string) error {
	if _, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	existing, err := s.columns(ctx, DocumentTable)
	if err != nil {
		return err
	}
	for _, c := range columns {
		if !identPattern.MatchString(c) {
			return fmt.Errorf("invalid column name %q", c)
		}
		if existing[strings.ToLower(c)] {
			continue
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE documents ADD COLUMN %s TEXT`, c)); err != nil {
			return fmt.Errorf("add column %s: %w", c, err)
		}
	}
	return nil
}

func (s *SQLiteStorage) columns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()
	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid      int
			name     string
			typ      string
			notNull  int
			defValue sql.NullString
			pk       int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defValue, &pk); err != nil {
			return nil, fmt.Errorf("table info %s: %w", table, err)
		}
		cols[strings.ToLower(name)] = true
	}
	return cols, rows.Err()
}

// UpsertDocument inserts or replaces the display row of a document.
func (s *SQLiteStorage) UpsertDocument(ctx context.Context, id string, values map[string]string) error {
	cols := []string{"id"}
	args := []interface{}{id}
	for c, v := range values {
		if !identPattern.MatchString(c) {
			return fmt.Errorf("invalid column name %q", c)
		}
		cols = append(cols, c)
		args = append(args, v)
	}
	query := fmt.Sprintf(`INSERT OR REPLACE INTO documents (%s) VALUES (%s)`,
		strings.Join(cols, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert document %s: %w", id, err)
	}
	return nil
}

// DeleteDocument removes a document by ID.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

// CountDocuments returns the total number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// EnsureTermTable creates a term table mapping integer ids to unique terms,
// e.g. actor_terms(id, actor).
func (s *SQLiteStorage) EnsureTermTable(ctx context.Context, table, column string) error {
	if !identPattern.MatchString(table) || !identPattern.MatchString(column) {
		return fmt.Errorf("invalid term table %q.%q", table, column)
	}
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		%s TEXT NOT NULL UNIQUE
	)`, table, column)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create term table %s: %w", table, err)
	}
	return nil
}

// TermID returns the id of term in table, inserting it when new.
func (s *SQLiteStorage) TermID(ctx context.Context, table, column, term string) (int64, error) {
	if !identPattern.MatchString(table) || !identPattern.MatchString(column) {
		return 0, fmt.Errorf("invalid term table %q.%q", table, column)
	}
	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT OR IGNORE INTO %s (%s) VALUES (?)`, table, column), term); err != nil {
		return 0, fmt.Errorf("insert term into %s: %w", table, err)
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE %s = ?`, table, column), term).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("lookup term in %s: %w", table, err)
	}
	return id, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
