package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLite stores credential rows in the credentials table of a SQLite file.
// Writes go through a single connection; reads use a small pool.
type SQLite struct {
	writer *sql.DB
	reader *sql.DB
	path   string
}

// OpenSQLite opens or creates a SQLite credential database with WAL mode,
// a busy timeout and full synchronous commits, then applies migrations.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)&_pragma=foreign_keys(ON)",
		path,
	)
	return openSQLiteDSN(dsn, path)
}

func openSQLiteDSN(dsn, path string) (*SQLite, error) {
	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)

	if err := writer.Ping(); err != nil {
		writer.Close()
		return nil, fmt.Errorf("ping writer: %w", err)
	}

	if err := RunMigrations(writer); err != nil {
		writer.Close()
		return nil, err
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	reader.SetMaxOpenConns(4)

	if err := reader.Ping(); err != nil {
		reader.Close()
		writer.Close()
		return nil, fmt.Errorf("ping reader: %w", err)
	}

	return &SQLite{writer: writer, reader: reader, path: path}, nil
}

// Close closes both connections. Returns the first error encountered.
func (s *SQLite) Close() error {
	var firstErr error

	if err := s.reader.Close(); err != nil {
		firstErr = fmt.Errorf("close reader: %w", err)
	}

	if err := s.writer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close writer: %w", err)
	}

	return firstErr
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

// Exists reports whether a row with the given name exists
func (s *SQLite) Exists(ctx context.Context, name string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM credentials WHERE name = ?)`
	var found bool
	if err := s.reader.QueryRowContext(ctx, query, name).Scan(&found); err != nil {
		return false, fmt.Errorf("check credential %q: %w", name, err)
	}
	return found, nil
}

// Insert adds a new row and returns its id
func (s *SQLite) Insert(ctx context.Context, name string, blob []byte) (uint64, error) {
	const query = `INSERT INTO credentials (name, entries) VALUES (?, ?)`
	res, err := s.writer.ExecContext(ctx, query, name, blob)
	if isUniqueViolation(err) {
		return 0, ErrNameTaken
	}
	if err != nil {
		return 0, fmt.Errorf("insert credential %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert credential %q: %w", name, err)
	}
	return uint64(id), nil
}

func scanRecord(row *sql.Row) (*Record, error) {
	var (
		rec Record
		id  int64
	)
	err := row.Scan(&id, &rec.Name, &rec.Blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.ID = uint64(id)
	return &rec, nil
}

// Get retrieves a row by name
func (s *SQLite) Get(ctx context.Context, name string) (*Record, error) {
	const query = `SELECT id, name, entries FROM credentials WHERE name = ?`
	rec, err := scanRecord(s.reader.QueryRowContext(ctx, query, name))
	if err != nil {
		return nil, fmt.Errorf("get credential %q: %w", name, err)
	}
	return rec, nil
}

// GetByID retrieves a row by id
func (s *SQLite) GetByID(ctx context.Context, id uint64) (*Record, error) {
	const query = `SELECT id, name, entries FROM credentials WHERE id = ?`
	rec, err := scanRecord(s.reader.QueryRowContext(ctx, query, int64(id)))
	if err != nil {
		return nil, fmt.Errorf("get credential %d: %w", id, err)
	}
	return rec, nil
}

// List returns every row in id order
func (s *SQLite) List(ctx context.Context) ([]Record, error) {
	const query = `SELECT id, name, entries FROM credentials ORDER BY id`
	rows, err := s.reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec Record
			id  int64
		)
		if err := rows.Scan(&id, &rec.Name, &rec.Blob); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		rec.ID = uint64(id)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return records, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Update renames and re-blobs an existing row
func (s *SQLite) Update(ctx context.Context, rec Record) error {
	const query = `UPDATE credentials SET name = ?, entries = ? WHERE id = ?`
	res, err := s.writer.ExecContext(ctx, query, rec.Name, rec.Blob, int64(rec.ID))
	if isUniqueViolation(err) {
		return ErrNameTaken
	}
	if err != nil {
		return fmt.Errorf("update credential %d: %w", rec.ID, err)
	}
	return expectOneRow(res)
}

// Delete removes a row
func (s *SQLite) Delete(ctx context.Context, id uint64) error {
	const query = `DELETE FROM credentials WHERE id = ?`
	res, err := s.writer.ExecContext(ctx, query, int64(id))
	if err != nil {
		return fmt.Errorf("delete credential %d: %w", id, err)
	}
	return expectOneRow(res)
}

// ReplaceBlobs rewrites many rows and settings in one transaction
func (s *SQLite) ReplaceBlobs(ctx context.Context, blobs map[uint64][]byte, meta map[string][]byte) (err error) {
	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for id, blob := range blobs {
		res, err := tx.ExecContext(ctx, `UPDATE credentials SET entries = ? WHERE id = ?`, blob, int64(id))
		if err != nil {
			return fmt.Errorf("rewrite credential %d: %w", id, err)
		}
		if err := expectOneRow(res); err != nil {
			return fmt.Errorf("%w: id %d", err, id)
		}
	}

	for key, value := range meta {
		if err := setMeta(ctx, tx, key, value); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func setMeta(ctx context.Context, db execer, key string, value []byte) error {
	var err error
	if value == nil {
		_, err = db.ExecContext(ctx, `DELETE FROM meta WHERE key = ?`, key)
	} else {
		_, err = db.ExecContext(ctx,
			`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			key, value)
	}
	if err != nil {
		return fmt.Errorf("set meta %q: %w", key, err)
	}
	return nil
}

// Meta retrieves a store setting
func (s *SQLite) Meta(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.reader.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get meta %q: %w", key, err)
	}
	return value, nil
}

// SetMeta stores or deletes a store setting
func (s *SQLite) SetMeta(ctx context.Context, key string, value []byte) error {
	return setMeta(ctx, s.writer, key, value)
}

// Compact rebuilds the database file to reclaim free pages
func (s *SQLite) Compact(ctx context.Context) error {
	if _, err := s.writer.ExecContext(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}
