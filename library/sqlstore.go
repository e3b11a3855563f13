package library

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is the durable alternative to CSVStore. Each entity kind maps
// to a table shaped by the same versioned schema, and SaveAll applies a
// multi-kind replacement in one transaction, so issue and return commit
// their paired Books+Loans writes atomically.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchemaVersion = 1

// NewSQLiteStore opens (or creates) the database at dbPath and applies
// schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create db dir: %v", ErrIO, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", ErrIO, err)
	}
	if err := migrateSQLite(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func migrateSQLite(db *sql.DB) error {
	// WAL improves write concurrency.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("%w: enable WAL: %v", ErrIO, err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return fmt.Errorf("%w: create meta table: %v", ErrIO, err)
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= sqliteSchemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin migration: %v", ErrIO, err)
	}
	defer tx.Rollback()

	for _, kind := range Kinds() {
		schema := schemas[kind]
		cols := make([]string, 0, len(schema.Columns))
		for _, c := range schema.Columns {
			cols = append(cols, fmt.Sprintf("%q TEXT NOT NULL", c))
		}
		stmt := fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %q (seq INTEGER PRIMARY KEY AUTOINCREMENT, %s);`,
			string(kind), strings.Join(cols, ", "),
		)
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("%w: create table %s: %v", ErrIO, kind, err)
		}
	}

	if _, err := tx.Exec(
		`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`,
		sqliteSchemaVersion,
	); err != nil {
		return fmt.Errorf("%w: record schema version: %v", ErrIO, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit migration: %v", ErrIO, err)
	}
	return nil
}

func quotedColumns(schema Schema) string {
	quoted := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	return strings.Join(quoted, ", ")
}

// Load returns the collection of kind ordered by insertion.
func (s *SQLiteStore) Load(kind Kind) ([]Record, error) {
	schema, ok := SchemaFor(kind)
	if !ok {
		return nil, fmt.Errorf("%w: unknown entity kind %q", ErrIO, kind)
	}

	query := fmt.Sprintf(`SELECT %s FROM %q ORDER BY seq`, quotedColumns(schema), string(kind))
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", ErrIO, kind, err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec := make(Record, len(schema.Columns))
		dest := make([]any, len(rec))
		for i := range rec {
			dest[i] = &rec[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("%w: scan %s row: %v", ErrIO, kind, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate %s: %v", ErrIO, kind, err)
	}
	return records, nil
}

// Save replaces the collection of kind inside one transaction.
func (s *SQLiteStore) Save(kind Kind, rows []Record) error {
	return s.SaveAll(map[Kind][]Record{kind: rows})
}

// SaveAll replaces every collection in the batch in a single transaction:
// either all kinds reflect the new state or none do.
func (s *SQLiteStore) SaveAll(batch map[Kind][]Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin save: %v", ErrIO, err)
	}
	defer tx.Rollback()

	for _, kind := range Kinds() {
		rows, ok := batch[kind]
		if !ok {
			continue
		}
		schema, ok := SchemaFor(kind)
		if !ok {
			return fmt.Errorf("%w: unknown entity kind %q", ErrIO, kind)
		}

		if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM %q`, string(kind))); err != nil {
			return fmt.Errorf("%w: clear %s: %v", ErrIO, kind, err)
		}

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(schema.Columns)), ",")
		insert := fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s)`,
			string(kind), quotedColumns(schema), placeholders)
		stmt, err := tx.Prepare(insert)
		if err != nil {
			return fmt.Errorf("%w: prepare insert for %s: %v", ErrIO, kind, err)
		}
		for _, row := range rows {
			if len(row) != len(schema.Columns) {
				stmt.Close()
				return fmt.Errorf("%w: %s row has %d fields, want %d", ErrIO, kind, len(row), len(schema.Columns))
			}
			args := make([]any, len(row))
			for i, v := range row {
				args[i] = v
			}
			if _, err := stmt.Exec(args...); err != nil {
				stmt.Close()
				return fmt.Errorf("%w: insert %s row: %v", ErrIO, kind, err)
			}
		}
		stmt.Close()
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit save: %v", ErrIO, err)
	}
	return nil
}
