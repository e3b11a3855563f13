package library

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CSVStore keeps one <kind>.csv per entity kind under a data directory.
// Each file is a header row naming the schema columns followed by one row
// per record. Writes go to a temp file in the same directory and are
// renamed into place, so a reader only ever sees the file before or after
// a save.
type CSVStore struct {
	dir string
}

// NewCSVStore creates the data directory if needed and returns a store
// rooted there.
func NewCSVStore(dir string) (*CSVStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create data dir: %v", ErrIO, err)
	}
	return &CSVStore{dir: dir}, nil
}

func (s *CSVStore) path(kind Kind) string {
	return filepath.Join(s.dir, string(kind)+".csv")
}

// Load reads the collection of kind. A missing backing file is an empty
// collection. A present file must start with the schema header.
func (s *CSVStore) Load(kind Kind) ([]Record, error) {
	schema, ok := SchemaFor(kind)
	if !ok {
		return nil, fmt.Errorf("%w: unknown entity kind %q", ErrIO, kind)
	}

	f, err := os.Open(s.path(kind))
	if errors.Is(err, os.ErrNotExist) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrIO, s.path(kind), err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(schema.Columns)

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s header: %v", ErrIO, s.path(kind), err)
	}
	for i, col := range schema.Columns {
		if header[i] != col {
			return nil, fmt.Errorf("%w: %s header column %d is %q, want %q",
				ErrIO, s.path(kind), i, header[i], col)
		}
	}

	var rows []Record
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrIO, s.path(kind), err)
		}
		rows = append(rows, Record(row))
	}
	if rows == nil {
		rows = []Record{}
	}
	return rows, nil
}

// Save atomically replaces the collection of kind with rows.
func (s *CSVStore) Save(kind Kind, rows []Record) error {
	schema, ok := SchemaFor(kind)
	if !ok {
		return fmt.Errorf("%w: unknown entity kind %q", ErrIO, kind)
	}

	tmp, err := os.CreateTemp(s.dir, string(kind)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp for %s: %v", ErrIO, kind, err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(schema.Columns); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s header: %v", ErrIO, kind, err)
	}
	for _, row := range rows {
		if len(row) != len(schema.Columns) {
			tmp.Close()
			return fmt.Errorf("%w: %s row has %d fields, want %d", ErrIO, kind, len(row), len(schema.Columns))
		}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("%w: write %s row: %v", ErrIO, kind, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: flush %s: %v", ErrIO, kind, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync %s: %v", ErrIO, kind, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrIO, kind, err)
	}
	if err := os.Rename(tmp.Name(), s.path(kind)); err != nil {
		return fmt.Errorf("%w: replace %s: %v", ErrIO, kind, err)
	}
	return nil
}

// SaveAll replaces each collection in the batch, in Kinds() order. Each
// kind's replacement is atomic on its own; a crash between kinds can leave
// the flat files mutually inconsistent. The SQLite backend closes that gap.
func (s *CSVStore) SaveAll(batch map[Kind][]Record) error {
	for _, kind := range Kinds() {
		rows, ok := batch[kind]
		if !ok {
			continue
		}
		if err := s.Save(kind, rows); err != nil {
			return err
		}
	}
	return nil
}
