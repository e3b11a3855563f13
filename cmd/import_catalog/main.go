// Command import_catalog bulk-loads a book catalog into the ledger from a
// seed CSV (columns: ISBN, Title, Author, CopiesTotal). Books already in
// the catalog are reported and skipped.
package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"library-ledger/library"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <catalog.csv>\n", os.Args[0])
		os.Exit(1)
	}

	if err := run(os.Args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(seedPath string) error {
	cfg, err := library.LoadConfig("library.yml")
	if err != nil {
		return err
	}
	store, closeStore, err := cfg.OpenStore()
	if err != nil {
		return err
	}
	defer closeStore()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	engine := library.NewEngine(store, library.NewCredentials(cfg.BcryptCost), cfg.LoanPeriodDays,
		library.WithLogger(logger))

	f, err := os.Open(seedPath)
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 4

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read seed header: %w", err)
	}
	want := []string{"ISBN", "Title", "Author", "CopiesTotal"}
	for i, col := range want {
		if header[i] != col {
			return fmt.Errorf("seed header column %d is %q, want %q", i, header[i], col)
		}
	}

	added, skipped, failed := 0, 0, 0
	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read seed line %d: %w", line, err)
		}
		total, err := strconv.Atoi(row[3])
		if err != nil {
			fmt.Printf("line %d: bad CopiesTotal %q, skipping\n", line, row[3])
			failed++
			continue
		}

		book := library.Book{
			ISBN:            row[0],
			Title:           row[1],
			Author:          row[2],
			CopiesTotal:     total,
			CopiesAvailable: total,
		}
		switch err := engine.AddBook(book); {
		case err == nil:
			fmt.Printf("Added %s: '%s' by %s (%d copies)\n", book.ISBN, book.Title, book.Author, total)
			added++
		case errors.Is(err, library.ErrDuplicateKey):
			fmt.Printf("Skipped %s: already in catalog\n", book.ISBN)
			skipped++
		default:
			return err
		}
	}

	fmt.Printf("\nImport complete: %d added, %d skipped, %d bad rows\n", added, skipped, failed)
	return nil
}
