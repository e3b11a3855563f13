package library

import (
	"fmt"
	"strconv"
	"time"
)

// Kind names one persisted entity collection.
type Kind string

const (
	KindMembers Kind = "members"
	KindBooks   Kind = "books"
	KindLoans   Kind = "loans"
)

// Record is one persisted row, fields ordered per the kind's schema.
type Record []string

// Schema fixes the column set and order of one entity kind. Serializer and
// deserializer both reference it; columns are never derived from struct
// fields at runtime.
type Schema struct {
	Kind    Kind
	Version int
	Columns []string
}

var schemas = map[Kind]Schema{
	KindMembers: {
		Kind:    KindMembers,
		Version: 1,
		Columns: []string{"MemberID", "Name", "PasswordHash", "Email", "JoinDate"},
	},
	KindBooks: {
		Kind:    KindBooks,
		Version: 1,
		Columns: []string{"ISBN", "Title", "Author", "CopiesTotal", "CopiesAvailable"},
	},
	KindLoans: {
		Kind:    KindLoans,
		Version: 1,
		Columns: []string{"LoanID", "MemberID", "ISBN", "IssueDate", "DueDate", "ReturnDate"},
	},
}

// SchemaFor returns the persisted schema of kind.
func SchemaFor(kind Kind) (Schema, bool) {
	s, ok := schemas[kind]
	return s, ok
}

// Kinds returns all entity kinds in a fixed order (members, books, loans),
// so multi-kind saves apply deterministically.
func Kinds() []Kind {
	return []Kind{KindMembers, KindBooks, KindLoans}
}

// DateLayout is the persisted form of every date field.
const DateLayout = "2006-01-02"

// formatDate renders t for storage; the zero time renders as the empty
// string (an unset date, e.g. an active loan's ReturnDate).
func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(DateLayout, s)
}

// Member is a registered library member. Members are never deleted.
type Member struct {
	MemberID     string
	Name         string
	PasswordHash string
	Email        string
	JoinDate     time.Time
}

func (m Member) Key() string { return m.MemberID }

func (m Member) record() Record {
	return Record{m.MemberID, m.Name, m.PasswordHash, m.Email, formatDate(m.JoinDate)}
}

func memberFromRecord(r Record) (Member, error) {
	if len(r) != len(schemas[KindMembers].Columns) {
		return Member{}, fmt.Errorf("member record has %d fields, want %d", len(r), len(schemas[KindMembers].Columns))
	}
	joined, err := parseDate(r[4])
	if err != nil {
		return Member{}, fmt.Errorf("member %q: bad JoinDate: %w", r[0], err)
	}
	return Member{
		MemberID:     r[0],
		Name:         r[1],
		PasswordHash: r[2],
		Email:        r[3],
		JoinDate:     joined,
	}, nil
}

// Book is one catalog entry. CopiesAvailable must stay within
// [0, CopiesTotal]; issue decrements it, return increments it.
type Book struct {
	ISBN            string
	Title           string
	Author          string
	CopiesTotal     int
	CopiesAvailable int
}

func (b Book) Key() string { return b.ISBN }

// Validate checks the copies invariant for a catalog add.
func (b Book) Validate() error {
	if b.ISBN == "" {
		return fmt.Errorf("%w: book has empty ISBN", ErrInvalidEntity)
	}
	if b.CopiesTotal < 0 {
		return fmt.Errorf("%w: book %q has negative CopiesTotal %d", ErrInvalidEntity, b.ISBN, b.CopiesTotal)
	}
	if b.CopiesAvailable < 0 || b.CopiesAvailable > b.CopiesTotal {
		return fmt.Errorf("%w: book %q has CopiesAvailable %d outside [0, %d]",
			ErrInvalidEntity, b.ISBN, b.CopiesAvailable, b.CopiesTotal)
	}
	return nil
}

func (b Book) record() Record {
	return Record{b.ISBN, b.Title, b.Author, strconv.Itoa(b.CopiesTotal), strconv.Itoa(b.CopiesAvailable)}
}

func bookFromRecord(r Record) (Book, error) {
	if len(r) != len(schemas[KindBooks].Columns) {
		return Book{}, fmt.Errorf("book record has %d fields, want %d", len(r), len(schemas[KindBooks].Columns))
	}
	total, err := strconv.Atoi(r[3])
	if err != nil {
		return Book{}, fmt.Errorf("book %q: bad CopiesTotal: %w", r[0], err)
	}
	avail, err := strconv.Atoi(r[4])
	if err != nil {
		return Book{}, fmt.Errorf("book %q: bad CopiesAvailable: %w", r[0], err)
	}
	return Book{ISBN: r[0], Title: r[1], Author: r[2], CopiesTotal: total, CopiesAvailable: avail}, nil
}

// Loan records one issue of a book to a member. A loan with an unset
// ReturnDate is active. Loans are never deleted; return sets ReturnDate
// exactly once.
type Loan struct {
	LoanID     string
	MemberID   string
	ISBN       string
	IssueDate  time.Time
	DueDate    time.Time
	ReturnDate time.Time
}

func (l Loan) Key() string { return l.LoanID }

// Active reports whether the loan has not been returned yet.
func (l Loan) Active() bool { return l.ReturnDate.IsZero() }

// Overdue reports whether the loan is active and past due as of now.
func (l Loan) Overdue(now time.Time) bool {
	if !l.Active() || l.DueDate.IsZero() {
		return false
	}
	return l.DueDate.Before(now)
}

func (l Loan) record() Record {
	return Record{
		l.LoanID, l.MemberID, l.ISBN,
		formatDate(l.IssueDate), formatDate(l.DueDate), formatDate(l.ReturnDate),
	}
}

func loanFromRecord(r Record) (Loan, error) {
	if len(r) != len(schemas[KindLoans].Columns) {
		return Loan{}, fmt.Errorf("loan record has %d fields, want %d", len(r), len(schemas[KindLoans].Columns))
	}
	issued, err := parseDate(r[3])
	if err != nil {
		return Loan{}, fmt.Errorf("loan %q: bad IssueDate: %w", r[0], err)
	}
	due, err := parseDate(r[4])
	if err != nil {
		return Loan{}, fmt.Errorf("loan %q: bad DueDate: %w", r[0], err)
	}
	returned, err := parseDate(r[5])
	if err != nil {
		return Loan{}, fmt.Errorf("loan %q: bad ReturnDate: %w", r[0], err)
	}
	return Loan{
		LoanID:     r[0],
		MemberID:   r[1],
		ISBN:       r[2],
		IssueDate:  issued,
		DueDate:    due,
		ReturnDate: returned,
	}, nil
}
