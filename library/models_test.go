package library

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemasMatchPersistedLayout(t *testing.T) {
	members, ok := SchemaFor(KindMembers)
	require.True(t, ok)
	assert.Equal(t, []string{"MemberID", "Name", "PasswordHash", "Email", "JoinDate"}, members.Columns)

	books, ok := SchemaFor(KindBooks)
	require.True(t, ok)
	assert.Equal(t, []string{"ISBN", "Title", "Author", "CopiesTotal", "CopiesAvailable"}, books.Columns)

	loans, ok := SchemaFor(KindLoans)
	require.True(t, ok)
	assert.Equal(t, []string{"LoanID", "MemberID", "ISBN", "IssueDate", "DueDate", "ReturnDate"}, loans.Columns)

	_, ok = SchemaFor(Kind("wizards"))
	assert.False(t, ok)
}

func TestDateFormatting(t *testing.T) {
	assert.Equal(t, "", formatDate(time.Time{}))
	assert.Equal(t, "2026-08-31", formatDate(time.Date(2026, 8, 31, 15, 4, 5, 0, time.UTC)))

	parsed, err := parseDate("2026-08-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), parsed)

	empty, err := parseDate("")
	require.NoError(t, err)
	assert.True(t, empty.IsZero())

	_, err = parseDate("31/08/2026")
	require.Error(t, err)
}

func TestLoanActiveAndOverdue(t *testing.T) {
	due := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	loan := Loan{LoanID: "1", DueDate: due}

	assert.True(t, loan.Active())
	assert.False(t, loan.Overdue(due), "not overdue on the due date itself")
	assert.True(t, loan.Overdue(due.AddDate(0, 0, 1)))

	loan.ReturnDate = due
	assert.False(t, loan.Active())
	assert.False(t, loan.Overdue(due.AddDate(0, 0, 30)), "returned loans are never overdue")
}

func TestLoanRecordRoundTripActiveLoan(t *testing.T) {
	loan := Loan{
		LoanID:    "7",
		MemberID:  "M1",
		ISBN:      "A",
		IssueDate: time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
		DueDate:   time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC),
	}

	rec := loan.record()
	assert.Equal(t, "", rec[5], "active loan stores an empty ReturnDate")

	back, err := loanFromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, loan, back)
	assert.True(t, back.Active())
}

func TestBookValidate(t *testing.T) {
	ok := Book{ISBN: "A", CopiesTotal: 2, CopiesAvailable: 1}
	require.NoError(t, ok.Validate())

	zero := Book{ISBN: "B", CopiesTotal: 0, CopiesAvailable: 0}
	require.NoError(t, zero.Validate())
}

func TestRecordDecodeRejectsWrongWidth(t *testing.T) {
	_, err := memberFromRecord(Record{"M1", "Alice"})
	require.Error(t, err)
	_, err = bookFromRecord(Record{"A"})
	require.Error(t, err)
	_, err = loanFromRecord(Record{"1", "M1", "A", "2026-01-01", "2026-01-15", "", "extra"})
	require.Error(t, err)
}

func TestBookDecodeRejectsNonNumericCopies(t *testing.T) {
	_, err := bookFromRecord(Record{"A", "One", "X", "many", "1"})
	require.Error(t, err)
	_, err = bookFromRecord(Record{"A", "One", "X", "1", "some"})
	require.Error(t, err)
}
