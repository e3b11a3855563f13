package library

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	engine *Engine
	store  Store
	now    time.Time
	dir    string
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	dir := t.TempDir()
	store, err := NewCSVStore(dir)
	require.NoError(t, err)

	fx := &engineFixture{
		store: store,
		now:   time.Date(2026, 8, 31, 10, 30, 0, 0, time.UTC),
		dir:   dir,
	}
	fx.engine = NewEngine(store, NewCredentials(testBcryptCost), 14,
		WithClock(func() time.Time { return fx.now }))
	return fx
}

func (fx *engineFixture) advanceDays(d int) {
	fx.now = fx.now.AddDate(0, 0, d)
}

func (fx *engineFixture) mustRegister(t *testing.T, memberID, name string) Member {
	t.Helper()
	m, err := fx.engine.RegisterMember(memberID, name, "pw", name+"@example.com")
	require.NoError(t, err)
	return m
}

func (fx *engineFixture) mustAddBook(t *testing.T, isbn, title, author string, copies int) {
	t.Helper()
	require.NoError(t, fx.engine.AddBook(Book{
		ISBN: isbn, Title: title, Author: author,
		CopiesTotal: copies, CopiesAvailable: copies,
	}))
}

// requireBookInvariant asserts 0 <= CopiesAvailable <= CopiesTotal for
// every book at rest.
func (fx *engineFixture) requireBookInvariant(t *testing.T) {
	t.Helper()
	books, err := loadRepository(fx.store, bookCodec)
	require.NoError(t, err)
	for _, b := range books.All() {
		require.GreaterOrEqual(t, b.CopiesAvailable, 0, "book %s", b.ISBN)
		require.LessOrEqual(t, b.CopiesAvailable, b.CopiesTotal, "book %s", b.ISBN)
	}
}

// ---------------------------------------------------------------------------
// Registration and login
// ---------------------------------------------------------------------------

func TestRegisterMember(t *testing.T) {
	fx := newEngineFixture(t)

	m := fx.mustRegister(t, "M1", "Alice")
	assert.Equal(t, "M1", m.MemberID)
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), m.JoinDate)
	assert.NotEmpty(t, m.PasswordHash)
	assert.NotEqual(t, "pw", m.PasswordHash)
}

func TestRegisterMemberDuplicate(t *testing.T) {
	fx := newEngineFixture(t)
	fx.mustRegister(t, "M1", "Alice")

	_, err := fx.engine.RegisterMember("M1", "Bob", "other", "b@example.com")
	require.ErrorIs(t, err, ErrDuplicateKey)
}

func TestRegisterNeverPersistsPlaintext(t *testing.T) {
	fx := newEngineFixture(t)
	_, err := fx.engine.RegisterMember("M1", "Alice", "hunter2-plaintext", "a@example.com")
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(fx.dir, "members.csv"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hunter2-plaintext")
}

func TestLogin(t *testing.T) {
	fx := newEngineFixture(t)
	fx.mustRegister(t, "M1", "Alice")

	sess, err := fx.engine.Login("M1", "pw", RoleMember)
	require.NoError(t, err)
	assert.Equal(t, "M1", sess.Member.MemberID)
	assert.Equal(t, RoleMember, sess.Role)
	assert.NotEmpty(t, sess.ID)
}

func TestLoginWrongPassword(t *testing.T) {
	fx := newEngineFixture(t)
	fx.mustRegister(t, "M1", "Alice")

	_, err := fx.engine.Login("M1", "wrong", RoleMember)
	require.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestLoginUnknownMember(t *testing.T) {
	fx := newEngineFixture(t)

	_, err := fx.engine.Login("ghost", "pw", RoleMember)
	require.ErrorIs(t, err, ErrAuthenticationFailed)
}

// The role is claimed by the caller and taken at face value; nothing in
// stored member data constrains it.
func TestLoginRoleIsClaimedNotStored(t *testing.T) {
	fx := newEngineFixture(t)
	fx.mustRegister(t, "M1", "Alice")

	sess, err := fx.engine.Login("M1", "pw", RoleLibrarian)
	require.NoError(t, err)
	assert.Equal(t, RoleLibrarian, sess.Role)
}

func TestLoginSessionIDsAreUnique(t *testing.T) {
	fx := newEngineFixture(t)
	fx.mustRegister(t, "M1", "Alice")

	s1, err := fx.engine.Login("M1", "pw", RoleMember)
	require.NoError(t, err)
	s2, err := fx.engine.Login("M1", "pw", RoleMember)
	require.NoError(t, err)
	assert.NotEqual(t, s1.ID, s2.ID)
}

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

func TestAddBookDuplicateISBN(t *testing.T) {
	fx := newEngineFixture(t)
	fx.mustAddBook(t, "A", "One", "X", 1)

	err := fx.engine.AddBook(Book{ISBN: "A", Title: "Other", CopiesTotal: 1, CopiesAvailable: 1})
	require.ErrorIs(t, err, ErrDuplicateKey)
}

func TestAddBookRejectsCopiesOutsideBounds(t *testing.T) {
	fx := newEngineFixture(t)

	for _, b := range []Book{
		{ISBN: "A", CopiesTotal: 1, CopiesAvailable: 2},
		{ISBN: "B", CopiesTotal: 1, CopiesAvailable: -1},
		{ISBN: "C", CopiesTotal: -1, CopiesAvailable: 0},
		{Title: "no isbn", CopiesTotal: 1, CopiesAvailable: 1},
	} {
		require.ErrorIs(t, fx.engine.AddBook(b), ErrInvalidEntity)
	}
}

func TestSearchBooksCaseInsensitive(t *testing.T) {
	fx := newEngineFixture(t)
	fx.mustAddBook(t, "978-0261103573", "The Fellowship of the Ring", "J.R.R. Tolkien", 3)
	fx.mustAddBook(t, "978-0451524935", "1984", "George Orwell", 1)

	byAuthor, err := fx.engine.SearchBooks("tolkien")
	require.NoError(t, err)
	require.Len(t, byAuthor, 1)
	assert.Equal(t, "978-0261103573", byAuthor[0].ISBN)

	byTitle, err := fx.engine.SearchBooks("FELLOWSHIP")
	require.NoError(t, err)
	require.Len(t, byTitle, 1)

	none, err := fx.engine.SearchBooks("dickens")
	require.NoError(t, err)
	assert.Empty(t, none)
}

// ---------------------------------------------------------------------------
// Issue and return
// ---------------------------------------------------------------------------

func TestIssueBook(t *testing.T) {
	fx := newEngineFixture(t)
	fx.mustRegister(t, "M1", "Alice")
	fx.mustAddBook(t, "000-ISBN-A", "One", "X", 1)

	loan, err := fx.engine.IssueBook("000-ISBN-A", "M1")
	require.NoError(t, err)
	assert.Equal(t, "1", loan.LoanID)
	assert.Equal(t, "M1", loan.MemberID)
	assert.Equal(t, "000-ISBN-A", loan.ISBN)
	assert.True(t, loan.Active())
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), loan.IssueDate)
	assert.Equal(t, time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC), loan.DueDate)

	books, err := loadRepository(fx.store, bookCodec)
	require.NoError(t, err)
	b, _ := books.Find("000-ISBN-A")
	assert.Equal(t, 0, b.CopiesAvailable)
	fx.requireBookInvariant(t)
}

func TestIssueBookExhaustsCopies(t *testing.T) {
	fx := newEngineFixture(t)
	fx.mustRegister(t, "M1", "Alice")
	fx.mustRegister(t, "M2", "Bob")
	fx.mustAddBook(t, "000-ISBN-A", "One", "X", 1)

	_, err := fx.engine.IssueBook("000-ISBN-A", "M1")
	require.NoError(t, err)

	_, err = fx.engine.IssueBook("000-ISBN-A", "M2")
	require.ErrorIs(t, err, ErrNoCopiesAvailable)
	fx.requireBookInvariant(t)
}

func TestIssueBookUnknownReferences(t *testing.T) {
	fx := newEngineFixture(t)
	fx.mustRegister(t, "M1", "Alice")
	fx.mustAddBook(t, "A", "One", "X", 1)

	_, err := fx.engine.IssueBook("missing", "M1")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = fx.engine.IssueBook("A", "ghost")
	require.ErrorIs(t, err, ErrNotFound)

	// Neither failure left a loan behind.
	loans, err := loadRepository(fx.store, loanCodec)
	require.NoError(t, err)
	assert.Equal(t, 0, loans.Len())
}

func TestReturnBookRestoresAvailability(t *testing.T) {
	fx := newEngineFixture(t)
	fx.mustRegister(t, "M1", "Alice")
	fx.mustAddBook(t, "A", "One", "X", 3)

	_, err := fx.engine.IssueBook("A", "M1")
	require.NoError(t, err)
	fx.advanceDays(7)

	closed, err := fx.engine.ReturnBook("A", "M1")
	require.NoError(t, err)
	assert.False(t, closed.Active())
	assert.Equal(t, time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC), closed.ReturnDate)
	assert.False(t, closed.ReturnDate.Before(closed.IssueDate))

	books, err := loadRepository(fx.store, bookCodec)
	require.NoError(t, err)
	b, _ := books.Find("A")
	assert.Equal(t, 3, b.CopiesAvailable)
	fx.requireBookInvariant(t)
}

// Returning twice succeeds once and then reports no active loan.
func TestReturnBookIsNotRepeatable(t *testing.T) {
	fx := newEngineFixture(t)
	fx.mustRegister(t, "M1", "Alice")
	fx.mustAddBook(t, "A", "One", "X", 1)

	_, err := fx.engine.IssueBook("A", "M1")
	require.NoError(t, err)

	_, err = fx.engine.ReturnBook("A", "M1")
	require.NoError(t, err)

	_, err = fx.engine.ReturnBook("A", "M1")
	require.ErrorIs(t, err, ErrNoActiveLoan)
	fx.requireBookInvariant(t)
}

func TestReturnBookNoLoan(t *testing.T) {
	fx := newEngineFixture(t)
	fx.mustRegister(t, "M1", "Alice")
	fx.mustAddBook(t, "A", "One", "X", 1)

	_, err := fx.engine.ReturnBook("A", "M1")
	require.ErrorIs(t, err, ErrNoActiveLoan)
}

// With two active loans for the same member and book, return closes the
// first in collection order.
func TestReturnBookClosesFirstMatchInOrder(t *testing.T) {
	fx := newEngineFixture(t)
	fx.mustRegister(t, "M1", "Alice")
	fx.mustAddBook(t, "A", "One", "X", 2)

	first, err := fx.engine.IssueBook("A", "M1")
	require.NoError(t, err)
	second, err := fx.engine.IssueBook("A", "M1")
	require.NoError(t, err)

	closed, err := fx.engine.ReturnBook("A", "M1")
	require.NoError(t, err)
	assert.Equal(t, first.LoanID, closed.LoanID)

	loans, err := loadRepository(fx.store, loanCodec)
	require.NoError(t, err)
	still, _ := loans.Find(second.LoanID)
	assert.True(t, still.Active())
}

// LoanIDs keep growing after returns; a closed loan's ID is never reused.
func TestLoanIDsAreMonotonic(t *testing.T) {
	fx := newEngineFixture(t)
	fx.mustRegister(t, "M1", "Alice")
	fx.mustAddBook(t, "A", "One", "X", 1)

	first, err := fx.engine.IssueBook("A", "M1")
	require.NoError(t, err)
	assert.Equal(t, "1", first.LoanID)

	_, err = fx.engine.ReturnBook("A", "M1")
	require.NoError(t, err)

	second, err := fx.engine.IssueBook("A", "M1")
	require.NoError(t, err)
	assert.Equal(t, "2", second.LoanID)
}

// ---------------------------------------------------------------------------
// Views
// ---------------------------------------------------------------------------

func TestListMyLoansRequiresSession(t *testing.T) {
	fx := newEngineFixture(t)

	_, err := fx.engine.ListMyLoans(nil)
	require.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestListMyLoansScopedToMember(t *testing.T) {
	fx := newEngineFixture(t)
	fx.mustRegister(t, "M1", "Alice")
	fx.mustRegister(t, "M2", "Bob")
	fx.mustAddBook(t, "A", "One", "X", 2)

	_, err := fx.engine.IssueBook("A", "M1")
	require.NoError(t, err)
	_, err = fx.engine.IssueBook("A", "M2")
	require.NoError(t, err)
	_, err = fx.engine.ReturnBook("A", "M1")
	require.NoError(t, err)

	sess, err := fx.engine.Login("M1", "pw", RoleMember)
	require.NoError(t, err)

	mine, err := fx.engine.ListMyLoans(sess)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "M1", mine[0].MemberID)
	assert.False(t, mine[0].Active())
}

func TestOverdueLoans(t *testing.T) {
	fx := newEngineFixture(t)
	fx.mustRegister(t, "M1", "Alice")
	fx.mustAddBook(t, "A", "One", "X", 1)
	fx.mustAddBook(t, "B", "Two", "Y", 1)

	_, err := fx.engine.IssueBook("A", "M1")
	require.NoError(t, err)

	fx.advanceDays(10)
	_, err = fx.engine.IssueBook("B", "M1")
	require.NoError(t, err)

	none, err := fx.engine.OverdueLoans()
	require.NoError(t, err)
	assert.Empty(t, none)

	fx.advanceDays(5) // loan A is now 15 days old, loan B only 5
	overdue, err := fx.engine.OverdueLoans()
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, "A", overdue[0].ISBN)
}

func TestListAll(t *testing.T) {
	fx := newEngineFixture(t)
	fx.mustRegister(t, "M1", "Alice")
	fx.mustAddBook(t, "A", "One", "X", 1)

	members, err := fx.engine.ListAll(KindMembers)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "M1", members[0][0])

	books, err := fx.engine.ListAll(KindBooks)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, Record{"A", "One", "X", "1", "1"}, books[0])

	_, err = fx.engine.ListAll(Kind("wizards"))
	require.ErrorIs(t, err, ErrNotFound)
}

// ---------------------------------------------------------------------------
// Cross-backend smoke test
// ---------------------------------------------------------------------------

// The full lending cycle behaves identically over the SQLite backend,
// where the paired Books+Loans writes commit in one transaction.
func TestEngineOverSQLiteBackend(t *testing.T) {
	store := tempSQLiteStore(t)
	now := time.Date(2026, 8, 31, 10, 30, 0, 0, time.UTC)
	engine := NewEngine(store, NewCredentials(testBcryptCost), 14,
		WithClock(func() time.Time { return now }))

	_, err := engine.RegisterMember("M1", "Alice", "pw", "a@example.com")
	require.NoError(t, err)
	require.NoError(t, engine.AddBook(Book{
		ISBN: "A", Title: "One", Author: "X", CopiesTotal: 1, CopiesAvailable: 1,
	}))

	loan, err := engine.IssueBook("A", "M1")
	require.NoError(t, err)
	assert.Equal(t, "1", loan.LoanID)

	_, err = engine.IssueBook("A", "M1")
	require.ErrorIs(t, err, ErrNoCopiesAvailable)

	_, err = engine.ReturnBook("A", "M1")
	require.NoError(t, err)

	books, err := loadRepository[Book](store, bookCodec)
	require.NoError(t, err)
	b, _ := books.Find("A")
	assert.Equal(t, 1, b.CopiesAvailable)
}
