package library

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Engine enforces the lending rules atop the repositories. Every public
// operation runs a full load-mutate-save cycle against the Store under one
// mutex, so concurrent callers within the process are serialized and the
// lost-update and duplicate-LoanID races of unsynchronized cycles cannot
// occur. Nothing is cached between operations.
type Engine struct {
	mu     sync.Mutex
	store  Store
	creds  Credentials
	clock  func() time.Time
	period time.Duration
	log    *slog.Logger
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithClock overrides the engine's time source (tests).
func WithClock(clock func() time.Time) EngineOption {
	return func(e *Engine) { e.clock = clock }
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) { e.log = log }
}

// NewEngine builds an engine over store with the given credential service
// and loan period.
func NewEngine(store Store, creds Credentials, loanPeriodDays int, opts ...EngineOption) *Engine {
	e := &Engine{
		store:  store,
		creds:  creds,
		clock:  time.Now,
		period: time.Duration(loanPeriodDays) * 24 * time.Hour,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// today returns the engine clock truncated to a calendar date, matching
// the persisted YYYY-MM-DD precision.
func (e *Engine) today() time.Time {
	now := e.clock()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// RegisterMember creates a member with a freshly hashed password and
// persists the collection. The plaintext never reaches storage.
func (e *Engine) RegisterMember(memberID, name, password, email string) (Member, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	members, err := loadRepository(e.store, memberCodec)
	if err != nil {
		return Member{}, err
	}
	if _, exists := members.Find(memberID); exists {
		return Member{}, fmt.Errorf("%w: member %q", ErrDuplicateKey, memberID)
	}

	hash, err := e.creds.Hash(password)
	if err != nil {
		return Member{}, err
	}
	m := Member{
		MemberID:     memberID,
		Name:         name,
		PasswordHash: hash,
		Email:        email,
		JoinDate:     e.today(),
	}
	if err := members.Add(m); err != nil {
		return Member{}, err
	}
	if err := e.store.Save(KindMembers, encodeRepository(members, memberCodec)); err != nil {
		return Member{}, err
	}

	e.log.Info("member registered", slog.String("member_id", memberID))
	return m, nil
}

// Login verifies the member's password and opens a session carrying the
// claimed role. Unknown member and wrong password are indistinguishable to
// the caller. The role is taken at face value; see Role.
func (e *Engine) Login(memberID, password string, role Role) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	members, err := loadRepository(e.store, memberCodec)
	if err != nil {
		return nil, err
	}
	m, ok := members.Find(memberID)
	if !ok || !e.creds.Verify(password, m.PasswordHash) {
		return nil, fmt.Errorf("%w: member %q", ErrAuthenticationFailed, memberID)
	}

	sess := newSession(m, role, e.clock())
	e.log.Info("login",
		slog.String("member_id", memberID),
		slog.String("role", string(role)),
		slog.String("session_id", sess.ID))
	return sess, nil
}

// AddBook adds a catalog entry. The copies invariant is checked before the
// book ever reaches storage.
func (e *Engine) AddBook(b Book) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := b.Validate(); err != nil {
		return err
	}

	books, err := loadRepository(e.store, bookCodec)
	if err != nil {
		return err
	}
	if err := books.Add(b); err != nil {
		return err
	}
	if err := e.store.Save(KindBooks, encodeRepository(books, bookCodec)); err != nil {
		return err
	}

	e.log.Info("book added", slog.String("isbn", b.ISBN), slog.Int("copies", b.CopiesTotal))
	return nil
}

// nextLoanID returns one past the highest numeric LoanID in the
// collection. Computed under the engine mutex it is monotonic across
// restarts, unlike deriving IDs from the collection size.
func nextLoanID(loans *Repository[Loan]) string {
	max := 0
	for _, l := range loans.All() {
		if n, err := strconv.Atoi(l.LoanID); err == nil && n > max {
			max = n
		}
	}
	return strconv.Itoa(max + 1)
}

// IssueBook lends one copy of the book to the member: a new active loan is
// appended and CopiesAvailable decremented, persisted as one batch.
func (e *Engine) IssueBook(isbn, memberID string) (Loan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	books, err := loadRepository(e.store, bookCodec)
	if err != nil {
		return Loan{}, err
	}
	members, err := loadRepository(e.store, memberCodec)
	if err != nil {
		return Loan{}, err
	}
	loans, err := loadRepository(e.store, loanCodec)
	if err != nil {
		return Loan{}, err
	}

	book, ok := books.Find(isbn)
	if !ok {
		return Loan{}, fmt.Errorf("%w: book %q", ErrNotFound, isbn)
	}
	if _, ok := members.Find(memberID); !ok {
		return Loan{}, fmt.Errorf("%w: member %q", ErrNotFound, memberID)
	}
	if book.CopiesAvailable == 0 {
		return Loan{}, fmt.Errorf("%w: book %q", ErrNoCopiesAvailable, isbn)
	}

	issued := e.today()
	loan := Loan{
		LoanID:    nextLoanID(loans),
		MemberID:  memberID,
		ISBN:      isbn,
		IssueDate: issued,
		DueDate:   issued.Add(e.period),
	}
	if err := loans.Add(loan); err != nil {
		return Loan{}, err
	}
	if err := books.Update(isbn, func(b *Book) { b.CopiesAvailable-- }); err != nil {
		return Loan{}, err
	}

	if err := e.store.SaveAll(map[Kind][]Record{
		KindBooks: encodeRepository(books, bookCodec),
		KindLoans: encodeRepository(loans, loanCodec),
	}); err != nil {
		return Loan{}, err
	}

	e.log.Info("book issued",
		slog.String("loan_id", loan.LoanID),
		slog.String("isbn", isbn),
		slog.String("member_id", memberID),
		slog.String("due", formatDate(loan.DueDate)))
	return loan, nil
}

// ReturnBook closes the member's active loan on the book and releases the
// copy. When several active loans match, the first in collection order is
// closed; that tie-break is deliberate, not an error.
func (e *Engine) ReturnBook(isbn, memberID string) (Loan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	loans, err := loadRepository(e.store, loanCodec)
	if err != nil {
		return Loan{}, err
	}
	books, err := loadRepository(e.store, bookCodec)
	if err != nil {
		return Loan{}, err
	}

	var loanID string
	for _, l := range loans.All() {
		if l.MemberID == memberID && l.ISBN == isbn && l.Active() {
			loanID = l.LoanID
			break
		}
	}
	if loanID == "" {
		return Loan{}, fmt.Errorf("%w: member %q, book %q", ErrNoActiveLoan, memberID, isbn)
	}

	returned := e.today()
	if err := loans.Update(loanID, func(l *Loan) { l.ReturnDate = returned }); err != nil {
		return Loan{}, err
	}
	if err := books.Update(isbn, func(b *Book) { b.CopiesAvailable++ }); err != nil {
		return Loan{}, fmt.Errorf("%w: book %q for loan %q", ErrNotFound, isbn, loanID)
	}

	if err := e.store.SaveAll(map[Kind][]Record{
		KindBooks: encodeRepository(books, bookCodec),
		KindLoans: encodeRepository(loans, loanCodec),
	}); err != nil {
		return Loan{}, err
	}

	closed, _ := loans.Find(loanID)
	e.log.Info("book returned",
		slog.String("loan_id", loanID),
		slog.String("isbn", isbn),
		slog.String("member_id", memberID))
	return closed, nil
}

// SearchBooks matches query case-insensitively as a substring of Title or
// Author. No match is an empty result, not an error.
func (e *Engine) SearchBooks(query string) ([]Book, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	books, err := loadRepository(e.store, bookCodec)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(query)
	results := []Book{}
	for _, b := range books.All() {
		if strings.Contains(strings.ToLower(b.Title), q) || strings.Contains(strings.ToLower(b.Author), q) {
			results = append(results, b)
		}
	}
	return results, nil
}

// ListMyLoans returns every loan of the session's member, active or not.
func (e *Engine) ListMyLoans(sess *Session) ([]Loan, error) {
	if sess == nil {
		return nil, ErrNotAuthenticated
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	loans, err := loadRepository(e.store, loanCodec)
	if err != nil {
		return nil, err
	}

	mine := []Loan{}
	for _, l := range loans.All() {
		if l.MemberID == sess.Member.MemberID {
			mine = append(mine, l)
		}
	}
	return mine, nil
}

// OverdueLoans returns active loans whose due date has passed, oldest due
// date first.
func (e *Engine) OverdueLoans() ([]Loan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	loans, err := loadRepository(e.store, loanCodec)
	if err != nil {
		return nil, err
	}

	today := e.today()
	overdue := []Loan{}
	for _, l := range loans.All() {
		if l.Overdue(today) {
			overdue = append(overdue, l)
		}
	}
	sort.SliceStable(overdue, func(i, j int) bool {
		return overdue[i].DueDate.Before(overdue[j].DueDate)
	})
	return overdue, nil
}

// ListAll returns every record of kind in schema column order, for the
// librarian table views. The engine applies no filtering and no
// authorization here; gating the call on the librarian role is the
// caller's responsibility.
func (e *Engine) ListAll(kind Kind) ([]Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch kind {
	case KindMembers:
		repo, err := loadRepository(e.store, memberCodec)
		if err != nil {
			return nil, err
		}
		return encodeRepository(repo, memberCodec), nil
	case KindBooks:
		repo, err := loadRepository(e.store, bookCodec)
		if err != nil {
			return nil, err
		}
		return encodeRepository(repo, bookCodec), nil
	case KindLoans:
		repo, err := loadRepository(e.store, loanCodec)
		if err != nil {
			return nil, err
		}
		return encodeRepository(repo, loanCodec), nil
	default:
		return nil, fmt.Errorf("%w: unknown entity kind %q", ErrNotFound, kind)
	}
}
