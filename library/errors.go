package library

import "errors"

// Failure taxonomy. Every engine and store operation reports exactly one of
// these, matched with errors.Is; callers render them, the engine never
// retries. ErrIO is the only environment-fatal kind — it means the storage
// medium itself is unusable.
var (
	// ErrDuplicateKey marks an Add whose primary key already exists
	// (member registration, catalog add).
	ErrDuplicateKey = errors.New("duplicate primary key")

	// ErrNotFound marks a lookup of an unknown member, book, or loan.
	ErrNotFound = errors.New("not found")

	// ErrNoCopiesAvailable marks an issue attempt against a book with
	// zero available copies.
	ErrNoCopiesAvailable = errors.New("no copies available")

	// ErrNoActiveLoan marks a return with no matching active loan.
	ErrNoActiveLoan = errors.New("no active loan")

	// ErrAuthenticationFailed covers both unknown member and wrong
	// password; callers cannot distinguish the two.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrNotAuthenticated marks a member-scoped operation called without
	// a session.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrInvalidEntity marks an entity that violates its own invariants
	// before it ever reaches storage.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrIO wraps any persistence read or write failure, including a
	// backing file whose header does not match the schema.
	ErrIO = errors.New("storage failure")
)
