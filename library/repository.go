package library

import "fmt"

// Entity is any record type with a primary key.
type Entity interface {
	Key() string
}

// codec binds an entity type to its persisted schema and row conversion.
type codec[E Entity] struct {
	schema Schema
	encode func(E) Record
	decode func(Record) (E, error)
}

var (
	memberCodec = codec[Member]{schema: schemas[KindMembers], encode: Member.record, decode: memberFromRecord}
	bookCodec   = codec[Book]{schema: schemas[KindBooks], encode: Book.record, decode: bookFromRecord}
	loanCodec   = codec[Loan]{schema: schemas[KindLoans], encode: Loan.record, decode: loanFromRecord}
)

// Repository is the in-memory, per-operation view of one entity kind's
// collection: an ordered slice plus a key index. It is loaded fresh from
// the Store at the start of an engine operation and flushed at the end;
// it holds no state in between.
type Repository[E Entity] struct {
	items []E
	index map[string]int
}

func newRepository[E Entity]() *Repository[E] {
	return &Repository[E]{index: map[string]int{}}
}

// Find returns the entity with the given primary key.
func (r *Repository[E]) Find(key string) (E, bool) {
	i, ok := r.index[key]
	if !ok {
		var zero E
		return zero, false
	}
	return r.items[i], true
}

// Add appends e, failing if its key is already present.
func (r *Repository[E]) Add(e E) error {
	if _, exists := r.index[e.Key()]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateKey, e.Key())
	}
	r.index[e.Key()] = len(r.items)
	r.items = append(r.items, e)
	return nil
}

// Update applies mutate to the entity with the given key in place. The
// mutator must not change the primary key.
func (r *Repository[E]) Update(key string, mutate func(*E)) error {
	i, ok := r.index[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	mutate(&r.items[i])
	return nil
}

// All returns a snapshot copy of the collection in insertion order.
func (r *Repository[E]) All() []E {
	out := make([]E, len(r.items))
	copy(out, r.items)
	return out
}

// Len reports the number of entities in the collection.
func (r *Repository[E]) Len() int { return len(r.items) }

// loadRepository reads the collection of c's kind from the store and
// decodes it. A decode failure means the stored data is unusable, so it
// reports ErrIO like any other storage fault.
func loadRepository[E Entity](store Store, c codec[E]) (*Repository[E], error) {
	rows, err := store.Load(c.schema.Kind)
	if err != nil {
		return nil, err
	}
	repo := newRepository[E]()
	for i, row := range rows {
		e, err := c.decode(row)
		if err != nil {
			return nil, fmt.Errorf("%w: %s row %d: %v", ErrIO, c.schema.Kind, i, err)
		}
		if err := repo.Add(e); err != nil {
			return nil, fmt.Errorf("%w: %s row %d: duplicate key %q", ErrIO, c.schema.Kind, i, e.Key())
		}
	}
	return repo, nil
}

// encodeRepository renders the collection back into schema-ordered rows.
func encodeRepository[E Entity](repo *Repository[E], c codec[E]) []Record {
	rows := make([]Record, 0, repo.Len())
	for _, e := range repo.items {
		rows = append(rows, c.encode(e))
	}
	return rows
}
