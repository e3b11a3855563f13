package library

// Store persists whole entity collections, one backing location per kind.
// Save overwrites the entire collection; a concurrent Load observes the
// collection either entirely before or entirely after a Save, never a
// partial write.
type Store interface {
	// Load returns the stored records of kind in insertion order. A kind
	// that has never been saved yields an empty slice, not an error.
	Load(kind Kind) ([]Record, error)

	// Save replaces the stored collection of kind with rows, writing the
	// schema header followed by one row per record in fixed column order.
	Save(kind Kind, rows []Record) error

	// SaveAll replaces several collections in one call, applied in the
	// Kinds() order. The SQLite backend applies the batch in a single
	// transaction; the CSV backend applies it as sequential atomic
	// per-kind replacements.
	SaveAll(batch map[Kind][]Record) error
}
