package entity

import "time"

// Record is a materialized row gathered during a cascade. It carries only
// what the engine needs: identity, deletion state and outgoing foreign keys.
type Record struct {
	Ref
	SoftDeletion

	// Refs maps foreign key column to the referenced key (nil for NULL).
	Refs map[string]*Key

	// Previous holds DeletedAt as it was before the current mutation.
	Previous *time.Time
}

// NewRecord creates a record with no foreign keys.
func NewRecord(ref Ref, deletedAt *time.Time) *Record {
	r := &Record{Ref: ref, Refs: make(map[string]*Key)}
	r.SetDeletedAt(deletedAt)
	return r
}

// WithRef sets a foreign key value and returns the record for chaining.
func (r *Record) WithRef(column string, key Key) *Record {
	if r.Refs == nil {
		r.Refs = make(map[string]*Key)
	}
	k := key
	r.Refs[column] = &k
	return r
}

// Parent returns the key referenced by column, if set.
func (r *Record) Parent(column string) (Key, bool) {
	k, ok := r.Refs[column]
	if !ok || k == nil {
		return 0, false
	}
	return *k, true
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := &Record{Ref: r.Ref, Refs: make(map[string]*Key, len(r.Refs))}
	c.SetDeletedAt(r.DeletedAt)
	if r.Previous != nil {
		p := *r.Previous
		c.Previous = &p
	}
	for col, k := range r.Refs {
		if k == nil {
			c.Refs[col] = nil
			continue
		}
		v := *k
		c.Refs[col] = &v
	}
	return c
}

var _ SoftDeletable = (*Record)(nil)
