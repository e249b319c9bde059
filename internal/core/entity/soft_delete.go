package entity

import "time"

// SoftDeletable is the capability of a record to carry a deletion timestamp.
// A nil timestamp means active; any non-nil value means soft-deleted.
type SoftDeletable interface {
	Referencer
	GetDeletedAt() *time.Time
	SetDeletedAt(t *time.Time)
}

// SoftDeletion is embedded in models that participate in soft deletion.
type SoftDeletion struct {
	// DeletedAt is the instant the row (or its cascade root) was soft-deleted.
	DeletedAt *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
}

// IsDeleted returns true if entity has been soft-deleted.
func (s *SoftDeletion) IsDeleted() bool {
	return s.DeletedAt != nil
}

// GetDeletedAt returns the deletion timestamp or nil.
func (s *SoftDeletion) GetDeletedAt() *time.Time {
	return s.DeletedAt
}

// SetDeletedAt replaces the deletion timestamp. A copy is stored so callers
// sharing one instant across many rows do not alias each other.
func (s *SoftDeletion) SetDeletedAt(t *time.Time) {
	if t == nil {
		s.DeletedAt = nil
		return
	}
	v := *t
	s.DeletedAt = &v
}
