package cascade

import (
	"context"

	"softcascade/internal/core/entity"
	"softcascade/internal/metadata"
)

// FastGroup is a set of child rows addressed by predicate rather than by
// primary key: every row of Edge.Child whose Edge.Column is in ParentKeys.
// Fast groups are never materialized, so no per-row notification fires for them.
type FastGroup struct {
	Edge       metadata.Edge
	ParentKeys []entity.Key
	// Exclude lists child keys that are also materialized in the same plan.
	// Their batch update covers them, so the predicate update skips them.
	Exclude []entity.Key
}

// GroupObserver is told about every fast-path group once its predicate update
// has run, inside the same transaction. An error rolls the cascade back.
type GroupObserver interface {
	FastGroupUpdated(ctx context.Context, op Operation, g FastGroup) error
}

type fastKey struct {
	child  string
	column string
}

// canFastUpdate reports whether rows reached through e can skip
// materialization. The child type must be a leaf, must not pull in parent-link
// rows, and nobody may be listening for its per-row events.
func (c *collector) canFastUpdate(e metadata.Edge, keepParents bool) bool {
	if !c.fastPath {
		return false
	}
	if c.registry.HasChildren(e.Child) {
		return false
	}
	if !keepParents {
		for _, pe := range c.registry.ParentsOf(e.Child) {
			if pe.ParentLink {
				return false
			}
		}
	}
	def, _ := c.registry.Type(e.Child)
	if def.AutoCreated {
		return true
	}
	return c.publisher == nil || !c.publisher.HasSubscribers(e.Child)
}

// Chunk splits keys into slices of at most size elements.
// A non-positive size returns the keys as a single chunk.
func Chunk(keys []entity.Key, size int) [][]entity.Key {
	if len(keys) == 0 {
		return nil
	}
	if size <= 0 || len(keys) <= size {
		return [][]entity.Key{keys}
	}
	chunks := make([][]entity.Key, 0, (len(keys)+size-1)/size)
	for start := 0; start < len(keys); start += size {
		end := min(start+size, len(keys))
		chunks = append(chunks, keys[start:end])
	}
	return chunks
}
