package cascade

import (
	"slices"

	"softcascade/internal/core/entity"
	"softcascade/internal/metadata"
)

// Operation is the kind of cascade.
type Operation string

const (
	OpDelete  Operation = "delete"
	OpRestore Operation = "restore"
)

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	return op == OpDelete || op == OpRestore
}

// Batch is the set of records of one type updated by one statement.
type Batch struct {
	Type    string
	Records []*entity.Record
}

// Keys returns the primary keys of the batch in ascending order.
func (b Batch) Keys() []entity.Key {
	keys := make([]entity.Key, len(b.Records))
	for i, rec := range b.Records {
		keys[i] = rec.Key
	}
	return keys
}

// Plan is the ordered work of one cascade.
type Plan struct {
	Operation Operation
	// Batches are in execution order: children first for delete, parents
	// first for restore.
	Batches []Batch
	Fast    []FastGroup
}

// Records returns all materialized records in execution order.
func (p *Plan) Records() []*entity.Record {
	var out []*entity.Record
	for _, b := range p.Batches {
		out = append(out, b.Records...)
	}
	return out
}

// Len returns the number of materialized records.
func (p *Plan) Len() int {
	n := 0
	for _, b := range p.Batches {
		n += len(b.Records)
	}
	return n
}

// order sorts the collection by the type-level dependency order of the whole
// schema, so transitive dependencies through uncollected types still hold.
func order(registry *metadata.Registry, col *Collection, op Operation) (*Plan, error) {
	schemaOrder, err := registry.DependencyOrder(registry.Types())
	if err != nil {
		return nil, err
	}

	collected := make(map[string]bool)
	for _, t := range col.Types() {
		collected[t] = true
	}

	plan := &Plan{Operation: op, Fast: col.FastGroups()}
	for _, t := range schemaOrder {
		if !collected[t] {
			continue
		}
		plan.Batches = append(plan.Batches, Batch{Type: t, Records: col.Records(t)})
	}
	for i, g := range plan.Fast {
		if collected[g.Edge.Child] {
			plan.Fast[i].Exclude = Batch{Records: col.Records(g.Edge.Child)}.Keys()
		}
	}
	if op == OpRestore {
		slices.Reverse(plan.Batches)
	}
	return plan, nil
}
