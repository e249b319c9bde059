// Package metadata holds the Reference Edge registry: which entity types exist,
// which of them participate in soft deletion, and which foreign keys tie them
// together. It is the single source of truth for both collection and ordering.
package metadata

import (
	"fmt"
	"sort"
)

// Default column names.
const (
	DefaultKeyColumn       = "id"
	DefaultDeletedAtColumn = "deleted_at"
)

// TypeDef describes an entity type.
type TypeDef struct {
	Name      string
	Table     string
	KeyColumn string

	// DeletedAtColumn is the soft-deletion timestamp column. Empty means the
	// type does not participate in soft deletion: it is traversed for
	// connectivity but never mutated.
	DeletedAtColumn string

	// AutoCreated marks generated association (junction) types. They have no
	// lifecycle of their own and never receive notifications.
	AutoCreated bool
}

// SoftDeletable reports whether the type carries a deletion timestamp.
func (d TypeDef) SoftDeletable() bool {
	return d.DeletedAtColumn != ""
}

// Edge is a directed reference: rows of Child point at rows of Parent through
// Column, and are dependent on them.
type Edge struct {
	Parent string
	Child  string
	Column string

	// ParentLink marks an "is-a" link: the child row extends the parent row.
	// Such parents are collected upstream unless the caller keeps parents.
	ParentLink bool
}

// SelfReference reports whether the edge points back at its own type.
func (e Edge) SelfReference() bool {
	return e.Parent == e.Child
}

func (e Edge) String() string {
	return fmt.Sprintf("%s.%s -> %s", e.Child, e.Column, e.Parent)
}

// Registry stores entity types and reference edges.
// It is populated once at initialization and read-only afterwards.
type Registry struct {
	types    map[string]TypeDef
	edges    []Edge
	byParent map[string][]Edge
	byChild  map[string][]Edge
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		types:    make(map[string]TypeDef),
		byParent: make(map[string][]Edge),
		byChild:  make(map[string][]Edge),
	}
}

// Register adds an entity type. Table and KeyColumn default to the type name
// and "id".
func (r *Registry) Register(def TypeDef) error {
	if def.Name == "" {
		return fmt.Errorf("register type: empty name")
	}
	if _, exists := r.types[def.Name]; exists {
		return fmt.Errorf("register type %q: already registered", def.Name)
	}
	if def.Table == "" {
		def.Table = def.Name
	}
	if def.KeyColumn == "" {
		def.KeyColumn = DefaultKeyColumn
	}
	r.types[def.Name] = def
	return nil
}

// Relate adds a reference edge between two registered types.
func (r *Registry) Relate(e Edge) error {
	if _, ok := r.types[e.Parent]; !ok {
		return fmt.Errorf("relate %s: unknown parent type %q", e, e.Parent)
	}
	if _, ok := r.types[e.Child]; !ok {
		return fmt.Errorf("relate %s: unknown child type %q", e, e.Child)
	}
	if e.Column == "" {
		return fmt.Errorf("relate %s: empty column", e)
	}
	for _, existing := range r.byChild[e.Child] {
		if existing.Column == e.Column {
			return fmt.Errorf("relate %s: column already references %q", e, existing.Parent)
		}
	}
	if e.ParentLink && e.SelfReference() {
		return fmt.Errorf("relate %s: a type cannot parent-link itself", e)
	}

	r.edges = append(r.edges, e)
	r.byParent[e.Parent] = insertSorted(r.byParent[e.Parent], e)
	r.byChild[e.Child] = insertSorted(r.byChild[e.Child], e)
	return nil
}

// insertSorted keeps edge lists ordered by (child, column) so traversal is
// independent of registration order.
func insertSorted(list []Edge, e Edge) []Edge {
	list = append(list, e)
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Child != list[j].Child {
			return list[i].Child < list[j].Child
		}
		return list[i].Column < list[j].Column
	})
	return list
}

// Type returns the definition of a registered type.
func (r *Registry) Type(name string) (TypeDef, bool) {
	d, ok := r.types[name]
	return d, ok
}

// Types returns all registered type names, sorted.
func (r *Registry) Types() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Edges returns all registered edges in registration order.
func (r *Registry) Edges() []Edge {
	return append([]Edge(nil), r.edges...)
}

// ChildrenOf returns edges whose parent is the given type.
func (r *Registry) ChildrenOf(parentType string) []Edge {
	return r.byParent[parentType]
}

// ParentsOf returns edges whose child is the given type.
func (r *Registry) ParentsOf(childType string) []Edge {
	return r.byChild[childType]
}

// HasChildren returns true if any type references the given type.
func (r *Registry) HasChildren(parentType string) bool {
	return len(r.byParent[parentType]) > 0
}

// RefColumns returns the foreign key columns held by rows of the given type.
func (r *Registry) RefColumns(childType string) []string {
	edges := r.byChild[childType]
	cols := make([]string, len(edges))
	for i, e := range edges {
		cols[i] = e.Column
	}
	return cols
}

// Validate checks that the whole schema can be ordered.
func (r *Registry) Validate() error {
	_, err := r.DependencyOrder(r.Types())
	return err
}
