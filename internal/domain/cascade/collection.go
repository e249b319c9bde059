package cascade

import (
	"slices"
	"sort"

	"softcascade/internal/core/entity"
	"softcascade/internal/metadata"
)

// Collection is the result of one collect pass: every materialized record
// reachable from the roots, grouped by type, plus the fast-path groups that
// will be updated by predicate. It lives for a single Delete/Restore call.
type Collection struct {
	registry *metadata.Registry

	// records holds soft-deletable rows; passThrough holds rows of types that
	// are traversed for connectivity only. Together they form the visited set.
	records     map[string]map[entity.Key]*entity.Record
	passThrough map[string]map[entity.Key]*entity.Record
	typeOrder   []string

	fast map[fastKey]*FastGroup
}

func newCollection(registry *metadata.Registry) *Collection {
	return &Collection{
		registry:    registry,
		records:     make(map[string]map[entity.Key]*entity.Record),
		passThrough: make(map[string]map[entity.Key]*entity.Record),
		fast:        make(map[fastKey]*FastGroup),
	}
}

// add stores records that were not visited yet and returns them.
func (c *Collection) add(recs []*entity.Record) []*entity.Record {
	added := make([]*entity.Record, 0, len(recs))
	for _, rec := range recs {
		if c.Contains(rec.Ref) {
			continue
		}
		def, _ := c.registry.Type(rec.Type)
		target := c.records
		if !def.SoftDeletable() {
			target = c.passThrough
		}
		byKey, ok := target[rec.Type]
		if !ok {
			byKey = make(map[entity.Key]*entity.Record)
			target[rec.Type] = byKey
			if def.SoftDeletable() {
				c.typeOrder = append(c.typeOrder, rec.Type)
			}
		}
		byKey[rec.Key] = rec
		added = append(added, rec)
	}
	return added
}

// Contains reports whether the row was visited, including pass-through rows.
func (c *Collection) Contains(ref entity.Ref) bool {
	if _, ok := c.records[ref.Type][ref.Key]; ok {
		return true
	}
	_, ok := c.passThrough[ref.Type][ref.Key]
	return ok
}

// Types returns the collected soft-deletable types in discovery order.
func (c *Collection) Types() []string {
	return slices.Clone(c.typeOrder)
}

// Records returns the collected records of a type, sorted by ascending key.
func (c *Collection) Records(entityType string) []*entity.Record {
	return sortedRecords(c.records[entityType])
}

// Len returns the number of materialized soft-deletable records.
func (c *Collection) Len() int {
	n := 0
	for _, byKey := range c.records {
		n += len(byKey)
	}
	return n
}

// FastGroups returns fast-path groups sorted by child type and column, each
// with ascending, deduplicated parent keys.
func (c *Collection) FastGroups() []FastGroup {
	groups := make([]FastGroup, 0, len(c.fast))
	for _, g := range c.fast {
		keys := slices.Clone(g.ParentKeys)
		slices.Sort(keys)
		groups = append(groups, FastGroup{Edge: g.Edge, ParentKeys: slices.Compact(keys)})
	}
	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i].Edge, groups[j].Edge
		if a.Child != b.Child {
			return a.Child < b.Child
		}
		return a.Column < b.Column
	})
	return groups
}

func (c *Collection) addFast(e metadata.Edge, parentKeys []entity.Key) {
	k := fastKey{child: e.Child, column: e.Column}
	g, ok := c.fast[k]
	if !ok {
		g = &FastGroup{Edge: e}
		c.fast[k] = g
	}
	g.ParentKeys = append(g.ParentKeys, parentKeys...)
}

// visited returns every materialized record (soft and pass-through), grouped
// by type with types and keys in ascending order.
func (c *Collection) visited() []*entity.Record {
	types := make([]string, 0, len(c.records)+len(c.passThrough))
	for t := range c.records {
		types = append(types, t)
	}
	for t := range c.passThrough {
		types = append(types, t)
	}
	sort.Strings(types)

	var out []*entity.Record
	for _, t := range types {
		if byKey, ok := c.records[t]; ok {
			out = append(out, sortedRecords(byKey)...)
			continue
		}
		out = append(out, sortedRecords(c.passThrough[t])...)
	}
	return out
}

func sortedRecords(byKey map[entity.Key]*entity.Record) []*entity.Record {
	recs := make([]*entity.Record, 0, len(byKey))
	for _, rec := range byKey {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Key < recs[j].Key })
	return recs
}
