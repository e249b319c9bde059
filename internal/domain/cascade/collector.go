package cascade

import (
	"context"
	"slices"
	"sort"

	"softcascade/internal/core/apperror"
	"softcascade/internal/core/entity"
	"softcascade/internal/domain/lifecycle"
	"softcascade/internal/metadata"
)

// collector walks the Reference Edge graph breadth-first from the roots.
type collector struct {
	registry  *metadata.Registry
	storage   Storage
	publisher lifecycle.Publisher
	fastPath  bool
}

// collect builds the transitive closure of rows depending on roots.
// With keepParents false, rows linked upstream through parent-link edges are
// collected too, without cascading into their other children.
func (c *collector) collect(ctx context.Context, roots []entity.Ref, keepParents bool) (*Collection, error) {
	col := newCollection(c.registry)

	wanted := groupRefs(roots)
	var frontier []*entity.Record
	for _, t := range sortedTypes(wanted) {
		keys := wanted[t]
		recs, err := c.storage.FetchByKeys(ctx, t, keys)
		if err != nil {
			return nil, storageError("fetch "+t, err)
		}
		if missing := missingKeys(keys, recs); len(missing) > 0 {
			return nil, apperror.NewMissingRoot(entity.NewRef(t, missing[0]).String())
		}
		frontier = append(frontier, col.add(recs)...)
	}

	if err := c.expand(ctx, col, frontier, keepParents); err != nil {
		return nil, err
	}
	if err := c.checkIntegrity(ctx, col); err != nil {
		return nil, err
	}
	return col, nil
}

func (c *collector) expand(ctx context.Context, col *Collection, frontier []*entity.Record, keepParents bool) error {
	// Rows pulled in through parent links are visited but not expanded. If the
	// downstream walk reaches one of them later, it is expanded then.
	linkedOnly := make(map[entity.Ref]*entity.Record)

	for len(frontier) > 0 {
		var next []*entity.Record

		byType := groupRecords(frontier)
		for _, t := range sortedTypes(byType) {
			keys := byType[t]
			for _, e := range c.registry.ChildrenOf(t) {
				if c.canFastUpdate(e, keepParents) {
					if def, _ := c.registry.Type(e.Child); def.SoftDeletable() {
						col.addFast(e, keys)
					}
					continue
				}

				children, err := c.fetchChildren(ctx, e, keys)
				if err != nil {
					return err
				}
				for _, child := range children {
					if rec, ok := linkedOnly[child.Ref]; ok {
						delete(linkedOnly, child.Ref)
						next = append(next, rec)
					}
				}
				next = append(next, col.add(children)...)
			}
		}

		if !keepParents {
			linked, err := c.collectParentLinks(ctx, col, frontier)
			if err != nil {
				return err
			}
			for _, rec := range linked {
				linkedOnly[rec.Ref] = rec
			}
		}

		frontier = next
	}
	return nil
}

func (c *collector) fetchChildren(ctx context.Context, e metadata.Edge, parentKeys []entity.Key) ([]*entity.Record, error) {
	children, err := c.storage.FetchChildren(ctx, e, parentKeys)
	if err != nil {
		return nil, storageError("fetch "+e.String(), err)
	}
	return children, nil
}

// collectParentLinks follows parent-link edges upstream until no new rows
// appear. Missing parents are left to the integrity check.
func (c *collector) collectParentLinks(ctx context.Context, col *Collection, recs []*entity.Record) ([]*entity.Record, error) {
	var linked []*entity.Record
	for len(recs) > 0 {
		wanted := make(map[string][]entity.Key)
		for _, rec := range recs {
			for _, pe := range c.registry.ParentsOf(rec.Type) {
				if !pe.ParentLink {
					continue
				}
				k, ok := rec.Parent(pe.Column)
				if !ok || col.Contains(entity.NewRef(pe.Parent, k)) {
					continue
				}
				wanted[pe.Parent] = append(wanted[pe.Parent], k)
			}
		}

		var added []*entity.Record
		for _, t := range sortedTypes(wanted) {
			parents, err := c.storage.FetchByKeys(ctx, t, uniqueSorted(wanted[t]))
			if err != nil {
				return nil, storageError("fetch "+t, err)
			}
			added = append(added, col.add(parents)...)
		}
		linked = append(linked, added...)
		recs = added
	}
	return linked, nil
}

type reference struct {
	child  *entity.Record
	edge   metadata.Edge
	parent entity.Key
}

// checkIntegrity verifies that every foreign key held by a materialized row
// points at an existing row. Rows already visited count as existing.
func (c *collector) checkIntegrity(ctx context.Context, col *Collection) error {
	var pending []reference
	wanted := make(map[string][]entity.Key)

	for _, rec := range col.visited() {
		for _, e := range c.registry.ParentsOf(rec.Type) {
			k, ok := rec.Parent(e.Column)
			if !ok || col.Contains(entity.NewRef(e.Parent, k)) {
				continue
			}
			pending = append(pending, reference{child: rec, edge: e, parent: k})
			wanted[e.Parent] = append(wanted[e.Parent], k)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	existing := make(map[entity.Ref]bool)
	for _, t := range sortedTypes(wanted) {
		keys, err := c.storage.ExistingKeys(ctx, t, uniqueSorted(wanted[t]))
		if err != nil {
			return storageError("check "+t, err)
		}
		for _, k := range keys {
			existing[entity.NewRef(t, k)] = true
		}
	}

	for _, ref := range pending {
		parent := entity.NewRef(ref.edge.Parent, ref.parent)
		if !existing[parent] {
			return apperror.NewGraphIntegrity(ref.child.String(), ref.edge.Column, parent.String())
		}
	}
	return nil
}

// --- helpers ---

func groupRefs(refs []entity.Ref) map[string][]entity.Key {
	byType := make(map[string][]entity.Key)
	for _, r := range refs {
		byType[r.Type] = append(byType[r.Type], r.Key)
	}
	for t, keys := range byType {
		byType[t] = uniqueSorted(keys)
	}
	return byType
}

func groupRecords(recs []*entity.Record) map[string][]entity.Key {
	byType := make(map[string][]entity.Key)
	for _, rec := range recs {
		byType[rec.Type] = append(byType[rec.Type], rec.Key)
	}
	for t, keys := range byType {
		byType[t] = uniqueSorted(keys)
	}
	return byType
}

func sortedTypes(m map[string][]entity.Key) []string {
	types := make([]string, 0, len(m))
	for t := range m {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func uniqueSorted(keys []entity.Key) []entity.Key {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}

func missingKeys(keys []entity.Key, recs []*entity.Record) []entity.Key {
	found := make(map[entity.Key]bool, len(recs))
	for _, rec := range recs {
		found[rec.Key] = true
	}
	var missing []entity.Key
	for _, k := range keys {
		if !found[k] {
			missing = append(missing, k)
		}
	}
	return missing
}
