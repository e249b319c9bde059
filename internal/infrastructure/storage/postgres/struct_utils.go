package postgres

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	sq "github.com/Masterminds/squirrel"
)

// ExtractDBColumns returns the column names of a model's "db" tags, walking
// embedded structs (such as entity.SoftDeletion). Called at initialization.
func ExtractDBColumns[T any]() []string {
	var zero T
	return extractColumnsFromType(reflect.TypeOf(zero))
}

func extractColumnsFromType(t reflect.Type) []string {
	if t == nil {
		return nil
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var cols []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous {
			cols = append(cols, extractColumnsFromType(field.Type)...)
			continue
		}
		tag := field.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		cols = append(cols, tag)
	}
	return cols
}

// typeMetadata caches which fields of a struct map to columns.
type typeMetadata struct {
	fields   map[string]int // column -> field index
	embedded []int
}

var typeCache sync.Map // map[reflect.Type]*typeMetadata

func metadataFor(t reflect.Type) *typeMetadata {
	if cached, ok := typeCache.Load(t); ok {
		return cached.(*typeMetadata)
	}

	meta := &typeMetadata{fields: make(map[string]int)}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous {
			meta.embedded = append(meta.embedded, i)
			continue
		}
		tag := field.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		meta.fields[tag] = i
	}

	actual, _ := typeCache.LoadOrStore(t, meta)
	return actual.(*typeMetadata)
}

// StructToMap converts a struct to a column -> value map using "db" tags.
// Type metadata is computed once per type and cached.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	meta := metadataFor(rv.Type())
	res := make(map[string]any, len(meta.fields))
	for col, idx := range meta.fields {
		res[col] = rv.Field(idx).Interface()
	}
	for _, idx := range meta.embedded {
		for k, val := range StructToMap(rv.Field(idx).Interface()) {
			res[k] = val
		}
	}
	return res
}

// InsertModel inserts one model row into table, columns sorted by name.
func InsertModel(ctx context.Context, q Querier, table string, model any) error {
	values := StructToMap(model)
	if len(values) == 0 {
		return fmt.Errorf("insert %s: %T has no db columns", table, model)
	}

	cols := make([]string, 0, len(values))
	for col := range values {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	args := make([]any, len(cols))
	for i, col := range cols {
		args[i] = values[col]
	}

	sqlStr, sqlArgs, err := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Insert(table).Columns(cols...).Values(args...).ToSql()
	if err != nil {
		return fmt.Errorf("build insert %s: %w", table, err)
	}
	if _, err := q.Exec(ctx, sqlStr, sqlArgs...); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}
