package metadata

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
)

// Optional methods a model may implement to override inspected defaults.
type (
	entityTyper interface{ EntityType() string }
	tableNamer  interface{ TableName() string }
	autoCreator interface{ AutoCreated() bool }
)

// Inspect analyzes a model struct and returns its type definition and the
// reference edges it declares.
//
// Conventions:
//   - the type name comes from EntityType(), else the snake_cased struct name
//   - the table comes from TableName(), else the type name
//   - the field named ID provides the key column (default "id")
//   - a column tagged db:"deleted_at" makes the type soft-deletable
//   - ref:"parent" on a foreign key field declares an edge; ref:"parent,parent_link"
//     declares an is-a link
func Inspect(model any) (TypeDef, []Edge, error) {
	t := reflect.TypeOf(model)
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return TypeDef{}, nil, fmt.Errorf("inspect %T: not a struct", model)
	}

	def := TypeDef{Name: snakeCase(t.Name())}
	if v, ok := model.(entityTyper); ok {
		def.Name = v.EntityType()
	}
	def.Table = def.Name
	if v, ok := model.(tableNamer); ok {
		def.Table = v.TableName()
	}
	if v, ok := model.(autoCreator); ok {
		def.AutoCreated = v.AutoCreated()
	}

	var edges []Edge
	if err := inspectStruct(t, &def, &edges); err != nil {
		return TypeDef{}, nil, fmt.Errorf("inspect %s: %w", def.Name, err)
	}
	if def.KeyColumn == "" {
		def.KeyColumn = DefaultKeyColumn
	}
	return def, edges, nil
}

func inspectStruct(t reflect.Type, def *TypeDef, edges *[]Edge) error {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		// Handle embedded structs (flattening)
		if field.Anonymous {
			ft := field.Type
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				if err := inspectStruct(ft, def, edges); err != nil {
					return err
				}
			}
			continue
		}

		if field.PkgPath != "" { // unexported
			continue
		}

		column := dbColumn(field)
		if column == "" {
			if _, ok := field.Tag.Lookup("ref"); ok {
				return fmt.Errorf("field %s: ref tag without db column", field.Name)
			}
			continue
		}

		switch {
		case field.Name == "ID":
			def.KeyColumn = column
		case column == DefaultDeletedAtColumn:
			def.DeletedAtColumn = column
		}

		if tag, ok := field.Tag.Lookup("ref"); ok {
			parts := strings.Split(tag, ",")
			parent := strings.TrimSpace(parts[0])
			if parent == "" {
				return fmt.Errorf("field %s: empty ref target", field.Name)
			}
			e := Edge{Parent: parent, Child: def.Name, Column: column}
			for _, opt := range parts[1:] {
				switch strings.TrimSpace(opt) {
				case "parent_link":
					e.ParentLink = true
				default:
					return fmt.Errorf("field %s: unknown ref option %q", field.Name, opt)
				}
			}
			*edges = append(*edges, e)
		}
	}
	return nil
}

func dbColumn(field reflect.StructField) string {
	tag := field.Tag.Get("db")
	if tag == "" || tag == "-" {
		return ""
	}
	return strings.Split(tag, ",")[0]
}

// snakeCase converts CourseTeacher to course_teacher.
func snakeCase(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// RegisterModels inspects each model, registers all types and then relates
// all declared edges, so models may reference types listed after them.
func (r *Registry) RegisterModels(models ...any) error {
	var pending []Edge
	for _, m := range models {
		def, edges, err := Inspect(m)
		if err != nil {
			return err
		}
		if err := r.Register(def); err != nil {
			return err
		}
		pending = append(pending, edges...)
	}
	for _, e := range pending {
		if err := r.Relate(e); err != nil {
			return err
		}
	}
	return nil
}
