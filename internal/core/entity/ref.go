// Package entity provides the core types shared by every soft-deletable record.
package entity

import (
	"fmt"
	"strconv"
	"strings"
)

// Key is a primary key value. Keys order naturally, which gives cascades a
// deterministic update order across repeated runs.
type Key int64

// String formats the key in base 10.
func (k Key) String() string {
	return strconv.FormatInt(int64(k), 10)
}

// Ref identifies a single row: entity type plus primary key.
type Ref struct {
	Type string `json:"type"`
	Key  Key    `json:"key"`
}

// NewRef creates a reference.
func NewRef(entityType string, key Key) Ref {
	return Ref{Type: entityType, Key: key}
}

// String returns the type-qualified reference (e.g., "course#1").
func (r Ref) String() string {
	return r.Type + "#" + r.Key.String()
}

// EntityRef implements Referencer so plain references can be passed as roots.
func (r Ref) EntityRef() Ref {
	return r
}

// ParseRef parses "type#key".
func ParseRef(s string) (Ref, error) {
	typ, raw, ok := strings.Cut(s, "#")
	if !ok || typ == "" {
		return Ref{}, fmt.Errorf("invalid reference %q: expected type#key", s)
	}
	k, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Ref{}, fmt.Errorf("invalid reference %q: %w", s, err)
	}
	return Ref{Type: typ, Key: Key(k)}, nil
}

// Referencer is implemented by anything that can name the row it represents.
type Referencer interface {
	EntityRef() Ref
}

// Keys extracts keys from references, preserving order.
func Keys(refs []Ref) []Key {
	keys := make([]Key, len(refs))
	for i, r := range refs {
		keys[i] = r.Key
	}
	return keys
}
