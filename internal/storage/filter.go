package storage

import (
	"fmt"
	"strings"

	"clipit/pkg/types"
)

// Filter selects entries by exact match. Zero-valued fields impose no
// constraint; set fields are combined with AND.
type Filter struct {
	ID         int64
	Kind       types.Kind
	Payload    string
	CapturedAt int64
	FilePath   string
}

// Clause is one column equality constraint
type Clause struct {
	Column string
	Value  interface{}
}

// Clauses returns the constraints for every set field. Column names come
// from the fixed column set, values are meant to be bound as parameters.
func (f Filter) Clauses() []Clause {
	var clauses []Clause
	if f.ID != 0 {
		clauses = append(clauses, Clause{ColumnID, f.ID})
	}
	if f.Kind != "" {
		clauses = append(clauses, Clause{ColumnKind, string(f.Kind)})
	}
	if f.Payload != "" {
		clauses = append(clauses, Clause{ColumnPayload, f.Payload})
	}
	if f.CapturedAt != 0 {
		clauses = append(clauses, Clause{ColumnDate, f.CapturedAt})
	}
	if f.FilePath != "" {
		clauses = append(clauses, Clause{ColumnFilePath, f.FilePath})
	}
	return clauses
}

// IsZero reports whether the filter matches every entry
func (f Filter) IsZero() bool {
	return f == Filter{}
}

// Match applies the filter to an in-memory entry
func (f Filter) Match(e types.Entry) bool {
	if f.ID != 0 && e.ID != f.ID {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.Payload != "" && e.Payload != f.Payload {
		return false
	}
	if f.CapturedAt != 0 && e.CapturedAt != f.CapturedAt {
		return false
	}
	if f.FilePath != "" && e.ImagePath() != f.FilePath {
		return false
	}
	return true
}

// Field names a sortable entry attribute
type Field int

const (
	FieldID Field = iota
	FieldKind
	FieldPayload
	FieldCapturedAt
	FieldFilePath
)

var fieldNames = map[Field]string{
	FieldID:         "id",
	FieldKind:       "kind",
	FieldPayload:    "payload",
	FieldCapturedAt: "captured_at",
	FieldFilePath:   "file_path",
}

func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Field(%d)", int(f))
}

// ParseField accepts the names returned by Field.String
func ParseField(s string) (Field, error) {
	for field, name := range fieldNames {
		if strings.EqualFold(name, s) {
			return field, nil
		}
	}
	return 0, fmt.Errorf("unknown sort field %q", s)
}

func (f Field) less(a, b types.Entry) bool {
	switch f {
	case FieldKind:
		return a.Kind < b.Kind
	case FieldPayload:
		return a.Payload < b.Payload
	case FieldCapturedAt:
		return a.CapturedAt < b.CapturedAt
	case FieldFilePath:
		return a.ImagePath() < b.ImagePath()
	default:
		return a.ID < b.ID
	}
}
