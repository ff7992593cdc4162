package pipeline

import (
	"strings"

	"github.com/IshaanNene/ibscout/internal/config"
	"github.com/IshaanNene/ibscout/internal/types"
)

// TrimMiddleware trims surrounding whitespace from every field.
type TrimMiddleware struct{}

func (m *TrimMiddleware) Name() string { return "trim" }

func (m *TrimMiddleware) Process(rec *types.Record) (*types.Record, error) {
	for _, key := range rec.Keys() {
		rec.Set(key, strings.TrimSpace(rec.GetString(key)))
	}
	return rec, nil
}

// FieldRenameMiddleware renames fields in place.
type FieldRenameMiddleware struct {
	Renames []config.FieldRename
}

func (m *FieldRenameMiddleware) Name() string { return "field_rename" }

func (m *FieldRenameMiddleware) Process(rec *types.Record) (*types.Record, error) {
	for _, r := range m.Renames {
		rec.Rename(r.From, r.To)
	}
	return rec, nil
}

// FieldFilterMiddleware keeps only the listed fields. ID always survives.
type FieldFilterMiddleware struct {
	Fields map[string]bool
}

// NewFieldFilterMiddleware creates a filter keeping columns plus ID.
func NewFieldFilterMiddleware(columns []string) *FieldFilterMiddleware {
	fields := make(map[string]bool, len(columns)+1)
	for _, c := range columns {
		fields[c] = true
	}
	fields[types.FieldID] = true
	return &FieldFilterMiddleware{Fields: fields}
}

func (m *FieldFilterMiddleware) Name() string { return "field_filter" }

func (m *FieldFilterMiddleware) Process(rec *types.Record) (*types.Record, error) {
	if len(m.Fields) == 0 {
		return rec, nil
	}
	for _, key := range rec.Keys() {
		if !m.Fields[key] && key != types.FieldID {
			rec.Delete(key)
		}
	}
	return rec, nil
}

// RequiredFieldsMiddleware drops records missing required fields or
// carrying them empty.
type RequiredFieldsMiddleware struct {
	Fields []string
}

func (m *RequiredFieldsMiddleware) Name() string { return "required_fields" }

func (m *RequiredFieldsMiddleware) Process(rec *types.Record) (*types.Record, error) {
	for _, field := range m.Fields {
		if rec.GetString(field) == "" {
			return nil, nil
		}
	}
	return rec, nil
}
