package segment

import (
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/paradex-labs/bm25index/internal/config"
)

// Synthesized field names every segment carries regardless of schema,
// always stored as fast fields.
const (
	FieldCtid = "__ctid"
	FieldXmin = "__xmin"
	FieldXmax = "__xmax"
)

// Schema is the search-side schema translated from the host's field
// descriptors (config.IndexOptions) into a bleve index mapping. It is kept alongside the field descriptors themselves so the
// scan executor can tell a fast field from a stored-only one without
// re-deriving bleve's mapping.
type Schema struct {
	KeyField string
	Fields   map[string]config.FieldOptions
	Kinds    map[string]config.FieldKind
}

// NewSchema builds a Schema from index options: every declared field
// keeps its kind and flags; the key field is always a fast, stored,
// unique identifier.
func NewSchema(opts *config.IndexOptions) *Schema {
	s := &Schema{
		KeyField: opts.KeyField,
		Fields:   make(map[string]config.FieldOptions),
		Kinds:    make(map[string]config.FieldKind),
	}
	add := func(kind config.FieldKind, m map[string]config.FieldOptions) {
		for name, fo := range m {
			s.Fields[name] = fo
			s.Kinds[name] = kind
		}
	}
	add(config.FieldKindText, opts.TextFields)
	add(config.FieldKindInteger, opts.NumericFields)
	add(config.FieldKindBool, opts.BooleanFields)
	add(config.FieldKindJSON, opts.JSONFields)
	return s
}

// IsFast reports whether field is retrievable without heap access — the
// synthesized ctid/xmin/xmax columns always are.
func (s *Schema) IsFast(field string) bool {
	switch field {
	case FieldCtid, FieldXmin, FieldXmax:
		return true
	}
	fo, ok := s.Fields[field]
	return ok && fo.Fast
}

// BleveMapping builds the index mapping this schema implies. Text fields
// use the field's configured tokenizer as their analyzer name; the
// analyzer itself is assumed already registered in bleve's registry by
// the host.
func (s *Schema) BleveMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	im.DefaultMapping = bleve.NewDocumentStaticMapping()

	addNumeric := func(name string) {
		fm := bleve.NewNumericFieldMapping()
		fm.Store = true
		fm.Index = true
		im.DefaultMapping.AddFieldMappingsAt(name, fm)
	}
	addNumeric(FieldCtid)
	addNumeric(FieldXmin)
	addNumeric(FieldXmax)

	for name, fo := range s.Fields {
		switch s.Kinds[name] {
		case config.FieldKindText, config.FieldKindJSON:
			fm := bleve.NewTextFieldMapping()
			fm.Store = fo.Stored
			fm.Index = true
			fm.IncludeTermVectors = true
			if fo.Tokenizer != "" {
				fm.Analyzer = fo.Tokenizer
			}
			im.DefaultMapping.AddFieldMappingsAt(name, fm)
		case config.FieldKindInteger, config.FieldKindFloat:
			fm := bleve.NewNumericFieldMapping()
			fm.Store = fo.Stored
			fm.Index = true
			im.DefaultMapping.AddFieldMappingsAt(name, fm)
		case config.FieldKindBool:
			fm := bleve.NewBooleanFieldMapping()
			fm.Store = fo.Stored
			fm.Index = true
			im.DefaultMapping.AddFieldMappingsAt(name, fm)
		case config.FieldKindDate:
			fm := bleve.NewDateTimeFieldMapping()
			fm.Store = fo.Stored
			fm.Index = true
			im.DefaultMapping.AddFieldMappingsAt(name, fm)
		}
	}

	return im
}

// KeyFieldValue extracts the key field value as a string from a decoded
// document value map, the index's external row key.
func KeyFieldValue(s *Schema, fields map[string]any) (string, bool) {
	v, ok := fields[s.KeyField]
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case time.Time:
		return t.Format(time.RFC3339Nano), true
	default:
		return "", false
	}
}
