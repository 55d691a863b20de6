// Package config loads and validates index options: the key field, per-kind field maps, layer-size thresholds and the optional
// partial-index predicate. Options are plain data the core stores and
// passes through — it never interprets tokenizer internals itself.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/paradex-labs/bm25index/internal/errs"
)

// FieldKind is the type kind of a field descriptor.
type FieldKind string

const (
	FieldKindText    FieldKind = "text"
	FieldKindInteger FieldKind = "integer"
	FieldKindFloat   FieldKind = "float"
	FieldKindBool    FieldKind = "bool"
	FieldKindDate    FieldKind = "date"
	FieldKindJSON    FieldKind = "json"
)

// FieldOptions is one entry of a text_fields/numeric_fields/boolean_fields/
// json_fields map: per-field flags and tokenizer passthrough config.
type FieldOptions struct {
	Fast       bool              `yaml:"fast"`
	Stored     bool              `yaml:"stored"`
	Tokenizer  string            `yaml:"tokenizer,omitempty"`
	Record     string            `yaml:"record,omitempty"` // "basic", "freqs", "position"
	Normalizer string            `yaml:"normalizer,omitempty"`
	Column     string            `yaml:"column,omitempty"` // alias: indexed column sources value from here
	ExpandDots bool              `yaml:"expand_dots,omitempty"`
	Extra      map[string]string `yaml:"extra,omitempty"`
}

// IndexOptions is the full set of options accepted when an index is
// built.
type IndexOptions struct {
	KeyField             string                  `yaml:"key_field"`
	TextFields           map[string]FieldOptions `yaml:"text_fields,omitempty"`
	NumericFields        map[string]FieldOptions `yaml:"numeric_fields,omitempty"`
	BooleanFields        map[string]FieldOptions `yaml:"boolean_fields,omitempty"`
	JSONFields           map[string]FieldOptions `yaml:"json_fields,omitempty"`
	LayerSizes           []int64                 `yaml:"layer_sizes,omitempty"`
	BackgroundLayerSizes []int64                 `yaml:"background_layer_sizes,omitempty"`
	Predicate            string                  `yaml:"predicate,omitempty"`
}

// defaultLayerSizes is a conservative layered merge policy: 64KB,
// 256KB, 1MB, 4MB foreground targets.
var defaultLayerSizes = []int64{64 * 1024, 256 * 1024, 1024 * 1024, 4 * 1024 * 1024}

// NewIndexOptions returns options with just the required key field and
// sane layer-size defaults; callers fill in field maps before Validate.
func NewIndexOptions(keyField string) *IndexOptions {
	return &IndexOptions{
		KeyField:             keyField,
		LayerSizes:           append([]int64(nil), defaultLayerSizes...),
		BackgroundLayerSizes: append([]int64(nil), defaultLayerSizes...),
	}
}

// Load reads index options from a YAML file.
func Load(path string) (*IndexOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Configuration(errs.CodeConfigInvalidTokenizer, "failed to read index options", err).
			WithDetail("path", path)
	}
	opts := &IndexOptions{}
	if err := yaml.Unmarshal(data, opts); err != nil {
		return nil, errs.Configuration(errs.CodeConfigInvalidTokenizer, "failed to parse index options", err).
			WithDetail("path", path)
	}
	if len(opts.LayerSizes) == 0 {
		opts.LayerSizes = append([]int64(nil), defaultLayerSizes...)
	}
	if len(opts.BackgroundLayerSizes) == 0 {
		opts.BackgroundLayerSizes = append([]int64(nil), defaultLayerSizes...)
	}
	return opts, opts.Validate()
}

// WriteYAML persists the options, e.g. for `schema` admin output or test
// fixtures.
func (o *IndexOptions) WriteYAML(path string) error {
	data, err := yaml.Marshal(o)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate enforces the configuration invariants: required key field, no alias cycles, no field name colliding with the
// key field.
func (o *IndexOptions) Validate() error {
	if strings.TrimSpace(o.KeyField) == "" {
		return errs.Configuration(errs.CodeConfigMissingKeyField, "key_field is required", nil)
	}

	allFields := make(map[string]FieldOptions)
	for name, f := range o.TextFields {
		allFields[name] = f
	}
	for name, f := range o.NumericFields {
		allFields[name] = f
	}
	for name, f := range o.BooleanFields {
		allFields[name] = f
	}
	for name, f := range o.JSONFields {
		allFields[name] = f
	}

	if _, exists := allFields[o.KeyField]; exists {
		return errs.Configuration(errs.CodeConfigKeyFieldConflict,
			fmt.Sprintf("key_field %q cannot also appear as an indexed field", o.KeyField), nil)
	}

	if err := checkAliasCycles(allFields); err != nil {
		return err
	}

	for name, f := range allFields {
		if f.Column != "" && f.Column == name {
			return errs.Configuration(errs.CodeConfigAliasCycle,
				fmt.Sprintf("field %q aliases itself via column", name), nil).
				WithDetail("field", name)
		}
	}

	return nil
}

// checkAliasCycles walks each field's `column` alias chain to detect a
// cycle (A aliases B, B aliases A).
func checkAliasCycles(fields map[string]FieldOptions) error {
	for start := range fields {
		visited := map[string]bool{start: true}
		cur := fields[start]
		for cur.Column != "" {
			if visited[cur.Column] {
				return errs.Configuration(errs.CodeConfigAliasCycle,
					fmt.Sprintf("alias cycle detected starting at field %q", start), nil).
					WithDetail("field", start)
			}
			visited[cur.Column] = true
			next, ok := fields[cur.Column]
			if !ok {
				break
			}
			cur = next
		}
	}
	return nil
}

// FieldNames returns every configured field name across all four maps, in
// a deterministic order (text, numeric, boolean, json), each followed by
// alphabetical order within its group.
func (o *IndexOptions) FieldNames() []string {
	var names []string
	names = append(names, sortedKeys(o.TextFields)...)
	names = append(names, sortedKeys(o.NumericFields)...)
	names = append(names, sortedKeys(o.BooleanFields)...)
	names = append(names, sortedKeys(o.JSONFields)...)
	return names
}

func sortedKeys(m map[string]FieldOptions) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
