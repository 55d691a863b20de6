package cmd

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/paradex-labs/bm25index/internal/config"
	"github.com/paradex-labs/bm25index/internal/ui"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Show the field schema of an index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(cmd)
		},
	}
}

type fieldReport struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Fast      bool   `json:"fast"`
	Stored    bool   `json:"stored"`
	Tokenizer string `json:"tokenizer,omitempty"`
}

type schemaReport struct {
	KeyField             string        `json:"key_field"`
	Fields               []fieldReport `json:"fields"`
	LayerSizes           []int64       `json:"layer_sizes"`
	BackgroundLayerSizes []int64       `json:"background_layer_sizes"`
	Predicate            string        `json:"predicate,omitempty"`
}

func runSchema(cmd *cobra.Command) error {
	idx, err := openIndex()
	if err != nil {
		return err
	}
	defer idx.Close()

	report := buildSchemaReport(idx.Options)

	rows := make([]ui.Row, 0, len(report.Fields)+1)
	rows = append(rows, ui.Row{Label: "key_field", Value: report.KeyField})
	for _, f := range report.Fields {
		rows = append(rows, ui.Row{Label: f.Name, Value: fieldSummary(f)})
	}

	r := ui.Report{
		Title: "Schema",
		Sections: []ui.Section{
			{Heading: "Fields", Rows: rows},
			{Heading: "Layers", Rows: []ui.Row{
				{Label: "layer_sizes", Value: formatInt64s(report.LayerSizes)},
				{Label: "background_layer_sizes", Value: formatInt64s(report.BackgroundLayerSizes)},
				{Label: "predicate", Value: report.Predicate},
			}},
		},
		JSON: report,
	}

	rend := renderer(cmd)
	if jsonOutput {
		return rend.RenderJSON(r)
	}
	return rend.Render(r)
}

func buildSchemaReport(opts *config.IndexOptions) schemaReport {
	report := schemaReport{
		KeyField:             opts.KeyField,
		LayerSizes:           opts.LayerSizes,
		BackgroundLayerSizes: opts.BackgroundLayerSizes,
		Predicate:            opts.Predicate,
	}
	add := func(kind string, m map[string]config.FieldOptions) {
		for name, fo := range m {
			report.Fields = append(report.Fields, fieldReport{
				Name: name, Kind: kind, Fast: fo.Fast, Stored: fo.Stored, Tokenizer: fo.Tokenizer,
			})
		}
	}
	add("text", opts.TextFields)
	add("integer", opts.NumericFields)
	add("bool", opts.BooleanFields)
	add("json", opts.JSONFields)
	sort.Slice(report.Fields, func(i, j int) bool { return report.Fields[i].Name < report.Fields[j].Name })
	return report
}

func fieldSummary(f fieldReport) string {
	s := f.Kind
	if f.Fast {
		s += " fast"
	}
	if f.Stored {
		s += " stored"
	}
	if f.Tokenizer != "" {
		s += " tokenizer=" + f.Tokenizer
	}
	return s
}

func formatInt64s(vals []int64) string {
	out := ""
	for i, v := range vals {
		if i > 0 {
			out += ", "
		}
		out += ui.FormatBytes(uint64(v))
	}
	return out
}
