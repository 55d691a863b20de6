package cmd

import (
	"github.com/spf13/cobra"

	"github.com/paradex-labs/bm25index/internal/catalog"
	"github.com/paradex-labs/bm25index/internal/mvcc"
	"github.com/paradex-labs/bm25index/internal/ui"
)

func newIndexInfoCmd() *cobra.Command {
	var showInvisible bool
	c := &cobra.Command{
		Use:   "index-info",
		Short: "List an index's segments and per-component byte sizes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexInfo(cmd, showInvisible)
		},
	}
	c.Flags().BoolVar(&showInvisible, "show-invisible", false, "include segments no committed snapshot can see")
	return c
}

type segmentReport struct {
	SegmentID  string `json:"segment_id"`
	Xmin       uint64 `json:"xmin"`
	Xmax       uint64 `json:"xmax,omitempty"`
	NumDocs    uint64 `json:"num_docs"`
	NumDeleted uint64 `json:"num_deleted"`
	ByteSize   uint64 `json:"byte_size"`
	Visible    bool   `json:"visible"`

	Terms      uint64 `json:"terms"`
	Postings   uint64 `json:"postings"`
	Positions  uint64 `json:"positions"`
	FastFields uint64 `json:"fast_fields"`
	Norms      uint64 `json:"field_norms"`
	StoredDocs uint64 `json:"stored_docs"`
	Deletes    uint64 `json:"deletes"`
}

type indexInfoReport struct {
	Segments []segmentReport `json:"segments"`
	Total    uint64          `json:"total_bytes"`
}

func runIndexInfo(cmd *cobra.Command, showInvisible bool) error {
	idx, err := openIndex()
	if err != nil {
		return err
	}
	defer idx.Close()

	entries, err := idx.Directory().SegmentMetas()
	if err != nil {
		return err
	}

	// The CLI has no live transaction manager; every stamped xid is
	// treated as committed, so "visible" here means "not yet deleted".
	snap := mvcc.AllCommitted{}

	report := indexInfoReport{}
	for _, e := range entries {
		visible := mvcc.Visible(e.Meta, snap)
		if !visible && !showInvisible {
			continue
		}
		report.Segments = append(report.Segments, describeEntry(e.Meta, visible))
		report.Total += e.Meta.ByteSize
	}

	rend := renderer(cmd)
	r := ui.Report{
		Title:    "Index info",
		Sections: indexInfoSections(rend, report),
		JSON:     report,
	}
	if jsonOutput {
		return rend.RenderJSON(r)
	}
	return rend.Render(r)
}

func describeEntry(meta catalog.SegmentMetaEntry, visible bool) segmentReport {
	return segmentReport{
		SegmentID:  meta.SegmentID.String(),
		Xmin:       meta.Xmin,
		Xmax:       meta.XmaxTxn,
		NumDocs:    meta.NumDocs,
		NumDeleted: meta.NumDeleted,
		ByteSize:   meta.ByteSize,
		Visible:    visible,
		Terms:      meta.Components.Terms,
		Postings:   meta.Components.Postings,
		Positions:  meta.Components.Positions,
		FastFields: meta.Components.FastFields,
		Norms:      meta.Components.Norms,
		StoredDocs: meta.Components.StoredDocs,
		Deletes:    meta.Components.Deletes,
	}
}

func indexInfoSections(rend *ui.Renderer, report indexInfoReport) []ui.Section {
	sections := make([]ui.Section, 0, len(report.Segments)+1)
	for _, s := range report.Segments {
		sections = append(sections, ui.Section{
			Heading: shortID(s.SegmentID),
			Rows: []ui.Row{
				{Label: "visible", Value: rend.Status(s.Visible, "yes", "no")},
				{Label: "docs", Value: formatDocs(s.NumDocs, s.NumDeleted)},
				{Label: "xmin/xmax", Value: formatXids(s.Xmin, s.Xmax)},
				{Label: "size", Value: ui.FormatBytes(s.ByteSize)},
				{Label: "terms", Value: ui.FormatBytes(s.Terms)},
				{Label: "postings", Value: ui.FormatBytes(s.Postings)},
				{Label: "positions", Value: ui.FormatBytes(s.Positions)},
				{Label: "fast_fields", Value: ui.FormatBytes(s.FastFields)},
				{Label: "field_norms", Value: ui.FormatBytes(s.Norms)},
				{Label: "stored_docs", Value: ui.FormatBytes(s.StoredDocs)},
				{Label: "deletes", Value: ui.FormatBytes(s.Deletes)},
			},
		})
	}
	sections = append(sections, ui.Section{
		Heading: "Totals",
		Rows: []ui.Row{
			{Label: "segments", Value: formatCount(len(report.Segments))},
			{Label: "bytes", Value: ui.FormatBytes(report.Total)},
		},
	})
	return sections
}
