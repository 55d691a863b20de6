package cmd

import (
	"github.com/spf13/cobra"

	"github.com/paradex-labs/bm25index/internal/ui"
)

func newVacuumInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vacuum-info",
		Short: "List segments queued for delete-bitset rewrite",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVacuumInfo(cmd)
		},
	}
}

type vacuumReport struct {
	SegmentID string `json:"segment_id"`
	QueuedXid uint64 `json:"queued_xid"`
}

func runVacuumInfo(cmd *cobra.Command) error {
	idx, err := openIndex()
	if err != nil {
		return err
	}
	defer idx.Close()

	entries, err := idx.Directory().VacuumEntries()
	if err != nil {
		return err
	}

	reports := make([]vacuumReport, 0, len(entries))
	rows := make([]ui.Row, 0, len(entries))
	for _, e := range entries {
		reports = append(reports, vacuumReport{SegmentID: e.SegmentID.String(), QueuedXid: e.QueuedXid})
		rows = append(rows, ui.Row{Label: shortID(e.SegmentID.String()), Value: "queued at xid " + formatUint(e.QueuedXid)})
	}
	if len(rows) == 0 {
		rows = append(rows, ui.Row{Label: "vacuums", Value: "none queued"})
	}

	rend := renderer(cmd)
	r := ui.Report{
		Title:    "Vacuum info",
		Sections: []ui.Section{{Heading: "Queued segments", Rows: rows}},
		JSON:     reports,
	}
	if jsonOutput {
		return rend.RenderJSON(r)
	}
	return rend.Render(r)
}
