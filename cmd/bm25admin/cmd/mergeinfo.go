package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/paradex-labs/bm25index/internal/ui"
)

func newMergeInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge-info",
		Short: "List in-progress merges recorded in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMergeInfo(cmd)
		},
	}
}

type mergeReport struct {
	PID        uint64   `json:"pid"`
	Xmin       uint64   `json:"xmin"`
	SegmentIDs []string `json:"segment_ids"`
}

func runMergeInfo(cmd *cobra.Command) error {
	idx, err := openIndex()
	if err != nil {
		return err
	}
	defer idx.Close()

	entries, err := idx.Directory().MergeEntries()
	if err != nil {
		return err
	}

	reports := make([]mergeReport, 0, len(entries))
	for _, e := range entries {
		mr := mergeReport{PID: e.PID, Xmin: e.Xmin}
		for i := 0; i < int(e.NumSegments); i++ {
			mr.SegmentIDs = append(mr.SegmentIDs, e.SegmentIDs[i].String())
		}
		reports = append(reports, mr)
	}

	sections := make([]ui.Section, 0, len(reports))
	for _, mr := range reports {
		short := make([]string, len(mr.SegmentIDs))
		for i, id := range mr.SegmentIDs {
			short[i] = shortID(id)
		}
		sections = append(sections, ui.Section{
			Rows: []ui.Row{
				{Label: "pid", Value: formatUint(mr.PID)},
				{Label: "xmin", Value: formatUint(mr.Xmin)},
				{Label: "segments", Value: strings.Join(short, ", ")},
			},
		})
	}
	if len(sections) == 0 {
		sections = append(sections, ui.Section{Rows: []ui.Row{{Label: "merges", Value: "none in progress"}}})
	}

	rend := renderer(cmd)
	r := ui.Report{Title: "Merge info", Sections: sections, JSON: reports}
	if jsonOutput {
		return rend.RenderJSON(r)
	}
	return rend.Render(r)
}
