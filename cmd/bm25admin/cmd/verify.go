package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/paradex-labs/bm25index/internal/am"
	"github.com/paradex-labs/bm25index/internal/catalog"
	"github.com/paradex-labs/bm25index/internal/ui"
)

func newVerifyCmd() *cobra.Command {
	var (
		heapKeysPath   string
		heapAllIndexed bool
		sampleRate     float64
		segmentIDs     []string
	)
	c := &cobra.Command{
		Use:   "verify",
		Short: "Verify every indexed row key against a heap key listing",
		Long: `verify cross-checks the index against its source of truth: every
indexed document key must appear in the heap-keys file (one key per
line). With --heapallindexed the reverse direction is checked too.
--sample-rate checks a deterministic subset; --segment-ids restricts
the run to named segments so a long verification can be resumed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, heapKeysPath, heapAllIndexed, sampleRate, segmentIDs)
		},
	}
	c.Flags().StringVar(&heapKeysPath, "heap-keys", "", "file listing live heap keys, one per line (required)")
	c.Flags().BoolVar(&heapAllIndexed, "heapallindexed", false, "also check every heap key appears in the index")
	c.Flags().Float64Var(&sampleRate, "sample-rate", 0, "check only this fraction of documents (0 = all)")
	c.Flags().StringSliceVar(&segmentIDs, "segment-ids", nil, "restrict the check to these segment UUIDs")
	_ = c.MarkFlagRequired("heap-keys")
	return c
}

// fileHeapSource satisfies am.HeapKeySource from a plain key listing, the
// operator CLI's stand-in for a live heap relation.
type fileHeapSource struct {
	keys map[string]bool
}

func loadHeapSource(path string) (*fileHeapSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening heap keys: %w", err)
	}
	defer f.Close()

	src := &fileHeapSource{keys: make(map[string]bool)}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key := strings.TrimSpace(scanner.Text())
		if key != "" {
			src.keys[key] = true
		}
	}
	return src, scanner.Err()
}

func (s *fileHeapSource) Contains(key string) bool { return s.keys[key] }

func (s *fileHeapSource) Keys() ([]string, error) {
	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	return out, nil
}

type verifyJSONReport struct {
	Passed           bool     `json:"passed"`
	SegmentsChecked  int      `json:"segments_checked"`
	DocsChecked      int      `json:"docs_checked"`
	DocsSampledOut   int      `json:"docs_sampled_out"`
	MissingFromHeap  []string `json:"missing_from_heap,omitempty"`
	MissingFromIndex []string `json:"missing_from_index,omitempty"`
}

func runVerify(cmd *cobra.Command, heapKeysPath string, heapAllIndexed bool, sampleRate float64, rawSegmentIDs []string) error {
	idx, err := openIndex()
	if err != nil {
		return err
	}
	defer idx.Close()

	heap, err := loadHeapSource(heapKeysPath)
	if err != nil {
		return err
	}

	ids, err := parseSegmentIDs(rawSegmentIDs)
	if err != nil {
		return err
	}

	report, err := idx.Verify(am.VerifyOptions{
		HeapAllIndexed: heapAllIndexed,
		SampleRate:     sampleRate,
		SegmentIDs:     ids,
	}, heap)
	if err != nil {
		return err
	}

	jsonReport := verifyJSONReport{
		Passed:           report.OK(),
		SegmentsChecked:  report.SegmentsChecked,
		DocsChecked:      report.DocsChecked,
		DocsSampledOut:   report.DocsSampledOut,
		MissingFromHeap:  report.MissingFromHeap,
		MissingFromIndex: report.MissingFromIndex,
	}

	rend := renderer(cmd)
	rows := []ui.Row{
		{Label: "result", Value: rend.Status(jsonReport.Passed, "passed", "FAILED")},
		{Label: "segments_checked", Value: formatCount(jsonReport.SegmentsChecked)},
		{Label: "docs_checked", Value: formatCount(jsonReport.DocsChecked)},
		{Label: "docs_sampled_out", Value: formatCount(jsonReport.DocsSampledOut)},
	}
	if n := len(jsonReport.MissingFromHeap); n > 0 {
		rows = append(rows, ui.Row{Label: "missing_from_heap", Value: formatCount(n)})
	}
	if n := len(jsonReport.MissingFromIndex); n > 0 {
		rows = append(rows, ui.Row{Label: "missing_from_index", Value: formatCount(n)})
	}

	r := ui.Report{Title: "Verify index", Sections: []ui.Section{{Rows: rows}}, JSON: jsonReport}
	if jsonOutput {
		if err := rend.RenderJSON(r); err != nil {
			return err
		}
	} else if err := rend.Render(r); err != nil {
		return err
	}
	if !jsonReport.Passed {
		cmd.SilenceErrors = true
		return errExit
	}
	return nil
}

func parseSegmentIDs(raw []string) ([]catalog.SegmentID, error) {
	ids := make([]catalog.SegmentID, 0, len(raw))
	for _, s := range raw {
		u, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("invalid segment id %q: %w", s, err)
		}
		var id catalog.SegmentID
		copy(id[:], u[:])
		ids = append(ids, id)
	}
	return ids, nil
}
