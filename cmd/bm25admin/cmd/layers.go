package cmd

import (
	"github.com/spf13/cobra"

	"github.com/paradex-labs/bm25index/internal/ui"
)

func newLayersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "layers",
		Short: "Report configured foreground, background and combined layer sizes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLayers(cmd)
		},
	}
}

type layersReport struct {
	LayerSizes           []int64 `json:"layer_sizes"`
	BackgroundLayerSizes []int64 `json:"background_layer_sizes"`
	CombinedLayerSizes   []int64 `json:"combined_layer_sizes"`
}

func runLayers(cmd *cobra.Command) error {
	idx, err := openIndex()
	if err != nil {
		return err
	}
	defer idx.Close()

	report := layersReport{
		LayerSizes:           idx.Options.LayerSizes,
		BackgroundLayerSizes: idx.Options.BackgroundLayerSizes,
		CombinedLayerSizes:   combineLayerSizes(idx.Options.LayerSizes, idx.Options.BackgroundLayerSizes),
	}

	rend := renderer(cmd)
	r := ui.Report{
		Title: "Layer sizes",
		Sections: []ui.Section{{
			Rows: []ui.Row{
				{Label: "layer_sizes", Value: formatInt64s(report.LayerSizes)},
				{Label: "background_layer_sizes", Value: formatInt64s(report.BackgroundLayerSizes)},
				{Label: "combined_layer_sizes", Value: formatInt64s(report.CombinedLayerSizes)},
			},
		}},
		JSON: report,
	}
	if jsonOutput {
		return rend.RenderJSON(r)
	}
	return rend.Render(r)
}

// combineLayerSizes merges the foreground and background threshold
// vectors into one sorted, deduplicated vector — the view the merger
// effectively operates under when both policies are active.
func combineLayerSizes(fg, bg []int64) []int64 {
	seen := make(map[int64]bool, len(fg)+len(bg))
	var out []int64
	for _, v := range append(append([]int64(nil), fg...), bg...) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
