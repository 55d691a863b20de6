package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/paradex-labs/bm25index/internal/ui"
)

// errExit makes a failed check exit nonzero after its report has already
// been rendered.
var errExit = errors.New("check failed")

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-checksum",
		Short: "Verify every segment still opens and its metadata agrees with its files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd)
		},
	}
}

type validateReport struct {
	Passed bool   `json:"passed"`
	Error  string `json:"error,omitempty"`
}

func runValidate(cmd *cobra.Command) error {
	idx, err := openIndex()
	if err != nil {
		return err
	}
	defer idx.Close()

	report := validateReport{Passed: true}
	if verr := idx.Validate(); verr != nil {
		report.Passed = false
		report.Error = verr.Error()
	}

	rend := renderer(cmd)
	rows := []ui.Row{{Label: "checksum", Value: rend.Status(report.Passed, "passed", "FAILED")}}
	if report.Error != "" {
		rows = append(rows, ui.Row{Label: "error", Value: report.Error})
	}
	r := ui.Report{
		Title:    "Validate checksum",
		Sections: []ui.Section{{Rows: rows}},
		JSON:     report,
	}
	if jsonOutput {
		return rend.RenderJSON(r)
	}
	if err := rend.Render(r); err != nil {
		return err
	}
	if !report.Passed {
		cmd.SilenceErrors = true
		return errExit
	}
	return nil
}
