package ui

import (
	"encoding/json"
	"fmt"
	"io"
)

// Row is one label/value line within a Section.
type Row struct {
	Label string
	Value string
}

// Section groups related rows under an optional heading, mirroring the
// "Storage:"/"Embedder:" groupings of a status report.
type Section struct {
	Heading string
	Rows    []Row
}

// Report is the generic shape every bm25admin subcommand renders: a
// title, a handful of sections, and (for JSON mode) the raw structured
// value the human-readable form was derived from.
type Report struct {
	Title    string
	Sections []Section
	JSON     any
}

// Renderer prints a Report either as a styled plain-text listing or as
// indented JSON, selected once per command invocation by --json.
type Renderer struct {
	out     io.Writer
	styles  Styles
	noColor bool
}

// NewRenderer builds a Renderer for out, with noColor forcing the
// unstyled palette regardless of terminal detection.
func NewRenderer(out io.Writer, noColor bool) *Renderer {
	return &Renderer{out: out, styles: GetStyles(noColor), noColor: noColor}
}

// Render prints r as styled plain text.
func (rd *Renderer) Render(r Report) error {
	fmt.Fprintf(rd.out, "%s\n\n", rd.styles.Header.Render(r.Title))
	for _, sec := range r.Sections {
		if sec.Heading != "" {
			fmt.Fprintf(rd.out, "  %s\n", rd.styles.Label.Render(sec.Heading+":"))
		}
		for _, row := range sec.Rows {
			fmt.Fprintf(rd.out, "    %-20s %s\n", row.Label+":", row.Value)
		}
		fmt.Fprintln(rd.out)
	}
	return nil
}

// RenderJSON prints r.JSON as indented JSON, ignoring the text sections.
func (rd *Renderer) RenderJSON(r Report) error {
	enc := json.NewEncoder(rd.out)
	enc.SetIndent("", "  ")
	return enc.Encode(r.JSON)
}

// Status renders an ok/fail colored word, matching a report's pass/fail
// or visible/invisible fields.
func (rd *Renderer) Status(ok bool, okWord, failWord string) string {
	if ok {
		return rd.styles.Success.Render(okWord)
	}
	return rd.styles.Error.Render(failWord)
}
