// Package export renders content models into output formats that differ
// from the source format.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/JonMunkholm/docredact/internal/content"
	"github.com/JonMunkholm/docredact/internal/core"
	"github.com/tealeg/xlsx/v3"
)

type renderFunc func(m *content.Model) ([]byte, error)

// target describes one export format.
type target struct {
	render      renderFunc
	contentType string
	extension   string
}

// Exporter converts content models into target formats. Text targets put
// one unit per line; tabular targets write one row per part (sheet, slide or
// page); the pdf target starts a new page per part.
type Exporter struct {
	targets map[content.Format]target
}

// New returns an exporter offering every built-in target.
func New() *Exporter {
	return &Exporter{
		targets: map[content.Format]target{
			content.FormatText:     {render: renderText, contentType: "text/plain; charset=utf-8", extension: ".txt"},
			content.FormatMarkdown: {render: renderMarkdown, contentType: "text/markdown; charset=utf-8", extension: ".md"},
			content.FormatCSV:      {render: renderCSV, contentType: "text/csv; charset=utf-8", extension: ".csv"},
			content.FormatXLSX:     {render: renderXLSX, contentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", extension: ".xlsx"},
			content.FormatJSON:     {render: renderJSON, contentType: "application/json", extension: ".json"},
			content.FormatPDF:      {render: renderPDF, contentType: "application/pdf", extension: ".pdf"},
		},
	}
}

// Targets returns the supported target formats in sorted order.
func (e *Exporter) Targets() []content.Format {
	out := make([]content.Format, 0, len(e.targets))
	for f := range e.targets {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Supports reports whether target is offered.
func (e *Exporter) Supports(target content.Format) bool {
	_, ok := e.targets[target]
	return ok
}

// Export renders m as target. An unsupported target is a ValidationError
// wrapping core.ErrUnsupportedTarget.
func (e *Exporter) Export(m *content.Model, target content.Format) ([]byte, error) {
	t, ok := e.targets[target]
	if !ok {
		return nil, core.NewValidationError("target", fmt.Errorf("%w: %q", core.ErrUnsupportedTarget, target))
	}
	out, err := t.render(m)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", target, err)
	}
	return out, nil
}

// ContentType returns the MIME type for target, or "" if unsupported.
func (e *Exporter) ContentType(target content.Format) string {
	return e.targets[target].contentType
}

// Filename derives the exported file name from the source name.
func (e *Exporter) Filename(source string, target content.Format) string {
	base := source
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	if base == "" {
		base = "export"
	}
	return base + e.targets[target].extension
}

// groupName labels a part for human-readable targets.
func groupName(g content.Group) string {
	if g.Name != "" {
		return g.Name
	}
	return fmt.Sprintf("Part %d", g.Part+1)
}

func renderText(m *content.Model) ([]byte, error) {
	var b bytes.Buffer
	for _, u := range m.Units {
		b.WriteString(u.Text)
		b.WriteByte('\n')
	}
	return b.Bytes(), nil
}

func renderMarkdown(m *content.Model) ([]byte, error) {
	var b bytes.Buffer
	for i, g := range m.Groups() {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "## %s\n\n", groupName(g))
		for _, u := range g.Units {
			b.WriteString(u.Text)
			b.WriteByte('\n')
		}
	}
	return b.Bytes(), nil
}

// groupRows turns each part into one row: its name followed by its unit texts.
func groupRows(m *content.Model) [][]string {
	groups := m.Groups()
	rows := make([][]string, len(groups))
	for i, g := range groups {
		row := make([]string, 0, len(g.Units)+1)
		row = append(row, groupName(g))
		for _, u := range g.Units {
			row = append(row, u.Text)
		}
		rows[i] = row
	}
	return rows
}

func renderCSV(m *content.Model) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(groupRows(m)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderXLSX(m *content.Model) ([]byte, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Export")
	if err != nil {
		return nil, err
	}
	for _, rec := range groupRows(m) {
		row := sheet.AddRow()
		for _, v := range rec {
			row.AddCell().SetString(v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type jsonExport struct {
	DocumentID   string         `json:"document_id,omitempty"`
	Filename     string         `json:"filename,omitempty"`
	SourceFormat content.Format `json:"source_format"`
	Parts        []jsonPart     `json:"parts"`
}

type jsonPart struct {
	Part  int            `json:"part"`
	Name  string         `json:"name"`
	Units []content.Unit `json:"units"`
}

func renderJSON(m *content.Model) ([]byte, error) {
	out := jsonExport{
		DocumentID:   m.DocumentID,
		Filename:     m.Filename,
		SourceFormat: m.SourceFormat,
		Parts:        []jsonPart{},
	}
	for _, g := range m.Groups() {
		out.Parts = append(out.Parts, jsonPart{Part: g.Part, Name: groupName(g), Units: g.Units})
	}
	return json.MarshalIndent(out, "", "  ")
}
