package handler

import (
	"bytes"
	"fmt"
	"time"

	"github.com/JonMunkholm/docredact/internal/content"
	"github.com/tealeg/xlsx/v3"
)

// Canonical layouts for date cells. The time of day is only written when
// it is not midnight.
const (
	CellDateLayout     = "2006-01-02"
	CellDateTimeLayout = "2006-01-02 15:04:05"
)

// TabularHandler handles xlsx workbooks. Every non-empty value cell is one
// unit located at (sheet, row, column). Numbers keep their stored raw value,
// dates use CellDateLayout, booleans are TRUE/FALSE. Formula cells are left
// alone.
type TabularHandler struct {
	matcher
}

// NewTabular returns the spreadsheet handler.
func NewTabular() *TabularHandler {
	return &TabularHandler{
		matcher: matcher{
			format:     content.FormatXLSX,
			extensions: []string{".xlsx", ".xlsm"},
			mimeTypes: []string{
				"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
				"application/vnd.ms-excel.sheet.macroenabled.12",
			},
		},
	}
}

func (h *TabularHandler) Extract(raw []byte) (*content.Model, error) {
	wb, err := xlsx.OpenBinary(raw)
	if err != nil {
		return nil, parseErr(h.format, err)
	}

	m := content.NewModel("", "", h.format, raw)
	m.PartNames = make(map[int]string, len(wb.Sheets))
	err = visitCells(wb, func(loc content.Location, text string, _ *xlsx.Cell) {
		m.Add(loc, text)
	})
	if err != nil {
		return nil, parseErr(h.format, err)
	}
	for i, sheet := range wb.Sheets {
		m.PartNames[i] = sheet.Name
	}
	return m, nil
}

func (h *TabularHandler) Serialize(m *content.Model) ([]byte, error) {
	wb, err := xlsx.OpenBinary(m.Source)
	if err != nil {
		return nil, serializeErr(h.format, err)
	}

	current := make(map[content.Location]string)
	if err := visitCells(wb, func(loc content.Location, text string, _ *xlsx.Cell) {
		current[loc] = text
	}); err != nil {
		return nil, serializeErr(h.format, err)
	}

	for _, u := range m.Units {
		loc := u.Location
		orig, ok := current[loc]
		if !ok {
			return nil, serializeErr(h.format, fmt.Errorf("no cell at %s", loc))
		}
		if orig == u.Text {
			continue
		}
		sheet := wb.Sheets[loc.Part]
		if loc.Block >= sheet.MaxRow || loc.Index >= sheet.MaxCol {
			return nil, serializeErr(h.format, fmt.Errorf("cell %s outside sheet %q", loc, sheet.Name))
		}
		cell, err := sheet.Cell(loc.Block, loc.Index)
		if err != nil {
			return nil, serializeErr(h.format, fmt.Errorf("cell %s: %w", loc, err))
		}
		cell.SetString(u.Text)
	}

	var buf bytes.Buffer
	if err := wb.Write(&buf); err != nil {
		return nil, serializeErr(h.format, err)
	}
	return buf.Bytes(), nil
}

// visitCells calls fn for every non-empty value cell in sheet, row, column order.
func visitCells(wb *xlsx.File, fn func(loc content.Location, text string, c *xlsx.Cell)) error {
	for si, sheet := range wb.Sheets {
		err := sheet.ForEachRow(func(r *xlsx.Row) error {
			return r.ForEachCell(func(c *xlsx.Cell) error {
				if c.Formula() != "" || c.Type() == xlsx.CellTypeError {
					return nil
				}
				text := cellText(c, wb.Date1904)
				if text == "" {
					return nil
				}
				col, row := c.GetCoordinates()
				fn(content.Location{Part: si, Block: row, Index: col}, text, c)
				return nil
			}, xlsx.SkipEmptyCells)
		}, xlsx.SkipEmptyRows)
		if err != nil {
			return fmt.Errorf("sheet %q: %w", sheet.Name, err)
		}
	}
	return nil
}

// cellText renders a cell in its canonical string form.
func cellText(c *xlsx.Cell, date1904 bool) string {
	switch c.Type() {
	case xlsx.CellTypeBool:
		if c.Bool() {
			return "TRUE"
		}
		return "FALSE"
	case xlsx.CellTypeNumeric, xlsx.CellTypeDate:
		if c.IsTime() {
			if t, err := c.GetTime(date1904); err == nil {
				return formatCellTime(t)
			}
		}
	}
	return c.Value
}

func formatCellTime(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format(CellDateLayout)
	}
	return t.Format(CellDateTimeLayout)
}
