package handler

import (
	"bytes"
	"testing"
	"time"

	"github.com/JonMunkholm/docredact/internal/content"
	"github.com/JonMunkholm/docredact/internal/core"
	"github.com/tealeg/xlsx/v3"
)

// buildWorkbook writes a two-sheet workbook with string, integer, date,
// datetime, float and boolean cells.
func buildWorkbook(t *testing.T) []byte {
	t.Helper()

	f := xlsx.NewFile()
	people, err := f.AddSheet("People")
	if err != nil {
		t.Fatalf("AddSheet failed: %v", err)
	}
	header := people.AddRow()
	header.AddCell().SetString("Name")
	header.AddCell().SetString("Employer")
	header.AddCell().SetString("Age")

	row := people.AddRow()
	row.AddCell().SetString("Jane Doe")
	row.AddCell().SetString("Acme Corp")
	row.AddCell().SetInt(42)

	typed := people.AddRow()
	typed.AddCell().SetString("Jane Doe")
	typed.AddCell().SetDate(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	typed.AddCell().SetDateTime(time.Date(2024, 1, 15, 13, 30, 0, 0, time.UTC))
	typed.AddCell().SetFloat(3.14159)
	typed.AddCell().SetBool(true)

	notes, err := f.AddSheet("Notes")
	if err != nil {
		t.Fatalf("AddSheet failed: %v", err)
	}
	notes.AddRow().AddCell().SetString("Call Jane Doe at Acme Corp")

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	return buf.Bytes()
}

func TestTabular_Extract(t *testing.T) {
	m := assertRoundTrip(t, NewTabular(), buildWorkbook(t))

	want := map[content.Location]string{
		{Part: 0, Block: 0, Index: 0}: "Name",
		{Part: 0, Block: 0, Index: 1}: "Employer",
		{Part: 0, Block: 0, Index: 2}: "Age",
		{Part: 0, Block: 1, Index: 0}: "Jane Doe",
		{Part: 0, Block: 1, Index: 1}: "Acme Corp",
		{Part: 0, Block: 1, Index: 2}: "42",
		{Part: 0, Block: 2, Index: 0}: "Jane Doe",
		{Part: 0, Block: 2, Index: 1}: "2024-01-15",
		{Part: 0, Block: 2, Index: 2}: "2024-01-15 13:30:00",
		{Part: 0, Block: 2, Index: 3}: "3.14159",
		{Part: 0, Block: 2, Index: 4}: "TRUE",
		{Part: 1, Block: 0, Index: 0}: "Call Jane Doe at Acme Corp",
	}
	if m.Len() != len(want) {
		t.Fatalf("expected %d units, got %d: %+v", len(want), m.Len(), m.Units)
	}
	for loc, text := range want {
		if got, ok := m.Text(loc); !ok || got != text {
			t.Errorf("at %s expected %q, got %q", loc, text, got)
		}
	}
	if m.PartNames[0] != "People" || m.PartNames[1] != "Notes" {
		t.Errorf("unexpected part names: %v", m.PartNames)
	}
}

func TestTabular_SerializeRedacted(t *testing.T) {
	h := NewTabular()
	m, err := h.Extract(buildWorkbook(t))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	out, err := h.Serialize(substitute(m, content.EntityMap{"Jane Doe": "[PERSON]", "Acme Corp": "[ORG]"}))
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	again, err := h.Extract(out)
	if err != nil {
		t.Fatalf("Extract after Serialize failed: %v", err)
	}
	checks := map[content.Location]string{
		{Part: 0, Block: 1, Index: 0}: "[PERSON]",
		{Part: 0, Block: 1, Index: 1}: "[ORG]",
		{Part: 0, Block: 1, Index: 2}: "42",
		{Part: 0, Block: 2, Index: 0}: "[PERSON]",
		{Part: 0, Block: 2, Index: 1}: "2024-01-15",
		{Part: 0, Block: 2, Index: 2}: "2024-01-15 13:30:00",
		{Part: 0, Block: 2, Index: 3}: "3.14159",
		{Part: 0, Block: 2, Index: 4}: "TRUE",
		{Part: 1, Block: 0, Index: 0}: "Call [PERSON] at [ORG]",
	}
	for loc, text := range checks {
		if got, _ := again.Text(loc); got != text {
			t.Errorf("at %s expected %q, got %q", loc, text, got)
		}
	}
}

func TestTabular_CorruptInput(t *testing.T) {
	if _, err := NewTabular().Extract([]byte("not a zip archive")); !core.IsParse(err) {
		t.Errorf("expected ParseError, got %v", err)
	}
}

func TestTabular_SerializeUnknownLocation(t *testing.T) {
	h := NewTabular()
	m, err := h.Extract(buildWorkbook(t))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	m.Add(content.Location{Part: 0, Block: 50, Index: 50}, "ghost")

	if _, err := h.Serialize(m); !core.IsSerialization(err) {
		t.Errorf("expected SerializationError, got %v", err)
	}
}

func TestTabular_TypedCellsKeepTheirType(t *testing.T) {
	h := NewTabular()
	m, err := h.Extract(buildWorkbook(t))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	out, err := h.Serialize(substitute(m, content.EntityMap{"Jane Doe": "[PERSON]"}))
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	wb, err := xlsx.OpenBinary(out)
	if err != nil {
		t.Fatalf("OpenBinary failed: %v", err)
	}
	sheet := wb.Sheets[0]

	tests := []struct {
		col  int
		want xlsx.CellType
		time bool
	}{
		{1, xlsx.CellTypeNumeric, true},
		{2, xlsx.CellTypeNumeric, true},
		{3, xlsx.CellTypeNumeric, false},
		{4, xlsx.CellTypeBool, false},
	}
	for _, tt := range tests {
		c, err := sheet.Cell(2, tt.col)
		if err != nil {
			t.Fatalf("Cell(2, %d) failed: %v", tt.col, err)
		}
		if c.Type() != tt.want || c.IsTime() != tt.time {
			t.Errorf("column %d: expected type %v (time=%v), got %v (time=%v)", tt.col, tt.want, tt.time, c.Type(), c.IsTime())
		}
	}
}
