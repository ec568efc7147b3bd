package handler

import (
	"testing"

	"github.com/JonMunkholm/docredact/internal/content"
	"github.com/JonMunkholm/docredact/internal/core"
)

// assertRoundTrip checks that serializing an untouched model and extracting
// again yields the same location/text pairs.
func assertRoundTrip(t *testing.T, h core.Handler, raw []byte) *content.Model {
	t.Helper()

	m, err := h.Extract(raw)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	out, err := h.Serialize(m.Clone())
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	again, err := h.Extract(out)
	if err != nil {
		t.Fatalf("Extract after Serialize failed: %v", err)
	}
	if !content.Equal(m, again) {
		t.Errorf("round trip changed content:\nbefore: %+v\nafter:  %+v", m.Units, again.Units)
	}
	return m
}

// substitute applies entities to a model's units the same way the engine does.
func substitute(m *content.Model, entities content.EntityMap) *content.Model {
	work := m.Clone()
	core.NewSubstituter(entities).ApplyModel(work)
	return work
}

func unitTexts(m *content.Model) []string {
	out := make([]string, len(m.Units))
	for i, u := range m.Units {
		out[i] = u.Text
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCanHandle(t *testing.T) {
	tests := []struct {
		h            core.Handler
		filename     string
		declaredType string
		want         bool
	}{
		{NewPlainText(), "notes.TXT", "", true},
		{NewPlainText(), "upload", "text/plain; charset=utf-8", true},
		{NewMarkdown(), "README.md", "", true},
		{NewMarkdown(), "notes.txt", "", false},
		{NewDelimited(), "data.csv", "", true},
		{NewDelimited(), "data", "text/csv", true},
		{NewTabular(), "book.xlsx", "", true},
		{NewTabular(), "book.xls", "", false},
		{NewSlideDeck(), "deck.pptx", "", true},
		{NewPaginatedDocument(), "scan.pdf", "", true},
		{NewPaginatedDocument(), "blob", "application/pdf", true},
		{NewPaginatedDocument(), "archive.zip", "application/zip", false},
	}

	for _, tt := range tests {
		if got := tt.h.CanHandle(tt.filename, tt.declaredType); got != tt.want {
			t.Errorf("%s.CanHandle(%q, %q) = %v, want %v", tt.h.Format(), tt.filename, tt.declaredType, got, tt.want)
		}
	}
}

func TestRegisterAll(t *testing.T) {
	reg := core.NewRegistry()
	RegisterAll(reg)

	want := []content.Format{
		content.FormatCSV,
		content.FormatMarkdown,
		content.FormatPDF,
		content.FormatPPTX,
		content.FormatText,
		content.FormatXLSX,
	}
	got := reg.Formats()
	if len(got) != len(want) {
		t.Fatalf("expected %d formats, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	h, err := reg.Resolve("notes.md", "text/plain")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if h.Format() != content.FormatMarkdown {
		t.Errorf("expected markdown extension to win over text/plain, got %s", h.Format())
	}

	if _, err := reg.Resolve("bundle.zip", ""); !core.IsNotFound(err) {
		t.Errorf("expected NotFoundError for zip, got %v", err)
	}
}
