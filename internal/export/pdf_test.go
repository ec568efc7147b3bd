package export

import (
	"fmt"
	"strings"
	"testing"

	"github.com/JonMunkholm/docredact/internal/content"
	"github.com/JonMunkholm/docredact/internal/handler"
)

// readPDF extracts the text of a rendered PDF, grouped by page.
func readPDF(t *testing.T, raw []byte) map[int][]string {
	t.Helper()
	m, err := handler.NewPaginatedDocument().Extract(raw)
	if err != nil {
		t.Fatalf("reading rendered PDF failed: %v", err)
	}
	pages := make(map[int][]string, len(m.PartNames))
	for p := range m.PartNames {
		pages[p] = nil
	}
	for _, u := range m.Units {
		pages[u.Location.Part] = append(pages[u.Location.Part], u.Text)
	}
	return pages
}

func TestRenderPDF_Overflow(t *testing.T) {
	m := content.NewModel("doc-1", "notes.txt", content.FormatText, nil)
	for i := 0; i < linesPerPage+5; i++ {
		m.Add(content.Location{Block: i}, fmt.Sprintf("line %d", i))
	}

	out, err := renderPDF(m)
	if err != nil {
		t.Fatalf("renderPDF failed: %v", err)
	}
	pages := readPDF(t, out)
	if len(pages) != 2 {
		t.Fatalf("expected overflow onto 2 pages, got %d", len(pages))
	}
	// The heading takes the first line of the first page.
	if got := len(pages[0]); got != linesPerPage {
		t.Errorf("expected %d lines on page 1, got %d", linesPerPage, got)
	}
	if got := pages[1][len(pages[1])-1]; got != fmt.Sprintf("line %d", linesPerPage+4) {
		t.Errorf("expected last line to end page 2, got %q", got)
	}
}

func TestRenderPDF_Empty(t *testing.T) {
	out, err := renderPDF(content.NewModel("doc-1", "empty.txt", content.FormatText, nil))
	if err != nil {
		t.Fatalf("renderPDF failed: %v", err)
	}
	if pages := readPDF(t, out); len(pages) != 1 || len(pages[0]) != 0 {
		t.Errorf("expected one blank page, got %v", pages)
	}
}

func TestWinAnsi(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Jane Doe", "Jane Doe"},
		{"café € ’", "café € ’"},
		{"名前 [PERSON]", "?? [PERSON]"},
	}
	for _, tt := range tests {
		if got := winAnsi(tt.in); got != tt.want {
			t.Errorf("winAnsi(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWrapLine(t *testing.T) {
	long := strings.Repeat("word ", 30)
	got := wrapLine(long, 20)
	for _, l := range got {
		if len([]rune(l)) > 20 {
			t.Errorf("line too long: %q", l)
		}
	}
	if n := len(strings.Fields(strings.Join(got, " "))); n != 30 {
		t.Errorf("wrapping lost text: %q", got)
	}

	if got := wrapLine("a\nb", 20); len(got) != 2 {
		t.Errorf("expected newline split, got %q", got)
	}
}
