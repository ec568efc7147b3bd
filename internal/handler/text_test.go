package handler

import (
	"testing"

	"github.com/JonMunkholm/docredact/internal/content"
	"github.com/JonMunkholm/docredact/internal/core"
)

func TestPlainText_ExtractAndSerialize(t *testing.T) {
	h := NewPlainText()
	raw := []byte("Jane Doe wrote this.\r\n\r\nAcme Corp replied.\nlast line")

	m := assertRoundTrip(t, h, raw)
	want := []string{"Jane Doe wrote this.", "Acme Corp replied.", "last line"}
	if got := unitTexts(m); !equalStrings(got, want) {
		t.Fatalf("expected %q, got %q", want, got)
	}

	out, err := h.Serialize(substitute(m, content.EntityMap{"Jane Doe": "[PERSON]", "Acme Corp": "[ORG]"}))
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	wantOut := "[PERSON] wrote this.\r\n\r\n[ORG] replied.\nlast line"
	if string(out) != wantOut {
		t.Errorf("expected %q, got %q", wantOut, out)
	}
}

func TestPlainText_Empty(t *testing.T) {
	m, err := NewPlainText().Extract([]byte("\n  \n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("expected zero units, got %d", m.Len())
	}
}

func TestPlainText_RejectsBinary(t *testing.T) {
	tests := map[string][]byte{
		"nul bytes":   []byte("PK\x03\x04\x00\x00"),
		"invalid utf": {0xff, 0xfe, 'a'},
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewPlainText().Extract(raw)
			if !core.IsParse(err) {
				t.Errorf("expected ParseError, got %v", err)
			}
		})
	}
}

func TestPlainText_SerializeUnknownLocation(t *testing.T) {
	h := NewPlainText()
	m, err := h.Extract([]byte("one\ntwo"))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	m.Add(content.Location{Block: 7}, "ghost")

	if _, err := h.Serialize(m); !core.IsSerialization(err) {
		t.Errorf("expected SerializationError, got %v", err)
	}
}

func TestMarkdown_SyntaxStaysOutsideUnits(t *testing.T) {
	h := NewMarkdown()
	raw := []byte(`# Report for Acme

> Quote from Acme
- [ ] call Acme
1. Acme first
` + "```go" + `
fmt.Println("Acme")
` + "```" + `
Plain Acme line
`)

	m := assertRoundTrip(t, h, raw)
	want := []string{"Report for Acme", "Quote from Acme", "call Acme", "Acme first", "Plain Acme line"}
	if got := unitTexts(m); !equalStrings(got, want) {
		t.Fatalf("expected %q, got %q", want, got)
	}

	out, err := h.Serialize(substitute(m, content.EntityMap{"Acme": "[ORG]"}))
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	wantOut := `# Report for [ORG]

> Quote from [ORG]
- [ ] call [ORG]
1. [ORG] first
` + "```go" + `
fmt.Println("Acme")
` + "```" + `
Plain [ORG] line
`
	if string(out) != wantOut {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestMarkdownPrefix(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"## Title", "## "},
		{"#hashtag", ""},
		{"> > nested", "> > "},
		{"* item", "* "},
		{"**bold**", ""},
		{"12) step", "12) "},
		{"- [x] done", "- [x] "},
		{"   # indented", "   # "},
		{"plain", ""},
	}
	for _, tt := range tests {
		if got := tt.line[:markdownPrefix(tt.line)]; got != tt.want {
			t.Errorf("markdownPrefix(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}
