package handler

import "testing"

func TestScanTextShows(t *testing.T) {
	stream := []byte(`BT
/F1 12 Tf 72 712 Td
(Hello \(Jane\) Doe) Tj
% a comment with (parens)
[(Ac) -20 (me) 5 (Corp)] TJ
<48692021> Tj
0 0 Td 1 2 (quoted) "
/Span <</MCID 3 /Alt (ignored)>> BDC
(tagged) ' EMC
ET`)

	shows, err := scanTextShows(stream, nil)
	if err != nil {
		t.Fatalf("scanTextShows failed: %v", err)
	}

	want := []struct {
		raw   string
		op    string
		array bool
	}{
		{"Hello (Jane) Doe", "Tj", false},
		{"AcmeCorp", "TJ", true},
		{"Hi !", "Tj", false},
		{"quoted", `"`, false},
		{"tagged", "'", false},
	}
	if len(shows) != len(want) {
		t.Fatalf("expected %d shows, got %d: %+v", len(want), len(shows), shows)
	}
	for i, w := range want {
		s := shows[i]
		if string(s.raw) != w.raw || s.op != w.op || s.array != w.array {
			t.Errorf("show %d: expected %q %s (array=%v), got %q %s (array=%v)", i, w.raw, w.op, w.array, s.raw, s.op, s.array)
		}
		if s.font != "F1" || s.size != "12" {
			t.Errorf("show %d: expected font F1 12, got %s %s", i, s.font, s.size)
		}
	}
}

func TestScanTextShows_FontState(t *testing.T) {
	stream := []byte(`BT /F0 12.00 Tf ET
BT (a) Tj ET
q BT /F2 9 Tf (b) Tj ET Q
BT (c) Tj /F3 7 Tf (d) Tj ET`)

	st := &textState{}
	shows, err := scanTextShows(stream, st)
	if err != nil {
		t.Fatalf("scanTextShows failed: %v", err)
	}

	want := []struct{ raw, font, size string }{
		{"a", "F0", "12.00"},
		{"b", "F2", "9"},
		{"c", "F0", "12.00"},
		{"d", "F3", "7"},
	}
	if len(shows) != len(want) {
		t.Fatalf("expected %d shows, got %d", len(want), len(shows))
	}
	for i, w := range want {
		if string(shows[i].raw) != w.raw || shows[i].font != w.font || shows[i].size != w.size {
			t.Errorf("show %d: expected %s in %s %s, got %s in %s %s", i, w.raw, w.font, w.size, shows[i].raw, shows[i].font, shows[i].size)
		}
	}

	// State carries over into the next content stream of the same page.
	next, err := scanTextShows([]byte("BT (e) Tj ET"), st)
	if err != nil {
		t.Fatalf("scanTextShows failed: %v", err)
	}
	if len(next) != 1 || next[0].font != "F3" {
		t.Errorf("expected font F3 to carry over, got %+v", next)
	}
}

func TestScanTextShows_InlineImage(t *testing.T) {
	stream := []byte("BI /W 2 /H 2 /BPC 8 /CS /G ID \x00)(\xff\x10 EI\nBT (after) Tj ET")

	shows, err := scanTextShows(stream, nil)
	if err != nil {
		t.Fatalf("scanTextShows failed: %v", err)
	}
	if len(shows) != 1 || string(shows[0].raw) != "after" {
		t.Errorf("expected the text after the image, got %+v", shows)
	}
}

func TestScanTextShows_Unterminated(t *testing.T) {
	if _, err := scanTextShows([]byte("BT (never closed Tj ET"), nil); err == nil {
		t.Error("expected error for unterminated string")
	}
}

func TestApplyEdits(t *testing.T) {
	stream := []byte("BT (Jane Doe) Tj [(Ac) -20 (me)] TJ (keep) Tj ET")
	shows, err := scanTextShows(stream, nil)
	if err != nil {
		t.Fatalf("scanTextShows failed: %v", err)
	}

	// Out of order on purpose.
	edits := []streamEdit{
		shows[1].operandEdit(encodePDFLiteral([]byte("(ORG)"))),
		shows[0].operandEdit(encodePDFLiteral([]byte("[PERSON]"))),
	}
	out := applyEdits(stream, edits)
	want := `BT ([PERSON]) Tj [(\(ORG\))] TJ (keep) Tj ET`
	if string(out) != want {
		t.Errorf("expected %q, got %q", want, out)
	}
}

func TestFallbackEdit(t *testing.T) {
	tests := []struct {
		name   string
		stream string
		want   string
	}{
		{
			name:   "Tj",
			stream: "BT /F1 11 Tf <0041> Tj ET",
			want:   "BT /F1 11 Tf /FRd0 11 Tf (X) Tj /F1 11 Tf ET",
		},
		{
			name:   "quote",
			stream: "BT /F1 11 Tf <0041> ' ET",
			want:   "BT /F1 11 Tf T* /FRd0 11 Tf (X) Tj /F1 11 Tf ET",
		},
		{
			name:   "double quote",
			stream: `BT /F1 11 Tf 2 0.5 <0041> " ET`,
			want:   "BT /F1 11 Tf 2 Tw 0.5 Tc T* /FRd0 11 Tf (X) Tj /F1 11 Tf ET",
		},
		{
			name:   "no font selected",
			stream: "BT <0041> Tj ET",
			want:   "BT /FRd0 12 Tf (X) Tj ET",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shows, err := scanTextShows([]byte(tt.stream), nil)
			if err != nil {
				t.Fatalf("scanTextShows failed: %v", err)
			}
			if len(shows) != 1 {
				t.Fatalf("expected 1 show, got %d", len(shows))
			}
			out := applyEdits([]byte(tt.stream), []streamEdit{shows[0].fallbackEdit("FRd0", encodePDFLiteral([]byte("X")))})
			if string(out) != tt.want {
				t.Errorf("expected %q, got %q", tt.want, out)
			}
		})
	}
}

func TestEncodePDFLiteral(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "(plain)"},
		{`a\b`, `(a\\b)`},
		{"line\nbreak", `(line\nbreak)`},
		{"(x)", `(\(x\))`},
	}
	for _, tt := range tests {
		if got := string(encodePDFLiteral([]byte(tt.in))); got != tt.want {
			t.Errorf("encodePDFLiteral(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEncodePDFHex(t *testing.T) {
	if got := string(encodePDFHex([]byte{0x00, 0x4a, 0xff})); got != "<004aff>" {
		t.Errorf("expected <004aff>, got %s", got)
	}
}
