package handler

import (
	"bytes"
	"strings"
	"testing"

	"github.com/JonMunkholm/docredact/internal/content"
	"github.com/JonMunkholm/docredact/internal/core"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// testFont describes a font resource of a fixture page. A composite font
// uses Identity-H with toUnicode as its ToUnicode CMap, if any.
type testFont struct {
	composite bool
	toUnicode string
}

type testPage struct {
	fonts   map[string]testFont
	streams []string
}

// buildPDF writes a PDF whose pages carry the given fonts and content
// streams. shared fonts go on the page tree root and are inherited.
func buildPDF(t *testing.T, shared map[string]testFont, pages ...testPage) []byte {
	t.Helper()
	disableConfigDir.Do(api.DisableConfigDir)

	ctx, err := pdfcpu.CreateContextWithXRefTable(model.NewDefaultConfiguration(), types.PaperSize["A4"])
	if err != nil {
		t.Fatalf("create context: %v", err)
	}
	root, err := ctx.Catalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	pagesRef := root["Pages"].(types.IndirectRef)
	pagesDict, err := ctx.DereferenceDict(pagesRef)
	if err != nil {
		t.Fatalf("page tree: %v", err)
	}
	if len(shared) > 0 {
		pagesDict.Insert("Resources", types.Dict{"Font": fontResources(t, ctx, shared)})
	}

	kids := types.Array{}
	for _, p := range pages {
		pd := types.Dict{"Type": types.Name("Page"), "Parent": pagesRef}
		if len(p.fonts) > 0 {
			pd.Insert("Resources", types.Dict{"Font": fontResources(t, ctx, p.fonts)})
		}
		contents := types.Array{}
		for _, s := range p.streams {
			contents = append(contents, streamRef(t, ctx, []byte(s)))
		}
		pd.Insert("Contents", contents)
		kids = append(kids, newRef(t, ctx, pd))
	}
	pagesDict.Update("Kids", kids)
	pagesDict.Update("Count", types.Integer(len(pages)))
	ctx.PageCount = len(pages)

	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	return buf.Bytes()
}

func newRef(t *testing.T, ctx *model.Context, o types.Object) types.IndirectRef {
	t.Helper()
	ref, err := ctx.IndRefForNewObject(o)
	if err != nil {
		t.Fatalf("new object: %v", err)
	}
	return *ref
}

func streamRef(t *testing.T, ctx *model.Context, b []byte) types.IndirectRef {
	t.Helper()
	sd, err := ctx.NewStreamDictForBuf(b)
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	if err := sd.Encode(); err != nil {
		t.Fatalf("encode stream: %v", err)
	}
	return newRef(t, ctx, *sd)
}

func fontResources(t *testing.T, ctx *model.Context, fonts map[string]testFont) types.Dict {
	t.Helper()
	res := types.Dict{}
	for name, f := range fonts {
		if !f.composite {
			res[name] = newRef(t, ctx, types.Dict{
				"Type":     types.Name("Font"),
				"Subtype":  types.Name("Type1"),
				"BaseFont": types.Name("Helvetica"),
				"Encoding": types.Name("WinAnsiEncoding"),
			})
			continue
		}

		desc := newRef(t, ctx, types.Dict{
			"Type":        types.Name("FontDescriptor"),
			"FontName":    types.Name("TestSans"),
			"Flags":       types.Integer(4),
			"FontBBox":    types.Array{types.Integer(0), types.Integer(-200), types.Integer(1000), types.Integer(800)},
			"ItalicAngle": types.Integer(0),
			"Ascent":      types.Integer(800),
			"Descent":     types.Integer(-200),
			"StemV":       types.Integer(80),
		})
		cid := newRef(t, ctx, types.Dict{
			"Type":     types.Name("Font"),
			"Subtype":  types.Name("CIDFontType2"),
			"BaseFont": types.Name("TestSans"),
			"CIDSystemInfo": types.Dict{
				"Registry":   types.StringLiteral("Adobe"),
				"Ordering":   types.StringLiteral("Identity"),
				"Supplement": types.Integer(0),
			},
			"FontDescriptor": desc,
			"DW":             types.Integer(1000),
		})
		fd := types.Dict{
			"Type":            types.Name("Font"),
			"Subtype":         types.Name("Type0"),
			"BaseFont":        types.Name("TestSans"),
			"Encoding":        types.Name("Identity-H"),
			"DescendantFonts": types.Array{cid},
		}
		if f.toUnicode != "" {
			fd["ToUnicode"] = streamRef(t, ctx, []byte(f.toUnicode))
		}
		res[name] = newRef(t, ctx, fd)
	}
	return res
}

// fontNames lists the font resource names of a page.
func fontNames(t *testing.T, raw []byte, page int) []string {
	t.Helper()
	h := NewPaginatedDocument()
	ctx, err := h.open(raw)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, _, attrs, err := ctx.PageDict(page, false)
	if err != nil {
		t.Fatalf("page %d: %v", page, err)
	}
	fonts, err := pageFonts(ctx, attrs.Resources)
	if err != nil {
		t.Fatalf("page %d fonts: %v", page, err)
	}
	var names []string
	for name := range fonts {
		names = append(names, name)
	}
	return names
}

func hasFallbackFont(names []string) bool {
	for _, n := range names {
		if strings.HasPrefix(n, "FRd") {
			return true
		}
	}
	return false
}

func samplePDF(t *testing.T) []byte {
	return buildPDF(t,
		map[string]testFont{"F1": {}},
		testPage{
			fonts: map[string]testFont{"F1": {}},
			streams: []string{
				`BT /F1 12 Tf 72 770 Td (Statement for Jane Doe) Tj 0 -16 Td (Issued by Acme Corp \(London\)) Tj ET`,
			},
		},
		// Inherits its font and splits one text object across two streams.
		testPage{
			streams: []string{
				"BT /F1 12 Tf 72 770 Td",
				"(Page two mentions Jane Doe again) Tj ET",
			},
		},
	)
}

func TestPaginated_Extract(t *testing.T) {
	m := assertRoundTrip(t, NewPaginatedDocument(), samplePDF(t))

	want := []content.Unit{
		{Location: content.Location{Part: 0, Block: 0}, Text: "Statement for Jane Doe"},
		{Location: content.Location{Part: 0, Block: 1}, Text: "Issued by Acme Corp (London)"},
		{Location: content.Location{Part: 1, Block: 0}, Text: "Page two mentions Jane Doe again"},
	}
	if len(m.Units) != len(want) {
		t.Fatalf("expected %d units, got %d: %+v", len(want), len(m.Units), m.Units)
	}
	for i := range want {
		if m.Units[i] != want[i] {
			t.Errorf("unit %d: expected %+v, got %+v", i, want[i], m.Units[i])
		}
	}
}

func TestPaginated_SerializeRedacted(t *testing.T) {
	h := NewPaginatedDocument()
	m, err := h.Extract(samplePDF(t))
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

	want := []string{"Statement for [PERSON]", "Issued by [ORG] (London)", "Page two mentions [PERSON] again"}
	if got := unitTexts(again); !equalStrings(got, want) {
		t.Errorf("expected %q, got %q", want, got)
	}
	if hasFallbackFont(fontNames(t, out, 2)) {
		t.Error("expected WinAnsi text to stay in the page font")
	}
}

func TestPaginated_TwoByteFont(t *testing.T) {
	raw := buildPDF(t, nil, testPage{
		fonts:   map[string]testFont{"F1": {composite: true, toUnicode: identityCMap}},
		streams: []string{"BT /F1 11 Tf 50 700 Td <004A0061006E006500200044006F0065> Tj ET"},
	})

	h := NewPaginatedDocument()
	m, err := h.Extract(raw)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if got := unitTexts(m); !equalStrings(got, []string{"Jane Doe"}) {
		t.Fatalf("expected [Jane Doe], got %q", got)
	}

	tests := []struct {
		name         string
		replacement  string
		wantFallback bool
	}{
		{"glyphs in font", "Dean Joe", false},
		{"glyphs missing from font", "[PERSON]", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := h.Serialize(substitute(m, content.EntityMap{"Jane Doe": tt.replacement}))
			if err != nil {
				t.Fatalf("Serialize failed: %v", err)
			}
			again, err := h.Extract(out)
			if err != nil {
				t.Fatalf("Extract after Serialize failed: %v", err)
			}
			if got := unitTexts(again); !equalStrings(got, []string{tt.replacement}) {
				t.Errorf("expected [%s], got %q", tt.replacement, got)
			}
			if got := hasFallbackFont(fontNames(t, out, 1)); got != tt.wantFallback {
				t.Errorf("expected fallback font %v, got %v", tt.wantFallback, got)
			}
		})
	}
}

func TestPaginated_CompositeFontWithoutToUnicode(t *testing.T) {
	raw := buildPDF(t, nil, testPage{
		fonts:   map[string]testFont{"F1": {composite: true}},
		streams: []string{"BT /F1 11 Tf 50 700 Td <004A0061006E0065> Tj ET"},
	})

	if _, err := NewPaginatedDocument().Extract(raw); !core.IsParse(err) {
		t.Errorf("expected ParseError, got %v", err)
	}
}

func TestPaginated_WinAnsi(t *testing.T) {
	raw := buildPDF(t, nil, testPage{
		fonts:   map[string]testFont{"F1": {}},
		streams: []string{"BT /F1 12 Tf 72 770 Td (It\x92s Jane\x92s file \x80 5) Tj ET"},
	})

	h := NewPaginatedDocument()
	m, err := h.Extract(raw)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if got := unitTexts(m); !equalStrings(got, []string{"It’s Jane’s file € 5"}) {
		t.Fatalf("expected [It’s Jane’s file € 5], got %q", got)
	}

	out, err := h.Serialize(substitute(m, content.EntityMap{"Jane": "[PERSON]"}))
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	again, err := h.Extract(out)
	if err != nil {
		t.Fatalf("Extract after Serialize failed: %v", err)
	}
	if got := unitTexts(again); !equalStrings(got, []string{"It’s [PERSON]’s file € 5"}) {
		t.Errorf("expected [It’s [PERSON]’s file € 5], got %q", got)
	}
}

func TestPaginated_CorruptInput(t *testing.T) {
	if _, err := NewPaginatedDocument().Extract([]byte("%PDF-1.4\nthis is not really a pdf")); !core.IsParse(err) {
		t.Errorf("expected ParseError, got %v", err)
	}
}

func TestIsPasswordError(t *testing.T) {
	if !isPasswordError(errPasswordProtected) {
		t.Error("expected password error to be recognised")
	}
	if isPasswordError(errUnterminatedString) {
		t.Error("unexpected match")
	}
	if got := core.MapError(parseErr(content.FormatPDF, errPasswordProtected)).Code; got != "PARSE002" {
		t.Errorf("expected PARSE002, got %s", got)
	}
}
