package handler

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/JonMunkholm/docredact/internal/content"
)

const (
	nsDrawingML      = "http://schemas.openxmlformats.org/drawingml/2006/main"
	nsPresentationML = "http://schemas.openxmlformats.org/presentationml/2006/main"
	nsRelationships  = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"

	presentationPart = "ppt/presentation.xml"
	presentationRels = "ppt/_rels/presentation.xml.rels"
)

var slidePartPattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

var errNotPresentation = errors.New("archive has no " + presentationPart)

// SlideDeckHandler handles pptx presentations. Every text run (a:t) is one
// unit located at (slide, shape, run) in presentation order. Serialization
// splices changed runs into the original slide XML and copies every other
// archive entry unchanged.
type SlideDeckHandler struct {
	matcher
}

// NewSlideDeck returns the presentation handler.
func NewSlideDeck() *SlideDeckHandler {
	return &SlideDeckHandler{
		matcher: matcher{
			format:     content.FormatPPTX,
			extensions: []string{".pptx"},
			mimeTypes:  []string{"application/vnd.openxmlformats-officedocument.presentationml.presentation"},
		},
	}
}

// deck is an opened presentation archive.
type deck struct {
	zr     *zip.Reader
	slides []*zip.File
}

// runSpan is the byte range of one a:t element's character data.
type runSpan struct {
	loc        content.Location
	start, end int64
	text       string
}

func openDeck(raw []byte) (*deck, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, err
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}
	if _, ok := files[presentationPart]; !ok {
		return nil, errNotPresentation
	}

	slides, err := slideOrder(files)
	if err != nil {
		return nil, err
	}
	return &deck{zr: zr, slides: slides}, nil
}

type presentationXML struct {
	SlideIDs []struct {
		RID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sldIdLst>sldId"`
}

type relationshipsXML struct {
	Relationships []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

// slideOrder resolves slides through the presentation's slide id list and
// falls back to slide part numbering when the list or its relationships are
// missing.
func slideOrder(files map[string]*zip.File) ([]*zip.File, error) {
	var pres presentationXML
	if err := unmarshalPart(files[presentationPart], &pres); err != nil {
		return nil, fmt.Errorf("%s: %w", presentationPart, err)
	}

	if relsFile, ok := files[presentationRels]; ok && len(pres.SlideIDs) > 0 {
		var rels relationshipsXML
		if err := unmarshalPart(relsFile, &rels); err != nil {
			return nil, fmt.Errorf("%s: %w", presentationRels, err)
		}
		targets := make(map[string]string, len(rels.Relationships))
		for _, r := range rels.Relationships {
			targets[r.ID] = r.Target
		}

		var slides []*zip.File
		for _, id := range pres.SlideIDs {
			target, ok := targets[id.RID]
			if !ok {
				return nil, fmt.Errorf("slide relationship %q not found", id.RID)
			}
			name := resolveTarget(target)
			f, ok := files[name]
			if !ok {
				return nil, fmt.Errorf("slide part %q missing", name)
			}
			slides = append(slides, f)
		}
		return slides, nil
	}

	type numbered struct {
		n int
		f *zip.File
	}
	var parts []numbered
	for name, f := range files {
		if m := slidePartPattern.FindStringSubmatch(name); m != nil {
			n, _ := strconv.Atoi(m[1])
			parts = append(parts, numbered{n: n, f: f})
		}
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].n < parts[j].n })

	slides := make([]*zip.File, len(parts))
	for i, p := range parts {
		slides[i] = p.f
	}
	return slides, nil
}

// resolveTarget turns a relationship target of ppt/presentation.xml into an
// archive entry name.
func resolveTarget(target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Join("ppt", target)
}

func unmarshalPart(f *zip.File, v any) error {
	data, err := readPart(f)
	if err != nil {
		return err
	}
	return xml.Unmarshal(data, v)
}

func readPart(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func isShapeElement(name xml.Name) bool {
	return name.Space == nsPresentationML && (name.Local == "sp" || name.Local == "graphicFrame")
}

// scanRuns lists the text runs of one slide with their byte offsets.
func scanRuns(slide int, data []byte) ([]runSpan, error) {
	d := xml.NewDecoder(bytes.NewReader(data))

	var spans []runSpan
	shape, run := -1, 0
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			return spans, nil
		}
		if err != nil {
			return nil, err
		}

		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if isShapeElement(se.Name) {
			shape++
			run = 0
			continue
		}
		if se.Name.Space != nsDrawingML || se.Name.Local != "t" {
			continue
		}

		start := d.InputOffset()
		var text strings.Builder
		end := int64(-1)
		for end < 0 {
			off := d.InputOffset()
			tok, err := d.Token()
			if err != nil {
				return nil, fmt.Errorf("unterminated text run: %w", err)
			}
			switch t := tok.(type) {
			case xml.CharData:
				text.Write(t)
			case xml.EndElement:
				end = off
			}
		}

		if text.Len() > 0 {
			spans = append(spans, runSpan{
				loc:   content.Location{Part: slide, Block: max(shape, 0), Index: run},
				start: start,
				end:   end,
				text:  text.String(),
			})
		}
		run++
	}
}

func (h *SlideDeckHandler) Extract(raw []byte) (*content.Model, error) {
	dk, err := openDeck(raw)
	if err != nil {
		return nil, parseErr(h.format, err)
	}

	m := content.NewModel("", "", h.format, raw)
	m.PartNames = make(map[int]string, len(dk.slides))
	for i, f := range dk.slides {
		data, err := readPart(f)
		if err != nil {
			return nil, parseErr(h.format, fmt.Errorf("%s: %w", f.Name, err))
		}
		spans, err := scanRuns(i, data)
		if err != nil {
			return nil, parseErr(h.format, fmt.Errorf("%s: %w", f.Name, err))
		}
		for _, s := range spans {
			m.Add(s.loc, s.text)
		}
		m.PartNames[i] = fmt.Sprintf("Slide %d", i+1)
	}
	return m, nil
}

func (h *SlideDeckHandler) Serialize(m *content.Model) ([]byte, error) {
	dk, err := openDeck(m.Source)
	if err != nil {
		return nil, serializeErr(h.format, err)
	}

	byPart := make(map[int][]content.Unit)
	for _, u := range m.Units {
		if u.Location.Part < 0 || u.Location.Part >= len(dk.slides) {
			return nil, serializeErr(h.format, fmt.Errorf("no slide at %s", u.Location))
		}
		byPart[u.Location.Part] = append(byPart[u.Location.Part], u)
	}

	rewritten := make(map[string][]byte)
	for part, units := range byPart {
		f := dk.slides[part]
		data, err := readPart(f)
		if err != nil {
			return nil, serializeErr(h.format, err)
		}
		spans, err := scanRuns(part, data)
		if err != nil {
			return nil, serializeErr(h.format, err)
		}

		out, changed, err := spliceRuns(data, spans, units)
		if err != nil {
			return nil, serializeErr(h.format, err)
		}
		if changed {
			rewritten[f.Name] = out
		}
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range dk.zr.File {
		data, ok := rewritten[f.Name]
		if !ok {
			if err := zw.Copy(f); err != nil {
				return nil, serializeErr(h.format, fmt.Errorf("copy %s: %w", f.Name, err))
			}
			continue
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     f.Name,
			Method:   f.Method,
			Modified: f.Modified,
		})
		if err != nil {
			return nil, serializeErr(h.format, err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, serializeErr(h.format, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, serializeErr(h.format, err)
	}
	return buf.Bytes(), nil
}

// spliceRuns replaces the character data of every run whose unit text
// differs from the slide's current text.
func spliceRuns(data []byte, spans []runSpan, units []content.Unit) ([]byte, bool, error) {
	idx := make(map[content.Location]runSpan, len(spans))
	for _, s := range spans {
		idx[s.loc] = s
	}

	var edits []runSpan
	for _, u := range units {
		s, ok := idx[u.Location]
		if !ok {
			return nil, false, fmt.Errorf("no text run at %s", u.Location)
		}
		if s.text != u.Text {
			s.text = u.Text
			edits = append(edits, s)
		}
	}
	if len(edits) == 0 {
		return data, false, nil
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })

	var out bytes.Buffer
	out.Grow(len(data))
	var pos int64
	for _, e := range edits {
		out.Write(data[pos:e.start])
		if err := xml.EscapeText(&out, []byte(e.text)); err != nil {
			return nil, false, err
		}
		pos = e.end
	}
	out.Write(data[pos:])
	return out.Bytes(), true, nil
}
