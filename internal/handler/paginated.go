package handler

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/JonMunkholm/docredact/internal/content"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

var errPasswordProtected = errors.New("document is password protected")

var disableConfigDir sync.Once

// PaginatedDocumentHandler handles PDF documents. Each text-showing
// operation in a page's content streams is one unit located at
// (page, span), where span counts operations across all content streams of
// the page. String codes are decoded through the font selected for the
// operation, using its ToUnicode map when present. Changed spans are
// re-encoded in the same font; text that font cannot show is drawn in an
// added Helvetica resource instead.
type PaginatedDocumentHandler struct {
	matcher
}

// NewPaginatedDocument returns the PDF handler.
func NewPaginatedDocument() *PaginatedDocumentHandler {
	disableConfigDir.Do(api.DisableConfigDir)
	return &PaginatedDocumentHandler{
		matcher: matcher{
			format:     content.FormatPDF,
			extensions: []string{".pdf"},
			mimeTypes:  []string{"application/pdf", "application/x-pdf"},
		},
	}
}

// pdfPage holds the state of one page shared by its content streams.
type pdfPage struct {
	num       int
	dict      types.Dict
	resources types.Dict
	fonts     map[string]*fontCodec
	fallback  string
}

func (p *pdfPage) codec(font string) *fontCodec {
	if f, ok := p.fonts[font]; ok {
		return f
	}
	return defaultCodec
}

// decode fills in the text of s from its string codes.
func (p *pdfPage) decode(s *textShow) error {
	f := p.codec(s.font)
	if f.err != nil && len(s.raw) > 0 {
		return fmt.Errorf("font %s: %w", s.font, f.err)
	}
	s.text = f.decode(s.raw)
	return nil
}

// pageStream is one content stream of one page.
type pageStream struct {
	page  *pdfPage
	ref   types.IndirectRef
	sd    *types.StreamDict
	shows []textShow
	// first is the span index of shows[0] within the page.
	first int
}

func (h *PaginatedDocumentHandler) open(raw []byte) (*model.Context, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(raw), conf)
	if err != nil {
		if isPasswordError(err) {
			return nil, errPasswordProtected
		}
		return nil, err
	}
	if ctx.Encrypt != nil {
		return nil, errPasswordProtected
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, err
	}
	return ctx, nil
}

func isPasswordError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password") || strings.Contains(msg, "encrypt")
}

// streams returns the content streams of every page with their decoded
// text shows.
func (h *PaginatedDocumentHandler) streams(ctx *model.Context) ([]*pageStream, error) {
	var out []*pageStream
	for p := 1; p <= ctx.PageCount; p++ {
		d, _, attrs, err := ctx.PageDict(p, false)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", p, err)
		}
		if d == nil {
			return nil, fmt.Errorf("page %d: missing page dictionary", p)
		}

		page := &pdfPage{num: p - 1, dict: d}
		if attrs != nil {
			page.resources = attrs.Resources
		}
		if page.fonts, err = pageFonts(ctx, page.resources); err != nil {
			return nil, fmt.Errorf("page %d: %w", p, err)
		}

		refs, err := contentRefs(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", p, err)
		}

		span := 0
		state := &textState{}
		for _, ref := range refs {
			sd, _, err := ctx.DereferenceStreamDict(ref)
			if err != nil {
				return nil, fmt.Errorf("page %d: %w", p, err)
			}
			if sd == nil {
				continue
			}
			if sd.Content == nil {
				if err := sd.Decode(); err != nil {
					return nil, fmt.Errorf("page %d: decode content: %w", p, err)
				}
			}
			shows, err := scanTextShows(sd.Content, state)
			if err != nil {
				return nil, fmt.Errorf("page %d: %w", p, err)
			}
			for i := range shows {
				if err := page.decode(&shows[i]); err != nil {
					return nil, fmt.Errorf("page %d: %w", p, err)
				}
			}
			out = append(out, &pageStream{page: page, ref: ref, sd: sd, shows: shows, first: span})
			span += len(shows)
		}
	}
	return out, nil
}

// contentRefs lists the indirect references of a page's Contents entry,
// which may be a single stream or an array of streams.
func contentRefs(ctx *model.Context, d types.Dict) ([]types.IndirectRef, error) {
	obj, found := d.Find("Contents")
	if !found || obj == nil {
		return nil, nil
	}

	if ref, ok := obj.(types.IndirectRef); ok {
		target, err := ctx.Dereference(ref)
		if err != nil {
			return nil, err
		}
		arr, ok := target.(types.Array)
		if !ok {
			return []types.IndirectRef{ref}, nil
		}
		obj = arr
	}

	arr, ok := obj.(types.Array)
	if !ok {
		return nil, errors.New("unsupported Contents entry")
	}
	refs := make([]types.IndirectRef, 0, len(arr))
	for _, o := range arr {
		ref, ok := o.(types.IndirectRef)
		if !ok {
			return nil, errors.New("unsupported Contents array element")
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (h *PaginatedDocumentHandler) Extract(raw []byte) (*content.Model, error) {
	ctx, err := h.open(raw)
	if err != nil {
		return nil, parseErr(h.format, err)
	}
	streams, err := h.streams(ctx)
	if err != nil {
		return nil, parseErr(h.format, err)
	}

	m := content.NewModel("", "", h.format, raw)
	m.PartNames = make(map[int]string, ctx.PageCount)
	for p := 0; p < ctx.PageCount; p++ {
		m.PartNames[p] = fmt.Sprintf("Page %d", p+1)
	}
	for _, ps := range streams {
		for i, s := range ps.shows {
			if s.text != "" {
				m.Add(content.Location{Part: ps.page.num, Block: ps.first + i}, s.text)
			}
		}
	}
	return m, nil
}

func (h *PaginatedDocumentHandler) Serialize(m *content.Model) ([]byte, error) {
	ctx, err := h.open(m.Source)
	if err != nil {
		return nil, serializeErr(h.format, err)
	}
	streams, err := h.streams(ctx)
	if err != nil {
		return nil, serializeErr(h.format, err)
	}

	type spanRef struct {
		stream *pageStream
		index  int
	}
	spans := make(map[content.Location]spanRef)
	for _, ps := range streams {
		for i, s := range ps.shows {
			if s.text != "" {
				spans[content.Location{Part: ps.page.num, Block: ps.first + i}] = spanRef{stream: ps, index: i}
			}
		}
	}

	edits := make(map[*pageStream][]streamEdit)
	for _, u := range m.Units {
		sr, ok := spans[u.Location]
		if !ok {
			return nil, serializeErr(h.format, fmt.Errorf("no text span at %s", u.Location))
		}
		show := sr.stream.shows[sr.index]
		if show.text == u.Text {
			continue
		}
		e, err := h.edit(ctx, sr.stream.page, show, u.Text)
		if err != nil {
			return nil, serializeErr(h.format, fmt.Errorf("page %d: %w", sr.stream.page.num+1, err))
		}
		edits[sr.stream] = append(edits[sr.stream], e)
	}

	for ps, e := range edits {
		if err := h.rewriteStream(ctx, ps, e); err != nil {
			return nil, serializeErr(h.format, fmt.Errorf("page %d: %w", ps.page.num+1, err))
		}
	}

	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, serializeErr(h.format, err)
	}
	return buf.Bytes(), nil
}

// edit re-encodes text in the font of show. Text the font cannot show is
// drawn in the page's fallback font.
func (h *PaginatedDocumentHandler) edit(ctx *model.Context, page *pdfPage, show textShow, text string) (streamEdit, error) {
	f := page.codec(show.font)
	if codes, ok := f.encode(text); ok {
		if f.composite {
			return show.operandEdit(encodePDFHex(codes)), nil
		}
		return show.operandEdit(encodePDFLiteral(codes)), nil
	}
	lit := encodePDFLiteral(lossyEncode(text))
	if f == defaultCodec {
		return show.operandEdit(lit), nil
	}
	name, err := h.fallbackFont(ctx, page)
	if err != nil {
		return streamEdit{}, err
	}
	return show.fallbackEdit(name, lit), nil
}

// fallbackFont adds a WinAnsi Helvetica font to the page's own resources
// once and returns its resource name.
func (h *PaginatedDocumentHandler) fallbackFont(ctx *model.Context, page *pdfPage) (string, error) {
	if page.fallback != "" {
		return page.fallback, nil
	}

	res := types.Dict{}
	if page.resources != nil {
		res = page.resources.Clone().(types.Dict)
	}
	fonts := types.Dict{}
	if obj, found := res.Find("Font"); found && obj != nil {
		d, err := ctx.DereferenceDict(obj)
		if err != nil {
			return "", err
		}
		if d != nil {
			fonts = d.Clone().(types.Dict)
		}
	}

	fd := types.Dict{}
	fd.InsertName("Type", "Font")
	fd.InsertName("Subtype", "Type1")
	fd.InsertName("BaseFont", "Helvetica")
	fd.InsertName("Encoding", "WinAnsiEncoding")
	ref, err := ctx.IndRefForNewObject(fd)
	if err != nil {
		return "", err
	}

	name := fonts.NewIDForPrefix("FRd", 0)
	fonts.Update(name, *ref)
	res.Update("Font", fonts)
	page.dict.Update("Resources", res)
	page.resources = res
	page.fallback = name
	return name, nil
}

// rewriteStream splices edits into the decoded stream, re-encodes it with
// its own filters and stores it back in the cross-reference table.
func (h *PaginatedDocumentHandler) rewriteStream(ctx *model.Context, ps *pageStream, edits []streamEdit) error {
	ps.sd.Content = applyEdits(ps.sd.Content, edits)
	if err := ps.sd.Encode(); err != nil {
		return fmt.Errorf("encode content: %w", err)
	}
	n := int64(len(ps.sd.Raw))
	ps.sd.StreamLength = &n
	ps.sd.Dict.Update("Length", types.Integer(n))

	entry, ok := ctx.FindTableEntryForIndRef(&ps.ref)
	if !ok || entry == nil {
		return fmt.Errorf("content stream %s not in xref table", ps.ref)
	}
	entry.Object = *ps.sd
	return nil
}
