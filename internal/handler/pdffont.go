package handler

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/text/encoding/charmap"
)

// maxRangeCodes bounds how many codes one bfrange entry may expand to.
const maxRangeCodes = 1 << 16

// codespace is one begincodespacerange entry: codes of n bytes in [lo, hi].
type codespace struct {
	n      int
	lo, hi uint32
}

// fontCodec maps the string codes of one font to text and back. Composite
// fonts are only readable through a ToUnicode map; simple fonts fall back to
// their Differences and base encoding.
type fontCodec struct {
	composite bool
	spaces    []codespace
	toText    map[string]string
	fromRune  map[rune][]byte

	base        *charmap.Charmap
	diffs       map[byte]rune
	first, last int

	// err is set when the font's codes cannot be mapped to text at all.
	err error
}

// defaultCodec reads strings shown without a known font as WinAnsi.
var defaultCodec = &fontCodec{base: charmap.Windows1252, last: 255}

// decode turns string codes into text. Codes without a mapping become
// U+FFFD.
func (f *fontCodec) decode(raw []byte) string {
	var b strings.Builder
	for i := 0; i < len(raw); {
		n := f.codeLen(raw[i:])
		code := raw[i : i+n]
		i += n

		if t, ok := f.toText[string(code)]; ok {
			b.WriteString(t)
			continue
		}
		if f.composite {
			b.WriteRune(utf8.RuneError)
			continue
		}
		if r, ok := f.diffs[code[0]]; ok {
			b.WriteRune(r)
			continue
		}
		b.WriteRune(f.base.DecodeByte(code[0]))
	}
	return b.String()
}

// codeLen returns the byte length of the code starting raw.
func (f *fontCodec) codeLen(raw []byte) int {
	for n := 1; n <= 4 && n <= len(raw); n++ {
		v := codeValue(raw[:n])
		for _, cs := range f.spaces {
			if cs.n == n && v >= cs.lo && v <= cs.hi {
				return n
			}
		}
	}
	if f.composite && len(raw) >= 2 {
		return 2
	}
	return 1
}

// encode turns text back into codes of this font. ok is false when some
// rune has no code the font can show.
func (f *fontCodec) encode(text string) ([]byte, bool) {
	var out []byte
	for _, r := range text {
		if code, ok := f.fromRune[r]; ok {
			out = append(out, code...)
			continue
		}
		if f.composite || len(f.toText) > 0 {
			return nil, false
		}
		c, ok := f.base.EncodeRune(r)
		if !ok || int(c) < f.first || int(c) > f.last {
			return nil, false
		}
		if d, remapped := f.diffs[c]; remapped && d != r {
			return nil, false
		}
		out = append(out, c)
	}
	return out, true
}

// lossyEncode encodes text for the fallback font, writing '?' for runes
// WinAnsi cannot show.
func lossyEncode(text string) []byte {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		c, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			c = '?'
		}
		out = append(out, c)
	}
	return out
}

func codeValue(b []byte) uint32 {
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v
}

func codeBytes(v uint32, n int) []byte {
	b := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

// pageFonts loads a codec for every font in a page's resources.
func pageFonts(ctx *model.Context, resources types.Dict) (map[string]*fontCodec, error) {
	fonts := make(map[string]*fontCodec)
	if resources == nil {
		return fonts, nil
	}
	obj, found := resources.Find("Font")
	if !found || obj == nil {
		return fonts, nil
	}
	dict, err := ctx.DereferenceDict(obj)
	if err != nil {
		return nil, fmt.Errorf("font resources: %w", err)
	}
	for name, o := range dict {
		fd, err := ctx.DereferenceDict(o)
		if err != nil {
			return nil, fmt.Errorf("font %s: %w", name, err)
		}
		if fd == nil {
			continue
		}
		f, err := newFontCodec(ctx, fd)
		if err != nil {
			return nil, fmt.Errorf("font %s: %w", name, err)
		}
		fonts[name] = f
	}
	return fonts, nil
}

var errNoTextMapping = errors.New("composite font has no ToUnicode map")

func newFontCodec(ctx *model.Context, fd types.Dict) (*fontCodec, error) {
	f := &fontCodec{base: charmap.Windows1252, first: 0, last: 255}
	if st := fd.Subtype(); st != nil && *st == "Type0" {
		f.composite = true
	}

	if obj, found := fd.Find("ToUnicode"); found && !isName(obj) {
		sd, _, err := ctx.DereferenceStreamDict(obj)
		if err != nil {
			return nil, err
		}
		if sd != nil {
			if sd.Content == nil {
				if err := sd.Decode(); err != nil {
					return nil, fmt.Errorf("decode ToUnicode: %w", err)
				}
			}
			if err := f.parseToUnicode(sd.Content); err != nil {
				return nil, fmt.Errorf("ToUnicode: %w", err)
			}
		}
	}

	if f.composite {
		if len(f.toText) == 0 {
			f.err = errNoTextMapping
		}
		return f, nil
	}

	if first := fd.IntEntry("FirstChar"); first != nil {
		f.first = *first
	}
	if last := fd.IntEntry("LastChar"); last != nil {
		f.last = *last
	}
	if err := f.simpleEncoding(ctx, fd); err != nil {
		return nil, err
	}
	return f, nil
}

// simpleEncoding reads the Encoding entry of a simple font.
func (f *fontCodec) simpleEncoding(ctx *model.Context, fd types.Dict) error {
	obj, found := fd.Find("Encoding")
	if !found || obj == nil {
		return nil
	}
	obj, err := ctx.Dereference(obj)
	if err != nil {
		return err
	}
	switch enc := obj.(type) {
	case types.Name:
		f.base = baseEncoding(string(enc))
	case types.Dict:
		if name := enc.NameEntry("BaseEncoding"); name != nil {
			f.base = baseEncoding(*name)
		}
		diffs, err := ctx.DereferenceArray(enc["Differences"])
		if err != nil {
			return fmt.Errorf("differences: %w", err)
		}
		f.parseDifferences(diffs)
	}
	return nil
}

func isName(o types.Object) bool {
	if o == nil {
		return true
	}
	_, ok := o.(types.Name)
	return ok
}

func baseEncoding(name string) *charmap.Charmap {
	if name == "MacRomanEncoding" {
		return charmap.Macintosh
	}
	return charmap.Windows1252
}

func (f *fontCodec) parseDifferences(arr types.Array) {
	code := 0
	for _, o := range arr {
		switch v := o.(type) {
		case types.Integer:
			code = v.Value()
		case types.Name:
			if code >= 0 && code < 256 {
				if r, ok := glyphRune(string(v)); ok {
					if f.diffs == nil {
						f.diffs = make(map[byte]rune)
					}
					f.diffs[byte(code)] = r
				}
			}
			code++
		}
	}
	for c := 0; c < 256; c++ {
		if r, ok := f.diffs[byte(c)]; ok {
			f.addReverse(r, []byte{byte(c)})
		}
	}
}

func (f *fontCodec) addReverse(r rune, code []byte) {
	if f.fromRune == nil {
		f.fromRune = make(map[rune][]byte)
	}
	if _, ok := f.fromRune[r]; !ok {
		f.fromRune[r] = code
	}
}

// parseToUnicode reads the codespace ranges and bfchar/bfrange mappings of a
// ToUnicode CMap.
func (f *fontCodec) parseToUnicode(data []byte) error {
	f.toText = make(map[string]string)
	l := &contentLexer{data: data}
	var stack []operand
	for {
		tok, ok, err := l.next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		switch tok.kind {
		case tokString:
			stack = append(stack, operand{kind: tokString, value: tok.value})
		case tokArrayStart:
			arr, err := l.array(tok.start)
			if err != nil {
				return err
			}
			stack = append(stack, arr)
		case tokDictStart:
			if err := l.skipDict(); err != nil {
				return err
			}
		case tokOperator:
			switch string(tok.value) {
			case "endcodespacerange":
				f.addCodespaces(stack)
			case "endbfchar":
				f.addBFChars(stack)
			case "endbfrange":
				f.addBFRanges(stack)
			}
			stack = stack[:0]
		default:
			stack = append(stack, operand{kind: tok.kind, value: tok.value})
		}
	}

	// Build the reverse map from the lowest code for each rune.
	codes := make([]string, 0, len(f.toText))
	for c := range f.toText {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	for _, c := range codes {
		t := f.toText[c]
		if r, size := utf8.DecodeRuneInString(t); size == len(t) && r != utf8.RuneError {
			f.addReverse(r, []byte(c))
		}
	}
	return nil
}

func (f *fontCodec) addCodespaces(stack []operand) {
	for i := 0; i+1 < len(stack); i += 2 {
		lo, hi := stack[i], stack[i+1]
		if lo.kind != tokString || hi.kind != tokString || len(lo.value) == 0 || len(lo.value) != len(hi.value) || len(lo.value) > 4 {
			continue
		}
		f.spaces = append(f.spaces, codespace{n: len(lo.value), lo: codeValue(lo.value), hi: codeValue(hi.value)})
	}
}

func (f *fontCodec) addBFChars(stack []operand) {
	for i := 0; i+1 < len(stack); i += 2 {
		src, dst := stack[i], stack[i+1]
		if src.kind != tokString || len(src.value) == 0 {
			continue
		}
		switch dst.kind {
		case tokString:
			f.toText[string(src.value)] = decodeUTF16BE(dst.value)
		case tokName:
			if r, ok := glyphRune(string(dst.value)); ok {
				f.toText[string(src.value)] = string(r)
			}
		}
	}
}

func (f *fontCodec) addBFRanges(stack []operand) {
	for i := 0; i+2 < len(stack); i += 3 {
		lo, hi, dst := stack[i], stack[i+1], stack[i+2]
		if lo.kind != tokString || hi.kind != tokString || len(lo.value) == 0 || len(lo.value) > 4 {
			continue
		}
		n := len(lo.value)
		from, to := codeValue(lo.value), codeValue(hi.value)
		if to < from || to-from >= maxRangeCodes {
			continue
		}
		switch dst.kind {
		case tokString:
			units := utf16BEUnits(dst.value)
			if len(units) == 0 {
				continue
			}
			for c := from; c <= to; c++ {
				u := append([]uint16(nil), units...)
				u[len(u)-1] += uint16(c - from)
				f.toText[string(codeBytes(c, n))] = string(utf16.Decode(u))
			}
		case tokArrayStart:
			for j, part := range dst.parts {
				c := from + uint32(j)
				if c > to {
					break
				}
				f.toText[string(codeBytes(c, n))] = decodeUTF16BE(part)
			}
		}
	}
}

func utf16BEUnits(b []byte) []uint16 {
	u := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
	}
	return u
}

func decodeUTF16BE(b []byte) string {
	return string(utf16.Decode(utf16BEUnits(b)))
}

var glyphNames = map[string]rune{
	"space": ' ', "exclam": '!', "quotedbl": '"', "numbersign": '#', "dollar": '$',
	"percent": '%', "ampersand": '&', "quotesingle": '\'', "parenleft": '(', "parenright": ')',
	"asterisk": '*', "plus": '+', "comma": ',', "hyphen": '-', "period": '.', "slash": '/',
	"zero": '0', "one": '1', "two": '2', "three": '3', "four": '4', "five": '5', "six": '6',
	"seven": '7', "eight": '8', "nine": '9', "colon": ':', "semicolon": ';', "less": '<',
	"equal": '=', "greater": '>', "question": '?', "at": '@', "bracketleft": '[',
	"backslash": '\\', "bracketright": ']', "asciicircum": '^', "underscore": '_', "grave": '`',
	"braceleft": '{', "bar": '|', "braceright": '}', "asciitilde": '~',
	"quoteleft": '‘', "quoteright": '’', "quotedblleft": '“', "quotedblright": '”',
	"endash": '–', "emdash": '\u2014', "bullet": '•', "ellipsis": '…',
	"Euro": '€', "copyright": '©', "registered": '®', "trademark": '™',
	"degree": '°', "section": '§', "nbspace": ' ', "nonbreakingspace": ' ',
	"fi": 'ﬁ', "fl": 'ﬂ',
}

// glyphRune maps a glyph name to its rune: single letters and digits, the
// uniXXXX and uXXXX forms, and common punctuation names.
func glyphRune(name string) (rune, bool) {
	if r, ok := glyphNames[name]; ok {
		return r, true
	}
	if len(name) == 1 {
		return rune(name[0]), true
	}
	for _, prefix := range []string{"uni", "u"} {
		if hexPart, ok := strings.CutPrefix(name, prefix); ok && len(hexPart) >= 4 && len(hexPart) <= 6 {
			if v, err := strconv.ParseUint(hexPart, 16, 32); err == nil {
				return rune(v), true
			}
		}
	}
	return 0, false
}
