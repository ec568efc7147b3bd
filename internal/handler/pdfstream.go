package handler

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// textShow is one text-showing operation in a page content stream. start and
// end delimit the operand that carries the text: a string for Tj, ' and ",
// the whole array for TJ. opStart and opEnd cover the operation including
// its operator. raw holds the string codes, text their decoding through the
// font that was current when the operation ran.
type textShow struct {
	start, end     int
	opStart, opEnd int
	op             string
	raw            []byte
	text           string
	array          bool

	font, size string
	// wordSpace and charSpace are the extra operands of the " operator.
	wordSpace, charSpace string
}

// textState tracks the font selected by Tf, saved and restored by q and Q.
// It carries over from one content stream of a page to the next.
type textState struct {
	font, size string
	saved      [][2]string
}

type pdfTokKind int

const (
	tokOperand pdfTokKind = iota
	tokString
	tokArrayStart
	tokArrayEnd
	tokDictStart
	tokDictEnd
	tokOperator
	tokName
)

type pdfToken struct {
	kind       pdfTokKind
	start, end int
	value      []byte
}

// contentLexer splits a PDF content stream into tokens.
type contentLexer struct {
	data []byte
	pos  int
}

func isPDFSpace(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isPDFDelim(c byte) bool {
	return strings.IndexByte("()<>[]{}/%", c) >= 0
}

func (l *contentLexer) skipSpaceAndComments() {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if isPDFSpace(c) {
			l.pos++
			continue
		}
		if c == '%' {
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		return
	}
}

// next returns the next token, or ok=false at end of input.
func (l *contentLexer) next() (pdfToken, bool, error) {
	l.skipSpaceAndComments()
	if l.pos >= len(l.data) {
		return pdfToken{}, false, nil
	}

	start := l.pos
	c := l.data[l.pos]
	switch {
	case c == '(':
		val, err := l.literalString()
		return pdfToken{kind: tokString, start: start, end: l.pos, value: val}, true, err
	case c == '<' && l.peek(1) == '<':
		l.pos += 2
		return pdfToken{kind: tokDictStart, start: start, end: l.pos}, true, nil
	case c == '>' && l.peek(1) == '>':
		l.pos += 2
		return pdfToken{kind: tokDictEnd, start: start, end: l.pos}, true, nil
	case c == '<':
		val, err := l.hexString()
		return pdfToken{kind: tokString, start: start, end: l.pos, value: val}, true, err
	case c == '[':
		l.pos++
		return pdfToken{kind: tokArrayStart, start: start, end: l.pos}, true, nil
	case c == ']':
		l.pos++
		return pdfToken{kind: tokArrayEnd, start: start, end: l.pos}, true, nil
	case c == '{' || c == '}' || c == ')' || c == '>':
		l.pos++
		return pdfToken{kind: tokOperand, start: start, end: l.pos}, true, nil
	case c == '/':
		l.pos++
		l.regular()
		return pdfToken{kind: tokName, start: start, end: l.pos, value: l.data[start+1 : l.pos]}, true, nil
	}

	l.regular()
	word := l.data[start:l.pos]
	kind := tokOperator
	if isPDFNumber(word) || string(word) == "true" || string(word) == "false" || string(word) == "null" {
		kind = tokOperand
	}
	return pdfToken{kind: kind, start: start, end: l.pos, value: word}, true, nil
}

func (l *contentLexer) peek(n int) byte {
	if l.pos+n < len(l.data) {
		return l.data[l.pos+n]
	}
	return 0
}

func (l *contentLexer) regular() {
	for l.pos < len(l.data) && !isPDFSpace(l.data[l.pos]) && !isPDFDelim(l.data[l.pos]) {
		l.pos++
	}
}

func isPDFNumber(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	digits := 0
	for i, c := range b {
		switch {
		case c >= '0' && c <= '9':
			digits++
		case (c == '+' || c == '-') && i == 0, c == '.':
		default:
			return false
		}
	}
	return digits > 0
}

var errUnterminatedString = errors.New("unterminated string in content stream")

func (l *contentLexer) literalString() ([]byte, error) {
	l.pos++ // (
	var out []byte
	depth := 1
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return out, nil
			}
		case '\\':
			if l.pos >= len(l.data) {
				return nil, errUnterminatedString
			}
			e := l.data[l.pos]
			l.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if l.pos < len(l.data) && l.data[l.pos] == '\n' {
					l.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && l.pos < len(l.data) && l.data[l.pos] >= '0' && l.data[l.pos] <= '7'; i++ {
						v = v*8 + int(l.data[l.pos]-'0')
						l.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
			continue
		}
		out = append(out, c)
	}
	return nil, errUnterminatedString
}

func (l *contentLexer) hexString() ([]byte, error) {
	l.pos++ // <
	var (
		out  []byte
		hi   byte
		half bool
	)
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		if c == '>' {
			if half {
				out = append(out, hi<<4)
			}
			return out, nil
		}
		if isPDFSpace(c) {
			continue
		}
		v, ok := hexValue(c)
		if !ok {
			return nil, fmt.Errorf("invalid hex digit %q in content stream", c)
		}
		if half {
			out = append(out, hi<<4|v)
		} else {
			hi = v
		}
		half = !half
	}
	return nil, errUnterminatedString
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// skipInlineImage moves past the binary data of an inline image. It must be
// called right after the ID operator.
func (l *contentLexer) skipInlineImage() {
	if l.pos < len(l.data) && isPDFSpace(l.data[l.pos]) {
		l.pos++
	}
	for l.pos+2 <= len(l.data) {
		if l.data[l.pos] == 'E' && l.data[l.pos+1] == 'I' &&
			(l.pos == 0 || isPDFSpace(l.data[l.pos-1])) &&
			(l.pos+2 == len(l.data) || isPDFSpace(l.data[l.pos+2])) {
			l.pos += 2
			return
		}
		l.pos++
	}
	l.pos = len(l.data)
}

// operand is a parsed operand on the stack; arrays keep their string parts.
type operand struct {
	kind       pdfTokKind
	start, end int
	value      []byte
	parts      [][]byte
}

// scanTextShows returns the text-showing operations of a content stream in
// stream order. st is updated with every font change; a nil st starts from
// no font.
func scanTextShows(data []byte, st *textState) ([]textShow, error) {
	if st == nil {
		st = &textState{}
	}
	l := &contentLexer{data: data}
	var (
		shows []textShow
		stack []operand
	)
	for {
		tok, ok, err := l.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return shows, nil
		}

		switch tok.kind {
		case tokString:
			stack = append(stack, operand{kind: tokString, start: tok.start, end: tok.end, value: tok.value})
		case tokArrayStart:
			arr, err := l.array(tok.start)
			if err != nil {
				return nil, err
			}
			stack = append(stack, arr)
		case tokDictStart:
			if err := l.skipDict(); err != nil {
				return nil, err
			}
			stack = append(stack, operand{kind: tokOperand})
		case tokOperator:
			if s, ok := textShowFor(string(tok.value), stack, tok.end, data); ok {
				s.font, s.size = st.font, st.size
				shows = append(shows, s)
			}
			st.apply(string(tok.value), stack)
			if string(tok.value) == "ID" {
				l.skipInlineImage()
			}
			stack = stack[:0]
		default:
			stack = append(stack, operand{kind: tok.kind, start: tok.start, end: tok.end, value: tok.value})
		}
	}
}

// textShowFor recognises a text-showing operator with its operands.
func textShowFor(op string, stack []operand, opEnd int, data []byte) (textShow, bool) {
	n := len(stack)
	if n == 0 {
		return textShow{}, false
	}
	last := stack[n-1]
	switch op {
	case "Tj", "'":
		if last.kind == tokString {
			return textShow{start: last.start, end: last.end, opStart: last.start, opEnd: opEnd, op: op, raw: last.value}, true
		}
	case `"`:
		if last.kind == tokString && n >= 3 {
			return textShow{
				start: last.start, end: last.end, opStart: stack[n-3].start, opEnd: opEnd, op: op, raw: last.value,
				wordSpace: string(data[stack[n-3].start:stack[n-3].end]),
				charSpace: string(data[stack[n-2].start:stack[n-2].end]),
			}, true
		}
	case "TJ":
		if last.kind == tokArrayStart {
			return textShow{start: last.start, end: last.end, opStart: last.start, opEnd: opEnd, op: op, raw: bytes.Join(last.parts, nil), array: true}, true
		}
	}
	return textShow{}, false
}

func (st *textState) apply(op string, stack []operand) {
	switch op {
	case "q":
		st.saved = append(st.saved, [2]string{st.font, st.size})
	case "Q":
		if n := len(st.saved); n > 0 {
			st.font, st.size = st.saved[n-1][0], st.saved[n-1][1]
			st.saved = st.saved[:n-1]
		}
	case "Tf":
		if n := len(stack); n >= 2 && stack[n-2].kind == tokName {
			st.font, st.size = string(stack[n-2].value), string(stack[n-1].value)
		}
	}
}

// array reads the rest of an array whose '[' started at start.
func (l *contentLexer) array(start int) (operand, error) {
	op := operand{kind: tokArrayStart, start: start}
	for {
		tok, ok, err := l.next()
		if err != nil {
			return op, err
		}
		if !ok {
			return op, errors.New("unterminated array in content stream")
		}
		switch tok.kind {
		case tokArrayEnd:
			op.end = tok.end
			return op, nil
		case tokString:
			op.parts = append(op.parts, tok.value)
		case tokArrayStart:
			if _, err := l.array(tok.start); err != nil {
				return op, err
			}
		case tokDictStart:
			if err := l.skipDict(); err != nil {
				return op, err
			}
		}
	}
}

func (l *contentLexer) skipDict() error {
	depth := 1
	for depth > 0 {
		tok, ok, err := l.next()
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("unterminated dictionary in content stream")
		}
		switch tok.kind {
		case tokDictStart:
			depth++
		case tokDictEnd:
			depth--
		}
	}
	return nil
}

// encodePDFLiteral renders codes as a literal string operand.
func encodePDFLiteral(codes []byte) []byte {
	var b bytes.Buffer
	b.WriteByte('(')
	for _, c := range codes {
		switch c {
		case '(', ')', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte(')')
	return b.Bytes()
}

// encodePDFHex renders codes as a hex string operand.
func encodePDFHex(codes []byte) []byte {
	out := make([]byte, 0, 2*len(codes)+2)
	out = append(out, '<')
	out = hex.AppendEncode(out, codes)
	return append(out, '>')
}

// streamEdit replaces data[start:end] with repl.
type streamEdit struct {
	start, end int
	repl       []byte
}

// operandEdit rewrites only the operand of s.
func (s textShow) operandEdit(operand []byte) streamEdit {
	if s.array {
		operand = append(append([]byte{'['}, operand...), ']')
	}
	return streamEdit{start: s.start, end: s.end, repl: operand}
}

// fallbackEdit rewrites the whole operation of s to show lit in font
// fallback, then selects the original font again.
func (s textShow) fallbackEdit(fallback string, lit []byte) streamEdit {
	size := s.size
	if size == "" {
		size = "12"
	}
	var b bytes.Buffer
	switch s.op {
	case "'":
		b.WriteString("T* ")
	case `"`:
		fmt.Fprintf(&b, "%s Tw %s Tc T* ", s.wordSpace, s.charSpace)
	}
	fmt.Fprintf(&b, "/%s %s Tf ", fallback, size)
	b.Write(lit)
	b.WriteString(" Tj")
	if s.font != "" {
		fmt.Fprintf(&b, " /%s %s Tf", s.font, size)
	}
	return streamEdit{start: s.opStart, end: s.opEnd, repl: b.Bytes()}
}

// applyEdits splices non-overlapping edits into data.
func applyEdits(data []byte, edits []streamEdit) []byte {
	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })
	var out bytes.Buffer
	out.Grow(len(data))
	pos := 0
	for _, e := range edits {
		out.Write(data[pos:e.start])
		out.Write(e.repl)
		pos = e.end
	}
	out.Write(data[pos:])
	return out.Bytes()
}
