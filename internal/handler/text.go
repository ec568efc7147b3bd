package handler

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/JonMunkholm/docredact/internal/content"
)

var (
	errBinaryText  = errors.New("input contains NUL bytes, not a text document")
	errInvalidUTF8 = errors.New("input is not valid UTF-8")
)

// PlainTextHandler handles plain text and Markdown. Each non-blank line is
// one unit. In Markdown mode heading, quote and list markers stay outside
// the unit text and fenced code blocks produce no units at all.
type PlainTextHandler struct {
	matcher
	markdown bool
}

// NewPlainText returns the handler for .txt files.
func NewPlainText() *PlainTextHandler {
	return &PlainTextHandler{
		matcher: matcher{
			format:     content.FormatText,
			extensions: []string{".txt", ".text", ".log"},
			mimeTypes:  []string{"text/plain"},
		},
	}
}

// NewMarkdown returns the handler for Markdown files.
func NewMarkdown() *PlainTextHandler {
	return &PlainTextHandler{
		matcher: matcher{
			format:     content.FormatMarkdown,
			extensions: []string{".md", ".markdown"},
			mimeTypes:  []string{"text/markdown", "text/x-markdown"},
		},
		markdown: true,
	}
}

// textLine is one physical line split into the part that is substitutable
// and the parts that are kept verbatim.
type textLine struct {
	prefix string
	body   string
	eol    string
	unit   bool
}

func (h *PlainTextHandler) scan(raw []byte) ([]textLine, error) {
	if bytes.IndexByte(raw, 0) >= 0 {
		return nil, errBinaryText
	}
	if !utf8.Valid(raw) {
		return nil, errInvalidUTF8
	}

	var (
		lines []textLine
		fence string
	)
	for _, l := range splitLines(string(raw)) {
		body, eol := trimEOL(l)
		tl := textLine{body: body, eol: eol}

		if h.markdown {
			if fence != "" {
				if closesFence(body, fence) {
					fence = ""
				}
				lines = append(lines, tl)
				continue
			}
			if f := openFence(body); f != "" {
				fence = f
				lines = append(lines, tl)
				continue
			}
			n := markdownPrefix(body)
			tl.prefix, tl.body = body[:n], body[n:]
		}

		tl.unit = strings.TrimSpace(tl.body) != ""
		lines = append(lines, tl)
	}
	return lines, nil
}

func (h *PlainTextHandler) Extract(raw []byte) (*content.Model, error) {
	lines, err := h.scan(raw)
	if err != nil {
		return nil, parseErr(h.format, err)
	}

	m := content.NewModel("", "", h.format, raw)
	for i, l := range lines {
		if l.unit {
			m.Add(content.Location{Block: i}, l.body)
		}
	}
	return m, nil
}

func (h *PlainTextHandler) Serialize(m *content.Model) ([]byte, error) {
	lines, err := h.scan(m.Source)
	if err != nil {
		return nil, serializeErr(h.format, err)
	}

	for _, u := range m.Units {
		i := u.Location.Block
		if u.Location.Part != 0 || i < 0 || i >= len(lines) || !lines[i].unit {
			return nil, serializeErr(h.format, fmt.Errorf("no text line at %s", u.Location))
		}
		lines[i].body = u.Text
	}

	var b bytes.Buffer
	b.Grow(len(m.Source))
	for _, l := range lines {
		b.WriteString(l.prefix)
		b.WriteString(l.body)
		b.WriteString(l.eol)
	}
	return b.Bytes(), nil
}

// splitLines splits s after each "\n", keeping the terminators.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func trimEOL(l string) (body, eol string) {
	switch {
	case strings.HasSuffix(l, "\r\n"):
		return l[:len(l)-2], "\r\n"
	case strings.HasSuffix(l, "\n"):
		return l[:len(l)-1], "\n"
	}
	return l, ""
}

// openFence returns the fence marker if line opens a fenced code block.
func openFence(line string) string {
	t := strings.TrimLeft(line, " ")
	if len(line)-len(t) > 3 {
		return ""
	}
	for _, c := range []byte{'`', '~'} {
		n := 0
		for n < len(t) && t[n] == c {
			n++
		}
		if n >= 3 {
			return t[:n]
		}
	}
	return ""
}

// closesFence reports whether line closes a block opened with fence.
func closesFence(line, fence string) bool {
	t := strings.TrimSpace(line)
	if len(t) < len(fence) || t[0] != fence[0] {
		return false
	}
	return strings.Trim(t, fence[:1]) == ""
}

// markdownPrefix returns the byte length of leading block syntax: heading
// markers, blockquote markers, list bullets and task boxes.
func markdownPrefix(line string) int {
	i := 0
	for {
		start := i
		for sp := 0; sp < 3 && i < len(line) && line[i] == ' '; sp++ {
			i++
		}
		switch {
		case i < len(line) && line[i] == '#':
			n := i
			for n < len(line) && line[n] == '#' {
				n++
			}
			if n-i > 6 || (n < len(line) && line[n] != ' ' && line[n] != '\t') {
				return start
			}
			return skipSpace(line, n)
		case i < len(line) && line[i] == '>':
			i++
			if i < len(line) && line[i] == ' ' {
				i++
			}
			continue
		case i+1 < len(line) && strings.IndexByte("-*+", line[i]) >= 0 && (line[i+1] == ' ' || line[i+1] == '\t'):
			return skipTaskBox(line, skipSpace(line, i+1))
		}

		n := i
		for n < len(line) && n-i < 9 && line[n] >= '0' && line[n] <= '9' {
			n++
		}
		if n > i && n+1 < len(line) && (line[n] == '.' || line[n] == ')') && (line[n+1] == ' ' || line[n+1] == '\t') {
			return skipTaskBox(line, skipSpace(line, n+1))
		}
		return start
	}
}

func skipSpace(line string, i int) int {
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	return i
}

func skipTaskBox(line string, i int) int {
	for _, box := range []string{"[ ] ", "[x] ", "[X] "} {
		if strings.HasPrefix(line[i:], box) {
			return i + len(box)
		}
	}
	return i
}
