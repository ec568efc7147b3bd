package handler

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/JonMunkholm/docredact/internal/content"
)

// utf8BOM is the byte order mark Windows tools put in front of CSV exports.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DelimitedHandler handles comma separated files. Locations follow the
// spreadsheet scheme with a single sheet: Block is the record index and
// Index the field index. Empty fields produce no units.
type DelimitedHandler struct {
	matcher
	comma rune
}

// NewDelimited returns the CSV handler.
func NewDelimited() *DelimitedHandler {
	return &DelimitedHandler{
		matcher: matcher{
			format:     content.FormatCSV,
			extensions: []string{".csv"},
			mimeTypes:  []string{"text/csv", "application/csv"},
		},
		comma: ',',
	}
}

// table is a parsed delimited file plus the framing needed to write it back.
type table struct {
	records [][]string
	bom     bool
	crlf    bool
}

func (h *DelimitedHandler) read(raw []byte) (*table, error) {
	t := &table{}
	if bytes.HasPrefix(raw, utf8BOM) {
		t.bom = true
		raw = raw[len(utf8BOM):]
	}
	if bytes.IndexByte(raw, 0) >= 0 {
		return nil, errBinaryText
	}
	if !utf8.Valid(raw) {
		return nil, errInvalidUTF8
	}
	t.crlf = bytes.Contains(raw, []byte("\r\n"))

	r := csv.NewReader(bytes.NewReader(raw))
	r.Comma = h.comma
	r.FieldsPerRecord = -1

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		t.records = append(t.records, rec)
	}
	return t, nil
}

func (h *DelimitedHandler) Extract(raw []byte) (*content.Model, error) {
	t, err := h.read(raw)
	if err != nil {
		return nil, parseErr(h.format, err)
	}

	m := content.NewModel("", "", h.format, raw)
	m.PartNames = map[int]string{0: "Sheet1"}
	for row, rec := range t.records {
		for col, field := range rec {
			if field != "" {
				m.Add(content.Location{Block: row, Index: col}, field)
			}
		}
	}
	return m, nil
}

func (h *DelimitedHandler) Serialize(m *content.Model) ([]byte, error) {
	t, err := h.read(m.Source)
	if err != nil {
		return nil, serializeErr(h.format, err)
	}

	for _, u := range m.Units {
		loc := u.Location
		if loc.Part != 0 || loc.Block < 0 || loc.Block >= len(t.records) ||
			loc.Index < 0 || loc.Index >= len(t.records[loc.Block]) {
			return nil, serializeErr(h.format, fmt.Errorf("no field at %s", loc))
		}
		t.records[loc.Block][loc.Index] = u.Text
	}

	var buf bytes.Buffer
	if t.bom {
		buf.Write(utf8BOM)
	}
	w := csv.NewWriter(&buf)
	w.Comma = h.comma
	w.UseCRLF = t.crlf
	if err := w.WriteAll(t.records); err != nil {
		return nil, serializeErr(h.format, err)
	}
	return buf.Bytes(), nil
}
