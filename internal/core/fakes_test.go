package core

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/docredact/internal/content"
)

// lineHandler is a minimal line-oriented handler used to exercise the engine
// without depending on the real format handlers.
type lineHandler struct {
	format  content.Format
	exts    []string
	mimes   []string
	failSer bool
}

func newLineHandler(format content.Format, exts ...string) *lineHandler {
	return &lineHandler{format: format, exts: exts}
}

func (h *lineHandler) Format() content.Format { return h.format }

func (h *lineHandler) MatchesExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range h.exts {
		if e == ext {
			return true
		}
	}
	return false
}

func (h *lineHandler) CanHandle(filename, declaredType string) bool {
	if h.MatchesExtension(filename) {
		return true
	}
	for _, m := range h.mimes {
		if m == declaredType {
			return true
		}
	}
	return false
}

func (h *lineHandler) Extract(raw []byte) (*content.Model, error) {
	if bytes.HasPrefix(raw, []byte("CORRUPT")) {
		return nil, NewParseError(string(h.format), errors.New("corrupt header"))
	}
	m := content.NewModel("", "", h.format, raw)
	for i, line := range strings.Split(string(raw), "\n") {
		m.Add(content.Location{Block: i}, line)
	}
	return m, nil
}

func (h *lineHandler) Serialize(m *content.Model) ([]byte, error) {
	if h.failSer {
		return nil, errors.New("writer closed")
	}
	lines := strings.Split(string(m.Source), "\n")
	for _, u := range m.Units {
		if u.Location.Block >= len(lines) {
			return nil, NewSerializationError(string(h.format), errors.New("location out of range"))
		}
		lines[u.Location.Block] = u.Text
	}
	return []byte(strings.Join(lines, "\n")), nil
}
