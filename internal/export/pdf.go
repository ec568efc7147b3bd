package export

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/JonMunkholm/docredact/internal/content"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/text/encoding/charmap"
)

// Page layout in points on A4 portrait, origin lower left.
const (
	pageHeight   = 842
	pageMargin   = 50
	bodySize     = 11
	headingSize  = 13
	lineLeading  = 14
	linesPerPage = (pageHeight - 2*pageMargin) / lineLeading
	maxLineRunes = 90
)

var disableConfigDir sync.Once

// layout is the subset of pdfcpu's JSON page description the exporter
// fills in.
type layout struct {
	Paper  string                `json:"paper"`
	Origin string                `json:"origin"`
	Pages  map[string]layoutPage `json:"pages"`
}

type layoutFont struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

type layoutPage struct {
	Content layoutContent `json:"content"`
}

type layoutContent struct {
	Text []layoutText `json:"text"`
}

type layoutText struct {
	Value string     `json:"value"`
	Pos   [2]float64 `json:"pos"`
	Font  layoutFont `json:"font"`
}

// renderPDF lays out one page per group, heading first, continuing onto
// further pages when the group's lines overflow. Every line is a separate
// text box.
func renderPDF(m *content.Model) ([]byte, error) {
	disableConfigDir.Do(api.DisableConfigDir)

	doc := layout{
		Paper:  "A4P",
		Origin: "LowerLeft",
		Pages:  make(map[string]layoutPage),
	}

	var pages [][]layoutText
	for _, g := range m.Groups() {
		lines := []layoutText{{Value: winAnsi(groupName(g)), Font: layoutFont{Name: "Helvetica-Bold", Size: headingSize}}}
		for _, u := range g.Units {
			for _, l := range wrapLine(u.Text, maxLineRunes) {
				if strings.TrimSpace(l) == "" {
					continue
				}
				lines = append(lines, layoutText{Value: winAnsi(l), Font: layoutFont{Name: "Helvetica", Size: bodySize}})
			}
		}
		for len(lines) > 0 {
			n := min(len(lines), linesPerPage)
			pages = append(pages, lines[:n])
			lines = lines[n:]
		}
	}
	if len(pages) == 0 {
		pages = [][]layoutText{nil}
	}

	for i, lines := range pages {
		for j := range lines {
			lines[j].Pos = [2]float64{pageMargin, float64(pageHeight - pageMargin - (j+1)*lineLeading)}
		}
		doc.Pages[strconv.Itoa(i+1)] = layoutPage{Content: layoutContent{Text: lines}}
	}

	js, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := api.Create(nil, bytes.NewReader(js), &buf, model.NewDefaultConfiguration()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// winAnsi replaces runes the core fonts cannot show with '?'.
func winAnsi(s string) string {
	return strings.Map(func(r rune) rune {
		if _, ok := charmap.Windows1252.EncodeRune(r); !ok {
			return '?'
		}
		return r
	}, s)
}

// wrapLine splits s into lines of at most width runes, preferring spaces.
func wrapLine(s string, width int) []string {
	var out []string
	for _, para := range strings.Split(s, "\n") {
		for utf8.RuneCountInString(para) > width {
			r := []rune(para)
			cut := width
			for i := width; i > width/2; i-- {
				if r[i] == ' ' {
					cut = i
					break
				}
			}
			out = append(out, strings.TrimRight(string(r[:cut]), " "))
			para = strings.TrimLeft(string(r[cut:]), " ")
		}
		out = append(out, para)
	}
	return out
}
