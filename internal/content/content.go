// Package content defines the format-neutral content model shared by format
// handlers, the redaction engine and the exporter.
//
// A document is reduced to an ordered list of addressable text units. Each unit
// carries a Location that only its format handler interprets, so the same
// location can be re-applied when the document is serialized again.
package content

import (
	"fmt"
	"sort"
)

// Location is a format-specific coordinate of a text unit.
//
// Handlers assign meaning to the fields:
//
//	tabular:   Part=sheet, Block=row, Index=column
//	delimited: Part=0, Block=row, Index=column
//	slides:    Part=slide, Block=shape, Index=run
//	paginated: Part=page, Block=text-showing operation counted across
//	           all content streams of the page, Index=0
//	text:      Part=0, Block=line, Index=0
//
// Part is also the grouping boundary used by cross-format exports.
type Location struct {
	Part  int `json:"part"`
	Block int `json:"block"`
	Index int `json:"index"`
}

// String renders the location as "part:block:index".
func (l Location) String() string {
	return fmt.Sprintf("%d:%d:%d", l.Part, l.Block, l.Index)
}

// Less orders locations by part, then block, then index.
func (l Location) Less(o Location) bool {
	if l.Part != o.Part {
		return l.Part < o.Part
	}
	if l.Block != o.Block {
		return l.Block < o.Block
	}
	return l.Index < o.Index
}

// Unit is the smallest addressable piece of text in a document.
// Text is kept exactly as it appears in the source.
type Unit struct {
	Location Location `json:"location"`
	Text     string   `json:"text"`
}

// Model is the ordered set of units extracted from one document.
//
// A Model is owned by a single redaction call for its lifetime. Units are never
// reordered or merged between extraction and serialization.
type Model struct {
	DocumentID   string `json:"document_id"`
	Filename     string `json:"filename"`
	SourceFormat Format `json:"source_format"`
	Units        []Unit `json:"units"`

	// Source holds the raw bytes the model was extracted from. Handlers rebuild
	// their working copy from it when serializing.
	Source []byte `json:"-"`

	// PartNames optionally labels parts (sheet names, slide titles).
	PartNames map[int]string `json:"part_names,omitempty"`
}

// NewModel creates an empty model for the given format.
func NewModel(documentID, filename string, format Format, source []byte) *Model {
	return &Model{
		DocumentID:   documentID,
		Filename:     filename,
		SourceFormat: format,
		Source:       source,
	}
}

// Add appends a unit at loc.
func (m *Model) Add(loc Location, text string) {
	m.Units = append(m.Units, Unit{Location: loc, Text: text})
}

// Len returns the number of units.
func (m *Model) Len() int {
	return len(m.Units)
}

// Clone returns a deep copy of the units and part names. Source is shared
// since it is never mutated.
func (m *Model) Clone() *Model {
	c := *m
	c.Units = make([]Unit, len(m.Units))
	copy(c.Units, m.Units)
	if m.PartNames != nil {
		c.PartNames = make(map[int]string, len(m.PartNames))
		for k, v := range m.PartNames {
			c.PartNames[k] = v
		}
	}
	return &c
}

// Index maps each location to its current text.
func (m *Model) Index() map[Location]string {
	idx := make(map[Location]string, len(m.Units))
	for _, u := range m.Units {
		idx[u.Location] = u.Text
	}
	return idx
}

// Text returns the text at loc.
func (m *Model) Text(loc Location) (string, bool) {
	for _, u := range m.Units {
		if u.Location == loc {
			return u.Text, true
		}
	}
	return "", false
}

// Group is a run of units sharing the same Location.Part.
type Group struct {
	Part  int
	Name  string
	Units []Unit
}

// Groups splits the units by part, in order of first appearance.
func (m *Model) Groups() []Group {
	var groups []Group
	pos := make(map[int]int)
	for _, u := range m.Units {
		i, ok := pos[u.Location.Part]
		if !ok {
			i = len(groups)
			pos[u.Location.Part] = i
			groups = append(groups, Group{Part: u.Location.Part, Name: m.PartNames[u.Location.Part]})
		}
		groups[i].Units = append(groups[i].Units, u)
	}
	return groups
}

// Sorted returns the units ordered by location. The model itself is untouched.
func (m *Model) Sorted() []Unit {
	out := make([]Unit, len(m.Units))
	copy(out, m.Units)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Location.Less(out[j].Location)
	})
	return out
}

// Equal reports whether two models hold the same location/text pairs.
// Order and metadata are ignored.
func Equal(a, b *Model) bool {
	if a.Len() != b.Len() {
		return false
	}
	idx := a.Index()
	for _, u := range b.Units {
		t, ok := idx[u.Location]
		if !ok || t != u.Text {
			return false
		}
	}
	return true
}
