package core

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/JonMunkholm/docredact/internal/content"
	"github.com/cloudflare/ahocorasick"
)

// ValidateEntities checks the classifier contract: at least one entry, no
// empty keys and no empty replacement values.
func ValidateEntities(m content.EntityMap) error {
	if len(m) == 0 {
		return NewValidationError("entities", ErrEmptyEntityMap)
	}
	for k, v := range m {
		if k == "" {
			return NewValidationError("entities", errEmptyKey)
		}
		if v == "" {
			return NewValidationError("entities", &emptyValueError{key: k})
		}
	}
	return nil
}

var errEmptyKey = &emptyValueError{}

type emptyValueError struct{ key string }

func (e *emptyValueError) Error() string {
	if e.key == "" {
		return "entity key is empty"
	}
	return "replacement for " + quoteShort(e.key) + " is empty"
}

func quoteShort(s string) string {
	if len(s) > 40 {
		s = s[:40] + "..."
	}
	return `"` + s + `"`
}

// OrderKeys returns the entity keys longest first, ties broken
// lexicographically. Applying keys in this order makes the result independent
// of map iteration order and keeps "Cola" from eating into "Coca Cola".
func OrderKeys(m content.EntityMap) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortLongestFirst(keys)
	return keys
}

func sortLongestFirst(s []string) {
	sort.Slice(s, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(s[i]), utf8.RuneCountInString(s[j])
		if li != lj {
			return li > lj
		}
		return s[i] < s[j]
	})
}

// segment is a slice of unit text. Inert segments came from a replacement
// (or were already a replacement token) and are never scanned again.
type segment struct {
	text  string
	inert bool
}

// Substituter applies one entity map to many text units.
// It is not safe for concurrent use; build one per document.
type Substituter struct {
	keys    []string
	repl    content.EntityMap
	tokens  []string
	matcher *ahocorasick.Matcher
}

// NewSubstituter prepares m for repeated application.
func NewSubstituter(m content.EntityMap) *Substituter {
	keys := OrderKeys(m)
	tokens := m.Tokens()
	sortLongestFirst(tokens)
	return &Substituter{
		keys:    keys,
		repl:    m,
		tokens:  tokens,
		matcher: ahocorasick.NewStringMatcher(keys),
	}
}

// Apply replaces every key occurrence in text. It returns the new text and
// the number of replacements made per key; a nil map means nothing matched.
//
// Matching is case-sensitive exact substring matching. Text produced by a
// replacement, and any replacement token already present in the input, is
// inert, so applying the same map twice changes nothing the second time.
func (s *Substituter) Apply(text string) (string, map[string]int) {
	if text == "" || len(s.keys) == 0 {
		return text, nil
	}
	if len(s.matcher.Match([]byte(text))) == 0 {
		return text, nil
	}

	segs := []segment{{text: text}}
	for _, tok := range s.tokens {
		segs = splitSegments(segs, tok, tok, nil)
	}

	var counts map[string]int
	for _, key := range s.keys {
		if !containsLive(segs, key) {
			continue
		}
		if counts == nil {
			counts = make(map[string]int)
		}
		n := 0
		segs = splitSegments(segs, key, s.repl[key], &n)
		counts[key] = n
	}

	if counts == nil {
		return text, nil
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, sg := range segs {
		b.WriteString(sg.text)
	}
	return b.String(), counts
}

func containsLive(segs []segment, key string) bool {
	for _, sg := range segs {
		if !sg.inert && strings.Contains(sg.text, key) {
			return true
		}
	}
	return false
}

// splitSegments replaces each occurrence of key in live segments with an
// inert segment holding repl. n, when non-nil, receives the match count.
func splitSegments(segs []segment, key, repl string, n *int) []segment {
	out := make([]segment, 0, len(segs))
	for _, sg := range segs {
		if sg.inert || !strings.Contains(sg.text, key) {
			out = append(out, sg)
			continue
		}
		rest := sg.text
		for {
			i := strings.Index(rest, key)
			if i < 0 {
				break
			}
			if i > 0 {
				out = append(out, segment{text: rest[:i]})
			}
			out = append(out, segment{text: repl, inert: true})
			if n != nil {
				*n++
			}
			rest = rest[i+len(key):]
		}
		if rest != "" {
			out = append(out, segment{text: rest})
		}
	}
	return out
}

// ApplyModel substitutes every unit of m in place and returns the
// per-key match counts across all units.
func (s *Substituter) ApplyModel(m *content.Model) map[string]int {
	total := make(map[string]int)
	for i := range m.Units {
		out, counts := s.Apply(m.Units[i].Text)
		if counts == nil {
			continue
		}
		m.Units[i].Text = out
		for k, n := range counts {
			total[k] += n
		}
	}
	return total
}
