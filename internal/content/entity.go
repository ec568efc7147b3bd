package content

import "sort"

// EntityMap maps exact entity text to its replacement token, e.g.
// "Acme Corp" -> "[CLIENT]". It is produced by an external classifier and is
// treated as immutable for the duration of a redaction call.
type EntityMap map[string]string

// Clone returns a copy of the map.
func (m EntityMap) Clone() EntityMap {
	c := make(EntityMap, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Keys returns the entity texts in lexicographic order.
func (m EntityMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Tokens returns the distinct replacement tokens in lexicographic order.
func (m EntityMap) Tokens() []string {
	seen := make(map[string]bool, len(m))
	tokens := make([]string, 0, len(m))
	for _, v := range m {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		tokens = append(tokens, v)
	}
	sort.Strings(tokens)
	return tokens
}

// Merge returns a new map holding m overlaid with other. Keys in other win.
func (m EntityMap) Merge(other EntityMap) EntityMap {
	out := m.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}
