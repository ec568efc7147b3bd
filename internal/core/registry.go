package core

import (
	"sort"
	"sync"

	"github.com/JonMunkholm/docredact/internal/content"
)

// Registry maps format identifiers to handlers. It is constructed once at
// process start and passed to the engine and exporter; there is no package
// level registry.
type Registry struct {
	mu       sync.RWMutex
	handlers map[content.Format]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[content.Format]Handler)}
}

// Register adds a handler under format. A later registration for the same
// format replaces the earlier one, which is how tests install doubles.
func (r *Registry) Register(format content.Format, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[format] = h
}

// Get returns the handler registered under format.
func (r *Registry) Get(format content.Format) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[format]
	return h, ok
}

// Resolve picks the handler for a file. An extension match on any handler
// wins over a MIME match on another; within each pass handlers are tried in
// format order so resolution is deterministic.
// Returns a NotFoundError when nothing matches.
func (r *Registry) Resolve(filename, declaredType string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	formats := r.sortedFormats()

	for _, f := range formats {
		if em, ok := r.handlers[f].(ExtensionMatcher); ok && em.MatchesExtension(filename) {
			return r.handlers[f], nil
		}
	}
	for _, f := range formats {
		if r.handlers[f].CanHandle(filename, declaredType) {
			return r.handlers[f], nil
		}
	}

	key := filename
	if declaredType != "" {
		key += " (" + declaredType + ")"
	}
	return nil, &NotFoundError{Kind: "handler", Key: key}
}

// Supports reports whether any handler accepts the file.
func (r *Registry) Supports(filename, declaredType string) bool {
	_, err := r.Resolve(filename, declaredType)
	return err == nil
}

// Formats returns the registered formats in sorted order.
func (r *Registry) Formats() []content.Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedFormats()
}

// Count returns the number of registered handlers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Clear removes all handlers.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[content.Format]Handler)
}

// sortedFormats must be called with mu held.
func (r *Registry) sortedFormats() []content.Format {
	formats := make([]content.Format, 0, len(r.handlers))
	for f := range r.handlers {
		formats = append(formats, f)
	}
	sort.Slice(formats, func(i, j int) bool { return formats[i] < formats[j] })
	return formats
}
