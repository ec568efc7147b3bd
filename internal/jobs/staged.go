package jobs

import (
	"context"
	"strings"
	"sync"

	"github.com/JonMunkholm/docredact/internal/core"
)

// StagedParser parses uploads held in memory with the format handlers. It
// stands in for the warehouse when the document was uploaded to this
// process directly. An upload is dropped once Parse has run the handler on
// it, whatever the outcome.
type StagedParser struct {
	registry *core.Registry
	mu       sync.RWMutex
	uploads  map[string]*core.Document
}

// NewStagedParser creates a parser resolving handlers through reg.
func NewStagedParser(reg *core.Registry) *StagedParser {
	return &StagedParser{registry: reg, uploads: make(map[string]*core.Document)}
}

// Stage stores doc under documentID, replacing any earlier upload.
func (s *StagedParser) Stage(documentID string, doc core.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads[documentID] = &doc
}

// Len returns the number of uploads waiting to be parsed.
func (s *StagedParser) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.uploads)
}

// Remove forgets the upload for documentID.
func (s *StagedParser) Remove(documentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.uploads, documentID)
}

// Parse extracts the staged upload and joins its units one per line.
func (s *StagedParser) Parse(ctx context.Context, documentID string) (string, error) {
	s.mu.RLock()
	doc, ok := s.uploads[documentID]
	s.mu.RUnlock()
	if !ok {
		return "", &core.NotFoundError{Kind: "document", Key: documentID}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	defer s.release(documentID, doc)

	h, err := s.registry.Resolve(doc.Filename, doc.DeclaredType)
	if err != nil {
		return "", &core.UnsupportedFormatError{Filename: doc.Filename, DeclaredType: doc.DeclaredType}
	}
	m, err := h.Extract(doc.Data)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, u := range m.Units {
		b.WriteString(u.Text)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// release drops doc unless a newer upload replaced it meanwhile.
func (s *StagedParser) release(documentID string, doc *core.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploads[documentID] == doc {
		delete(s.uploads, documentID)
	}
}
