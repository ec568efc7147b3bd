package core

import (
	"time"

	"github.com/JonMunkholm/docredact/internal/content"
)

// Handler extracts text units from one container format and serializes a
// (possibly mutated) content model back into the same format.
//
// Implementations must be safe for concurrent use on different documents.
// Serialize rebuilds its working copy from Model.Source, so a location in the
// model that no longer resolves is a SerializationError.
type Handler interface {
	// Format returns the identifier the handler is registered under.
	Format() content.Format

	// CanHandle matches by file extension first and falls back to the
	// declared MIME type.
	CanHandle(filename, declaredType string) bool

	// Extract parses raw bytes into a content model. Corrupt input or input
	// of another format yields a ParseError; a valid but empty document yields
	// a model with zero units.
	Extract(raw []byte) (*content.Model, error)

	// Serialize re-emits the document with the model's unit texts applied.
	Serialize(m *content.Model) ([]byte, error)
}

// ExtensionMatcher is implemented by handlers that can answer the extension
// half of CanHandle on its own. The registry uses it so an extension match
// always wins over a MIME match from another handler.
type ExtensionMatcher interface {
	MatchesExtension(filename string) bool
}

// Status is the per-document outcome of a redaction.
type Status string

const (
	StatusRedacted          Status = "redacted"
	StatusNoEntitiesFound   Status = "no_entities_found"
	StatusUnsupportedFormat Status = "unsupported_format"
	StatusFailed            Status = "failed"
)

// Document is one input to the redaction engine.
type Document struct {
	// ID identifies the document for locking and logging. Defaults to Filename.
	ID string

	// Filename is used for handler resolution and the output location.
	Filename string

	// DeclaredType is the optional MIME type supplied by the caller.
	DeclaredType string

	// Data holds the raw file bytes.
	Data []byte

	// Entities optionally overrides the batch-level entity map.
	Entities content.EntityMap
}

// key returns the identity used for per-document serialization.
func (d Document) key() string {
	if d.ID != "" {
		return d.ID
	}
	return d.Filename
}

// RedactionResult describes what happened to one document.
type RedactionResult struct {
	DocumentID      string         `json:"document_id"`
	Filename        string         `json:"filename"`
	Format          content.Format `json:"format,omitempty"`
	Status          Status         `json:"status"`
	EntitiesApplied int            `json:"entities_applied"`
	AppliedEntities []string       `json:"applied_entities"`
	Replacements    int            `json:"replacements"`
	UnitsScanned    int            `json:"units_scanned"`
	OutputLocation  string         `json:"output_location"`
	Error           string         `json:"error,omitempty"`
	ErrorCode       string         `json:"error_code,omitempty"`
	Duration        time.Duration  `json:"duration_ns"`
}

// Output pairs the result of a redaction with the bytes it produced.
type Output struct {
	Data   []byte
	Result RedactionResult
}
