package core

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/JonMunkholm/docredact/internal/content"
	"github.com/JonMunkholm/docredact/internal/logging"
)

// DefaultOutputPrefix is prepended to the base name of redacted outputs.
const DefaultOutputPrefix = "redacted_"

// Engine orchestrates extract -> substitute -> serialize for single documents
// and batches. It holds no per-document state; concurrent calls for the same
// document id are serialized, calls for different ids run independently.
type Engine struct {
	registry      *Registry
	limiter       *Limiter
	locks         *docLocks
	outputPrefix  string
	timeout       time.Duration
	batchParallel int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLimiter bounds the number of documents processed at once across all callers.
func WithLimiter(l *Limiter) EngineOption {
	return func(e *Engine) { e.limiter = l }
}

// WithOutputPrefix overrides DefaultOutputPrefix.
func WithOutputPrefix(prefix string) EngineOption {
	return func(e *Engine) { e.outputPrefix = prefix }
}

// WithTimeout bounds the processing time of one document.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.timeout = d }
}

// WithBatchParallelism sets how many documents of one batch run concurrently.
func WithBatchParallelism(n int) EngineOption {
	return func(e *Engine) { e.batchParallel = n }
}

// NewEngine creates an engine resolving handlers through reg.
func NewEngine(reg *Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		registry:      reg,
		locks:         newDocLocks(),
		outputPrefix:  DefaultOutputPrefix,
		batchParallel: DefaultMaxConcurrent,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the registry the engine resolves handlers through.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Redact applies entities to one document.
//
// Unsupported formats and documents without matches are normal outcomes and
// return a nil error. Validation, parse and serialization failures are
// returned as typed errors and are also reflected in Result.Status=failed.
// Document.Entities, when set, takes precedence over entities.
func (e *Engine) Redact(ctx context.Context, doc Document, entities content.EntityMap) (Output, error) {
	start := time.Now()
	if len(doc.Entities) > 0 {
		entities = doc.Entities
	}

	res := RedactionResult{
		DocumentID:      doc.key(),
		Filename:        doc.Filename,
		AppliedEntities: []string{},
	}
	logger := logging.ForDocument(ctx, res.DocumentID, doc.Filename)

	fail := func(err error) (Output, error) {
		res.Status = StatusFailed
		res.Error = err.Error()
		res.ErrorCode = MapError(err).Code
		res.Duration = time.Since(start)
		if IsSerialization(err) {
			logger.Error("redaction defect", "error", err, "defect", true, "format", res.Format)
		} else {
			logger.Warn("redaction failed", "error", err, "cause", FailureCause(err), "code", res.ErrorCode, "format", res.Format)
		}
		return Output{Result: res}, err
	}

	if err := ValidateEntities(entities); err != nil {
		return fail(err)
	}

	unlock := e.locks.lock(res.DocumentID)
	defer unlock()

	if e.limiter != nil {
		if err := e.limiter.Acquire(ctx); err != nil {
			return fail(err)
		}
		defer e.limiter.Release()
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	h, err := e.registry.Resolve(doc.Filename, doc.DeclaredType)
	if err != nil {
		res.Status = StatusUnsupportedFormat
		res.Duration = time.Since(start)
		logger.Info("unsupported format", "declared_type", doc.DeclaredType)
		return Output{Result: res}, nil
	}
	res.Format = h.Format()

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	model, err := h.Extract(doc.Data)
	if err != nil {
		if !IsParse(err) {
			err = NewParseError(string(h.Format()), err)
		}
		return fail(err)
	}
	model.DocumentID = res.DocumentID
	model.Filename = doc.Filename
	res.UnitsScanned = model.Len()

	work := model.Clone()
	counts := NewSubstituter(entities).ApplyModel(work)

	if len(counts) == 0 {
		res.Status = StatusNoEntitiesFound
		res.OutputLocation = doc.Filename
		res.Duration = time.Since(start)
		logger.Info("no entities found", "format", res.Format, "units", res.UnitsScanned)
		return Output{Data: doc.Data, Result: res}, nil
	}

	for _, key := range OrderKeys(entities) {
		if n, ok := counts[key]; ok {
			res.AppliedEntities = append(res.AppliedEntities, key)
			res.Replacements += n
		}
	}
	res.EntitiesApplied = len(res.AppliedEntities)

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	out, err := h.Serialize(work)
	if err != nil {
		if !IsSerialization(err) {
			err = NewSerializationError(string(h.Format()), err)
		}
		return fail(err)
	}

	res.Status = StatusRedacted
	res.OutputLocation = e.OutputLocation(doc.Filename)
	res.Duration = time.Since(start)
	logger.Info("document redacted",
		"format", res.Format,
		"entities_applied", res.EntitiesApplied,
		"replacements", res.Replacements,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return Output{Data: out, Result: res}, nil
}

// Model extracts doc into a content model for cross-format export. When
// entities (or doc.Entities) are non-empty they are applied to the model
// first. An unresolvable format is an UnsupportedFormatError.
func (e *Engine) Model(ctx context.Context, doc Document, entities content.EntityMap) (*content.Model, error) {
	if len(doc.Entities) > 0 {
		entities = doc.Entities
	}
	if len(entities) > 0 {
		if err := ValidateEntities(entities); err != nil {
			return nil, err
		}
	}

	unlock := e.locks.lock(doc.key())
	defer unlock()

	if e.limiter != nil {
		if err := e.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		defer e.limiter.Release()
	}

	h, err := e.registry.Resolve(doc.Filename, doc.DeclaredType)
	if err != nil {
		return nil, &UnsupportedFormatError{Filename: doc.Filename, DeclaredType: doc.DeclaredType}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m, err := h.Extract(doc.Data)
	if err != nil {
		if !IsParse(err) {
			err = NewParseError(string(h.Format()), err)
		}
		return nil, err
	}
	m.DocumentID = doc.key()
	m.Filename = doc.Filename

	if len(entities) > 0 {
		counts := NewSubstituter(entities).ApplyModel(m)
		logging.ForDocument(ctx, m.DocumentID, doc.Filename).Debug("model redacted for export",
			"format", h.Format(),
			"entities_applied", len(counts),
		)
	}
	return m, nil
}

// OutputLocation returns where a redacted copy of filename is written: the
// same directory with the output prefix on the base name.
func (e *Engine) OutputLocation(filename string) string {
	p := strings.ReplaceAll(filename, `\`, "/")
	dir, base := path.Split(p)
	return dir + e.outputPrefix + base
}

// FailureCause extracts the typed error category name for a failed result.
func FailureCause(err error) string {
	var (
		ve *ValidationError
		pe *ParseError
		se *SerializationError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &pe):
		return "parse"
	case errors.As(err, &se):
		return "serialization"
	case errors.Is(err, ErrTooManyRequests):
		return "capacity"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}
