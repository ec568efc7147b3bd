package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/JonMunkholm/docredact/internal/content"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// BatchResult is the outcome of RedactBatch. Outputs holds exactly one entry
// per input document, in input order.
type BatchResult struct {
	BatchID  string        `json:"batch_id"`
	Outputs  []Output      `json:"-"`
	Summary  BatchSummary  `json:"summary"`
	Duration time.Duration `json:"duration_ns"`
}

// BatchSummary counts results by status.
type BatchSummary struct {
	Total             int `json:"total"`
	Redacted          int `json:"redacted"`
	NoEntitiesFound   int `json:"no_entities_found"`
	UnsupportedFormat int `json:"unsupported_format"`
	Failed            int `json:"failed"`
}

// Results returns the per-document results in input order.
func (b *BatchResult) Results() []RedactionResult {
	out := make([]RedactionResult, len(b.Outputs))
	for i, o := range b.Outputs {
		out[i] = o.Result
	}
	return out
}

// RedactBatch redacts docs concurrently. A failure on one document is
// recorded in its own result and never affects its siblings.
func (e *Engine) RedactBatch(ctx context.Context, docs []Document, entities content.EntityMap) *BatchResult {
	start := time.Now()
	batch := &BatchResult{
		BatchID: uuid.New().String(),
		Outputs: make([]Output, len(docs)),
	}

	var g errgroup.Group
	if e.batchParallel > 0 {
		g.SetLimit(e.batchParallel)
	}

	for i, doc := range docs {
		g.Go(func() error {
			// Errors are already captured in the result.
			out, _ := e.Redact(ctx, doc, entities)
			batch.Outputs[i] = out
			return nil
		})
	}
	_ = g.Wait()

	batch.Summary = summarize(batch.Outputs)
	batch.Duration = time.Since(start)

	slog.Info("batch redaction completed",
		"batch_id", batch.BatchID,
		"total", batch.Summary.Total,
		"redacted", batch.Summary.Redacted,
		"no_entities_found", batch.Summary.NoEntitiesFound,
		"unsupported_format", batch.Summary.UnsupportedFormat,
		"failed", batch.Summary.Failed,
		"duration_ms", batch.Duration.Milliseconds(),
	)
	return batch
}

func summarize(outputs []Output) BatchSummary {
	s := BatchSummary{Total: len(outputs)}
	for _, o := range outputs {
		switch o.Result.Status {
		case StatusRedacted:
			s.Redacted++
		case StatusNoEntitiesFound:
			s.NoEntitiesFound++
		case StatusUnsupportedFormat:
			s.UnsupportedFormat++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}
