// Package core provides the redaction engine for office and text documents.
//
// This package contains the domain logic independent of any transport layer.
// It can be used by web handlers, the job pipeline, or tests without
// modification.
//
// # Architecture
//
// The package is organized around a few concepts:
//
//   - Handler: per-format extract and serialize, registered in a [Registry].
//   - Substituter: applies an entity map to text units, longest key first.
//   - Engine: resolves a handler, extracts, substitutes and serializes one
//     document or a batch.
//   - Limiter: bounds how many documents are processed at once.
//
// # Handler Registry
//
// Handlers are registered on an explicit [Registry] built at startup:
//
//	reg := core.NewRegistry()
//	reg.Register(content.FormatCSV, handler.NewDelimited())
//	engine := core.NewEngine(reg, core.WithLimiter(limiter))
//
// Resolution tries file extensions first and falls back to the declared
// MIME type, so a ".csv" upload labelled "text/plain" still resolves to CSV.
//
// # Redaction Flow
//
//  1. Validate the entity map (non-empty, no empty keys or values)
//  2. Resolve the handler; none means status unsupported_format
//  3. Extract the content model; failure means status failed
//  4. Substitute every unit; no match means status no_entities_found and the
//     input bytes are returned as-is
//  5. Serialize the mutated model; output goes next to the input with the
//     "redacted_" prefix
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - VAL001-VAL005: Validation errors (entity map, export target, document id)
//   - PARSE001-PARSE002: Parse errors (corrupt or password protected input)
//   - SER001: Serialization defects
//   - FMT001: Unsupported format
//   - JOB001-JOB002: Extraction job errors
//   - RATE001-RATE002: Capacity errors
//   - ERR000: Unknown errors
//
// # Thread Safety
//
// Registry, Engine and Limiter are safe for concurrent use. Work on the same
// document id is serialized; different documents run in parallel.
package core
