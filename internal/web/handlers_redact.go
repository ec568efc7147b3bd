package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/JonMunkholm/docredact/internal/content"
	"github.com/JonMunkholm/docredact/internal/core"
	"github.com/JonMunkholm/docredact/internal/logging"
)

// multipartMemory is how much of a multipart form is buffered in memory
// before spilling to temporary files.
const multipartMemory = 32 << 20

var errNoFile = errors.New("no file provided")

// formatsResponse lists what the service can read and write.
type formatsResponse struct {
	Formats []content.Format `json:"formats"`
	Targets []content.Format `json:"targets"`
}

// documentResponse is one redacted document. Output is base64 in JSON.
type documentResponse struct {
	core.RedactionResult
	Output []byte `json:"output,omitempty"`
}

type redactResponse struct {
	BatchID   string             `json:"batch_id"`
	Summary   core.BatchSummary  `json:"summary"`
	Duration  string             `json:"duration"`
	Documents []documentResponse `json:"documents"`
}

type statusResponse struct {
	Redactions *core.LimiterStatus `json:"redactions,omitempty"`
	Jobs       int                 `json:"jobs"`
	JobStarts  int64               `json:"job_starts"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleFormats lists the registered source formats and export targets.
func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, formatsResponse{
		Formats: s.deps.Engine.Registry().Formats(),
		Targets: s.deps.Exporter.Targets(),
	})
}

// handleStatus reports redaction capacity and job counts for monitoring.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{}
	if s.deps.Limiter != nil {
		st := s.deps.Limiter.Status()
		resp.Redactions = &st
	}
	if s.deps.Jobs != nil {
		resp.Jobs = s.deps.Jobs.Len()
		resp.JobStarts = s.deps.Jobs.Starts()
	}
	writeJSON(w, resp)
}

// parseUploadForm bounds the request body and parses its multipart form.
func (s *Server) parseUploadForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Redact.MaxFileSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return core.NewValidationError("file", fmt.Errorf("file too large or invalid form: %w", err))
	}
	return nil
}

// readDocument loads one uploaded file.
func readDocument(fh *multipart.FileHeader) (core.Document, error) {
	f, err := fh.Open()
	if err != nil {
		return core.Document{}, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return core.Document{}, fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	return core.Document{
		Filename:     fh.Filename,
		DeclaredType: fh.Header.Get("Content-Type"),
		Data:         data,
	}, nil
}

// readDocuments loads every "file" part of the parsed form.
func readDocuments(r *http.Request) ([]core.Document, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File["file"]) == 0 {
		return nil, core.NewValidationError("file", errNoFile)
	}
	files := r.MultipartForm.File["file"]
	docs := make([]core.Document, 0, len(files))
	for _, fh := range files {
		doc, err := readDocument(fh)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// parseEntities decodes the "entities" form field. An absent field yields nil.
func parseEntities(r *http.Request) (content.EntityMap, error) {
	raw := strings.TrimSpace(r.FormValue("entities"))
	if raw == "" {
		return nil, nil
	}
	var m content.EntityMap
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, core.NewValidationError("entities", fmt.Errorf("invalid entity map: %w", err))
	}
	return m, nil
}

// handleRedact redacts every uploaded file with the submitted entity map and
// returns one result per file, in upload order.
func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	if err := s.parseUploadForm(w, r); err != nil {
		respondError(w, r, err, 0)
		return
	}

	docs, err := readDocuments(r)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	entities, err := parseEntities(r)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	if err := core.ValidateEntities(entities); err != nil {
		respondError(w, r, err, 0)
		return
	}

	logging.FromContext(r.Context()).Info("redact request", "files", len(docs), "entities", len(entities))

	batch := s.deps.Engine.RedactBatch(r.Context(), docs, entities)

	resp := redactResponse{
		BatchID:   batch.BatchID,
		Summary:   batch.Summary,
		Duration:  batch.Duration.Round(time.Millisecond).String(),
		Documents: make([]documentResponse, len(batch.Outputs)),
	}
	for i, out := range batch.Outputs {
		resp.Documents[i] = documentResponse{RedactionResult: out.Result}
		if out.Result.Status == core.StatusRedacted || out.Result.Status == core.StatusNoEntitiesFound {
			resp.Documents[i].Output = out.Data
		}
	}
	writeJSON(w, resp)
}

// handleExport converts one uploaded file into the requested target format,
// redacting it first when an entity map is supplied.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if err := s.parseUploadForm(w, r); err != nil {
		respondError(w, r, err, 0)
		return
	}

	target := content.ParseFormat(r.FormValue("target"))
	if !s.deps.Exporter.Supports(target) {
		respondError(w, r, core.NewValidationError("target",
			fmt.Errorf("%w: %q", core.ErrUnsupportedTarget, r.FormValue("target"))), 0)
		return
	}

	docs, err := readDocuments(r)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	entities, err := parseEntities(r)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	doc := docs[0]

	m, err := s.deps.Engine.Model(r.Context(), doc, entities)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	out, err := s.deps.Exporter.Export(m, target)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	name := s.deps.Exporter.Filename(doc.Filename, target)
	if len(entities) > 0 {
		name = s.cfg.Redact.OutputPrefix + name
	}

	logging.ForDocument(r.Context(), m.DocumentID, doc.Filename).Info("document exported",
		"source_format", m.SourceFormat,
		"target", target,
		"bytes", len(out),
	)

	w.Header().Set("Content-Type", s.deps.Exporter.ContentType(target))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}
