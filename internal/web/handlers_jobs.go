package web

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/JonMunkholm/docredact/internal/core"
	"github.com/JonMunkholm/docredact/internal/jobs"
	"github.com/JonMunkholm/docredact/internal/logging"
	"github.com/go-chi/chi/v5"
)

var errStagingDisabled = errors.New("uploads cannot be staged for extraction")

// submitResponse acknowledges a job submission.
type submitResponse struct {
	jobs.Handle
	State       jobs.State `json:"state"`
	PollAfterMS int64      `json:"poll_after_ms"`
}

// documentIDParam returns the unescaped {documentID} route parameter. Paths
// with slashes are sent percent-encoded.
func documentIDParam(r *http.Request) (string, error) {
	id, err := url.PathUnescape(chi.URLParam(r, "documentID"))
	if err != nil {
		return "", core.NewValidationError("document_id", core.ErrInvalidDocumentID)
	}
	return id, nil
}

// handleSubmitJob starts extraction for a document, or returns the job
// already running for it. A multipart body with a "file" part stages that
// upload as the document's content first.
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	documentID, err := documentIDParam(r)
	if err == nil {
		err = jobs.ValidateDocumentID(documentID)
	}
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	// A live job will not parse again, so its upload is not staged.
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") && !s.jobLive(documentID) {
		if err := s.stageUpload(w, r, documentID); err != nil {
			respondError(w, r, err, 0)
			return
		}
	}

	h, err := s.deps.Jobs.Submit(r.Context(), documentID)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	st, err := s.deps.Jobs.Poll(documentID)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	logging.WithFields(r.Context(), "document_id", documentID, "job_id", h.JobID).
		Info("job requested", "state", st.State)

	writeJSONStatus(w, http.StatusAccepted, submitResponse{
		Handle:      h,
		State:       st.State,
		PollAfterMS: s.cfg.Jobs.PollInterval.Milliseconds(),
	})
}

// jobLive reports whether documentID has a job that Submit would return
// instead of starting a new one.
func (s *Server) jobLive(documentID string) bool {
	st, err := s.deps.Jobs.Poll(documentID)
	return err == nil && st.State != jobs.StateFailed
}

func (s *Server) stageUpload(w http.ResponseWriter, r *http.Request, documentID string) error {
	if s.deps.Staged == nil {
		return core.NewValidationError("file", errStagingDisabled)
	}
	if err := s.parseUploadForm(w, r); err != nil {
		return err
	}
	docs, err := readDocuments(r)
	if err != nil {
		return err
	}
	doc := docs[0]
	doc.ID = documentID
	s.deps.Staged.Stage(documentID, doc)
	return nil
}

// handlePollJob returns the current job state without waiting.
func (s *Server) handlePollJob(w http.ResponseWriter, r *http.Request) {
	documentID, err := documentIDParam(r)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	st, err := s.deps.Jobs.Poll(documentID)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, st)
}

// handleListDocuments lists parsed documents from the warehouse, optionally
// filtered by repeated path parameters.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, r, core.NewValidationError("limit", err), 0)
			return
		}
		limit = n
	}

	docs, err := s.deps.Documents.List(r.Context(), q["path"], limit)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, map[string]any{"documents": docs, "count": len(docs)})
}
