package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/arisu-ai/arisu/internal/ingest"
	"github.com/arisu-ai/arisu/internal/model"
)

// HandleIngest handles POST /v1/traces (OTLP protobuf) and POST /v1/spans
// (JSON). The decoder dispatches on Content-Type; both routes share this
// handler so exporters can point either format at either path.
//
// The whole batch runs inside one transaction: span storage, trace upsert,
// execution upsert, and derived rows all land atomically at commit. A failure
// anywhere rolls the batch back so a retry sees a clean slate.
func (h *Handlers) HandleIngest(w http.ResponseWriter, r *http.Request) {
	projectID := ProjectIDFromContext(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxRequestBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, model.ErrCodeInvalidInput, "request body too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "failed to read request body")
		return
	}

	spans, err := ingest.DecodeSpans(r.Header.Get("Content-Type"), body)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrUnsupportedContentType):
			writeError(w, r, http.StatusUnsupportedMediaType, model.ErrCodeUnsupported, err.Error())
		case errors.Is(err, ingest.ErrEmptyBatch):
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "empty span batch")
		default:
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "malformed payload")
		}
		return
	}

	tx, err := h.db.Pool().Begin(r.Context())
	if err != nil {
		h.writeInternalError(w, r, "failed to begin transaction", err)
		return
	}
	defer func() { _ = tx.Rollback(r.Context()) }()

	res, err := h.processor.Process(r.Context(), tx, projectID, spans)
	if err != nil {
		if errors.Is(err, ingest.ErrNoProject) {
			writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no project scope")
			return
		}
		h.writeInternalError(w, r, "failed to process span batch", err)
		return
	}

	if err := tx.Commit(r.Context()); err != nil {
		h.writeInternalError(w, r, "failed to commit span batch", err)
		return
	}

	writeJSON(w, r, http.StatusOK, model.IngestResponse{
		Success:       true,
		SpansIngested: res.Stored,
		Message: fmt.Sprintf("stored %d spans, created %d executions, recomputed %d traces",
			res.Stored, res.Created, res.Recomputed),
	})
}
