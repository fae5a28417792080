package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/arisu-ai/arisu/internal/model"
)

// HandleGetTrace handles GET /v1/traces/{trace_id}.
// Returns the trace summary with its execution tree.
func (h *Handlers) HandleGetTrace(w http.ResponseWriter, r *http.Request) {
	projectID := ProjectIDFromContext(r.Context())
	traceID := r.PathValue("trace_id")

	trace, err := h.db.GetTrace(r.Context(), projectID, traceID)
	if err != nil {
		h.notFoundOr500(w, r, "trace", err)
		return
	}
	executions, err := h.db.GetExecutionsByTrace(r.Context(), projectID, traceID)
	if err != nil {
		h.writeInternalError(w, r, "failed to load executions", err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"trace":      trace,
		"executions": executions,
	})
}

// HandleDeleteTrace handles DELETE /v1/traces/{trace_id}.
// Removes the trace, its raw spans, and all derived rows.
func (h *Handlers) HandleDeleteTrace(w http.ResponseWriter, r *http.Request) {
	projectID := ProjectIDFromContext(r.Context())
	traceID := r.PathValue("trace_id")

	if err := h.db.DeleteTrace(r.Context(), projectID, traceID); err != nil {
		h.notFoundOr500(w, r, "trace", err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"deleted": traceID})
}

// HandleListExecutions handles GET /v1/executions.
// Filters come from query parameters; see model.ExecutionFilters.
func (h *Handlers) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	projectID := ProjectIDFromContext(r.Context())

	filters, err := executionFiltersFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	executions, err := h.db.ListExecutions(r.Context(), projectID, filters)
	if err != nil {
		h.writeInternalError(w, r, "failed to list executions", err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"executions": executions,
		"count":      len(executions),
	})
}

// HandleGetTraceMessages handles GET /v1/traces/{trace_id}/messages.
func (h *Handlers) HandleGetTraceMessages(w http.ResponseWriter, r *http.Request) {
	projectID := ProjectIDFromContext(r.Context())
	traceID := r.PathValue("trace_id")

	messages, err := h.db.GetMessagesByTrace(r.Context(), projectID, traceID)
	if err != nil {
		h.writeInternalError(w, r, "failed to load messages", err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"messages": messages})
}

// HandleGetTraceTools handles GET /v1/traces/{trace_id}/tools.
func (h *Handlers) HandleGetTraceTools(w http.ResponseWriter, r *http.Request) {
	projectID := ProjectIDFromContext(r.Context())
	traceID := r.PathValue("trace_id")

	tools, err := h.db.GetToolInvocationsByTrace(r.Context(), projectID, traceID)
	if err != nil {
		h.writeInternalError(w, r, "failed to load tool invocations", err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"tool_invocations": tools})
}

// HandleGetTraceTemplates handles GET /v1/traces/{trace_id}/templates.
func (h *Handlers) HandleGetTraceTemplates(w http.ResponseWriter, r *http.Request) {
	projectID := ProjectIDFromContext(r.Context())
	traceID := r.PathValue("trace_id")

	usages, err := h.db.GetTemplateUsagesByTrace(r.Context(), projectID, traceID)
	if err != nil {
		h.writeInternalError(w, r, "failed to load template usages", err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"template_usages": usages})
}

func executionFiltersFromQuery(r *http.Request) (model.ExecutionFilters, error) {
	var f model.ExecutionFilters
	q := r.URL.Query()

	strFilter := func(key string, dst **string) {
		if v := q.Get(key); v != "" {
			*dst = &v
		}
	}
	strFilter("trace_id", &f.TraceID)
	strFilter("provider", &f.Provider)
	strFilter("model", &f.Model)
	strFilter("agent_id", &f.AgentID)

	if v := q.Get("span_type"); v != "" {
		st := model.SpanType(v)
		f.SpanType = &st
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, &queryParamError{param: "since", hint: "RFC 3339 timestamp"}
		}
		f.Since = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, &queryParamError{param: "limit", hint: "non-negative integer"}
		}
		f.Limit = n
	}
	return f, nil
}

type queryParamError struct {
	param string
	hint  string
}

func (e *queryParamError) Error() string {
	return "invalid " + e.param + " parameter, expected " + e.hint
}
