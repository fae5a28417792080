package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arisu-ai/arisu/internal/model"
	"github.com/arisu-ai/arisu/internal/pricing"
)

// templateMarker is the platform's template-linkage marker embedded in
// message text by the instrumented prompt builder: [[tpl:<id>@<version>]].
// Markers are recorded as template-usage rows and stripped from the stored
// text so raw prompts stay readable.
var templateMarker = regexp.MustCompile(`\[\[tpl:([^@\]\s]+)(?:@([^\]\s]+))?\]\]`)

// Extraction is everything derived from one root span's subtree.
type Extraction struct {
	Trace           model.Trace
	Executions      []model.Execution
	Messages        []model.ExecutionMessage
	ToolInvocations []model.ToolInvocation
	TemplateUsages  []model.TemplateUsage
}

// Extractor derives execution records from a span hierarchy. Pricing is an
// external collaborator: the extractor stores whatever the service returns
// and has no rate knowledge of its own.
type Extractor struct {
	pricer pricing.Service
	logger *slog.Logger
}

// NewExtractor creates an Extractor. A nil pricer skips cost computation
// entirely, leaving the cost columns unset; pricing.Noop stores explicit
// zeroes instead.
func NewExtractor(pricer pricing.Service, logger *slog.Logger) *Extractor {
	return &Extractor{pricer: pricer, logger: logger}
}

// Extract walks downward from root through the hierarchy, producing one
// execution record per meaningful span plus the message, tool-invocation and
// template-usage rows derived from their attributes.
//
// Classification ambiguity is never an error. A structurally malformed
// attribute drops that single field with a logged warning; extraction of the
// rest of the subtree continues.
func (x *Extractor) Extract(ctx context.Context, root model.Span, h *Hierarchy, projectID uuid.UUID) Extraction {
	var out Extraction
	walked := make(map[string]bool, h.Len())
	x.walk(ctx, root, h, projectID, nil, walked, &out)
	x.pairToolCalls(&out, h, projectID)
	out.Trace = x.traceFields(root, projectID, walked, h, out.Executions)
	return out
}

func (x *Extractor) walk(
	ctx context.Context,
	span model.Span,
	h *Hierarchy,
	projectID uuid.UUID,
	parentExecID *string,
	walked map[string]bool,
	out *Extraction,
) {
	if walked[span.SpanID] {
		return
	}
	walked[span.SpanID] = true

	// A self-parenting span is ignored rather than stored as a cycle. The
	// decoder clears these, so this only triggers on hand-built spans.
	if span.ParentSpanID != nil && *span.ParentSpanID == span.SpanID {
		x.logger.Warn("ingest: skipping self-parenting span",
			"trace_id", span.TraceID, "span_id", span.SpanID)
		return
	}

	nextParent := parentExecID
	if ClassifySpan(span).Meaningful() {
		exec := x.buildExecution(ctx, span, projectID, parentExecID)
		out.Executions = append(out.Executions, exec)

		msgs, usages := x.parseMessages(span, projectID, model.DirectionInput, attrInputMessages)
		outMsgs, outUsages := x.parseMessages(span, projectID, model.DirectionOutput, attrOutputMessages)
		out.Messages = append(out.Messages, msgs...)
		out.Messages = append(out.Messages, outMsgs...)
		out.TemplateUsages = append(out.TemplateUsages, usages...)
		out.TemplateUsages = append(out.TemplateUsages, outUsages...)

		id := span.SpanID
		nextParent = &id
	}

	for _, child := range h.Children(span.SpanID) {
		x.walk(ctx, child, h, projectID, nextParent, walked, out)
	}
}

func (x *Extractor) buildExecution(ctx context.Context, span model.Span, projectID uuid.UUID, parentExecID *string) model.Execution {
	exec := model.Execution{
		TraceID:       span.TraceID,
		SpanID:        span.SpanID,
		ProjectID:     projectID,
		ParentSpanID:  parentExecID,
		SpanType:      ClassifySpan(span),
		Name:          span.Name,
		AgentID:       attrString(span.Attributes, attrAgentID),
		AgentName:     attrString(span.Attributes, attrAgentName),
		Status:        span.StatusCode,
		StatusMessage: span.StatusMessage,
		StartTime:     span.StartTime,
		EndTime:       span.EndTime,
		Attributes:    span.Attributes,
	}

	if p := attrString(span.Attributes, attrSystem); p != nil {
		norm := NormalizeProvider(*p)
		exec.Provider = &norm
	}
	mdl := attrString(span.Attributes, attrResponseModel)
	if mdl == nil {
		mdl = attrString(span.Attributes, attrRequestModel)
	}
	if mdl != nil {
		norm := NormalizeModel(*mdl)
		exec.Model = &norm
	}

	exec.InputTokens = attrInt64(span.Attributes, attrInputTokens)
	if exec.InputTokens == nil {
		exec.InputTokens = attrInt64(span.Attributes, attrPromptTokensLegacy)
	}
	exec.OutputTokens = attrInt64(span.Attributes, attrOutputTokens)
	if exec.OutputTokens == nil {
		exec.OutputTokens = attrInt64(span.Attributes, attrCompletionTokensLegacy)
	}

	if x.pricer != nil && exec.Provider != nil && exec.Model != nil &&
		(exec.InputTokens != nil || exec.OutputTokens != nil) {
		var in, outTok int64
		if exec.InputTokens != nil {
			in = *exec.InputTokens
		}
		if exec.OutputTokens != nil {
			outTok = *exec.OutputTokens
		}
		cost, err := x.pricer.Cost(ctx, *exec.Provider, *exec.Model, in, outTok)
		if err != nil {
			x.logger.Warn("ingest: cost lookup failed",
				"trace_id", span.TraceID, "span_id", span.SpanID,
				"provider", *exec.Provider, "model", *exec.Model, "error", err)
		} else {
			exec.InputCost = &cost.Input
			exec.OutputCost = &cost.Output
			exec.TotalCost = &cost.Total
		}
	}
	return exec
}

// rawMessage is the shape of one entry in the serialized message-list
// attribute slots. Either parts or a bare content string is accepted.
type rawMessage struct {
	Role    string    `json:"role"`
	Parts   []rawPart `json:"parts"`
	Content string    `json:"content"`
}

type rawPart struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	Content   string `json:"content"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments any    `json:"arguments"`
	Response  any    `json:"response"`
}

// parseMessages reads one of the two well-known message-list attribute slots.
// A malformed slot (wrong type, unparsable JSON) drops that slot with a
// warning; it never aborts the span or the batch.
func (x *Extractor) parseMessages(
	span model.Span,
	projectID uuid.UUID,
	direction model.MessageDirection,
	key string,
) ([]model.ExecutionMessage, []model.TemplateUsage) {
	raw, ok := span.Attributes[key]
	if !ok {
		return nil, nil
	}

	var entries []rawMessage
	switch v := raw.(type) {
	case string:
		if err := json.Unmarshal([]byte(v), &entries); err != nil {
			x.logger.Warn("ingest: skipping malformed message attribute",
				"trace_id", span.TraceID, "span_id", span.SpanID,
				"attribute", key, "error", err)
			return nil, nil
		}
	case []any:
		// Round-trip through JSON to reuse the rawMessage shape.
		buf, err := json.Marshal(v)
		if err == nil {
			err = json.Unmarshal(buf, &entries)
		}
		if err != nil {
			x.logger.Warn("ingest: skipping malformed message attribute",
				"trace_id", span.TraceID, "span_id", span.SpanID,
				"attribute", key, "error", err)
			return nil, nil
		}
	default:
		x.logger.Warn("ingest: skipping message attribute of unexpected type",
			"trace_id", span.TraceID, "span_id", span.SpanID, "attribute", key)
		return nil, nil
	}

	var (
		messages []model.ExecutionMessage
		usages   []model.TemplateUsage
	)
	for i, entry := range entries {
		role := messageRole(entry.Role, direction)
		parts := entry.Parts
		if len(parts) == 0 && entry.Content != "" {
			parts = []rawPart{{Type: model.PartTypeText, Text: entry.Content}}
		}

		msg := model.ExecutionMessage{
			TraceID:   span.TraceID,
			SpanID:    span.SpanID,
			ProjectID: projectID,
			Direction: direction,
			Idx:       i,
			Role:      role,
		}
		for _, p := range parts {
			part, partUsages := x.convertPart(span, p, direction, i, role)
			msg.Parts = append(msg.Parts, part)
			for _, u := range partUsages {
				u.ProjectID = projectID
				usages = append(usages, u)
			}
		}
		messages = append(messages, msg)
	}
	return messages, usages
}

func (x *Extractor) convertPart(
	span model.Span,
	p rawPart,
	direction model.MessageDirection,
	position int,
	role model.MessageRole,
) (model.MessagePart, []model.TemplateUsage) {
	partType := p.Type
	if partType == "" {
		partType = model.PartTypeText
	}
	part := model.MessagePart{
		Type:     partType,
		ID:       p.ID,
		Name:     p.Name,
		Response: p.Response,
	}

	text := p.Text
	if text == "" {
		text = p.Content
	}
	var usages []model.TemplateUsage
	if partType == model.PartTypeText && text != "" {
		stripped, found := extractTemplateUsages(span, text, direction, position, role)
		part.Text = stripped
		usages = found
	} else {
		part.Text = text
	}

	switch args := p.Arguments.(type) {
	case nil:
	case map[string]any:
		part.Arguments = args
	case string:
		var parsed map[string]any
		if err := json.Unmarshal([]byte(args), &parsed); err == nil {
			part.Arguments = parsed
		} else {
			part.Arguments = map[string]any{"raw": args}
		}
	default:
		x.logger.Warn("ingest: skipping tool arguments of unexpected type",
			"trace_id", span.TraceID, "span_id", span.SpanID, "part_type", partType)
	}
	return part, usages
}

// extractTemplateUsages records each template marker found in the text and
// returns the text with the markers removed.
func extractTemplateUsages(
	span model.Span,
	text string,
	direction model.MessageDirection,
	position int,
	role model.MessageRole,
) (string, []model.TemplateUsage) {
	matches := templateMarker.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return text, nil
	}
	usages := make([]model.TemplateUsage, 0, len(matches))
	for _, m := range matches {
		usages = append(usages, model.TemplateUsage{
			TraceID:    span.TraceID,
			SpanID:     span.SpanID,
			TemplateID: m[1],
			Version:    m[2],
			Direction:  direction,
			Position:   position,
			Role:       role,
			Source:     model.PartTypeText,
		})
	}
	stripped := strings.TrimSpace(templateMarker.ReplaceAllString(text, ""))
	return stripped, usages
}

func messageRole(role string, direction model.MessageDirection) model.MessageRole {
	switch r := model.MessageRole(strings.ToLower(role)); r {
	case model.RoleSystem, model.RoleUser, model.RoleAssistant, model.RoleTool:
		return r
	}
	if direction == model.DirectionOutput {
		return model.RoleAssistant
	}
	return model.RoleUser
}

// pairToolCalls scans output-message parts for tool_call fragments and
// matches each against a tool_call_response carrying the same call id,
// anywhere in the extracted subtree. Unmatched calls are recorded with
// status pending; a later recompute resolves them.
func (x *Extractor) pairToolCalls(out *Extraction, h *Hierarchy, projectID uuid.UUID) {
	responses := make(map[string]model.MessagePart)
	for _, msg := range out.Messages {
		for _, part := range msg.Parts {
			if part.Type == model.PartTypeToolCallResponse && part.ID != "" {
				if _, seen := responses[part.ID]; !seen {
					responses[part.ID] = part
				}
			}
		}
	}

	seen := make(map[string]bool)
	for _, msg := range out.Messages {
		if msg.Direction != model.DirectionOutput {
			continue
		}
		for _, part := range msg.Parts {
			if part.Type != model.PartTypeToolCall || part.ID == "" || seen[part.ID] {
				continue
			}
			seen[part.ID] = true

			inv := model.ToolInvocation{
				TraceID:    msg.TraceID,
				SpanID:     msg.SpanID,
				ProjectID:  projectID,
				ToolCallID: part.ID,
				Name:       part.Name,
				Arguments:  part.Arguments,
				Status:     model.ToolCallPending,
			}
			if resp, ok := responses[part.ID]; ok {
				inv.Result = resp.Response
				inv.Status = model.ToolCallOK
			}
			if toolSpan, ok := findToolSpan(h, part.ID); ok {
				start, end := toolSpan.StartTime, toolSpan.EndTime
				inv.StartTime = &start
				inv.EndTime = &end
				if toolSpan.StatusCode == model.StatusError {
					inv.Status = model.ToolCallError
				}
			}
			out.ToolInvocations = append(out.ToolInvocations, inv)
		}
	}
}

// findToolSpan locates a span carrying the given tool call id attribute, for
// optional invocation timing.
func findToolSpan(h *Hierarchy, callID string) (model.Span, bool) {
	for _, s := range h.byID {
		if id := attrString(s.Attributes, attrToolCallID); id != nil && *id == callID {
			return s, true
		}
	}
	return model.Span{}, false
}

// traceFields derives the trace-level summary from the walked subtree:
// time bounds from the union of its spans, dominant provider across its
// executions, free-form attributes from the root.
func (x *Extractor) traceFields(
	root model.Span,
	projectID uuid.UUID,
	walked map[string]bool,
	h *Hierarchy,
	executions []model.Execution,
) model.Trace {
	start, end := root.StartTime, root.EndTime
	for spanID := range walked {
		s, ok := h.Span(spanID)
		if !ok {
			continue
		}
		if s.StartTime.Before(start) {
			start = s.StartTime
		}
		if s.EndTime.After(end) {
			end = s.EndTime
		}
	}

	counts := make(map[string]int)
	var dominant *string
	for _, exec := range executions {
		if exec.Provider == nil {
			continue
		}
		counts[*exec.Provider]++
		if dominant == nil || counts[*exec.Provider] > counts[*dominant] {
			p := *exec.Provider
			dominant = &p
		}
	}

	now := time.Now().UTC()
	return model.Trace{
		TraceID:    root.TraceID,
		ProjectID:  projectID,
		Provider:   dominant,
		StartTime:  start,
		EndTime:    end,
		Attributes: root.Attributes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
