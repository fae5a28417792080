// Package ingest implements the span ingestion core: decoding wire payloads
// into canonical spans, classifying them, rebuilding the span hierarchy, and
// deriving execution, message, tool-invocation and template-usage records.
package ingest

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/protobuf/proto"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/arisu-ai/arisu/internal/model"
)

// Supported ingestion content types.
const (
	ContentTypeProtobuf = "application/x-protobuf"
	ContentTypeJSON     = "application/json"
)

// Decode error taxonomy. All of these are fatal to the call: nothing from a
// payload that fails to decode is stored.
var (
	ErrUnsupportedContentType = errors.New("ingest: unsupported content type")
	ErrEmptyBatch             = errors.New("ingest: span batch is empty")
	ErrMalformedPayload       = errors.New("ingest: malformed payload")
)

// DecodeSpans turns a wire payload into an ordered list of canonical spans.
// contentType may carry MIME parameters; only the media type is considered.
func DecodeSpans(contentType string, body []byte) ([]model.Span, error) {
	mediaType := strings.TrimSpace(strings.ToLower(contentType))
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}

	var (
		spans []model.Span
		err   error
	)
	switch mediaType {
	case ContentTypeProtobuf:
		spans, err = decodeProtobuf(body)
	case ContentTypeJSON:
		spans, err = decodeJSON(body)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
	}
	if err != nil {
		return nil, err
	}
	if len(spans) == 0 {
		return nil, ErrEmptyBatch
	}
	return spans, nil
}

// decodeProtobuf unmarshals an OTLP ExportTraceServiceRequest and flattens
// the resource → scope → span nesting into a single span list.
func decodeProtobuf(body []byte) ([]model.Span, error) {
	var req coltracepb.ExportTraceServiceRequest
	if err := proto.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: protobuf framing: %v", ErrMalformedPayload, err)
	}
	return SpansFromExportRequest(&req)
}

// SpansFromExportRequest flattens an already-decoded OTLP export request into
// canonical spans. The gRPC receiver uses this directly since gRPC framing
// hands it the decoded message.
func SpansFromExportRequest(req *coltracepb.ExportTraceServiceRequest) ([]model.Span, error) {
	var spans []model.Span
	for _, rs := range req.GetResourceSpans() {
		for _, ss := range rs.GetScopeSpans() {
			for _, sp := range ss.GetSpans() {
				s, err := canonicalFromProto(sp)
				if err != nil {
					return nil, err
				}
				spans = append(spans, s)
			}
		}
	}
	return spans, nil
}

func canonicalFromProto(sp *tracepb.Span) (model.Span, error) {
	traceID := hex.EncodeToString(sp.GetTraceId())
	spanID := hex.EncodeToString(sp.GetSpanId())
	if traceID == "" || spanID == "" {
		return model.Span{}, fmt.Errorf("%w: span %q missing trace or span id", ErrMalformedPayload, sp.GetName())
	}

	s := model.Span{
		TraceID:       traceID,
		SpanID:        spanID,
		ParentSpanID:  parentID(hex.EncodeToString(sp.GetParentSpanId()), spanID),
		Name:          sp.GetName(),
		Kind:          spanKindFromProto(sp.GetKind()),
		Attributes:    attributesFromProto(sp.GetAttributes()),
		StartTime:     time.Unix(0, int64(sp.GetStartTimeUnixNano())).UTC(),
		EndTime:       time.Unix(0, int64(sp.GetEndTimeUnixNano())).UTC(),
		StatusCode:    statusFromProto(sp.GetStatus().GetCode()),
		StatusMessage: sp.GetStatus().GetMessage(),
	}
	// Exporters occasionally flush spans with a zero or inverted end time.
	// Clamp rather than reject so one sloppy span cannot fail the batch.
	if s.EndTime.Before(s.StartTime) {
		s.EndTime = s.StartTime
	}

	for _, ev := range sp.GetEvents() {
		s.Events = append(s.Events, model.SpanEvent{
			Name:       ev.GetName(),
			Timestamp:  time.Unix(0, int64(ev.GetTimeUnixNano())).UTC(),
			Attributes: attributesFromProto(ev.GetAttributes()),
		})
	}
	return s, nil
}

// parentID normalizes an optional parent span id: empty means absent, and a
// parent equal to the span itself is dropped (no self-parenting).
func parentID(parent, self string) *string {
	if parent == "" || parent == self {
		return nil
	}
	return &parent
}

func attributesFromProto(kvs []*commonpb.KeyValue) map[string]any {
	if len(kvs) == 0 {
		return nil
	}
	attrs := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		attrs[kv.GetKey()] = anyValueToGo(kv.GetValue())
	}
	return attrs
}

// anyValueToGo recursively unwraps the OTLP tagged-union attribute value into
// a plain host value. Raw bytes become their hex-string form.
func anyValueToGo(v *commonpb.AnyValue) any {
	switch val := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return val.StringValue
	case *commonpb.AnyValue_BoolValue:
		return val.BoolValue
	case *commonpb.AnyValue_IntValue:
		return val.IntValue
	case *commonpb.AnyValue_DoubleValue:
		return val.DoubleValue
	case *commonpb.AnyValue_BytesValue:
		return hex.EncodeToString(val.BytesValue)
	case *commonpb.AnyValue_ArrayValue:
		items := make([]any, 0, len(val.ArrayValue.GetValues()))
		for _, item := range val.ArrayValue.GetValues() {
			items = append(items, anyValueToGo(item))
		}
		return items
	case *commonpb.AnyValue_KvlistValue:
		nested := make(map[string]any, len(val.KvlistValue.GetValues()))
		for _, kv := range val.KvlistValue.GetValues() {
			nested[kv.GetKey()] = anyValueToGo(kv.GetValue())
		}
		return nested
	default:
		return nil
	}
}

func spanKindFromProto(kind tracepb.Span_SpanKind) model.SpanKind {
	switch kind {
	case tracepb.Span_SPAN_KIND_INTERNAL:
		return model.SpanKindInternal
	case tracepb.Span_SPAN_KIND_SERVER:
		return model.SpanKindServer
	case tracepb.Span_SPAN_KIND_CLIENT:
		return model.SpanKindClient
	case tracepb.Span_SPAN_KIND_PRODUCER:
		return model.SpanKindProducer
	case tracepb.Span_SPAN_KIND_CONSUMER:
		return model.SpanKindConsumer
	default:
		return model.SpanKindUnspecified
	}
}

func statusFromProto(code tracepb.Status_StatusCode) model.StatusCode {
	switch code {
	case tracepb.Status_STATUS_CODE_OK:
		return model.StatusOK
	case tracepb.Status_STATUS_CODE_ERROR:
		return model.StatusError
	default:
		return model.StatusUnset
	}
}

// jsonPayload is the structured-text ingestion body.
type jsonPayload struct {
	Spans []jsonSpan `json:"spans"`
}

type jsonSpan struct {
	TraceID       string         `json:"trace_id"`
	SpanID        string         `json:"span_id"`
	ParentSpanID  *string        `json:"parent_span_id,omitempty"`
	SpanName      string         `json:"span_name"`
	SpanKind      string         `json:"span_kind,omitempty"`
	Attributes    map[string]any `json:"attributes,omitempty"`
	Events        []jsonEvent    `json:"events,omitempty"`
	StartTimeNs   int64          `json:"start_time_ns"`
	EndTimeNs     int64          `json:"end_time_ns"`
	StatusCode    string         `json:"status_code,omitempty"`
	StatusMessage string         `json:"status_message,omitempty"`
}

type jsonEvent struct {
	Name       string         `json:"name"`
	TimeNs     int64          `json:"time_ns"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

var jsonSpanKinds = map[string]model.SpanKind{
	"internal": model.SpanKindInternal,
	"server":   model.SpanKindServer,
	"client":   model.SpanKindClient,
	"producer": model.SpanKindProducer,
	"consumer": model.SpanKindConsumer,
}

var jsonStatusCodes = map[string]model.StatusCode{
	"ok":    model.StatusOK,
	"error": model.StatusError,
	"unset": model.StatusUnset,
}

func decodeJSON(body []byte) ([]model.Span, error) {
	var payload jsonPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	spans := make([]model.Span, 0, len(payload.Spans))
	for i, js := range payload.Spans {
		if js.TraceID == "" {
			return nil, fmt.Errorf("%w: spans[%d] missing trace_id", ErrMalformedPayload, i)
		}
		if js.SpanID == "" {
			return nil, fmt.Errorf("%w: spans[%d] missing span_id", ErrMalformedPayload, i)
		}

		kind := model.SpanKindInternal
		if js.SpanKind != "" {
			k, ok := jsonSpanKinds[strings.ToLower(js.SpanKind)]
			if !ok {
				k = model.SpanKindUnspecified
			}
			kind = k
		}
		status := model.StatusUnset
		if js.StatusCode != "" {
			if sc, ok := jsonStatusCodes[strings.ToLower(js.StatusCode)]; ok {
				status = sc
			}
		}

		parent := (*string)(nil)
		if js.ParentSpanID != nil {
			parent = parentID(*js.ParentSpanID, js.SpanID)
		}

		s := model.Span{
			TraceID:       js.TraceID,
			SpanID:        js.SpanID,
			ParentSpanID:  parent,
			Name:          js.SpanName,
			Kind:          kind,
			Attributes:    js.Attributes,
			StartTime:     time.Unix(0, js.StartTimeNs).UTC(),
			EndTime:       time.Unix(0, js.EndTimeNs).UTC(),
			StatusCode:    status,
			StatusMessage: js.StatusMessage,
		}
		if s.EndTime.Before(s.StartTime) {
			s.EndTime = s.StartTime
		}
		for _, ev := range js.Events {
			s.Events = append(s.Events, model.SpanEvent{
				Name:       ev.Name,
				Timestamp:  time.Unix(0, ev.TimeNs).UTC(),
				Attributes: ev.Attributes,
			})
		}
		spans = append(spans, s)
	}
	return spans, nil
}
