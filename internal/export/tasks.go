// Package export ships finished spans to a trace collector through an
// asynq queue so generation latency never includes collector latency.
package export

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"promptkit/pkg/trace"
)

const TypeSpanExport = "span:export"

// SpanExportPayload is the queued form of one finished span.
type SpanExportPayload struct {
	Span trace.SpanData `json:"span"`
}

func NewSpanExportTask(span trace.SpanData) (*asynq.Task, error) {
	data, err := json.Marshal(SpanExportPayload{Span: span})
	if err != nil {
		return nil, fmt.Errorf("marshal span payload: %w", err)
	}
	return asynq.NewTask(TypeSpanExport, data), nil
}
