package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Deliverer POSTs exported spans to the trace collector. Non-2xx
// responses return an error so asynq retries the task.
type Deliverer struct {
	collectorURL string
	apiKey       string
	httpClient   *http.Client
	log          zerolog.Logger
}

func NewDeliverer(collectorURL, apiKey string, log zerolog.Logger) *Deliverer {
	return &Deliverer{
		collectorURL: collectorURL,
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		log:          log,
	}
}

// HandleSpanExport is the asynq handler for TypeSpanExport tasks.
func (d *Deliverer) HandleSpanExport(ctx context.Context, task *asynq.Task) error {
	var payload SpanExportPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal span payload: %w", err)
	}

	body, err := json.Marshal(payload.Span)
	if err != nil {
		return fmt.Errorf("marshal span: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.collectorURL+"/api/v1/spans", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build collector request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("X-API-Key", d.apiKey)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver span: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("collector rejected span: %s", resp.Status)
	}

	d.log.Debug().
		Str("span_id", payload.Span.ID).
		Str("trace_id", payload.Span.TraceID).
		Msg("span delivered")
	return nil
}

// Mux registers the export handlers on an asynq mux.
func (d *Deliverer) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSpanExport, d.HandleSpanExport)
	return mux
}
