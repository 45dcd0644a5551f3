package export

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptkit/pkg/trace"
)

func sampleSpan() trace.SpanData {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return trace.SpanData{
		ID:        "span-1",
		TraceID:   "trace-1",
		Name:      "openai.chat",
		Provider:  "openai",
		Model:     "gpt-4o",
		Output:    map[string]any{"role": "assistant", "content": "hi"},
		Usage:     &trace.Usage{InputTokens: 3, OutputTokens: 1, TotalTokens: 4},
		StartTime: now,
		EndTime:   now.Add(time.Second),
	}
}

func TestSpanExportTaskRoundTrip(t *testing.T) {
	task, err := NewSpanExportTask(sampleSpan())
	require.NoError(t, err)
	assert.Equal(t, TypeSpanExport, task.Type())

	var payload SpanExportPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "span-1", payload.Span.ID)
	assert.Equal(t, "gpt-4o", payload.Span.Model)
	require.NotNil(t, payload.Span.Usage)
	assert.Equal(t, 4, payload.Span.Usage.TotalTokens)
}

func TestDelivererPostsSpan(t *testing.T) {
	var gotPath, gotKey string
	var gotSpan trace.SpanData
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotSpan))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := NewDeliverer(srv.URL, "collector-key", zerolog.Nop())
	task, err := NewSpanExportTask(sampleSpan())
	require.NoError(t, err)

	require.NoError(t, d.HandleSpanExport(context.Background(), task))
	assert.Equal(t, "/api/v1/spans", gotPath)
	assert.Equal(t, "collector-key", gotKey)
	assert.Equal(t, "span-1", gotSpan.ID)
}

func TestDelivererRejectionIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "full", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := NewDeliverer(srv.URL, "", zerolog.Nop())
	task, err := NewSpanExportTask(sampleSpan())
	require.NoError(t, err)

	err = d.HandleSpanExport(context.Background(), task)
	require.Error(t, err, "collector rejections must surface so asynq retries")
	assert.Contains(t, err.Error(), "503")
}

func TestDelivererBadPayloadFails(t *testing.T) {
	d := NewDeliverer("http://localhost:0", "", zerolog.Nop())
	err := d.HandleSpanExport(context.Background(), asynq.NewTask(TypeSpanExport, []byte("{not json")))
	require.Error(t, err)
}
