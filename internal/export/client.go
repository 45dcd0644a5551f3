package export

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"promptkit/internal/config"
	"promptkit/pkg/trace"
)

// QueueSink enqueues spans for asynchronous delivery. It implements
// trace.Sink; enqueueing is the only work done on the caller's goroutine.
type QueueSink struct {
	client *asynq.Client
}

var _ trace.Sink = (*QueueSink)(nil)

func NewQueueSink(cfg config.RedisConfig) *QueueSink {
	return &QueueSink{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (s *QueueSink) ExportSpan(_ context.Context, span trace.SpanData) error {
	task, err := NewSpanExportTask(span)
	if err != nil {
		return err
	}
	_, err = s.client.Enqueue(task, asynq.MaxRetry(5), asynq.Timeout(30*time.Second))
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeSpanExport, err)
	}
	return nil
}

func (s *QueueSink) Close() error {
	return s.client.Close()
}
