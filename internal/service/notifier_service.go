package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atelierhq/studio-cms-api/pkg/config"
	"github.com/atelierhq/studio-cms-api/pkg/jobs"
)

// NotifierService posts rebuild webhooks to the static site pipeline whenever
// content changes. Deliveries run on a background queue so content writes
// never wait on the network.
type NotifierService struct {
	queue  *jobs.Queue
	client *http.Client
	logger *zap.Logger
	cfg    config.WebhookConfig
}

type rebuildPayload struct {
	Keys        []string  `json:"keys"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// NewNotifierService creates a new instance of NotifierService.
func NewNotifierService(logger *zap.Logger, cfg config.WebhookConfig) *NotifierService {
	s := &NotifierService{
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		cfg:    cfg,
	}
	s.queue = jobs.NewQueue("rebuild-webhook", s.deliver, jobs.QueueConfig{
		Workers:    1,
		BufferSize: 32,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logger,
	})
	return s
}

// Start launches the delivery workers.
func (s *NotifierService) Start() {
	if s.cfg.Enabled {
		s.queue.Start()
	}
}

// Stop drains pending deliveries.
func (s *NotifierService) Stop() {
	if s.cfg.Enabled {
		s.queue.Stop()
	}
}

// NotifyContentChanged enqueues one rebuild notification for the given keys.
func (s *NotifierService) NotifyContentChanged(keys []string) {
	if !s.cfg.Enabled || s.cfg.URL == "" {
		return
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    "content_changed",
		Payload: rebuildPayload{Keys: keys, TriggeredAt: time.Now().UTC()},
	})
	if err != nil {
		s.logger.Warn("failed to enqueue rebuild webhook", zap.Error(err))
	}
}

func (s *NotifierService) deliver(ctx context.Context, job jobs.Job) error {
	body, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	s.logger.Info("rebuild webhook delivered", zap.String("job_id", job.ID))
	return nil
}
