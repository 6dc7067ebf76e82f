package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lexure-intelligence/payment-watchdog/internal/models"
	"github.com/lexure-intelligence/payment-watchdog/internal/repository"
)

const (
	webhookTimeout    = 5 * time.Second
	webhookMaxRetries = 3
)

// Dispatcher fans an alert out to every webhook subscribed to its
// entityId, async and bounded-retry; permanent failures are logged to the
// dead-letter table, never surfaced (§7, grounded on the teacher's
// webhook_service.go logToDLQ idiom).
type Dispatcher struct {
	repo       *repository.WebhookRepository
	httpClient *http.Client
	logger     *zap.Logger
}

func NewDispatcher(repo *repository.WebhookRepository, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		repo:       repo,
		httpClient: &http.Client{Timeout: webhookTimeout},
		logger:     logger,
	}
}

// Dispatch delivers alert to every webhook subscribed to its entity. It
// must be called from a goroutine the caller does not wait on — delivery
// never blocks alert ingestion.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *models.RiskAlert) {
	subs, err := d.repo.ListByEntity(ctx, alert.EntityID)
	if err != nil {
		d.logger.Warn("webhook dispatch: failed to list subscriptions", zap.String("entityId", alert.EntityID), zap.Error(err))
		return
	}

	body, err := json.Marshal(alert)
	if err != nil {
		d.logger.Warn("webhook dispatch: failed to marshal alert", zap.Error(err))
		return
	}

	for _, sub := range subs {
		go d.deliverWithRetry(alert.AlertID, sub.WebhookURL, body)
	}
}

func (d *Dispatcher) deliverWithRetry(alertID, webhookURL string, body []byte) {
	var lastErr error
	for attempt := 1; attempt <= webhookMaxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
		err := d.deliver(ctx, webhookURL, body)
		cancel()
		if err == nil {
			return
		}
		lastErr = err
		time.Sleep(time.Duration(attempt) * 200 * time.Millisecond)
	}

	d.logger.Warn("webhook delivery exhausted retries, logging to dead letter",
		zap.String("alertId", alertID), zap.String("webhookUrl", webhookURL), zap.Error(lastErr))
	d.repo.LogDeadLetter(alertID, webhookURL, lastErr, webhookMaxRetries)
}

func (d *Dispatcher) deliver(ctx context.Context, webhookURL string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &httpStatusError{status: resp.StatusCode}
	}
	return nil
}

type httpStatusError struct{ status int }

func (e *httpStatusError) Error() string {
	return http.StatusText(e.status)
}
