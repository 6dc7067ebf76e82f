package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lexure-intelligence/payment-watchdog/internal/models"
)

// ModelClient calls an external risk-scoring model service (§6 "Model
// service"). It replaces the rule score for the MERCHANT dimension only
// when it returns a usable score within its timeout; any non-2xx,
// timeout, or malformed response is treated as a miss and the engine
// silently falls back to rule-only scoring (§7 "Model-service failures
// silently degrade to rule-only scoring").
type ModelClient struct {
	serviceURL string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

func NewModelClient(serviceURL string, timeoutMs int, logger *zap.Logger) *ModelClient {
	timeout := time.Duration(timeoutMs) * time.Millisecond
	if timeout <= 0 || timeout > 2*time.Second {
		timeout = 2 * time.Second
	}
	return &ModelClient{
		serviceURL: serviceURL,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type modelResponse struct {
	RiskScore *float64 `json:"riskScore"`
}

// Score returns a model-derived score in [0,1] for the given features, or
// false on any miss (timeout, non-2xx, malformed body, score out of range).
func (c *ModelClient) Score(ctx context.Context, features models.WindowFeatures) (float64, bool) {
	if c.serviceURL == "" {
		return 0, false
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(features)
	if err != nil {
		c.logger.Warn("risk model: failed to marshal features", zap.Error(err))
		return 0, false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceURL, bytes.NewReader(body))
	if err != nil {
		c.logger.Warn("risk model: failed to build request", zap.Error(err))
		return 0, false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("risk model: request failed, falling back to rule score", zap.Error(err))
		return 0, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("risk model: non-2xx response, falling back to rule score", zap.Int("status", resp.StatusCode))
		return 0, false
	}

	var parsed modelResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || parsed.RiskScore == nil {
		c.logger.Debug("risk model: malformed response, falling back to rule score")
		return 0, false
	}

	score := *parsed.RiskScore
	if score < 0 || score > 1 {
		c.logger.Debug("risk model: score out of range, falling back to rule score", zap.Float64("score", score))
		return 0, false
	}
	return score, true
}
