// Package scoring is the HTTP client for the fraud scoring service. When the
// service cannot answer inside its deadline the client degrades to the local
// rule scorer instead of failing the authorization.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/meridianpay/gateway/internal/application"
	"github.com/meridianpay/gateway/internal/config"
	"github.com/meridianpay/gateway/internal/fraud"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	fallback   *fraud.Rules
	logger     *slog.Logger
}

func NewClient(cfg config.FraudConfig, fallback *fraud.Rules, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		fallback: fallback,
		logger:   logger,
	}
}

// Evaluate scores the payment with the remote model, re-banding the score
// against the local thresholds. Any transport failure falls back to the rule
// scorer; authorizations never wait on a dead scoring service.
func (c *Client) Evaluate(ctx context.Context, in application.FraudInput) (application.FraudResult, error) {
	body := scoreRequest{
		PaymentID:    in.PaymentID,
		MerchantID:   in.MerchantID,
		AmountMinor:  in.AmountMinor,
		Currency:     in.Currency,
		CardToken:    in.CardToken,
		CardLastFour: in.CardLastFour,
		SourceIP:     in.SourceIP,
	}

	resp, err := c.send(ctx, &body)
	if err != nil {
		c.logger.Warn("fraud scoring degraded to local rules",
			"payment_id", in.PaymentID,
			"error", err)
		return c.fallback.Score(ctx, in), nil
	}

	result := application.FraudResult{
		Score:          resp.Score,
		Decision:       application.FraudDecision(resp.Decision),
		RequireThreeDS: resp.RequireThreeDS,
		TriggeredRules: resp.TriggeredRules,
	}
	// The local bands are authoritative regardless of what the service
	// claims; a blocklisted source blocks even a clean model score.
	if c.fallback.Blocklisted(in.SourceIP) {
		result.Score = 1.0
		result.TriggeredRules = append(result.TriggeredRules, "ip_blocklist")
	}
	return c.fallback.Thresholds().Apply(result), nil
}

func (c *Client) send(ctx context.Context, reqBody *scoreRequest) (*scoreResponse, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal scoring request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/scores", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("build scoring request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("scoring request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("scoring service status %d: %s", resp.StatusCode, string(respBody))
	}

	var decoded scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode scoring response: %w", err)
	}
	return &decoded, nil
}

type scoreRequest struct {
	PaymentID    string `json:"payment_id"`
	MerchantID   string `json:"merchant_id"`
	AmountMinor  int64  `json:"amount_minor"`
	Currency     string `json:"currency"`
	CardToken    string `json:"card_token"`
	CardLastFour string `json:"card_last_four"`
	SourceIP     string `json:"source_ip"`
}

type scoreResponse struct {
	Score          float64  `json:"score"`
	Decision       string   `json:"decision"`
	RequireThreeDS bool     `json:"require_three_ds"`
	TriggeredRules []string `json:"triggered_rules"`
}
