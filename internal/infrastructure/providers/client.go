// Package providers holds the HTTP integrations for payment service
// providers. Every configured PSP speaks the same envelope; the adapter
// normalizes responses into the router's result types and raw decline codes
// into the gateway's taxonomy.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/meridianpay/gateway/internal/config"
	"github.com/meridianpay/gateway/internal/psp"
)

type Client struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds the adapter for one configured provider.
func NewClient(cfg config.PSPProviderConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		name:    cfg.Name,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) Name() string { return c.name }

func (c *Client) Authorize(ctx context.Context, req psp.AuthRequest) (psp.AuthResult, error) {
	body := authRequest{
		PaymentID:   req.PaymentID,
		MerchantID:  req.MerchantID,
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		CardToken:   req.CardToken,
	}
	if req.ThreeDS != nil {
		body.ThreeDS = &threeDSEvidence{CAVV: req.ThreeDS.CAVV, ECI: req.ThreeDS.ECI, XID: req.ThreeDS.XID}
	}

	resp, err := send[authRequest, authResponse](c, ctx, "/v1/authorizations", &body, req.CorrelationID)
	if err != nil {
		return psp.AuthResult{}, err
	}

	result := psp.AuthResult{
		Provider: c.name,
		Approved: resp.Approved,
		AuthRef:  resp.AuthRef,
		RawCode:  resp.DeclineCode,
	}
	if !resp.Approved {
		result.DeclineCode = normalizeDecline(resp.DeclineCode)
	}
	return result, nil
}

func (c *Client) Capture(ctx context.Context, req psp.CaptureRequest) (psp.CaptureResult, error) {
	body := captureRequest{
		PaymentID:   req.PaymentID,
		AuthRef:     req.AuthRef,
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
	}
	resp, err := send[captureRequest, captureResponse](c, ctx, "/v1/captures", &body, req.CorrelationID)
	if err != nil {
		return psp.CaptureResult{}, err
	}
	return psp.CaptureResult{Provider: c.name, CaptureRef: resp.CaptureRef}, nil
}

func (c *Client) Void(ctx context.Context, req psp.VoidRequest) (psp.VoidResult, error) {
	body := voidRequest{PaymentID: req.PaymentID, AuthRef: req.AuthRef}
	resp, err := send[voidRequest, voidResponse](c, ctx, "/v1/voids", &body, req.CorrelationID)
	if err != nil {
		return psp.VoidResult{}, err
	}
	return psp.VoidResult{Provider: c.name, VoidRef: resp.VoidRef}, nil
}

func (c *Client) Refund(ctx context.Context, req psp.RefundRequest) (psp.RefundResult, error) {
	body := refundRequest{
		PaymentID:   req.PaymentID,
		RefundID:    req.RefundID,
		CaptureRef:  req.CaptureRef,
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
	}
	resp, err := send[refundRequest, refundResponse](c, ctx, "/v1/refunds", &body, req.CorrelationID)
	if err != nil {
		return psp.RefundResult{}, err
	}
	return psp.RefundResult{Provider: c.name, RefundRef: resp.RefundRef}, nil
}

// send posts one request and decodes the provider's answer. Non-2xx statuses
// come back as *psp.ProviderError so the router can tell transient failures
// from contract errors.
func send[Req any, Resp any](c *Client, ctx context.Context, path string, reqBody *Req, correlationID string) (*Resp, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal psp request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("build psp request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if correlationID != "" {
		httpReq.Header.Set("X-Correlation-ID", correlationID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &psp.ProviderError{Provider: c.name, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		var errResp errorResponse
		if err := json.Unmarshal(body, &errResp); err != nil {
			return nil, &psp.ProviderError{
				Provider:   c.name,
				StatusCode: resp.StatusCode,
				Message:    string(body),
			}
		}
		return nil, &psp.ProviderError{
			Provider:   c.name,
			StatusCode: resp.StatusCode,
			Code:       errResp.Code,
			Message:    errResp.Message,
		}
	}

	var decoded Resp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &psp.ProviderError{Provider: c.name, Message: "undecodable response", Err: err}
	}
	return &decoded, nil
}
