// Package threeds is the HTTP client for the 3-D Secure authentication
// service.
package threeds

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/meridianpay/gateway/internal/application"
	"github.com/meridianpay/gateway/internal/config"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg config.ThreeDSConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Initiate starts payer authentication for a tokenized card. Frictionless
// flows come back AUTHENTICATED immediately; challenge flows return the URL
// the payer must visit.
func (c *Client) Initiate(ctx context.Context, req application.ThreeDSRequest) (application.ThreeDSResult, error) {
	body := initiateRequest{
		PaymentID:   req.PaymentID,
		MerchantID:  req.MerchantID,
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		CardToken:   req.CardToken,
	}
	resp, err := send[initiateRequest, authenticationResponse](c, ctx, "/v1/authentications", &body)
	if err != nil {
		return application.ThreeDSResult{}, err
	}
	return resp.toResult(), nil
}

// Complete finishes a challenge flow with the payer's response.
func (c *Client) Complete(ctx context.Context, xid, response string) (application.ThreeDSResult, error) {
	body := completeRequest{XID: xid, Response: response}
	resp, err := send[completeRequest, authenticationResponse](c, ctx, "/v1/authentications/complete", &body)
	if err != nil {
		return application.ThreeDSResult{}, err
	}
	return resp.toResult(), nil
}

func send[Req any, Resp any](c *Client, ctx context.Context, path string, reqBody *Req) (*Resp, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal 3ds request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("build 3ds request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("3ds request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("3ds service status %d: %s", resp.StatusCode, string(respBody))
	}

	var decoded Resp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode 3ds response: %w", err)
	}
	return &decoded, nil
}

type initiateRequest struct {
	PaymentID   string `json:"payment_id"`
	MerchantID  string `json:"merchant_id"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	CardToken   string `json:"card_token"`
}

type completeRequest struct {
	XID      string `json:"xid"`
	Response string `json:"response"`
}

type authenticationResponse struct {
	Status       string `json:"status"`
	CAVV         string `json:"cavv,omitempty"`
	ECI          string `json:"eci,omitempty"`
	XID          string `json:"xid,omitempty"`
	ChallengeURL string `json:"challenge_url,omitempty"`
}

func (r *authenticationResponse) toResult() application.ThreeDSResult {
	return application.ThreeDSResult{
		Status:       application.ThreeDSStatus(r.Status),
		CAVV:         r.CAVV,
		ECI:          r.ECI,
		XID:          r.XID,
		ChallengeURL: r.ChallengeURL,
	}
}
