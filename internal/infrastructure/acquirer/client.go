// Package acquirer is the HTTP client for the acquiring bank's settlement
// API: batch submission and the processing report used by reconciliation.
package acquirer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianpay/gateway/internal/application"
	"github.com/meridianpay/gateway/internal/config"
	"github.com/meridianpay/gateway/internal/domain"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(cfg config.AcquirerConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SubmitBatch files a settlement batch and returns the acquirer's reference.
func (c *Client) SubmitBatch(ctx context.Context, sub application.BatchSubmission) (string, error) {
	body := submitRequest{
		BatchID:        sub.BatchID,
		MerchantID:     sub.MerchantID,
		Currency:       sub.Currency,
		SettlementDate: sub.SettlementDate.UTC().Format("2006-01-02"),
		GrossMinor:     sub.GrossMinor,
		NetMinor:       sub.NetMinor,
		PaymentCount:   sub.PaymentCount,
		PaymentIDs:     sub.PaymentIDs,
	}
	resp, err := send[submitRequest, submitResponse](c, ctx, http.MethodPost, "/v1/batches", &body)
	if err != nil {
		return "", err
	}
	return resp.AcquirerRef, nil
}

// FetchReport pulls the processing report for a submitted batch. Ready is
// false while the acquirer is still working the file; amounts arrive as
// decimal strings and stay decimal through reconciliation.
func (c *Client) FetchReport(ctx context.Context, acquirerRef string) (*application.SettlementReport, error) {
	resp, err := send[struct{}, reportResponse](c, ctx, http.MethodGet, "/v1/batches/"+acquirerRef+"/report", nil)
	if err != nil {
		return nil, err
	}

	report := &application.SettlementReport{
		AcquirerRef: resp.AcquirerRef,
		Ready:       resp.Status == "PROCESSED",
		Lines:       make([]domain.AcquirerReportLine, 0, len(resp.Lines)),
	}
	if resp.TotalAmount != "" {
		total, err := decimal.NewFromString(resp.TotalAmount)
		if err != nil {
			return nil, fmt.Errorf("acquirer report total %q: %w", resp.TotalAmount, err)
		}
		report.TotalMajor = total
	}
	for _, line := range resp.Lines {
		amount, err := decimal.NewFromString(line.Amount)
		if err != nil {
			return nil, fmt.Errorf("acquirer report line %s amount %q: %w", line.PaymentID, line.Amount, err)
		}
		settledAt, err := time.Parse(time.RFC3339, line.SettledAt)
		if err != nil {
			return nil, fmt.Errorf("acquirer report line %s settled_at %q: %w", line.PaymentID, line.SettledAt, err)
		}
		report.Lines = append(report.Lines, domain.AcquirerReportLine{
			PaymentID:   line.PaymentID,
			AmountMajor: amount,
			Currency:    line.Currency,
			SettledAt:   settledAt,
		})
	}
	return report, nil
}

func send[Req any, Resp any](c *Client, ctx context.Context, method, path string, reqBody *Req) (*Resp, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal acquirer request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build acquirer request: %w", err)
	}
	if reqBody != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("acquirer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("acquirer status %d: %s", resp.StatusCode, string(respBody))
	}

	var decoded Resp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode acquirer response: %w", err)
	}
	return &decoded, nil
}

type submitRequest struct {
	BatchID        string   `json:"batch_id"`
	MerchantID     string   `json:"merchant_id"`
	Currency       string   `json:"currency"`
	SettlementDate string   `json:"settlement_date"`
	GrossMinor     int64    `json:"gross_minor"`
	NetMinor       int64    `json:"net_minor"`
	PaymentCount   int      `json:"payment_count"`
	PaymentIDs     []string `json:"payment_ids"`
}

type submitResponse struct {
	AcquirerRef string `json:"acquirer_ref"`
}

type reportResponse struct {
	AcquirerRef string       `json:"acquirer_ref"`
	Status      string       `json:"status"`
	TotalAmount string       `json:"total_amount"`
	Lines       []reportLine `json:"lines"`
}

type reportLine struct {
	PaymentID string `json:"payment_id"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	SettledAt string `json:"settled_at"`
}
