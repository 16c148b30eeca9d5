// Package tokenization is the HTTP client for the card vault. The PAN leaves
// gateway memory through Tokenize and is never persisted or logged here.
package tokenization

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
	"github.com/meridianpay/gateway/internal/domain"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(cfg config.TokenizerConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Tokenize exchanges raw card data for a vault token. The request body is the
// only place the PAN crosses the wire; the response carries no card data
// beyond brand and last four.
func (c *Client) Tokenize(ctx context.Context, card domain.Card) (application.TokenizedCard, error) {
	body := tokenizeRequest{
		PAN:         card.PAN,
		CVV:         card.CVV,
		ExpiryMonth: card.ExpiryMonth,
		ExpiryYear:  card.ExpiryYear,
		Holder:      card.Holder,
	}
	resp, err := send[tokenizeRequest, tokenizeResponse](c, ctx, "/v1/tokens", &body)
	if err != nil {
		return application.TokenizedCard{}, err
	}
	return application.TokenizedCard{
		Token:      resp.Token,
		LastFour:   resp.LastFour,
		Brand:      domain.CardBrand(resp.Brand),
		KeyVersion: resp.KeyVersion,
	}, nil
}

// Detokenize recovers card data for a token. Reserved for PSP adapters that
// cannot accept vault tokens directly; the gateway's own flows never call it.
func (c *Client) Detokenize(ctx context.Context, token string) (domain.Card, error) {
	body := detokenizeRequest{Token: token}
	resp, err := send[detokenizeRequest, detokenizeResponse](c, ctx, "/v1/tokens/detokenize", &body)
	if err != nil {
		return domain.Card{}, err
	}
	return domain.Card{
		PAN:         resp.PAN,
		ExpiryMonth: resp.ExpiryMonth,
		ExpiryYear:  resp.ExpiryYear,
		Holder:      resp.Holder,
	}, nil
}

func send[Req any, Resp any](c *Client, ctx context.Context, path string, reqBody *Req) (*Resp, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal vault request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("build vault request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &VaultError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		var errResp errorResponse
		if err := json.Unmarshal(respBody, &errResp); err != nil {
			return nil, &VaultError{StatusCode: resp.StatusCode, Message: string(respBody)}
		}
		return nil, &VaultError{StatusCode: resp.StatusCode, Code: errResp.Code, Message: errResp.Message}
	}

	var decoded Resp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &VaultError{Message: "undecodable response", Err: err}
	}
	return &decoded, nil
}
