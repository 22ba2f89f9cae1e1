package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/radieske/bet-escrow-poc/internal/escrow"
)

// Client implementa escrow.Vault chamando o wallet-service
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

var _ escrow.Vault = (*Client)(nil)

func New(base string) *Client {
	return &Client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: 2 * time.Second},
	}
}

func (c *Client) Capture(ctx context.Context, from escrow.Identity, amount escrow.Amount, betID uint64) error {
	_, err := c.post(ctx, "/escrow/capture", from, amount, betID)
	return err
}

func (c *Client) Refund(ctx context.Context, to escrow.Identity, amount escrow.Amount, betID uint64) error {
	_, err := c.post(ctx, "/escrow/refund", to, amount, betID)
	return err
}

func (c *Client) Payout(ctx context.Context, to escrow.Identity, amount escrow.Amount, betID uint64) error {
	_, err := c.post(ctx, "/escrow/payout", to, amount, betID)
	return err
}

// Held consulta quanto ainda está em custódia para a aposta
func (c *Client) Held(ctx context.Context, betID uint64) (escrow.Amount, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/escrow?betId=%d", c.BaseURL, betID), nil)
	res, err := c.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return 0, decodeError(res, "/escrow")
	}
	var out HoldResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Held, nil
}

func (c *Client) post(ctx context.Context, path string, who escrow.Identity, amount escrow.Amount, betID uint64) (HoldResponse, error) {
	body, _ := json.Marshal(HoldRequest{BetID: betID, Address: who.Hex(), Amount: amount})
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res, err := c.HTTP.Do(req)
	if err != nil {
		return HoldResponse{}, err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return HoldResponse{}, decodeError(res, path)
	}
	var out HoldResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return HoldResponse{}, err
	}
	return out, nil
}

// decodeError traduz o código do wallet-service de volta para o erro do domínio
func decodeError(res *http.Response, path string) error {
	var e ErrorResponse
	_ = json.NewDecoder(res.Body).Decode(&e)
	if known := escrow.ErrorForCode(e.Code); known != nil {
		return known
	}
	return fmt.Errorf("wallet %s http %d: %s", path, res.StatusCode, e.Message)
}
