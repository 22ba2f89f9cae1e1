package escrowctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/radieske/bet-escrow-poc/internal/escrow"
	edto "github.com/radieske/bet-escrow-poc/internal/escrow-service/dto"
	wdto "github.com/radieske/bet-escrow-poc/internal/wallet-service/dto"
	"github.com/radieske/bet-escrow-poc/pkg/contracts/events"
)

// APIError é a resposta de erro de um dos serviços
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (http %d): %s", e.Code, e.Status, e.Message)
}

// Unwrap permite errors.Is(err, escrow.ErrUnknownBet) etc.
func (e *APIError) Unwrap() error { return escrow.ErrorForCode(e.Code) }

// Client fala com escrow-service e wallet-service (direto ou via gateway)
type Client struct {
	EscrowURL string
	WalletURL string
	HTTP      *http.Client
}

func NewClient(escrowURL, walletURL string) *Client {
	return &Client{
		EscrowURL: escrowURL,
		WalletURL: walletURL,
		HTTP:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Publish(ctx context.Context, req edto.PublishBetRequest) (events.EscrowTransition, error) {
	var out events.EscrowTransition
	err := c.do(ctx, http.MethodPost, c.EscrowURL+"/bets", req, &out)
	return out, err
}

func (c *Client) Accept(ctx context.Context, id uint64, req edto.AcceptBetRequest) (events.EscrowTransition, error) {
	var out events.EscrowTransition
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/bets/%d/accept", c.EscrowURL, id), req, &out)
	return out, err
}

func (c *Client) Resolve(ctx context.Context, id uint64, req edto.ResolveBetRequest) (events.EscrowTransition, error) {
	var out events.EscrowTransition
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/bets/%d/resolve", c.EscrowURL, id), req, &out)
	return out, err
}

func (c *Client) Count(ctx context.Context) (uint64, error) {
	var out edto.CountResponse
	err := c.do(ctx, http.MethodGet, c.EscrowURL+"/bets/count", nil, &out)
	return out.Count, err
}

func (c *Client) Available(ctx context.Context) ([]uint64, error) {
	var out edto.AvailableResponse
	err := c.do(ctx, http.MethodGet, c.EscrowURL+"/bets/available", nil, &out)
	return out.IDs, err
}

func (c *Client) Bet(ctx context.Context, id uint64) (edto.BetResponse, error) {
	var out edto.BetResponse
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/bets/%d", c.EscrowURL, id), nil, &out)
	return out, err
}

func (c *Client) Records(ctx context.Context, after uint64) ([]events.EscrowTransition, error) {
	var out edto.RecordsResponse
	err := c.do(ctx, http.MethodGet, c.EscrowURL+"/records?after="+strconv.FormatUint(after, 10), nil, &out)
	return out.Records, err
}

func (c *Client) Deposit(ctx context.Context, address string, amount int64) (wdto.WalletResponse, error) {
	var out wdto.WalletResponse
	err := c.do(ctx, http.MethodPost, c.WalletURL+"/wallet/deposit",
		wdto.DepositRequest{Address: address, AmountCents: amount, ExternalRef: "escrowctl"}, &out)
	return out, err
}

func (c *Client) Balance(ctx context.Context, address string) (wdto.WalletResponse, error) {
	var out wdto.WalletResponse
	err := c.do(ctx, http.MethodGet, c.WalletURL+"/wallet?address="+url.QueryEscape(address), nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, target string, body, out any) error {
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		var e edto.ErrorResponse
		_ = json.NewDecoder(res.Body).Decode(&e)
		return &APIError{Status: res.StatusCode, Code: e.Error, Message: e.Message}
	}
	return json.NewDecoder(res.Body).Decode(out)
}
