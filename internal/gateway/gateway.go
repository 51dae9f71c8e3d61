// Package gateway is the HTTP client for the execution platform: market
// snapshots, open positions, ledger state, and order submission. The engine
// core only sees the collaborator interfaces; this client is wired in at the
// binary's composition root.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wealthops/constitution/internal/broker"
	"github.com/wealthops/constitution/internal/domain"
)

// Client talks to the execution platform's REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a gateway client. baseURL is the platform root, without a
// trailing slash.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// GetSnapshot fetches the current market snapshot for symbol.
func (c *Client) GetSnapshot(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
	var snap domain.MarketSnapshot
	path := "/v1/snapshots/" + url.PathEscape(symbol)
	if err := c.getJSON(ctx, path, &snap); err != nil {
		return domain.MarketSnapshot{}, err
	}
	return snap, nil
}

// Positions returns the sleeve's open short option positions.
func (c *Client) Positions(ctx context.Context, sleeve domain.SleeveID) ([]domain.Position, error) {
	var positions []domain.Position
	path := "/v1/sleeves/" + url.PathEscape(string(sleeve)) + "/positions"
	if err := c.getJSON(ctx, path, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

type equityResponse struct {
	Equity decimal.Decimal `json:"equity"`
}

type gainsResponse struct {
	QuarterlyGains decimal.Decimal `json:"quarterly_gains"`
}

type valueResponse struct {
	AccountValue decimal.Decimal `json:"account_value"`
}

// SleeveEquity returns the sleeve's realized equity.
func (c *Client) SleeveEquity(ctx context.Context, sleeve domain.SleeveID) (decimal.Decimal, error) {
	var resp equityResponse
	path := "/v1/sleeves/" + url.PathEscape(string(sleeve)) + "/equity"
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.Equity, nil
}

// QuarterlyGains returns the sleeve's realized gains this quarter.
func (c *Client) QuarterlyGains(ctx context.Context, sleeve domain.SleeveID) (decimal.Decimal, error) {
	var resp gainsResponse
	path := "/v1/sleeves/" + url.PathEscape(string(sleeve)) + "/gains"
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.QuarterlyGains, nil
}

// AccountValue returns the account's total value.
func (c *Client) AccountValue(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var resp valueResponse
	path := "/v1/accounts/" + url.PathEscape(accountID) + "/value"
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.AccountValue, nil
}

// SubmitRoll posts a roll order; the ack arrives on the returned channel.
func (c *Client) SubmitRoll(ctx context.Context, order broker.RollOrder) (<-chan broker.Ack, error) {
	return c.submit(ctx, "/v1/orders/roll", order.OrderID, order)
}

// SubmitHedge posts one hedge leg.
func (c *Client) SubmitHedge(ctx context.Context, order broker.HedgeOrder) (<-chan broker.Ack, error) {
	return c.submit(ctx, "/v1/orders/hedge", order.OrderID, order)
}

// SubmitAssignmentAction posts a covered-call pivot.
func (c *Client) SubmitAssignmentAction(ctx context.Context, action broker.AssignmentAction) (<-chan broker.Ack, error) {
	return c.submit(ctx, "/v1/orders/assignment", action.OrderID, action)
}

// submit fires the POST in the background and delivers the ack on the
// channel, so callers never block on the platform's response time.
func (c *Client) submit(ctx context.Context, path, orderID string, payload interface{}) (<-chan broker.Ack, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode order %s: %w", orderID, err)
	}

	acks := make(chan broker.Ack, 1)
	go func() {
		defer close(acks)
		ack := broker.Ack{OrderID: orderID, Timestamp: time.Now()}
		if err := c.postJSON(ctx, path, body, &ack); err != nil {
			ack.Accepted = false
			ack.Reason = err.Error()
		}
		acks <- ack
	}()
	return acks, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway GET %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("gateway POST %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
