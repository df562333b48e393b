package service

import (
	"context"
	"fmt"
	"net/http"

	"signal_relay/internal/models"

	"github.com/bytedance/sonic"
)

// OrderParams is one market order. ForceOpen=false marks the order as
// size-reducing: it offsets an existing position instead of opening a new one.
type OrderParams struct {
	Epic        string
	Direction   models.Direction
	Size        float64
	StopLevel   float64 // 0 = none
	ProfitLevel float64 // 0 = none
	ForceOpen   bool
}

// PlaceOrder sends a market order and returns the broker's deal reference.
func (c *Client) PlaceOrder(ctx context.Context, p OrderParams) (string, error) {
	payload := map[string]any{
		"epic":         p.Epic,
		"direction":    string(p.Direction),
		"size":         p.Size,
		"orderType":    "MARKET",
		"currencyCode": "USD",
		"forceOpen":    p.ForceOpen,
	}
	if p.StopLevel > 0 {
		payload["stopLevel"] = p.StopLevel
	}
	if p.ProfitLevel > 0 {
		payload["profitLevel"] = p.ProfitLevel
	}

	body, err := sonic.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal order: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/v1/positions", body)
	if err != nil {
		return "", err
	}

	var r struct {
		DealReference string `json:"dealReference"`
	}
	_ = sonic.Unmarshal(resp.Body, &r)
	return r.DealReference, nil
}

// AmendPosition updates stop/profit levels on an open deal in place.
func (c *Client) AmendPosition(ctx context.Context, dealID string, stopLevel, profitLevel float64) error {
	payload := map[string]any{}
	if stopLevel > 0 {
		payload["stopLevel"] = stopLevel
	}
	if profitLevel > 0 {
		payload["profitLevel"] = profitLevel
	}
	if len(payload) == 0 {
		return nil
	}

	body, err := sonic.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal amend: %w", err)
	}

	_, err = c.do(ctx, http.MethodPut, "/api/v1/positions/"+dealID, body)
	return err
}

// ClosePosition deletes an open deal by id.
func (c *Client) ClosePosition(ctx context.Context, dealID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/v1/positions/"+dealID, nil)
	return err
}
