package service

import (
	"context"
	"sync"
	"time"

	capital "signal_relay/internal/modules/capital/service"
	healthsvc "signal_relay/internal/modules/health/service"
	"signal_relay/pkg/logger"

	"github.com/gorilla/websocket"
)

// Client holds a last-price cache per epic, fed by the broker's streaming
// endpoint. All failures here are soft: the relay works without quotes, they
// only improve the relative stop-amend threshold.
type Client struct {
	mu     sync.RWMutex
	prices map[string]float64

	dialer    *websocket.Dialer
	url       string
	pingEvery time.Duration
	session   *capital.Client
	state     *healthsvc.State
}

func NewClient(url string, pingEvery time.Duration, session *capital.Client, state *healthsvc.State) *Client {
	if pingEvery <= 0 {
		pingEvery = 5 * time.Minute
	}
	return &Client{
		prices:    make(map[string]float64),
		dialer:    &websocket.Dialer{},
		url:       url,
		pingEvery: pingEvery,
		session:   session,
		state:     state,
	}
}

func (c *Client) setPrice(epic string, price float64) {
	c.mu.Lock()
	c.prices[epic] = price
	c.mu.Unlock()
}

// LastPrice returns the last streamed mid price for the epic, 0 if none seen.
func (c *Client) LastPrice(epic string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prices[epic]
}

// Run connects, subscribes to the given epics and keeps the cache warm until
// the context ends. Reconnects with a capped linear backoff.
func (c *Client) Run(ctx context.Context, epics []string) {
	if len(epics) == 0 {
		return
	}
	retry := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.stream(ctx, epics); err != nil {
			logger.Error("quote stream: %v", err)
		}
		c.state.SetStreamConnected(false)

		retry++
		if retry > 8 {
			retry = 8
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(300*retry) * time.Millisecond):
		}
	}
}

func (c *Client) stream(ctx context.Context, epics []string) error {
	if err := c.session.EnsureSession(ctx); err != nil {
		return err
	}
	cst, securityToken := c.session.SessionTokens()

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := map[string]any{
		"destination":   "marketData.subscribe",
		"correlationId": "1",
		"cst":           cst,
		"securityToken": securityToken,
		"payload":       map[string]any{"epics": epics},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	c.state.SetStreamConnected(true)
	logger.Info("quote stream connected, %d epics", len(epics))

	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		t := time.NewTicker(c.pingEvery)
		defer t.Stop()
		for {
			select {
			case <-stopPing:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				_ = conn.WriteJSON(map[string]any{
					"destination":   "ping",
					"cst":           cst,
					"securityToken": securityToken,
				})
			}
		}
	}()

	for {
		var frame struct {
			Destination string `json:"destination"`
			Payload     struct {
				Epic string  `json:"epic"`
				Bid  float64 `json:"bid"`
				Ofr  float64 `json:"ofr"`
			} `json:"payload"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			return err
		}
		if frame.Destination != "quote" || frame.Payload.Epic == "" {
			continue
		}
		mid := (frame.Payload.Bid + frame.Payload.Ofr) / 2
		if mid > 0 {
			c.setPrice(frame.Payload.Epic, mid)
			c.state.TouchQuote(time.Now())
		}
	}
}
