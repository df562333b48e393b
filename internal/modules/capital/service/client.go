package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"signal_relay/pkg/logger"

	"github.com/bytedance/sonic"
)

const (
	headerAPIKey        = "X-CAP-API-KEY"
	headerCST           = "CST"
	headerSecurityToken = "X-SECURITY-TOKEN"
)

// Client talks to the Capital.com REST API. It owns the session credential
// pair and transparently re-authenticates once when the broker reports an
// expired session mid-call.
type Client struct {
	baseURL    string
	apiKey     string
	identifier string
	password   string

	http *http.Client

	// Session tokens are shared by all in-flight signals. credMu guards the
	// pair itself; authMu serializes logins so concurrent expiries trigger a
	// single /session call.
	credMu        sync.RWMutex
	cst           string
	securityToken string
	authGen       uint64

	authMu sync.Mutex
}

func NewClient(baseURL, apiKey, identifier, password string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		identifier: identifier,
		password:   password,
		http:       &http.Client{Timeout: timeout},
	}
}

// IsAuthenticated reports whether both session tokens are present.
func (c *Client) IsAuthenticated() bool {
	c.credMu.RLock()
	defer c.credMu.RUnlock()
	return c.cst != "" && c.securityToken != ""
}

func (c *Client) tokens() (cst, securityToken string, gen uint64) {
	c.credMu.RLock()
	defer c.credMu.RUnlock()
	return c.cst, c.securityToken, c.authGen
}

// SessionTokens returns the current credential pair, empty when not
// authenticated. Used by the streaming client, which authenticates over the
// same session.
func (c *Client) SessionTokens() (cst, securityToken string) {
	cst, securityToken, _ = c.tokens()
	return cst, securityToken
}

// EnsureSession authenticates only if no session is held yet.
func (c *Client) EnsureSession(ctx context.Context) error {
	cst, securityToken, gen := c.tokens()
	if cst != "" && securityToken != "" {
		return nil
	}
	return c.Authenticate(ctx, gen)
}

// Authenticate logs in and replaces the session tokens. seenGen is the
// generation the caller last observed: if another caller already finished a
// login while we waited on authMu, the fresh tokens are reused instead of
// logging in again.
func (c *Client) Authenticate(ctx context.Context, seenGen uint64) error {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	c.credMu.RLock()
	current := c.authGen
	c.credMu.RUnlock()
	if current != seenGen {
		return nil
	}

	logger.Info("logging in to capital.com")

	body, err := sonic.Marshal(map[string]string{
		"identifier": c.identifier,
		"password":   c.password,
	})
	if err != nil {
		return fmt.Errorf("marshal session body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/session", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new session request: %w", err)
	}
	req.Header.Set(headerAPIKey, c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &AuthenticationError{Reason: err.Error()}
	}
	defer resp.Body.Close()

	rb, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return &AuthenticationError{Reason: fmt.Sprintf("http %d: %s", resp.StatusCode, string(rb))}
	}

	cst := resp.Header.Get(headerCST)
	securityToken := resp.Header.Get(headerSecurityToken)
	// A 200 without both tokens is still a failed login.
	if cst == "" || securityToken == "" {
		return &AuthenticationError{Reason: "session response missing tokens"}
	}

	c.credMu.Lock()
	c.cst = cst
	c.securityToken = securityToken
	c.authGen++
	c.credMu.Unlock()

	logger.Info("capital.com login ok")
	return nil
}

type response struct {
	Status int
	Body   []byte
}

// do issues one authenticated call. On an auth-expired classification it
// re-authenticates and retries the identical request exactly once; a second
// expiry surfaces as a terminal RequestError so bad credentials cannot loop.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*response, error) {
	for attempt := 0; ; attempt++ {
		cst, securityToken, gen := c.tokens()
		if cst == "" || securityToken == "" {
			if err := c.Authenticate(ctx, gen); err != nil {
				return nil, err
			}
			cst, securityToken, gen = c.tokens()
		}

		var rd io.Reader
		if len(body) > 0 {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
		if err != nil {
			return nil, fmt.Errorf("new request %s %s: %w", method, path, err)
		}
		req.Header.Set(headerAPIKey, c.apiKey)
		req.Header.Set(headerCST, cst)
		req.Header.Set(headerSecurityToken, securityToken)
		if len(body) > 0 {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, path, err)
		}
		rb, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if authExpired(resp.StatusCode, rb) {
			if attempt == 0 {
				logger.Info("session expired on %s %s, re-login and retry", method, path)
				if err := c.Authenticate(ctx, gen); err != nil {
					return nil, err
				}
				continue
			}
			return nil, &RequestError{Status: resp.StatusCode, Body: string(rb)}
		}

		if resp.StatusCode/100 != 2 {
			return nil, &RequestError{Status: resp.StatusCode, Body: string(rb)}
		}
		return &response{Status: resp.StatusCode, Body: rb}, nil
	}
}

// Error codes the broker uses for a dead or missing session.
var sessionErrorCodes = map[string]bool{
	"error.invalid.session.token":  true,
	"error.security.token.invalid": true,
	"error.security.token.missing": true,
	"error.null.client.token":      true,
}

func authExpired(status int, body []byte) bool {
	if status == http.StatusUnauthorized {
		return true
	}
	var e struct {
		ErrorCode string `json:"errorCode"`
	}
	if err := sonic.Unmarshal(body, &e); err != nil {
		return false
	}
	return sessionErrorCodes[e.ErrorCode]
}
