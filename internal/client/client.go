package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	loginTimeout   = 20 * time.Second
	requestTimeout = 25 * time.Second
)

// Config holds the DW Spectrum server connection settings
type Config struct {
	Host        string
	Port        int
	SSL         bool
	VerifySSL   bool
	Username    string
	Password    string
	RuntimeGUID string
	Logger      *zap.Logger
}

// Client is a REST v3 client for DW Spectrum / Network Optix-based VMS
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger

	tokenMu sync.Mutex
	token   string
}

// New creates a new DW Spectrum API client
func New(cfg Config) *Client {
	if cfg.RuntimeGUID == "" {
		cfg.RuntimeGUID = "bridge-" + uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	transport := &http.Transport{}
	if cfg.SSL && !cfg.VerifySSL {
		// On-prem VMS installs commonly run with self-signed certificates
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		cfg:    cfg,
		logger: cfg.Logger,
		httpClient: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// BaseURL returns the server's base URL
func (c *Client) BaseURL() string {
	scheme := "http"
	if c.cfg.SSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.cfg.Host, c.cfg.Port)
}

func (c *Client) defaultHeaders() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	h.Set("x-runtime-guid", c.cfg.RuntimeGUID)
	return h
}

// Login opens a session and stores the bearer token
func (c *Client) Login(ctx context.Context) (string, error) {
	payload := map[string]interface{}{
		"username":  c.cfg.Username,
		"password":  c.cfg.Password,
		"setCookie": false,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", transportErrf("login", "failed to marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL()+"/rest/v3/login/sessions", bytes.NewReader(body))
	if err != nil {
		return "", transportErrf("login", "failed to create request: %w", err)
	}
	req.Header = c.defaultHeaders()
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Op: "login", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusMovedPermanently,
		resp.StatusCode == http.StatusFound,
		resp.StatusCode == http.StatusTemporaryRedirect,
		resp.StatusCode == http.StatusPermanentRedirect:
		return "", transportErrf("login", "redirect (%d) to %s", resp.StatusCode, resp.Header.Get("Location"))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", &AuthError{Status: resp.StatusCode, Message: readBodyText(resp.Body)}
	case resp.StatusCode >= 400:
		return "", transportErrf("login", "HTTP %d: %s", resp.StatusCode, readBodyText(resp.Body))
	}

	token, err := parseToken(resp.Body)
	if err != nil {
		return "", err
	}

	c.tokenMu.Lock()
	c.token = token
	c.tokenMu.Unlock()

	c.logger.Debug("Session opened", zap.String("base_url", c.BaseURL()))
	return token, nil
}

// Logout closes the current session. Failures are ignored; the token is
// dropped either way.
func (c *Client) Logout(ctx context.Context) {
	c.tokenMu.Lock()
	token := c.token
	c.token = ""
	c.tokenMu.Unlock()

	if token == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.BaseURL()+"/rest/v3/login/sessions/"+token, nil)
	if err != nil {
		return
	}
	req.Header = c.defaultHeaders()
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}

// Validate logs in and immediately logs out, verifying the credentials
func (c *Client) Validate(ctx context.Context) error {
	if _, err := c.Login(ctx); err != nil {
		return err
	}
	c.Logout(ctx)
	return nil
}

func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	token := c.token
	c.tokenMu.Unlock()

	if token != "" {
		return token, nil
	}
	return c.Login(ctx)
}

func (c *Client) dropToken() {
	c.tokenMu.Lock()
	c.token = ""
	c.tokenMu.Unlock()
}

// requestJSON performs an authenticated request and decodes the JSON
// response into out. A 401/403 mid-session drops the token, re-logs in
// once and replays the request.
func (c *Client) requestJSON(ctx context.Context, method, path string, params url.Values, body interface{}, out interface{}) error {
	return c.request(ctx, method, path, params, body, true, func(resp *http.Response) error {
		if out == nil {
			io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return transportErrf(method+" "+path, "failed to decode response: %w", err)
		}
		return nil
	})
}

// requestBytes performs an authenticated request and returns the raw body
func (c *Client) requestBytes(ctx context.Context, method, path string, accept string) ([]byte, error) {
	var data []byte
	err := c.request(ctx, method, path, nil, nil, true, func(resp *http.Response) error {
		var readErr error
		data, readErr = io.ReadAll(resp.Body)
		if readErr != nil {
			return transportErrf(method+" "+path, "failed to read response: %w", readErr)
		}
		return nil
	}, func(req *http.Request) {
		if accept != "" {
			req.Header.Set("Accept", accept)
		}
	})
	return data, err
}

func (c *Client) request(ctx context.Context, method, path string, params url.Values, body interface{}, retryOnAuth bool, handle func(*http.Response) error, reqOpts ...func(*http.Request)) error {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}

	op := method + " " + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return transportErrf(op, "failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	reqURL := c.BaseURL() + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, reqURL, bodyReader)
	if err != nil {
		return transportErrf(op, "failed to create request: %w", err)
	}
	req.Header = c.defaultHeaders()
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range reqOpts {
		opt(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		io.Copy(io.Discard, resp.Body)
		if !retryOnAuth {
			return &AuthError{Status: resp.StatusCode}
		}
		c.dropToken()
		if _, err := c.Login(ctx); err != nil {
			return err
		}
		return c.request(ctx, method, path, params, body, false, handle, reqOpts...)
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return &NotFoundError{Resource: "resource", ID: path}
	case resp.StatusCode >= 400:
		return transportErrf(op, "HTTP %d: %s", resp.StatusCode, readBodyText(resp.Body))
	}

	return handle(resp)
}

// parseToken extracts the session token. Depending on the server build the
// body may be {"token": "..."}, a JSON string, or bare/quoted text.
func parseToken(r io.Reader) (string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", transportErrf("login", "failed to read response body: %w", err)
	}

	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "", transportErrf("login", "empty response body; no token returned")
	}

	var obj struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Token != "" {
		return obj.Token, nil
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil && strings.TrimSpace(str) != "" {
		return strings.TrimSpace(str), nil
	}

	// A proxy in front of the server may answer 200 with an HTML error
	// page; never hand that back as a token.
	token := strings.Trim(text, `"`)
	if len(token) > 512 || strings.ContainsAny(token, " \t\r\n<>") {
		return "", transportErrf("login", "login response does not look like a token")
	}
	return token, nil
}

func readBodyText(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
