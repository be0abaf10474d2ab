package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxBodyBytes = 4 << 20

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	// Token supplies the bearer token sent with every request; "" sends none.
	Token  func() string
	Logger *slog.Logger
}

type Client struct {
	baseURL string
	http    *http.Client
	token   func() string
	log     *slog.Logger
}

func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("backend base url is required")
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend base url %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	token := cfg.Token
	if token == nil {
		token = func() string { return "" }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		baseURL: base,
		http:    httpClient,
		token:   token,
		log:     logger,
	}, nil
}

func (c *Client) SignUp(ctx context.Context, req SignUpRequest) (TokenResponse, error) {
	var out TokenResponse
	err := c.do(ctx, "signup", http.MethodPost, "/signup", req, &out)
	return out, err
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (TokenResponse, error) {
	var out TokenResponse
	err := c.do(ctx, "login", http.MethodPost, "/login", req, &out)
	return out, err
}

func (c *Client) ForgotPassword(ctx context.Context, req ForgotPasswordRequest) (Ack, error) {
	var out Ack
	err := c.do(ctx, "forgot-password", http.MethodPost, "/forgot-password", req, &out)
	return out, err
}

func (c *Client) ChangePassword(ctx context.Context, req ChangePasswordRequest) (Ack, error) {
	var out Ack
	err := c.do(ctx, "change-password", http.MethodPost, "/change-password", req, &out)
	return out, err
}

func (c *Client) FetchHistory(ctx context.Context, username string) ([]HistoryEntry, error) {
	var out []HistoryEntry
	if err := c.do(ctx, "history", http.MethodGet, "/history/"+url.PathEscape(username), nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []HistoryEntry{}
	}
	return out, nil
}

func (c *Client) ClearHistory(ctx context.Context, username string) (Ack, error) {
	var out Ack
	err := c.do(ctx, "clear-history", http.MethodDelete, "/history/clear/"+url.PathEscape(username), nil, &out)
	return out, err
}

func (c *Client) Predict(ctx context.Context, in CarbonInput) (Prediction, error) {
	var out Prediction
	err := c.do(ctx, "predict", http.MethodPost, "/predict", in, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("backend request failed", "op", op, "method", method, "rid", reqID, "err", err)
		return transportError(op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return transportError(op, fmt.Errorf("read response: %w", err))
	}
	c.log.Debug("backend request",
		"op", op,
		"method", method,
		"status", resp.StatusCode,
		"rid", reqID,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, Status: resp.StatusCode, Detail: parseDetail(respBody)}
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return transportError(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
