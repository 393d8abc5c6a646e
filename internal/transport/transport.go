package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chatpro/internal/models"

	"github.com/google/uuid"
)

// Identity carries the caller's identity, attached to every authorized
// call as request headers. The remote authorizes based on it.
type Identity struct {
	UserID int64
}

// Client is a generic request/response client for the chat service.
// It does not retry, cache, or rate-limit; callers own retry policy.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     slog.Default().With("component", "transport"),
	}
}

// Call issues one request and returns the raw response body. A non-success
// status maps to *models.RequestFailed; a request that produced no response
// at all maps to models.ErrNetworkUnavailable.
func (c *Client) Call(ctx context.Context, method, path string, body any, identity *Identity) (json.RawMessage, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if identity != nil {
		req.Header.Set("userId", strconv.FormatInt(identity.UserID, 10))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("request dispatch failed", "method", method, "path", path, "error", err)
		return nil, fmt.Errorf("%s %s: %w: %w", method, path, models.ErrNetworkUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %w", method, path, models.ErrNetworkUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &models.RequestFailed{
			Status:  resp.StatusCode,
			Message: errorMessage(data, resp.StatusCode),
		}
	}

	if len(data) == 0 {
		return nil, nil
	}

	return json.RawMessage(data), nil
}

// errorMessage extracts the remote's error message from a failure body,
// falling back to the HTTP status text.
func errorMessage(data []byte, status int) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return http.StatusText(status)
}
