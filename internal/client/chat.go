// ABOUTME: HTTP client for the remote chat endpoint
// ABOUTME: Builds the POST /chat request and validates the JSON reply

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Roles used in the request history.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// maxResponseBytes bounds how much of a reply body is read.
const maxResponseBytes = 8 << 20

var (
	// ErrStatus is returned when the service answers with a non-200 status
	ErrStatus = errors.New("unexpected status")
	// ErrMalformedResponse is returned when the reply body cannot be used
	ErrMalformedResponse = errors.New("malformed response")
)

// StatusError carries the status code of a rejected request. It matches
// ErrStatus with errors.Is.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned status %d", e.Code)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// HistoryEntry is one prior message in role-tagged form.
type HistoryEntry struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message          string         `json:"message"`
	History          []HistoryEntry `json:"history"`
	FileContent      *string        `json:"fileContent"`
	Product          string         `json:"product"`
	TargetCustomer   string         `json:"targetCustomer"`
	GeographicMarket string         `json:"geographicMarket"`
	PricingStrategy  string         `json:"pricingStrategy"`
	MainChannels     string         `json:"mainChannels"`
}

// chatResponse uses a pointer so a missing field can be told apart from an empty one.
type chatResponse struct {
	Response *string `json:"response"`
}

// Client calls the remote service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client for baseURL. A zero timeout means no timeout.
// Pass nil logger for default.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "client"),
	}
}

// BaseURL returns the service address requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Chat sends one turn and returns the reply text.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if req.History == nil {
		req.History = []HistoryEntry{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	c.logger.Debug("chat response",
		"status", resp.StatusCode,
		"bytes", len(raw),
		"history", len(req.History),
		"has_file", req.FileContent != nil,
		"duration", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Code: resp.StatusCode, Body: errorMessage(raw)}
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out.Response == nil {
		return "", fmt.Errorf("%w: missing response field", ErrMalformedResponse)
	}
	return *out.Response, nil
}

// errorMessage extracts {"error": "..."} from a failure body when present.
func errorMessage(raw []byte) string {
	var errResp map[string]any
	if err := json.Unmarshal(raw, &errResp); err == nil {
		if msg, ok := errResp["error"].(string); ok {
			return msg
		}
	}
	return ""
}
