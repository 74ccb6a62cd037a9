package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"wattson/internal/models"
)

const defaultIdleTimeout = 90 * time.Second

// CredentialFunc supplies the bearer token attached to every request.
type CredentialFunc func() (string, error)

// Config carries the knobs for building a Client.
type Config struct {
	BaseURL     string
	HTTPClient  *http.Client
	Credential  CredentialFunc
	IdleTimeout time.Duration
	Logf        func(format string, args ...interface{})
}

// Client talks to the Wattson assistant backend over HTTP. All blocking
// calls honor the passed context.
type Client struct {
	baseURL    string
	httpClient *http.Client
	credential CredentialFunc
	idle       time.Duration
	logf       func(format string, args ...interface{})
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("assistant: base URL is required")
	}
	if cfg.Credential == nil {
		return nil, errors.New("assistant: credential source is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	idle := cfg.IdleTimeout
	if idle == 0 {
		idle = defaultIdleTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		credential: cfg.Credential,
		idle:       idle,
		logf:       cfg.Logf,
	}, nil
}

// TurnMessage is one prior exchange included as conversation context.
type TurnMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TurnRequest describes one user turn sent to the backend.
type TurnRequest struct {
	SessionID   string              `json:"sessionId"`
	UserID      string              `json:"userId,omitempty"`
	Content     string              `json:"content"`
	UseTools    bool                `json:"useTools"`
	Model       string              `json:"model,omitempty"`
	Mode        string              `json:"mode,omitempty"`
	Stage       string              `json:"stage,omitempty"`
	Domain      string              `json:"domain,omitempty"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
	History     []TurnMessage       `json:"history,omitempty"`
}

// TurnResponse is the complete answer for a non-streamed turn.
type TurnResponse struct {
	MessageID string          `json:"messageId"`
	Response  string          `json:"response"`
	Metadata  *MetadataFields `json:"metadata,omitempty"`
}

// StageResponse confirms a stage update.
type StageResponse struct {
	Stage        string `json:"stage"`
	ToolsAllowed bool   `json:"toolsAllowed"`
}

// HistoryMessage is one backend-side message in a session's history.
type HistoryMessage struct {
	ID        string          `json:"id"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	CreatedAt time.Time       `json:"createdAt"`
	Metadata  *MetadataFields `json:"metadata,omitempty"`
}

// DocumentRequest uploads one reference document into a session's knowledge
// scope.
type DocumentRequest struct {
	SessionID string `json:"sessionId"`
	Filename  string `json:"filename"`
	Category  string `json:"category,omitempty"`
	Content   string `json:"content"`
}

// DocumentResponse reports the indexing outcome for an uploaded document.
type DocumentResponse struct {
	Chunks  int  `json:"chunks"`
	Indexed bool `json:"indexed"`
}

// APIError is a structured failure response from the backend.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("assistant: %s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("assistant: request failed with status %d: %s", e.Status, e.Message)
}

// SendTurn runs one turn end to end and returns the full response. Used for
// turns with attachments, which the backend does not stream.
func (c *Client) SendTurn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	var resp TurnResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/turns", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// OpenStream starts a streamed turn. The caller owns the returned Stream and
// must Close it. Cancelling ctx aborts the stream.
func (c *Client) OpenStream(ctx context.Context, req TurnRequest) (*Stream, error) {
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/turns/stream", req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	httpResp, err := c.streamClient().Do(httpReq)
	if err != nil {
		return nil, err
	}
	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		return nil, readAPIError(httpResp)
	}
	return newStream(httpResp.Body, c.idle, c.logf), nil
}

// UpdateStage moves a project session to a new workflow stage on the backend.
func (c *Client) UpdateStage(ctx context.Context, sessionID, stage string) (*StageResponse, error) {
	path := "/api/sessions/" + url.PathEscape(sessionID) + "/stage"
	var resp StageResponse
	if err := c.doJSON(ctx, http.MethodPut, path, map[string]string{"stage": stage}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History fetches the backend's stored messages for a session, oldest first.
// limit <= 0 fetches everything.
func (c *Client) History(ctx context.Context, sessionID string, limit int) ([]HistoryMessage, error) {
	path := "/api/sessions/" + url.PathEscape(sessionID) + "/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var msgs []HistoryMessage
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// GenerateTitle asks the backend for a short title summarizing the first
// exchange of a session.
func (c *Client) GenerateTitle(ctx context.Context, content string) (string, error) {
	var resp struct {
		Title string `json:"title"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/titles", map[string]string{"content": content}, &resp); err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Title), nil
}

// UploadDocument pushes a reference document into the session's knowledge
// scope for retrieval during later turns.
func (c *Client) UploadDocument(ctx context.Context, req DocumentRequest) (*DocumentResponse, error) {
	var resp DocumentResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/documents", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("assistant: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	token, err := c.credential()
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("assistant: decode response: %w", err)
	}
	return nil
}

// streamClient strips the overall timeout so long-lived streams are bounded
// by the idle watchdog and the caller's context instead.
func (c *Client) streamClient() *http.Client {
	if c.httpClient.Timeout == 0 {
		return c.httpClient
	}
	clone := *c.httpClient
	clone.Timeout = 0
	return &clone
}

func readAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err == nil && len(raw) > 0 {
		if jsonErr := json.Unmarshal(raw, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
