// Package moveflow provides a thin Go client for the MoveFlow agent
// REST API.
package moveflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without
// a custom http.Client.
const DefaultHTTPTimeout = 65 * time.Second

// Client wraps the HTTP interactions with the MoveFlow agent REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Reply mirrors one conversation turn's outcome as returned by the API.
type Reply struct {
	SessionID string           `json:"session_id"`
	State     string           `json:"state"`
	Text      string           `json:"text"`
	Missing   []string         `json:"missing,omitempty"`
	Result    *OperationResult `json:"result,omitempty"`
}

// OperationResult describes a dispatched or previewed operation.
type OperationResult struct {
	OperationID string       `json:"operation_id"`
	Kind        string       `json:"kind"`
	Mode        string       `json:"mode"`
	Chain       string       `json:"chain"`
	Status      string       `json:"status"`
	TxHash      string       `json:"tx_hash,omitempty"`
	Summary     string       `json:"summary"`
	Notice      string       `json:"notice,omitempty"`
	Items       []ItemResult `json:"items,omitempty"`
}

// ItemResult is one entry of a batch create.
type ItemResult struct {
	Index     int    `json:"index"`
	Recipient string `json:"recipient"`
	TxHash    string `json:"tx_hash,omitempty"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// OperationRecord is one archived conversation turn.
type OperationRecord struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	Kind        string    `json:"kind,omitempty"`
	OperationID string    `json:"operation_id,omitempty"`
	Status      string    `json:"status,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("moveflow api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the MoveFlow agent API. When
// httpClient is nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Chat sends one user turn. An empty sessionID starts a new session;
// reuse the returned Reply.SessionID to continue the conversation.
func (c *Client) Chat(ctx context.Context, sessionID, text string) (Reply, error) {
	payload := struct {
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
	}{SessionID: sessionID, Text: text}

	var reply Reply
	if err := c.post(ctx, "/api/v1/chat", payload, &reply); err != nil {
		return Reply{}, err
	}
	return reply, nil
}

// Operations lists the latest archived turns of a session.
func (c *Client) Operations(ctx context.Context, sessionID string, limit int) ([]OperationRecord, error) {
	endpoint := fmt.Sprintf("/api/v1/operations?session_id=%s", url.QueryEscape(sessionID))
	if limit > 0 {
		endpoint += fmt.Sprintf("&limit=%d", limit)
	}
	var records []OperationRecord
	if err := c.get(ctx, endpoint, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, readErr := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if readErr != nil {
			return fmt.Errorf("read error response: %w", readErr)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
