// Package apiclient talks to the template service. Every response is
// decoded into a typed shape and checked once here, so callers never guess
// at field names.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dynodocs/template-engine/internal/editor"
	"github.com/dynodocs/template-engine/internal/session"
	"github.com/dynodocs/template-engine/internal/tenant"
)

// ErrBadResponse is returned when a response does not have the expected shape
var ErrBadResponse = errors.New("unexpected response from server")

// ErrNotFound is returned for 404 responses
var ErrNotFound = errors.New("not found")

// StatusError is a non-2xx response
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (e *StatusError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// Template is a stored template as served by the API
type Template struct {
	ID        string    `json:"templateId"`
	Name      string    `json:"name"`
	Design    string    `json:"templateDesign"`
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy"`
}

// Summary is a template list entry
type Summary struct {
	ID        string    `json:"templateId"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CommandResult is the outcome of a remote command
type CommandResult struct {
	Success bool
	Message string
	Error   string
	Data    map[string]json.RawMessage
}

// Client is an HTTP client for the template service
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Session session.Context
}

// New creates a client for baseURL acting as sc
func New(baseURL string, sc session.Context) *Client {
	if sc == nil {
		sc = session.Anonymous
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Session: sc,
	}
}

// Save implements editor.Saver against PUT /api/templates/update
func (c *Client) Save(ctx context.Context, req editor.SaveRequest) (string, error) {
	var resp struct {
		Message *string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPut, "/api/templates/update", req, &resp); err != nil {
		return "", err
	}
	if resp.Message == nil || *resp.Message == "" {
		return "", fmt.Errorf("%w: save response has no message", ErrBadResponse)
	}
	return *resp.Message, nil
}

// Template fetches one template
func (c *Client) Template(ctx context.Context, id string) (*Template, error) {
	var t Template
	if err := c.do(ctx, http.MethodGet, "/api/templates/"+url.PathEscape(id), nil, &t); err != nil {
		return nil, err
	}
	if t.ID == "" || t.Design == "" {
		return nil, fmt.Errorf("%w: template response missing templateId or templateDesign", ErrBadResponse)
	}
	return &t, nil
}

// Templates lists templates
func (c *Client) Templates(ctx context.Context) ([]Summary, error) {
	var resp struct {
		Templates *[]Summary `json:"templates"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/templates", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Templates == nil {
		return nil, fmt.Errorf("%w: missing templates list", ErrBadResponse)
	}
	return *resp.Templates, nil
}

// Tenant implements tenant.Source against GET /api/tenants/:id
func (c *Client) Tenant(ctx context.Context, tenantID string) (*tenant.Info, error) {
	var info tenant.Info
	err := c.do(ctx, http.MethodGet, "/api/tenants/"+url.PathEscape(tenantID), nil, &info)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", tenant.ErrNotFound, tenantID)
	}
	if err != nil {
		return nil, err
	}
	if info.ID == "" {
		return nil, fmt.Errorf("%w: tenant response missing id", ErrBadResponse)
	}
	return &info, nil
}

// Command runs a text command on the server. A failed command is reported
// in the result, not as an error.
func (c *Client) Command(ctx context.Context, command string) (*CommandResult, error) {
	var raw map[string]json.RawMessage
	err := c.do(ctx, http.MethodPost, "/command", map[string]string{"command": command}, &raw)

	var se *StatusError
	if errors.As(err, &se) && se.Status == http.StatusBadRequest {
		return &CommandResult{Success: false, Error: se.Message}, nil
	}
	if err != nil {
		return nil, err
	}

	res := &CommandResult{Data: make(map[string]json.RawMessage)}
	for k, v := range raw {
		switch k {
		case "success":
			if err := json.Unmarshal(v, &res.Success); err != nil {
				return nil, fmt.Errorf("%w: success is not a boolean", ErrBadResponse)
			}
		case "message":
			if err := json.Unmarshal(v, &res.Message); err != nil {
				return nil, fmt.Errorf("%w: message is not a string", ErrBadResponse)
			}
		default:
			res.Data[k] = v
		}
	}
	if _, ok := raw["success"]; !ok {
		return nil, fmt.Errorf("%w: command response missing success", ErrBadResponse)
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Session.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if tenantID := c.Session.TenantID(); tenantID != "" {
		req.Header.Set("X-Tenant-ID", tenantID)
	}
	if userID := c.Session.UserID(); userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &StatusError{Status: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}
