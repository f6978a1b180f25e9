// Package client is a typed HTTP client for the workledger server.
//
// It covers the operational endpoints (health, status, the admin switches) used by
// the workledger CLI, and the entity endpoints. Errors returned for non-2xx responses
// are *APIError values.
//
//	c := client.New("http://localhost:8080")
//	rep, err := c.Status(ctx)
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/workledger/workledger/pkg/backend"
	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/models"
)

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("workledger api: status=%d: %s", e.StatusCode, e.Message)
}

// Is lets callers match the response against the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case constants.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case constants.ErrNoStoreAvailable:
		return e.StatusCode == http.StatusServiceUnavailable
	}
	return false
}

// Health is the body of GET /api/health.
type Health struct {
	Status        string `json:"status"`
	ActiveStoreID string `json:"activeStoreId"`
	Degraded      bool   `json:"degraded"`
	ReadOnly      bool   `json:"readOnly"`
	Version       string `json:"version"`
	Time          int64  `json:"time"`
}

// ProbeResult is the body of POST /api/admin/stores/{id}/probe.
type ProbeResult struct {
	StoreID   string  `json:"storeId"`
	Healthy   bool    `json:"healthy"`
	LatencyMS float64 `json:"latencyMs"`
	Error     string  `json:"error,omitempty"`
}

type Option func(*Client)

// WithHTTPClient replaces the default client, which has a 30 second timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		var payload struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(b))
		if json.Unmarshal(b, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if target != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) call(ctx context.Context, method, path string, body, target any) error {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	return decodeResponse(resp, target)
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.call(ctx, http.MethodGet, "/api/health", nil, &h)
	return h, err
}

func (c *Client) Status(ctx context.Context) (backend.StatusReport, error) {
	var rep backend.StatusReport
	err := c.call(ctx, http.MethodGet, "/api/status", nil, &rep)
	return rep, err
}

// SwitchTo pins the server to the store and returns the resulting status.
func (c *Client) SwitchTo(ctx context.Context, storeID string) (backend.StatusReport, error) {
	var rep backend.StatusReport
	err := c.call(ctx, http.MethodPost, "/api/admin/switch", map[string]string{"storeId": storeID}, &rep)
	return rep, err
}

func (c *Client) SetStrategy(ctx context.Context, strategy backend.Strategy) (backend.StatusReport, error) {
	var rep backend.StatusReport
	err := c.call(ctx, http.MethodPost, "/api/admin/strategy", map[string]string{"strategy": string(strategy)}, &rep)
	return rep, err
}

func (c *Client) SetEnabled(ctx context.Context, storeID string, enabled bool) (backend.StatusReport, error) {
	action := "disable"
	if enabled {
		action = "enable"
	}
	var rep backend.StatusReport
	err := c.call(ctx, http.MethodPost, "/api/admin/stores/"+url.PathEscape(storeID)+"/"+action, nil, &rep)
	return rep, err
}

// SetReadOnly toggles maintenance mode and returns the new setting.
func (c *Client) SetReadOnly(ctx context.Context, readOnly bool) (bool, error) {
	var out struct {
		ReadOnly bool `json:"readOnly"`
	}
	err := c.call(ctx, http.MethodPost, "/api/admin/readonly", map[string]bool{"readOnly": readOnly}, &out)
	return out.ReadOnly, err
}

func (c *Client) Probe(ctx context.Context, storeID string) (ProbeResult, error) {
	var res ProbeResult
	err := c.call(ctx, http.MethodPost, "/api/admin/stores/"+url.PathEscape(storeID)+"/probe", nil, &res)
	return res, err
}

// Get returns the entity, or an error matching constants.ErrNotFound.
func (c *Client) Get(ctx context.Context, kind models.Kind, id int64) (models.Entity, error) {
	e, err := models.New(kind)
	if err != nil {
		return nil, err
	}
	if err := c.call(ctx, http.MethodGet, entityPath(kind, id), nil, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (c *Client) List(ctx context.Context, kind models.Kind, page models.Page) ([]models.Entity, error) {
	if _, err := models.ParseKind(string(kind)); err != nil {
		return nil, err
	}
	q := url.Values{}
	if page.Offset > 0 {
		q.Set("offset", strconv.Itoa(page.Offset))
	}
	if page.Limit > 0 {
		q.Set("limit", strconv.Itoa(page.Limit))
	}
	path := "/api/" + string(kind)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var raw []json.RawMessage
	if err := c.call(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]models.Entity, 0, len(raw))
	for _, b := range raw {
		e, _ := models.New(kind)
		if err := json.Unmarshal(b, e); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", kind, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Create stores e and updates it in place with the server's copy.
func (c *Client) Create(ctx context.Context, e models.Entity) error {
	if e == nil {
		return constants.ErrInvalidEntity
	}
	return c.call(ctx, http.MethodPost, "/api/"+string(e.EntityKind()), e, e)
}

// Update replaces the stored entity and updates e in place with the server's copy.
func (c *Client) Update(ctx context.Context, e models.Entity) error {
	if e == nil {
		return constants.ErrInvalidEntity
	}
	return c.call(ctx, http.MethodPut, entityPath(e.EntityKind(), e.EntityID()), e, e)
}

func (c *Client) Delete(ctx context.Context, kind models.Kind, id int64) error {
	return c.call(ctx, http.MethodDelete, entityPath(kind, id), nil, nil)
}

// Transfer moves an employee, and the documents filed under them, to another company.
func (c *Client) Transfer(ctx context.Context, employeeID, companyID int64, position string) (*models.Employee, error) {
	body := map[string]any{"companyId": companyID}
	if position != "" {
		body["position"] = position
	}
	var emp models.Employee
	if err := c.call(ctx, http.MethodPost, entityPath(models.KindEmployee, employeeID)+"/transfer", body, &emp); err != nil {
		return nil, err
	}
	return &emp, nil
}

func entityPath(kind models.Kind, id int64) string {
	return "/api/" + string(kind) + "/" + strconv.FormatInt(id, 10)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	return errors.Is(err, constants.ErrNotFound)
}
