// Package datastore is an HTTP client for the CKAN action API calls used by
// ingestion: datastore_delete, datastore_create, resource_show and
// resource_update.
//
// Every call is a JSON POST carrying the API key in the Authorization
// header. Failures are returned as *ResponseError when CKAN answered, and
// as wrapped transport errors otherwise.
package datastore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/JonMunkholm/datastorer/internal/core"
)

// Action names as they appear under /api/3/action/.
const (
	ActionDelete = "datastore_delete"
	ActionCreate = "datastore_create"
	ActionShow   = "resource_show"
	ActionUpdate = "resource_update"
)

// maxResponseBody bounds how much of a response is read.
const maxResponseBody = 1 << 20

// Client talks to one CKAN site. It is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	retry   RetryPolicy
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetry sets the policy for delete and resource_update. Creates are
// never retried: a lost response could append the same batch twice.
func WithRetry(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for siteURL. timeout bounds each HTTP call.
func New(siteURL, apiKey string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(siteURL, "/") + "/api/3/action/",
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		retry:   NoRetry,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ core.Store = (*Client)(nil)

// DeleteDatastore removes existing data. 404 means nothing to delete.
func (c *Client) DeleteDatastore(ctx context.Context, resourceID string) error {
	c.logger.Info("deleting existing datastore (it may not exist)", "resource_id", resourceID)
	body := map[string]any{"resource_id": resourceID}
	return c.retry.Do(ctx, c.logger, ActionDelete, func() error {
		_, err := c.call(ctx, ActionDelete, body, http.StatusOK, http.StatusNotFound)
		return err
	})
}

type createRequest struct {
	ResourceID string        `json:"resource_id"`
	Fields     []core.Field  `json:"fields"`
	Records    []core.Record `json:"records"`
}

// CreateDatastore appends records, creating the table with fields if needed.
func (c *Client) CreateDatastore(ctx context.Context, resourceID string, fields []core.Field, records []core.Record) error {
	if records == nil {
		records = []core.Record{}
	}
	req := createRequest{ResourceID: resourceID, Fields: fields, Records: records}
	_, err := c.call(ctx, ActionCreate, req, http.StatusOK, http.StatusCreated)
	return err
}

// ShowResource fetches the resource dict. resource_update replaces the
// whole resource, so finalize sends this back with its own changes.
func (c *Client) ShowResource(ctx context.Context, resourceID string) (map[string]any, error) {
	var resource map[string]any
	err := c.retry.Do(ctx, c.logger, ActionShow, func() error {
		body, err := c.call(ctx, ActionShow, map[string]any{"id": resourceID}, http.StatusOK)
		if err != nil {
			return err
		}
		var envelope struct {
			Result map[string]any `json:"result"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil || envelope.Result == nil {
			return &ResponseError{Action: ActionShow, Status: http.StatusOK, Detail: "response carries no result object"}
		}
		resource = envelope.Result
		return nil
	})
	return resource, err
}

// UpdateResource replaces the resource metadata.
func (c *Client) UpdateResource(ctx context.Context, resource map[string]any) error {
	return c.retry.Do(ctx, c.logger, ActionUpdate, func() error {
		_, err := c.call(ctx, ActionUpdate, resource, http.StatusOK, http.StatusCreated)
		return err
	})
}

// call posts payload to action, checks the answer against accepted
// statuses and returns the body. A 404 on delete is accepted even with a
// failure body.
func (c *Client) call(ctx context.Context, action string, payload any, accepted ...int) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+action, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", action, err)
	}

	c.logger.Debug("ckan call", "action", action, "status", resp.StatusCode, "duration", time.Since(start))

	ok := slices.Contains(accepted, resp.StatusCode)
	if ok && resp.StatusCode != http.StatusNotFound && reportsFailure(respBody) {
		ok = false
	}
	if !ok {
		detail := diagnose(resp, respBody)
		c.logger.Error("ckan call failed", "action", action, "status", resp.StatusCode, "response", detail)
		return nil, &ResponseError{Action: action, Status: resp.StatusCode, Detail: detail}
	}
	return respBody, nil
}
