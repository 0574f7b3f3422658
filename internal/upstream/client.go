// Package upstream is the client for the Calcutta REST API.
package upstream

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

	"github.com/calcutta/console/internal/models"
	users "github.com/calcutta/console/internal/models/users"
)

var (
	// ErrUnavailable wraps transport failures and 5xx responses.
	ErrUnavailable = errors.New("upstream unavailable")
	// ErrUnauthorized is returned when the API rejects the caller's token.
	ErrUnauthorized = errors.New("upstream rejected credentials")
	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("upstream resource not found")
)

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Message)
}

// Unwrap maps statuses onto the package sentinels.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status >= 500:
		return ErrUnavailable
	}
	return nil
}

// Client calls the API on behalf of a console user.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func errorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(raw))
}

// Permissions returns the permission set of the token's owner.
func (c *Client) Permissions(ctx context.Context, token string) ([]string, error) {
	var out struct {
		Permissions []string `json:"permissions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/permissions", token, nil, &out); err != nil {
		return nil, err
	}
	return out.Permissions, nil
}

// ListPools returns the pools visible to the caller.
func (c *Client) ListPools(ctx context.Context, token string) ([]models.Pool, error) {
	var out []models.Pool
	err := c.do(ctx, http.MethodGet, "/api/pools", token, nil, &out)
	return out, err
}

// GetPool returns a pool with its standings.
func (c *Client) GetPool(ctx context.Context, token, poolID string) (*models.PoolDetail, error) {
	var out models.PoolDetail
	if err := c.do(ctx, http.MethodGet, "/api/pools/"+url.PathEscape(poolID), token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TeamAnalytics returns per-team market data for a pool.
func (c *Client) TeamAnalytics(ctx context.Context, token, poolID string) ([]models.TeamAnalytics, error) {
	var out []models.TeamAnalytics
	err := c.do(ctx, http.MethodGet, "/api/analytics/pools/"+url.PathEscape(poolID)+"/teams", token, nil, &out)
	return out, err
}

// ListLabEntries returns all lab entries.
func (c *Client) ListLabEntries(ctx context.Context, token string) ([]models.LabEntry, error) {
	var out []models.LabEntry
	err := c.do(ctx, http.MethodGet, "/api/lab/entries", token, nil, &out)
	return out, err
}

// GetLabEntry returns one lab entry.
func (c *Client) GetLabEntry(ctx context.Context, token, entryID string) (*models.LabEntry, error) {
	var out models.LabEntry
	if err := c.do(ctx, http.MethodGet, "/api/lab/entries/"+url.PathEscape(entryID), token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EntryBids returns the bids of a lab entry.
func (c *Client) EntryBids(ctx context.Context, token, entryID string) ([]models.Bid, error) {
	var out []models.Bid
	err := c.do(ctx, http.MethodGet, "/api/lab/entries/"+url.PathEscape(entryID)+"/bids", token, nil, &out)
	return out, err
}

// Predictions returns a model's predictions for a calcutta.
func (c *Client) Predictions(ctx context.Context, token, modelName, calcuttaID string) ([]models.Prediction, error) {
	var out []models.Prediction
	path := "/api/lab/models/" + url.PathEscape(modelName) + "/predictions?calcutta_id=" + url.QueryEscape(calcuttaID)
	err := c.do(ctx, http.MethodGet, path, token, nil, &out)
	return out, err
}

// Evaluation returns the simulation summary of an entry.
func (c *Client) Evaluation(ctx context.Context, token, entryID string) (*models.Evaluation, error) {
	var out models.Evaluation
	if err := c.do(ctx, http.MethodGet, "/api/lab/entries/"+url.PathEscape(entryID)+"/evaluation", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PipelineStatus returns the progress of a pipeline run.
func (c *Client) PipelineStatus(ctx context.Context, token, runID string) (*models.PipelineStatus, error) {
	var out models.PipelineStatus
	if err := c.do(ctx, http.MethodGet, "/api/lab/pipelines/"+url.PathEscape(runID), token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartPipeline queues a pipeline run.
func (c *Client) StartPipeline(ctx context.Context, token string, req models.StartPipelineRequest) (*models.PipelineStatus, error) {
	var out models.PipelineStatus
	if err := c.do(ctx, http.MethodPost, "/api/lab/pipelines", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AdminUsers lists users with their permissions.
func (c *Client) AdminUsers(ctx context.Context, token string) ([]users.AdminUser, error) {
	var out []users.AdminUser
	err := c.do(ctx, http.MethodGet, "/api/admin/users", token, nil, &out)
	return out, err
}
