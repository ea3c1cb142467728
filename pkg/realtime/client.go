package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"violation-service/internal/models"
)

// Client fetches the authoritative snapshots the Reconciler polls. It calls
// the same REST surface the views use, identified by the headers the upstream
// auth provider sets.
type Client struct {
	baseURL string
	userID  int64
	role    models.Role
	http    *http.Client
}

func NewClient(baseURL string, userID int64, role models.Role) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		userID:  userID,
		role:    role,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// WithHTTPClient replaces the underlying http.Client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// DashboardStats fetches the counts behind stats_refresh.
func (c *Client) DashboardStats(ctx context.Context) (models.DashboardStats, error) {
	var out models.DashboardStats
	err := c.get(ctx, "/dashboard/stats", nil, &out)
	return out, err
}

func (c *Client) Notifications(ctx context.Context, unreadOnly bool) ([]models.Notification, error) {
	q := url.Values{}
	if unreadOnly {
		q.Set("unread", "true")
	}
	var out []models.Notification
	err := c.get(ctx, "/notifications", q, &out)
	return out, err
}

func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	err := c.get(ctx, "/notifications/unread-count", nil, &out)
	return out.Count, err
}

func (c *Client) Contests(ctx context.Context, status models.ContestStatus) ([]models.Contest, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	var out []models.Contest
	err := c.get(ctx, "/contests", q, &out)
	return out, err
}

func (c *Client) Violations(ctx context.Context, status models.ViolationStatus) ([]models.Violation, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	var out []models.Violation
	err := c.get(ctx, "/violations", q, &out)
	return out, err
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	req.Header.Set("X-User-ID", strconv.FormatInt(c.userID, 10))
	req.Header.Set("X-User-Role", string(c.role))
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, body.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
