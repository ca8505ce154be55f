package client

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

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/rules"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/segment"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/store"
)

// ErrNotFound is matched by API errors with status 404 or 410.
var ErrNotFound = errors.New("segment not found")

// APIError is a non-2xx response from the segments API.
type APIError struct {
	StatusCode int               `json:"-"`
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Fields     map[string]string `json:"fields,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("API error (status %d", e.StatusCode)
	if e.Code != "" {
		msg += ", " + e.Code
	}
	msg += "): " + e.Message
	for k, v := range e.Fields {
		msg += fmt.Sprintf("\n  %s: %s", k, v)
	}
	return msg
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && (e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone)
}

// Client is an HTTP client for the segments API
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Field is a catalog entry as served by /v1/fields.
type Field struct {
	rules.FieldDescriptor
	Operators []rules.Operator `json:"operators"`
}

// Members is the resolved audience of a segment.
type Members struct {
	SegmentID string   `json:"segmentId"`
	Members   []string `json:"members"`
	Count     int      `json:"count"`
	Total     int      `json:"total"`
}

// ListSegments retrieves segments matching the filter
func (c *Client) ListSegments(ctx context.Context, f segment.ListFilter) ([]store.Segment, error) {
	q := url.Values{}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Tag != "" {
		q.Set("tag", f.Tag)
	}
	if f.ActiveOnly {
		q.Set("activeOnly", strconv.FormatBool(true))
	}
	path := "/v1/segments"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var result struct {
		Segments []store.Segment `json:"segments"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Segments, nil
}

// GetSegment retrieves a single segment by id
func (c *Client) GetSegment(ctx context.Context, id string) (*store.Segment, error) {
	var seg store.Segment
	if err := c.do(ctx, http.MethodGet, segmentPath(id, ""), nil, &seg); err != nil {
		return nil, err
	}
	return &seg, nil
}

// CreateSegment creates a user segment
func (c *Client) CreateSegment(ctx context.Context, p segment.CreateParams) (*store.Segment, error) {
	var seg store.Segment
	if err := c.do(ctx, http.MethodPost, "/v1/segments", p, &seg); err != nil {
		return nil, err
	}
	return &seg, nil
}

// UpdateSegment applies a partial update
func (c *Client) UpdateSegment(ctx context.Context, id string, p segment.Patch) (*store.Segment, error) {
	var seg store.Segment
	if err := c.do(ctx, http.MethodPatch, segmentPath(id, ""), p, &seg); err != nil {
		return nil, err
	}
	return &seg, nil
}

// DeleteSegment removes a segment
func (c *Client) DeleteSegment(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, segmentPath(id, ""), nil, nil)
}

// DuplicateSegment copies a segment
func (c *Client) DuplicateSegment(ctx context.Context, id string) (*store.Segment, error) {
	var seg store.Segment
	if err := c.do(ctx, http.MethodPost, segmentPath(id, "/duplicate"), nil, &seg); err != nil {
		return nil, err
	}
	return &seg, nil
}

// SetActive activates or deactivates a segment
func (c *Client) SetActive(ctx context.Context, id string, active bool) (*store.Segment, error) {
	var seg store.Segment
	body := map[string]bool{"active": active}
	if err := c.do(ctx, http.MethodPut, segmentPath(id, "/active"), body, &seg); err != nil {
		return nil, err
	}
	return &seg, nil
}

// Recount re-evaluates a segment against the current population
func (c *Client) Recount(ctx context.Context, id string) (*store.Segment, error) {
	var seg store.Segment
	if err := c.do(ctx, http.MethodPost, segmentPath(id, "/recount"), nil, &seg); err != nil {
		return nil, err
	}
	return &seg, nil
}

// Members resolves the client ids currently in a segment
func (c *Client) Members(ctx context.Context, id string) (*Members, error) {
	var m Members
	if err := c.do(ctx, http.MethodGet, segmentPath(id, "/members"), nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Fields retrieves the field catalog
func (c *Client) Fields(ctx context.Context) ([]Field, error) {
	var result struct {
		Fields []Field `json:"fields"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/fields", nil, &result); err != nil {
		return nil, err
	}
	return result.Fields, nil
}

func segmentPath(id, suffix string) string {
	return "/v1/segments/" + url.PathEscape(id) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		bodyBytes, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(bodyBytes, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(bodyBytes))
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
