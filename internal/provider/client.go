// Package provider wraps the external business-search service. The provider
// runs searches asynchronously: a submit call returns a request ID immediately
// and results are fetched later by polling that ID. Retry cadence across polls
// belongs to the scan orchestrator, not here.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
)

// ErrNoJobID is returned when the provider accepts the submission but the
// response carries no request identifier. Fatal for the scan: the caller must
// compensate any credits already charged.
var ErrNoJobID = errors.New("provider response missing job id")

const callTimeout = 20 * time.Second

// Client talks to the search provider over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *retryablehttp.Client
}

func NewClient(baseURL, apiKey string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.Logger = nil
	rc.HTTPClient.Timeout = callTimeout
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    rc,
	}
}

// StartJob submits an async search and returns the provider's request ID.
// Fire-and-forget: the response never contains results.
func (c *Client) StartJob(ctx context.Context, keyword, location string, limit int) (string, error) {
	q := url.Values{}
	q.Set("query", keyword+" in "+location)
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("async", "true")
	q.Set("extractEmails", "true")
	q.Set("extractContacts", "true")

	body, err := c.get(ctx, c.baseURL+"/maps/search-v2?"+q.Encode())
	if err != nil {
		return "", fmt.Errorf("start job: %w", err)
	}
	id := gjson.GetBytes(body, "id").String()
	if id == "" {
		return "", ErrNoJobID
	}
	return id, nil
}

// Status is one poll observation. Terminal is recognized by the provider
// moving off its pending/processing status values.
type Status struct {
	Done    bool
	Results []RawBusiness
}

// PollStatus fetches the current state of a submitted job.
func (c *Client) PollStatus(ctx context.Context, jobID string) (*Status, error) {
	body, err := c.get(ctx, c.baseURL+"/requests/"+url.PathEscape(jobID))
	if err != nil {
		return nil, fmt.Errorf("poll status: %w", err)
	}

	status := strings.ToUpper(gjson.GetBytes(body, "status").String())
	if status == "PENDING" || status == "PROCESSING" {
		return &Status{Done: false}, nil
	}

	var results []RawBusiness
	gjson.GetBytes(body, "data.0").ForEach(func(_, item gjson.Result) bool {
		results = append(results, parseBusiness(item))
		return true
	})
	return &Status{Done: true, Results: results}, nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
