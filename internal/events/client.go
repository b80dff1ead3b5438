// Package events looks up scheduled-event jurisdictions from the event board
// service.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pennywhistle/tally-ho/internal/common"
)

// Client queries the event board for the jurisdiction of events overlapping a
// date range.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates an event board client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type eventResponse struct {
	Events []struct {
		Name         string `json:"name"`
		Jurisdiction string `json:"jurisdiction"`
	} `json:"events"`
}

// JurisdictionForDateRange returns the jurisdiction of the first scheduled
// event overlapping [start, end], or "" when none does. The resolver treats a
// lookup failure as a waterfall miss, so errors here are advisory.
func (c *Client) JurisdictionForDateRange(ctx context.Context, start, end time.Time) (string, error) {
	query := url.Values{
		"from": {start.Format("2006-01-02")},
		"to":   {end.Format("2006-01-02")},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/events?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build event board request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrTransientDownstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("event board returned %d", resp.StatusCode)
	}

	var payload eventResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode event board response: %w", err)
	}

	for _, event := range payload.Events {
		if event.Jurisdiction != "" {
			return event.Jurisdiction, nil
		}
	}
	return "", nil
}
