// Package weatherfeed fetches the collector-published JSON warning feed and
// builds weather snapshots scoped to the monitored area.
package weatherfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/forewarned/forewarned/internal/domain"
)

// feedAlert is the wire shape of one warning in the collector feed. The
// upstream collector has already done the CAP/XML parsing; this service only
// consumes its JSON.
type feedAlert struct {
	ID          string    `json:"id"`
	Event       string    `json:"event"`
	Headline    string    `json:"headline"`
	Description string    `json:"description"`
	Severity    string    `json:"severity"`
	Urgency     string    `json:"urgency"`
	Areas       string    `json:"areas"`
	Onset       time.Time `json:"onset,omitzero"`
	Expires     time.Time `json:"expires,omitzero"`
	Source      string    `json:"source"`
}

type feedResponse struct {
	Alerts []feedAlert `json:"alerts"`
}

// Client polls the warning feed over HTTP.
type Client struct {
	url        string
	keywords   []string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a feed client. keywords scope warnings to the monitored
// area; a warning mentioning none of them is dropped.
func NewClient(url string, keywords []string, timeout time.Duration, logger *slog.Logger) *Client {
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}
	return &Client{
		url:      url,
		keywords: lowered,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Fetch retrieves the feed and returns a full weather snapshot. Cancellation
// messages and warnings outside the monitored area are excluded.
func (c *Client) Fetch(ctx context.Context) (domain.WeatherSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch weather feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("weather feed error: status %d: %s", resp.StatusCode, body)
	}

	var feed feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode weather feed: %w", err)
	}

	snapshot := make(domain.WeatherSnapshot, len(feed.Alerts))
	for _, fa := range feed.Alerts {
		if fa.Event == "" {
			continue
		}
		if isCancellation(fa) {
			c.logger.Debug("skipping cancellation message", "event", fa.Event)
			continue
		}
		alert := toAlert(fa)
		if !c.affectsArea(alert) {
			continue
		}
		id := fa.ID
		if id == "" {
			id = fa.Event
		}
		snapshot[id] = alert
		c.logger.Info("alert affects monitored area", "event", alert.Event, "areas", alert.Areas)
	}
	return snapshot, nil
}

func toAlert(fa feedAlert) domain.WeatherAlert {
	alert := domain.WeatherAlert{
		Event:       fa.Event,
		Headline:    fa.Headline,
		Description: fa.Description,
		Severity:    fa.Severity,
		Urgency:     fa.Urgency,
		Areas:       fa.Areas,
		Onset:       fa.Onset,
		Expires:     fa.Expires,
		Source:      fa.Source,
	}
	if alert.Headline == "" {
		alert.Headline = fa.Event
	}
	if alert.Severity == "" {
		alert.Severity = domain.SeverityUnknown
	}
	if alert.Source == "" {
		alert.Source = "BOM"
	}
	return alert
}

func isCancellation(fa feedAlert) bool {
	return strings.Contains(strings.ToLower(fa.Event), "cancellation") ||
		strings.Contains(strings.ToLower(fa.Headline), "cancellation")
}

// affectsArea checks the alert's text fields for any monitored-area keyword.
func (c *Client) affectsArea(alert domain.WeatherAlert) bool {
	if len(c.keywords) == 0 {
		return true
	}
	text := strings.ToLower(alert.Areas + " " + alert.Headline + " " + alert.Description)
	for _, keyword := range c.keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
