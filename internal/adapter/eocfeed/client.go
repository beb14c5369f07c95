// Package eocfeed polls EOC status pages and detects each site's activation
// state from published keywords. It does plain text scanning, not DOM
// scraping: the activation keywords appear verbatim in the page body only
// when the EOC is activated.
package eocfeed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/forewarned/forewarned/internal/domain"
)

// previewLen bounds the stored page excerpt on each site state.
const previewLen = 200

// Client polls one or more EOC status pages.
type Client struct {
	urls       []string
	httpClient *http.Client
	clock      clockwork.Clock
	logger     *slog.Logger

	mu         sync.Mutex
	lastKnown  map[string]domain.EOCSiteState
	pageHashes map[string]string
}

// NewClient creates an EOC page poller for the given site URLs.
func NewClient(urls []string, timeout time.Duration, clock clockwork.Clock, logger *slog.Logger) *Client {
	return &Client{
		urls: urls,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		clock:      clock,
		logger:     logger,
		lastKnown:  make(map[string]domain.EOCSiteState),
		pageHashes: make(map[string]string),
	}
}

// Fetch polls every configured site and returns a full EOC snapshot. A site
// that fails to fetch keeps its last known state so a transient outage does
// not read as a deactivation.
func (c *Client) Fetch(ctx context.Context) (domain.EOCSnapshot, error) {
	snapshot := make(domain.EOCSnapshot, len(c.urls))
	var failures int

	for _, url := range c.urls {
		state, err := c.checkSite(ctx, url)
		if err != nil {
			failures++
			c.logger.Error("eoc site check failed", "url", url, "error", err)
			c.mu.Lock()
			last, ok := c.lastKnown[url]
			c.mu.Unlock()
			if ok {
				snapshot[url] = last
			}
			continue
		}
		snapshot[url] = state
	}

	if failures == len(c.urls) && len(c.urls) > 0 {
		return nil, fmt.Errorf("all %d eoc sites failed", failures)
	}
	return snapshot, nil
}

func (c *Client) checkSite(ctx context.Context, url string) (domain.EOCSiteState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.EOCSiteState{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.EOCSiteState{}, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.EOCSiteState{}, fmt.Errorf("fetch page: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.EOCSiteState{}, fmt.Errorf("read page: %w", err)
	}

	content := string(body)
	detected := DetectState(content)
	now := c.clock.Now()

	state := domain.EOCSiteState{
		State:       detected,
		Activated:   detected != domain.EOCInactive,
		LastCheck:   now,
		Description: preview(content),
	}

	hash := contentHash(content)
	c.mu.Lock()
	previous, seen := c.lastKnown[url]
	if seen {
		state.LastChange = previous.LastChange
		if c.pageHashes[url] != hash {
			c.logger.Info("eoc page changed", "url", url,
				"old_state", previous.State, "new_state", detected)
			state.LastChange = now
		}
	}
	c.lastKnown[url] = state
	c.pageHashes[url] = hash
	c.mu.Unlock()

	return state, nil
}

// DetectState maps page content to an EOC activation state. Order matters:
// the most specific keywords are checked first. The keywords only appear on
// the page during an actual activation; their absence means inactive.
func DetectState(content string) string {
	lowered := strings.ToLower(content)

	switch {
	case strings.Contains(lowered, "stand up") || strings.Contains(lowered, "standup"):
		return domain.EOCStandUp
	case strings.Contains(lowered, "lean forward") || strings.Contains(lowered, "leanforward"):
		return domain.EOCLeanForward
	case strings.Contains(lowered, "stand down") || strings.Contains(lowered, "standdown"):
		return domain.EOCStandDown
	case strings.Contains(lowered, "status:alert") || strings.Contains(lowered, "status: alert"):
		return domain.EOCAlert
	default:
		return domain.EOCInactive
	}
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func preview(content string) string {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) <= previewLen {
		return trimmed
	}
	return trimmed[:previewLen]
}
