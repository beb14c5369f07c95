// Package homeassistant is a client for the Home Assistant supervisor API:
// entity state reads/writes, service calls, and persistent notifications.
package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// EntityState is the platform's representation of one entity.
type EntityState struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Client calls the Home Assistant REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Home Assistant API client. baseURL is the API root,
// e.g. "http://supervisor/core/api".
func NewClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// GetState fetches the current state of an entity.
func (c *Client) GetState(ctx context.Context, entityID string) (EntityState, error) {
	var state EntityState
	err := c.doJSON(ctx, http.MethodGet, "/states/"+entityID, nil, &state)
	if err != nil {
		return EntityState{}, fmt.Errorf("get state %s: %w", entityID, err)
	}
	return state, nil
}

// SetState writes an entity's state and attributes.
func (c *Client) SetState(ctx context.Context, entityID, state string, attributes map[string]any) error {
	body := map[string]any{
		"state":      state,
		"attributes": attributes,
	}
	if err := c.doJSON(ctx, http.MethodPost, "/states/"+entityID, body, nil); err != nil {
		return fmt.Errorf("set state %s: %w", entityID, err)
	}
	return nil
}

// CallService invokes a Home Assistant service, e.g. scene.turn_on.
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]any) error {
	path := fmt.Sprintf("/services/%s/%s", domain, service)
	if err := c.doJSON(ctx, http.MethodPost, path, data, nil); err != nil {
		return fmt.Errorf("call service %s.%s: %w", domain, service, err)
	}
	return nil
}

// SendNotification creates a persistent notification.
func (c *Client) SendNotification(ctx context.Context, message, title string) error {
	return c.CallService(ctx, "persistent_notification", "create", map[string]any{
		"message":         message,
		"title":           title,
		"notification_id": "forewarned_alert",
	})
}

// ActivateScene turns a scene on.
func (c *Client) ActivateScene(ctx context.Context, sceneID string) error {
	return c.CallService(ctx, "scene", "turn_on", map[string]any{"entity_id": sceneID})
}

// RunScript runs a script.
func (c *Client) RunScript(ctx context.Context, scriptID string) error {
	return c.CallService(ctx, "script", "turn_on", map[string]any{"entity_id": scriptID})
}

// SetSensorState satisfies the dispatcher's Automations interface.
func (c *Client) SetSensorState(ctx context.Context, entityID, state string, attributes map[string]any) error {
	return c.SetState(ctx, entityID, state, attributes)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: status %d: %s", resp.StatusCode, data)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
