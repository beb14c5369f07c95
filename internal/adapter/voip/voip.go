// Package voip places outbound alert calls and renders status responses for
// inbound calls. Two transports are supported, selected at construction
// time: a generic webhook (Asterisk AMI, FreePBX and similar) and a Home
// Assistant notify service. Direct SIP is deliberately out of scope.
package voip

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/forewarned/forewarned/internal/domain"
)

// AlertMessage generates the spoken message for an outbound alert call.
func AlertMessage(level domain.AlertLevel, reason string) string {
	switch level {
	case domain.LevelAdvisory:
		return fmt.Sprintf("Advisory alert: %s", reason)
	case domain.LevelWatch:
		return fmt.Sprintf("Watch alert: %s. Monitor conditions.", reason)
	case domain.LevelWarning:
		return fmt.Sprintf("Warning! %s. Take precautions.", reason)
	case domain.LevelEmergency:
		return fmt.Sprintf("Emergency alert! %s. Take immediate action!", reason)
	default:
		return fmt.Sprintf("Alert: %s", reason)
	}
}

// StatusMessage generates the text-to-speech status read out to inbound
// callers.
func StatusMessage(state domain.LocalAlertState) string {
	if !state.Active {
		return "There are currently no active alerts. All systems normal."
	}

	msg := fmt.Sprintf("Current alert level is %s. %s. ",
		strings.ToUpper(state.Level.String()), state.Reason)

	switch state.Level {
	case domain.LevelEmergency:
		msg += "This is an emergency. Take immediate action."
	case domain.LevelWarning:
		msg += "This is a warning. Take appropriate precautions."
	case domain.LevelWatch:
		msg += "This is a watch alert. Monitor conditions closely."
	case domain.LevelAdvisory:
		msg += "This is an advisory. Be aware of conditions."
	}
	return msg
}

// TwiML renders a Twilio voice response for the current state.
func TwiML(state domain.LocalAlertState) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n<Response>\n")
	fmt.Fprintf(&b, "    <Say voice=\"alice\">%s</Say>\n", xmlEscape(StatusMessage(state)))
	b.WriteString("    <Pause length=\"2\"/>\n")
	b.WriteString("    <Say voice=\"alice\">Press 1 to repeat this message. Press 2 to hang up.</Say>\n")
	b.WriteString("    <Gather numDigits=\"1\" action=\"/voip/menu\" method=\"POST\">\n")
	b.WriteString("        <Pause length=\"5\"/>\n")
	b.WriteString("    </Gather>\n")
	b.WriteString("    <Say voice=\"alice\">Goodbye.</Say>\n</Response>")
	return b.String()
}

// AGIScript renders Asterisk AGI commands reading out the current state.
func AGIScript(state domain.LocalAlertState) string {
	return fmt.Sprintf(`ANSWER
WAIT 1
EXEC Set(CHANNEL(language)=en)
EXEC SayText(%q)
WAIT 2
HANGUP
`, StatusMessage(state))
}

func xmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}

// WebhookConfig configures the webhook call transport.
type WebhookConfig struct {
	URL      string
	Method   string // "POST" (JSON body) or "GET" (query params)
	AuthType string // "none", "basic", or "bearer"
	Username string
	Password string
	Token    string
	Timeout  time.Duration
}

// WebhookCaller places calls by hitting a PBX webhook. The payload carries
// the destination, spoken message, and alert level; the PBX owns dialing
// and TTS.
type WebhookCaller struct {
	cfg        WebhookConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWebhookCaller creates a webhook call transport.
func NewWebhookCaller(cfg WebhookConfig, logger *slog.Logger) *WebhookCaller {
	return &WebhookCaller{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// PlaceAlertCall issues one webhook request for one destination.
func (w *WebhookCaller) PlaceAlertCall(ctx context.Context, destination string, level domain.AlertLevel, reason string) error {
	message := AlertMessage(level, reason)

	var req *http.Request
	var err error
	if w.cfg.Method == http.MethodGet {
		params := url.Values{
			"extension":   {destination},
			"message":     {message},
			"alert_level": {level.String()},
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, w.cfg.URL+"?"+params.Encode(), nil)
	} else {
		payload, merr := json.Marshal(map[string]string{
			"extension":   destination,
			"message":     message,
			"alert_level": level.String(),
		})
		if merr != nil {
			return fmt.Errorf("encode call payload: %w", merr)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(payload))
		if req != nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return fmt.Errorf("create call request: %w", err)
	}

	switch w.cfg.AuthType {
	case "basic":
		credentials := base64.StdEncoding.EncodeToString([]byte(w.cfg.Username + ":" + w.cfg.Password))
		req.Header.Set("Authorization", "Basic "+credentials)
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+w.cfg.Token)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook call to %s: %w", destination, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return nil
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook call to %s: status %d: %s", destination, resp.StatusCode, body)
	}
}

// ServiceCaller is the slice of the platform API the notify transport needs.
type ServiceCaller interface {
	CallService(ctx context.Context, domain, service string, data map[string]any) error
}

// NotifyCaller places calls through a Home Assistant notify service that is
// configured to trigger phone calls.
type NotifyCaller struct {
	services ServiceCaller
	service  string // e.g. "notify.voip_phone"
	logger   *slog.Logger
}

// NewNotifyCaller creates a notify-service call transport.
func NewNotifyCaller(services ServiceCaller, service string, logger *slog.Logger) *NotifyCaller {
	return &NotifyCaller{services: services, service: service, logger: logger}
}

// PlaceAlertCall sends the alert message to the notify service with the
// destination as target.
func (n *NotifyCaller) PlaceAlertCall(ctx context.Context, destination string, level domain.AlertLevel, reason string) error {
	service := strings.TrimPrefix(n.service, "notify.")
	return n.services.CallService(ctx, "notify", service, map[string]any{
		"message": AlertMessage(level, reason),
		"target":  destination,
		"data": map[string]any{
			"alert_level": level.String(),
		},
	})
}
