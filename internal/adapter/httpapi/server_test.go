package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forewarned/forewarned/internal/adapter/httpapi"
	"github.com/forewarned/forewarned/internal/domain"
)

type mockEngine struct {
	state    domain.LocalAlertState
	weather  domain.WeatherSnapshot
	eoc      domain.EOCSnapshot
	readyErr error

	reloaded  domain.LevelTable
	reloadErr error
}

func (m *mockEngine) CurrentState() domain.LocalAlertState { return m.state }

func (m *mockEngine) Snapshots() (domain.WeatherSnapshot, domain.EOCSnapshot) {
	return m.weather, m.eoc
}

func (m *mockEngine) ReloadLevelTable(_ context.Context, table domain.LevelTable) error {
	if m.reloadErr != nil {
		return m.reloadErr
	}
	m.reloaded = table
	return nil
}

func (m *mockEngine) CheckReadiness(_ context.Context) error { return m.readyErr }

func newTestServer(engine *mockEngine) *httpapi.Server {
	return httpapi.NewServer(":0", engine, slog.Default())
}

func do(srv *httpapi.Server, method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := do(newTestServer(&mockEngine{}), http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := do(newTestServer(&mockEngine{}), http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	engine := &mockEngine{readyErr: errors.New("no snapshots yet")}
	rec := do(newTestServer(engine), http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "no snapshots yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(newTestServer(&mockEngine{}), http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStatusEndpoint(t *testing.T) {
	engine := &mockEngine{
		state: domain.LocalAlertState{
			Active: true,
			Level:  domain.LevelWarning,
			Reason: "Weather: Flood Warning",
		},
		weather: domain.WeatherSnapshot{"a1": {Event: "Flood Warning"}},
		eoc:     domain.EOCSnapshot{"site": {State: domain.EOCInactive}},
	}
	rec := do(newTestServer(engine), http.MethodGet, "/api/status", "")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		LocalAlert    domain.LocalAlertState `json:"local_alert"`
		WeatherAlerts int                    `json:"weather_alerts"`
		EOCSites      int                    `json:"eoc_sites"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.LocalAlert.Active)
	assert.Equal(t, domain.LevelWarning, body.LocalAlert.Level)
	assert.Equal(t, 1, body.WeatherAlerts)
	assert.Equal(t, 1, body.EOCSites)
}

func TestWeatherAndEOCEndpoints(t *testing.T) {
	engine := &mockEngine{
		weather: domain.WeatherSnapshot{"a1": {Event: "Flood Warning", Severity: domain.SeverityMinor}},
		eoc:     domain.EOCSnapshot{"site": {State: domain.EOCStandUp, Activated: true}},
	}
	srv := newTestServer(engine)

	rec := do(srv, http.MethodGet, "/api/weather", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var weather domain.WeatherSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &weather))
	assert.Contains(t, weather, "a1")

	rec = do(srv, http.MethodGet, "/api/eoc", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var eoc domain.EOCSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &eoc))
	assert.True(t, eoc["site"].Activated)
}

func TestReloadRules(t *testing.T) {
	engine := &mockEngine{}
	body := `{"warning": {"weather_conditions": {"operator": "or", "rules": [{"severity": "severe"}]}}}`

	rec := do(newTestServer(engine), http.MethodPost, "/api/rules", body)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, engine.reloaded, domain.LevelWarning)
}

func TestReloadRules_RejectsBadJSON(t *testing.T) {
	rec := do(newTestServer(&mockEngine{}), http.MethodPost, "/api/rules", `{"warning": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReloadRules_RejectsUnknownLevel(t *testing.T) {
	rec := do(newTestServer(&mockEngine{}), http.MethodPost, "/api/rules", `{"catastrophe": {}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReloadRules_PropagatesEngineRejection(t *testing.T) {
	engine := &mockEngine{reloadErr: errors.New("level table is required")}
	rec := do(newTestServer(engine), http.MethodPost, "/api/rules", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVoipStatus(t *testing.T) {
	engine := &mockEngine{state: domain.LocalAlertState{
		Active: true,
		Level:  domain.LevelEmergency,
		Reason: "LDMG: STAND UP",
	}}
	rec := do(newTestServer(engine), http.MethodGet, "/voip/status", "")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["active"])
	assert.Equal(t, "emergency", body["level"])
	assert.Contains(t, body["message"], "Current alert level is EMERGENCY")
}

func TestVoipTwiML(t *testing.T) {
	rec := do(newTestServer(&mockEngine{}), http.MethodGet, "/voip/twiml", "")

	assert.Equal(t, "text/xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "no active alerts")
}

func doForm(srv *httpapi.Server, target, form string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	srv.ServeHTTP(rec, req)
	return rec
}

func TestVoipMenu(t *testing.T) {
	srv := newTestServer(&mockEngine{})

	rec := doForm(srv, "/voip/menu", "Digits=1")
	assert.Contains(t, rec.Body.String(), "no active alerts")

	rec = doForm(srv, "/voip/menu", "Digits=2")
	assert.Contains(t, rec.Body.String(), "Goodbye")
	assert.Contains(t, rec.Body.String(), "<Hangup/>")
}

func TestVoipAGI(t *testing.T) {
	rec := do(newTestServer(&mockEngine{}), http.MethodGet, "/voip/agi", "")

	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "ANSWER")
}
