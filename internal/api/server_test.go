package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/nerrad567/rpigarage/internal/auth"
	"github.com/nerrad567/rpigarage/internal/door"
	"github.com/nerrad567/rpigarage/internal/history"
	"github.com/nerrad567/rpigarage/internal/infrastructure/config"
	"github.com/nerrad567/rpigarage/internal/infrastructure/logging"
	"github.com/nerrad567/rpigarage/internal/reconcile"
)

type stubDoor struct {
	snap reconcile.Snapshot
}

func (d *stubDoor) Snapshot() reconcile.Snapshot { return d.snap }

type stubBroker struct {
	connected bool
	subs      int
}

func (b *stubBroker) IsConnected() bool      { return b.connected }
func (b *stubBroker) SubscriptionCount() int { return b.subs }

type stubChecker struct{ err error }

func (c stubChecker) HealthCheck(context.Context) error { return c.err }

type stubHistory struct {
	entries   []history.Entry
	err       error
	lastLimit int
}

func (h *stubHistory) Record(context.Context, reconcile.Event) error { return nil }

func (h *stubHistory) Recent(_ context.Context, limit int) ([]history.Entry, error) {
	h.lastLimit = limit
	if h.err != nil {
		return nil, h.err
	}
	if limit < len(h.entries) {
		return h.entries[:limit], nil
	}
	return h.entries, nil
}

func (h *stubHistory) Prune(context.Context, time.Duration) (int64, error) { return 0, nil }

// testServer builds a Server with healthy stubs; mutate adjusts deps first.
func testServer(t *testing.T, mutate func(*Deps)) *Server {
	t.Helper()

	deps := Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		Logger: logging.Discard(),
		Thing:  "GarageDoor",
		Door: &stubDoor{snap: reconcile.Snapshot{
			Running:  true,
			Physical: door.Open,
			Reported: door.StatusOpened,
			Stats:    reconcile.Stats{Signals: 2, Pulses: 2},
		}},
		Broker:  &stubBroker{connected: true, subs: 2},
		Version: "test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

func doRequest(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{Door: &stubDoor{}}); err == nil {
		t.Error("New() without logger expected error")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("New() without door source expected error")
	}
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Deps)
		wantCode   int
		wantStatus string
	}{
		{
			name:       "healthy",
			wantCode:   http.StatusOK,
			wantStatus: HealthOK,
		},
		{
			name: "broker disconnected",
			mutate: func(d *Deps) {
				d.Broker = &stubBroker{connected: false}
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: HealthDegraded,
		},
		{
			name: "engine stopped",
			mutate: func(d *Deps) {
				d.Door = &stubDoor{snap: reconcile.Snapshot{Running: false}}
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: HealthDegraded,
		},
		{
			name: "journal failing degrades but stays available",
			mutate: func(d *Deps) {
				d.Database = stubChecker{err: errors.New("disk I/O error")}
			},
			wantCode:   http.StatusOK,
			wantStatus: HealthDegraded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(t, tt.mutate)
			rec := doRequest(t, srv, http.MethodGet, "/api/v1/health")

			if rec.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", rec.Code, tt.wantCode)
			}
			resp := decode[HealthResponse](t, rec)
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if resp.Version != "test" {
				t.Errorf("version = %q, want test", resp.Version)
			}
		})
	}
}

func TestHandleHealth_Checks(t *testing.T) {
	srv := testServer(t, func(d *Deps) {
		d.Database = stubChecker{}
		d.InfluxDB = stubChecker{err: errors.New("influxdb: not connected")}
	})

	resp := decode[HealthResponse](t, doRequest(t, srv, http.MethodGet, "/api/v1/health"))

	if resp.Checks["database"] != HealthOK {
		t.Errorf("checks[database] = %q, want ok", resp.Checks["database"])
	}
	if resp.Checks["influxdb"] != "influxdb: not connected" {
		t.Errorf("checks[influxdb] = %q", resp.Checks["influxdb"])
	}
	if resp.MQTT.Subscriptions != 2 {
		t.Errorf("mqtt.subscriptions = %d, want 2", resp.MQTT.Subscriptions)
	}
}

func TestHandleDoor(t *testing.T) {
	srv := testServer(t, nil)
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/door")

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body["thing"] != "GarageDoor" {
		t.Errorf("thing = %v", body["thing"])
	}
	if body["doorStatus"] != "opened" {
		t.Errorf("doorStatus = %v, want opened", body["doorStatus"])
	}
	if body["running"] != true {
		t.Errorf("running = %v, want true", body["running"])
	}
	stats, ok := body["stats"].(map[string]any)
	if !ok || stats["signals"] != float64(2) {
		t.Errorf("stats = %v, want signals=2", body["stats"])
	}
}

func TestHandleDoorEvents(t *testing.T) {
	hist := &stubHistory{entries: []history.Entry{
		{ID: 3, Kind: reconcile.EventPulse, CorrelationToken: "tok-1"},
		{ID: 2, Kind: reconcile.EventSignal, Reported: door.StatusClosed, Desired: door.CommandOpened, CorrelationToken: "tok-1"},
		{ID: 1, Kind: reconcile.EventInitialReport, Reported: door.StatusClosed},
	}}
	srv := testServer(t, func(d *Deps) { d.History = hist })

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/door/events?limit=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	resp := decode[EventsResponse](t, rec)
	if resp.Count != 2 || len(resp.Events) != 2 {
		t.Fatalf("count = %d, events = %d, want 2", resp.Count, len(resp.Events))
	}
	if resp.Events[1].Desired != door.CommandOpened {
		t.Errorf("events[1].desired = %q", resp.Events[1].Desired)
	}
	if hist.lastLimit != 2 {
		t.Errorf("Recent() limit = %d, want 2", hist.lastLimit)
	}

	// Without a limit the journal default applies.
	doRequest(t, srv, http.MethodGet, "/api/v1/door/events")
	if hist.lastLimit != history.DefaultLimit {
		t.Errorf("Recent() default limit = %d, want %d", hist.lastLimit, history.DefaultLimit)
	}
}

func TestHandleDoorEvents_Errors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Deps)
		path     string
		wantCode int
		wantErr  string
	}{
		{
			name:     "journal disabled",
			path:     "/api/v1/door/events",
			wantCode: http.StatusServiceUnavailable,
			wantErr:  ErrCodeUnavailable,
		},
		{
			name:     "non-numeric limit",
			mutate:   func(d *Deps) { d.History = &stubHistory{} },
			path:     "/api/v1/door/events?limit=lots",
			wantCode: http.StatusBadRequest,
			wantErr:  ErrCodeBadRequest,
		},
		{
			name:     "zero limit",
			mutate:   func(d *Deps) { d.History = &stubHistory{} },
			path:     "/api/v1/door/events?limit=0",
			wantCode: http.StatusBadRequest,
			wantErr:  ErrCodeBadRequest,
		},
		{
			name:     "query failure",
			mutate:   func(d *Deps) { d.History = &stubHistory{err: errors.New("database is locked")} },
			path:     "/api/v1/door/events",
			wantCode: http.StatusInternalServerError,
			wantErr:  ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(t, tt.mutate)
			rec := doRequest(t, srv, http.MethodGet, tt.path)

			if rec.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", rec.Code, tt.wantCode)
			}
			resp := decode[Error](t, rec)
			if resp.Code != tt.wantErr {
				t.Errorf("error code = %q, want %q", resp.Code, tt.wantErr)
			}
		})
	}
}

func TestRouter_NotFoundAndMethod(t *testing.T) {
	srv := testServer(t, nil)

	if rec := doRequest(t, srv, http.MethodGet, "/api/v1/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", rec.Code)
	}
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/door")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /door status = %d, want 405", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Content-Type"), "application/json") {
		t.Errorf("Content-Type = %q, want JSON", rec.Header().Get("Content-Type"))
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	srv := testServer(t, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/door")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not generated")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/door", nil)
	req.Header.Set("X-Request-ID", "abc123")
	rec = httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc123" {
		t.Errorf("X-Request-ID = %q, want client value", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv := testServer(t, nil)
	handler := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status code = %d, want 500", rec.Code)
	}
}

func TestServer_StartClose(t *testing.T) {
	srv := testServer(t, nil)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status code = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestServer_StartPortInUse(t *testing.T) {
	first := testServer(t, nil)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer first.Close()

	_, rawPort, _ := strings.Cut(first.Addr(), ":")
	port, err := strconv.Atoi(rawPort)
	if err != nil {
		t.Fatalf("parsing port from %q: %v", first.Addr(), err)
	}
	second := testServer(t, func(d *Deps) {
		d.Config.Port = port
	})
	if err := second.Start(context.Background()); err == nil {
		second.Close()
		t.Error("Start() on a bound port expected error")
	}
}

func TestServer_CloseBeforeStart(t *testing.T) {
	srv := testServer(t, nil)
	if err := srv.Close(); err != nil {
		t.Errorf("Close() before Start error = %v", err)
	}
}

func TestAuthMiddleware(t *testing.T) {
	const secret = "test-secret-key-at-least-32-characters-long"
	srv := testServer(t, func(d *Deps) {
		d.Config.Auth.JWTSecret = secret
		d.History = &stubHistory{}
	})

	valid, err := auth.IssueToken("dashboard", secret, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	foreign, err := auth.IssueToken("dashboard", strings.Repeat("z", 40), time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	tests := []struct {
		name     string
		path     string
		header   string
		wantCode int
	}{
		{"health stays open", "/api/v1/health", "", http.StatusOK},
		{"door without token", "/api/v1/door", "", http.StatusUnauthorized},
		{"door with token", "/api/v1/door", "Bearer " + valid, http.StatusOK},
		{"events with token", "/api/v1/door/events", "Bearer " + valid, http.StatusOK},
		{"token signed elsewhere", "/api/v1/door", "Bearer " + foreign, http.StatusUnauthorized},
		{"basic auth", "/api/v1/door", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"query token", "/api/v1/door?token=" + valid, "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			srv.buildRouter().ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCode == http.StatusUnauthorized {
				if resp := decode[Error](t, rec); resp.Code != ErrCodeUnauthorized {
					t.Errorf("error code = %q, want %q", resp.Code, ErrCodeUnauthorized)
				}
			}
		})
	}
}
