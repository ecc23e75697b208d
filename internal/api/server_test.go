package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/trackerlink-core/internal/audit"
	"github.com/nerrad567/trackerlink-core/internal/auth"
	"github.com/nerrad567/trackerlink-core/internal/discovery"
	"github.com/nerrad567/trackerlink-core/internal/entry"
	"github.com/nerrad567/trackerlink-core/internal/infrastructure/config"
	"github.com/nerrad567/trackerlink-core/internal/infrastructure/database"
	"github.com/nerrad567/trackerlink-core/internal/infrastructure/logging"
	"github.com/nerrad567/trackerlink-core/internal/notify"
	"github.com/nerrad567/trackerlink-core/internal/pairing"
	"github.com/nerrad567/trackerlink-core/internal/tracker"
	_ "github.com/nerrad567/trackerlink-core/migrations"
)

const (
	testDomain   = "import_statistics"
	testUser     = "operator"
	testPassword = "correct-horse-battery"
)

const band5JSON = `{
	"component_name": "band5",
	"vendor": "Gadgetbridge",
	"device_info": {"model": "Mi Band 5"},
	"entities": [{"name": "daily_steps", "state_class": "total_increasing"}]
}`

// testEnv is a server wired to a real registry, pairing manager and
// in-memory SQLite stores.
type testEnv struct {
	srv      *Server
	handler  http.Handler
	registry *discovery.Registry
	entries  *entry.SQLiteRepository
	audit    *audit.SQLiteRepository
	token    string
}

func newTestEnv(t *testing.T, policy discovery.Policy) *testEnv {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{Path: database.MemoryPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	wsCfg := config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := NewHub(wsCfg, log)
	go hub.Run(ctx)

	registry := discovery.NewRegistry(policy)
	registry.SetNotifier(notify.NewHubNotifier(hub))

	auditRepo := audit.NewSQLiteRepository(db.DB)
	trail := audit.NewTrail(auditRepo)
	intake := discovery.NewIntake(registry, tracker.Validator{}, trail)

	entries := entry.NewSQLiteRepository(db.DB)
	manager := pairing.NewManager(pairing.Options{
		Domain:    testDomain,
		Timeout:   time.Minute,
		Retention: time.Minute,
	}, registry, entry.NewGuard(entries), entries)
	manager.AddObserver(trail)
	manager.AddObserver(notify.NewHubNotifier(hub))
	t.Cleanup(manager.Close)

	srv, err := New(Deps{
		Config: config.APIConfig{Host: "127.0.0.1"},
		WS:     wsCfg,
		Security: config.SecurityConfig{
			JWT:      config.JWTConfig{Secret: "test-secret-key-at-least-32-characters-long", AccessTokenTTL: 15},
			Operator: config.OperatorConfig{Username: testUser, PasswordHash: hash},
		},
		Logger:      log,
		Domain:      testDomain,
		Intake:      intake,
		Manager:     manager,
		Entries:     entries,
		Audit:       auditRepo,
		Trail:       trail,
		ExternalHub: hub,
		Version:     "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	env := &testEnv{
		srv:      srv,
		handler:  srv.Handler(),
		registry: registry,
		entries:  entries,
		audit:    auditRepo,
	}
	env.token = env.login(t)
	return env
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/auth/login",
		`{"username":"`+testUser+`","password":"`+testPassword+`"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d; body: %s", w.Code, w.Body.String())
	}
	var resp loginResponse
	decode(t, w, &resp)
	return resp.AccessToken
}

// do sends a request through the router. A non-empty token is sent as a
// Bearer header.
func (e *testEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

// authed sends a request with the operator's token.
func (e *testEnv) authed(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, body, e.token)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, want, w.Body.String())
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var e Error
	decode(t, w, &e)
	return e.Code
}

// ─── Health and Middleware ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := newTestEnv(t, discovery.PolicyOverwrite)

	w := env.do(t, http.MethodGet, "/api/v1/health", "", "")
	expectStatus(t, w, http.StatusOK)

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var resp map[string]any
	decode(t, w, &resp)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, discovery.PolicyOverwrite)

	w := env.do(t, http.MethodGet, "/api/v1/health", "", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	env := newTestEnv(t, discovery.PolicyOverwrite)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/discovery", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want http://localhost:3000", got)
	}
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t, discovery.PolicyOverwrite)
	w := env.do(t, http.MethodGet, "/api/v1/nonexistent", "", "")
	expectStatus(t, w, http.StatusNotFound)
}

// ─── Auth ──────────────────────────────────────────────────────────

func TestLogin_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t, discovery.PolicyOverwrite)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"wrong password", `{"username":"operator","password":"nope"}`, http.StatusUnauthorized},
		{"wrong user", `{"username":"admin","password":"` + testPassword + `"}`, http.StatusUnauthorized},
		{"bad json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/auth/login", tt.body, "")
			expectStatus(t, w, tt.want)
		})
	}
}

func TestLogin_Audited(t *testing.T) {
	env := newTestEnv(t, discovery.PolicyOverwrite)

	result, err := env.audit.List(context.Background(), audit.Filter{Action: audit.ActionLogin})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if result.Total != 1 || result.Logs[0].UserID != testUser {
		t.Errorf("login logs = %+v", result.Logs)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t, discovery.PolicyOverwrite)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/discovery"},
		{http.MethodPost, "/api/v1/flows"},
		{http.MethodGet, "/api/v1/entries"},
		{http.MethodGet, "/api/v1/audit"},
		{http.MethodPost, "/api/v1/auth/ws-ticket"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			expectStatus(t, env.do(t, rt.method, rt.path, "", ""), http.StatusUnauthorized)
			expectStatus(t, env.do(t, rt.method, rt.path, "", "not-a-jwt"), http.StatusUnauthorized)
		})
	}
}

// ─── Discovery ─────────────────────────────────────────────────────

func TestDiscovery_SubmitGetWithdraw(t *testing.T) {
	env := newTestEnv(t, discovery.PolicyOverwrite)

	w := env.authed(t, http.MethodPost, "/api/v1/discovery", band5JSON)
	expectStatus(t, w, http.StatusCreated)
	var d tracker.Descriptor
	decode(t, w, &d)
	if d.ComponentName != "band5" || d.DiscoveredAt.IsZero() {
		t.Errorf("descriptor = %+v", d)
	}

	w = env.authed(t, http.MethodGet, "/api/v1/discovery", "")
	expectStatus(t, w, http.StatusOK)
	var list struct {
		Trackers []tracker.Descriptor `json:"trackers"`
		Count    int                  `json:"count"`
	}
	decode(t, w, &list)
	if list.Count != 1 || list.Trackers[0].Vendor != "Gadgetbridge" {
		t.Errorf("list = %+v", list)
	}

	expectStatus(t, env.authed(t, http.MethodGet, "/api/v1/discovery/band5", ""), http.StatusOK)
	expectStatus(t, env.authed(t, http.MethodDelete, "/api/v1/discovery/band5", ""), http.StatusNoContent)
	expectStatus(t, env.authed(t, http.MethodDelete, "/api/v1/discovery/band5", ""), http.StatusNotFound)
	expectStatus(t, env.authed(t, http.MethodGet, "/api/v1/discovery/band5", ""), http.StatusNotFound)
}

func TestDiscovery_SubmitInvalid(t *testing.T) {
	env := newTestEnv(t, discovery.PolicyOverwrite)

	tests := []struct {
		name string
		body string
	}{
		{"missing component", `{"entities":[{"name":"steps"}]}`},
		{"no entities", `{"component_name":"band5","entities":[]}`},
		{"duplicate entity", `{"component_name":"band5","entities":[{"name":"steps"},{"name":"steps"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.authed(t, http.MethodPost, "/api/v1/discovery", tt.body)
			expectStatus(t, w, http.StatusBadRequest)
			if code := errorCode(t, w); code != ErrCodeValidation {
				t.Errorf("code = %q, want %q", code, ErrCodeValidation)
			}
		})
	}
	if env.registry.Count() != 0 {
		t.Errorf("registry count = %d, want 0", env.registry.Count())
	}
}

func TestDiscovery_RejectPolicyConflict(t *testing.T) {
	env := newTestEnv(t, discovery.PolicyReject)

	expectStatus(t, env.authed(t, http.MethodPost, "/api/v1/discovery", band5JSON), http.StatusCreated)
	w := env.authed(t, http.MethodPost, "/api/v1/discovery", band5JSON)
	expectStatus(t, w, http.StatusConflict)
	if code := errorCode(t, w); code != ErrCodeConflict {
		t.Errorf("code = %q, want %q", code, ErrCodeConflict)
	}
}

// ─── Pairing Flows ─────────────────────────────────────────────────

func TestFlow_Band5EndToEnd(t *testing.T) {
	env := newTestEnv(t, discovery.PolicyOverwrite)
	expectStatus(t, env.authed(t, http.MethodPost, "/api/v1/discovery", band5JSON), http.StatusCreated)

	w := env.authed(t, http.MethodPost, "/api/v1/flows", `{"component_name":"band5"}`)
	expectStatus(t, w, http.StatusCreated)
	var s pairing.Session
	decode(t, w, &s)
	if s.State != pairing.StateAwaitingConfirmation {
		t.Fatalf("state = %s, want %s", s.State, pairing.StateAwaitingConfirmation)
	}
	if s.Description == "" {
		t.Error("expected a confirmation description")
	}

	w = env.authed(t, http.MethodPost, "/api/v1/flows/"+s.FlowID+"/confirm", "")
	expectStatus(t, w, http.StatusOK)
	decode(t, w, &s)
	if s.State != pairing.StateCompleted || s.EntryID == "" {
		t.Fatalf("after confirm: state = %s, entry = %q", s.State, s.EntryID)
	}

	if env.registry.Count() != 0 {
		t.Error("band5 still pending after confirm")
	}

	w = env.authed(t, http.MethodGet, "/api/v1/entries/"+s.EntryID, "")
	expectStatus(t, w, http.StatusOK)
	var got entryResponse
	decode(t, w, &got)
	if got.Entry.UniqueID != testDomain+"_band5" || got.Entry.Title != "Gadgetbridge - band5" {
		t.Errorf("entry = %+v", got.Entry)
	}
	if got.Device == nil || got.Device.Manufacturer != "Gadgetbridge" {
		t.Errorf("device = %+v", got.Device)
	}
	if len(got.Sensors) != 1 || got.Sensors[0].EntityID != "sensor.band5_daily_steps" {
		t.Errorf("sensors = %+v", got.Sensors)
	}

	var lookup struct {
		Entries []entry.Entry `json:"entries"`
		Count   int           `json:"count"`
	}
	w = env.authed(t, http.MethodGet, "/api/v1/entries?unique_id="+testDomain+"_band5", "")
	expectStatus(t, w, http.StatusOK)
	decode(t, w, &lookup)
	if lookup.Count != 1 || lookup.Entries[0].ID != s.EntryID {
		t.Errorf("lookup by unique_id = %+v", lookup)
	}
	w = env.authed(t, http.MethodGet, "/api/v1/entries?unique_id="+testDomain+"_band9", "")
	expectStatus(t, w, http.StatusOK)
	decode(t, w, &lookup)
	if lookup.Count != 0 {
		t.Errorf("lookup of unknown unique_id count = %d, want 0", lookup.Count)
	}

	// Flow is retained and readable after completion.
	w = env.authed(t, http.MethodGet, "/api/v1/flows/"+s.FlowID, "")
	expectStatus(t, w, http.StatusOK)

	// A second confirm is a transition from a terminal state.
	w = env.authed(t, http.MethodPost, "/api/v1/flows/"+s.FlowID+"/confirm", "")
	expectStatus(t, w, http.StatusConflict)

	// Rediscovering and pairing again is refused as already configured.
	expectStatus(t, env.authed(t, http.MethodPost, "/api/v1/discovery", band5JSON), http.StatusCreated)
	w = env.authed(t, http.MethodPost, "/api/v1/flows", `{"component_name":"band5"}`)
	expectStatus(t, w, http.StatusCreated)
	decode(t, w, &s)
	if s.State != pairing.StateAborted || s.Reason != pairing.ReasonAlreadyConfigured {
		t.Errorf("second flow = (%s, %s)", s.State, s.Reason)
	}

	result, err := env.audit.List(context.Background(), audit.Filter{Action: audit.ActionFlowCompleted})
	if err != nil || result.Total != 1 {
		t.Errorf("flow_completed logs = %+v, %v", result, err)
	}
}

func TestFlow_GenericSelect(t *testing.T) {
	env := newTestEnv(t, discovery.PolicyOverwrite)

	w := env.authed(t, http.MethodPost, "/api/v1/flows", "")
	expectStatus(t, w, http.StatusCreated)
	var s pairing.Session
	decode(t, w, &s)
	if s.Reason != pairing.ReasonNoDiscoveredTrackers {
		t.Errorf("empty registry reason = %s, want %s", s.Reason, pairing.ReasonNoDiscoveredTrackers)
	}

	expectStatus(t, env.authed(t, http.MethodPost, "/api/v1/discovery", band5JSON), http.StatusCreated)
	w = env.authed(t, http.MethodPost, "/api/v1/flows", "{}")
	expectStatus(t, w, http.StatusCreated)
	decode(t, w, &s)
	if s.State != pairing.StateAwaitingSelection || len(s.Candidates) != 1 {
		t.Fatalf("generic flow = (%s, %v)", s.State, s.Candidates)
	}

	w = env.authed(t, http.MethodPost, "/api/v1/flows/"+s.FlowID+"/select", `{"component_name":"band9"}`)
	expectStatus(t, w, http.StatusBadRequest)

	w = env.authed(t, http.MethodPost, "/api/v1/flows/"+s.FlowID+"/select", `{"component_name":"band5"}`)
	expectStatus(t, w, http.StatusOK)
	decode(t, w, &s)
	if s.State != pairing.StateAwaitingConfirmation {
		t.Errorf("after select: %s", s.State)
	}

	w = env.authed(t, http.MethodDelete, "/api/v1/flows/"+s.FlowID, "")
	expectStatus(t, w, http.StatusOK)
	decode(t, w, &s)
	if s.Reason != pairing.ReasonCancelled {
		t.Errorf("after cancel: %s", s.Reason)
	}
	if env.registry.Count() != 1 {
		t.Error("cancel must leave the tracker pending")
	}

	w = env.authed(t, http.MethodGet, "/api/v1/flows", "")
	expectStatus(t, w, http.StatusOK)
	var list struct {
		Count int `json:"count"`
	}
	decode(t, w, &list)
	if list.Count != 2 {
		t.Errorf("flow count = %d, want 2", list.Count)
	}
}

func TestFlow_UnknownID(t *testing.T) {
	env := newTestEnv(t, discovery.PolicyOverwrite)

	expectStatus(t, env.authed(t, http.MethodGet, "/api/v1/flows/missing", ""), http.StatusNotFound)
	expectStatus(t, env.authed(t, http.MethodPost, "/api/v1/flows/missing/confirm", ""), http.StatusNotFound)
	expectStatus(t, env.authed(t, http.MethodDelete, "/api/v1/flows/missing", ""), http.StatusNotFound)
}

// ─── Entries and Audit ─────────────────────────────────────────────

func TestEntries_UserEntrySingleInstance(t *testing.T) {
	env := newTestEnv(t, discovery.PolicyOverwrite)

	w := env.authed(t, http.MethodPost, "/api/v1/entries", "")
	expectStatus(t, w, http.StatusCreated)
	var e entry.Entry
	decode(t, w, &e)
	if e.Title != entry.UserEntryTitle || e.Source != entry.SourceUser {
		t.Errorf("entry = %+v", e)
	}

	w = env.authed(t, http.MethodPost, "/api/v1/entries", "")
	expectStatus(t, w, http.StatusConflict)

	w = env.authed(t, http.MethodGet, "/api/v1/entries", "")
	expectStatus(t, w, http.StatusOK)
	var list struct {
		Count int `json:"count"`
	}
	decode(t, w, &list)
	if list.Count != 1 {
		t.Errorf("entry count = %d, want 1", list.Count)
	}

	expectStatus(t, env.authed(t, http.MethodDelete, "/api/v1/entries/"+e.ID, ""), http.StatusNoContent)
	expectStatus(t, env.authed(t, http.MethodDelete, "/api/v1/entries/"+e.ID, ""), http.StatusNotFound)
	expectStatus(t, env.authed(t, http.MethodGet, "/api/v1/entries/"+e.ID, ""), http.StatusNotFound)
}

func TestAudit_ListFilters(t *testing.T) {
	env := newTestEnv(t, discovery.PolicyOverwrite)
	expectStatus(t, env.authed(t, http.MethodPost, "/api/v1/discovery", band5JSON), http.StatusCreated)
	expectStatus(t, env.authed(t, http.MethodDelete, "/api/v1/discovery/band5", ""), http.StatusNoContent)

	w := env.authed(t, http.MethodGet, "/api/v1/audit?entity_type=tracker&entity_id=band5", "")
	expectStatus(t, w, http.StatusOK)
	var result audit.ListResult
	decode(t, w, &result)
	if result.Total != 2 {
		t.Fatalf("tracker logs = %d, want 2", result.Total)
	}
	if result.Logs[0].Source != discovery.SourceAPI {
		t.Errorf("source = %q, want %q", result.Logs[0].Source, discovery.SourceAPI)
	}

	w = env.authed(t, http.MethodGet, "/api/v1/audit?limit=1", "")
	expectStatus(t, w, http.StatusOK)
	decode(t, w, &result)
	if len(result.Logs) != 1 || result.Limit != 1 {
		t.Errorf("limited result = %+v", result)
	}

	expectStatus(t, env.authed(t, http.MethodGet, "/api/v1/audit?limit=abc", ""), http.StatusBadRequest)
	expectStatus(t, env.authed(t, http.MethodGet, "/api/v1/audit?offset=-1", ""), http.StatusBadRequest)
}

// ─── WebSocket ─────────────────────────────────────────────────────

func TestWebSocket_TicketRequired(t *testing.T) {
	env := newTestEnv(t, discovery.PolicyOverwrite)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	base := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	for _, url := range []string{base, base + "?ticket=invalid-ticket"} {
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			t.Fatalf("expected dial to %s to fail", url)
		}
		if resp != nil && resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	}
}

func TestWebSocket_ReceivesDiscovery(t *testing.T) {
	env := newTestEnv(t, discovery.PolicyOverwrite)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	w := env.authed(t, http.MethodPost, "/api/v1/auth/ws-ticket", "")
	expectStatus(t, w, http.StatusOK)
	var ticket struct {
		Ticket string `json:"ticket"`
	}
	decode(t, w, &ticket)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?ticket=" + ticket.Ticket
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer ws.Close()

	// Tickets are single-use.
	if _, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Error("expected reused ticket to be rejected")
	}

	sub := WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{notify.ChannelTrackerDiscovered}},
	}
	if err := ws.WriteJSON(sub); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read subscribe response: %v", err)
	}
	if msg.Type != WSTypeResponse || msg.ID != "sub-1" {
		t.Fatalf("response = %+v", msg)
	}

	expectStatus(t, env.authed(t, http.MethodPost, "/api/v1/discovery", band5JSON), http.StatusCreated)

	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if msg.Type != WSTypeEvent || msg.EventType != notify.ChannelTrackerDiscovered {
		t.Errorf("event = %+v", msg)
	}
	payload, _ := msg.Payload.(map[string]any) //nolint:errcheck // checked below
	if payload["component_name"] != "band5" || payload["seq"] != float64(1) {
		t.Errorf("payload = %v, want band5 at seq 1", msg.Payload)
	}
}

// dialWS opens an authenticated websocket to ts.
func dialWS(t *testing.T, env *testEnv, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	w := env.authed(t, http.MethodPost, "/api/v1/auth/ws-ticket", "")
	expectStatus(t, w, http.StatusOK)
	var ticket struct {
		Ticket string `json:"ticket"`
	}
	decode(t, w, &ticket)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?ticket=" + ticket.Ticket
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	return ws
}

func TestWebSocket_UnknownChannelRejected(t *testing.T) {
	env := newTestEnv(t, discovery.PolicyOverwrite)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()
	ws := dialWS(t, env, ts)

	sub := WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{notify.ChannelTrackerRemoved, "device.state"}},
	}
	if err := ws.WriteJSON(sub); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read response: %v", err)
	}
	if msg.Type != WSTypeError || msg.ID != "sub-1" {
		t.Fatalf("response = %+v, want error", msg)
	}
	payload, _ := msg.Payload.(map[string]any) //nolint:errcheck // checked below
	if m, _ := payload["message"].(string); !strings.Contains(m, "device.state") {
		t.Errorf("error message = %v", msg.Payload)
	}

	// Nothing was subscribed, so a withdrawal is not delivered; the next
	// message is the pong.
	expectStatus(t, env.authed(t, http.MethodPost, "/api/v1/discovery", band5JSON), http.StatusCreated)
	expectStatus(t, env.authed(t, http.MethodDelete, "/api/v1/discovery/band5", ""), http.StatusNoContent)
	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "p-1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if msg.Type != WSTypePong || msg.ID != "p-1" {
		t.Errorf("message = %+v, want pong", msg)
	}
}

func TestWebSocket_ReplaysPendingTrackers(t *testing.T) {
	env := newTestEnv(t, discovery.PolicyOverwrite)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	expectStatus(t, env.authed(t, http.MethodPost, "/api/v1/discovery", band5JSON), http.StatusCreated)
	ws := dialWS(t, env, ts)

	sub := WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{notify.ChannelTrackerDiscovered}},
	}
	if err := ws.WriteJSON(sub); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil || msg.Type != WSTypeResponse {
		t.Fatalf("response = %+v, %v", msg, err)
	}
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read replay: %v", err)
	}
	if msg.Type != WSTypeEvent || msg.EventType != notify.ChannelTrackerDiscovered || !msg.Replay {
		t.Errorf("replayed event = %+v", msg)
	}
	payload, _ := msg.Payload.(map[string]any) //nolint:errcheck // checked below
	if payload["component_name"] != "band5" {
		t.Errorf("payload = %v", msg.Payload)
	}

	// Subscribing again replays nothing; the next message is the response.
	sub.ID = "sub-2"
	if err := ws.WriteJSON(sub); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "p-1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	for _, want := range []string{WSTypeResponse, WSTypePong} {
		if err := ws.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type != want {
			t.Errorf("message type = %q, want %q", msg.Type, want)
		}
	}
}
