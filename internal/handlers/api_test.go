package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pandeptwidyaop/card-runner/internal/airwallex"
	"github.com/pandeptwidyaop/card-runner/internal/automation"
	"github.com/pandeptwidyaop/card-runner/internal/config"
	"github.com/pandeptwidyaop/card-runner/internal/database"
	"github.com/pandeptwidyaop/card-runner/internal/metrics"
	"github.com/pandeptwidyaop/card-runner/internal/middleware"
	"github.com/pandeptwidyaop/card-runner/internal/router"
	"github.com/pandeptwidyaop/card-runner/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	adminUser     = "ops"
	adminPassword = "Runner2026ok"
	validSettings = `{"email":"ops@example.com","password":"pw","cardAmount":25,"numberOfCards":2}`
)

// scriptRunner runs the script without a browser.
type scriptRunner struct{}

func (scriptRunner) Run(ctx context.Context, script automation.ScriptFunc, opts automation.RunOptions) automation.Result {
	err := script(ctx, nil, opts.Collector)
	if err != nil {
		opts.Collector.Error(err.Error())
		return automation.Result{Output: opts.Collector.Output(), Error: err.Error()}
	}
	return automation.Result{Output: opts.Collector.Output(), Success: true}
}

// cardScript reports a full batch, or blocks until cancelled when block is set.
type cardScript struct {
	block   bool
	started chan struct{}
}

func (s *cardScript) Run(ctx context.Context, _ automation.Page, out *automation.OutputCollector, in automation.CardInput) (automation.BatchReport, error) {
	if s.block {
		close(s.started)
		<-ctx.Done()
		return automation.BatchReport{}, ctx.Err()
	}
	out.Logf("Created: %d, Failed: 0", in.NumberOfCards)
	return automation.BatchReport{Attempted: in.NumberOfCards, Created: in.NumberOfCards}, nil
}

type fakeIssuer struct {
	mu     sync.Mutex
	failAt int
	issued int
}

func (f *fakeIssuer) CreateCard(_ context.Context, _ airwallex.Credentials, nickname string, _ float64) (*airwallex.CreateCardResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt > 0 && f.issued+1 == f.failAt {
		return nil, &airwallex.APIError{StatusCode: 400, Body: "insufficient balance"}
	}
	f.issued++
	return &airwallex.CreateCardResponse{CardID: fmt.Sprintf("card_%d", f.issued), NickName: nickname}, nil
}

func (f *fakeIssuer) CardDetails(context.Context, airwallex.Credentials, string) (*airwallex.SensitiveCardDetails, error) {
	return &airwallex.SensitiveCardDetails{CardNumber: "4111111111111111", CVV: "321", ExpiryMonth: 1, ExpiryYear: 2031}, nil
}

func (f *fakeIssuer) ListCardholders(context.Context, airwallex.Credentials, int, int) (*airwallex.ListCardholdersResponse, error) {
	return &airwallex.ListCardholdersResponse{Items: []airwallex.Cardholder{{CardholderID: "ch_1", Email: "ops@example.com"}}}, nil
}

type testServer struct {
	t      *testing.T
	engine *gin.Engine
	db     *database.DB
	script *cardScript
	issuer *fakeIssuer
	cookie *http.Cookie
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	dir := t.TempDir()
	db, err := database.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	// Requests that omit "headless" get the automation default.
	cfg := &config.Config{
		Database:   config.DatabaseConfig{Path: filepath.Join(dir, "test.db")},
		Auth:       config.AuthConfig{BcryptCost: 4, SessionDuration: "1h"},
		Security:   config.SecurityConfig{MaxLoginAttempts: 100},
		Automation: config.AutomationConfig{Headless: true},
	}

	crypto, err := services.NewCryptoService([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatal(err)
	}

	reg := prometheus.NewRegistry()
	script := &cardScript{started: make(chan struct{})}
	issuer := &fakeIssuer{}

	authSvc := services.NewAuthService(db, cfg)
	configSvc := services.NewConfigService(db)
	settingsSvc := services.NewSettingsService(db, crypto)
	runSvc := services.NewRunService(db, configSvc, scriptRunner{}, script, metrics.MustNewRunMetrics(reg), 0)

	if _, err := authSvc.CreateUser(adminUser, adminPassword, true); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	engine := router.New(ctx, cfg, router.Services{
		Auth:     authSvc,
		Audit:    services.NewAuditService(db),
		Configs:  configSvc,
		Runs:     runSvc,
		Cards:    services.NewCardService(db, crypto, settingsSvc, issuer, ""),
		Settings: settingsSvc,
		Gatherer: reg,
	})

	return &testServer{t: t, engine: engine, db: db, script: script, issuer: issuer}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			s.t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if s.cookie != nil {
		req.AddCookie(s.cookie)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) login() {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/auth/login", gin.H{"username": adminUser, "password": adminPassword})
	if w.Code != http.StatusOK {
		s.t.Fatalf("login failed: %d %s", w.Code, w.Body.String())
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			s.cookie = c
		}
	}
	if s.cookie == nil {
		s.t.Fatal("login did not set a session cookie")
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("invalid JSON response %q: %v", w.Body.String(), err)
	}
	return v
}

func (s *testServer) createConfig(name, settings string) string {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/configs", `{"name":"`+name+`","settings":`+settings+`}`)
	if w.Code != http.StatusCreated {
		s.t.Fatalf("create config failed: %d %s", w.Code, w.Body.String())
	}
	return decode[map[string]any](s.t, w)["id"].(string)
}

func (s *testServer) runCount() int {
	s.t.Helper()
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&n); err != nil {
		s.t.Fatal(err)
	}
	return n
}

func TestAuth_LoginMeLogout(t *testing.T) {
	s := newTestServer(t)

	if w := s.do(http.MethodGet, "/api/configs", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without session, got %d", w.Code)
	}

	w := s.do(http.MethodPost, "/api/auth/login", gin.H{"username": adminUser, "password": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong password, got %d", w.Code)
	}
	if w := s.do(http.MethodPost, "/api/auth/login", `{"username":""}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing fields, got %d", w.Code)
	}

	s.login()
	if !s.cookie.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}

	me := decode[map[string]any](t, s.do(http.MethodGet, "/api/auth/me", nil))
	if me["username"] != adminUser || me["is_admin"] != true {
		t.Errorf("unexpected me response %v", me)
	}

	if w := s.do(http.MethodPost, "/api/auth/logout", nil); w.Code != http.StatusOK {
		t.Fatalf("logout failed: %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/auth/me", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", w.Code)
	}
}

func TestAuth_ChangePassword(t *testing.T) {
	s := newTestServer(t)
	s.login()

	w := s.do(http.MethodPost, "/api/auth/password", gin.H{"old_password": adminPassword, "new_password": "short"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a weak password, got %d", w.Code)
	}
	w = s.do(http.MethodPost, "/api/auth/password", gin.H{"old_password": "nope", "new_password": "Better2027pw"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for a wrong old password, got %d", w.Code)
	}
	w = s.do(http.MethodPost, "/api/auth/password", gin.H{"old_password": adminPassword, "new_password": "Better2027pw"})
	if w.Code != http.StatusOK {
		t.Fatalf("change password failed: %d %s", w.Code, w.Body.String())
	}
	if w := s.do(http.MethodGet, "/api/auth/me", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected the old session to be dropped, got %d", w.Code)
	}
}

func TestConfigs_CRUDAndBackup(t *testing.T) {
	s := newTestServer(t)
	s.login()

	id := s.createConfig("cfg1", validSettings)

	if w := s.do(http.MethodPost, "/api/configs", `{"name":"x","settings":[1]}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-object settings, got %d", w.Code)
	}
	if w := s.do(http.MethodPost, "/api/configs", `{"name":"bad;name"}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an invalid name, got %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/configs/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}

	w := s.do(http.MethodPut, "/api/configs/"+id, gin.H{"name": "renamed"})
	if w.Code != http.StatusOK || decode[map[string]any](t, w)["name"] != "renamed" {
		t.Errorf("update failed: %d %s", w.Code, w.Body.String())
	}

	got := decode[map[string]any](t, s.do(http.MethodGet, "/api/configs/"+id, nil))
	if got["settings"] != validSettings {
		t.Errorf("settings should round-trip unchanged, got %v", got["settings"])
	}
	if runs, ok := got["runs"].([]any); !ok || len(runs) != 0 {
		t.Errorf("expected empty runs list, got %v", got["runs"])
	}

	export := s.do(http.MethodGet, "/api/configs/export", nil)
	if export.Code != http.StatusOK || !strings.Contains(export.Header().Get("Content-Disposition"), "attachment") {
		t.Fatalf("export failed: %d", export.Code)
	}

	if w := s.do(http.MethodDelete, "/api/configs/"+id, nil); w.Code != http.StatusOK {
		t.Fatalf("delete failed: %d", w.Code)
	}
	if w := s.do(http.MethodDelete, "/api/configs/"+id, nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", w.Code)
	}

	w = s.do(http.MethodPost, "/api/configs/import", export.Body.String())
	if w.Code != http.StatusOK {
		t.Fatalf("import failed: %d %s", w.Code, w.Body.String())
	}
	if result := decode[map[string]any](t, w); result["created"] != float64(1) {
		t.Errorf("expected 1 created config, got %v", result)
	}
	if w := s.do(http.MethodPost, "/api/configs/import", `{"configs":[]}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an empty backup, got %d", w.Code)
	}

	list := decode[[]map[string]any](t, s.do(http.MethodGet, "/api/configs", nil))
	if len(list) != 1 || list[0]["name"] != "renamed" {
		t.Errorf("unexpected config list %v", list)
	}
}

func TestRuns_RejectsBadConfigsWithoutRecording(t *testing.T) {
	s := newTestServer(t)
	s.login()

	if w := s.do(http.MethodPost, "/api/runs", gin.H{}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without config_id, got %d", w.Code)
	}
	if w := s.do(http.MethodPost, "/api/runs", gin.H{"config_id": "missing"}); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown config, got %d", w.Code)
	}

	if _, err := s.db.Exec("INSERT INTO configs (id, name, settings) VALUES ('broken', 'broken', '{oops')"); err != nil {
		t.Fatal(err)
	}
	w := s.do(http.MethodPost, "/api/runs", gin.H{"config_id": "broken"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed settings, got %d", w.Code)
	}

	id := s.createConfig("partial", `{"email":"not-an-email"}`)
	w = s.do(http.MethodPost, "/api/runs?async=true", gin.H{"config_id": id})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid settings, got %d", w.Code)
	}
	if msg := decode[map[string]string](t, w)["error"]; !strings.HasPrefix(msg, "Invalid config settings: ") {
		t.Errorf("unexpected validation message %q", msg)
	}

	if n := s.runCount(); n != 0 {
		t.Errorf("expected no recorded runs, got %d", n)
	}
}

func TestRuns_SyncRun(t *testing.T) {
	s := newTestServer(t)
	s.login()
	id := s.createConfig("cfg1", validSettings)

	w := s.do(http.MethodPost, "/api/runs", gin.H{"config_id": id, "headless": false})
	if w.Code != http.StatusOK {
		t.Fatalf("run failed: %d %s", w.Code, w.Body.String())
	}
	result := decode[map[string]any](t, w)
	if result["status"] != "success" || result["cards_created"] != float64(2) || result["config_id"] != id {
		t.Errorf("unexpected result %v", result)
	}
	if result["started_at"] == nil || result["ended_at"] == nil {
		t.Errorf("expected the stored run timestamps, got %v", result)
	}
	runID := result["id"].(string)

	run := decode[map[string]any](t, s.do(http.MethodGet, "/api/runs/"+runID, nil))
	if run["output"] != result["output"] {
		t.Error("returned run should match the stored run")
	}
	if run["status"] != "success" || run["config_name"] != "cfg1" || run["ended_at"] == nil || run["headless"] != false {
		t.Errorf("unexpected stored run %v", run)
	}
	if !strings.Contains(run["output"].(string), "Running with config: cfg1") {
		t.Errorf("expected config context in output, got %q", run["output"])
	}

	list := decode[[]map[string]any](t, s.do(http.MethodGet, "/api/runs?config_id="+id, nil))
	if len(list) != 1 {
		t.Errorf("expected one run, got %d", len(list))
	}
	if w := s.do(http.MethodGet, "/api/runs/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if w := s.do(http.MethodPost, "/api/runs/"+runID+"/cancel", nil); w.Code != http.StatusConflict {
		t.Errorf("expected 409 cancelling a finished run, got %d", w.Code)
	}

	m := s.do(http.MethodGet, "/metrics", nil)
	if !strings.Contains(m.Body.String(), `card_runner_runs_total{status="success"} 1`) {
		t.Errorf("expected run counter in metrics output:\n%s", m.Body.String())
	}
}

func TestRuns_UnrecordableOutcomeIsNotReportedAsSuccess(t *testing.T) {
	s := newTestServer(t)
	s.login()
	id := s.createConfig("cfg1", validSettings)

	if _, err := s.db.Exec(`CREATE TRIGGER reject_all BEFORE UPDATE ON runs
		BEGIN SELECT RAISE(ABORT, 'disk full'); END`); err != nil {
		t.Fatal(err)
	}

	w := s.do(http.MethodPost, "/api/runs", gin.H{"config_id": id})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d %s", w.Code, w.Body.String())
	}
	if msg := decode[map[string]string](t, w)["error"]; !strings.Contains(msg, "disk full") {
		t.Errorf("unexpected error %q", msg)
	}
}

func TestRuns_AsyncRunCanBeCancelled(t *testing.T) {
	s := newTestServer(t)
	s.login()
	s.script.block = true
	id := s.createConfig("cfg1", validSettings)

	w := s.do(http.MethodPost, "/api/runs?async=true", gin.H{"config_id": id})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d %s", w.Code, w.Body.String())
	}
	accepted := decode[map[string]any](t, w)
	runID := accepted["run_id"].(string)
	if accepted["status_url"] != "/api/runs/"+runID {
		t.Errorf("unexpected status_url %v", accepted["status_url"])
	}

	select {
	case <-s.script.started:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not start")
	}
	run := decode[map[string]any](t, s.do(http.MethodGet, "/api/runs/"+runID, nil))
	if run["status"] != "running" {
		t.Errorf("expected running status, got %v", run["status"])
	}
	if run["headless"] != true {
		t.Error("expected the configured headless default")
	}

	if w := s.do(http.MethodPost, "/api/runs/"+runID+"/cancel", nil); w.Code != http.StatusAccepted {
		t.Fatalf("cancel failed: %d %s", w.Code, w.Body.String())
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		run := decode[map[string]any](t, s.do(http.MethodGet, "/api/runs/"+runID, nil))
		if run["status"] == "error" {
			if run["error"] != "run cancelled" {
				t.Errorf("unexpected error %v", run["error"])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run was not finished after cancel, status %v", run["status"])
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCardsAndSettings(t *testing.T) {
	s := newTestServer(t)
	s.login()

	w := s.do(http.MethodPost, "/api/cards", gin.H{"count": 1})
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "Settings") {
		t.Errorf("expected 400 for missing settings, got %d %s", w.Code, w.Body.String())
	}

	w = s.do(http.MethodPut, "/api/settings", gin.H{"client_id": "client", "api_key": "secret-abcd", "cardholder_id": "ch_1"})
	if w.Code != http.StatusOK {
		t.Fatalf("update settings failed: %d %s", w.Code, w.Body.String())
	}
	st := decode[map[string]any](t, s.do(http.MethodGet, "/api/settings", nil))
	if st["has_api_key"] != true || strings.Contains(st["api_key"].(string), "secret") {
		t.Errorf("expected masked api key, got %v", st)
	}
	if w := s.do(http.MethodPut, "/api/settings", gin.H{"env": "staging"}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown env, got %d", w.Code)
	}

	holders := decode[map[string]any](t, s.do(http.MethodGet, "/api/settings/cardholders", nil))
	if list, _ := holders["cardholders"].([]any); len(list) != 1 {
		t.Errorf("unexpected cardholders %v", holders)
	}

	if w := s.do(http.MethodPost, "/api/cards", gin.H{"count": 0}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for count 0, got %d", w.Code)
	}

	w = s.do(http.MethodPost, "/api/cards", gin.H{"count": 2, "nicknamePrefix": "Ads"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create cards failed: %d %s", w.Code, w.Body.String())
	}

	s.issuer.failAt = 4
	w = s.do(http.MethodPost, "/api/cards", gin.H{"count": 3})
	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502 for an issuer error, got %d", w.Code)
	}
	if partial := decode[map[string]any](t, w); partial["created"] != float64(1) {
		t.Errorf("expected the partial batch to be reported, got %v", partial)
	}

	list := decode[map[string]any](t, s.do(http.MethodGet, "/api/cards?sortBy=nickname&sortOrder=asc", nil))
	cards := list["cards"].([]any)
	if list["total"] != float64(3) || len(cards) != 3 {
		t.Fatalf("unexpected card list %v", list)
	}
	first := cards[0].(map[string]any)
	if first["card_number"] != "4111111111111111" {
		t.Errorf("expected decrypted card number, got %v", first["card_number"])
	}
	if w := s.do(http.MethodGet, "/api/cards?sortBy=cvv", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown sort column, got %d", w.Code)
	}

	cardID := first["id"].(string)
	if w := s.do(http.MethodGet, "/api/cards/"+cardID, nil); w.Code != http.StatusOK {
		t.Errorf("get card failed: %d", w.Code)
	}
	if w := s.do(http.MethodDelete, "/api/cards/"+cardID, nil); w.Code != http.StatusOK {
		t.Errorf("delete card failed: %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/cards/"+cardID, nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", w.Code)
	}
}

func TestAuditLogs(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodPost, "/api/auth/login", gin.H{"username": adminUser, "password": "wrong"})
	s.login()
	s.createConfig("cfg1", `{}`)

	logs := decode[[]map[string]any](t, s.do(http.MethodGet, "/api/audit-logs", nil))
	if len(logs) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(logs))
	}
	if logs[0]["action"] != "create" || logs[0]["resource_type"] != "config" {
		t.Errorf("expected config creation first, got %v", logs[0])
	}

	auth := decode[[]map[string]any](t, s.do(http.MethodGet, "/api/audit-logs?resource_type=auth", nil))
	if len(auth) != 2 || auth[1]["action"] != "login_failed" {
		t.Errorf("unexpected auth entries %v", auth)
	}
}

func TestVersionAndSystem(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/version", nil)
	if w.Code != http.StatusOK || decode[map[string]string](t, w)["version"] == "" {
		t.Errorf("unexpected version response %d %s", w.Code, w.Body.String())
	}

	if w := s.do(http.MethodGet, "/api/system", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected system status to require a session, got %d", w.Code)
	}

	s.login()
	w = s.do(http.MethodGet, "/api/system", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("system status failed: %d %s", w.Code, w.Body.String())
	}
	status := decode[map[string]any](t, w)
	if status["active_runs"] != float64(0) || status["host"] == nil {
		t.Errorf("unexpected system status %v", status)
	}

	if w := s.do(http.MethodGet, "/api/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected JSON 404, got %d", w.Code)
	}
}
