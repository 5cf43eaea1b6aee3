package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nextlevelbuilder/memhub/internal/access"
	"github.com/nextlevelbuilder/memhub/internal/bundle"
	"github.com/nextlevelbuilder/memhub/internal/metrics"
	"github.com/nextlevelbuilder/memhub/internal/monorepo"
	"github.com/nextlevelbuilder/memhub/internal/persona"
	"github.com/nextlevelbuilder/memhub/internal/resolve"
	"github.com/nextlevelbuilder/memhub/internal/retrieval"
	"github.com/nextlevelbuilder/memhub/internal/rules"
	"github.com/nextlevelbuilder/memhub/internal/settings"
	"github.com/nextlevelbuilder/memhub/internal/store"
	"github.com/nextlevelbuilder/memhub/internal/store/sqlstore/sqltest"
	"github.com/nextlevelbuilder/memhub/pkg/protocol"
)

func newTestServer(t *testing.T, token string, limiter *RateLimiter) *Server {
	t.Helper()
	f := sqltest.Open(t)
	ws := f.Workspace(t, "acme", "alice")
	p := f.Project(t, ws, "github:acme/api", store.KindGithubRemote, "acme/api")
	f.MemoryItem(t, store.MemoryItem{ProjectID: p.ID, Type: store.TypeDecision,
		Content: "Use pgx for Postgres.", CreatedAt: time.Now().Add(-time.Hour)})

	prov := settings.NewProvider(f.Settings, nil)
	guard := access.NewGuard(f.Access, false)
	engine := resolve.NewEngine(resolve.Config{Projects: f.Projects, Guard: guard, Settings: prov})
	ce, err := rules.NewConditionEvaluator(0)
	if err != nil {
		t.Fatalf("conditions: %v", err)
	}
	asm := bundle.New(bundle.Config{
		Engine:     engine,
		Guard:      guard,
		Settings:   prov,
		Classifier: monorepo.NewClassifier(f.Projects, nil),
		Retriever:  retrieval.NewRetriever(f.Memory),
		Router:     rules.NewRouter(rules.RouterConfig{Rules: f.Rules, Conditions: ce}),
		Advisor:    persona.NewAdvisor(f.Memory),
		Memory:     f.Memory,
		ActiveWork: f.ActiveWork,
	})
	t.Cleanup(limiter.Close)
	return NewServer(Config{
		Bundles: asm,
		Engine:  engine,
		Metrics: metrics.New(nil),
		DB:      f.DB,
		Token:   token,
		Limiter: limiter,
		Version: "test",
	})
}

func do(t *testing.T, h http.Handler, method, target, user, token string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if user != "" {
		req.Header.Set(protocol.HeaderUserID, user)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env protocol.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return env.Error.Code
}

func TestBundle_OK(t *testing.T) {
	h := newTestServer(t, "", nil).Handler()
	rec := do(t, h, http.MethodGet, "/context/bundle?workspace_key=acme&project_key=github:acme/api&q=postgres", "alice", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, k := range []string{"project", "global", "snapshot", "retrieval"} {
		if _, ok := body[k]; !ok {
			t.Errorf("missing key %q", k)
		}
	}
	if _, ok := body["debug"]; ok {
		t.Errorf("debug present in default mode")
	}
	if rec.Header().Get(protocol.HeaderRequestID) == "" {
		t.Errorf("missing request id header")
	}
}

func TestBundle_ErrorMapping(t *testing.T) {
	h := newTestServer(t, "", nil).Handler()
	tests := []struct {
		name   string
		target string
		user   string
		status int
		code   string
	}{
		{"missing workspace", "/context/bundle?project_key=x", "alice", http.StatusBadRequest, protocol.ErrInvalidRequest},
		{"bad budget", "/context/bundle?workspace_key=acme&project_key=github:acme/api&budget=lots", "alice", http.StatusBadRequest, protocol.ErrInvalidRequest},
		{"zero budget", "/context/bundle?workspace_key=acme&project_key=github:acme/api&budget=0", "alice", http.StatusBadRequest, protocol.ErrInvalidRequest},
		{"budget out of range", "/context/bundle?workspace_key=acme&project_key=github:acme/api&budget=100", "alice", http.StatusBadRequest, protocol.ErrInvalidRequest},
		{"bad type", "/context/bundle?workspace_key=acme&project_key=github:acme/api&types=decision,gossip", "alice", http.StatusBadRequest, protocol.ErrInvalidRequest},
		{"unknown project", "/context/bundle?workspace_key=acme&project_key=github:acme/nope", "alice", http.StatusNotFound, protocol.ErrNotFound},
		{"unknown workspace", "/context/bundle?workspace_key=zzz&project_key=github:acme/api", "alice", http.StatusNotFound, protocol.ErrNotFound},
		{"non-member", "/context/bundle?workspace_key=acme&project_key=github:acme/api", "mallory", http.StatusForbidden, protocol.ErrForbidden},
		{"anonymous", "/context/bundle?workspace_key=acme&project_key=github:acme/api", "", http.StatusForbidden, protocol.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.target, tt.user, "", nil)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
			if got := errorCode(t, rec); got != tt.code {
				t.Errorf("code = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestBundleRequest_Parse(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet,
		"/context/bundle?workspace_key=acme&github_owner=Acme&github_repo=API&budget=900&limit=5&types=decision,constraint&mode=debug&search_mode=keyword&persona=reviewer&current_subpath=apps/web", nil)
	req, err := bundleRequest(r)
	if err != nil {
		t.Fatalf("bundleRequest: %v", err)
	}
	if req.Budget == nil || *req.Budget != 900 || req.Limit != 5 {
		t.Errorf("budget/limit = %v/%d, want 900/5", req.Budget, req.Limit)
	}

	r = httptest.NewRequest(http.MethodGet, "/context/bundle?workspace_key=acme&project_key=github:acme/api", nil)
	if req, err = bundleRequest(r); err != nil || req.Budget != nil {
		t.Errorf("absent budget = %v, %v; want nil", req.Budget, err)
	}
	if len(req.Types) != 2 || req.Types[1] != store.TypeConstraint {
		t.Errorf("types = %v", req.Types)
	}
	if req.GithubRemote == nil || req.GithubRemote.Owner != "Acme" || req.GithubRemote.Repo != "API" {
		t.Errorf("github remote = %+v", req.GithubRemote)
	}
	if req.Mode != "debug" || req.SearchMode != "keyword" || req.Persona != "reviewer" || req.CurrentSubpath != "apps/web" {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestResolve(t *testing.T) {
	h := newTestServer(t, "", nil).Handler()
	body := []byte(`{"workspace_key":"acme","github_remote":{"owner":"acme","repo":"web"}}`)
	rec := do(t, h, http.MethodPost, "/v1/resolve", "alice", "", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var res resolve.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Created || res.Resolution != store.KindGithubRemote || res.Project.Key != "github:acme/web" {
		t.Errorf("result = %+v", res)
	}

	rec = do(t, h, http.MethodPost, "/v1/resolve", "alice", "", []byte(`{"workspace_key":"acme","bogus":1}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown field status = %d, want 400", rec.Code)
	}
}

func TestAuth_Token(t *testing.T) {
	h := newTestServer(t, "s3cret", nil).Handler()
	target := "/context/bundle?workspace_key=acme&project_key=github:acme/api"
	if rec := do(t, h, http.MethodGet, target, "alice", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, target, "alice", "wrong", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d, want 401", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, target, "alice", "s3cret", nil); rec.Code != http.StatusOK {
		t.Errorf("good token status = %d, want 200", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(t, "", NewRateLimiter(60, 1)).Handler()
	target := "/context/bundle?workspace_key=acme&project_key=github:acme/api"
	if rec := do(t, h, http.MethodGet, target, "alice", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("first status = %d, want 200", rec.Code)
	}
	rec := do(t, h, http.MethodGet, target, "alice", "", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", rec.Code)
	}
	if got := errorCode(t, rec); got != protocol.ErrResourceExhausted {
		t.Errorf("code = %q", got)
	}
	// Limits are per caller.
	if rec := do(t, h, http.MethodGet, target, "bob", "", nil); rec.Code == http.StatusTooManyRequests {
		t.Errorf("bob was limited by alice's bucket")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t, "", nil).Handler()
	rec := do(t, h, http.MethodGet, "/healthz", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
	do(t, h, http.MethodGet, "/context/bundle?workspace_key=acme&project_key=github:acme/api", "alice", "", nil)
	rec = do(t, h, http.MethodGet, "/metrics", "", "", nil)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("memhub_http_requests_total")) {
		t.Errorf("metrics missing http counter: %d", rec.Code)
	}
}
