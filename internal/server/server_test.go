package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/adina8244/grounded-git-mcp-server/internal/auth"
	"github.com/adina8244/grounded-git-mcp-server/internal/engine"
	"github.com/adina8244/grounded-git-mcp-server/internal/executor"
	"github.com/adina8244/grounded-git-mcp-server/internal/gittest"
	"github.com/adina8244/grounded-git-mcp-server/internal/policy"
	"github.com/adina8244/grounded-git-mcp-server/internal/server"
	"github.com/adina8244/grounded-git-mcp-server/internal/store"
)

func newTestServer(t *testing.T) *server.Server {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "proposals.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	pol, err := policy.NewStore("")
	if err != nil {
		t.Fatalf("load policy: %v", err)
	}

	eng := engine.New(st, executor.New(), pol)
	authManager := auth.NewManager(auth.Config{
		JWTSecret:       "test-secret",
		TokenExpiration: time.Hour,
		RequireAuth:     false,
	})

	return server.New(server.Config{Port: 0}, eng, pol, authManager)
}

func doJSON(t *testing.T, s *server.Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echoHeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

const echoHeaderContentType = "Content-Type"

func decode(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestCommandReadOnly(t *testing.T) {
	root := gittest.InitRepo(t)
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/commands", map[string]any{
		"root": root,
		"args": []string{"status", "--porcelain"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var out struct {
		Tier     string          `json:"tier"`
		Executed json.RawMessage `json:"executed"`
		Token    string          `json:"token"`
	}
	decode(t, rec, &out)
	if out.Tier != "read_only" {
		t.Errorf("tier = %s", out.Tier)
	}
	if len(out.Executed) == 0 {
		t.Error("expected an immediate result")
	}
	if out.Token != "" {
		t.Error("read-only must not mint a token")
	}
}

func TestCommandDestructive(t *testing.T) {
	root := gittest.InitRepo(t)
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/commands", map[string]any{
		"root": root,
		"args": []string{"push", "--force", "origin", "main"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var out struct {
		Tier    string `json:"tier"`
		Refusal *struct {
			ID          string `json:"id"`
			Explanation string `json:"explanation"`
		} `json:"refusal"`
	}
	decode(t, rec, &out)
	if out.Tier != "destructive" {
		t.Errorf("tier = %s", out.Tier)
	}
	if out.Refusal == nil || out.Refusal.Explanation == "" {
		t.Fatal("expected a refusal with explanation")
	}
}

type proposalResponse struct {
	Tier     string `json:"tier"`
	Token    string `json:"token"`
	Proposal *struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"proposal"`
}

func propose(t *testing.T, s *server.Server, root string, args []string) proposalResponse {
	t.Helper()

	rec := doJSON(t, s, http.MethodPost, "/commands", map[string]any{
		"root": root,
		"args": args,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("propose status %d: %s", rec.Code, rec.Body.String())
	}

	var out proposalResponse
	decode(t, rec, &out)
	if out.Proposal == nil || out.Token == "" {
		t.Fatalf("expected proposal with token, got %s", rec.Body.String())
	}
	return out
}

func TestConfirmExecutesProposal(t *testing.T) {
	root := gittest.InitRepo(t)
	s := newTestServer(t)

	gittest.WriteFile(t, root, "web.txt", "via api\n")
	gittest.Git(t, root, "add", "web.txt")

	out := propose(t, s, root, []string{"commit", "-m", "via api"})

	rec := doJSON(t, s, http.MethodPost, "/proposals/"+out.Proposal.ID+"/confirm", map[string]any{
		"token": out.Token,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm status %d: %s", rec.Code, rec.Body.String())
	}

	var executed struct {
		Status string `json:"status"`
		Result *struct {
			ExitCode int `json:"exit_code"`
		} `json:"result"`
	}
	decode(t, rec, &executed)
	if executed.Status != "executed" {
		t.Errorf("status = %s, want executed", executed.Status)
	}
	if executed.Result == nil || executed.Result.ExitCode != 0 {
		t.Errorf("expected successful result, got %+v", executed.Result)
	}
}

func TestConfirmWithoutTokenIsBadRequest(t *testing.T) {
	root := gittest.InitRepo(t)
	s := newTestServer(t)

	out := propose(t, s, root, []string{"tag", "v1.0"})

	rec := doJSON(t, s, http.MethodPost, "/proposals/"+out.Proposal.ID+"/confirm", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}

func TestConfirmWrongTokenIsForbidden(t *testing.T) {
	root := gittest.InitRepo(t)
	s := newTestServer(t)

	out := propose(t, s, root, []string{"tag", "v1.0"})

	rec := doJSON(t, s, http.MethodPost, "/proposals/"+out.Proposal.ID+"/confirm", map[string]any{
		"token": "wrong",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status %d, want 403: %s", rec.Code, rec.Body.String())
	}
}

func TestStaleConfirmIsConflict(t *testing.T) {
	root := gittest.InitRepo(t)
	s := newTestServer(t)

	out := propose(t, s, root, []string{"tag", "v1.0"})

	gittest.CommitFile(t, root, "racer.txt", "racer\n", "external commit")

	rec := doJSON(t, s, http.MethodPost, "/proposals/"+out.Proposal.ID+"/confirm", map[string]any{
		"token": out.Token,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status %d, want 409: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Kind string `json:"kind"`
	}
	decode(t, rec, &body)
	if body.Kind != "stale_proposal_failure" {
		t.Errorf("kind = %s, want stale_proposal_failure", body.Kind)
	}
}

func TestGetAndListProposals(t *testing.T) {
	root := gittest.InitRepo(t)
	s := newTestServer(t)

	out := propose(t, s, root, []string{"tag", "v1.0"})

	rec := doJSON(t, s, http.MethodGet, "/proposals/"+out.Proposal.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/proposals?status=proposed", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d", rec.Code)
	}
	var list struct {
		Total int `json:"total"`
	}
	decode(t, rec, &list)
	if list.Total != 1 {
		t.Errorf("total = %d, want 1", list.Total)
	}

	rec = doJSON(t, s, http.MethodGet, "/proposals/unknown-id", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rec.Code)
	}
}

func TestCancelProposalEndpoint(t *testing.T) {
	root := gittest.InitRepo(t)
	s := newTestServer(t)

	out := propose(t, s, root, []string{"tag", "v1.0"})

	rec := doJSON(t, s, http.MethodPost, "/proposals/"+out.Proposal.ID+"/cancel", map[string]any{
		"reason": "not needed",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodGet, "/proposals/"+out.Proposal.ID, nil)
	var p struct {
		Status string `json:"status"`
	}
	decode(t, rec, &p)
	if p.Status != "rejected" {
		t.Errorf("status = %s, want rejected", p.Status)
	}
}

func TestAuditEndpoint(t *testing.T) {
	root := gittest.InitRepo(t)
	s := newTestServer(t)

	out := propose(t, s, root, []string{"tag", "v1.0"})

	rec := doJSON(t, s, http.MethodGet, "/audit?proposal_id="+out.Proposal.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit status %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Total   int `json:"total"`
		Records []struct {
			Event string `json:"event"`
		} `json:"records"`
	}
	decode(t, rec, &body)
	if body.Total != 1 || body.Records[0].Event != "proposed" {
		t.Errorf("expected one proposed record, got %+v", body)
	}
}

func TestRepoStatusEndpoint(t *testing.T) {
	root := gittest.InitRepo(t)
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/repo/status?root="+root, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAuthRequiredWhenEnabled(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "proposals.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	pol, err := policy.NewStore("")
	if err != nil {
		t.Fatalf("load policy: %v", err)
	}
	eng := engine.New(st, executor.New(), pol)
	authManager := auth.NewManager(auth.Config{
		JWTSecret:       "test-secret",
		TokenExpiration: time.Hour,
		RequireAuth:     true,
	})
	s := server.New(server.Config{Port: 0}, eng, pol, authManager)

	// health stays public
	rec := doJSON(t, s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status %d", rec.Code)
	}

	// proposals are protected
	rec = doJSON(t, s, http.MethodGet, "/proposals", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", rec.Code)
	}

	// login, then retry with the bearer token
	rec = doJSON(t, s, http.MethodPost, "/login", map[string]any{"name": "reviewer"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status %d: %s", rec.Code, rec.Body.String())
	}
	var login struct {
		Token string `json:"token"`
	}
	decode(t, rec, &login)

	req := httptest.NewRequest(http.MethodGet, "/proposals", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	recorder := httptest.NewRecorder()
	s.Echo().ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("authorized status %d: %s", recorder.Code, recorder.Body.String())
	}
}
