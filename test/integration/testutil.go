package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adina8244/grounded-git-mcp-server/internal/auth"
	"github.com/adina8244/grounded-git-mcp-server/internal/engine"
	"github.com/adina8244/grounded-git-mcp-server/internal/executor"
	"github.com/adina8244/grounded-git-mcp-server/internal/gittest"
	"github.com/adina8244/grounded-git-mcp-server/internal/policy"
	"github.com/adina8244/grounded-git-mcp-server/internal/scheduler"
	"github.com/adina8244/grounded-git-mcp-server/internal/server"
	"github.com/adina8244/grounded-git-mcp-server/internal/store"
)

// TestEnvironment wires the full stack the way cmd/server does, backed by a
// temp database and served over httptest.
type TestEnvironment struct {
	Engine    *engine.Engine
	Store     *store.Store
	Policy    *policy.Store
	Scheduler *scheduler.Scheduler
	HTTP      *httptest.Server

	t *testing.T
}

// SetupTestEnvironment builds the environment with the given policy file
// content; empty means defaults.
func SetupTestEnvironment(t *testing.T, policyYAML string) *TestEnvironment {
	t.Helper()
	gittest.RequireGit(t)

	dir := t.TempDir()
	st, err := store.New(filepath.Join(dir, "proposals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	policyPath := filepath.Join(dir, "policy.yaml")
	if policyYAML != "" {
		require.NoError(t, os.WriteFile(policyPath, []byte(policyYAML), 0o644))
	}
	pol, err := policy.NewStore(policyPath)
	require.NoError(t, err)

	eng := engine.New(st, executor.New(), pol)
	sched := scheduler.New(eng, st, pol)

	authManager := auth.NewManager(auth.Config{
		JWTSecret:       "integration-secret",
		TokenExpiration: time.Hour,
		RequireAuth:     false,
	})
	srv := server.New(server.Config{Port: 0}, eng, pol, authManager)

	ts := httptest.NewServer(srv.Echo())
	t.Cleanup(ts.Close)

	return &TestEnvironment{
		Engine:    eng,
		Store:     st,
		Policy:    pol,
		Scheduler: sched,
		HTTP:      ts,
		t:         t,
	}
}

func (env *TestEnvironment) BaseURL() string {
	return env.HTTP.URL
}

// PostJSON posts a body and decodes the response into out when non-nil.
func (env *TestEnvironment) PostJSON(path string, body, out any) int {
	env.t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(env.t, err)

	resp, err := http.Post(env.BaseURL()+path, "application/json", bytes.NewReader(payload))
	require.NoError(env.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(env.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// GetJSON fetches a path and decodes the response into out when non-nil.
func (env *TestEnvironment) GetJSON(path string, out any) int {
	env.t.Helper()

	resp, err := http.Get(env.BaseURL() + path)
	require.NoError(env.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(env.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// commandOutcome mirrors the /commands response.
type commandOutcome struct {
	Tier     string          `json:"tier"`
	Reasons  []string        `json:"reasons"`
	Executed json.RawMessage `json:"executed"`
	Token    string          `json:"token"`
	Proposal *proposalView   `json:"proposal"`
	Refusal  *refusalView    `json:"refusal"`
}

type proposalView struct {
	ID        string      `json:"id"`
	Status    string      `json:"status"`
	Verb      string      `json:"verb"`
	ExpiresAt time.Time   `json:"expires_at"`
	NotBefore *time.Time  `json:"not_before"`
	Result    *resultView `json:"result"`
}

type resultView struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	TimedOut bool   `json:"timed_out"`
}

type refusalView struct {
	ID          string `json:"id"`
	Explanation string `json:"explanation"`
}

type auditView struct {
	Total   int `json:"total"`
	Records []struct {
		Event string `json:"event"`
		Actor string `json:"actor"`
	} `json:"records"`
}

// ProposeCommand posts a command and requires a 200 outcome.
func (env *TestEnvironment) ProposeCommand(root string, args []string) commandOutcome {
	env.t.Helper()

	var out commandOutcome
	code := env.PostJSON("/commands", map[string]any{"root": root, "args": args}, &out)
	require.Equal(env.t, http.StatusOK, code)
	return out
}
