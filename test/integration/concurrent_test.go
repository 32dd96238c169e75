package integration

import (
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adina8244/grounded-git-mcp-server/internal/gittest"
)

// installSlowHook makes commits in the repo take a couple of seconds, so a
// second execution can reliably collide with the first.
func installSlowHook(t *testing.T, root string) {
	t.Helper()

	hookDir := filepath.Join(root, ".git", "hooks")
	require.NoError(t, os.MkdirAll(hookDir, 0o755))

	script := "#!/bin/sh\nsleep 2\n"
	require.NoError(t, os.WriteFile(filepath.Join(hookDir, "pre-commit"), []byte(script), 0o755))
}

// confirmDeferred confirms a proposal with a not_before already in the past,
// leaving it parked for explicit /execute calls.
func confirmDeferred(t *testing.T, env *TestEnvironment, id, tok string) {
	t.Helper()
	past := time.Now().UTC().Add(-time.Second)
	code := env.PostJSON("/proposals/"+id+"/confirm", map[string]any{
		"token":      tok,
		"not_before": past.Format(time.RFC3339),
	}, nil)
	require.Equal(t, http.StatusOK, code)
}

// TestRepositoryLockContention runs two confirmed commits against the same
// repository at once. Exactly one must execute; the other fails fast with a
// concurrency failure and stays confirmed for a retry.
func TestRepositoryLockContention(t *testing.T) {
	env := SetupTestEnvironment(t, "")
	root := gittest.InitRepo(t)
	installSlowHook(t, root)

	gittest.WriteFile(t, root, "a.txt", "a\n")
	gittest.Git(t, root, "add", "a.txt")
	first := env.ProposeCommand(root, []string{"commit", "-m", "first"})
	require.NotNil(t, first.Proposal)

	gittest.WriteFile(t, root, "b.txt", "b\n")
	gittest.Git(t, root, "add", "b.txt")
	second := env.ProposeCommand(root, []string{"commit", "-m", "second"})
	require.NotNil(t, second.Proposal)

	confirmDeferred(t, env, first.Proposal.ID, first.Token)
	confirmDeferred(t, env, second.Proposal.ID, second.Token)

	type attempt struct {
		code int
		body struct {
			Kind string `json:"kind"`
		}
	}
	results := make([]attempt, 2)

	var wg sync.WaitGroup
	for i, id := range []string{first.Proposal.ID, second.Proposal.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			if i == 1 {
				// give the first request a head start into the slow hook
				time.Sleep(300 * time.Millisecond)
			}
			results[i].code = env.PostJSON("/proposals/"+id+"/execute", nil, &results[i].body)
		}(i, id)
	}
	wg.Wait()

	codes := []int{results[0].code, results[1].code}
	assert.Contains(t, codes, http.StatusOK, "one execution must win")
	assert.Contains(t, codes, http.StatusConflict, "the other must fail fast")

	for _, r := range results {
		if r.code == http.StatusConflict {
			assert.Equal(t, "concurrent_execution_failure", r.body.Kind)
		}
	}

	// the loser kept its confirmed status: lock contention changes nothing
	loser := first.Proposal.ID
	if results[1].code == http.StatusConflict {
		loser = second.Proposal.ID
	}
	var p proposalView
	env.GetJSON("/proposals/"+loser, &p)
	assert.Equal(t, "confirmed", p.Status)

	// retrying now fails differently: the winner's commit moved HEAD, so the
	// loser is stale and gets rejected rather than silently committing on top
	// of state it never saw
	var retry struct {
		Kind string `json:"kind"`
	}
	code := env.PostJSON("/proposals/"+loser+"/execute", nil, &retry)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "stale_proposal_failure", retry.Kind)

	env.GetJSON("/proposals/"+loser, &p)
	assert.Equal(t, "rejected", p.Status)
}

// TestIndependentRootsRunInParallel verifies the lock is per repository
// root, not global.
func TestIndependentRootsRunInParallel(t *testing.T) {
	env := SetupTestEnvironment(t, "")
	rootA := gittest.InitRepo(t)
	rootB := gittest.InitRepo(t)

	gittest.WriteFile(t, rootA, "a.txt", "a\n")
	gittest.Git(t, rootA, "add", "a.txt")
	gittest.WriteFile(t, rootB, "b.txt", "b\n")
	gittest.Git(t, rootB, "add", "b.txt")

	a := env.ProposeCommand(rootA, []string{"commit", "-m", "in repo a"})
	b := env.ProposeCommand(rootB, []string{"commit", "-m", "in repo b"})
	confirmDeferred(t, env, a.Proposal.ID, a.Token)
	confirmDeferred(t, env, b.Proposal.ID, b.Token)

	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i, id := range []string{a.Proposal.ID, b.Proposal.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			codes[i] = env.PostJSON("/proposals/"+id+"/execute", nil, nil)
		}(i, id)
	}
	wg.Wait()

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
}
