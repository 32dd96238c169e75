package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	return path
}

func TestDefaultsWhenFileMissing(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file must not be an error: %v", err)
	}

	cfg := s.Current()
	if cfg.ProposalTTL.Std() != 15*time.Minute {
		t.Errorf("default TTL = %v, want 15m", cfg.ProposalTTL.Std())
	}
	if cfg.ExecTimeout.Std() != 30*time.Second {
		t.Errorf("default exec timeout = %v, want 30s", cfg.ExecTimeout.Std())
	}
	if cfg.MaxOutputBytes != 80000 {
		t.Errorf("default max output = %d, want 80000", cfg.MaxOutputBytes)
	}
}

func TestLoadPolicyFile(t *testing.T) {
	path := writePolicy(t, `
proposal_ttl: 1h
exec_timeout: 10s
max_output_bytes: 2048
guards:
  commit:
    - head_unchanged
  push:
    - head_unchanged
    - no_conflicts
`)

	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	cfg := s.Current()
	if cfg.ProposalTTL.Std() != time.Hour {
		t.Errorf("ttl = %v, want 1h", cfg.ProposalTTL.Std())
	}
	if cfg.ExecTimeout.Std() != 10*time.Second {
		t.Errorf("exec timeout = %v, want 10s", cfg.ExecTimeout.Std())
	}

	overrides := cfg.GuardOverrides()
	if len(overrides["push"]) != 2 {
		t.Errorf("expected 2 push guards, got %v", overrides["push"])
	}
	if len(overrides["commit"]) != 1 || string(overrides["commit"][0]) != "head_unchanged" {
		t.Errorf("unexpected commit guards: %v", overrides["commit"])
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := writePolicy(t, "proposal_ttl: 5m\n")

	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	cfg := s.Current()
	if cfg.ProposalTTL.Std() != 5*time.Minute {
		t.Errorf("ttl = %v, want 5m", cfg.ProposalTTL.Std())
	}
	if cfg.ExecTimeout.Std() != 30*time.Second {
		t.Errorf("exec timeout should keep default, got %v", cfg.ExecTimeout.Std())
	}
}

func TestInvalidPolicyRejected(t *testing.T) {
	cases := map[string]string{
		"bad duration": "proposal_ttl: soon\n",
		"zero ttl":     "proposal_ttl: 0s\n",
		"bad yaml":     "guards: [unterminated\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewStore(writePolicy(t, content)); err == nil {
				t.Error("expected load error")
			}
		})
	}
}

func TestReloadKeepsPreviousOnFailure(t *testing.T) {
	path := writePolicy(t, "proposal_ttl: 5m\n")

	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("proposal_ttl: nope\n"), 0o644); err != nil {
		t.Fatalf("rewrite policy: %v", err)
	}
	if err := s.Reload(); err == nil {
		t.Fatal("expected reload error")
	}

	if s.Current().ProposalTTL.Std() != 5*time.Minute {
		t.Errorf("previous policy should stay active, got %v", s.Current().ProposalTTL.Std())
	}
}
