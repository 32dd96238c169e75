package token

import "testing"

func TestIssueProducesUniqueTokens(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		plain, hash, err := Issue()
		if err != nil {
			t.Fatalf("issue failed: %v", err)
		}
		if len(plain) != tokenBytes*2 {
			t.Fatalf("expected %d hex chars, got %d", tokenBytes*2, len(plain))
		}
		if plain == hash {
			t.Fatal("plain token must not equal its stored hash")
		}
		if seen[plain] {
			t.Fatal("duplicate token issued")
		}
		seen[plain] = true
	}
}

func TestMatches(t *testing.T) {
	plain, hash, err := Issue()
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if !Matches(plain, hash) {
		t.Error("issued token must match its own hash")
	}
	if Matches("wrong-token", hash) {
		t.Error("wrong token must not match")
	}
	if Matches("", hash) {
		t.Error("empty token must not match")
	}
	if Matches(hash, hash) {
		t.Error("presenting the stored hash must not match")
	}
}

func TestHashIsDeterministic(t *testing.T) {
	if Hash("abc") != Hash("abc") {
		t.Error("hash must be deterministic")
	}
	if Hash("abc") == Hash("abd") {
		t.Error("distinct inputs must not collide")
	}
}
