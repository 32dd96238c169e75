package inspect

import (
	"context"
	"fmt"
	"strings"
)

// Tree lists repository paths at a ref, bounded at maxEntries.
func (i *Inspector) Tree(ctx context.Context, ref string, maxEntries int) ([]string, bool, error) {
	if ref == "" {
		ref = "HEAD"
	}

	res, err := i.runner.Run(ctx, "ls-tree", "-r", "--name-only", ref)
	if err != nil {
		return nil, false, err
	}
	if res.ExitCode != 0 {
		return nil, false, fmt.Errorf("git ls-tree: %s", strings.TrimSpace(res.Stderr))
	}

	paths := nonEmptyLines(res.Stdout)
	truncated := res.Truncated
	if maxEntries > 0 && len(paths) > maxEntries {
		paths = paths[:maxEntries]
		truncated = true
	}
	return paths, truncated, nil
}

// FileAtRef reads committed file content at a ref, avoiding working-tree
// ambiguity.
func (i *Inspector) FileAtRef(ctx context.Context, ref, path string) (string, bool, error) {
	if ref == "" {
		ref = "HEAD"
	}
	if path == "" {
		return "", false, fmt.Errorf("path required")
	}

	res, err := i.runner.Run(ctx, "show", ref+":"+path)
	if err != nil {
		return "", false, err
	}
	if res.ExitCode != 0 {
		return "", false, fmt.Errorf("git show %s:%s: %s", ref, path, strings.TrimSpace(res.Stderr))
	}
	return res.Stdout, res.Truncated, nil
}

// DiffRange computes base..head (or base...head with tripleDot, which uses
// merge-base semantics).
func (i *Inspector) DiffRange(ctx context.Context, base, head string, tripleDot bool) (string, bool, error) {
	if base == "" || head == "" {
		return "", false, fmt.Errorf("base and head required")
	}

	sep := ".."
	if tripleDot {
		sep = "..."
	}

	res, err := i.runner.Run(ctx, "diff", base+sep+head)
	if err != nil {
		return "", false, err
	}
	if res.ExitCode != 0 {
		return "", false, fmt.Errorf("git diff: %s", strings.TrimSpace(res.Stderr))
	}
	return res.Stdout, res.Truncated, nil
}
