package gitx

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Verb is the closed set of git subcommands the engine understands.
// Anything outside this set classifies as destructive (fail closed).
type Verb string

const (
	VerbStatus   Verb = "status"
	VerbLog      Verb = "log"
	VerbDiff     Verb = "diff"
	VerbShow     Verb = "show"
	VerbBlame    Verb = "blame"
	VerbGrep     Verb = "grep"
	VerbLsFiles  Verb = "ls-files"
	VerbLsTree   Verb = "ls-tree"
	VerbRevParse Verb = "rev-parse"
	VerbRemote   Verb = "remote"

	VerbAdd        Verb = "add"
	VerbCommit     Verb = "commit"
	VerbBranch     Verb = "branch"
	VerbCheckout   Verb = "checkout"
	VerbSwitch     Verb = "switch"
	VerbRestore    Verb = "restore"
	VerbMerge      Verb = "merge"
	VerbTag        Verb = "tag"
	VerbStash      Verb = "stash"
	VerbFetch      Verb = "fetch"
	VerbPull       Verb = "pull"
	VerbPush       Verb = "push"
	VerbCherryPick Verb = "cherry-pick"
	VerbRevert     Verb = "revert"

	VerbReset        Verb = "reset"
	VerbClean        Verb = "clean"
	VerbRebase       Verb = "rebase"
	VerbReflog       Verb = "reflog"
	VerbGC           Verb = "gc"
	VerbFilterBranch Verb = "filter-branch"

	// VerbUnknown marks anything outside the supported vocabulary.
	VerbUnknown Verb = ""
)

// Command is an immutable description of one git invocation. It is built
// once by Parse and never mutated afterwards.
type Command struct {
	Verb Verb
	Args []string // full argv after "git", verb included
	Root string   // resolved repository root
	Tier RiskTier
}

// Parse builds a Command from a git argv list (without the leading "git").
// The empty argv is rejected; the verb is matched against the closed set and
// the command is classified in the same step so a Command never exists
// without a tier.
func Parse(root string, args []string) (Command, error) {
	if len(args) == 0 {
		return Command{}, fmt.Errorf("empty git command")
	}

	verb := lookupVerb(args[0])
	cmd := Command{
		Verb: verb,
		Args: append([]string(nil), args...),
		Root: root,
	}
	cmd.Tier = Classify(cmd)

	return cmd, nil
}

// Fingerprint returns a stable identifier for the exact argv, used to bind
// a confirmation to one command. Argv elements are joined with newlines,
// never spaces, so arguments containing spaces stay unambiguous.
func (c Command) Fingerprint() string {
	sum := sha256.Sum256([]byte(strings.Join(c.Args, "\n")))
	return hex.EncodeToString(sum[:])
}

// String renders the command for logs and audit payloads only; it is never
// handed to a shell.
func (c Command) String() string {
	return "git " + strings.Join(c.Args, " ")
}

func (c Command) hasFlag(flags ...string) bool {
	for _, arg := range c.Args[1:] {
		for _, f := range flags {
			if arg == f {
				return true
			}
		}
	}
	return false
}

func lookupVerb(s string) Verb {
	for _, v := range supportedVerbs() {
		if string(v) == s {
			return v
		}
	}
	return VerbUnknown
}

func supportedVerbs() []Verb {
	return []Verb{
		VerbStatus, VerbLog, VerbDiff, VerbShow, VerbBlame, VerbGrep,
		VerbLsFiles, VerbLsTree, VerbRevParse, VerbRemote,
		VerbAdd, VerbCommit, VerbBranch, VerbCheckout, VerbSwitch,
		VerbRestore, VerbMerge, VerbTag, VerbStash, VerbFetch, VerbPull,
		VerbPush, VerbCherryPick, VerbRevert,
		VerbReset, VerbClean, VerbRebase, VerbReflog, VerbGC,
		VerbFilterBranch,
	}
}
