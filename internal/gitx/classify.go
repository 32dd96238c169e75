package gitx

// RiskTier partitions commands by how much damage they can do.
type RiskTier string

const (
	// TierReadOnly commands bypass the approval engine entirely.
	TierReadOnly RiskTier = "read_only"
	// TierMutating commands change the repository but are recoverable;
	// they require one confirmed approval.
	TierMutating RiskTier = "mutating"
	// TierDestructive commands can discard history or work. No execution
	// path exists for them; the engine only records the refusal.
	TierDestructive RiskTier = "destructive"
)

// Classify maps a command to its risk tier. Pure and deterministic: the same
// argv always yields the same tier, so audit records stay reproducible. The
// switch is exhaustive over the closed verb set; unrecognized verbs fall
// through to destructive.
func Classify(cmd Command) RiskTier {
	switch cmd.Verb {
	case VerbStatus, VerbLog, VerbDiff, VerbShow, VerbBlame, VerbGrep,
		VerbLsFiles, VerbLsTree, VerbRevParse:
		return TierReadOnly

	case VerbRemote:
		// "remote" is a listing unless a mutating subcommand follows.
		if cmd.hasFlag("add", "remove", "rm", "set-url", "rename", "prune") {
			return TierMutating
		}
		return TierReadOnly

	case VerbBranch:
		if cmd.hasFlag("-D") {
			return TierDestructive
		}
		if len(cmd.Args) == 1 || cmd.hasFlag("-a", "--all", "-r", "--list", "-v", "-vv") {
			return TierReadOnly
		}
		return TierMutating

	case VerbStash:
		if cmd.hasFlag("drop", "clear") {
			return TierDestructive
		}
		if cmd.hasFlag("list", "show") {
			return TierReadOnly
		}
		return TierMutating

	case VerbPush:
		if cmd.hasFlag("--force", "-f", "--force-with-lease", "--delete", "-d") {
			return TierDestructive
		}
		return TierMutating

	case VerbCheckout, VerbSwitch, VerbRestore:
		// Pathspec forms overwrite working tree content in place.
		if cmd.hasFlag("--") || cmd.Verb == VerbRestore {
			return TierDestructive
		}
		return TierMutating

	case VerbAdd, VerbCommit, VerbMerge, VerbTag, VerbFetch, VerbPull,
		VerbCherryPick, VerbRevert:
		return TierMutating

	case VerbReset, VerbClean, VerbRebase, VerbReflog, VerbGC, VerbFilterBranch:
		return TierDestructive

	case VerbUnknown:
		return TierDestructive
	}

	// Unreachable with a well-formed Command, kept as the fail-closed default.
	return TierDestructive
}

// ClassifyReasons explains a classification for audit payloads and refusal
// messages. Deterministic like Classify.
func ClassifyReasons(cmd Command) []string {
	switch Classify(cmd) {
	case TierReadOnly:
		return []string{"read-only query, does not touch repository state"}
	case TierMutating:
		return []string{"mutates the repository but is recoverable", "requires one confirmed approval"}
	default:
		if cmd.Verb == VerbUnknown {
			return []string{"unrecognized git subcommand, refused (fail closed)"}
		}
		return []string{"can discard commits or working tree content", "never auto-executed"}
	}
}
