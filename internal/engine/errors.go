package engine

import (
	"errors"
	"fmt"
)

// Kind partitions engine failures for callers. Everything except
// KindStorage is local and recoverable: re-propose, re-confirm, retry later.
// KindStorage means the durable store is unavailable and no confirm or
// execute may proceed until it is back.
type Kind string

const (
	KindClassification      Kind = "classification_failure"
	KindGuard               Kind = "guard_failure"
	KindStaleProposal       Kind = "stale_proposal_failure"
	KindToken               Kind = "token_failure"
	KindConcurrentExecution Kind = "concurrent_execution_failure"
	KindTimeout             Kind = "timeout_failure"
	KindStorage             Kind = "storage_failure"
)

// Failure is a classified engine error.
type Failure struct {
	Kind    Kind
	Guard   string // failing guard name, when Kind is guard or stale
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// KindOf extracts the failure kind, if err is an engine failure.
func KindOf(err error) (Kind, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return "", false
}

func guardFailure(name, detail string) *Failure {
	return &Failure{Kind: KindGuard, Guard: name, Message: detail}
}

func staleFailure(name, detail string) *Failure {
	return &Failure{Kind: KindStaleProposal, Guard: name, Message: detail}
}

func tokenFailure(msg string, err error) *Failure {
	return &Failure{Kind: KindToken, Message: msg, Err: err}
}

func busyFailure(root string) *Failure {
	return &Failure{Kind: KindConcurrentExecution, Message: "repository busy: " + root}
}

func storageFailure(err error) *Failure {
	return &Failure{Kind: KindStorage, Message: "durable store unavailable", Err: err}
}
