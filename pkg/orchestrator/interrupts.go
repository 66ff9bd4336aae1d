package orchestrator

import "sync"

// InterruptKind identifies what an InterruptRequest is asking the
// orchestrator to do.
type InterruptKind string

const (
	InterruptPause   InterruptKind = "pause"
	InterruptResume  InterruptKind = "resume"
	InterruptCancel  InterruptKind = "cancel"
	InterruptExplain InterruptKind = "explain"
	InterruptSkip    InterruptKind = "skip"
	InterruptRetry   InterruptKind = "retry"
)

// InterruptRequest is one request placed in the orchestrator's single-slot
// interrupt mailbox, delivered asynchronously from a source outside the
// control loop (a signal handler, a CLI command, a budget check).
type InterruptRequest struct {
	Kind   InterruptKind
	Target string
	Source string
}

// PauseRequest builds a pause interrupt attributed to source (e.g. "user",
// "keyboard", "budget").
func PauseRequest(source string) InterruptRequest {
	return InterruptRequest{Kind: InterruptPause, Source: source}
}

// ResumeRequest builds a resume interrupt.
func ResumeRequest() InterruptRequest {
	return InterruptRequest{Kind: InterruptResume, Source: "user"}
}

// CancelRequest builds a cancel interrupt.
func CancelRequest() InterruptRequest {
	return InterruptRequest{Kind: InterruptCancel, Source: "user"}
}

// ExplainRequest builds an explain interrupt, optionally targeting a
// specific decision ID.
func ExplainRequest(target string) InterruptRequest {
	return InterruptRequest{Kind: InterruptExplain, Target: target, Source: "user"}
}

// InterruptOutcome is the result of processing an InterruptRequest.
type InterruptOutcome string

const (
	InterruptHandled  InterruptOutcome = "handled"
	InterruptRejected InterruptOutcome = "rejected"
	InterruptErrored  InterruptOutcome = "error"
)

// InterruptResult reports what happened when an InterruptRequest was
// processed.
type InterruptResult struct {
	Outcome InterruptOutcome
	Message string
}

// interruptMailbox is a single-slot pending-interrupt holder: a later
// request overwrites an unprocessed earlier one, matching the reference
// handler's "last request wins" semantics.
type interruptMailbox struct {
	mu      sync.Mutex
	pending *InterruptRequest
}

func (m *interruptMailbox) request(req InterruptRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = &req
}

func (m *interruptMailbox) hasPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending != nil
}

// take removes and returns the pending request, or nil if none is queued.
func (m *interruptMailbox) take() *InterruptRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	req := m.pending
	m.pending = nil
	return req
}
