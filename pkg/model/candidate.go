package model

import "github.com/google/uuid"

// Candidate is one sampled LLM response for a decision. It is mutated
// exactly once by the red-flag filter and once by the discriminator; after
// classification it is read-only.
type Candidate struct {
	ID           string
	Content      string
	OutputTokens int
	Valid        bool
	RejectReason string
	GroupID      string
}

// NewCandidate wraps a generated response as a fresh, unclassified candidate.
func NewCandidate(content string, outputTokens int) *Candidate {
	return &Candidate{
		ID:           uuid.NewString()[:8],
		Content:      content,
		OutputTokens: outputTokens,
		Valid:        true,
	}
}

// Reject marks the candidate invalid with the given red-flag reason.
func (c *Candidate) Reject(reason string) {
	c.Valid = false
	c.RejectReason = reason
}

// SemanticGroup is a cluster of candidates judged behaviourally equivalent.
// The representative is the first candidate inserted; Votes is the member
// count.
type SemanticGroup struct {
	ID             string
	Representative *Candidate
	Members        []*Candidate
}

// Votes returns the number of members in the group.
func (g *SemanticGroup) Votes() int {
	return len(g.Members)
}

// Add appends a candidate to the group and stamps its GroupID.
func (g *SemanticGroup) Add(c *Candidate) {
	c.GroupID = g.ID
	g.Members = append(g.Members, c)
}

// VoteResult is the outcome of one voting session.
type VoteResult struct {
	Winner        *Candidate
	Groups        map[string][]*Candidate
	VotesPerGroup map[string]int
	TotalSamples  int
	WinningMargin int
	// Incomplete is set when the vote was cut short by cancellation rather
	// than terminating by k-margin or sample exhaustion.
	Incomplete bool
}

// WinnerVotes returns the vote count of the winning group, or zero if the
// winner has no recorded group (should not happen for a well-formed result).
func (r VoteResult) WinnerVotes() int {
	if r.Winner == nil || r.Winner.GroupID == "" {
		return 0
	}
	return r.VotesPerGroup[r.Winner.GroupID]
}

// ExecutionResult is the outcome of a deterministic tool dispatch (READ,
// SEARCH, TEST, APPLY) — no voting involved.
type ExecutionResult struct {
	Success bool
	Output  string
	Error   string
	Data    any
}

// ExecutionEntry pairs a Step with its ExecutionResult, preserving the order
// executions were recorded in.
type ExecutionEntry struct {
	Step   Step
	Result ExecutionResult
}
