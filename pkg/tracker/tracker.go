// Package tracker records every decision the pipeline makes — what phase it
// was in, what it decided, why, and (when voting was involved) the full
// vote breakdown — so a run can be explained after the fact.
package tracker

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Phase identifies which pipeline stage a decision belongs to.
type Phase string

const (
	PhaseExpand    Phase = "expand"
	PhaseDecompose Phase = "decompose"
	PhaseGenerate  Phase = "generate"
	PhaseValidate  Phase = "validate"
)

var allPhases = []Phase{PhaseExpand, PhaseDecompose, PhaseGenerate, PhaseValidate}

// VotingDetails captures a single voting session's shape for later
// explanation: how many candidates were sampled, how they grouped, and how
// decisively the winner won.
type VotingDetails struct {
	CandidatesTotal int
	CandidatesValid int
	GroupsFormed    int
	VotesPerGroup   map[string]int
	WinningGroup    string
	WinningMargin   int
	KThreshold      int
	MaxSamples      int
	SamplesUsed     int
}

// ConfidenceLevel buckets the winning margin into a coarse band an operator
// can act on at a glance.
func (v VotingDetails) ConfidenceLevel() string {
	switch {
	case v.WinningMargin >= 5:
		return "high"
	case v.WinningMargin >= 3:
		return "medium"
	default:
		return "low"
	}
}

// ToExplanation renders the full voting breakdown as multi-line text.
func (v VotingDetails) ToExplanation() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Candidates generated: %d\n", v.CandidatesTotal)
	fmt.Fprintf(&b, "Candidates valid (post red-flag): %d\n", v.CandidatesValid)
	fmt.Fprintf(&b, "Semantic groups formed: %d\n", v.GroupsFormed)

	if len(v.VotesPerGroup) > 0 {
		b.WriteString("Votes per group:\n")
		for _, group := range sortGroupsByVotes(v.VotesPerGroup) {
			marker := ""
			if group == v.WinningGroup {
				marker = " <-- WINNER"
			}
			fmt.Fprintf(&b, "  %s: %d votes%s\n", group, v.VotesPerGroup[group], marker)
		}
	}

	fmt.Fprintf(&b, "Winning margin: %d (threshold k=%d)\n", v.WinningMargin, v.KThreshold)
	fmt.Fprintf(&b, "Confidence: %s\n", v.ConfidenceLevel())
	fmt.Fprintf(&b, "Samples used: %d/%d", v.SamplesUsed, v.MaxSamples)
	return b.String()
}

func sortGroupsByVotes(votes map[string]int) []string {
	groups := make([]string, 0, len(votes))
	for g := range votes {
		groups = append(groups, g)
	}
	for i := 1; i < len(groups); i++ {
		for j := i; j > 0 && votes[groups[j]] > votes[groups[j-1]]; j-- {
			groups[j], groups[j-1] = groups[j-1], groups[j]
		}
	}
	return groups
}

// Record is one logged decision.
type Record struct {
	ID                     string
	Timestamp              time.Time
	Phase                  Phase
	Description            string
	InputContext           string
	OutputResult           string
	Rationale              string
	Voting                 *VotingDetails
	AlternativesConsidered []string
	Metadata               map[string]any
}

// ToSummary renders a one-line summary of the decision.
func (r Record) ToSummary() string {
	desc := r.Description
	if len(desc) > 50 {
		desc = desc[:50] + "..."
	}
	return fmt.Sprintf("[%s] %s: %s", r.ID, r.Phase, desc)
}

// ToExplanation renders the full multi-line explanation of the decision.
func (r Record) ToExplanation() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Decision: %s\n", r.ID)
	fmt.Fprintf(&b, "Timestamp: %s\n", r.Timestamp.Format("15:04:05"))
	fmt.Fprintf(&b, "Phase: %s\n\n", strings.ToUpper(string(r.Phase)))
	fmt.Fprintf(&b, "Description: %s\n\n", r.Description)
	b.WriteString("Input context:\n")
	fmt.Fprintf(&b, "  %s\n\n", truncate(r.InputContext, 200))
	b.WriteString("Result:\n")
	fmt.Fprintf(&b, "  %s\n\n", truncate(r.OutputResult, 200))
	fmt.Fprintf(&b, "Rationale: %s", r.Rationale)

	if r.Voting != nil {
		b.WriteString("\n\nVoting details:\n")
		b.WriteString(r.Voting.ToExplanation())
	}

	if len(r.AlternativesConsidered) > 0 {
		b.WriteString("\n\nAlternatives considered:\n")
		n := len(r.AlternativesConsidered)
		if n > 5 {
			n = 5
		}
		for _, alt := range r.AlternativesConsidered[:n] {
			fmt.Fprintf(&b, "  - %s\n", truncate(alt, 80))
		}
	}

	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Tracker is the append-only decision log for one task run.
type Tracker struct {
	mu      sync.RWMutex
	records []Record
	byPhase map[Phase][]Record
}

// New builds an empty Tracker.
func New() *Tracker {
	t := &Tracker{byPhase: make(map[Phase][]Record, len(allPhases))}
	for _, p := range allPhases {
		t.byPhase[p] = nil
	}
	return t
}

// Record appends a fully-built decision record and returns its ID.
func (t *Tracker) Record(rec Record) string {
	if rec.ID == "" {
		rec.ID = uuid.NewString()[:8]
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, rec)
	t.byPhase[rec.Phase] = append(t.byPhase[rec.Phase], rec)
	return rec.ID
}

// RecordSimple logs a decision with no voting detail.
func (t *Tracker) RecordSimple(phase Phase, description, inputContext, outputResult, rationale string) string {
	return t.Record(Record{
		Phase:        phase,
		Description:  description,
		InputContext: inputContext,
		OutputResult: outputResult,
		Rationale:    rationale,
	})
}

// RecordWithVoting logs a decision together with the voting session that
// produced it. If rationale is empty, a default margin-based rationale is
// filled in.
func (t *Tracker) RecordWithVoting(phase Phase, description, inputContext, outputResult string, voting VotingDetails, rationale string) string {
	if rationale == "" {
		rationale = fmt.Sprintf("Won by a margin of %d", voting.WinningMargin)
	}
	return t.Record(Record{
		Phase:        phase,
		Description:  description,
		InputContext: inputContext,
		OutputResult: outputResult,
		Voting:       &voting,
		Rationale:    rationale,
	})
}

// GetByID looks up a record by its ID.
func (t *Tracker) GetByID(id string) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, r := range t.records {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

// GetHistory returns the most recent limit records, oldest first.
func (t *Tracker) GetHistory(limit int) []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if limit > len(t.records) {
		limit = len(t.records)
	}
	start := len(t.records) - limit
	out := make([]Record, limit)
	copy(out, t.records[start:])
	return out
}

// GetByPhase returns every record logged under phase.
func (t *Tracker) GetByPhase(phase Phase) []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Record, len(t.byPhase[phase]))
	copy(out, t.byPhase[phase])
	return out
}

// GetAll returns every record logged so far.
func (t *Tracker) GetAll() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Record, len(t.records))
	copy(out, t.records)
	return out
}

// Count returns the total number of logged decisions.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// CountByPhase returns the decision count per phase.
func (t *Tracker) CountByPhase() map[Phase]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[Phase]int, len(t.byPhase))
	for phase, recs := range t.byPhase {
		out[phase] = len(recs)
	}
	return out
}

// Clear discards every recorded decision.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = nil
	for _, p := range allPhases {
		t.byPhase[p] = nil
	}
}

// Summarize renders an overview of the whole session: totals per phase, the
// last three decisions, and the average voting margin.
func (t *Tracker) Summarize() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.records) == 0 {
		return "No decisions recorded yet."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Total decisions: %d\n\nBy phase:\n", len(t.records))

	for _, phase := range allPhases {
		if n := len(t.byPhase[phase]); n > 0 {
			fmt.Fprintf(&b, "  %s: %d\n", strings.ToUpper(string(phase)), n)
		}
	}

	b.WriteString("\nRecent decisions:\n")
	start := len(t.records) - 3
	if start < 0 {
		start = 0
	}
	for _, r := range t.records[start:] {
		fmt.Fprintf(&b, "  - %s\n", r.ToSummary())
	}

	var marginSum, marginCount int
	for _, r := range t.records {
		if r.Voting != nil {
			marginSum += r.Voting.WinningMargin
			marginCount++
		}
	}
	if marginCount > 0 {
		fmt.Fprintf(&b, "\nAverage voting margin: %.1f", float64(marginSum)/float64(marginCount))
	}

	return b.String()
}

// ExplainDecision renders the full explanation for one decision ID.
func (t *Tracker) ExplainDecision(id string) string {
	rec, ok := t.GetByID(id)
	if !ok {
		return fmt.Sprintf("Decision %s not found.", id)
	}
	return rec.ToExplanation()
}

// ExplainPhase renders a summary of every decision logged for phase.
func (t *Tracker) ExplainPhase(phase Phase) string {
	recs := t.GetByPhase(phase)
	if len(recs) == 0 {
		return fmt.Sprintf("No decisions in phase %s.", phase)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Phase %s: %d decisions\n\n", strings.ToUpper(string(phase)), len(recs))
	for i, r := range recs {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r.ToSummary())
		if r.Voting != nil {
			fmt.Fprintf(&b, "   Confidence: %s (margin %d)\n", r.Voting.ConfidenceLevel(), r.Voting.WinningMargin)
		}
	}
	return b.String()
}
