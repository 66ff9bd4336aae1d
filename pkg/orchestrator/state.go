// Package orchestrator drives the pipeline's finite state machine and
// sequences the expand/decompose/generate/validate phases, handling
// pause/resume/cancel and checkpoint interrupts along the way.
package orchestrator

import (
	"time"
)

// Phase is one state of the pipeline state machine.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseExpanding        Phase = "expanding"
	PhaseDecomposing      Phase = "decomposing"
	PhaseGenerating       Phase = "generating"
	PhaseValidating       Phase = "validating"
	PhasePaused           Phase = "paused"
	PhaseAwaitingDecision Phase = "awaiting"
	PhaseCompleted        Phase = "completed"
	PhaseError            Phase = "error"
)

// validTransitions mirrors the reference orchestrator's transition table
// exactly: only these from->to moves are legal.
var validTransitions = map[Phase]map[Phase]bool{
	PhaseIdle: set(PhaseExpanding),
	PhaseExpanding: set(
		PhaseDecomposing, PhasePaused, PhaseError, PhaseAwaitingDecision,
	),
	PhaseDecomposing: set(
		PhaseGenerating, PhasePaused, PhaseError, PhaseAwaitingDecision,
	),
	PhaseGenerating: set(
		PhaseValidating, PhaseCompleted, PhasePaused, PhaseError, PhaseAwaitingDecision,
	),
	PhaseValidating: set(
		PhaseCompleted, PhaseGenerating, PhasePaused, PhaseError, PhaseAwaitingDecision,
	),
	PhasePaused: set(
		PhaseExpanding, PhaseDecomposing, PhaseGenerating, PhaseValidating, PhaseIdle,
	),
	PhaseAwaitingDecision: set(
		PhaseExpanding, PhaseDecomposing, PhaseGenerating, PhaseValidating, PhasePaused, PhaseIdle,
	),
	PhaseCompleted: set(PhaseIdle),
	PhaseError:     set(PhaseIdle),
}

// executionPhases are the phases that do active pipeline work.
var executionPhases = set(PhaseExpanding, PhaseDecomposing, PhaseGenerating, PhaseValidating)

func set(phases ...Phase) map[Phase]bool {
	m := make(map[Phase]bool, len(phases))
	for _, p := range phases {
		m[p] = true
	}
	return m
}

// Transition is one logged move between phases.
type Transition struct {
	From      Phase
	To        Phase
	Reason    string
	Timestamp time.Time
}

// State is the orchestrator's full state: current phase, transition
// history, and the bookkeeping needed to resume after a pause.
type State struct {
	Current            Phase
	Previous           Phase // phase to resume into, valid only while Current == PhasePaused
	Task               string
	CurrentPhaseDetail string
	TransitionHistory  []Transition
	ErrorMessage       string
	StartedAt          *time.Time
	CompletedAt        *time.Time
}

// NewState builds a fresh, idle State.
func NewState() *State {
	return &State{Current: PhaseIdle}
}

// CanTransition reports whether moving to the given phase is legal from the
// current one.
func (s *State) CanTransition(to Phase) bool {
	return validTransitions[s.Current][to]
}

// Transition attempts to move to the given phase, recording a Transition
// entry and updating resume/timestamp bookkeeping. Returns false (state
// unchanged) if the move is not legal.
func (s *State) Transition(to Phase, reason string) bool {
	if !s.CanTransition(to) {
		return false
	}

	s.TransitionHistory = append(s.TransitionHistory, Transition{
		From:      s.Current,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	})

	if to == PhasePaused {
		s.Previous = s.Current
	}

	if executionPhases[to] && s.StartedAt == nil {
		now := time.Now()
		s.StartedAt = &now
	} else if to == PhaseCompleted {
		now := time.Now()
		s.CompletedAt = &now
	}

	s.Current = to
	return true
}

// ResumeState returns the phase to resume into after a pause, or ""
// (the zero Phase) if not currently paused.
func (s *State) ResumeState() Phase {
	if s.Current != PhasePaused {
		return ""
	}
	return s.Previous
}

// IsRunning reports whether the state machine is in an active execution
// phase.
func (s *State) IsRunning() bool {
	return executionPhases[s.Current]
}

// IsPausable reports whether the current phase can be paused.
func (s *State) IsPausable() bool {
	return executionPhases[s.Current] || s.Current == PhaseAwaitingDecision
}

// IsTerminal reports whether the current phase ends the run.
func (s *State) IsTerminal() bool {
	switch s.Current {
	case PhaseCompleted, PhaseError, PhaseIdle:
		return true
	}
	return false
}

// Reset returns the state to idle, preserving transition history for later
// analysis.
func (s *State) Reset() {
	s.Current = PhaseIdle
	s.Previous = ""
	s.Task = ""
	s.CurrentPhaseDetail = ""
	s.ErrorMessage = ""
	s.StartedAt = nil
	s.CompletedAt = nil
}

// ElapsedSeconds returns the time spent since the run started, using
// CompletedAt if the run has finished or time.Now otherwise.
func (s *State) ElapsedSeconds() float64 {
	if s.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if s.CompletedAt != nil {
		end = *s.CompletedAt
	}
	return end.Sub(*s.StartedAt).Seconds()
}

var phaseNames = map[Phase]string{
	PhaseIdle:             "Waiting",
	PhaseExpanding:        "Expanding Requirements",
	PhaseDecomposing:      "Decomposing Functions",
	PhaseGenerating:       "Generating Code",
	PhaseValidating:       "Validating",
	PhasePaused:           "Paused",
	PhaseAwaitingDecision: "Awaiting Decision",
	PhaseCompleted:        "Completed",
	PhaseError:            "Error",
}

// PhaseName returns a human-readable label for the current phase.
func (s *State) PhaseName() string {
	if name, ok := phaseNames[s.Current]; ok {
		return name
	}
	return string(s.Current)
}
