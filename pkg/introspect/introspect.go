// Package introspect renders read-only views over a running or finished
// pipeline: status summaries, phase explanations, decision and voting
// detail, resource/budget reports, and residual-work predictions. It holds
// no state of its own — every call reads live through to the orchestrator,
// tracker, and meter it was built with.
package introspect

import (
	"fmt"
	"strings"

	"github.com/codeforge-dev/codeforge/pkg/orchestrator"
	"github.com/codeforge-dev/codeforge/pkg/tracker"
)

// StatusExplanation is a layered view of the current run: a one-line
// summary, a multi-line detail block, and suggested next actions.
type StatusExplanation struct {
	Short       string
	Detailed    string
	Suggestions []string
}

// PhaseExplanation describes one pipeline phase: what it's for, how far
// along it is, and what happens after it.
type PhaseExplanation struct {
	Phase           string
	Purpose         string
	CurrentProgress string
	WhatHappensNext string
}

// WorkPrediction is a residual-work estimate derived from the meter's
// historical per-call averages.
type WorkPrediction struct {
	StepsRemaining       int
	EstimatedTimeSeconds float64
	EstimatedTokens      int
	EstimatedCostUSD     float64
	Confidence           string // "high", "medium", or "low"
}

// Introspector formats status, explanation, and prediction views over one
// orchestrator's state, decision log, and resource meter.
type Introspector struct {
	orch *orchestrator.Orchestrator
}

// New builds an Introspector over orch.
func New(orch *orchestrator.Orchestrator) *Introspector {
	return &Introspector{orch: orch}
}

// ExplainStatus renders the current run's status at three levels of detail.
func (in *Introspector) ExplainStatus() StatusExplanation {
	status := in.orch.GetStatus()

	return StatusExplanation{
		Short:       shortStatus(status),
		Detailed:    detailedStatus(status),
		Suggestions: suggestions(status.Phase),
	}
}

func shortStatus(status orchestrator.Status) string {
	switch status.Phase {
	case orchestrator.PhaseIdle:
		return "Waiting for a task"
	case orchestrator.PhasePaused:
		return fmt.Sprintf("Paused (%.0f%% complete)", status.ProgressPercent)
	case orchestrator.PhaseCompleted:
		return fmt.Sprintf("Completed in %.1fs", status.ElapsedSeconds)
	case orchestrator.PhaseError:
		return fmt.Sprintf("Error: %s", status.ErrorMessage)
	default:
		return fmt.Sprintf("%s - %s", status.PhaseName, status.PhaseDetail)
	}
}

func detailedStatus(status orchestrator.Status) string {
	task := status.Task
	if task == "" {
		task = "(none)"
	}

	lines := []string{
		fmt.Sprintf("State: %s", status.PhaseName),
		fmt.Sprintf("Task: %s", task),
		fmt.Sprintf("Progress: %.0f%%", status.ProgressPercent),
		"",
		"Partial results:",
		fmt.Sprintf("  - Requirements: %d", status.RequirementsCount),
		fmt.Sprintf("  - Functions: %d", status.FunctionsCount),
		fmt.Sprintf("  - Generated code: %d", status.CodeCount),
		"",
		fmt.Sprintf("Elapsed time: %.1fs", status.ElapsedSeconds),
	}

	if status.Phase == orchestrator.PhasePaused {
		lines = append(lines, "", "Pipeline PAUSED. Use resume to continue.")
	}

	return strings.Join(lines, "\n")
}

func suggestions(phase orchestrator.Phase) []string {
	switch phase {
	case orchestrator.PhaseIdle:
		return []string{"Use run <task> to start", "Use help to see available commands"}
	case orchestrator.PhasePaused:
		return []string{"Use resume to continue", "Use cancel to abandon", "Use status to see progress"}
	case orchestrator.PhaseCompleted:
		return []string{"Use history to see decisions made", "Use resources to see consumption", "Use run for a new task"}
	case orchestrator.PhaseError:
		return []string{"Use run to try again", "Use explain to understand the error"}
	default:
		return []string{"Use explain for more detail"}
	}
}

var phaseInfo = map[string]PhaseExplanation{
	"expand": {
		Phase:           "EXPAND",
		Purpose:         "Analyze the task and extract individual atomic requirements",
		WhatHappensNext: "Requirements will be organized into functions (DECOMPOSE)",
	},
	"decompose": {
		Phase:           "DECOMPOSE",
		Purpose:         "Organize requirements into functions with clear responsibilities",
		WhatHappensNext: "Each function will be implemented (GENERATE)",
	},
	"generate": {
		Phase:           "GENERATE",
		Purpose:         "Implement the code for each function",
		WhatHappensNext: "The code will be validated (VALIDATE)",
	},
	"validate": {
		Phase:           "VALIDATE",
		Purpose:         "Check syntax and correctness of the generated code",
		WhatHappensNext: "Pipeline complete!",
	},
}

// ExplainPhase describes one named phase (expand/decompose/generate/
// validate, case-insensitive), filling in its current progress from the
// live status. An unrecognised name returns a placeholder explanation.
func (in *Introspector) ExplainPhase(phase string) PhaseExplanation {
	key := strings.ToLower(phase)
	info, ok := phaseInfo[key]
	if !ok {
		return PhaseExplanation{
			Phase:           phase,
			Purpose:         "Unknown phase",
			CurrentProgress: "N/A",
			WhatHappensNext: "N/A",
		}
	}

	info.CurrentProgress = in.phaseProgress(key)
	return info
}

func (in *Introspector) phaseProgress(phase string) string {
	status := in.orch.GetStatus()

	switch phase {
	case "expand":
		if status.RequirementsCount > 0 {
			return fmt.Sprintf("%d requirements generated", status.RequirementsCount)
		}
		return "Generating requirements..."
	case "decompose":
		if status.FunctionsCount > 0 {
			return fmt.Sprintf("%d functions planned", status.FunctionsCount)
		}
		return "Planning functions..."
	case "generate":
		if status.FunctionsCount > 0 {
			return fmt.Sprintf("%d/%d functions implemented", status.CodeCount, status.FunctionsCount)
		}
		return "Waiting for functions..."
	case "validate":
		if status.ValidationPassed {
			return "Validation passed"
		}
		return "Validating code..."
	}

	return status.PhaseDetail
}

// ExplainDecision renders the full explanation for one decision ID.
func (in *Introspector) ExplainDecision(id string) string {
	return in.orch.Tracker().ExplainDecision(id)
}

// ExplainDecisionsSummary renders an overview of every decision made.
func (in *Introspector) ExplainDecisionsSummary() string {
	return in.orch.Tracker().Summarize()
}

// ExplainLastDecision renders the most recently logged decision.
func (in *Introspector) ExplainLastDecision() string {
	history := in.orch.Tracker().GetHistory(1)
	if len(history) == 0 {
		return "No decisions recorded yet."
	}
	return history[0].ToExplanation()
}

// ExplainVoting renders the voting breakdown for one decision, or a
// message explaining why there isn't one.
func (in *Introspector) ExplainVoting(id string) string {
	rec, ok := in.orch.Tracker().GetByID(id)
	if !ok {
		return fmt.Sprintf("Decision %s not found.", id)
	}
	if rec.Voting == nil {
		return "This decision did not involve voting."
	}
	return rec.Voting.ToExplanation()
}

// ExplainConfidence summarises how confidently the run's voted decisions
// landed, bucketed into high/medium/low margin bands.
func (in *Introspector) ExplainConfidence() string {
	var voted []tracker.Record
	for _, r := range in.orch.Tracker().GetAll() {
		if r.Voting != nil {
			voted = append(voted, r)
		}
	}

	if len(voted) == 0 {
		return "No decisions with voting recorded."
	}

	total := len(voted)
	var high, medium int
	var marginSum int
	for _, r := range voted {
		switch r.Voting.ConfidenceLevel() {
		case "high":
			high++
		case "medium":
			medium++
		}
		marginSum += r.Voting.WinningMargin
	}
	low := total - high - medium
	avgMargin := float64(marginSum) / float64(total)

	lines := []string{
		fmt.Sprintf("Confidence analysis (%d decisions with voting):", total),
		"",
		fmt.Sprintf("  High confidence: %d (%.0f%%)", high, pct(high, total)),
		fmt.Sprintf("  Medium confidence: %d (%.0f%%)", medium, pct(medium, total)),
		fmt.Sprintf("  Low confidence: %d (%.0f%%)", low, pct(low, total)),
		"",
		fmt.Sprintf("Average winning margin: %.1f", avgMargin),
		"",
	}

	switch {
	case float64(low) > float64(total)*0.3:
		lines = append(lines, "WARNING: many low-confidence decisions. Consider reviewing.")
	case float64(high) > float64(total)*0.7:
		lines = append(lines, "GOOD: most decisions are high confidence.")
	default:
		lines = append(lines, "OK: moderate overall confidence.")
	}

	return strings.Join(lines, "\n")
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// ExplainResources renders the full resource usage and budget summary.
func (in *Introspector) ExplainResources() string {
	return in.orch.Meter().ToSummary()
}

// ExplainBudgetStatus renders a focused view of the budget check alone.
func (in *Introspector) ExplainBudgetStatus() string {
	check := in.orch.Meter().CheckBudget()

	lines := []string{fmt.Sprintf("Status: %s", strings.ToUpper(string(check.Status)))}

	switch check.Status {
	case "exceeded":
		lines = append(lines, "ALERT: resource limit exceeded!")
	case "warning":
		lines = append(lines, "WARNING: approaching resource limit.")
	default:
		lines = append(lines, "Resources within expected range.")
	}

	lines = append(lines,
		"",
		fmt.Sprintf("Tokens: %.0f%%", check.TokensPercent),
		fmt.Sprintf("Calls: %.0f%%", check.CallsPercent),
		fmt.Sprintf("Time: %.0f%%", check.TimePercent),
		fmt.Sprintf("Cost: %.0f%%", check.CostPercent),
	)

	return strings.Join(lines, "\n")
}

// PredictRemaining estimates the steps, time, tokens, and cost left before
// the pipeline completes, based on the meter's call history so far.
func (in *Introspector) PredictRemaining() WorkPrediction {
	status := in.orch.GetStatus()

	steps := 0
	if status.RequirementsCount == 0 {
		steps++ // EXPAND
	}
	if status.FunctionsCount == 0 {
		steps++ // DECOMPOSE
	}
	if remaining := status.FunctionsCount - status.CodeCount; remaining > 0 {
		steps += remaining // GENERATE
	}
	if !status.ValidationPassed && status.CodeCount > 0 {
		steps++ // VALIDATE
	}

	estimate := in.orch.Meter().EstimateRemaining(steps)

	historySize := in.orch.Meter().HistoryCount()
	var confidence string
	switch {
	case historySize >= 5:
		confidence = "high"
	case historySize >= 2:
		confidence = "medium"
	default:
		confidence = "low"
	}

	return WorkPrediction{
		StepsRemaining:       steps,
		EstimatedTimeSeconds: estimate.ElapsedSeconds,
		EstimatedTokens:      estimate.TotalTokens(),
		EstimatedCostUSD:     estimate.EstimatedCostUSD(in.orch.Meter().Rates()),
		Confidence:           confidence,
	}
}

// ExplainPrediction renders PredictRemaining as readable text.
func (in *Introspector) ExplainPrediction() string {
	pred := in.PredictRemaining()

	lines := []string{
		"Prediction of remaining work:",
		"",
		fmt.Sprintf("  Steps remaining: %d", pred.StepsRemaining),
		fmt.Sprintf("  Estimated time: %.0fs", pred.EstimatedTimeSeconds),
		fmt.Sprintf("  Estimated tokens: %d", pred.EstimatedTokens),
		fmt.Sprintf("  Estimated cost: $%.4f", pred.EstimatedCostUSD),
		"",
		fmt.Sprintf("Prediction confidence: %s", pred.Confidence),
	}

	if pred.Confidence == "low" {
		lines = append(lines, "(Not enough data for a precise prediction)")
	}

	return strings.Join(lines, "\n")
}

// ExplainEverything renders a complete snapshot: status, current phase,
// decisions, resources, and prediction, in one report.
func (in *Introspector) ExplainEverything() string {
	status := in.orch.GetStatus()
	rule := strings.Repeat("=", 50)

	// ExplainPhase is keyed by the short phase names, not the FSM's values.
	phaseName := string(status.Phase)
	switch status.Phase {
	case orchestrator.PhaseExpanding:
		phaseName = "expand"
	case orchestrator.PhaseDecomposing:
		phaseName = "decompose"
	case orchestrator.PhaseGenerating:
		phaseName = "generate"
	case orchestrator.PhaseValidating:
		phaseName = "validate"
	}

	sections := []string{
		rule,
		"CODEFORGE ORCHESTRATOR - FULL EXPLANATION",
		rule,
		"",
		"### STATUS ###",
		in.ExplainStatus().Detailed,
		"",
		"### CURRENT PHASE ###",
		in.ExplainPhase(phaseName).Purpose,
		"",
		"### DECISIONS ###",
		in.ExplainDecisionsSummary(),
		"",
		"### RESOURCES ###",
		in.ExplainResources(),
		"",
		"### PREDICTION ###",
		in.ExplainPrediction(),
		"",
		rule,
	}

	return strings.Join(sections, "\n")
}
