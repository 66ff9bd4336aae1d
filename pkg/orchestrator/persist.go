package orchestrator

import (
	"encoding/json"
	"fmt"

	"github.com/codeforge-dev/codeforge/pkg/model"
	"github.com/codeforge-dev/codeforge/pkg/tracker"
)

// FunctionEntry is one planned function in the persisted result document.
type FunctionEntry struct {
	ID          string `json:"id"`
	Signature   string `json:"signature"`
	Description string `json:"description"`
}

// LogEntry is one decision-log line in the persisted result document.
type LogEntry struct {
	Timestamp string         `json:"timestamp"`
	Event     string         `json:"event"`
	Data      map[string]any `json:"data,omitempty"`
}

// MetricsEntry mirrors resources.Usage plus the budget check, flattened for
// the persisted document.
type MetricsEntry struct {
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	TotalTokens    int     `json:"total_tokens"`
	APICalls       int     `json:"api_calls"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	EstimatedCost  float64 `json:"estimated_cost_usd"`
	BudgetStatus   string  `json:"budget_status"`
}

// Document is the JSON artefact an orchestrator run serialises on
// completion, per the persisted-artefacts surface: task, language,
// requirements, planned functions, generated code keyed by step id,
// resource metrics, and the full decision log.
type Document struct {
	Task         string            `json:"task"`
	Language     model.Language    `json:"language"`
	Requirements []string          `json:"requirements"`
	Functions    []FunctionEntry   `json:"functions"`
	Code         map[string]string `json:"code"`
	Metrics      MetricsEntry      `json:"metrics"`
	Log          []LogEntry        `json:"log"`
}

// ToDocument renders the orchestrator's current result, functions, and
// decision log into the persisted JSON shape. Safe to call after StartTask
// returns, whether the run completed, paused, or errored.
func (o *Orchestrator) ToDocument() Document {
	o.mu.Lock()
	result := o.result
	lang := o.lang
	o.mu.Unlock()

	functions := make([]FunctionEntry, 0, len(result.Functions))
	for _, step := range result.Functions {
		functions = append(functions, FunctionEntry{
			ID:          step.ID,
			Signature:   step.Signature,
			Description: step.Description,
		})
	}

	code := make(map[string]string, len(result.Functions))
	generated := o.pctxGeneratedCode()
	for _, step := range result.Functions {
		if c, ok := generated[step.ID]; ok {
			code[step.ID] = c
		}
	}

	usage := o.meter.GetUsage()
	check := o.meter.CheckBudget()

	log := make([]LogEntry, 0, o.tracker.Count())
	for _, rec := range o.tracker.GetAll() {
		log = append(log, recordToLogEntry(rec))
	}

	return Document{
		Task:         result.Task,
		Language:     lang,
		Requirements: result.Requirements,
		Functions:    functions,
		Code:         code,
		Metrics: MetricsEntry{
			InputTokens:    usage.InputTokens,
			OutputTokens:   usage.OutputTokens,
			TotalTokens:    usage.TotalTokens(),
			APICalls:       usage.APICalls,
			ElapsedSeconds: result.ElapsedSeconds,
			EstimatedCost:  usage.EstimatedCostUSD(o.meter.Rates()),
			BudgetStatus:   string(check.Status),
		},
		Log: log,
	}
}

func (o *Orchestrator) pctxGeneratedCode() map[string]string {
	o.mu.Lock()
	pctx := o.pctx
	o.mu.Unlock()
	if pctx == nil {
		return nil
	}
	return pctx.GeneratedCode()
}

func recordToLogEntry(rec tracker.Record) LogEntry {
	data := map[string]any{
		"id":            rec.ID,
		"description":   rec.Description,
		"output_result": rec.OutputResult,
	}
	if rec.Rationale != "" {
		data["rationale"] = rec.Rationale
	}
	if rec.Voting != nil {
		data["voting"] = map[string]any{
			"candidates_total": rec.Voting.CandidatesTotal,
			"candidates_valid": rec.Voting.CandidatesValid,
			"groups_formed":    rec.Voting.GroupsFormed,
			"winning_margin":   rec.Voting.WinningMargin,
			"k_threshold":      rec.Voting.KThreshold,
			"samples_used":     rec.Voting.SamplesUsed,
			"confidence":       rec.Voting.ConfidenceLevel(),
		}
	}
	return LogEntry{
		Timestamp: rec.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		Event:     fmt.Sprintf("%s:%s", rec.Phase, rec.Description),
		Data:      data,
	}
}

// MarshalJSONIndent renders the document as indented JSON, matching the shape a
// CLI --output flag writes to disk.
func (d Document) MarshalJSONIndent() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}
