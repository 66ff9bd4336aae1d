package introspect

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeforge-dev/codeforge/pkg/decision"
	"github.com/codeforge-dev/codeforge/pkg/llm"
	"github.com/codeforge-dev/codeforge/pkg/model"
	"github.com/codeforge-dev/codeforge/pkg/orchestrator"
	"github.com/codeforge-dev/codeforge/pkg/resources"
)

type scriptedClient struct{}

func (c *scriptedClient) Generate(ctx context.Context, prompt, system string, temperature float64, maxTokens int) (llm.Response, error) {
	switch {
	case strings.Contains(system, "requirements analyst"):
		return llm.Response{Content: `["Parse the input string"]`}, nil
	case strings.Contains(system, "software architect"):
		return llm.Response{Content: `[{"signature":"func Parse(s string) (string, error)","description":"parses input","dependencies":[],"requirements":[0]}]`}, nil
	case strings.Contains(system, "expert") && strings.Contains(system, "developer"):
		return llm.Response{Content: "func Parse(s string) (string, error) {\n\treturn s, nil\n}"}, nil
	case strings.Contains(system, "code reviewer"):
		return llm.Response{Content: "VALID: yes\nERRORS: []\nWARNINGS: []\nSUGGESTIONS: []"}, nil
	default:
		return llm.Response{Content: "ok"}, nil
	}
}

func (c *scriptedClient) CompareSemantic(ctx context.Context, codeA, codeB, taskContext string) (bool, error) {
	return codeA == codeB, nil
}

func newRunOrchestrator(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()
	o := orchestrator.New(&scriptedClient{}, decision.DefaultConfig(), resources.Budget{}, resources.DefaultCostRates(), model.LanguageGo, false, false, nil)
	_, err := o.StartTask(context.Background(), "parse a string")
	require.NoError(t, err)
	return o
}

func TestExplainStatusCompleted(t *testing.T) {
	o := newRunOrchestrator(t)
	in := New(o)

	status := in.ExplainStatus()
	assert.Contains(t, status.Short, "Completed")
	assert.Contains(t, status.Detailed, "Requirements: 1")
	assert.NotEmpty(t, status.Suggestions)
}

func TestExplainStatusIdle(t *testing.T) {
	o := orchestrator.New(&scriptedClient{}, decision.DefaultConfig(), resources.Budget{}, resources.DefaultCostRates(), model.LanguageGo, false, false, nil)
	in := New(o)

	status := in.ExplainStatus()
	assert.Equal(t, "Waiting for a task", status.Short)
}

func TestExplainPhaseKnown(t *testing.T) {
	o := newRunOrchestrator(t)
	in := New(o)

	expand := in.ExplainPhase("expand")
	assert.Equal(t, "EXPAND", expand.Phase)
	assert.Contains(t, expand.CurrentProgress, "requirements generated")
}

func TestExplainPhaseUnknown(t *testing.T) {
	o := newRunOrchestrator(t)
	in := New(o)

	unknown := in.ExplainPhase("bogus")
	assert.Equal(t, "Unknown phase", unknown.Purpose)
}

func TestExplainDecisionsSummaryAndLastDecision(t *testing.T) {
	o := newRunOrchestrator(t)
	in := New(o)

	summary := in.ExplainDecisionsSummary()
	assert.Contains(t, summary, "Total decisions")

	last := in.ExplainLastDecision()
	assert.NotEmpty(t, last)
}

func TestExplainDecisionNotFound(t *testing.T) {
	o := newRunOrchestrator(t)
	in := New(o)

	assert.Contains(t, in.ExplainDecision("missing"), "not found")
}

func TestExplainVotingWithoutVoting(t *testing.T) {
	o := newRunOrchestrator(t)
	in := New(o)

	history := o.Tracker().GetHistory(1)
	require.NotEmpty(t, history)
	assert.Equal(t, "This decision did not involve voting.", in.ExplainVoting(history[0].ID))
}

func TestExplainConfidenceNoVoting(t *testing.T) {
	o := newRunOrchestrator(t)
	in := New(o)

	assert.Equal(t, "No decisions with voting recorded.", in.ExplainConfidence())
}

func TestExplainResourcesAndBudgetStatus(t *testing.T) {
	o := newRunOrchestrator(t)
	in := New(o)

	assert.Contains(t, in.ExplainResources(), "Resource usage:")
	assert.Contains(t, in.ExplainBudgetStatus(), "Status:")
}

func TestPredictRemainingAfterCompletion(t *testing.T) {
	o := newRunOrchestrator(t)
	in := New(o)

	pred := in.PredictRemaining()
	assert.Equal(t, 0, pred.StepsRemaining)
}

func TestExplainEverythingIncludesAllSections(t *testing.T) {
	o := newRunOrchestrator(t)
	in := New(o)

	full := in.ExplainEverything()
	assert.Contains(t, full, "### STATUS ###")
	assert.Contains(t, full, "### DECISIONS ###")
	assert.Contains(t, full, "### RESOURCES ###")
	assert.Contains(t, full, "### PREDICTION ###")
}
