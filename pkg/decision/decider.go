package decision

import (
	"context"
	"fmt"
	"strings"

	"github.com/codeforge-dev/codeforge/pkg/llm"
	"github.com/codeforge-dev/codeforge/pkg/model"
	"github.com/codeforge-dev/codeforge/pkg/pipectx"
	"github.com/codeforge-dev/codeforge/pkg/voter"
)

const decideSystemPrompt = `You are an AI coding assistant deciding the next step.

Given the current context, decide what to do next.
Consider:
1. Have requirements been fully expanded?
2. Have requirements been decomposed into functions?
3. Have all functions been implemented?
4. Has the code been validated?
5. Are there errors to fix?

Output format:
ACTION: [expand|decompose|generate|validate|read|search|test|done]
TARGET: [what to act on]
REASON: [why this action]`

// Decision is the orchestrator's next move, as chosen by the Decider.
type Decision struct {
	Kind   model.Kind
	Step   model.Step
	Reason string
}

// Decider picks the orchestrator's next step given the current pipeline
// progress.
type Decider struct {
	client llm.Client
	cfg    Config
}

// NewDecider builds a Decider backed by client.
func NewDecider(client llm.Client, cfg Config) *Decider {
	return &Decider{client: client, cfg: cfg}
}

// Decide inspects snap's progress counters and asks the model (optionally
// through a vote) what should happen next.
func (d *Decider) Decide(ctx context.Context, snap *pipectx.Snapshot, useVoting bool) (Decision, error) {
	numErrors := 0
	for _, e := range snap.ExecutionResults {
		if !e.Result.Success {
			numErrors++
		}
	}

	prompt := fmt.Sprintf(
		"Current context:\n%s\n\nProgress:\n- Requirements: %d\n- Functions planned: %d\n- Functions implemented: %d\n- Validation errors: %d\n\nWhat should be the next step?",
		snap.ToPromptContext(), len(snap.Requirements), len(snap.Functions), len(snap.GeneratedCode), numErrors,
	)

	if !useVoting {
		resp, err := d.client.Generate(ctx, prompt, decideSystemPrompt, 0.0, 200)
		if err != nil {
			return Decision{}, fmt.Errorf("decider: %w", err)
		}
		return parseDecision(resp.Content), nil
	}

	step := model.NewStep(model.KindDecide, "Decide next step")
	gen := simpleGenerator(d.client, prompt, decideSystemPrompt, d.cfg.Temperature, 200)

	v := voter.New(d.client, d.cfg.voterConfig(), nil)
	result, err := v.Vote(ctx, step, prompt, model.LanguageGo, gen)
	if err != nil {
		return Decision{}, fmt.Errorf("decider: vote: %w", err)
	}
	if result.Winner == nil {
		return Decision{}, fmt.Errorf("decider: vote produced no winner (incomplete=%v)", result.Incomplete)
	}

	return parseDecision(result.Winner.Content), nil
}

var decisionActionAliases = map[string]model.Kind{
	"implement": model.KindGenerate,
	"code":      model.KindGenerate,
	"write":     model.KindGenerate,
	"check":     model.KindValidate,
	"review":    model.KindValidate,
	"find":      model.KindSearch,
	"finish":    model.KindDone,
	"complete":  model.KindDone,
}

func parseDecision(text string) Decision {
	action := model.KindDone
	target := ""
	reason := ""

	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(upper, "ACTION:"):
			raw := strings.ToLower(strings.TrimSpace(line[strings.Index(line, ":")+1:]))
			if k := model.Kind(raw); isKnownDecisionKind(k) {
				action = k
			} else if alias, ok := decisionActionAliases[raw]; ok {
				action = alias
			} else {
				action = model.KindDone
			}
		case strings.HasPrefix(upper, "TARGET:"):
			target = strings.TrimSpace(line[strings.Index(line, ":")+1:])
		case strings.HasPrefix(upper, "REASON:"):
			reason = strings.TrimSpace(line[strings.Index(line, ":")+1:])
		}
	}

	description := target
	if description == "" {
		description = fmt.Sprintf("Execute %s", action)
	}

	step := model.NewStep(action, description)
	if action == model.KindRead || action == model.KindSearch || action == model.KindTest {
		step.Action = target
	}

	return Decision{Kind: action, Step: step, Reason: reason}
}

func isKnownDecisionKind(k model.Kind) bool {
	switch k {
	case model.KindExpand, model.KindDecompose, model.KindGenerate, model.KindValidate,
		model.KindRead, model.KindSearch, model.KindTest, model.KindDone:
		return true
	}
	return false
}

// DecideFromOptions picks one of a fixed set of candidate steps, the
// simplest possible decision: no parsing, just an index.
func (d *Decider) DecideFromOptions(ctx context.Context, snap *pipectx.Snapshot, options []model.Step) (model.Step, error) {
	if len(options) == 0 {
		return model.NewStep(model.KindDone, "no options"), nil
	}

	var opts strings.Builder
	for i, opt := range options {
		fmt.Fprintf(&opts, "%d. %s\n", i, opt.Description)
	}

	prompt := fmt.Sprintf("Context:\n%s\n\nOptions:\n%s\nWhich option should be next? Answer with just the number.",
		snap.ToPromptContext(), opts.String())

	resp, err := d.client.Generate(ctx, prompt, "Choose the best next step. Output only the number.", 0.0, 10)
	if err != nil {
		return options[0], fmt.Errorf("decider: options: %w", err)
	}

	idx := 0
	if _, err := fmt.Sscanf(strings.TrimSpace(resp.Content), "%d", &idx); err != nil || idx < 0 || idx >= len(options) {
		return options[0], nil
	}
	return options[idx], nil
}
