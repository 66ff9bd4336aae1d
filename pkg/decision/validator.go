package decision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/codeforge-dev/codeforge/pkg/llm"
	"github.com/codeforge-dev/codeforge/pkg/model"
	"github.com/codeforge-dev/codeforge/pkg/pipectx"
	"github.com/codeforge-dev/codeforge/pkg/tool"
	"github.com/codeforge-dev/codeforge/pkg/voter"
)

const validateSystemPrompt = `You are an expert code reviewer.
Review the code for correctness, bugs, and best practices.

Check for:
1. Logic errors
2. Edge cases not handled
3. Type mismatches
4. Missing error handling
5. Security issues
6. Performance problems

Be thorough but fair. Only flag real issues.

Output format:
VALID: yes/no
ERRORS: [list of errors]
WARNINGS: [list of warnings]
SUGGESTIONS: [list of improvements]`

// Result is the outcome of validating one piece of generated code.
type Result struct {
	IsValid     bool
	Errors      []string
	Warnings    []string
	Suggestions []string
}

// Passed reports whether the code is valid and free of reported errors.
func (r Result) Passed() bool {
	return r.IsValid && len(r.Errors) == 0
}

// Validator runs a static syntax pass followed, if that passes, by an LLM
// review for logic/style issues.
type Validator struct {
	client llm.Client
	cfg    Config
	tools  *tool.Registry
}

// NewValidator builds a Validator backed by client. The static pass is
// dispatched to the Tool capability's syntax_check entry rather than
// parsing code inline, the same TEST-kind dispatch a Step of kind TEST
// would go through.
func NewValidator(client llm.Client, cfg Config) *Validator {
	return &Validator{client: client, cfg: cfg, tools: tool.NewDefaultRegistry()}
}

// Validate checks code against step's specification, skipping the LLM pass
// entirely when the static check already found a syntax error.
func (vd *Validator) Validate(ctx context.Context, code string, step model.Step, snap *pipectx.Snapshot, lang model.Language) (Result, error) {
	staticErrors := vd.staticValidate(ctx, code, lang)
	if len(staticErrors) > 0 {
		return Result{IsValid: false, Errors: staticErrors}, nil
	}

	prompt := fmt.Sprintf("Code to review:\n```\n%s\n```\n\nSpecification:\n%s\n%s\n\nContext:\n%s\n\nReview this code:",
		code, step.Signature, step.Description, snapshotContext(snap))

	resp, err := vd.client.Generate(ctx, prompt, validateSystemPrompt, 0.0, vd.cfg.MaxTokensValidate)
	if err != nil {
		return Result{}, fmt.Errorf("validator: %w", err)
	}

	return parseValidation(resp.Content), nil
}

// staticValidate dispatches a TEST-kind step into the syntax_check tool,
// the deterministic capability backing that Step kind. Non-Go targets have
// no local syntax checker registered, so they skip straight to LLM review.
// The dispatch is bounded by cfg.ExecutionTimeoutSeconds, the same ceiling
// every Tool capability call runs under.
func (vd *Validator) staticValidate(ctx context.Context, code string, lang model.Language) []string {
	if !lang.IsGo() {
		return nil
	}

	t, ok := vd.tools.Get("syntax_check")
	if !ok {
		return nil
	}

	if vd.cfg.ExecutionTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(vd.cfg.ExecutionTimeoutSeconds)*time.Second)
		defer cancel()
	}

	result := t.Execute(ctx, tool.Args{"code": code})
	if !result.Success {
		return []string{fmt.Sprintf("syntax error: %s", result.Error)}
	}
	return nil
}

func parseValidation(text string) Result {
	result := Result{IsValid: true}

	var section *[]string
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(upper, "VALID:"):
			value := strings.ToLower(strings.TrimSpace(line[strings.Index(line, ":")+1:]))
			result.IsValid = value == "yes" || value == "true" || value == "1"
			section = nil
		case strings.HasPrefix(upper, "ERRORS:"):
			section = &result.Errors
			appendInlineList(section, line)
		case strings.HasPrefix(upper, "WARNINGS:"):
			section = &result.Warnings
			appendInlineList(section, line)
		case strings.HasPrefix(upper, "SUGGESTIONS:"):
			section = &result.Suggestions
			appendInlineList(section, line)
		case section != nil && strings.HasPrefix(line, "-"):
			if item := strings.TrimSpace(strings.TrimPrefix(line, "-")); item != "" {
				*section = append(*section, item)
			}
		}
	}

	return result
}

func appendInlineList(section *[]string, line string) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return
	}
	rest := strings.TrimSpace(line[idx+1:])
	if rest == "" || rest == "[]" {
		return
	}
	*section = append(*section, parseInlineItems(rest)...)
}

func parseInlineItems(text string) []string {
	text = strings.Trim(strings.TrimSpace(text), "[]")
	parts := strings.Split(text, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if item := strings.Trim(strings.TrimSpace(p), `"'`); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ValidateWithVoting runs a stricter pass: several independent reviewers
// vote yes/no on correctness, and the majority verdict wins.
func (vd *Validator) ValidateWithVoting(ctx context.Context, code string, step model.Step, lang model.Language) (bool, error) {
	prompt := fmt.Sprintf("Is this code correct and complete?\nCode:\n```\n%s\n```\n\nSpecification: %s\n%s\n\nAnswer ONLY \"VALID\" or \"INVALID\" followed by reason.",
		code, step.Signature, step.Description)

	mdapStep := model.NewStep(model.KindValidate, "Validate: "+step.Description)
	gen := simpleGenerator(vd.client, prompt, "You are a code reviewer. Be strict.", vd.cfg.Temperature, 100)

	v := voter.New(vd.client, vd.cfg.voterConfig(), nil)
	result, err := v.Vote(ctx, mdapStep, code, lang, gen)
	if err != nil {
		return false, fmt.Errorf("validator: vote: %w", err)
	}
	if result.Winner == nil {
		return false, fmt.Errorf("validator: vote produced no winner (incomplete=%v)", result.Incomplete)
	}

	answer := strings.ToUpper(result.Winner.Content)
	return strings.Contains(answer, "VALID") && !strings.Contains(answer, "INVALID"), nil
}
