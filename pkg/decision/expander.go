package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/codeforge-dev/codeforge/pkg/llm"
	"github.com/codeforge-dev/codeforge/pkg/model"
	"github.com/codeforge-dev/codeforge/pkg/pipectx"
	"github.com/codeforge-dev/codeforge/pkg/voter"
)

const expandSystemPrompt = `You are an expert requirements analyst.
Given a task description, expand it into atomic requirements.

IMPORTANT:
- Each requirement must be ATOMIC (one single thing)
- Each requirement must be TESTABLE
- Each requirement must be INDEPENDENT (can be implemented alone)
- Do NOT include implementation details
- Focus on WHAT not HOW

Output format: JSON array of strings, one requirement per line.
Example: ["User can login with email", "Password has minimum 8 chars", ...]`

// Expander discovers requirements a task description left implicit —
// bottom-up expansion, as distinct from the decomposer's top-down split of
// already-known requirements into functions.
type Expander struct {
	client llm.Client
	cfg    Config
	logger *slog.Logger
}

// NewExpander builds an Expander backed by client.
func NewExpander(client llm.Client, cfg Config) *Expander {
	return &Expander{client: client, cfg: cfg, logger: slog.Default()}
}

// Expand produces the atomic requirement list for task. When useVoting is
// true the requirement list itself is the subject of a voting session;
// otherwise a single sample is taken.
func (e *Expander) Expand(ctx context.Context, task string, snap *pipectx.Snapshot, useVoting bool) ([]string, error) {
	prompt := e.buildPrompt(task, snapshotContext(snap))

	if !useVoting {
		resp, err := e.client.Generate(ctx, prompt, expandSystemPrompt, e.cfg.Temperature, e.cfg.MaxTokensExpand)
		if err != nil {
			return nil, fmt.Errorf("expander: %w", err)
		}
		items, ok := parseRequirements(resp.Content)
		e.logParse(resp.Content, items, ok)
		return items, nil
	}

	step := model.NewStep(model.KindExpand, fmt.Sprintf("Expand requirements for: %s", task))
	gen := simpleGenerator(e.client, prompt, expandSystemPrompt, e.cfg.Temperature, e.cfg.MaxTokensExpand)

	v := voter.New(e.client, e.cfg.voterConfig(), nil)
	result, err := v.Vote(ctx, step, prompt, model.LanguageGo, gen)
	if err != nil {
		return nil, fmt.Errorf("expander: vote: %w", err)
	}
	if result.Winner == nil {
		return nil, fmt.Errorf("expander: vote produced no winner (incomplete=%v)", result.Incomplete)
	}

	items, ok := parseRequirements(result.Winner.Content)
	e.logParse(result.Winner.Content, items, ok)
	return items, nil
}

// logParse distinguishes, in the log, a parser that legitimately found zero
// requirements from one that couldn't make sense of the reply at all.
func (e *Expander) logParse(raw string, items []string, ok bool) {
	if !ok {
		e.logger.Warn("expander: fallback parse failed", "raw_text_size", len(raw))
		return
	}
	if len(items) == 0 {
		e.logger.Info("expander: parse produced zero requirements", "raw_text_size", len(raw))
	}
}

func (e *Expander) buildPrompt(task, contextText string) string {
	return fmt.Sprintf("Task: %s\n\n%s\n\nList ALL atomic requirements needed to complete this task.\nBe thorough - missing requirements cause bugs later.\n\nOutput as JSON array:", task, contextText)
}

var (
	bulletPrefix  = regexp.MustCompile(`^[-*•]\s*`)
	numberPrefix  = regexp.MustCompile(`^\d+\.\s*`)
	quotedWrapper = regexp.MustCompile(`^"(.+)"$`)
)

// parseRequirements extracts requirement strings from a model reply, trying
// a structured JSON array first and falling back to a line-oriented
// heuristic. ok reports whether the reply was parseable at all: true for a
// well-formed JSON array (even an empty one) or a fallback scan that found
// at least one line; false when neither succeeded and the reply held text
// that should have parsed as something. A blank reply is reported as a
// legitimate empty result (ok=true), not a parse failure.
func parseRequirements(text string) ([]string, bool) {
	text = strings.TrimSpace(text)

	if arr, ok := extractJSONArray(text); ok {
		var data []string
		if err := json.Unmarshal([]byte(arr), &data); err == nil {
			out := make([]string, 0, len(data))
			for _, r := range data {
				if r = strings.TrimSpace(r); r != "" {
					out = append(out, r)
				}
			}
			return out, true
		}
	}

	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = bulletPrefix.ReplaceAllString(line, "")
		line = numberPrefix.ReplaceAllString(line, "")
		if m := quotedWrapper.FindStringSubmatch(line); m != nil {
			line = m[1]
		}
		if len(line) > 5 {
			out = append(out, line)
		}
	}
	if len(out) > 0 {
		return out, true
	}
	if text == "" {
		return nil, true
	}
	return nil, false
}

// ExpandIterative refines requirements over several rounds, feeding each
// round's accumulated list back in so the model is asked only for what's
// missing. It stops early once a round adds nothing new.
func (e *Expander) ExpandIterative(ctx context.Context, task string, maxIterations int) ([]string, error) {
	var requirements []string
	seen := make(map[string]bool)

	for i := 0; i < maxIterations; i++ {
		contextText := ""
		if len(requirements) > 0 {
			var b strings.Builder
			b.WriteString("Requirements found so far:\n")
			for j, r := range requirements {
				fmt.Fprintf(&b, "%d. %s\n", j+1, r)
			}
			b.WriteString("\nFind additional requirements NOT in this list.")
			contextText = b.String()
		}

		prompt := e.buildPrompt(task, contextText)
		resp, err := e.client.Generate(ctx, prompt, expandSystemPrompt, e.cfg.Temperature, e.cfg.MaxTokensExpand)
		if err != nil {
			return nil, fmt.Errorf("expander: iterative round %d: %w", i, err)
		}

		before := len(requirements)
		items, ok := parseRequirements(resp.Content)
		e.logParse(resp.Content, items, ok)
		for _, r := range items {
			if !seen[r] {
				seen[r] = true
				requirements = append(requirements, r)
			}
		}
		if len(requirements) == before {
			break
		}
	}

	return requirements, nil
}
