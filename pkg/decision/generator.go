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

const generateSystemTemplate = `You are an expert %s developer.
Generate ONLY the code requested - no explanations, no markdown.

Requirements:
- Clean, readable code
- Follow %s best practices
- Handle edge cases
- Keep it simple - don't over-engineer

Output the function/type directly, no ` + "```" + ` markers.`

// Generator implements a Step's code, optionally putting the implementation
// itself through a voting session so transient sampling noise doesn't
// become the shipped result.
type Generator struct {
	client llm.Client
	cfg    Config
}

// NewGenerator builds a Generator backed by client.
func NewGenerator(client llm.Client, cfg Config) *Generator {
	return &Generator{client: client, cfg: cfg}
}

// Generate produces code for step, cleaned of any markdown fencing or
// leading prose the model added despite being asked not to.
func (g *Generator) Generate(ctx context.Context, step model.Step, snap *pipectx.Snapshot, lang model.Language, useVoting bool) (string, error) {
	contextText := snapshotContext(snap)
	if step.Context != "" {
		contextText += "\n\n" + step.Context
	}

	prompt := fmt.Sprintf("Function to implement:\n%s\n\nDescription:\n%s\n\nContext:\n%s\n\nImplement this function:",
		step.Signature, step.Description, contextText)
	system := fmt.Sprintf(generateSystemTemplate, lang, lang)

	if !useVoting {
		resp, err := g.client.Generate(ctx, prompt, system, g.cfg.Temperature, g.cfg.MaxTokensGenerate)
		if err != nil {
			return "", fmt.Errorf("generator: %w", err)
		}
		return cleanCode(resp.Content), nil
	}

	gen := simpleGenerator(g.client, prompt, system, g.cfg.Temperature, g.cfg.MaxTokensGenerate)
	v := voter.New(g.client, g.cfg.voterConfig(), nil)
	result, err := v.Vote(ctx, step, prompt, lang, gen)
	if err != nil {
		return "", fmt.Errorf("generator: vote: %w", err)
	}
	if result.Winner == nil {
		return "", fmt.Errorf("generator: vote produced no winner for step %s (incomplete=%v)", step.ID, result.Incomplete)
	}

	return cleanCode(result.Winner.Content), nil
}

// GenerateBatch generates every step in order, feeding each result back
// into ctx's generated-code map so later steps see earlier ones.
func (g *Generator) GenerateBatch(ctx context.Context, steps []model.Step, pctx *pipectx.Context, lang model.Language) (map[string]string, error) {
	results := make(map[string]string, len(steps))

	for _, step := range steps {
		var snap *pipectx.Snapshot
		if pctx != nil {
			snap = pctx.Snapshot()
		}
		code, err := g.Generate(ctx, step, snap, lang, true)
		if err != nil {
			return results, err
		}
		results[step.ID] = code
		if pctx != nil {
			pctx.AddCode(step, code)
		}
	}

	return results, nil
}

// cleanCode strips markdown fencing and any leading prose lines the model
// produced before the first recognisable declaration.
func cleanCode(code string) string {
	code = cleanMarkdownFence(code)

	lines := strings.Split(code, "\n")
	started := false
	var clean []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !started {
			switch {
			case strings.HasPrefix(trimmed, "func "), strings.HasPrefix(trimmed, "type "),
				strings.HasPrefix(trimmed, "package "), strings.HasPrefix(trimmed, "import "),
				strings.HasPrefix(trimmed, "def "), strings.HasPrefix(trimmed, "async def "),
				strings.HasPrefix(trimmed, "class "):
				started = true
				clean = append(clean, line)
			case strings.HasPrefix(trimmed, "//"), strings.HasPrefix(trimmed, "# "):
				started = true
				clean = append(clean, line)
			}
			continue
		}
		clean = append(clean, line)
	}

	if len(clean) > 0 {
		return strings.Join(clean, "\n")
	}
	return code
}
