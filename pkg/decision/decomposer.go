package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/codeforge-dev/codeforge/pkg/llm"
	"github.com/codeforge-dev/codeforge/pkg/model"
	"github.com/codeforge-dev/codeforge/pkg/pipectx"
	"github.com/codeforge-dev/codeforge/pkg/voter"
)

const decomposeSystemPrompt = `You are an expert software architect.
Given requirements, decompose them into functions/methods.

IMPORTANT:
- Each function must be ATOMIC (one responsibility)
- Each function must have a CLEAR signature
- Order functions by dependency (dependencies first)
- Keep functions SMALL (< 30 lines ideally)

Output format: JSON array of objects with:
- signature: function signature with types
- description: what the function does
- dependencies: list of other function names it calls
- requirements: list of requirement indices it implements

Example:
[
  {
    "signature": "func ValidateEmail(email string) bool",
    "description": "Validates email format using regex",
    "dependencies": [],
    "requirements": [0]
  }
]`

// functionSpec is the loosely-typed shape the model replies with for one
// decomposed function; mapstructure decodes the parsed JSON map into this
// regardless of which numeric types encoding/json chose.
type functionSpec struct {
	Signature    string   `mapstructure:"signature"`
	Description  string   `mapstructure:"description"`
	Dependencies []string `mapstructure:"dependencies"`
	Requirements []int    `mapstructure:"requirements"`
}

// stepMeta is what Decomposer.Decompose stores (as JSON) on a Step's
// Context field so later stages can see a function's declared dependencies
// and originating requirements without reparsing the model's reply.
type stepMeta struct {
	Dependencies []string `json:"dependencies"`
	Requirements []int    `json:"requirements"`
}

// Decomposer organizes a requirement list top-down into ordered function
// steps — the inverse direction of Expander.
type Decomposer struct {
	client llm.Client
	cfg    Config
	logger *slog.Logger
}

// NewDecomposer builds a Decomposer backed by client.
func NewDecomposer(client llm.Client, cfg Config) *Decomposer {
	return &Decomposer{client: client, cfg: cfg, logger: slog.Default()}
}

// Decompose turns requirements into an ordered list of GENERATE steps.
func (d *Decomposer) Decompose(ctx context.Context, requirements []string, lang model.Language, snap *pipectx.Snapshot, useVoting bool) ([]model.Step, error) {
	prompt := buildDecomposePrompt(requirements, lang)

	if !useVoting {
		resp, err := d.client.Generate(ctx, prompt, decomposeSystemPrompt, d.cfg.Temperature, d.cfg.MaxTokensDecomp)
		if err != nil {
			return nil, fmt.Errorf("decomposer: %w", err)
		}
		steps, ok := parseFunctions(resp.Content)
		d.logParse(resp.Content, steps, ok)
		return steps, nil
	}

	step := model.NewStep(model.KindDecompose, "Decompose requirements into functions")
	gen := simpleGenerator(d.client, prompt, decomposeSystemPrompt, d.cfg.Temperature, d.cfg.MaxTokensDecomp)

	v := voter.New(d.client, d.cfg.voterConfig(), nil)
	result, err := v.Vote(ctx, step, prompt, lang, gen)
	if err != nil {
		return nil, fmt.Errorf("decomposer: vote: %w", err)
	}
	if result.Winner == nil {
		return nil, fmt.Errorf("decomposer: vote produced no winner (incomplete=%v)", result.Incomplete)
	}

	steps, ok := parseFunctions(result.Winner.Content)
	d.logParse(result.Winner.Content, steps, ok)
	return steps, nil
}

// logParse distinguishes, in the log, a parser that legitimately found zero
// functions from one that couldn't make sense of the reply at all.
func (d *Decomposer) logParse(raw string, steps []model.Step, ok bool) {
	if !ok {
		d.logger.Warn("decomposer: fallback parse failed", "raw_text_size", len(raw))
		return
	}
	if len(steps) == 0 {
		d.logger.Info("decomposer: parse produced zero functions", "raw_text_size", len(raw))
	}
}

func buildDecomposePrompt(requirements []string, lang model.Language) string {
	var reqs strings.Builder
	for i, r := range requirements {
		fmt.Fprintf(&reqs, "%d. %s\n", i, r)
	}
	return fmt.Sprintf(
		"Requirements:\n%s\nLanguage: %s\n\nDecompose these requirements into functions.\nOrder by dependencies (implement base functions first).\n\nOutput as JSON array:",
		reqs.String(), lang,
	)
}

var (
	goFuncPattern = regexp.MustCompile(`func\s+\w+\s*\([^)]*\)[^{]*`)
	pyDefPattern  = regexp.MustCompile(`(?:async\s+)?def\s+\w+\s*\([^)]*\)\s*(?:->.*?)?:`)
)

// parseFunctions extracts function steps from a model reply, trying a
// structured JSON array first and falling back to a regex scan for Go/Python
// function signatures embedded in prose. ok reports whether the reply
// parsed at all: true for a well-formed JSON array (even an empty one) or a
// fallback scan that found at least one signature; false when neither
// succeeded and the reply held text that should have parsed as something. A
// blank reply is reported as a legitimate empty result (ok=true), not a
// parse failure.
func parseFunctions(text string) ([]model.Step, bool) {
	text = strings.TrimSpace(text)

	if arr, ok := extractJSONArray(text); ok {
		var raw []map[string]any
		if err := json.Unmarshal([]byte(arr), &raw); err == nil {
			steps := make([]model.Step, 0, len(raw))
			for _, item := range raw {
				var spec functionSpec
				if err := mapstructure.Decode(item, &spec); err != nil {
					continue
				}
				meta := stepMeta{Dependencies: spec.Dependencies, Requirements: spec.Requirements}
				step := model.NewStep(model.KindGenerate, spec.Description).
					WithSignature(spec.Signature).
					WithContext(marshalContext(meta))
				steps = append(steps, step)
			}
			return steps, true
		}
	}

	var steps []model.Step
	for _, pattern := range []*regexp.Regexp{goFuncPattern, pyDefPattern} {
		for _, sig := range pattern.FindAllString(text, -1) {
			sig = strings.TrimSuffix(strings.TrimSpace(sig), ":")
			steps = append(steps, model.NewStep(model.KindGenerate, "Implement "+sig).WithSignature(sig))
		}
	}
	if len(steps) > 0 {
		return steps, true
	}
	if text == "" {
		return nil, true
	}
	return nil, false
}

// DecomposeHierarchical groups requirements by module first, then
// decomposes each module's slice into functions, returning a module name ->
// steps map. Falls back to a single "main" module if the model's reply
// doesn't parse as the expected nested JSON shape.
func (d *Decomposer) DecomposeHierarchical(ctx context.Context, requirements []string, lang model.Language) (map[string][]model.Step, error) {
	var reqs strings.Builder
	for i, r := range requirements {
		fmt.Fprintf(&reqs, "%d. %s\n", i, r)
	}

	prompt := fmt.Sprintf(`Requirements:
%s
Language: %s

1. First, group requirements by logical module
2. Then decompose each module into functions
3. Order by dependencies

Output as JSON:
{
  "module_name": [
    {"signature": "...", "description": "..."},
    ...
  ]
}`, reqs.String(), lang)

	resp, err := d.client.Generate(ctx, prompt, decomposeSystemPrompt, d.cfg.Temperature, 3000)
	if err != nil {
		return nil, fmt.Errorf("decomposer: hierarchical: %w", err)
	}

	if obj, ok := extractJSONObject(resp.Content); ok {
		var raw map[string][]map[string]any
		if err := json.Unmarshal([]byte(obj), &raw); err == nil && len(raw) > 0 {
			result := make(map[string][]model.Step, len(raw))
			for module, funcs := range raw {
				steps := make([]model.Step, 0, len(funcs))
				for _, f := range funcs {
					var spec functionSpec
					if err := mapstructure.Decode(f, &spec); err != nil {
						continue
					}
					steps = append(steps, model.NewStep(model.KindGenerate, spec.Description).WithSignature(spec.Signature))
				}
				result[module] = steps
			}
			return result, nil
		}
	}

	steps, err := d.Decompose(ctx, requirements, lang, nil, false)
	if err != nil {
		return nil, err
	}
	return map[string][]model.Step{"main": steps}, nil
}
