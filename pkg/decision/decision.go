// Package decision implements the voted decision primitives that sit above
// the voter: expanding a task into atomic requirements, decomposing
// requirements into function steps, generating code for a step, validating
// generated code, and deciding what the orchestrator should do next.
//
// Each primitive can run single-shot or through the voter; single-shot is
// the iterative-refinement and hierarchical-decomposition fast path where
// a full voting session would be overkill.
package decision

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/codeforge-dev/codeforge/pkg/llm"
	"github.com/codeforge-dev/codeforge/pkg/model"
	"github.com/codeforge-dev/codeforge/pkg/pipectx"
	"github.com/codeforge-dev/codeforge/pkg/redflag"
	"github.com/codeforge-dev/codeforge/pkg/voter"
)

// Config carries the sampling knobs shared by every decision primitive, plus
// the red-flag filter and timeout settings every voted primitive forwards
// to the voter it builds.
type Config struct {
	Temperature       float64
	K                 int
	MaxSamples        int
	MaxTokensExpand   int
	MaxTokensDecomp   int
	MaxTokensGenerate int
	MaxTokensValidate int

	// MaxTokensResponse is the red-flag length ceiling (a candidate whose
	// output exceeds it is rejected before semantic classification).
	MaxTokensResponse int
	// EnableLengthCheck, EnableFormatCheck, EnableSyntaxCheck toggle the
	// red-flag filter's individual checks.
	EnableLengthCheck bool
	EnableFormatCheck bool
	EnableSyntaxCheck bool

	// VoteTimeoutSeconds bounds a whole voting session; ExecutionTimeoutSeconds
	// bounds a single Tool capability dispatch (e.g. the validator's static
	// syntax-check pass).
	VoteTimeoutSeconds      int
	ExecutionTimeoutSeconds int
}

// DefaultConfig matches the voting defaults and the original token caps per
// primitive (1000 for expand, 2000 for decompose, 2000 for generate, 500
// for validate), plus the spec's documented red-flag
// and timeout defaults.
func DefaultConfig() Config {
	return Config{
		Temperature:       0.7,
		K:                 3,
		MaxSamples:        20,
		MaxTokensExpand:   1000,
		MaxTokensDecomp:   2000,
		MaxTokensGenerate: 2000,
		MaxTokensValidate: 500,

		MaxTokensResponse: 500,
		EnableLengthCheck: true,
		EnableFormatCheck: true,
		EnableSyntaxCheck: true,

		VoteTimeoutSeconds:      60,
		ExecutionTimeoutSeconds: 30,
	}
}

func (c Config) voterConfig() voter.Config {
	return voter.Config{
		K:          c.K,
		MaxSamples: c.MaxSamples,
		BatchSize:  3,
		RedFlag: redflag.Config{
			EnableLengthCheck: c.EnableLengthCheck,
			EnableFormatCheck: c.EnableFormatCheck,
			EnableSyntaxCheck: c.EnableSyntaxCheck,
			MaxTokensResponse: c.MaxTokensResponse,
		},
		VoteTimeoutSeconds: c.VoteTimeoutSeconds,
	}
}

// snapshotContext renders a pipectx.Snapshot to prompt text, or the empty
// string when no snapshot is supplied.
func snapshotContext(snap *pipectx.Snapshot) string {
	if snap == nil {
		return ""
	}
	return snap.ToPromptContext()
}

var jsonArrayPattern = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
var jsonObjectPattern = regexp.MustCompile(`(?s)\{[\s\S]*\}`)

func extractJSONArray(text string) (string, bool) {
	m := jsonArrayPattern.FindString(text)
	return m, m != ""
}

func extractJSONObject(text string) (string, bool) {
	m := jsonObjectPattern.FindString(text)
	return m, m != ""
}

// simpleGenerator adapts a fixed (prompt, system) pair into a voter.Generator
// that ignores the step/context arguments voting passes it — every
// primitive's voted call resamples the same prompt, it's the LLM's
// temperature that produces different candidates.
func simpleGenerator(client llm.Client, prompt, system string, temperature float64, maxTokens int) voter.Generator {
	return func(ctx context.Context, _ model.Step, _ string) (llm.Response, error) {
		return client.Generate(ctx, prompt, system, temperature, maxTokens)
	}
}

func cleanMarkdownFence(code string) string {
	code = strings.TrimSpace(code)
	code = strings.TrimPrefix(code, "```go")
	code = strings.TrimPrefix(code, "```python")
	code = strings.TrimPrefix(code, "```typescript")
	code = strings.TrimPrefix(code, "```javascript")
	code = strings.TrimPrefix(code, "```")
	code = strings.TrimSuffix(code, "```")
	return strings.TrimSpace(code)
}

// marshalContext is a small helper decomposer/expander use to stash
// structured dependency/requirement metadata on a Step's Context field.
func marshalContext(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
