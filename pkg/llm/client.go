// Package llm defines the generation/comparison capability the rest of
// CodeForge depends on, plus a subprocess-backed adapter that drives a local
// CLI coding assistant in headless mode instead of calling a vendor HTTP API
// directly.
package llm

import "context"

// Response is one LLM reply together with the usage it consumed.
type Response struct {
	Content      string
	InputTokens  int
	OutputTokens int
	Model        string
	StopReason   string
}

// TotalTokens returns the combined input and output token count.
func (r Response) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// Client is the capability every decision primitive and the discriminator
// generate against. Implementations must be safe for concurrent use — the
// voter calls Generate from multiple goroutines in parallel mode.
type Client interface {
	// Generate produces one completion for prompt, with an optional system
	// prompt and sampling temperature.
	Generate(ctx context.Context, prompt, system string, temperature float64, maxTokens int) (Response, error)

	// CompareSemantic asks whether two code snippets are behaviourally
	// equivalent given the surrounding task context.
	CompareSemantic(ctx context.Context, codeA, codeB, taskContext string) (bool, error)
}

// GenerateCodeSystemPrompt is the system prompt used for plain code
// generation requests (as opposed to decompose/expand's structured-JSON
// prompts, which supply their own).
func GenerateCodeSystemPrompt(language string) string {
	return "You are an expert " + language + " developer.\n" +
		"Generate ONLY the code requested, no explanations.\n" +
		"Output clean, well-formatted code that follows best practices."
}

const compareSemanticSystemPrompt = `You are a code analysis expert.
Determine if two code snippets are SEMANTICALLY EQUIVALENT.
They are equivalent if they produce the same output for all valid inputs.
Minor differences in formatting, variable names, or implementation details
do not matter - only the behavior matters.
Answer ONLY "YES" or "NO".`
