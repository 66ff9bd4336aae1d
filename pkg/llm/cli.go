package llm

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"
)

// CLIClient drives a local headless coding-assistant CLI as the generation
// backend. It trades API cost for wall-clock latency and is the adapter
// CodeForge ships by default — no vendor SDK or API key is required.
type CLIClient struct {
	// Command is the executable to invoke, e.g. "claude". Overridable so
	// tests can point at a stub binary.
	Command string
	// PrintFlag is the flag that puts the CLI into non-interactive,
	// print-one-reply-and-exit mode.
	PrintFlag string
	// WorkDir is the directory the subprocess runs in. Using a neutral
	// directory (not the repository) avoids the CLI picking up unrelated
	// project instructions.
	WorkDir string
	Timeout time.Duration

	calls atomic.Int64
}

// NewCLIClient builds a CLIClient with CodeForge's defaults.
func NewCLIClient(command, workDir string) *CLIClient {
	return &CLIClient{
		Command:   command,
		PrintFlag: "--print",
		WorkDir:   workDir,
		Timeout:   120 * time.Second,
	}
}

// CallCount reports how many subprocess invocations have been made so far.
func (c *CLIClient) CallCount() int64 {
	return c.calls.Load()
}

func (c *CLIClient) Generate(ctx context.Context, prompt, system string, temperature float64, maxTokens int) (Response, error) {
	c.calls.Add(1)

	full := prompt
	if system != "" {
		full = system + "\n\n" + prompt
	}

	out, err := c.run(ctx, full)
	if err != nil {
		return Response{}, fmt.Errorf("llm cli: %w", err)
	}

	return Response{
		Content:      out,
		InputTokens:  (len(prompt) + len(system)) / 4,
		OutputTokens: len(out) / 4,
		Model:        c.Command,
		StopReason:   "end_turn",
	}, nil
}

func (c *CLIClient) CompareSemantic(ctx context.Context, codeA, codeB, taskContext string) (bool, error) {
	a := oneLine(codeA)
	b := oneLine(codeB)
	prompt := fmt.Sprintf(
		"Context: %s\n\nCode A:\n```\n%s\n```\n\nCode B:\n```\n%s\n```\n\nAre these two codes semantically equivalent? (YES/NO)",
		taskContext, a, b,
	)

	resp, err := c.Generate(ctx, prompt, compareSemanticSystemPrompt, 0.0, 10)
	if err != nil {
		return false, err
	}

	answer := strings.ToUpper(strings.TrimSpace(resp.Content))
	return answer == "YES", nil
}

func oneLine(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}

func (c *CLIClient) run(ctx context.Context, fullPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Command, c.PrintFlag, fullPrompt)
	cmd.Dir = c.WorkDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("timed out after %s", c.Timeout)
		}
		return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return strings.TrimSpace(stdout.String()), nil
}
