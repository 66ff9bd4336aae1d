// Package pipectx holds the orchestrator's mutable run state and the
// immutable snapshots handed to decision primitives.
//
// OWNERSHIP MODEL (mirrors kadirpekel-hector/pkg/reasoning's ReasoningState):
//   - The orchestrator exclusively owns Context and is the only writer.
//   - Decision primitives and the voter receive a Snapshot, a deep copy
//     taken at the moment a decision starts. They must not retain it past
//     the call, and nothing they do can mutate the orchestrator's Context.
package pipectx

import (
	"fmt"
	"strings"
	"sync"

	"github.com/codeforge-dev/codeforge/pkg/model"
)

// Context is the orchestrator's running state for one task.
type Context struct {
	mu sync.RWMutex

	task             string
	language         model.Language
	requirements     []string
	functions        []model.Step
	generatedCode    map[string]string
	executionResults []model.ExecutionEntry
	currentStep      *model.Step
	history          []model.Step
	complete         bool
}

// New creates a fresh Context for a task.
func New(task string, language model.Language) *Context {
	return &Context{
		task:          task,
		language:      language,
		generatedCode: make(map[string]string),
	}
}

// Task returns the original task text.
func (c *Context) Task() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.task
}

// Language returns the target language.
func (c *Context) Language() model.Language {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.language
}

// AddRequirement appends a requirement, de-duplicating on insert.
func (c *Context) AddRequirement(req string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.requirements {
		if r == req {
			return
		}
	}
	c.requirements = append(c.requirements, req)
}

// AddFunction appends a planned function step.
func (c *Context) AddFunction(step model.Step) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.functions = append(c.functions, step)
}

// AddCode records generated code for a step and appends it to history.
func (c *Context) AddCode(step model.Step, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generatedCode[step.ID] = code
	c.history = append(c.history, step)
}

// AddResult records an execution result and appends it to history.
func (c *Context) AddResult(step model.Step, result model.ExecutionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.executionResults = append(c.executionResults, model.ExecutionEntry{Step: step, Result: result})
	c.history = append(c.history, step)
}

// SetCurrentStep records the step currently being worked on.
func (c *Context) SetCurrentStep(step *model.Step) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentStep = step
}

// MarkComplete flags the task as finished.
func (c *Context) MarkComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.complete = true
}

// IsComplete reports whether the task has been marked finished.
func (c *Context) IsComplete() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.complete
}

// Requirements returns a copy of the requirement list.
func (c *Context) Requirements() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.requirements))
	copy(out, c.requirements)
	return out
}

// Functions returns a copy of the planned function steps.
func (c *Context) Functions() []model.Step {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Step, len(c.functions))
	copy(out, c.functions)
	return out
}

// GeneratedCode returns a copy of the step-id -> code map.
func (c *Context) GeneratedCode() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.generatedCode))
	for k, v := range c.generatedCode {
		out[k] = v
	}
	return out
}

// FinalResult returns the final generated code, equivalent to GeneratedCode
// but named to match the point at which the pipeline is done.
func (c *Context) FinalResult() map[string]string {
	return c.GeneratedCode()
}

// Snapshot takes a deep, defensive copy of the current context for handing
// to a decision primitive or the voter. The snapshot never changes after
// construction.
func (c *Context) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	reqs := make([]string, len(c.requirements))
	copy(reqs, c.requirements)

	funcs := make([]model.Step, len(c.functions))
	copy(funcs, c.functions)

	code := make(map[string]string, len(c.generatedCode))
	for k, v := range c.generatedCode {
		code[k] = v
	}

	results := make([]model.ExecutionEntry, len(c.executionResults))
	copy(results, c.executionResults)

	var current *model.Step
	if c.currentStep != nil {
		cp := *c.currentStep
		current = &cp
	}

	return &Snapshot{
		Task:             c.task,
		Requirements:     reqs,
		Functions:        funcs,
		GeneratedCode:    code,
		ExecutionResults: results,
		CurrentStep:      current,
	}
}

// Snapshot is an immutable, defensively-copied view of a Context. It is what
// the voter's prompts refer to; callers must never mutate it and must not
// retain it past the decision it was constructed for.
type Snapshot struct {
	Task             string
	Requirements     []string
	Functions        []model.Step
	GeneratedCode    map[string]string
	ExecutionResults []model.ExecutionEntry
	CurrentStep      *model.Step
}

// ToPromptContext renders the snapshot as text suitable for inclusion in an
// LLM prompt.
func (s *Snapshot) ToPromptContext() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Task: %s\n\n", s.Task)

	if len(s.Requirements) > 0 {
		b.WriteString("## Requirements:\n")
		for i, r := range s.Requirements {
			fmt.Fprintf(&b, "%d. %s\n", i+1, r)
		}
		b.WriteString("\n")
	}

	if len(s.Functions) > 0 {
		b.WriteString("## Functions to implement:\n")
		for _, fn := range s.Functions {
			fmt.Fprintf(&b, "- %s: %s\n", fn.Signature, fn.Description)
		}
		b.WriteString("\n")
	}

	if len(s.GeneratedCode) > 0 {
		b.WriteString("## Generated code so far:\n")
		for id, code := range s.GeneratedCode {
			fmt.Fprintf(&b, "### %s\n```\n%s\n```\n", id, code)
		}
		b.WriteString("\n")
	}

	if n := len(s.ExecutionResults); n > 0 {
		b.WriteString("## Execution results:\n")
		start := 0
		if n > 5 {
			start = n - 5
		}
		for _, entry := range s.ExecutionResults[start:] {
			status := "OK"
			if !entry.Result.Success {
				status = "FAIL"
			}
			fmt.Fprintf(&b, "- [%s] %s\n", status, entry.Step.Description)
			if entry.Result.Output != "" {
				out := entry.Result.Output
				if len(out) > 200 {
					out = out[:200] + "..."
				}
				fmt.Fprintf(&b, "  Output: %s\n", out)
			}
		}
		b.WriteString("\n")
	}

	return b.String()
}
