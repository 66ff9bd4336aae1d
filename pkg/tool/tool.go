// Package tool provides the deterministic, non-LLM capability layer the
// orchestrator's Decide step can dispatch into: reading, writing, searching
// files, and running Go's own toolchain against generated code. None of
// these operations involve a model call or voting.
package tool

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/codeforge-dev/codeforge/pkg/model"
)

// Kind classifies what a Tool does, for grouping and dispatch.
type Kind string

const (
	KindRead   Kind = "read"
	KindWrite  Kind = "write"
	KindSearch Kind = "search"
	KindTest   Kind = "test"
)

// Args is the argument bag passed to a Tool's Execute. Concrete tools
// document the keys they read.
type Args map[string]string

// Tool is one deterministic capability the orchestrator can dispatch a Step
// into.
type Tool interface {
	Name() string
	Kind() Kind
	// ValidateArgs returns a non-empty error message if args is missing
	// something Execute requires. Returning "" means args are acceptable.
	ValidateArgs(args Args) string
	Execute(ctx context.Context, args Args) model.ExecutionResult
}

// Registry holds every tool available to the orchestrator, keyed by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds tool to the registry, keyed by its Name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool's name.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	return out
}

// ByKind returns every registered tool of the given kind.
func (r *Registry) ByKind(kind Kind) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Tool
	for _, t := range r.tools {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

// NewDefaultRegistry builds a Registry with every built-in tool registered.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(ReadTool{})
	r.Register(WriteTool{})
	r.Register(AppendTool{})
	r.Register(ListDirTool{})
	r.Register(GrepTool{})
	r.Register(GlobTool{})
	r.Register(FindFunctionTool{})
	r.Register(GoTestTool{})
	r.Register(SyntaxCheckTool{})
	r.Register(GoVetTool{})
	return r
}

// Execute dispatches step into the named tool, parsing its Action field the
// same way the orchestrator's decider names a next move: "tool_name:k1=v1,
// k2=v2" or "tool_name:path" as a bare-path shorthand.
func Execute(ctx context.Context, reg *Registry, step model.Step) model.ExecutionResult {
	if step.Action == "" {
		return model.ExecutionResult{Success: false, Error: "step has no action specified"}
	}

	name, args := parseAction(step.Action)

	t, ok := reg.Get(name)
	if !ok {
		return model.ExecutionResult{Success: false, Error: fmt.Sprintf("unknown tool: %s", name)}
	}

	if msg := t.ValidateArgs(args); msg != "" {
		return model.ExecutionResult{Success: false, Error: msg}
	}

	return t.Execute(ctx, args)
}

// parseAction splits a "name:k1=v1,k2=v2" or "name:bare-path" action string
// into a tool name and its argument bag.
func parseAction(action string) (string, Args) {
	name, rest, hasArgs := strings.Cut(action, ":")
	args := Args{}
	if !hasArgs || rest == "" {
		return name, args
	}

	if strings.Contains(rest, "=") {
		for _, pair := range strings.Split(rest, ",") {
			key, val, ok := strings.Cut(pair, "=")
			if !ok {
				continue
			}
			args[strings.TrimSpace(key)] = strings.TrimSpace(val)
		}
		return name, args
	}

	args["path"] = rest
	return name, args
}
