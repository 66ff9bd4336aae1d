package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/codeforge-dev/codeforge/pkg/model"
)

// ReadTool reads a file's full content.
type ReadTool struct{}

func (ReadTool) Name() string { return "read" }
func (ReadTool) Kind() Kind   { return KindRead }

func (ReadTool) ValidateArgs(args Args) string {
	path := args["path"]
	if path == "" {
		return "missing 'path' argument"
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Sprintf("file not found: %s", path)
	}
	return ""
}

func (ReadTool) Execute(ctx context.Context, args Args) model.ExecutionResult {
	path := args["path"]
	content, err := os.ReadFile(path)
	if err != nil {
		return model.ExecutionResult{Success: false, Error: fmt.Sprintf("failed to read %s: %v", path, err)}
	}
	return model.ExecutionResult{
		Success: true,
		Output:  fmt.Sprintf("read %d bytes from %s", len(content), path),
		Data:    string(content),
	}
}

// WriteTool overwrites a file's content, creating parent directories unless
// create_dirs is explicitly "false".
type WriteTool struct{}

func (WriteTool) Name() string { return "write" }
func (WriteTool) Kind() Kind   { return KindWrite }

func (WriteTool) ValidateArgs(args Args) string {
	if _, ok := args["path"]; !ok {
		return "missing 'path' argument"
	}
	if _, ok := args["content"]; !ok {
		return "missing 'content' argument"
	}
	return ""
}

func (WriteTool) Execute(ctx context.Context, args Args) model.ExecutionResult {
	path := args["path"]
	content := args["content"]

	if args["create_dirs"] != "false" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return model.ExecutionResult{Success: false, Error: fmt.Sprintf("failed to write %s: %v", path, err)}
		}
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return model.ExecutionResult{Success: false, Error: fmt.Sprintf("failed to write %s: %v", path, err)}
	}

	return model.ExecutionResult{
		Success: true,
		Output:  fmt.Sprintf("wrote %d bytes to %s", len(content), path),
		Data:    map[string]any{"path": path, "bytes": len(content)},
	}
}

// AppendTool appends content to the end of a file.
type AppendTool struct{}

func (AppendTool) Name() string { return "append" }
func (AppendTool) Kind() Kind   { return KindWrite }

func (AppendTool) ValidateArgs(args Args) string {
	if _, ok := args["path"]; !ok {
		return "missing 'path' argument"
	}
	if _, ok := args["content"]; !ok {
		return "missing 'content' argument"
	}
	return ""
}

func (AppendTool) Execute(ctx context.Context, args Args) model.ExecutionResult {
	path := args["path"]
	content := args["content"]

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return model.ExecutionResult{Success: false, Error: fmt.Sprintf("failed to append to %s: %v", path, err)}
	}
	defer f.Close()

	if _, err := f.WriteString(content); err != nil {
		return model.ExecutionResult{Success: false, Error: fmt.Sprintf("failed to append to %s: %v", path, err)}
	}

	return model.ExecutionResult{Success: true, Output: fmt.Sprintf("appended %d bytes to %s", len(content), path)}
}

// ListDirTool lists directory entries matching a glob pattern.
type ListDirTool struct{}

func (ListDirTool) Name() string { return "ls" }
func (ListDirTool) Kind() Kind   { return KindRead }

func (ListDirTool) ValidateArgs(Args) string { return "" }

func (ListDirTool) Execute(ctx context.Context, args Args) model.ExecutionResult {
	path := args["path"]
	if path == "" {
		path = "."
	}
	pattern := args["pattern"]
	if pattern == "" {
		pattern = "*"
	}

	if _, err := os.Stat(path); err != nil {
		return model.ExecutionResult{Success: false, Error: fmt.Sprintf("path not found: %s", path)}
	}

	matches, err := filepath.Glob(filepath.Join(path, pattern))
	if err != nil {
		return model.ExecutionResult{Success: false, Error: fmt.Sprintf("failed to list %s: %v", path, err)}
	}

	names := make([]string, 0, len(matches))
	for _, m := range matches {
		rel, err := filepath.Rel(path, m)
		if err != nil {
			rel = m
		}
		names = append(names, rel)
	}

	return model.ExecutionResult{
		Success: true,
		Output:  fmt.Sprintf("found %d items in %s", len(names), path),
		Data:    names,
	}
}
