package tool

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/codeforge-dev/codeforge/pkg/model"
)

// GrepTool searches files under a root path for lines matching a regular
// expression.
type GrepTool struct{}

func (GrepTool) Name() string { return "grep" }
func (GrepTool) Kind() Kind   { return KindSearch }

func (GrepTool) ValidateArgs(args Args) string {
	if args["pattern"] == "" {
		return "missing 'pattern' argument"
	}
	if _, err := regexp.Compile(args["pattern"]); err != nil {
		return fmt.Sprintf("invalid pattern: %v", err)
	}
	return ""
}

func (GrepTool) Execute(ctx context.Context, args Args) model.ExecutionResult {
	root := args["path"]
	if root == "" {
		root = "."
	}
	glob := args["glob"]
	if glob == "" {
		glob = "*.go"
	}

	re, err := regexp.Compile(args["pattern"])
	if err != nil {
		return model.ExecutionResult{Success: false, Error: fmt.Sprintf("invalid pattern: %v", err)}
	}

	type hit struct {
		File string `json:"file"`
		Line int    `json:"line"`
		Text string `json:"text"`
	}
	var hits []hit

	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		matched, err := filepath.Match(glob, d.Name())
		if err != nil || !matched {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if re.MatchString(scanner.Text()) {
				hits = append(hits, hit{File: path, Line: lineNo, Text: strings.TrimSpace(scanner.Text())})
			}
		}
		return nil
	})
	if walkErr != nil {
		return model.ExecutionResult{Success: false, Error: fmt.Sprintf("grep failed: %v", walkErr)}
	}

	return model.ExecutionResult{
		Success: true,
		Output:  fmt.Sprintf("found %d matches for %q under %s", len(hits), args["pattern"], root),
		Data:    hits,
	}
}

// GlobTool lists files matching a glob pattern, recursively under a root.
type GlobTool struct{}

func (GlobTool) Name() string { return "glob" }
func (GlobTool) Kind() Kind   { return KindSearch }

func (GlobTool) ValidateArgs(args Args) string {
	if args["pattern"] == "" {
		return "missing 'pattern' argument"
	}
	return ""
}

func (GlobTool) Execute(ctx context.Context, args Args) model.ExecutionResult {
	root := args["path"]
	if root == "" {
		root = "."
	}
	pattern := args["pattern"]

	var matches []string
	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		ok, err := filepath.Match(pattern, d.Name())
		if err == nil && ok {
			matches = append(matches, path)
		}
		return nil
	})
	if walkErr != nil {
		return model.ExecutionResult{Success: false, Error: fmt.Sprintf("glob failed: %v", walkErr)}
	}

	return model.ExecutionResult{
		Success: true,
		Output:  fmt.Sprintf("found %d files matching %q", len(matches), pattern),
		Data:    matches,
	}
}

// FindFunctionTool locates the declaration of a named function or type across
// a tree of Go source files.
type FindFunctionTool struct{}

func (FindFunctionTool) Name() string { return "find_function" }
func (FindFunctionTool) Kind() Kind   { return KindSearch }

func (FindFunctionTool) ValidateArgs(args Args) string {
	if args["name"] == "" {
		return "missing 'name' argument"
	}
	return ""
}

func (FindFunctionTool) Execute(ctx context.Context, args Args) model.ExecutionResult {
	root := args["path"]
	if root == "" {
		root = "."
	}
	name := regexp.QuoteMeta(args["name"])
	re := regexp.MustCompile(fmt.Sprintf(`^\s*func\s+(?:\([^)]*\)\s*)?%s\s*\(|^\s*type\s+%s\s+(?:struct|interface)\b`, name, name))

	type decl struct {
		File string `json:"file"`
		Line int    `json:"line"`
		Text string `json:"text"`
	}
	var found []decl

	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".go") {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if re.MatchString(scanner.Text()) {
				found = append(found, decl{File: path, Line: lineNo, Text: strings.TrimSpace(scanner.Text())})
			}
		}
		return nil
	})
	if walkErr != nil {
		return model.ExecutionResult{Success: false, Error: fmt.Sprintf("find_function failed: %v", walkErr)}
	}

	if len(found) == 0 {
		return model.ExecutionResult{Success: false, Error: fmt.Sprintf("no declaration of %s found under %s", args["name"], root)}
	}

	return model.ExecutionResult{
		Success: true,
		Output:  fmt.Sprintf("found %d declaration(s) of %s", len(found), args["name"]),
		Data:    found,
	}
}
