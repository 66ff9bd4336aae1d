package tool

import (
	"bytes"
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"os/exec"
	"strings"

	"github.com/codeforge-dev/codeforge/pkg/model"
)

// GoTestTool runs `go test` against a package path, the Go analog of
// shelling out to pytest.
type GoTestTool struct{}

func (GoTestTool) Name() string { return "go_test" }
func (GoTestTool) Kind() Kind   { return KindTest }

func (GoTestTool) ValidateArgs(args Args) string {
	if args["path"] == "" {
		return "missing 'path' argument"
	}
	return ""
}

func (GoTestTool) Execute(ctx context.Context, args Args) model.ExecutionResult {
	target := args["path"]
	run := args["run"]

	cmdArgs := []string{"test", target, "-v"}
	if run != "" {
		cmdArgs = append(cmdArgs, "-run", run)
	}

	cmd := exec.CommandContext(ctx, "go", cmdArgs...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()

	output := out.String()
	passed := err == nil

	return model.ExecutionResult{
		Success: passed,
		Output:  output,
		Error:   testFailureSummary(err, output),
		Data: map[string]any{
			"passed": passed,
			"target": target,
		},
	}
}

func testFailureSummary(err error, output string) string {
	if err == nil {
		return ""
	}
	if strings.Contains(output, "FAIL") {
		return "one or more tests failed, see output"
	}
	return fmt.Sprintf("go test exited with error: %v", err)
}

// SyntaxCheckTool parses a snippet of Go source in-process, without
// invoking the toolchain, to check it is well-formed.
type SyntaxCheckTool struct{}

func (SyntaxCheckTool) Name() string { return "syntax_check" }
func (SyntaxCheckTool) Kind() Kind   { return KindTest }

func (SyntaxCheckTool) ValidateArgs(args Args) string {
	if args["code"] == "" {
		return "missing 'code' argument"
	}
	return ""
}

func (SyntaxCheckTool) Execute(ctx context.Context, args Args) model.ExecutionResult {
	code := args["code"]
	source := code
	if !strings.Contains(source, "package ") {
		source = "package scratch\n\n" + source
	}

	fset := token.NewFileSet()
	_, err := parser.ParseFile(fset, "scratch.go", source, parser.AllErrors)
	if err != nil {
		return model.ExecutionResult{
			Success: false,
			Output:  "syntax check failed",
			Error:   err.Error(),
		}
	}

	return model.ExecutionResult{Success: true, Output: "syntax OK"}
}

// GoVetTool runs `go vet` against a package path to catch suspicious
// constructs that parse fine but are likely wrong.
type GoVetTool struct{}

func (GoVetTool) Name() string { return "go_vet" }
func (GoVetTool) Kind() Kind   { return KindTest }

func (GoVetTool) ValidateArgs(args Args) string {
	if args["path"] == "" {
		return "missing 'path' argument"
	}
	return ""
}

func (GoVetTool) Execute(ctx context.Context, args Args) model.ExecutionResult {
	target := args["path"]

	cmd := exec.CommandContext(ctx, "go", "vet", target)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()

	output := out.String()
	if err != nil {
		return model.ExecutionResult{
			Success: false,
			Output:  output,
			Error:   fmt.Sprintf("go vet reported issues for %s", target),
		}
	}

	return model.ExecutionResult{Success: true, Output: fmt.Sprintf("go vet clean for %s", target)}
}
