package tool

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeforge-dev/codeforge/pkg/model"
)

func TestParseActionWithKeyValuePairs(t *testing.T) {
	name, args := parseAction("write:path=out.go,content=package main")
	assert.Equal(t, "write", name)
	assert.Equal(t, "out.go", args["path"])
	assert.Equal(t, "package main", args["content"])
}

func TestParseActionWithBarePath(t *testing.T) {
	name, args := parseAction("read:internal/foo.go")
	assert.Equal(t, "read", name)
	assert.Equal(t, "internal/foo.go", args["path"])
}

func TestParseActionWithNoArgs(t *testing.T) {
	name, args := parseAction("ls")
	assert.Equal(t, "ls", name)
	assert.Empty(t, args)
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(ReadTool{})

	got, ok := r.Get("read")
	require.True(t, ok)
	assert.Equal(t, "read", got.Name())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistryByKind(t *testing.T) {
	r := NewDefaultRegistry()
	writers := r.ByKind(KindWrite)
	names := make([]string, 0, len(writers))
	for _, w := range writers {
		names = append(names, w.Name())
	}
	assert.Contains(t, names, "write")
	assert.Contains(t, names, "append")
}

func TestExecuteUnknownTool(t *testing.T) {
	r := NewDefaultRegistry()
	step := model.Step{Action: "bogus:foo"}
	res := Execute(context.Background(), r, step)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unknown tool")
}

func TestExecuteMissingAction(t *testing.T) {
	r := NewDefaultRegistry()
	res := Execute(context.Background(), r, model.Step{})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no action")
}

func TestReadToolRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	rt := ReadTool{}
	assert.Empty(t, rt.ValidateArgs(Args{"path": path}))
	assert.Equal(t, "missing 'path' argument", rt.ValidateArgs(Args{}))

	res := rt.Execute(context.Background(), Args{"path": path})
	assert.True(t, res.Success)
	assert.Equal(t, "hello", res.Data)
}

func TestReadToolMissingFile(t *testing.T) {
	rt := ReadTool{}
	msg := rt.ValidateArgs(Args{"path": "/does/not/exist.txt"})
	assert.Contains(t, msg, "not found")
}

func TestWriteToolCreatesDirsAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.txt")

	wt := WriteTool{}
	res := wt.Execute(context.Background(), Args{"path": path, "content": "data"})
	require.True(t, res.Success)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "data", string(content))
}

func TestWriteToolValidateArgsRequiresContent(t *testing.T) {
	wt := WriteTool{}
	assert.Contains(t, wt.ValidateArgs(Args{"path": "x.txt"}), "content")
}

func TestAppendToolAppendsToExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	require.NoError(t, os.WriteFile(path, []byte("first\n"), 0o644))

	at := AppendTool{}
	res := at.Execute(context.Background(), Args{"path": path, "content": "second\n"})
	require.True(t, res.Success)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(content))
}

func TestListDirToolListsMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte(""), 0o644))

	ld := ListDirTool{}
	res := ld.Execute(context.Background(), Args{"path": dir, "pattern": "*.go"})
	require.True(t, res.Success)
	names, ok := res.Data.([]string)
	require.True(t, ok)
	assert.Equal(t, []string{"a.go"}, names)
}

func TestGrepToolFindsMatchingLines(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.go"), []byte("package x\n\nfunc Foo() {}\n"), 0o644))

	gt := GrepTool{}
	res := gt.Execute(context.Background(), Args{"path": dir, "pattern": `func Foo`})
	require.True(t, res.Success)
	assert.Contains(t, res.Output, "found 1 matches")
}

func TestGrepToolInvalidPattern(t *testing.T) {
	gt := GrepTool{}
	msg := gt.ValidateArgs(Args{"pattern": "("})
	assert.Contains(t, msg, "invalid pattern")
}

func TestGlobToolFindsFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_test.go"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte(""), 0o644))

	gt := GlobTool{}
	res := gt.Execute(context.Background(), Args{"path": dir, "pattern": "*_test.go"})
	require.True(t, res.Success)
	matches, ok := res.Data.([]string)
	require.True(t, ok)
	assert.Len(t, matches, 1)
}

func TestFindFunctionToolLocatesDeclaration(t *testing.T) {
	dir := t.TempDir()
	src := "package x\n\nfunc Parse(s string) (string, error) {\n\treturn s, nil\n}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.go"), []byte(src), 0o644))

	ft := FindFunctionTool{}
	res := ft.Execute(context.Background(), Args{"path": dir, "name": "Parse"})
	require.True(t, res.Success)
	assert.Contains(t, res.Output, "found 1 declaration")
}

func TestFindFunctionToolNotFound(t *testing.T) {
	dir := t.TempDir()
	ft := FindFunctionTool{}
	res := ft.Execute(context.Background(), Args{"path": dir, "name": "Missing"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no declaration")
}

func TestSyntaxCheckToolValidCode(t *testing.T) {
	sc := SyntaxCheckTool{}
	res := sc.Execute(context.Background(), Args{"code": "func Foo() int {\n\treturn 1\n}"})
	assert.True(t, res.Success)
}

func TestSyntaxCheckToolInvalidCode(t *testing.T) {
	sc := SyntaxCheckTool{}
	res := sc.Execute(context.Background(), Args{"code": "func Foo( {"})
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

func TestSyntaxCheckToolRequiresCode(t *testing.T) {
	sc := SyntaxCheckTool{}
	assert.Contains(t, sc.ValidateArgs(Args{}), "missing")
}
