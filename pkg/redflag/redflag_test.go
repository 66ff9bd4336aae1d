package redflag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeforge-dev/codeforge/pkg/model"
)

// TestCheckIsIdempotent is spec.md §8's red-flag idempotence invariant:
// running the filter twice on the same candidate yields the same verdict.
func TestCheckIsIdempotent(t *testing.T) {
	f := New(DefaultConfig())
	c := model.NewCandidate("func Add(a, b int) int {\n\treturn a + b\n}", 20)

	first := f.Check(c, model.LanguageGo)
	second := f.Check(c, model.LanguageGo)

	assert.Equal(t, first, second)
}

func TestCheckRejectsOverLongResponse(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTokensResponse = 5
	f := New(cfg)
	c := model.NewCandidate("func Add(a, b int) int {\n\treturn a + b\n}", 50)

	result := f.Check(c, model.LanguageGo)

	assert.False(t, result.Passed)
	assert.Contains(t, result.Reason, "too long")
	assert.False(t, result.Checks["length"])
}

func TestCheckRejectsEmptyContent(t *testing.T) {
	f := New(DefaultConfig())
	c := model.NewCandidate("", 0)

	result := f.Check(c, model.LanguageGo)

	assert.False(t, result.Passed)
	assert.Equal(t, "empty code", result.Reason)
}

func TestCheckRejectsExplanationProse(t *testing.T) {
	f := New(DefaultConfig())
	c := model.NewCandidate("Here's the function you asked for, it adds two numbers together", 30)

	result := f.Check(c, model.LanguageGo)

	assert.False(t, result.Passed)
	assert.Contains(t, result.Reason, "explanation")
}

func TestCheckRejectsInvalidGoSyntax(t *testing.T) {
	f := New(DefaultConfig())
	c := model.NewCandidate("func Broken( {\n", 10)

	result := f.Check(c, model.LanguageGo)

	assert.False(t, result.Passed)
	assert.Contains(t, result.Reason, "syntax")
}

func TestCheckAcceptsValidGoFunctionBody(t *testing.T) {
	f := New(DefaultConfig())
	c := model.NewCandidate("func Add(a, b int) int {\n\treturn a + b\n}", 20)

	result := f.Check(c, model.LanguageGo)

	assert.True(t, result.Passed)
	assert.Empty(t, result.Reason)
}

func TestCheckFallsBackToBracketBalanceForNonGoLanguages(t *testing.T) {
	f := New(DefaultConfig())
	valid := model.NewCandidate("def add(a, b):\n    return (a + b)", 20)
	unbalanced := model.NewCandidate("def add(a, b):\n    return (a + b", 20)

	assert.True(t, f.Check(valid, model.LanguagePython).Passed)

	result := f.Check(unbalanced, model.LanguagePython)
	assert.False(t, result.Passed)
	assert.Contains(t, result.Reason, "bracket")
}

func TestCheckAndRejectMarksCandidateInvalid(t *testing.T) {
	f := New(DefaultConfig())
	c := model.NewCandidate("", 0)

	result := f.CheckAndReject(c, model.LanguageGo)

	require.False(t, result.Passed)
	assert.False(t, c.Valid)
	assert.Equal(t, result.Reason, c.RejectReason)
}

func TestDisabledChecksAreSkipped(t *testing.T) {
	cfg := Config{EnableLengthCheck: false, EnableFormatCheck: false, EnableSyntaxCheck: false}
	f := New(cfg)
	c := model.NewCandidate("", 999999)

	result := f.Check(c, model.LanguageGo)

	assert.True(t, result.Passed)
	assert.Empty(t, result.Checks)
}

func TestQuickCheckApproximatesTokensFromLength(t *testing.T) {
	assert.True(t, QuickCheck("func Add(a, b int) int { return a + b }", model.LanguageGo, 2000))
	assert.False(t, QuickCheck("", model.LanguageGo, 2000))
}
