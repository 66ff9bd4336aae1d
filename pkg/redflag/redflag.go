// Package redflag implements the cheap quality filters that run on every
// sampled candidate before it reaches the discriminator: a length check, a
// format check that rejects prose instead of code, and a syntax check.
//
// For Go, the syntax check uses go/parser directly. For the other languages
// CodeForge can target there is no equivalent low-cost parser available in
// the corpus, so the check degrades to a quote-aware bracket-balance scan —
// the same approach the original implementation uses for TypeScript.
package redflag

import (
	"fmt"
	"go/parser"
	"go/token"
	"regexp"
	"strings"

	"github.com/codeforge-dev/codeforge/pkg/model"
)

// Config controls which checks run and their thresholds.
type Config struct {
	EnableLengthCheck bool
	EnableFormatCheck bool
	EnableSyntaxCheck bool
	MaxTokensResponse int
}

// DefaultConfig returns the filter configuration CodeForge runs with unless
// overridden.
func DefaultConfig() Config {
	return Config{
		EnableLengthCheck: true,
		EnableFormatCheck: true,
		EnableSyntaxCheck: true,
		MaxTokensResponse: 500,
	}
}

// Result is the outcome of running a candidate through the filter.
type Result struct {
	Passed bool
	Reason string
	Checks map[string]bool
}

// Filter applies the configured checks to candidates.
type Filter struct {
	cfg Config
}

// New builds a Filter with the given configuration.
func New(cfg Config) *Filter {
	return &Filter{cfg: cfg}
}

var explanationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^Here'?s?\s+(the|a|an)\s+`),
	regexp.MustCompile(`(?i)^I'?ll\s+`),
	regexp.MustCompile(`(?i)^This\s+(function|code|implementation)`),
	regexp.MustCompile(`(?i)^The\s+following`),
}

var codeFence = regexp.MustCompile("(?s)```(?:go|python|typescript|javascript|js|ts)?\\n?(.*?)```")

// Check runs every enabled check in order and returns at the first failure,
// matching the short-circuit behaviour of the original filter.
func (f *Filter) Check(c *model.Candidate, lang model.Language) Result {
	checks := make(map[string]bool)

	if f.cfg.EnableLengthCheck {
		ok := c.OutputTokens <= f.cfg.MaxTokensResponse
		checks["length"] = ok
		if !ok {
			return Result{
				Passed: false,
				Reason: fmt.Sprintf("response too long (%d tokens > %d)", c.OutputTokens, f.cfg.MaxTokensResponse),
				Checks: checks,
			}
		}
	}

	if f.cfg.EnableFormatCheck {
		ok, reason := f.checkFormat(c.Content)
		checks["format"] = ok
		if !ok {
			return Result{Passed: false, Reason: reason, Checks: checks}
		}
	}

	if f.cfg.EnableSyntaxCheck {
		ok, reason := f.checkSyntax(c.Content, lang)
		checks["syntax"] = ok
		if !ok {
			return Result{Passed: false, Reason: reason, Checks: checks}
		}
	}

	return Result{Passed: true, Checks: checks}
}

// CheckAndReject runs Check and, on failure, marks the candidate invalid
// with the returned reason.
func (f *Filter) CheckAndReject(c *model.Candidate, lang model.Language) Result {
	res := f.Check(c, lang)
	if !res.Passed {
		c.Reject(res.Reason)
	}
	return res
}

func (f *Filter) checkFormat(content string) (bool, string) {
	code := strings.TrimSpace(content)

	if code == "" {
		return false, "empty code"
	}
	if len(code) < 10 {
		return false, "code too short"
	}

	for _, pattern := range explanationPatterns {
		if pattern.MatchString(code) {
			return false, "contains explanation instead of code"
		}
	}

	return true, ""
}

func (f *Filter) checkSyntax(content string, lang model.Language) (bool, string) {
	code := extractCode(content)

	switch lang {
	case model.LanguageGo:
		return checkGoSyntax(code)
	default:
		return checkBracketBalance(code)
	}
}

// extractCode pulls the body out of a fenced markdown code block if present,
// otherwise returns the trimmed text as-is.
func extractCode(text string) string {
	if m := codeFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

func checkGoSyntax(code string) (bool, string) {
	// Function bodies and snippets are not valid top-level Go files. Wrap in
	// a throwaway package/func so go/parser can still validate statement and
	// expression syntax without requiring a complete declaration.
	src := "package redflagcheck\nfunc redflagCheckWrapper() {\n" + code + "\n}\n"

	fset := token.NewFileSet()
	if _, err := parser.ParseFile(fset, "", src, parser.AllErrors); err == nil {
		return true, ""
	}

	// The snippet might already be one or more complete declarations
	// (a full function, a type, etc); try parsing it at top level too.
	src = "package redflagcheck\n" + code
	fset = token.NewFileSet()
	if _, err := parser.ParseFile(fset, "", src, parser.AllErrors); err == nil {
		return true, ""
	} else {
		return false, fmt.Sprintf("go syntax error: %v", err)
	}
}

// checkBracketBalance is the fallback syntax check used for any language
// without a cheap parser available (TypeScript, Python). It walks the text
// tracking quote state so brackets inside string literals are ignored.
func checkBracketBalance(code string) (bool, string) {
	closing := map[rune]rune{'{': '}', '[': ']', '(': ')'}
	closers := map[rune]bool{'}': true, ']': true, ')': true}

	var stack []rune
	inString := false
	var stringChar rune

	runes := []rune(code)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]

		switch {
		case !inString && (ch == '"' || ch == '\'' || ch == '`'):
			inString = true
			stringChar = ch
		case inString && ch == stringChar:
			// Respect backslash-escaped quotes inside single/double-quoted
			// strings (backtick template literals have no escape form here).
			if stringChar != '`' && i > 0 && runes[i-1] == '\\' {
				continue
			}
			inString = false
			stringChar = 0
		case !inString:
			if want, ok := closing[ch]; ok {
				stack = append(stack, want)
			} else if closers[ch] {
				if len(stack) == 0 || stack[len(stack)-1] != ch {
					return false, fmt.Sprintf("unbalanced brackets at '%c'", ch)
				}
				stack = stack[:len(stack)-1]
			}
		}
	}

	if len(stack) > 0 {
		return false, fmt.Sprintf("unclosed brackets: %d remaining", len(stack))
	}

	return true, ""
}

// QuickCheck runs the filter over raw code without constructing a Candidate,
// approximating token count from character length the same way the original
// quick_check helper does.
func QuickCheck(code string, lang model.Language, maxTokens int) bool {
	c := model.NewCandidate(code, len(code)/4)
	cfg := DefaultConfig()
	cfg.MaxTokensResponse = maxTokens
	f := New(cfg)
	return f.Check(c, lang).Passed
}
