// Package intent classifies a free-text user message into one of a closed
// set of intents before the orchestrator or a chat surface acts on it.
// Classification is heuristic-first: cheap keyword rules handle the common
// cases, and only an inconclusive heuristic pass falls through to an LLM
// classification request.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/codeforge-dev/codeforge/pkg/llm"
)

// Intent is one of the closed set of intents a message can resolve to.
// Unknown strings returned by the LLM classifier collapse to Chat.
type Intent string

const (
	TaskSimple  Intent = "task_simple"
	TaskComplex Intent = "task_complex"
	TaskExplore Intent = "task_explore"

	MetaStatus  Intent = "meta_status"
	MetaExplain Intent = "meta_explain"
	MetaHelp    Intent = "meta_help"

	ControlPause  Intent = "control_pause"
	ControlResume Intent = "control_resume"
	ControlCancel Intent = "control_cancel"

	ChatGreeting Intent = "chat_greeting"
	ChatGeneral  Intent = "chat_general"
	ChatQuestion Intent = "chat_question"
)

// lowConfidenceThreshold is the cutoff below which a classification (from
// either source) is demoted to ChatGeneral.
const lowConfidenceThreshold = 0.6

// Result is the outcome of classifying one message.
type Result struct {
	Intent     Intent
	Confidence float64
	Task       string
	Reasoning  string
}

const classificationPrompt = `Classify the user's intent in this message:

"%s"

Possible categories:
- META_HELP: asking about capabilities ("what can you do", "help")
- TASK_COMPLEX: wants to build a complete system/project
- TASK_SIMPLE: wants something simple (a function, a script)
- TASK_EXPLORE: wants to analyze/explore requirements first
- META_STATUS: asking about pipeline progress
- META_EXPLAIN: asking what the pipeline is doing right now
- CONTROL_PAUSE: wants to pause the run
- CONTROL_RESUME: wants to resume a paused run
- CONTROL_CANCEL: wants to cancel the run
- CHAT_GREETING: just a greeting (hi, hello)
- CHAT_QUESTION: a technical question
- CHAT_GENERAL: general conversation

Return your classification in this JSON format:
` + "```json\n" + `{"intent": "CATEGORY", "confidence": 0.9, "task": "extracted task if applicable", "reasoning": "why this classification"}` + "\n```"

// Router classifies messages via local keyword heuristics, falling back to
// client only when the heuristics are inconclusive.
type Router struct {
	client llm.Client
}

// NewRouter builds a Router. client may be nil if the caller never intends
// to classify a message the heuristics can't resolve; Detect returns an
// error in that case instead of panicking.
func NewRouter(client llm.Client) *Router {
	return &Router{client: client}
}

// Detect classifies message. It tries local heuristics first; if they don't
// match, it asks the LLM client and parses a small JSON reply. A
// low-confidence result from either path collapses to ChatGeneral.
func (r *Router) Detect(ctx context.Context, message string) (Result, error) {
	if local, ok := detectLocal(message); ok {
		return clampConfidence(local), nil
	}

	if r.client == nil {
		return Result{
			Intent:     ChatGeneral,
			Confidence: 0.5,
			Reasoning:  "no LLM client configured, heuristics inconclusive",
		}, nil
	}

	prompt := fmt.Sprintf(classificationPrompt, message)
	resp, err := r.client.Generate(ctx, prompt, "", 0.0, 300)
	if err != nil {
		return Result{
			Intent:     ChatGeneral,
			Confidence: 0.5,
			Reasoning:  fmt.Sprintf("classification request failed: %v", err),
		}, nil
	}

	return clampConfidence(parseResponse(resp.Content, message)), nil
}

func clampConfidence(res Result) Result {
	if res.Confidence < lowConfidenceThreshold {
		return Result{
			Intent:     ChatGeneral,
			Confidence: res.Confidence,
			Reasoning:  "low confidence, falling back to general chat: " + res.Reasoning,
		}
	}
	return res
}

var (
	helpPatterns = []string{
		"what do you do", "what can you do", "help", "commands", "capabilities",
	}
	complexPatterns = []string{
		"system", "project", "application", "app", "complete", "backend",
		"frontend", "database", "end-to-end",
	}
	simplePatterns = []string{
		"function", "validator", "script", "hello world", "one-off",
	}
	taskVerbs = []string{
		"i want", "i need", "create", "build", "write", "develop", "make", "implement",
	}
	greetings       = []string{"hi", "hello", "hey"}
	greetingPhrases = []string{"good morning", "good afternoon", "good evening"}
	pausePatterns  = []string{"pause", "hold on", "wait a sec", "stop for now"}
	resumePatterns = []string{"resume", "continue", "keep going", "go on"}
	cancelPatterns = []string{"cancel", "abort", "stop", "quit", "give up"}
	statusPatterns = []string{"status", "how's it going", "progress", "where are we"}
	explainPatterns = []string{
		"explain", "what are you doing", "what's happening", "why did you",
	}
)

func anyContains(msg string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// hasGreetingWord reports whether any whole word of msg is a short greeting
// (hi, hey, hello, ...). It checks whole words rather than substrings so a
// message like "cancel this" isn't mistaken for a greeting just because
// "this" contains "hi".
func hasGreetingWord(msg string) bool {
	for _, word := range strings.Fields(msg) {
		word = strings.Trim(word, "!?.,")
		for _, g := range greetings {
			if word == g {
				return true
			}
		}
	}
	return false
}

// detectLocal applies the cheap keyword heuristics. ok is false when none
// of them matched, signalling that an LLM classification is needed.
func detectLocal(message string) (Result, bool) {
	msg := strings.ToLower(strings.TrimSpace(message))
	if msg == "" {
		return Result{}, false
	}

	if containsExact(greetings, msg) || anyContains(msg, greetingPhrases) || (len(msg) < 15 && hasGreetingWord(msg) && !strings.Contains(msg, "?")) {
		return Result{
			Intent:     ChatGreeting,
			Confidence: 0.9,
			Reasoning:  "matched locally: greeting",
		}, true
	}

	if anyContains(msg, helpPatterns) {
		return Result{
			Intent:     MetaHelp,
			Confidence: 0.85,
			Reasoning:  "matched locally: asking about capabilities",
		}, true
	}

	if anyContains(msg, pausePatterns) {
		return Result{Intent: ControlPause, Confidence: 0.85, Reasoning: "matched locally: pause request"}, true
	}
	if anyContains(msg, resumePatterns) {
		return Result{Intent: ControlResume, Confidence: 0.85, Reasoning: "matched locally: resume request"}, true
	}
	if anyContains(msg, cancelPatterns) {
		return Result{Intent: ControlCancel, Confidence: 0.85, Reasoning: "matched locally: cancel request"}, true
	}
	if anyContains(msg, statusPatterns) {
		return Result{Intent: MetaStatus, Confidence: 0.8, Reasoning: "matched locally: status query"}, true
	}
	if anyContains(msg, explainPatterns) {
		return Result{Intent: MetaExplain, Confidence: 0.8, Reasoning: "matched locally: explain request"}, true
	}

	if anyContains(msg, complexPatterns) && anyContains(msg, taskVerbs) {
		return Result{
			Intent:     TaskComplex,
			Confidence: 0.85,
			Task:       message,
			Reasoning:  "matched locally: complex task",
		}, true
	}

	if anyContains(msg, simplePatterns) && anyContains(msg, taskVerbs) {
		return Result{
			Intent:     TaskSimple,
			Confidence: 0.85,
			Task:       message,
			Reasoning:  "matched locally: simple task",
		}, true
	}

	return Result{}, false
}

func containsExact(set []string, msg string) bool {
	for _, s := range set {
		if msg == s {
			return true
		}
	}
	return false
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

var fencePrefix = regexp.MustCompile("^```(?:json)?\\s*")
var fenceSuffix = regexp.MustCompile("\\s*```$")

var intentStrings = map[string]Intent{
	"TASK_SIMPLE":    TaskSimple,
	"TASK_COMPLEX":   TaskComplex,
	"TASK_EXPLORE":   TaskExplore,
	"META_STATUS":    MetaStatus,
	"META_EXPLAIN":   MetaExplain,
	"META_HELP":      MetaHelp,
	"CONTROL_PAUSE":  ControlPause,
	"CONTROL_RESUME": ControlResume,
	"CONTROL_CANCEL": ControlCancel,
	"CHAT_GREETING":  ChatGreeting,
	"CHAT_GENERAL":   ChatGeneral,
	"CHAT_QUESTION":  ChatQuestion,
}

type classificationPayload struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Task       string  `json:"task"`
	Reasoning  string  `json:"reasoning"`
}

// parseResponse extracts a JSON object from an LLM reply, tolerating a
// surrounding markdown code fence. A malformed or missing payload falls
// back to ChatGeneral at low confidence rather than erroring — a
// classifier producing garbage should never stop the caller.
func parseResponse(response, originalMessage string) Result {
	clean := fenceSuffix.ReplaceAllString(fencePrefix.ReplaceAllString(strings.TrimSpace(response), ""), "")

	match := jsonObjectPattern.FindString(clean)
	if match == "" {
		return Result{
			Intent:     ChatGeneral,
			Confidence: 0.5,
			Reasoning:  "could not classify precisely: no JSON object in response",
		}
	}

	var payload classificationPayload
	if err := json.Unmarshal([]byte(match), &payload); err != nil {
		return Result{
			Intent:     ChatGeneral,
			Confidence: 0.5,
			Reasoning:  "could not classify precisely: " + err.Error(),
		}
	}

	in, ok := intentStrings[strings.ToUpper(strings.TrimSpace(payload.Intent))]
	if !ok {
		in = ChatGeneral
	}

	task := payload.Task
	if task == "" {
		task = originalMessage
	}

	confidence := payload.Confidence
	if confidence == 0 {
		confidence = 0.7
	}

	return Result{
		Intent:     in,
		Confidence: confidence,
		Task:       task,
		Reasoning:  payload.Reasoning,
	}
}
