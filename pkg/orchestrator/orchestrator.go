package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/codeforge-dev/codeforge/pkg/decision"
	"github.com/codeforge-dev/codeforge/pkg/llm"
	"github.com/codeforge-dev/codeforge/pkg/model"
	"github.com/codeforge-dev/codeforge/pkg/pipectx"
	"github.com/codeforge-dev/codeforge/pkg/resources"
	"github.com/codeforge-dev/codeforge/pkg/tracker"
)

// maxValidateRetries bounds how many times a single function is
// regenerated after a failed validation before the pipeline moves on.
const maxValidateRetries = 1

// Result is the outcome of a completed or partially-completed task run.
type Result struct {
	Task             string
	Requirements     []string
	Functions        []model.Step
	Code             map[string]string
	ValidationPassed bool
	Error            string
	ElapsedSeconds   float64
	DecisionsMade    int
}

// Status is a read-only snapshot of orchestrator progress, suitable for
// rendering in a status command.
type Status struct {
	Phase             Phase
	PhaseName         string
	Task              string
	PhaseDetail       string
	ProgressPercent   float64
	ElapsedSeconds    float64
	RequirementsCount int
	FunctionsCount    int
	CodeCount         int
	ValidationPassed  bool
	ErrorMessage      string
	IsRunning         bool
	IsPaused          bool
	CanResume         bool
}

// Orchestrator drives the pipeline state machine end to end: EXPANDING ->
// DECOMPOSING -> GENERATING (per function) -> VALIDATING -> COMPLETED,
// polling a single-slot interrupt mailbox at every safe point (between
// phases, and between function iterations inside GENERATING).
type Orchestrator struct {
	mu      sync.Mutex
	state   *State
	result  Result
	lastErr error

	pctx *pipectx.Context

	tracker *tracker.Tracker
	meter   *resources.Meter

	expander   *decision.Expander
	decomposer *decision.Decomposer
	generator  *decision.Generator
	validator  *decision.Validator
	decider    *decision.Decider

	lang      model.Language
	useVoting bool

	// maxFunctions caps how many functions a decompose step is allowed to
	// hand to generate, 0 meaning unlimited. Set via SetMaxFunctions.
	maxFunctions int

	// autoPauseOnBudgetExceeded controls whether an EXCEEDED budget pauses
	// the run. Per default it does not: budget-exceeded is a warning event,
	// not an interrupt (see checkBudgetExceeded).
	autoPauseOnBudgetExceeded bool

	mailbox interruptMailbox
	logger  *slog.Logger
}

// New builds an Orchestrator wired to client for every decision primitive,
// tracking decisions in its own Tracker and resource usage in its own
// Meter (seeded with budget and rates). An exceeded budget only pauses the
// run if autoPauseOnBudgetExceeded is true; otherwise it is a warning the
// pipeline runs through (see BudgetError).
func New(client llm.Client, cfg decision.Config, budget resources.Budget, rates resources.CostRates, lang model.Language, useVoting, autoPauseOnBudgetExceeded bool, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		state:                     NewState(),
		tracker:                   tracker.New(),
		meter:                     resources.New(budget, rates, nil),
		expander:                  decision.NewExpander(client, cfg),
		decomposer:                decision.NewDecomposer(client, cfg),
		generator:                 decision.NewGenerator(client, cfg),
		validator:                 decision.NewValidator(client, cfg),
		decider:                   decision.NewDecider(client, cfg),
		lang:                      lang,
		useVoting:                 useVoting,
		autoPauseOnBudgetExceeded: autoPauseOnBudgetExceeded,
		logger:                    logger,
	}
}

// Tracker exposes the run's decision log for explanation commands.
func (o *Orchestrator) Tracker() *tracker.Tracker {
	return o.tracker
}

// Meter exposes the run's resource meter for status/budget commands.
func (o *Orchestrator) Meter() *resources.Meter {
	return o.meter
}

// SetMaxFunctions caps how many functions a single decompose step may hand
// to generate; n<=0 means unlimited. A task that decomposes into more
// functions than the cap has its tail trimmed before generation starts.
func (o *Orchestrator) SetMaxFunctions(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.maxFunctions = n
}

// SuggestNextStep asks the Decider what it would do next given the current
// progress, without altering orchestrator state. Useful for an AWAITING_
// DECISION checkpoint or an introspection command.
func (o *Orchestrator) SuggestNextStep(ctx context.Context, useVoting bool) (decision.Decision, error) {
	o.mu.Lock()
	pctx := o.pctx
	o.mu.Unlock()
	if pctx == nil {
		return decision.Decision{}, fmt.Errorf("orchestrator: no active task")
	}
	return o.decider.Decide(ctx, pctx.Snapshot(), useVoting)
}

// StartTask resets orchestrator state and runs the pipeline to completion,
// to a pause, or to an error. It returns once the run leaves all execution
// phases.
func (o *Orchestrator) StartTask(ctx context.Context, task string) (Result, error) {
	o.mu.Lock()
	if o.state.IsRunning() {
		o.mu.Unlock()
		return Result{}, ErrAlreadyRunning
	}
	o.state.Reset()
	o.state.Task = task
	o.pctx = pipectx.New(task, o.lang)
	o.result = Result{Task: task}
	o.lastErr = nil
	o.mu.Unlock()

	o.meter.StartTracking()
	o.logger.Info("starting pipeline", "task", task)

	o.runPhases(ctx, PhaseExpanding)

	res, err := o.finalize()
	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("orchestrator: run stopped: %w", ctx.Err())
	}
	return res, err
}

// StartTaskWithRequirements resets orchestrator state like StartTask, but
// seeds the context with an already-expanded requirements list instead of
// running the EXPAND phase, then continues from DECOMPOSING. It exists for
// callers that ran the supplemented iterative-expansion primitive
// themselves and want the orchestrator to own the rest of the pipeline.
func (o *Orchestrator) StartTaskWithRequirements(ctx context.Context, task string, requirements []string) (Result, error) {
	o.mu.Lock()
	if o.state.IsRunning() {
		o.mu.Unlock()
		return Result{}, ErrAlreadyRunning
	}
	o.state.Reset()
	o.state.Task = task
	o.pctx = pipectx.New(task, o.lang)
	o.result = Result{Task: task}
	o.lastErr = nil
	o.mu.Unlock()

	for _, r := range requirements {
		o.pctx.AddRequirement(r)
	}

	o.mu.Lock()
	o.result.Requirements = o.pctx.Requirements()
	o.state.Transition(PhaseExpanding, "seeded with pre-expanded requirements")
	o.mu.Unlock()

	o.meter.StartTracking()
	o.logger.Info("starting pipeline with pre-expanded requirements", "task", task, "requirements", len(requirements))
	o.tracker.RecordSimple(tracker.PhaseExpand, "expand requirements (iterative, pre-seeded)", task,
		fmt.Sprintf("%d requirements found", len(requirements)), "")

	o.runPhases(ctx, PhaseDecomposing)

	return o.finalize()
}

// Continue resumes phase execution from the orchestrator's current phase.
// It is meant to be called after Resume has moved the state machine out of
// PAUSED and back into an execution phase: the run picks up exactly where
// it left off rather than restarting from EXPANDING. Calling it while the
// orchestrator isn't in an execution phase is a no-op that just finalizes
// whatever state it's already in.
func (o *Orchestrator) Continue(ctx context.Context) (Result, error) {
	o.mu.Lock()
	phase := o.state.Current
	running := o.state.IsRunning()
	o.mu.Unlock()

	if running {
		o.meter.StartTracking()
		o.logger.Info("continuing pipeline", "phase", phase)
		o.runPhases(ctx, phase)
	}

	return o.finalize()
}

// runPhases drives the linear EXPANDING -> DECOMPOSING -> GENERATING ->
// VALIDATING progression starting at from, stopping early the first time a
// phase reports it shouldn't continue (paused, errored, or halted by an
// interrupt/cancellation).
func (o *Orchestrator) runPhases(ctx context.Context, from Phase) {
	ok := true

	if ok && from == PhaseExpanding {
		ok = o.executeExpand(ctx)
		from = PhaseDecomposing
	}
	if ok && from == PhaseDecomposing {
		ok = o.executeDecompose(ctx)
		from = PhaseGenerating
	}
	if ok && from == PhaseGenerating {
		ok = o.executeGenerate(ctx)
		from = PhaseValidating
	}
	if ok && from == PhaseValidating {
		o.executeValidate(ctx)
	}
}

func (o *Orchestrator) finalize() (Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.meter.StopTracking()

	if o.state.Current != PhasePaused && o.state.Current != PhaseIdle && o.state.Current != PhaseError {
		o.state.Transition(PhaseCompleted, "pipeline completed")
		o.logger.Info("pipeline completed", "task", o.state.Task)
	}

	o.result.ElapsedSeconds = o.state.ElapsedSeconds()
	o.result.DecisionsMade = o.tracker.Count()

	var err error
	if o.state.Current == PhaseError {
		err = fmt.Errorf("orchestrator: %w", o.lastErr)
	}
	return o.result, err
}

func (o *Orchestrator) fail(msg string) {
	o.failWithErr(errors.New(msg))
}

func (o *Orchestrator) failWithErr(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.ErrorMessage = err.Error()
	o.state.Transition(PhaseError, err.Error())
	o.result.Error = err.Error()
	o.lastErr = err
	o.logger.Error("pipeline failed", "error", err)
}

// checkHalt services the pending interrupt mailbox and the resource budget,
// and reports whether the control loop should stop. It is the safe point
// polled between phases and between per-function generations.
func (o *Orchestrator) checkHalt(ctx context.Context) bool {
	if ctx.Err() != nil {
		o.mailbox.request(CancelRequest())
	}

	if req := o.mailbox.take(); req != nil {
		res := o.processInterrupt(*req)
		o.logger.Debug("processed interrupt", "kind", req.Kind, "outcome", res.Outcome, "message", res.Message)
	}

	if o.checkBudgetExceeded() {
		return true
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.state.Current {
	case PhasePaused, PhaseIdle, PhaseError:
		return true
	}
	return false
}

// checkBudgetExceeded reports the budget state as a warning event and, only
// if autoPauseOnBudgetExceeded was configured, pauses the run. It never
// fails the pipeline on its own: an exceeded budget is not an error, it is
// a condition a caller may act on (see BudgetError).
func (o *Orchestrator) checkBudgetExceeded() bool {
	check := o.meter.CheckBudget()
	if check.Status != resources.StatusExceeded {
		return false
	}

	o.logger.Warn("resource budget exceeded", "message", check.Message)

	if !o.autoPauseOnBudgetExceeded {
		return false
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.state.IsPausable() {
		return false
	}
	o.state.Transition(PhasePaused, fmt.Sprintf("auto-paused: %s", check.Message))
	return true
}

// BudgetError reports whether the current resource usage has crossed its
// configured budget, without altering orchestrator state. Unlike
// checkBudgetExceeded it never pauses the run; it exists so a status or
// explain command can surface the condition to a caller who wants to know,
// even though budget-exceeded does not interrupt the pipeline by default.
func (o *Orchestrator) BudgetError() error {
	check := o.meter.CheckBudget()
	if check.Status != resources.StatusExceeded {
		return nil
	}
	return fmt.Errorf("%s: %w", check.Message, ErrBudgetExceeded)
}

func (o *Orchestrator) executeExpand(ctx context.Context) bool {
	o.mu.Lock()
	o.state.Transition(PhaseExpanding, "starting requirement expansion")
	o.mu.Unlock()
	o.logger.Info("expanding requirements")

	snap := o.pctx.Snapshot()
	reqs, err := o.expander.Expand(ctx, o.pctx.Task(), snap, o.useVoting)
	if err != nil {
		o.fail(fmt.Sprintf("expand: %v", err))
		return false
	}

	for _, r := range reqs {
		o.pctx.AddRequirement(r)
	}

	o.mu.Lock()
	o.result.Requirements = o.pctx.Requirements()
	o.state.CurrentPhaseDetail = fmt.Sprintf("%d requirements", len(o.result.Requirements))
	o.mu.Unlock()

	o.meter.TrackSimple(len(strings.Join(reqs, "\n")))
	o.tracker.RecordSimple(tracker.PhaseExpand, "expand requirements", o.pctx.Task(),
		fmt.Sprintf("%d requirements found", len(reqs)), "")

	return !o.checkHalt(ctx)
}

func (o *Orchestrator) executeDecompose(ctx context.Context) bool {
	o.mu.Lock()
	o.state.Transition(PhaseDecomposing, "decomposing requirements into functions")
	o.mu.Unlock()
	o.logger.Info("decomposing requirements")

	snap := o.pctx.Snapshot()
	steps, err := o.decomposer.Decompose(ctx, o.pctx.Requirements(), o.lang, snap, o.useVoting)
	if err != nil {
		o.fail(fmt.Sprintf("decompose: %v", err))
		return false
	}

	o.mu.Lock()
	maxFns := o.maxFunctions
	o.mu.Unlock()
	if maxFns > 0 && len(steps) > maxFns {
		o.logger.Warn("decompose exceeded max functions, trimming", "planned", len(steps), "max", maxFns)
		steps = steps[:maxFns]
	}

	for _, step := range steps {
		o.pctx.AddFunction(step)
	}

	o.mu.Lock()
	o.result.Functions = o.pctx.Functions()
	o.state.CurrentPhaseDetail = fmt.Sprintf("%d functions", len(o.result.Functions))
	o.mu.Unlock()

	var sigLen int
	for _, step := range steps {
		sigLen += len(step.Signature) + len(step.Description)
	}
	o.meter.TrackSimple(sigLen)
	o.tracker.RecordSimple(tracker.PhaseDecompose, "decompose into functions", snap.ToPromptContext(),
		fmt.Sprintf("%d functions planned", len(steps)), "")

	return !o.checkHalt(ctx)
}

func (o *Orchestrator) executeGenerate(ctx context.Context) bool {
	o.mu.Lock()
	o.state.Transition(PhaseGenerating, "generating implementations")
	o.mu.Unlock()
	o.logger.Info("generating code")

	functions := o.pctx.Functions()
	for i, step := range functions {
		if o.checkHalt(ctx) {
			return false
		}
		if _, done := o.pctx.GeneratedCode()[step.ID]; done {
			continue
		}

		o.mu.Lock()
		o.state.CurrentPhaseDetail = fmt.Sprintf("function %d/%d: %s", i+1, len(functions), truncateLabel(step.Signature))
		o.mu.Unlock()

		snap := o.pctx.Snapshot()
		code, err := o.generator.Generate(ctx, step, snap, o.lang, o.useVoting)
		if err != nil {
			o.fail(fmt.Sprintf("generate %s: %v", step.Signature, err))
			return false
		}

		o.pctx.AddCode(step, code)
		o.meter.TrackSimple(len(code))
		o.tracker.RecordSimple(tracker.PhaseGenerate, "generate "+step.Signature, step.Description, code, "")
	}

	o.mu.Lock()
	o.result.Code = o.labeledCode()
	o.state.CurrentPhaseDetail = fmt.Sprintf("%d implementations", len(functions))
	o.mu.Unlock()

	return !o.checkHalt(ctx)
}

func (o *Orchestrator) executeValidate(ctx context.Context) bool {
	o.mu.Lock()
	o.state.Transition(PhaseValidating, "validating implementations")
	o.mu.Unlock()
	o.logger.Info("validating code")

	functions := o.pctx.Functions()
	allValid := true

	for _, step := range functions {
		code, ok := o.pctx.GeneratedCode()[step.ID]
		if !ok {
			continue
		}

		retries := 0
		for {
			snap := o.pctx.Snapshot()
			result, err := o.validator.Validate(ctx, code, step, snap, o.lang)
			if err != nil {
				o.fail(fmt.Sprintf("validate %s: %v", step.Signature, err))
				return false
			}

			o.meter.TrackSimple(len(code) / 4)

			if result.Passed() {
				o.tracker.RecordSimple(tracker.PhaseValidate, "validate "+step.Signature, code, "valid", "")
				break
			}

			allValid = false
			o.tracker.RecordSimple(tracker.PhaseValidate, "validate "+step.Signature, code,
				fmt.Sprintf("%d errors found", len(result.Errors)), "failed static/LLM review")

			if retries >= maxValidateRetries {
				break
			}
			retries++

			o.mu.Lock()
			o.state.Transition(PhaseGenerating, fmt.Sprintf("retrying %s after validation failure", step.Signature))
			o.mu.Unlock()

			regenSnap := o.pctx.Snapshot()
			fixed, genErr := o.generator.Generate(ctx, step, regenSnap, o.lang, o.useVoting)
			if genErr != nil {
				o.fail(fmt.Sprintf("regenerate %s: %v", step.Signature, genErr))
				return false
			}
			o.pctx.AddCode(step, fixed)
			code = fixed

			o.mu.Lock()
			o.state.Transition(PhaseValidating, fmt.Sprintf("re-validating %s", step.Signature))
			o.mu.Unlock()
		}

		if o.checkHalt(ctx) {
			return false
		}
	}

	o.mu.Lock()
	o.result.Code = o.labeledCode()
	o.result.ValidationPassed = allValid
	o.mu.Unlock()

	return true
}

func (o *Orchestrator) labeledCode() map[string]string {
	code := o.pctx.GeneratedCode()
	functions := o.pctx.Functions()
	out := make(map[string]string, len(functions))
	for _, step := range functions {
		c, ok := code[step.ID]
		if !ok {
			continue
		}
		label := step.Signature
		if label == "" {
			label = step.Description
		}
		out[label] = c
	}
	return out
}

func truncateLabel(s string) string {
	if len(s) > 30 {
		return s[:30] + "..."
	}
	return s
}

// Pause transitions into PAUSED if the current phase allows it.
func (o *Orchestrator) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.state.IsPausable() {
		return fmt.Errorf("pause: %w", ErrInvalidTransition)
	}
	o.state.Transition(PhasePaused, "paused by user")
	return nil
}

// Resume transitions back to the phase saved when PAUSED was entered.
func (o *Orchestrator) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	resumeTo := o.state.ResumeState()
	if resumeTo == "" {
		return fmt.Errorf("resume: %w", ErrInvalidTransition)
	}
	o.state.Transition(resumeTo, "resuming execution")
	return nil
}

// Cancel transitions unconditionally to IDLE, abandoning any progress.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Current == PhaseIdle {
		return fmt.Errorf("cancel: %w", ErrInvalidTransition)
	}
	o.state.Transition(PhaseIdle, "cancelled by user")
	return nil
}

// RequestInterrupt queues req in the single-slot mailbox for processing at
// the next safe point. Use this from outside the goroutine running
// StartTask (a signal handler, a concurrent CLI command); Pause/Resume/
// Cancel apply immediately and should be preferred when called from the
// same goroutine driving the loop.
func (o *Orchestrator) RequestInterrupt(req InterruptRequest) {
	o.mailbox.request(req)
}

// HasPendingInterrupt reports whether a request is queued and not yet
// processed.
func (o *Orchestrator) HasPendingInterrupt() bool {
	return o.mailbox.hasPending()
}

func (o *Orchestrator) processInterrupt(req InterruptRequest) InterruptResult {
	switch req.Kind {
	case InterruptPause:
		if err := o.Pause(); err != nil {
			return InterruptResult{Outcome: InterruptRejected, Message: "cannot pause in current phase"}
		}
		return InterruptResult{Outcome: InterruptHandled, Message: "pipeline paused"}
	case InterruptResume:
		if err := o.Resume(); err != nil {
			return InterruptResult{Outcome: InterruptRejected, Message: "not paused"}
		}
		return InterruptResult{Outcome: InterruptHandled, Message: "pipeline resumed"}
	case InterruptCancel:
		if err := o.Cancel(); err != nil {
			return InterruptResult{Outcome: InterruptRejected, Message: "already idle"}
		}
		return InterruptResult{Outcome: InterruptHandled, Message: "pipeline cancelled"}
	case InterruptExplain:
		return InterruptResult{Outcome: InterruptHandled, Message: o.ExplainCurrent()}
	case InterruptSkip:
		return InterruptResult{Outcome: InterruptRejected, Message: "skip is not supported"}
	case InterruptRetry:
		return InterruptResult{Outcome: InterruptRejected, Message: "retry is not supported"}
	default:
		return InterruptResult{Outcome: InterruptErrored, Message: "unknown interrupt kind: " + string(req.Kind)}
	}
}

// GetStatus renders a read-only progress snapshot.
func (o *Orchestrator) GetStatus() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	const totalSteps = 4
	completed := 0
	if len(o.result.Requirements) > 0 {
		completed++
	}
	if len(o.result.Functions) > 0 {
		completed++
	}
	if len(o.result.Code) > 0 {
		completed++
	}
	if o.result.ValidationPassed {
		completed++
	}

	return Status{
		Phase:             o.state.Current,
		PhaseName:         o.state.PhaseName(),
		Task:              o.state.Task,
		PhaseDetail:       o.state.CurrentPhaseDetail,
		ProgressPercent:   float64(completed) / totalSteps * 100,
		ElapsedSeconds:    o.state.ElapsedSeconds(),
		RequirementsCount: len(o.result.Requirements),
		FunctionsCount:    len(o.result.Functions),
		CodeCount:         len(o.result.Code),
		ValidationPassed:  o.result.ValidationPassed,
		ErrorMessage:      o.state.ErrorMessage,
		IsRunning:         o.state.IsRunning(),
		IsPaused:          o.state.Current == PhasePaused,
		CanResume:         o.state.ResumeState() != "",
	}
}

// ExplainCurrent renders a human-readable description of what the
// orchestrator is doing right now.
func (o *Orchestrator) ExplainCurrent() string {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state.Current {
	case PhaseIdle:
		return "Waiting for a task. Use the run command to start."
	case PhaseExpanding:
		return fmt.Sprintf("In the EXPAND phase, generating atomic requirements.\n\nTask: %s\nDetail: %s\n\nEach requirement must be testable and independent of the others.",
			o.state.Task, o.state.CurrentPhaseDetail)
	case PhaseDecomposing:
		return fmt.Sprintf("In the DECOMPOSE phase, planning functions.\n\nRequirements found: %d\nDetail: %s\n\nRequirements are organized into functions, each with one clear responsibility.",
			len(o.result.Requirements), o.state.CurrentPhaseDetail)
	case PhaseGenerating:
		return fmt.Sprintf("In the GENERATE phase, implementing code.\n\nFunctions planned: %d\nImplemented so far: %d\nDetail: %s\n\nEach function is implemented one at a time.",
			len(o.result.Functions), len(o.result.Code), o.state.CurrentPhaseDetail)
	case PhaseValidating:
		return fmt.Sprintf("In the VALIDATE phase, reviewing code.\n\nImplementations: %d\nDetail: %s\n\nChecking syntax and correctness of the generated code.",
			len(o.result.Code), o.state.CurrentPhaseDetail)
	case PhasePaused:
		resumeTo := o.state.ResumeState()
		resumeLabel := "unknown"
		if resumeTo != "" {
			resumeLabel = string(resumeTo)
		}
		return fmt.Sprintf("Pipeline PAUSED.\n\nWas in: %s\nTask: %s\nProgress: %d requirements, %d functions, %d implementations\n\nUse resume to continue, cancel to abandon, or status for details.",
			resumeLabel, o.state.Task, len(o.result.Requirements), len(o.result.Functions), len(o.result.Code))
	case PhaseAwaitingDecision:
		return "Awaiting your decision at a checkpoint."
	case PhaseCompleted:
		return fmt.Sprintf("Pipeline completed. Generated %d requirements, %d functions, %d implementations.",
			len(o.result.Requirements), len(o.result.Functions), len(o.result.Code))
	case PhaseError:
		return fmt.Sprintf("Error during execution: %s", o.state.ErrorMessage)
	default:
		return fmt.Sprintf("State: %s", o.state.Current)
	}
}
