package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/codeforge-dev/codeforge/pkg/config"
	"github.com/codeforge-dev/codeforge/pkg/decision"
	"github.com/codeforge-dev/codeforge/pkg/introspect"
	"github.com/codeforge-dev/codeforge/pkg/llm"
	"github.com/codeforge-dev/codeforge/pkg/model"
	"github.com/codeforge-dev/codeforge/pkg/orchestrator"
)

// RunCmd drives one Expand/Decompose/Generate/Validate pipeline run to
// completion, a pause, or an error, printing a status summary and
// optionally writing the persisted JSON result artefact.
type RunCmd struct {
	Task string `arg:"" name:"task" help:"Free-form description of what to build."`

	Language       string  `help:"Target language for generated code (go, python, typescript)." default:"go"`
	K              int     `help:"Voting margin required to declare a winner (0 = use config default)."`
	MaxSamples     int     `name:"max-samples" help:"Upper bound on candidates sampled per vote (0 = use config default)."`
	MaxSteps       int     `name:"max-steps" help:"Cap on how many functions a decompose step may plan (0 = unlimited)."`
	Output         string  `short:"o" help:"Write the persisted JSON result to this path." type:"path"`
	Verbose        bool    `short:"v" help:"Print the full decision log and resource summary after the run."`
	NoVoting       bool    `name:"no-voting" help:"Disable voting; every decision primitive takes a single sample."`
	Iterative      bool    `help:"Use iterative expansion instead of a single expand pass."`
	NonInteractive bool    `name:"non-interactive" help:"Never prompt on a pause; just report it and exit."`
	Temperature    float64 `help:"Override the configured sampling temperature (0 = use config default)."`
}

func (c *RunCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}
	if err := c.applyOverrides(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	client := llm.NewCLIClient(cfg.LLM.Command, cfg.LLM.WorkDir)

	orch := orchestrator.New(
		client,
		cfg.DecisionConfig(),
		cfg.Budget.ToBudget(),
		cfg.CostRates.ToCostRates(),
		cfg.Language,
		!c.NoVoting,
		cfg.AutoPauseOnBudgetExceeded,
		slog.Default(),
	)
	if c.MaxSteps > 0 {
		orch.SetMaxFunctions(c.MaxSteps)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopSignals := installSignalHandler(ctx, cancel, orch)
	defer stopSignals()

	var runErr error
	if c.Iterative {
		_, runErr = c.runIterative(ctx, orch, client, cfg)
	} else {
		_, runErr = orch.StartTask(ctx, c.Task)
	}

	for !c.NonInteractive {
		status := orch.GetStatus()
		if status.Phase != orchestrator.PhasePaused {
			break
		}
		action := promptPauseAction(orch)
		if action != "resume" {
			if action == "cancel" {
				_ = orch.Cancel()
			}
			break
		}
		if err := orch.Resume(); err != nil {
			fmt.Fprintln(os.Stderr, "codeforge: failed to resume: "+err.Error())
			break
		}
		_, runErr = orch.Continue(ctx)
	}

	in := introspect.New(orch)
	fmt.Println(in.ExplainStatus().Detailed)

	if c.Verbose {
		fmt.Println()
		fmt.Println(in.ExplainDecisionsSummary())
		fmt.Println()
		fmt.Println(in.ExplainResources())
	}

	if c.Output != "" {
		if err := writeDocument(orch, c.Output); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
		fmt.Println("wrote result to " + c.Output)
	}

	return runErr
}

// runIterative drives the supplemented iterative-expansion primitive
// directly instead of the orchestrator's single-pass Expand, then hands the
// resulting requirements to the orchestrator to own Decompose onward.
func (c *RunCmd) runIterative(ctx context.Context, orch *orchestrator.Orchestrator, client llm.Client, cfg *config.Config) (orchestrator.Result, error) {
	expander := decision.NewExpander(client, cfg.DecisionConfig())
	reqs, err := expander.ExpandIterative(ctx, c.Task, 5)
	if err != nil {
		slog.Warn("iterative expansion failed, falling back to single-pass expand", "error", err)
		return orch.StartTask(ctx, c.Task)
	}
	slog.Info("iterative expansion complete", "requirements", len(reqs))
	return orch.StartTaskWithRequirements(ctx, c.Task, reqs)
}

// applyOverrides layers the RunCmd's CLI flags on top of the loaded config,
// leaving anything not explicitly passed untouched.
func (c *RunCmd) applyOverrides(cfg *config.Config) error {
	if c.Language != "" {
		lang := model.Language(strings.ToLower(c.Language))
		if !lang.IsSupported() {
			return fmt.Errorf("unsupported --language %q", c.Language)
		}
		cfg.Language = lang
	}
	if c.K > 0 {
		cfg.K = c.K
	}
	if c.MaxSamples > 0 {
		cfg.MaxSamples = c.MaxSamples
	}
	if c.Temperature > 0 {
		cfg.Temperature = c.Temperature
	}
	return nil
}

// installSignalHandler wires SIGINT/SIGTERM to the orchestrator's interrupt
// mailbox: the first signal requests a pause at the next safe point, a
// second cancels the context and the run outright.
func installSignalHandler(ctx context.Context, cancel context.CancelFunc, orch *orchestrator.Orchestrator) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		count := 0
		for {
			select {
			case <-sigCh:
				count++
				if count == 1 {
					fmt.Fprintln(os.Stderr, "\ncodeforge: pausing at next safe point (press again to cancel)")
					orch.RequestInterrupt(orchestrator.PauseRequest("sigint"))
				} else {
					fmt.Fprintln(os.Stderr, "\ncodeforge: cancelling")
					orch.RequestInterrupt(orchestrator.CancelRequest())
					cancel()
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		close(done)
		signal.Stop(sigCh)
	}
}

// promptPauseAction asks the operator what to do with a paused run,
// returning "resume", "cancel", or "" (leave it paused and exit).
func promptPauseAction(orch *orchestrator.Orchestrator) string {
	fmt.Println()
	fmt.Println(orch.ExplainCurrent())
	fmt.Print("[r]esume, [c]ancel, or anything else to exit leaving it paused: ")

	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "r", "resume":
		return "resume"
	case "c", "cancel":
		return "cancel"
	default:
		return ""
	}
}

func writeDocument(orch *orchestrator.Orchestrator, path string) error {
	doc := orch.ToDocument()
	data, err := doc.MarshalJSONIndent()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
