package main

import (
	"context"
	"fmt"

	"github.com/codeforge-dev/codeforge/pkg/intent"
	"github.com/codeforge-dev/codeforge/pkg/llm"
)

// ChatCmd classifies one free-form message with the IntentRouter. For a task
// (task_simple/task_complex/task_explore) it prints the `codeforge run`
// command that would execute it; it does not start the pipeline itself.
// Anything that isn't a task or a control/meta request gets a direct reply
// via the LLM client, matching the original's interactive direct-chat
// fallback.
type ChatCmd struct {
	Message string `arg:"" name:"message" help:"A free-form message: a task, a status question, or just chat."`

	Language string `help:"Target language, used only if the message turns out to be a task." default:"go"`
}

func (c *ChatCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}

	client := llm.NewCLIClient(cfg.LLM.Command, cfg.LLM.WorkDir)
	router := intent.NewRouter(client)

	ctx := context.Background()
	result, err := router.Detect(ctx, c.Message)
	if err != nil {
		return fmt.Errorf("chat: intent classification failed: %w", err)
	}

	switch result.Intent {
	case intent.TaskSimple, intent.TaskComplex, intent.TaskExplore:
		fmt.Printf("Detected a %s (confidence %.2f). Run it with:\n\n  codeforge run %q --language %s\n",
			result.Intent, result.Confidence, c.Message, c.Language)
		return nil
	case intent.MetaHelp:
		printHelp()
		return nil
	case intent.ControlPause, intent.ControlResume, intent.ControlCancel, intent.MetaStatus, intent.MetaExplain:
		fmt.Println("That only makes sense while a pipeline run is active; use Ctrl+C during `codeforge run` to pause/cancel, and --verbose to see status on completion.")
		return nil
	default:
		return c.directReply(ctx, client)
	}
}

// directReply forwards a greeting/general-chat/technical-question message
// straight to the LLM client, bypassing the pipeline entirely — the thin
// wrapper the original's interactive mode uses for non-task messages.
func (c *ChatCmd) directReply(ctx context.Context, client llm.Client) error {
	resp, err := client.Generate(ctx, c.Message, "You are a helpful coding assistant. Reply concisely.", 0.7, 500)
	if err != nil {
		return fmt.Errorf("chat: direct reply failed: %w", err)
	}
	fmt.Println(resp.Content)
	return nil
}

func printHelp() {
	fmt.Println(`codeforge can:
  - build things: "build a CPF validator" -> run the Expand/Decompose/Generate/Validate pipeline
  - chat: ask a question or just say hi
  - explain itself: run with --verbose to see the decision log and resource usage after a run

Commands:
  codeforge run <task>       run the pipeline against a task
  codeforge chat <message>   classify a message and suggest a run or reply
  codeforge validate <file>  validate a configuration file`)
}
