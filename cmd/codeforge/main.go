// Command codeforge drives the Expand -> Decompose -> Generate -> Validate
// pipeline against a free-form task description. It is a thin wrapper: the
// state machine, voting, and introspection all live in pkg/orchestrator and
// its collaborators; this binary only wires a config, an LLM client, and an
// Orchestrator together and renders the result.
//
// Usage:
//
//	codeforge run "build a CPF validator" --language go --k 3
//	codeforge chat "what can you do?"
//	codeforge validate config.yaml
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/codeforge-dev/codeforge/pkg/config"
	"github.com/codeforge-dev/codeforge/pkg/logger"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

// CLI is the root kong command set.
type CLI struct {
	Run      RunCmd      `cmd:"" help:"Run the Expand/Decompose/Generate/Validate pipeline against a task."`
	Chat     ChatCmd     `cmd:"" help:"Classify a free-form message and either print the run command for it or reply directly."`
	Validate ValidateCmd `cmd:"" help:"Validate a CodeForge configuration file."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to a YAML configuration file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (text or json)." default:"text"`
	LogFile   string `help:"Log file path (empty = stderr)." type:"path"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("codeforge"),
		kong.Description("An autonomous code-generation agent driven by a voting scheduler."),
		kong.UsageOnError(),
	)

	if err := cli.initLogging(); err != nil {
		fmt.Fprintln(os.Stderr, "codeforge: "+err.Error())
		os.Exit(1)
	}

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}

func (c *CLI) initLogging() error {
	level := logger.ParseLevel(c.LogLevel)
	output := os.Stderr
	if c.LogFile != "" {
		f, _, err := logger.OpenLogFile(c.LogFile)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		output = f
	}
	logger.Init(level, output, c.LogFormat)
	return nil
}

// loadConfig reads the YAML config at path (or the default configuration
// when path is empty), logging at debug level which source was used.
func loadConfig(path string) (*config.Config, error) {
	if err := config.LoadEnvFiles(); err != nil {
		return nil, err
	}

	if path == "" {
		slog.Debug("using default configuration, no --config given")
		return config.LoadDefault(), nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %q: %w", path, err)
	}
	slog.Debug("loaded configuration", "path", path)
	return cfg, nil
}

// VersionCmd prints the binary's version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("codeforge %s\n", version)
	return nil
}
