package main

import (
	"fmt"

	"github.com/codeforge-dev/codeforge/pkg/config"
	"gopkg.in/yaml.v3"
)

// ValidateCmd loads a configuration file and reports whether it passes
// config.Config.Validate, optionally printing the fully-defaulted result.
type ValidateCmd struct {
	ConfigPath string `arg:"" name:"config" help:"Configuration file to validate." type:"path"`
	Print      bool   `short:"p" help:"Print the expanded configuration (defaults applied, env vars resolved)."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := config.Load(c.ConfigPath)
	if err != nil {
		fmt.Printf("INVALID: %v\n", err)
		return err
	}

	fmt.Println("VALID")

	if c.Print {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to render expanded config: %w", err)
		}
		fmt.Println("---")
		fmt.Print(string(out))
	}

	return nil
}
