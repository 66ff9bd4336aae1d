// Package config loads and validates the settings that wire together an
// Orchestrator run: voting parameters, budget limits, the LLM backend, the
// target language, and logging. It mirrors the original's MDAPConfig
// dataclass, expanded with the knobs this port's extra components need.
package config

import (
	"fmt"

	"github.com/codeforge-dev/codeforge/pkg/decision"
	"github.com/codeforge-dev/codeforge/pkg/model"
	"github.com/codeforge-dev/codeforge/pkg/resources"
)

// boolDefault returns *p if set, or def when p is nil — the pattern
// BudgetConfig already uses for "unset means use the default" fields.
func boolDefault(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// LLMConfig selects and configures the generation backend.
type LLMConfig struct {
	// Backend is the adapter to construct: "cli" is the only one CodeForge
	// ships today.
	Backend string `yaml:"backend" mapstructure:"backend"`
	// Command is the executable NewCLIClient should invoke.
	Command string `yaml:"command" mapstructure:"command"`
	// WorkDir is the directory the CLI subprocess runs in.
	WorkDir string `yaml:"work_dir" mapstructure:"work_dir"`
	// TimeoutSeconds is validated and defaulted here; the CLI client that
	// run and chat build does not read it and applies its own fixed
	// 120-second per-call timeout.
	TimeoutSeconds int `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// BudgetConfig is the YAML-friendly mirror of resources.Budget; nil/zero
// fields mean "no limit" just like the zero resources.Budget does.
type BudgetConfig struct {
	MaxTokens      *int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxAPICalls    *int     `yaml:"max_api_calls" mapstructure:"max_api_calls"`
	MaxTimeSeconds *float64 `yaml:"max_time_seconds" mapstructure:"max_time_seconds"`
	MaxCostUSD     *float64 `yaml:"max_cost_usd" mapstructure:"max_cost_usd"`
}

// ToBudget converts to the runtime resources.Budget type.
func (b BudgetConfig) ToBudget() resources.Budget {
	return resources.Budget{
		MaxTokens:      b.MaxTokens,
		MaxAPICalls:    b.MaxAPICalls,
		MaxTimeSeconds: b.MaxTimeSeconds,
		MaxCostUSD:     b.MaxCostUSD,
	}
}

// CostRatesConfig mirrors resources.CostRates.
type CostRatesConfig struct {
	PerThousandInputTokens  float64 `yaml:"per_thousand_input_tokens" mapstructure:"per_thousand_input_tokens"`
	PerThousandOutputTokens float64 `yaml:"per_thousand_output_tokens" mapstructure:"per_thousand_output_tokens"`
}

func (c CostRatesConfig) ToCostRates() resources.CostRates {
	return resources.CostRates{
		PerThousandInputTokens:  c.PerThousandInputTokens,
		PerThousandOutputTokens: c.PerThousandOutputTokens,
	}
}

// Config is the full set of knobs a run is constructed from.
type Config struct {
	// K is the vote margin required to win a round.
	K int `yaml:"k" mapstructure:"k"`
	// MaxSamples bounds how many candidates a voting round will sample.
	MaxSamples int `yaml:"max_samples" mapstructure:"max_samples"`
	// MaxTokensResponse is the red-flag threshold for an over-long reply.
	MaxTokensResponse int `yaml:"max_tokens_response" mapstructure:"max_tokens_response"`
	// Temperature is the sampling temperature for the expand, decompose and
	// generate primitives and for voted decisions; validation and unvoted
	// decisions sample at 0.0.
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`

	// Language selects the target language generated code is produced and
	// validated in.
	Language model.Language `yaml:"language" mapstructure:"language"`
	// UseVoting turns on full k-margin voting for every decision primitive;
	// when false, primitives run single-shot.
	UseVoting bool `yaml:"use_voting" mapstructure:"use_voting"`
	// AutoPauseOnBudgetExceeded pauses a run automatically when its budget
	// is exceeded, instead of only logging a warning.
	AutoPauseOnBudgetExceeded bool `yaml:"auto_pause_on_budget_exceeded" mapstructure:"auto_pause_on_budget_exceeded"`

	// EnableLengthCheck, EnableFormatCheck, EnableSyntaxCheck toggle the
	// red-flag filter's individual checks. nil means "use the default"
	// (true for all three), so an explicit `false` in YAML is
	// distinguishable from an omitted key.
	EnableLengthCheck *bool `yaml:"enable_length_check" mapstructure:"enable_length_check"`
	EnableFormatCheck *bool `yaml:"enable_format_check" mapstructure:"enable_format_check"`
	EnableSyntaxCheck *bool `yaml:"enable_syntax_check" mapstructure:"enable_syntax_check"`

	// VoteTimeoutSeconds bounds a whole voting session; ExecutionTimeoutSeconds
	// bounds a single Tool capability dispatch (read/write/search/test).
	VoteTimeoutSeconds      int `yaml:"vote_timeout_seconds" mapstructure:"vote_timeout_seconds"`
	ExecutionTimeoutSeconds int `yaml:"execution_timeout_seconds" mapstructure:"execution_timeout_seconds"`

	Budget    BudgetConfig    `yaml:"budget" mapstructure:"budget"`
	CostRates CostRatesConfig `yaml:"cost_rates" mapstructure:"cost_rates"`
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	// LogFormat is either "text" or "json".
	LogFormat string `yaml:"log_format" mapstructure:"log_format"`
}

// SetDefaults fills in zero-valued fields with CodeForge's defaults. Safe to
// call on a partially-populated Config, e.g. one decoded from a YAML file
// that only overrides a handful of keys.
func (c *Config) SetDefaults() {
	d := decision.DefaultConfig()
	if c.K == 0 {
		c.K = d.K
	}
	if c.MaxSamples == 0 {
		c.MaxSamples = d.MaxSamples
	}
	if c.MaxTokensResponse == 0 {
		c.MaxTokensResponse = 500
	}
	if c.Temperature == 0 {
		c.Temperature = d.Temperature
	}
	if c.Language == "" {
		c.Language = model.LanguageGo
	}
	if c.EnableLengthCheck == nil {
		v := true
		c.EnableLengthCheck = &v
	}
	if c.EnableFormatCheck == nil {
		v := true
		c.EnableFormatCheck = &v
	}
	if c.EnableSyntaxCheck == nil {
		v := true
		c.EnableSyntaxCheck = &v
	}
	if c.VoteTimeoutSeconds == 0 {
		c.VoteTimeoutSeconds = 60
	}
	if c.ExecutionTimeoutSeconds == 0 {
		c.ExecutionTimeoutSeconds = 30
	}

	rates := resources.DefaultCostRates()
	if c.CostRates.PerThousandInputTokens == 0 {
		c.CostRates.PerThousandInputTokens = rates.PerThousandInputTokens
	}
	if c.CostRates.PerThousandOutputTokens == 0 {
		c.CostRates.PerThousandOutputTokens = rates.PerThousandOutputTokens
	}

	if c.LLM.Backend == "" {
		c.LLM.Backend = "cli"
	}
	if c.LLM.Command == "" {
		c.LLM.Command = "claude"
	}
	if c.LLM.WorkDir == "" {
		c.LLM.WorkDir = "."
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 120
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

// DecisionConfig projects the voting-related fields into a decision.Config.
func (c Config) DecisionConfig() decision.Config {
	base := decision.DefaultConfig()
	base.Temperature = c.Temperature
	base.K = c.K
	base.MaxSamples = c.MaxSamples
	base.MaxTokensResponse = c.MaxTokensResponse
	base.EnableLengthCheck = boolDefault(c.EnableLengthCheck, true)
	base.EnableFormatCheck = boolDefault(c.EnableFormatCheck, true)
	base.EnableSyntaxCheck = boolDefault(c.EnableSyntaxCheck, true)
	base.VoteTimeoutSeconds = c.VoteTimeoutSeconds
	base.ExecutionTimeoutSeconds = c.ExecutionTimeoutSeconds
	return base
}

// Validate reports the first configuration error found, mirroring the
// original's post-load sanity checks before a run is allowed to start.
func (c Config) Validate() error {
	if c.K < 1 {
		return fmt.Errorf("k must be at least 1, got %d", c.K)
	}
	if c.MaxSamples < c.K {
		return fmt.Errorf("max_samples (%d) must be at least k (%d)", c.MaxSamples, c.K)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", c.Temperature)
	}
	if !c.Language.IsSupported() {
		return fmt.Errorf("unsupported language: %s", c.Language)
	}
	switch c.LLM.Backend {
	case "cli":
	default:
		return fmt.Errorf("unsupported llm backend: %s", c.LLM.Backend)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log_level: %s", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log_format: %s", c.LogFormat)
	}
	return nil
}

// DefaultConfig returns a Config with every default filled in and no
// budget limit configured.
func DefaultConfig() Config {
	cfg := Config{}
	cfg.SetDefaults()
	return cfg
}
