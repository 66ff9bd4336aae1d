package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeforge-dev/codeforge/pkg/model"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.K)
	assert.Equal(t, model.LanguageGo, cfg.Language)
	assert.Equal(t, "cli", cfg.LLM.Backend)
}

func TestSetDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := Config{K: 5, Temperature: 1.2}
	cfg.SetDefaults()
	assert.Equal(t, 5, cfg.K)
	assert.Equal(t, 1.2, cfg.Temperature)
	assert.Equal(t, model.LanguageGo, cfg.Language)
}

func TestValidateRejectsInvalidK(t *testing.T) {
	cfg := DefaultConfig()
	cfg.K = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsMaxSamplesBelowK(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSamples = 1
	cfg.K = 3
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnsupportedLanguage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Language = model.Language("rust")
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnsupportedLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "k: 5\nmax_samples: 25\nlanguage: go\nlog_level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.K)
	assert.Equal(t, 25, cfg.MaxSamples)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("CODEFORGE_TEST_COMMAND", "my-cli")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "llm:\n  command: \"${CODEFORGE_TEST_COMMAND}\"\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "my-cli", cfg.LLM.Command)
}

func TestLoadExpandsDefaultWhenEnvUnset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "llm:\n  command: \"${CODEFORGE_UNSET_VAR:-fallback-cli}\"\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fallback-cli", cfg.LLM.Command)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("k: -1\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestDecisionConfigProjection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.K = 7
	cfg.Temperature = 0.3
	dc := cfg.DecisionConfig()
	assert.Equal(t, 7, dc.K)
	assert.Equal(t, 0.3, dc.Temperature)
}

func TestBudgetConfigToBudget(t *testing.T) {
	max := 1000
	bc := BudgetConfig{MaxTokens: &max}
	b := bc.ToBudget()
	require.NotNil(t, b.MaxTokens)
	assert.Equal(t, 1000, *b.MaxTokens)
	assert.True(t, b.IsEmpty() == false)
}
