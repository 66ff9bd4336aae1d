package voter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeforge-dev/codeforge/pkg/llm"
	"github.com/codeforge-dev/codeforge/pkg/model"
	"github.com/codeforge-dev/codeforge/pkg/redflag"
)

// distinctClient judges every pair of candidates as semantically distinct —
// every Generate call ends up in its own singleton group.
type distinctClient struct{}

func (distinctClient) Generate(ctx context.Context, prompt, system string, temperature float64, maxTokens int) (llm.Response, error) {
	return llm.Response{}, nil
}

func (distinctClient) CompareSemantic(ctx context.Context, codeA, codeB, taskContext string) (bool, error) {
	return false, nil
}

// equivalentClient judges every pair as semantically equivalent.
type equivalentClient struct{}

func (equivalentClient) Generate(ctx context.Context, prompt, system string, temperature float64, maxTokens int) (llm.Response, error) {
	return llm.Response{}, nil
}

func (equivalentClient) CompareSemantic(ctx context.Context, codeA, codeB, taskContext string) (bool, error) {
	return true, nil
}

// sequentialGenerator cycles through contents in order, one per call.
func sequentialGenerator(contents []string) Generator {
	i := 0
	return func(ctx context.Context, step model.Step, promptContext string) (llm.Response, error) {
		content := contents[i%len(contents)]
		i++
		return llm.Response{Content: content, OutputTokens: len(content) / 4}, nil
	}
}

// TestVoteThreeWayTieAtK2 is spec.md §8 scenario 1: three candidates, each
// judged distinct from the others. The session exhausts max_samples without
// any group reaching a k=2 lead, so it terminates by plurality with every
// group tied at one vote (margin 0).
func TestVoteThreeWayTieAtK2(t *testing.T) {
	v := New(distinctClient{}, Config{K: 2, MaxSamples: 3, RedFlag: redflag.DefaultConfig()}, nil)
	gen := sequentialGenerator([]string{
		"func OptionA() int { return 1 }",
		"func OptionB() int { return 2 }",
		"func OptionC() int { return 3 }",
	})
	step := model.NewStep(model.KindGenerate, "produce a constant")

	result, err := v.Vote(context.Background(), step, "", model.LanguageGo, gen)

	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalSamples)
	assert.Equal(t, 0, result.WinningMargin)
	assert.NotNil(t, result.Winner)
	assert.Len(t, result.Groups, 3)
}

// TestVoteCleanMajority is spec.md §8 scenario 2: candidates where the
// discriminator reports all equivalent. With k=2 and no rival group ever
// forming, the sole group's lead over the (zero-vote) runner-up reaches the
// k margin as soon as it holds 2 votes — well short of the 5-candidate
// budget on offer.
func TestVoteCleanMajority(t *testing.T) {
	v := New(equivalentClient{}, Config{K: 2, MaxSamples: 5, RedFlag: redflag.DefaultConfig()}, nil)
	gen := sequentialGenerator([]string{
		"func Sum(a, b int) int { return a + b }",
	})
	step := model.NewStep(model.KindGenerate, "sum two ints")

	result, err := v.Vote(context.Background(), step, "", model.LanguageGo, gen)

	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalSamples)
	assert.GreaterOrEqual(t, result.WinningMargin, 2)
	require.NotNil(t, result.Winner)
	assert.Equal(t, 2, result.WinnerVotes())
}

// TestVoteRedFlagSkipsCountTowardMaxSamples is spec.md §8 scenario 3: every
// other candidate is empty (red-flagged on the format check) and never
// reaches the discriminator, but still counts against max_samples. With
// k=2, the two valid samples needed to win land on the session's fourth
// generation.
func TestVoteRedFlagSkipsCountTowardMaxSamples(t *testing.T) {
	v := New(equivalentClient{}, Config{K: 2, MaxSamples: 10, RedFlag: redflag.DefaultConfig()}, nil)
	gen := sequentialGenerator([]string{
		"",
		"func Valid() int { return 1 }",
	})
	step := model.NewStep(model.KindGenerate, "produce a constant")

	result, err := v.Vote(context.Background(), step, "", model.LanguageGo, gen)

	require.NoError(t, err)
	assert.LessOrEqual(t, result.TotalSamples, 4)
	require.NotNil(t, result.Winner)
	assert.Equal(t, 2, result.WinnerVotes())
}

func TestVoterFallsBackToDefaultRedFlagWhenUnconfigured(t *testing.T) {
	v := New(equivalentClient{}, Config{K: 1, MaxSamples: 1}, nil)
	assert.NotNil(t, v.redFlagFilter)
}

func TestVoteRespectsCancellation(t *testing.T) {
	v := New(equivalentClient{}, Config{K: 2, MaxSamples: 10, RedFlag: redflag.DefaultConfig()}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := func(ctx context.Context, step model.Step, promptContext string) (llm.Response, error) {
		return llm.Response{Content: "func X() int { return 1 }"}, nil
	}
	step := model.NewStep(model.KindGenerate, "produce a constant")

	result, err := v.Vote(ctx, step, "", model.LanguageGo, gen)

	require.NoError(t, err)
	assert.True(t, result.Incomplete)
	assert.Equal(t, 0, result.TotalSamples)
}

func TestVoteErrorsWhenNoValidCandidatesSurvive(t *testing.T) {
	v := New(equivalentClient{}, Config{K: 1, MaxSamples: 2, RedFlag: redflag.DefaultConfig()}, nil)
	gen := func(ctx context.Context, step model.Step, promptContext string) (llm.Response, error) {
		return llm.Response{Content: ""}, nil
	}
	step := model.NewStep(model.KindGenerate, "produce a constant")

	_, err := v.Vote(context.Background(), step, "", model.LanguageGo, gen)

	assert.ErrorIs(t, err, ErrNoValidCandidates)
}
