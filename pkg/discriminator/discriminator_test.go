package discriminator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeforge-dev/codeforge/pkg/llm"
	"github.com/codeforge-dev/codeforge/pkg/model"
)

// countingClient records every CompareSemantic call it serves, so tests can
// assert on memoisation behaviour instead of just the final verdict. It
// judges equivalence by exact content match, mirroring how a real LLM would
// treat identical snippets.
type countingClient struct {
	calls int
}

func (c *countingClient) Generate(ctx context.Context, prompt, system string, temperature float64, maxTokens int) (llm.Response, error) {
	return llm.Response{}, nil
}

func (c *countingClient) CompareSemantic(ctx context.Context, codeA, codeB, taskContext string) (bool, error) {
	c.calls++
	return codeA == codeB, nil
}

// TestCompareMemoisesBidirectionally is spec.md §8's discriminator
// idempotence invariant: compare(A,B) and compare(B,A), separated by an
// unrelated call, must return the same result without issuing a second LLM
// request for either ordering.
func TestCompareMemoisesBidirectionally(t *testing.T) {
	client := &countingClient{}
	d := New(client)

	resultAB, err := d.Compare(context.Background(), "a", "b", "ctx")
	require.NoError(t, err)
	assert.False(t, resultAB)
	assert.Equal(t, 1, client.calls)

	// An unrelated comparison in between must not disturb the cached pair.
	_, err = d.Compare(context.Background(), "x", "y", "ctx")
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)

	resultBA, err := d.Compare(context.Background(), "b", "a", "ctx")
	require.NoError(t, err)
	assert.Equal(t, resultAB, resultBA)
	assert.Equal(t, 2, client.calls, "reversed-order comparison should be served from cache")
}

func TestCompareIsIdempotentOnRepeatedCalls(t *testing.T) {
	client := &countingClient{}
	d := New(client)

	first, err := d.Compare(context.Background(), "same", "same", "ctx")
	require.NoError(t, err)
	second, err := d.Compare(context.Background(), "same", "same", "ctx")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, client.calls)
}

// TestClassifyGroupsEquivalentCandidatesOnly verifies that equivalent
// candidates share a group, that every classified candidate ends up with a
// non-empty GroupID that resolves to a real group, and that each group's
// vote count equals its member count.
func TestClassifyGroupsEquivalentCandidatesOnly(t *testing.T) {
	client := &countingClient{}
	d := New(client)

	a := model.NewCandidate("same content", 10)
	b := model.NewCandidate("same content", 10)
	c := model.NewCandidate("different content", 10)

	groupA, err := d.Classify(context.Background(), a, "ctx")
	require.NoError(t, err)
	groupB, err := d.Classify(context.Background(), b, "ctx")
	require.NoError(t, err)
	groupC, err := d.Classify(context.Background(), c, "ctx")
	require.NoError(t, err)

	assert.Equal(t, groupA.ID, groupB.ID)
	assert.NotEqual(t, groupA.ID, groupC.ID)
	assert.NotEmpty(t, a.GroupID)
	assert.NotEmpty(t, b.GroupID)
	assert.NotEmpty(t, c.GroupID)

	for _, g := range d.Groups() {
		assert.Equal(t, g.Votes(), len(g.Members))
	}
}

func TestWinnerRequiresKMargin(t *testing.T) {
	client := &countingClient{}
	d := New(client)

	a := model.NewCandidate("x", 1)
	b := model.NewCandidate("x", 1)

	_, err := d.Classify(context.Background(), a, "ctx")
	require.NoError(t, err)
	assert.Nil(t, d.Winner(2))

	_, err = d.Classify(context.Background(), b, "ctx")
	require.NoError(t, err)
	assert.NotNil(t, d.Winner(2))
}

func TestResetClearsGroupsAndCache(t *testing.T) {
	client := &countingClient{}
	d := New(client)

	a := model.NewCandidate("x", 1)
	_, err := d.Classify(context.Background(), a, "ctx")
	require.NoError(t, err)
	require.NotEmpty(t, d.Groups())

	d.Reset()

	assert.Empty(t, d.Groups())
	stats := d.Stats()
	assert.Equal(t, 0, stats.Groups)
	assert.Equal(t, 0, stats.CacheEntries)
}
