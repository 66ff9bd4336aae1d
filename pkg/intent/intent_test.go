package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeforge-dev/codeforge/pkg/llm"
)

type stubClient struct {
	content string
	err     error
}

func (c *stubClient) Generate(ctx context.Context, prompt, system string, temperature float64, maxTokens int) (llm.Response, error) {
	if c.err != nil {
		return llm.Response{}, c.err
	}
	return llm.Response{Content: c.content}, nil
}

func (c *stubClient) CompareSemantic(ctx context.Context, codeA, codeB, taskContext string) (bool, error) {
	return false, nil
}

func TestDetectLocalGreeting(t *testing.T) {
	r := NewRouter(nil)
	res, err := r.Detect(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, ChatGreeting, res.Intent)
	assert.GreaterOrEqual(t, res.Confidence, lowConfidenceThreshold)
}

func TestDetectLocalHelp(t *testing.T) {
	r := NewRouter(nil)
	res, err := r.Detect(context.Background(), "what can you do?")
	require.NoError(t, err)
	assert.Equal(t, MetaHelp, res.Intent)
}

func TestDetectLocalComplexTask(t *testing.T) {
	r := NewRouter(nil)
	res, err := r.Detect(context.Background(), "I want to build a complete backend system")
	require.NoError(t, err)
	assert.Equal(t, TaskComplex, res.Intent)
	assert.Equal(t, "I want to build a complete backend system", res.Task)
}

func TestDetectLocalSimpleTask(t *testing.T) {
	r := NewRouter(nil)
	res, err := r.Detect(context.Background(), "create a function that validates emails")
	require.NoError(t, err)
	assert.Equal(t, TaskSimple, res.Intent)
}

func TestDetectLocalControlKeywords(t *testing.T) {
	r := NewRouter(nil)

	res, err := r.Detect(context.Background(), "please pause")
	require.NoError(t, err)
	assert.Equal(t, ControlPause, res.Intent)

	res, err = r.Detect(context.Background(), "resume please")
	require.NoError(t, err)
	assert.Equal(t, ControlResume, res.Intent)

	res, err = r.Detect(context.Background(), "cancel this")
	require.NoError(t, err)
	assert.Equal(t, ControlCancel, res.Intent)
}

func TestDetectFallsBackToLLMWhenHeuristicsInconclusive(t *testing.T) {
	client := &stubClient{content: "```json\n" + `{"intent": "CHAT_QUESTION", "confidence": 0.92, "reasoning": "technical question"}` + "\n```"}
	r := NewRouter(client)

	res, err := r.Detect(context.Background(), "how does garbage collection work in Go")
	require.NoError(t, err)
	assert.Equal(t, ChatQuestion, res.Intent)
	assert.InDelta(t, 0.92, res.Confidence, 1e-9)
}

func TestDetectLowConfidenceCollapsesToGeneralChat(t *testing.T) {
	client := &stubClient{content: `{"intent": "TASK_COMPLEX", "confidence": 0.3}`}
	r := NewRouter(client)

	res, err := r.Detect(context.Background(), "maybe build something interesting sometime")
	require.NoError(t, err)
	assert.Equal(t, ChatGeneral, res.Intent)
}

func TestDetectUnknownIntentStringCollapsesToGeneralChat(t *testing.T) {
	client := &stubClient{content: `{"intent": "SOMETHING_WEIRD", "confidence": 0.95}`}
	r := NewRouter(client)

	res, err := r.Detect(context.Background(), "an ambiguous message about stuff")
	require.NoError(t, err)
	assert.Equal(t, ChatGeneral, res.Intent)
}

func TestDetectMalformedJSONFallsBackGracefully(t *testing.T) {
	client := &stubClient{content: "not json at all"}
	r := NewRouter(client)

	res, err := r.Detect(context.Background(), "an ambiguous message about stuff")
	require.NoError(t, err)
	assert.Equal(t, ChatGeneral, res.Intent)
	assert.Less(t, res.Confidence, lowConfidenceThreshold)
}

func TestDetectNoClientFallsBackToGeneralChat(t *testing.T) {
	r := NewRouter(nil)
	res, err := r.Detect(context.Background(), "an ambiguous message about stuff")
	require.NoError(t, err)
	assert.Equal(t, ChatGeneral, res.Intent)
}

func TestDetectClientErrorFallsBackToGeneralChat(t *testing.T) {
	client := &stubClient{err: assertError{"transport down"}}
	r := NewRouter(client)

	res, err := r.Detect(context.Background(), "an ambiguous message about stuff")
	require.NoError(t, err)
	assert.Equal(t, ChatGeneral, res.Intent)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
