package judge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Really-Great-Tech/expense-ai-sub001/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newContinuousJudge(t *testing.T, client llm.Client, opts ...Option) *Judge {
	t.Helper()
	j, err := New("test-judge", client, []Template{MustTemplate(TemplateContinuous)}, opts...)
	require.NoError(t, err)
	return j
}

func TestNew_Validation(t *testing.T) {
	_, err := New("", llm.NewScriptedClient("m"), nil)
	require.Error(t, err)

	_, err = New("j", nil, nil)
	require.Error(t, err)
}

func TestJudgeScore_Continuous(t *testing.T) {
	client := llm.NewScriptedClient("m", "90", "40")
	j := newContinuousJudge(t, client)

	set, err := j.Score(context.Background(), []string{"p1", "p2"}, []string{"r1", "r2"})
	require.NoError(t, err)
	require.Len(t, set.Scores, 2)
	assert.InDelta(t, 0.9, set.Scores[0], 1e-9)
	assert.InDelta(t, 0.4, set.Scores[1], 1e-9)
	assert.Equal(t, "90", set.RawResponses[0])
}

func TestJudgeScore_LengthMismatch(t *testing.T) {
	j := newContinuousJudge(t, llm.NewScriptedClient("m"))
	_, err := j.Score(context.Background(), []string{"p"}, []string{"r1", "r2"})
	require.Error(t, err)
}

func TestJudgeScore_RetriesThenDefaultsToZero(t *testing.T) {
	// Never parseable: the judge should re-ask up to its budget then score 0.
	client := llm.NewScriptedClient("m", "no score here")
	j := newContinuousJudge(t, client, WithExtractionRetries(2))

	set, err := j.Score(context.Background(), []string{"p"}, []string{"r"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, set.Scores[0])
	// initial ask + 2 retries
	assert.Equal(t, 3, client.CallCount())
}

func TestJudgeScore_RetrySucceedsMidway(t *testing.T) {
	client := llm.NewScriptedClient("m", "garbage", "75")
	j := newContinuousJudge(t, client, WithExtractionRetries(5))

	set, err := j.Score(context.Background(), []string{"p"}, []string{"r"})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, set.Scores[0], 1e-9)
	assert.Equal(t, 2, client.CallCount())
}

func TestJudgeScore_TransportErrorPropagates(t *testing.T) {
	cause := errors.New("connection refused")
	j := newContinuousJudge(t, llm.NewFailingClient("m", cause))

	_, err := j.Score(context.Background(), []string{"p"}, []string{"r"})
	require.ErrorIs(t, err, cause)
}

func TestJudgeScore_SendsRenderedTemplate(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := llm.NewMockClient(ctrl)

	client.EXPECT().ModelName().Return("mocked").AnyTimes()
	client.EXPECT().
		Chat(gomock.Any(), gomock.Cond(func(messages []llm.Message) bool {
			return len(messages) == 1 &&
				strings.Contains(messages[0].Content, "PROMPT:\nthe prompt") &&
				strings.Contains(messages[0].Content, "RESPONSE:\nthe response")
		})).
		Return("70", nil)

	j := newContinuousJudge(t, client)
	set, err := j.Score(context.Background(), []string{"the prompt"}, []string{"the response"})
	require.NoError(t, err)
	assert.InDelta(t, 0.7, set.Scores[0], 1e-9)
}

func TestJudgeScore_MultipleTemplatesAveraged(t *testing.T) {
	// Continuous sees "80" → 0.8; binary sees "80" (no keyword) → retries
	// exhaust → 0. Mean is 0.4.
	client := llm.NewScriptedClient("m", "80")
	j, err := New("multi", client,
		[]Template{MustTemplate(TemplateContinuous), MustTemplate(TemplateBinary)},
		WithExtractionRetries(0))
	require.NoError(t, err)

	set, err := j.Score(context.Background(), []string{"p"}, []string{"r"})
	require.NoError(t, err)
	assert.InDelta(t, 0.4, set.Scores[0], 1e-9)
}
