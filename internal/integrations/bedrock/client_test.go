package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"

	"slack-ai-bridge/internal/domain"
)

type fakeRuntime struct {
	out       *bedrockruntime.InvokeModelOutput
	err       error
	lastIn    *bedrockruntime.InvokeModelInput
	callCount int
}

func (f *fakeRuntime) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.lastIn = in
	f.callCount++
	return f.out, f.err
}

func bodyOut(s string) *bedrockruntime.InvokeModelOutput {
	return &bedrockruntime.InvokeModelOutput{Body: []byte(s)}
}

func userPrompt() []domain.PromptMessage {
	return []domain.PromptMessage{{Role: domain.RoleUser, Content: "hello"}}
}

func mustNew(t *testing.T, api runtimeAPI, opts ...Option) *Client {
	t.Helper()
	c, err := New(api, "model-x", opts...)
	require.NoError(t, err)
	return c
}

func requireKind(t *testing.T, err error, kind domain.ErrorKind) *domain.Error {
	t.Helper()
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	require.Equal(t, kind, de.Kind)
	return de
}

func TestNew(t *testing.T) {
	_, err := New(nil, "m")
	require.Error(t, err)

	c, err := New(&fakeRuntime{}, " ")
	require.NoError(t, err)
	require.Equal(t, DefaultModelID, c.modelID)
}

func TestReply_HappyPath(t *testing.T) {
	api := &fakeRuntime{out: bodyOut(`{"content":[{"type":"text","text":"hi there"}],"stop_reason":"end_turn"}`)}
	c := mustNew(t, api, WithMaxTokens(512))

	got, err := c.Reply(context.Background(), userPrompt())
	require.NoError(t, err)
	require.Equal(t, "hi there", got)
	require.Equal(t, "model-x", aws.ToString(api.lastIn.ModelId))

	var sent map[string]any
	require.NoError(t, json.Unmarshal(api.lastIn.Body, &sent))
	require.Equal(t, "bedrock-2023-05-31", sent["anthropic_version"])
	require.EqualValues(t, 512, sent["max_tokens"])
	require.Equal(t, []any{map[string]any{"role": "user", "content": "hello"}}, sent["messages"])
}

func TestReply_SkipsNonTextBlocks(t *testing.T) {
	api := &fakeRuntime{out: bodyOut(`{"content":[{"type":"thinking"},{"type":"text","text":"answer"}]}`)}
	got, err := mustNew(t, api).Reply(context.Background(), userPrompt())
	require.NoError(t, err)
	require.Equal(t, "answer", got)
}

func TestReply_BadResponses(t *testing.T) {
	cases := map[string]string{
		"undecodable":   `not json`,
		"missing":       `{"stop_reason":"end_turn"}`,
		"empty content": `{"content":[]}`,
		"no text":       `{"content":[{"type":"tool_use"}]}`,
		"empty text":    `{"content":[{"type":"text","text":"  "}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := mustNew(t, &fakeRuntime{out: bodyOut(body)}).Reply(context.Background(), userPrompt())
			requireKind(t, err, domain.ErrBadResponse)
		})
	}
}

func TestReply_ErrorClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want domain.ErrorKind
	}{
		{"throttling", &types.ThrottlingException{Message: aws.String("slow down")}, domain.ErrRateLimitExceeded},
		{"quota", &types.ServiceQuotaExceededException{Message: aws.String("quota")}, domain.ErrRateLimitExceeded},
		{"validation", &types.ValidationException{Message: aws.String("bad roles")}, domain.ErrInvalidPrompt},
		{"model timeout", &types.ModelTimeoutException{Message: aws.String("timeout")}, domain.ErrInferenceUnavailable},
		{"generic api", &smithy.GenericAPIError{Code: "InternalServerException"}, domain.ErrInferenceUnavailable},
		{"transport", errors.New("dial tcp: timeout"), domain.ErrInferenceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := mustNew(t, &fakeRuntime{err: tc.err}).Reply(context.Background(), userPrompt())
			requireKind(t, err, tc.want)
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestReply_ValidationCarriesPrompt(t *testing.T) {
	api := &fakeRuntime{err: &types.ValidationException{Message: aws.String("bad")}}
	_, err := mustNew(t, api).Reply(context.Background(), userPrompt())
	de := requireKind(t, err, domain.ErrInvalidPrompt)
	require.Equal(t, userPrompt(), de.Prompt)
}

func TestReply_LocalValidationSkipsInvoke(t *testing.T) {
	api := &fakeRuntime{}
	prompt := []domain.PromptMessage{
		{Role: domain.RoleUser, Content: "q"},
		{Role: domain.RoleAssistant, Content: "a"},
	}
	_, err := mustNew(t, api).Reply(context.Background(), prompt)
	de := requireKind(t, err, domain.ErrInvalidPrompt)
	require.Equal(t, prompt, de.Prompt)
	require.Zero(t, api.callCount)

	_, err = mustNew(t, api).Reply(context.Background(), nil)
	requireKind(t, err, domain.ErrInvalidPrompt)
	require.Zero(t, api.callCount)
}

func TestNewRetryer(t *testing.T) {
	require.Equal(t, 8, NewRetryer(0)().MaxAttempts())
	require.Equal(t, 3, NewRetryer(3)().MaxAttempts())
}
