package langchain_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/slok/autotask/internal/llm"
	"github.com/slok/autotask/internal/llm/langchain"
	"github.com/slok/autotask/internal/log"
)

type fakeModel struct {
	gotMessages []llms.MessageContent
	gotOpts     llms.CallOptions
	resp        *llms.ContentResponse
	err         error
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.gotMessages = messages
	for _, o := range options {
		o(&f.gotOpts)
	}
	return f.resp, f.err
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", errors.New("not implemented")
}

func TestClientComplete(t *testing.T) {
	tests := map[string]struct {
		model  *fakeModel
		req    llm.Request
		exp    string
		expErr error
	}{
		"A successful completion should return the first choice.": {
			model: &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "hello"}, {Content: "other"}}}},
			req:   llm.Request{Messages: []llm.Message{{Role: llm.RoleSystem, Content: "s"}, {Role: llm.RoleUser, Content: "u"}}},
			exp:   "hello",
		},
		"A provider failure should be an unavailable error.": {
			model:  &fakeModel{err: errors.New("connection refused")},
			req:    llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "u"}}},
			expErr: llm.ErrUnavailable,
		},
		"An empty answer should be an unavailable error.": {
			model:  &fakeModel{resp: &llms.ContentResponse{}},
			req:    llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "u"}}},
			expErr: llm.ErrUnavailable,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			c := langchain.NewClientFromModel(test.model, "fake", log.Noop)
			got, err := c.Complete(context.Background(), test.req)
			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.exp, got)
		})
	}
}

func TestClientCompleteMapsRequest(t *testing.T) {
	model := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "{}"}}}}
	c := langchain.NewClientFromModel(model, "fake", nil)

	_, err := c.Complete(context.Background(), llm.Request{
		Messages:    []llm.Message{{Role: llm.RoleSystem, Content: "rules"}, {Role: llm.RoleUser, Content: "text"}},
		Temperature: 0.1,
		MaxTokens:   256,
		JSON:        true,
	})
	require.NoError(t, err)

	require.Len(t, model.gotMessages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.gotMessages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.gotMessages[1].Role)
	assert.Equal(t, []llms.ContentPart{llms.TextPart("text")}, model.gotMessages[1].Parts)
	assert.Equal(t, 0.1, model.gotOpts.Temperature)
	assert.Equal(t, 256, model.gotOpts.MaxTokens)
	assert.True(t, model.gotOpts.JSONMode)
}

func TestNewClientUnknownProvider(t *testing.T) {
	_, err := langchain.NewClient(context.Background(), langchain.ClientConfig{Provider: "nope"})
	assert.Error(t, err)
}
