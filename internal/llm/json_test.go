package llm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slok/autotask/internal/llm"
)

func TestExtractJSON(t *testing.T) {
	tests := map[string]struct {
		answer  string
		expJSON string
		expErr  bool
	}{
		"A raw JSON object should be returned as is.": {
			answer:  `{"intent_type":"TODO","confidence":0.8}`,
			expJSON: `{"intent_type":"TODO","confidence":0.8}`,
		},
		"A JSON fenced block should be extracted.": {
			answer:  "Sure, here it is:\n```json\n{\"a\": 1}\n```\nBye",
			expJSON: `{"a": 1}`,
		},
		"An untagged fenced block should be extracted.": {
			answer:  "```\n{\"a\": [1, 2]}\n```",
			expJSON: `{"a": [1, 2]}`,
		},
		"Blocks tagged with other languages should be ignored.": {
			answer:  "```go\nfmt.Println(x)\n```\nresult: {\"ok\": true}",
			expJSON: `{"ok": true}`,
		},
		"An object embedded in text should be extracted with nested braces and strings.": {
			answer:  `The answer is {"q": "use {braces}", "n": {"x": 1}} and that's it.`,
			expJSON: `{"q": "use {braces}", "n": {"x": 1}}`,
		},
		"An invalid object followed by a valid one should return the valid one.": {
			answer:  `{not json} then {"ok": 1}`,
			expJSON: `{"ok": 1}`,
		},
		"No JSON should fail.": {
			answer: "I can't help with that.",
			expErr: true,
		},
		"Unbalanced JSON should fail.": {
			answer: `{"a": 1`,
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			got, err := llm.ExtractJSON(test.answer)
			if test.expErr {
				assert.Error(err)
			} else if assert.NoError(err) {
				assert.Equal(test.expJSON, got)
			}
		})
	}
}

func TestRequestUserText(t *testing.T) {
	req := llm.Request{Messages: []llm.Message{
		{Role: llm.RoleSystem, Content: "system"},
		{Role: llm.RoleUser, Content: "first"},
		{Role: llm.RoleUser, Content: "last"},
	}}
	assert.Equal(t, "last", req.UserText())
	assert.Equal(t, "", llm.Request{}.UserText())
}
