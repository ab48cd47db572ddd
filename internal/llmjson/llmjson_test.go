// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llmjson

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Recovers(t *testing.T) {
	want := map[string]any{"verdict": "APPROVED", "checks": []any{}}

	tests := []struct {
		name string
		raw  string
	}{
		{"bare object", `{"verdict":"APPROVED","checks":[]}`},
		{"surrounding whitespace", "\n\n  {\"verdict\":\"APPROVED\",\"checks\":[]}  \n"},
		{"json fence", "```json\n{\"verdict\":\"APPROVED\",\"checks\":[]}\n```"},
		{"untagged fence", "```\n{\"verdict\":\"APPROVED\",\"checks\":[]}\n```"},
		{"fence with prose", "Here is the result:\n```json\n{\"verdict\":\"APPROVED\",\"checks\":[]}\n```\nLet me know!"},
		{"prose only", `Sure! {"verdict":"APPROVED","checks":[]} Hope this helps.`},
		{"fence inline", "```json {\"verdict\":\"APPROVED\",\"checks\":[]}```"},
		{"json fence preferred over earlier block", "```text\nnot json\n```\n```json\n{\"verdict\":\"APPROVED\",\"checks\":[]}\n```"},
		{"nested braces", `prefix {"verdict":"APPROVED","checks":[]} suffix`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestDecode_NestedObject(t *testing.T) {
	raw := "Analysis below.\n{\"hook_headline\":\"Heat\",\"figure_selection\":{\"use_paper_figures\":false}}\nEnd."
	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "Heat", got["hook_headline"])
	assert.Equal(t, map[string]any{"use_paper_figures": false}, got["figure_selection"])
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"plain prose", "I cannot help with that."},
		{"unbalanced open", `{"verdict": "APPROVED"`},
		{"unbalanced close", `"verdict": "APPROVED"}`},
		{"reversed braces", `} nothing {`},
		{"array", `[{"verdict":"APPROVED"}]`},
		{"scalar", `42`},
		{"null", `null`},
		{"broken fence", "```json\n{\"a\": }\n```"},
		{"trailing garbage inside braces", `{"a": 1} and {"b": }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.raw)
			require.Error(t, err)
			assert.Nil(t, got)
			assert.True(t, errors.Is(err, ErrMalformedResponse))

			var mre *MalformedResponseError
			require.True(t, errors.As(err, &mre))
		})
	}
}

func TestDecode_PrefixTruncated(t *testing.T) {
	raw := strings.Repeat("x", 1000)
	_, err := Decode(raw)
	var mre *MalformedResponseError
	require.True(t, errors.As(err, &mre))
	assert.Equal(t, strings.Repeat("x", prefixRunes)+"...", mre.Prefix)
}

func TestDecodeInto(t *testing.T) {
	var out struct {
		Verdict string `json:"verdict"`
	}
	require.NoError(t, DecodeInto("```json\n{\"verdict\":\"REVISION_NEEDED\"}\n```", &out))
	assert.Equal(t, "REVISION_NEEDED", out.Verdict)

	err := DecodeInto("nope", &out)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}
