// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	anthropictypes "github.com/aktagon/llmkit/anthropic/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/cardnews/internal/httputil"
	"github.com/pdiddy/cardnews/pkg/types"
)

var testSampling = sampling{Temperature: 0.3, MaxTokens: 4096}

func TestGeminiInvoke(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "gkey", r.Header.Get("X-Goog-Api-Key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gen := body["generationConfig"].(map[string]any)
		assert.Equal(t, 0.3, gen["temperature"])
		assert.Equal(t, float64(4096), gen["maxOutputTokens"])

		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"a\":"},{"text":"1}"}]}}]}`))
	}))
	defer ts.Close()

	old := geminiAPIBase
	geminiAPIBase = ts.URL
	defer func() { geminiAPIBase = old }()

	got, err := geminiInvoke(ts.Client(), "gemini-test", "gkey", testSampling)(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, got)
}

func TestGeminiInvoke_NoCandidates(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer ts.Close()

	old := geminiAPIBase
	geminiAPIBase = ts.URL
	defer func() { geminiAPIBase = old }()

	_, err := geminiInvoke(ts.Client(), "m", "k", testSampling)(context.Background(), "hello")
	assert.ErrorIs(t, err, errEmptyContent)
}

func TestGroqInvoke(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer qkey", r.Header.Get("Authorization"))

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
			MaxTokens int `json:"max_tokens"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama-test", body.Model)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "hello", body.Messages[1].Content)
		assert.Equal(t, 4096, body.MaxTokens)

		w.Write([]byte(`{"choices":[{"message":{"content":"{\"b\":2}"}}]}`))
	}))
	defer ts.Close()

	old := groqAPIBase
	groqAPIBase = ts.URL
	defer func() { groqAPIBase = old }()

	got, err := groqInvoke(ts.Client(), "llama-test", "qkey", testSampling)(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"b":2}`, got)
}

func TestGroqInvoke_RateLimited(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}))
	defer ts.Close()

	old := groqAPIBase
	groqAPIBase = ts.URL
	defer func() { groqAPIBase = old }()

	_, err := groqInvoke(ts.Client(), "m", "k", testSampling)(context.Background(), "hello")
	var se *httputil.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
}

func TestAnthropicInvoke(t *testing.T) {
	old := anthropicPrompt
	defer func() { anthropicPrompt = old }()

	var gotSettings anthropictypes.RequestSettings
	anthropicPrompt = func(system, user, apiKey string, s anthropictypes.RequestSettings) (string, error) {
		gotSettings = s
		assert.Equal(t, "akey", apiKey)
		assert.Equal(t, "hello", user)
		return `{"c":3}`, nil
	}

	got, err := anthropicInvoke("claude-test", "akey", testSampling, time.Second)(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"c":3}`, got)
	assert.Equal(t, "claude-test", gotSettings.Model)
	assert.Equal(t, 4096, gotSettings.MaxTokens)
}

func TestAnthropicInvoke_Timeout(t *testing.T) {
	old := anthropicPrompt
	defer func() { anthropicPrompt = old }()

	release := make(chan struct{})
	defer close(release)
	anthropicPrompt = func(string, string, string, anthropictypes.RequestSettings) (string, error) {
		<-release
		return "late", nil
	}

	_, err := anthropicInvoke("m", "k", testSampling, 10*time.Millisecond)(context.Background(), "hello")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBuild_OmitsMissingCredentials(t *testing.T) {
	c, err := Build(types.GenerationConfig{}, types.Credentials{Groq: "q", Anthropic: "a"}, nil)
	require.NoError(t, err)

	var names []string
	for _, a := range c.Attempts() {
		names = append(names, a.Name())
	}
	assert.Equal(t, []string{"groq/llama-3.3-70b-versatile", "anthropic/claude-sonnet-4-20250514"}, names)
}

func TestBuild_DefaultOrder(t *testing.T) {
	c, err := Build(types.GenerationConfig{}, types.Credentials{Gemini: "g", Groq: "q", Anthropic: "a"}, nil)
	require.NoError(t, err)
	require.Equal(t, 4, c.Len())
	assert.Equal(t, "gemini/gemini-2.5-flash", c.Attempts()[0].Name())
	assert.Equal(t, "gemini/gemini-2.0-flash-lite", c.Attempts()[2].Name())
}

func TestBuild_NoCredentials(t *testing.T) {
	c, err := Build(types.GenerationConfig{}, types.Credentials{}, nil)
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), "p")
	assert.ErrorIs(t, err, ErrNoProvidersConfigured)
}

func TestBuild_ConfiguredProviders(t *testing.T) {
	cfg := types.GenerationConfig{Providers: []types.ProviderSpec{
		{Provider: "Anthropic", Model: "claude-x"},
		{Provider: "gemini", Model: "gemini-y"},
	}}
	c, err := Build(cfg, types.Credentials{Gemini: "g", Anthropic: "a"}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())
	assert.Equal(t, "anthropic/claude-x", c.Attempts()[0].Name())
	assert.Equal(t, "a", c.Attempts()[0].Credential)
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(types.GenerationConfig{Providers: []types.ProviderSpec{{Provider: "openai", Model: "gpt"}}}, types.Credentials{}, nil)
	assert.ErrorContains(t, err, "unknown provider")

	_, err = Build(types.GenerationConfig{Providers: []types.ProviderSpec{{Provider: "groq"}}}, types.Credentials{}, nil)
	assert.ErrorContains(t, err, "model is required")
}
