// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aktagon/llmkit/anthropic"
	anthropictypes "github.com/aktagon/llmkit/anthropic/types"

	"github.com/pdiddy/cardnews/internal/httputil"
)

// Base URLs are package-level vars so tests can point them at httptest servers.
var (
	geminiAPIBase = "https://generativelanguage.googleapis.com/v1beta"
	groqAPIBase   = "https://api.groq.com/openai/v1"
)

// systemPrompt is sent to backends that take a separate system message.
const systemPrompt = "You are a careful science communicator. Reply with a single JSON object and nothing else."

// sampling holds the settings shared by every backend call.
type sampling struct {
	Temperature float64
	MaxTokens   int
}

// geminiInvoke calls the Gemini generateContent endpoint.
func geminiInvoke(client *http.Client, model, apiKey string, s sampling) InvokeFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		body := map[string]any{
			"contents": []map[string]any{
				{"role": "user", "parts": []map[string]string{{"text": prompt}}},
			},
			"generationConfig": map[string]any{
				"temperature":     s.Temperature,
				"maxOutputTokens": s.MaxTokens,
			},
		}
		endpoint := fmt.Sprintf("%s/models/%s:generateContent", geminiAPIBase, model)

		var parsed struct {
			Candidates []struct {
				Content struct {
					Parts []struct {
						Text string `json:"text"`
					} `json:"parts"`
				} `json:"content"`
			} `json:"candidates"`
		}
		header := http.Header{"X-Goog-Api-Key": {apiKey}}
		if err := postJSON(ctx, client, endpoint, header, body, &parsed); err != nil {
			return "", err
		}
		if len(parsed.Candidates) == 0 {
			return "", errEmptyContent
		}
		var sb strings.Builder
		for _, p := range parsed.Candidates[0].Content.Parts {
			sb.WriteString(p.Text)
		}
		return sb.String(), nil
	}
}

// groqInvoke calls Groq's OpenAI-compatible chat completions endpoint.
func groqInvoke(client *http.Client, model, apiKey string, s sampling) InvokeFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		body := map[string]any{
			"model": model,
			"messages": []map[string]string{
				{"role": "system", "content": systemPrompt},
				{"role": "user", "content": prompt},
			},
			"temperature": s.Temperature,
			"max_tokens":  s.MaxTokens,
		}

		var parsed struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		header := http.Header{"Authorization": {"Bearer " + apiKey}}
		if err := postJSON(ctx, client, groqAPIBase+"/chat/completions", header, body, &parsed); err != nil {
			return "", err
		}
		if len(parsed.Choices) == 0 {
			return "", errEmptyContent
		}
		return parsed.Choices[0].Message.Content, nil
	}
}

// anthropicPrompt is the llmkit call used by the anthropic backend. Tests
// replace it; llmkit does not expose a configurable base URL.
var anthropicPrompt = func(system, user, apiKey string, settings anthropictypes.RequestSettings) (string, error) {
	resp, err := anthropic.PromptWithSettings(system, user, "", apiKey, settings)
	if err != nil {
		return "", err
	}
	if len(resp.Content) == 0 {
		return "", errEmptyContent
	}
	return resp.Content[0].Text, nil
}

// anthropicInvoke calls the Anthropic Messages API through llmkit. llmkit
// takes no context, so the call runs in a goroutine and the context bounds
// how long Invoke waits for it.
func anthropicInvoke(model, apiKey string, s sampling, timeout time.Duration) InvokeFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		settings := anthropictypes.RequestSettings{
			Model:       model,
			MaxTokens:   s.MaxTokens,
			Temperature: s.Temperature,
		}

		type result struct {
			text string
			err  error
		}
		done := make(chan result, 1)
		go func() {
			text, err := anthropicPrompt(systemPrompt, prompt, apiKey, settings)
			done <- result{text, err}
		}()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case r := <-done:
			return r.text, r.err
		}
	}
}

func postJSON(ctx context.Context, client *http.Client, url string, header http.Header, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := httputil.CheckStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
