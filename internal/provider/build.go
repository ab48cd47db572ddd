// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/cardnews/pkg/types"
)

// Backend family names accepted in the providers list.
const (
	Gemini    = "gemini"
	Groq      = "groq"
	Anthropic = "anthropic"
)

// DefaultProviders is the chain used when the configuration names none.
var DefaultProviders = []types.ProviderSpec{
	{Provider: Gemini, Model: "gemini-2.5-flash"},
	{Provider: Groq, Model: "llama-3.3-70b-versatile"},
	{Provider: Gemini, Model: "gemini-2.0-flash-lite"},
	{Provider: Anthropic, Model: "claude-sonnet-4-20250514"},
}

// Build assembles the chain from configuration and credentials. Entries
// whose credential is empty are omitted. An unknown provider family is a
// configuration error. The returned chain may be empty; Generate then
// reports ErrNoProvidersConfigured.
func Build(cfg types.GenerationConfig, creds types.Credentials, log *zap.Logger) (*Chain, error) {
	if log == nil {
		log = zap.NewNop()
	}
	specs := cfg.Providers
	if len(specs) == 0 {
		specs = DefaultProviders
	}

	client := &http.Client{Timeout: cfg.Timeout}
	s := sampling{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens}

	var attempts []Attempt
	for _, spec := range specs {
		family := strings.ToLower(strings.TrimSpace(spec.Provider))
		if spec.Model == "" {
			return nil, fmt.Errorf("provider %q: model is required", spec.Provider)
		}

		var key string
		var invoke func(string) InvokeFunc
		switch family {
		case Gemini:
			key = creds.Gemini
			invoke = func(k string) InvokeFunc { return geminiInvoke(client, spec.Model, k, s) }
		case Groq:
			key = creds.Groq
			invoke = func(k string) InvokeFunc { return groqInvoke(client, spec.Model, k, s) }
		case Anthropic:
			key = creds.Anthropic
			invoke = func(k string) InvokeFunc { return anthropicInvoke(spec.Model, k, s, cfg.Timeout) }
		default:
			return nil, fmt.Errorf("unknown provider %q (want gemini, groq, or anthropic)", spec.Provider)
		}

		if key == "" {
			log.Info("provider: skipping attempt without credential",
				zap.String("provider", family), zap.String("model", spec.Model))
			continue
		}
		attempts = append(attempts, Attempt{
			Provider:   family,
			Model:      spec.Model,
			Credential: key,
			Invoke:     invoke(key),
		})
	}

	return NewChain(attempts, cfg.Cooldown, log), nil
}
