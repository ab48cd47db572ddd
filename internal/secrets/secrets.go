// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets resolves API keys from the environment, a .env file, and a
// directory of plain-text files, in that order of precedence. In the
// directory each file is one secret: the filename is the key name and the
// trimmed contents are the value.
//
// Key files: gemini-api-key, groq-api-key, anthropic-api-key, pexels-api-key,
// semantic-scholar-api-key, openalex-email.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/pdiddy/cardnews/pkg/types"
)

// Secret names one credential by its key file and environment variable.
type Secret struct {
	File string
	Env  string
}

var (
	Gemini          = Secret{File: "gemini-api-key", Env: "GEMINI_API_KEY"}
	Groq            = Secret{File: "groq-api-key", Env: "GROQ_API_KEY"}
	Anthropic       = Secret{File: "anthropic-api-key", Env: "ANTHROPIC_API_KEY"}
	Pexels          = Secret{File: "pexels-api-key", Env: "PEXELS_API_KEY"}
	SemanticScholar = Secret{File: "semantic-scholar-api-key", Env: "SEMANTIC_SCHOLAR_API_KEY"}
	OpenAlexEmail   = Secret{File: "openalex-email", Env: "OPENALEX_EMAIL"}
)

// Set holds the loaded sources.
type Set struct {
	files  map[string]string
	dotenv map[string]string
	getenv func(string) string
}

// Load reads the secrets directory and the .env file. Either may be empty
// or missing. getenv is consulted first on every lookup; nil means
// os.Getenv.
func Load(dir, envFile string, getenv func(string) string, log *zap.Logger) (*Set, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if getenv == nil {
		getenv = os.Getenv
	}

	files := map[string]string{}
	if dir != "" {
		var err error
		if files, err = readDir(dir, log); err != nil {
			return nil, err
		}
	}

	dotenv := map[string]string{}
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading env file %s: %w", envFile, err)
		default:
			dotenv = m
		}
	}

	return &Set{files: files, dotenv: dotenv, getenv: getenv}, nil
}

// Get returns the first non-empty value for s from the environment, the
// .env file, then the secrets directory.
func (set *Set) Get(s Secret) string {
	if v := strings.TrimSpace(set.getenv(s.Env)); v != "" {
		return v
	}
	if v := strings.TrimSpace(set.dotenv[s.Env]); v != "" {
		return v
	}
	return set.files[s.File]
}

// Credentials returns every API key the pipeline uses.
func (set *Set) Credentials() types.Credentials {
	return types.Credentials{
		Gemini:          set.Get(Gemini),
		Groq:            set.Get(Groq),
		Anthropic:       set.Get(Anthropic),
		Pexels:          set.Get(Pexels),
		SemanticScholar: set.Get(SemanticScholar),
	}
}

// readDir reads all files in dir and returns a map of filename to trimmed
// contents. A missing directory is not an error. Unreadable files are
// logged and skipped.
func readDir(dir string, log *zap.Logger) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warn("secrets: could not read secret", zap.String("name", name), zap.Error(err))
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}
