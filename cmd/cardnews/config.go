// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/cardnews/internal/provider"
	"github.com/pdiddy/cardnews/internal/secrets"
	"github.com/pdiddy/cardnews/pkg/types"
)

// setDefaults registers every configuration key so that CARDNEWS_* env
// variables and the config file can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("output_dir", "output")
	v.SetDefault("item_delay", 5*time.Second)

	v.SetDefault("search.timeout", 15*time.Second)
	v.SetDefault("search.user_agent", "cardnews/"+version)
	v.SetDefault("search.queries_file", "data/queries.json")
	v.SetDefault("search.per_query_limit", 10)
	v.SetDefault("search.max_papers", 2)
	v.SetDefault("search.year_from", 2015)
	v.SetDefault("search.query_delay", 1500*time.Millisecond)
	v.SetDefault("search.openalex_email", "")

	v.SetDefault("extraction.timeout", 45*time.Second)
	v.SetDefault("extraction.user_agent", "cardnews/"+version)
	v.SetDefault("extraction.work_dir", "tmp/work")
	v.SetDefault("extraction.max_pages", 25)
	v.SetDefault("extraction.max_chars", 15000)
	v.SetDefault("extraction.min_figure_width", 300)
	v.SetDefault("extraction.min_figure_height", 200)

	v.SetDefault("generation.timeout", 120*time.Second)
	v.SetDefault("generation.user_agent", "cardnews/"+version)
	v.SetDefault("generation.temperature", 0.3)
	v.SetDefault("generation.max_tokens", 4096)
	v.SetDefault("generation.cooldown", 5*time.Second)
	v.SetDefault("generation.stage_delay", 3*time.Second)
	v.SetDefault("generation.prompt_dir", "")
	v.SetDefault("generation.unknown_verdict", "render")
	v.SetDefault("generation.providers", defaultProviders())

	v.SetDefault("render.timeout", 30*time.Second)
	v.SetDefault("render.user_agent", "cardnews/"+version)
	v.SetDefault("render.image", "")
	v.SetDefault("render.args", []string{})
	v.SetDefault("render.width", 1080)
	v.SetDefault("render.height", 1080)

	v.SetDefault("ledger.backend", "sqlite")
	v.SetDefault("ledger.path", "data/ledger.db")
}

func defaultProviders() []map[string]any {
	out := make([]map[string]any, len(provider.DefaultProviders))
	for i, p := range provider.DefaultProviders {
		out[i] = map[string]any{"provider": p.Provider, "model": p.Model}
	}
	return out
}

// loadConfig decodes the viper state into a types.Config and resolves
// credentials from the environment, the env file, and the secrets
// directory.
func loadConfig(cmd *cobra.Command) (types.Config, error) {
	var cfg types.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding configuration: %w", err)
	}

	dir, _ := cmd.Flags().GetString("secrets-dir")
	envFile, _ := cmd.Flags().GetString("env-file")
	set, err := secrets.Load(dir, envFile, nil, logger)
	if err != nil {
		return cfg, err
	}
	cfg.Credentials = set.Credentials()
	cfg.Search.SemanticScholarAPIKey = cfg.Credentials.SemanticScholar
	if cfg.Search.OpenAlexEmail == "" {
		cfg.Search.OpenAlexEmail = set.Get(secrets.OpenAlexEmail)
	}
	return cfg, nil
}

// bindFlags binds the command's flags to configuration keys. A flag the user
// did not set leaves the configured value in place.
func bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for key, name := range keys {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	return nil
}
