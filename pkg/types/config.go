package types

import "time"

// HTTPConfig holds shared HTTP settings used by collaborators that make
// network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "cardnews/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// SearchConfig holds settings for the paper source.
type SearchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// QueriesFile is the JSON or YAML list of search queries.
	QueriesFile string `json:"queries_file" yaml:"queries_file" mapstructure:"queries_file"`

	// PerQueryLimit is the number of results requested per query (default 10).
	PerQueryLimit int `json:"per_query_limit" yaml:"per_query_limit" mapstructure:"per_query_limit"`

	// MaxPapers is the number of papers selected per run (default 2).
	MaxPapers int `json:"max_papers" yaml:"max_papers" mapstructure:"max_papers"`

	// YearFrom restricts results to papers published in or after this year.
	YearFrom int `json:"year_from" yaml:"year_from" mapstructure:"year_from"`

	// QueryDelay is the pause between consecutive queries (default 1.5s).
	QueryDelay time.Duration `json:"query_delay" yaml:"query_delay" mapstructure:"query_delay"`

	// SemanticScholarAPIKey is an optional API key for higher rate limits.
	SemanticScholarAPIKey string `json:"-" yaml:"-" mapstructure:"-"`

	// OpenAlexEmail is sent as mailto for the OpenAlex polite pool.
	OpenAlexEmail string `json:"openalex_email,omitempty" yaml:"openalex_email,omitempty" mapstructure:"openalex_email"`
}

// ExtractionConfig holds settings for the text and figure extractor.
type ExtractionConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// WorkDir holds downloaded PDFs and extracted figures, one subdirectory
	// per paper.
	WorkDir string `json:"work_dir" yaml:"work_dir" mapstructure:"work_dir"`

	// MaxPages caps the number of PDF pages read (default 25).
	MaxPages int `json:"max_pages" yaml:"max_pages" mapstructure:"max_pages"`

	// MaxChars caps the extracted text length in runes (default 15000).
	MaxChars int `json:"max_chars" yaml:"max_chars" mapstructure:"max_chars"`

	// MinFigureWidth and MinFigureHeight filter out icons and logos.
	MinFigureWidth  int `json:"min_figure_width" yaml:"min_figure_width" mapstructure:"min_figure_width"`
	MinFigureHeight int `json:"min_figure_height" yaml:"min_figure_height" mapstructure:"min_figure_height"`
}

// ProviderSpec names one entry of the generation fallback chain.
type ProviderSpec struct {
	// Provider is the backend family: gemini, groq, or anthropic.
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Model is the backend model identifier.
	Model string `json:"model" yaml:"model" mapstructure:"model"`
}

// GenerationConfig holds settings shared by every generation backend call.
type GenerationConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Providers is the ordered fallback chain. Entries whose credential is
	// missing are dropped when the chain is built.
	Providers []ProviderSpec `json:"providers" yaml:"providers" mapstructure:"providers"`

	// Temperature is the sampling temperature (default 0.3).
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`

	// MaxTokens is the output token cap per call (default 4096).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// Cooldown is the pause after a failed attempt before the next one (default 5s).
	Cooldown time.Duration `json:"cooldown" yaml:"cooldown" mapstructure:"cooldown"`

	// StageDelay is the pause between consecutive stages of one item (default 3s).
	StageDelay time.Duration `json:"stage_delay" yaml:"stage_delay" mapstructure:"stage_delay"`

	// PromptDir optionally holds analysis.tmpl, script.tmpl, and verify.tmpl
	// overriding the built-in prompts.
	PromptDir string `json:"prompt_dir,omitempty" yaml:"prompt_dir,omitempty" mapstructure:"prompt_dir"`

	// UnknownVerdict decides what happens when the verify stage returns no
	// recognizable verdict: "render" or "fail".
	UnknownVerdict string `json:"unknown_verdict" yaml:"unknown_verdict" mapstructure:"unknown_verdict"`
}

// RenderConfig holds settings for the card renderer.
type RenderConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Image is the container image that turns HTML on stdin into PNG on stdout.
	Image string `json:"image" yaml:"image" mapstructure:"image"`

	// Args are passed to the container after the image name.
	Args []string `json:"args" yaml:"args" mapstructure:"args"`

	// Width and Height are the card dimensions in CSS pixels (default 1080).
	Width  int `json:"width" yaml:"width" mapstructure:"width"`
	Height int `json:"height" yaml:"height" mapstructure:"height"`
}

// LedgerConfig selects the ledger backend.
type LedgerConfig struct {
	// Backend is "sqlite" (default) or "json".
	Backend string `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Path is the database file or the JSON history file.
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// Credentials holds API keys resolved at startup. It is never serialized.
type Credentials struct {
	Gemini          string
	Groq            string
	Anthropic       string
	Pexels          string
	SemanticScholar string
}

// Config groups every setting for one pipeline run. It is built once in the
// CLI and passed explicitly to each component.
type Config struct {
	Search     SearchConfig     `json:"search" yaml:"search" mapstructure:"search"`
	Extraction ExtractionConfig `json:"extraction" yaml:"extraction" mapstructure:"extraction"`
	Generation GenerationConfig `json:"generation" yaml:"generation" mapstructure:"generation"`
	Render     RenderConfig     `json:"render" yaml:"render" mapstructure:"render"`
	Ledger     LedgerConfig     `json:"ledger" yaml:"ledger" mapstructure:"ledger"`

	// OutputDir is the base directory for per-paper card output.
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`

	// ItemDelay is the pause after each item regardless of outcome (default 5s).
	ItemDelay time.Duration `json:"item_delay" yaml:"item_delay" mapstructure:"item_delay"`

	Credentials Credentials `json:"-" yaml:"-" mapstructure:"-"`
}
