// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/cardnews/internal/pipeline"
	"github.com/pdiddy/cardnews/internal/search"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Search for new papers and produce card news for each",
	Long: `Run searches Semantic Scholar with the configured queries, skips papers
already in the ledger, and processes the most cited new papers one at a
time: text and figure extraction, analysis, scripting, fact-checking with
at most one revision, rendering, and a ledger entry.

A paper that fails is logged and skipped. Run exits non-zero only when the
configuration is invalid or the run cannot start.

Use --papers to process a result file saved by "cardnews search --save"
instead of searching again.`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd, map[string]string{
		"search.queries_file": "queries",
		"search.max_papers":   "max-papers",
		"output_dir":          "output-dir",
	}); err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	app, err := pipeline.Build(cfg, os.Stdout, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	papersFile, _ := cmd.Flags().GetString("papers")
	if papersFile != "" {
		rf, err := search.ReadResultFile(papersFile)
		if err != nil {
			return err
		}
		_, err = app.Runner.Run(ctx, rf.Papers)
		return err
	}

	queries, err := search.LoadQueries(viper.GetString("search.queries_file"))
	if err != nil {
		return &pipeline.ConfigError{Key: "search.queries_file", Err: err}
	}
	_, err = app.RunQueries(ctx, queries)
	return err
}

func init() {
	runCmd.Flags().String("queries", "", "queries file, JSON or YAML list (default data/queries.json)")
	runCmd.Flags().Int("max-papers", 0, "papers to process per run (default 2)")
	runCmd.Flags().String("papers", "", "process papers from a saved search result file")
	runCmd.Flags().String("output-dir", "", "base directory for card output (default output)")

	rootCmd.AddCommand(runCmd)
}
