// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/cardnews/internal/pipeline"
	"github.com/pdiddy/cardnews/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Preview the papers the next run would process",
	Long: `Search runs the configured queries against Semantic Scholar, drops papers
already in the ledger, and prints the top candidates ranked by citation
count. No generation backend is called.`,
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd, map[string]string{
		"search.queries_file": "queries",
		"search.max_papers":   "max-papers",
	}); err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	queries, err := search.LoadQueries(viper.GetString("search.queries_file"))
	if err != nil {
		return &pipeline.ConfigError{Key: "search.queries_file", Err: err}
	}

	app, err := pipeline.BuildSearch(cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	out, err := app.Discover(cmd.Context(), queries)
	if err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("save"); path != "" {
		if err := search.WriteResultFile(path, queries, out); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Saved %d papers to %s\n", len(out.Papers), path)
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return search.FormatJSON(out, os.Stdout)
	}
	search.FormatTable(out, os.Stdout)
	return nil
}

func init() {
	searchCmd.Flags().String("queries", "", "queries file, JSON or YAML list (default data/queries.json)")
	searchCmd.Flags().Int("max-papers", 0, "number of papers to select (default 2)")
	searchCmd.Flags().Bool("json", false, "output results as JSON")
	searchCmd.Flags().String("save", "", "write the selection to a YAML result file for 'run --papers'")

	rootCmd.AddCommand(searchCmd)
}
