// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pdiddy/cardnews/internal/fulltext"
	"github.com/pdiddy/cardnews/internal/pipeline"
	"github.com/pdiddy/cardnews/pkg/types"
)

var renderCmd = &cobra.Command{
	Use:   "render <output-dir>",
	Short: "Re-render the cards of a completed run",
	Long: `Render reads metadata.json from a run's output directory and renders its
card script again, overwriting the card HTML and PNG files. Use it after
changing the card templates or the rasterizer image. No generation backend
is called and the ledger is not touched.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dir := args[0]

		data, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
		if err != nil {
			return fmt.Errorf("reading run record: %w", err)
		}
		var record types.RunRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("parsing run record: %w", err)
		}

		renderer, err := pipeline.NewRenderer(cfg, logger)
		if err != nil {
			return err
		}
		figDir := fulltext.New(cfg.Extraction, nil, logger).FigureDir(record.Paper.DOI)

		out, err := renderer.Render(cmd.Context(), record.CardNews, figDir, dir)
		if err != nil {
			return err
		}
		fmt.Printf("rendered %d cards (%d images, %d failed) in %s\n", len(out.HTML), len(out.Images), out.Failed, dir)
		if out.Failed > 0 {
			return fmt.Errorf("%d card(s) failed to render", out.Failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)
}
