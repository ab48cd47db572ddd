// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/cardnews/internal/ledger"
	"github.com/pdiddy/cardnews/pkg/types"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and migrate the processed-papers ledger",
	Long: `Ledger manages the record of papers that have been fully processed.
Use subcommands to list entries, export them, or import a history file such
as processed_papers.json.`,
}

// --- list subcommand ---

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List processed papers",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLedger()
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.List(cmd.Context())
		if err != nil {
			return err
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			if entries == nil {
				entries = []ledger.Entry{}
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}

		if len(entries) == 0 {
			fmt.Println("Ledger is empty.")
			return nil
		}
		fmt.Fprintf(os.Stdout, "%-40s  %-16s  %s\n", "DOI", "Completed", "Title")
		fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))
		for _, e := range entries {
			completed := ""
			if !e.CompletedAt.IsZero() {
				completed = e.CompletedAt.Local().Format("2006-01-02 15:04")
			}
			fmt.Fprintf(os.Stdout, "%-40s  %-16s  %s\n", e.DOI, completed, e.Title)
		}
		fmt.Printf("\n%d papers\n", len(entries))
		return nil
	},
}

// --- export subcommand ---

var ledgerExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the ledger as JSON or YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLedger()
		if err != nil {
			return err
		}
		defer store.Close()

		format, _ := cmd.Flags().GetString("format")
		path, _ := cmd.Flags().GetString("out")
		if path == "" {
			return ledger.Export(cmd.Context(), store, os.Stdout, format)
		}

		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		if err := ledger.Export(cmd.Context(), store, f, format); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	},
}

// --- import subcommand ---

var ledgerImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Append DOIs from a JSON or YAML history file",
	Long: `Import reads a list of DOI strings (the processed_papers.json format) or
of exported ledger entries, and appends every DOI not already present.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLedger()
		if err != nil {
			return err
		}
		defer store.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening %s: %w", args[0], err)
		}
		defer f.Close()

		start := time.Now()
		added, err := ledger.Import(cmd.Context(), store, f)
		if err != nil {
			return err
		}
		fmt.Printf("imported %d new entries in %s\n", added, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func openLedger() (ledger.Store, error) {
	return ledger.Open(types.LedgerConfig{
		Backend: viper.GetString("ledger.backend"),
		Path:    viper.GetString("ledger.path"),
	})
}

func init() {
	ledgerListCmd.Flags().Bool("json", false, "output entries as JSON")
	ledgerExportCmd.Flags().String("format", "json", "export format: json or yaml")
	ledgerExportCmd.Flags().String("out", "", "write to a file instead of stdout")

	ledgerCmd.AddCommand(ledgerListCmd)
	ledgerCmd.AddCommand(ledgerExportCmd)
	ledgerCmd.AddCommand(ledgerImportCmd)
	rootCmd.AddCommand(ledgerCmd)
}
