package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dgallion1/bookshelf/internal/config"
	"github.com/dgallion1/bookshelf/internal/doctree"
	"github.com/dgallion1/bookshelf/internal/parser"
	"github.com/dgallion1/bookshelf/internal/searchtext"
	"github.com/dgallion1/bookshelf/internal/toc"
)

var (
	condenseQuery string
	tocNoML       bool
)

var condenseCmd = &cobra.Command{
	Use:   "condense FILE",
	Short: "Print the searchable text of a book",
	Long: `Parse a PDF or text file and print its condensed searchable text.

With --query, print whether the book matches and the matching snippets.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		tree, _, err := parseFile(args[0], cfg)
		if err != nil {
			return err
		}

		c := searchtext.New()
		text := c.Condense(tree.FullText())
		out := cmd.OutOrStdout()
		if condenseQuery == "" {
			fmt.Fprintln(out, text)
			return nil
		}
		fmt.Fprintf(out, "match: %v\n", c.ContainsQuery(text, condenseQuery))
		for _, s := range c.ExtractSnippets(text, condenseQuery, c.MaxSnippets) {
			fmt.Fprintf(out, "  %s\n", s)
		}
		return nil
	},
}

var tocCmd = &cobra.Command{
	Use:   "toc FILE",
	Short: "Extract and print a book's table of contents as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		tree, data, err := parseFile(args[0], cfg)
		if err != nil {
			return err
		}

		extractor := &toc.Extractor{Outline: parser.OutlineReader{}, Log: newLogger(cmd.ErrOrStderr())}
		if cfg.TOCServiceURL != "" && !tocNoML {
			ml := toc.NewMLClient(cfg.TOCServiceURL, cfg.TOCServiceTimeout, cfg.TOCServiceRetries)
			defer ml.Close()
			extractor.ML = ml
		}

		src := toc.Source{Filename: filepath.Base(args[0]), Pages: tree.PageTexts()}
		if parser.IsPDF(args[0]) {
			src.PDF = data
		}
		res := extractor.Extract(cmd.Context(), src)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	condenseCmd.Flags().StringVarP(&condenseQuery, "query", "q", "", "test a query against the condensed text")
	tocCmd.Flags().BoolVar(&tocNoML, "no-ml", false, "skip the ML extraction service")
}

func parseFile(path string, cfg config.Config) (*doctree.DocTree, []byte, error) {
	if !parser.IsSupportedExtension(path) {
		return nil, nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	p, err := parser.ForFile(path, parser.Options{FallbackPdftotext: cfg.PDFFallbackPdftotext})
	if err != nil {
		return nil, nil, err
	}
	tree, err := p.Parse(bytes.NewReader(data), filepath.Base(path))
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return tree, data, nil
}
